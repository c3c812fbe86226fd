package chat

import (
	"fmt"
	"strings"
)

const answerSystemPrompt = `You are an expert academic tutor and AI assistant. Your goal is to provide a comprehensive, detailed, and in-depth answer to the user's question using the provided context.

INSTRUCTIONS:
1. Analyze deeply: do not just summarize. Explain the concepts found in the context in detail.
2. Use evidence: if the context contains code snippets, specific data, or definitions, include them in your answer and explain how they work.
3. Structure: use a logical structure with Markdown (headers, bold terms, lists).
4. Completeness: combine different parts of the context to form a full picture. If there are multiple aspects to the answer, cover all of them.

STRICT RULES:
1. Language: %s.
2. Honesty: if the context does not contain the answer, say "%s". DO NOT invent facts.
3. Tone: professional, educational, and exhaustive. Avoid being too brief.`

const answerPromptTemplate = `CONTEXT:
%s

USER QUESTION:
%s`

const reformulateSystemPrompt = `Reformulate the last user question into a standalone question using the chat history.
- Preserve all names, dates, and technical terms.
- If the question is already standalone, return it as is.
- Output ONLY the reformulated question in %s. No explanations.`

const reformulatePromptTemplate = `Chat History:
%s

Last Question: %s`

// Fixed user-facing answers. The product ships for Ukrainian-speaking
// students, so these stay in Ukrainian regardless of target language.
const (
	msgNoInformation      = "Я не знайшов жодної інформації у ваших документах, яка б відповідала на це питання."
	msgNotInContext       = "Я не знайшов інформації в наданих документах"
	msgQueryFailed        = "Помилка: Не вдалося обробити запит."
	msgGenerationFailedFn = "Виникла помилка при генерації відповіді: %s"
)

func buildAnswerPrompt(language, context, question string) (systemPrompt, prompt string) {
	return fmt.Sprintf(answerSystemPrompt, language, msgNotInContext),
		fmt.Sprintf(answerPromptTemplate, context, question)
}

func buildReformulatePrompt(language string, turns []historyTurn, question string) (systemPrompt, prompt string) {
	var history strings.Builder
	for _, t := range turns {
		history.WriteString("User: " + t.Question + "\n")
		history.WriteString("AI: " + t.Answer + "\n")
	}
	return fmt.Sprintf(reformulateSystemPrompt, language),
		fmt.Sprintf(reformulatePromptTemplate, history.String(), question)
}

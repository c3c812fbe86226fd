package study

import (
	"fmt"
	"strings"
)

const summaryPromptTemplate = `You are a knowledgeable academic assistant with expertise in summarizing educational material and synthesizing complex information into clear, concise overviews.

Your task is to analyze a provided text about a lecture and create a detailed summary that encapsulates the key points and themes discussed. Here is the text to analyze:
- Text: %s

---
The summary should be structured in a clear and logical manner, outlining the main topics covered in the lecture and concluding with a brief statement about the overall focus of the lecture.

---
Please ensure the summary is concise and informative, capturing the essence of the lecture while remaining engaging for readers who may not be familiar with the content.

---
Example format for the summary:
**Key Points:**
1. [Main Point 1]
2. [Main Point 2]
3. [Main Point 3]

**Conclusion:** [Brief statement about the overall focus of the lecture]

---
Be wary of including overly detailed explanations or personal interpretations that may detract from the objective summary of the lecture content.
Language of answer: %s.

Use Markdown for formatting. Bold headings (Heading), use bulleted lists (-) for listing, and horizontal separators (---) for structure.`

const keyPointsPromptTemplate = `You are a meticulous academic analyst. Your goal is to create a comprehensive study guide by extracting ALL significant concepts from the text.

INSTRUCTIONS:
1. Maximize coverage: do not limit yourself to just the main ideas. Identify and extract every distinct concept, definition, rule, formula, or argument mentioned in the text.
2. Granularity: if a topic is complex, break it down into multiple specific key points rather than grouping everything into one generic point.
3. Detail: the description for each point must be detailed enough to understand the concept without re-reading the source text.
4. Quantity: aim to extract as many relevant points as possible to cover the text fully.

For each item, you must provide:
- "title": a specific and clear name for the concept.
- "description": a comprehensive explanation.
- "importance": rate as "High" (core concept), "Medium" (important detail), or "Low" (minor detail).

OUTPUT SCHEMA (JSON):
Return a JSON object {"points": [{"title": "...", "description": "...", "importance": "..."}]}. Do NOT return Markdown code blocks.

Language: %s

TEXT:
%s`

const examPromptTemplate = `You are a strict university professor.
Create a %s exam of %d multiple-choice questions based ONLY on the provided text.

RULES FOR QUESTIONS:
1. Focus on understanding concepts, NOT just memorizing dates or names.
2. Questions should require analyzing the text.
3. Difficulty level: %s.
   - Easy: basic definitions and facts directly from the text.
   - Medium: understanding relationships between concepts.
   - Hard: applying concepts to new situations or complex analysis.

RULES FOR OPTIONS:
1. Provide 4 options for each question.
2. Distractors (wrong answers) MUST be plausible. They should represent common misconceptions derived from the text.
3. The "explanation" field must detail WHY the correct answer is right AND why the others are wrong.

OUTPUT SCHEMA (JSON):
Return a JSON object {"questions": [{"question": "...", "options": ["...", "...", "...", "..."], "correct_answer": "...", "explanation": "..."}]}. Do NOT return Markdown code blocks.

CONTEXT:
%s

Language: %s`

const userQuestionsPromptTemplate = `You are a helpful academic AI tutor. Your task is to answer specific questions based on the provided lecture context.

INSTRUCTIONS:
1. Answer EACH question separately.
2. Use the provided context to form accurate answers.
3. If the answer is not in the context, state that clearly.
4. Format the "answer" field using Markdown (bold, lists) for readability.

INPUT DATA:
- Questions:
%s

- Context:
%s

OUTPUT SCHEMA (JSON):
Return a JSON object {"results": [{"question": "...", "answer": "..."}]}. Do NOT return Markdown code blocks.

Language: %s`

// Fixed user-facing fallbacks, kept in Ukrainian like the chat module's.
const (
	msgNoText           = "Текст відсутній."
	msgNoContext        = "Немає контексту."
	msgGenerationFailed = "Виникла помилка при генерації."
)

func buildSummaryPrompt(language, context string) string {
	return fmt.Sprintf(summaryPromptTemplate, context, language)
}

func buildKeyPointsPrompt(language, context string) string {
	return fmt.Sprintf(keyPointsPromptTemplate, language, context)
}

func buildExamPrompt(language, context, difficulty string, count int) string {
	return fmt.Sprintf(examPromptTemplate, difficulty, count, difficulty, context, language)
}

func buildUserQuestionsPrompt(language, context string, questions []string) string {
	var list strings.Builder
	for _, q := range questions {
		list.WriteString("- " + q + "\n")
	}
	return fmt.Sprintf(userQuestionsPromptTemplate, list.String(), context, language)
}

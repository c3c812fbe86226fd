package chat

import (
	"context"
	"strings"

	"github.com/studyspace/core/internal/models"
	"go.uber.org/zap"
)

type historyTurn struct {
	Question string
	Answer   string
}

// Reformulate rewrites a follow-up question into a standalone one using
// the last turns of project history. With no history, or when the model
// fails, the original question is returned untouched.
func (s *Service) Reformulate(ctx context.Context, projectID, question string) string {
	window := s.cfg.HistoryWindow
	if window <= 0 {
		window = 3
	}

	var rows []models.ChatHistoryModel
	err := s.db.WithContext(ctx).
		Where("project_id = ?", projectID).
		Order("created_at DESC").
		Limit(window).
		Find(&rows).Error
	if err != nil {
		s.log.Warn("chat history load failed", zap.String("project_id", projectID), zap.Error(err))
		return question
	}
	if len(rows) == 0 {
		return question
	}

	// Rows arrive newest-first; the prompt wants chronological order.
	turns := make([]historyTurn, 0, len(rows))
	for i := len(rows) - 1; i >= 0; i-- {
		turns = append(turns, historyTurn{Question: rows[i].Question, Answer: rows[i].Answer})
	}

	systemPrompt, prompt := buildReformulatePrompt(s.language(), turns, question)
	reformulated, err := s.generator.GenerateText(ctx, systemPrompt, prompt)
	if err != nil {
		s.log.Warn("question reformulation failed", zap.Error(err))
		return question
	}

	reformulated = strings.TrimSpace(reformulated)
	if reformulated == "" {
		return question
	}
	return reformulated
}

package chat

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	appcfg "github.com/studyspace/core/internal/config"
	"github.com/studyspace/core/internal/models"
	"github.com/studyspace/core/internal/modules/ai"
	"github.com/studyspace/core/internal/modules/rag"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// Retriever is the retrieval dependency of the chat service.
type Retriever interface {
	Retrieve(ctx context.Context, projectID, query string, docIDs []string) ([]rag.RetrievedChunk, error)
}

// Service answers project questions over retrieved document context.
type Service struct {
	db        *gorm.DB
	retriever Retriever
	generator ai.Generator
	cfg       appcfg.RAGConfig
	lang      string
	log       *zap.Logger
}

func NewService(db *gorm.DB, retriever Retriever, generator ai.Generator, cfg appcfg.RAGConfig, lang string, log *zap.Logger) *Service {
	return &Service{
		db:        db,
		retriever: retriever,
		generator: generator,
		cfg:       cfg,
		lang:      lang,
		log:       log,
	}
}

func (s *Service) language() string {
	if strings.TrimSpace(s.lang) == "" {
		return "Ukrainian"
	}
	return s.lang
}

// StreamAnswer answers a question as an SSE stream. The sources event is
// always emitted before any answer fragment; the conversation turn is
// persisted only after the full answer streamed cleanly.
func (s *Service) StreamAnswer(c *gin.Context, projectID, userID, question string) {
	c.Header("Content-Type", "text/event-stream")
	c.Header("Cache-Control", "no-cache")
	c.Header("Connection", "keep-alive")
	c.Header("X-Accel-Buffering", "no")
	c.Status(http.StatusOK)

	sendEvent := func(eventType, data string) {
		fmt.Fprintf(c.Writer, "data: %s\n\n", fmt.Sprintf(`{"type":%q,"data":%s}`, eventType, data))
		c.Writer.Flush()
	}
	sendError := func(message string) {
		msgJSON, _ := json.Marshal(message)
		fmt.Fprintf(c.Writer, "data: %s\n\n", fmt.Sprintf(`{"error":%s}`, msgJSON))
		c.Writer.Flush()
	}

	ctx := c.Request.Context()

	reformulated := s.Reformulate(ctx, projectID, question)

	// Chat answers over the whole project corpus, no document filter.
	hits, err := s.retriever.Retrieve(ctx, projectID, reformulated, nil)
	if err != nil {
		if errors.Is(err, rag.ErrEmbeddingUnavailable) {
			sendError(msgQueryFailed)
			return
		}
		s.log.Error("retrieval failed", zap.String("project_id", projectID), zap.Error(err))
		sendError(msgQueryFailed)
		return
	}

	sourcesJSON, _ := json.Marshal(sourceFilenames(hits))
	sendEvent("sources", string(sourcesJSON))

	if len(hits) == 0 {
		msgJSON, _ := json.Marshal(msgNoInformation)
		sendEvent("answer", string(msgJSON))
		return
	}

	contextText := buildContextText(hits)
	systemPrompt, prompt := buildAnswerPrompt(s.language(), contextText, reformulated)

	answer, err := s.generator.StreamText(ctx, systemPrompt, prompt, func(fragment string) {
		fragmentJSON, _ := json.Marshal(fragment)
		sendEvent("answer", string(fragmentJSON))
	})
	if err != nil {
		s.log.Error("answer generation failed", zap.String("project_id", projectID), zap.Error(err))
		sendError(fmt.Sprintf(msgGenerationFailedFn, err.Error()))
		return
	}

	// The history row carries the user's original wording.
	turn := models.ChatHistoryModel{
		ProjectID: projectID,
		UserID:    userID,
		Question:  question,
		Answer:    answer,
	}
	if err := s.db.Create(&turn).Error; err != nil {
		s.log.Warn("chat history persist failed", zap.String("project_id", projectID), zap.Error(err))
	}
}

// History returns the project's conversation turns, oldest first.
func (s *Service) History(ctx context.Context, projectID string, limit, offset int) ([]models.ChatHistoryModel, error) {
	if limit <= 0 || limit > 200 {
		limit = 100
	}
	if offset < 0 {
		offset = 0
	}

	var rows []models.ChatHistoryModel
	err := s.db.WithContext(ctx).
		Where("project_id = ?", projectID).
		Order("created_at ASC").
		Offset(offset).
		Limit(limit).
		Find(&rows).Error
	return rows, err
}

// sourceFilenames deduplicates filenames preserving retrieval rank order.
func sourceFilenames(hits []rag.RetrievedChunk) []string {
	seen := make(map[string]bool, len(hits))
	out := make([]string, 0, len(hits))
	for _, h := range hits {
		if h.Filename == "" || seen[h.Filename] {
			continue
		}
		seen[h.Filename] = true
		out = append(out, h.Filename)
	}
	return out
}

// buildContextText concatenates chunk texts by retrieval rank.
func buildContextText(hits []rag.RetrievedChunk) string {
	parts := make([]string, 0, len(hits))
	for _, h := range hits {
		parts = append(parts, h.ChunkText)
	}
	return strings.Join(parts, "\n\n")
}

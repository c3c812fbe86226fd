package study

import (
	"context"
	"strings"

	"go.uber.org/zap"
	"gorm.io/datatypes"
	"gorm.io/gorm"

	appcfg "github.com/studyspace/core/internal/config"
	"github.com/studyspace/core/internal/models"
	"github.com/studyspace/core/internal/modules/ai"
)

const defaultContextCharCap = 200_000

type Service struct {
	db        *gorm.DB
	generator ai.Generator
	cfg       appcfg.RAGConfig
	lang      string
	log       *zap.Logger
}

func NewService(db *gorm.DB, generator ai.Generator, cfg appcfg.RAGConfig, targetLanguage string, log *zap.Logger) *Service {
	return &Service{db: db, generator: generator, cfg: cfg, lang: targetLanguage, log: log.Named("study")}
}

func (s *Service) language() string {
	if s.lang != "" {
		return s.lang
	}
	return "Ukrainian"
}

// contextText concatenates every chunk of the selected documents in
// (document id, chunk index) order, capped at the configured character
// budget so the prompt stays within model limits.
func (s *Service) contextText(ctx context.Context, projectID string, documentIDs []string) (string, error) {
	q := s.db.WithContext(ctx).
		Model(&models.DocumentChunkModel{}).
		Select("document_chunks.chunk_text").
		Joins("JOIN documents ON documents.id = document_chunks.document_id AND documents.deleted_at IS NULL").
		Where("documents.project_id = ?", projectID).
		Order("document_chunks.document_id ASC, document_chunks.chunk_index ASC")
	if len(documentIDs) > 0 {
		q = q.Where("documents.id IN ?", documentIDs)
	}

	var chunks []string
	if err := q.Pluck("chunk_text", &chunks).Error; err != nil {
		return "", err
	}

	full := strings.Join(chunks, "\n\n")
	limit := s.cfg.ContextCharCap
	if limit <= 0 {
		limit = defaultContextCharCap
	}
	if runes := []rune(full); len(runes) > limit {
		return string(runes[:limit]), nil
	}
	return full, nil
}

func (s *Service) loadCached(ctx context.Context, projectID, hash string, kind ArtifactKind) (string, bool, error) {
	var (
		summary   string
		keyPoints string
		exam      datatypes.JSON
		err       error
	)
	if hash == "" {
		var row models.ProjectAnalysisModel
		err = s.db.WithContext(ctx).Where("project_id = ?", projectID).First(&row).Error
		summary, keyPoints, exam = row.Summary, row.KeyPoints, row.ExamQuestions
	} else {
		var row models.ProjectAnalysisItemModel
		err = s.db.WithContext(ctx).
			Where("project_id = ? AND documents_hash = ?", projectID, hash).
			First(&row).Error
		summary, keyPoints, exam = row.Summary, row.KeyPoints, row.ExamQuestions
	}
	if err == gorm.ErrRecordNotFound {
		return "", false, nil
	}
	if err != nil {
		return "", false, err
	}

	var raw string
	switch kind {
	case KindSummary:
		raw = summary
	case KindKeyPoints:
		raw = keyPoints
	case KindExam:
		raw = string(exam)
	}
	if strings.TrimSpace(raw) == "" || raw == "null" {
		return "", false, nil
	}
	return raw, true, nil
}

// saveCache upserts a single artifact column, leaving the row's other
// columns untouched. Concurrent writers race last-writer-wins.
func (s *Service) saveCache(ctx context.Context, projectID, hash string, kind ArtifactKind, a Artifact) error {
	raw, err := a.serialize()
	if err != nil {
		return err
	}

	var value interface{} = raw
	column := "summary"
	switch kind {
	case KindKeyPoints:
		column = "key_points"
	case KindExam:
		column = "exam_questions"
		value = datatypes.JSON(raw)
	}

	if hash == "" {
		var row models.ProjectAnalysisModel
		if err := s.db.WithContext(ctx).
			Where(models.ProjectAnalysisModel{ProjectID: projectID}).
			FirstOrCreate(&row).Error; err != nil {
			return err
		}
		return s.db.WithContext(ctx).Model(&row).Update(column, value).Error
	}

	var row models.ProjectAnalysisItemModel
	if err := s.db.WithContext(ctx).
		Where(models.ProjectAnalysisItemModel{ProjectID: projectID, DocumentsHash: hash}).
		FirstOrCreate(&row).Error; err != nil {
		return err
	}
	return s.db.WithContext(ctx).Model(&row).Update(column, value).Error
}

// process is the shared artifact path: cache lookup, context assembly,
// generation, validation, cache write. A corrupt cache entry is treated as
// a miss and overwritten by the regenerated artifact.
func (s *Service) process(ctx context.Context, projectID string, documentIDs []string, kind ArtifactKind, buildPrompt func(contextText string) string) (Artifact, error) {
	hash := Fingerprint(documentIDs)

	raw, found, err := s.loadCached(ctx, projectID, hash, kind)
	if err != nil {
		return emptyArtifact(kind), err
	}
	if found {
		a, err := deserializeArtifact(kind, raw)
		if err != nil {
			s.log.Warn("corrupt cached artifact, regenerating",
				zap.String("project_id", projectID),
				zap.String("kind", string(kind)),
				zap.Error(err))
		} else {
			return a, nil
		}
	}

	contextText, err := s.contextText(ctx, projectID, documentIDs)
	if err != nil {
		return emptyArtifact(kind), err
	}
	if strings.TrimSpace(contextText) == "" {
		a := emptyArtifact(kind)
		if kind == KindSummary {
			a.Text = msgNoText
		}
		return a, nil
	}

	out, err := s.generator.GenerateText(ctx, "", buildPrompt(contextText))
	if err != nil {
		s.log.Warn("artifact generation failed",
			zap.String("project_id", projectID),
			zap.String("kind", string(kind)),
			zap.Error(err))
		a := emptyArtifact(kind)
		if kind == KindSummary {
			a.Text = msgGenerationFailed
		}
		return a, nil
	}

	a := s.parseGenerated(kind, out)
	if a.Valid() {
		if err := s.saveCache(ctx, projectID, hash, kind, a); err != nil {
			s.log.Warn("artifact cache write failed",
				zap.String("project_id", projectID),
				zap.String("kind", string(kind)),
				zap.Error(err))
		}
	}
	return a, nil
}

func (s *Service) parseGenerated(kind ArtifactKind, out string) Artifact {
	a := Artifact{Kind: kind}
	switch kind {
	case KindKeyPoints:
		var payload keyPointsPayload
		if err := ai.UnmarshalModelJSON(out, &payload); err != nil {
			var bare []KeyPoint
			if err2 := ai.UnmarshalModelJSON(out, &bare); err2 != nil {
				s.log.Warn("unparseable key points", zap.Error(err))
				return emptyArtifact(kind)
			}
			payload.Points = bare
		}
		a.KeyPoints = payload.Points
	case KindExam:
		var payload examPayload
		if err := ai.UnmarshalModelJSON(out, &payload); err != nil || payload.Questions == nil {
			var bare []ExamQuestion
			if err2 := ai.UnmarshalModelJSON(out, &bare); err2 != nil {
				s.log.Warn("unparseable exam questions", zap.Error(err))
				return emptyArtifact(kind)
			}
			payload.Questions = bare
		}
		a.Questions = payload.Questions
	default:
		a.Text = out
	}
	return a
}

// Summary returns the cached or freshly generated lecture summary.
func (s *Service) Summary(ctx context.Context, projectID string, documentIDs []string) (string, error) {
	a, err := s.process(ctx, projectID, documentIDs, KindSummary, func(contextText string) string {
		return buildSummaryPrompt(s.language(), contextText)
	})
	return a.Text, err
}

// KeyPoints returns the cached or freshly generated study guide.
func (s *Service) KeyPoints(ctx context.Context, projectID string, documentIDs []string) ([]KeyPoint, error) {
	a, err := s.process(ctx, projectID, documentIDs, KindKeyPoints, func(contextText string) string {
		return buildKeyPointsPrompt(s.language(), contextText)
	})
	return a.KeyPoints, err
}

// Exam returns the cached or freshly generated exam for the selection.
// Difficulty and count shape a fresh generation only; a cached exam is
// returned as-is regardless of the requested parameters.
func (s *Service) Exam(ctx context.Context, projectID string, documentIDs []string, difficulty string, count int) ([]ExamQuestion, error) {
	a, err := s.process(ctx, projectID, documentIDs, KindExam, func(contextText string) string {
		return buildExamPrompt(s.language(), contextText, difficulty, count)
	})
	return a.Questions, err
}

// AnswerQuestions answers ad-hoc user questions against the selection's
// context. Never cached.
func (s *Service) AnswerQuestions(ctx context.Context, projectID string, questions []string, documentIDs []string) ([]QuestionAnswer, error) {
	contextText, err := s.contextText(ctx, projectID, documentIDs)
	if err != nil {
		return nil, err
	}
	if strings.TrimSpace(contextText) == "" {
		out := make([]QuestionAnswer, len(questions))
		for i, q := range questions {
			out[i] = QuestionAnswer{Question: q, Answer: msgNoContext}
		}
		return out, nil
	}

	out, err := s.generator.GenerateText(ctx, "", buildUserQuestionsPrompt(s.language(), contextText, questions))
	if err != nil {
		s.log.Warn("question answering failed",
			zap.String("project_id", projectID), zap.Error(err))
		return []QuestionAnswer{}, nil
	}

	var payload userQuestionsPayload
	if err := ai.UnmarshalModelJSON(out, &payload); err != nil {
		s.log.Warn("unparseable question answers", zap.Error(err))
		return []QuestionAnswer{}, nil
	}
	if payload.Results == nil {
		payload.Results = []QuestionAnswer{}
	}
	return payload.Results, nil
}

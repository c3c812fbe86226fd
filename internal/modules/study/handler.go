package study

import (
	"bytes"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/extension"

	"github.com/studyspace/core/internal/middleware"
	"github.com/studyspace/core/internal/modules/project"
	"github.com/studyspace/core/internal/pkg/response"
)

const (
	defaultQuestionCount = 10
	maxQuestionCount     = 20
	defaultDifficulty    = "Medium"
)

var summaryRenderer = goldmark.New(
	goldmark.WithExtensions(extension.GFM),
)

type selectionDTO struct {
	DocumentIDs []string `json:"document_ids"`
}

type examDTO struct {
	DocumentIDs   []string `json:"document_ids"`
	Difficulty    string   `json:"difficulty"`
	QuestionCount int      `json:"question_count"`
}

type questionsDTO struct {
	Questions   []string `json:"questions" binding:"required,min=1"`
	DocumentIDs []string `json:"document_ids"`
}

type Handler struct {
	svc      *Service
	projects *project.Service
}

func NewHandler(svc *Service, projects *project.Service) *Handler {
	return &Handler{svc: svc, projects: projects}
}

func (h *Handler) RegisterRoutes(rg *gin.RouterGroup, authMW gin.HandlerFunc) {
	g := rg.Group("/projects/:id/study", authMW)
	g.POST("/summary", h.summary)
	g.POST("/key-points", h.keyPoints)
	g.POST("/exam", h.exam)
	g.POST("/questions", h.questions)
}

// ownedProject resolves the route's project for the caller, writing the
// response itself when the project is missing or foreign.
func (h *Handler) ownedProject(c *gin.Context) (string, bool) {
	p, err := h.projects.GetOwned(middleware.CurrentUserID(c), c.Param("id"))
	if err != nil {
		response.InternalError(c, err)
		return "", false
	}
	if p == nil {
		response.NotFound(c)
		return "", false
	}
	return p.ID, true
}

func (h *Handler) summary(c *gin.Context) {
	projectID, ok := h.ownedProject(c)
	if !ok {
		return
	}
	var dto selectionDTO
	if err := c.ShouldBindJSON(&dto); err != nil {
		response.BadRequest(c, err.Error())
		return
	}

	content, err := h.svc.Summary(c.Request.Context(), projectID, dto.DocumentIDs)
	if err != nil {
		response.InternalError(c, err)
		return
	}

	if strings.EqualFold(c.Query("format"), "html") {
		var buf bytes.Buffer
		if err := summaryRenderer.Convert([]byte(content), &buf); err != nil {
			response.InternalError(c, err)
			return
		}
		response.OK(c, gin.H{"content": content, "html": buf.String()})
		return
	}
	response.OK(c, gin.H{"content": content})
}

func (h *Handler) keyPoints(c *gin.Context) {
	projectID, ok := h.ownedProject(c)
	if !ok {
		return
	}
	var dto selectionDTO
	if err := c.ShouldBindJSON(&dto); err != nil {
		response.BadRequest(c, err.Error())
		return
	}

	points, err := h.svc.KeyPoints(c.Request.Context(), projectID, dto.DocumentIDs)
	if err != nil {
		response.InternalError(c, err)
		return
	}
	response.OK(c, gin.H{"points": points})
}

func normalizeDifficulty(raw string) string {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "easy":
		return "Easy"
	case "hard":
		return "Hard"
	case "medium", "":
		return defaultDifficulty
	}
	return defaultDifficulty
}

func clampQuestionCount(n int) int {
	if n <= 0 {
		return defaultQuestionCount
	}
	if n > maxQuestionCount {
		return maxQuestionCount
	}
	return n
}

func (h *Handler) exam(c *gin.Context) {
	projectID, ok := h.ownedProject(c)
	if !ok {
		return
	}
	var dto examDTO
	if err := c.ShouldBindJSON(&dto); err != nil {
		response.BadRequest(c, err.Error())
		return
	}

	questions, err := h.svc.Exam(c.Request.Context(), projectID, dto.DocumentIDs,
		normalizeDifficulty(dto.Difficulty), clampQuestionCount(dto.QuestionCount))
	if err != nil {
		response.InternalError(c, err)
		return
	}
	response.OK(c, gin.H{"questions": questions})
}

func (h *Handler) questions(c *gin.Context) {
	projectID, ok := h.ownedProject(c)
	if !ok {
		return
	}
	var dto questionsDTO
	if err := c.ShouldBindJSON(&dto); err != nil {
		response.BadRequest(c, err.Error())
		return
	}

	results, err := h.svc.AnswerQuestions(c.Request.Context(), projectID, dto.Questions, dto.DocumentIDs)
	if err != nil {
		response.InternalError(c, err)
		return
	}
	response.OK(c, gin.H{"results": results})
}

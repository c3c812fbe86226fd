package chat

import (
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/studyspace/core/internal/middleware"
	"github.com/studyspace/core/internal/models"
	"github.com/studyspace/core/internal/modules/project"
	"github.com/studyspace/core/internal/pkg/response"
)

type askDTO struct {
	Question string `json:"question" binding:"required,min=1"`
}

type historyEntry struct {
	ID       string `json:"id"`
	Question string `json:"question"`
	Answer   string `json:"answer"`
	Created  string `json:"created"`
}

func toHistoryEntry(m *models.ChatHistoryModel) historyEntry {
	return historyEntry{
		ID:       m.ID,
		Question: m.Question,
		Answer:   m.Answer,
		Created:  m.CreatedAt.Format(time.RFC3339),
	}
}

type Handler struct {
	svc      *Service
	projects *project.Service
}

func NewHandler(svc *Service, projects *project.Service) *Handler {
	return &Handler{svc: svc, projects: projects}
}

func (h *Handler) RegisterRoutes(rg *gin.RouterGroup, authMW gin.HandlerFunc) {
	g := rg.Group("/projects/:id/chat", authMW)
	g.POST("", h.ask)
	g.GET("/history", h.history)
}

func (h *Handler) ask(c *gin.Context) {
	userID := middleware.CurrentUserID(c)
	p, err := h.projects.GetOwned(userID, c.Param("id"))
	if err != nil {
		response.InternalError(c, err)
		return
	}
	if p == nil {
		response.NotFound(c)
		return
	}

	var dto askDTO
	if err := c.ShouldBindJSON(&dto); err != nil {
		response.BadRequest(c, err.Error())
		return
	}

	h.svc.StreamAnswer(c, p.ID, userID, dto.Question)
}

func (h *Handler) history(c *gin.Context) {
	p, err := h.projects.GetOwned(middleware.CurrentUserID(c), c.Param("id"))
	if err != nil {
		response.InternalError(c, err)
		return
	}
	if p == nil {
		response.NotFound(c)
		return
	}

	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "100"))
	offset, _ := strconv.Atoi(c.DefaultQuery("offset", "0"))
	items, err := h.svc.History(c.Request.Context(), p.ID, limit, offset)
	if err != nil {
		response.InternalError(c, err)
		return
	}
	out := make([]historyEntry, len(items))
	for i := range items {
		out[i] = toHistoryEntry(&items[i])
	}
	response.OK(c, out)
}

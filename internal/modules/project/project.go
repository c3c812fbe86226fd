package project

import (
	"errors"

	"github.com/gin-gonic/gin"
	"gorm.io/gorm"

	"github.com/studyspace/core/internal/middleware"
	"github.com/studyspace/core/internal/models"
	"github.com/studyspace/core/internal/pkg/pagination"
	"github.com/studyspace/core/internal/pkg/response"
)

type Service struct {
	db *gorm.DB
}

func NewService(db *gorm.DB) *Service { return &Service{db: db} }

type CreateProjectDTO struct {
	Name        string `json:"name" binding:"required,min=1,max=200"`
	Description string `json:"description" binding:"max=2000"`
}

type UpdateProjectDTO struct {
	Name        *string `json:"name" binding:"omitempty,min=1,max=200"`
	Description *string `json:"description" binding:"omitempty,max=2000"`
}

type projectResponse struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	Description string `json:"description"`
	Created     string `json:"created"`
	Modified    string `json:"modified"`
}

func toResponse(p *models.ProjectModel) projectResponse {
	return projectResponse{
		ID:          p.ID,
		Name:        p.Name,
		Description: p.Description,
		Created:     p.CreatedAt.Format("2006-01-02T15:04:05Z07:00"),
		Modified:    p.UpdatedAt.Format("2006-01-02T15:04:05Z07:00"),
	}
}

func (s *Service) List(userID string, q pagination.Query) ([]models.ProjectModel, response.Pagination, error) {
	var items []models.ProjectModel
	db := s.db.Model(&models.ProjectModel{}).
		Where("user_id = ?", userID).
		Order("created_at DESC")
	pag, err := pagination.Paginate(db, q, &items)
	return items, pag, err
}

// GetOwned returns the project only when it exists and belongs to userID.
// A missing or foreign project comes back as (nil, nil), so callers can
// answer 404 without leaking whose project the id is.
func (s *Service) GetOwned(userID, projectID string) (*models.ProjectModel, error) {
	var p models.ProjectModel
	err := s.db.Where("id = ? AND user_id = ?", projectID, userID).First(&p).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &p, nil
}

func (s *Service) Create(userID string, dto *CreateProjectDTO) (*models.ProjectModel, error) {
	p := &models.ProjectModel{
		UserID:      userID,
		Name:        dto.Name,
		Description: dto.Description,
	}
	return p, s.db.Create(p).Error
}

func (s *Service) Update(userID, projectID string, dto *UpdateProjectDTO) (*models.ProjectModel, error) {
	p, err := s.GetOwned(userID, projectID)
	if err != nil || p == nil {
		return p, err
	}
	updates := map[string]interface{}{}
	if dto.Name != nil {
		updates["name"] = *dto.Name
	}
	if dto.Description != nil {
		updates["description"] = *dto.Description
	}
	if len(updates) == 0 {
		return p, nil
	}
	return p, s.db.Model(p).Updates(updates).Error
}

// Delete removes the project along with its documents, chunks, chat history
// and cached analyses. Everything rides in one transaction so the retriever
// never sees a half-removed project.
func (s *Service) Delete(userID, projectID string) error {
	p, err := s.GetOwned(userID, projectID)
	if err != nil {
		return err
	}
	if p == nil {
		return gorm.ErrRecordNotFound
	}
	return s.db.Transaction(func(tx *gorm.DB) error {
		var docIDs []string
		if err := tx.Model(&models.DocumentModel{}).
			Where("project_id = ?", projectID).
			Pluck("id", &docIDs).Error; err != nil {
			return err
		}
		if len(docIDs) > 0 {
			if err := tx.Where("document_id IN ?", docIDs).
				Delete(&models.DocumentChunkModel{}).Error; err != nil {
				return err
			}
			if err := tx.Where("project_id = ?", projectID).
				Delete(&models.DocumentModel{}).Error; err != nil {
				return err
			}
		}
		if err := tx.Where("project_id = ?", projectID).
			Delete(&models.ChatHistoryModel{}).Error; err != nil {
			return err
		}
		if err := tx.Where("project_id = ?", projectID).
			Delete(&models.ProjectAnalysisModel{}).Error; err != nil {
			return err
		}
		if err := tx.Where("project_id = ?", projectID).
			Delete(&models.ProjectAnalysisItemModel{}).Error; err != nil {
			return err
		}
		return tx.Delete(&models.ProjectModel{}, "id = ?", projectID).Error
	})
}

type Handler struct{ svc *Service }

func NewHandler(svc *Service) *Handler { return &Handler{svc: svc} }

func (h *Handler) RegisterRoutes(rg *gin.RouterGroup, authMW gin.HandlerFunc) {
	g := rg.Group("/projects", authMW)
	g.GET("", h.list)
	g.POST("", h.create)
	g.GET("/:id", h.get)
	g.PUT("/:id", h.update)
	g.DELETE("/:id", h.delete)
}

func (h *Handler) list(c *gin.Context) {
	q := pagination.FromContext(c)
	items, pag, err := h.svc.List(middleware.CurrentUserID(c), q)
	if err != nil {
		response.InternalError(c, err)
		return
	}
	out := make([]projectResponse, len(items))
	for i, p := range items {
		out[i] = toResponse(&p)
	}
	response.Paged(c, out, pag)
}

func (h *Handler) get(c *gin.Context) {
	p, err := h.svc.GetOwned(middleware.CurrentUserID(c), c.Param("id"))
	if err != nil {
		response.InternalError(c, err)
		return
	}
	if p == nil {
		response.NotFound(c)
		return
	}
	response.OK(c, toResponse(p))
}

func (h *Handler) create(c *gin.Context) {
	var dto CreateProjectDTO
	if err := c.ShouldBindJSON(&dto); err != nil {
		response.BadRequest(c, err.Error())
		return
	}
	p, err := h.svc.Create(middleware.CurrentUserID(c), &dto)
	if err != nil {
		response.InternalError(c, err)
		return
	}
	response.Created(c, toResponse(p))
}

func (h *Handler) update(c *gin.Context) {
	var dto UpdateProjectDTO
	if err := c.ShouldBindJSON(&dto); err != nil {
		response.BadRequest(c, err.Error())
		return
	}
	p, err := h.svc.Update(middleware.CurrentUserID(c), c.Param("id"), &dto)
	if err != nil {
		response.InternalError(c, err)
		return
	}
	if p == nil {
		response.NotFound(c)
		return
	}
	response.OK(c, toResponse(p))
}

func (h *Handler) delete(c *gin.Context) {
	err := h.svc.Delete(middleware.CurrentUserID(c), c.Param("id"))
	if errors.Is(err, gorm.ErrRecordNotFound) {
		response.NotFound(c)
		return
	}
	if err != nil {
		response.InternalError(c, err)
		return
	}
	response.NoContent(c)
}

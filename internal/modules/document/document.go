package document

import (
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/studyspace/core/internal/middleware"
	"github.com/studyspace/core/internal/models"
	"github.com/studyspace/core/internal/modules/ingest"
	"github.com/studyspace/core/internal/modules/project"
	"github.com/studyspace/core/internal/pkg/response"
	"github.com/studyspace/core/internal/pkg/storage"
)

const maxUploadSize = 50 << 20 // 50 MiB

var allowedExtensions = map[string]bool{
	".pdf":  true,
	".docx": true,
	".txt":  true,
	".md":   true,
}

type Service struct {
	db       *gorm.DB
	store    storage.Backend
	pipeline *ingest.Pipeline
	projects *project.Service
	log      *zap.Logger
}

func NewService(db *gorm.DB, store storage.Backend, pipeline *ingest.Pipeline, projects *project.Service, log *zap.Logger) *Service {
	return &Service{db: db, store: store, pipeline: pipeline, projects: projects, log: log.Named("document")}
}

type documentResponse struct {
	ID        string `json:"id"`
	ProjectID string `json:"project_id"`
	Filename  string `json:"filename"`
	Status    string `json:"status"`
	Created   string `json:"created"`
}

func toResponse(d *models.DocumentModel) documentResponse {
	return documentResponse{
		ID:        d.ID,
		ProjectID: d.ProjectID,
		Filename:  d.Filename,
		Status:    string(d.Status),
		Created:   d.CreatedAt.Format(time.RFC3339),
	}
}

// buildStorageKey keeps uploads grouped by project while never trusting the
// client-supplied name for the on-disk path.
func buildStorageKey(projectID, original string) string {
	ext := strings.ToLower(filepath.Ext(strings.TrimSpace(original)))
	if ext == "" || len(ext) > 10 {
		ext = ".dat"
	}
	name := strings.ReplaceAll(uuid.NewString(), "-", "")[:18] + ext
	return filepath.ToSlash(filepath.Join(projectID, name))
}

func (s *Service) ListByProject(projectID string) ([]models.DocumentModel, error) {
	var docs []models.DocumentModel
	err := s.db.Where("project_id = ?", projectID).
		Order("created_at DESC").
		Find(&docs).Error
	return docs, err
}

// GetOwned resolves a document through its project's owner. (nil, nil) means
// missing or not the caller's.
func (s *Service) GetOwned(userID, documentID string) (*models.DocumentModel, error) {
	var doc models.DocumentModel
	err := s.db.
		Joins("JOIN projects ON projects.id = documents.project_id AND projects.deleted_at IS NULL").
		Where("documents.id = ? AND projects.user_id = ?", documentID, userID).
		First(&doc).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &doc, nil
}

// Delete removes the document row, its chunks, and the stored file. Storage
// errors after the DB delete are logged rather than surfaced: the record is
// already gone and a stray blob is harmless.
func (s *Service) Delete(ctx *gin.Context, doc *models.DocumentModel) error {
	err := s.db.Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("document_id = ?", doc.ID).
			Delete(&models.DocumentChunkModel{}).Error; err != nil {
			return err
		}
		return tx.Delete(&models.DocumentModel{}, "id = ?", doc.ID).Error
	})
	if err != nil {
		return err
	}
	if err := s.store.Delete(ctx.Request.Context(), doc.FilePath); err != nil {
		s.log.Warn("delete stored file",
			zap.String("document_id", doc.ID),
			zap.String("path", doc.FilePath),
			zap.Error(err))
	}
	return nil
}

type Handler struct {
	svc      *Service
	projects *project.Service
}

func NewHandler(svc *Service, projects *project.Service) *Handler {
	return &Handler{svc: svc, projects: projects}
}

func (h *Handler) RegisterRoutes(rg *gin.RouterGroup, authMW gin.HandlerFunc) {
	p := rg.Group("/projects/:id/documents", authMW)
	p.POST("", h.upload)
	p.GET("", h.list)

	d := rg.Group("/documents", authMW)
	d.GET("/:id", h.get)
	d.DELETE("/:id", h.delete)
}

func (h *Handler) upload(c *gin.Context) {
	userID := middleware.CurrentUserID(c)
	proj, err := h.projects.GetOwned(userID, c.Param("id"))
	if err != nil {
		response.InternalError(c, err)
		return
	}
	if proj == nil {
		response.NotFound(c)
		return
	}

	fileHeader, err := c.FormFile("file")
	if err != nil {
		response.BadRequest(c, "file is required")
		return
	}
	if fileHeader.Size > maxUploadSize {
		response.BadRequest(c, "file too large")
		return
	}
	original := filepath.Base(strings.TrimSpace(fileHeader.Filename))
	ext := strings.ToLower(filepath.Ext(original))
	if !allowedExtensions[ext] {
		response.BadRequest(c, fmt.Sprintf("unsupported file type %q", ext))
		return
	}

	src, err := fileHeader.Open()
	if err != nil {
		response.InternalError(c, err)
		return
	}
	defer src.Close()

	key := buildStorageKey(proj.ID, original)
	if _, err := h.svc.store.Save(c.Request.Context(), key, src); err != nil {
		response.InternalError(c, err)
		return
	}

	// FilePath holds the backend key, not the resolved path, so Open
	// and Delete work the same against local and S3 backends.
	doc := &models.DocumentModel{
		ProjectID: proj.ID,
		Filename:  original,
		FilePath:  key,
		Status:    models.DocumentPending,
	}
	if err := h.svc.db.Create(doc).Error; err != nil {
		response.InternalError(c, err)
		return
	}

	if _, err := h.svc.pipeline.Enqueue(c.Request.Context(), doc.ID); err != nil {
		// The row stays pending; a requeue sweep or re-upload picks it up.
		h.svc.log.Error("enqueue ingestion",
			zap.String("document_id", doc.ID), zap.Error(err))
	}

	response.Created(c, toResponse(doc))
}

func (h *Handler) list(c *gin.Context) {
	userID := middleware.CurrentUserID(c)
	proj, err := h.projects.GetOwned(userID, c.Param("id"))
	if err != nil {
		response.InternalError(c, err)
		return
	}
	if proj == nil {
		response.NotFound(c)
		return
	}

	docs, err := h.svc.ListByProject(proj.ID)
	if err != nil {
		response.InternalError(c, err)
		return
	}
	out := make([]documentResponse, len(docs))
	for i, d := range docs {
		out[i] = toResponse(&d)
	}
	response.OK(c, out)
}

func (h *Handler) get(c *gin.Context) {
	doc, err := h.svc.GetOwned(middleware.CurrentUserID(c), c.Param("id"))
	if err != nil {
		response.InternalError(c, err)
		return
	}
	if doc == nil {
		response.NotFound(c)
		return
	}
	response.OK(c, toResponse(doc))
}

func (h *Handler) delete(c *gin.Context) {
	doc, err := h.svc.GetOwned(middleware.CurrentUserID(c), c.Param("id"))
	if err != nil {
		response.InternalError(c, err)
		return
	}
	if doc == nil {
		response.NotFound(c)
		return
	}
	if err := h.svc.Delete(c, doc); err != nil {
		response.InternalError(c, err)
		return
	}
	response.NoContent(c)
}

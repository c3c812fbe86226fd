package ingest

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"time"

	appcfg "github.com/studyspace/core/internal/config"
	"github.com/studyspace/core/internal/models"
	"github.com/studyspace/core/internal/modules/ai"
	"github.com/studyspace/core/internal/pkg/storage"
	"github.com/studyspace/core/internal/pkg/taskqueue"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
	"gorm.io/gorm"
)

const (
	TaskTypeIngest = "ingest:document"

	embedBatchSize = 64
	insertBatch    = 200
	workerSlots    = 2
)

// IngestPayload is the task payload for document ingestion.
type IngestPayload struct {
	DocumentID string `json:"document_id"`
}

// StatusNotifier receives document status transitions for fan-out to
// connected clients.
type StatusNotifier interface {
	NotifyDocumentStatus(projectID, documentID string, status models.DocumentStatus)
}

// Pipeline turns uploaded documents into embedded, searchable chunks.
type Pipeline struct {
	db       *gorm.DB
	store    storage.Backend
	embedder ai.Embedder
	taskSvc  *taskqueue.Service
	notifier StatusNotifier
	cfg      appcfg.RAGConfig
	log      *zap.Logger
}

func NewPipeline(db *gorm.DB, store storage.Backend, embedder ai.Embedder, taskSvc *taskqueue.Service, notifier StatusNotifier, cfg appcfg.RAGConfig, log *zap.Logger) *Pipeline {
	return &Pipeline{
		db:       db,
		store:    store,
		embedder: embedder,
		taskSvc:  taskSvc,
		notifier: notifier,
		cfg:      cfg,
		log:      log,
	}
}

// Enqueue schedules ingestion for a document. A document already queued
// and not yet finished is not queued twice.
func (p *Pipeline) Enqueue(ctx context.Context, documentID string) (*taskqueue.Task, error) {
	return p.taskSvc.Enqueue(ctx, TaskTypeIngest, IngestPayload{DocumentID: documentID}, documentID)
}

// Run consumes ingestion tasks until the context is cancelled. Up to
// workerSlots documents are processed concurrently.
func (p *Pipeline) Run(ctx context.Context) {
	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(workerSlots)

	for {
		select {
		case <-ctx.Done():
			g.Wait()
			return
		default:
		}

		task, err := p.taskSvc.Dequeue(ctx, 5*time.Second)
		if err != nil {
			if ctx.Err() != nil {
				g.Wait()
				return
			}
			p.log.Warn("task dequeue failed", zap.Error(err))
			time.Sleep(time.Second)
			continue
		}
		if task == nil || task.Type != TaskTypeIngest {
			continue
		}

		t := task
		g.Go(func() error {
			p.runTask(ctx, t)
			return nil
		})
	}
}

func (p *Pipeline) runTask(ctx context.Context, task *taskqueue.Task) {
	var payload IngestPayload
	if err := json.Unmarshal(task.Payload, &payload); err != nil {
		p.taskSvc.UpdateStatus(ctx, task.ID, taskqueue.TaskFailed, "invalid payload")
		return
	}

	p.taskSvc.UpdateStatus(ctx, task.ID, taskqueue.TaskRunning, "")
	if err := p.Process(ctx, payload.DocumentID); err != nil {
		p.log.Error("document ingestion failed",
			zap.String("document_id", payload.DocumentID),
			zap.Error(err),
		)
		p.taskSvc.UpdateStatus(ctx, task.ID, taskqueue.TaskFailed, err.Error())
		return
	}
	p.taskSvc.UpdateStatus(ctx, task.ID, taskqueue.TaskCompleted, "")
}

// Process runs the full ingestion for one document: extract, chunk,
// embed, store. The document moves pending -> processing -> completed,
// or failed when any stage errors. A document deleted between enqueue
// and pickup is skipped.
func (p *Pipeline) Process(ctx context.Context, documentID string) error {
	var doc models.DocumentModel
	if err := p.db.First(&doc, "id = ?", documentID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil
		}
		return err
	}

	p.setStatus(&doc, models.DocumentProcessing)

	if err := p.ingest(ctx, &doc); err != nil {
		p.setStatus(&doc, models.DocumentFailed)
		return err
	}

	p.setStatus(&doc, models.DocumentCompleted)
	return nil
}

// ingest recovers from panics in the extraction path. The pdf parser
// panics on some malformed files, and a stuck processing document is
// worse than a failed one.
func (p *Pipeline) ingest(ctx context.Context, doc *models.DocumentModel) (err error) {
	defer func() {
		if r := recover(); r != nil {
			p.log.Error("ingestion panic",
				zap.String("document_id", doc.ID),
				zap.Any("panic", r),
			)
			err = fmt.Errorf("ingestion panic: %v", r)
		}
	}()
	return p.doIngest(ctx, doc)
}

func (p *Pipeline) doIngest(ctx context.Context, doc *models.DocumentModel) error {
	rc, err := p.store.Open(ctx, doc.FilePath)
	if err != nil {
		return fmt.Errorf("open stored file: %w", err)
	}
	data, err := io.ReadAll(rc)
	rc.Close()
	if err != nil {
		return fmt.Errorf("read stored file: %w", err)
	}

	text, err := ExtractText(doc.Filename, data)
	if err != nil {
		return err
	}

	chunks := SplitText(text, p.cfg.ChunkSize, p.cfg.ChunkOverlap, p.cfg.MinChunkLength)
	if len(chunks) == 0 {
		return fmt.Errorf("document %s produced no usable text", doc.ID)
	}

	rows, err := p.embedChunks(ctx, doc.ID, chunks)
	if err != nil {
		return err
	}

	// Re-ingesting replaces prior chunks wholesale. Delete and insert
	// share a transaction so a completed document never loses its
	// chunks to a half-finished re-ingest.
	if err := p.db.Transaction(func(tx *gorm.DB) error {
		if err := tx.Unscoped().Where("document_id = ?", doc.ID).
			Delete(&models.DocumentChunkModel{}).Error; err != nil {
			return err
		}
		return tx.CreateInBatches(rows, insertBatch).Error
	}); err != nil {
		return err
	}

	p.log.Info("document ingested",
		zap.String("document_id", doc.ID),
		zap.Int("chunks", len(rows)),
		zap.Int("dropped", len(chunks)-len(rows)),
	)
	return nil
}

// embedChunks embeds chunk texts in batches. Chunks whose embedding
// fails are dropped; their surviving neighbours keep the original
// chunk indexes. Errors out when nothing embedded.
func (p *Pipeline) embedChunks(ctx context.Context, documentID string, chunks []string) ([]models.DocumentChunkModel, error) {
	rows := make([]models.DocumentChunkModel, 0, len(chunks))
	for start := 0; start < len(chunks); start += embedBatchSize {
		end := start + embedBatchSize
		if end > len(chunks) {
			end = len(chunks)
		}

		batch, err := p.embedder.EmbedTexts(ctx, chunks[start:end])
		if err != nil {
			p.log.Warn("embedding batch failed, chunks dropped",
				zap.String("document_id", documentID),
				zap.Int("from", start),
				zap.Int("to", end),
				zap.Error(err),
			)
			continue
		}
		for i, vec := range batch {
			if len(vec) == 0 {
				continue
			}
			rows = append(rows, models.DocumentChunkModel{
				DocumentID: documentID,
				ChunkIndex: start + i,
				ChunkText:  chunks[start+i],
				Embedding:  vec,
			})
		}
	}
	if len(rows) == 0 {
		return nil, fmt.Errorf("no chunks could be embedded for document %s", documentID)
	}
	return rows, nil
}

func (p *Pipeline) setStatus(doc *models.DocumentModel, status models.DocumentStatus) {
	doc.Status = status
	if err := p.db.Model(doc).Update("status", status).Error; err != nil {
		p.log.Warn("document status update failed",
			zap.String("document_id", doc.ID),
			zap.Error(err),
		)
		return
	}
	if p.notifier != nil {
		p.notifier.NotifyDocumentStatus(doc.ProjectID, doc.ID, status)
	}
}

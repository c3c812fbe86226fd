package ingest

import (
	"context"
	"fmt"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	appcfg "github.com/studyspace/core/internal/config"
	"github.com/studyspace/core/internal/models"
	"github.com/studyspace/core/internal/modules/ai"
	"github.com/studyspace/core/internal/pkg/storage"
)

type okEmbedder struct {
	calls int
}

func (e *okEmbedder) EmbedTexts(_ context.Context, texts []string) ([]models.Vector, error) {
	e.calls++
	out := make([]models.Vector, len(texts))
	for i := range texts {
		out[i] = models.Vector{0.1, 0.2, 0.3}
	}
	return out, nil
}

func (e *okEmbedder) Dimensions() int { return 3 }

type failingEmbedder struct{}

func (failingEmbedder) EmbedTexts(context.Context, []string) ([]models.Vector, error) {
	return nil, fmt.Errorf("embedding backend unavailable")
}

func (failingEmbedder) Dimensions() int { return 3 }

// sparseEmbedder embeds every text except the first, which comes back
// without a vector.
type sparseEmbedder struct{}

func (sparseEmbedder) EmbedTexts(_ context.Context, texts []string) ([]models.Vector, error) {
	out := make([]models.Vector, len(texts))
	for i := 1; i < len(texts); i++ {
		out[i] = models.Vector{0.5}
	}
	return out, nil
}

func (sparseEmbedder) Dimensions() int { return 1 }

type panickingEmbedder struct{}

func (panickingEmbedder) EmbedTexts(context.Context, []string) ([]models.Vector, error) {
	panic("malformed input")
}

func (panickingEmbedder) Dimensions() int { return 3 }

func openPipelineDB(t *testing.T) *gorm.DB {
	t.Helper()
	dsn := fmt.Sprintf("file:ingest_%s?mode=memory&cache=shared", t.Name())
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		Logger: gormlogger.Default.LogMode(gormlogger.Silent),
	})
	require.NoError(t, err)
	require.NoError(t, db.AutoMigrate(
		&models.ProjectModel{},
		&models.DocumentModel{},
		&models.DocumentChunkModel{},
	))
	t.Cleanup(func() {
		sqlDB, _ := db.DB()
		if sqlDB != nil {
			sqlDB.Close()
		}
	})
	return db
}

// seedStoredDocument writes a plain-text file into local storage and a
// pending document row pointing at it. 1800 chars chunk to two windows.
func seedStoredDocument(t *testing.T, db *gorm.DB, store storage.Backend) *models.DocumentModel {
	t.Helper()
	p := models.ProjectModel{UserID: "u1", Name: "ingest"}
	require.NoError(t, db.Create(&p).Error)

	key := p.ID + "/lecture.txt"
	text := strings.Repeat("ab", 900)
	_, err := store.Save(context.Background(), key, strings.NewReader(text))
	require.NoError(t, err)

	doc := &models.DocumentModel{
		ProjectID: p.ID,
		Filename:  "lecture.txt",
		FilePath:  key,
		Status:    models.DocumentPending,
	}
	require.NoError(t, db.Create(doc).Error)
	return doc
}

func newTestPipeline(t *testing.T, db *gorm.DB, embedder ai.Embedder) (*Pipeline, storage.Backend) {
	t.Helper()
	store, err := storage.NewLocal(t.TempDir())
	require.NoError(t, err)
	cfg := appcfg.RAGConfig{ChunkSize: 1000, ChunkOverlap: 100, MinChunkLength: 50}
	return NewPipeline(db, store, embedder, nil, nil, cfg, zap.NewNop()), store
}

func documentStatus(t *testing.T, db *gorm.DB, id string) models.DocumentStatus {
	t.Helper()
	var doc models.DocumentModel
	require.NoError(t, db.First(&doc, "id = ?", id).Error)
	return doc.Status
}

func TestProcessEmbedsAndCompletes(t *testing.T) {
	db := openPipelineDB(t)
	embedder := &okEmbedder{}
	pipeline, store := newTestPipeline(t, db, embedder)
	doc := seedStoredDocument(t, db, store)

	require.NoError(t, pipeline.Process(context.Background(), doc.ID))
	assert.Equal(t, models.DocumentCompleted, documentStatus(t, db, doc.ID))

	var chunks []models.DocumentChunkModel
	require.NoError(t, db.Where("document_id = ?", doc.ID).
		Order("chunk_index ASC").Find(&chunks).Error)
	require.Len(t, chunks, 2)
	assert.Equal(t, 0, chunks[0].ChunkIndex)
	assert.Equal(t, 1, chunks[1].ChunkIndex)
	assert.NotEmpty(t, chunks[0].Embedding)
}

func TestProcessMarksFailedWhenNothingEmbeds(t *testing.T) {
	db := openPipelineDB(t)
	pipeline, store := newTestPipeline(t, db, failingEmbedder{})
	doc := seedStoredDocument(t, db, store)

	err := pipeline.Process(context.Background(), doc.ID)
	require.Error(t, err)
	assert.Equal(t, models.DocumentFailed, documentStatus(t, db, doc.ID))

	// No vectorless chunks sneak into the index.
	var count int64
	require.NoError(t, db.Model(&models.DocumentChunkModel{}).
		Where("document_id = ?", doc.ID).Count(&count).Error)
	assert.EqualValues(t, 0, count)
}

func TestProcessDropsChunksWithoutVectors(t *testing.T) {
	db := openPipelineDB(t)
	pipeline, store := newTestPipeline(t, db, sparseEmbedder{})
	doc := seedStoredDocument(t, db, store)

	require.NoError(t, pipeline.Process(context.Background(), doc.ID))
	assert.Equal(t, models.DocumentCompleted, documentStatus(t, db, doc.ID))

	// The dropped chunk's neighbour keeps its original index.
	var chunks []models.DocumentChunkModel
	require.NoError(t, db.Where("document_id = ?", doc.ID).Find(&chunks).Error)
	require.Len(t, chunks, 1)
	assert.Equal(t, 1, chunks[0].ChunkIndex)
	assert.NotEmpty(t, chunks[0].Embedding)
}

func TestReingestReplacesChunks(t *testing.T) {
	db := openPipelineDB(t)
	embedder := &okEmbedder{}
	pipeline, store := newTestPipeline(t, db, embedder)
	doc := seedStoredDocument(t, db, store)

	require.NoError(t, pipeline.Process(context.Background(), doc.ID))
	require.NoError(t, pipeline.Process(context.Background(), doc.ID))
	assert.Equal(t, models.DocumentCompleted, documentStatus(t, db, doc.ID))

	var live int64
	require.NoError(t, db.Model(&models.DocumentChunkModel{}).
		Where("document_id = ?", doc.ID).Count(&live).Error)
	assert.EqualValues(t, 2, live)

	// Prior chunks are gone for good, not soft-delete residue that
	// would collide with the (document_id, chunk_index) index.
	var all int64
	require.NoError(t, db.Unscoped().Model(&models.DocumentChunkModel{}).
		Where("document_id = ?", doc.ID).Count(&all).Error)
	assert.EqualValues(t, 2, all)
}

func TestProcessRecoversFromPanic(t *testing.T) {
	db := openPipelineDB(t)
	pipeline, store := newTestPipeline(t, db, panickingEmbedder{})
	doc := seedStoredDocument(t, db, store)

	err := pipeline.Process(context.Background(), doc.ID)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "panic")
	assert.Equal(t, models.DocumentFailed, documentStatus(t, db, doc.ID))
}

func TestProcessSkipsMissingDocument(t *testing.T) {
	db := openPipelineDB(t)
	pipeline, _ := newTestPipeline(t, db, &okEmbedder{})

	assert.NoError(t, pipeline.Process(context.Background(), "no-such-document"))
}

package rag

import (
	"context"
	"errors"
	"fmt"
	"math"
	"sort"
	"strings"

	appcfg "github.com/studyspace/core/internal/config"
	"github.com/studyspace/core/internal/models"
	"github.com/studyspace/core/internal/modules/ai"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
	"gorm.io/gorm"
)

// ErrEmbeddingUnavailable marks a vector arm skipped because the query
// could not be embedded. Keyword results still apply.
var ErrEmbeddingUnavailable = errors.New("query embedding unavailable")

// RetrievedChunk is one retrieval hit with its source document.
type RetrievedChunk struct {
	ChunkID    string  `json:"chunk_id"`
	DocumentID string  `json:"document_id"`
	Filename   string  `json:"filename"`
	ChunkIndex int     `json:"chunk_index"`
	ChunkText  string  `json:"chunk_text"`
	Score      float64 `json:"score"`
}

// Retriever runs hybrid retrieval over a project's ingested chunks.
type Retriever struct {
	db       *gorm.DB
	embedder ai.Embedder
	cfg      appcfg.RAGConfig
	log      *zap.Logger
}

func NewRetriever(db *gorm.DB, embedder ai.Embedder, cfg appcfg.RAGConfig, log *zap.Logger) *Retriever {
	return &Retriever{db: db, embedder: embedder, cfg: cfg, log: log}
}

// Retrieve runs the vector and keyword arms in parallel and fuses their
// rankings. docIDs, when non-empty, restricts retrieval to those
// documents. When the query cannot be embedded the vector arm is skipped
// and the keyword-only fusion is returned together with
// ErrEmbeddingUnavailable, so callers choose whether to degrade or abort.
func (r *Retriever) Retrieve(ctx context.Context, projectID, query string, docIDs []string) ([]RetrievedChunk, error) {
	query = strings.TrimSpace(query)
	if query == "" {
		return nil, nil
	}

	var vectorHits, keywordHits []RetrievedChunk
	var embedErr error

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		hits, err := r.vectorCandidates(gctx, projectID, query, docIDs)
		if err != nil {
			if errors.Is(err, ErrEmbeddingUnavailable) {
				r.log.Warn("vector retrieval skipped",
					zap.String("project_id", projectID),
					zap.Error(err),
				)
				embedErr = err
				return nil
			}
			return err
		}
		vectorHits = hits
		return nil
	})
	g.Go(func() error {
		hits, err := r.keywordCandidates(gctx, projectID, query, docIDs)
		if err != nil {
			return err
		}
		keywordHits = hits
		return nil
	})
	if err := g.Wait(); err != nil {
		return nil, err
	}

	// Vector list first so it wins exact-tie fusion scores.
	fused := FuseReciprocal(
		[][]RetrievedChunk{vectorHits, keywordHits},
		r.cfg.FusionK,
		r.cfg.FinalTopN,
	)
	return fused, embedErr
}

// vectorCandidates embeds the query and ranks embedded chunks by L2
// distance, closest first.
func (r *Retriever) vectorCandidates(ctx context.Context, projectID, query string, docIDs []string) ([]RetrievedChunk, error) {
	vecs, err := r.embedder.EmbedTexts(ctx, []string{query})
	if err != nil || len(vecs) == 0 || len(vecs[0]) == 0 {
		return nil, fmt.Errorf("%w: %v", ErrEmbeddingUnavailable, err)
	}
	qEmb := vecs[0]

	tx := r.db.WithContext(ctx).
		Model(&models.DocumentChunkModel{}).
		Select("document_chunks.id, document_chunks.document_id, document_chunks.chunk_index, document_chunks.chunk_text, document_chunks.embedding, documents.filename").
		Joins("JOIN documents ON documents.id = document_chunks.document_id").
		Where("documents.project_id = ? AND documents.status = ? AND documents.deleted_at IS NULL", projectID, models.DocumentCompleted).
		Where("document_chunks.embedding IS NOT NULL AND document_chunks.embedding <> '' AND document_chunks.embedding <> '[]'")
	if len(docIDs) > 0 {
		tx = tx.Where("documents.id IN ?", docIDs)
	}

	var rows []chunkRow
	if err := tx.Find(&rows).Error; err != nil {
		return nil, err
	}

	type scored struct {
		row  chunkRow
		dist float64
	}
	scoredRows := make([]scored, 0, len(rows))
	for _, row := range rows {
		if len(row.Embedding) == 0 || len(row.Embedding) != len(qEmb) {
			continue
		}
		scoredRows = append(scoredRows, scored{row: row, dist: l2Distance(qEmb, row.Embedding)})
	}
	sort.SliceStable(scoredRows, func(i, j int) bool { return scoredRows[i].dist < scoredRows[j].dist })

	limit := r.cfg.VectorTopK
	if limit > 0 && len(scoredRows) > limit {
		scoredRows = scoredRows[:limit]
	}

	out := make([]RetrievedChunk, len(scoredRows))
	for i, s := range scoredRows {
		out[i] = s.row.toRetrieved(s.dist)
	}
	return out, nil
}

// keywordCandidates ranks chunks by Postgres full-text match. The
// 'simple' configuration keeps matching language-neutral.
func (r *Retriever) keywordCandidates(ctx context.Context, projectID, query string, docIDs []string) ([]RetrievedChunk, error) {
	limit := r.cfg.KeywordTopK
	if limit <= 0 {
		limit = 10
	}

	docFilter := ""
	args := []interface{}{query, projectID, models.DocumentCompleted}
	if len(docIDs) > 0 {
		docFilter = "AND documents.id IN ?"
		args = append(args, docIDs)
	}
	args = append(args, query)

	sql := fmt.Sprintf(`
		SELECT document_chunks.id, document_chunks.document_id, document_chunks.chunk_index,
		       document_chunks.chunk_text, documents.filename,
		       ts_rank(to_tsvector('simple', document_chunks.chunk_text), plainto_tsquery('simple', ?)) AS rank
		FROM document_chunks
		JOIN documents ON documents.id = document_chunks.document_id
		WHERE documents.project_id = ?
			AND documents.status = ?
			AND document_chunks.deleted_at IS NULL
			AND documents.deleted_at IS NULL
			%s
			AND to_tsvector('simple', document_chunks.chunk_text) @@ plainto_tsquery('simple', ?)
		ORDER BY rank DESC, document_chunks.chunk_index ASC
		LIMIT %d`, docFilter, limit)

	var rows []chunkRow
	err := r.db.WithContext(ctx).
		Raw(sql, args...).
		Scan(&rows).Error
	if err != nil {
		return nil, err
	}

	out := make([]RetrievedChunk, len(rows))
	for i, row := range rows {
		out[i] = row.toRetrieved(row.Rank)
	}
	return out, nil
}

type chunkRow struct {
	ID         string        `gorm:"column:id"`
	DocumentID string        `gorm:"column:document_id"`
	ChunkIndex int           `gorm:"column:chunk_index"`
	ChunkText  string        `gorm:"column:chunk_text"`
	Embedding  models.Vector `gorm:"column:embedding"`
	Filename   string        `gorm:"column:filename"`
	Rank       float64       `gorm:"column:rank"`
}

func (c chunkRow) toRetrieved(score float64) RetrievedChunk {
	return RetrievedChunk{
		ChunkID:    c.ID,
		DocumentID: c.DocumentID,
		Filename:   c.Filename,
		ChunkIndex: c.ChunkIndex,
		ChunkText:  c.ChunkText,
		Score:      score,
	}
}

func l2Distance(a, b models.Vector) float64 {
	var sum float64
	for i := range a {
		d := float64(a[i]) - float64(b[i])
		sum += d * d
	}
	return math.Sqrt(sum)
}

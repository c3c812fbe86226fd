package chat

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	appcfg "github.com/studyspace/core/internal/config"
	"github.com/studyspace/core/internal/models"
	"github.com/studyspace/core/internal/modules/rag"
)

type fakeRetriever struct {
	hits []rag.RetrievedChunk
	err  error
}

func (f *fakeRetriever) Retrieve(_ context.Context, _, _ string, _ []string) ([]rag.RetrievedChunk, error) {
	return f.hits, f.err
}

type fakeGenerator struct {
	generateCalls int
	streamCalls   int
	output        string
	fragments     []string
	err           error
}

func (f *fakeGenerator) GenerateText(_ context.Context, _, _ string) (string, error) {
	f.generateCalls++
	return f.output, f.err
}

func (f *fakeGenerator) StreamText(_ context.Context, _, _ string, onToken func(string)) (string, error) {
	f.streamCalls++
	if f.err != nil {
		return "", f.err
	}
	var full strings.Builder
	for _, fr := range f.fragments {
		full.WriteString(fr)
		if onToken != nil {
			onToken(fr)
		}
	}
	return full.String(), nil
}

func openTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	dsn := fmt.Sprintf("file:chat_%s?mode=memory&cache=shared", t.Name())
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		Logger: gormlogger.Default.LogMode(gormlogger.Silent),
	})
	require.NoError(t, err)
	require.NoError(t, db.AutoMigrate(&models.ChatHistoryModel{}))
	t.Cleanup(func() {
		sqlDB, _ := db.DB()
		if sqlDB != nil {
			sqlDB.Close()
		}
	})
	return db
}

type sseEvent struct {
	Type  string          `json:"type"`
	Data  json.RawMessage `json:"data"`
	Error string          `json:"error"`
}

func parseSSE(t *testing.T, body string) []sseEvent {
	t.Helper()
	var events []sseEvent
	for _, block := range strings.Split(body, "\n\n") {
		block = strings.TrimSpace(block)
		if block == "" {
			continue
		}
		require.True(t, strings.HasPrefix(block, "data: "), "unexpected SSE block: %q", block)
		var ev sseEvent
		require.NoError(t, json.Unmarshal([]byte(strings.TrimPrefix(block, "data: ")), &ev))
		events = append(events, ev)
	}
	return events
}

func streamOnce(t *testing.T, svc *Service, projectID, userID, question string) []sseEvent {
	t.Helper()
	gin.SetMode(gin.TestMode)
	w := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(w)
	c.Request = httptest.NewRequest(http.MethodPost, "/chat", nil)

	svc.StreamAnswer(c, projectID, userID, question)

	assert.Equal(t, "text/event-stream", w.Header().Get("Content-Type"))
	return parseSSE(t, w.Body.String())
}

func TestStreamAnswerSourcesPrecedeAnswer(t *testing.T) {
	db := openTestDB(t)
	retr := &fakeRetriever{hits: []rag.RetrievedChunk{
		{ChunkID: "c1", Filename: "lecture.pdf", ChunkText: "перший фрагмент"},
		{ChunkID: "c2", Filename: "notes.txt", ChunkText: "другий фрагмент"},
		{ChunkID: "c3", Filename: "lecture.pdf", ChunkText: "третій фрагмент"},
	}}
	gen := &fakeGenerator{fragments: []string{"Відп", "овідь"}}
	svc := NewService(db, retr, gen, appcfg.RAGConfig{}, "Ukrainian", zap.NewNop())

	events := streamOnce(t, svc, "p1", "u1", "Про що лекція?")
	require.GreaterOrEqual(t, len(events), 3)

	// Sources come first, deduplicated in rank order.
	assert.Equal(t, "sources", events[0].Type)
	var sources []string
	require.NoError(t, json.Unmarshal(events[0].Data, &sources))
	assert.Equal(t, []string{"lecture.pdf", "notes.txt"}, sources)

	var fragments []string
	for _, ev := range events[1:] {
		require.Equal(t, "answer", ev.Type)
		var s string
		require.NoError(t, json.Unmarshal(ev.Data, &s))
		fragments = append(fragments, s)
	}
	assert.Equal(t, []string{"Відп", "овідь"}, fragments)

	// The turn persisted with the raw question and the full answer.
	var row models.ChatHistoryModel
	require.NoError(t, db.First(&row).Error)
	assert.Equal(t, "Про що лекція?", row.Question)
	assert.Equal(t, "Відповідь", row.Answer)
	assert.Equal(t, "u1", row.UserID)
}

func TestStreamAnswerEmptyRetrieval(t *testing.T) {
	db := openTestDB(t)
	gen := &fakeGenerator{fragments: []string{"should not stream"}}
	svc := NewService(db, &fakeRetriever{}, gen, appcfg.RAGConfig{}, "Ukrainian", zap.NewNop())

	events := streamOnce(t, svc, "p1", "u1", "Питання без відповіді")
	require.Len(t, events, 2)

	assert.Equal(t, "sources", events[0].Type)
	var sources []string
	require.NoError(t, json.Unmarshal(events[0].Data, &sources))
	assert.Empty(t, sources)

	// Exactly one answer event with the fixed no-information message.
	assert.Equal(t, "answer", events[1].Type)
	var answer string
	require.NoError(t, json.Unmarshal(events[1].Data, &answer))
	assert.Equal(t, msgNoInformation, answer)

	// No generation call, no history row.
	assert.Equal(t, 0, gen.streamCalls)
	var count int64
	require.NoError(t, db.Model(&models.ChatHistoryModel{}).Count(&count).Error)
	assert.EqualValues(t, 0, count)
}

func TestStreamAnswerEmbeddingUnavailable(t *testing.T) {
	db := openTestDB(t)
	retr := &fakeRetriever{
		hits: []rag.RetrievedChunk{{ChunkID: "c1", Filename: "a.txt", ChunkText: "x"}},
		err:  rag.ErrEmbeddingUnavailable,
	}
	gen := &fakeGenerator{}
	svc := NewService(db, retr, gen, appcfg.RAGConfig{}, "Ukrainian", zap.NewNop())

	events := streamOnce(t, svc, "p1", "u1", "Питання")
	require.Len(t, events, 1)

	// A single error event terminates the stream before any sources.
	assert.Equal(t, msgQueryFailed, events[0].Error)
	assert.Empty(t, events[0].Type)
	assert.Equal(t, 0, gen.streamCalls)

	var count int64
	require.NoError(t, db.Model(&models.ChatHistoryModel{}).Count(&count).Error)
	assert.EqualValues(t, 0, count)
}

func TestStreamAnswerGenerationFailure(t *testing.T) {
	db := openTestDB(t)
	retr := &fakeRetriever{hits: []rag.RetrievedChunk{
		{ChunkID: "c1", Filename: "a.txt", ChunkText: "контекст"},
	}}
	gen := &fakeGenerator{err: assert.AnError}
	svc := NewService(db, retr, gen, appcfg.RAGConfig{}, "Ukrainian", zap.NewNop())

	events := streamOnce(t, svc, "p1", "u1", "Питання")
	require.Len(t, events, 2)
	assert.Equal(t, "sources", events[0].Type)
	assert.Contains(t, events[1].Error, "Виникла помилка при генерації відповіді")

	// A failed stream leaves no history behind.
	var count int64
	require.NoError(t, db.Model(&models.ChatHistoryModel{}).Count(&count).Error)
	assert.EqualValues(t, 0, count)
}

func TestReformulateNoHistoryShortCircuits(t *testing.T) {
	db := openTestDB(t)
	gen := &fakeGenerator{output: "reformulated"}
	svc := NewService(db, &fakeRetriever{}, gen, appcfg.RAGConfig{}, "Ukrainian", zap.NewNop())

	got := svc.Reformulate(context.Background(), "p1", "А що далі?")
	assert.Equal(t, "А що далі?", got)
	assert.Equal(t, 0, gen.generateCalls)
}

func TestReformulateUsesRecentHistory(t *testing.T) {
	db := openTestDB(t)
	for i := 0; i < 5; i++ {
		require.NoError(t, db.Create(&models.ChatHistoryModel{
			ProjectID: "p1",
			UserID:    "u1",
			Question:  fmt.Sprintf("питання %d", i),
			Answer:    fmt.Sprintf("відповідь %d", i),
		}).Error)
	}

	gen := &fakeGenerator{output: "Що таке нейронна мережа?"}
	svc := NewService(db, &fakeRetriever{}, gen, appcfg.RAGConfig{HistoryWindow: 3}, "Ukrainian", zap.NewNop())

	got := svc.Reformulate(context.Background(), "p1", "А це що таке?")
	assert.Equal(t, "Що таке нейронна мережа?", got)
	assert.Equal(t, 1, gen.generateCalls)
}

func TestReformulateModelFailureFallsBack(t *testing.T) {
	db := openTestDB(t)
	require.NoError(t, db.Create(&models.ChatHistoryModel{
		ProjectID: "p1", UserID: "u1", Question: "q", Answer: "a",
	}).Error)

	gen := &fakeGenerator{err: assert.AnError}
	svc := NewService(db, &fakeRetriever{}, gen, appcfg.RAGConfig{}, "Ukrainian", zap.NewNop())

	got := svc.Reformulate(context.Background(), "p1", "І що?")
	assert.Equal(t, "І що?", got)
}

func TestHistoryOrderAndClamp(t *testing.T) {
	db := openTestDB(t)
	svc := NewService(db, &fakeRetriever{}, &fakeGenerator{}, appcfg.RAGConfig{}, "Ukrainian", zap.NewNop())

	for i := 0; i < 3; i++ {
		require.NoError(t, db.Create(&models.ChatHistoryModel{
			ProjectID: "p1", UserID: "u1",
			Question: fmt.Sprintf("q%d", i), Answer: fmt.Sprintf("a%d", i),
		}).Error)
	}

	rows, err := svc.History(context.Background(), "p1", 0, 0)
	require.NoError(t, err)
	require.Len(t, rows, 3)

	rows, err = svc.History(context.Background(), "p1", 2, 0)
	require.NoError(t, err)
	assert.Len(t, rows, 2)

	rows, err = svc.History(context.Background(), "p2", 10, 0)
	require.NoError(t, err)
	assert.Empty(t, rows)
}

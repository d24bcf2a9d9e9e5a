package memcore

import (
	"context"
	"testing"
	"time"

	sqlmock "github.com/DATA-DOG/go-sqlmock"
	"github.com/jmoiron/sqlx"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/memnexus/memcore/pkg/cache"
	"github.com/memnexus/memcore/pkg/database"
	"github.com/memnexus/memcore/pkg/embedding"
	"github.com/memnexus/memcore/pkg/embeddingstore"
	"github.com/memnexus/memcore/pkg/graph"
	"github.com/memnexus/memcore/pkg/queue"
)

// fixedModel returns a constant vector for every text, for facade tests
// that don't care about embedding content.
type fixedModel struct {
	vector []float32
}

func (m fixedModel) Generate(ctx context.Context, text string) ([]float32, error) {
	return m.vector, nil
}

func (m fixedModel) GenerateBatch(ctx context.Context, texts []string) ([][]float32, error) {
	out := make([][]float32, len(texts))
	for i := range texts {
		out[i] = m.vector
	}
	return out, nil
}

func (m fixedModel) Dimension() int { return len(m.vector) }
func (m fixedModel) Name() string   { return "fixed-model" }

func newTestCore(t *testing.T) (*MemoryCore, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })

	sqlxDB := sqlx.NewDb(db, "postgres")
	dbWrapper := database.NewForTesting(sqlxDB)

	c, err := cache.New(cache.Config{Prefix: "memcore-test", Capacity: 100, DefaultTTL: time.Minute})
	require.NoError(t, err)

	model := fixedModel{vector: []float32{1, 0, 0}}
	eng := embedding.NewEngine(c, model, time.Minute, nil)
	store := embeddingstore.New(dbWrapper)
	q := queue.New(queue.Config{BaseDelay: time.Millisecond})

	mc := New(dbWrapper, c, eng, store, q, nil)
	return mc, mock
}

func TestStoreMemory_InsertsRowAndEnqueuesEmbeddingJob(t *testing.T) {
	mc, mock := newTestCore(t)
	mock.ExpectExec("INSERT INTO memories").WillReturnResult(sqlmock.NewResult(0, 1))

	// The queue will asynchronously drive generateAndPersist, which calls
	// embeddingstore.Store -- expect its five-row transaction too.
	mock.ExpectBegin()
	for i := 0; i < 5; i++ {
		mock.ExpectExec("INSERT INTO memory_embeddings").WillReturnResult(sqlmock.NewResult(0, 1))
	}
	mock.ExpectCommit()

	m, err := mc.StoreMemory(context.Background(), StoreInput{UserID: "u1", Content: "hello world"})
	require.NoError(t, err)
	assert.NotEmpty(t, m.ID)
	assert.Equal(t, "semantic", m.PrimarySector)

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	require.NoError(t, mc.Queue().WaitForCompletion(ctx))
}

func TestStoreMemory_RejectsEmptyContent(t *testing.T) {
	mc, _ := newTestCore(t)
	_, err := mc.StoreMemory(context.Background(), StoreInput{UserID: "u1", Content: ""})
	require.Error(t, err)
}

func TestStoreMemory_RejectsMissingUserID(t *testing.T) {
	mc, _ := newTestCore(t)
	_, err := mc.StoreMemory(context.Background(), StoreInput{Content: "hello"})
	require.Error(t, err)
}

func TestDeleteMemory_SoftDeleteSetsTombstone(t *testing.T) {
	mc, mock := newTestCore(t)
	mock.ExpectExec("UPDATE memories SET deleted_at").WillReturnResult(sqlmock.NewResult(0, 1))

	err := mc.DeleteMemory(context.Background(), "m1", false)
	require.NoError(t, err)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestDeleteMemory_HardDeleteRemovesEmbeddingsLinksAndRow(t *testing.T) {
	mc, mock := newTestCore(t)
	mock.ExpectExec("DELETE FROM memory_embeddings").WillReturnResult(sqlmock.NewResult(0, 5))
	mock.ExpectExec("DELETE FROM memory_links").WillReturnResult(sqlmock.NewResult(0, 2))
	mock.ExpectExec("DELETE FROM memories").WillReturnResult(sqlmock.NewResult(0, 1))

	err := mc.DeleteMemory(context.Background(), "m1", true)
	require.NoError(t, err)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestDeleteMemory_SoftDeleteOnUnknownMemoryIsNotFound(t *testing.T) {
	mc, mock := newTestCore(t)
	mock.ExpectExec("UPDATE memories SET deleted_at").WillReturnResult(sqlmock.NewResult(0, 0))

	err := mc.DeleteMemory(context.Background(), "missing", false)
	require.Error(t, err)
}

func TestRecall_RejectsEmptyQuery(t *testing.T) {
	mc, _ := newTestCore(t)
	_, err := mc.Recall(context.Background(), RecallQuery{UserID: "u1", Text: "", Weights: map[embedding.Sector]float64{embedding.SectorSemantic: 1}})
	require.Error(t, err)
}

func TestRecall_RejectsNoWeights(t *testing.T) {
	mc, _ := newTestCore(t)
	_, err := mc.Recall(context.Background(), RecallQuery{UserID: "u1", Text: "hello"})
	require.Error(t, err)
}

func TestRecall_SearchesAndHydratesMemories(t *testing.T) {
	mc, mock := newTestCore(t)

	rows := sqlmock.NewRows([]string{"memory_id", "similarity"}).AddRow("m1", 0.9)
	mock.ExpectQuery("sector = \\$2").WillReturnRows(rows)

	memRows := sqlmock.NewRows([]string{"id", "user_id", "session_id", "content", "primary_sector", "salience", "strength", "access_count", "created_at", "last_accessed", "deleted_at"}).
		AddRow("m1", "u1", "s1", "hello world", "semantic", 0.0, 0.0, 0, time.Now(), time.Now(), nil)
	mock.ExpectQuery("FROM memories").WillReturnRows(memRows)

	results, err := mc.Recall(context.Background(), RecallQuery{
		UserID: "u1", Text: "hello", Limit: 5,
		Weights: map[embedding.Sector]float64{embedding.SectorSemantic: 1.0},
	})
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Equal(t, "m1", results[0].Memory.ID)
	assert.InDelta(t, 0.9, results[0].Score, 1e-9)
}

func TestListMemories_RejectsMissingUserID(t *testing.T) {
	mc, _ := newTestCore(t)
	_, err := mc.ListMemories(context.Background(), "", "", 10)
	require.Error(t, err)
}

func TestListMemories_RejectsMalformedCursor(t *testing.T) {
	mc, _ := newTestCore(t)
	_, err := mc.ListMemories(context.Background(), "u1", "not-a-valid-cursor!!!", 10)
	require.Error(t, err)
}

func TestListMemories_FirstPageReturnsNextCursorWhenFull(t *testing.T) {
	mc, mock := newTestCore(t)

	now := time.Now().UTC()
	rows := sqlmock.NewRows([]string{"id", "user_id", "session_id", "content", "primary_sector", "salience", "strength", "access_count", "created_at", "last_accessed", "deleted_at"}).
		AddRow("m1", "u1", "", "first", "semantic", 0.0, 0.0, 0, now, now, nil).
		AddRow("m2", "u1", "", "second", "semantic", 0.0, 0.0, 0, now, now, nil)
	mock.ExpectQuery("FROM memories").WillReturnRows(rows)

	page, err := mc.ListMemories(context.Background(), "u1", "", 2)
	require.NoError(t, err)
	require.Len(t, page.Memories, 2)
	assert.NotEmpty(t, page.NextCursor)

	decoded, err := decodeCursor(page.NextCursor)
	require.NoError(t, err)
	assert.Equal(t, "m2", decoded.MemoryID)
}

func TestCreateLink_UpsertsRow(t *testing.T) {
	mc, mock := newTestCore(t)
	mock.ExpectExec("INSERT INTO memory_links").WillReturnResult(sqlmock.NewResult(0, 1))

	err := mc.CreateLink(context.Background(), "m1", "m2", graph.LinkCausal, 0.75)
	require.NoError(t, err)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestCreateLink_RejectsSelfLink(t *testing.T) {
	mc, _ := newTestCore(t)
	err := mc.CreateLink(context.Background(), "m1", "m1", graph.LinkCausal, 0.5)
	require.Error(t, err)
}

func TestCreateLink_RejectsWeightOutOfRange(t *testing.T) {
	mc, _ := newTestCore(t)
	err := mc.CreateLink(context.Background(), "m1", "m2", graph.LinkCausal, 1.5)
	require.Error(t, err)
}

func TestCreateLink_RejectsUnrecognisedLinkType(t *testing.T) {
	mc, _ := newTestCore(t)
	err := mc.CreateLink(context.Background(), "m1", "m2", graph.LinkType("bogus"), 0.5)
	require.Error(t, err)
}

func TestListMemories_LastPageReturnsEmptyNextCursor(t *testing.T) {
	mc, mock := newTestCore(t)

	now := time.Now().UTC()
	rows := sqlmock.NewRows([]string{"id", "user_id", "session_id", "content", "primary_sector", "salience", "strength", "access_count", "created_at", "last_accessed", "deleted_at"}).
		AddRow("m1", "u1", "", "only one", "semantic", 0.0, 0.0, 0, now, now, nil)
	mock.ExpectQuery("FROM memories").WillReturnRows(rows)

	page, err := mc.ListMemories(context.Background(), "u1", "", 10)
	require.NoError(t, err)
	require.Len(t, page.Memories, 1)
	assert.Empty(t, page.NextCursor)
}

package embeddingstore

import (
	"context"
	"testing"

	sqlmock "github.com/DATA-DOG/go-sqlmock"
	"github.com/jmoiron/sqlx"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/memnexus/memcore/internal/memerr"
	"github.com/memnexus/memcore/pkg/database"
	"github.com/memnexus/memcore/pkg/embedding"
)

func newTestStore(t *testing.T) (*Store, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })

	sqlxDB := sqlx.NewDb(db, "postgres")
	return New(database.NewForTesting(sqlxDB)), mock
}

func fiveVectors(v []float32) embedding.SectorEmbeddings {
	var se embedding.SectorEmbeddings
	for _, sector := range embedding.Sectors {
		se.Set(sector, v)
	}
	return se
}

func TestStore_RejectsDimensionMismatch(t *testing.T) {
	store, _ := newTestStore(t)

	vectors := fiveVectors([]float32{1, 2, 3})
	vectors.Episodic = []float32{1, 2} // mismatched length

	err := store.Store(context.Background(), "m1", vectors, "model-a")
	require.Error(t, err)
	assert.True(t, memerr.Is(err, memerr.KindDimensionMismatch))
}

func TestStore_WritesAllFiveRowsInOneTransaction(t *testing.T) {
	store, mock := newTestStore(t)
	vectors := fiveVectors([]float32{1, 0, 0})

	mock.ExpectBegin()
	for range embedding.Sectors {
		mock.ExpectExec("INSERT INTO memory_embeddings").WillReturnResult(sqlmock.NewResult(0, 1))
	}
	mock.ExpectCommit()

	err := store.Store(context.Background(), "m1", vectors, "model-a")
	require.NoError(t, err)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestStore_RollsBackOnWriteFailure(t *testing.T) {
	store, mock := newTestStore(t)
	vectors := fiveVectors([]float32{1, 0, 0})

	mock.ExpectBegin()
	mock.ExpectExec("INSERT INTO memory_embeddings").WillReturnError(assertError{})
	mock.ExpectRollback()

	err := store.Store(context.Background(), "m1", vectors, "model-a")
	require.Error(t, err)
	assert.True(t, memerr.Is(err, memerr.KindStorage))
	require.NoError(t, mock.ExpectationsWereMet())
}

type assertError struct{}

func (assertError) Error() string { return "write failed" }

func TestRetrieve_FillsMissingSectorsWithEmptyVectors(t *testing.T) {
	store, mock := newTestStore(t)

	rows := sqlmock.NewRows([]string{"sector", "embedding"}).
		AddRow("semantic", "[1,0,0]")
	mock.ExpectQuery("SELECT sector, embedding::text").WillReturnRows(rows)

	result, err := store.Retrieve(context.Background(), "m1", nil)
	require.NoError(t, err)
	assert.Equal(t, []float32{1, 0, 0}, result.Semantic)
	assert.Nil(t, result.Episodic)
	assert.Nil(t, result.Procedural)
}

func TestRetrieve_CorruptVectorIsCorruptEmbeddingError(t *testing.T) {
	store, mock := newTestStore(t)

	rows := sqlmock.NewRows([]string{"sector", "embedding"}).
		AddRow("semantic", "not-a-vector")
	mock.ExpectQuery("SELECT sector, embedding::text").WillReturnRows(rows)

	_, err := store.Retrieve(context.Background(), "m1", nil)
	require.Error(t, err)
	assert.True(t, memerr.Is(err, memerr.KindCorruptEmbedding))
}

func TestUpdate_SkipsEmptyVectors(t *testing.T) {
	store, mock := newTestStore(t)
	var partial embedding.SectorEmbeddings
	partial.Semantic = []float32{1, 0, 0}

	mock.ExpectBegin()
	mock.ExpectExec("INSERT INTO memory_embeddings").WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	err := store.Update(context.Background(), "m1", partial, "model-a")
	require.NoError(t, err)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestDelete_RemovesAllRows(t *testing.T) {
	store, mock := newTestStore(t)
	mock.ExpectExec("DELETE FROM memory_embeddings").WillReturnResult(sqlmock.NewResult(0, 5))

	err := store.Delete(context.Background(), "m1")
	require.NoError(t, err)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestMultiSectorSearch_CompositeScore(t *testing.T) {
	// S6: weights {semantic: 0.6, emotional: 0.4}, composite = weighted sum.
	store, mock := newTestStore(t)

	semRows := sqlmock.NewRows([]string{"memory_id", "similarity"}).
		AddRow("m1", 0.9).
		AddRow("m2", 0.1)
	emoRows := sqlmock.NewRows([]string{"memory_id", "similarity"}).
		AddRow("m1", 0.3).
		AddRow("m2", 0.2)

	mock.ExpectQuery("sector = \\$2").WillReturnRows(semRows)
	mock.ExpectQuery("sector = \\$2").WillReturnRows(emoRows)

	results, err := store.MultiSectorSearch(context.Background(), map[embedding.Sector][]float32{
		embedding.SectorSemantic:  {1, 0, 0},
		embedding.SectorEmotional: {0, 1, 0},
	}, map[embedding.Sector]float64{
		embedding.SectorSemantic:  0.6,
		embedding.SectorEmotional: 0.4,
	}, 10)
	require.NoError(t, err)
	require.Len(t, results, 2)

	// m1: 0.6*0.9 + 0.4*0.3 = 0.66 ; m2: 0.6*0.1 + 0.4*0.2 = 0.14
	assert.Equal(t, "m1", results[0].MemoryID)
	assert.InDelta(t, 0.66, results[0].Similarity, 1e-9)
	assert.Equal(t, "m2", results[1].MemoryID)
	assert.InDelta(t, 0.14, results[1].Similarity, 1e-9)
}

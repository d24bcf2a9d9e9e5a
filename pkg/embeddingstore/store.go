// Package embeddingstore implements the EmbeddingStore (C4): persistence
// and similarity search for per-sector memory vectors, backed by Postgres
// with the pgvector extension.
package embeddingstore

import (
	"context"
	"fmt"

	"github.com/jmoiron/sqlx"

	"github.com/memnexus/memcore/internal/memerr"
	"github.com/memnexus/memcore/pkg/common"
	"github.com/memnexus/memcore/pkg/database"
	"github.com/memnexus/memcore/pkg/embedding"
)

// Store implements spec.md §4.3 against the memory_embeddings table:
//
//	memory_embeddings(memory_id, sector, embedding, dimension, model_name, created_at)
//	PRIMARY KEY (memory_id, sector)
type Store struct {
	db *database.Database
}

// New constructs a Store over an already-connected database.
func New(db *database.Database) *Store {
	return &Store{db: db}
}

// SimilarityResult is one row of a similarity_search / multi_sector_search
// result: (memory_id, sector, similarity), descending by similarity.
type SimilarityResult struct {
	MemoryID   string
	Sector     string
	Similarity float64
}

func sectorDimension(s embedding.SectorEmbeddings, sector embedding.Sector) int {
	return len(s.Get(sector))
}

// Store writes all five sector rows for memory_id in a single transaction.
// It rejects the whole write with DimensionMismatch if the five vectors
// don't share one length (spec.md §4.3).
func (s *Store) Store(ctx context.Context, memoryID string, vectors embedding.SectorEmbeddings, modelName string) error {
	dims := map[embedding.Sector]int{}
	var want int
	for i, sector := range embedding.Sectors {
		d := sectorDimension(vectors, sector)
		dims[sector] = d
		if i == 0 {
			want = d
		} else if d != want {
			return memerr.DimensionMismatch(d, want)
		}
	}

	return s.db.Transaction(ctx, func(tx *sqlx.Tx) error {
		for _, sector := range embedding.Sectors {
			vec := vectors.Get(sector)
			if _, err := tx.ExecContext(ctx, upsertEmbeddingSQL,
				memoryID, string(sector), common.FormatVectorForPgVector(vec), len(vec), modelName,
			); err != nil {
				return memerr.Storage(fmt.Sprintf("store embedding for memory %s sector %s", memoryID, sector), err)
			}
		}
		return nil
	})
}

const upsertEmbeddingSQL = `
INSERT INTO memory_embeddings (memory_id, sector, embedding, dimension, model_name, created_at)
VALUES ($1, $2, $3::vector, $4, $5, now())
ON CONFLICT (memory_id, sector)
DO UPDATE SET embedding = EXCLUDED.embedding, dimension = EXCLUDED.dimension,
              model_name = EXCLUDED.model_name, created_at = EXCLUDED.created_at
`

type embeddingRow struct {
	Sector    string `db:"sector"`
	Embedding string `db:"embedding"`
}

// Retrieve returns the requested sectors (or all five if sectors is empty),
// filling any missing entry with an empty (nil) vector rather than omitting
// the slot, so the result always has five slots (spec.md §4.3).
func (s *Store) Retrieve(ctx context.Context, memoryID string, sectors []embedding.Sector) (embedding.SectorEmbeddings, error) {
	query, args := retrieveQuery(memoryID, sectors)

	var rows []embeddingRow
	if err := s.db.DB().SelectContext(ctx, &rows, query, args...); err != nil {
		return embedding.SectorEmbeddings{}, memerr.Storage("retrieve embeddings for memory "+memoryID, err)
	}

	var result embedding.SectorEmbeddings
	for _, row := range rows {
		vec, err := common.ParseVectorFromPgVector(row.Embedding)
		if err != nil {
			return embedding.SectorEmbeddings{}, memerr.CorruptEmbedding(
				fmt.Sprintf("memory %s sector %s", memoryID, row.Sector), err)
		}
		result.Set(embedding.Sector(row.Sector), vec)
	}
	return result, nil
}

func retrieveQuery(memoryID string, sectors []embedding.Sector) (string, []any) {
	if len(sectors) == 0 {
		return `SELECT sector, embedding::text AS embedding FROM memory_embeddings WHERE memory_id = $1`,
			[]any{memoryID}
	}
	names := make([]string, len(sectors))
	args := []any{memoryID}
	for i, sec := range sectors {
		args = append(args, string(sec))
		names[i] = fmt.Sprintf("$%d", i+2)
	}
	query := fmt.Sprintf(
		`SELECT sector, embedding::text AS embedding FROM memory_embeddings WHERE memory_id = $1 AND sector IN (%s)`,
		joinPlaceholders(names),
	)
	return query, args
}

func joinPlaceholders(names []string) string {
	out := ""
	for i, n := range names {
		if i > 0 {
			out += ", "
		}
		out += n
	}
	return out
}

// Update upserts only the sectors present in partial, silently skipping
// any empty vector (spec.md §4.3).
func (s *Store) Update(ctx context.Context, memoryID string, partial embedding.SectorEmbeddings, modelName string) error {
	return s.db.Transaction(ctx, func(tx *sqlx.Tx) error {
		for _, sector := range embedding.Sectors {
			vec := partial.Get(sector)
			if len(vec) == 0 {
				continue
			}
			if _, err := tx.ExecContext(ctx, upsertEmbeddingSQL,
				memoryID, string(sector), common.FormatVectorForPgVector(vec), len(vec), modelName,
			); err != nil {
				return memerr.Storage(fmt.Sprintf("update embedding for memory %s sector %s", memoryID, sector), err)
			}
		}
		return nil
	})
}

// Delete removes all five rows for memoryID.
func (s *Store) Delete(ctx context.Context, memoryID string) error {
	if _, err := s.db.DB().ExecContext(ctx, `DELETE FROM memory_embeddings WHERE memory_id = $1`, memoryID); err != nil {
		return memerr.Storage("delete embeddings for memory "+memoryID, err)
	}
	return nil
}

type similarityRow struct {
	MemoryID   string  `db:"memory_id"`
	Similarity float64 `db:"similarity"`
}

// SimilaritySearch returns the top-limit memories in sector whose cosine
// similarity to queryVector is >= threshold, descending by similarity,
// memory id ascending on ties (spec.md §4.3).
func (s *Store) SimilaritySearch(ctx context.Context, queryVector []float32, sector embedding.Sector, limit int, threshold float64) ([]SimilarityResult, error) {
	if len(queryVector) == 0 {
		return nil, memerr.Validation("query vector must not be empty")
	}

	var rows []similarityRow
	err := s.db.DB().SelectContext(ctx, &rows, similaritySearchSQL,
		common.FormatVectorForPgVector(queryVector), string(sector), threshold, limit,
	)
	if err != nil {
		return nil, memerr.Storage("similarity search sector "+string(sector), err)
	}

	results := make([]SimilarityResult, len(rows))
	for i, r := range rows {
		results[i] = SimilarityResult{MemoryID: r.MemoryID, Sector: string(sector), Similarity: r.Similarity}
	}
	return results, nil
}

const similaritySearchSQL = `
SELECT memory_id, 1 - (embedding <=> $1::vector) AS similarity
FROM memory_embeddings
WHERE sector = $2
  AND 1 - (embedding <=> $1::vector) >= $3
ORDER BY similarity DESC, memory_id ASC
LIMIT $4
`

// MultiSectorSearch computes, for each sector with both a non-empty query
// vector and a strictly positive weight, weight*(1-distance), sums per
// memory and returns the top-limit memories by descending composite score
// (spec.md §4.3, invariant 15, scenario S6). Sectors are queried one at a
// time in embedding.Sectors order.
func (s *Store) MultiSectorSearch(ctx context.Context, queryVectors map[embedding.Sector][]float32, weights map[embedding.Sector]float64, limit int) ([]SimilarityResult, error) {
	composite := map[string]float64{}

	for _, sector := range embedding.Sectors {
		vec := queryVectors[sector]
		weight := weights[sector]
		if len(vec) == 0 || weight <= 0 {
			continue
		}
		rows, err := s.similarityRowsForSector(ctx, vec, sector)
		if err != nil {
			return nil, err
		}
		for _, r := range rows {
			composite[r.MemoryID] += weight * r.Similarity
		}
	}

	return topN(composite, limit), nil
}

func (s *Store) similarityRowsForSector(ctx context.Context, vec []float32, sector embedding.Sector) ([]similarityRow, error) {
	var rows []similarityRow
	err := s.db.DB().SelectContext(ctx, &rows,
		`SELECT memory_id, 1 - (embedding <=> $1::vector) AS similarity FROM memory_embeddings WHERE sector = $2`,
		common.FormatVectorForPgVector(vec), string(sector),
	)
	if err != nil {
		return nil, memerr.Storage("multi-sector search sector "+string(sector), err)
	}
	return rows, nil
}

// topN sorts composite scores descending, memory id ascending on ties, and
// truncates to limit.
func topN(composite map[string]float64, limit int) []SimilarityResult {
	results := make([]SimilarityResult, 0, len(composite))
	for id, score := range composite {
		results = append(results, SimilarityResult{MemoryID: id, Sector: "composite", Similarity: score})
	}
	sortResults(results)
	if limit > 0 && len(results) > limit {
		results = results[:limit]
	}
	return results
}

func sortResults(results []SimilarityResult) {
	// Small N (candidate memories per query) — a simple insertion sort
	// keeps this dependency-free and deterministic on ties.
	for i := 1; i < len(results); i++ {
		for j := i; j > 0 && less(results[j], results[j-1]); j-- {
			results[j], results[j-1] = results[j-1], results[j]
		}
	}
}

func less(a, b SimilarityResult) bool {
	if a.Similarity != b.Similarity {
		return a.Similarity > b.Similarity
	}
	return a.MemoryID < b.MemoryID
}

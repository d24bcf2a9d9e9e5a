package memcore

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/memnexus/memcore/internal/memerr"
	"github.com/memnexus/memcore/pkg/database"
	"github.com/memnexus/memcore/pkg/graph"
)

// Memory is the primary entity (spec.md §3): a memory_links-row-linkable
// piece of stored text with the owner, session, and scoring fields the
// higher cognitive layers consume.
type Memory struct {
	ID            string
	UserID        string
	SessionID     string
	Content       string
	PrimarySector string
	Salience      float64
	Strength      float64
	AccessCount   int
	CreatedAt     time.Time
	LastAccessed  time.Time
	DeletedAt     *time.Time
}

// Link is the memory_links row: a directed, typed, weighted edge between
// two memories owned by the same user (spec.md §3).
type Link struct {
	SourceID       string
	TargetID       string
	LinkType       graph.LinkType
	Weight         float64
	CreatedAt      time.Time
	TraversalCount int
}

// repository persists the memories and memory_links tables the facade owns
// directly — the bare spec.md names these in the data model but doesn't
// assign them to one of C1-C6, so the orchestration facade owns their CRUD
// (spec.md §12 / SPEC_FULL.md §12).
type repository struct {
	db *database.Database
}

func newRepository(db *database.Database) *repository {
	return &repository{db: db}
}

func newMemoryID() string {
	return uuid.NewString()
}

func (r *repository) insertMemory(ctx context.Context, m *Memory) error {
	const q = `
INSERT INTO memories (id, user_id, session_id, content, primary_sector, salience, strength, access_count, created_at, last_accessed)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
`
	_, err := r.db.DB().ExecContext(ctx, q,
		m.ID, m.UserID, m.SessionID, m.Content, m.PrimarySector,
		m.Salience, m.Strength, m.AccessCount, m.CreatedAt, m.LastAccessed,
	)
	if err != nil {
		return memerr.Storage("insert memory "+m.ID, err)
	}
	return nil
}

type memoryRow struct {
	ID            string     `db:"id"`
	UserID        string     `db:"user_id"`
	SessionID     string     `db:"session_id"`
	Content       string     `db:"content"`
	PrimarySector string     `db:"primary_sector"`
	Salience      float64    `db:"salience"`
	Strength      float64    `db:"strength"`
	AccessCount   int        `db:"access_count"`
	CreatedAt     time.Time  `db:"created_at"`
	LastAccessed  time.Time  `db:"last_accessed"`
	DeletedAt     *time.Time `db:"deleted_at"`
}

func (row memoryRow) toMemory() Memory {
	return Memory{
		ID: row.ID, UserID: row.UserID, SessionID: row.SessionID, Content: row.Content,
		PrimarySector: row.PrimarySector, Salience: row.Salience, Strength: row.Strength,
		AccessCount: row.AccessCount, CreatedAt: row.CreatedAt, LastAccessed: row.LastAccessed,
		DeletedAt: row.DeletedAt,
	}
}

// getMemory fetches a non-tombstoned memory by id. Returns memerr.NotFound
// if absent or soft-deleted.
func (r *repository) getMemory(ctx context.Context, id string) (*Memory, error) {
	var row memoryRow
	err := r.db.DB().GetContext(ctx, &row,
		`SELECT id, user_id, session_id, content, primary_sector, salience, strength, access_count, created_at, last_accessed, deleted_at
		 FROM memories WHERE id = $1 AND deleted_at IS NULL`, id)
	if err == sql.ErrNoRows {
		return nil, memerr.NotFound("memory " + id)
	}
	if err != nil {
		return nil, memerr.Storage("get memory "+id, err)
	}
	m := row.toMemory()
	return &m, nil
}

// softDelete sets deleted_at, leaving the row (and its embeddings/links)
// in place (spec.md §3 lifecycle).
func (r *repository) softDelete(ctx context.Context, id string) error {
	res, err := r.db.DB().ExecContext(ctx, `UPDATE memories SET deleted_at = now() WHERE id = $1 AND deleted_at IS NULL`, id)
	if err != nil {
		return memerr.Storage("soft delete memory "+id, err)
	}
	return requireAffected(res, id)
}

// hardDelete removes the memory row outright; the caller is responsible for
// also clearing its embeddings and links.
func (r *repository) hardDelete(ctx context.Context, id string) error {
	res, err := r.db.DB().ExecContext(ctx, `DELETE FROM memories WHERE id = $1`, id)
	if err != nil {
		return memerr.Storage("hard delete memory "+id, err)
	}
	return requireAffected(res, id)
}

// listMemories returns up to limit non-tombstoned memories for userID,
// ordered oldest-last-accessed-first, starting strictly after after (if
// non-nil) to support cursor-based pagination.
func (r *repository) listMemories(ctx context.Context, userID string, after *cursor, limit int) ([]Memory, error) {
	var rows []memoryRow
	var err error
	const cols = `id, user_id, session_id, content, primary_sector, salience, strength, access_count, created_at, last_accessed, deleted_at`
	if after == nil {
		err = r.db.DB().SelectContext(ctx, &rows,
			`SELECT `+cols+` FROM memories
			 WHERE user_id = $1 AND deleted_at IS NULL
			 ORDER BY last_accessed ASC, id ASC
			 LIMIT $2`, userID, limit)
	} else {
		err = r.db.DB().SelectContext(ctx, &rows,
			`SELECT `+cols+` FROM memories
			 WHERE user_id = $1 AND deleted_at IS NULL
			   AND (last_accessed, id) > ($2, $3)
			 ORDER BY last_accessed ASC, id ASC
			 LIMIT $4`, userID, after.LastAccessed, after.MemoryID, limit)
	}
	if err != nil {
		return nil, memerr.Storage("list memories for user "+userID, err)
	}
	out := make([]Memory, len(rows))
	for i, row := range rows {
		out[i] = row.toMemory()
	}
	return out, nil
}

func (r *repository) deleteLinksTouching(ctx context.Context, id string) error {
	_, err := r.db.DB().ExecContext(ctx, `DELETE FROM memory_links WHERE source_id = $1 OR target_id = $1`, id)
	if err != nil {
		return memerr.Storage("delete links touching memory "+id, err)
	}
	return nil
}

func requireAffected(res sql.Result, id string) error {
	n, err := res.RowsAffected()
	if err != nil {
		return memerr.Storage("check rows affected for memory "+id, err)
	}
	if n == 0 {
		return memerr.NotFound("memory " + id)
	}
	return nil
}

// upsertLink inserts or updates one memory_links row. Link weight must be
// in [0,1] and source != target (spec.md §3 invariants); the facade
// validates these before calling in, this layer just persists.
func (r *repository) upsertLink(ctx context.Context, l Link) error {
	const q = `
INSERT INTO memory_links (source_id, target_id, link_type, weight, created_at, traversal_count)
VALUES ($1, $2, $3, $4, now(), 0)
ON CONFLICT (source_id, target_id, link_type)
DO UPDATE SET weight = EXCLUDED.weight
`
	_, err := r.db.DB().ExecContext(ctx, q, l.SourceID, l.TargetID, string(l.LinkType), l.Weight)
	if err != nil {
		return memerr.Storage(fmt.Sprintf("upsert link %s->%s", l.SourceID, l.TargetID), err)
	}
	return nil
}

type linkRow struct {
	SourceID       string    `db:"source_id"`
	TargetID       string    `db:"target_id"`
	LinkType       string    `db:"link_type"`
	Weight         float64   `db:"weight"`
	CreatedAt      time.Time `db:"created_at"`
	TraversalCount int       `db:"traversal_count"`
}

func (r *repository) outgoingLinks(ctx context.Context, id string) ([]Link, error) {
	var rows []linkRow
	err := r.db.DB().SelectContext(ctx, &rows,
		`SELECT source_id, target_id, link_type, weight, created_at, traversal_count
		 FROM memory_links WHERE source_id = $1`, id)
	if err != nil {
		return nil, memerr.Storage("outgoing links for memory "+id, err)
	}
	links := make([]Link, len(rows))
	for i, row := range rows {
		links[i] = Link{
			SourceID: row.SourceID, TargetID: row.TargetID, LinkType: graph.LinkType(row.LinkType),
			Weight: row.Weight, CreatedAt: row.CreatedAt, TraversalCount: row.TraversalCount,
		}
	}
	return links, nil
}

// graphStore adapts repository to graph.Store, so GraphTraversal never
// needs to know about sqlx or the memories/memory_links schema directly.
type graphStore struct{ repo *repository }

func (g graphStore) GetMemory(ctx context.Context, id string) (*graph.Memory, error) {
	m, err := g.repo.getMemory(ctx, id)
	if memerr.Is(err, memerr.KindNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &graph.Memory{ID: m.ID, Content: m.Content}, nil
}

func (g graphStore) OutgoingLinks(ctx context.Context, id string) ([]graph.Link, error) {
	links, err := g.repo.outgoingLinks(ctx, id)
	if err != nil {
		return nil, err
	}
	out := make([]graph.Link, len(links))
	for i, l := range links {
		out[i] = graph.Link{
			SourceID: l.SourceID, TargetID: l.TargetID, LinkType: l.LinkType,
			Weight: l.Weight, TraversalCount: l.TraversalCount,
		}
	}
	return out, nil
}

var _ graph.Store = graphStore{}

// Package memcore is the orchestration facade binding C1-C6 (TieredCache,
// EmbeddingEngine, EmbeddingStore, EmbeddingQueue, GraphTraversal) behind
// the store/recall/delete surface higher cognitive features consume
// (spec.md §1, §12). It is the boundary named there, not a cognitive
// feature itself — modelled on scrypster-memento's MemoryEngine: a
// synchronous, fast write path with async enrichment behind a job queue.
package memcore

import (
	"context"
	"time"

	"github.com/memnexus/memcore/internal/memerr"
	"github.com/memnexus/memcore/pkg/cache"
	"github.com/memnexus/memcore/pkg/database"
	"github.com/memnexus/memcore/pkg/embedding"
	"github.com/memnexus/memcore/pkg/embeddingstore"
	"github.com/memnexus/memcore/pkg/graph"
	"github.com/memnexus/memcore/pkg/observability"
	"github.com/memnexus/memcore/pkg/queue"
)

// StoreInput is the caller-supplied content for a new memory.
type StoreInput struct {
	UserID        string
	SessionID     string
	Content       string
	PrimarySector embedding.Sector
	Temporal      embedding.TemporalContext
	Emotion       embedding.EmotionState
	Reflect       embedding.ReflectiveContext
}

// RecallQuery selects which sectors to search and how to weight them.
type RecallQuery struct {
	UserID  string
	Text    string
	Weights map[embedding.Sector]float64
	Limit   int
	// ExpandDepth, when > 0, expands each hit through the graph up to that
	// many hops and folds the expansion into the ranked result.
	ExpandDepth int
}

// RankedMemory is one recall result: the memory plus its composite score
// and, when ExpandDepth > 0, the memories reached from it by graph
// expansion.
type RankedMemory struct {
	Memory    Memory
	Score     float64
	Expansion []graph.Memory
}

// MemoryCore binds the six core components behind StoreMemory/Recall/
// DeleteMemory.
type MemoryCore struct {
	repo      *repository
	cache     *cache.TieredCache
	engine    *embedding.Engine
	store     *embeddingstore.Store
	queue     *queue.Queue
	traversal *graph.Traversal
	logger    observability.Logger
}

// New wires a MemoryCore from its already-constructed collaborators. db is
// used directly by the facade for the memories/memory_links tables; the
// other components own their own storage concerns.
func New(db *database.Database, c *cache.TieredCache, engine *embedding.Engine, store *embeddingstore.Store, q *queue.Queue, logger observability.Logger) *MemoryCore {
	if logger == nil {
		logger = observability.NewNoopLogger()
	}
	repo := newRepository(db)
	mc := &MemoryCore{
		repo:      repo,
		cache:     c,
		engine:    engine,
		store:     store,
		queue:     q,
		traversal: graph.New(graphStore{repo: repo}, logger),
		logger:    logger,
	}
	q.SetGenerator(mc.generateAndPersist)
	return mc
}

// StoreMemory persists the memory row synchronously, then enqueues
// embedding generation so the write path returns quickly (spec.md §2's
// write data flow).
func (mc *MemoryCore) StoreMemory(ctx context.Context, in StoreInput) (Memory, error) {
	if in.Content == "" {
		return Memory{}, memerr.Validation("content must not be empty")
	}
	if in.UserID == "" {
		return Memory{}, memerr.Validation("user_id is required")
	}

	sector := in.PrimarySector
	if sector == "" {
		sector = embedding.SectorSemantic
	}

	now := time.Now()
	m := Memory{
		ID:            newMemoryID(),
		UserID:        in.UserID,
		SessionID:     in.SessionID,
		Content:       in.Content,
		PrimarySector: string(sector),
		CreatedAt:     now,
		LastAccessed:  now,
	}

	if err := mc.repo.insertMemory(ctx, &m); err != nil {
		return Memory{}, err
	}

	mc.queue.Enqueue(m.ID, m.Content, string(sector), m.UserID)
	return m, nil
}

// generateAndPersist is the queue's Generator: the full generate-and-store
// cycle for one memory, driven by the background worker pool (spec.md
// §4.4). It regenerates all five sectors — the queue is keyed by
// memory_id, not by an individual sector, mirroring spec.md's data-flow
// diagram (EmbeddingQueue -> EmbeddingEngine.generate_all -> EmbeddingStore).
func (mc *MemoryCore) generateAndPersist(ctx context.Context, memoryID, content, sector string) error {
	vectors, err := mc.engine.GenerateAll(ctx, embedding.MemoryInput{Text: content})
	if err != nil {
		return err
	}
	return mc.store.Store(ctx, memoryID, vectors, mc.engine.ModelName())
}

// Recall generates query vectors for every weighted sector, runs a
// composite multi-sector search, and optionally expands each hit through
// the graph (spec.md §2's read data flow).
func (mc *MemoryCore) Recall(ctx context.Context, q RecallQuery) ([]RankedMemory, error) {
	if q.Text == "" {
		return nil, memerr.Validation("query text must not be empty")
	}
	if len(q.Weights) == 0 {
		return nil, memerr.Validation("at least one sector weight is required")
	}

	queryVectors := map[embedding.Sector][]float32{}
	for sector, weight := range q.Weights {
		if weight <= 0 {
			continue
		}
		vec, err := mc.generateForSector(ctx, sector, q.Text)
		if err != nil {
			return nil, err
		}
		queryVectors[sector] = vec
	}

	hits, err := mc.store.MultiSectorSearch(ctx, queryVectors, q.Weights, q.Limit)
	if err != nil {
		return nil, err
	}

	ranked := make([]RankedMemory, 0, len(hits))
	for _, hit := range hits {
		m, err := mc.repo.getMemory(ctx, hit.MemoryID)
		if memerr.Is(err, memerr.KindNotFound) {
			continue
		}
		if err != nil {
			return nil, err
		}
		rm := RankedMemory{Memory: *m, Score: hit.Similarity}
		if q.ExpandDepth > 0 {
			rm.Expansion = mc.traversal.ExpandViaWaypoint(ctx, hit.MemoryID, q.ExpandDepth)
		}
		ranked = append(ranked, rm)
	}
	return ranked, nil
}

func (mc *MemoryCore) generateForSector(ctx context.Context, sector embedding.Sector, text string) ([]float32, error) {
	switch sector {
	case embedding.SectorEpisodic:
		return mc.engine.GenerateEpisodic(ctx, text, embedding.TemporalContext{})
	case embedding.SectorProcedural:
		return mc.engine.GenerateProcedural(ctx, text)
	case embedding.SectorEmotional:
		return mc.engine.GenerateEmotional(ctx, text, embedding.EmotionState{})
	case embedding.SectorReflective:
		return mc.engine.GenerateReflective(ctx, text, embedding.ReflectiveContext{})
	default:
		return mc.engine.GenerateSemantic(ctx, text)
	}
}

// DeleteMemory implements spec.md §3's soft/hard lifecycle bullet: soft
// delete tombstones the row (embeddings and links survive for possible
// restore); hard delete removes the memory, its embeddings, and every link
// touching it.
func (mc *MemoryCore) DeleteMemory(ctx context.Context, id string, hard bool) error {
	if !hard {
		return mc.repo.softDelete(ctx, id)
	}

	if err := mc.store.Delete(ctx, id); err != nil {
		return err
	}
	if err := mc.repo.deleteLinksTouching(ctx, id); err != nil {
		return err
	}
	return mc.repo.hardDelete(ctx, id)
}

// MemoryPage is one page of a cursor-paginated listing: the memories and an
// opaque cursor to pass back as ListMemories' after argument for the next
// page, empty once the listing is exhausted.
type MemoryPage struct {
	Memories   []Memory
	NextCursor string
}

// ListMemories returns memories for userID in pages of up to limit,
// ordered by last access. after is an opaque cursor previously returned as
// NextCursor, or empty for the first page (spec.md §6's cursor format).
func (mc *MemoryCore) ListMemories(ctx context.Context, userID string, after string, limit int) (MemoryPage, error) {
	if userID == "" {
		return MemoryPage{}, memerr.Validation("user_id is required")
	}
	if limit <= 0 {
		limit = 50
	}

	var afterCursor *cursor
	if after != "" {
		c, err := decodeCursor(after)
		if err != nil {
			return MemoryPage{}, err
		}
		afterCursor = &c
	}

	memories, err := mc.repo.listMemories(ctx, userID, afterCursor, limit)
	if err != nil {
		return MemoryPage{}, err
	}

	page := MemoryPage{Memories: memories}
	if len(memories) == limit {
		last := memories[len(memories)-1]
		page.NextCursor = encodeCursor(cursor{LastAccessed: last.LastAccessed, MemoryID: last.ID})
	}
	return page, nil
}

// CreateLink upserts a weighted, typed edge between two memories owned by
// the same user, populating memory_links so GraphTraversal (C6) has
// something to walk (spec.md §3 invariants: weight in [0,1], source !=
// target).
func (mc *MemoryCore) CreateLink(ctx context.Context, sourceID, targetID string, linkType graph.LinkType, weight float64) error {
	if sourceID == "" || targetID == "" {
		return memerr.Validation("source_id and target_id are required")
	}
	if sourceID == targetID {
		return memerr.Validation("source_id and target_id must differ")
	}
	if weight < 0 || weight > 1 {
		return memerr.Validation("weight must be in [0,1]")
	}
	switch linkType {
	case graph.LinkSemantic, graph.LinkCausal, graph.LinkTemporal, graph.LinkAnalogical:
	default:
		return memerr.Validation("unrecognised link type " + string(linkType))
	}
	return mc.repo.upsertLink(ctx, Link{SourceID: sourceID, TargetID: targetID, LinkType: linkType, Weight: weight})
}

// Traversal exposes the bound GraphTraversal for callers that need direct
// path queries beyond what Recall folds in.
func (mc *MemoryCore) Traversal() *graph.Traversal {
	return mc.traversal
}

// Queue exposes the bound EmbeddingQueue for health/stats reporting.
func (mc *MemoryCore) Queue() *queue.Queue {
	return mc.queue
}

// Package graph implements GraphTraversal (C6): BFS/DFS expansion, shortest
// path search, and human-readable path explanation over the directed,
// typed, weighted memory-link graph.
package graph

import (
	"context"
	"fmt"
	"strings"

	"github.com/memnexus/memcore/pkg/observability"
)

// Memory is the minimal view GraphTraversal needs of a memory node.
type Memory struct {
	ID      string
	Content string
}

// LinkType is one of the four typed edges spec.md §3 names.
type LinkType string

const (
	LinkSemantic   LinkType = "semantic"
	LinkCausal     LinkType = "causal"
	LinkTemporal   LinkType = "temporal"
	LinkAnalogical LinkType = "analogical"
)

// Link is a directed, typed, weighted edge between two memories.
type Link struct {
	SourceID       string
	TargetID       string
	LinkType       LinkType
	Weight         float64
	TraversalCount int
}

// Store is the persistence dependency GraphTraversal needs: fetch one
// memory by id, and fetch the outgoing links from one memory. Errors from
// either are handled per-step by the traversal (spec.md §4.5) — Store
// implementations should return a plain error; the traversal never
// inspects its kind beyond success/failure.
type Store interface {
	GetMemory(ctx context.Context, id string) (*Memory, error)
	OutgoingLinks(ctx context.Context, id string) ([]Link, error)
}

// Traversal implements GraphTraversal (C6) over a Store.
type Traversal struct {
	store  Store
	logger observability.Logger
}

// New constructs a Traversal bound to store.
func New(store Store, logger observability.Logger) *Traversal {
	if logger == nil {
		logger = observability.NewNoopLogger()
	}
	return &Traversal{store: store, logger: logger}
}

// Mode selects the search discipline for ConnectedMemories.
type Mode string

const (
	ModeBreadth Mode = "breadth"
	ModeDepth   Mode = "depth"
)

// Options configures ConnectedMemories (spec.md §4.5).
type Options struct {
	MaxDepth     int
	MinWeight    float64
	Traversal    Mode
	IncludePaths bool
}

// Path is an ordered walk through the graph: len(Memories) == len(Links)+1.
type Path struct {
	Memories []Memory
	Links    []Link
}

// ConnectedResult is the output of ConnectedMemories.
type ConnectedResult struct {
	Memories     []Memory
	VisitedCount int
	Paths        []Path // populated only when Options.IncludePaths is true
}

type visitEntry struct {
	id    string
	depth int
}

// ConnectedMemories expands the graph from startID per opts, using BFS or
// DFS as selected. The root is always included. A failure to fetch the
// start memory returns an empty result; a failure to fetch outgoing links
// from some node terminates expansion from that node only (spec.md §4.5).
func (t *Traversal) ConnectedMemories(ctx context.Context, startID string, opts Options) ConnectedResult {
	start, err := t.store.GetMemory(ctx, startID)
	if err != nil || start == nil {
		t.logger.Warn("graph traversal: start memory unavailable", map[string]interface{}{"id": startID})
		return ConnectedResult{}
	}

	visited := map[string]bool{startID: true}
	result := ConnectedResult{Memories: []Memory{*start}}
	cameFrom := map[string]Link{} // target id -> link used to reach it, for path materialisation

	frontier := []visitEntry{{id: startID, depth: 0}}

	for len(frontier) > 0 {
		var current visitEntry
		if opts.Traversal == ModeDepth {
			current = frontier[len(frontier)-1]
			frontier = frontier[:len(frontier)-1]
		} else {
			current = frontier[0]
			frontier = frontier[1:]
		}

		links, err := t.store.OutgoingLinks(ctx, current.id)
		if err != nil {
			t.logger.Warn("graph traversal: outgoing links unavailable", map[string]interface{}{"id": current.id})
			continue
		}

		for _, link := range links {
			if link.Weight < opts.MinWeight {
				continue
			}
			if current.depth+1 > opts.MaxDepth {
				continue
			}
			if visited[link.TargetID] {
				continue
			}

			mem, err := t.store.GetMemory(ctx, link.TargetID)
			if err != nil || mem == nil {
				continue
			}

			visited[link.TargetID] = true
			result.Memories = append(result.Memories, *mem)
			cameFrom[link.TargetID] = link
			frontier = append(frontier, visitEntry{id: link.TargetID, depth: current.depth + 1})
		}
	}

	result.VisitedCount = len(visited)

	if opts.IncludePaths {
		result.Paths = materializePaths(startID, result.Memories, cameFrom)
	}

	return result
}

// materializePaths reconstructs, for every non-root visited memory, the
// path from the root to it using the cameFrom link map.
func materializePaths(startID string, memories []Memory, cameFrom map[string]Link) []Path {
	byID := make(map[string]Memory, len(memories))
	for _, m := range memories {
		byID[m.ID] = m
	}

	var paths []Path
	for _, m := range memories {
		if m.ID == startID {
			continue
		}
		var links []Link
		var ids []string
		cur := m.ID
		for cur != startID {
			link, ok := cameFrom[cur]
			if !ok {
				break
			}
			links = append([]Link{link}, links...)
			ids = append([]string{cur}, ids...)
			cur = link.SourceID
		}
		ids = append([]string{startID}, ids...)

		path := Path{}
		for _, id := range ids {
			path.Memories = append(path.Memories, byID[id])
		}
		path.Links = links
		paths = append(paths, path)
	}
	return paths
}

// FindPath returns the minimum-hop path from sourceID to targetID within
// maxDepth, or nil if none exists. A path to self is a zero-link path
// containing only the source (spec.md §4.5).
func (t *Traversal) FindPath(ctx context.Context, sourceID, targetID string, maxDepth int) *Path {
	source, err := t.store.GetMemory(ctx, sourceID)
	if err != nil || source == nil {
		return nil
	}

	if sourceID == targetID {
		return &Path{Memories: []Memory{*source}}
	}

	type frame struct {
		id    string
		path  []Link
		depth int
	}

	visited := map[string]bool{sourceID: true}
	queue := []frame{{id: sourceID, depth: 0}}

	for len(queue) > 0 {
		cur := queue[0]
		queue = queue[1:]

		if cur.depth >= maxDepth {
			continue
		}

		links, err := t.store.OutgoingLinks(ctx, cur.id)
		if err != nil {
			continue
		}

		for _, link := range links {
			if visited[link.TargetID] {
				continue
			}
			nextPath := append(append([]Link{}, cur.path...), link)

			if link.TargetID == targetID {
				return buildPath(ctx, t.store, sourceID, nextPath)
			}

			visited[link.TargetID] = true
			queue = append(queue, frame{id: link.TargetID, path: nextPath, depth: cur.depth + 1})
		}
	}

	return nil
}

func buildPath(ctx context.Context, store Store, sourceID string, links []Link) *Path {
	ids := []string{sourceID}
	for _, l := range links {
		ids = append(ids, l.TargetID)
	}
	memories := make([]Memory, 0, len(ids))
	for _, id := range ids {
		m, err := store.GetMemory(ctx, id)
		if err != nil || m == nil {
			return nil
		}
		memories = append(memories, *m)
	}
	return &Path{Memories: memories, Links: links}
}

// ExpandViaWaypoint returns every memory reachable within exactly [0, hops]
// hops of startID. hops == 0 returns just the start; hops < 0 returns
// empty (spec.md §4.5).
func (t *Traversal) ExpandViaWaypoint(ctx context.Context, startID string, hops int) []Memory {
	if hops < 0 {
		return nil
	}
	result := t.ConnectedMemories(ctx, startID, Options{MaxDepth: hops, Traversal: ModeBreadth})
	return result.Memories
}

const explainContentLimit = 60

// truncateContent renders content at most explainContentLimit runes, with a
// "..." suffix when it was cut.
func truncateContent(content string) string {
	runes := []rune(content)
	if len(runes) <= explainContentLimit {
		return content
	}
	return string(runes[:explainContentLimit]) + "..."
}

// ExplainPath renders a Path as a human-readable string (spec.md §4.5):
// "No path found" when empty, a single truncated content for a zero-link
// path, and a chain of "--[type, w=X.XX]-->" arrows for a multi-memory path.
func ExplainPath(p Path) string {
	if len(p.Memories) == 0 {
		return "No path found"
	}
	if len(p.Memories) == 1 {
		return truncateContent(p.Memories[0].Content)
	}

	var b strings.Builder
	b.WriteString(truncateContent(p.Memories[0].Content))
	for i, link := range p.Links {
		fmt.Fprintf(&b, " --[%s, w=%.2f]--> ", link.LinkType, link.Weight)
		b.WriteString(truncateContent(p.Memories[i+1].Content))
	}
	return b.String()
}

package embedding

import (
	"context"
	"sync"
	"time"

	"github.com/memnexus/memcore/internal/memerr"
	"github.com/memnexus/memcore/pkg/cache"
	"github.com/memnexus/memcore/pkg/observability"
)

// SectorEmbeddings is the ordered five-vector record spec.md §3 names:
// one vector per sector, all sharing the same dimension for a given memory.
type SectorEmbeddings struct {
	Episodic   []float32
	Semantic   []float32
	Procedural []float32
	Emotional  []float32
	Reflective []float32
}

// Get returns the vector stored for sector, or nil if unset.
func (s SectorEmbeddings) Get(sector Sector) []float32 {
	switch sector {
	case SectorEpisodic:
		return s.Episodic
	case SectorSemantic:
		return s.Semantic
	case SectorProcedural:
		return s.Procedural
	case SectorEmotional:
		return s.Emotional
	case SectorReflective:
		return s.Reflective
	default:
		return nil
	}
}

// Set assigns the vector for sector.
func (s *SectorEmbeddings) Set(sector Sector, v []float32) {
	switch sector {
	case SectorEpisodic:
		s.Episodic = v
	case SectorSemantic:
		s.Semantic = v
	case SectorProcedural:
		s.Procedural = v
	case SectorEmotional:
		s.Emotional = v
	case SectorReflective:
		s.Reflective = v
	}
}

// MemoryInput bundles the raw text and all per-sector contexts needed to
// run generate_all / batch_generate against one memory.
type MemoryInput struct {
	Text     string
	Temporal TemporalContext
	Emotion  EmotionState
	Reflect  ReflectiveContext
}

// future is the in-flight request deduplication primitive spec.md §4.2
// names "pending_future": the first caller for a cache key creates it and
// runs the model; every other caller for the same key blocks on done and
// reads the shared result.
type future struct {
	done   chan struct{}
	result []float32
	err    error
}

// Engine is the EmbeddingEngine (C3): turns (text, sector_context) into a
// cached, deduplicated, optionally batched vector.
type Engine struct {
	cache      *cache.TieredCache
	defaultTTL time.Duration
	logger     observability.Logger

	mu       sync.Mutex
	model    Model
	inflight map[string]*future
}

// NewEngine constructs an Engine bound to the given cache and model.
// defaultTTL governs how long a sector vector stays cached.
func NewEngine(c *cache.TieredCache, model Model, defaultTTL time.Duration, logger observability.Logger) *Engine {
	if logger == nil {
		logger = observability.NewNoopLogger()
	}
	if defaultTTL <= 0 {
		defaultTTL = 5 * time.Minute
	}
	return &Engine{
		cache:      c,
		defaultTTL: defaultTTL,
		logger:     logger,
		model:      model,
		inflight:   make(map[string]*future),
	}
}

// LoadModel atomically swaps the active model and wipes the cache, since
// cached vectors depend on the prior model's dimension (spec.md §4.2).
func (e *Engine) LoadModel(ctx context.Context, model Model) error {
	e.mu.Lock()
	e.model = model
	e.mu.Unlock()
	return e.cache.Clear(ctx)
}

func (e *Engine) currentModel() Model {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.model
}

// ModelName returns the active model's name, for callers that persist it
// alongside generated vectors (e.g. EmbeddingStore.Store's model_name
// column).
func (e *Engine) ModelName() string {
	return e.currentModel().Name()
}

// sectorCacheKey builds the 16-hex digest cache key for (sector, text,
// contextParams), per spec.md §4.2's cache key contract.
func sectorCacheKey(sector Sector, text string, contextParams map[string]any) string {
	payload := map[string]any{
		"sector":  string(sector),
		"text":    text,
		"context": contextParams,
	}
	return cache.Digest(payload)
}

// generate is the shared path behind every generate_* operation: check
// cache, then in-flight futures, then invoke the model — collapsing any
// number of concurrent identical requests into exactly one model call.
func (e *Engine) generate(ctx context.Context, sector Sector, augmentedText string, cacheKey string) ([]float32, error) {
	var cached []float32
	if found, err := e.cache.Get(ctx, cacheKey, &cached); err == nil && found {
		return cached, nil
	}

	e.mu.Lock()
	if f, ok := e.inflight[cacheKey]; ok {
		e.mu.Unlock()
		<-f.done
		return f.result, f.err
	}
	f := &future{done: make(chan struct{})}
	e.inflight[cacheKey] = f
	e.mu.Unlock()

	result, err := e.currentModel().Generate(ctx, augmentedText)

	e.mu.Lock()
	delete(e.inflight, cacheKey)
	e.mu.Unlock()

	f.result, f.err = result, err
	close(f.done)

	if err != nil {
		return nil, err
	}
	if setErr := e.cache.Set(ctx, cacheKey, result, e.defaultTTL); setErr != nil {
		e.logger.Warn("embedding cache write failed", map[string]interface{}{"sector": string(sector), "error": setErr.Error()})
	}
	return result, nil
}

func (e *Engine) GenerateEpisodic(ctx context.Context, text string, temporal TemporalContext) ([]float32, error) {
	if text == "" {
		return nil, memerr.Validation("text must not be empty")
	}
	key := sectorCacheKey(SectorEpisodic, text, temporalDigestParams(temporal))
	return e.generate(ctx, SectorEpisodic, augmentEpisodic(text, temporal), key)
}

func (e *Engine) GenerateSemantic(ctx context.Context, text string) ([]float32, error) {
	if text == "" {
		return nil, memerr.Validation("text must not be empty")
	}
	key := sectorCacheKey(SectorSemantic, text, nil)
	return e.generate(ctx, SectorSemantic, augmentSemantic(text), key)
}

func (e *Engine) GenerateProcedural(ctx context.Context, text string) ([]float32, error) {
	if text == "" {
		return nil, memerr.Validation("text must not be empty")
	}
	key := sectorCacheKey(SectorProcedural, text, nil)
	return e.generate(ctx, SectorProcedural, augmentProcedural(text), key)
}

func (e *Engine) GenerateEmotional(ctx context.Context, text string, state EmotionState) ([]float32, error) {
	if text == "" {
		return nil, memerr.Validation("text must not be empty")
	}
	key := sectorCacheKey(SectorEmotional, text, emotionDigestParams(state))
	return e.generate(ctx, SectorEmotional, augmentEmotional(text, state), key)
}

func (e *Engine) GenerateReflective(ctx context.Context, text string, insights ReflectiveContext) ([]float32, error) {
	if text == "" {
		return nil, memerr.Validation("text must not be empty")
	}
	key := sectorCacheKey(SectorReflective, text, reflectiveDigestParams(insights))
	return e.generate(ctx, SectorReflective, augmentReflective(text, insights), key)
}

type sectorJob struct {
	sector        Sector
	augmentedText string
	cacheKey      string
}

// sectorMiss pairs a sectorJob with its original slot index in the
// five-element job array, so results can be written back in order after
// an out-of-order batch or parallel resolution.
type sectorMiss struct {
	job sectorJob
	idx int
}

func (e *Engine) sectorJobs(in MemoryInput) [5]sectorJob {
	return [5]sectorJob{
		{SectorEpisodic, augmentEpisodic(in.Text, in.Temporal), sectorCacheKey(SectorEpisodic, in.Text, temporalDigestParams(in.Temporal))},
		{SectorSemantic, augmentSemantic(in.Text), sectorCacheKey(SectorSemantic, in.Text, nil)},
		{SectorProcedural, augmentProcedural(in.Text), sectorCacheKey(SectorProcedural, in.Text, nil)},
		{SectorEmotional, augmentEmotional(in.Text, in.Emotion), sectorCacheKey(SectorEmotional, in.Text, emotionDigestParams(in.Emotion))},
		{SectorReflective, augmentReflective(in.Text, in.Reflect), sectorCacheKey(SectorReflective, in.Text, reflectiveDigestParams(in.Reflect))},
	}
}

// GenerateAll computes all five sector vectors for one memory, partitioning
// into cache hits and misses and using the model's batch mode when there
// are at least two misses (spec.md §4.2's batch optimisation rule).
func (e *Engine) GenerateAll(ctx context.Context, in MemoryInput) (SectorEmbeddings, error) {
	if in.Text == "" {
		return SectorEmbeddings{}, memerr.Validation("text must not be empty")
	}

	jobs := e.sectorJobs(in)
	var result SectorEmbeddings
	var misses []sectorMiss

	for i, j := range jobs {
		var cached []float32
		found, err := e.cache.Get(ctx, j.cacheKey, &cached)
		if err == nil && found {
			result.Set(j.sector, cached)
			continue
		}
		misses = append(misses, sectorMiss{job: j, idx: i})
	}

	if len(misses) == 0 {
		return result, nil
	}

	if len(misses) >= 2 {
		texts := make([]string, len(misses))
		for i, m := range misses {
			texts[i] = m.job.augmentedText
		}
		vectors, err := e.generateBatchDeduped(ctx, misses, texts)
		if err != nil {
			return SectorEmbeddings{}, err
		}
		for i, m := range misses {
			result.Set(m.job.sector, vectors[i])
		}
		return result, nil
	}

	// Exactly one miss: resolve it through the normal dedup/cache path.
	type outcome struct {
		idx    int
		sector Sector
		vec    []float32
		err    error
	}
	outcomes := make(chan outcome, len(misses))
	for _, m := range misses {
		m := m
		go func() {
			v, err := e.generate(ctx, m.job.sector, m.job.augmentedText, m.job.cacheKey)
			outcomes <- outcome{idx: m.idx, sector: m.job.sector, vec: v, err: err}
		}()
	}
	for range misses {
		o := <-outcomes
		if o.err != nil {
			return SectorEmbeddings{}, o.err
		}
		result.Set(o.sector, o.vec)
	}
	return result, nil
}

// generateBatchDeduped runs the misses through model.GenerateBatch as a
// single call, then populates the cache per sector afterward.
func (e *Engine) generateBatchDeduped(ctx context.Context, misses []sectorMiss, texts []string) ([][]float32, error) {
	vectors, err := e.currentModel().GenerateBatch(ctx, texts)
	if err != nil {
		return nil, err
	}
	for i, m := range misses {
		if setErr := e.cache.Set(ctx, m.job.cacheKey, vectors[i], e.defaultTTL); setErr != nil {
			e.logger.Warn("embedding cache write failed", map[string]interface{}{"sector": string(m.job.sector), "error": setErr.Error()})
		}
	}
	return vectors, nil
}

// BatchGenerate runs generate_all over a slice of memories. Each memory's
// five sectors still go through the same cache/dedup/batch path
// independently.
func (e *Engine) BatchGenerate(ctx context.Context, inputs []MemoryInput) ([]SectorEmbeddings, error) {
	results := make([]SectorEmbeddings, len(inputs))
	for i, in := range inputs {
		r, err := e.GenerateAll(ctx, in)
		if err != nil {
			return nil, err
		}
		results[i] = r
	}
	return results, nil
}

package embedder

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/semaphore"
	"golang.org/x/sync/singleflight"

	"github.com/dshills/hybridsearch/internal/provider"
	"github.com/dshills/hybridsearch/internal/registry"
	"github.com/dshills/hybridsearch/internal/telemetry"
	"github.com/dshills/hybridsearch/pkg/types"
)

// Common errors
var (
	ErrEmptyText  = errors.New("text cannot be empty")
	ErrEmptyBatch = errors.New("batch cannot be empty")
)

// defaultChunkWorkers bounds how many batch chunks are in flight at
// once on top of the per-backend semaphores.
const defaultChunkWorkers = 4

// Result is the outcome of a single-text Embed call.
type Result struct {
	Vector      []float32
	BackendUsed string
	Model       string
	CacheHit    bool
	Latency     time.Duration
	Failovers   int
}

// BatchResult is the outcome of an EmbedBatch call.
type BatchResult struct {
	Vectors     [][]float32
	BackendUsed string // last backend that served a chunk
	Model       string
	CacheHits   int
	Latency     time.Duration
	Failovers   int
}

// ClientFactory builds a provider client for a descriptor. Replaced in
// tests to inject deterministic or failing clients.
type ClientFactory func(registry.Descriptor) (provider.Client, error)

// Gateway turns text into vectors. It consults the embedding cache
// first, then walks the registry's priority-ordered enabled backends
// with retry, backoff, and failover. Concurrent misses on the same key
// collapse into one upstream call.
type Gateway struct {
	registry *registry.Registry
	cache    *Cache
	factory  ClientFactory
	metrics  *telemetry.Metrics
	logger   *slog.Logger

	flight singleflight.Group

	mu      sync.Mutex
	clients map[string]provider.Client
	sems    map[string]*semaphore.Weighted
	stats   map[string]*backendCounters

	chunkWorkers int
}

type backendCounters struct {
	requests  atomic.Int64
	errors    atomic.Int64
	failovers atomic.Int64
}

// BackendStats is a snapshot of one backend's counters.
type BackendStats struct {
	Requests  int64
	Errors    int64
	Failovers int64
}

// GatewayStats is the gateway health snapshot for operational tooling.
type GatewayStats struct {
	Cache    CacheStats
	Backends map[string]BackendStats
}

// Option configures a Gateway.
type Option func(*Gateway)

// WithMetrics attaches telemetry counters.
func WithMetrics(m *telemetry.Metrics) Option {
	return func(g *Gateway) { g.metrics = m }
}

// WithLogger sets the gateway logger.
func WithLogger(l *slog.Logger) Option {
	return func(g *Gateway) { g.logger = l }
}

// WithClientFactory replaces the provider client factory.
func WithClientFactory(fn ClientFactory) Option {
	return func(g *Gateway) { g.factory = fn }
}

// WithChunkWorkers bounds concurrent batch chunks.
func WithChunkWorkers(n int) Option {
	return func(g *Gateway) {
		if n > 0 {
			g.chunkWorkers = n
		}
	}
}

// NewGateway creates a gateway over the given registry and cache.
func NewGateway(reg *registry.Registry, cache *Cache, opts ...Option) *Gateway {
	g := &Gateway{
		registry:     reg,
		cache:        cache,
		factory:      provider.New,
		logger:       slog.Default().With("component", "embedding-gateway"),
		clients:      make(map[string]provider.Client),
		sems:         make(map[string]*semaphore.Weighted),
		stats:        make(map[string]*backendCounters),
		chunkWorkers: defaultChunkWorkers,
	}
	for _, opt := range opts {
		opt(g)
	}
	return g
}

// Embed generates one vector for text using model. An empty model
// defaults to the primary backend's DefaultModel. The second identical
// call is served from cache and reports CacheHit.
func (g *Gateway) Embed(ctx context.Context, text, model string) (*Result, error) {
	start := time.Now()

	if !g.registry.FeatureEnabled() {
		return nil, types.ErrEmbeddingDisabled
	}

	normalized := normalize(text)
	if normalized == "" {
		return nil, ErrEmptyText
	}

	model, err := g.resolveModel(model)
	if err != nil {
		return nil, err
	}

	key := cacheKey(normalized, model)
	if vector, ok := g.cache.Get(key, g.expectDim(model)); ok {
		return &Result{
			Vector:   vector,
			Model:    model,
			CacheHit: true,
			Latency:  time.Since(start),
		}, nil
	}

	// Single-flight: concurrent misses on the same key share one
	// upstream embedding call.
	v, err, _ := g.flight.Do(key, func() (interface{}, error) {
		vectors, used, failovers, upErr := g.embedUpstream(ctx, []string{normalized}, model)
		if upErr != nil {
			return nil, upErr
		}
		g.cache.Put(key, vectors[0], used.CacheTTL)
		return &flightResult{vector: vectors[0], backend: used.Name, failovers: failovers}, nil
	})
	if err != nil {
		return nil, err
	}

	fr := v.(*flightResult)
	vector := make([]float32, len(fr.vector))
	copy(vector, fr.vector)

	return &Result{
		Vector:      vector,
		BackendUsed: fr.backend,
		Model:       model,
		Latency:     time.Since(start),
		Failovers:   fr.failovers,
	}, nil
}

type flightResult struct {
	vector    []float32
	backend   string
	failovers int
}

// EmbedBatch generates vectors for texts, splitting cache misses into
// per-backend sized chunks. Each chunk is retried and failed over
// independently, so one bad chunk does not discard vectors already
// produced and cached by its siblings.
func (g *Gateway) EmbedBatch(ctx context.Context, texts []string, model string) (*BatchResult, error) {
	start := time.Now()

	if !g.registry.FeatureEnabled() {
		return nil, types.ErrEmbeddingDisabled
	}
	if len(texts) == 0 {
		return nil, ErrEmptyBatch
	}

	model, err := g.resolveModel(model)
	if err != nil {
		return nil, err
	}

	normalized := make([]string, len(texts))
	keys := make([]string, len(texts))
	for i, text := range texts {
		normalized[i] = normalize(text)
		if normalized[i] == "" {
			return nil, fmt.Errorf("%w: text at index %d", ErrEmptyText, i)
		}
		keys[i] = cacheKey(normalized[i], model)
	}

	vectors := make([][]float32, len(texts))
	expect := g.expectDim(model)
	cacheHits := 0
	var missIdx []int
	for i, key := range keys {
		if v, ok := g.cache.Get(key, expect); ok {
			vectors[i] = v
			cacheHits++
		} else {
			missIdx = append(missIdx, i)
		}
	}

	result := &BatchResult{
		Vectors:   vectors,
		Model:     model,
		CacheHits: cacheHits,
	}

	if len(missIdx) == 0 {
		result.Latency = time.Since(start)
		return result, nil
	}

	var (
		mu          sync.Mutex
		failures    []string
		failovers   int
		backendUsed string
	)

	var eg errgroup.Group
	eg.SetLimit(g.chunkWorkers)

	for _, chunk := range chunkIndexes(missIdx, g.chunkSize(model)) {
		chunk := chunk
		eg.Go(func() error {
			chunkTexts := make([]string, len(chunk))
			for j, idx := range chunk {
				chunkTexts[j] = normalized[idx]
			}

			vecs, used, fos, upErr := g.embedUpstream(ctx, chunkTexts, model)

			mu.Lock()
			defer mu.Unlock()
			failovers += fos
			if upErr != nil {
				// Record and keep going: sibling chunks that already
				// succeeded stay cached and returned.
				failures = append(failures,
					fmt.Sprintf("chunk [%d..%d]: %v", chunk[0], chunk[len(chunk)-1], upErr))
				return nil
			}
			backendUsed = used.Name
			for j, idx := range chunk {
				vectors[idx] = vecs[j]
				g.cache.Put(keys[idx], vecs[j], used.CacheTTL)
			}
			return nil
		})
	}
	_ = eg.Wait()

	result.BackendUsed = backendUsed
	result.Failovers = failovers
	result.Latency = time.Since(start)

	if len(failures) > 0 {
		return result, fmt.Errorf("%w: %s", types.ErrEmbeddingUnavailable, strings.Join(failures, "; "))
	}
	return result, nil
}

// Stats returns the gateway health snapshot.
func (g *Gateway) Stats() GatewayStats {
	g.mu.Lock()
	defer g.mu.Unlock()

	backends := make(map[string]BackendStats, len(g.stats))
	for name, c := range g.stats {
		backends[name] = BackendStats{
			Requests:  c.requests.Load(),
			Errors:    c.errors.Load(),
			Failovers: c.failovers.Load(),
		}
	}
	return GatewayStats{
		Cache:    g.cache.Stats(),
		Backends: backends,
	}
}

// Close releases all provider clients.
func (g *Gateway) Close() error {
	g.mu.Lock()
	defer g.mu.Unlock()

	var firstErr error
	for _, client := range g.clients {
		if err := client.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	g.clients = make(map[string]provider.Client)
	return firstErr
}

// embedUpstream walks the enabled-backend snapshot for one chunk of
// texts, driving the failover state machine until success or
// exhaustion.
func (g *Gateway) embedUpstream(ctx context.Context, texts []string, model string) ([][]float32, registry.Descriptor, int, error) {
	snapshot := g.registry.EnabledOrdered()
	if len(snapshot) == 0 {
		return nil, registry.Descriptor{}, 0,
			fmt.Errorf("%w: no backends enabled", types.ErrEmbeddingUnavailable)
	}

	candidates := make([]registry.Descriptor, 0, len(snapshot))
	for _, desc := range snapshot {
		if desc.SupportsModel(model) {
			candidates = append(candidates, desc)
		}
	}
	if len(candidates) == 0 {
		return nil, registry.Descriptor{}, 0,
			fmt.Errorf("%w: no enabled backend supports model %q", types.ErrEmbeddingUnavailable, model)
	}

	fo := newFailover(candidates)
	for {
		switch fo.State() {
		case StateExhausted:
			return nil, registry.Descriptor{}, fo.Failovers(),
				fmt.Errorf("%w: tried %d backends, last error: %v",
					types.ErrEmbeddingUnavailable, len(candidates), fo.LastErr())
		case StateRetrying:
			select {
			case <-ctx.Done():
				return nil, registry.Descriptor{}, fo.Failovers(),
					fmt.Errorf("%w: %v", types.ErrEmbeddingUnavailable, ctx.Err())
			case <-time.After(fo.Backoff()):
			}
		}

		desc, _ := fo.Current()
		vectors, err := g.callBackend(ctx, desc, model, texts)
		if err == nil {
			fo.Succeed()
			return vectors, desc, fo.Failovers(), nil
		}
		if ctx.Err() != nil {
			return nil, registry.Descriptor{}, fo.Failovers(),
				fmt.Errorf("%w: %v", types.ErrEmbeddingUnavailable, ctx.Err())
		}

		before := fo.Failovers()
		fo.Fail(err, provider.IsTransient(err))
		if fo.Failovers() > before {
			g.metrics.Failover()
			g.counters(desc.Name).failovers.Add(1)
			g.logger.Warn("embedding backend failed over",
				"backend", desc.Name, "state", fo.State().String(), "error", err)
		}
	}
}

// callBackend performs one attempt against one backend under its
// semaphore and timeout.
func (g *Gateway) callBackend(ctx context.Context, desc registry.Descriptor, model string, texts []string) ([][]float32, error) {
	client, err := g.clientFor(desc)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", provider.ErrPermanent, err)
	}

	// Blocking backpressure: callers over MaxConcurrentRequests wait
	// here rather than queueing without bound.
	sem := g.semFor(desc)
	if err := sem.Acquire(ctx, 1); err != nil {
		return nil, err
	}
	defer sem.Release(1)

	if desc.MaxInputChars > 0 {
		texts = truncateAll(texts, desc.MaxInputChars)
	}

	cctx, cancel := context.WithTimeout(ctx, desc.Timeout)
	defer cancel()

	start := time.Now()
	vectors, err := client.EmbedBatch(cctx, model, texts)
	elapsed := time.Since(start)

	counters := g.counters(desc.Name)
	counters.requests.Add(1)
	if err != nil {
		counters.errors.Add(1)
		g.metrics.BackendRequest(desc.Name, "error", elapsed)
		return nil, err
	}
	g.metrics.BackendRequest(desc.Name, "success", elapsed)

	if want := desc.ExpectedDim(model); want > 0 {
		for _, v := range vectors {
			if len(v) != want {
				return nil, fmt.Errorf("%w: backend %q returned %d-dim vector for %q, want %d",
					provider.ErrPermanent, desc.Name, len(v), model, want)
			}
		}
	}
	return vectors, nil
}

func (g *Gateway) clientFor(desc registry.Descriptor) (provider.Client, error) {
	g.mu.Lock()
	defer g.mu.Unlock()

	if client, ok := g.clients[desc.Name]; ok {
		return client, nil
	}
	client, err := g.factory(desc)
	if err != nil {
		return nil, err
	}
	g.clients[desc.Name] = client
	return client, nil
}

func (g *Gateway) semFor(desc registry.Descriptor) *semaphore.Weighted {
	g.mu.Lock()
	defer g.mu.Unlock()

	if sem, ok := g.sems[desc.Name]; ok {
		return sem
	}
	sem := semaphore.NewWeighted(int64(desc.MaxConcurrentRequests))
	g.sems[desc.Name] = sem
	return sem
}

func (g *Gateway) counters(name string) *backendCounters {
	g.mu.Lock()
	defer g.mu.Unlock()

	c, ok := g.stats[name]
	if !ok {
		c = &backendCounters{}
		g.stats[name] = c
	}
	return c
}

// resolveModel defaults an empty model to the primary backend's
// DefaultModel.
func (g *Gateway) resolveModel(model string) (string, error) {
	if model != "" {
		return model, nil
	}
	primary, ok := g.registry.Primary()
	if !ok || primary.DefaultModel == "" {
		return "", fmt.Errorf("%w: no model specified and no primary backend default", types.ErrEmbeddingUnavailable)
	}
	return primary.DefaultModel, nil
}

// expectDim returns the expected dimension for a model from the first
// enabled backend that declares it, or 0 when unknown.
func (g *Gateway) expectDim(model string) int {
	for _, desc := range g.registry.EnabledOrdered() {
		if dim := desc.ExpectedDim(model); dim > 0 {
			return dim
		}
	}
	return 0
}

// chunkSize picks the batch chunk size from the highest-precedence
// enabled backend that supports the model.
func (g *Gateway) chunkSize(model string) int {
	for _, desc := range g.registry.EnabledOrdered() {
		if desc.SupportsModel(model) {
			return desc.BatchSize
		}
	}
	return registry.DefaultBatchSize
}

// chunkIndexes splits idxs into runs of at most size.
func chunkIndexes(idxs []int, size int) [][]int {
	if size <= 0 {
		size = registry.DefaultBatchSize
	}
	var chunks [][]int
	for len(idxs) > size {
		chunks = append(chunks, idxs[:size])
		idxs = idxs[size:]
	}
	if len(idxs) > 0 {
		chunks = append(chunks, idxs)
	}
	return chunks
}

func truncateAll(texts []string, limit int) []string {
	out := make([]string, len(texts))
	for i, text := range texts {
		if len(text) > limit {
			text = text[:limit]
		}
		out[i] = text
	}
	return out
}

package embedder

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dshills/hybridsearch/internal/provider"
	"github.com/dshills/hybridsearch/internal/registry"
	"github.com/dshills/hybridsearch/pkg/types"
)

// testHarness wires a registry of mock backends into a gateway with an
// injected client factory.
type testHarness struct {
	registry *registry.Registry
	gateway  *Gateway
	clients  map[string]*provider.MockClient
}

func newHarness(t *testing.T, backends ...registry.Descriptor) *testHarness {
	t.Helper()

	reg := registry.New(true)
	clients := make(map[string]*provider.MockClient)

	for _, desc := range backends {
		desc.Kind = registry.KindMock
		require.NoError(t, reg.Register(desc))
		registered, _ := reg.Get(desc.Name)
		clients[desc.Name] = provider.NewMockClient(registered)
	}

	factory := func(desc registry.Descriptor) (provider.Client, error) {
		return clients[desc.Name], nil
	}

	gw := NewGateway(reg, NewCache(100), WithClientFactory(factory))
	return &testHarness{registry: reg, gateway: gw, clients: clients}
}

func fastBackend(name string, priority int) registry.Descriptor {
	return registry.Descriptor{
		Name:       name,
		Enabled:    true,
		Priority:   priority,
		RetryDelay: time.Millisecond,
		Timeout:    time.Second,
	}
}

func transientErr() error {
	return fmt.Errorf("%w: injected", provider.ErrTransient)
}

func TestEmbedCacheRoundTrip(t *testing.T) {
	h := newHarness(t, fastBackend("a", 1))
	ctx := context.Background()

	first, err := h.gateway.Embed(ctx, "hello world", "m")
	require.NoError(t, err)
	assert.False(t, first.CacheHit)
	assert.Equal(t, "a", first.BackendUsed)

	second, err := h.gateway.Embed(ctx, "hello world", "m")
	require.NoError(t, err)
	assert.True(t, second.CacheHit)
	assert.Equal(t, first.Vector, second.Vector)

	// Whitespace differences normalize onto the same key.
	third, err := h.gateway.Embed(ctx, "  hello   world ", "m")
	require.NoError(t, err)
	assert.True(t, third.CacheHit)

	assert.EqualValues(t, 1, h.clients["a"].Calls())
}

func TestEmbedSingleFlight(t *testing.T) {
	h := newHarness(t, fastBackend("a", 1))
	ctx := context.Background()

	var wg sync.WaitGroup
	results := make([]*Result, 16)
	errs := make([]error, 16)
	for i := 0; i < 16; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			results[i], errs[i] = h.gateway.Embed(ctx, "same text", "m")
		}(i)
	}
	wg.Wait()

	for i := 0; i < 16; i++ {
		require.NoError(t, errs[i])
		assert.Equal(t, results[0].Vector, results[i].Vector)
	}

	// Concurrent identical misses collapsed into one upstream call.
	assert.EqualValues(t, 1, h.clients["a"].Calls())
}

func TestEmbedFailover(t *testing.T) {
	h := newHarness(t, fastBackend("a", 1), fastBackend("b", 2))
	h.clients["a"].FailAlways(transientErr())
	ctx := context.Background()

	res, err := h.gateway.Embed(ctx, "failover me", "m")
	require.NoError(t, err)
	assert.Equal(t, "b", res.BackendUsed)
	assert.Equal(t, 1, res.Failovers)

	// A was attempted: 1 try + MaxRetries retries.
	assert.EqualValues(t, 1+registry.DefaultMaxRetries, h.clients["a"].Calls())

	stats := h.gateway.Stats()
	assert.EqualValues(t, 1, stats.Backends["a"].Failovers)
	assert.EqualValues(t, 1, stats.Backends["b"].Requests)
}

func TestEmbedDisabledBackendSkipped(t *testing.T) {
	h := newHarness(t, fastBackend("a", 1), fastBackend("b", 2))
	h.clients["a"].FailAlways(transientErr())

	require.NoError(t, h.registry.Disable("a"))

	res, err := h.gateway.Embed(context.Background(), "direct to b", "m")
	require.NoError(t, err)
	assert.Equal(t, "b", res.BackendUsed)
	assert.Equal(t, 0, res.Failovers)
	assert.EqualValues(t, 0, h.clients["a"].Calls())
}

func TestEmbedExhaustion(t *testing.T) {
	h := newHarness(t, fastBackend("a", 1), fastBackend("b", 2))
	h.clients["a"].FailAlways(transientErr())
	h.clients["b"].FailAlways(transientErr())

	_, err := h.gateway.Embed(context.Background(), "doomed", "m")
	require.ErrorIs(t, err, types.ErrEmbeddingUnavailable)
}

func TestEmbedPermanentFailureSkipsRetries(t *testing.T) {
	h := newHarness(t, fastBackend("a", 1), fastBackend("b", 2))
	h.clients["a"].FailAlways(fmt.Errorf("%w: bad model", provider.ErrPermanent))

	res, err := h.gateway.Embed(context.Background(), "text", "m")
	require.NoError(t, err)
	assert.Equal(t, "b", res.BackendUsed)

	// No retry budget burned on a permanent failure.
	assert.EqualValues(t, 1, h.clients["a"].Calls())
}

func TestEmbedFeatureDisabled(t *testing.T) {
	reg := registry.New(false)
	gw := NewGateway(reg, NewCache(10))

	_, err := gw.Embed(context.Background(), "text", "m")
	require.ErrorIs(t, err, types.ErrEmbeddingDisabled)
}

func TestEmbedEmptyText(t *testing.T) {
	h := newHarness(t, fastBackend("a", 1))
	_, err := h.gateway.Embed(context.Background(), "   ", "m")
	require.ErrorIs(t, err, ErrEmptyText)
}

func TestEmbedNoBackendsEnabled(t *testing.T) {
	reg := registry.New(true)
	gw := NewGateway(reg, NewCache(10))

	_, err := gw.Embed(context.Background(), "text", "m")
	require.ErrorIs(t, err, types.ErrEmbeddingUnavailable)
}

func TestEmbedModelDefaultsFromPrimary(t *testing.T) {
	desc := fastBackend("a", 1)
	desc.DefaultModel = "default-model"
	h := newHarness(t, desc)

	res, err := h.gateway.Embed(context.Background(), "text", "")
	require.NoError(t, err)
	assert.Equal(t, "default-model", res.Model)
}

func TestEmbedUnsupportedModelSkipsBackend(t *testing.T) {
	a := fastBackend("a", 1)
	a.SupportedModels = []string{"only-this"}
	h := newHarness(t, a, fastBackend("b", 2))

	res, err := h.gateway.Embed(context.Background(), "text", "other-model")
	require.NoError(t, err)
	assert.Equal(t, "b", res.BackendUsed)
	assert.EqualValues(t, 0, h.clients["a"].Calls())
}

func TestEmbedDeadlineRespected(t *testing.T) {
	desc := fastBackend("a", 1)
	desc.RetryDelay = time.Hour // backoff must be cut short by ctx
	h := newHarness(t, desc)
	h.clients["a"].FailAlways(transientErr())

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	start := time.Now()
	_, err := h.gateway.Embed(ctx, "text", "m")
	require.ErrorIs(t, err, types.ErrEmbeddingUnavailable)
	assert.Less(t, time.Since(start), time.Second)
}

func TestEmbedBatchChunking(t *testing.T) {
	desc := fastBackend("a", 1)
	desc.BatchSize = 2
	h := newHarness(t, desc)

	texts := []string{"t one", "t two", "t three", "t four", "t five"}
	res, err := h.gateway.EmbedBatch(context.Background(), texts, "m")
	require.NoError(t, err)
	require.Len(t, res.Vectors, 5)
	for i, v := range res.Vectors {
		assert.NotEmptyf(t, v, "vector %d missing", i)
	}

	// 5 texts at BatchSize 2 is 3 upstream calls.
	assert.EqualValues(t, 3, h.clients["a"].Calls())
}

func TestEmbedBatchServesFromCache(t *testing.T) {
	h := newHarness(t, fastBackend("a", 1))
	ctx := context.Background()

	warm, err := h.gateway.Embed(ctx, "warm text", "m")
	require.NoError(t, err)

	res, err := h.gateway.EmbedBatch(ctx, []string{"warm text", "cold text"}, "m")
	require.NoError(t, err)
	assert.Equal(t, 1, res.CacheHits)
	assert.Equal(t, warm.Vector, res.Vectors[0])
}

func TestEmbedBatchPartialFailureKeepsSiblings(t *testing.T) {
	desc := fastBackend("a", 1)
	desc.BatchSize = 2
	h := newHarness(t, desc)
	h.gateway.chunkWorkers = 1 // deterministic chunk order

	// First chunk burns its initial try plus all retries; siblings
	// succeed afterwards.
	h.clients["a"].FailNext(1+registry.DefaultMaxRetries, transientErr())

	texts := []string{"x one", "x two", "x three", "x four", "x five"}
	res, err := h.gateway.EmbedBatch(context.Background(), texts, "m")
	require.ErrorIs(t, err, types.ErrEmbeddingUnavailable)
	require.NotNil(t, res)

	assert.Nil(t, res.Vectors[0])
	assert.Nil(t, res.Vectors[1])
	for i := 2; i < 5; i++ {
		assert.NotEmptyf(t, res.Vectors[i], "sibling vector %d discarded", i)
	}
}

func TestEmbedBatchEmpty(t *testing.T) {
	h := newHarness(t, fastBackend("a", 1))
	_, err := h.gateway.EmbedBatch(context.Background(), nil, "m")
	require.ErrorIs(t, err, ErrEmptyBatch)
}

func TestGatewayStats(t *testing.T) {
	h := newHarness(t, fastBackend("a", 1))
	ctx := context.Background()

	_, err := h.gateway.Embed(ctx, "one", "m")
	require.NoError(t, err)
	_, err = h.gateway.Embed(ctx, "one", "m") // cache hit
	require.NoError(t, err)

	stats := h.gateway.Stats()
	assert.EqualValues(t, 1, stats.Backends["a"].Requests)
	assert.EqualValues(t, 1, stats.Cache.Hits)
	assert.EqualValues(t, 1, stats.Cache.Misses)
}

func TestGatewayDimensionMismatchDropsBackend(t *testing.T) {
	a := fastBackend("a", 1)
	a.ModelDims = map[string]int{"m": 8} // mock produces 384
	h := newHarness(t, a, fastBackend("b", 2))

	res, err := h.gateway.Embed(context.Background(), "text", "m")
	require.NoError(t, err)
	assert.Equal(t, "b", res.BackendUsed)
}

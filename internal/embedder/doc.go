// Package embedder turns text into vectors with caching, retry,
// backoff, and priority-ordered failover across embedding backends.
//
// # Gateway
//
// The Gateway is the single entry point. It consults the bounded
// LRU+TTL Cache first, then walks the registry's enabled backends in
// priority order:
//
//	gw := embedder.NewGateway(reg, embedder.NewCache(10000))
//	res, err := gw.Embed(ctx, "authenticate user", "nomic-embed-text")
//	if err != nil {
//	    // errors.Is(err, types.ErrEmbeddingUnavailable) after exhaustion
//	}
//	fmt.Println(res.BackendUsed, res.CacheHit, res.Latency)
//
// # Failover
//
// Backend selection within one call is an explicit state machine
// (trying, retrying, failed_over, success, exhausted) over a snapshot
// of enabled backends taken at call start, so a mid-flight registry
// toggle cannot corrupt an in-progress sequence. Transient failures
// (timeouts, connection errors, 5xx) retry the same backend with
// exponential backoff up to its MaxRetries; permanent failures fail
// over immediately.
//
// # Batching
//
// EmbedBatch splits cache misses into chunks of the backend's
// BatchSize. Chunks are retried and failed over independently: a bad
// chunk reports its failure without discarding vectors produced by
// sibling chunks, which are already cached.
//
// # Concurrency
//
// Concurrent misses on an identical key collapse into one upstream
// call (singleflight). Per-backend concurrency is bounded by a
// weighted semaphore sized to MaxConcurrentRequests; callers beyond
// the bound block rather than queueing without bound.
package embedder

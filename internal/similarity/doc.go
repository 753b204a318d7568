// Package similarity ranks vector corpora against query vectors by
// cosine similarity.
//
// A Corpus precomputes document norms at insertion so Rank is a single
// batched pass of dot products rather than per-item norm computation.
// Zero-norm vectors score exactly 0.0, never NaN, and are dropped
// unless the threshold admits zero. Results are sorted descending with
// ties in corpus insertion order, so repeated runs over the same
// corpus rank identically.
//
// Large corpora are scored in shards on a bounded ants worker pool
// when the engine is built with WithWorkers, keeping the CPU-bound
// pass off the caller's goroutine under load.
package similarity

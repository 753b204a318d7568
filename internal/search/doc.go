// Package search implements the hybrid search coordinator that fans a
// query out to the semantic and lexical branches and merges their
// results into one ranked list.
//
// The semantic branch embeds the query text through the embedding
// gateway and ranks the vector corpus by cosine similarity. The
// lexical branch searches the term-frequency text index. Both run
// concurrently; neither blocks on the other beyond the shared query
// deadline.
//
// Merge semantics:
//   - semantic results enter first, keyed by file id, as "semantic"
//   - lexical results then upgrade existing entries to "both" with a
//     fixed blending boost, or enter as "keyword" with a fixed base
//     score, since term-frequency scores are not calibrated
//     probabilities
//   - final order is score descending, ties by first-seen order,
//     truncated to the requested maximum
//
// When the semantic branch fails entirely the coordinator degrades
// instead of erroring: it returns lexical-only hits with Degraded set
// and the failure reason attached. A query deadline produces the same
// degradation with whatever branch results arrived in time.
package search

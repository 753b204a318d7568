// Package types provides shared type definitions for the hybrid search core.
//
// This package defines the domain types exchanged between the embedding
// gateway, the similarity engine, the text index, and the search
// coordinator: queries, ranked hits, and the error taxonomy shared
// across components.
//
// # Core Types
//
// SearchQuery describes one search request:
//
//	query := types.SearchQuery{
//	    Text:                "authenticate user",
//	    MaxResults:          10,
//	    SimilarityThreshold: 0.3,
//	}
//
// SearchHit is one ranked result. Every hit carries a MatchType so
// callers can tell a calibrated semantic score from a fixed-confidence
// keyword score:
//
//	for _, hit := range resp.Hits {
//	    fmt.Printf("%s %.2f %s\n", hit.FileID, hit.Score, hit.MatchType)
//	}
//
// # Error Taxonomy
//
// The sentinel errors defined here span component boundaries:
// ErrConfiguration is fatal at startup validation, ErrEmbeddingDisabled
// is surfaced immediately when the feature flag is off, and
// ErrEmbeddingUnavailable means every enabled backend was exhausted for
// one request. The coordinator converts ErrEmbeddingUnavailable into a
// degraded response rather than failing the query.
package types

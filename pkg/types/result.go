package types

import "time"

// MatchType identifies which search branch produced a hit
type MatchType string

const (
	MatchSemantic MatchType = "semantic" // vector similarity only
	MatchKeyword  MatchType = "keyword"  // lexical match only
	MatchBoth     MatchType = "both"     // found by both branches
)

// SearchHit represents a single ranked search result
type SearchHit struct {
	FileID    string
	Score     float64 // 0..1, clamped
	MatchType MatchType
	Snippet   string
}

// SearchResponse contains the merged, ranked hits for one query plus
// branch metadata. Degraded is set when one branch failed but partial
// results could still be returned.
type SearchResponse struct {
	QueryID string
	Hits    []SearchHit

	Degraded       bool
	FailureReasons []string

	SemanticHits int // count contributed by the semantic branch
	KeywordHits  int // count contributed by the lexical branch
	Duration     time.Duration
}

// Validate checks if the hit is valid
func (h *SearchHit) Validate() error {
	if h.FileID == "" {
		return ErrInvalidFileID
	}
	if h.Score < 0 || h.Score > 1 {
		return ErrInvalidScore
	}
	switch h.MatchType {
	case MatchSemantic, MatchKeyword, MatchBoth:
	default:
		return ErrInvalidMatchType
	}
	return nil
}

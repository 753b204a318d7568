package types

import "time"

// SearchQuery describes one hybrid search request
type SearchQuery struct {
	Text                string
	MaxResults          int     // <= 0 means coordinator default
	SimilarityThreshold float64 // semantic candidates below this are dropped

	// Optional filters applied to the merged result set
	FileTypes   []string // extensions, e.g. ".go", ".md"
	Directories []string // path prefixes

	// Deadline bounds the whole query including both branches.
	// Zero means the coordinator default applies.
	Deadline time.Duration
}

// Validate checks if the query is well-formed
func (q *SearchQuery) Validate() error {
	if q.Text == "" {
		return ErrEmptyQuery
	}
	return nil
}

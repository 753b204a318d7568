package types

import "errors"

// Domain errors shared across search components
var (
	// ErrConfiguration indicates an invalid backend descriptor or a
	// registry with zero enabled backends while the feature is on.
	// Fatal at startup validation.
	ErrConfiguration = errors.New("invalid search configuration")

	// ErrEmbeddingDisabled indicates the embedding feature flag is off.
	// Surfaced immediately, never retried.
	ErrEmbeddingDisabled = errors.New("embedding generation disabled")

	// ErrEmbeddingUnavailable indicates every enabled backend was
	// exhausted for one request.
	ErrEmbeddingUnavailable = errors.New("all embedding backends unavailable")

	// Search result validation errors
	ErrEmptyQuery       = errors.New("query text cannot be empty")
	ErrInvalidFileID    = errors.New("invalid file ID")
	ErrInvalidScore     = errors.New("score must be between 0 and 1")
	ErrInvalidMatchType = errors.New("invalid match type")
)

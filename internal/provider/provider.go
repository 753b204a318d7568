package provider

import (
	"context"
	"errors"
	"fmt"
	"net"

	"github.com/dshills/hybridsearch/internal/registry"
)

// Common errors
var (
	// ErrTransient marks failures worth retrying on the same backend:
	// timeouts, connection errors, and 5xx-equivalent responses.
	ErrTransient = errors.New("transient provider failure")

	// ErrPermanent marks failures that retrying the same backend
	// cannot fix: rejected requests, bad credentials, unknown models.
	ErrPermanent = errors.New("provider request rejected")

	ErrEmptyBatch = errors.New("batch cannot be empty")
)

// Client is the uniform capability every provider kind implements:
// turn a batch of texts into one vector per text.
type Client interface {
	// EmbedBatch embeds texts with the given model. The returned slice
	// has one vector per input text, in input order.
	EmbedBatch(ctx context.Context, model string, texts []string) ([][]float32, error)

	// Kind returns the provider kind this client implements.
	Kind() registry.Kind

	// Name returns the backend name this client was built for.
	Name() string

	// Close releases any resources held by the client.
	Close() error
}

// New builds a client for a descriptor. The provider set is closed;
// unknown kinds are rejected by descriptor validation before this is
// reached, but the factory guards anyway.
func New(desc registry.Descriptor) (Client, error) {
	switch desc.Kind {
	case registry.KindOllama:
		return newOllamaClient(desc), nil
	case registry.KindSentenceTransformer:
		return newSentenceTransformerClient(desc), nil
	case registry.KindOpenAI:
		return newOpenAIClient(desc), nil
	case registry.KindHuggingFace:
		return newHuggingFaceClient(desc), nil
	case registry.KindMock:
		return NewMockClient(desc), nil
	default:
		return nil, fmt.Errorf("%w: unknown provider kind %q", ErrPermanent, desc.Kind)
	}
}

// IsTransient reports whether an embed failure should be retried on
// the same backend before failing over.
func IsTransient(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, ErrTransient) || errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return true
	}
	return false
}

// transientStatus reports whether an HTTP status is worth retrying.
func transientStatus(code int) bool {
	return code >= 500 || code == 429 || code == 408
}

func validateBatch(texts []string) error {
	if len(texts) == 0 {
		return ErrEmptyBatch
	}
	for i, text := range texts {
		if text == "" {
			return fmt.Errorf("%w: text at index %d is empty", ErrPermanent, i)
		}
	}
	return nil
}

package registry

import (
	"fmt"
	"time"

	"github.com/dshills/hybridsearch/pkg/types"
)

// Kind identifies an embedding provider implementation. The set is
// closed: the gateway only knows how to build clients for these kinds.
type Kind string

const (
	KindOllama              Kind = "ollama"
	KindSentenceTransformer Kind = "sentence_transformer"
	KindOpenAI              Kind = "openai"
	KindHuggingFace         Kind = "huggingface"
	KindMock                Kind = "mock" // deterministic in-process provider for tests
)

// SelfHosted reports whether the provider runs against an operator
// supplied endpoint rather than a hosted API.
func (k Kind) SelfHosted() bool {
	switch k {
	case KindOllama, KindSentenceTransformer:
		return true
	default:
		return false
	}
}

// Valid reports whether the kind is part of the closed provider set.
func (k Kind) Valid() bool {
	switch k {
	case KindOllama, KindSentenceTransformer, KindOpenAI, KindHuggingFace, KindMock:
		return true
	default:
		return false
	}
}

// Default descriptor values applied by Normalize
const (
	DefaultTimeout               = 30 * time.Second
	DefaultMaxRetries            = 3
	DefaultRetryDelay            = 1 * time.Second
	DefaultMaxConcurrentRequests = 8
	DefaultBatchSize             = 16
	DefaultCacheTTL              = 1 * time.Hour
)

// Descriptor describes one embedding backend. Descriptors are created
// at configuration load and mutated only through Registry enable,
// disable, and priority calls; they are never deleted at runtime.
type Descriptor struct {
	Name     string
	Kind     Kind
	Enabled  bool
	Priority int // ascending = higher precedence

	Endpoint string // required for self-hosted kinds
	APIKey   string // required for hosted kinds

	Timeout    time.Duration
	MaxRetries int
	RetryDelay time.Duration

	DefaultModel    string
	SupportedModels []string       // empty means any model accepted
	ModelDims       map[string]int // optional expected dimension per model

	MaxConcurrentRequests int
	BatchSize             int

	// MaxInputChars truncates oversized inputs before embedding.
	// Zero means no limit.
	MaxInputChars int

	// CacheTTL is the backend-specific lifetime for vectors this
	// backend produced. Zero means DefaultCacheTTL.
	CacheTTL time.Duration
}

// Validate checks required fields and numeric invariants.
func (d *Descriptor) Validate() error {
	if d.Name == "" {
		return fmt.Errorf("%w: backend name is required", types.ErrConfiguration)
	}
	if !d.Kind.Valid() {
		return fmt.Errorf("%w: unknown provider kind %q for backend %q", types.ErrConfiguration, d.Kind, d.Name)
	}
	if d.Kind.SelfHosted() && d.Endpoint == "" {
		return fmt.Errorf("%w: self-hosted backend %q requires an endpoint", types.ErrConfiguration, d.Name)
	}
	if !d.Kind.SelfHosted() && d.Kind != KindMock && d.APIKey == "" {
		return fmt.Errorf("%w: hosted backend %q requires a credential", types.ErrConfiguration, d.Name)
	}
	if d.Timeout <= 0 {
		return fmt.Errorf("%w: backend %q timeout must be positive", types.ErrConfiguration, d.Name)
	}
	if d.MaxRetries < 0 {
		return fmt.Errorf("%w: backend %q max retries cannot be negative", types.ErrConfiguration, d.Name)
	}
	return nil
}

// Normalize fills zero-valued tunables with defaults. Called by the
// registry before validation so hosts only set what they care about.
func (d *Descriptor) Normalize() {
	if d.Timeout == 0 {
		d.Timeout = DefaultTimeout
	}
	if d.MaxRetries == 0 {
		d.MaxRetries = DefaultMaxRetries
	}
	if d.RetryDelay == 0 {
		d.RetryDelay = DefaultRetryDelay
	}
	if d.MaxConcurrentRequests <= 0 {
		d.MaxConcurrentRequests = DefaultMaxConcurrentRequests
	}
	if d.BatchSize <= 0 {
		d.BatchSize = DefaultBatchSize
	}
	if d.CacheTTL <= 0 {
		d.CacheTTL = DefaultCacheTTL
	}
}

// SupportsModel reports whether the backend accepts the given model.
// An empty SupportedModels list accepts any model.
func (d *Descriptor) SupportsModel(model string) bool {
	if len(d.SupportedModels) == 0 {
		return true
	}
	for _, m := range d.SupportedModels {
		if m == model {
			return true
		}
	}
	return false
}

// ExpectedDim returns the expected vector dimension for a model, or 0
// when unknown.
func (d *Descriptor) ExpectedDim(model string) int {
	if d.ModelDims == nil {
		return 0
	}
	return d.ModelDims[model]
}

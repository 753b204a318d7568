package provider

import (
	"context"
	"crypto/sha256"
	"encoding/binary"
	"sync"
	"sync/atomic"

	"github.com/dshills/hybridsearch/internal/registry"
)

// MockDimension is the vector size produced by the mock client when
// the descriptor carries no model dimension metadata.
const MockDimension = 384

// MockClient is a deterministic in-process provider used by tests and
// the probe utility. Vectors are derived from a hash of the input so
// identical text always embeds identically, with no network involved.
type MockClient struct {
	name string
	dim  int

	mu       sync.Mutex
	failWith error
	failures int

	calls atomic.Int64
}

// NewMockClient builds a mock client for a descriptor. The dimension
// comes from the descriptor's model metadata when present.
func NewMockClient(desc registry.Descriptor) *MockClient {
	dim := desc.ExpectedDim(desc.DefaultModel)
	if dim <= 0 {
		dim = MockDimension
	}
	return &MockClient{
		name: desc.Name,
		dim:  dim,
	}
}

// FailNext makes the next n EmbedBatch calls return err.
func (c *MockClient) FailNext(n int, err error) {
	c.mu.Lock()
	c.failWith = err
	c.failures = n
	c.mu.Unlock()
}

// FailAlways makes every EmbedBatch call return err until reset.
func (c *MockClient) FailAlways(err error) {
	c.FailNext(-1, err)
}

// Calls returns the number of EmbedBatch invocations.
func (c *MockClient) Calls() int64 {
	return c.calls.Load()
}

func (c *MockClient) EmbedBatch(ctx context.Context, model string, texts []string) ([][]float32, error) {
	c.calls.Add(1)

	if err := validateBatch(texts); err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	c.mu.Lock()
	if c.failures != 0 && c.failWith != nil {
		err := c.failWith
		if c.failures > 0 {
			c.failures--
		}
		c.mu.Unlock()
		return nil, err
	}
	c.mu.Unlock()

	embeddings := make([][]float32, len(texts))
	for i, text := range texts {
		embeddings[i] = deterministicVector(text, model, c.dim)
	}
	return embeddings, nil
}

func (c *MockClient) Kind() registry.Kind { return registry.KindMock }
func (c *MockClient) Name() string        { return c.name }
func (c *MockClient) Close() error        { return nil }

// deterministicVector expands a content hash into a unit-scale vector.
func deterministicVector(text, model string, dim int) []float32 {
	seed := sha256.Sum256([]byte(model + "\x00" + text))
	vector := make([]float32, dim)
	block := seed
	for i := 0; i < dim; i++ {
		if i%len(block) == 0 && i > 0 {
			block = sha256.Sum256(block[:])
		}
		bits := binary.BigEndian.Uint16([]byte{block[i%len(block)], block[(i+1)%len(block)]})
		vector[i] = float32(bits)/65535.0 - 0.5
	}
	return vector
}

package provider

import (
	"context"
	"errors"
	"fmt"

	openai "github.com/sashabaranov/go-openai"

	"github.com/dshills/hybridsearch/internal/registry"
)

// openAIClient embeds via the OpenAI embeddings API.
type openAIClient struct {
	name   string
	client *openai.Client
}

func newOpenAIClient(desc registry.Descriptor) *openAIClient {
	cfg := openai.DefaultConfig(desc.APIKey)
	if desc.Endpoint != "" {
		// Allows OpenAI-compatible gateways.
		cfg.BaseURL = desc.Endpoint
	}
	cfg.HTTPClient.Timeout = desc.Timeout

	return &openAIClient{
		name:   desc.Name,
		client: openai.NewClientWithConfig(cfg),
	}
}

func (c *openAIClient) EmbedBatch(ctx context.Context, model string, texts []string) ([][]float32, error) {
	if err := validateBatch(texts); err != nil {
		return nil, err
	}

	resp, err := c.client.CreateEmbeddings(ctx, openai.EmbeddingRequestStrings{
		Input: texts,
		Model: openai.EmbeddingModel(model),
	})
	if err != nil {
		return nil, classifyOpenAIError(err)
	}

	if len(resp.Data) != len(texts) {
		return nil, fmt.Errorf("%w: got %d embeddings for %d texts", ErrPermanent, len(resp.Data), len(texts))
	}

	// Response order is not guaranteed; the API reports the input
	// index with each embedding.
	embeddings := make([][]float32, len(texts))
	for _, data := range resp.Data {
		if data.Index < 0 || data.Index >= len(texts) {
			return nil, fmt.Errorf("%w: embedding index %d out of range", ErrPermanent, data.Index)
		}
		embeddings[data.Index] = data.Embedding
	}

	return embeddings, nil
}

func (c *openAIClient) Kind() registry.Kind { return registry.KindOpenAI }
func (c *openAIClient) Name() string        { return c.name }

func (c *openAIClient) Close() error { return nil }

// classifyOpenAIError maps go-openai errors onto the
// transient/permanent taxonomy.
func classifyOpenAIError(err error) error {
	var apiErr *openai.APIError
	if errors.As(err, &apiErr) {
		if transientStatus(apiErr.HTTPStatusCode) {
			return fmt.Errorf("%w: openai api error %d: %s", ErrTransient, apiErr.HTTPStatusCode, apiErr.Message)
		}
		return fmt.Errorf("%w: openai api error %d: %s", ErrPermanent, apiErr.HTTPStatusCode, apiErr.Message)
	}
	// Anything below the API layer is a connection-level failure.
	return fmt.Errorf("%w: %v", ErrTransient, err)
}

package provider

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/dshills/hybridsearch/internal/registry"
)

// ollamaClient embeds via a self-hosted Ollama server.
type ollamaClient struct {
	name       string
	endpoint   string
	httpClient *http.Client
}

func newOllamaClient(desc registry.Descriptor) *ollamaClient {
	return &ollamaClient{
		name:     desc.Name,
		endpoint: strings.TrimRight(desc.Endpoint, "/"),
		httpClient: &http.Client{
			Timeout: desc.Timeout,
		},
	}
}

func (c *ollamaClient) EmbedBatch(ctx context.Context, model string, texts []string) ([][]float32, error) {
	if err := validateBatch(texts); err != nil {
		return nil, err
	}

	reqBody := map[string]interface{}{
		"model": model,
		"input": texts,
	}

	var apiResp struct {
		Embeddings [][]float32 `json:"embeddings"`
	}

	if err := postJSON(ctx, c.httpClient, c.endpoint+"/api/embed", "", reqBody, &apiResp); err != nil {
		return nil, err
	}

	if len(apiResp.Embeddings) != len(texts) {
		return nil, fmt.Errorf("%w: got %d embeddings for %d texts", ErrPermanent, len(apiResp.Embeddings), len(texts))
	}

	return apiResp.Embeddings, nil
}

func (c *ollamaClient) Kind() registry.Kind { return registry.KindOllama }
func (c *ollamaClient) Name() string        { return c.name }

func (c *ollamaClient) Close() error {
	c.httpClient.CloseIdleConnections()
	return nil
}

// sentenceTransformerClient embeds via a self-hosted sentence
// transformer service exposing a simple JSON embed endpoint.
type sentenceTransformerClient struct {
	name       string
	endpoint   string
	httpClient *http.Client
}

func newSentenceTransformerClient(desc registry.Descriptor) *sentenceTransformerClient {
	return &sentenceTransformerClient{
		name:     desc.Name,
		endpoint: strings.TrimRight(desc.Endpoint, "/"),
		httpClient: &http.Client{
			Timeout: desc.Timeout,
		},
	}
}

func (c *sentenceTransformerClient) EmbedBatch(ctx context.Context, model string, texts []string) ([][]float32, error) {
	if err := validateBatch(texts); err != nil {
		return nil, err
	}

	reqBody := map[string]interface{}{
		"model": model,
		"texts": texts,
	}

	var apiResp struct {
		Embeddings [][]float32 `json:"embeddings"`
	}

	if err := postJSON(ctx, c.httpClient, c.endpoint+"/embed", "", reqBody, &apiResp); err != nil {
		return nil, err
	}

	if len(apiResp.Embeddings) != len(texts) {
		return nil, fmt.Errorf("%w: got %d embeddings for %d texts", ErrPermanent, len(apiResp.Embeddings), len(texts))
	}

	return apiResp.Embeddings, nil
}

func (c *sentenceTransformerClient) Kind() registry.Kind { return registry.KindSentenceTransformer }
func (c *sentenceTransformerClient) Name() string        { return c.name }

func (c *sentenceTransformerClient) Close() error {
	c.httpClient.CloseIdleConnections()
	return nil
}

// huggingFaceClient embeds via the Hugging Face inference API.
type huggingFaceClient struct {
	name       string
	apiKey     string
	baseURL    string
	httpClient *http.Client
}

const huggingFaceBaseURL = "https://api-inference.huggingface.co/pipeline/feature-extraction"

func newHuggingFaceClient(desc registry.Descriptor) *huggingFaceClient {
	baseURL := huggingFaceBaseURL
	if desc.Endpoint != "" {
		baseURL = strings.TrimRight(desc.Endpoint, "/")
	}
	return &huggingFaceClient{
		name:    desc.Name,
		apiKey:  desc.APIKey,
		baseURL: baseURL,
		httpClient: &http.Client{
			Timeout: desc.Timeout,
		},
	}
}

func (c *huggingFaceClient) EmbedBatch(ctx context.Context, model string, texts []string) ([][]float32, error) {
	if err := validateBatch(texts); err != nil {
		return nil, err
	}

	reqBody := map[string]interface{}{
		"inputs": texts,
	}

	var embeddings [][]float32
	url := c.baseURL + "/" + model
	if err := postJSON(ctx, c.httpClient, url, c.apiKey, reqBody, &embeddings); err != nil {
		return nil, err
	}

	if len(embeddings) != len(texts) {
		return nil, fmt.Errorf("%w: got %d embeddings for %d texts", ErrPermanent, len(embeddings), len(texts))
	}

	return embeddings, nil
}

func (c *huggingFaceClient) Kind() registry.Kind { return registry.KindHuggingFace }
func (c *huggingFaceClient) Name() string        { return c.name }

func (c *huggingFaceClient) Close() error {
	c.httpClient.CloseIdleConnections()
	return nil
}

// postJSON posts a JSON body and decodes the JSON response, mapping
// HTTP failures onto the transient/permanent taxonomy.
func postJSON(ctx context.Context, client *http.Client, url, bearer string, reqBody, respBody interface{}) error {
	body, err := json.Marshal(reqBody)
	if err != nil {
		return fmt.Errorf("marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if bearer != "" {
		req.Header.Set("Authorization", "Bearer "+bearer)
	}

	resp, err := client.Do(req)
	if err != nil {
		// Connection failures and client timeouts are retryable.
		return fmt.Errorf("%w: %v", ErrTransient, err)
	}
	defer func() {
		_ = resp.Body.Close()
	}()

	if resp.StatusCode != http.StatusOK {
		bodyBytes, _ := io.ReadAll(resp.Body)
		kind := ErrPermanent
		if transientStatus(resp.StatusCode) {
			kind = ErrTransient
		}
		return fmt.Errorf("%w: api error %d: %s", kind, resp.StatusCode, string(bodyBytes))
	}

	if err := json.NewDecoder(resp.Body).Decode(respBody); err != nil {
		return fmt.Errorf("%w: decode response: %v", ErrPermanent, err)
	}

	return nil
}

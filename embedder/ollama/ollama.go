// Package ollama implements embedder.Embedder against a local Ollama server.
package ollama

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"sync"
	"time"
)

// Options configures the Ollama embedder.
type Options struct {
	// BaseURL of the Ollama API (default: http://localhost:11434).
	BaseURL string

	// Model name (default: nomic-embed-text).
	Model string

	// Dimensions of the embeddings (default: 768).
	Dimensions int

	// Timeout for API requests (default: 30s).
	Timeout time.Duration

	HTTPClient *http.Client
}

// Embedder calls Ollama's /api/embed endpoint.
type Embedder struct {
	client *http.Client
	opts   Options

	// Ollama's runner is not safe for concurrent embedding requests.
	mu sync.Mutex
}

type embedRequest struct {
	Model string   `json:"model"`
	Input []string `json:"input"`
}

type embedResponse struct {
	Embeddings [][]float32 `json:"embeddings"`
}

// New creates an Ollama embedder.
func New(optFns ...func(o *Options)) *Embedder {
	opts := Options{
		BaseURL: "http://localhost:11434",
		Model:   "nomic-embed-text",
		Timeout: 30 * time.Second,
	}
	for _, fn := range optFns {
		fn(&opts)
	}
	if opts.Dimensions == 0 {
		opts.Dimensions = DefaultDimensions(opts.Model)
	}

	client := opts.HTTPClient
	if client == nil {
		client = &http.Client{Timeout: opts.Timeout}
	}

	return &Embedder{client: client, opts: opts}
}

// DefaultDimensions returns the native vector size of common Ollama models.
func DefaultDimensions(model string) int {
	switch model {
	case "all-minilm", "all-minilm:l6-v2", "bge-small-en-v1.5":
		return 384
	case "mxbai-embed-large", "bge-large-en-v1.5":
		return 1024
	default:
		return 768
	}
}

// Embed implements embedder.Embedder.
func (e *Embedder) Embed(ctx context.Context, text string) ([]float32, error) {
	vecs, err := e.EmbedBatch(ctx, []string{text})
	if err != nil {
		return nil, err
	}
	return vecs[0], nil
}

// EmbedBatch embeds texts in one request.
func (e *Embedder) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return nil, nil
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	reqBody, err := json.Marshal(embedRequest{Model: e.opts.Model, Input: texts})
	if err != nil {
		return nil, fmt.Errorf("ollama: marshal request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, e.opts.BaseURL+"/api/embed", bytes.NewReader(reqBody))
	if err != nil {
		return nil, fmt.Errorf("ollama: create request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := e.client.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("ollama: send request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return nil, fmt.Errorf("ollama: status %d: %s", resp.StatusCode, string(body))
	}

	var out embedResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, fmt.Errorf("ollama: decode response: %w", err)
	}
	if len(out.Embeddings) != len(texts) {
		return nil, fmt.Errorf("ollama: got %d embeddings for %d inputs", len(out.Embeddings), len(texts))
	}

	return out.Embeddings, nil
}

// Dimensions implements embedder.Embedder.
func (e *Embedder) Dimensions() int { return e.opts.Dimensions }

// Model returns the configured model name.
func (e *Embedder) Model() string { return e.opts.Model }

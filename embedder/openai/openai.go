// Package openai implements embedder.Embedder with the OpenAI embeddings API.
// Voyage and Mistral expose compatible endpoints and are provided as presets.
package openai

import (
	"context"
	"fmt"
	"net/http"
	"os"

	"github.com/openai/openai-go"

	openaimodel "github.com/hupe1980/assistmesh/model/openai"
)

// Options configures the embedder.
type Options struct {
	Model      string
	Dimensions int

	// SendDimensions requests Dimensions from the API. Only text-embedding-3
	// models support shortening.
	SendDimensions bool

	APIKey     string
	BaseURL    string
	MaxRetries int
	HTTPClient *http.Client

	// Provider names the endpoint in errors. Defaults to "openai".
	Provider string
}

// Embedder calls an OpenAI-compatible /embeddings endpoint.
type Embedder struct {
	client *openai.Client
	opts   Options
}

// New creates an OpenAI embedder. Dimensions default from the model name.
func New(optFns ...func(o *Options)) *Embedder {
	opts := Options{
		Model:      openai.EmbeddingModelTextEmbedding3Small,
		MaxRetries: 2,
		Provider:   "openai",
	}
	for _, fn := range optFns {
		fn(&opts)
	}
	if opts.Dimensions == 0 {
		opts.Dimensions = DefaultDimensions(opts.Model)
	}

	client := openai.NewClient(openaimodel.ClientOptions(opts.APIKey, opts.BaseURL, opts.MaxRetries, opts.HTTPClient)...)

	return &Embedder{client: &client, opts: opts}
}

// NewVoyage creates an embedder for the Voyage AI endpoint (VOYAGE_API_KEY).
func NewVoyage(optFns ...func(o *Options)) *Embedder {
	return New(append([]func(o *Options){func(o *Options) {
		o.Model = "voyage-2"
		o.Dimensions = 1024
		o.BaseURL = "https://api.voyageai.com/v1/"
		o.APIKey = os.Getenv("VOYAGE_API_KEY")
		o.Provider = "voyage"
	}}, optFns...)...)
}

// NewMistral creates an embedder for the Mistral endpoint (MISTRAL_API_KEY).
func NewMistral(optFns ...func(o *Options)) *Embedder {
	return New(append([]func(o *Options){func(o *Options) {
		o.Model = "mistral-embed"
		o.Dimensions = 1024
		o.BaseURL = "https://api.mistral.ai/v1/"
		o.APIKey = os.Getenv("MISTRAL_API_KEY")
		o.Provider = "mistral"
	}}, optFns...)...)
}

// DefaultDimensions returns the native vector size of well-known models.
func DefaultDimensions(model string) int {
	switch model {
	case "text-embedding-3-large":
		return 3072
	case "voyage-2", "voyage-large-2", "voyage-3", "mistral-embed":
		return 1024
	default:
		return 1536
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

// EmbedBatch embeds several texts in one request. Results keep input order.
func (e *Embedder) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return nil, nil
	}

	params := openai.EmbeddingNewParams{
		Input: openai.EmbeddingNewParamsInputUnion{OfArrayOfStrings: texts},
		Model: e.opts.Model,
	}
	if e.opts.Provider == "openai" {
		params.EncodingFormat = openai.EmbeddingNewParamsEncodingFormatFloat
	}
	if e.opts.SendDimensions && e.opts.Dimensions > 0 {
		params.Dimensions = openai.Int(int64(e.opts.Dimensions))
	}

	resp, err := e.client.Embeddings.New(ctx, params)
	if err != nil {
		return nil, fmt.Errorf("%s embeddings: %w", e.opts.Provider, err)
	}
	if len(resp.Data) != len(texts) {
		return nil, fmt.Errorf("%s embeddings: got %d vectors for %d inputs", e.opts.Provider, len(resp.Data), len(texts))
	}

	out := make([][]float32, len(texts))
	for _, d := range resp.Data {
		if d.Index < 0 || int(d.Index) >= len(out) {
			return nil, fmt.Errorf("%s embeddings: index %d out of range", e.opts.Provider, d.Index)
		}
		vec := make([]float32, len(d.Embedding))
		for i, v := range d.Embedding {
			vec[i] = float32(v)
		}
		out[d.Index] = vec
	}

	return out, nil
}

// Dimensions implements embedder.Embedder.
func (e *Embedder) Dimensions() int { return e.opts.Dimensions }

// Model returns the configured model name.
func (e *Embedder) Model() string { return e.opts.Model }

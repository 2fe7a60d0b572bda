package backend

import (
	"os"
	"strings"

	anthropicsdk "github.com/anthropics/anthropic-sdk-go"

	embedollama "github.com/hupe1980/assistmesh/embedder/ollama"
	embedopenai "github.com/hupe1980/assistmesh/embedder/openai"
	"github.com/hupe1980/assistmesh/model/anthropic"
	"github.com/hupe1980/assistmesh/model/groq"
	"github.com/hupe1980/assistmesh/model/mistral"
	"github.com/hupe1980/assistmesh/model/openai"
	"github.com/hupe1980/assistmesh/vector/chromem"
	"github.com/hupe1980/assistmesh/vector/pgvector"
	"github.com/hupe1980/assistmesh/vector/pinecone"
	"github.com/hupe1980/assistmesh/vector/qdrant"
)

// Parameter keys understood by the default factories.
const (
	ParamAPIKey      = "api_key"
	ParamBaseURL     = "base_url"
	ParamTemperature = "temperature"
	ParamMaxTokens   = "max_tokens"
	ParamMaxRetries  = "max_retries"
	ParamDimensions  = "dimensions"
	ParamTimeout     = "timeout"
	ParamPath        = "path"
	ParamCompress    = "compress"
	ParamHost        = "host"
	ParamPort        = "port"
	ParamUseTLS      = "use_tls"
	ParamDSN         = "dsn"
	ParamSchema      = "schema"
	ParamIndexName   = "index_name"
	ParamIndexHost   = "index_host"
)

// NewDefault returns a registry holding the built-in priority lists:
//
//	llm:          llama → groq, gpt|openai → openai, claude → anthropic, mistral → mistral
//	embedder:     ollama|nomic → ollama, ada|small → openai, voyage → voyage, mistral → mistral
//	vector_store: qdrant → qdrant, pgvector|postgres → pgvector, pinecone → pinecone,
//	              chromem|memory|local → chromem
func NewDefault(optFns ...func(o *Options)) *Registry {
	r := New(optFns...)

	for _, d := range defaultEntries() {
		// Built-in entries are complete, Register cannot fail.
		_ = r.Register(d.kind, d.entry)
	}

	return r
}

type kindEntry struct {
	kind  Kind
	entry Entry
}

func defaultEntries() []kindEntry {
	return []kindEntry{
		{KindLanguageModel, Entry{Backend: "groq", Keywords: []string{"llama"}, Description: "Groq OpenAI-compatible API (GROQ_API_KEY)", New: newGroq}},
		{KindLanguageModel, Entry{Backend: "openai", Keywords: []string{"gpt", "openai"}, Description: "OpenAI Chat Completions (OPENAI_API_KEY)", New: newOpenAI}},
		{KindLanguageModel, Entry{Backend: "anthropic", Keywords: []string{"claude"}, Description: "Anthropic Messages API (ANTHROPIC_API_KEY)", New: newAnthropic}},
		{KindLanguageModel, Entry{Backend: "mistral", Keywords: []string{"mistral"}, Description: "Mistral OpenAI-compatible API (MISTRAL_API_KEY)", New: newMistral}},

		{KindEmbedder, Entry{Backend: "ollama", Keywords: []string{"ollama", "nomic"}, Description: "Ollama /api/embed, 768 dimensions", New: newOllamaEmbedder}},
		{KindEmbedder, Entry{Backend: "openai", Keywords: []string{"ada", "small"}, Description: "OpenAI embeddings, 1536 dimensions", New: newOpenAIEmbedder}},
		{KindEmbedder, Entry{Backend: "voyage", Keywords: []string{"voyage"}, Description: "Voyage AI embeddings, 1024 dimensions", New: newVoyageEmbedder}},
		{KindEmbedder, Entry{Backend: "mistral", Keywords: []string{"mistral"}, Description: "Mistral embeddings, 1024 dimensions", New: newMistralEmbedder}},

		{KindVectorStore, Entry{Backend: "qdrant", Keywords: []string{"qdrant"}, Description: "Qdrant over gRPC", New: newQdrant}},
		{KindVectorStore, Entry{Backend: "pgvector", Keywords: []string{"pgvector", "postgres"}, Description: "PostgreSQL with pgvector", New: newPgvector}},
		{KindVectorStore, Entry{Backend: "pinecone", Keywords: []string{"pinecone"}, Description: "Pinecone serverless index", New: newPinecone}},
		{KindVectorStore, Entry{Backend: "chromem", Keywords: []string{"chromem", "memory", "local"}, Description: "embedded chromem-go database", New: newChromem}},
	}
}

// modelName returns name unless it only names the provider, in which case
// the adapter default is kept.
func modelName(name string, providers ...string) string {
	for _, p := range providers {
		if strings.EqualFold(name, p) {
			return ""
		}
	}
	return name
}

func openAIOptions(name string, p Params, providers ...string) func(o *openai.Options) {
	return func(o *openai.Options) {
		if m := modelName(name, providers...); m != "" {
			o.Model = m
		}
		if v := p.String(ParamAPIKey, ""); v != "" {
			o.APIKey = v
		}
		if v := p.String(ParamBaseURL, ""); v != "" {
			o.BaseURL = v
		}
		o.Temperature = p.Float(ParamTemperature, o.Temperature)
		o.MaxCompletionTokens = int64(p.Int(ParamMaxTokens, int(o.MaxCompletionTokens)))
		o.MaxRetries = p.Int(ParamMaxRetries, o.MaxRetries)
	}
}

func newOpenAI(name string, p Params) (any, error) {
	return openai.NewModel(openAIOptions(name, p, "openai")), nil
}

func newGroq(name string, p Params) (any, error) {
	return groq.NewModel(openAIOptions(name, p, "groq")), nil
}

func newMistral(name string, p Params) (any, error) {
	return mistral.NewModel(openAIOptions(name, p, "mistral")), nil
}

func newAnthropic(name string, p Params) (any, error) {
	return anthropic.NewModel(func(o *anthropic.Options) {
		if m := modelName(name, "anthropic", "claude"); m != "" {
			o.Model = anthropicsdk.Model(m)
		}
		if v := p.String(ParamAPIKey, ""); v != "" {
			o.APIKey = v
		}
		if v := p.String(ParamBaseURL, ""); v != "" {
			o.BaseURL = v
		}
		o.Temperature = p.Float(ParamTemperature, o.Temperature)
		o.MaxTokens = int64(p.Int(ParamMaxTokens, int(o.MaxTokens)))
		o.MaxRetries = p.Int(ParamMaxRetries, o.MaxRetries)
	}), nil
}

func newOllamaEmbedder(name string, p Params) (any, error) {
	return embedollama.New(func(o *embedollama.Options) {
		if m := modelName(name, "ollama"); m != "" {
			o.Model = m
		}
		o.BaseURL = p.String(ParamBaseURL, o.BaseURL)
		o.Dimensions = p.Int(ParamDimensions, o.Dimensions)
		o.Timeout = p.Duration(ParamTimeout, o.Timeout)
	}), nil
}

func embedderOptions(name string, p Params, providers ...string) func(o *embedopenai.Options) {
	return func(o *embedopenai.Options) {
		if m := modelName(name, providers...); m != "" {
			o.Model = m
		}
		if v := p.String(ParamAPIKey, ""); v != "" {
			o.APIKey = v
		}
		if v := p.String(ParamBaseURL, ""); v != "" {
			o.BaseURL = v
		}
		if d := p.Int(ParamDimensions, 0); d > 0 {
			o.Dimensions = d
			o.SendDimensions = true
		}
	}
}

func newOpenAIEmbedder(name string, p Params) (any, error) {
	return embedopenai.New(embedderOptions(name, p, "openai")), nil
}

func newVoyageEmbedder(name string, p Params) (any, error) {
	return embedopenai.NewVoyage(embedderOptions(name, p, "voyage")), nil
}

func newMistralEmbedder(name string, p Params) (any, error) {
	return embedopenai.NewMistral(embedderOptions(name, p, "mistral")), nil
}

func newQdrant(_ string, p Params) (any, error) {
	return qdrant.New(func(o *qdrant.Options) {
		o.Host = p.String(ParamHost, o.Host)
		o.Port = p.Int(ParamPort, o.Port)
		o.APIKey = p.String(ParamAPIKey, o.APIKey)
		o.UseTLS = p.Bool(ParamUseTLS, o.UseTLS)
	})
}

func newPgvector(_ string, p Params) (any, error) {
	return pgvector.New(func(o *pgvector.Options) {
		o.DSN = p.String(ParamDSN, o.DSN)
		o.Schema = p.String(ParamSchema, o.Schema)
	})
}

func newPinecone(_ string, p Params) (any, error) {
	return pinecone.New(func(o *pinecone.Options) {
		o.APIKey = p.String(ParamAPIKey, os.Getenv("PINECONE_API_KEY"))
		o.IndexName = p.String(ParamIndexName, o.IndexName)
		o.IndexHost = p.String(ParamIndexHost, o.IndexHost)
	})
}

func newChromem(_ string, p Params) (any, error) {
	return chromem.New(func(o *chromem.Options) {
		o.Path = p.String(ParamPath, o.Path)
		o.Compress = p.Bool(ParamCompress, o.Compress)
	})
}

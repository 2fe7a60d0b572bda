package backend

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hupe1980/assistmesh/core"
	"github.com/hupe1980/assistmesh/vector/chromem"
)

func TestSelectScenarioNames(t *testing.T) {
	r := NewDefault()

	tests := []struct {
		name    string
		backend string
	}{
		{"gpt-4-turbo", "openai"},
		{"claude-3-haiku-20240307", "anthropic"},
		{"llama3-70b-8192", "groq"},
		{"mistral-large-latest", "mistral"},
		{"GPT-4o", "openai"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := r.Select(KindLanguageModel, tt.name)
			require.NoError(t, err)
			assert.Equal(t, tt.backend, got)
		})
	}
}

func TestSelectUnsupported(t *testing.T) {
	r := NewDefault()

	_, err := r.Select(KindLanguageModel, "unicorn-9000")
	require.Error(t, err)
	assert.ErrorIs(t, err, core.ErrUnsupportedBackend)

	var ube *core.UnsupportedBackendError
	require.ErrorAs(t, err, &ube)
	assert.Equal(t, "llm", ube.Kind)
	assert.Equal(t, "unicorn-9000", ube.Name)
}

func TestSelectIsDeterministic(t *testing.T) {
	r := NewDefault()
	for _, kind := range Kinds {
		for _, name := range []string{"nomic-embed-text", "text-embedding-ada-002", "qdrant", "gpt-4", "local"} {
			first, err1 := r.Select(kind, name)
			second, err2 := r.Select(kind, name)
			assert.Equal(t, first, second)
			assert.Equal(t, err1 == nil, err2 == nil)
		}
	}
}

func TestSelectEmbeddersAndStores(t *testing.T) {
	r := NewDefault()

	embedders := map[string]string{
		"nomic-embed-text":       "ollama",
		"ollama":                 "ollama",
		"text-embedding-3-small": "openai",
		"text-embedding-ada-002": "openai",
		"voyage-2":               "voyage",
		"mistral-embed":          "mistral",
	}
	for name, want := range embedders {
		got, err := r.Select(KindEmbedder, name)
		require.NoError(t, err, name)
		assert.Equal(t, want, got, name)
	}

	stores := map[string]string{
		"qdrant":   "qdrant",
		"pgvector": "pgvector",
		"postgres": "pgvector",
		"pinecone": "pinecone",
		"chromem":  "chromem",
		"memory":   "chromem",
	}
	for name, want := range stores {
		got, err := r.Select(KindVectorStore, name)
		require.NoError(t, err, name)
		assert.Equal(t, want, got, name)
	}
}

func TestResolveUnsupportedConstructsNothing(t *testing.T) {
	called := false
	var resolved []string

	r := New(func(o *Options) {
		o.OnResolve = func(kind Kind, backendName string, err error) {
			resolved = append(resolved, backendName)
		}
	})
	require.NoError(t, r.Register(KindLanguageModel, Entry{
		Backend:  "fake",
		Keywords: []string{"fake"},
		New: func(string, Params) (any, error) {
			called = true
			return nil, nil
		},
	}))

	_, err := r.ResolveModel("unicorn-9000", nil)
	assert.ErrorIs(t, err, core.ErrUnsupportedBackend)
	assert.False(t, called)
	assert.Equal(t, []string{""}, resolved)
}

func TestResolveModels(t *testing.T) {
	r := NewDefault()

	for name, provider := range map[string]string{
		"gpt-4-turbo":             "openai",
		"claude-3-haiku-20240307": "anthropic",
		"llama3-70b-8192":         "groq",
	} {
		m, err := r.ResolveModel(name, Params{ParamAPIKey: "test", ParamTemperature: 0.2})
		require.NoError(t, err, name)
		assert.Equal(t, provider, m.Info().Provider, name)
		assert.Equal(t, name, m.Info().Name, name)
	}
}

func TestResolveEmbedderDimensions(t *testing.T) {
	r := NewDefault()

	e, err := r.ResolveEmbedder("nomic-embed-text", nil)
	require.NoError(t, err)
	assert.Equal(t, 768, e.Dimensions())

	e, err = r.ResolveEmbedder("text-embedding-3-small", Params{ParamAPIKey: "test"})
	require.NoError(t, err)
	assert.Equal(t, 1536, e.Dimensions())

	e, err = r.ResolveEmbedder("voyage-2", Params{ParamAPIKey: "test"})
	require.NoError(t, err)
	assert.Equal(t, 1024, e.Dimensions())
}

func TestResolveVectorStore(t *testing.T) {
	r := NewDefault()

	s, err := r.ResolveVectorStore("chromem", nil)
	require.NoError(t, err)
	assert.IsType(t, &chromem.Store{}, s)
	require.NoError(t, s.Close())

	t.Setenv("PINECONE_API_KEY", "")
	_, err = r.ResolveVectorStore("pinecone", nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "api key is required")
	assert.NotErrorIs(t, err, core.ErrUnsupportedBackend)
}

func TestResolveFactoryError(t *testing.T) {
	r := New()
	boom := errors.New("boom")
	require.NoError(t, r.Register(KindVectorStore, Entry{
		Backend:  "broken",
		Keywords: []string{"broken"},
		New:      func(string, Params) (any, error) { return nil, boom },
	}))

	_, err := r.ResolveVectorStore("broken-store", nil)
	assert.ErrorIs(t, err, boom)
	assert.NotErrorIs(t, err, core.ErrUnsupportedBackend)
}

func TestResolveWrongType(t *testing.T) {
	r := New()
	require.NoError(t, r.Register(KindLanguageModel, Entry{
		Backend:  "odd",
		Keywords: []string{"odd"},
		New:      func(string, Params) (any, error) { return "not a model", nil },
	}))

	_, err := r.ResolveModel("odd", nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "returned string")
}

func TestRegisterValidation(t *testing.T) {
	r := New()
	assert.Error(t, r.Register(KindLanguageModel, Entry{Keywords: []string{"x"}}))
	assert.Error(t, r.Register(KindLanguageModel, Entry{Backend: "x"}))
	assert.Error(t, r.Register(KindLanguageModel, Entry{Backend: "x", Keywords: []string{"x"}}))
}

func TestEntriesOrder(t *testing.T) {
	entries := NewDefault().Entries(KindLanguageModel)
	require.Len(t, entries, 4)

	var backends []string
	for i, e := range entries {
		assert.Equal(t, i+1, e.Priority)
		backends = append(backends, e.Backend)
	}
	assert.Equal(t, []string{"groq", "openai", "anthropic", "mistral"}, backends)
}

func TestParams(t *testing.T) {
	p := Params{"s": "x", "i": 3, "f": 0.5, "b": "true", "fi": 7.0, "si": "9", "d": "2s"}

	assert.Equal(t, "x", p.String("s", "d"))
	assert.Equal(t, "d", p.String("missing", "d"))
	assert.Equal(t, 3, p.Int("i", 0))
	assert.Equal(t, 7, p.Int("fi", 0))
	assert.Equal(t, 9, p.Int("si", 0))
	assert.Equal(t, 0.5, p.Float("f", 0))
	assert.Equal(t, 3.0, p.Float("i", 0))
	assert.True(t, p.Bool("b", false))
	assert.Equal(t, "2s", p.Duration("d", 0).String())
	assert.Equal(t, 3*1e9, float64(p.Duration("i", 0)))

	var nilParams Params
	assert.Equal(t, "d", nilParams.String("x", "d"))
}

package openai

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEmbedBatch_RestoresOrder(t *testing.T) {
	var body map[string]any

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{
		  "object": "list",
		  "model": "text-embedding-3-small",
		  "data": [
		    {"object": "embedding", "index": 1, "embedding": [0.0, 1.0]},
		    {"object": "embedding", "index": 0, "embedding": [1.0, 0.0]}
		  ],
		  "usage": {"prompt_tokens": 2, "total_tokens": 2}
		}`))
	}))
	defer srv.Close()

	e := New(func(o *Options) {
		o.APIKey = "test"
		o.BaseURL = srv.URL
		o.MaxRetries = 0
		o.Dimensions = 2
		o.SendDimensions = true
	})

	vecs, err := e.EmbedBatch(context.Background(), []string{"first", "second"})
	require.NoError(t, err)
	assert.Equal(t, [][]float32{{1, 0}, {0, 1}}, vecs)
	assert.Equal(t, "text-embedding-3-small", body["model"])
	assert.Equal(t, float64(2), body["dimensions"])
	assert.Equal(t, "float", body["encoding_format"])
}

func TestEmbed_Error(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
		_, _ = w.Write([]byte(`{"error":{"message":"nope"}}`))
	}))
	defer srv.Close()

	e := NewVoyage(func(o *Options) {
		o.APIKey = "test"
		o.BaseURL = srv.URL
		o.MaxRetries = 0
	})

	_, err := e.Embed(context.Background(), "x")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "voyage embeddings")
	assert.Equal(t, 1024, e.Dimensions())
}

func TestDefaultDimensions(t *testing.T) {
	assert.Equal(t, 1536, DefaultDimensions("text-embedding-ada-002"))
	assert.Equal(t, 3072, DefaultDimensions("text-embedding-3-large"))
	assert.Equal(t, 1024, NewMistral(func(o *Options) { o.APIKey = "x" }).Dimensions())
}

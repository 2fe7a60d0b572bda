package testutil

import (
	"context"
	"errors"
	"hash/fnv"
	"strings"
	"unicode"

	"github.com/hupe1980/assistmesh/embedder"
)

// HashEmbedder is a deterministic bag-of-words embedder. Texts sharing words
// have a positive cosine similarity.
type HashEmbedder struct {
	Dims int
}

// NewHashEmbedder returns a HashEmbedder with dims dimensions.
func NewHashEmbedder(dims int) *HashEmbedder { return &HashEmbedder{Dims: dims} }

// Embed implements embedder.Embedder.
func (e *HashEmbedder) Embed(_ context.Context, text string) ([]float32, error) {
	vec := make([]float32, e.Dims)
	words := strings.FieldsFunc(strings.ToLower(text), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsNumber(r)
	})
	for _, w := range words {
		h := fnv.New32a()
		_, _ = h.Write([]byte(w))
		vec[h.Sum32()%uint32(e.Dims)]++
	}
	if len(words) == 0 {
		vec[0] = 1
	}
	return embedder.Normalize(vec), nil
}

// Dimensions implements embedder.Embedder.
func (e *HashEmbedder) Dimensions() int { return e.Dims }

// ErrOutage is returned by the failing fakes.
var ErrOutage = errors.New("simulated outage")

// FailingEmbedder always fails.
type FailingEmbedder struct{ Dims int }

// Embed implements embedder.Embedder.
func (FailingEmbedder) Embed(context.Context, string) ([]float32, error) { return nil, ErrOutage }

// Dimensions implements embedder.Embedder.
func (e FailingEmbedder) Dimensions() int { return e.Dims }

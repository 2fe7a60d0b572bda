package embedder

import (
	"context"
	"errors"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type lengthEmbedder struct{ fail bool }

func (e lengthEmbedder) Embed(_ context.Context, text string) ([]float32, error) {
	if e.fail {
		return nil, errors.New("down")
	}
	return []float32{float32(len(text)), 1}, nil
}

func (lengthEmbedder) Dimensions() int { return 2 }

func TestEmbedAll(t *testing.T) {
	vecs, err := EmbedAll(context.Background(), lengthEmbedder{}, []string{"a", "abc"})
	require.NoError(t, err)
	assert.Equal(t, [][]float32{{1, 1}, {3, 1}}, vecs)

	_, err = EmbedAll(context.Background(), lengthEmbedder{fail: true}, []string{"a"})
	assert.Error(t, err)
}

func TestNormalize(t *testing.T) {
	vec := Normalize([]float32{3, 4})
	assert.InDelta(t, 0.6, vec[0], 1e-6)
	assert.InDelta(t, 0.8, vec[1], 1e-6)

	var sum float64
	for _, v := range vec {
		sum += float64(v * v)
	}
	assert.InDelta(t, 1, math.Sqrt(sum), 1e-6)

	assert.Equal(t, []float32{0, 0}, Normalize([]float32{0, 0}))
}

func TestCheckDimensions(t *testing.T) {
	assert.NoError(t, CheckDimensions([]float32{1, 2}, 2))
	assert.NoError(t, CheckDimensions([]float32{1, 2}, 0))
	assert.Error(t, CheckDimensions([]float32{1}, 2))
}

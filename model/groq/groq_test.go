package groq

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/hupe1980/assistmesh/model/openai"
)

func TestNewModel(t *testing.T) {
	t.Setenv("GROQ_API_KEY", "gsk_test")

	m := NewModel()
	assert.Equal(t, "groq", m.Info().Provider)
	assert.Equal(t, DefaultModel, m.Info().Name)

	m = NewModel(func(o *openai.Options) { o.Model = "llama3-8b-8192" })
	assert.Equal(t, "llama3-8b-8192", m.Info().Name)
}

package mistral

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestNewModel(t *testing.T) {
	t.Setenv("MISTRAL_API_KEY", "test")

	info := NewModel().Info()
	assert.Equal(t, "mistral", info.Provider)
	assert.Equal(t, DefaultModel, info.Name)
	assert.True(t, info.SupportsTools)
}

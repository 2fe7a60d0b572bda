package runstore

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/hupe1980/assistmesh/core"
)

func TestUnavailable(t *testing.T) {
	cause := errors.New("connection refused")
	err := Unavailable("append", cause)

	assert.ErrorIs(t, err, core.ErrStorageUnavailable)
	assert.ErrorIs(t, err, cause)
	assert.Contains(t, err.Error(), "runstore append")
}

func TestLastN(t *testing.T) {
	turns := []core.Turn{
		core.NewTurn(core.RoleUser, "1"),
		core.NewTurn(core.RoleAssistant, "2"),
		core.NewTurn(core.RoleUser, "3"),
	}

	assert.Len(t, LastN(turns, 0), 3)
	assert.Len(t, LastN(turns, 10), 3)
	last := LastN(turns, 2)
	assert.Equal(t, "2", last[0].Content)
	assert.Equal(t, "3", last[1].Content)
}

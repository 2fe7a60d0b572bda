package shell

import (
	"context"
	"errors"
	"runtime"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hupe1980/assistmesh/core"
	"github.com/hupe1980/assistmesh/tool"
)

func TestRunShellCommand(t *testing.T) {
	if runtime.GOOS == "windows" {
		t.Skip("requires a unix shell")
	}

	set, err := tool.NewSet(New())
	require.NoError(t, err)

	out, err := set.Call(core.NewToolContext(context.Background()), Name, `{"args":["echo","hello"]}`)
	require.NoError(t, err)
	assert.Equal(t, "hello", out)
}

func TestRunShellCommandFailure(t *testing.T) {
	if runtime.GOOS == "windows" {
		t.Skip("requires a unix shell")
	}

	set, err := tool.NewSet(New())
	require.NoError(t, err)

	_, err = set.Call(core.NewToolContext(context.Background()), Name, `{"args":["sh","-c","echo boom >&2; exit 3"]}`)
	var toolErr *tool.ToolError
	require.True(t, errors.As(err, &toolErr))
	assert.Contains(t, toolErr.Message, "boom")
}

func TestAllowList(t *testing.T) {
	set, err := tool.NewSet(New(func(o *Options) { o.Allow = []string{"ls"} }))
	require.NoError(t, err)

	_, err = set.Call(core.NewToolContext(context.Background()), Name, `{"args":["rm","-rf","/"]}`)
	var toolErr *tool.ToolError
	require.True(t, errors.As(err, &toolErr))
	assert.Contains(t, toolErr.Message, "not allowed")
}

func TestTail(t *testing.T) {
	assert.Equal(t, "b\nc", tail("a\nb\nc\n", 2))
	assert.Equal(t, "a", tail("a\n", 5))
}

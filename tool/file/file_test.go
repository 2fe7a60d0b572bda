package file

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hupe1980/assistmesh/core"
	"github.com/hupe1980/assistmesh/tool"
)

func newSet(t *testing.T, dir string, optFns ...func(o *Options)) *tool.Set {
	t.Helper()
	tools, err := Tools(dir, optFns...)
	require.NoError(t, err)
	set, err := tool.NewSet(tools...)
	require.NoError(t, err)
	return set
}

func TestSaveReadList(t *testing.T) {
	dir := t.TempDir()
	set := newSet(t, dir)
	tc := core.NewToolContext(context.Background())

	out, err := set.Call(tc, SaveFile, `{"contents":"hello","file_name":"a.txt"}`)
	require.NoError(t, err)
	assert.Equal(t, "a.txt", out)

	data, err := os.ReadFile(filepath.Join(dir, "a.txt"))
	require.NoError(t, err)
	assert.Equal(t, "hello", string(data))

	out, err = set.Call(tc, ReadFile, `{"file_name":"a.txt"}`)
	require.NoError(t, err)
	assert.Equal(t, "hello", out)

	require.NoError(t, os.Mkdir(filepath.Join(dir, "sub"), 0o755))
	out, err = set.Call(tc, ListFiles, `{}`)
	require.NoError(t, err)
	assert.Equal(t, []string{"a.txt", "sub/"}, out)
}

func TestSaveWithoutOverwrite(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "a.txt"), []byte("old"), 0o600))
	set := newSet(t, dir)

	_, err := set.Call(core.NewToolContext(context.Background()), SaveFile, `{"contents":"new","file_name":"a.txt","overwrite":false}`)
	var toolErr *tool.ToolError
	require.True(t, errors.As(err, &toolErr))
	assert.Contains(t, toolErr.Message, "already exists")
}

func TestConfinedToBaseDir(t *testing.T) {
	parent := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(parent, "secret.txt"), []byte("s"), 0o600))
	base := filepath.Join(parent, "base")
	require.NoError(t, os.Mkdir(base, 0o755))

	set := newSet(t, base)
	tc := core.NewToolContext(context.Background())

	_, err := set.Call(tc, ReadFile, `{"file_name":"../secret.txt"}`)
	assert.Error(t, err)

	_, err = set.Call(tc, SaveFile, `{"contents":"x","file_name":"../escape.txt"}`)
	assert.Error(t, err)
	_, statErr := os.Stat(filepath.Join(parent, "escape.txt"))
	assert.True(t, os.IsNotExist(statErr))
}

func TestReadOnly(t *testing.T) {
	set := newSet(t, t.TempDir(), func(o *Options) { o.ReadOnly = true })
	assert.Equal(t, []string{ReadFile, ListFiles}, set.Names())
}

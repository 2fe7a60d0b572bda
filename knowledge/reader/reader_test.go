package reader

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeFile(t *testing.T, path, content string) {
	t.Helper()
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
}

func TestReadFileText(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "notes.md")
	writeFile(t, path, "# Notes\n\nhello")

	doc, err := ReadFile(context.Background(), path)
	require.NoError(t, err)
	assert.Equal(t, "notes.md", doc.Source)
	assert.Equal(t, "# Notes\n\nhello", doc.Text)
	assert.Equal(t, "md", doc.Metadata[MetaFormat])
}

func TestReadFileUnsupported(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "image.png")
	writeFile(t, path, "png")

	_, err := ReadFile(context.Background(), path)
	assert.ErrorIs(t, err, ErrUnsupportedFormat)
}

func TestReadPathsWalksDirectories(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, filepath.Join(dir, "a.txt"), "alpha")
	writeFile(t, filepath.Join(dir, "sub", "b.md"), "beta")
	writeFile(t, filepath.Join(dir, "sub", "skip.bin"), "xx")

	docs, err := ReadPaths(context.Background(), dir)
	require.NoError(t, err)
	require.Len(t, docs, 2)

	sources := []string{docs[0].Source, docs[1].Source}
	assert.ElementsMatch(t, []string{"a.txt", "b.md"}, sources)
}

func TestReadPathsMissing(t *testing.T) {
	_, err := ReadPaths(context.Background(), filepath.Join(t.TempDir(), "missing.txt"))
	assert.Error(t, err)
}

func TestSupported(t *testing.T) {
	assert.True(t, Supported("x.PDF"))
	assert.True(t, Supported("x.txt"))
	assert.False(t, Supported("x.exe"))
}

func TestWatch(t *testing.T) {
	dir := t.TempDir()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	got := make(chan []string, 4)
	done := make(chan error, 1)
	go func() {
		done <- Watch(ctx, dir, func(_ context.Context, paths []string) { got <- paths }, func(o *WatchOptions) {
			o.Debounce = 20 * time.Millisecond
		})
	}()

	// Give the watcher time to register the directory.
	time.Sleep(100 * time.Millisecond)

	require.NoError(t, os.WriteFile(filepath.Join(dir, "notes.md"), []byte("# notes"), 0o600))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "image.png"), []byte{0x89}, 0o600))

	select {
	case paths := <-got:
		assert.Equal(t, []string{filepath.Join(dir, "notes.md")}, paths)
	case <-time.After(5 * time.Second):
		t.Fatal("no watch event")
	}

	cancel()
	require.NoError(t, <-done)
}

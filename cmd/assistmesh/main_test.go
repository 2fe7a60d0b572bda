package main

import (
	"bytes"
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/alecthomas/kong"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hupe1980/assistmesh/agent"
	"github.com/hupe1980/assistmesh/core"
	"github.com/hupe1980/assistmesh/internal/testutil"
	"github.com/hupe1980/assistmesh/orchestrator"
	"github.com/hupe1980/assistmesh/runstore/memory"
)

func newTestOrchestrator(t *testing.T, steps ...testutil.Step) (*orchestrator.Orchestrator, *memory.Store) {
	t.Helper()

	a, err := agent.New("root", testutil.NewScriptedModel(steps...))
	require.NoError(t, err)

	runs := memory.New()
	return orchestrator.New(a, func(o *orchestrator.Options) { o.Runs = runs }), runs
}

func TestChatLoop(t *testing.T) {
	o, runs := newTestOrchestrator(t, testutil.Reply("hi"), testutil.Reply("again"))

	ctx := context.Background()
	runID, err := o.CreateRun(ctx, "u1")
	require.NoError(t, err)

	in := strings.NewReader("hello\n\n  second  \nexit\nnever sent\n")
	var out bytes.Buffer

	require.NoError(t, chatLoop(ctx, o, runID, "u1", in, &out, false))
	assert.Equal(t, "hi\nagain\n", out.String())

	turns, err := runs.History(ctx, runID)
	require.NoError(t, err)
	require.Len(t, turns, 4)
	assert.Equal(t, "second", turns[2].Content)
}

func TestChatLoop_ErrorsContinue(t *testing.T) {
	o, _ := newTestOrchestrator(t, testutil.Fail(errors.New("boom")), testutil.Reply("recovered"))

	in := strings.NewReader("first\nsecond\n")
	var out bytes.Buffer

	require.NoError(t, chatLoop(context.Background(), o, "run-1", "u1", in, &out, true))

	lines := strings.Split(out.String(), "\n")
	require.Len(t, lines, 3)
	assert.True(t, strings.HasPrefix(lines[0], "> error: "))
	assert.Contains(t, lines[0], "boom")
	assert.Equal(t, "> recovered", lines[1])
	assert.Equal(t, "> ", lines[2])
}

func TestPrintValue(t *testing.T) {
	turn := core.Turn{Role: core.RoleUser, Content: "hi"}

	var js bytes.Buffer
	require.NoError(t, printValue(&js, "json", turn))
	assert.Contains(t, js.String(), `"role": "user"`)

	var ym bytes.Buffer
	require.NoError(t, printValue(&ym, "yaml", map[string]any{"run_ids": []string{"a", "b"}}))
	assert.Equal(t, "run_ids:\n  - a\n  - b\n", ym.String())

	assert.Error(t, printValue(&js, "xml", turn))
}

func TestLoadEnv(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, ".env")
	require.NoError(t, os.WriteFile(path, []byte("ASSISTMESH_TEST_VALUE=from-dotenv\n"), 0o600))

	t.Setenv("ASSISTMESH_TEST_VALUE", "")
	require.NoError(t, os.Unsetenv("ASSISTMESH_TEST_VALUE"))

	require.NoError(t, loadEnv(filepath.Join(dir, "missing.env"), path))
	assert.Equal(t, "from-dotenv", os.Getenv("ASSISTMESH_TEST_VALUE"))
}

func TestParseCommands(t *testing.T) {
	tests := []struct {
		args    []string
		command string
		check   func(t *testing.T, cli *CLI)
	}{
		{
			args:    []string{"resolve", "llm", "claude-3-haiku-20240307", "-o", "json"},
			command: "resolve <kind> <name>",
			check: func(t *testing.T, cli *CLI) {
				assert.Equal(t, "llm", cli.Resolve.Kind)
				assert.Equal(t, "claude-3-haiku-20240307", cli.Resolve.Name)
				assert.Equal(t, "json", cli.Resolve.Output)
			},
		},
		{
			args:    []string{"ask", "What's 2+3?", "--run", "r1", "--user", "alice"},
			command: "ask <message>",
			check: func(t *testing.T, cli *CLI) {
				assert.Equal(t, "What's 2+3?", cli.Ask.Message)
				assert.Equal(t, "r1", cli.Ask.RunID)
				assert.Equal(t, "alice", cli.Ask.User)
				assert.Equal(t, "text", cli.Ask.Output)
			},
		},
		{
			args:    []string{"clear", "-y"},
			command: "clear",
			check: func(t *testing.T, cli *CLI) {
				assert.True(t, cli.Clear.Yes)
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.command, func(t *testing.T) {
			var cli CLI
			parser, err := kong.New(&cli, kong.Exit(func(int) { t.Fatal("unexpected exit") }))
			require.NoError(t, err)

			kctx, err := parser.Parse(tt.args)
			require.NoError(t, err)
			assert.Equal(t, tt.command, kctx.Command())
			tt.check(t, &cli)
		})
	}
}

func TestParseRejectsUnknownKind(t *testing.T) {
	var cli CLI
	parser, err := kong.New(&cli, kong.Exit(func(int) {}))
	require.NoError(t, err)

	_, err = parser.Parse([]string{"resolve", "database", "x"})
	assert.Error(t, err)
}

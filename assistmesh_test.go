package assistmesh

import (
	"context"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hupe1980/assistmesh/backend"
	"github.com/hupe1980/assistmesh/config"
	"github.com/hupe1980/assistmesh/core"
	itest "github.com/hupe1980/assistmesh/internal/testutil"
	"github.com/hupe1980/assistmesh/knowledge"
	"github.com/hupe1980/assistmesh/runstore/memory"
	"github.com/hupe1980/assistmesh/telemetry"
)

func TestLoadDefaults(t *testing.T) {
	metrics := telemetry.NewMetrics()

	a, err := Load(context.Background(), "", func(o *Options) {
		o.Metrics = metrics
	})
	require.NoError(t, err)
	defer a.Close()

	assert.Equal(t, config.DefaultAgentName, a.Root.Name())
	assert.Equal(t, "openai", a.Root.Model().Info().Provider)
	require.NotNil(t, a.Knowledge)
	assert.Equal(t, knowledge.CollectionName("gpt-4o-mini", "text-embedding-3-small", "chromem"), a.Knowledge.Collection())

	// One series per resolved kind: llm, embedder and vector store.
	n, err := testutil.GatherAndCount(metrics.Registry(), "assistmesh_backend_resolutions_total")
	require.NoError(t, err)
	assert.Equal(t, 3, n)
}

func TestOpenUnsupportedBackend(t *testing.T) {
	cfg, err := config.Load("")
	require.NoError(t, err)
	cfg.Assistant.Agents[0].LLM.Name = "unicorn-9000"

	_, err = Open(context.Background(), cfg)
	require.Error(t, err)
	assert.ErrorIs(t, err, core.ErrUnsupportedBackend)
}

func TestOpenCustomRegistry(t *testing.T) {
	registry := backend.New()
	require.NoError(t, registry.Register(backend.KindLanguageModel, backend.Entry{
		Backend:  "scripted",
		Keywords: []string{"scripted"},
		New: func(string, backend.Params) (any, error) {
			return itest.NewScriptedModel(itest.Reply("hello there")), nil
		},
	}))

	cfg, err := config.Load("")
	require.NoError(t, err)
	cfg.Knowledge.Enabled = false
	cfg.Assistant.Agents[0].LLM.Name = "scripted-1"

	runs := memory.New()
	a, err := Open(context.Background(), cfg, func(o *Options) {
		o.Registry = registry
		o.Runs = runs
	})
	require.NoError(t, err)
	defer a.Close()

	assert.Nil(t, a.Knowledge)

	ctx := context.Background()
	runID, err := a.CreateRun(ctx, "u1")
	require.NoError(t, err)

	text, err := a.HandleMessage(ctx, runID, "u1", "hi")
	require.NoError(t, err)
	assert.Equal(t, "hello there", text)

	turns, err := runs.History(ctx, runID)
	require.NoError(t, err)
	require.Len(t, turns, 2)
	assert.Equal(t, core.RoleUser, turns[0].Role)
}

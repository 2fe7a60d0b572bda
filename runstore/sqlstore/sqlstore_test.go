package sqlstore

import (
	"context"
	"fmt"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hupe1980/assistmesh/core"
	"github.com/hupe1980/assistmesh/runstore"
)

func openSQLite(t *testing.T) *Store {
	t.Helper()

	s, err := Open(context.Background(), func(o *Options) {
		o.Dialect = DialectSQLite
		o.DSN = filepath.Join(t.TempDir(), "runs.db")
		o.TablePrefix = "test-runs"
	})
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })

	return s
}

func TestStore_AppendAndHistory(t *testing.T) {
	ctx := context.Background()
	s := openSQLite(t)

	for i := range 6 {
		role := core.RoleUser
		if i%2 == 1 {
			role = core.RoleAssistant
		}
		require.NoError(t, s.AppendTurn(ctx, "r1", core.Turn{Role: role, Content: fmt.Sprint(i), Name: "root", Timestamp: time.Now().UTC()}))
	}

	turns, err := s.History(ctx, "r1")
	require.NoError(t, err)
	require.Len(t, turns, 6)
	for i, turn := range turns {
		assert.Equal(t, fmt.Sprint(i), turn.Content)
	}
	assert.Equal(t, core.RoleAssistant, turns[1].Role)
	assert.Equal(t, "root", turns[1].Name)
}

func TestStore_UnknownRun(t *testing.T) {
	s := openSQLite(t)

	turns, err := s.History(context.Background(), "missing")
	require.NoError(t, err)
	assert.NotNil(t, turns)
	assert.Empty(t, turns)

	_, err = s.GetRun(context.Background(), "missing")
	assert.ErrorIs(t, err, runstore.ErrRunNotFound)
}

func TestStore_Runs(t *testing.T) {
	ctx := context.Background()
	s := openSQLite(t)

	base := time.Now().UTC()
	require.NoError(t, s.CreateRun(ctx, core.Run{ID: "r2", UserID: "alice", CreatedAt: base.Add(time.Second)}))
	require.NoError(t, s.CreateRun(ctx, core.Run{ID: "r1", UserID: "alice", AgentName: "root", CreatedAt: base}))
	require.NoError(t, s.CreateRun(ctx, core.Run{ID: "r3", UserID: "bob", CreatedAt: base}))
	require.NoError(t, s.CreateRun(ctx, core.Run{ID: "r1", UserID: "mallory"}))

	ids, err := s.ListRunIDs(ctx, "alice")
	require.NoError(t, err)
	assert.Equal(t, []string{"r1", "r2"}, ids)

	run, err := s.GetRun(ctx, "r1")
	require.NoError(t, err)
	assert.Equal(t, "alice", run.UserID)
	assert.Equal(t, "root", run.AgentName)
}

func TestOpen_Validation(t *testing.T) {
	_, err := Open(context.Background(), func(o *Options) { o.Dialect = "mysql"; o.DSN = "x" })
	assert.Error(t, err)

	_, err = Open(context.Background(), func(o *Options) { o.DSN = "" })
	assert.Error(t, err)
}

func TestRebind(t *testing.T) {
	s := &Store{dialect: DialectPostgres}
	assert.Equal(t, "a = $1 AND b = $2", s.rebind("a = ? AND b = ?"))

	s.dialect = DialectSQLite
	assert.Equal(t, "a = ?", s.rebind("a = ?"))
}

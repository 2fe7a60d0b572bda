package redis

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hupe1980/assistmesh/core"
	"github.com/hupe1980/assistmesh/runstore"
)

func newStore(t *testing.T) (*Store, *miniredis.Miniredis) {
	t.Helper()

	mr := miniredis.RunT(t)
	s := New(func(o *Options) { o.Addr = mr.Addr() })
	t.Cleanup(func() { _ = s.Close() })

	return s, mr
}

func TestStore_AppendAndHistory(t *testing.T) {
	ctx := context.Background()
	s, _ := newStore(t)

	for i := range 4 {
		require.NoError(t, s.AppendTurn(ctx, "r1", core.NewTurn(core.RoleUser, fmt.Sprint(i))))
	}

	turns, err := s.History(ctx, "r1")
	require.NoError(t, err)
	require.Len(t, turns, 4)
	for i, turn := range turns {
		assert.Equal(t, fmt.Sprint(i), turn.Content)
		assert.Equal(t, core.RoleUser, turn.Role)
	}

	empty, err := s.History(ctx, "unknown")
	require.NoError(t, err)
	assert.Empty(t, empty)
}

func TestStore_Runs(t *testing.T) {
	ctx := context.Background()
	s, _ := newStore(t)

	base := time.Now().UTC()
	require.NoError(t, s.CreateRun(ctx, core.Run{ID: "b", UserID: "alice", CreatedAt: base.Add(time.Second)}))
	require.NoError(t, s.CreateRun(ctx, core.Run{ID: "a", UserID: "alice", AgentName: "root", CreatedAt: base}))
	require.NoError(t, s.CreateRun(ctx, core.Run{ID: "a", UserID: "eve"}))

	ids, err := s.ListRunIDs(ctx, "alice")
	require.NoError(t, err)
	assert.Equal(t, []string{"a", "b"}, ids)

	ids, err = s.ListRunIDs(ctx, "eve")
	require.NoError(t, err)
	assert.Empty(t, ids)

	run, err := s.GetRun(ctx, "a")
	require.NoError(t, err)
	assert.Equal(t, "alice", run.UserID)
	assert.Equal(t, "root", run.AgentName)
	assert.Equal(t, base.UnixMicro(), run.CreatedAt.UnixMicro())

	_, err = s.GetRun(ctx, "zzz")
	assert.ErrorIs(t, err, runstore.ErrRunNotFound)
}

func TestStore_CreateRunIsAtomic(t *testing.T) {
	ctx := context.Background()
	s, mr := newStore(t)

	var wg sync.WaitGroup
	for i := range 16 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			assert.NoError(t, s.CreateRun(ctx, core.Run{ID: "shared", UserID: fmt.Sprintf("user-%d", i)}))
		}()
	}
	wg.Wait()

	run, err := s.GetRun(ctx, "shared")
	require.NoError(t, err)

	// The run is indexed exactly once, under the user its hash records.
	owners := 0
	for i := range 16 {
		user := fmt.Sprintf("user-%d", i)
		ids, err := s.ListRunIDs(ctx, user)
		require.NoError(t, err)
		if len(ids) > 0 {
			owners++
			assert.Equal(t, run.UserID, user)
			assert.Equal(t, []string{"shared"}, ids)
		}
	}
	assert.Equal(t, 1, owners)

	assert.True(t, mr.Exists("assistmesh:run:shared"))
}

func TestStore_Outage(t *testing.T) {
	mr, err := miniredis.Run()
	require.NoError(t, err)
	s := New(func(o *Options) { o.Addr = mr.Addr() })
	defer s.Close()
	mr.Close()

	err = s.AppendTurn(context.Background(), "r1", core.NewTurn(core.RoleUser, "hi"))
	assert.ErrorIs(t, err, core.ErrStorageUnavailable)

	_, err = s.History(context.Background(), "r1")
	assert.ErrorIs(t, err, core.ErrStorageUnavailable)
}

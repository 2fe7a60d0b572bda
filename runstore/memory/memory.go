// Package memory provides a volatile runstore.Store kept in process-local
// maps. It is safe for concurrent access and suited for tests, the CLI and
// ephemeral demo servers.
package memory

import (
	"context"
	"sync"
	"time"

	"github.com/hupe1980/assistmesh/core"
	"github.com/hupe1980/assistmesh/runstore"
)

// Store is an in-memory runstore.Store.
type Store struct {
	mu     sync.RWMutex
	runs   map[string]core.Run
	turns  map[string][]core.Turn
	byUser map[string][]string
}

// New constructs an empty store.
func New() *Store {
	return &Store{
		runs:   make(map[string]core.Run),
		turns:  make(map[string][]core.Turn),
		byUser: make(map[string][]string),
	}
}

// CreateRun implements runstore.Store.
func (s *Store) CreateRun(_ context.Context, run core.Run) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.createRunLocked(run)
	return nil
}

// createRunLocked stores a run if unknown; caller must hold the write lock.
func (s *Store) createRunLocked(run core.Run) {
	if _, ok := s.runs[run.ID]; ok {
		return
	}
	if run.CreatedAt.IsZero() {
		run.CreatedAt = time.Now().UTC()
	}
	s.runs[run.ID] = run
	s.byUser[run.UserID] = append(s.byUser[run.UserID], run.ID)
}

// GetRun implements runstore.Store.
func (s *Store) GetRun(_ context.Context, runID string) (core.Run, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	run, ok := s.runs[runID]
	if !ok {
		return core.Run{}, runstore.ErrRunNotFound
	}
	return run, nil
}

// AppendTurn implements runstore.Store. Unknown runs are created lazily
// without a user.
func (s *Store) AppendTurn(_ context.Context, runID string, turn core.Turn) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.createRunLocked(core.Run{ID: runID})
	s.turns[runID] = append(s.turns[runID], turn)
	return nil
}

// History implements runstore.Store. The returned slice is a copy.
func (s *Store) History(_ context.Context, runID string) ([]core.Turn, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	turns := s.turns[runID]
	out := make([]core.Turn, len(turns))
	copy(out, turns)
	return out, nil
}

// ListRunIDs implements runstore.Store.
func (s *Store) ListRunIDs(_ context.Context, userID string) ([]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	ids := s.byUser[userID]
	out := make([]string, len(ids))
	copy(out, ids)
	return out, nil
}

// Close implements runstore.Store.
func (s *Store) Close() error { return nil }

package testutil

import (
	"context"
	"sync/atomic"

	"github.com/hupe1980/assistmesh/core"
	"github.com/hupe1980/assistmesh/vector"
)

// FailingVectorStore fails every operation with ErrOutage.
type FailingVectorStore struct{}

// EnsureCollection implements vector.Store.
func (FailingVectorStore) EnsureCollection(context.Context, string, int) error { return ErrOutage }

// Upsert implements vector.Store.
func (FailingVectorStore) Upsert(context.Context, string, []vector.Record) error { return ErrOutage }

// Search implements vector.Store.
func (FailingVectorStore) Search(context.Context, string, []float32, int) ([]vector.Match, error) {
	return nil, ErrOutage
}

// Exists implements vector.Store.
func (FailingVectorStore) Exists(context.Context, string, []string) (map[string]bool, error) {
	return nil, ErrOutage
}

// Count implements vector.Store.
func (FailingVectorStore) Count(context.Context, string) (int, error) { return 0, ErrOutage }

// DeleteBySource implements vector.Store.
func (FailingVectorStore) DeleteBySource(context.Context, string, string) error { return ErrOutage }

// DeleteCollection implements vector.Store.
func (FailingVectorStore) DeleteCollection(context.Context, string) error { return ErrOutage }

// Close implements vector.Store.
func (FailingVectorStore) Close() error { return nil }

// FailingRunStore fails reads and/or writes with ErrOutage.
type FailingRunStore struct {
	FailReads  bool
	FailWrites bool

	Appends atomic.Int64
}

// CreateRun implements runstore.Store.
func (s *FailingRunStore) CreateRun(context.Context, core.Run) error {
	if s.FailWrites {
		return ErrOutage
	}
	return nil
}

// GetRun implements runstore.Store.
func (s *FailingRunStore) GetRun(_ context.Context, runID string) (core.Run, error) {
	if s.FailReads {
		return core.Run{}, ErrOutage
	}
	return core.Run{ID: runID}, nil
}

// AppendTurn implements runstore.Store.
func (s *FailingRunStore) AppendTurn(context.Context, string, core.Turn) error {
	s.Appends.Add(1)
	if s.FailWrites {
		return ErrOutage
	}
	return nil
}

// History implements runstore.Store.
func (s *FailingRunStore) History(context.Context, string) ([]core.Turn, error) {
	if s.FailReads {
		return nil, ErrOutage
	}
	return []core.Turn{}, nil
}

// ListRunIDs implements runstore.Store.
func (s *FailingRunStore) ListRunIDs(context.Context, string) ([]string, error) {
	if s.FailReads {
		return nil, ErrOutage
	}
	return []string{}, nil
}

// Close implements runstore.Store.
func (s *FailingRunStore) Close() error { return nil }

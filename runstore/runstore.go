// Package runstore defines persistent chat storage: runs and their ordered
// turns. Concrete implementations live in sub-packages (memory, sql, redis);
// only the wiring layer decides which one to instantiate.
//
// Backend failures are wrapped with core.ErrStorageUnavailable so callers can
// tell storage outages from programming errors.
package runstore

import (
	"context"
	"errors"
	"fmt"

	"github.com/hupe1980/assistmesh/core"
)

// ErrRunNotFound is returned by GetRun for unknown run ids.
var ErrRunNotFound = errors.New("run not found")

// Store persists runs and their turns. Turns of one run are appended in strict
// arrival order.
type Store interface {
	// CreateRun records a new run. Creating an existing run id is a no-op.
	CreateRun(ctx context.Context, run core.Run) error

	// GetRun returns the run or ErrRunNotFound.
	GetRun(ctx context.Context, runID string) (core.Run, error)

	// AppendTurn appends a turn to the run.
	AppendTurn(ctx context.Context, runID string, turn core.Turn) error

	// History returns all turns of the run in order. Unknown runs yield an
	// empty slice and no error.
	History(ctx context.Context, runID string) ([]core.Turn, error)

	// ListRunIDs returns the user's run ids ordered by creation time.
	ListRunIDs(ctx context.Context, userID string) ([]string, error)

	// Close releases backend resources.
	Close() error
}

// Unavailable wraps a backend error with core.ErrStorageUnavailable.
func Unavailable(op string, err error) error {
	return fmt.Errorf("runstore %s: %w: %w", op, core.ErrStorageUnavailable, err)
}

// LastN returns the trailing n turns. n <= 0 returns all turns.
func LastN(turns []core.Turn, n int) []core.Turn {
	if n <= 0 || n >= len(turns) {
		return turns
	}
	return turns[len(turns)-n:]
}

package core

import (
	"errors"
	"fmt"
	"strings"
)

var (
	// ErrUnsupportedBackend is returned when no registered backend matches a name.
	ErrUnsupportedBackend = errors.New("unsupported backend")

	// ErrKnowledgeBaseUnavailable marks embedder or vector store failures during
	// knowledge operations. Agents degrade instead of aborting the turn.
	ErrKnowledgeBaseUnavailable = errors.New("knowledge base unavailable")

	// ErrStorageUnavailable marks run store failures.
	ErrStorageUnavailable = errors.New("storage unavailable")

	// ErrDelegationCycle is returned when a team graph is cyclic or deeper than one level.
	ErrDelegationCycle = errors.New("delegation cycle")
)

// UnsupportedBackendError reports the capability kind and name that failed to resolve.
type UnsupportedBackendError struct {
	Kind string
	Name string
}

func (e *UnsupportedBackendError) Error() string {
	return fmt.Sprintf("unsupported %s backend: %q", e.Kind, e.Name)
}

// Is reports whether target is ErrUnsupportedBackend.
func (e *UnsupportedBackendError) Is(target error) bool { return target == ErrUnsupportedBackend }

// DelegationCycleError describes an invalid team graph. Path lists the agent
// names along the offending edge chain.
type DelegationCycleError struct {
	Path   []string
	Reason string
}

func (e *DelegationCycleError) Error() string {
	if len(e.Path) == 0 {
		return fmt.Sprintf("delegation cycle: %s", e.Reason)
	}
	return fmt.Sprintf("delegation cycle: %s (%s)", e.Reason, strings.Join(e.Path, " -> "))
}

// Is reports whether target is ErrDelegationCycle.
func (e *DelegationCycleError) Is(target error) bool { return target == ErrDelegationCycle }

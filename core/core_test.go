package core

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

type testLogger struct {
	msgs []string
	args [][]any
}

func (l *testLogger) record(msg string, args []any) {
	l.msgs = append(l.msgs, msg)
	l.args = append(l.args, args)
}

func (l *testLogger) Debug(msg string, args ...any) { l.record(msg, args) }
func (l *testLogger) Info(msg string, args ...any)  { l.record(msg, args) }
func (l *testLogger) Warn(msg string, args ...any)  { l.record(msg, args) }
func (l *testLogger) Error(msg string, args ...any) { l.record(msg, args) }

func TestContent_Helpers(t *testing.T) {
	c := Content{
		Role: RoleAssistant,
		Parts: []Part{
			TextPart{Text: "hello "},
			FunctionCallPart{FunctionCall: FunctionCall{ID: "1", Name: "add", Arguments: `{"a":1}`}},
			TextPart{Text: "world"},
			FunctionResponsePart{FunctionResponse: FunctionResponse{ID: "1", Name: "add", Response: 2}},
		},
	}

	assert.Equal(t, "hello world", c.Text())
	assert.Len(t, c.FunctionCalls(), 1)
	assert.Equal(t, "add", c.FunctionCalls()[0].Name)
	assert.Len(t, c.FunctionResponses(), 1)

	tc := NewTextContent(RoleUser, "hi")
	assert.Equal(t, RoleUser, tc.Role)
	assert.Equal(t, "hi", tc.Text())
	assert.Empty(t, tc.FunctionCalls())
}

func TestErrors_Is(t *testing.T) {
	ub := fmt.Errorf("resolve: %w", &UnsupportedBackendError{Kind: "llm", Name: "unicorn-9000"})
	assert.True(t, errors.Is(ub, ErrUnsupportedBackend))
	assert.Contains(t, ub.Error(), "unicorn-9000")

	var target *UnsupportedBackendError
	assert.True(t, errors.As(ub, &target))
	assert.Equal(t, "llm", target.Kind)

	dc := &DelegationCycleError{Path: []string{"a", "b", "a"}, Reason: "cycle"}
	assert.True(t, errors.Is(dc, ErrDelegationCycle))
	assert.Equal(t, "delegation cycle: cycle (a -> b -> a)", dc.Error())
	assert.False(t, errors.Is(dc, ErrUnsupportedBackend))
}

func TestNewTurn(t *testing.T) {
	turn := NewTurn(RoleUser, "question")
	assert.Equal(t, RoleUser, turn.Role)
	assert.Equal(t, "question", turn.Content)
	assert.False(t, turn.Timestamp.IsZero())
}

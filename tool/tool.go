// Package tool implements the function / tool calling subsystem that lets agents
// invoke structured capabilities (APIs, computations, side-effects) with schema
// validated arguments and consistent error handling.
//
// Failures never abort a turn: a *ToolArgumentError or *ToolError is turned
// into an observation the model can react to.
package tool

import (
	"errors"
	"fmt"

	"github.com/hupe1980/assistmesh/core"
	"github.com/hupe1980/assistmesh/internal/util"
)

// Tool defines the interface for extending agent capabilities with external functions.
//
// Tool implementations should:
//   - Provide a unique snake_case name
//   - Define a JSON schema for their parameters
//   - Be safe for concurrent use
type Tool interface {
	// Name returns the unique identifier for this tool.
	Name() string

	// Description returns a human-readable description of what this tool does.
	// It is provided to the model to help it decide when to call the tool.
	Description() string

	// Parameters returns a JSON schema describing the expected input format.
	Parameters() map[string]any

	// Call executes the tool with decoded arguments. Arguments have already
	// been validated against Parameters when called through a Set.
	Call(toolCtx *core.ToolContext, args map[string]any) (any, error)
}

// ValidationError represents parameter validation errors with detailed information.
type ValidationError = util.ValidationError

// Error codes carried by ToolError.
const (
	CodeExecution = "EXECUTION_ERROR"
	CodeNotFound  = "TOOL_NOT_FOUND"
	CodePanic     = "PANIC"
)

// ToolError represents errors that occur during tool execution.
type ToolError struct {
	Tool    string `json:"tool"`              // Name of the tool that failed
	Message string `json:"message"`           // Error message
	Code    string `json:"code"`              // Error code for categorization
	Details any    `json:"details,omitempty"` // Additional error details
}

func (e *ToolError) Error() string {
	if e.Code != "" {
		return fmt.Sprintf("tool error [%s] in %s: %s", e.Code, e.Tool, e.Message)
	}
	return fmt.Sprintf("tool error in %s: %s", e.Tool, e.Message)
}

// Unwrap exposes the underlying error when Details holds one.
func (e *ToolError) Unwrap() error {
	if err, ok := e.Details.(error); ok {
		return err
	}
	return nil
}

// NewToolError creates a new ToolError with the specified details.
func NewToolError(tool, message, code string) *ToolError {
	return &ToolError{
		Tool:    tool,
		Message: message,
		Code:    code,
	}
}

// ToolArgumentError reports arguments that could not be decoded or do not
// match the tool's parameter schema.
type ToolArgumentError struct {
	Tool    string `json:"tool"`
	Message string `json:"message"`
	Err     error  `json:"-"`
}

func (e *ToolArgumentError) Error() string {
	return fmt.Sprintf("invalid arguments for %s: %s", e.Tool, e.Message)
}

func (e *ToolArgumentError) Unwrap() error { return e.Err }

// IsToolFailure reports whether err is a recoverable tool failure.
func IsToolFailure(err error) bool {
	var toolErr *ToolError
	var argErr *ToolArgumentError
	return errors.As(err, &toolErr) || errors.As(err, &argErr)
}

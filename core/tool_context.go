package core

import (
	"context"

	"github.com/hupe1980/assistmesh/logging"
)

// ToolContext provides the scoped surface handed to tool implementations:
// the request context, the run and user the call belongs to, the calling
// agent and a logger. It carries no mutable session state; tools that need
// history or knowledge receive those collaborators at construction.
type ToolContext struct {
	ctx            context.Context
	runID          string
	userID         string
	agentName      string
	functionCallID string

	logger logging.Logger
}

// ToolContextOptions configures NewToolContext.
type ToolContextOptions struct {
	RunID          string
	UserID         string
	AgentName      string
	FunctionCallID string
	Logger         logging.Logger
}

// NewToolContext constructs a tool context bound to ctx.
func NewToolContext(ctx context.Context, optFns ...func(o *ToolContextOptions)) *ToolContext {
	opts := ToolContextOptions{}
	for _, fn := range optFns {
		fn(&opts)
	}

	if ctx == nil {
		ctx = context.Background()
	}

	return &ToolContext{
		ctx:            ctx,
		runID:          opts.RunID,
		userID:         opts.UserID,
		agentName:      opts.AgentName,
		functionCallID: opts.FunctionCallID,
		logger: logging.With(opts.Logger,
			"run.id", opts.RunID,
			"agent", opts.AgentName,
			"tool.call_id", opts.FunctionCallID,
		),
	}
}

// Context returns the context associated with the tool invocation.
func (tc *ToolContext) Context() context.Context { return tc.ctx }

// RunID returns the run ID associated with the tool invocation.
func (tc *ToolContext) RunID() string { return tc.runID }

// UserID returns the user ID associated with the tool invocation.
func (tc *ToolContext) UserID() string { return tc.userID }

// AgentName returns the name of the agent that issued the call.
func (tc *ToolContext) AgentName() string { return tc.agentName }

// FunctionCallID returns the function call ID associated with the tool invocation.
func (tc *ToolContext) FunctionCallID() string { return tc.functionCallID }

// Logger returns the logger associated with the tool invocation. Entries carry
// the run id, the agent name and the call id.
func (tc *ToolContext) Logger() logging.Logger { return tc.logger }

func (tc *ToolContext) LogDebug(msg string, args ...any) { tc.logger.Debug(msg, args...) }
func (tc *ToolContext) LogInfo(msg string, args ...any)  { tc.logger.Info(msg, args...) }
func (tc *ToolContext) LogWarn(msg string, args ...any)  { tc.logger.Warn(msg, args...) }
func (tc *ToolContext) LogError(msg string, args ...any) { tc.logger.Error(msg, args...) }

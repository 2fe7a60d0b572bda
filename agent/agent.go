package agent

import (
	"context"
	"fmt"
	"time"

	"github.com/hupe1980/assistmesh/core"
	"github.com/hupe1980/assistmesh/logging"
	"github.com/hupe1980/assistmesh/model"
	"github.com/hupe1980/assistmesh/runstore"
	"github.com/hupe1980/assistmesh/tool"
)

// Knowledge is the knowledge base surface agents use. *knowledge.Base
// satisfies it.
type Knowledge interface {
	Search(ctx context.Context, query string, k int) ([]core.Passage, error)
}

// Observer receives per-turn signals, typically for metrics.
type Observer interface {
	ObserveToolCall(agentName, toolName string, err error)
	ObserveDegraded(agentName, reason string)
}

// Options configures an Agent.
//
// Use functional options with New to override defaults.
type Options struct {
	Role        string
	Description string

	// Instructions are rendered per turn and precede the capability clauses.
	Instructions []Instruction

	// ExtraInstructions follow the capability clauses.
	ExtraInstructions []Instruction

	// Tools are the callable tools in registration order.
	Tools *tool.Set

	Knowledge Knowledge

	// SearchKnowledge exposes search_knowledge_base when Knowledge is set (default true).
	SearchKnowledge bool

	// AddReferences pre-retrieves NumDocuments passages for the user message.
	AddReferences bool
	NumDocuments  int

	// Runs gives access to the run history.
	Runs runstore.Store

	// ReadChatHistory exposes get_chat_history when Runs is set.
	ReadChatHistory bool

	// AddHistoryToMessages prepends the last NumHistoryMessages turns.
	AddHistoryToMessages bool
	NumHistoryMessages   int

	AddDateTime bool
	Markdown    bool

	// Team members reachable through delegate_task_to_<member>. Members must
	// not have teams of their own.
	Team []*Agent

	// MaxModelCalls bounds model calls per turn (default 10, <= 0 unlimited).
	MaxModelCalls int

	// FallbackText is returned when a degraded turn produced no text.
	FallbackText string

	Logger   logging.Logger
	Observer Observer

	// Now supplies the clock for AddDateTime.
	Now func() time.Time
}

// Agent drives one model through the decision loop. It is immutable after New.
type Agent struct {
	name  string
	llm   model.Model
	opts  Options
	tools *tool.Set // user tools, built-ins and delegates in capability order
	caps  Capabilities

	logger logging.Logger
}

// New creates an agent and validates its team.
//
// The team is one level deep: a member with its own team, a member that is
// the agent itself and duplicate member names fail with
// *core.DelegationCycleError.
func New(name string, llm model.Model, optFns ...func(o *Options)) (*Agent, error) {
	opts := Options{
		SearchKnowledge:    true,
		NumDocuments:       3,
		NumHistoryMessages: 6,
		MaxModelCalls:      10,
		FallbackText:       "I'm sorry, I could not complete this request right now.",
		Now:                time.Now,
	}

	for _, fn := range optFns {
		fn(&opts)
	}

	if name == "" {
		return nil, fmt.Errorf("agent: name is required")
	}
	if llm == nil {
		return nil, fmt.Errorf("agent %s: model is required", name)
	}

	logger := opts.Logger
	if logger == nil {
		logger = logging.NoOpLogger{}
	}

	a := &Agent{
		name:   name,
		llm:    llm,
		opts:   opts,
		logger: logging.With(logger, "agent", name),
	}

	if err := a.validateTeam(); err != nil {
		return nil, err
	}

	set, caps, err := a.buildTools()
	if err != nil {
		return nil, err
	}
	a.tools, a.caps = set, caps

	return a, nil
}

func (a *Agent) validateTeam() error {
	seen := make(map[string]bool, len(a.opts.Team))

	for _, m := range a.opts.Team {
		if m == nil {
			return fmt.Errorf("agent %s: nil team member", a.name)
		}
		if m == a || m.name == a.name {
			return &core.DelegationCycleError{Path: []string{a.name, m.name}, Reason: "agent delegates to itself"}
		}
		if len(m.opts.Team) > 0 {
			return &core.DelegationCycleError{
				Path:   []string{a.name, m.name, m.opts.Team[0].name},
				Reason: "team members cannot have teams of their own",
			}
		}
		if seen[m.name] {
			return &core.DelegationCycleError{Path: []string{a.name, m.name}, Reason: "duplicate team member"}
		}
		seen[m.name] = true
	}

	return nil
}

// buildTools assembles the invocable tools in capability order.
func (a *Agent) buildTools() (*tool.Set, Capabilities, error) {
	userTools := a.opts.Tools
	if userTools == nil {
		userTools, _ = tool.NewSet()
	}

	knowledge := a.opts.Knowledge != nil && a.opts.SearchKnowledge
	history := a.opts.Runs != nil && a.opts.ReadChatHistory
	caps := capabilitiesOf(userTools, knowledge, history, a.opts.Team)

	set, _ := tool.NewSet()
	var webSearch tool.Tool

	for _, t := range userTools.Tools() {
		if t.Name() == WebSearchTool {
			webSearch = t
			continue
		}
		if err := set.Register(t); err != nil {
			return nil, Capabilities{}, fmt.Errorf("agent %s: %w", a.name, err)
		}
	}

	builtins := make([]tool.Tool, 0, 3+len(a.opts.Team))
	if knowledge {
		builtins = append(builtins, newKnowledgeTool(a.opts.Knowledge, a.opts.NumDocuments))
	}
	if history {
		builtins = append(builtins, newHistoryTool(a.opts.Runs, a.opts.NumHistoryMessages))
	}
	if webSearch != nil {
		builtins = append(builtins, webSearch)
	}
	for _, m := range a.opts.Team {
		builtins = append(builtins, tool.NewDelegateTool(m.name, m.opts.Role, m.delegate))
	}

	for _, t := range builtins {
		if err := set.Register(t); err != nil {
			return nil, Capabilities{}, fmt.Errorf("agent %s: %w", a.name, err)
		}
	}

	return set, caps, nil
}

// Name returns the agent name.
func (a *Agent) Name() string { return a.name }

// Role returns the agent role.
func (a *Agent) Role() string { return a.opts.Role }

// Description returns the agent description.
func (a *Agent) Description() string { return a.opts.Description }

// Model returns the agent's language model.
func (a *Agent) Model() model.Model { return a.llm }

// Team returns the team members.
func (a *Agent) Team() []*Agent { return append([]*Agent(nil), a.opts.Team...) }

// Capabilities returns the enabled-capability set.
func (a *Agent) Capabilities() Capabilities { return a.caps }

// InvocableNames returns the tool names offered to the model: one per
// enabled capability, in capability order.
func (a *Agent) InvocableNames() []string { return a.tools.Names() }

// Definitions returns the tool definitions offered to the model.
func (a *Agent) Definitions() []model.ToolDefinition { return a.tools.Definitions() }

// delegate runs the agent as a team member on a delegated task.
func (a *Agent) delegate(tc *core.ToolContext, task, expectedOutput string) (string, error) {
	msg := task
	if expectedOutput != "" {
		msg += "\n\nExpected output: " + expectedOutput
	}

	out, err := a.Run(tc.Context(), Input{
		RunID:     tc.RunID(),
		UserID:    tc.UserID(),
		Message:   msg,
		Delegated: true,
	})
	if err != nil {
		return "", err
	}

	return out.Text, nil
}

package tool

import (
	"encoding/json"
	"fmt"
	"runtime/debug"
	"strings"
	"sync"

	"github.com/hupe1980/assistmesh/core"
	"github.com/hupe1980/assistmesh/internal/util"
	"github.com/hupe1980/assistmesh/model"
)

// Set is an ordered registry of tools. Registration order is the order in
// which definitions are exposed to the model.
type Set struct {
	mu    sync.RWMutex
	order []string
	tools map[string]Tool
}

// NewSet creates a Set holding tools.
func NewSet(tools ...Tool) (*Set, error) {
	s := &Set{tools: make(map[string]Tool)}
	for _, t := range tools {
		if err := s.Register(t); err != nil {
			return nil, err
		}
	}
	return s, nil
}

// Register adds t. Names must be unique.
func (s *Set) Register(t Tool) error {
	name := t.Name()
	if strings.TrimSpace(name) == "" {
		return fmt.Errorf("tool: empty name")
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.tools == nil {
		s.tools = make(map[string]Tool)
	}
	if _, exists := s.tools[name]; exists {
		return fmt.Errorf("tool: duplicate tool name %q", name)
	}

	s.tools[name] = t
	s.order = append(s.order, name)

	return nil
}

// RegisterFunc wraps fn as a FunctionTool and registers it.
func (s *Set) RegisterFunc(name, description string, schema map[string]any, fn Func) error {
	return s.Register(NewFunctionTool(name, description, schema, fn))
}

// Get returns the named tool.
func (s *Set) Get(name string) (Tool, bool) {
	if s == nil {
		return nil, false
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	t, ok := s.tools[name]
	return t, ok
}

// Names returns the tool names in registration order.
func (s *Set) Names() []string {
	if s == nil {
		return nil
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]string(nil), s.order...)
}

// Tools returns the tools in registration order.
func (s *Set) Tools() []Tool {
	if s == nil {
		return nil
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]Tool, 0, len(s.order))
	for _, name := range s.order {
		out = append(out, s.tools[name])
	}
	return out
}

// Len returns the number of registered tools.
func (s *Set) Len() int {
	if s == nil {
		return 0
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.order)
}

// Definitions exposes the tools to the model in registration order.
func (s *Set) Definitions() []model.ToolDefinition {
	return Definitions(s.Tools()...)
}

// Definitions converts tools to model tool definitions.
func Definitions(tools ...Tool) []model.ToolDefinition {
	defs := make([]model.ToolDefinition, 0, len(tools))
	for _, t := range tools {
		defs = append(defs, Definition(t))
	}
	return defs
}

// Definition converts one tool to a model tool definition.
func Definition(t Tool) model.ToolDefinition {
	return model.ToolDefinition{
		Type: "function",
		Function: model.FunctionDefinition{
			Name:        t.Name(),
			Description: t.Description(),
			Parameters:  t.Parameters(),
		},
	}
}

// Call decodes rawArgs, then executes the named tool. Unknown tools and
// execution failures yield *ToolError, undecodable arguments yield
// *ToolArgumentError. Panics are recovered into a *ToolError.
func (s *Set) Call(toolCtx *core.ToolContext, name, rawArgs string) (result any, err error) {
	t, ok := s.Get(name)
	if !ok {
		return nil, NewToolError(name, fmt.Sprintf("tool %s not found", name), CodeNotFound)
	}

	args := map[string]any{}
	if strings.TrimSpace(rawArgs) != "" {
		if err := json.Unmarshal([]byte(rawArgs), &args); err != nil {
			return nil, &ToolArgumentError{Tool: name, Message: fmt.Sprintf("failed to unmarshal args: %v", err), Err: err}
		}
	}

	if _, ok := t.(*FunctionTool); !ok {
		if err := util.ValidateParameters(args, t.Parameters()); err != nil {
			return nil, &ToolArgumentError{Tool: name, Message: err.Error(), Err: err}
		}
	}

	return Execute(toolCtx, t, args)
}

// Execute runs t with args and recovers panics.
func Execute(toolCtx *core.ToolContext, t Tool, args map[string]any) (result any, err error) {
	defer func() {
		if r := recover(); r != nil {
			toolCtx.LogError("tool.call.panic", "tool", t.Name(), "recover", r, "stack", string(debug.Stack()))
			result = nil
			err = &ToolError{
				Tool:    t.Name(),
				Message: fmt.Sprintf("panic recovered: %v", r),
				Code:    CodePanic,
			}
		}
	}()

	return t.Call(toolCtx, args)
}

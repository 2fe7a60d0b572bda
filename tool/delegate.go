package tool

import (
	"fmt"
	"strings"

	"github.com/hupe1980/assistmesh/core"
	"github.com/hupe1980/assistmesh/internal/util"
)

// DelegatePrefix prefixes the names of delegation tools.
const DelegatePrefix = "delegate_task_to_"

// DelegateFunc synchronously runs a team member on a task and returns its answer.
type DelegateFunc func(toolCtx *core.ToolContext, task, expectedOutput string) (string, error)

// delegateTool hands a task to a named team member.
type delegateTool struct {
	name        string
	member      string
	description string
	run         DelegateFunc
}

// DelegateToolName returns the tool name used to delegate to member.
func DelegateToolName(member string) string {
	return DelegatePrefix + util.SanitizeIdentifier(member, "agent_")
}

// NewDelegateTool constructs the delegation tool for member. role is shown
// to the model to help it pick the right member.
func NewDelegateTool(member, role string, run DelegateFunc) Tool {
	desc := fmt.Sprintf("Use this function to delegate a task to %s.", member)
	if strings.TrimSpace(role) != "" {
		desc += fmt.Sprintf(" %s's role: %s.", member, strings.TrimSuffix(role, "."))
	}
	desc += " Return the member's answer to the user in your own words."

	return &delegateTool{
		name:        DelegateToolName(member),
		member:      member,
		description: desc,
		run:         run,
	}
}

func (t *delegateTool) Name() string { return t.name }

func (t *delegateTool) Description() string { return t.description }

func (t *delegateTool) Parameters() map[string]any {
	return map[string]any{
		"type": "object",
		"properties": map[string]any{
			"task_description": map[string]any{
				"type":        "string",
				"description": "A clear and concise description of the task the member should achieve.",
			},
			"expected_output": map[string]any{
				"type":        "string",
				"description": "The expected output from the member.",
			},
		},
		"required": []string{"task_description"},
	}
}

func (t *delegateTool) Call(tc *core.ToolContext, args map[string]any) (any, error) {
	task, err := String(args, "task_description")
	if err != nil || strings.TrimSpace(task) == "" {
		return nil, &ToolArgumentError{Tool: t.name, Message: "field 'task_description' must be non-empty string"}
	}

	tc.LogInfo("tool.delegate.start", "member", t.member, "agent", tc.AgentName())

	answer, err := t.run(tc, task, StringOr(args, "expected_output", ""))
	if err != nil {
		return nil, &ToolError{Tool: t.name, Message: err.Error(), Code: CodeExecution, Details: err}
	}

	return answer, nil
}

package anthropic

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hupe1980/assistmesh/core"
	"github.com/hupe1980/assistmesh/model"
)

func TestBuildMessages_ToolResultsFollowAssistant(t *testing.T) {
	contents := []core.Content{
		core.NewTextContent(core.RoleSystem, "ignored here"),
		core.NewTextContent(core.RoleUser, "What's 2+3?"),
		{Role: core.RoleAssistant, Parts: []core.Part{
			core.TextPart{Text: "Let me add."},
			core.FunctionCallPart{FunctionCall: core.FunctionCall{ID: "toolu_1", Name: "add", Arguments: `{"a":2,"b":3}`}},
		}},
		{Role: core.RoleTool, Parts: []core.Part{core.FunctionResponsePart{FunctionResponse: core.FunctionResponse{
			ID: "toolu_1", Name: "add", Response: `{"operation":"addition","result":5}`,
		}}}},
		{Role: core.RoleAssistant, Parts: []core.Part{core.TextPart{Text: "2+3 is 5."}}},
	}

	messages := buildMessages(contents)
	require.Len(t, messages, 4)
	assert.Equal(t, "user", string(messages[0].Role))
	assert.Equal(t, "assistant", string(messages[1].Role))
	assert.Len(t, messages[1].Content, 2)
	assert.Equal(t, "user", string(messages[2].Role))
	require.Len(t, messages[2].Content, 1)
	require.NotNil(t, messages[2].Content[0].OfToolResult)
	assert.Equal(t, "toolu_1", messages[2].Content[0].OfToolResult.ToolUseID)
	assert.Equal(t, "assistant", string(messages[3].Role))
}

func TestSystemBlocks(t *testing.T) {
	blocks := systemBlocks(model.Request{
		Instructions: "Be brief.",
		Contents:     []core.Content{core.NewTextContent(core.RoleSystem, "Use tools.")},
	})
	require.Len(t, blocks, 2)
	assert.Equal(t, "Be brief.", blocks[0].Text)
	assert.Equal(t, "Use tools.", blocks[1].Text)
}

func TestBuildTools(t *testing.T) {
	tools := buildTools([]model.ToolDefinition{{Type: "function", Function: model.FunctionDefinition{
		Name:        "add",
		Description: "Add two numbers",
		Parameters: map[string]any{
			"type":       "object",
			"properties": map[string]any{"a": map[string]any{"type": "number"}},
			"required":   []any{"a"},
		},
	}}})

	require.Len(t, tools, 1)
	require.NotNil(t, tools[0].OfTool)
	assert.Equal(t, "add", tools[0].OfTool.Name)
	assert.Equal(t, []string{"a"}, tools[0].OfTool.InputSchema.Required)
}

func TestInfo(t *testing.T) {
	m := NewModel(func(o *Options) {
		o.Model = "claude-3-haiku-20240307"
		o.APIKey = "test"
	})
	assert.Equal(t, "anthropic", m.Info().Provider)
	assert.Equal(t, "claude-3-haiku-20240307", m.Info().Name)
}

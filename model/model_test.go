package model

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hupe1980/assistmesh/core"
)

func TestMockModel_CannedAndEcho(t *testing.T) {
	m := NewMockModel("mock", "test")
	m.AddResponse("hi", "hello there")

	req := Request{Contents: []core.Content{core.NewTextContent(core.RoleUser, "hi")}, Stream: true}
	resp, err := generate(m, req)
	require.NoError(t, err)
	assert.Equal(t, "hello there", resp.Content.Text())
	assert.Equal(t, "stop", resp.FinishReason)

	req.Contents = []core.Content{core.NewTextContent(core.RoleUser, "ping")}
	resp, err = generate(m, req)
	require.NoError(t, err)
	assert.Equal(t, "Mock response to: ping", resp.Content.Text())
}

func TestMockModel_NoUserContent(t *testing.T) {
	m := NewMockModel("mock", "test")
	_, err := generate(m, Request{})
	assert.Error(t, err)
}

func TestCollect_NoFinal(t *testing.T) {
	respCh := make(chan Response, 1)
	errCh := make(chan error)
	respCh <- Response{Partial: true}
	close(respCh)
	close(errCh)

	_, err := Collect(context.Background(), respCh, errCh)
	assert.True(t, errors.Is(err, ErrNoResponse))
}

func TestRequest_ToolNames(t *testing.T) {
	req := Request{Tools: []ToolDefinition{
		{Type: "function", Function: FunctionDefinition{Name: "add"}},
		{Type: "function", Function: FunctionDefinition{Name: "search_knowledge_base"}},
	}}
	assert.Equal(t, []string{"add", "search_knowledge_base"}, req.ToolNames())
}

func generate(m Model, req Request) (Response, error) {
	respCh, errCh := m.Generate(context.Background(), req)
	return Collect(context.Background(), respCh, errCh)
}

package testutil

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/stretchr/testify/mock"

	"github.com/hupe1980/assistmesh/core"
	"github.com/hupe1980/assistmesh/model"
)

// Step produces one model response for a request.
type Step func(req model.Request) (model.Response, error)

// ScriptedModel answers successive Generate calls with successive steps and
// records every request. Calls beyond the script fail.
type ScriptedModel struct {
	Name  string
	Steps []Step

	mu       sync.Mutex
	requests []model.Request
}

// NewScriptedModel builds a ScriptedModel.
func NewScriptedModel(steps ...Step) *ScriptedModel {
	return &ScriptedModel{Name: "scripted", Steps: steps}
}

// Generate implements model.Model.
func (m *ScriptedModel) Generate(_ context.Context, req model.Request) (<-chan model.Response, <-chan error) {
	respCh := make(chan model.Response, 1)
	errCh := make(chan error, 1)

	m.mu.Lock()
	idx := len(m.requests)
	m.requests = append(m.requests, req)
	m.mu.Unlock()

	go func() {
		defer close(respCh)
		defer close(errCh)

		if idx >= len(m.Steps) {
			errCh <- fmt.Errorf("scripted model: no step %d", idx)
			return
		}

		resp, err := m.Steps[idx](req)
		if err != nil {
			errCh <- err
			return
		}
		respCh <- resp
	}()

	return respCh, errCh
}

// Info implements model.Model.
func (m *ScriptedModel) Info() model.Info {
	return model.Info{Name: m.Name, Provider: "test", SupportsTools: true}
}

// Requests returns the recorded requests.
func (m *ScriptedModel) Requests() []model.Request {
	m.mu.Lock()
	defer m.mu.Unlock()

	out := make([]model.Request, len(m.requests))
	copy(out, m.requests)
	return out
}

// Reply answers with text.
func Reply(text string) Step {
	return func(model.Request) (model.Response, error) {
		return TextResponse(text), nil
	}
}

// Call answers with a single tool call.
func Call(id, name, args string) Step {
	return func(model.Request) (model.Response, error) {
		return ToolCallResponse(id, name, args), nil
	}
}

// Fail answers with err.
func Fail(err error) Step {
	return func(model.Request) (model.Response, error) { return model.Response{}, err }
}

// EchoLastObservation replies with the text of the last function response.
func EchoLastObservation(prefix string) Step {
	return func(req model.Request) (model.Response, error) {
		for i := len(req.Contents) - 1; i >= 0; i-- {
			if frs := req.Contents[i].FunctionResponses(); len(frs) > 0 {
				return TextResponse(prefix + model.ObservationText(frs[len(frs)-1])), nil
			}
		}
		return model.Response{}, errors.New("no observation in request")
	}
}

// TextResponse builds a final text response.
func TextResponse(text string) model.Response {
	return model.Response{
		Content:      core.NewTextContent(core.RoleAssistant, text),
		FinishReason: "stop",
	}
}

// ToolCallResponse builds a final response carrying one tool call.
func ToolCallResponse(id, name, args string) model.Response {
	return model.Response{
		Content: core.Content{Role: core.RoleAssistant, Parts: []core.Part{
			core.FunctionCallPart{FunctionCall: core.FunctionCall{ID: id, Name: name, Arguments: args}},
		}},
		FinishReason: "tool_calls",
	}
}

// MockModel is a testify mock of model.Model. Program it with
//
//	m.On("Generate", mock.Anything, mock.Anything).Return(resp, nil)
type MockModel struct {
	mock.Mock
}

// Generate implements model.Model.
func (m *MockModel) Generate(ctx context.Context, req model.Request) (<-chan model.Response, <-chan error) {
	args := m.Called(ctx, req)

	respCh := make(chan model.Response, 1)
	errCh := make(chan error, 1)
	if err := args.Error(1); err != nil {
		errCh <- err
	} else {
		respCh <- args.Get(0).(model.Response)
	}
	close(respCh)
	close(errCh)

	return respCh, errCh
}

// Info implements model.Model.
func (m *MockModel) Info() model.Info {
	return model.Info{Name: "mock", Provider: "test", SupportsTools: true}
}

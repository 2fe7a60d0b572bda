package agent

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/hupe1980/assistmesh/core"
	"github.com/hupe1980/assistmesh/model"
	"github.com/hupe1980/assistmesh/runstore"
)

var tracer = otel.Tracer("github.com/hupe1980/assistmesh/agent")

// maxToolFailures is the number of failures after which a tool is withdrawn
// for the rest of the turn (one retry).
const maxToolFailures = 2

// Input is one user message addressed to an agent.
type Input struct {
	RunID   string
	UserID  string
	Message string

	// Delegated marks runs started by a team leader. Delegated runs do not
	// read the run history into their messages.
	Delegated bool
}

// Output is the result of one turn.
type Output struct {
	Text string

	// Degraded is set when a branch was skipped or a tool withdrawn.
	Degraded bool
	Reasons  []string

	ModelCalls int
	ToolCalls  int
	Usage      model.TokenUsage
}

type turnState struct {
	failures  map[string]int
	withdrawn map[string]bool
	noTools   bool

	failedTool string
	failedErr  error

	reasons []string
}

func newTurnState() *turnState {
	return &turnState{failures: map[string]int{}, withdrawn: map[string]bool{}}
}

func (s *turnState) degrade(reason string) {
	for _, r := range s.reasons {
		if r == reason {
			return
		}
	}
	s.reasons = append(s.reasons, reason)
}

// Run processes one user message: Route, then Act, until the model answers
// with text. Model errors abort the turn; everything else degrades it.
func (a *Agent) Run(ctx context.Context, in Input) (Output, error) {
	ctx, span := tracer.Start(ctx, "agent.run", trace.WithAttributes(
		attribute.String("agent.name", a.name),
		attribute.String("run.id", in.RunID),
		attribute.Bool("agent.delegated", in.Delegated),
	))
	defer span.End()

	start := time.Now()
	a.logger.Info("agent.run.start", "run_id", in.RunID, "user_id", in.UserID, "delegated", in.Delegated)

	instructions, err := a.SystemPrompt(InstructionData{UserID: in.UserID, RunID: in.RunID, AgentName: a.name})
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return Output{}, fmt.Errorf("agent %s: %w", a.name, err)
	}

	st := newTurnState()

	contents := a.historyContents(ctx, in)
	contents = append(contents, core.NewTextContent(core.RoleUser, a.userMessage(ctx, in, st)))

	limiter := NewModelLimiter(a.opts.MaxModelCalls)

	var out Output

	for {
		defs := a.activeDefinitions(st)
		if limiter.Remaining() == 1 && len(defs) > 0 {
			if out.ModelCalls > 0 {
				st.degrade(ErrModelCallLimit.Error())
			}
			defs = nil
		}

		if err := limiter.Increment(); err != nil {
			st.degrade(ErrModelCallLimit.Error())
			break
		}

		resp, err := a.generate(ctx, model.Request{
			Instructions: instructions,
			Contents:     contents,
			Tools:        defs,
		})
		out.ModelCalls++
		if err != nil {
			a.logger.Error("agent.run.model_error", "run_id", in.RunID, "error", err.Error())
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
			return Output{}, fmt.Errorf("agent %s: model %s: %w", a.name, a.llm.Info().Name, err)
		}
		addUsage(&out.Usage, resp.Usage)

		calls := resp.Content.FunctionCalls()
		if len(calls) == 0 || len(defs) == 0 {
			out.Text = resp.Content.Text()
			break
		}

		assistant := resp.Content
		assistant.Role = core.RoleAssistant
		for i, p := range assistant.Parts {
			if fc, ok := p.(core.FunctionCallPart); ok && fc.FunctionCall.ID == "" {
				fc.FunctionCall.ID = "call_" + uuid.NewString()
				assistant.Parts[i] = fc
			}
		}
		contents = append(contents, assistant)

		calls = assistant.FunctionCalls()
		parts := make([]core.Part, 0, len(calls))
		for _, fc := range calls {
			parts = append(parts, core.FunctionResponsePart{FunctionResponse: a.invoke(ctx, in, st, fc)})
			out.ToolCalls++
		}
		contents = append(contents, core.Content{Role: core.RoleTool, Parts: parts})
	}

	if strings.TrimSpace(out.Text) == "" {
		st.degrade("model returned no text")
		out.Text = a.fallback(st)
	}

	out.Degraded = len(st.reasons) > 0
	out.Reasons = st.reasons

	if out.Degraded {
		for _, r := range st.reasons {
			if a.opts.Observer != nil {
				a.opts.Observer.ObserveDegraded(a.name, r)
			}
		}
		a.logger.Warn("agent.run.degraded", "run_id", in.RunID, "reasons", strings.Join(st.reasons, "; "))
	}

	span.SetAttributes(
		attribute.Int("agent.model_calls", out.ModelCalls),
		attribute.Int("agent.tool_calls", out.ToolCalls),
		attribute.Bool("agent.degraded", out.Degraded),
	)

	a.logger.Info("agent.run.complete",
		"run_id", in.RunID,
		"model_calls", out.ModelCalls,
		"tool_calls", out.ToolCalls,
		"degraded", out.Degraded,
		"duration_ms", time.Since(start).Milliseconds(),
	)

	return out, nil
}

func (a *Agent) generate(ctx context.Context, req model.Request) (model.Response, error) {
	info := a.llm.Info()
	ctx, span := tracer.Start(ctx, "agent.model.generate", trace.WithAttributes(
		attribute.String("model.name", info.Name),
		attribute.String("model.provider", info.Provider),
		attribute.Int("model.tools", len(req.Tools)),
	))
	defer span.End()

	respCh, errCh := a.llm.Generate(ctx, req)

	resp, err := model.Collect(ctx, respCh, errCh)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return model.Response{}, err
	}

	if resp.Usage != nil {
		span.SetAttributes(
			attribute.Int("model.prompt_tokens", resp.Usage.PromptTokens),
			attribute.Int("model.completion_tokens", resp.Usage.CompletionTokens),
		)
	}

	return resp, nil
}

// invoke executes one tool call and always returns an observation.
func (a *Agent) invoke(ctx context.Context, in Input, st *turnState, fc core.FunctionCall) core.FunctionResponse {
	ctx, span := tracer.Start(ctx, "agent.tool.call", trace.WithAttributes(
		attribute.String("tool.name", fc.Name),
	))
	defer span.End()

	fr := core.FunctionResponse{ID: fc.ID, Name: fc.Name}

	if st.noTools || st.withdrawn[fc.Name] {
		fr.Error = fmt.Sprintf("tool %s is not available for the rest of this turn", fc.Name)
		return fr
	}

	tc := core.NewToolContext(ctx, func(o *core.ToolContextOptions) {
		o.RunID = in.RunID
		o.UserID = in.UserID
		o.AgentName = a.name
		o.FunctionCallID = fc.ID
		o.Logger = a.logger
	})

	start := time.Now()
	result, err := a.tools.Call(tc, fc.Name, fc.Arguments)

	if a.opts.Observer != nil {
		a.opts.Observer.ObserveToolCall(a.name, fc.Name, err)
	}

	a.logger.Info("agent.tool.executed",
		"run_id", in.RunID,
		"tool", fc.Name,
		"duration_ms", time.Since(start).Milliseconds(),
		"error", err != nil,
	)

	if err == nil {
		fr.Response = result
		return fr
	}

	span.RecordError(err)
	span.SetStatus(codes.Error, err.Error())

	if errors.Is(err, core.ErrKnowledgeBaseUnavailable) {
		st.withdrawn[fc.Name] = true
		st.degrade(core.ErrKnowledgeBaseUnavailable.Error())
		fr.Error = "the knowledge base is currently unavailable; answer without it"
		a.logger.Warn("agent.knowledge.unavailable", "run_id", in.RunID, "error", err.Error())
		return fr
	}

	fr.Error = err.Error()

	st.failures[fc.Name]++
	if st.failures[fc.Name] >= maxToolFailures {
		st.withdrawn[fc.Name] = true
		st.noTools = true
		st.failedTool, st.failedErr = fc.Name, err
		st.degrade(fmt.Sprintf("tool %s failed %d times", fc.Name, st.failures[fc.Name]))
		a.logger.Warn("agent.tool.withdrawn", "run_id", in.RunID, "tool", fc.Name, "error", err.Error())
	}

	return fr
}

// activeDefinitions returns the tool definitions still offered this turn.
func (a *Agent) activeDefinitions(st *turnState) []model.ToolDefinition {
	if st.noTools {
		return nil
	}

	all := a.tools.Definitions()
	defs := make([]model.ToolDefinition, 0, len(all))
	for _, d := range all {
		if !st.withdrawn[d.Function.Name] {
			defs = append(defs, d)
		}
	}

	return defs
}

// historyContents returns prior turns of the run, excluding the current
// user message. Storage read failures yield no history.
func (a *Agent) historyContents(ctx context.Context, in Input) []core.Content {
	if !a.opts.AddHistoryToMessages || a.opts.Runs == nil || in.Delegated || in.RunID == "" {
		return nil
	}

	turns, err := a.opts.Runs.History(ctx, in.RunID)
	if err != nil {
		a.logger.Warn("agent.history.unavailable", "run_id", in.RunID, "error", err.Error())
		return nil
	}

	if n := len(turns); n > 0 && turns[n-1].Role == core.RoleUser && turns[n-1].Content == in.Message {
		turns = turns[:n-1]
	}

	turns = runstore.LastN(turns, a.opts.NumHistoryMessages)

	contents := make([]core.Content, 0, len(turns))
	for _, t := range turns {
		if t.Role != core.RoleUser && t.Role != core.RoleAssistant {
			continue
		}
		contents = append(contents, core.NewTextContent(t.Role, t.Content))
	}

	return contents
}

// userMessage returns the user message, prefixed with knowledge base
// references when AddReferences is set.
func (a *Agent) userMessage(ctx context.Context, in Input, st *turnState) string {
	if !a.opts.AddReferences || a.opts.Knowledge == nil {
		return in.Message
	}

	passages, err := a.opts.Knowledge.Search(ctx, in.Message, a.opts.NumDocuments)
	if err != nil {
		a.logger.Warn("agent.references.skipped", "run_id", in.RunID, "error", err.Error())
		st.degrade(core.ErrKnowledgeBaseUnavailable.Error())
		st.withdrawn[SearchKnowledgeBaseTool] = true
		return in.Message
	}

	if len(passages) == 0 {
		return in.Message
	}

	var b strings.Builder
	b.WriteString("Use the following references from the knowledge base if they help answer the message.\n<references>\n")
	for i, p := range passages {
		fmt.Fprintf(&b, "[%d] (source: %s)\n%s\n", i+1, p.Source, strings.TrimSpace(p.Text))
	}
	b.WriteString("</references>\n\n")
	b.WriteString(in.Message)

	return b.String()
}

func (a *Agent) fallback(st *turnState) string {
	if st.failedTool != "" {
		return fmt.Sprintf("%s The `%s` tool failed: %v", a.opts.FallbackText, st.failedTool, st.failedErr)
	}
	if len(st.reasons) > 0 {
		return fmt.Sprintf("%s (%s)", a.opts.FallbackText, strings.Join(st.reasons, "; "))
	}
	return a.opts.FallbackText
}

func addUsage(total *model.TokenUsage, u *model.TokenUsage) {
	if u == nil {
		return
	}
	total.PromptTokens += u.PromptTokens
	total.CompletionTokens += u.CompletionTokens
	total.TotalTokens += u.TotalTokens
}

package agent

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/hupe1980/assistmesh/core"
	"github.com/hupe1980/assistmesh/internal/testutil"
	"github.com/hupe1980/assistmesh/knowledge"
	"github.com/hupe1980/assistmesh/model"
	"github.com/hupe1980/assistmesh/runstore/memory"
	"github.com/hupe1980/assistmesh/tool"
	"github.com/hupe1980/assistmesh/tool/calculator"
	"github.com/hupe1980/assistmesh/tool/websearch"
	"github.com/hupe1980/assistmesh/vector/chromem"
)

func calculatorSet(t *testing.T) *tool.Set {
	t.Helper()
	set, err := tool.NewSet(calculator.Tools()...)
	require.NoError(t, err)
	return set
}

func newAgent(t *testing.T, name string, m model.Model, optFns ...func(o *Options)) *Agent {
	t.Helper()
	a, err := New(name, m, optFns...)
	require.NoError(t, err)
	return a
}

func run(t *testing.T, a *Agent, msg string) Output {
	t.Helper()
	out, err := a.Run(context.Background(), Input{RunID: "run-1", UserID: "user-1", Message: msg})
	require.NoError(t, err)
	return out
}

func failingTool(name string) tool.Tool {
	return tool.NewFunctionTool(name, "always fails", nil, func(*core.ToolContext, map[string]any) (any, error) {
		return nil, errors.New("backend down")
	})
}

// -------------------- Instruction composition --------------------

func TestComposeInstructionsOneClausePerCapability(t *testing.T) {
	caps := Capabilities{
		Tools:         []ToolCapability{{Name: "add", Description: "Add numbers."}, {Name: "read_file"}},
		KnowledgeBase: true,
		ChatHistory:   true,
		WebSearch:     true,
		Team:          []MemberCapability{{Name: "Writer", Role: "Write reports", ToolName: "delegate_task_to_writer"}},
	}

	clauses := ComposeInstructions(caps)
	names := caps.Names()

	require.Len(t, clauses, caps.Len())
	require.Len(t, names, 6)
	assert.Equal(t, []string{"add", "read_file", SearchKnowledgeBaseTool, ChatHistoryTool, WebSearchTool, "delegate_task_to_writer"}, names)

	for i, clause := range clauses {
		assert.Contains(t, clause, "`"+names[i]+"`")
	}
	assert.Contains(t, clauses[5], "Write reports")
}

func TestComposeInstructionsIsPure(t *testing.T) {
	caps := Capabilities{Tools: []ToolCapability{{Name: "add"}}, KnowledgeBase: true}
	assert.Equal(t, ComposeInstructions(caps), ComposeInstructions(caps))
	assert.Empty(t, ComposeInstructions(Capabilities{}))
}

func TestInvocableNamesMatchRequestTools(t *testing.T) {
	store, err := chromem.New()
	require.NoError(t, err)
	kb := knowledge.New(testutil.NewHashEmbedder(16), store)

	userTools, err := tool.NewSet(append(calculator.Tools()[:1], websearch.New())...)
	require.NoError(t, err)

	member := newAgent(t, "Writer", testutil.NewScriptedModel(), func(o *Options) { o.Role = "Write" })

	m := testutil.NewScriptedModel(testutil.Reply("hi"))
	a := newAgent(t, "Leader", m, func(o *Options) {
		o.Tools = userTools
		o.Knowledge = kb
		o.Runs = memory.New()
		o.ReadChatHistory = true
		o.Team = []*Agent{member}
	})

	want := []string{calculator.Add, SearchKnowledgeBaseTool, ChatHistoryTool, WebSearchTool, "delegate_task_to_writer"}
	assert.Equal(t, want, a.InvocableNames())
	assert.Equal(t, a.Capabilities().Names(), a.InvocableNames())

	run(t, a, "hello")
	require.Len(t, m.Requests(), 1)
	assert.Equal(t, want, m.Requests()[0].ToolNames())

	clauses := ComposeInstructions(a.Capabilities())
	assert.Len(t, clauses, len(want))
}

func TestDisabledCapabilitiesAreNotInvocable(t *testing.T) {
	a := newAgent(t, "solo", testutil.NewScriptedModel(), func(o *Options) {
		o.Runs = memory.New() // ReadChatHistory off
	})
	assert.Empty(t, a.InvocableNames())
	assert.Zero(t, a.Capabilities().Len())
}

func TestSystemPromptRendersTemplates(t *testing.T) {
	a := newAgent(t, "helper", testutil.NewScriptedModel(), func(o *Options) {
		o.Description = "You are {{.AgentName}}."
		o.Role = "Answer questions"
		o.Instructions = Texts("The user is {{.UserID}} in run {{.RunID}}.")
		o.ExtraInstructions = Texts("Be brief.")
		o.Tools = calculatorSet(t)
		o.Markdown = true
		o.AddDateTime = true
		o.Now = func() time.Time { return time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC) }
	})

	prompt, err := a.SystemPrompt(InstructionData{UserID: "u1", RunID: "r1", AgentName: "helper"})
	require.NoError(t, err)

	assert.True(t, strings.HasPrefix(prompt, "You are helper."))
	assert.Contains(t, prompt, "Your role is: Answer questions")
	assert.Contains(t, prompt, "1. The user is u1 in run r1.")
	assert.Contains(t, prompt, "Be brief.")
	assert.Contains(t, prompt, markdownClause)
	assert.Contains(t, prompt, "2024-05-01T12:00:00Z")

	clauses, err := a.Instructions(InstructionData{})
	require.NoError(t, err)
	// instruction + 8 calculator clauses + extra + markdown + datetime
	assert.Len(t, clauses, 1+8+1+2)
}

// -------------------- Team validation --------------------

func TestTeamValidation(t *testing.T) {
	leaf := newAgent(t, "leaf", testutil.NewScriptedModel())
	mid := newAgent(t, "mid", testutil.NewScriptedModel(), func(o *Options) { o.Team = []*Agent{leaf} })

	t.Run("depth", func(t *testing.T) {
		_, err := New("root", testutil.NewScriptedModel(), func(o *Options) { o.Team = []*Agent{mid} })
		var cycleErr *core.DelegationCycleError
		require.True(t, errors.As(err, &cycleErr))
		assert.Equal(t, []string{"root", "mid", "leaf"}, cycleErr.Path)
		assert.ErrorIs(t, err, core.ErrDelegationCycle)
	})

	t.Run("self", func(t *testing.T) {
		_, err := New("leaf", testutil.NewScriptedModel(), func(o *Options) { o.Team = []*Agent{leaf} })
		assert.ErrorIs(t, err, core.ErrDelegationCycle)
	})

	t.Run("duplicate", func(t *testing.T) {
		other := newAgent(t, "leaf", testutil.NewScriptedModel())
		_, err := New("root", testutil.NewScriptedModel(), func(o *Options) { o.Team = []*Agent{leaf, other} })
		assert.ErrorIs(t, err, core.ErrDelegationCycle)
	})

	t.Run("valid", func(t *testing.T) {
		a, err := New("root", testutil.NewScriptedModel(), func(o *Options) { o.Team = []*Agent{leaf} })
		require.NoError(t, err)
		assert.Len(t, a.Team(), 1)
	})
}

func TestNewRequiresNameAndModel(t *testing.T) {
	_, err := New("", testutil.NewScriptedModel())
	assert.Error(t, err)
	_, err = New("x", nil)
	assert.Error(t, err)
}

// -------------------- Decision loop --------------------

func TestRunDirectAnswer(t *testing.T) {
	m := testutil.NewScriptedModel(testutil.Reply("Hello there"))
	out := run(t, newAgent(t, "a", m), "hi")

	assert.Equal(t, "Hello there", out.Text)
	assert.False(t, out.Degraded)
	assert.Equal(t, 1, out.ModelCalls)
}

func TestRunToolCall(t *testing.T) {
	m := testutil.NewScriptedModel(
		testutil.Call("c1", calculator.Add, `{"a":2,"b":3}`),
		testutil.EchoLastObservation("The answer is "),
	)
	a := newAgent(t, "math", m, func(o *Options) { o.Tools = calculatorSet(t) })

	out := run(t, a, "What's 2+3?")
	assert.Contains(t, out.Text, "5")
	assert.Equal(t, 1, out.ToolCalls)
	assert.False(t, out.Degraded)

	reqs := m.Requests()
	require.Len(t, reqs, 2)
	last := reqs[1].Contents
	require.Len(t, last, 3)
	assert.Equal(t, core.RoleAssistant, last[1].Role)
	assert.Equal(t, core.RoleTool, last[2].Role)
	assert.Equal(t, "c1", last[2].FunctionResponses()[0].ID)
}

func TestRunToolArgumentErrorBecomesObservation(t *testing.T) {
	m := testutil.NewScriptedModel(
		testutil.Call("c1", calculator.Add, `{"a":"two"}`),
		testutil.EchoLastObservation(""),
	)
	a := newAgent(t, "math", m, func(o *Options) { o.Tools = calculatorSet(t) })

	out := run(t, a, "add")
	assert.Contains(t, out.Text, "error: invalid arguments for add")
	assert.False(t, out.Degraded)
}

func TestRunToolRetryIsBounded(t *testing.T) {
	set, err := tool.NewSet(failingTool("lookup"))
	require.NoError(t, err)

	m := testutil.NewScriptedModel(
		testutil.Call("c1", "lookup", `{}`),
		testutil.Call("c2", "lookup", `{}`),
		testutil.Reply("I could not look that up."),
	)
	a := newAgent(t, "a", m, func(o *Options) { o.Tools = set })

	out := run(t, a, "look it up")
	assert.Equal(t, "I could not look that up.", out.Text)
	assert.True(t, out.Degraded)

	reqs := m.Requests()
	require.Len(t, reqs, 3)
	assert.Equal(t, []string{"lookup"}, reqs[0].ToolNames())
	assert.Equal(t, []string{"lookup"}, reqs[1].ToolNames())
	assert.Empty(t, reqs[2].ToolNames())
}

func TestRunToolFailureFallbackText(t *testing.T) {
	set, err := tool.NewSet(failingTool("lookup"))
	require.NoError(t, err)

	m := testutil.NewScriptedModel(
		testutil.Call("c1", "lookup", `{}`),
		testutil.Call("c2", "lookup", `{}`),
		testutil.Reply(""),
	)
	a := newAgent(t, "a", m, func(o *Options) { o.Tools = set })

	out := run(t, a, "look it up")
	assert.True(t, out.Degraded)
	assert.Contains(t, out.Text, "`lookup`")
	assert.Contains(t, out.Text, "backend down")
}

func TestRunRecoversToolPanic(t *testing.T) {
	set, err := tool.NewSet(tool.NewFunctionTool("explode", "", nil, func(*core.ToolContext, map[string]any) (any, error) {
		panic("boom")
	}))
	require.NoError(t, err)

	m := testutil.NewScriptedModel(
		testutil.Call("c1", "explode", `{}`),
		testutil.EchoLastObservation(""),
	)
	out := run(t, newAgent(t, "a", m, func(o *Options) { o.Tools = set }), "go")
	assert.Contains(t, out.Text, "panic recovered")
}

func TestRunModelErrorAbortsTurn(t *testing.T) {
	m := testutil.NewScriptedModel(testutil.Fail(errors.New("rate limited")))
	_, err := newAgent(t, "a", m).Run(context.Background(), Input{Message: "hi"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "rate limited")
}

func TestRunModelCallLimit(t *testing.T) {
	m := testutil.NewScriptedModel(
		testutil.Call("c1", calculator.Add, `{"a":1,"b":1}`),
		testutil.Reply("final"),
	)
	a := newAgent(t, "a", m, func(o *Options) {
		o.Tools = calculatorSet(t)
		o.MaxModelCalls = 2
	})

	out := run(t, a, "add")
	assert.Equal(t, "final", out.Text)
	assert.True(t, out.Degraded)
	assert.Contains(t, out.Reasons, ErrModelCallLimit.Error())
	assert.Empty(t, m.Requests()[1].ToolNames())
}

// -------------------- Knowledge base --------------------

func TestRunKnowledgeBaseOutageDegrades(t *testing.T) {
	kb := knowledge.New(testutil.NewHashEmbedder(8), testutil.FailingVectorStore{})

	m := testutil.NewScriptedModel(
		testutil.Call("c1", SearchKnowledgeBaseTool, `{"query":"docs"}`),
		testutil.EchoLastObservation("Sorry: "),
	)
	a := newAgent(t, "a", m, func(o *Options) {
		o.Knowledge = kb
		o.Tools = calculatorSet(t)
	})

	out := run(t, a, "what do the docs say?")
	assert.NotEmpty(t, out.Text)
	assert.Contains(t, out.Text, "unavailable")
	assert.True(t, out.Degraded)

	reqs := m.Requests()
	require.Len(t, reqs, 2)
	assert.Contains(t, reqs[0].ToolNames(), SearchKnowledgeBaseTool)
	assert.NotContains(t, reqs[1].ToolNames(), SearchKnowledgeBaseTool)
	assert.Contains(t, reqs[1].ToolNames(), calculator.Add)
}

func TestRunAddReferences(t *testing.T) {
	ctx := context.Background()
	store, err := chromem.New()
	require.NoError(t, err)
	kb := knowledge.New(testutil.NewHashEmbedder(32), store)
	_, err = kb.Ingest(ctx, []core.Document{{Text: "The office opens at nine", Source: "hours.txt"}}, true)
	require.NoError(t, err)

	m := testutil.NewScriptedModel(testutil.Reply("Nine."))
	a := newAgent(t, "a", m, func(o *Options) {
		o.Knowledge = kb
		o.AddReferences = true
		o.SearchKnowledge = false
	})

	out := run(t, a, "when does the office open")
	assert.Equal(t, "Nine.", out.Text)

	user := m.Requests()[0].Contents[0].Text()
	assert.Contains(t, user, "<references>")
	assert.Contains(t, user, "hours.txt")
	assert.True(t, strings.HasSuffix(user, "when does the office open"))
	assert.Empty(t, m.Requests()[0].ToolNames())
}

func TestRunAddReferencesOutageSkipsRetrieval(t *testing.T) {
	kb := knowledge.New(testutil.FailingEmbedder{Dims: 8}, testutil.FailingVectorStore{})

	m := testutil.NewScriptedModel(testutil.Reply("answered anyway"))
	a := newAgent(t, "a", m, func(o *Options) {
		o.Knowledge = kb
		o.AddReferences = true
	})

	out := run(t, a, "question")
	assert.Equal(t, "answered anyway", out.Text)
	assert.True(t, out.Degraded)
	assert.Equal(t, "question", m.Requests()[0].Contents[0].Text())
	assert.NotContains(t, m.Requests()[0].ToolNames(), SearchKnowledgeBaseTool)
}

// -------------------- History --------------------

func TestRunAddsHistory(t *testing.T) {
	ctx := context.Background()
	runs := memory.New()
	for _, turn := range []core.Turn{
		core.NewTurn(core.RoleUser, "first question"),
		core.NewTurn(core.RoleAssistant, "first answer"),
		core.NewTurn(core.RoleUser, "second question"),
	} {
		require.NoError(t, runs.AppendTurn(ctx, "run-1", turn))
	}

	m := testutil.NewScriptedModel(testutil.Reply("ok"))
	a := newAgent(t, "a", m, func(o *Options) {
		o.Runs = runs
		o.AddHistoryToMessages = true
	})

	run(t, a, "second question")

	contents := m.Requests()[0].Contents
	require.Len(t, contents, 3)
	assert.Equal(t, "first question", contents[0].Text())
	assert.Equal(t, "first answer", contents[1].Text())
	assert.Equal(t, "second question", contents[2].Text())
}

func TestRunHistoryReadOutageYieldsEmptyHistory(t *testing.T) {
	m := testutil.NewScriptedModel(testutil.Reply("ok"))
	a := newAgent(t, "a", m, func(o *Options) {
		o.Runs = &testutil.FailingRunStore{FailReads: true}
		o.AddHistoryToMessages = true
	})

	out := run(t, a, "hi")
	assert.Equal(t, "ok", out.Text)
	assert.Len(t, m.Requests()[0].Contents, 1)
}

func TestChatHistoryTool(t *testing.T) {
	ctx := context.Background()
	runs := memory.New()
	require.NoError(t, runs.AppendTurn(ctx, "run-1", core.NewTurn(core.RoleUser, "my name is Ada")))

	m := testutil.NewScriptedModel(
		testutil.Call("c1", ChatHistoryTool, `{"num_chats":5}`),
		testutil.EchoLastObservation(""),
	)
	a := newAgent(t, "a", m, func(o *Options) {
		o.Runs = runs
		o.ReadChatHistory = true
	})

	out := run(t, a, "what is my name?")
	assert.Contains(t, out.Text, "my name is Ada")
}

// -------------------- Delegation --------------------

func TestRunDelegation(t *testing.T) {
	memberModel := testutil.NewScriptedModel(testutil.Reply("report: all good"))
	member := newAgent(t, "Writer", memberModel, func(o *Options) { o.Role = "Write reports" })

	leaderModel := testutil.NewScriptedModel(
		testutil.Call("c1", "delegate_task_to_writer", `{"task_description":"write the report"}`),
		testutil.EchoLastObservation("Writer says: "),
	)
	leader := newAgent(t, "Leader", leaderModel, func(o *Options) { o.Team = []*Agent{member} })

	out := run(t, leader, "I need a report")
	assert.Equal(t, "Writer says: report: all good", out.Text)

	require.Len(t, memberModel.Requests(), 1)
	assert.Equal(t, "write the report", memberModel.Requests()[0].Contents[0].Text())
}

func TestRunDelegationFailureIsObservation(t *testing.T) {
	member := newAgent(t, "Writer", testutil.NewScriptedModel(testutil.Fail(errors.New("member model down"))))

	leaderModel := testutil.NewScriptedModel(
		testutil.Call("c1", "delegate_task_to_writer", `{"task_description":"x"}`),
		testutil.EchoLastObservation(""),
	)
	leader := newAgent(t, "Leader", leaderModel, func(o *Options) { o.Team = []*Agent{member} })

	out := run(t, leader, "go")
	assert.Contains(t, out.Text, "member model down")
}

// -------------------- Observer --------------------

type recordingObserver struct {
	calls    []string
	degraded []string
}

func (r *recordingObserver) ObserveToolCall(_, toolName string, err error) {
	outcome := "ok"
	if err != nil {
		outcome = "error"
	}
	r.calls = append(r.calls, toolName+":"+outcome)
}

func (r *recordingObserver) ObserveDegraded(_, reason string) { r.degraded = append(r.degraded, reason) }

func TestObserver(t *testing.T) {
	set, err := tool.NewSet(failingTool("lookup"))
	require.NoError(t, err)
	obs := &recordingObserver{}

	m := testutil.NewScriptedModel(
		testutil.Call("c1", "lookup", `{}`),
		testutil.Call("c2", "lookup", `{}`),
		testutil.Reply("done"),
	)
	run(t, newAgent(t, "a", m, func(o *Options) {
		o.Tools = set
		o.Observer = obs
	}), "x")

	assert.Equal(t, []string{"lookup:error", "lookup:error"}, obs.calls)
	assert.Len(t, obs.degraded, 1)
}

// -------------------- Mocked model --------------------

func TestRunWithMockModel(t *testing.T) {
	m := &testutil.MockModel{}
	m.On("Generate", mock.Anything, mock.MatchedBy(func(req model.Request) bool {
		return len(req.Contents) == 1 && req.Contents[0].Text() == "ping"
	})).Return(testutil.TextResponse("pong"), nil).Once()

	out := run(t, newAgent(t, "a", m), "ping")
	assert.Equal(t, "pong", out.Text)
	m.AssertExpectations(t)
}

func TestModelLimiter(t *testing.T) {
	l := NewModelLimiter(2)
	assert.Equal(t, 2, l.Remaining())
	require.NoError(t, l.Increment())
	require.NoError(t, l.Increment())
	assert.ErrorIs(t, l.Increment(), ErrModelCallLimit)
	assert.Equal(t, 2, l.Count())

	unlimited := NewModelLimiter(0)
	for i := 0; i < 50; i++ {
		require.NoError(t, unlimited.Increment())
	}
	assert.Equal(t, -1, unlimited.Remaining())
}

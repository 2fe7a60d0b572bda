// Package orchestrator exposes the assistant to callers: it owns runs,
// persists turns and serializes the turns of one run.
//
// Per message the Orchestrator takes the user turn (Intake), lets the root
// agent Route and Act, then appends the user and assistant turns together
// (Respond). A failed turn persists nothing. Turns of different runs proceed
// concurrently.
package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/hupe1980/assistmesh/agent"
	"github.com/hupe1980/assistmesh/core"
	"github.com/hupe1980/assistmesh/logging"
	"github.com/hupe1980/assistmesh/runstore"
	"github.com/hupe1980/assistmesh/runstore/memory"
)

var tracer = otel.Tracer("github.com/hupe1980/assistmesh/orchestrator")

var (
	// ErrEmptyMessage is returned for blank user messages.
	ErrEmptyMessage = errors.New("message must not be empty")

	// ErrNoKnowledgeBase is returned by knowledge operations when none is configured.
	ErrNoKnowledgeBase = errors.New("no knowledge base configured")
)

// Turn outcomes reported to Metrics.
const (
	OutcomeOK       = "ok"
	OutcomeDegraded = "degraded"
	OutcomeError    = "error"
)

// Metrics records turn-level measurements.
type Metrics interface {
	ObserveTurn(agentName, outcome string, d time.Duration)
}

// KnowledgeBase is the knowledge surface managed through the orchestrator.
type KnowledgeBase interface {
	Ingest(ctx context.Context, docs []core.Document, upsert bool) (int, error)
	Clear(ctx context.Context) error
	Count(ctx context.Context) (int, error)
}

// Options configures an Orchestrator.
type Options struct {
	// Runs persists runs and turns (default in-memory).
	Runs runstore.Store

	// Knowledge enables Ingest and ClearKnowledge.
	Knowledge KnowledgeBase

	// RequirePersistence makes turn write failures fatal. Otherwise they are
	// logged and the turn completes.
	RequirePersistence bool

	// MaxConcurrentTurns bounds turns in flight across all runs (0 = unlimited).
	MaxConcurrentTurns int

	Logger  logging.Logger
	Metrics Metrics

	// NewID generates run ids (default UUID v4).
	NewID func() string
}

// Reply is the outcome of one handled message.
type Reply struct {
	RunID    string   `json:"run_id"`
	Text     string   `json:"response"`
	Degraded bool     `json:"degraded,omitempty"`
	Reasons  []string `json:"reasons,omitempty"`
}

// Orchestrator coordinates the root agent and the run store. Public methods
// are safe for concurrent use.
type Orchestrator struct {
	agent *agent.Agent
	opts  Options

	runs   runstore.Store
	logger logging.Logger

	sem chan struct{}

	mu    sync.Mutex
	locks map[string]*runLock
}

type runLock struct {
	mu   sync.Mutex
	refs int
}

// New constructs an Orchestrator around the root agent.
func New(root *agent.Agent, optFns ...func(o *Options)) *Orchestrator {
	opts := Options{
		Logger: logging.NoOpLogger{},
		NewID:  uuid.NewString,
	}

	for _, fn := range optFns {
		fn(&opts)
	}

	if opts.Runs == nil {
		opts.Runs = memory.New()
	}
	if opts.Logger == nil {
		opts.Logger = logging.NoOpLogger{}
	}

	o := &Orchestrator{
		agent:  root,
		opts:   opts,
		runs:   opts.Runs,
		logger: logging.With(opts.Logger, "component", "orchestrator"),
		locks:  make(map[string]*runLock),
	}

	if opts.MaxConcurrentTurns > 0 {
		o.sem = make(chan struct{}, opts.MaxConcurrentTurns)
	}

	return o
}

// Agent returns the root agent.
func (o *Orchestrator) Agent() *agent.Agent { return o.agent }

// Runs returns the run store.
func (o *Orchestrator) Runs() runstore.Store { return o.runs }

// CreateRun starts a new run for userID and returns its id.
func (o *Orchestrator) CreateRun(ctx context.Context, userID string) (string, error) {
	run := core.Run{
		ID:        o.opts.NewID(),
		UserID:    userID,
		AgentName: o.agent.Name(),
		CreatedAt: time.Now().UTC(),
	}

	if err := o.runs.CreateRun(ctx, run); err != nil {
		if o.opts.RequirePersistence {
			return "", fmt.Errorf("create run: %w", err)
		}
		o.logger.Warn("orchestrator.run.create_failed", "run_id", run.ID, "error", err.Error())
	}

	o.logger.Info("orchestrator.run.created", "run_id", run.ID, "user_id", userID)

	return run.ID, nil
}

// ListRuns returns the user's run ids ordered by creation time.
func (o *Orchestrator) ListRuns(ctx context.Context, userID string) ([]string, error) {
	ids, err := o.runs.ListRunIDs(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("list runs: %w", err)
	}
	if ids == nil {
		ids = []string{}
	}
	return ids, nil
}

// History returns the turns of a run in order. Unknown runs are empty.
func (o *Orchestrator) History(ctx context.Context, runID string) ([]core.Turn, error) {
	turns, err := o.runs.History(ctx, runID)
	if err != nil {
		return nil, fmt.Errorf("history: %w", err)
	}
	if turns == nil {
		turns = []core.Turn{}
	}
	return turns, nil
}

// HandleMessage processes one user message within runID and returns the
// assistant's response text.
func (o *Orchestrator) HandleMessage(ctx context.Context, runID, userID, text string) (string, error) {
	reply, err := o.Handle(ctx, runID, userID, text)
	if err != nil {
		return "", err
	}
	return reply.Text, nil
}

// Handle is HandleMessage with run id and degradation details. An empty
// runID starts a new run.
func (o *Orchestrator) Handle(ctx context.Context, runID, userID, text string) (Reply, error) {
	if strings.TrimSpace(text) == "" {
		return Reply{}, ErrEmptyMessage
	}

	if runID == "" {
		id, err := o.CreateRun(ctx, userID)
		if err != nil {
			return Reply{}, err
		}
		runID = id
	}

	ctx, span := tracer.Start(ctx, "orchestrator.handle_message", trace.WithAttributes(
		attribute.String("run.id", runID),
		attribute.String("user.id", userID),
		attribute.String("agent.name", o.agent.Name()),
	))
	defer span.End()

	if err := o.acquire(ctx); err != nil {
		return Reply{}, err
	}
	defer o.release()

	unlock := o.lockRun(runID)
	defer unlock()

	start := time.Now()

	o.ensureRun(ctx, runID, userID)

	// Intake. The user turn is persisted together with its response so a
	// failed turn leaves no partial state behind.
	userTurn := core.NewTurn(core.RoleUser, text)

	// Route + Act
	out, err := o.agent.Run(ctx, agent.Input{RunID: runID, UserID: userID, Message: text})
	if err != nil {
		o.observe(OutcomeError, start)
		o.logger.Error("orchestrator.turn.error", "run_id", runID, "error", err.Error())
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return Reply{}, err
	}

	// Respond
	turn := core.NewTurn(core.RoleAssistant, out.Text)
	turn.Name = o.agent.Name()
	for _, t := range []core.Turn{userTurn, turn} {
		if err := o.appendTurn(ctx, runID, t); err != nil {
			o.observe(OutcomeError, start)
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
			return Reply{}, err
		}
	}

	outcome := OutcomeOK
	if out.Degraded {
		outcome = OutcomeDegraded
	}
	o.observe(outcome, start)
	span.SetAttributes(attribute.Bool("turn.degraded", out.Degraded))

	o.logger.Info("orchestrator.turn.complete",
		"run_id", runID,
		"degraded", out.Degraded,
		"model_calls", out.ModelCalls,
		"tool_calls", out.ToolCalls,
		"duration_ms", time.Since(start).Milliseconds(),
	)

	return Reply{RunID: runID, Text: out.Text, Degraded: out.Degraded, Reasons: out.Reasons}, nil
}

// Ingest adds documents to the knowledge base.
func (o *Orchestrator) Ingest(ctx context.Context, docs []core.Document, upsert bool) (int, error) {
	if o.opts.Knowledge == nil {
		return 0, ErrNoKnowledgeBase
	}
	return o.opts.Knowledge.Ingest(ctx, docs, upsert)
}

// ClearKnowledge removes all knowledge base documents.
func (o *Orchestrator) ClearKnowledge(ctx context.Context) error {
	if o.opts.Knowledge == nil {
		return ErrNoKnowledgeBase
	}
	return o.opts.Knowledge.Clear(ctx)
}

// KnowledgeCount returns the number of stored knowledge records.
func (o *Orchestrator) KnowledgeCount(ctx context.Context) (int, error) {
	if o.opts.Knowledge == nil {
		return 0, ErrNoKnowledgeBase
	}
	return o.opts.Knowledge.Count(ctx)
}

// Close releases the run store.
func (o *Orchestrator) Close() error { return o.runs.Close() }

// ensureRun creates runs on their first message.
func (o *Orchestrator) ensureRun(ctx context.Context, runID, userID string) {
	_, err := o.runs.GetRun(ctx, runID)
	switch {
	case err == nil:
		return
	case errors.Is(err, runstore.ErrRunNotFound):
		run := core.Run{ID: runID, UserID: userID, AgentName: o.agent.Name(), CreatedAt: time.Now().UTC()}
		if err := o.runs.CreateRun(ctx, run); err != nil {
			o.logger.Warn("orchestrator.run.create_failed", "run_id", runID, "error", err.Error())
		}
	default:
		o.logger.Warn("orchestrator.run.lookup_failed", "run_id", runID, "error", err.Error())
	}
}

func (o *Orchestrator) appendTurn(ctx context.Context, runID string, turn core.Turn) error {
	if err := o.runs.AppendTurn(ctx, runID, turn); err != nil {
		if o.opts.RequirePersistence {
			return fmt.Errorf("persist %s turn: %w", turn.Role, err)
		}
		o.logger.Warn("orchestrator.turn.persist_failed", "run_id", runID, "role", turn.Role, "error", err.Error())
	}
	return nil
}

func (o *Orchestrator) observe(outcome string, start time.Time) {
	if o.opts.Metrics != nil {
		o.opts.Metrics.ObserveTurn(o.agent.Name(), outcome, time.Since(start))
	}
}

func (o *Orchestrator) acquire(ctx context.Context) error {
	if o.sem == nil {
		return nil
	}
	select {
	case o.sem <- struct{}{}:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (o *Orchestrator) release() {
	if o.sem != nil {
		<-o.sem
	}
}

// lockRun serializes turns of one run and returns the unlock function.
func (o *Orchestrator) lockRun(runID string) func() {
	o.mu.Lock()
	l, ok := o.locks[runID]
	if !ok {
		l = &runLock{}
		o.locks[runID] = l
	}
	l.refs++
	o.mu.Unlock()

	l.mu.Lock()

	return func() {
		l.mu.Unlock()

		o.mu.Lock()
		l.refs--
		if l.refs == 0 {
			delete(o.locks, runID)
		}
		o.mu.Unlock()
	}
}

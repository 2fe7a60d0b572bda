package server

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hupe1980/assistmesh/agent"
	"github.com/hupe1980/assistmesh/core"
	"github.com/hupe1980/assistmesh/internal/testutil"
	"github.com/hupe1980/assistmesh/knowledge"
	"github.com/hupe1980/assistmesh/orchestrator"
	"github.com/hupe1980/assistmesh/telemetry"
	"github.com/hupe1980/assistmesh/tool"
	"github.com/hupe1980/assistmesh/tool/calculator"
	"github.com/hupe1980/assistmesh/vector/chromem"
)

func newTestServer(t *testing.T, steps ...testutil.Step) *httptest.Server {
	t.Helper()

	set, err := tool.NewSet(calculator.Tools()...)
	require.NoError(t, err)

	store, err := chromem.New()
	require.NoError(t, err)
	kb := knowledge.New(testutil.NewHashEmbedder(16), store)

	a, err := agent.New("assistant", testutil.NewScriptedModel(steps...), func(o *agent.Options) {
		o.Tools = set
		o.Knowledge = kb
	})
	require.NoError(t, err)

	metrics := telemetry.NewMetrics()
	o := orchestrator.New(a, func(o *orchestrator.Options) {
		o.Knowledge = kb
		o.Metrics = metrics
	})

	srv := httptest.NewServer(New(o, func(o *Options) { o.Metrics = metrics.Handler() }).Handler())
	t.Cleanup(srv.Close)
	return srv
}

func do(t *testing.T, srv *httptest.Server, method, path, body string, out any) int {
	t.Helper()

	req, err := http.NewRequestWithContext(context.Background(), method, srv.URL+path, strings.NewReader(body))
	require.NoError(t, err)
	req.Header.Set("Content-Type", "application/json")

	resp, err := srv.Client().Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()

	if out != nil && resp.StatusCode != http.StatusNoContent {
		require.NoError(t, json.NewDecoder(resp.Body).Decode(out))
	}
	return resp.StatusCode
}

func TestHealth(t *testing.T) {
	srv := newTestServer(t)

	var body map[string]string
	assert.Equal(t, http.StatusOK, do(t, srv, http.MethodGet, "/healthz", "", &body))
	assert.Equal(t, "ok", body["status"])
}

func TestRunLifecycle(t *testing.T) {
	srv := newTestServer(t,
		testutil.Call("c1", calculator.Add, `{"a":2,"b":3}`),
		testutil.EchoLastObservation("2 + 3 = "),
	)

	var created createRunResponse
	require.Equal(t, http.StatusCreated, do(t, srv, http.MethodPost, "/v1/runs", `{"user_id":"u1"}`, &created))
	require.NotEmpty(t, created.RunID)

	var reply orchestrator.Reply
	status := do(t, srv, http.MethodPost, "/v1/runs/"+created.RunID+"/messages", `{"user_id":"u1","message":"What's 2+3?"}`, &reply)
	require.Equal(t, http.StatusOK, status)
	assert.Contains(t, reply.Text, "5")
	assert.Equal(t, created.RunID, reply.RunID)

	var runs listRunsResponse
	require.Equal(t, http.StatusOK, do(t, srv, http.MethodGet, "/v1/runs?user_id=u1", "", &runs))
	assert.Equal(t, []string{created.RunID}, runs.RunIDs)

	var hist historyResponse
	require.Equal(t, http.StatusOK, do(t, srv, http.MethodGet, "/v1/runs/"+created.RunID+"/turns", "", &hist))
	require.Len(t, hist.Turns, 2)
	assert.Equal(t, core.RoleUser, hist.Turns[0].Role)
	assert.Equal(t, core.RoleAssistant, hist.Turns[1].Role)
}

func TestChat(t *testing.T) {
	srv := newTestServer(t, testutil.Reply("Hello there"))

	var reply orchestrator.Reply
	require.Equal(t, http.StatusOK, do(t, srv, http.MethodPost, "/chat", `{"message":"hi"}`, &reply))
	assert.Equal(t, "Hello there", reply.Text)
	assert.NotEmpty(t, reply.RunID)
}

func TestKnowledgeEndpoints(t *testing.T) {
	srv := newTestServer(t)

	var ing ingestResponse
	body := `{"documents":[{"text":"The office opens at nine.","source":"hours.txt"}]}`
	require.Equal(t, http.StatusOK, do(t, srv, http.MethodPost, "/v1/knowledge", body, &ing))
	assert.Equal(t, 1, ing.Ingested)

	var count countResponse
	require.Equal(t, http.StatusOK, do(t, srv, http.MethodGet, "/v1/knowledge", "", &count))
	assert.Equal(t, 1, count.Count)

	assert.Equal(t, http.StatusNoContent, do(t, srv, http.MethodDelete, "/v1/knowledge", "", nil))

	require.Equal(t, http.StatusOK, do(t, srv, http.MethodGet, "/v1/knowledge", "", &count))
	assert.Zero(t, count.Count)
}

func TestBadRequests(t *testing.T) {
	srv := newTestServer(t)

	tests := []struct {
		method, path, body, code string
	}{
		{http.MethodPost, "/chat", `{"message":`, "bad_request"},
		{http.MethodPost, "/chat", `{"message":"hi","extra":1}`, "bad_request"},
		{http.MethodPost, "/chat", `{"message":"  "}`, "empty_message"},
		{http.MethodGet, "/v1/runs", "", "bad_request"},
		{http.MethodPost, "/v1/knowledge", `{"documents":[]}`, "bad_request"},
	}

	for _, tt := range tests {
		t.Run(tt.method+" "+tt.path+" "+tt.body, func(t *testing.T) {
			var er errorResponse
			assert.Equal(t, http.StatusBadRequest, do(t, srv, tt.method, tt.path, tt.body, &er))
			assert.Equal(t, tt.code, er.Code)
			assert.NotEmpty(t, er.Error)
		})
	}
}

func TestNotFound(t *testing.T) {
	srv := newTestServer(t)

	var er errorResponse
	assert.Equal(t, http.StatusNotFound, do(t, srv, http.MethodGet, "/nope", "", &er))
	assert.Equal(t, "not_found", er.Code)
}

func TestMetricsEndpoint(t *testing.T) {
	srv := newTestServer(t, testutil.Reply("ok"))

	do(t, srv, http.MethodPost, "/chat", `{"message":"hi"}`, &orchestrator.Reply{})

	resp, err := srv.Client().Get(srv.URL + "/metrics")
	require.NoError(t, err)
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	assert.Contains(t, string(body), `assistmesh_turns_total{agent="assistant",outcome="ok"} 1`)
}

func TestStatusFor(t *testing.T) {
	tests := []struct {
		err    error
		status int
		code   string
	}{
		{&core.UnsupportedBackendError{Kind: "llm", Name: "unicorn-9000"}, http.StatusBadRequest, "unsupported_backend"},
		{&core.DelegationCycleError{Path: []string{"a", "a"}}, http.StatusBadRequest, "delegation_cycle"},
		{fmt.Errorf("history: %w", core.ErrStorageUnavailable), http.StatusServiceUnavailable, "storage_unavailable"},
		{fmt.Errorf("ingest: %w", core.ErrKnowledgeBaseUnavailable), http.StatusServiceUnavailable, "knowledge_base_unavailable"},
		{orchestrator.ErrNoKnowledgeBase, http.StatusNotFound, "knowledge_base_not_configured"},
		{fmt.Errorf("boom"), http.StatusInternalServerError, "internal"},
	}

	for _, tt := range tests {
		status, code := statusFor(tt.err)
		assert.Equal(t, tt.status, status, tt.err.Error())
		assert.Equal(t, tt.code, code, tt.err.Error())
	}
}

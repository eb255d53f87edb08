package gateway_test

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"reposcout/search-service/internal/audit"
	"reposcout/search-service/internal/gateway"
	"reposcout/search-service/internal/jobstatus"
	"reposcout/search-service/internal/model"
	"reposcout/search-service/internal/queue"
	"reposcout/search-service/internal/worker"
)

func quietLogger() *slog.Logger { return slog.New(slog.NewTextHandler(io.Discard, nil)) }

type runnerFunc func(ctx context.Context, jobID string, f model.SearchFilters) (model.ResultEnvelope, error)

func (fn runnerFunc) Run(ctx context.Context, jobID string, f model.SearchFilters) (model.ResultEnvelope, error) {
	return fn(ctx, jobID, f)
}

type fakeHistory struct {
	entries map[string]*audit.Entry
}

func (f *fakeHistory) Get(_ context.Context, id string) (*audit.Entry, error) {
	if e, ok := f.entries[id]; ok {
		return e, nil
	}
	return nil, audit.ErrNotFound
}

type fixture struct {
	srv *httptest.Server
	q   *queue.Queue
	mr  *miniredis.Miniredis
}

func newFixture(t *testing.T, await time.Duration, history gateway.History) *fixture {
	t.Helper()
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr(), MaxRetries: -1})
	t.Cleanup(func() { _ = rdb.Close() })

	q := queue.New(rdb, queue.DefaultConfig(), quietLogger())
	h := gateway.NewHandler(q, history, await, "test", quietLogger())
	srv := httptest.NewServer(h.Routes())
	t.Cleanup(srv.Close)
	return &fixture{srv: srv, q: q, mr: mr}
}

// startWorker consumes jobs with runner until the test ends.
func (f *fixture) startWorker(t *testing.T, runner worker.Runner) {
	t.Helper()
	w := worker.NewWorker(f.q, runner, nil, worker.Config{PollTimeout: time.Second, Backoff: 10 * time.Millisecond}, quietLogger())
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() { _ = w.Run(ctx); close(done) }()
	t.Cleanup(func() { cancel(); <-done })
}

func (f *fixture) postSearch(t *testing.T, body string) (*http.Response, map[string]any) {
	t.Helper()
	resp, err := http.Post(f.srv.URL+"/search", "application/json", strings.NewReader(body))
	require.NoError(t, err)
	defer resp.Body.Close()
	var out map[string]any
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&out))
	return resp, out
}

func (f *fixture) get(t *testing.T, path string) (*http.Response, map[string]any) {
	t.Helper()
	resp, err := http.Get(f.srv.URL + path)
	require.NoError(t, err)
	defer resp.Body.Close()
	var out map[string]any
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&out))
	return resp, out
}

// ─── POST /search ────────────────────────────────────────────────────────────

func TestSearch_Completed(t *testing.T) {
	f := newFixture(t, 5*time.Second, nil)
	f.startWorker(t, runnerFunc(func(_ context.Context, id string, fl model.SearchFilters) (model.ResultEnvelope, error) {
		return model.ResultEnvelope{
			JobID:    id,
			Status:   jobstatus.StatusCompleted,
			Summary:  "Found 1 project for \"orm\".",
			Filters:  fl,
			Projects: []model.RankedCandidate{{Candidate: model.Candidate{ID: 1, Name: "ent", Stars: 15000}, Score: 12.5}},
		}, nil
	}))

	resp, body := f.postSearch(t, `{"topic":" orm ","language":"Go"}`)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "application/json", resp.Header.Get("Content-Type"))
	assert.Equal(t, "completed", body["status"])

	filters := body["filters"].(map[string]any)
	assert.Equal(t, "orm", filters["topic"])
	assert.Equal(t, float64(model.DefaultLimit), filters["limit"])
	assert.Len(t, body["projects"], 1)
}

func TestSearch_ErrorEnvelopeIsBadGateway(t *testing.T) {
	f := newFixture(t, 5*time.Second, nil)
	f.startWorker(t, runnerFunc(func(context.Context, string, model.SearchFilters) (model.ResultEnvelope, error) {
		return model.ResultEnvelope{}, errors.New("github search rate limit exceeded")
	}))

	resp, body := f.postSearch(t, `{"topic":"orm"}`)
	assert.Equal(t, http.StatusBadGateway, resp.StatusCode)
	assert.Equal(t, "error", body["status"])
	assert.Contains(t, body["error"], "rate limit")
}

func TestSearch_ValidationErrors(t *testing.T) {
	tests := []struct {
		name, body, field string
	}{
		{"blank topic", `{"topic":"   "}`, "topic"},
		{"limit too large", `{"topic":"orm","limit":16}`, "limit"},
		{"negative limit", `{"topic":"orm","limit":-1}`, "limit"},
		{"negative min stars", `{"topic":"orm","minStars":-5}`, "minStars"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t, time.Second, nil)
			resp, body := f.postSearch(t, tt.body)
			assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
			assert.Equal(t, tt.field, body["field"])
			assert.False(t, f.mr.Exists(queue.RequestQueueKey), "nothing is enqueued for invalid filters")
		})
	}
}

func TestSearch_MalformedBody(t *testing.T) {
	f := newFixture(t, time.Second, nil)
	resp, body := f.postSearch(t, `{"topic":`)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	assert.Equal(t, "invalid JSON body", body["error"])
}

func TestSearch_TimeoutIsGatewayTimeoutAndJobStaysQueued(t *testing.T) {
	f := newFixture(t, 200*time.Millisecond, nil)

	start := time.Now()
	resp, body := f.postSearch(t, `{"topic":"orm"}`)
	assert.Equal(t, http.StatusGatewayTimeout, resp.StatusCode)
	assert.Less(t, time.Since(start), 2*time.Second)

	jobID, _ := body["jobId"].(string)
	require.NotEmpty(t, jobID)

	resp, status := f.get(t, "/jobs/"+jobID+"/status")
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "queued", status["status"])
}

// ─── GET /jobs/{id}/status ───────────────────────────────────────────────────

func TestStatus_NotFound(t *testing.T) {
	f := newFixture(t, time.Second, nil)
	resp, body := f.get(t, "/jobs/does-not-exist/status")
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
	assert.Equal(t, "job not found", body["error"])
}

func TestStatus_FallsBackToHistory(t *testing.T) {
	finished := time.Date(2026, 10, 19, 8, 0, 0, 0, time.UTC)
	hist := &fakeHistory{entries: map[string]*audit.Entry{
		"old-job": {JobID: "old-job", Topic: "orm", Status: jobstatus.StatusCompleted, Returned: 4, FinishedAt: finished},
	}}
	f := newFixture(t, time.Second, hist)

	resp, body := f.get(t, "/jobs/old-job/status")
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "completed", body["status"])
	assert.Equal(t, "4 candidates", body["summary"])

	resp, _ = f.get(t, "/jobs/unknown/status")
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestStatus_TerminalMarkerAfterResult(t *testing.T) {
	f := newFixture(t, 5*time.Second, nil)
	f.startWorker(t, runnerFunc(func(_ context.Context, id string, fl model.SearchFilters) (model.ResultEnvelope, error) {
		return model.ResultEnvelope{JobID: id, Status: jobstatus.StatusCompleted, Filters: fl, Projects: []model.RankedCandidate{}}, nil
	}))

	_, body := f.postSearch(t, `{"topic":"orm"}`)
	jobID := body["jobId"].(string)

	resp, status := f.get(t, "/jobs/"+jobID+"/status")
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "completed", status["status"])
}

// ─── GET /health ─────────────────────────────────────────────────────────────

func TestHealth(t *testing.T) {
	f := newFixture(t, time.Second, nil)
	_, err := f.q.Enqueue(context.Background(), model.SearchFilters{Topic: "pending"})
	require.NoError(t, err)

	resp, body := f.get(t, "/health")
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "ok", body["status"])
	assert.Equal(t, float64(1), body["queueDepth"])
}

func TestHealth_DegradedWhenStoreDown(t *testing.T) {
	f := newFixture(t, time.Second, nil)
	f.mr.Close()

	resp, body := f.get(t, "/health")
	assert.Equal(t, http.StatusServiceUnavailable, resp.StatusCode)
	assert.Equal(t, "degraded", body["status"])
}

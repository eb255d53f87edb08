package enrich_test

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"reposcout/search-service/internal/enrich"
	"reposcout/search-service/internal/model"
)

func quietLogger() *slog.Logger { return slog.New(slog.NewTextHandler(io.Discard, nil)) }

func project(name, desc string) model.RankedCandidate {
	return model.RankedCandidate{Candidate: model.Candidate{Name: name, FullName: "o/" + name, Description: desc}}
}

func TestNeedsDescription(t *testing.T) {
	cases := []struct {
		in   string
		want bool
	}{
		{"", true},
		{"   ", true},
		{"null", true},
		{"undefined", true},
		{"NULL", true},
		{"No description, website, or topics provided.", true},
		{"A fast graph database", false},
		{"nullable types for Go", false},
	}
	for _, tc := range cases {
		assert.Equal(t, tc.want, enrich.NeedsDescription(tc.in), "NeedsDescription(%q)", tc.in)
	}
}

func TestEnrich_FillsOnlyPlaceholders(t *testing.T) {
	var calls atomic.Int32
	var gotBody map[string]any
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		assert.Equal(t, "/search", r.URL.Path)
		assert.Equal(t, "Bearer tvly-key", r.Header.Get("Authorization"))
		require.NoError(t, json.NewDecoder(r.Body).Decode(&gotBody))
		fmt.Fprint(w, `{"answer":"  A distributed graph store.  ","results":[]}`)
	}))
	defer ts.Close()

	c := enrich.NewTavilyClient(enrich.Config{BaseURL: ts.URL, APIKey: "tvly-key", MaxResults: 2}, quietLogger())
	in := []model.RankedCandidate{project("keep", "Already described"), project("fill", "")}

	out := c.Enrich(context.Background(), "graph database", in)

	require.Len(t, out, 2)
	assert.Equal(t, "Already described", out[0].Description)
	assert.Equal(t, "A distributed graph store.", out[1].Description)
	assert.Equal(t, "", in[1].Description, "input slice must not be mutated")
	assert.EqualValues(t, 1, calls.Load())

	assert.Equal(t, true, gotBody["include_answer"])
	assert.EqualValues(t, 2, gotBody["max_results"])
	assert.Contains(t, gotBody["query"], "fill")
	assert.Contains(t, gotBody["query"], "graph database")
}

func TestEnrich_FallsBackToResultContent(t *testing.T) {
	long := strings.Repeat("x", 400)
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprintf(w, `{"answer":null,"results":[{"content":"  "},{"content":"%s"}]}`, long)
	}))
	defer ts.Close()

	c := enrich.NewTavilyClient(enrich.Config{BaseURL: ts.URL, APIKey: "k"}, quietLogger())
	out := c.Enrich(context.Background(), "t", []model.RankedCandidate{project("p", "null")})

	assert.True(t, strings.HasPrefix(out[0].Description, "xxx"))
	assert.LessOrEqual(t, len([]rune(out[0].Description)), 281)
}

func TestEnrich_DisabledWithoutKey(t *testing.T) {
	var calls atomic.Int32
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
	}))
	defer ts.Close()

	c := enrich.NewTavilyClient(enrich.Config{BaseURL: ts.URL}, quietLogger())
	assert.False(t, c.Enabled())

	out := c.Enrich(context.Background(), "t", []model.RankedCandidate{project("p", "")})
	assert.Equal(t, "", out[0].Description)
	assert.EqualValues(t, 0, calls.Load())
}

func TestEnrich_FailuresLeaveDescriptionUnchanged(t *testing.T) {
	tests := []struct {
		name    string
		handler http.HandlerFunc
	}{
		{"server error", func(w http.ResponseWriter, r *http.Request) { w.WriteHeader(http.StatusInternalServerError) }},
		{"bad json", func(w http.ResponseWriter, r *http.Request) { fmt.Fprint(w, `{"answer":`) }},
		{"empty answer", func(w http.ResponseWriter, r *http.Request) { fmt.Fprint(w, `{"answer":"","results":[]}`) }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ts := httptest.NewServer(tt.handler)
			defer ts.Close()

			c := enrich.NewTavilyClient(enrich.Config{BaseURL: ts.URL, APIKey: "k"}, quietLogger())
			out := c.Enrich(context.Background(), "t", []model.RankedCandidate{project("p", "undefined")})
			assert.Equal(t, "undefined", out[0].Description)
		})
	}
}

func TestEnrich_UnreachableService(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	url := ts.URL
	ts.Close()

	c := enrich.NewTavilyClient(enrich.Config{BaseURL: url, APIKey: "k"}, quietLogger())
	out := c.Enrich(context.Background(), "t", []model.RankedCandidate{project("a", ""), project("b", "")})
	assert.Equal(t, "", out[0].Description)
	assert.Equal(t, "", out[1].Description)
}

func TestEnrich_AllLookupsAwaited(t *testing.T) {
	var calls atomic.Int32
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		var req struct {
			Query string `json:"query"`
		}
		_ = json.NewDecoder(r.Body).Decode(&req)
		fmt.Fprintf(w, `{"answer":%q}`, "answer for "+req.Query)
	}))
	defer ts.Close()

	c := enrich.NewTavilyClient(enrich.Config{BaseURL: ts.URL, APIKey: "k", Concurrency: 2}, quietLogger())
	in := make([]model.RankedCandidate, 8)
	for i := range in {
		in[i] = project(fmt.Sprintf("p%d", i), "")
	}
	out := c.Enrich(context.Background(), "t", in)

	assert.EqualValues(t, 8, calls.Load())
	for i, p := range out {
		assert.Contains(t, p.Description, fmt.Sprintf("p%d", i))
	}
}

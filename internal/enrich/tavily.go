// Package enrich fills in missing project descriptions from a secondary
// search service. It is best-effort: nothing in here can fail a job.
package enrich

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"
	"unicode/utf8"

	"golang.org/x/sync/errgroup"

	"reposcout/search-service/internal/model"
)

const (
	DefaultBaseURL     = "https://api.tavily.com"
	defaultMaxResults  = 3
	defaultConcurrency = 4
	httpTimeout        = 15 * time.Second
	maxDescriptionLen  = 280
)

// Config holds the client settings. An empty APIKey disables enrichment.
type Config struct {
	BaseURL     string
	APIKey      string
	MaxResults  int
	Concurrency int
	Timeout     time.Duration
}

// TavilyClient looks up project descriptions through the Tavily search API.
type TavilyClient struct {
	baseURL     string
	apiKey      string
	maxResults  int
	concurrency int
	client      *http.Client
	logger      *slog.Logger
}

// NewTavilyClient constructs a client with a shared HTTP client.
func NewTavilyClient(cfg Config, logger *slog.Logger) *TavilyClient {
	if cfg.BaseURL == "" {
		cfg.BaseURL = DefaultBaseURL
	}
	if cfg.MaxResults <= 0 {
		cfg.MaxResults = defaultMaxResults
	}
	if cfg.Concurrency <= 0 {
		cfg.Concurrency = defaultConcurrency
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = httpTimeout
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &TavilyClient{
		baseURL:     strings.TrimRight(cfg.BaseURL, "/"),
		apiKey:      cfg.APIKey,
		maxResults:  cfg.MaxResults,
		concurrency: cfg.Concurrency,
		client:      &http.Client{Timeout: cfg.Timeout},
		logger:      logger.With("component", "enrich"),
	}
}

// Enabled reports whether a credential is configured.
func (c *TavilyClient) Enabled() bool { return c.apiKey != "" }

type searchRequest struct {
	Query         string `json:"query"`
	MaxResults    int    `json:"max_results"`
	IncludeAnswer bool   `json:"include_answer"`
	APIKey        string `json:"api_key,omitempty"`
}

type searchResponse struct {
	Answer  *string        `json:"answer"`
	Results []searchResult `json:"results"`
}

type searchResult struct {
	Title   string `json:"title"`
	URL     string `json:"url"`
	Content string `json:"content"`
}

// NeedsDescription reports whether desc is missing or a placeholder.
func NeedsDescription(desc string) bool {
	d := strings.ToLower(strings.TrimSpace(desc))
	return d == "" || d == "null" || d == "undefined" || strings.HasPrefix(d, "no description")
}

// Enrich returns a copy of projects where every placeholder description has
// been replaced by a looked-up one when the lookup produced text. Lookups run
// concurrently and all of them finish before Enrich returns.
func (c *TavilyClient) Enrich(ctx context.Context, topic string, projects []model.RankedCandidate) []model.RankedCandidate {
	out := make([]model.RankedCandidate, len(projects))
	copy(out, projects)

	if !c.Enabled() {
		return out
	}

	var g errgroup.Group
	g.SetLimit(c.concurrency)
	for i := range out {
		if !NeedsDescription(out[i].Description) {
			continue
		}
		g.Go(func() error {
			desc, err := c.Lookup(ctx, out[i].Name, topic)
			if err != nil {
				c.logger.Warn("description lookup failed", "project", out[i].FullName, "err", err)
				return nil
			}
			if desc == "" {
				c.logger.Debug("description lookup returned nothing", "project", out[i].FullName)
				return nil
			}
			out[i].Description = desc
			return nil
		})
	}
	_ = g.Wait()
	return out
}

// Lookup asks the search service for a one-sentence description of the
// named project in the context of topic.
func (c *TavilyClient) Lookup(ctx context.Context, name, topic string) (string, error) {
	payload, err := json.Marshal(searchRequest{
		Query:         fmt.Sprintf("What is the %s open source project for %s? Describe it in one sentence.", name, topic),
		MaxResults:    c.maxResults,
		IncludeAnswer: true,
		APIKey:        c.apiKey,
	})
	if err != nil {
		return "", err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/search", bytes.NewReader(payload))
	if err != nil {
		return "", err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+c.apiKey)

	resp, err := c.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("tavily search: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", fmt.Errorf("read body: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("tavily returned %d", resp.StatusCode)
	}

	var sr searchResponse
	if err := json.Unmarshal(body, &sr); err != nil {
		return "", fmt.Errorf("json unmarshal: %w", err)
	}

	if sr.Answer != nil {
		if a := strings.TrimSpace(*sr.Answer); a != "" {
			return a, nil
		}
	}
	for _, r := range sr.Results {
		if content := strings.TrimSpace(r.Content); content != "" {
			return clip(content, maxDescriptionLen), nil
		}
	}
	return "", nil
}

func clip(s string, n int) string {
	if utf8.RuneCountInString(s) <= n {
		return s
	}
	r := []rune(s)
	return strings.TrimSpace(string(r[:n])) + "…"
}

// Package source fetches raw project candidates from the GitHub repository
// search API.
package source

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"reposcout/search-service/internal/model"
)

const (
	DefaultBaseURL          = "https://api.github.com"
	defaultMaintainedMonths = 12
	maxPageSize             = 50
	httpTimeout             = 15 * time.Second
	apiVersion              = "2022-11-28"
	maxErrorBody            = 512
)

// ErrRateLimited is returned when GitHub refuses the search because the
// caller exhausted its request allowance.
var ErrRateLimited = errors.New("github search rate limit exceeded")

// Config holds the client settings.
type Config struct {
	BaseURL          string
	Token            string // optional, raises the rate-limit ceiling
	MaintainedMonths int    // window for the "only maintained" filter
	UserAgent        string
	Timeout          time.Duration
}

// GitHubClient issues one ranked repository search per job.
type GitHubClient struct {
	baseURL          string
	token            string
	maintainedMonths int
	userAgent        string
	client           *http.Client
	now              func() time.Time
}

// NewGitHubClient constructs a client with a shared HTTP client.
func NewGitHubClient(cfg Config) *GitHubClient {
	if cfg.BaseURL == "" {
		cfg.BaseURL = DefaultBaseURL
	}
	if cfg.MaintainedMonths <= 0 {
		cfg.MaintainedMonths = defaultMaintainedMonths
	}
	if cfg.UserAgent == "" {
		cfg.UserAgent = "reposcout-search-service"
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = httpTimeout
	}
	return &GitHubClient{
		baseURL:          strings.TrimRight(cfg.BaseURL, "/"),
		token:            cfg.Token,
		maintainedMonths: cfg.MaintainedMonths,
		userAgent:        cfg.UserAgent,
		client:           &http.Client{Timeout: cfg.Timeout},
		now:              time.Now,
	}
}

// searchResponse mirrors the top-level GitHub search JSON response.
type searchResponse struct {
	TotalCount int          `json:"total_count"`
	Items      []githubRepo `json:"items"`
}

// githubRepo mirrors a single repository item. Nullable fields are pointers.
type githubRepo struct {
	ID              int64          `json:"id"`
	Name            string         `json:"name"`
	FullName        string         `json:"full_name"`
	HTMLURL         string         `json:"html_url"`
	Description     *string        `json:"description"`
	Homepage        *string        `json:"homepage"`
	StargazersCount int            `json:"stargazers_count"`
	ForksCount      int            `json:"forks_count"`
	WatchersCount   int            `json:"watchers_count"`
	OpenIssuesCount int            `json:"open_issues_count"`
	Language        *string        `json:"language"`
	Topics          []string       `json:"topics"`
	License         *githubLicense `json:"license"`
	PushedAt        *time.Time     `json:"pushed_at"`
	UpdatedAt       *time.Time     `json:"updated_at"`
	Owner           *githubOwner   `json:"owner"`
	DefaultBranch   string         `json:"default_branch"`
}

type githubLicense struct {
	SPDXID string `json:"spdx_id"`
	Name   string `json:"name"`
}

type githubOwner struct {
	Login string `json:"login"`
}

// PageSize returns how many candidates to request for a given output limit:
// twice the limit, capped at 50.
func PageSize(limit int) int {
	n := 2 * limit
	if n > maxPageSize {
		n = maxPageSize
	}
	if n < 1 {
		n = 1
	}
	return n
}

// BuildQuery renders filters as a GitHub search qualifier string.
func BuildQuery(f model.SearchFilters, now time.Time, maintainedMonths int) string {
	topic := strings.TrimSpace(f.Topic)
	if strings.ContainsAny(topic, " \t\n") {
		topic = strconv.Quote(topic)
	}

	parts := []string{topic}
	if f.Language != "" {
		lang := f.Language
		if strings.ContainsAny(lang, " \t\n") {
			lang = strconv.Quote(lang)
		}
		parts = append(parts, "language:"+lang)
	}
	if f.MinStars != nil && *f.MinStars > 0 {
		parts = append(parts, fmt.Sprintf("stars:>=%d", *f.MinStars))
	}
	if f.OnlyMaintained {
		since := now.AddDate(0, -maintainedMonths, 0)
		parts = append(parts, "pushed:>="+since.UTC().Format("2006-01-02"))
	}
	return strings.Join(parts, " ")
}

// Fetch runs the search for filters and returns up to PageSize(limit) raw
// candidates ordered by star count.
func (c *GitHubClient) Fetch(ctx context.Context, filters model.SearchFilters) ([]model.Candidate, error) {
	params := url.Values{}
	params.Set("q", BuildQuery(filters, c.now(), c.maintainedMonths))
	params.Set("sort", "stars")
	params.Set("order", "desc")
	params.Set("per_page", strconv.Itoa(PageSize(filters.Limit)))

	reqURL := c.baseURL + "/search/repositories?" + params.Encode()
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, reqURL, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Accept", "application/vnd.github+json")
	req.Header.Set("X-GitHub-Api-Version", apiVersion)
	req.Header.Set("User-Agent", c.userAgent)
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("github search: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read body: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		if isRateLimited(resp, body) {
			return nil, fmt.Errorf("%w (HTTP %d): set GITHUB_TOKEN to a personal access token to raise the limit, then retry",
				ErrRateLimited, resp.StatusCode)
		}
		return nil, fmt.Errorf("github search returned %d: %s", resp.StatusCode, truncate(string(body), maxErrorBody))
	}

	var apiResp searchResponse
	if err := json.Unmarshal(body, &apiResp); err != nil {
		return nil, fmt.Errorf("json unmarshal: %w", err)
	}

	results := make([]model.Candidate, 0, len(apiResp.Items))
	for _, r := range apiResp.Items {
		results = append(results, r.toCandidate())
	}
	return results, nil
}

func (r githubRepo) toCandidate() model.Candidate {
	c := model.Candidate{
		ID:            r.ID,
		Name:          r.Name,
		FullName:      r.FullName,
		URL:           r.HTMLURL,
		Description:   deref(r.Description),
		Homepage:      deref(r.Homepage),
		Stars:         r.StargazersCount,
		Forks:         r.ForksCount,
		Watchers:      r.WatchersCount,
		OpenIssues:    r.OpenIssuesCount,
		Language:      deref(r.Language),
		Topics:        r.Topics,
		PushedAt:      r.PushedAt,
		UpdatedAt:     r.UpdatedAt,
		DefaultBranch: r.DefaultBranch,
	}
	if r.License != nil {
		c.License = r.License.SPDXID
		if c.License == "" || c.License == "NOASSERTION" {
			c.License = r.License.Name
		}
	}
	if r.Owner != nil {
		c.Owner = r.Owner.Login
	}
	return c
}

func isRateLimited(resp *http.Response, body []byte) bool {
	switch resp.StatusCode {
	case http.StatusTooManyRequests:
		return true
	case http.StatusForbidden:
		return resp.Header.Get("X-RateLimit-Remaining") == "0" ||
			strings.Contains(strings.ToLower(string(body)), "rate limit")
	}
	return false
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "…"
}

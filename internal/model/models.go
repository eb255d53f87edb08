// Package model defines the data structures shared by the queue, the worker
// pipeline and the inbound gateway.
package model

import (
	"bytes"
	"math"
	"strconv"
	"time"

	"reposcout/search-service/internal/jobstatus"
)

// JobEnvelope is the request payload pushed onto the shared request queue.
type JobEnvelope struct {
	ID          string        `json:"id"`
	RequestedAt time.Time     `json:"requestedAt"`
	Filters     SearchFilters `json:"filters"`
}

// Candidate is one raw project record from the primary source.
// Optional fields default to the zero value: empty string for License,
// Homepage, Language and DefaultBranch, nil for Topics and the timestamps.
type Candidate struct {
	ID            int64      `json:"id"`
	Name          string     `json:"name"`
	FullName      string     `json:"fullName"`
	URL           string     `json:"url"`
	Description   string     `json:"description"`
	Homepage      string     `json:"homepage,omitempty"`
	Stars         int        `json:"stars"`
	Forks         int        `json:"forks"`
	Watchers      int        `json:"watchers"`
	OpenIssues    int        `json:"openIssues"`
	Language      string     `json:"language,omitempty"`
	Topics        []string   `json:"topics,omitempty"`
	License       string     `json:"license,omitempty"`
	PushedAt      *time.Time `json:"pushedAt,omitempty"`
	UpdatedAt     *time.Time `json:"updatedAt,omitempty"`
	Owner         string     `json:"owner"`
	DefaultBranch string     `json:"defaultBranch,omitempty"`
}

// LastActivity returns the later of PushedAt and UpdatedAt, or nil when the
// source supplied neither.
func (c Candidate) LastActivity() *time.Time {
	switch {
	case c.PushedAt == nil:
		return c.UpdatedAt
	case c.UpdatedAt == nil:
		return c.PushedAt
	case c.UpdatedAt.After(*c.PushedAt):
		return c.UpdatedAt
	default:
		return c.PushedAt
	}
}

// DaysSince is a whole-day age. The +Inf value means the activity date is
// unknown; it encodes as JSON null.
type DaysSince float64

// UnknownDays is the sentinel for a candidate without any activity date.
func UnknownDays() DaysSince { return DaysSince(math.Inf(1)) }

// Known reports whether d carries a real day count.
func (d DaysSince) Known() bool { return !math.IsInf(float64(d), 1) }

func (d DaysSince) MarshalJSON() ([]byte, error) {
	if !d.Known() {
		return []byte("null"), nil
	}
	return strconv.AppendFloat(nil, float64(d), 'f', -1, 64), nil
}

func (d *DaysSince) UnmarshalJSON(b []byte) error {
	if bytes.Equal(b, []byte("null")) {
		*d = UnknownDays()
		return nil
	}
	v, err := strconv.ParseFloat(string(b), 64)
	if err != nil {
		return err
	}
	*d = DaysSince(v)
	return nil
}

// RankedCandidate is a Candidate with its derived ranking fields. It is
// built once per job and never mutated afterwards, except for the
// description fill performed by enrichment before publication.
type RankedCandidate struct {
	Candidate
	DaysSinceUpdate DaysSince `json:"daysSinceUpdate"`
	Score           float64   `json:"score"`
	Reasons         []string  `json:"reasons"`
}

// ResultEnvelope is the single artifact handed back across the queue
// boundary for a job.
type ResultEnvelope struct {
	JobID        string            `json:"jobId"`
	Status       jobstatus.Status  `json:"status"`
	Summary      string            `json:"summary"`
	Filters      SearchFilters     `json:"filters"`
	TotalFetched int               `json:"totalFetched"`
	Projects     []RankedCandidate `json:"projects"`
	GeneratedAt  time.Time         `json:"generatedAt"`
	Error        string            `json:"error,omitempty"`
}

// StatusRecord is the short-lived observability record kept per job.
type StatusRecord struct {
	JobID      string           `json:"jobId"`
	Status     jobstatus.Status `json:"status"`
	Topic      string           `json:"topic,omitempty"`
	QueuedAt   *time.Time       `json:"queuedAt,omitempty"`
	StartedAt  *time.Time       `json:"startedAt,omitempty"`
	FinishedAt *time.Time       `json:"finishedAt,omitempty"`
	UpdatedAt  time.Time        `json:"updatedAt"`
	Summary    string           `json:"summary,omitempty"` // candidate count or error text
}

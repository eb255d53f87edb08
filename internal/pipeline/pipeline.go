// Package pipeline runs one search job: fetch candidates, rank them, keep
// the requested slice and fill in missing descriptions.
package pipeline

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"reposcout/search-service/internal/jobstatus"
	"reposcout/search-service/internal/model"
	"reposcout/search-service/internal/ranking"
)

// CandidateSource returns raw candidates for a set of filters.
type CandidateSource interface {
	Fetch(ctx context.Context, filters model.SearchFilters) ([]model.Candidate, error)
}

// Enricher fills placeholder descriptions. It must not fail.
type Enricher interface {
	Enrich(ctx context.Context, topic string, projects []model.RankedCandidate) []model.RankedCandidate
}

// Pipeline wires a source and an optional enricher together.
type Pipeline struct {
	source   CandidateSource
	enricher Enricher
	logger   *slog.Logger
	now      func() time.Time
}

// New returns a Pipeline. enricher may be nil.
func New(source CandidateSource, enricher Enricher, logger *slog.Logger) *Pipeline {
	if logger == nil {
		logger = slog.Default()
	}
	return &Pipeline{
		source:   source,
		enricher: enricher,
		logger:   logger.With("component", "pipeline"),
		now:      time.Now,
	}
}

// Run executes the job and returns a completed envelope. Any error returned
// is job-fatal; the caller turns it into an error envelope.
func (p *Pipeline) Run(ctx context.Context, jobID string, filters model.SearchFilters) (model.ResultEnvelope, error) {
	raw, err := p.source.Fetch(ctx, filters)
	if err != nil {
		return model.ResultEnvelope{}, fmt.Errorf("fetch candidates: %w", err)
	}

	now := p.now().UTC()
	ranked := ranking.Rank(raw, now)

	// the search index can lag behind live star counts
	minStars := filters.MinStarsValue()
	kept := ranked[:0]
	for _, rc := range ranked {
		if rc.Stars >= minStars {
			kept = append(kept, rc)
		}
	}
	ranked = kept

	projects := ranked
	if len(projects) > filters.Limit {
		projects = projects[:filters.Limit]
	}
	projects = append(make([]model.RankedCandidate, 0, len(projects)), projects...)

	if p.enricher != nil && len(projects) > 0 {
		projects = p.enricher.Enrich(ctx, filters.Topic, projects)
	}

	p.logger.Info("search ranked",
		"job_id", jobID,
		"topic", filters.Topic,
		"fetched", len(raw),
		"returned", len(projects))

	return model.ResultEnvelope{
		JobID:        jobID,
		Status:       jobstatus.StatusCompleted,
		Summary:      ranking.Summarize(filters, projects),
		Filters:      filters,
		TotalFetched: len(raw),
		Projects:     projects,
		GeneratedAt:  p.now().UTC(),
	}, nil
}

// Failure builds the error envelope for a job that could not complete.
func Failure(jobID string, filters model.SearchFilters, cause error, at time.Time) model.ResultEnvelope {
	return model.ResultEnvelope{
		JobID:       jobID,
		Status:      jobstatus.StatusError,
		Summary:     fmt.Sprintf("The search for %q failed.", filters.Topic),
		Filters:     filters,
		Projects:    []model.RankedCandidate{},
		GeneratedAt: at.UTC(),
		Error:       cause.Error(),
	}
}

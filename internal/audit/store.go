// Package audit keeps a short, retention-bound ledger of finished search
// jobs in Postgres. The ledger is optional: nothing in the job path depends
// on it succeeding.
package audit

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"reposcout/search-service/internal/jobstatus"
	"reposcout/search-service/internal/model"
)

// ErrNotFound is returned by Get when no row exists for a job.
var ErrNotFound = errors.New("audit entry not found")

// Entry is one recorded job outcome.
type Entry struct {
	JobID        string              `json:"jobId"`
	Topic        string              `json:"topic"`
	Filters      model.SearchFilters `json:"filters"`
	Status       jobstatus.Status    `json:"status"`
	TotalFetched int                 `json:"totalFetched"`
	Returned     int                 `json:"returned"`
	Error        string              `json:"error,omitempty"`
	RequestedAt  time.Time           `json:"requestedAt"`
	FinishedAt   time.Time           `json:"finishedAt"`
}

// ─── Store ───────────────────────────────────────────────────────────────────

// Store reads and writes the search_jobs table.
type Store struct {
	pool *pgxpool.Pool
}

// NewStore returns a Store backed by pool.
func NewStore(pool *pgxpool.Pool) *Store {
	return &Store{pool: pool}
}

// Record inserts the outcome of a finished job. Recording the same job twice
// keeps the first row.
func (s *Store) Record(ctx context.Context, env model.JobEnvelope, result model.ResultEnvelope) error {
	if !jobstatus.IsTerminal(result.Status) {
		return fmt.Errorf("record job %s: status %q is not terminal", env.ID, result.Status)
	}
	filters, err := json.Marshal(env.Filters)
	if err != nil {
		return fmt.Errorf("marshal filters: %w", err)
	}

	finished := result.GeneratedAt
	if finished.IsZero() {
		finished = time.Now().UTC()
	}
	requested := env.RequestedAt
	if requested.IsZero() {
		requested = finished
	}
	var errText *string
	if result.Error != "" {
		errText = &result.Error
	}

	_, err = s.pool.Exec(ctx,
		`INSERT INTO search_jobs
		   (job_id, topic, filters, status, total_fetched, returned, error, requested_at, finished_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		 ON CONFLICT (job_id) DO NOTHING`,
		env.ID, env.Filters.Topic, filters, string(result.Status),
		result.TotalFetched, len(result.Projects), errText, requested, finished,
	)
	if err != nil {
		return fmt.Errorf("insert search_jobs: %w", err)
	}
	return nil
}

// Get returns the recorded outcome of jobID.
func (s *Store) Get(ctx context.Context, jobID string) (*Entry, error) {
	var (
		e       Entry
		filters []byte
		status  string
		errText *string
	)
	err := s.pool.QueryRow(ctx,
		`SELECT job_id, topic, filters, status, total_fetched, returned, error, requested_at, finished_at
		 FROM search_jobs
		 WHERE job_id = $1`,
		jobID,
	).Scan(&e.JobID, &e.Topic, &filters, &status, &e.TotalFetched, &e.Returned, &errText, &e.RequestedAt, &e.FinishedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get search_jobs: %w", err)
	}

	if e.Status, err = jobstatus.ParseStatus(status); err != nil {
		return nil, err
	}
	if err := json.Unmarshal(filters, &e.Filters); err != nil {
		return nil, fmt.Errorf("decode filters: %w", err)
	}
	if errText != nil {
		e.Error = *errText
	}
	return &e, nil
}

// Prune deletes rows finished before the cutoff and returns how many went.
func (s *Store) Prune(ctx context.Context, before time.Time) (int64, error) {
	tag, err := s.pool.Exec(ctx, `DELETE FROM search_jobs WHERE finished_at < $1`, before)
	if err != nil {
		return 0, fmt.Errorf("prune search_jobs: %w", err)
	}
	return tag.RowsAffected(), nil
}

// StatusRecord renders the entry in the same shape as a live status record.
func (e *Entry) StatusRecord() model.StatusRecord {
	requested, finished := e.RequestedAt, e.FinishedAt
	summary := e.Error
	if e.Status == jobstatus.StatusCompleted {
		summary = fmt.Sprintf("%d candidates", e.Returned)
	}
	return model.StatusRecord{
		JobID:      e.JobID,
		Status:     e.Status,
		Topic:      e.Topic,
		QueuedAt:   &requested,
		FinishedAt: &finished,
		UpdatedAt:  finished,
		Summary:    summary,
	}
}

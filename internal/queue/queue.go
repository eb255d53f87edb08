// Package queue implements the request/response protocol between callers
// and workers on top of Redis lists.
//
// Key layout:
//
//	reposcout:jobs            shared request list (RPUSH by callers, BLPOP by workers)
//	reposcout:result:<id>     per-job result list, read once by the caller
//	reposcout:status:<id>     per-job status record (observability only)
//
// Every per-job key carries a TTL so an abandoned job never leaks state.
package queue

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"reposcout/search-service/internal/jobstatus"
	"reposcout/search-service/internal/model"
)

const (
	RequestQueueKey = "reposcout:jobs"
	resultKeyPrefix = "reposcout:result:"
	statusKeyPrefix = "reposcout:status:"

	// maxBlockSlice caps a single BLPOP so it stays under the client read
	// timeout; the remaining budget is recomputed after every wake.
	maxBlockSlice = time.Second
	minBlock      = time.Millisecond
)

// ErrTimeout is returned by Await when no result arrived before the deadline.
// The job is not cancelled and may still complete later.
var ErrTimeout = errors.New("timed out waiting for search result")

// ErrNotFound is returned by Status when no record exists for a job.
var ErrNotFound = errors.New("job status not found")

// ResultKey returns the result list key for a job.
func ResultKey(jobID string) string { return resultKeyPrefix + jobID }

// StatusKey returns the status record key for a job.
func StatusKey(jobID string) string { return statusKeyPrefix + jobID }

// Config holds key retention settings.
type Config struct {
	StatusTTL   time.Duration // queued/processing records and the worker's terminal record
	TerminalTTL time.Duration // marker written by the caller after consuming a result
	ResultTTL   time.Duration // unread result lists
}

// DefaultConfig returns the retention windows used when none are configured.
func DefaultConfig() Config {
	return Config{
		StatusTTL:   10 * time.Minute,
		TerminalTTL: 2 * time.Minute,
		ResultTTL:   5 * time.Minute,
	}
}

// Queue is the caller- and worker-side view of the job protocol. The Redis
// client is owned by the caller of New and must outlive the Queue.
type Queue struct {
	rdb    *redis.Client
	cfg    Config
	logger *slog.Logger
	now    func() time.Time
}

// New returns a Queue using rdb. Zero retention values fall back to
// DefaultConfig.
func New(rdb *redis.Client, cfg Config, logger *slog.Logger) *Queue {
	def := DefaultConfig()
	if cfg.StatusTTL <= 0 {
		cfg.StatusTTL = def.StatusTTL
	}
	if cfg.TerminalTTL <= 0 {
		cfg.TerminalTTL = def.TerminalTTL
	}
	if cfg.ResultTTL <= 0 {
		cfg.ResultTTL = def.ResultTTL
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Queue{
		rdb:    rdb,
		cfg:    cfg,
		logger: logger.With("component", "queue"),
		now:    time.Now,
	}
}

// Enqueue validates filters, then writes the queued status record and pushes
// the job onto the request list in a single MULTI/EXEC.
func (q *Queue) Enqueue(ctx context.Context, filters model.SearchFilters) (model.JobEnvelope, error) {
	filters = filters.Normalize()
	if err := filters.Validate(); err != nil {
		return model.JobEnvelope{}, err
	}

	now := q.now().UTC()
	env := model.JobEnvelope{
		ID:          uuid.NewString(),
		RequestedAt: now,
		Filters:     filters,
	}
	payload, err := json.Marshal(env)
	if err != nil {
		return model.JobEnvelope{}, fmt.Errorf("marshal envelope: %w", err)
	}
	status, err := json.Marshal(model.StatusRecord{
		JobID:     env.ID,
		Status:    jobstatus.StatusQueued,
		Topic:     filters.Topic,
		QueuedAt:  &now,
		UpdatedAt: now,
	})
	if err != nil {
		return model.JobEnvelope{}, fmt.Errorf("marshal status: %w", err)
	}

	_, err = q.rdb.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Set(ctx, StatusKey(env.ID), status, q.cfg.StatusTTL)
		pipe.RPush(ctx, RequestQueueKey, payload)
		return nil
	})
	if err != nil {
		return model.JobEnvelope{}, fmt.Errorf("enqueue job: %w", err)
	}

	q.logger.Debug("job enqueued", "job_id", env.ID, "topic", filters.Topic)
	return env, nil
}

// Await blocks until the result for jobID arrives or timeout elapses. The
// remaining budget is recomputed after every wake so empty wake-ups never
// extend the overall deadline. On receipt the result list is deleted and
// the status record is replaced by a short-lived terminal marker.
func (q *Queue) Await(ctx context.Context, jobID string, timeout time.Duration) (*model.ResultEnvelope, error) {
	deadline := q.now().Add(timeout)
	key := ResultKey(jobID)

	for {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		remaining := deadline.Sub(q.now())
		if remaining < minBlock {
			return nil, fmt.Errorf("%w after %s (job %s)", ErrTimeout, timeout, jobID)
		}

		payload, err := q.popResult(ctx, key, min(remaining, maxBlockSlice))
		if errors.Is(err, redis.Nil) {
			continue
		}
		if err != nil {
			if ctxErr := ctx.Err(); ctxErr != nil {
				return nil, ctxErr
			}
			return nil, fmt.Errorf("await result: %w", err)
		}

		var result model.ResultEnvelope
		if err := json.Unmarshal([]byte(payload), &result); err != nil {
			return nil, fmt.Errorf("decode result for job %s: %w", jobID, err)
		}
		if err := q.finalize(ctx, jobID, &result); err != nil {
			// the result is already in hand; a stale status record expires on its own
			q.logger.Warn("finalize job status failed", "job_id", jobID, "err", err)
		}
		return &result, nil
	}
}

// popResult issues BLPOP with a fractional-second timeout, which the typed
// BLPop helper would round to whole seconds.
func (q *Queue) popResult(ctx context.Context, key string, wait time.Duration) (string, error) {
	secs := strconv.FormatFloat(wait.Seconds(), 'f', 3, 64)
	vals, err := q.rdb.Do(ctx, "BLPOP", key, secs).StringSlice()
	if err != nil {
		return "", err
	}
	if len(vals) != 2 {
		return "", redis.Nil
	}
	return vals[1], nil
}

func (q *Queue) finalize(ctx context.Context, jobID string, result *model.ResultEnvelope) error {
	finished := result.GeneratedAt
	if finished.IsZero() {
		finished = q.now().UTC()
	}
	marker, err := json.Marshal(model.StatusRecord{
		JobID:      jobID,
		Status:     result.Status,
		Topic:      result.Filters.Topic,
		FinishedAt: &finished,
		UpdatedAt:  q.now().UTC(),
		Summary:    terminalSummary(result),
	})
	if err != nil {
		return err
	}
	_, err = q.rdb.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Del(ctx, ResultKey(jobID))
		pipe.Set(ctx, StatusKey(jobID), marker, q.cfg.TerminalTTL)
		return nil
	})
	return err
}

// Submit enqueues filters and waits up to timeout for the result. It is the
// single inbound operation exposed to presentation layers.
func (q *Queue) Submit(ctx context.Context, filters model.SearchFilters, timeout time.Duration) (*model.ResultEnvelope, error) {
	env, err := q.Enqueue(ctx, filters)
	if err != nil {
		return nil, err
	}
	return q.Await(ctx, env.ID, timeout)
}

// Status returns the current status record for jobID.
func (q *Queue) Status(ctx context.Context, jobID string) (*model.StatusRecord, error) {
	raw, err := q.rdb.Get(ctx, StatusKey(jobID)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get status: %w", err)
	}
	var rec model.StatusRecord
	if err := json.Unmarshal(raw, &rec); err != nil {
		return nil, fmt.Errorf("decode status: %w", err)
	}
	if _, err := jobstatus.ParseStatus(string(rec.Status)); err != nil {
		return nil, err
	}
	return &rec, nil
}

// Depth returns the number of jobs waiting on the request list.
func (q *Queue) Depth(ctx context.Context) (int64, error) {
	return q.rdb.LLen(ctx, RequestQueueKey).Result()
}

func terminalSummary(r *model.ResultEnvelope) string {
	if r.Status == jobstatus.StatusError {
		return r.Error
	}
	return fmt.Sprintf("%d candidates", len(r.Projects))
}

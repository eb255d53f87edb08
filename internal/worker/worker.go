// Package worker consumes search jobs from the request queue, runs the
// pipeline for each one and publishes exactly one result per job.
package worker

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"reposcout/search-service/internal/jobstatus"
	"reposcout/search-service/internal/model"
	"reposcout/search-service/internal/pipeline"
	"reposcout/search-service/internal/queue"
)

// JobQueue is the worker side of the queue protocol.
type JobQueue interface {
	Dequeue(ctx context.Context, wait time.Duration) ([]byte, error)
	MarkProcessing(ctx context.Context, env model.JobEnvelope, startedAt time.Time) error
	Publish(ctx context.Context, result model.ResultEnvelope, startedAt time.Time) error
}

// Runner executes the search for one job.
type Runner interface {
	Run(ctx context.Context, jobID string, filters model.SearchFilters) (model.ResultEnvelope, error)
}

// OutcomeRecorder keeps a retention-bound record of finished jobs.
type OutcomeRecorder interface {
	Record(ctx context.Context, env model.JobEnvelope, result model.ResultEnvelope) error
}

// Config holds loop timing.
type Config struct {
	PollTimeout time.Duration // how long one BLPOP waits for a job
	Backoff     time.Duration // pause after a transport-level failure
}

// Worker runs the dequeue → process → publish cycle. One Worker handles one
// job at a time; run several processes to scale out.
type Worker struct {
	queue    JobQueue
	runner   Runner
	recorder OutcomeRecorder
	cfg      Config
	logger   *slog.Logger
	now      func() time.Time
}

// NewWorker constructs a Worker. recorder may be nil.
func NewWorker(q JobQueue, runner Runner, recorder OutcomeRecorder, cfg Config, logger *slog.Logger) *Worker {
	if cfg.PollTimeout < time.Second {
		cfg.PollTimeout = 5 * time.Second
	}
	if cfg.Backoff <= 0 {
		cfg.Backoff = time.Second
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Worker{
		queue:    q,
		runner:   runner,
		recorder: recorder,
		cfg:      cfg,
		logger:   logger.With("component", "worker"),
		now:      time.Now,
	}
}

// Run loops until ctx is cancelled. Transport failures pause the loop for
// the configured backoff instead of stopping it.
func (w *Worker) Run(ctx context.Context) error {
	w.logger.Info("worker started", "poll_timeout", w.cfg.PollTimeout, "backoff", w.cfg.Backoff)
	defer w.logger.Info("worker stopped")

	for {
		if ctx.Err() != nil {
			return nil
		}

		raw, err := w.queue.Dequeue(ctx, w.cfg.PollTimeout)
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			w.logger.Error("dequeue failed — backing off", "err", err, "backoff", w.cfg.Backoff)
			sleep(ctx, w.cfg.Backoff)
			continue
		}
		if raw == nil {
			continue
		}

		// a dequeued job runs to completion even once shutdown has begun
		if err := w.Handle(context.WithoutCancel(ctx), raw); err != nil {
			if ctx.Err() != nil {
				return nil
			}
			w.logger.Error("job handling failed — backing off", "err", err, "backoff", w.cfg.Backoff)
			sleep(ctx, w.cfg.Backoff)
		}
	}
}

// Handle processes one raw request payload. Malformed payloads are dropped
// and produce no result. The returned error is transport-level only; job
// failures are published as error envelopes.
func (w *Worker) Handle(ctx context.Context, raw []byte) error {
	env, err := decodeEnvelope(raw)
	if err != nil {
		w.logger.Warn("dropping malformed job payload", "err", err, "payload_bytes", len(raw))
		return nil
	}

	state, err := jobstatus.Advance(jobstatus.StatusQueued, jobstatus.StatusProcessing)
	if err != nil {
		return err
	}

	startedAt := w.now().UTC()
	if err := w.queue.MarkProcessing(ctx, env, startedAt); err != nil {
		if errors.Is(err, queue.ErrAlreadyPublished) {
			w.logger.Warn("job already finished — skipping redelivery", "job_id", env.ID)
			return nil
		}
		// status is observability only; the job itself can still complete
		w.logger.Warn("mark processing failed", "job_id", env.ID, "err", err)
	}
	w.logger.Info("job started", "job_id", env.ID, "topic", env.Filters.Topic, "status", state)

	result := w.execute(ctx, env)

	if _, err := jobstatus.Advance(state, result.Status); err != nil {
		return err
	}

	if err := w.queue.Publish(ctx, result, startedAt); err != nil {
		if errors.Is(err, queue.ErrAlreadyPublished) {
			w.logger.Warn("result already published — skipping", "job_id", env.ID)
			return nil
		}
		return fmt.Errorf("publish job %s: %w", env.ID, err)
	}

	w.logger.Info("job finished",
		"job_id", env.ID,
		"status", result.Status,
		"projects", len(result.Projects),
		"duration", w.now().UTC().Sub(startedAt))

	if w.recorder != nil {
		if err := w.recorder.Record(ctx, env, result); err != nil {
			w.logger.Warn("record job outcome failed", "job_id", env.ID, "err", err)
		}
	}
	return nil
}

// execute runs the pipeline inside a single failure boundary, panics
// included, and always returns a terminal envelope.
func (w *Worker) execute(ctx context.Context, env model.JobEnvelope) (res model.ResultEnvelope) {
	defer func() {
		if r := recover(); r != nil {
			w.logger.Error("pipeline panicked", "job_id", env.ID, "panic", r)
			res = pipeline.Failure(env.ID, env.Filters, fmt.Errorf("internal error: %v", r), w.now())
		}
	}()

	var err error
	res, err = w.runner.Run(ctx, env.ID, env.Filters)
	if err != nil {
		w.logger.Warn("job failed", "job_id", env.ID, "err", err)
		return pipeline.Failure(env.ID, env.Filters, err, w.now())
	}
	if res.JobID == "" {
		res.JobID = env.ID
	}
	return res
}

// decodeEnvelope parses and validates a request payload.
func decodeEnvelope(raw []byte) (model.JobEnvelope, error) {
	var env model.JobEnvelope
	if err := json.Unmarshal(raw, &env); err != nil {
		return env, fmt.Errorf("decode envelope: %w", err)
	}
	if env.ID == "" {
		return env, errors.New("envelope has no id")
	}
	env.Filters = env.Filters.Normalize()
	if err := env.Filters.Validate(); err != nil {
		return env, fmt.Errorf("job %s: invalid filters: %w", env.ID, err)
	}
	return env, nil
}

func sleep(ctx context.Context, d time.Duration) {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
	case <-t.C:
	}
}

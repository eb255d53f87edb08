package queue

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"reposcout/search-service/internal/jobstatus"
	"reposcout/search-service/internal/model"
)

// ErrAlreadyPublished is returned by Publish when a terminal result was
// already recorded for the job.
var ErrAlreadyPublished = errors.New("result already published")

// Dequeue pops the next raw request payload, blocking up to wait. It returns
// (nil, nil) when the wait elapsed with nothing queued. Exactly one consumer
// receives each payload.
func (q *Queue) Dequeue(ctx context.Context, wait time.Duration) ([]byte, error) {
	vals, err := q.rdb.BLPop(ctx, wait, RequestQueueKey).Result()
	if errors.Is(err, redis.Nil) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("dequeue: %w", err)
	}
	if len(vals) != 2 {
		return nil, fmt.Errorf("dequeue: unexpected reply of %d elements", len(vals))
	}
	return []byte(vals[1]), nil
}

// MarkProcessing records that a worker picked up env at startedAt. The status
// key is WATCHed so a job whose status is already terminal is refused with
// ErrAlreadyPublished instead of being reopened.
func (q *Queue) MarkProcessing(ctx context.Context, env model.JobEnvelope, startedAt time.Time) error {
	requested := env.RequestedAt
	rec, err := json.Marshal(model.StatusRecord{
		JobID:     env.ID,
		Status:    jobstatus.StatusProcessing,
		Topic:     env.Filters.Topic,
		QueuedAt:  &requested,
		StartedAt: &startedAt,
		UpdatedAt: startedAt,
	})
	if err != nil {
		return fmt.Errorf("marshal status: %w", err)
	}

	statusKey := StatusKey(env.ID)
	txf := func(tx *redis.Tx) error {
		if err := refuseTerminal(ctx, tx, statusKey); err != nil {
			return err
		}
		_, err := tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.Set(ctx, statusKey, rec, q.cfg.StatusTTL)
			return nil
		})
		return err
	}

	if err := q.watch(ctx, txf, statusKey); err != nil {
		if errors.Is(err, ErrAlreadyPublished) {
			return fmt.Errorf("job %s: %w", env.ID, err)
		}
		return fmt.Errorf("mark processing: %w", err)
	}
	return nil
}

// Publish pushes the terminal result for a job, sets its expiry and writes
// the terminal status record in one MULTI/EXEC. The status key is WATCHed so
// a second publication for the same job id is refused.
func (q *Queue) Publish(ctx context.Context, result model.ResultEnvelope, startedAt time.Time) error {
	if !jobstatus.IsTerminal(result.Status) {
		return fmt.Errorf("publish: status %q is not terminal", result.Status)
	}

	payload, err := json.Marshal(result)
	if err != nil {
		return fmt.Errorf("marshal result: %w", err)
	}
	finished := result.GeneratedAt
	rec, err := json.Marshal(model.StatusRecord{
		JobID:      result.JobID,
		Status:     result.Status,
		Topic:      result.Filters.Topic,
		StartedAt:  &startedAt,
		FinishedAt: &finished,
		UpdatedAt:  finished,
		Summary:    terminalSummary(&result),
	})
	if err != nil {
		return fmt.Errorf("marshal status: %w", err)
	}

	statusKey := StatusKey(result.JobID)
	resultKey := ResultKey(result.JobID)

	txf := func(tx *redis.Tx) error {
		if err := refuseTerminal(ctx, tx, statusKey); err != nil {
			return err
		}
		_, err := tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.RPush(ctx, resultKey, payload)
			pipe.Expire(ctx, resultKey, q.cfg.ResultTTL)
			pipe.Set(ctx, statusKey, rec, q.cfg.StatusTTL)
			return nil
		})
		return err
	}

	if err := q.watch(ctx, txf, statusKey); err != nil {
		if errors.Is(err, ErrAlreadyPublished) {
			return fmt.Errorf("job %s: %w", result.JobID, err)
		}
		return fmt.Errorf("publish result: %w", err)
	}
	return nil
}

// watch runs txf under WATCH on key, re-checking once if the key changed
// between the read and EXEC.
func (q *Queue) watch(ctx context.Context, txf func(*redis.Tx) error, key string) error {
	err := q.rdb.Watch(ctx, txf, key)
	if errors.Is(err, redis.TxFailedErr) {
		err = q.rdb.Watch(ctx, txf, key)
	}
	return err
}

// refuseTerminal returns ErrAlreadyPublished when the watched status record
// at key is already completed or error.
func refuseTerminal(ctx context.Context, tx *redis.Tx, key string) error {
	raw, err := tx.Get(ctx, key).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil
	}
	if err != nil {
		return err
	}
	var cur model.StatusRecord
	if json.Unmarshal(raw, &cur) == nil && jobstatus.IsTerminal(cur.Status) {
		return ErrAlreadyPublished
	}
	return nil
}

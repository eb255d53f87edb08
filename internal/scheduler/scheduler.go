// Package scheduler runs the periodic housekeeping tasks: pruning the audit
// ledger past its retention window and probing the queue store's health.
package scheduler

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/robfig/cron/v3"
)

const probeTimeout = 2 * time.Second

// Pruner deletes ledger rows finished before a cutoff.
type Pruner interface {
	Prune(ctx context.Context, before time.Time) (int64, error)
}

// Probe checks a dependency and returns nil when it is reachable.
type Probe func(ctx context.Context) error

// Reporter receives the outcome of each health probe.
type Reporter func(healthy bool)

type task struct {
	name string
	spec string
	run  func(ctx context.Context)
}

// Scheduler wraps robfig/cron and owns the registered tasks.
type Scheduler struct {
	cron   *cron.Cron
	logger *slog.Logger
	tasks  []task
	now    func() time.Time
}

// New creates an empty Scheduler. Overlapping runs of the same task are
// skipped and panics inside a task are recovered and logged.
func New(logger *slog.Logger) *Scheduler {
	if logger == nil {
		logger = slog.Default()
	}
	logger = logger.With("component", "scheduler")
	return &Scheduler{
		cron:   cron.New(cron.WithLogger(cronLogger{logger})),
		logger: logger,
		now:    time.Now,
	}
}

// AddPrune registers a task that deletes audit rows older than retention.
func (s *Scheduler) AddPrune(spec string, p Pruner, retention time.Duration) error {
	if _, err := cron.ParseStandard(spec); err != nil {
		return fmt.Errorf("prune schedule %q: %w", spec, err)
	}
	s.tasks = append(s.tasks, task{name: "audit-prune", spec: spec, run: func(ctx context.Context) {
		cutoff := s.now().UTC().Add(-retention)
		n, err := p.Prune(ctx, cutoff)
		if err != nil {
			s.logger.Warn("audit prune failed", "err", err)
			return
		}
		s.logger.Info("audit pruned", "rows", n, "cutoff", cutoff)
	}})
	return nil
}

// AddHealthProbe registers a task that runs probe and hands the result to
// report. Only transitions are logged.
func (s *Scheduler) AddHealthProbe(spec, name string, probe Probe, report Reporter) error {
	if _, err := cron.ParseStandard(spec); err != nil {
		return fmt.Errorf("health schedule %q: %w", spec, err)
	}
	var last *bool
	s.tasks = append(s.tasks, task{name: "health-" + name, spec: spec, run: func(ctx context.Context) {
		pctx, cancel := context.WithTimeout(ctx, probeTimeout)
		defer cancel()
		err := probe(pctx)
		healthy := err == nil
		if last == nil || *last != healthy {
			if healthy {
				s.logger.Info("dependency healthy", "dependency", name)
			} else {
				s.logger.Warn("dependency unhealthy", "dependency", name, "err", err)
			}
		}
		last = &healthy
		report(healthy)
	}})
	return nil
}

// Start registers every task with cron, starts it and runs each task once
// immediately so state is fresh without waiting for the first tick.
func (s *Scheduler) Start(ctx context.Context) error {
	cl := cronLogger{s.logger}
	for _, t := range s.tasks {
		t := t
		// the startup run shares the skip guard with scheduled runs; Recover sits
		// inside it so a panicking run still releases the guard
		job := cron.NewChain(cron.SkipIfStillRunning(cl), cron.Recover(cl)).Then(cron.FuncJob(func() { t.run(ctx) }))
		if _, err := s.cron.AddJob(t.spec, job); err != nil {
			return fmt.Errorf("cron.AddJob %s: %w", t.name, err)
		}
		s.logger.Info("task scheduled", "task", t.name, "spec", t.spec)
		go job.Run()
	}
	s.cron.Start()
	s.logger.Info("cron started", "tasks", len(s.tasks))
	return nil
}

// Stop halts the scheduler and waits up to timeout for running tasks.
func (s *Scheduler) Stop(timeout time.Duration) {
	done := s.cron.Stop()
	select {
	case <-done.Done():
	case <-time.After(timeout):
		s.logger.Warn("cron stop timed out — tasks still running")
	}
	s.logger.Info("cron stopped")
}

// cronLogger adapts slog to cron.Logger.
type cronLogger struct{ l *slog.Logger }

func (c cronLogger) Info(msg string, keysAndValues ...any) {
	c.l.Debug(msg, keysAndValues...)
}

func (c cronLogger) Error(err error, msg string, keysAndValues ...any) {
	c.l.Error(msg, append([]any{"err", err}, keysAndValues...)...)
}

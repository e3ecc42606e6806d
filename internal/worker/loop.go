package worker

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	rcron "github.com/robfig/cron/v3"
	"go.uber.org/zap"

	"github.com/ppiankov/ranger/internal/logging"
	"github.com/ppiankov/ranger/internal/metrics"
)

const (
	DefaultLoopInterval = 300 * time.Second
	DefaultLoopBackoff  = 60 * time.Second
)

// TaskFunc is one unit of background maintenance
type TaskFunc func(ctx context.Context) error

type task struct {
	name string
	run  TaskFunc
}

type scheduledTask struct {
	task
	spec string
}

// Loop runs maintenance tasks on a fixed interval plus cron-scheduled jobs.
// A failing iteration is logged and retried after the backoff; Run only returns on cancellation.
type Loop struct {
	interval  time.Duration
	backoff   time.Duration
	tasks     []task
	scheduled []scheduledTask
	logger    *zap.Logger
	metrics   *metrics.Metrics

	mu         sync.Mutex
	iterations atomic.Int64
	failures   atomic.Int64
}

// NewLoop creates a loop. Non-positive durations fall back to the defaults.
func NewLoop(interval, backoff time.Duration, logger *zap.Logger, m *metrics.Metrics) *Loop {
	if interval <= 0 {
		interval = DefaultLoopInterval
	}
	if backoff <= 0 {
		backoff = DefaultLoopBackoff
	}

	return &Loop{
		interval: interval,
		backoff:  backoff,
		logger:   logging.OrNop(logger).Named("loop"),
		metrics:  m,
	}
}

// Every adds a task run on each iteration, in registration order
func (l *Loop) Every(name string, fn TaskFunc) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.tasks = append(l.tasks, task{name: name, run: fn})
}

// Schedule adds a task run on a six-field cron spec (seconds first).
// An empty spec disables the task.
func (l *Loop) Schedule(name, spec string, fn TaskFunc) error {
	if spec == "" {
		return nil
	}

	parser := rcron.NewParser(rcron.Second | rcron.Minute | rcron.Hour | rcron.Dom | rcron.Month | rcron.Dow | rcron.Descriptor)
	if _, err := parser.Parse(spec); err != nil {
		return fmt.Errorf("schedule %s: %w", name, err)
	}

	l.mu.Lock()
	defer l.mu.Unlock()
	l.scheduled = append(l.scheduled, scheduledTask{task: task{name: name, run: fn}, spec: spec})
	return nil
}

// Iterations returns how many iterations have completed
func (l *Loop) Iterations() int64 {
	return l.iterations.Load()
}

// Failures returns how many iterations ended with an error
func (l *Loop) Failures() int64 {
	return l.failures.Load()
}

// RunOnce runs every interval task once. All tasks run even when one fails;
// the joined error reports each failure.
func (l *Loop) RunOnce(ctx context.Context) error {
	l.mu.Lock()
	tasks := make([]task, len(l.tasks))
	copy(tasks, l.tasks)
	l.mu.Unlock()

	var errs []error
	for _, t := range tasks {
		if ctx.Err() != nil {
			errs = append(errs, ctx.Err())
			break
		}
		if err := l.runTask(ctx, t); err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", t.name, err))
		}
	}

	err := errors.Join(errs...)
	l.iterations.Add(1)
	if err != nil {
		l.failures.Add(1)
	}
	l.metrics.ObserveLoop(err)
	return err
}

// Run starts the cron jobs and iterates until ctx is cancelled
func (l *Loop) Run(ctx context.Context) error {
	scheduler := rcron.New(rcron.WithSeconds())

	l.mu.Lock()
	for _, st := range l.scheduled {
		if _, err := scheduler.AddFunc(st.spec, func() {
			if err := l.runTask(ctx, st.task); err != nil {
				l.logger.Warn("scheduled task failed", zap.String("task", st.name), zap.Error(err))
			}
		}); err != nil {
			l.mu.Unlock()
			return fmt.Errorf("register %s: %w", st.name, err)
		}
	}
	l.mu.Unlock()

	scheduler.Start()
	defer func() {
		stopCtx := scheduler.Stop()
		select {
		case <-stopCtx.Done():
		case <-time.After(5 * time.Second):
			l.logger.Warn("timed out waiting for scheduled tasks")
		}
	}()

	l.logger.Info("loop started",
		zap.Duration("interval", l.interval),
		zap.Duration("backoff", l.backoff),
		zap.Int("scheduled", len(l.scheduled)))

	for {
		wait := l.interval
		if err := l.RunOnce(ctx); err != nil {
			if ctx.Err() != nil {
				break
			}
			l.logger.Error("loop iteration failed", zap.Error(err), zap.Duration("retry_in", l.backoff))
			wait = l.backoff
		}

		timer := time.NewTimer(wait)
		select {
		case <-ctx.Done():
			timer.Stop()
			l.logger.Info("loop stopped", zap.Int64("iterations", l.Iterations()))
			return nil
		case <-timer.C:
		}
	}

	l.logger.Info("loop stopped", zap.Int64("iterations", l.Iterations()))
	return nil
}

// runTask runs fn and turns a panic into an error
func (l *Loop) runTask(ctx context.Context, t task) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("panic: %v", r)
		}
	}()

	start := time.Now()
	err = t.run(ctx)
	l.logger.Debug("task finished",
		zap.String("task", t.name),
		zap.Duration("took", time.Since(start)),
		zap.Bool("ok", err == nil))
	return err
}

// Package scheduler runs the agent's recurring background tasks. Each task
// gets its own goroutine and ticker; a slow or failing task never delays the
// others. Task errors and panics are logged and counted, and the loop keeps
// ticking.
package scheduler

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/example/steward/internal/observability"
)

// Task is one recurring unit of background work.
type Task struct {
	Name     string
	Interval time.Duration
	Fn       func(ctx context.Context) error
}

// Scheduler holds the registered tasks until Run starts them.
type Scheduler struct {
	Log zerolog.Logger

	// Timeout bounds each task invocation; zero means no per-run deadline.
	Timeout time.Duration

	mu    sync.Mutex
	tasks []Task
}

// Every registers fn to run once per interval after Run is called.
func (s *Scheduler) Every(name string, interval time.Duration, fn func(ctx context.Context) error) {
	s.mu.Lock()
	s.tasks = append(s.tasks, Task{Name: name, Interval: interval, Fn: fn})
	s.mu.Unlock()
}

// Run starts every registered task loop and blocks until ctx is cancelled
// and all loops have drained.
func (s *Scheduler) Run(ctx context.Context) {
	s.mu.Lock()
	tasks := append([]Task(nil), s.tasks...)
	s.mu.Unlock()

	var wg sync.WaitGroup
	for _, t := range tasks {
		wg.Add(1)
		go func(t Task) {
			defer wg.Done()
			s.loop(ctx, t)
		}(t)
	}
	wg.Wait()
}

func (s *Scheduler) loop(ctx context.Context, t Task) {
	log := s.Log.With().Str("task", t.Name).Logger()
	log.Info().Dur("interval", t.Interval).Msg("task loop started")

	ticker := time.NewTicker(t.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			log.Info().Msg("task loop stopped")
			return
		case <-ticker.C:
			s.runOnce(ctx, t, log)
		}
	}
}

// runOnce executes one tick with a run-scoped deadline and panic isolation.
func (s *Scheduler) runOnce(ctx context.Context, t Task, log zerolog.Logger) {
	runCtx := ctx
	if s.Timeout > 0 {
		var cancel context.CancelFunc
		runCtx, cancel = context.WithTimeout(ctx, s.Timeout)
		defer cancel()
	}

	runID := uuid.NewString()
	defer func() {
		if r := recover(); r != nil {
			observability.TaskFailures.WithLabelValues(t.Name).Inc()
			log.Error().Str("run_id", runID).Interface("panic", r).
				Msg("task panicked")
		}
	}()

	if err := t.Fn(runCtx); err != nil {
		observability.TaskFailures.WithLabelValues(t.Name).Inc()
		log.Error().Err(err).Str("run_id", runID).Msg("task run failed")
	}
}

package scheduler

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/rs/zerolog"
)

func TestScheduler_RunsTasksOnInterval(t *testing.T) {
	s := &Scheduler{Log: zerolog.Nop()}

	var ticks int64
	s.Every("counter", 10*time.Millisecond, func(context.Context) error {
		atomic.AddInt64(&ticks, 1)
		return nil
	})

	ctx, cancel := context.WithTimeout(context.Background(), 150*time.Millisecond)
	defer cancel()
	s.Run(ctx)

	if n := atomic.LoadInt64(&ticks); n < 3 {
		t.Fatalf("task ran %d times, want several", n)
	}
}

func TestScheduler_FailingTaskKeepsTicking(t *testing.T) {
	s := &Scheduler{Log: zerolog.Nop()}

	var runs int64
	s.Every("flaky", 10*time.Millisecond, func(context.Context) error {
		atomic.AddInt64(&runs, 1)
		return errors.New("transient")
	})

	ctx, cancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
	defer cancel()
	s.Run(ctx)

	if n := atomic.LoadInt64(&runs); n < 2 {
		t.Fatalf("failing task stopped after %d runs", n)
	}
}

func TestScheduler_PanicIsolated(t *testing.T) {
	s := &Scheduler{Log: zerolog.Nop()}

	var panics, healthy int64
	s.Every("exploding", 10*time.Millisecond, func(context.Context) error {
		atomic.AddInt64(&panics, 1)
		panic("boom")
	})
	s.Every("healthy", 10*time.Millisecond, func(context.Context) error {
		atomic.AddInt64(&healthy, 1)
		return nil
	})

	ctx, cancel := context.WithTimeout(context.Background(), 120*time.Millisecond)
	defer cancel()
	s.Run(ctx)

	if n := atomic.LoadInt64(&panics); n < 2 {
		t.Fatalf("panicking task stopped after %d runs", n)
	}
	if n := atomic.LoadInt64(&healthy); n < 2 {
		t.Fatalf("healthy task starved: %d runs", n)
	}
}

func TestScheduler_TimeoutBoundsTaskRuns(t *testing.T) {
	s := &Scheduler{Log: zerolog.Nop(), Timeout: 20 * time.Millisecond}

	var deadlineSeen int64
	s.Every("slow", 10*time.Millisecond, func(ctx context.Context) error {
		select {
		case <-ctx.Done():
			atomic.AddInt64(&deadlineSeen, 1)
			return ctx.Err()
		case <-time.After(time.Second):
			return nil
		}
	})

	ctx, cancel := context.WithTimeout(context.Background(), 150*time.Millisecond)
	defer cancel()
	s.Run(ctx)

	if atomic.LoadInt64(&deadlineSeen) == 0 {
		t.Fatal("slow task never observed its per-run deadline")
	}
}

func TestScheduler_StopsOnCancel(t *testing.T) {
	s := &Scheduler{Log: zerolog.Nop()}
	s.Every("noop", time.Millisecond, func(context.Context) error { return nil })

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		s.Run(ctx)
		close(done)
	}()

	cancel()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Run did not return after cancel")
	}
}

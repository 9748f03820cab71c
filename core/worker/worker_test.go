package worker

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/tankerfleet/tankerfleet/infra/logger"
)

func TestWorker_RunsUntilCancelled(t *testing.T) {
	var runs atomic.Int32
	w := &Worker{
		Name:     "test",
		Interval: time.Millisecond,
		Fn: func(ctx context.Context) error {
			runs.Add(1)
			return nil
		},
		Log: logger.NopLogger{},
	}
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		w.Run(ctx)
		close(done)
	}()

	deadline := time.After(2 * time.Second)
	for runs.Load() < 3 {
		select {
		case <-deadline:
			t.Fatalf("worker ran %d times", runs.Load())
		case <-time.After(time.Millisecond):
		}
	}
	if !w.Running() {
		t.Fatal("worker should report running")
	}
	cancel()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("worker did not stop on cancellation")
	}
	if w.Running() {
		t.Fatal("worker should report stopped")
	}
}

func TestWorker_SurvivesErrorsAndPanics(t *testing.T) {
	var runs atomic.Int32
	w := &Worker{
		Name:     "flaky",
		Interval: time.Millisecond,
		Fn: func(ctx context.Context) error {
			switch runs.Add(1) {
			case 1:
				return errors.New("boom")
			case 2:
				panic("worse boom")
			}
			return nil
		},
		Log: logger.NopLogger{},
	}
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go w.Run(ctx)

	deadline := time.After(2 * time.Second)
	for runs.Load() < 4 {
		select {
		case <-deadline:
			t.Fatalf("worker stopped after %d runs", runs.Load())
		case <-time.After(time.Millisecond):
		}
	}
}

func TestWorker_ErrorBackoff(t *testing.T) {
	var runs atomic.Int32
	w := &Worker{
		Name:         "backoff",
		Interval:     time.Millisecond,
		ErrorBackoff: time.Hour,
		Fn: func(ctx context.Context) error {
			runs.Add(1)
			return errors.New("always fails")
		},
		Log: logger.NopLogger{},
	}
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go w.Run(ctx)

	time.Sleep(50 * time.Millisecond)
	if got := runs.Load(); got != 1 {
		t.Fatalf("expected a single run before the hour backoff, got %d", got)
	}
}

func TestWorker_InitialDelay(t *testing.T) {
	var runs atomic.Int32
	w := &Worker{
		Name:         "delayed",
		InitialDelay: time.Hour,
		Interval:     time.Millisecond,
		Fn: func(ctx context.Context) error {
			runs.Add(1)
			return nil
		},
		Log: logger.NopLogger{},
	}
	ctx, cancel := context.WithCancel(context.Background())
	go w.Run(ctx)
	time.Sleep(20 * time.Millisecond)
	cancel()
	if runs.Load() != 0 {
		t.Fatal("body ran before the initial delay elapsed")
	}
}

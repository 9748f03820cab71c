// Package worker provides the periodic background loop shared by the
// simulation cycle, the transition sweep and the retrain scheduler.
// Each loop body runs behind a failure boundary: errors and panics are
// logged and the worker resumes after a backoff instead of terminating.
package worker

import (
	"context"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/tankerfleet/tankerfleet/core/logger"
)

// Worker runs Fn every Interval until the context is cancelled. The body
// never runs concurrently with itself.
type Worker struct {
	Name string
	// InitialDelay is waited once before the first run.
	InitialDelay time.Duration
	Interval     time.Duration
	// ErrorBackoff replaces Interval after a failed run. Zero means use
	// Interval.
	ErrorBackoff time.Duration
	Fn           func(ctx context.Context) error
	Log          logger.Logger

	running atomic.Bool
}

// Running reports whether the worker loop is currently alive.
func (w *Worker) Running() bool { return w.running.Load() }

// Run executes the loop until ctx is cancelled. It only returns on
// cancellation; a failing body is logged and retried after ErrorBackoff.
func (w *Worker) Run(ctx context.Context) {
	w.running.Store(true)
	defer w.running.Store(false)

	if w.InitialDelay > 0 {
		w.Log.Infof("%s: waiting %s before first run", w.Name, w.InitialDelay)
		if !sleep(ctx, w.InitialDelay) {
			return
		}
	}
	for {
		wait := w.Interval
		if err := w.safeRun(ctx); err != nil {
			w.Log.Errorf("%s: cycle failed: %v", w.Name, err)
			if w.ErrorBackoff > 0 {
				wait = w.ErrorBackoff
			}
		}
		if !sleep(ctx, wait) {
			return
		}
	}
}

func (w *Worker) safeRun(ctx context.Context) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("panic: %v", r)
		}
	}()
	return w.Fn(ctx)
}

// sleep waits for d or until ctx is done, reporting whether the full
// duration elapsed.
func sleep(ctx context.Context, d time.Duration) bool {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-t.C:
		return true
	}
}

package ml

import (
	"context"
	"errors"
	"time"

	"github.com/tankerfleet/tankerfleet/core/logger"
)

// SchedulerConfig drives the periodic retraining loop.
type SchedulerConfig struct {
	// Interval between training attempts.
	Interval time.Duration
	// Warmup is waited before the first attempt so the simulator can
	// accumulate rows. WarmupFor derives a sensible value.
	Warmup time.Duration
	// ErrorBackoff replaces Interval after an unexpected failure.
	ErrorBackoff time.Duration
}

// WarmupFor computes the initial wait from the generation interval and
// the minimum sample count: at least two minutes, or half the samples'
// worth of generation cycles, whichever is longer.
func WarmupFor(generationInterval time.Duration, minSamples int) time.Duration {
	w := generationInterval * time.Duration(minSamples/2)
	if w < 2*time.Minute {
		w = 2 * time.Minute
	}
	return w
}

// Scheduler periodically drives the pipeline's full-training entry
// point. Insufficient data and training success are distinct but both
// non-fatal outcomes; unexpected failures back off and resume. The
// loop only stops with the context.
type Scheduler struct {
	pipeline *Pipeline
	cfg      SchedulerConfig
	log      logger.Logger
}

// NewScheduler creates a Scheduler.
func NewScheduler(pipeline *Pipeline, cfg SchedulerConfig, log logger.Logger) *Scheduler {
	if cfg.ErrorBackoff == 0 {
		cfg.ErrorBackoff = time.Hour
	}
	return &Scheduler{pipeline: pipeline, cfg: cfg, log: log}
}

// Cycle runs one training attempt, translating outcomes into logs. Only
// unexpected errors propagate, so a wrapping worker can apply its error
// backoff; "not enough data yet" is absorbed as a normal outcome.
func (s *Scheduler) Cycle(ctx context.Context) error {
	s.log.Infof("starting scheduled model retraining")
	trained, err := s.pipeline.TrainAll(ctx)
	switch {
	case errors.Is(err, ErrInsufficientData):
		s.log.Debugf("retraining skipped, not enough data yet; retrying next cycle")
		return nil
	case err != nil:
		return err
	case trained:
		s.log.Infof("retraining complete, next attempt in %s", s.cfg.Interval)
	default:
		s.log.Debugf("no model had enough samples; retrying next cycle")
	}
	return nil
}

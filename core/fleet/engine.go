package fleet

import (
	"context"
	"fmt"

	"github.com/tankerfleet/tankerfleet/core/logger"
	"github.com/tankerfleet/tankerfleet/core/metrics"
	"github.com/tankerfleet/tankerfleet/core/model"
)

// SweepStore is the persistence surface the transition engine needs.
// ApplyTransitions must commit all updates and their history snapshots
// atomically: a failure rolls back the whole batch.
type SweepStore interface {
	SweepCandidates(ctx context.Context, statuses []model.Status) ([]model.SweepCandidate, error)
	ApplyTransitions(ctx context.Context, transitions []model.Transition) error
}

// Engine advances tankers through the status lifecycle once their dwell
// time has elapsed.
type Engine struct {
	store SweepStore
	table *TransitionTable
	clock Clock
	sink  metrics.Sink
	log   logger.Logger
}

// NewEngine creates an Engine. A nil clock defaults to the system clock
// and a nil sink to the no-op sink.
func NewEngine(store SweepStore, table *TransitionTable, clock Clock, sink metrics.Sink, log logger.Logger) *Engine {
	if clock == nil {
		clock = SystemClock()
	}
	if sink == nil {
		sink = metrics.NopSink{}
	}
	return &Engine{store: store, table: table, clock: clock, sink: sink, log: log}
}

// Sweep evaluates every tanker in a managed status and advances those
// whose dwell has elapsed. Each advanced tanker gets its location
// snapped (destination coordinates on Reached Destination, depot
// coordinates on At Source), its seal recomputed, its status timestamps
// reset, and one history snapshot appended. The batch is applied in a
// single transaction; on error the engine leaves everything untouched
// and retries on its next invocation.
func (e *Engine) Sweep(ctx context.Context) error {
	candidates, err := e.store.SweepCandidates(ctx, e.table.Statuses())
	if err != nil {
		return fmt.Errorf("load sweep candidates: %w", err)
	}

	now := e.clock.Now()
	var due []model.Transition
	for _, c := range candidates {
		rule, ok := e.table.Rule(c.Status)
		if !ok || c.StatusChangedAt.IsZero() {
			continue
		}
		if now.Sub(c.StatusChangedAt) < rule.Dwell() {
			continue
		}
		loc := c.Location
		switch rule.Next {
		case model.StatusReachedDest:
			if c.DestLocation != nil {
				loc = *c.DestLocation
			}
		case model.StatusAtSource:
			if c.DepotLocation != nil {
				loc = *c.DepotLocation
			}
		}
		due = append(due, model.Transition{
			TankerID: c.TankerID,
			From:     c.Status,
			To:       rule.Next,
			Location: loc,
			Seal:     model.SealFor(rule.Next),
			At:       now,
		})
	}
	if len(due) == 0 {
		return nil
	}

	if err := e.store.ApplyTransitions(ctx, due); err != nil {
		return fmt.Errorf("apply %d transitions: %w", len(due), err)
	}
	for _, tr := range due {
		e.sink.RecordTransition(string(tr.From), string(tr.To))
		e.log.Infof("status transition: %s %s -> %s", tr.TankerID, tr.From, tr.To)
	}
	return nil
}

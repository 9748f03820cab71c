package fleet

import (
	"fmt"
	"time"

	"github.com/tankerfleet/tankerfleet/core/model"
)

// Rule defines the successor status and the minimum dwell before a
// tanker becomes eligible to advance.
type Rule struct {
	Next         model.Status
	DwellMinutes int
}

// Dwell returns the minimum dwell as a duration.
func (r Rule) Dwell() time.Duration {
	return time.Duration(r.DwellMinutes) * time.Minute
}

// Entry is one row of a transition table definition.
type Entry struct {
	From         model.Status
	Next         model.Status
	DwellMinutes int
}

// TransitionTable maps each status to its successor rule. The graph is
// cyclic: Unloading re-enters At Source and Delayed re-enters In Transit.
type TransitionTable struct {
	order []model.Status
	rules map[model.Status]Rule
}

// NewTransitionTable builds a table from entries, rejecting duplicate or
// conflicting definitions, non-positive dwell times, and successors that
// have no entry of their own (which would strand a tanker).
func NewTransitionTable(entries []Entry) (*TransitionTable, error) {
	t := &TransitionTable{rules: make(map[model.Status]Rule, len(entries))}
	for _, e := range entries {
		if e.DwellMinutes <= 0 {
			return nil, fmt.Errorf("transition from %q: dwell must be positive", e.From)
		}
		if prev, ok := t.rules[e.From]; ok {
			if prev.Next != e.Next || prev.DwellMinutes != e.DwellMinutes {
				return nil, fmt.Errorf("conflicting transitions defined for %q", e.From)
			}
			continue
		}
		t.rules[e.From] = Rule{Next: e.Next, DwellMinutes: e.DwellMinutes}
		t.order = append(t.order, e.From)
	}
	for from, r := range t.rules {
		if _, ok := t.rules[r.Next]; !ok {
			return nil, fmt.Errorf("successor %q of %q has no transition", r.Next, from)
		}
	}
	return t, nil
}

// DefaultEntries returns the delivery lifecycle used by the simulator.
func DefaultEntries() []Entry {
	return []Entry{
		{From: model.StatusAtSource, Next: model.StatusLoading, DwellMinutes: 15},
		{From: model.StatusLoading, Next: model.StatusInTransit, DwellMinutes: 30},
		{From: model.StatusInTransit, Next: model.StatusReachedDest, DwellMinutes: 300},
		{From: model.StatusReachedDest, Next: model.StatusUnloading, DwellMinutes: 45},
		{From: model.StatusUnloading, Next: model.StatusAtSource, DwellMinutes: 60},
		{From: model.StatusDelayed, Next: model.StatusInTransit, DwellMinutes: 60},
	}
}

// DefaultTable returns the table built from DefaultEntries. It panics if
// the built-in entries are invalid, which is a programming error.
func DefaultTable() *TransitionTable {
	t, err := NewTransitionTable(DefaultEntries())
	if err != nil {
		panic(err)
	}
	return t
}

// Rule returns the rule for a status, if one is defined.
func (t *TransitionTable) Rule(s model.Status) (Rule, bool) {
	r, ok := t.rules[s]
	return r, ok
}

// Statuses returns the statuses covered by the table in definition order.
func (t *TransitionTable) Statuses() []model.Status {
	out := make([]model.Status, len(t.order))
	copy(out, t.order)
	return out
}

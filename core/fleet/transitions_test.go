package fleet

import (
	"testing"

	"github.com/tankerfleet/tankerfleet/core/model"
)

func TestDefaultTableCoversLifecycle(t *testing.T) {
	table := DefaultTable()
	for _, s := range []model.Status{
		model.StatusAtSource, model.StatusLoading, model.StatusInTransit,
		model.StatusReachedDest, model.StatusUnloading, model.StatusDelayed,
	} {
		if _, ok := table.Rule(s); !ok {
			t.Fatalf("no rule for %q", s)
		}
	}
	r, _ := table.Rule(model.StatusInTransit)
	if r.Next != model.StatusReachedDest || r.DwellMinutes != 300 {
		t.Fatalf("unexpected in-transit rule %+v", r)
	}
	r, _ = table.Rule(model.StatusDelayed)
	if r.Next != model.StatusInTransit || r.DwellMinutes != 60 {
		t.Fatalf("unexpected delayed rule %+v", r)
	}
}

func TestNewTransitionTable_DuplicateIdentical(t *testing.T) {
	entries := append(DefaultEntries(),
		Entry{From: model.StatusReachedDest, Next: model.StatusUnloading, DwellMinutes: 45})
	if _, err := NewTransitionTable(entries); err != nil {
		t.Fatalf("identical duplicate should be tolerated: %v", err)
	}
}

func TestNewTransitionTable_ConflictingDuplicate(t *testing.T) {
	entries := append(DefaultEntries(),
		Entry{From: model.StatusReachedDest, Next: model.StatusAtSource, DwellMinutes: 45})
	if _, err := NewTransitionTable(entries); err == nil {
		t.Fatal("conflicting duplicate should be rejected")
	}
}

func TestNewTransitionTable_NonPositiveDwell(t *testing.T) {
	entries := []Entry{{From: model.StatusAtSource, Next: model.StatusAtSource, DwellMinutes: 0}}
	if _, err := NewTransitionTable(entries); err == nil {
		t.Fatal("zero dwell should be rejected")
	}
}

func TestNewTransitionTable_StrandedSuccessor(t *testing.T) {
	entries := []Entry{{From: model.StatusAtSource, Next: model.StatusLoading, DwellMinutes: 15}}
	if _, err := NewTransitionTable(entries); err == nil {
		t.Fatal("successor without its own rule should be rejected")
	}
}

func TestTransitionTable_StatusesOrder(t *testing.T) {
	table := DefaultTable()
	got := table.Statuses()
	if len(got) != 6 || got[0] != model.StatusAtSource {
		t.Fatalf("unexpected status order %v", got)
	}
}

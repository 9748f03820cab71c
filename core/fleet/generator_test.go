package fleet

import (
	"context"
	"math/rand"
	"testing"
	"time"

	"github.com/tankerfleet/tankerfleet/core/model"
	"github.com/tankerfleet/tankerfleet/core/store"
	"github.com/tankerfleet/tankerfleet/infra/logger"
)

func TestNextTankerID(t *testing.T) {
	cases := []struct {
		name     string
		existing []string
		want     string
	}{
		{"empty", nil, "TNK-001"},
		{"sequential", []string{"TNK-001", "TNK-002"}, "TNK-003"},
		{"gap", []string{"TNK-001", "TNK-007"}, "TNK-008"},
		{"malformed ignored", []string{"TNK-abc", "nodash", "TNK-004"}, "TNK-005"},
		{"all malformed", []string{"TNK-abc", "nodash"}, "TNK-001"},
		{"wide suffix", []string{"TNK-1000"}, "TNK-1001"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := NextTankerID(tc.existing); got != tc.want {
				t.Fatalf("NextTankerID(%v) = %q, want %q", tc.existing, got, tc.want)
			}
		})
	}
}

func TestSynthesize_StatusConsistency(t *testing.T) {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	for seed := int64(0); seed < 50; seed++ {
		g := NewGenerator(store.NewMemoryStore(), rand.New(rand.NewSource(seed)), FixedClock{T: now}, nil, logger.NopLogger{})
		rec := g.Synthesize("TNK-001")
		if err := rec.Validate(); err != nil {
			t.Fatalf("seed %d: invalid record: %v", seed, err)
		}
		if rec.OilVolumeLiters > rec.MaxCapacityLiters {
			t.Fatalf("seed %d: volume %f exceeds capacity %f", seed, rec.OilVolumeLiters, rec.MaxCapacityLiters)
		}
		switch rec.Status {
		case model.StatusInTransit:
			if rec.TripDurationHours <= 0 || rec.AvgSpeedKmh < 60 || rec.AvgSpeedKmh > 80 {
				t.Fatalf("seed %d: bad trip metrics %+v", seed, rec)
			}
			if rec.Seal != model.SealSealed {
				t.Fatalf("seed %d: in transit should be sealed", seed)
			}
			if rec.Location == rec.DepotLocation {
				t.Fatalf("seed %d: in-transit location should be along the route", seed)
			}
		default:
			if rec.TripDurationHours != 0 || rec.AvgSpeedKmh != 0 {
				t.Fatalf("seed %d: trip metrics set outside transit %+v", seed, rec)
			}
			if rec.Seal != model.SealOpen {
				t.Fatalf("seed %d: %q should be open", seed, rec.Status)
			}
			if rec.Location != rec.DepotLocation {
				t.Fatalf("seed %d: stationary tanker should sit at the depot", seed)
			}
		}
		if !rec.LastUpdate.Equal(now) || !rec.StatusChangedAt.Equal(now) {
			t.Fatalf("seed %d: timestamps not stamped from clock", seed)
		}
	}
}

func TestSynthesize_VolumeBands(t *testing.T) {
	now := time.Now()
	for seed := int64(0); seed < 100; seed++ {
		g := NewGenerator(store.NewMemoryStore(), rand.New(rand.NewSource(seed)), FixedClock{T: now}, nil, logger.NopLogger{})
		rec := g.Synthesize("TNK-001")
		frac := rec.OilVolumeLiters / rec.MaxCapacityLiters
		switch rec.Status {
		case model.StatusAtSource:
			if frac > 0.2 {
				t.Fatalf("seed %d: at source fill fraction %f", seed, frac)
			}
		case model.StatusLoading:
			if frac < 0.5 || frac > 0.8 {
				t.Fatalf("seed %d: loading fill fraction %f", seed, frac)
			}
		case model.StatusInTransit:
			if frac < 0.8 || frac > 0.95 {
				t.Fatalf("seed %d: in transit fill fraction %f", seed, frac)
			}
		}
	}
}

func TestCycle_GrowsFleet(t *testing.T) {
	st := store.NewMemoryStore()
	g := NewGenerator(st, rand.New(rand.NewSource(1)), nil, nil, logger.NopLogger{})
	ctx := context.Background()
	for i := 0; i < 10; i++ {
		if err := g.Cycle(ctx); err != nil {
			t.Fatalf("cycle %d: %v", i, err)
		}
	}
	ids, err := st.TankerIDs(ctx)
	if err != nil {
		t.Fatalf("ids: %v", err)
	}
	if len(ids) == 0 {
		t.Fatal("fleet did not grow")
	}
	if ids[0] != "TNK-001" {
		t.Fatalf("first id = %q", ids[0])
	}
	if st.HistoryLen() < 10 {
		t.Fatalf("expected a history row per operation, got %d", st.HistoryLen())
	}
}

func TestCycle_MutationPreservesStatusChangedAt(t *testing.T) {
	st := store.NewMemoryStore()
	ctx := context.Background()
	changed := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)

	// Force a deterministic mutation by seeding a tanker and retrying
	// seeds until the generator picks the mutate branch with a matching
	// status.
	for seed := int64(0); seed < 200; seed++ {
		g := NewGenerator(st, rand.New(rand.NewSource(seed)), FixedClock{T: changed.Add(time.Hour)}, nil, logger.NopLogger{})
		rec := g.Synthesize("TNK-001")
		rec.StatusChangedAt = changed
		st.SeedTanker(rec)
		upd := g.Synthesize("TNK-001")
		if upd.Status != rec.Status {
			continue
		}
		if _, err := st.UpsertTanker(ctx, upd); err != nil {
			t.Fatalf("upsert: %v", err)
		}
		got := st.Tanker("TNK-001")
		if !got.StatusChangedAt.Equal(changed) {
			t.Fatalf("status_changed_at overwritten on same-status update")
		}
		return
	}
	t.Fatal("no seed produced a same-status mutation")
}

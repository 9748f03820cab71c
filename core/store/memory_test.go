package store

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/tankerfleet/tankerfleet/core/model"
)

func newTanker(id string, status model.Status, at time.Time) model.Tanker {
	return model.Tanker{
		TankerID:          id,
		DriverName:        "Jonas Berg",
		Status:            status,
		Location:          model.Location{Lat: 51.9, Lon: 4.4},
		SourceDepot:       "Rotterdam",
		DepotLocation:     model.Location{Lat: 51.9244, Lon: 4.4777},
		Destination:       "Terminal North",
		DestLocation:      model.Location{Lat: 52.3676, Lon: 4.9041},
		Seal:              model.SealFor(status),
		OilVolumeLiters:   15000,
		MaxCapacityLiters: 20000,
		LastUpdate:        at,
		StatusChangedAt:   at,
	}
}

func TestUpsertTanker_CreateThenUpdate(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()
	at := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)

	created, err := s.UpsertTanker(ctx, newTanker("TNK-001", model.StatusAtSource, at))
	if err != nil || !created {
		t.Fatalf("create: created=%v err=%v", created, err)
	}
	created, err = s.UpsertTanker(ctx, newTanker("TNK-001", model.StatusAtSource, at.Add(time.Minute)))
	if err != nil || created {
		t.Fatalf("update: created=%v err=%v", created, err)
	}
	if s.HistoryLen() != 2 {
		t.Fatalf("history rows = %d", s.HistoryLen())
	}
}

func TestUpsertTanker_CaseInsensitiveID(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()
	at := time.Now()

	if _, err := s.UpsertTanker(ctx, newTanker("TNK-001", model.StatusAtSource, at)); err != nil {
		t.Fatalf("upsert: %v", err)
	}
	created, err := s.UpsertTanker(ctx, newTanker("tnk-001", model.StatusLoading, at.Add(time.Minute)))
	if err != nil {
		t.Fatalf("upsert lower: %v", err)
	}
	if created {
		t.Fatal("lower-cased id should match the existing row")
	}
	ids, _ := s.TankerIDs(ctx)
	if len(ids) != 1 || ids[0] != "TNK-001" {
		t.Fatalf("canonical id lost: %v", ids)
	}
}

func TestUpsertTanker_StatusChangedAtSemantics(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()
	t0 := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)
	t1 := t0.Add(30 * time.Minute)

	if _, err := s.UpsertTanker(ctx, newTanker("TNK-001", model.StatusAtSource, t0)); err != nil {
		t.Fatalf("upsert: %v", err)
	}
	if _, err := s.UpsertTanker(ctx, newTanker("TNK-001", model.StatusAtSource, t1)); err != nil {
		t.Fatalf("same-status upsert: %v", err)
	}
	if got := s.Tanker("TNK-001"); !got.StatusChangedAt.Equal(t0) {
		t.Fatalf("same-status update must preserve StatusChangedAt, got %v", got.StatusChangedAt)
	}
	if _, err := s.UpsertTanker(ctx, newTanker("TNK-001", model.StatusLoading, t1)); err != nil {
		t.Fatalf("status-change upsert: %v", err)
	}
	if got := s.Tanker("TNK-001"); !got.StatusChangedAt.Equal(t1) {
		t.Fatalf("status change must reset StatusChangedAt, got %v", got.StatusChangedAt)
	}
}

func TestApplyTransitions_Atomic(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()
	at := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)
	s.SeedTanker(newTanker("TNK-001", model.StatusAtSource, at))

	err := s.ApplyTransitions(ctx, []model.Transition{
		{TankerID: "TNK-001", From: model.StatusAtSource, To: model.StatusLoading, At: at.Add(time.Hour)},
		{TankerID: "TNK-999", From: model.StatusAtSource, To: model.StatusLoading, At: at.Add(time.Hour)},
	})
	var unknown *UnknownTankerError
	if !errors.As(err, &unknown) || unknown.TankerID != "TNK-999" {
		t.Fatalf("expected UnknownTankerError for TNK-999, got %v", err)
	}
	if got := s.Tanker("TNK-001"); got.Status != model.StatusAtSource {
		t.Fatal("failed batch must not partially apply")
	}
	if s.HistoryLen() != 0 {
		t.Fatal("failed batch must not write history")
	}
}

func TestHistoryWindow_FiltersAndOrders(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()
	base := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)
	s.AppendHistory(model.HistoryRow{TankerID: "TNK-002", Status: model.StatusAtSource, RecordedAt: base.Add(2 * time.Hour)})
	s.AppendHistory(model.HistoryRow{TankerID: "TNK-001", Status: model.StatusAtSource, RecordedAt: base.Add(3 * time.Hour)})
	s.AppendHistory(model.HistoryRow{TankerID: "TNK-001", Status: model.StatusAtSource, RecordedAt: base.Add(1 * time.Hour)})
	s.AppendHistory(model.HistoryRow{TankerID: "TNK-001", Status: model.StatusAtSource, RecordedAt: base.Add(-time.Hour)})

	rows, err := s.HistoryWindow(ctx, base)
	if err != nil {
		t.Fatalf("window: %v", err)
	}
	if len(rows) != 3 {
		t.Fatalf("rows = %d", len(rows))
	}
	if rows[0].TankerID != "TNK-001" || !rows[0].RecordedAt.Equal(base.Add(time.Hour)) {
		t.Fatalf("unexpected first row %+v", rows[0])
	}
	if rows[2].TankerID != "TNK-002" {
		t.Fatalf("unexpected last row %+v", rows[2])
	}
}

func TestSaveModelMetadata_SingleActive(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()
	for i := 0; i < 3; i++ {
		err := s.SaveModelMetadata(ctx, model.ModelMetadata{
			ModelType:    "arrival_time",
			ModelVersion: time.Now().Add(time.Duration(i) * time.Second).Format("20060102_150405"),
		})
		if err != nil {
			t.Fatalf("save %d: %v", i, err)
		}
	}
	if err := s.SaveModelMetadata(ctx, model.ModelMetadata{ModelType: "delay_probability"}); err != nil {
		t.Fatalf("save other type: %v", err)
	}

	active := 0
	for _, md := range s.Metadata() {
		if md.ModelType == "arrival_time" && md.Active {
			active++
		}
	}
	if active != 1 {
		t.Fatalf("active arrival_time rows = %d", active)
	}
	md, err := s.ActiveModelMetadata(ctx, "arrival_time")
	if err != nil || md == nil {
		t.Fatalf("active lookup: md=%v err=%v", md, err)
	}
	other, err := s.ActiveModelMetadata(ctx, "delay_probability")
	if err != nil || other == nil || !other.Active {
		t.Fatalf("other type should stay active: %v", other)
	}
	if missing, _ := s.ActiveModelMetadata(ctx, "status_transition"); missing != nil {
		t.Fatal("expected nil for untrained type")
	}
}

func TestSweepCandidates_FilterAndJoins(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()
	at := time.Now()
	s.SeedTanker(newTanker("TNK-001", model.StatusInTransit, at))
	s.SeedTanker(newTanker("TNK-002", model.StatusLoading, at))

	out, err := s.SweepCandidates(ctx, []model.Status{model.StatusInTransit})
	if err != nil {
		t.Fatalf("candidates: %v", err)
	}
	if len(out) != 1 || out[0].TankerID != "TNK-001" {
		t.Fatalf("unexpected candidates %+v", out)
	}
	if out[0].DepotLocation == nil || out[0].DestLocation == nil {
		t.Fatal("route coordinates missing")
	}
}

// Package store contains the in-memory implementation of the
// persistence surfaces consumed by the fleet and ml packages. It backs
// tests and degraded single-process runs; the durable implementation
// lives in infra/postgres.
package store

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/tankerfleet/tankerfleet/core/model"
)

// MemoryStore keeps the whole entity store in process memory, guarded
// by one mutex. History is append-only, mirroring the durable schema.
type MemoryStore struct {
	mu       sync.RWMutex
	tankers  map[string]model.Tanker // keyed by lower-cased tanker id
	history  []model.HistoryRow
	metadata []model.ModelMetadata
	nextMeta uint
}

// NewMemoryStore returns an empty MemoryStore.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{tankers: map[string]model.Tanker{}, nextMeta: 1}
}

func key(id string) string { return strings.ToLower(id) }

// TankerIDs returns all known tanker identifiers.
func (s *MemoryStore) TankerIDs(ctx context.Context) ([]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	ids := make([]string, 0, len(s.tankers))
	for _, t := range s.tankers {
		ids = append(ids, t.TankerID)
	}
	sort.Strings(ids)
	return ids, nil
}

// UpsertTanker inserts or updates a tanker by case-insensitive
// identifier, preserving StatusChangedAt when the status is unchanged,
// and appends one history snapshot.
func (s *MemoryStore) UpsertTanker(ctx context.Context, t model.Tanker) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	prev, exists := s.tankers[key(t.TankerID)]
	if exists {
		t.TankerID = prev.TankerID
		if prev.Status == t.Status {
			t.StatusChangedAt = prev.StatusChangedAt
		}
	}
	s.tankers[key(t.TankerID)] = t
	s.appendHistory(t, t.LastUpdate)
	return !exists, nil
}

// SeedTanker stores a tanker without touching history. Intended for
// tests that need precise pre-existing state.
func (s *MemoryStore) SeedTanker(t model.Tanker) {
	s.mu.Lock()
	s.tankers[key(t.TankerID)] = t
	s.mu.Unlock()
}

// Tanker returns a copy of the stored tanker, or nil when unknown.
func (s *MemoryStore) Tanker(id string) *model.Tanker {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if t, ok := s.tankers[key(id)]; ok {
		return &t
	}
	return nil
}

// CurrentTanker implements the inference lookup: case-insensitive, nil
// result (not an error) when the tanker is unknown.
func (s *MemoryStore) CurrentTanker(ctx context.Context, id string) (*model.Tanker, error) {
	return s.Tanker(id), nil
}

// SweepCandidates returns tankers whose status is in the given set,
// joined with their route coordinates.
func (s *MemoryStore) SweepCandidates(ctx context.Context, statuses []model.Status) ([]model.SweepCandidate, error) {
	wanted := make(map[model.Status]bool, len(statuses))
	for _, st := range statuses {
		wanted[st] = true
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []model.SweepCandidate
	for _, t := range s.tankers {
		if !wanted[t.Status] {
			continue
		}
		c := model.SweepCandidate{
			TankerID:        t.TankerID,
			Status:          t.Status,
			Location:        t.Location,
			StatusChangedAt: t.StatusChangedAt,
		}
		if t.SourceDepot != "" {
			dl := t.DepotLocation
			c.DepotLocation = &dl
		}
		if t.Destination != "" {
			dl := t.DestLocation
			c.DestLocation = &dl
		}
		out = append(out, c)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].TankerID < out[j].TankerID })
	return out, nil
}

// ApplyTransitions applies the batch atomically: either every tanker
// update and history append happens, or none do.
func (s *MemoryStore) ApplyTransitions(ctx context.Context, transitions []model.Transition) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, tr := range transitions {
		if _, ok := s.tankers[key(tr.TankerID)]; !ok {
			return &UnknownTankerError{TankerID: tr.TankerID}
		}
	}
	for _, tr := range transitions {
		t := s.tankers[key(tr.TankerID)]
		t.Status = tr.To
		t.Location = tr.Location
		t.Seal = tr.Seal
		t.StatusChangedAt = tr.At
		t.LastUpdate = tr.At
		s.tankers[key(tr.TankerID)] = t
		s.appendHistory(t, tr.At)
	}
	return nil
}

// HistoryWindow returns history rows recorded at or after since,
// ordered by tanker id then recording time.
func (s *MemoryStore) HistoryWindow(ctx context.Context, since time.Time) ([]model.HistoryRow, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []model.HistoryRow
	for _, h := range s.history {
		if !h.RecordedAt.Before(since) {
			out = append(out, h)
		}
	}
	sort.SliceStable(out, func(i, j int) bool {
		if out[i].TankerID != out[j].TankerID {
			return out[i].TankerID < out[j].TankerID
		}
		return out[i].RecordedAt.Before(out[j].RecordedAt)
	})
	return out, nil
}

// HistoryLen returns the number of stored history rows.
func (s *MemoryStore) HistoryLen() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.history)
}

// AppendHistory stores a raw history row. Intended for tests seeding
// training windows.
func (s *MemoryStore) AppendHistory(h model.HistoryRow) {
	s.mu.Lock()
	s.history = append(s.history, h)
	s.mu.Unlock()
}

func (s *MemoryStore) appendHistory(t model.Tanker, at time.Time) {
	h := model.HistoryRow{
		TankerID:          t.TankerID,
		Status:            t.Status,
		Location:          t.Location,
		OilVolumeLiters:   t.OilVolumeLiters,
		MaxCapacityLiters: t.MaxCapacityLiters,
		TripDurationHours: t.TripDurationHours,
		AvgSpeedKmh:       t.AvgSpeedKmh,
		RecordedAt:        at,
		SourceDepot:       t.SourceDepot,
		Destination:       t.Destination,
		DriverName:        t.DriverName,
	}
	if t.Destination != "" {
		dl := t.DestLocation
		h.DestLocation = &dl
	}
	s.history = append(s.history, h)
}

// SaveModelMetadata deactivates previously active rows of the same
// model type, then appends the new row as active.
func (s *MemoryStore) SaveModelMetadata(ctx context.Context, md model.ModelMetadata) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i := range s.metadata {
		if s.metadata[i].ModelType == md.ModelType {
			s.metadata[i].Active = false
		}
	}
	md.ID = s.nextMeta
	s.nextMeta++
	md.Active = true
	s.metadata = append(s.metadata, md)
	return nil
}

// ActiveModelMetadata returns the single active metadata row for the
// model type, or nil when none exists.
func (s *MemoryStore) ActiveModelMetadata(ctx context.Context, modelType string) (*model.ModelMetadata, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for i := len(s.metadata) - 1; i >= 0; i-- {
		if s.metadata[i].ModelType == modelType && s.metadata[i].Active {
			md := s.metadata[i]
			return &md, nil
		}
	}
	return nil, nil
}

// Metadata returns a copy of all metadata rows, newest last.
func (s *MemoryStore) Metadata() []model.ModelMetadata {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]model.ModelMetadata, len(s.metadata))
	copy(out, s.metadata)
	return out
}

// UnknownTankerError reports a transition referencing a missing tanker.
type UnknownTankerError struct {
	TankerID string
}

func (e *UnknownTankerError) Error() string {
	return "unknown tanker " + e.TankerID
}

package ml

import (
	"context"
	"math"

	"github.com/tankerfleet/tankerfleet/core/model"
)

// PredictArrivalTime estimates the remaining trip duration in hours for
// the tanker. The second return is false when no prediction is
// available: unknown tanker, no trained model on disk, or a store
// error. Failures are logged, never surfaced to callers.
func (p *Pipeline) PredictArrivalTime(ctx context.Context, tankerID string) (float64, bool) {
	m := p.model(ctx, ModelArrivalTime)
	if m == nil {
		return 0, false
	}
	x, ok := p.inferenceRow(ctx, tankerID, m)
	if !ok {
		return 0, false
	}
	pred := m.forest.Predict(x)
	return math.Max(0, pred), true
}

// PredictDelayProbability returns the probability mass the delay
// classifier assigns to the positive class, or false when no prediction
// is available.
func (p *Pipeline) PredictDelayProbability(ctx context.Context, tankerID string) (float64, bool) {
	m := p.model(ctx, ModelDelayProbability)
	if m == nil {
		return 0, false
	}
	x, ok := p.inferenceRow(ctx, tankerID, m)
	if !ok {
		return 0, false
	}
	return m.forest.ClassProba(x, delayPositiveClass), true
}

// PredictNextStatus returns the most likely next status for the tanker,
// or false when no prediction is available.
func (p *Pipeline) PredictNextStatus(ctx context.Context, tankerID string) (model.Status, bool) {
	m := p.model(ctx, ModelStatusTransition)
	if m == nil {
		return "", false
	}
	x, ok := p.inferenceRow(ctx, tankerID, m)
	if !ok {
		return "", false
	}
	return model.Status(m.forest.PredictClass(x)), true
}

// model returns the cached model for the type, lazily loading the
// artifact pair and the active metadata schema on first use. A nil
// return means no prediction is available; that is a normal outcome,
// not an error.
func (p *Pipeline) model(ctx context.Context, modelType string) *loadedModel {
	p.mu.Lock()
	defer p.mu.Unlock()
	if m, ok := p.models[modelType]; ok {
		return m
	}
	forest, scaler, found, err := p.registry.Load(modelType)
	if err != nil {
		p.log.Warnf("load %s artifact: %v", modelType, err)
		return nil
	}
	if !found {
		return nil
	}
	md, err := p.store.ActiveModelMetadata(ctx, modelType)
	if err != nil {
		p.log.Warnf("load %s metadata: %v", modelType, err)
		return nil
	}
	if md == nil {
		p.log.Warnf("%s artifact exists but no active metadata; cannot align features", modelType)
		return nil
	}
	m := &loadedModel{forest: forest, scaler: scaler, columns: md.FeatureColumns}
	p.models[modelType] = m
	p.log.Infof("loaded %s model version %s", modelType, md.ModelVersion)
	return m
}

// inferenceRow builds a single scaled feature vector from the tanker's
// current joined state, aligned to the model's training schema. Columns
// the current state cannot produce stay zero.
func (p *Pipeline) inferenceRow(ctx context.Context, tankerID string, m *loadedModel) ([]float64, bool) {
	t, err := p.store.CurrentTanker(ctx, tankerID)
	if err != nil {
		p.log.Warnf("lookup tanker %s: %v", tankerID, err)
		return nil, false
	}
	if t == nil {
		return nil, false
	}
	row := AlignRow(tankerFeatureMap(t), m.columns)
	return m.scaler.TransformRow(row), true
}

// tankerFeatureMap applies the training encoding rules to a tanker's
// current state. History-derived features (time since last row, status
// dwell accumulator) have no current-state analogue and are left
// absent, aligning to zero.
func tankerFeatureMap(t *model.Tanker) map[string]float64 {
	dist := 0.0
	if t.Destination != "" {
		dist = math.Abs(t.Location.Lat-t.DestLocation.Lat) + math.Abs(t.Location.Lon-t.DestLocation.Lon)
	}
	m := map[string]float64{
		"location_lat":        t.Location.Lat,
		"location_lon":        t.Location.Lon,
		"oil_volume_liters":   t.OilVolumeLiters,
		"max_capacity_liters": t.MaxCapacityLiters,
		"trip_duration_hours": t.TripDurationHours,
		"avg_speed_kmh":       t.AvgSpeedKmh,
		"distance_to_dest":    dist,
		"hour_of_day":         float64(t.LastUpdate.Hour()),
		"day_of_week":         float64(t.LastUpdate.Weekday()),
	}
	m["status_"+string(t.Status)] = 1
	if t.SourceDepot == "" {
		m["depot_unknown"] = 1
	} else {
		m["depot_"+t.SourceDepot] = 1
	}
	if t.Destination == "" {
		m["dest_unknown"] = 1
	} else {
		m["dest_"+t.Destination] = 1
	}
	return m
}

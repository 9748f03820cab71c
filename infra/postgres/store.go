package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"gorm.io/gorm"

	"github.com/tankerfleet/tankerfleet/core/logger"
	"github.com/tankerfleet/tankerfleet/core/model"
)

// Store implements the persistence surfaces of core/fleet and core/ml
// on top of gorm.
type Store struct {
	db  *gorm.DB
	log logger.Logger
}

// NewStore wraps an open database handle.
func NewStore(db *gorm.DB, log logger.Logger) *Store {
	return &Store{db: db, log: log}
}

// Migrate creates or updates every table. It is idempotent and runs at
// startup.
func (s *Store) Migrate() error {
	return s.db.AutoMigrate(
		&Driver{}, &Depot{}, &Destination{},
		&Tanker{}, &TankerHistory{}, &ModelMetadata{},
	)
}

// TankerIDs returns every known tanker identifier.
func (s *Store) TankerIDs(ctx context.Context) ([]string, error) {
	var ids []string
	if err := s.db.WithContext(ctx).Model(&Tanker{}).Pluck("tanker_id", &ids).Error; err != nil {
		return nil, err
	}
	return ids, nil
}

// UpsertTanker resolves the driver, depot and destination references
// (creating them by name when missing), inserts or updates the tanker
// row by case-insensitive identifier, and appends one history snapshot.
// status_changed_at is preserved unless the status value actually
// differs from the stored one. The whole operation is one transaction.
func (s *Store) UpsertTanker(ctx context.Context, t model.Tanker) (bool, error) {
	created := false
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		driverID, err := s.driverID(tx, t.DriverName)
		if err != nil {
			return err
		}
		depotID, err := s.depotID(tx, t.SourceDepot, t.DepotLocation)
		if err != nil {
			return err
		}
		destID, err := s.destinationID(tx, t.Destination, t.DestLocation)
		if err != nil {
			return err
		}

		var existing Tanker
		err = tx.Where("LOWER(tanker_id) = LOWER(?)", t.TankerID).First(&existing).Error
		switch {
		case errors.Is(err, gorm.ErrRecordNotFound):
			created = true
			row := Tanker{
				TankerID:           t.TankerID,
				DriverID:           driverID,
				CurrentStatus:      string(t.Status),
				CurrentLocationLat: t.Location.Lat,
				CurrentLocationLon: t.Location.Lon,
				SourceDepotID:      depotID,
				DestinationID:      destID,
				SealStatus:         string(t.Seal),
				OilVolumeLiters:    t.OilVolumeLiters,
				MaxCapacityLiters:  t.MaxCapacityLiters,
				TripDurationHours:  t.TripDurationHours,
				AvgSpeedKmh:        t.AvgSpeedKmh,
				LastUpdate:         t.LastUpdate,
				StatusChangedAt:    t.StatusChangedAt,
			}
			if err := tx.Create(&row).Error; err != nil {
				return err
			}
			existing = row
		case err != nil:
			return err
		default:
			updates := map[string]any{
				"driver_id":            driverID,
				"current_status":       string(t.Status),
				"current_location_lat": t.Location.Lat,
				"current_location_lon": t.Location.Lon,
				"source_depot_id":      depotID,
				"destination_id":       destID,
				"seal_status":          string(t.Seal),
				"oil_volume_liters":    t.OilVolumeLiters,
				"max_capacity_liters":  t.MaxCapacityLiters,
				"trip_duration_hours":  t.TripDurationHours,
				"avg_speed_kmh":        t.AvgSpeedKmh,
				"last_update":          t.LastUpdate,
			}
			if existing.CurrentStatus != string(t.Status) {
				updates["status_changed_at"] = t.StatusChangedAt
			}
			if err := tx.Model(&Tanker{}).Where("id = ?", existing.ID).Updates(updates).Error; err != nil {
				return err
			}
		}

		hist := TankerHistory{
			TankerID:          existing.TankerID,
			DriverID:          driverID,
			Status:            string(t.Status),
			LocationLat:       t.Location.Lat,
			LocationLon:       t.Location.Lon,
			SourceDepotID:     depotID,
			DestinationID:     destID,
			SealStatus:        string(t.Seal),
			OilVolumeLiters:   t.OilVolumeLiters,
			MaxCapacityLiters: t.MaxCapacityLiters,
			TripDurationHours: t.TripDurationHours,
			AvgSpeedKmh:       t.AvgSpeedKmh,
			RecordedAt:        t.LastUpdate,
		}
		return tx.Create(&hist).Error
	})
	return created, err
}

func (s *Store) driverID(tx *gorm.DB, name string) (*uint, error) {
	if name == "" {
		return nil, nil
	}
	var d Driver
	if err := tx.Where(Driver{DriverName: name}).FirstOrCreate(&d).Error; err != nil {
		return nil, fmt.Errorf("resolve driver %q: %w", name, err)
	}
	return &d.DriverID, nil
}

func (s *Store) depotID(tx *gorm.DB, name string, loc model.Location) (*uint, error) {
	if name == "" {
		return nil, nil
	}
	var d Depot
	err := tx.Where(Depot{DepotName: name}).
		Attrs(Depot{LocationLat: loc.Lat, LocationLon: loc.Lon}).
		FirstOrCreate(&d).Error
	if err != nil {
		return nil, fmt.Errorf("resolve depot %q: %w", name, err)
	}
	return &d.DepotID, nil
}

func (s *Store) destinationID(tx *gorm.DB, name string, loc model.Location) (*uint, error) {
	if name == "" {
		return nil, nil
	}
	var d Destination
	err := tx.Where(Destination{DestinationName: name}).
		Attrs(Destination{LocationLat: loc.Lat, LocationLon: loc.Lon}).
		FirstOrCreate(&d).Error
	if err != nil {
		return nil, fmt.Errorf("resolve destination %q: %w", name, err)
	}
	return &d.DestinationID, nil
}

type sweepRow struct {
	TankerID        string
	CurrentStatus   string
	LocationLat     float64
	LocationLon     float64
	StatusChangedAt time.Time
	DepotLat        *float64
	DepotLon        *float64
	DestLat         *float64
	DestLon         *float64
}

// SweepCandidates returns tankers in the given statuses joined with
// their depot and destination coordinates.
func (s *Store) SweepCandidates(ctx context.Context, statuses []model.Status) ([]model.SweepCandidate, error) {
	names := make([]string, len(statuses))
	for i, st := range statuses {
		names[i] = string(st)
	}
	var rows []sweepRow
	err := s.db.WithContext(ctx).Table("tankers t").
		Select(`t.tanker_id, t.current_status,
			t.current_location_lat AS location_lat, t.current_location_lon AS location_lon,
			t.status_changed_at,
			dep.location_lat AS depot_lat, dep.location_lon AS depot_lon,
			dest.location_lat AS dest_lat, dest.location_lon AS dest_lon`).
		Joins("LEFT JOIN depots dep ON t.source_depot_id = dep.depot_id").
		Joins("LEFT JOIN destinations dest ON t.destination_id = dest.destination_id").
		Where("t.current_status IN ?", names).
		Scan(&rows).Error
	if err != nil {
		return nil, err
	}

	out := make([]model.SweepCandidate, len(rows))
	for i, r := range rows {
		c := model.SweepCandidate{
			TankerID:        r.TankerID,
			Status:          model.Status(r.CurrentStatus),
			Location:        model.Location{Lat: r.LocationLat, Lon: r.LocationLon},
			StatusChangedAt: r.StatusChangedAt,
		}
		if r.DepotLat != nil && r.DepotLon != nil {
			c.DepotLocation = &model.Location{Lat: *r.DepotLat, Lon: *r.DepotLon}
		}
		if r.DestLat != nil && r.DestLon != nil {
			c.DestLocation = &model.Location{Lat: *r.DestLat, Lon: *r.DestLon}
		}
		out[i] = c
	}
	return out, nil
}

// ApplyTransitions applies the batch in one transaction: every tanker
// update together with its history snapshot, or nothing at all.
func (s *Store) ApplyTransitions(ctx context.Context, transitions []model.Transition) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		for _, tr := range transitions {
			var row Tanker
			if err := tx.Where("LOWER(tanker_id) = LOWER(?)", tr.TankerID).First(&row).Error; err != nil {
				return fmt.Errorf("tanker %s: %w", tr.TankerID, err)
			}
			updates := map[string]any{
				"current_status":       string(tr.To),
				"current_location_lat": tr.Location.Lat,
				"current_location_lon": tr.Location.Lon,
				"seal_status":          string(tr.Seal),
				"status_changed_at":    tr.At,
				"last_update":          tr.At,
			}
			if err := tx.Model(&Tanker{}).Where("id = ?", row.ID).Updates(updates).Error; err != nil {
				return fmt.Errorf("update tanker %s: %w", tr.TankerID, err)
			}
			hist := TankerHistory{
				TankerID:          row.TankerID,
				DriverID:          row.DriverID,
				Status:            string(tr.To),
				LocationLat:       tr.Location.Lat,
				LocationLon:       tr.Location.Lon,
				SourceDepotID:     row.SourceDepotID,
				DestinationID:     row.DestinationID,
				SealStatus:        string(tr.Seal),
				OilVolumeLiters:   row.OilVolumeLiters,
				MaxCapacityLiters: row.MaxCapacityLiters,
				TripDurationHours: row.TripDurationHours,
				AvgSpeedKmh:       row.AvgSpeedKmh,
				RecordedAt:        tr.At,
			}
			if err := tx.Create(&hist).Error; err != nil {
				return fmt.Errorf("history for %s: %w", tr.TankerID, err)
			}
		}
		return nil
	})
}

type historyScan struct {
	TankerID          string
	Status            string
	LocationLat       float64
	LocationLon       float64
	OilVolumeLiters   float64
	MaxCapacityLiters float64
	TripDurationHours float64
	AvgSpeedKmh       float64
	RecordedAt        time.Time
	SourceDepot       *string
	Destination       *string
	DriverName        *string
	DestLat           *float64
	DestLon           *float64
}

// HistoryWindow loads history rows recorded at or after since, joined
// with depot, destination and driver names, ordered by tanker then
// recording time.
func (s *Store) HistoryWindow(ctx context.Context, since time.Time) ([]model.HistoryRow, error) {
	var rows []historyScan
	err := s.db.WithContext(ctx).Table("tanker_history h").
		Select(`h.tanker_id, h.status,
			h.location_lat, h.location_lon,
			h.oil_volume_liters, h.max_capacity_liters,
			h.trip_duration_hours, h.avg_speed_kmh, h.recorded_at,
			dep.depot_name AS source_depot,
			dest.destination_name AS destination,
			dr.driver_name,
			dest.location_lat AS dest_lat, dest.location_lon AS dest_lon`).
		Joins("LEFT JOIN depots dep ON h.source_depot_id = dep.depot_id").
		Joins("LEFT JOIN destinations dest ON h.destination_id = dest.destination_id").
		Joins("LEFT JOIN drivers dr ON h.driver_id = dr.driver_id").
		Where("h.recorded_at >= ?", since).
		Order("h.tanker_id, h.recorded_at").
		Scan(&rows).Error
	if err != nil {
		return nil, err
	}

	out := make([]model.HistoryRow, len(rows))
	for i, r := range rows {
		h := model.HistoryRow{
			TankerID:          r.TankerID,
			Status:            model.Status(r.Status),
			Location:          model.Location{Lat: r.LocationLat, Lon: r.LocationLon},
			OilVolumeLiters:   r.OilVolumeLiters,
			MaxCapacityLiters: r.MaxCapacityLiters,
			TripDurationHours: r.TripDurationHours,
			AvgSpeedKmh:       r.AvgSpeedKmh,
			RecordedAt:        r.RecordedAt,
		}
		if r.SourceDepot != nil {
			h.SourceDepot = *r.SourceDepot
		}
		if r.Destination != nil {
			h.Destination = *r.Destination
		}
		if r.DriverName != nil {
			h.DriverName = *r.DriverName
		}
		if r.DestLat != nil && r.DestLon != nil {
			h.DestLocation = &model.Location{Lat: *r.DestLat, Lon: *r.DestLon}
		}
		out[i] = h
	}
	return out, nil
}

type currentScan struct {
	TankerID           string
	CurrentStatus      string
	CurrentLocationLat float64
	CurrentLocationLon float64
	OilVolumeLiters    float64
	MaxCapacityLiters  float64
	TripDurationHours  float64
	AvgSpeedKmh        float64
	LastUpdate         time.Time
	StatusChangedAt    time.Time
	SourceDepot        *string
	DepotLat           *float64
	DepotLon           *float64
	Destination        *string
	DestLat            *float64
	DestLon            *float64
	DriverName         *string
}

// CurrentTanker returns the tanker's current joined state by
// case-insensitive identifier, or nil when no such tanker exists.
func (s *Store) CurrentTanker(ctx context.Context, tankerID string) (*model.Tanker, error) {
	var r currentScan
	err := s.db.WithContext(ctx).Table("tankers t").
		Select(`t.tanker_id, t.current_status,
			t.current_location_lat, t.current_location_lon,
			t.oil_volume_liters, t.max_capacity_liters,
			t.trip_duration_hours, t.avg_speed_kmh,
			t.last_update, t.status_changed_at,
			dep.depot_name AS source_depot, dep.location_lat AS depot_lat, dep.location_lon AS depot_lon,
			dest.destination_name AS destination, dest.location_lat AS dest_lat, dest.location_lon AS dest_lon,
			dr.driver_name`).
		Joins("LEFT JOIN depots dep ON t.source_depot_id = dep.depot_id").
		Joins("LEFT JOIN destinations dest ON t.destination_id = dest.destination_id").
		Joins("LEFT JOIN drivers dr ON t.driver_id = dr.driver_id").
		Where("LOWER(t.tanker_id) = LOWER(?)", tankerID).
		Take(&r).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	t := &model.Tanker{
		TankerID:          r.TankerID,
		Status:            model.Status(r.CurrentStatus),
		Location:          model.Location{Lat: r.CurrentLocationLat, Lon: r.CurrentLocationLon},
		OilVolumeLiters:   r.OilVolumeLiters,
		MaxCapacityLiters: r.MaxCapacityLiters,
		TripDurationHours: r.TripDurationHours,
		AvgSpeedKmh:       r.AvgSpeedKmh,
		LastUpdate:        r.LastUpdate,
		StatusChangedAt:   r.StatusChangedAt,
		Seal:              model.SealFor(model.Status(r.CurrentStatus)),
	}
	if r.SourceDepot != nil {
		t.SourceDepot = *r.SourceDepot
		if r.DepotLat != nil && r.DepotLon != nil {
			t.DepotLocation = model.Location{Lat: *r.DepotLat, Lon: *r.DepotLon}
		}
	}
	if r.Destination != nil {
		t.Destination = *r.Destination
		if r.DestLat != nil && r.DestLon != nil {
			t.DestLocation = model.Location{Lat: *r.DestLat, Lon: *r.DestLon}
		}
	}
	if r.DriverName != nil {
		t.DriverName = *r.DriverName
	}
	return t, nil
}

// SaveModelMetadata deactivates previously active rows of the model
// type and inserts the new row as active, in one transaction. A missing
// metadata table is self-healed by migrating and retrying once.
func (s *Store) SaveModelMetadata(ctx context.Context, md model.ModelMetadata) error {
	op := func() error {
		return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
			if err := tx.Model(&ModelMetadata{}).
				Where("model_type = ?", md.ModelType).
				Update("is_active", false).Error; err != nil {
				return err
			}
			metricsJSON, err := json.Marshal(map[string]any{
				"metric_type":  md.MetricType,
				"metric_value": md.MetricValue,
			})
			if err != nil {
				return err
			}
			columnsJSON, err := json.Marshal(md.FeatureColumns)
			if err != nil {
				return err
			}
			row := ModelMetadata{
				ModelType:       md.ModelType,
				ModelVersion:    md.ModelVersion,
				TrainingDate:    md.TrainingDate,
				AccuracyMetrics: metricsJSON,
				FeatureColumns:  columnsJSON,
				ModelPath:       md.ModelPath,
				IsActive:        true,
			}
			return tx.Create(&row).Error
		})
	}
	return s.withMetadataTable(op)
}

// ActiveModelMetadata returns the single active metadata row for the
// model type, or nil when none exists.
func (s *Store) ActiveModelMetadata(ctx context.Context, modelType string) (*model.ModelMetadata, error) {
	var out *model.ModelMetadata
	op := func() error {
		var row ModelMetadata
		err := s.db.WithContext(ctx).
			Where("model_type = ? AND is_active = ?", modelType, true).
			Order("id DESC").
			First(&row).Error
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil
		}
		if err != nil {
			return err
		}
		md := model.ModelMetadata{
			ID:           row.ID,
			ModelType:    row.ModelType,
			ModelVersion: row.ModelVersion,
			TrainingDate: row.TrainingDate,
			ModelPath:    row.ModelPath,
			Active:       row.IsActive,
		}
		var m struct {
			MetricType  string  `json:"metric_type"`
			MetricValue float64 `json:"metric_value"`
		}
		if len(row.AccuracyMetrics) > 0 {
			if err := json.Unmarshal(row.AccuracyMetrics, &m); err != nil {
				return fmt.Errorf("decode accuracy metrics: %w", err)
			}
			md.MetricType = m.MetricType
			md.MetricValue = m.MetricValue
		}
		if len(row.FeatureColumns) > 0 {
			if err := json.Unmarshal(row.FeatureColumns, &md.FeatureColumns); err != nil {
				return fmt.Errorf("decode feature columns: %w", err)
			}
		}
		out = &md
		return nil
	}
	if err := s.withMetadataTable(op); err != nil {
		return nil, err
	}
	return out, nil
}

// withMetadataTable runs op, and on a missing-table error migrates the
// metadata table and retries once. The table is optional in older
// deployments, so it is repaired rather than treated as fatal.
func (s *Store) withMetadataTable(op func() error) error {
	err := op()
	if err == nil || !isMissingTable(err) {
		return err
	}
	s.log.Warnf("model metadata table missing, creating it: %v", err)
	if merr := s.db.AutoMigrate(&ModelMetadata{}); merr != nil {
		return fmt.Errorf("create metadata table: %w", merr)
	}
	return op()
}

func isMissingTable(err error) bool {
	msg := strings.ToLower(err.Error())
	return strings.Contains(msg, "does not exist") || strings.Contains(msg, "42p01")
}

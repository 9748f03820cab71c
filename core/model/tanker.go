package model

import (
	"fmt"
	"time"
)

// Status represents the lifecycle state of a tanker.
type Status string

const (
	StatusAtSource    Status = "At Source"
	StatusLoading     Status = "Loading"
	StatusInTransit   Status = "In Transit"
	StatusReachedDest Status = "Reached Destination"
	StatusUnloading   Status = "Unloading"
	StatusDelayed     Status = "Delayed"
)

// AllStatuses lists every lifecycle state in transition order.
var AllStatuses = []Status{
	StatusAtSource,
	StatusLoading,
	StatusInTransit,
	StatusReachedDest,
	StatusUnloading,
	StatusDelayed,
}

// SealState indicates whether the cargo compartment seal is closed.
type SealState string

const (
	SealOpen   SealState = "Open"
	SealSealed SealState = "Sealed"
)

// SealFor returns the seal state mandated by a status. Cargo is sealed
// while in transit and at the destination, open otherwise.
func SealFor(s Status) SealState {
	if s == StatusInTransit || s == StatusReachedDest {
		return SealSealed
	}
	return SealOpen
}

// Location is a WGS84 coordinate pair.
type Location struct {
	Lat float64
	Lon float64
}

// Driver is a named operator resolved by name on upsert.
type Driver struct {
	ID   uint
	Name string
}

// Depot is a named loading site.
type Depot struct {
	ID       uint
	Name     string
	Location Location
}

// Destination is a named delivery site.
type Destination struct {
	ID       uint
	Name     string
	Location Location
}

// Tanker is the current state of one vehicle. One row per tanker,
// upserted by case-insensitive identifier.
type Tanker struct {
	TankerID          string
	DriverName        string
	Status            Status
	Location          Location
	SourceDepot       string
	DepotLocation     Location
	Destination       string
	DestLocation      Location
	Seal              SealState
	OilVolumeLiters   float64
	MaxCapacityLiters float64
	TripDurationHours float64
	AvgSpeedKmh       float64
	LastUpdate        time.Time
	StatusChangedAt   time.Time
}

// Validate checks that a synthesized record is internally consistent.
func (t Tanker) Validate() error {
	if t.TankerID == "" {
		return fmt.Errorf("tanker id is required")
	}
	if t.MaxCapacityLiters <= 0 {
		return fmt.Errorf("capacity must be positive")
	}
	if t.OilVolumeLiters > t.MaxCapacityLiters {
		return fmt.Errorf("volume %.2f exceeds capacity %.2f", t.OilVolumeLiters, t.MaxCapacityLiters)
	}
	return nil
}

// SweepCandidate is a tanker joined with its route coordinates, as read
// by the transition sweep. Route coordinates are nil when the tanker has
// no depot or destination reference.
type SweepCandidate struct {
	TankerID        string
	Status          Status
	Location        Location
	StatusChangedAt time.Time
	DepotLocation   *Location
	DestLocation    *Location
}

// Transition is the post-decision state applied to one tanker during a
// sweep. The store must apply the tanker update and the history append
// together.
type Transition struct {
	TankerID string
	From     Status
	To       Status
	Location Location
	Seal     SealState
	At       time.Time
}

// HistoryRow is one append-only snapshot joined with entity names, as
// consumed by the feature pipeline. Optional joins are empty strings
// and nil coordinates when the reference is missing.
type HistoryRow struct {
	TankerID          string
	Status            Status
	Location          Location
	OilVolumeLiters   float64
	MaxCapacityLiters float64
	TripDurationHours float64
	AvgSpeedKmh       float64
	RecordedAt        time.Time
	SourceDepot       string
	Destination       string
	DriverName        string
	DestLocation      *Location
}

// ModelMetadata is a versioned record of one training run. At most one
// row per model type is active.
type ModelMetadata struct {
	ID             uint
	ModelType      string
	ModelVersion   string
	TrainingDate   time.Time
	MetricType     string
	MetricValue    float64
	FeatureColumns []string
	ModelPath      string
	Active         bool
}

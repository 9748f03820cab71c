package postgres

import (
	"time"

	"gorm.io/datatypes"
)

// Driver is the drivers table, resolved by name on upsert.
type Driver struct {
	DriverID   uint   `gorm:"primaryKey;autoIncrement"`
	DriverName string `gorm:"uniqueIndex;size:128;not null"`
}

func (Driver) TableName() string { return "drivers" }

// Depot is the depots table.
type Depot struct {
	DepotID     uint   `gorm:"primaryKey;autoIncrement"`
	DepotName   string `gorm:"uniqueIndex;size:128;not null"`
	LocationLat float64
	LocationLon float64
}

func (Depot) TableName() string { return "depots" }

// Destination is the destinations table.
type Destination struct {
	DestinationID   uint   `gorm:"primaryKey;autoIncrement"`
	DestinationName string `gorm:"uniqueIndex;size:128;not null"`
	LocationLat     float64
	LocationLon     float64
}

func (Destination) TableName() string { return "destinations" }

// Tanker is the current-state table: one row per vehicle, upserted by
// case-insensitive identifier.
type Tanker struct {
	ID                 uint   `gorm:"primaryKey;autoIncrement"`
	TankerID           string `gorm:"uniqueIndex;size:32;not null"`
	DriverID           *uint
	CurrentStatus      string `gorm:"size:32;not null;index"`
	CurrentLocationLat float64
	CurrentLocationLon float64
	SourceDepotID      *uint
	DestinationID      *uint
	SealStatus         string `gorm:"size:16"`
	OilVolumeLiters    float64
	MaxCapacityLiters  float64
	TripDurationHours  float64
	AvgSpeedKmh        float64
	LastUpdate         time.Time
	StatusChangedAt    time.Time
	UpdatedAt          time.Time `gorm:"autoUpdateTime"`
}

func (Tanker) TableName() string { return "tankers" }

// TankerHistory is the append-only snapshot table. Rows are never
// updated or deleted; consumers bound reads with time windows.
type TankerHistory struct {
	HistoryID         uint   `gorm:"primaryKey;autoIncrement"`
	TankerID          string `gorm:"size:32;not null;index:idx_history_tanker_recorded,priority:1"`
	DriverID          *uint
	Status            string `gorm:"size:32;not null"`
	LocationLat       float64
	LocationLon       float64
	SourceDepotID     *uint
	DestinationID     *uint
	SealStatus        string `gorm:"size:16"`
	OilVolumeLiters   float64
	MaxCapacityLiters float64
	TripDurationHours float64
	AvgSpeedKmh       float64
	RecordedAt        time.Time `gorm:"index:idx_history_tanker_recorded,priority:2;index"`
}

func (TankerHistory) TableName() string { return "tanker_history" }

// ModelMetadata is the versioned model register. At most one row per
// model type is active; rows are never deleted.
type ModelMetadata struct {
	ID              uint   `gorm:"primaryKey;autoIncrement"`
	ModelType       string `gorm:"size:64;not null;index"`
	ModelVersion    string `gorm:"size:32"`
	TrainingDate    time.Time
	AccuracyMetrics datatypes.JSON
	FeatureColumns  datatypes.JSON
	ModelPath       string `gorm:"size:256"`
	IsActive        bool   `gorm:"index"`
}

func (ModelMetadata) TableName() string { return "ml_model_metadata" }

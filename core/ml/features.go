package ml

import (
	"math"
	"sort"
	"time"

	"gonum.org/v1/gonum/mat"

	"github.com/tankerfleet/tankerfleet/core/model"
)

// NumericColumns is the ordered numeric feature set shared by training
// and inference.
var NumericColumns = []string{
	"location_lat", "location_lon",
	"oil_volume_liters", "max_capacity_liters",
	"trip_duration_hours", "avg_speed_kmh",
	"distance_to_dest", "hour_of_day", "day_of_week",
	"time_since_last", "status_duration",
}

// Dataset is a windowed slice of history rows with derived per-row
// features. Derived slices are index-aligned with Rows.
type Dataset struct {
	Rows []model.HistoryRow

	DistanceToDest []float64
	HourOfDay      []float64
	DayOfWeek      []float64
	TimeSinceLast  []float64
	StatusDuration []float64
}

// BuildDataset sorts rows by tanker and recording time and derives the
// engineered features: a Manhattan distance proxy to the destination
// (falling back to the row's own position when the destination is
// unknown, so the value is never null), clock features, elapsed hours
// since the tanker's previous row, and the cumulative dwell within each
// maximal run of the same status.
func BuildDataset(rows []model.HistoryRow) *Dataset {
	sorted := make([]model.HistoryRow, len(rows))
	copy(sorted, rows)
	sort.SliceStable(sorted, func(i, j int) bool {
		if sorted[i].TankerID != sorted[j].TankerID {
			return sorted[i].TankerID < sorted[j].TankerID
		}
		return sorted[i].RecordedAt.Before(sorted[j].RecordedAt)
	})

	n := len(sorted)
	d := &Dataset{
		Rows:           sorted,
		DistanceToDest: make([]float64, n),
		HourOfDay:      make([]float64, n),
		DayOfWeek:      make([]float64, n),
		TimeSinceLast:  make([]float64, n),
		StatusDuration: make([]float64, n),
	}

	var prevTanker string
	var prevStatus model.Status
	var prevAt time.Time
	var dwell float64
	for i, r := range sorted {
		d.DistanceToDest[i] = manhattanDistance(r)
		d.HourOfDay[i] = float64(r.RecordedAt.Hour())
		d.DayOfWeek[i] = float64(r.RecordedAt.Weekday())

		sameTanker := r.TankerID == prevTanker
		if sameTanker {
			d.TimeSinceLast[i] = r.RecordedAt.Sub(prevAt).Hours()
		}
		if sameTanker && r.Status == prevStatus {
			dwell += d.TimeSinceLast[i]
		} else {
			dwell = d.TimeSinceLast[i]
		}
		d.StatusDuration[i] = dwell

		prevTanker = r.TankerID
		prevStatus = r.Status
		prevAt = r.RecordedAt
	}
	return d
}

// Len returns the number of rows in the dataset.
func (d *Dataset) Len() int { return len(d.Rows) }

// manhattanDistance is the crude |dlat|+|dlon| proxy used as a feature.
// It is not a physical distance; kept as-is for behavioural parity.
func manhattanDistance(r model.HistoryRow) float64 {
	destLat, destLon := r.Location.Lat, r.Location.Lon
	if r.DestLocation != nil {
		destLat, destLon = r.DestLocation.Lat, r.DestLocation.Lon
	}
	return math.Abs(r.Location.Lat-destLat) + math.Abs(r.Location.Lon-destLon)
}

// featureMap returns the full sparse encoding of row i: numeric
// features plus one-hot indicators for status, depot and destination.
// Missing depot or destination raises the corresponding unknown column.
func (d *Dataset) featureMap(i int) map[string]float64 {
	r := d.Rows[i]
	m := map[string]float64{
		"location_lat":        r.Location.Lat,
		"location_lon":        r.Location.Lon,
		"oil_volume_liters":   r.OilVolumeLiters,
		"max_capacity_liters": r.MaxCapacityLiters,
		"trip_duration_hours": r.TripDurationHours,
		"avg_speed_kmh":       r.AvgSpeedKmh,
		"distance_to_dest":    d.DistanceToDest[i],
		"hour_of_day":         d.HourOfDay[i],
		"day_of_week":         d.DayOfWeek[i],
		"time_since_last":     d.TimeSinceLast[i],
		"status_duration":     d.StatusDuration[i],
	}
	m["status_"+string(r.Status)] = 1
	if r.SourceDepot == "" {
		m["depot_unknown"] = 1
	} else {
		m["depot_"+r.SourceDepot] = 1
	}
	if r.Destination == "" {
		m["dest_unknown"] = 1
	} else {
		m["dest_"+r.Destination] = 1
	}
	return m
}

// Encoder fixes the ordered feature-column schema for one training run:
// numeric columns first, then one-hot status, depot and destination
// columns with explicit unknown indicators.
type Encoder struct {
	columns []string
}

// NewEncoder derives the column schema from the dataset's vocabulary.
func NewEncoder(d *Dataset) *Encoder {
	statuses := map[string]bool{}
	depots := map[string]bool{}
	dests := map[string]bool{}
	for _, r := range d.Rows {
		statuses[string(r.Status)] = true
		if r.SourceDepot != "" {
			depots[r.SourceDepot] = true
		}
		if r.Destination != "" {
			dests[r.Destination] = true
		}
	}

	cols := append([]string{}, NumericColumns...)
	for _, s := range sortedKeys(statuses) {
		cols = append(cols, "status_"+s)
	}
	for _, dep := range sortedKeys(depots) {
		cols = append(cols, "depot_"+dep)
	}
	cols = append(cols, "depot_unknown")
	for _, ds := range sortedKeys(dests) {
		cols = append(cols, "dest_"+ds)
	}
	cols = append(cols, "dest_unknown")
	return &Encoder{columns: cols}
}

// Columns returns the ordered schema. The slice is shared; callers must
// not modify it.
func (e *Encoder) Columns() []string { return e.columns }

// Matrix encodes the dataset rows at the given indices into a dense
// feature matrix following the encoder's schema.
func (e *Encoder) Matrix(d *Dataset, idx []int) *mat.Dense {
	X := mat.NewDense(len(idx), len(e.columns), nil)
	for out, i := range idx {
		X.SetRow(out, AlignRow(d.featureMap(i), e.columns))
	}
	return X
}

// AlignRow projects a sparse feature encoding onto an ordered column
// schema. Columns absent from the encoding are zero, which is how an
// inference row lines up with a model trained on a wider matrix.
func AlignRow(values map[string]float64, columns []string) []float64 {
	row := make([]float64, len(columns))
	for i, c := range columns {
		row[i] = values[c]
	}
	return row
}

func sortedKeys(m map[string]bool) []string {
	out := make([]string, 0, len(m))
	for k := range m {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}

package fleet

import (
	"context"
	"fmt"
	"math"
	"math/rand"
	"strconv"
	"strings"

	"github.com/tankerfleet/tankerfleet/core/logger"
	"github.com/tankerfleet/tankerfleet/core/metrics"
	"github.com/tankerfleet/tankerfleet/core/model"
)

// GeneratorStore is the persistence surface the simulation cycle needs.
// UpsertTanker resolves the driver, depot and destination references,
// preserves status_changed_at when the status value is unchanged, and
// appends one history snapshot. It reports whether a new row was created.
type GeneratorStore interface {
	TankerIDs(ctx context.Context) ([]string, error)
	UpsertTanker(ctx context.Context, t model.Tanker) (created bool, err error)
}

// IDPrefix is prepended to the zero-padded sequence number of generated
// tanker identifiers.
const IDPrefix = "TNK"

var driverPool = []string{
	"Jonas Berg", "Marta Kowalski", "Elias Visser", "Ana Petrova",
	"Henrik Dahl", "Lucia Romano", "Piet Janssen", "Clara Weber",
	"Mateusz Nowak", "Sofia Lind", "Arne Holm", "Teresa Costa",
}

var depotPool = []model.Depot{
	{Name: "Rotterdam", Location: model.Location{Lat: 51.9244, Lon: 4.4777}},
	{Name: "Antwerp", Location: model.Location{Lat: 51.2194, Lon: 4.4025}},
	{Name: "Hamburg", Location: model.Location{Lat: 53.5511, Lon: 9.9937}},
	{Name: "Marseille", Location: model.Location{Lat: 43.2965, Lon: 5.3698}},
	{Name: "Genoa", Location: model.Location{Lat: 44.4056, Lon: 8.9463}},
	{Name: "Gdansk", Location: model.Location{Lat: 54.3520, Lon: 18.6466}},
}

var destinationPool = []model.Destination{
	{Name: "Terminal North", Location: model.Location{Lat: 52.3676, Lon: 4.9041}},
	{Name: "Terminal East", Location: model.Location{Lat: 52.5200, Lon: 13.4050}},
	{Name: "Terminal South", Location: model.Location{Lat: 45.4642, Lon: 9.1900}},
	{Name: "Terminal West", Location: model.Location{Lat: 48.8566, Lon: 2.3522}},
	{Name: "Terminal Central", Location: model.Location{Lat: 50.1109, Lon: 8.6821}},
	{Name: "Terminal Baltic", Location: model.Location{Lat: 54.6872, Lon: 25.2797}},
}

var capacityPool = []float64{18000, 20000, 22000, 25000}

// Statuses a freshly synthesized record may start in.
var spawnStatuses = []model.Status{model.StatusAtSource, model.StatusInTransit, model.StatusLoading}

// Generator fabricates plausible tanker records and mutates existing
// ones, growing the fleet over time.
type Generator struct {
	store GeneratorStore
	rng   *rand.Rand
	clock Clock
	sink  metrics.Sink
	log   logger.Logger
}

// NewGenerator creates a Generator. A nil rng is seeded from the clock,
// a nil clock defaults to the system clock and a nil sink to the no-op
// sink.
func NewGenerator(store GeneratorStore, rng *rand.Rand, clock Clock, sink metrics.Sink, log logger.Logger) *Generator {
	if clock == nil {
		clock = SystemClock()
	}
	if rng == nil {
		rng = rand.New(rand.NewSource(clock.Now().UnixNano()))
	}
	if sink == nil {
		sink = metrics.NopSink{}
	}
	return &Generator{store: store, rng: rng, clock: clock, sink: sink, log: log}
}

// Cycle performs one generation pass: 1-3 operations, each either
// mutating a uniformly chosen existing tanker (probability 0.7) or
// creating a new one. A failed upsert is logged and does not abort the
// remaining operations.
func (g *Generator) Cycle(ctx context.Context) error {
	ids, err := g.store.TankerIDs(ctx)
	if err != nil {
		return fmt.Errorf("list tanker ids: %w", err)
	}

	ops := 1 + g.rng.Intn(3)
	for i := 0; i < ops; i++ {
		var rec model.Tanker
		if len(ids) > 0 && g.rng.Float64() < 0.7 {
			rec = g.Synthesize(ids[g.rng.Intn(len(ids))])
		} else {
			id := NextTankerID(ids)
			rec = g.Synthesize(id)
			ids = append(ids, id)
		}
		created, err := g.store.UpsertTanker(ctx, rec)
		if err != nil {
			g.log.Errorf("upsert tanker %s: %v", rec.TankerID, err)
			continue
		}
		g.sink.RecordGeneration(rec.TankerID, created)
		g.log.Debugw("generated tanker", map[string]any{
			"tanker_id": rec.TankerID,
			"status":    string(rec.Status),
			"created":   created,
		})
	}
	g.sink.RecordFleetSize(len(ids))
	return nil
}

// NextTankerID returns the identifier one past the highest numeric
// suffix among existing identifiers.
func NextTankerID(existing []string) string {
	maxNum := 0
	for _, id := range existing {
		idx := strings.Index(id, "-")
		if idx < 0 {
			continue
		}
		n, err := strconv.Atoi(id[idx+1:])
		if err != nil {
			continue
		}
		if n > maxNum {
			maxNum = n
		}
	}
	return fmt.Sprintf("%s-%03d", IDPrefix, maxNum+1)
}

// Synthesize fabricates a status-consistent record for the given
// identifier. Volume is a status-dependent fraction of capacity, the
// location sits at the depot or interpolated along the route, and trip
// metrics are nonzero only in transit.
func (g *Generator) Synthesize(tankerID string) model.Tanker {
	depot := depotPool[g.rng.Intn(len(depotPool))]
	dest := destinationPool[g.rng.Intn(len(destinationPool))]
	driver := driverPool[g.rng.Intn(len(driverPool))]
	status := spawnStatuses[g.rng.Intn(len(spawnStatuses))]
	capacity := capacityPool[g.rng.Intn(len(capacityPool))]

	var volume float64
	switch status {
	case model.StatusAtSource:
		volume = g.uniform(0, capacity*0.2)
	case model.StatusLoading:
		volume = g.uniform(capacity*0.5, capacity*0.8)
	default:
		volume = g.uniform(capacity*0.8, capacity*0.95)
	}

	loc := depot.Location
	if status == model.StatusInTransit {
		progress := g.uniform(0.2, 0.8)
		loc = model.Location{
			Lat: depot.Location.Lat + (dest.Location.Lat-depot.Location.Lat)*progress,
			Lon: depot.Location.Lon + (dest.Location.Lon-depot.Location.Lon)*progress,
		}
	}

	var tripHours, speed float64
	if status == model.StatusInTransit {
		tripHours = g.uniform(1.0, 6.0)
		speed = g.uniform(60, 80)
	}

	now := g.clock.Now()
	return model.Tanker{
		TankerID:          tankerID,
		DriverName:        driver,
		Status:            status,
		Location:          model.Location{Lat: round(loc.Lat, 6), Lon: round(loc.Lon, 6)},
		SourceDepot:       depot.Name,
		DepotLocation:     depot.Location,
		Destination:       dest.Name,
		DestLocation:      dest.Location,
		Seal:              model.SealFor(status),
		OilVolumeLiters:   round(volume, 2),
		MaxCapacityLiters: capacity,
		TripDurationHours: round(tripHours, 2),
		AvgSpeedKmh:       round(speed, 2),
		LastUpdate:        now,
		StatusChangedAt:   now,
	}
}

func (g *Generator) uniform(lo, hi float64) float64 {
	return lo + g.rng.Float64()*(hi-lo)
}

func round(v float64, places int) float64 {
	p := math.Pow10(places)
	return math.Round(v*p) / p
}

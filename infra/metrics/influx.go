package metrics

import (
	"context"
	"net/http"
	"strconv"
	"strings"
	"time"

	influxdb2 "github.com/influxdata/influxdb-client-go/v2"
	"github.com/influxdata/influxdb-client-go/v2/api"
	"github.com/influxdata/influxdb-client-go/v2/api/write"

	"github.com/tankerfleet/tankerfleet/core/logger"
	coremetrics "github.com/tankerfleet/tankerfleet/core/metrics"
)

// InfluxSink mirrors fleet events to an InfluxDB instance using the
// official client. Writes are best-effort; failures are logged and
// never surfaced to the simulation path.
type InfluxSink struct {
	client   influxdb2.Client
	writeAPI api.WriteAPIBlocking
	log      logger.Logger
}

// NewInfluxSink creates a sink configured for the given endpoint.
func NewInfluxSink(url, token, org, bucket string, log logger.Logger) *InfluxSink {
	base := strings.TrimSuffix(url, "/api/v2/write")
	client := influxdb2.NewClientWithOptions(base, token,
		influxdb2.DefaultOptions().SetHTTPClient(&http.Client{Timeout: 5 * time.Second}))
	return &InfluxSink{
		client:   client,
		writeAPI: client.WriteAPIBlocking(org, bucket),
		log:      log,
	}
}

// NewInfluxSinkWithFallback pings the InfluxDB instance and returns the
// no-op sink when the health check fails, so a missing telemetry store
// never blocks the simulator.
func NewInfluxSinkWithFallback(cfg coremetrics.Config, log logger.Logger) coremetrics.Sink {
	sink := NewInfluxSink(cfg.InfluxURL, cfg.InfluxToken, cfg.InfluxOrg, cfg.InfluxBucket, log)
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	health, err := sink.client.Health(ctx)
	if err != nil || health.Status != "pass" {
		if err != nil {
			log.Errorf("influx health check error: %v", err)
		} else {
			log.Errorf("influx health status: %s", health.Status)
		}
		sink.client.Close()
		return coremetrics.NopSink{}
	}
	return sink
}

// Close releases the underlying client.
func (s *InfluxSink) Close() { s.client.Close() }

func (s *InfluxSink) writePoint(p *write.Point) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := s.writeAPI.WritePoint(ctx, p); err != nil {
		s.log.Errorf("influx write: %v", err)
	}
}

// RecordGeneration writes one generation event point.
func (s *InfluxSink) RecordGeneration(tankerID string, created bool) {
	s.writePoint(write.NewPointWithMeasurement("fleet_generation").
		AddTag("tanker_id", tankerID).
		AddTag("created", strconv.FormatBool(created)).
		AddField("count", 1).
		SetTime(time.Now()))
}

// RecordTransition writes one status transition point.
func (s *InfluxSink) RecordTransition(from, to string) {
	s.writePoint(write.NewPointWithMeasurement("status_transition").
		AddTag("from", from).
		AddTag("to", to).
		AddField("count", 1).
		SetTime(time.Now()))
}

// RecordTraining writes one training outcome point.
func (s *InfluxSink) RecordTraining(modelType, outcome string, seconds float64) {
	s.writePoint(write.NewPointWithMeasurement("model_training").
		AddTag("model_type", modelType).
		AddTag("outcome", outcome).
		AddField("duration_seconds", seconds).
		SetTime(time.Now()))
}

// RecordFleetSize writes the current fleet size.
func (s *InfluxSink) RecordFleetSize(size int) {
	s.writePoint(write.NewPointWithMeasurement("fleet_size").
		AddField("tankers", size).
		SetTime(time.Now()))
}

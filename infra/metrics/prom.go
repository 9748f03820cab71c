package metrics

import (
	"strconv"

	"github.com/prometheus/client_golang/prometheus"

	coremetrics "github.com/tankerfleet/tankerfleet/core/metrics"
)

// PromSink records fleet simulation events in Prometheus metrics.
type PromSink struct {
	generations *prometheus.CounterVec
	transitions *prometheus.CounterVec
	trainings   *prometheus.CounterVec
	trainSecs   *prometheus.HistogramVec
	fleet       prometheus.Gauge
}

// NewPromSink registers fleet metrics on the default Prometheus
// registerer. The Prometheus server is started separately on
// cfg.PrometheusPort.
func NewPromSink(cfg coremetrics.Config) (coremetrics.Sink, error) {
	return NewPromSinkWithRegistry(cfg, prometheus.DefaultRegisterer)
}

// NewPromSinkWithRegistry registers metrics on the provided registerer.
// A nil registerer defaults to the global Prometheus registerer.
func NewPromSinkWithRegistry(cfg coremetrics.Config, reg prometheus.Registerer) (coremetrics.Sink, error) {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	generations := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "fleet_generation_ops_total",
		Help: "Total number of generation operations",
	}, []string{"created"})
	transitions := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "fleet_status_transitions_total",
		Help: "Total number of status transitions",
	}, []string{"from", "to"})
	trainings := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "ml_training_runs_total",
		Help: "Total number of model training attempts",
	}, []string{"model_type", "outcome"})
	trainSecs := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "ml_training_duration_seconds",
		Help:    "Time spent fitting one model",
		Buckets: prometheus.DefBuckets,
	}, []string{"model_type"})
	fleet := prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "fleet_tankers_total",
		Help: "Number of known tankers",
	})

	if err := reg.Register(generations); err != nil {
		if are, ok := err.(prometheus.AlreadyRegisteredError); ok {
			generations = are.ExistingCollector.(*prometheus.CounterVec)
		} else {
			return nil, err
		}
	}
	if err := reg.Register(transitions); err != nil {
		if are, ok := err.(prometheus.AlreadyRegisteredError); ok {
			transitions = are.ExistingCollector.(*prometheus.CounterVec)
		} else {
			return nil, err
		}
	}
	if err := reg.Register(trainings); err != nil {
		if are, ok := err.(prometheus.AlreadyRegisteredError); ok {
			trainings = are.ExistingCollector.(*prometheus.CounterVec)
		} else {
			return nil, err
		}
	}
	if err := reg.Register(trainSecs); err != nil {
		if are, ok := err.(prometheus.AlreadyRegisteredError); ok {
			trainSecs = are.ExistingCollector.(*prometheus.HistogramVec)
		} else {
			return nil, err
		}
	}
	if err := reg.Register(fleet); err != nil {
		if are, ok := err.(prometheus.AlreadyRegisteredError); ok {
			fleet = are.ExistingCollector.(prometheus.Gauge)
		} else {
			return nil, err
		}
	}

	return &PromSink{
		generations: generations,
		transitions: transitions,
		trainings:   trainings,
		trainSecs:   trainSecs,
		fleet:       fleet,
	}, nil
}

// RecordGeneration increments the generation counter.
func (s *PromSink) RecordGeneration(tankerID string, created bool) {
	s.generations.WithLabelValues(strconv.FormatBool(created)).Inc()
}

// RecordTransition increments the transition counter for the edge.
func (s *PromSink) RecordTransition(from, to string) {
	s.transitions.WithLabelValues(from, to).Inc()
}

// RecordTraining counts the attempt and observes its duration.
func (s *PromSink) RecordTraining(modelType, outcome string, seconds float64) {
	s.trainings.WithLabelValues(modelType, outcome).Inc()
	s.trainSecs.WithLabelValues(modelType).Observe(seconds)
}

// RecordFleetSize sets the fleet size gauge.
func (s *PromSink) RecordFleetSize(size int) {
	s.fleet.Set(float64(size))
}

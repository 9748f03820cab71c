package metrics

// Config holds settings for the metrics sinks.
type Config struct {
	PrometheusEnabled bool   `json:"prometheus_enabled"`
	PrometheusPort    string `json:"prometheus_port"`
	InfluxEnabled     bool   `json:"influx_enabled"`
	InfluxURL         string `json:"influx_url"`
	InfluxToken       string `json:"influx_token"`
	InfluxOrg         string `json:"influx_org"`
	InfluxBucket      string `json:"influx_bucket"`
}

// Training outcomes recorded by sinks.
const (
	OutcomeTrained      = "trained"
	OutcomeInsufficient = "insufficient_data"
	OutcomeError        = "error"
)

// Sink records fleet simulation and training events for observability.
type Sink interface {
	// RecordGeneration counts one generation operation; created reports
	// whether a new tanker row was inserted rather than updated.
	RecordGeneration(tankerID string, created bool)
	// RecordTransition counts one status transition edge.
	RecordTransition(from, to string)
	// RecordTraining records the outcome and duration of one model
	// training attempt.
	RecordTraining(modelType, outcome string, seconds float64)
	// RecordFleetSize sets the current number of known tankers.
	RecordFleetSize(size int)
}

// NopSink implements Sink with no-op methods.
type NopSink struct{}

func (NopSink) RecordGeneration(string, bool)          {}
func (NopSink) RecordTransition(string, string)        {}
func (NopSink) RecordTraining(string, string, float64) {}
func (NopSink) RecordFleetSize(int)                    {}

// MultiSink fans events out to multiple sinks.
type MultiSink struct {
	Sinks []Sink
}

// NewMultiSink creates a MultiSink with the provided sinks.
func NewMultiSink(sinks ...Sink) *MultiSink {
	return &MultiSink{Sinks: sinks}
}

func (m *MultiSink) RecordGeneration(id string, created bool) {
	for _, s := range m.Sinks {
		s.RecordGeneration(id, created)
	}
}

func (m *MultiSink) RecordTransition(from, to string) {
	for _, s := range m.Sinks {
		s.RecordTransition(from, to)
	}
}

func (m *MultiSink) RecordTraining(modelType, outcome string, seconds float64) {
	for _, s := range m.Sinks {
		s.RecordTraining(modelType, outcome, seconds)
	}
}

func (m *MultiSink) RecordFleetSize(size int) {
	for _, s := range m.Sinks {
		s.RecordFleetSize(size)
	}
}

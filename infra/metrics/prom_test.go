package metrics

import (
	"strings"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"

	coremetrics "github.com/tankerfleet/tankerfleet/core/metrics"
)

func TestPromSink_RecordsFleetEvents(t *testing.T) {
	reg := prometheus.NewRegistry()
	sinkIf, err := NewPromSinkWithRegistry(coremetrics.Config{}, reg)
	if err != nil {
		t.Fatalf("create sink: %v", err)
	}
	sink, ok := sinkIf.(*PromSink)
	if !ok {
		t.Fatalf("expected PromSink")
	}

	sink.RecordGeneration("TNK-001", true)
	sink.RecordGeneration("TNK-001", false)
	sink.RecordGeneration("TNK-002", false)
	sink.RecordTransition("In Transit", "Reached Destination")
	sink.RecordTraining("arrival_time", coremetrics.OutcomeTrained, 1.5)
	sink.RecordFleetSize(7)

	expected := `
# HELP fleet_generation_ops_total Total number of generation operations
# TYPE fleet_generation_ops_total counter
fleet_generation_ops_total{created="false"} 2
fleet_generation_ops_total{created="true"} 1
`
	if err := testutil.CollectAndCompare(sink.generations, strings.NewReader(expected)); err != nil {
		t.Errorf("unexpected generation metrics: %v", err)
	}
	if got := testutil.ToFloat64(sink.transitions.WithLabelValues("In Transit", "Reached Destination")); got != 1 {
		t.Errorf("transitions = %f", got)
	}
	if got := testutil.ToFloat64(sink.fleet); got != 7 {
		t.Errorf("fleet gauge = %f", got)
	}
	if c := testutil.CollectAndCount(sink.trainSecs); c == 0 {
		t.Errorf("training duration not recorded")
	}
}

func TestPromSink_DuplicateRegistration(t *testing.T) {
	reg := prometheus.NewRegistry()
	if _, err := NewPromSinkWithRegistry(coremetrics.Config{}, reg); err != nil {
		t.Fatalf("first registration: %v", err)
	}
	if _, err := NewPromSinkWithRegistry(coremetrics.Config{}, reg); err != nil {
		t.Fatalf("re-registration should reuse existing collectors: %v", err)
	}
}

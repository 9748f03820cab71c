package ml

import (
	"os"
	"testing"

	"gonum.org/v1/gonum/mat"
)

func TestRegistry_SaveLoadRoundtrip(t *testing.T) {
	reg, err := NewRegistry(t.TempDir())
	if err != nil {
		t.Fatalf("registry: %v", err)
	}

	X := mat.NewDense(4, 1, []float64{-1, -0.5, 0.5, 1})
	forest := TrainClassifier(X, []string{"a", "a", "b", "b"}, ForestConfig{Trees: 5, MaxDepth: 3, MinLeaf: 1, Seed: 1})
	scaler := &StandardScaler{}
	scaler.Fit(X)

	if err := reg.Save(ModelStatusTransition, forest, scaler); err != nil {
		t.Fatalf("save: %v", err)
	}
	if _, err := os.Stat(reg.ModelPath(ModelStatusTransition)); err != nil {
		t.Fatalf("model artifact missing: %v", err)
	}

	got, gotScaler, found, err := reg.Load(ModelStatusTransition)
	if err != nil || !found {
		t.Fatalf("load: found=%v err=%v", found, err)
	}
	if len(got.Classes) != 2 || got.Classes[1] != "b" {
		t.Fatalf("classes lost in roundtrip: %v", got.Classes)
	}
	if forest.PredictClass([]float64{0.9}) != got.PredictClass([]float64{0.9}) {
		t.Fatal("loaded forest diverges from saved forest")
	}
	if gotScaler.Mean[0] != scaler.Mean[0] || gotScaler.Std[0] != scaler.Std[0] {
		t.Fatalf("scaler lost in roundtrip: %+v", gotScaler)
	}
}

func TestRegistry_LoadMissing(t *testing.T) {
	reg, err := NewRegistry(t.TempDir())
	if err != nil {
		t.Fatalf("registry: %v", err)
	}
	forest, scaler, found, err := reg.Load(ModelArrivalTime)
	if err != nil {
		t.Fatalf("missing artifact must not error: %v", err)
	}
	if found || forest != nil || scaler != nil {
		t.Fatal("expected not found")
	}
}

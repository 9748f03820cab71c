package ml

import (
	"math"
	"math/rand"
	"testing"

	"gonum.org/v1/gonum/mat"
)

func TestForest_RegressorLearnsStepFunction(t *testing.T) {
	rng := rand.New(rand.NewSource(7))
	n := 200
	X := mat.NewDense(n, 3, nil)
	y := make([]float64, n)
	for i := 0; i < n; i++ {
		x0 := rng.Float64()*2 - 1
		X.Set(i, 0, x0)
		X.Set(i, 1, rng.Float64())
		X.Set(i, 2, rng.Float64())
		if x0 > 0 {
			y[i] = 10
		}
	}
	f := TrainRegressor(X, y, DefaultForestConfig())
	if f.Classes != nil {
		t.Fatal("regression forest must have nil classes")
	}
	if got := f.Predict([]float64{0.8, 0.5, 0.5}); math.Abs(got-10) > 1 {
		t.Fatalf("predict(+) = %f, want near 10", got)
	}
	if got := f.Predict([]float64{-0.8, 0.5, 0.5}); math.Abs(got) > 1 {
		t.Fatalf("predict(-) = %f, want near 0", got)
	}
}

func TestForest_ClassifierSeparatesLabels(t *testing.T) {
	rng := rand.New(rand.NewSource(7))
	n := 200
	X := mat.NewDense(n, 2, nil)
	labels := make([]string, n)
	for i := 0; i < n; i++ {
		x0 := rng.Float64()*2 - 1
		X.Set(i, 0, x0)
		X.Set(i, 1, rng.Float64())
		if x0 > 0 {
			labels[i] = "late"
		} else {
			labels[i] = "on_time"
		}
	}
	f := TrainClassifier(X, labels, DefaultForestConfig())
	if len(f.Classes) != 2 || f.Classes[0] != "late" {
		t.Fatalf("classes = %v", f.Classes)
	}
	if got := f.PredictClass([]float64{0.9, 0.5}); got != "late" {
		t.Fatalf("predict(+) = %q", got)
	}
	if got := f.PredictClass([]float64{-0.9, 0.5}); got != "on_time" {
		t.Fatalf("predict(-) = %q", got)
	}
}

func TestForest_PredictProbaSumsToOne(t *testing.T) {
	X := mat.NewDense(4, 1, []float64{-1, -0.5, 0.5, 1})
	f := TrainClassifier(X, []string{"a", "a", "b", "b"}, ForestConfig{Trees: 10, MaxDepth: 3, MinLeaf: 1, Seed: 1})
	proba := f.PredictProba([]float64{0.7})
	sum := 0.0
	for _, p := range proba {
		sum += p
	}
	if math.Abs(sum-1) > 1e-9 {
		t.Fatalf("probabilities sum to %f", sum)
	}
}

func TestForest_ClassProbaUnknownLabel(t *testing.T) {
	X := mat.NewDense(2, 1, []float64{0, 1})
	f := TrainClassifier(X, []string{"a", "b"}, ForestConfig{Trees: 5, MaxDepth: 2, MinLeaf: 1, Seed: 1})
	if got := f.ClassProba([]float64{0.5}, "never_seen"); got != 0 {
		t.Fatalf("unknown label probability = %f", got)
	}
}

func TestForest_SingleClass(t *testing.T) {
	X := mat.NewDense(3, 1, []float64{0, 1, 2})
	f := TrainClassifier(X, []string{"only", "only", "only"}, ForestConfig{Trees: 5, MaxDepth: 2, MinLeaf: 1, Seed: 1})
	if got := f.PredictClass([]float64{5}); got != "only" {
		t.Fatalf("predict = %q", got)
	}
	if got := f.ClassProba([]float64{5}, "only"); got != 1 {
		t.Fatalf("single class probability = %f", got)
	}
}

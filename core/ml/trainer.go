package ml

import (
	"context"
	"errors"
	"fmt"
	"math"
	"math/rand"
	"sync"
	"time"

	"gonum.org/v1/gonum/mat"

	"github.com/tankerfleet/tankerfleet/core/logger"
	"github.com/tankerfleet/tankerfleet/core/metrics"
	"github.com/tankerfleet/tankerfleet/core/model"
)

// ErrInsufficientData signals that the training window does not hold
// enough rows yet. It is a normal outcome while the simulator warms up,
// not a failure.
var ErrInsufficientData = errors.New("insufficient training data")

// Clock abstracts wall-clock time for window math and version tags.
type Clock interface {
	Now() time.Time
}

type systemClock struct{}

func (systemClock) Now() time.Time { return time.Now() }

// Store is the persistence surface the pipeline needs: windowed history
// for training, the current joined tanker state for inference, and the
// versioned model metadata register.
type Store interface {
	HistoryWindow(ctx context.Context, since time.Time) ([]model.HistoryRow, error)
	CurrentTanker(ctx context.Context, tankerID string) (*model.Tanker, error)
	SaveModelMetadata(ctx context.Context, md model.ModelMetadata) error
	ActiveModelMetadata(ctx context.Context, modelType string) (*model.ModelMetadata, error)
}

// PipelineConfig holds pipeline tuning.
type PipelineConfig struct {
	// MinSamples gates every training path.
	MinSamples int
	// Window is the trailing history period loaded for training.
	Window time.Duration
	Forest ForestConfig
}

// DefaultPipelineConfig returns the production defaults: 50 samples
// minimum over a 30 day window.
func DefaultPipelineConfig() PipelineConfig {
	return PipelineConfig{MinSamples: 50, Window: 30 * 24 * time.Hour, Forest: DefaultForestConfig()}
}

const delayPositiveClass = "1"

type loadedModel struct {
	forest  *Forest
	scaler  *StandardScaler
	columns []string
}

// Pipeline trains, persists and serves the three fleet predictors. The
// in-memory model cache is the only mutable state shared with request
// handlers; it is replaced only by a successful training run or filled
// lazily from disk on first use.
type Pipeline struct {
	store    Store
	registry *Registry
	cfg      PipelineConfig
	clock    Clock
	sink     metrics.Sink
	log      logger.Logger

	mu     sync.Mutex
	models map[string]*loadedModel
}

// NewPipeline creates a Pipeline. A nil clock defaults to the system
// clock and a nil sink to the no-op sink.
func NewPipeline(store Store, registry *Registry, cfg PipelineConfig, clock Clock, sink metrics.Sink, log logger.Logger) *Pipeline {
	if clock == nil {
		clock = systemClock{}
	}
	if sink == nil {
		sink = metrics.NopSink{}
	}
	return &Pipeline{
		store:    store,
		registry: registry,
		cfg:      cfg,
		clock:    clock,
		sink:     sink,
		log:      log,
		models:   map[string]*loadedModel{},
	}
}

// TrainAll trains the three models from the current history window and
// reports whether any of them succeeded. Too little data returns
// ErrInsufficientData and leaves existing models and metadata
// untouched. One model's insufficiency does not block the others.
func (p *Pipeline) TrainAll(ctx context.Context) (bool, error) {
	now := p.clock.Now()
	rows, err := p.store.HistoryWindow(ctx, now.Add(-p.cfg.Window))
	if err != nil {
		return false, fmt.Errorf("load training window: %w", err)
	}
	if len(rows) < p.cfg.MinSamples {
		p.log.Debugf("not enough training samples yet: %d < %d", len(rows), p.cfg.MinSamples)
		return false, ErrInsufficientData
	}

	ds := BuildDataset(rows)
	enc := NewEncoder(ds)

	any := false
	results := map[string]bool{}
	for _, mt := range ModelTypes {
		start := time.Now()
		ok, err := p.trainOne(ctx, mt, ds, enc, now)
		seconds := time.Since(start).Seconds()
		switch {
		case err != nil:
			p.log.Errorf("train %s: %v", mt, err)
			p.sink.RecordTraining(mt, metrics.OutcomeError, seconds)
		case ok:
			p.sink.RecordTraining(mt, metrics.OutcomeTrained, seconds)
		default:
			p.sink.RecordTraining(mt, metrics.OutcomeInsufficient, seconds)
		}
		results[mt] = ok && err == nil
		any = any || results[mt]
	}
	p.log.Infof("training complete: %v", results)
	return any, nil
}

func (p *Pipeline) trainOne(ctx context.Context, modelType string, ds *Dataset, enc *Encoder, now time.Time) (bool, error) {
	switch modelType {
	case ModelArrivalTime:
		return p.trainArrivalTime(ctx, ds, enc, now)
	case ModelDelayProbability:
		return p.trainDelayProbability(ctx, ds, enc, now)
	case ModelStatusTransition:
		return p.trainStatusTransition(ctx, ds, enc, now)
	}
	return false, fmt.Errorf("unknown model type %q", modelType)
}

// trainArrivalTime fits the trip-duration regressor on in-transit rows,
// excluding non-positive and implausibly large targets.
func (p *Pipeline) trainArrivalTime(ctx context.Context, ds *Dataset, enc *Encoder, now time.Time) (bool, error) {
	var idx []int
	for i, r := range ds.Rows {
		if r.Status == model.StatusInTransit && r.TripDurationHours > 0 && r.TripDurationHours < 100 {
			idx = append(idx, i)
		}
	}
	if len(idx) < p.cfg.MinSamples {
		p.log.Warnf("not enough in-transit samples for arrival time model: %d", len(idx))
		return false, nil
	}

	rng := rand.New(rand.NewSource(p.cfg.Forest.Seed))
	trainIdx, testIdx := trainTestSplit(len(idx), 0.2, rng)

	X := enc.Matrix(ds, idx)
	y := make([]float64, len(idx))
	for k, i := range idx {
		y[k] = ds.Rows[i].TripDurationHours
	}

	scaler := &StandardScaler{}
	Xtrain := matRows(X, trainIdx)
	scaler.Fit(Xtrain)
	forest := TrainRegressor(scaler.Transform(Xtrain), subset(y, trainIdx), p.cfg.Forest)

	Xtest := scaler.Transform(matRows(X, testIdx))
	ytest := subset(y, testIdx)
	mae := 0.0
	for i := range testIdx {
		mae += math.Abs(forest.Predict(Xtest.RawRowView(i)) - ytest[i])
	}
	if len(testIdx) > 0 {
		mae /= float64(len(testIdx))
	}
	p.log.Infof("arrival time model trained, mae=%.2f hours", mae)

	return true, p.commit(ctx, ModelArrivalTime, forest, scaler, enc.Columns(), "mae", mae, now)
}

// trainDelayProbability fits the binary delay classifier on the full
// windowed dataset with a stratified holdout.
func (p *Pipeline) trainDelayProbability(ctx context.Context, ds *Dataset, enc *Encoder, now time.Time) (bool, error) {
	labels := make([]string, ds.Len())
	idx := make([]int, ds.Len())
	for i, r := range ds.Rows {
		idx[i] = i
		if r.Status == model.StatusDelayed {
			labels[i] = delayPositiveClass
		} else {
			labels[i] = "0"
		}
	}
	if len(idx) < p.cfg.MinSamples {
		p.log.Warnf("not enough samples for delay probability model: %d", len(idx))
		return false, nil
	}

	rng := rand.New(rand.NewSource(p.cfg.Forest.Seed))
	trainIdx, testIdx := stratifiedSplit(labels, 0.2, rng)

	acc, forest, scaler := p.fitClassifier(ds, enc, idx, labels, trainIdx, testIdx)
	p.log.Infof("delay probability model trained, accuracy=%.2f%%", acc*100)

	return true, p.commit(ctx, ModelDelayProbability, forest, scaler, enc.Columns(), "accuracy", acc, now)
}

// trainStatusTransition fits the next-status classifier. The label of a
// row is the tanker's chronologically next status; each tanker's last
// row has no successor and is dropped.
func (p *Pipeline) trainStatusTransition(ctx context.Context, ds *Dataset, enc *Encoder, now time.Time) (bool, error) {
	var idx []int
	var labels []string
	for i := 0; i+1 < ds.Len(); i++ {
		if ds.Rows[i].TankerID == ds.Rows[i+1].TankerID {
			idx = append(idx, i)
			labels = append(labels, string(ds.Rows[i+1].Status))
		}
	}
	if len(idx) < p.cfg.MinSamples {
		p.log.Warnf("not enough samples for status transition model: %d", len(idx))
		return false, nil
	}

	rng := rand.New(rand.NewSource(p.cfg.Forest.Seed))
	trainIdx, testIdx := trainTestSplit(len(idx), 0.2, rng)

	acc, forest, scaler := p.fitClassifier(ds, enc, idx, labels, trainIdx, testIdx)
	p.log.Infof("status transition model trained, accuracy=%.2f%%", acc*100)

	return true, p.commit(ctx, ModelStatusTransition, forest, scaler, enc.Columns(), "accuracy", acc, now)
}

// fitClassifier runs the shared classification protocol: scale on the
// training split only, fit, evaluate holdout accuracy.
func (p *Pipeline) fitClassifier(ds *Dataset, enc *Encoder, idx []int, labels []string, trainIdx, testIdx []int) (float64, *Forest, *StandardScaler) {
	X := enc.Matrix(ds, idx)

	scaler := &StandardScaler{}
	Xtrain := matRows(X, trainIdx)
	scaler.Fit(Xtrain)
	forest := TrainClassifier(scaler.Transform(Xtrain), subset(labels, trainIdx), p.cfg.Forest)

	Xtest := scaler.Transform(matRows(X, testIdx))
	correct := 0
	for i, k := range testIdx {
		if forest.PredictClass(Xtest.RawRowView(i)) == labels[k] {
			correct++
		}
	}
	acc := 0.0
	if len(testIdx) > 0 {
		acc = float64(correct) / float64(len(testIdx))
	}
	return acc, forest, scaler
}

// commit persists the artifact pair, records versioned metadata
// (deactivating prior rows of the type), and replaces the cached model.
func (p *Pipeline) commit(ctx context.Context, modelType string, forest *Forest, scaler *StandardScaler, columns []string, metricType string, metricValue float64, now time.Time) error {
	if err := p.registry.Save(modelType, forest, scaler); err != nil {
		return err
	}
	md := model.ModelMetadata{
		ModelType:      modelType,
		ModelVersion:   now.Format("20060102_150405"),
		TrainingDate:   now,
		MetricType:     metricType,
		MetricValue:    metricValue,
		FeatureColumns: columns,
		ModelPath:      p.registry.ModelPath(modelType),
		Active:         true,
	}
	if err := p.store.SaveModelMetadata(ctx, md); err != nil {
		return fmt.Errorf("save %s metadata: %w", modelType, err)
	}
	p.mu.Lock()
	p.models[modelType] = &loadedModel{forest: forest, scaler: scaler, columns: columns}
	p.mu.Unlock()
	return nil
}

// trainTestSplit shuffles n indices and holds out testFrac of them.
func trainTestSplit(n int, testFrac float64, rng *rand.Rand) (train, test []int) {
	perm := rng.Perm(n)
	nTest := int(float64(n) * testFrac)
	return perm[nTest:], perm[:nTest]
}

// stratifiedSplit holds out testFrac of each label group so rare
// classes appear on both sides of the split.
func stratifiedSplit(labels []string, testFrac float64, rng *rand.Rand) (train, test []int) {
	groups := map[string][]int{}
	for i, l := range labels {
		groups[l] = append(groups[l], i)
	}
	for _, l := range distinctSorted(labels) {
		g := groups[l]
		rng.Shuffle(len(g), func(i, j int) { g[i], g[j] = g[j], g[i] })
		nTest := int(float64(len(g)) * testFrac)
		test = append(test, g[:nTest]...)
		train = append(train, g[nTest:]...)
	}
	return train, test
}

func matRows(X *mat.Dense, idx []int) *mat.Dense {
	_, cols := X.Dims()
	out := mat.NewDense(len(idx), cols, nil)
	for i, k := range idx {
		out.SetRow(i, X.RawRowView(k))
	}
	return out
}

func subset[T any](vals []T, idx []int) []T {
	out := make([]T, len(idx))
	for i, k := range idx {
		out[i] = vals[k]
	}
	return out
}

package ml

import (
	"encoding/gob"
	"fmt"
	"os"
	"path/filepath"
)

// Model types served by the pipeline.
const (
	ModelArrivalTime      = "arrival_time"
	ModelDelayProbability = "delay_probability"
	ModelStatusTransition = "status_transition"
)

// ModelTypes lists every model type in training order.
var ModelTypes = []string{ModelArrivalTime, ModelDelayProbability, ModelStatusTransition}

// Registry persists model and scaler artifacts to a directory, keyed by
// model type. At most one artifact per type exists on disk; a new
// training run overwrites the previous one.
type Registry struct {
	dir string
}

// NewRegistry creates the artifact directory if needed.
func NewRegistry(dir string) (*Registry, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create model dir: %w", err)
	}
	return &Registry{dir: dir}, nil
}

// ModelPath returns the on-disk location of the model artifact.
func (r *Registry) ModelPath(modelType string) string {
	return filepath.Join(r.dir, modelType+"_model.gob")
}

func (r *Registry) scalerPath(modelType string) string {
	return filepath.Join(r.dir, modelType+"_scaler.gob")
}

// Save writes the model and its scaler, replacing any previous artifact
// of the same type.
func (r *Registry) Save(modelType string, forest *Forest, scaler *StandardScaler) error {
	if err := writeGob(r.ModelPath(modelType), forest); err != nil {
		return fmt.Errorf("save %s model: %w", modelType, err)
	}
	if err := writeGob(r.scalerPath(modelType), scaler); err != nil {
		return fmt.Errorf("save %s scaler: %w", modelType, err)
	}
	return nil
}

// Load reads the artifact pair for a model type. A missing artifact is
// not an error: found is false and both values are nil.
func (r *Registry) Load(modelType string) (forest *Forest, scaler *StandardScaler, found bool, err error) {
	forest = &Forest{}
	if ok, err := readGob(r.ModelPath(modelType), forest); err != nil || !ok {
		return nil, nil, false, err
	}
	scaler = &StandardScaler{}
	if ok, err := readGob(r.scalerPath(modelType), scaler); err != nil || !ok {
		return nil, nil, false, err
	}
	return forest, scaler, true, nil
}

func writeGob(path string, v any) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	if err := gob.NewEncoder(f).Encode(v); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}

func readGob(path string, v any) (bool, error) {
	f, err := os.Open(path)
	if os.IsNotExist(err) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	defer f.Close()
	if err := gob.NewDecoder(f).Decode(v); err != nil {
		return false, fmt.Errorf("decode %s: %w", path, err)
	}
	return true, nil
}

package config

import (
	"fmt"
	"path/filepath"
	"strings"

	"github.com/knadh/koanf/parsers/json"
	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"

	"github.com/tankerfleet/tankerfleet/core/metrics"
	"github.com/tankerfleet/tankerfleet/infra/postgres"
)

// Config is the root configuration loaded from file with environment
// overrides.
type Config struct {
	Database   postgres.Config  `json:"database"`
	Simulation SimulationConfig `json:"simulation"`
	ML         MLConfig         `json:"ml"`
	Metrics    metrics.Config   `json:"metrics"`
	API        APIConfig        `json:"api"`
}

// SimulationConfig drives the two fleet background workers.
type SimulationConfig struct {
	// GenerationIntervalSeconds is the period of the data generation
	// cycle.
	GenerationIntervalSeconds int `json:"generation_interval_seconds"`
	// TransitionIntervalSeconds is the period of the status transition
	// sweep.
	TransitionIntervalSeconds int `json:"transition_interval_seconds"`
}

// SetDefaults applies sane defaults.
func (c *SimulationConfig) SetDefaults() {
	if c.GenerationIntervalSeconds == 0 {
		c.GenerationIntervalSeconds = 30
	}
	if c.TransitionIntervalSeconds == 0 {
		c.TransitionIntervalSeconds = 300
	}
}

// Validate checks mandatory fields.
func (c SimulationConfig) Validate() error {
	if c.GenerationIntervalSeconds < 0 || c.TransitionIntervalSeconds < 0 {
		return fmt.Errorf("simulation intervals must be positive")
	}
	return nil
}

// MLConfig drives the training pipeline and retrain scheduler.
type MLConfig struct {
	// MinTrainingSamples gates all training paths.
	MinTrainingSamples int `json:"min_training_samples"`
	// RetrainIntervalSeconds is the period between training attempts.
	RetrainIntervalSeconds int `json:"retrain_interval_seconds"`
	// ModelDir is where model and scaler artifacts are persisted.
	ModelDir string `json:"model_dir"`
}

// SetDefaults applies sane defaults.
func (c *MLConfig) SetDefaults() {
	if c.MinTrainingSamples == 0 {
		c.MinTrainingSamples = 50
	}
	if c.RetrainIntervalSeconds == 0 {
		c.RetrainIntervalSeconds = 3600
	}
	if c.ModelDir == "" {
		c.ModelDir = "./models"
	}
}

// Validate checks mandatory fields.
func (c MLConfig) Validate() error {
	if c.MinTrainingSamples < 0 {
		return fmt.Errorf("min_training_samples must be positive")
	}
	if c.ModelDir == "" {
		return fmt.Errorf("model_dir is required")
	}
	return nil
}

// APIConfig configures the fleet HTTP endpoint.
type APIConfig struct {
	ListenAddr string `json:"listen_addr"`
}

// SetDefaults applies sane defaults.
func (c *APIConfig) SetDefaults() {
	if c.ListenAddr == "" {
		c.ListenAddr = ":8080"
	}
}

// Load reads the configuration file (YAML or JSON by extension) and
// applies TANKER_-prefixed environment overrides, with "__" separating
// nested keys.
func Load(path string) (*Config, error) {
	k := koanf.New(".")
	ext := strings.ToLower(filepath.Ext(path))
	var parser koanf.Parser
	switch ext {
	case ".yaml", ".yml":
		parser = yaml.Parser()
	case ".json":
		parser = json.Parser()
	default:
		return nil, fmt.Errorf("unsupported config format: %s", ext)
	}
	if err := k.Load(file.Provider(path), parser); err != nil {
		return nil, err
	}
	if err := k.Load(env.Provider("TANKER_", "__", func(s string) string {
		s = strings.TrimPrefix(strings.ToLower(s), "tanker_")
		return strings.ReplaceAll(s, "__", ".")
	}), nil); err != nil {
		return nil, err
	}
	var cfg Config
	if err := k.UnmarshalWithConf("", &cfg, koanf.UnmarshalConf{Tag: "json"}); err != nil {
		return nil, err
	}
	cfg.ApplyDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// ApplyDefaults fills every section's defaults.
func (c *Config) ApplyDefaults() {
	c.Database.SetDefaults()
	c.Simulation.SetDefaults()
	c.ML.SetDefaults()
	c.API.SetDefaults()
	if c.Metrics.PrometheusPort == "" {
		c.Metrics.PrometheusPort = "2112"
	}
}

// Validate checks every section.
func (c *Config) Validate() error {
	if err := c.Simulation.Validate(); err != nil {
		return err
	}
	return c.ML.Validate()
}

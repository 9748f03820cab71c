package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	return path
}

func TestLoadYAML(t *testing.T) {
	path := writeConfig(t, "config.yaml", `
database:
  host: db.internal
  port: 5433
simulation:
  generation_interval_seconds: 10
ml:
  min_training_samples: 80
  model_dir: /tmp/models
api:
  listen_addr: ":9090"
`)
	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "db.internal", cfg.Database.Host)
	assert.Equal(t, 5433, cfg.Database.Port)
	assert.Equal(t, 10, cfg.Simulation.GenerationIntervalSeconds)
	assert.Equal(t, 80, cfg.ML.MinTrainingSamples)
	assert.Equal(t, "/tmp/models", cfg.ML.ModelDir)
	assert.Equal(t, ":9090", cfg.API.ListenAddr)
}

func TestLoadDefaults(t *testing.T) {
	path := writeConfig(t, "config.json", `{"database":{"host":"localhost"}}`)
	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, 30, cfg.Simulation.GenerationIntervalSeconds)
	assert.Equal(t, 300, cfg.Simulation.TransitionIntervalSeconds)
	assert.Equal(t, 50, cfg.ML.MinTrainingSamples)
	assert.Equal(t, 3600, cfg.ML.RetrainIntervalSeconds)
	assert.Equal(t, "./models", cfg.ML.ModelDir)
	assert.Equal(t, ":8080", cfg.API.ListenAddr)
	assert.Equal(t, "disable", cfg.Database.SSLMode)
}

func TestLoadEnvOverride(t *testing.T) {
	path := writeConfig(t, "config.yaml", `
database:
  host: file-host
`)
	t.Setenv("TANKER_DATABASE__HOST", "env-host")
	t.Setenv("TANKER_ML__MODEL_DIR", "/var/lib/models")
	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "env-host", cfg.Database.Host)
	assert.Equal(t, "/var/lib/models", cfg.ML.ModelDir)
}

func TestLoadUnsupportedFormat(t *testing.T) {
	path := writeConfig(t, "config.toml", `host = "x"`)
	_, err := Load(path)
	assert.Error(t, err)
}

func TestLoadMissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)
}

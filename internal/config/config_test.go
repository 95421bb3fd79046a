package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Brownie44l1/depth-api/internal/inference"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0600))
	return path
}

func clearEnv(t *testing.T) {
	t.Helper()
	for _, k := range []string{EnvPort, EnvModelPath, EnvRuntimeLibrary, EnvLogLevel} {
		t.Setenv(k, "")
	}
}

func TestDefault_IsValid(t *testing.T) {
	c := Default()
	require.NoError(t, c.Validate())
	assert.Equal(t, ":8080", c.Server.Addr)
	assert.Equal(t, "anesthesia_model.onnx", c.Model.Path)
	assert.Equal(t, float32(70), c.Classifier.DeepAbove)
	assert.Equal(t, float32(30), c.Classifier.LightAbove)
}

func TestLoad_NoFile(t *testing.T) {
	clearEnv(t)
	c, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, Default().Model.Path, c.Model.Path)
}

func TestLoad_File(t *testing.T) {
	clearEnv(t)
	path := writeConfig(t, `
server:
  addr: "0.0.0.0:9090"
  shutdown_timeout: 3s
model:
  path: /models/depth.onnx
  intra_op_threads: 2
inference:
  workers: 3
  timeout: 500ms
  cache_size: 1024
classifier:
  deep_above: 65
  light_above: 35.5
log:
  level: debug
  format: console
`)
	c, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "0.0.0.0:9090", c.Server.Addr)
	assert.Equal(t, 3*time.Second, c.Server.ShutdownTimeout)
	assert.Equal(t, 10*time.Second, c.Server.ReadTimeout)
	assert.Equal(t, "/models/depth.onnx", c.Model.Path)
	assert.Equal(t, 2, c.Model.IntraOpThreads)
	assert.Equal(t, 3, c.Inference.Workers)
	assert.Equal(t, 500*time.Millisecond, c.Inference.Timeout)
	assert.Equal(t, 1024, c.Inference.CacheSize)
	assert.Equal(t, float32(65), c.Classifier.DeepAbove)
	assert.Equal(t, float32(35.5), c.Classifier.LightAbove)
	assert.Equal(t, "debug", c.Log.Level)
	assert.Equal(t, "console", c.Log.Format)
}

func TestLoad_EmptyFile(t *testing.T) {
	clearEnv(t)
	c, err := Load(writeConfig(t, ""))
	require.NoError(t, err)
	assert.Equal(t, Default().Server.Addr, c.Server.Addr)
}

func TestLoad_Errors(t *testing.T) {
	clearEnv(t)
	_, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)

	_, err = Load(writeConfig(t, "server: [not, a, map]"))
	assert.Error(t, err)

	_, err = Load(writeConfig(t, "modle:\n  path: x.onnx\n"))
	assert.Error(t, err, "unknown keys are rejected")
}

func TestLoad_LeavesValidationToCaller(t *testing.T) {
	clearEnv(t)
	c, err := Load(writeConfig(t, "model:\n  path: \"\"\nclassifier:\n  deep_above: 30\n  light_above: 70\n"))
	require.NoError(t, err)
	assert.Error(t, c.Validate())

	c.Model.Path = "/models/depth.onnx"
	c.Classifier = inference.DefaultThresholds()
	assert.NoError(t, c.Validate())
}

func TestApplyEnv(t *testing.T) {
	env := map[string]string{
		EnvPort:           "9000",
		EnvModelPath:      "/srv/model.onnx",
		EnvRuntimeLibrary: "/usr/lib/libonnxruntime.so",
		EnvLogLevel:       "warn",
	}
	c := Default()
	c.ApplyEnv(func(k string) (string, bool) {
		v, ok := env[k]
		return v, ok
	})
	assert.Equal(t, ":9000", c.Server.Addr)
	assert.Equal(t, "/srv/model.onnx", c.Model.Path)
	assert.Equal(t, "/usr/lib/libonnxruntime.so", c.Model.RuntimeLibrary)
	assert.Equal(t, "warn", c.Log.Level)
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{"empty addr", func(c *Config) { c.Server.Addr = "" }},
		{"zero body limit", func(c *Config) { c.Server.MaxBodyBytes = 0 }},
		{"zero shutdown", func(c *Config) { c.Server.ShutdownTimeout = 0 }},
		{"empty model path", func(c *Config) { c.Model.Path = "" }},
		{"no workers", func(c *Config) { c.Inference.Workers = 0 }},
		{"zero timeout", func(c *Config) { c.Inference.Timeout = 0 }},
		{"negative cache", func(c *Config) { c.Inference.CacheSize = -1 }},
		{"write timeout below inference timeout", func(c *Config) { c.Server.WriteTimeout = time.Second }},
		{"inverted thresholds", func(c *Config) { c.Classifier.DeepAbove = 10 }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := Default()
			tt.mutate(c)
			assert.Error(t, c.Validate())
		})
	}
}

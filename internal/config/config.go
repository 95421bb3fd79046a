package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"runtime"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/Brownie44l1/depth-api/internal/inference"
	"github.com/Brownie44l1/depth-api/internal/logging"
)

const (
	EnvPort           = "PORT"
	EnvModelPath      = "MODEL_PATH"
	EnvRuntimeLibrary = "ORT_LIBRARY_PATH"
	EnvLogLevel       = "LOG_LEVEL"
)

// Config represents the service configuration.
type Config struct {
	Server     Server               `yaml:"server"`
	Model      Model                `yaml:"model"`
	Inference  Inference            `yaml:"inference"`
	Classifier inference.Thresholds `yaml:"classifier"`
	Log        logging.Options      `yaml:"log"`
}

type Server struct {
	Addr            string        `yaml:"addr"`
	ReadTimeout     time.Duration `yaml:"read_timeout"`
	WriteTimeout    time.Duration `yaml:"write_timeout"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout"`
	MaxBodyBytes    int64         `yaml:"max_body_bytes"`
	CORSOrigins     []string      `yaml:"cors_origins"`
}

type Model struct {
	Path           string `yaml:"path"`
	RuntimeLibrary string `yaml:"runtime_library"`
	IntraOpThreads int    `yaml:"intra_op_threads"`
}

type Inference struct {
	Workers   int           `yaml:"workers"`
	Timeout   time.Duration `yaml:"timeout"`
	CacheSize int           `yaml:"cache_size"`
}

func Default() *Config {
	return &Config{
		Server: Server{
			Addr:            ":8080",
			ReadTimeout:     10 * time.Second,
			WriteTimeout:    10 * time.Second,
			ShutdownTimeout: 5 * time.Second,
			MaxBodyBytes:    4 << 10,
			CORSOrigins:     []string{"*"},
		},
		Model: Model{
			Path:           "anesthesia_model.onnx",
			IntraOpThreads: 1,
		},
		Inference: Inference{
			Workers: runtime.NumCPU(),
			Timeout: inference.DefaultTimeout,
		},
		Classifier: inference.DefaultThresholds(),
		Log:        logging.DefaultOptions(),
	}
}

// Load reads the YAML file at path over the defaults. An empty path skips
// the file. Environment overrides are applied last. The result is not
// validated, since callers may still override it from flags.
func Load(path string) (*Config, error) {
	c := Default()
	if path != "" {
		b, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("error reading config file %s: %w", path, err)
		}
		if err := c.decode(b); err != nil {
			return nil, fmt.Errorf("error parsing config file %s: %w", path, err)
		}
	}
	c.ApplyEnv(os.LookupEnv)
	return c, nil
}

func (c *Config) decode(b []byte) error {
	dec := yaml.NewDecoder(bytes.NewReader(b))
	dec.KnownFields(true)
	if err := dec.Decode(c); err != nil && !errors.Is(err, io.EOF) {
		return err
	}
	return nil
}

// ApplyEnv overrides fields from the environment.
func (c *Config) ApplyEnv(lookup func(string) (string, bool)) {
	if v, ok := lookup(EnvPort); ok && v != "" {
		c.Server.Addr = ":" + v
	}
	if v, ok := lookup(EnvModelPath); ok && v != "" {
		c.Model.Path = v
	}
	if v, ok := lookup(EnvRuntimeLibrary); ok && v != "" {
		c.Model.RuntimeLibrary = v
	}
	if v, ok := lookup(EnvLogLevel); ok && v != "" {
		c.Log.Level = v
	}
}

func (c *Config) Validate() error {
	var errs []error
	if c.Server.Addr == "" {
		errs = append(errs, errors.New("server.addr required"))
	}
	if c.Server.MaxBodyBytes <= 0 {
		errs = append(errs, errors.New("server.max_body_bytes must be positive"))
	}
	if c.Server.ShutdownTimeout <= 0 {
		errs = append(errs, errors.New("server.shutdown_timeout must be positive"))
	}
	if c.Server.ReadTimeout < 0 || c.Server.WriteTimeout < 0 {
		errs = append(errs, errors.New("server read/write timeouts cannot be negative"))
	}
	if c.Model.Path == "" {
		errs = append(errs, errors.New("model.path required"))
	}
	if c.Model.IntraOpThreads < 0 {
		errs = append(errs, errors.New("model.intra_op_threads cannot be negative"))
	}
	if c.Inference.Workers < 1 {
		errs = append(errs, errors.New("inference.workers must be at least 1"))
	}
	if c.Inference.Timeout <= 0 {
		errs = append(errs, errors.New("inference.timeout must be positive"))
	}
	if c.Server.WriteTimeout > 0 && c.Server.WriteTimeout <= c.Inference.Timeout {
		errs = append(errs, errors.New("server.write_timeout must exceed inference.timeout"))
	}
	if c.Inference.CacheSize < 0 {
		errs = append(errs, errors.New("inference.cache_size cannot be negative"))
	}
	if err := c.Classifier.Validate(); err != nil {
		errs = append(errs, fmt.Errorf("classifier: %w", err))
	}
	return errors.Join(errs...)
}

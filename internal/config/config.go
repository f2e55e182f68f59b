package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/sirupsen/logrus"
	"gopkg.in/yaml.v3"

	"github.com/bayneri/slareport/internal/jobs"
	"github.com/bayneri/slareport/internal/spec"
)

const (
	DefaultAddr            = ":8080"
	DefaultShutdownTimeout = 30 * time.Second

	BackendMemory = "memory"
	BackendGCS    = "gcs"
)

// Config is the server configuration file.
type Config struct {
	Server   ServerConfig             `yaml:"server"`
	Jobs     JobsConfig               `yaml:"jobs"`
	Store    StoreConfig              `yaml:"store"`
	Log      LogConfig                `yaml:"log"`
	GCP      GCPConfig                `yaml:"gcp"`
	// Services overrides registry defaults per service type.
	Services map[string]spec.Override `yaml:"services"`
}

type ServerConfig struct {
	Addr            string        `yaml:"addr"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout"`
}

type JobsConfig struct {
	MaxConcurrency      int `yaml:"max_concurrency"`
	DefaultConcurrency  int `yaml:"default_concurrency"`
	DefaultLookbackDays int `yaml:"default_lookback_days"`
	MaxLookbackDays     int `yaml:"max_lookback_days"`
	ListLimit           int `yaml:"list_limit"`
	MaxListLimit        int `yaml:"max_list_limit"`
}

// StoreConfig selects where job records live. Bucket and Prefix apply to the
// gcs backend only.
type StoreConfig struct {
	Backend string `yaml:"backend"`
	Bucket  string `yaml:"bucket"`
	Prefix  string `yaml:"prefix"`
}

// GCPConfig applies to both the Cloud Monitoring and Cloud Storage clients.
// An empty CredentialsFile uses application default credentials.
type GCPConfig struct {
	CredentialsFile string `yaml:"credentials_file"`
}

type LogConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

func (j JobsConfig) Limits() jobs.Limits {
	return jobs.Limits{
		MaxConcurrency:      j.MaxConcurrency,
		DefaultConcurrency:  j.DefaultConcurrency,
		DefaultLookbackDays: j.DefaultLookbackDays,
		MaxLookbackDays:     j.MaxLookbackDays,
		ListLimit:           j.ListLimit,
		MaxListLimit:        j.MaxListLimit,
	}
}

// Load reads the file at path over the defaults and validates the result.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("server config: read %q: %w", path, err)
	}
	return Parse(data)
}

func Parse(data []byte) (*Config, error) {
	cfg := Default()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("server config: parse yaml: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("server config: %w", err)
	}
	return cfg, nil
}

func Default() *Config {
	limits := jobs.DefaultLimits()
	return &Config{
		Server: ServerConfig{
			Addr:            DefaultAddr,
			ShutdownTimeout: DefaultShutdownTimeout,
		},
		Jobs: JobsConfig{
			MaxConcurrency:      limits.MaxConcurrency,
			DefaultConcurrency:  limits.DefaultConcurrency,
			DefaultLookbackDays: limits.DefaultLookbackDays,
			MaxLookbackDays:     limits.MaxLookbackDays,
			ListLimit:           limits.ListLimit,
			MaxListLimit:        limits.MaxListLimit,
		},
		Store: StoreConfig{
			Backend: BackendMemory,
			Prefix:  "slareport/jobs",
		},
		Log: LogConfig{
			Level:  "info",
			Format: "text",
		},
	}
}

func (c *Config) Validate() error {
	var errs []string
	if strings.TrimSpace(c.Server.Addr) == "" {
		errs = append(errs, "server.addr is required")
	}
	if c.Server.ShutdownTimeout <= 0 {
		errs = append(errs, "server.shutdown_timeout must be positive")
	}

	j := c.Jobs
	if j.MaxConcurrency < 1 {
		errs = append(errs, "jobs.max_concurrency must be at least 1")
	}
	if j.DefaultConcurrency < 1 || j.DefaultConcurrency > j.MaxConcurrency {
		errs = append(errs, "jobs.default_concurrency must be between 1 and jobs.max_concurrency")
	}
	if j.MaxLookbackDays < 1 {
		errs = append(errs, "jobs.max_lookback_days must be at least 1")
	}
	if j.DefaultLookbackDays < 1 || j.DefaultLookbackDays > j.MaxLookbackDays {
		errs = append(errs, "jobs.default_lookback_days must be between 1 and jobs.max_lookback_days")
	}
	if j.MaxListLimit < 1 {
		errs = append(errs, "jobs.max_list_limit must be at least 1")
	}
	if j.ListLimit < 1 || j.ListLimit > j.MaxListLimit {
		errs = append(errs, "jobs.list_limit must be between 1 and jobs.max_list_limit")
	}

	switch c.Store.Backend {
	case BackendMemory:
	case BackendGCS:
		if strings.TrimSpace(c.Store.Bucket) == "" {
			errs = append(errs, "store.bucket is required for the gcs backend")
		}
	default:
		errs = append(errs, fmt.Sprintf("store.backend must be %s or %s, got %q", BackendMemory, BackendGCS, c.Store.Backend))
	}

	if _, err := logrus.ParseLevel(c.Log.Level); err != nil {
		errs = append(errs, fmt.Sprintf("log.level: %v", err))
	}
	if c.Log.Format != "text" && c.Log.Format != "json" {
		errs = append(errs, fmt.Sprintf("log.format must be text or json, got %q", c.Log.Format))
	}

	if _, err := spec.NewRegistry(c.Services); err != nil {
		errs = append(errs, err.Error())
	}

	if len(errs) > 0 {
		return errors.New(strings.Join(errs, "; "))
	}
	return nil
}

// Registry builds the service type registry with the configured overrides.
func (c *Config) Registry() (*spec.Registry, error) {
	return spec.NewRegistry(c.Services)
}

// ConfigureLogger applies the log section to logger.
func (c *Config) ConfigureLogger(logger *logrus.Logger) error {
	level, err := logrus.ParseLevel(c.Log.Level)
	if err != nil {
		return err
	}
	logger.SetLevel(level)
	if c.Log.Format == "json" {
		logger.SetFormatter(&logrus.JSONFormatter{})
	} else {
		logger.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
	}
	return nil
}

package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"gopkg.in/yaml.v3"

	"uav-deconflict/internal/deconflict"
)

type Config struct {
	Check     CheckConfig  `yaml:"check"`
	Scenarios []string     `yaml:"scenarios"`
	Output    OutputConfig `yaml:"output"`
	Log       LogConfig    `yaml:"log"`
	Store     StoreConfig  `yaml:"store"`
	Web       WebConfig    `yaml:"web"`
}

// CheckConfig is the base deconfliction config; scenarios may override
// individual fields.
type CheckConfig struct {
	deconflict.Config `yaml:",inline"`
	// Workers bounds concurrent traffic evaluation. 0 uses GOMAXPROCS.
	Workers int `yaml:"workers"`
}

type OutputConfig struct {
	PlotDir  string `yaml:"plot_dir"`
	ChartDir string `yaml:"chart_dir"`
	// Pretty is one of auto, always, never. auto indents when stdout is a terminal.
	Pretty string `yaml:"pretty"`
}

type LogConfig struct {
	// Path of a rotated log file. Empty logs to stderr.
	Path       string `yaml:"path"`
	MaxSizeMB  int    `yaml:"max_size_mb"`
	MaxBackups int    `yaml:"max_backups"`
	MaxAgeDays int    `yaml:"max_age_days"`
	Compress   bool   `yaml:"compress"`
}

type StoreConfig struct {
	Enable bool   `yaml:"enable"`
	Path   string `yaml:"path"`
}

type WebConfig struct {
	Enable       bool   `yaml:"enable"`
	Listen       string `yaml:"listen"`
	MaxBodyBytes int64  `yaml:"max_body_bytes"`
}

// Default returns the configuration used when no file is given.
func Default() Config {
	cfg := Config{Check: CheckConfig{Config: deconflict.DefaultConfig()}}
	applyDefaults(&cfg)
	return cfg
}

func Load(path string) (Config, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return Config{}, err
	}
	return Parse(b)
}

// Parse decodes YAML over the defaults, so absent keys keep their default
// values and explicit zeros are preserved.
func Parse(b []byte) (Config, error) {
	cfg := Config{Check: CheckConfig{Config: deconflict.DefaultConfig()}}

	dec := yaml.NewDecoder(bytes.NewReader(b))
	dec.KnownFields(true)
	if err := dec.Decode(&cfg); err != nil && !errors.Is(err, io.EOF) {
		if strings.Contains(err.Error(), "not found in type") {
			return Config{}, fmt.Errorf("config contains unknown fields: %w", err)
		}
		return Config{}, err
	}

	applyDefaults(&cfg)
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func applyDefaults(cfg *Config) {
	if cfg.Output.Pretty == "" {
		cfg.Output.Pretty = "auto"
	}
	if cfg.Log.MaxSizeMB <= 0 {
		cfg.Log.MaxSizeMB = 16
	}
	if cfg.Log.MaxBackups <= 0 {
		cfg.Log.MaxBackups = 3
	}
	if cfg.Log.MaxAgeDays <= 0 {
		cfg.Log.MaxAgeDays = 28
	}
	if cfg.Store.Path == "" {
		cfg.Store.Path = "./deconflict.db"
	}
	if cfg.Web.Listen == "" {
		cfg.Web.Listen = ":8080"
	}
	if cfg.Web.MaxBodyBytes <= 0 {
		cfg.Web.MaxBodyBytes = 1 << 20
	}
}

func (cfg Config) Validate() error {
	if err := cfg.Check.Config.Validate(); err != nil {
		return fmt.Errorf("check: %w", err)
	}
	if cfg.Check.Workers < 0 {
		return fmt.Errorf("check.workers must be >= 0")
	}
	switch cfg.Output.Pretty {
	case "auto", "always", "never":
	default:
		return fmt.Errorf("output.pretty must be one of auto, always, never")
	}
	for i, s := range cfg.Scenarios {
		if strings.TrimSpace(s) == "" {
			return fmt.Errorf("scenarios[%d] must not be empty", i)
		}
	}
	if cfg.Web.Enable && strings.TrimSpace(cfg.Web.Listen) == "" {
		return fmt.Errorf("web.listen is required when web.enable is true")
	}
	return nil
}

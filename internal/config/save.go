package config

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"
)

const fileHeader = `# dgxops configuration
# Every key can be overridden with an environment variable, e.g.
# DGXOPS_SERVER_LISTEN=0.0.0.0:7420 or DGXOPS_STATUS_INTERVAL=10s.
`

// Marshal renders cfg as YAML with a short header comment.
func Marshal(cfg *Config) ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteString(fileHeader)

	enc := yaml.NewEncoder(&buf)
	enc.SetIndent(2)
	if err := enc.Encode(toYAML(cfg)); err != nil {
		return nil, fmt.Errorf("failed to encode config: %w", err)
	}
	if err := enc.Close(); err != nil {
		return nil, fmt.Errorf("failed to encode config: %w", err)
	}
	return buf.Bytes(), nil
}

// Save writes cfg to path, creating parent directories. It refuses to
// overwrite an existing file unless force is set.
func Save(cfg *Config, path string, force bool) error {
	if !force {
		if _, err := os.Stat(path); err == nil {
			return fmt.Errorf("%s already exists", path)
		}
	}

	data, err := Marshal(cfg)
	if err != nil {
		return err
	}

	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}
	return nil
}

// yamlConfig mirrors Config with durations as strings, since yaml.v3
// would otherwise write them as nanosecond integers.
type yamlConfig struct {
	Version  int            `yaml:"version"`
	Database DatabaseConfig `yaml:"database"`
	Server   ServerConfig   `yaml:"server"`
	SSH      struct {
		DialTimeout           string `yaml:"dial_timeout"`
		ExecTimeout           string `yaml:"exec_timeout"`
		ProbeTimeout          string `yaml:"probe_timeout"`
		StrictHostKeyChecking bool   `yaml:"strict_host_key_checking"`
	} `yaml:"ssh"`
	Status struct {
		Interval string `yaml:"interval"`
	} `yaml:"status"`
	Metrics struct {
		Interval     string `yaml:"interval"`
		HistorySize  int    `yaml:"history_size"`
		PersistEvery int    `yaml:"persist_every"`
		Retention    string `yaml:"retention"`
		Interface    string `yaml:"interface,omitempty"`
	} `yaml:"metrics"`
	Operations OperationsConfig `yaml:"operations"`
	Sync       SyncConfig       `yaml:"sync"`
	Events     EventsConfig     `yaml:"events"`
	Log        LogConfig        `yaml:"log"`
}

func toYAML(cfg *Config) yamlConfig {
	var y yamlConfig
	y.Version = cfg.Version
	y.Database = cfg.Database
	y.Server = cfg.Server
	y.SSH.DialTimeout = cfg.SSH.DialTimeout.String()
	y.SSH.ExecTimeout = cfg.SSH.ExecTimeout.String()
	y.SSH.ProbeTimeout = cfg.SSH.ProbeTimeout.String()
	y.SSH.StrictHostKeyChecking = cfg.SSH.StrictHostKeyChecking
	y.Status.Interval = cfg.Status.Interval.String()
	y.Metrics.Interval = cfg.Metrics.Interval.String()
	y.Metrics.HistorySize = cfg.Metrics.HistorySize
	y.Metrics.PersistEvery = cfg.Metrics.PersistEvery
	y.Metrics.Retention = cfg.Metrics.Retention.String()
	y.Metrics.Interface = cfg.Metrics.Interface
	y.Operations = cfg.Operations
	y.Sync = cfg.Sync
	y.Events = cfg.Events
	y.Log = cfg.Log
	return y
}

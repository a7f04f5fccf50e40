package config

import "time"

// CurrentConfigVersion is the schema version for the config file.
// Increment when making breaking changes to the config structure.
const CurrentConfigVersion = 1

// Config represents the complete dgxops configuration file.
type Config struct {
	Version    int              `yaml:"version" mapstructure:"version"`
	Database   DatabaseConfig   `yaml:"database" mapstructure:"database"`
	Server     ServerConfig     `yaml:"server" mapstructure:"server"`
	SSH        SSHConfig        `yaml:"ssh" mapstructure:"ssh"`
	Status     StatusConfig     `yaml:"status" mapstructure:"status"`
	Metrics    MetricsConfig    `yaml:"metrics" mapstructure:"metrics"`
	Operations OperationsConfig `yaml:"operations" mapstructure:"operations"`
	Sync       SyncConfig       `yaml:"sync" mapstructure:"sync"`
	Events     EventsConfig     `yaml:"events" mapstructure:"events"`
	Log        LogConfig        `yaml:"log" mapstructure:"log"`
}

// DatabaseConfig locates the local SQLite database.
type DatabaseConfig struct {
	// Path to the database file. ":memory:" keeps everything in RAM.
	Path string `yaml:"path" mapstructure:"path"`
}

// ServerConfig controls the HTTP command surface.
type ServerConfig struct {
	// Listen is the address `dgxops serve` binds to, and the default
	// address CLI commands talk to.
	Listen string `yaml:"listen" mapstructure:"listen"`
}

// SSHConfig bounds every transport call.
type SSHConfig struct {
	// DialTimeout bounds the TCP connect and SSH handshake.
	DialTimeout time.Duration `yaml:"dial_timeout" mapstructure:"dial_timeout"`

	// ExecTimeout bounds a single remote command.
	ExecTimeout time.Duration `yaml:"exec_timeout" mapstructure:"exec_timeout"`

	// ProbeTimeout bounds the liveness probe.
	ProbeTimeout time.Duration `yaml:"probe_timeout" mapstructure:"probe_timeout"`

	// StrictHostKeyChecking rejects hosts missing from known_hosts.
	StrictHostKeyChecking bool `yaml:"strict_host_key_checking" mapstructure:"strict_host_key_checking"`
}

// StatusConfig controls the connection liveness loop.
type StatusConfig struct {
	Interval time.Duration `yaml:"interval" mapstructure:"interval"`
}

// MetricsConfig controls telemetry sampling and retention.
type MetricsConfig struct {
	// Interval between samples per connection.
	Interval time.Duration `yaml:"interval" mapstructure:"interval"`

	// HistorySize is the number of samples kept in memory per connection.
	HistorySize int `yaml:"history_size" mapstructure:"history_size"`

	// PersistEvery writes every Nth sample to the database. 0 disables persistence.
	PersistEvery int `yaml:"persist_every" mapstructure:"persist_every"`

	// Retention is how long persisted samples are kept.
	Retention time.Duration `yaml:"retention" mapstructure:"retention"`

	// Interface pins the network interface to report. Empty picks the
	// busiest non-loopback interface.
	Interface string `yaml:"interface" mapstructure:"interface"`
}

// OperationsConfig controls how operations are launched.
type OperationsConfig struct {
	// LogDir is the remote directory operation logs are written to.
	// Kept unexpanded so the remote shell resolves ~.
	LogDir string `yaml:"log_dir" mapstructure:"log_dir"`

	// AutoLaunch launches an operation right after it is created.
	AutoLaunch bool `yaml:"auto_launch" mapstructure:"auto_launch"`
}

// SyncConfig controls operation reconciliation.
type SyncConfig struct {
	// UnknownExit is the status assigned to a dead process whose exit
	// code can't be read: "completed" or "failed".
	UnknownExit string `yaml:"unknown_exit" mapstructure:"unknown_exit"`

	// Concurrency caps simultaneous liveness checks per sync.
	Concurrency int `yaml:"concurrency" mapstructure:"concurrency"`
}

// EventsConfig controls the state-change event stream.
type EventsConfig struct {
	Kafka KafkaConfig `yaml:"kafka" mapstructure:"kafka"`
}

// KafkaConfig enables publishing to Kafka when Brokers is non-empty.
type KafkaConfig struct {
	Brokers []string `yaml:"brokers" mapstructure:"brokers"`
	Topic   string   `yaml:"topic" mapstructure:"topic"`
}

// LogConfig controls the process logger.
type LogConfig struct {
	// Level: "debug", "info", "warn", or "error".
	Level string `yaml:"level" mapstructure:"level"`

	// Format: "text" or "json".
	Format string `yaml:"format" mapstructure:"format"`
}

// DefaultConfig returns a Config with sensible defaults.
func DefaultConfig() *Config {
	return &Config{
		Version: CurrentConfigVersion,
		Database: DatabaseConfig{
			Path: "~/.local/share/dgxops/dgxops.db",
		},
		Server: ServerConfig{
			Listen: "127.0.0.1:7420",
		},
		SSH: SSHConfig{
			DialTimeout:           10 * time.Second,
			ExecTimeout:           30 * time.Second,
			ProbeTimeout:          5 * time.Second,
			StrictHostKeyChecking: true,
		},
		Status: StatusConfig{
			Interval: 5 * time.Second,
		},
		Metrics: MetricsConfig{
			Interval:     2 * time.Second,
			HistorySize:  60,
			PersistEvery: 15,
			Retention:    7 * 24 * time.Hour,
		},
		Operations: OperationsConfig{
			LogDir:     "~/.dgxops/logs",
			AutoLaunch: true,
		},
		Sync: SyncConfig{
			UnknownExit: "failed",
			Concurrency: 8,
		},
		Events: EventsConfig{
			Kafka: KafkaConfig{
				Brokers: []string{},
				Topic:   "dgxops.events",
			},
		},
		Log: LogConfig{
			Level:  "info",
			Format: "text",
		},
	}
}

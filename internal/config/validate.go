package config

import (
	"fmt"
	"net"
	"strings"
	"time"

	"github.com/rileyhilliard/dgxops/internal/errors"
)

var (
	validLogLevels   = map[string]bool{"debug": true, "info": true, "warn": true, "warning": true, "error": true}
	validLogFormats  = map[string]bool{"text": true, "json": true}
	validUnknownExit = map[string]bool{"completed": true, "failed": true}
)

// Validate checks the config for errors and returns structured error messages.
func Validate(cfg *Config) error {
	if cfg.Version > CurrentConfigVersion {
		return errors.New(errors.ErrConfig,
			fmt.Sprintf("This config is from the future (version %d, but dgxops only knows up to %d)", cfg.Version, CurrentConfigVersion),
			"Upgrade dgxops, or lower the version in your config")
	}

	if strings.TrimSpace(cfg.Database.Path) == "" {
		return errors.New(errors.ErrConfig,
			"database.path is empty",
			"Set database.path to a file path, or ':memory:' for a throwaway database")
	}

	if _, _, err := net.SplitHostPort(cfg.Server.Listen); err != nil {
		return errors.WrapWithCode(err, errors.ErrConfig,
			fmt.Sprintf("server.listen %q isn't a host:port address", cfg.Server.Listen),
			"Use something like 127.0.0.1:7420")
	}

	durations := []struct {
		key string
		val time.Duration
	}{
		{"ssh.dial_timeout", cfg.SSH.DialTimeout},
		{"ssh.exec_timeout", cfg.SSH.ExecTimeout},
		{"ssh.probe_timeout", cfg.SSH.ProbeTimeout},
		{"status.interval", cfg.Status.Interval},
		{"metrics.interval", cfg.Metrics.Interval},
	}
	for _, d := range durations {
		if d.val <= 0 {
			return errors.New(errors.ErrConfig,
				fmt.Sprintf("%s must be positive, got %s", d.key, d.val),
				"Use a Go duration like 5s or 1m")
		}
	}

	if err := validateMetrics(cfg.Metrics); err != nil {
		return errors.WrapWithCode(err, errors.ErrConfig, err.Error(), "Check the 'metrics' section of your config.")
	}

	if !validUnknownExit[cfg.Sync.UnknownExit] {
		return errors.New(errors.ErrConfig,
			fmt.Sprintf("sync.unknown_exit must be 'completed' or 'failed', got %q", cfg.Sync.UnknownExit),
			"Pick the status a dead process gets when its exit code can't be read")
	}
	if cfg.Sync.Concurrency < 1 {
		return errors.New(errors.ErrConfig,
			fmt.Sprintf("sync.concurrency must be at least 1, got %d", cfg.Sync.Concurrency),
			"")
	}

	if strings.TrimSpace(cfg.Operations.LogDir) == "" {
		return errors.New(errors.ErrConfig,
			"operations.log_dir is empty",
			"Set it to a remote directory, e.g. ~/.dgxops/logs")
	}

	if len(cfg.Events.Kafka.Brokers) > 0 && cfg.Events.Kafka.Topic == "" {
		return errors.New(errors.ErrConfig,
			"events.kafka.topic is required when brokers are set",
			"Set events.kafka.topic, or clear events.kafka.brokers to disable publishing")
	}

	if !validLogLevels[strings.ToLower(cfg.Log.Level)] {
		return errors.New(errors.ErrConfig,
			fmt.Sprintf("log.level %q isn't recognized", cfg.Log.Level),
			"Use debug, info, warn, or error")
	}
	if !validLogFormats[strings.ToLower(cfg.Log.Format)] {
		return errors.New(errors.ErrConfig,
			fmt.Sprintf("log.format %q isn't recognized", cfg.Log.Format),
			"Use text or json")
	}

	return nil
}

func validateMetrics(m MetricsConfig) error {
	if m.HistorySize < 1 {
		return fmt.Errorf("metrics.history_size must be at least 1, got %d", m.HistorySize)
	}
	if m.PersistEvery < 0 {
		return fmt.Errorf("metrics.persist_every can't be negative")
	}
	if m.PersistEvery > 0 && m.Retention <= 0 {
		return fmt.Errorf("metrics.retention must be positive when persistence is on")
	}
	return nil
}

package config

import (
	"os"
	"path/filepath"
	"reflect"
	"strings"

	"github.com/go-viper/mapstructure/v2"
	"github.com/spf13/viper"

	"github.com/rileyhilliard/dgxops/internal/errors"
)

const (
	// ConfigFileName is looked up in the working directory.
	ConfigFileName = "dgxops.yaml"
	// GlobalConfigDir and GlobalConfigFile locate the per-user config
	// under the home directory.
	GlobalConfigDir  = ".config/dgxops"
	GlobalConfigFile = "config.yaml"
	// EnvPrefix prefixes overrides: server.listen is DGXOPS_SERVER_LISTEN.
	EnvPrefix = "DGXOPS"
)

// LoadOrDefault finds, loads, and validates the config. With no file
// anywhere it returns the defaults plus environment overrides, and an
// empty path.
func LoadOrDefault(explicit string) (*Config, string, error) {
	path, err := Find(explicit)
	if err != nil {
		return nil, "", err
	}
	cfg, err := Load(path)
	if err == nil {
		err = Validate(cfg)
	}
	if err != nil {
		return nil, path, err
	}
	return cfg, path, nil
}

// Find returns the first config that exists out of explicit,
// ./dgxops.yaml and ~/.config/dgxops/config.yaml. A missing explicit
// path is an error; finding nothing otherwise returns "".
func Find(explicit string) (string, error) {
	if explicit != "" {
		_, err := os.Stat(explicit)
		switch {
		case err == nil:
			return explicit, nil
		case os.IsNotExist(err):
			return "", errors.WrapWithCode(err, errors.ErrConfig,
				"Config file not found: "+explicit, "Check the path passed to --config")
		default:
			return "", errors.WrapWithCode(err, errors.ErrConfig,
				"Can't read config file: "+explicit, "Check its permissions")
		}
	}

	cwd, err := os.Getwd()
	if err != nil {
		return "", errors.WrapWithCode(err, errors.ErrConfig,
			"Can't determine the working directory", "")
	}
	for _, candidate := range []string{filepath.Join(cwd, ConfigFileName), GlobalConfigPath()} {
		if candidate == "" {
			continue
		}
		if _, err := os.Stat(candidate); err == nil {
			return candidate, nil
		}
	}
	return "", nil
}

// GlobalConfigPath returns ~/.config/dgxops/config.yaml, or "" when the
// home directory is unknown.
func GlobalConfigPath() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ""
	}
	return filepath.Join(home, GlobalConfigDir, GlobalConfigFile)
}

// Load reads path over the defaults and applies environment overrides.
// An empty path skips the file.
func Load(path string) (*Config, error) {
	v := viper.New()
	v.SetConfigType("yaml")
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	for key, value := range defaults() {
		v.SetDefault(key, value)
	}

	source := "the environment"
	if path != "" {
		source = path
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			if os.IsNotExist(err) {
				return nil, errors.WrapWithCode(err, errors.ErrConfig, "Config file not found",
					"Create one with 'dgxops init', or pass --config")
			}
			return nil, errors.WrapWithCode(err, errors.ErrConfig, "Can't read config file",
				"Check that "+path+" is valid YAML")
		}
	}

	cfg := DefaultConfig()
	hooks := viper.DecodeHook(mapstructure.ComposeDecodeHookFunc(
		mapstructure.StringToTimeDurationHookFunc(),
		commaList,
	))
	if err := v.Unmarshal(cfg, hooks); err != nil {
		return nil, errors.WrapWithCode(err, errors.ErrConfig, "Invalid config",
			"Check the values in "+source)
	}
	cfg.Database.Path = ExpandLocal(cfg.Database.Path)
	return cfg, nil
}

// defaults names every key, so AutomaticEnv can override keys the file
// leaves out.
func defaults() map[string]any {
	d := DefaultConfig()
	return map[string]any{
		"version":                      d.Version,
		"database.path":                d.Database.Path,
		"server.listen":                d.Server.Listen,
		"ssh.dial_timeout":             d.SSH.DialTimeout,
		"ssh.exec_timeout":             d.SSH.ExecTimeout,
		"ssh.probe_timeout":            d.SSH.ProbeTimeout,
		"ssh.strict_host_key_checking": d.SSH.StrictHostKeyChecking,
		"status.interval":              d.Status.Interval,
		"metrics.interval":             d.Metrics.Interval,
		"metrics.history_size":         d.Metrics.HistorySize,
		"metrics.persist_every":        d.Metrics.PersistEvery,
		"metrics.retention":            d.Metrics.Retention,
		"metrics.interface":            d.Metrics.Interface,
		"operations.log_dir":           d.Operations.LogDir,
		"operations.auto_launch":       d.Operations.AutoLaunch,
		"sync.unknown_exit":            d.Sync.UnknownExit,
		"sync.concurrency":             d.Sync.Concurrency,
		"events.kafka.brokers":         d.Events.Kafka.Brokers,
		"events.kafka.topic":           d.Events.Kafka.Topic,
		"log.level":                    d.Log.Level,
		"log.format":                   d.Log.Format,
	}
}

// commaList decodes "a, b,,c" from the environment into []string{"a",
// "b", "c"}.
func commaList(from, to reflect.Type, data any) (any, error) {
	if from.Kind() != reflect.String || to != reflect.TypeOf([]string(nil)) {
		return data, nil
	}
	var out []string
	for _, part := range strings.Split(data.(string), ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out, nil
}

package doctor

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/rileyhilliard/dgxops/internal/config"
	"github.com/rileyhilliard/dgxops/internal/errors"
	"github.com/rileyhilliard/dgxops/internal/store"
)

const configCategory = "CONFIG"

// NewConfigChecks returns the config checks. The database check needs the
// loaded config and is left out when cfg is nil.
func NewConfigChecks(configPath string, cfg *config.Config) []Check {
	checks := []Check{
		&ConfigFileCheck{ConfigPath: configPath},
		&ConfigSchemaCheck{ConfigPath: configPath},
	}
	if cfg != nil {
		checks = append(checks, &DatabaseCheck{Path: cfg.Database.Path})
	}
	return checks
}

// ConfigFileCheck reports which config file is in effect. Defaults are a
// working setup, so having no file is only a warning.
type ConfigFileCheck struct {
	ConfigPath string // empty searches the usual places
}

func (c *ConfigFileCheck) Name() string     { return "config_file" }
func (c *ConfigFileCheck) Category() string { return configCategory }
func (c *ConfigFileCheck) Fix() error       { return nil }

func (c *ConfigFileCheck) Run(context.Context) CheckResult {
	r := CheckResult{Name: c.Name()}
	switch path, err := config.Find(c.ConfigPath); {
	case err != nil:
		r.Status = StatusFail
		r.Message = "Can't look for a config file: " + errors.Summary(err)
		r.Suggestion = "Check permissions, or write a fresh one with: dgxops init"
	case path == "":
		r.Status = StatusWarn
		r.Message = "No config file, running on defaults"
		r.Suggestion = "Write an editable one with: dgxops init"
	default:
		r.Message = "Config file: " + displayPath(path)
	}
	return r
}

// ConfigSchemaCheck loads and validates the effective config.
type ConfigSchemaCheck struct {
	ConfigPath string
}

func (c *ConfigSchemaCheck) Name() string     { return "config_schema" }
func (c *ConfigSchemaCheck) Category() string { return configCategory }
func (c *ConfigSchemaCheck) Fix() error       { return nil }

func (c *ConfigSchemaCheck) Run(context.Context) CheckResult {
	r := CheckResult{Name: c.Name(), Status: StatusFail}

	path, err := config.Find(c.ConfigPath)
	if err != nil {
		r.Message = "Can't validate: the config file isn't accessible"
		return r
	}
	cfg, err := config.Load(path)
	if err != nil {
		r.Message = "Config doesn't load: " + errors.Summary(err)
		r.Suggestion = "Check the YAML syntax"
		return r
	}
	if err := config.Validate(cfg); err != nil {
		r.Message = "Invalid config: " + errors.Summary(err)
		r.Suggestion = "Fix the values in " + displayPath(path)
		return r
	}

	r.Status = StatusPass
	r.Message = "Config is valid"
	return r
}

// DatabaseCheck makes sure the SQLite file's directory exists and takes
// writes.
type DatabaseCheck struct {
	Path string
}

func (c *DatabaseCheck) Name() string     { return "database" }
func (c *DatabaseCheck) Category() string { return configCategory }

func (c *DatabaseCheck) inMemory() bool {
	return c.Path == store.MemoryPath || strings.HasPrefix(c.Path, "file:")
}

func (c *DatabaseCheck) dir() string {
	return filepath.Dir(config.ExpandLocal(c.Path))
}

func (c *DatabaseCheck) Run(context.Context) CheckResult {
	r := CheckResult{Name: c.Name()}
	if c.inMemory() {
		r.Message = "Database: " + c.Path
		return r
	}

	dir := c.dir()
	info, err := os.Stat(dir)
	switch {
	case os.IsNotExist(err):
		r.Status = StatusWarn
		r.Message = "Database directory doesn't exist yet: " + displayPath(dir)
		r.Suggestion = "The daemon creates it on start, or run: dgxops doctor --fix"
		r.Fixable = true
		return r
	case err != nil || !info.IsDir():
		r.Status = StatusFail
		r.Message = "Database directory isn't usable: " + displayPath(dir)
		r.Suggestion = "Point database.path somewhere you can write"
		return r
	}

	if err := probeWritable(dir); err != nil {
		r.Status = StatusFail
		r.Message = fmt.Sprintf("Can't write to %s", displayPath(dir))
		r.Suggestion = "Check the directory's owner, or point database.path elsewhere"
		return r
	}
	r.Message = "Database: " + displayPath(config.ExpandLocal(c.Path))
	return r
}

func (c *DatabaseCheck) Fix() error {
	if c.inMemory() {
		return nil
	}
	return os.MkdirAll(c.dir(), 0o755)
}

// probeWritable creates and removes a temp file in dir.
func probeWritable(dir string) error {
	f, err := os.CreateTemp(dir, ".dgxops-write-test-*")
	if err != nil {
		return err
	}
	f.Close()
	return os.Remove(f.Name())
}

// displayPath abbreviates paths under the home directory with ~.
func displayPath(p string) string {
	home, err := os.UserHomeDir()
	if err != nil || home == "" {
		return p
	}
	if rel, err := filepath.Rel(home, p); err == nil && rel != ".." && !strings.HasPrefix(rel, "../") {
		return filepath.Join("~", rel)
	}
	return p
}

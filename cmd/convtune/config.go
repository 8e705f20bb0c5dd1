package main

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"time"

	"github.com/urfave/cli/v3"
	"gopkg.in/yaml.v3"

	"github.com/samcharles93/convtune/internal/logger"
)

// Config represents the convtune configuration file
// (~/.config/convtune/config.yaml). Pointer fields distinguish "not set"
// from zero values.
type Config struct {
	PerfDbDir       string `yaml:"perfdb_dir"`
	SystemPerfDbDir string `yaml:"system_perfdb_dir"`
	FindEnforce     string `yaml:"find_enforce"`

	Search        *bool          `yaml:"search"`
	FastOnly      *bool          `yaml:"fast_only"`
	DisablePerfDb *bool          `yaml:"disable_perfdb"`
	Iterations    *int64         `yaml:"iterations"`
	Workspace     *int64         `yaml:"workspace"`
	Heartbeat     *time.Duration `yaml:"heartbeat"`

	// Output
	LogLevel  string `yaml:"log_level"`
	LogFormat string `yaml:"log_format"`

	// Server
	ServerAddress string `yaml:"server_address"`
}

func configPath() string {
	dir, err := os.UserConfigDir()
	if err != nil {
		return ""
	}
	return filepath.Join(dir, "convtune", "config.yaml")
}

// LoadConfig reads the config file at path. A missing file yields a zero
// Config; a malformed one is an error.
func LoadConfig(path string) (Config, error) {
	if path == "" {
		return Config{}, nil
	}
	data, err := os.ReadFile(path)
	if errors.Is(err, fs.ErrNotExist) {
		return Config{}, nil
	}
	if err != nil {
		return Config{}, err
	}
	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return Config{}, fmt.Errorf("config %s: %w", path, err)
	}
	return cfg, nil
}

// flagSetter is the part of *cli.Command the config layer needs.
type flagSetter interface {
	IsSet(name string) bool
}

// applyConfig copies config file values into the flag variables the user
// did not set explicitly.
func applyConfig(c flagSetter, cfg Config) {
	if cfg.PerfDbDir != "" && !c.IsSet("perfdb-dir") {
		perfDbDir = cfg.PerfDbDir
	}
	if cfg.SystemPerfDbDir != "" && !c.IsSet("system-perfdb-dir") {
		systemPerfDbDir = cfg.SystemPerfDbDir
	}
	if cfg.FindEnforce != "" && !c.IsSet("find-enforce") {
		findEnforce = cfg.FindEnforce
	}
	if cfg.Search != nil && !c.IsSet("search") {
		search = *cfg.Search
	}
	if cfg.FastOnly != nil && !c.IsSet("fast-only") {
		fastOnly = *cfg.FastOnly
	}
	if cfg.DisablePerfDb != nil && !c.IsSet("disable-perfdb") {
		disablePerfDb = *cfg.DisablePerfDb
	}
	if cfg.Iterations != nil && !c.IsSet("iterations") {
		iterations = *cfg.Iterations
	}
	if cfg.Workspace != nil && !c.IsSet("workspace") {
		workspaceBytes = *cfg.Workspace
	}
	if cfg.Heartbeat != nil && !c.IsSet("heartbeat") {
		heartbeat = *cfg.Heartbeat
	}
	if cfg.LogLevel != "" && !c.IsSet("log-level") && !c.IsSet("debug") {
		logLevel = cfg.LogLevel
	}
	if cfg.LogFormat != "" && !c.IsSet("log-format") {
		logFormat = cfg.LogFormat
	}
}

// prepare runs before every leaf command: it applies the config file and
// installs the process logger in the context.
func prepare(ctx context.Context, cmd *cli.Command) (context.Context, error) {
	cfg, err := LoadConfig(configFile)
	if err != nil {
		return ctx, cli.Exit(fmt.Sprintf("error: %v", err), 1)
	}
	applyConfig(cmd, cfg)
	if cfg.ServerAddress != "" && !cmd.IsSet("addr") {
		serverAddr = cfg.ServerAddress
	}

	level := logLevel
	if debug {
		level = "debug"
	}
	log, err := logger.Setup(logFormat, level, os.Stderr)
	if err != nil {
		return ctx, cli.Exit(fmt.Sprintf("error: %v", err), 1)
	}
	return logger.WithContext(ctx, log), nil
}

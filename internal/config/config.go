// Package config loads stagehand settings from a TOML file.
//
// Keys absent from the file keep their defaults; flags given on the command
// line override both.
package config

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strings"

	"github.com/BurntSushi/toml"
)

// DefaultPath is the file read when no --config flag is given.
const DefaultPath = "stagehand.toml"

// Strategy names accepted in config files and plans.
const (
	StrategySequential = "sequential"
	StrategyFanOut     = "fan-out"
)

// Driver names accepted in config files. They match the database/sql driver
// names registered by the store.
const (
	DriverCGO  = "sqlite3"
	DriverPure = "sqlite"
)

// Config is the resolved stagehand configuration.
type Config struct {
	Database string
	Driver   string
	Strategy string
	LogLevel slog.Level
}

type fileConfig struct {
	Database string `toml:"database"`
	Driver   string `toml:"driver"`
	Strategy string `toml:"strategy"`
	LogLevel string `toml:"log_level"`
}

// Default returns the configuration used when no file is present.
func Default() Config {
	return Config{
		Database: "stagehand.db",
		Driver:   DriverCGO,
		Strategy: StrategySequential,
		LogLevel: slog.LevelInfo,
	}
}

// Load reads path and applies every defined key onto Default().
func Load(path string) (Config, error) {
	cfg := Default()

	var raw fileConfig
	meta, err := toml.DecodeFile(path, &raw)
	if err != nil {
		return Config{}, fmt.Errorf("load config: %w", err)
	}
	if undecoded := meta.Undecoded(); len(undecoded) > 0 {
		return Config{}, fmt.Errorf("load config: unknown key %q", undecoded[0].String())
	}

	if meta.IsDefined("database") {
		db := strings.TrimSpace(raw.Database)
		if db == "" {
			return Config{}, errors.New("load config: database must not be empty")
		}
		cfg.Database = db
	}

	if meta.IsDefined("driver") {
		cfg.Driver = strings.TrimSpace(raw.Driver)
	}

	if meta.IsDefined("strategy") {
		cfg.Strategy = strings.TrimSpace(raw.Strategy)
	}

	if meta.IsDefined("log_level") {
		lvl, err := ParseLevel(raw.LogLevel)
		if err != nil {
			return Config{}, fmt.Errorf("load config: %w", err)
		}
		cfg.LogLevel = lvl
	}

	if err := cfg.Validate(); err != nil {
		return Config{}, fmt.Errorf("load config: %w", err)
	}
	return cfg, nil
}

// LoadOptional is like Load but returns Default() when path does not exist.
func LoadOptional(path string) (Config, error) {
	if _, err := os.Stat(path); errors.Is(err, os.ErrNotExist) {
		return Default(), nil
	}
	return Load(path)
}

// Validate checks enumerated fields.
func (c Config) Validate() error {
	if err := ValidateDriver(c.Driver); err != nil {
		return err
	}
	return ValidateStrategy(c.Strategy)
}

// ValidateDriver rejects driver names the store does not register.
func ValidateDriver(name string) error {
	switch name {
	case DriverCGO, DriverPure:
		return nil
	default:
		return fmt.Errorf("unknown driver %q (want %s or %s)", name, DriverCGO, DriverPure)
	}
}

// ValidateStrategy rejects unknown flush strategies.
func ValidateStrategy(name string) error {
	switch name {
	case StrategySequential, StrategyFanOut:
		return nil
	default:
		return fmt.Errorf("unknown strategy %q (want %s or %s)", name, StrategySequential, StrategyFanOut)
	}
}

// ParseLevel maps debug, info, warn and error to slog levels.
func ParseLevel(s string) (slog.Level, error) {
	var lvl slog.Level
	if err := lvl.UnmarshalText([]byte(strings.TrimSpace(s))); err != nil {
		return 0, fmt.Errorf("parse log_level: %w", err)
	}
	return lvl, nil
}

// Encode writes c as TOML.
func (c Config) Encode() ([]byte, error) {
	var b strings.Builder
	err := toml.NewEncoder(&b).Encode(fileConfig{
		Database: c.Database,
		Driver:   c.Driver,
		Strategy: c.Strategy,
		LogLevel: strings.ToLower(c.LogLevel.String()),
	})
	if err != nil {
		return nil, fmt.Errorf("encode config: %w", err)
	}
	return []byte(b.String()), nil
}

// Template is the commented file written by `stagehand init`.
const Template = `# stagehand configuration

# SQLite database file the store writes to.
database = "stagehand.db"

# SQLite driver: "sqlite3" (cgo, mattn/go-sqlite3) or "sqlite" (pure Go).
driver = "sqlite3"

# Default flush strategy for plans that do not set one:
# "sequential" (stop at first failure) or "fan-out" (concurrent within a stage).
strategy = "sequential"

# Log level: debug, info, warn, error.
log_level = "info"
`

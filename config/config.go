// Package config loads ddlbench settings from an optional YAML file and
// DDLBENCH_* environment variables.
package config

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/viper"

	"github.com/weiihann/ddlbench/engine"
	"github.com/weiihann/ddlbench/recorder"
	"github.com/weiihann/ddlbench/workload"
)

// DefaultFile is read when no file is given and it exists in the working
// directory.
const DefaultFile = "ddlbench.yaml"

// EnvPrefix prefixes every environment override, e.g.
// DDLBENCH_ENGINES_POSTGRES_DSN.
const EnvPrefix = "DDLBENCH"

// Config holds the settings of a benchmark run.
type Config struct {
	Engine        string        `json:"engine" mapstructure:"engine"`
	Object        string        `json:"object" mapstructure:"object"`
	Granularities []int         `json:"granularities" mapstructure:"granularities"`
	Seed          int64         `json:"seed" mapstructure:"seed"`
	LogDB         string        `json:"log_db" mapstructure:"log_db"`
	LogLevel      string        `json:"log_level" mapstructure:"log_level"`
	Engines       EnginesConfig `json:"engines" mapstructure:"engines"`
	Archive       ArchiveConfig `json:"archive" mapstructure:"archive"`
}

// EnginesConfig holds connection settings per engine.
type EnginesConfig struct {
	SQLite    EngineConfig `json:"sqlite" mapstructure:"sqlite"`
	Postgres  EngineConfig `json:"postgres" mapstructure:"postgres"`
	DuckDB    EngineConfig `json:"duckdb" mapstructure:"duckdb"`
	Snowflake EngineConfig `json:"snowflake" mapstructure:"snowflake"`
}

// EngineConfig holds the connection settings of one engine. File engines use
// Path, server engines use DSN.
type EngineConfig struct {
	Path   string `json:"path" mapstructure:"path"`
	DSN    string `json:"dsn" mapstructure:"dsn"`
	Schema string `json:"schema" mapstructure:"schema"`
}

// ArchiveConfig controls the upload of the measurement log after a run.
// An empty Bucket disables archiving.
type ArchiveConfig struct {
	Bucket       string `json:"bucket" mapstructure:"bucket"`
	Prefix       string `json:"prefix" mapstructure:"prefix"`
	Region       string `json:"region" mapstructure:"region"`
	Endpoint     string `json:"endpoint" mapstructure:"endpoint"`
	UsePathStyle bool   `json:"use_path_style" mapstructure:"use_path_style"`
}

// Default returns the built-in settings.
func Default() *Config {
	return &Config{
		Object:   string(workload.ObjectTable),
		LogDB:    recorder.DefaultPath,
		LogLevel: "info",
		Engines: EnginesConfig{
			SQLite:    EngineConfig{Path: "ddlbench.db"},
			Postgres:  EngineConfig{Schema: engine.DefaultSchema},
			DuckDB:    EngineConfig{Path: "ddlbench_duckdb.duckdb", Schema: engine.DefaultSchema},
			Snowflake: EngineConfig{Schema: engine.DefaultWarehouseSchema},
		},
		Archive: ArchiveConfig{
			Prefix: "ddlbench",
			Region: "us-east-1",
		},
	}
}

// Load reads path on top of the defaults and applies environment overrides.
// An empty path falls back to DefaultFile when it exists.
func Load(path string) (*Config, error) {
	v := viper.New()
	v.SetConfigType("yaml")
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setDefaults(v, Default())

	if path == "" {
		if _, err := os.Stat(DefaultFile); err == nil {
			path = DefaultFile
		}
	}

	if path != "" {
		v.SetConfigFile(path)

		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("read config %s: %w", path, err)
		}
	}

	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("decode config: %w", err)
	}

	return cfg, nil
}

// setDefaults registers every key so AutomaticEnv can override it during
// Unmarshal.
func setDefaults(v *viper.Viper, d *Config) {
	v.SetDefault("engine", d.Engine)
	v.SetDefault("object", d.Object)
	v.SetDefault("granularities", d.Granularities)
	v.SetDefault("seed", d.Seed)
	v.SetDefault("log_db", d.LogDB)
	v.SetDefault("log_level", d.LogLevel)

	for name, e := range map[string]EngineConfig{
		"sqlite":    d.Engines.SQLite,
		"postgres":  d.Engines.Postgres,
		"duckdb":    d.Engines.DuckDB,
		"snowflake": d.Engines.Snowflake,
	} {
		v.SetDefault("engines."+name+".path", e.Path)
		v.SetDefault("engines."+name+".dsn", e.DSN)
		v.SetDefault("engines."+name+".schema", e.Schema)
	}

	v.SetDefault("archive.bucket", d.Archive.Bucket)
	v.SetDefault("archive.prefix", d.Archive.Prefix)
	v.SetDefault("archive.region", d.Archive.Region)
	v.SetDefault("archive.endpoint", d.Archive.Endpoint)
	v.SetDefault("archive.use_path_style", d.Archive.UsePathStyle)
}

// Validate checks the settings needed to run an experiment.
func (c *Config) Validate() error {
	if c.Engine == "" {
		return errors.New("engine is required")
	}

	sys, err := engine.ParseSystem(c.Engine)
	if err != nil {
		return err
	}

	if _, err := workload.ParseObjectKind(c.Object); err != nil {
		return err
	}

	if _, err := workload.ParseGranularities(c.Granularities); err != nil {
		return err
	}

	if _, err := ParseLevel(c.LogLevel); err != nil {
		return err
	}

	if c.LogDB == "" {
		return errors.New("log_db is required")
	}

	opts := c.EngineOptions(sys)

	switch sys {
	case engine.SQLite:
		if opts.Path == "" {
			return fmt.Errorf("engines.%s.path is required", sys)
		}
	case engine.DuckDB:
		// DuckDB names the catalog after the file; a schema of the same name
		// makes every qualified table reference ambiguous.
		if opts.Path != "" && strings.EqualFold(catalogName(opts.Path), opts.Schema) {
			return fmt.Errorf("engines.duckdb.schema %q clashes with the catalog of %s", opts.Schema, opts.Path)
		}
	case engine.Postgres, engine.Snowflake:
		if opts.DSN == "" {
			return fmt.Errorf("engines.%s.dsn is required", sys)
		}
	}

	// Reset deletes the engine's database file.
	if opts.Path != "" {
		same, err := samePath(c.LogDB, opts.Path)
		if err != nil {
			return err
		}
		if same {
			return fmt.Errorf("log_db %s must not be the %s database file", c.LogDB, sys)
		}
	}

	if c.Archive.Bucket != "" && c.Archive.Region == "" {
		return errors.New("archive.region is required when archive.bucket is set")
	}

	return nil
}

func catalogName(path string) string {
	base := filepath.Base(path)

	return strings.TrimSuffix(base, filepath.Ext(base))
}

func samePath(a, b string) (bool, error) {
	absA, err := filepath.Abs(a)
	if err != nil {
		return false, fmt.Errorf("resolve %s: %w", a, err)
	}

	absB, err := filepath.Abs(b)
	if err != nil {
		return false, fmt.Errorf("resolve %s: %w", b, err)
	}

	return absA == absB, nil
}

// System returns the selected engine. Call Validate first.
func (c *Config) System() engine.System {
	return engine.System(strings.ToLower(c.Engine))
}

// EngineOptions returns the connection settings of sys.
func (c *Config) EngineOptions(sys engine.System) engine.Options {
	var e EngineConfig

	switch sys {
	case engine.SQLite:
		e = c.Engines.SQLite
	case engine.Postgres:
		e = c.Engines.Postgres
	case engine.DuckDB:
		e = c.Engines.DuckDB
	case engine.Snowflake:
		e = c.Engines.Snowflake
	}

	return engine.Options{Path: e.Path, DSN: e.DSN, Schema: e.Schema}
}

// Workload returns the plan settings.
func (c *Config) Workload() (workload.Config, error) {
	levels, err := workload.ParseGranularities(c.Granularities)
	if err != nil {
		return workload.Config{}, err
	}

	object, err := workload.ParseObjectKind(c.Object)
	if err != nil {
		return workload.Config{}, err
	}

	return workload.Config{Granularities: levels, Object: object, Seed: c.Seed}, nil
}

// ParseLevel maps a log level name onto slog.
func ParseLevel(name string) (slog.Level, error) {
	var level slog.Level
	if err := level.UnmarshalText([]byte(name)); err != nil {
		return 0, fmt.Errorf("invalid log level %q", name)
	}

	return level, nil
}

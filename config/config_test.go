package config

import (
	"errors"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/weiihann/ddlbench/engine"
	"github.com/weiihann/ddlbench/workload"
)

func writeFile(t *testing.T, content string) string {
	t.Helper()

	path := filepath.Join(t.TempDir(), "ddlbench.yaml")
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}

	return path
}

func TestLoadDefaults(t *testing.T) {
	t.Chdir(t.TempDir())

	cfg, err := Load("")
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}

	want := Default()
	if cfg.Object != want.Object {
		t.Errorf("object = %q, want %q", cfg.Object, want.Object)
	}
	if cfg.LogDB != want.LogDB {
		t.Errorf("log_db = %q, want %q", cfg.LogDB, want.LogDB)
	}
	if cfg.Engines.Snowflake.Schema != engine.DefaultWarehouseSchema {
		t.Errorf("snowflake schema = %q, want %q",
			cfg.Engines.Snowflake.Schema, engine.DefaultWarehouseSchema)
	}
	if cfg.Archive.Bucket != "" {
		t.Errorf("archive bucket = %q, want empty", cfg.Archive.Bucket)
	}
}

func TestLoadFile(t *testing.T) {
	path := writeFile(t, `
engine: postgres
granularities: [100, 1, 10]
seed: 42
log_level: debug
engines:
  postgres:
    dsn: postgres://bench@localhost:5432/bench
    schema: ddl_test
archive:
  bucket: bench-results
  prefix: nightly
`)

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}

	if err := cfg.Validate(); err != nil {
		t.Fatalf("Validate failed: %v", err)
	}

	if cfg.System() != engine.Postgres {
		t.Errorf("system = %q, want postgres", cfg.System())
	}

	opts := cfg.EngineOptions(engine.Postgres)
	if opts.DSN != "postgres://bench@localhost:5432/bench" || opts.Schema != "ddl_test" {
		t.Errorf("postgres options = %+v", opts)
	}

	// Untouched engines keep their defaults.
	if cfg.Engines.DuckDB.Schema != engine.DefaultSchema {
		t.Errorf("duckdb schema = %q, want %q", cfg.Engines.DuckDB.Schema, engine.DefaultSchema)
	}

	wl, err := cfg.Workload()
	if err != nil {
		t.Fatalf("Workload failed: %v", err)
	}

	want := []workload.Granularity{workload.G1, workload.G10, workload.G100}
	if workload.FormatGranularities(wl.Granularities) != workload.FormatGranularities(want) {
		t.Errorf("granularities = %v, want %v", wl.Granularities, want)
	}
	if wl.Seed != 42 {
		t.Errorf("seed = %d, want 42", wl.Seed)
	}
	if cfg.Archive.Bucket != "bench-results" || cfg.Archive.Prefix != "nightly" {
		t.Errorf("archive = %+v", cfg.Archive)
	}
	if cfg.Archive.Region != "us-east-1" {
		t.Errorf("archive region = %q, want default", cfg.Archive.Region)
	}
}

func TestLoadEnvOverride(t *testing.T) {
	path := writeFile(t, "engine: sqlite\n")

	t.Setenv("DDLBENCH_ENGINE", "snowflake")
	t.Setenv("DDLBENCH_ENGINES_SNOWFLAKE_DSN", "user:pass@account/db/public?warehouse=wh")
	t.Setenv("DDLBENCH_SEED", "7")

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}

	if cfg.Engine != "snowflake" {
		t.Errorf("engine = %q, want snowflake", cfg.Engine)
	}
	if cfg.Engines.Snowflake.DSN != "user:pass@account/db/public?warehouse=wh" {
		t.Errorf("snowflake dsn = %q", cfg.Engines.Snowflake.DSN)
	}
	if cfg.Seed != 7 {
		t.Errorf("seed = %d, want 7", cfg.Seed)
	}
	if err := cfg.Validate(); err != nil {
		t.Errorf("Validate failed: %v", err)
	}
}

func TestLoadMissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))
	if err == nil {
		t.Error("expected error for an explicit missing file")
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(c *Config)
		want   string
	}{
		{"no engine", func(c *Config) { c.Engine = "" }, "engine is required"},
		{"unknown engine", func(c *Config) { c.Engine = "oracle" }, "unknown"},
		{"bad object", func(c *Config) { c.Object = "trigger" }, "object kind"},
		{"bad granularity", func(c *Config) { c.Granularities = []int{5} }, "granularity 5"},
		{"bad log level", func(c *Config) { c.LogLevel = "loud" }, "log level"},
		{"postgres without dsn", func(c *Config) { c.Engine = "postgres" }, "engines.postgres.dsn"},
		{"snowflake without dsn", func(c *Config) { c.Engine = "snowflake" }, "engines.snowflake.dsn"},
		{"sqlite without path", func(c *Config) { c.Engines.SQLite.Path = "" }, "engines.sqlite.path"},
		{"log inside sqlite file", func(c *Config) { c.LogDB = c.Engines.SQLite.Path }, "log_db"},
		{"log inside sqlite file, other spelling", func(c *Config) {
			c.LogDB = "./" + c.Engines.SQLite.Path
		}, "log_db"},
		{"log inside duckdb file", func(c *Config) {
			c.Engine = "duckdb"
			c.LogDB = c.Engines.DuckDB.Path
		}, "log_db"},
		{"duckdb catalog clash", func(c *Config) {
			c.Engine = "duckdb"
			c.Engines.DuckDB.Path = "data/ddlbench.duckdb"
		}, "clashes with the catalog"},
		{"archive without region", func(c *Config) {
			c.Archive.Bucket = "b"
			c.Archive.Region = ""
		}, "archive.region"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			cfg.Engine = "sqlite"
			tt.mutate(cfg)

			err := cfg.Validate()
			if err == nil {
				t.Fatal("expected validation error")
			}
			if !strings.Contains(err.Error(), tt.want) {
				t.Errorf("err = %v, want it to mention %q", err, tt.want)
			}
		})
	}
}

func TestValidateUnknownEngineIsTyped(t *testing.T) {
	cfg := Default()
	cfg.Engine = "oracle"

	if err := cfg.Validate(); !errors.Is(err, engine.ErrUnknownSystem) {
		t.Errorf("err = %v, want ErrUnknownSystem", err)
	}
}

func TestDefaultsValidForFileEngines(t *testing.T) {
	for _, name := range []string{"sqlite", "duckdb"} {
		cfg := Default()
		cfg.Engine = name

		if err := cfg.Validate(); err != nil {
			t.Errorf("default %s settings rejected: %v", name, err)
		}
	}

	d := Default().Engines.DuckDB
	if strings.EqualFold(catalogName(d.Path), d.Schema) {
		t.Errorf("default duckdb file %q names its catalog like schema %q", d.Path, d.Schema)
	}
}

func TestValidateDuckDBInMemory(t *testing.T) {
	cfg := Default()
	cfg.Engine = "duckdb"
	cfg.Engines.DuckDB.Path = ""

	if err := cfg.Validate(); err != nil {
		t.Errorf("in-memory duckdb should be valid: %v", err)
	}
}

func TestParseLevel(t *testing.T) {
	tests := []struct {
		input string
		want  slog.Level
	}{
		{"debug", slog.LevelDebug},
		{"info", slog.LevelInfo},
		{"WARN", slog.LevelWarn},
		{"error", slog.LevelError},
	}

	for _, tt := range tests {
		got, err := ParseLevel(tt.input)
		if err != nil {
			t.Errorf("ParseLevel(%q) failed: %v", tt.input, err)

			continue
		}
		if got != tt.want {
			t.Errorf("ParseLevel(%q) = %v, want %v", tt.input, got, tt.want)
		}
	}
}

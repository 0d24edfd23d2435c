// Package main provides the CLI entry point for ddlbench, a cross-engine DDL
// latency benchmarking tool.
package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/weiihann/ddlbench/archive"
	"github.com/weiihann/ddlbench/config"
	"github.com/weiihann/ddlbench/engine"
	"github.com/weiihann/ddlbench/harness"
	"github.com/weiihann/ddlbench/recorder"
	"github.com/weiihann/ddlbench/report"
	"github.com/weiihann/ddlbench/workload"
)

func main() {
	level := new(slog.LevelVar)
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
		Level: level,
	}))

	root := newRootCmd(logger, level)
	if err := root.Execute(); err != nil {
		logger.Error("command failed", slog.String("error", err.Error()))
		os.Exit(1)
	}
}

func newRootCmd(logger *slog.Logger, level *slog.LevelVar) *cobra.Command {
	var logLevel string

	root := &cobra.Command{
		Use:   "ddlbench",
		Short: "Cross-engine DDL latency benchmarking tool",
		Long: `Ddlbench measures how long schema-changing and catalog-reading
statements take on SQLite, PostgreSQL, DuckDB and Snowflake as the number of
objects in the schema grows from 1 to 100000, and records every timing in a
local SQLite log.`,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			if !cmd.Flags().Changed("log-level") {
				return nil
			}

			l, err := config.ParseLevel(logLevel)
			if err != nil {
				return err
			}

			level.Set(l)

			return nil
		},
	}

	root.PersistentFlags().StringVar(&logLevel, "log-level", "info",
		"Log level: debug, info, warn, error")

	root.AddCommand(
		newRunCmd(logger, level),
		newPlanCmd(logger),
		newReportCmd(logger),
		newResetCmd(logger),
	)

	return root
}

func newRunCmd(logger *slog.Logger, level *slog.LevelVar) *cobra.Command {
	var (
		configPath    string
		engineName    string
		granularities []int
		seed          int64
		logDB         string
		archiveBucket string
		outputJSON    bool
	)

	cmd := &cobra.Command{
		Use:   "run",
		Short: "Run the DDL experiment against one engine",
		Long: `Generate the seeded experiment plan and execute it against one engine,
level by level, timing every statement. The schema is reset before the first
level, after each level, and once more if the run fails.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := config.Load(configPath)
			if err != nil {
				return err
			}

			flags := cmd.Flags()
			if flags.Changed("engine") {
				cfg.Engine = engineName
			}
			if flags.Changed("granularity") {
				cfg.Granularities = granularities
			}
			if flags.Changed("seed") {
				cfg.Seed = seed
			}
			if flags.Changed("log-db") {
				cfg.LogDB = logDB
			}
			if flags.Changed("archive-bucket") {
				cfg.Archive.Bucket = archiveBucket
			}

			if err := cfg.Validate(); err != nil {
				return fmt.Errorf("invalid configuration: %w", err)
			}

			// A file or env log level applies unless the flag was given.
			if !cmd.Flags().Changed("log-level") {
				l, _ := config.ParseLevel(cfg.LogLevel)
				level.Set(l)
			}

			return runBenchmark(cmd.Context(), logger, cfg, outputJSON)
		},
	}

	flags := cmd.Flags()
	flags.StringVar(&configPath, "config", "",
		"Path to YAML config file (default: ./"+config.DefaultFile+" if present)")
	flags.StringVar(&engineName, "engine", "",
		"Engine to benchmark: sqlite, postgres, duckdb, snowflake")
	flags.IntSliceVar(&granularities, "granularity", nil,
		"Granularity levels to run (e.g. 1,10,100; default: full scale)")
	flags.Int64Var(&seed, "seed", 0,
		"Random seed for ALTER/COMMENT targets (0 = use current time)")
	flags.StringVar(&logDB, "log-db", recorder.DefaultPath,
		"Path to the SQLite measurement log")
	flags.StringVar(&archiveBucket, "archive-bucket", "",
		"S3 bucket to upload the measurement log to after the run")
	flags.BoolVar(&outputJSON, "json", false,
		"Output the report as JSON instead of a table")

	return cmd
}

func runBenchmark(
	ctx context.Context,
	logger *slog.Logger,
	cfg *config.Config,
	outputJSON bool,
) error {
	sys := cfg.System()

	wlCfg, err := cfg.Workload()
	if err != nil {
		return err
	}

	if wlCfg.Seed == 0 {
		wlCfg.Seed = time.Now().UnixNano()
	}

	runID := uuid.NewString()
	logger = logger.With(slog.String("engine", string(sys)))

	// Step 1: Build the plan.
	phases := workload.NewGenerator(wlCfg).Phases()
	summary := workload.Summarize(phases)

	logger.InfoContext(ctx, "starting benchmark",
		slog.String("run_id", runID),
		slog.String("object", string(wlCfg.Object)),
		slog.String("granularities", workload.FormatGranularities(wlCfg.Granularities)),
		slog.Int64("seed", wlCfg.Seed),
		slog.Int("operations", summary.TotalOperations),
		slog.String("log_db", cfg.LogDB),
	)

	// Step 2: Prepare the engine and the measurement log.
	eng, err := engine.New(sys, cfg.EngineOptions(sys))
	if err != nil {
		return fmt.Errorf("create engine: %w", err)
	}
	defer eng.Close()

	rec, err := recorder.Open(ctx, cfg.LogDB)
	if err != nil {
		return fmt.Errorf("open measurement log: %w", err)
	}

	// Step 3: Run. The runner closes the recorder on every path.
	runner := harness.NewRunner(eng, rec, os.Stderr, logger)

	result, err := runner.Run(ctx, harness.RunConfig{
		RunID:  runID,
		Phases: phases,
	})
	if err != nil {
		return fmt.Errorf("run %s: %w", sys, err)
	}

	// Step 4: Report from what was persisted.
	if err := printReport(ctx, os.Stdout, cfg.LogDB, sys, result.RunID, outputJSON); err != nil {
		return err
	}

	// Step 5: Archive the log.
	if cfg.Archive.Bucket != "" {
		if err := archiveLog(ctx, logger, cfg, sys, runID); err != nil {
			return err
		}
	}

	logger.InfoContext(ctx, "benchmark complete",
		slog.String("run_id", runID),
		slog.Int("measurements", result.Measurements),
		slog.Duration("engine_time", result.EngineTime),
	)

	return nil
}

func archiveLog(
	ctx context.Context,
	logger *slog.Logger,
	cfg *config.Config,
	sys engine.System,
	runID string,
) error {
	uploader, err := archive.New(ctx, archive.Options{
		Bucket:       cfg.Archive.Bucket,
		Prefix:       cfg.Archive.Prefix,
		Region:       cfg.Archive.Region,
		Endpoint:     cfg.Archive.Endpoint,
		UsePathStyle: cfg.Archive.UsePathStyle,
	})
	if err != nil {
		return err
	}

	key, err := uploader.Upload(ctx, cfg.LogDB, sys, runID)
	if err != nil {
		logger.ErrorContext(ctx, "archive failed", slog.String("error", err.Error()))

		return err
	}

	logger.InfoContext(ctx, "measurement log archived",
		slog.String("bucket", cfg.Archive.Bucket),
		slog.String("key", key),
	)

	return nil
}

func printReport(
	ctx context.Context,
	w io.Writer,
	logDB string,
	sys engine.System,
	runID string,
	outputJSON bool,
) error {
	rec, err := recorder.Open(ctx, logDB)
	if err != nil {
		return fmt.Errorf("open measurement log: %w", err)
	}
	defer rec.Close()

	if runID == "" {
		runID, err = rec.LatestRunID(ctx, sys)
		if err != nil {
			return err
		}
	}

	rows, err := rec.Rows(ctx, sys, runID)
	if err != nil {
		return err
	}

	run := report.Run{
		RunID:        runID,
		System:       sys,
		Measurements: make([]harness.Measurement, len(rows)),
	}

	for i, row := range rows {
		run.Measurements[i] = row.Measurement
	}

	if info, err := os.Stat(logDB); err == nil {
		run.LogSizeBytes = uint64(info.Size())
	}

	if outputJSON {
		if err := report.GenerateJSON(w, run); err != nil {
			return fmt.Errorf("generate JSON report: %w", err)
		}

		return nil
	}

	if err := report.Generate(w, run); err != nil {
		return fmt.Errorf("generate report: %w", err)
	}

	return nil
}

func newPlanCmd(logger *slog.Logger) *cobra.Command {
	var (
		granularities []int
		object        string
		seed          int64
		outPath       string
	)

	cmd := &cobra.Command{
		Use:   "plan",
		Short: "Write the experiment plan as JSONL without running it",
		RunE: func(cmd *cobra.Command, _ []string) error {
			levels, err := workload.ParseGranularities(granularities)
			if err != nil {
				return err
			}

			kind, err := workload.ParseObjectKind(object)
			if err != nil {
				return err
			}

			return writePlan(cmd.Context(), logger, workload.Config{
				Granularities: levels,
				Object:        kind,
				Seed:          seed,
			}, outPath)
		},
	}

	flags := cmd.Flags()
	flags.IntSliceVar(&granularities, "granularity", nil,
		"Granularity levels to include (default: full scale)")
	flags.StringVar(&object, "object", string(workload.ObjectTable),
		"Object kind under test")
	flags.Int64Var(&seed, "seed", 0,
		"Random seed (0 = use current time)")
	flags.StringVar(&outPath, "out", "",
		"Output file (default: stdout)")

	return cmd
}

func writePlan(
	ctx context.Context,
	logger *slog.Logger,
	cfg workload.Config,
	outPath string,
) error {
	if cfg.Seed == 0 {
		cfg.Seed = time.Now().UnixNano()
	}

	var w io.Writer = os.Stdout

	if outPath != "" {
		f, err := os.Create(outPath)
		if err != nil {
			return fmt.Errorf("create plan file: %w", err)
		}
		defer f.Close()

		w = f
	}

	summary, err := workload.NewGenerator(cfg).Generate(w)
	if err != nil {
		return fmt.Errorf("generate: %w", err)
	}

	logger.InfoContext(ctx, "plan generated",
		slog.String("path", outPath),
		slog.Int64("seed", cfg.Seed),
		slog.Int("phases", summary.Phases),
		slog.Int("operations", summary.TotalOperations),
		slog.Int("creates", summary.Creates),
	)

	return nil
}

func newReportCmd(logger *slog.Logger) *cobra.Command {
	var (
		engineName string
		logDB      string
		runID      string
		outputJSON bool
	)

	cmd := &cobra.Command{
		Use:   "report",
		Short: "Summarize a recorded run",
		Long: `Read the measurements of one run from the log and print a summary per
operation and granularity. Without --run-id the most recent run is used.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			sys, err := engine.ParseSystem(engineName)
			if err != nil {
				return err
			}

			logger.DebugContext(cmd.Context(), "reading measurement log",
				slog.String("engine", string(sys)),
				slog.String("log_db", logDB),
				slog.String("run_id", runID),
			)

			return printReport(cmd.Context(), os.Stdout, logDB, sys, runID, outputJSON)
		},
	}

	flags := cmd.Flags()
	flags.StringVar(&engineName, "engine", "",
		"Engine whose log table to read")
	flags.StringVar(&logDB, "log-db", recorder.DefaultPath,
		"Path to the SQLite measurement log")
	flags.StringVar(&runID, "run-id", "",
		"Run to report (default: latest)")
	flags.BoolVar(&outputJSON, "json", false,
		"Output the report as JSON instead of a table")

	_ = cmd.MarkFlagRequired("engine")

	return cmd
}

func newResetCmd(logger *slog.Logger) *cobra.Command {
	var (
		configPath string
		engineName string
	)

	cmd := &cobra.Command{
		Use:   "reset",
		Short: "Drop everything a run left behind on one engine",
		Long: `Reset the benchmark schema (or database file) of one engine, for example
after a run was killed before it could clean up.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := config.Load(configPath)
			if err != nil {
				return err
			}

			if cmd.Flags().Changed("engine") {
				cfg.Engine = engineName
			}

			if err := cfg.Validate(); err != nil {
				return fmt.Errorf("invalid configuration: %w", err)
			}

			return resetEngine(cmd.Context(), logger, cfg)
		},
	}

	flags := cmd.Flags()
	flags.StringVar(&configPath, "config", "",
		"Path to YAML config file (default: ./"+config.DefaultFile+" if present)")
	flags.StringVar(&engineName, "engine", "",
		"Engine to reset: sqlite, postgres, duckdb, snowflake")

	return cmd
}

func resetEngine(ctx context.Context, logger *slog.Logger, cfg *config.Config) error {
	sys := cfg.System()

	eng, err := engine.New(sys, cfg.EngineOptions(sys))
	if err != nil {
		return fmt.Errorf("create engine: %w", err)
	}
	defer eng.Close()

	if err := eng.Connect(ctx); err != nil {
		return fmt.Errorf("connect: %w", err)
	}

	if err := eng.Reset(ctx); err != nil {
		return err
	}

	logger.InfoContext(ctx, "schema reset", slog.String("engine", string(sys)))

	return nil
}

package main

import (
	"context"
	"fmt"
	"log"
	"path/filepath"
	"strings"

	"github.com/urfave/cli/v2"

	"github.com/withObsrvr/binder-annotator/internal/audit"
	"github.com/withObsrvr/binder-annotator/internal/batch"
	"github.com/withObsrvr/binder-annotator/internal/catalog"
	"github.com/withObsrvr/binder-annotator/internal/checkpoint"
	"github.com/withObsrvr/binder-annotator/internal/config"
	"github.com/withObsrvr/binder-annotator/internal/logging"
	"github.com/withObsrvr/binder-annotator/internal/metrics"
	"github.com/withObsrvr/binder-annotator/internal/results"
	"github.com/withObsrvr/binder-annotator/internal/storage"
	"github.com/withObsrvr/binder-annotator/internal/submissions"
)

// newCLIApp creates the CLI application with all commands.
func newCLIApp() *cli.App {
	app := &cli.App{
		Name:    "binder-annotator",
		Usage:   "Annotate designed binder/target complexes with structural and interface features",
		Version: batch.Version,
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "config", Aliases: []string{"c"}, Usage: "YAML configuration file"},
			&cli.StringFlag{Name: "submissions", Aliases: []string{"s"}, Usage: "Submission table (.csv or .parquet) with id and sequence columns"},
			&cli.StringSliceFlag{Name: "structures", Usage: "Structure directory (repeatable, searched in order)"},
			&cli.StringFlag{Name: "output", Aliases: []string{"o"}, Usage: "Output directory"},
			&cli.StringFlag{Name: "relaxed", Usage: "Relaxed structure cache directory"},
			&cli.IntFlag{Name: "workers", Aliases: []string{"j"}, Usage: "Worker count (0 = number of CPUs)"},
			&cli.StringFlag{Name: "binder-chain", Usage: "Binder chain id"},
			&cli.StringFlag{Name: "target-chain", Usage: "Target chain id"},
			&cli.StringFlag{Name: "format", Usage: "Result format: parquet|csv"},
			&cli.StringFlag{Name: "metrics-addr", Usage: "Serve Prometheus metrics on this address"},
			&cli.StringFlag{Name: "log-level", Usage: "debug|info|warn|error"},
			&cli.StringFlag{Name: "audit-dir", Usage: "Append a hash-chained audit event per published batch under this directory"},
		},
		Commands: []*cli.Command{
			runCmd(),
			runAllCmd(),
			combineCmd(),
			missingRelaxedCmd(),
			verifyAuditCmd(),
		},
	}
	// Disable default exit error handler to allow proper error return in tests
	app.ExitErrHandler = func(_ *cli.Context, _ error) {}
	return app
}

// loadConfig reads the config file and applies global flags on top.
func loadConfig(c *cli.Context) (config.Config, error) {
	cfg, err := config.Load(c.String("config"))
	if err != nil {
		return config.Config{}, err
	}

	if c.IsSet("submissions") {
		cfg.Run.Submissions = c.String("submissions")
	}
	if c.IsSet("structures") {
		cfg.Run.Structures = c.StringSlice("structures")
	}
	if c.IsSet("output") {
		cfg.Run.OutputDir = c.String("output")
	}
	if c.IsSet("relaxed") {
		cfg.Run.RelaxedDir = c.String("relaxed")
	}
	if c.IsSet("workers") {
		cfg.Workers.Count = c.Int("workers")
	}
	if c.IsSet("binder-chain") {
		cfg.Chains.Binder = c.String("binder-chain")
	}
	if c.IsSet("target-chain") {
		cfg.Chains.Target = c.String("target-chain")
	}
	if c.IsSet("format") {
		cfg.Run.Format = c.String("format")
	}
	if c.IsSet("metrics-addr") {
		cfg.Metrics.Enabled = true
		cfg.Metrics.Address = c.String("metrics-addr")
	}
	if c.IsSet("log-level") {
		cfg.Logging.Level = c.String("log-level")
	}
	if c.IsSet("audit-dir") {
		cfg.Audit.Enabled = true
		cfg.Audit.Dir = c.String("audit-dir")
	}

	if err := cfg.Validate(); err != nil {
		return config.Config{}, err
	}
	logging.Setup(cfg.Logging)
	return cfg, nil
}

func startMetrics(cfg config.Config) {
	if !cfg.Metrics.Enabled {
		return
	}
	metrics.Init("binder_annotator")
	go func() {
		log.Printf("[metrics] serving on %s", cfg.Metrics.Address)
		if err := metrics.StartServer(cfg.Metrics.Address); err != nil {
			log.Printf("[metrics] server stopped: %v", err)
		}
	}()
}

// newOrchestrator wires storage, catalog, checkpoints and audit from cfg. The
// returned func releases them.
func newOrchestrator(ctx context.Context, cfg config.Config) (*batch.Orchestrator, func(), error) {
	store, err := storage.NewAtomicStore(cfg.StorageConfig())
	if err != nil {
		return nil, nil, fmt.Errorf("create storage: %w", err)
	}

	cat, err := catalog.NewWriter(ctx, cfg.Catalog)
	if err != nil {
		store.Close()
		return nil, nil, fmt.Errorf("create catalog: %w", err)
	}

	cpCfg := cfg.Checkpoint
	if cpCfg.Name == "" {
		cpCfg.Name = filepath.Base(cfg.Run.Submissions)
	}
	cps, err := checkpoint.NewManager(cpCfg)
	if err != nil {
		cat.Close()
		store.Close()
		return nil, nil, fmt.Errorf("create checkpoint manager: %w", err)
	}

	em, err := audit.NewEmitter(cfg.Audit)
	if err != nil {
		cat.Close()
		store.Close()
		return nil, nil, fmt.Errorf("create audit emitter: %w", err)
	}

	o := &batch.Orchestrator{
		Factory:        batch.NewFactory(cfg),
		Store:          store,
		Catalog:        cat,
		Checkpoints:    cps,
		Audit:          em,
		Dataset:        cfg.Catalog.Dataset,
		StorageBackend: cfg.StorageConfig().Backend,
		CatalogBackend: cfg.Catalog.Backend,
	}
	cleanup := func() {
		em.Close()
		cat.Close()
		store.Close()
	}
	return o, cleanup, nil
}

func request(cfg config.Config) batch.Request {
	return batch.Request{
		Submissions:   cfg.Run.Submissions,
		StructureDirs: cfg.Run.Structures,
		OutputDir:     cfg.Run.OutputDir,
		RelaxedDir:    cfg.Run.RelaxedDir,
		Start:         cfg.Run.Start,
		End:           cfg.Run.End,
		Format:        results.Format(cfg.Run.Format),
		Workers:       cfg.Workers.Count,
	}
}

// runCmd processes one batch.
func runCmd() *cli.Command {
	return &cli.Command{
		Name:  "run",
		Usage: "Process rows [start, end) of the submission table into one batch artifact",
		Flags: []cli.Flag{
			&cli.IntFlag{Name: "start", Required: true, Usage: "First row (inclusive)"},
			&cli.IntFlag{Name: "end", Required: true, Usage: "Last row (exclusive, clamped to the table size)"},
		},
		Action: func(c *cli.Context) error {
			cfg, err := loadConfig(c)
			if err != nil {
				return err
			}
			cfg.Run.Start = c.Int("start")
			cfg.Run.End = c.Int("end")
			startMetrics(cfg)

			o, cleanup, err := newOrchestrator(c.Context, cfg)
			if err != nil {
				return err
			}
			defer cleanup()

			res, err := o.RunBatch(c.Context, request(cfg))
			if err != nil {
				return err
			}
			fmt.Fprintf(c.App.Writer, "%s\t%d succeeded\t%d failed\n", res.URI, res.Succeeded, res.Failed)
			return nil
		},
	}
}

// runAllCmd processes the whole table in batches.
func runAllCmd() *cli.Command {
	return &cli.Command{
		Name:  "run-all",
		Usage: "Process the whole submission table batch by batch, resuming committed batches",
		Flags: []cli.Flag{
			&cli.IntFlag{Name: "batch-size", Value: batch.DefaultBatchSize, Usage: "Submissions per batch"},
			&cli.BoolFlag{Name: "skip-existing", Usage: "Skip batches whose artifact already exists"},
			&cli.StringFlag{Name: "checkpoint-dir", Usage: "Persist progress in this directory"},
			&cli.BoolFlag{Name: "combine", Usage: "Combine all batch artifacts when done"},
		},
		Action: func(c *cli.Context) error {
			cfg, err := loadConfig(c)
			if err != nil {
				return err
			}
			if c.IsSet("batch-size") {
				cfg.Run.BatchSize = c.Int("batch-size")
			}
			if c.Bool("skip-existing") {
				cfg.Run.SkipExisting = true
			}
			if dir := c.String("checkpoint-dir"); dir != "" {
				cfg.Checkpoint.Enabled = true
				cfg.Checkpoint.Dir = dir
			}
			startMetrics(cfg)

			o, cleanup, err := newOrchestrator(c.Context, cfg)
			if err != nil {
				return err
			}
			defer cleanup()

			all, err := o.RunAll(c.Context, batch.AllRequest{
				Request:      request(cfg),
				BatchSize:    cfg.Run.BatchSize,
				SkipExisting: cfg.Run.SkipExisting,
			})
			if err != nil {
				return err
			}
			for _, res := range all.Batches {
				fmt.Fprintf(c.App.Writer, "%s\t%d succeeded\t%d failed\n", res.URI, res.Succeeded, res.Failed)
			}
			for _, r := range all.Skipped {
				fmt.Fprintf(c.App.Writer, "skipped batch_%d_%d\n", r.Start, r.End)
			}

			if c.Bool("combine") {
				combined, err := o.Combine(c.Context, cfg.Run.Submissions, results.Format(cfg.Run.Format))
				if err != nil {
					return err
				}
				fmt.Fprintf(c.App.Writer, "%s\t%d rows\n", combined.URI, len(combined.Rows))
			}
			return nil
		},
	}
}

// combineCmd merges batch artifacts.
func combineCmd() *cli.Command {
	return &cli.Command{
		Name:  "combine",
		Usage: "Merge every batch artifact into final_results, left-joined onto --submissions when given",
		Action: func(c *cli.Context) error {
			cfg, err := loadConfig(c)
			if err != nil {
				return err
			}
			o, cleanup, err := newOrchestrator(c.Context, cfg)
			if err != nil {
				return err
			}
			defer cleanup()

			combined, err := o.Combine(c.Context, cfg.Run.Submissions, results.Format(cfg.Run.Format))
			if err != nil {
				return err
			}
			fmt.Fprintf(c.App.Writer, "%s\t%d rows from %d batches\n", combined.URI, len(combined.Rows), len(combined.Batches))
			return nil
		},
	}
}

// missingRelaxedCmd reports raw structures without a relaxed cache entry.
func missingRelaxedCmd() *cli.Command {
	return &cli.Command{
		Name:  "missing-relaxed",
		Usage: "List submissions whose rank-1 structure has not been relaxed yet",
		Action: func(c *cli.Context) error {
			cfg, err := loadConfig(c)
			if err != nil {
				return err
			}
			if len(cfg.Run.Structures) == 0 {
				return fmt.Errorf("at least one --structures directory is required")
			}

			missing, err := submissions.MissingRelaxed(cfg.Run.Structures, cfg.Run.RelaxedDir)
			if err != nil {
				return err
			}
			for _, m := range missing {
				if len(m.Alternatives) == 0 {
					fmt.Fprintln(c.App.Writer, m.ID)
					continue
				}
				fmt.Fprintf(c.App.Writer, "%s\t%s\n", m.ID, strings.Join(m.Alternatives, ","))
			}
			fmt.Fprintf(c.App.ErrWriter, "%d structures missing relaxed versions\n", len(missing))
			return nil
		},
	}
}

// verifyAuditCmd checks the audit chain of the configured dataset.
func verifyAuditCmd() *cli.Command {
	return &cli.Command{
		Name:  "verify-audit",
		Usage: "Verify the hash chain of audit events written by previous runs",
		Action: func(c *cli.Context) error {
			cfg, err := loadConfig(c)
			if err != nil {
				return err
			}
			dir := cfg.Audit.Dir
			if dir == "" {
				dir = "audit"
			}
			chainKey := cfg.Catalog.Dataset + "/" + results.SchemaVersion

			events, err := audit.ReadEvents(dir, chainKey)
			if err != nil {
				return err
			}
			if err := audit.VerifyChain(events); err != nil {
				return err
			}
			fmt.Fprintf(c.App.Writer, "%s\t%d events verified\n", chainKey, len(events))
			return nil
		},
	}
}

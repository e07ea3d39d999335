// Package config loads run configuration from YAML with environment
// overrides. CLI flags are applied on top by cmd/binder-annotator.
package config

import (
	"fmt"
	"log"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/withObsrvr/binder-annotator/internal/audit"
	"github.com/withObsrvr/binder-annotator/internal/catalog"
	"github.com/withObsrvr/binder-annotator/internal/checkpoint"
	"github.com/withObsrvr/binder-annotator/internal/logging"
	"github.com/withObsrvr/binder-annotator/internal/metrics"
	"github.com/withObsrvr/binder-annotator/internal/results"
	"github.com/withObsrvr/binder-annotator/internal/storage"
)

type Config struct {
	Run        RunConfig             `yaml:"run"`
	Chains     ChainConfig           `yaml:"chains"`
	Workers    WorkerConfig          `yaml:"workers"`
	Relax      RelaxConfig           `yaml:"relax"`
	DSSP       DSSPConfig            `yaml:"dssp"`
	Energetics EnergeticsConfig      `yaml:"energetics"`
	Storage    storage.StorageConfig `yaml:"storage"`
	Catalog    catalog.Config        `yaml:"catalog"`
	Checkpoint checkpoint.Config     `yaml:"checkpoint"`
	Audit      audit.Config          `yaml:"audit"`
	Metrics    metrics.Config        `yaml:"metrics"`
	Logging    logging.Config        `yaml:"logging"`
}

type RunConfig struct {
	Submissions  string   `yaml:"submissions"`
	Structures   []string `yaml:"structures"`
	OutputDir    string   `yaml:"output_dir"`
	RelaxedDir   string   `yaml:"relaxed_dir"`
	Start        int      `yaml:"start"`
	End          int      `yaml:"end"`
	BatchSize    int      `yaml:"batch_size"`
	Format       string   `yaml:"format"`
	SkipExisting bool     `yaml:"skip_existing"`
}

type ChainConfig struct {
	Binder string  `yaml:"binder"`
	Target string  `yaml:"target"`
	Cutoff float64 `yaml:"cutoff"`
}

type WorkerConfig struct {
	Count             int           `yaml:"count"` // 0 means runtime.NumCPU()
	SubmissionTimeout time.Duration `yaml:"submission_timeout"`
}

type RelaxConfig struct {
	Engine        string   `yaml:"engine"` // "command" | "passthrough"
	Binary        string   `yaml:"binary"`
	Args          []string `yaml:"args"`
	WorkDir       string   `yaml:"work_dir"`
	SuccessMarker string   `yaml:"success_marker"`
	ScratchDir    string   `yaml:"scratch_dir"`
}

type DSSPConfig struct {
	Binary string   `yaml:"binary"`
	Args   []string `yaml:"args"`
}

type EnergeticsConfig struct {
	Engine        string   `yaml:"engine"` // "command" | "geometric" | "command+geometric"
	Binary        string   `yaml:"binary"`
	Args          []string `yaml:"args"`
	WorkDir       string   `yaml:"work_dir"`
	SurfaceCutoff float64  `yaml:"surface_cutoff"`
}

// Default returns the configuration used when no file is given.
func Default() Config {
	return Config{
		Run: RunConfig{
			OutputDir:  ".",
			RelaxedDir: "relaxed",
			BatchSize:  64,
			Format:     string(results.FormatParquet),
		},
		Chains: ChainConfig{
			Binder: "A",
			Target: "B",
			Cutoff: 4.0,
		},
		Relax: RelaxConfig{
			Engine: "passthrough",
		},
		DSSP: DSSPConfig{
			Binary: "mkdssp",
		},
		Energetics: EnergeticsConfig{
			Engine:        "geometric",
			SurfaceCutoff: 0.40,
		},
		Storage: storage.StorageConfig{
			Backend: "local",
		},
		Catalog: catalog.Config{
			Backend: "none",
			Dataset: "binder_annotations",
		},
		Metrics: metrics.Config{
			Address: ":9090",
		},
		Logging: logging.Config{
			Format: "text",
			Level:  "info",
		},
	}
}

// Load reads the YAML file at path (optional) over Default, then applies
// environment overrides.
func Load(path string) (Config, error) {
	cfg := Default()

	if path != "" {
		log.Printf("[config] loading %s", path)
		data, err := os.ReadFile(path)
		if err != nil {
			return Config{}, fmt.Errorf("read config %s: %w", path, err)
		}
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return Config{}, fmt.Errorf("parse config %s: %w", path, err)
		}
	}

	if err := applyEnv(&cfg); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func applyEnv(cfg *Config) error {
	cfg.Run.Submissions = getenvDefault("SUBMISSIONS", cfg.Run.Submissions)
	if v := os.Getenv("STRUCTURE_DIRS"); v != "" {
		cfg.Run.Structures = strings.Split(v, string(os.PathListSeparator))
	}
	cfg.Run.OutputDir = getenvDefault("OUTPUT_DIR", cfg.Run.OutputDir)
	cfg.Run.RelaxedDir = getenvDefault("RELAXED_DIR", cfg.Run.RelaxedDir)
	cfg.Run.Format = getenvDefault("OUTPUT_FORMAT", cfg.Run.Format)

	cfg.Chains.Binder = getenvDefault("BINDER_CHAIN", cfg.Chains.Binder)
	cfg.Chains.Target = getenvDefault("TARGET_CHAIN", cfg.Chains.Target)

	cfg.Relax.Binary = getenvDefault("RELAX_BINARY", cfg.Relax.Binary)
	cfg.DSSP.Binary = getenvDefault("DSSP_BINARY", cfg.DSSP.Binary)
	cfg.Energetics.Binary = getenvDefault("ENERGETICS_BINARY", cfg.Energetics.Binary)

	cfg.Storage.Backend = getenvDefault("STORAGE_BACKEND", cfg.Storage.Backend)
	cfg.Storage.Prefix = getenvDefault("STORAGE_PREFIX", cfg.Storage.Prefix)
	cfg.Storage.GCSBucket = getenvDefault("GCS_BUCKET", cfg.Storage.GCSBucket)
	cfg.Storage.S3Bucket = getenvDefault("S3_BUCKET", cfg.Storage.S3Bucket)
	cfg.Storage.S3Endpoint = getenvDefault("S3_ENDPOINT", cfg.Storage.S3Endpoint)
	cfg.Storage.S3Region = getenvDefault("S3_REGION", cfg.Storage.S3Region)

	cfg.Catalog.Backend = getenvDefault("CATALOG_BACKEND", cfg.Catalog.Backend)
	cfg.Catalog.PostgresDSN = getenvDefault("CATALOG_DSN", cfg.Catalog.PostgresDSN)
	cfg.Catalog.SQLitePath = getenvDefault("CATALOG_SQLITE_PATH", cfg.Catalog.SQLitePath)

	cfg.Audit.Dir = getenvDefault("AUDIT_DIR", cfg.Audit.Dir)
	cfg.Audit.Endpoint = getenvDefault("AUDIT_ENDPOINT", cfg.Audit.Endpoint)
	if os.Getenv("AUDIT_ENABLED") == "true" {
		cfg.Audit.Enabled = true
	}

	cfg.Metrics.Address = getenvDefault("METRICS_ADDR", cfg.Metrics.Address)
	if os.Getenv("METRICS_ENABLED") == "true" {
		cfg.Metrics.Enabled = true
	}

	cfg.Logging.Level = getenvDefault("LOG_LEVEL", cfg.Logging.Level)
	cfg.Logging.Format = getenvDefault("LOG_FORMAT", cfg.Logging.Format)

	if v := os.Getenv("WORKERS"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("parse WORKERS=%q: %w", v, err)
		}
		cfg.Workers.Count = n
	}
	if v := os.Getenv("SUBMISSION_TIMEOUT"); v != "" {
		d, err := time.ParseDuration(v)
		if err != nil {
			return fmt.Errorf("parse SUBMISSION_TIMEOUT=%q: %w", v, err)
		}
		cfg.Workers.SubmissionTimeout = d
	}
	if v := os.Getenv("BATCH_SIZE"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("parse BATCH_SIZE=%q: %w", v, err)
		}
		cfg.Run.BatchSize = n
	}
	return nil
}

// Validate checks values that would otherwise fail deep inside a run.
func (c *Config) Validate() error {
	if c.Chains.Binder == "" || c.Chains.Target == "" {
		return fmt.Errorf("binder and target chains are required")
	}
	if c.Chains.Binder == c.Chains.Target {
		return fmt.Errorf("binder and target chains must differ (both %q)", c.Chains.Binder)
	}
	if c.Chains.Cutoff <= 0 {
		return fmt.Errorf("interface cutoff must be positive, got %v", c.Chains.Cutoff)
	}
	if c.Run.BatchSize <= 0 {
		return fmt.Errorf("batch size must be positive, got %d", c.Run.BatchSize)
	}
	if c.Workers.Count < 0 {
		return fmt.Errorf("worker count must not be negative, got %d", c.Workers.Count)
	}
	if _, err := results.ParseFormat(c.Run.Format); err != nil {
		return err
	}
	switch c.Relax.Engine {
	case "passthrough", "":
	case "command":
		if c.Relax.Binary == "" {
			return fmt.Errorf("relax.binary required for command relax engine")
		}
	default:
		return fmt.Errorf("unknown relax engine: %s", c.Relax.Engine)
	}
	switch c.Energetics.Engine {
	case "geometric", "":
	case "command", "command+geometric":
		if c.Energetics.Binary == "" {
			return fmt.Errorf("energetics.binary required for %s energetics engine", c.Energetics.Engine)
		}
	default:
		return fmt.Errorf("unknown energetics engine: %s", c.Energetics.Engine)
	}
	return nil
}

// StorageConfig returns the artifact storage configuration, defaulting the
// local directory to the output directory.
func (c *Config) StorageConfig() storage.StorageConfig {
	sc := c.Storage
	if sc.LocalDir == "" {
		sc.LocalDir = c.Run.OutputDir
	}
	return sc
}

func getenvDefault(key, def string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	return def
}

// Package catalog records batch lineage: which batch artifacts exist, their
// checksums and row counts, and which submissions failed in them.
package catalog

import (
	"context"
	"fmt"
)

// Config selects and configures the catalog backend.
type Config struct {
	Backend     string `yaml:"backend"` // "none" | "postgres" | "sqlite"
	PostgresDSN string `yaml:"postgres_dsn"`
	SQLitePath  string `yaml:"sqlite_path"`
	Dataset     string `yaml:"dataset"`
}

// BatchRecord is the lineage entry of one committed batch artifact.
type BatchRecord struct {
	Dataset         string
	SchemaVersion   string
	RunID           string
	Start           int
	End             int
	Format          string
	RowCount        int64
	SuccessCount    int64
	FailedCount     int64
	ByteSize        int64
	Checksum        string
	StoragePath     string
	StorageURI      string
	ProducerVersion string
	ProducerGitSHA  string
	Failures        []Failure
}

// Failure is one failed submission within a batch.
type Failure struct {
	SubmissionID string
	Message      string
}

// Writer persists batch lineage.
type Writer interface {
	// RecordBatch upserts the batch entry and replaces its failure list.
	RecordBatch(ctx context.Context, rec BatchRecord) error

	// BatchExists reports whether the batch was recorded for the dataset.
	BatchExists(ctx context.Context, dataset, schemaVersion string, start, end int) (bool, error)

	Close() error
}

// NewWriter opens the configured backend.
func NewWriter(ctx context.Context, cfg Config) (Writer, error) {
	switch cfg.Backend {
	case "", "none":
		return noopWriter{}, nil
	case "postgres":
		if cfg.PostgresDSN == "" {
			return nil, fmt.Errorf("postgres_dsn required for postgres catalog")
		}
		return NewPostgresWriter(ctx, cfg)
	case "sqlite":
		if cfg.SQLitePath == "" {
			return nil, fmt.Errorf("sqlite_path required for sqlite catalog")
		}
		return NewSQLiteWriter(ctx, cfg.SQLitePath)
	default:
		return nil, fmt.Errorf("unknown catalog backend: %s", cfg.Backend)
	}
}

type noopWriter struct{}

func (noopWriter) RecordBatch(context.Context, BatchRecord) error { return nil }

func (noopWriter) BatchExists(context.Context, string, string, int, int) (bool, error) {
	return false, nil
}

func (noopWriter) Close() error { return nil }

package catalog

import (
	"context"
	_ "embed"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/withObsrvr/binder-annotator/internal/logging"
)

//go:embed schema.sql
var schemaSQL string

// PostgresWriter implements Writer using PostgreSQL.
type PostgresWriter struct {
	pool         *pgxpool.Pool
	log          *slog.Logger
	mu           sync.RWMutex
	datasetCache map[string]int64 // cache dataset IDs
}

// NewPostgresWriter creates a new PostgreSQL catalog writer.
func NewPostgresWriter(ctx context.Context, cfg Config) (*PostgresWriter, error) {
	ctx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	poolCfg, err := pgxpool.ParseConfig(cfg.PostgresDSN)
	if err != nil {
		return nil, fmt.Errorf("parse DSN: %w", err)
	}

	// Configure connection pool
	poolCfg.MaxConns = 5
	poolCfg.MinConns = 1
	poolCfg.MaxConnLifetime = 30 * time.Minute
	poolCfg.MaxConnIdleTime = 5 * time.Minute

	pool, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		return nil, fmt.Errorf("create pool: %w", err)
	}

	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}

	w := &PostgresWriter{
		pool:         pool,
		log:          logging.Component("catalog"),
		datasetCache: make(map[string]int64),
	}

	if _, err := pool.Exec(ctx, schemaSQL); err != nil {
		pool.Close()
		return nil, fmt.Errorf("init schema: %w", err)
	}

	w.log.Info("connected to PostgreSQL catalog")
	return w, nil
}

// ensureDataset registers or retrieves a dataset entry.
func (w *PostgresWriter) ensureDataset(ctx context.Context, dataset, schemaVersion string) (int64, error) {
	cacheKey := dataset + "@" + schemaVersion
	w.mu.RLock()
	if id, ok := w.datasetCache[cacheKey]; ok {
		w.mu.RUnlock()
		return id, nil
	}
	w.mu.RUnlock()

	query := `
		INSERT INTO _meta_datasets (dataset, schema_version)
		VALUES ($1, $2)
		ON CONFLICT (dataset, schema_version)
		DO UPDATE SET updated_at = NOW()
		RETURNING id
	`

	var id int64
	if err := w.pool.QueryRow(ctx, query, dataset, schemaVersion).Scan(&id); err != nil {
		return 0, fmt.Errorf("ensure dataset: %w", err)
	}

	w.mu.Lock()
	w.datasetCache[cacheKey] = id
	w.mu.Unlock()

	return id, nil
}

// RecordBatch writes a lineage record for a committed batch.
func (w *PostgresWriter) RecordBatch(ctx context.Context, rec BatchRecord) error {
	datasetID, err := w.ensureDataset(ctx, rec.Dataset, rec.SchemaVersion)
	if err != nil {
		return err
	}

	tx, err := w.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	query := `
		INSERT INTO _meta_batches (
			dataset_id, batch_start, batch_end, run_id, format, row_count,
			success_count, failed_count, byte_size, checksum, storage_path,
			storage_uri, producer_version, producer_git_sha
		)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14)
		ON CONFLICT (dataset_id, batch_start, batch_end)
		DO UPDATE SET
			run_id = EXCLUDED.run_id,
			format = EXCLUDED.format,
			row_count = EXCLUDED.row_count,
			success_count = EXCLUDED.success_count,
			failed_count = EXCLUDED.failed_count,
			byte_size = EXCLUDED.byte_size,
			checksum = EXCLUDED.checksum,
			storage_path = EXCLUDED.storage_path,
			storage_uri = EXCLUDED.storage_uri,
			created_at = NOW()
	`

	var storageURI *string
	if rec.StorageURI != "" {
		storageURI = &rec.StorageURI
	}

	_, err = tx.Exec(ctx, query,
		datasetID,
		int64(rec.Start),
		int64(rec.End),
		rec.RunID,
		rec.Format,
		rec.RowCount,
		rec.SuccessCount,
		rec.FailedCount,
		rec.ByteSize,
		rec.Checksum,
		rec.StoragePath,
		storageURI,
		rec.ProducerVersion,
		rec.ProducerGitSHA,
	)
	if err != nil {
		return fmt.Errorf("record batch: %w", err)
	}

	if _, err := tx.Exec(ctx,
		`DELETE FROM _meta_failures WHERE dataset_id = $1 AND batch_start = $2 AND batch_end = $3`,
		datasetID, int64(rec.Start), int64(rec.End),
	); err != nil {
		return fmt.Errorf("clear failures: %w", err)
	}

	if len(rec.Failures) > 0 {
		batch := &pgx.Batch{}
		for _, f := range rec.Failures {
			batch.Queue(`
				INSERT INTO _meta_failures (dataset_id, batch_start, batch_end, submission_id, error_message)
				VALUES ($1, $2, $3, $4, $5)
				ON CONFLICT DO NOTHING
			`, datasetID, int64(rec.Start), int64(rec.End), f.SubmissionID, f.Message)
		}
		if err := tx.SendBatch(ctx, batch).Close(); err != nil {
			return fmt.Errorf("record failures: %w", err)
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit batch record: %w", err)
	}

	w.log.Info("recorded lineage", "start", rec.Start, "end", rec.End, "failed", rec.FailedCount)
	return nil
}

// BatchExists checks if a batch has already been committed.
func (w *PostgresWriter) BatchExists(ctx context.Context, dataset, schemaVersion string, start, end int) (bool, error) {
	query := `
		SELECT EXISTS(
			SELECT 1 FROM _meta_batches b
			JOIN _meta_datasets d ON d.id = b.dataset_id
			WHERE d.dataset = $1 AND d.schema_version = $2
			  AND b.batch_start = $3 AND b.batch_end = $4
		)
	`

	var exists bool
	err := w.pool.QueryRow(ctx, query, dataset, schemaVersion, int64(start), int64(end)).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("check batch exists: %w", err)
	}
	return exists, nil
}

// Close releases database connections.
func (w *PostgresWriter) Close() error {
	w.pool.Close()
	return nil
}

var _ Writer = (*PostgresWriter)(nil)

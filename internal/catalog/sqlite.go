package catalog

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	_ "modernc.org/sqlite"

	"github.com/withObsrvr/binder-annotator/internal/logging"
)

// sqliteSchemaVersion is the latest schema version.
// Bump this when adding migrations.
const sqliteSchemaVersion = 1

// SQLiteWriter implements Writer using a local SQLite file.
type SQLiteWriter struct {
	db  *sql.DB
	log *slog.Logger
}

// NewSQLiteWriter opens (creating if needed) the catalog database at path.
func NewSQLiteWriter(ctx context.Context, path string) (*SQLiteWriter, error) {
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, fmt.Errorf("create catalog directory %s: %w", dir, err)
		}
	}

	// Pragmas in the DSN apply to every pooled connection.
	dsn := path + "?_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)&_pragma=foreign_keys(1)"
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite catalog: %w", err)
	}

	if err := migrate(ctx, db); err != nil {
		db.Close()
		return nil, err
	}

	return &SQLiteWriter{db: db, log: logging.Component("catalog")}, nil
}

// migrate applies schema migrations based on user_version.
func migrate(ctx context.Context, db *sql.DB) error {
	var version int
	if err := db.QueryRowContext(ctx, "PRAGMA user_version;").Scan(&version); err != nil {
		return fmt.Errorf("get user_version: %w", err)
	}

	if version < 1 {
		schema := `
		CREATE TABLE IF NOT EXISTS batches (
		  dataset          TEXT NOT NULL,
		  schema_version   TEXT NOT NULL,
		  batch_start      INTEGER NOT NULL,
		  batch_end        INTEGER NOT NULL,
		  run_id           TEXT NOT NULL,
		  format           TEXT NOT NULL,
		  row_count        INTEGER NOT NULL,
		  success_count    INTEGER NOT NULL,
		  failed_count     INTEGER NOT NULL,
		  byte_size        INTEGER NOT NULL,
		  checksum         TEXT NOT NULL,
		  storage_path     TEXT NOT NULL,
		  storage_uri      TEXT,
		  producer_version TEXT NOT NULL,
		  producer_git_sha TEXT,
		  created_at       INTEGER NOT NULL DEFAULT (unixepoch()),
		  PRIMARY KEY (dataset, schema_version, batch_start, batch_end)
		);

		CREATE TABLE IF NOT EXISTS failures (
		  dataset        TEXT NOT NULL,
		  schema_version TEXT NOT NULL,
		  batch_start    INTEGER NOT NULL,
		  batch_end      INTEGER NOT NULL,
		  submission_id  TEXT NOT NULL,
		  error_message  TEXT NOT NULL,
		  PRIMARY KEY (dataset, schema_version, batch_start, batch_end, submission_id)
		);
		`
		if _, err := db.ExecContext(ctx, schema); err != nil {
			return fmt.Errorf("migration 1 failed: %w", err)
		}
		if _, err := db.ExecContext(ctx, fmt.Sprintf("PRAGMA user_version=%d", sqliteSchemaVersion)); err != nil {
			return fmt.Errorf("set user_version: %w", err)
		}
	}

	return nil
}

// RecordBatch upserts the batch row and replaces its failures.
func (w *SQLiteWriter) RecordBatch(ctx context.Context, rec BatchRecord) error {
	tx, err := w.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	defer tx.Rollback()

	_, err = tx.ExecContext(ctx, `
		INSERT INTO batches (
		  dataset, schema_version, batch_start, batch_end, run_id, format,
		  row_count, success_count, failed_count, byte_size, checksum,
		  storage_path, storage_uri, producer_version, producer_git_sha
		)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (dataset, schema_version, batch_start, batch_end)
		DO UPDATE SET
		  run_id = excluded.run_id,
		  format = excluded.format,
		  row_count = excluded.row_count,
		  success_count = excluded.success_count,
		  failed_count = excluded.failed_count,
		  byte_size = excluded.byte_size,
		  checksum = excluded.checksum,
		  storage_path = excluded.storage_path,
		  storage_uri = excluded.storage_uri,
		  created_at = unixepoch()
	`,
		rec.Dataset, rec.SchemaVersion, rec.Start, rec.End, rec.RunID, rec.Format,
		rec.RowCount, rec.SuccessCount, rec.FailedCount, rec.ByteSize, rec.Checksum,
		rec.StoragePath, nullString(rec.StorageURI), rec.ProducerVersion, nullString(rec.ProducerGitSHA),
	)
	if err != nil {
		return fmt.Errorf("record batch: %w", err)
	}

	if _, err := tx.ExecContext(ctx,
		`DELETE FROM failures WHERE dataset = ? AND schema_version = ? AND batch_start = ? AND batch_end = ?`,
		rec.Dataset, rec.SchemaVersion, rec.Start, rec.End,
	); err != nil {
		return fmt.Errorf("clear failures: %w", err)
	}

	for _, f := range rec.Failures {
		if _, err := tx.ExecContext(ctx, `
			INSERT OR REPLACE INTO failures (dataset, schema_version, batch_start, batch_end, submission_id, error_message)
			VALUES (?, ?, ?, ?, ?, ?)
		`, rec.Dataset, rec.SchemaVersion, rec.Start, rec.End, f.SubmissionID, f.Message); err != nil {
			return fmt.Errorf("record failure %s: %w", f.SubmissionID, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit batch record: %w", err)
	}

	w.log.Debug("recorded lineage", "start", rec.Start, "end", rec.End, "failed", rec.FailedCount)
	return nil
}

// BatchExists reports whether the batch was recorded.
func (w *SQLiteWriter) BatchExists(ctx context.Context, dataset, schemaVersion string, start, end int) (bool, error) {
	var exists bool
	err := w.db.QueryRowContext(ctx, `
		SELECT EXISTS(
		  SELECT 1 FROM batches
		  WHERE dataset = ? AND schema_version = ? AND batch_start = ? AND batch_end = ?
		)
	`, dataset, schemaVersion, start, end).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("check batch exists: %w", err)
	}
	return exists, nil
}

// Failures returns the failures recorded for a batch, ordered by submission id.
func (w *SQLiteWriter) Failures(ctx context.Context, dataset, schemaVersion string, start, end int) ([]Failure, error) {
	rows, err := w.db.QueryContext(ctx, `
		SELECT submission_id, error_message FROM failures
		WHERE dataset = ? AND schema_version = ? AND batch_start = ? AND batch_end = ?
		ORDER BY submission_id
	`, dataset, schemaVersion, start, end)
	if err != nil {
		return nil, fmt.Errorf("query failures: %w", err)
	}
	defer rows.Close()

	var out []Failure
	for rows.Next() {
		var f Failure
		if err := rows.Scan(&f.SubmissionID, &f.Message); err != nil {
			return nil, fmt.Errorf("scan failure: %w", err)
		}
		out = append(out, f)
	}
	return out, rows.Err()
}

// Close closes the database.
func (w *SQLiteWriter) Close() error {
	return w.db.Close()
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}

var _ Writer = (*SQLiteWriter)(nil)

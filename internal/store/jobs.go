// Package store persists a local journal of remote batch jobs so
// operators can see what was submitted, where it ended up, and which
// file artifacts it produced.
package store

import (
	"context"
	"database/sql"
	"time"

	"github.com/rotisserie/eris"
	_ "modernc.org/sqlite"

	"github.com/pimstack/aipopulate/internal/batchfile"
)

// JobStore implements the batch job journal on modernc.org/sqlite.
type JobStore struct {
	db *sql.DB
}

// NewSQLite opens a SQLite database at the given path and configures WAL
// mode.
func NewSQLite(dsn string) (*JobStore, error) {
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, eris.Wrap(err, "store: open sqlite")
	}
	for _, pragma := range []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA busy_timeout=5000",
		"PRAGMA synchronous=NORMAL",
	} {
		if _, err := db.Exec(pragma); err != nil {
			db.Close()
			return nil, eris.Wrapf(err, "store: exec %s", pragma)
		}
	}
	return &JobStore{db: db}, nil
}

const jobsMigration = `
CREATE TABLE IF NOT EXISTS batch_jobs (
	id             TEXT PRIMARY KEY,
	name           TEXT NOT NULL,
	status         TEXT NOT NULL,
	input_file_id  TEXT NOT NULL DEFAULT '',
	output_file_id TEXT NOT NULL DEFAULT '',
	error_file_id  TEXT NOT NULL DEFAULT '',
	item_count     INTEGER NOT NULL DEFAULT 0,
	error          TEXT NOT NULL DEFAULT '',
	updated_at     DATETIME NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_batch_jobs_status ON batch_jobs(status);
CREATE INDEX IF NOT EXISTS idx_batch_jobs_updated_at ON batch_jobs(updated_at);
`

// Migrate creates the journal table when missing.
func (s *JobStore) Migrate(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, jobsMigration)
	return eris.Wrap(err, "store: migrate")
}

// Close releases the database handle.
func (s *JobStore) Close() error {
	return s.db.Close()
}

// Record upserts one job snapshot. It satisfies the batch pipeline's
// journal contract.
func (s *JobStore) Record(ctx context.Context, rec batchfile.JobRecord) error {
	updatedAt := rec.UpdatedAt
	if updatedAt.IsZero() {
		updatedAt = time.Now().UTC()
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO batch_jobs (id, name, status, input_file_id, output_file_id, error_file_id, item_count, error, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
		 ON CONFLICT (id) DO UPDATE SET
		   status = excluded.status,
		   input_file_id = excluded.input_file_id,
		   output_file_id = excluded.output_file_id,
		   error_file_id = excluded.error_file_id,
		   error = excluded.error,
		   updated_at = excluded.updated_at`,
		rec.ID, rec.Name, rec.Status, rec.InputFileID, rec.OutputFileID, rec.ErrorFileID,
		rec.ItemCount, rec.Error, updatedAt,
	)
	return eris.Wrapf(err, "store: record job %s", rec.ID)
}

// Get returns one job by id, or nil when unknown.
func (s *JobStore) Get(ctx context.Context, id string) (*batchfile.JobRecord, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT id, name, status, input_file_id, output_file_id, error_file_id, item_count, error, updated_at
		 FROM batch_jobs WHERE id = ?`, id)

	rec, err := scanJob(row.Scan)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, eris.Wrapf(err, "store: get job %s", id)
	}
	return rec, nil
}

// List returns the most recently updated jobs, newest first.
func (s *JobStore) List(ctx context.Context, limit int) ([]batchfile.JobRecord, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, name, status, input_file_id, output_file_id, error_file_id, item_count, error, updated_at
		 FROM batch_jobs ORDER BY updated_at DESC LIMIT ?`, limit)
	if err != nil {
		return nil, eris.Wrap(err, "store: list jobs")
	}
	defer rows.Close()

	var out []batchfile.JobRecord
	for rows.Next() {
		rec, err := scanJob(rows.Scan)
		if err != nil {
			return nil, eris.Wrap(err, "store: scan job")
		}
		out = append(out, *rec)
	}
	return out, eris.Wrap(rows.Err(), "store: iterate jobs")
}

func scanJob(scan func(dest ...any) error) (*batchfile.JobRecord, error) {
	var rec batchfile.JobRecord
	err := scan(&rec.ID, &rec.Name, &rec.Status, &rec.InputFileID, &rec.OutputFileID,
		&rec.ErrorFileID, &rec.ItemCount, &rec.Error, &rec.UpdatedAt)
	if err != nil {
		return nil, err
	}
	return &rec, nil
}

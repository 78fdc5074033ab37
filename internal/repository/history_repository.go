package repository

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"

	_ "modernc.org/sqlite"

	"github.com/iconidentify/hlsgrabba/internal/domain"
)

// SQLiteHistoryRepository stores job outcomes in a SQLite database.
type SQLiteHistoryRepository struct {
	db *sql.DB
}

// NewSQLiteHistoryRepository opens (or creates) the history database at path.
func NewSQLiteHistoryRepository(path string) (*SQLiteHistoryRepository, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return nil, fmt.Errorf("create history directory: %w", err)
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	// SQLite allows a single writer.
	db.SetMaxOpenConns(1)

	_, err = db.Exec(`
		CREATE TABLE IF NOT EXISTS job_history (
			seq INTEGER PRIMARY KEY AUTOINCREMENT,
			job_id TEXT NOT NULL,
			url TEXT NOT NULL,
			output_path TEXT NOT NULL,
			quality TEXT,
			priority TEXT NOT NULL,
			status TEXT NOT NULL,
			attempts INTEGER NOT NULL,
			error_message TEXT,
			finished_at DATETIME NOT NULL
		);
		CREATE INDEX IF NOT EXISTS idx_job_history_job_id ON job_history(job_id);
		CREATE INDEX IF NOT EXISTS idx_job_history_finished_at ON job_history(finished_at);
	`)
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("create table: %w", err)
	}

	return &SQLiteHistoryRepository{db: db}, nil
}

// Record appends a job outcome.
func (r *SQLiteHistoryRepository) Record(ctx context.Context, o domain.JobOutcome) error {
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO job_history (job_id, url, output_path, quality, priority, status, attempts, error_message, finished_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
	`, string(o.JobID), o.URL, o.OutputPath, o.Quality, string(o.Priority), string(o.Status), o.Attempts, o.ErrorMessage, o.FinishedAt.UTC())
	if err != nil {
		return fmt.Errorf("insert outcome: %w", err)
	}
	return nil
}

// List returns outcomes, newest first.
func (r *SQLiteHistoryRepository) List(ctx context.Context, limit, offset int) ([]domain.JobOutcome, error) {
	if limit <= 0 {
		limit = 50
	}
	if limit > 200 {
		limit = 200
	}
	if offset < 0 {
		offset = 0
	}

	rows, err := r.db.QueryContext(ctx, `
		SELECT job_id, url, output_path, quality, priority, status, attempts, error_message, finished_at
		FROM job_history
		ORDER BY seq DESC
		LIMIT ? OFFSET ?
	`, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("query history: %w", err)
	}
	defer rows.Close()

	outcomes := make([]domain.JobOutcome, 0, limit)
	for rows.Next() {
		var o domain.JobOutcome
		var quality, errMsg sql.NullString
		if err := rows.Scan(&o.JobID, &o.URL, &o.OutputPath, &quality, &o.Priority, &o.Status, &o.Attempts, &errMsg, &o.FinishedAt); err != nil {
			return nil, fmt.Errorf("scan outcome: %w", err)
		}
		o.Quality = quality.String
		o.ErrorMessage = errMsg.String
		outcomes = append(outcomes, o)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate history: %w", err)
	}

	return outcomes, nil
}

// Count returns the number of stored outcomes.
func (r *SQLiteHistoryRepository) Count(ctx context.Context) (int, error) {
	var n int
	if err := r.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM job_history").Scan(&n); err != nil {
		return 0, fmt.Errorf("count history: %w", err)
	}
	return n, nil
}

// Close closes the database.
func (r *SQLiteHistoryRepository) Close() error {
	return r.db.Close()
}

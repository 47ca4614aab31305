package database

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite" // SQLite driver

	"github.com/nao1215/webmirror/internal/model"
)

// MirrorDB provides SQLite-based storage for finished mirror runs and the
// pages they wrote.
//
// Design decision: We use a single database file for all runs rather than
// one file per run. This makes "show me my past runs for this site"
// queries trivial and keeps backup/restore a single-file operation.
type MirrorDB struct {
	// db is the underlying SQL database connection.
	db *sql.DB

	// dbPath is the path to the SQLite database file.
	dbPath string
}

// Options configures MirrorDB behavior.
type Options struct {
	// CreateIfNotExists creates the database file if it doesn't exist.
	CreateIfNotExists bool

	// EnableWAL enables Write-Ahead Logging for better concurrent performance.
	// This is recommended for most use cases.
	EnableWAL bool
}

// DefaultOptions returns the default database options.
func DefaultOptions() Options {
	return Options{
		CreateIfNotExists: true,
		EnableWAL:         true,
	}
}

// Open opens or creates a MirrorDB at the specified directory.
// If CreateIfNotExists is true, the directory and database file are created.
// If CreateIfNotExists is false and the database doesn't exist, an error is returned.
func Open(dbDir string, opts Options) (*MirrorDB, error) {
	dbPath := filepath.Join(dbDir, "webmirror.db")

	if !opts.CreateIfNotExists {
		if _, err := os.Stat(dbPath); os.IsNotExist(err) {
			return nil, fmt.Errorf("database not found at %s (use CreateIfNotExists option to create)", dbPath)
		} else if err != nil {
			return nil, fmt.Errorf("failed to check database path: %w", err)
		}
	} else {
		if err := os.MkdirAll(dbDir, 0750); err != nil {
			return nil, fmt.Errorf("failed to create database directory: %w", err)
		}
	}

	// modernc.org/sqlite connection string: mode=rw prevents creating new
	// files, mode=rwc allows creation.
	var dsn string
	if opts.CreateIfNotExists {
		dsn = dbPath + "?mode=rwc"
	} else {
		dsn = dbPath + "?mode=rw"
	}

	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// SQLite only supports one writer; a single connection avoids
	// SQLITE_BUSY under concurrent saves.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(time.Hour)

	mdb := &MirrorDB{
		db:     db,
		dbPath: dbPath,
	}

	if opts.EnableWAL {
		if _, err := db.ExecContext(context.Background(), "PRAGMA journal_mode=WAL"); err != nil {
			_ = db.Close()
			return nil, fmt.Errorf("failed to enable WAL mode: %w", err)
		}
	}

	if err := mdb.createTables(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to create tables: %w", err)
	}

	return mdb, nil
}

// Close closes the database connection.
func (mdb *MirrorDB) Close() error {
	return mdb.db.Close()
}

// createTables creates the database schema if it doesn't exist.
func (mdb *MirrorDB) createTables() error {
	schema := `
	-- Runs store one row per finished mirror run
	CREATE TABLE IF NOT EXISTS runs (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		seed_url TEXT NOT NULL,
		output_dir TEXT NOT NULL,
		timestamp DATETIME DEFAULT CURRENT_TIMESTAMP,
		files_processed INTEGER NOT NULL,
		bytes_downloaded INTEGER NOT NULL,
		pages_processed INTEGER NOT NULL,
		error_count INTEGER NOT NULL,
		report_json TEXT NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_runs_seed ON runs(seed_url);
	CREATE INDEX IF NOT EXISTS idx_runs_timestamp ON runs(timestamp);

	-- Pages store one row per file written during a run
	CREATE TABLE IF NOT EXISTS pages (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		run_id INTEGER NOT NULL REFERENCES runs(id) ON DELETE CASCADE,
		url TEXT NOT NULL,
		local_path TEXT NOT NULL,
		status_code INTEGER,
		content_type TEXT,
		bytes INTEGER,
		depth INTEGER,
		fetched_at DATETIME
	);

	CREATE INDEX IF NOT EXISTS idx_pages_run ON pages(run_id);
	CREATE INDEX IF NOT EXISTS idx_pages_url ON pages(url);
	`

	_, err := mdb.db.ExecContext(context.Background(), schema)
	return err
}

// SaveRun stores a finished run and its per-page records, returning the
// new run's database ID.
func (mdb *MirrorDB) SaveRun(ctx context.Context, report *model.MirrorReport) (int64, error) {
	reportJSON, err := json.Marshal(report)
	if err != nil {
		return 0, fmt.Errorf("failed to serialize report: %w", err)
	}

	tx, err := mdb.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck // no-op after commit

	result, err := tx.ExecContext(ctx, `
	INSERT INTO runs (seed_url, output_dir, files_processed, bytes_downloaded, pages_processed, error_count, report_json)
	VALUES (?, ?, ?, ?, ?, ?, ?)
	`,
		report.SeedURL,
		report.OutputDir,
		report.Statistics.FilesProcessed,
		report.Statistics.BytesDownloaded,
		report.Statistics.PagesProcessed,
		report.Statistics.ErrorCount,
		string(reportJSON),
	)
	if err != nil {
		return 0, fmt.Errorf("failed to insert run: %w", err)
	}

	runID, err := result.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("failed to read run id: %w", err)
	}

	for _, page := range report.Pages {
		if _, err := tx.ExecContext(ctx, `
		INSERT INTO pages (run_id, url, local_path, status_code, content_type, bytes, depth, fetched_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		`,
			runID,
			page.URL,
			page.LocalPath,
			page.StatusCode,
			page.ContentType,
			page.Bytes,
			page.Depth,
			page.FetchedAt.UTC().Format("2006-01-02 15:04:05"),
		); err != nil {
			return 0, fmt.Errorf("failed to insert page record: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("failed to commit run: %w", err)
	}
	return runID, nil
}

// RunMetadata contains summary information about a stored run.
// This is used for listing run history without loading full reports.
type RunMetadata struct {
	// ID is the unique identifier of the run in the database.
	ID int64

	// SeedURL is the URL the run started from.
	SeedURL string

	// OutputDir is the run's destination directory.
	OutputDir string

	// Timestamp is when the run was stored.
	Timestamp time.Time

	// FilesProcessed is the run's total written-file count.
	FilesProcessed int64

	// BytesDownloaded is the run's total byte count.
	BytesDownloaded int64

	// ErrorCount is the run's recovered-error count.
	ErrorCount int64
}

// ListRuns returns metadata for all stored runs, newest first.
func (mdb *MirrorDB) ListRuns(ctx context.Context) ([]RunMetadata, error) {
	query := `
	SELECT id, seed_url, output_dir, timestamp, files_processed, bytes_downloaded, error_count
	FROM runs
	ORDER BY timestamp DESC, id DESC
	`

	rows, err := mdb.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to list runs: %w", err)
	}
	defer rows.Close()

	var results []RunMetadata
	for rows.Next() {
		var meta RunMetadata
		var timestamp string

		if err := rows.Scan(
			&meta.ID,
			&meta.SeedURL,
			&meta.OutputDir,
			&timestamp,
			&meta.FilesProcessed,
			&meta.BytesDownloaded,
			&meta.ErrorCount,
		); err != nil {
			return nil, fmt.Errorf("failed to scan run metadata: %w", err)
		}

		meta.Timestamp = parseTimestamp(timestamp)
		results = append(results, meta)
	}

	return results, rows.Err()
}

// LastRunFor retrieves the most recent stored report for a seed URL.
// Returns nil without error when no run for the seed exists.
func (mdb *MirrorDB) LastRunFor(ctx context.Context, seedURL string) (*model.MirrorReport, error) {
	query := `
	SELECT report_json FROM runs
	WHERE seed_url = ?
	ORDER BY timestamp DESC, id DESC
	LIMIT 1
	`

	var reportJSON string
	err := mdb.db.QueryRowContext(ctx, query, seedURL).Scan(&reportJSON)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get run: %w", err)
	}

	var report model.MirrorReport
	if err := json.Unmarshal([]byte(reportJSON), &report); err != nil {
		return nil, fmt.Errorf("failed to parse report: %w", err)
	}

	return &report, nil
}

// GetRunByID retrieves a stored report by its database ID.
// Returns nil without error when the ID does not exist.
func (mdb *MirrorDB) GetRunByID(ctx context.Context, id int64) (*model.MirrorReport, error) {
	query := `
	SELECT report_json FROM runs
	WHERE id = ?
	`

	var reportJSON string
	err := mdb.db.QueryRowContext(ctx, query, id).Scan(&reportJSON)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get run: %w", err)
	}

	var report model.MirrorReport
	if err := json.Unmarshal([]byte(reportJSON), &report); err != nil {
		return nil, fmt.Errorf("failed to parse report: %w", err)
	}

	return &report, nil
}

// PagesForRun retrieves the per-page records of a stored run in
// insertion order.
func (mdb *MirrorDB) PagesForRun(ctx context.Context, runID int64) ([]model.PageRecord, error) {
	query := `
	SELECT url, local_path, status_code, content_type, bytes, depth, fetched_at
	FROM pages
	WHERE run_id = ?
	ORDER BY id
	`

	rows, err := mdb.db.QueryContext(ctx, query, runID)
	if err != nil {
		return nil, fmt.Errorf("failed to query pages: %w", err)
	}
	defer rows.Close()

	var pages []model.PageRecord
	for rows.Next() {
		var page model.PageRecord
		var fetchedAt string

		if err := rows.Scan(
			&page.URL,
			&page.LocalPath,
			&page.StatusCode,
			&page.ContentType,
			&page.Bytes,
			&page.Depth,
			&fetchedAt,
		); err != nil {
			return nil, fmt.Errorf("failed to scan page record: %w", err)
		}

		page.FetchedAt = parseTimestamp(fetchedAt)
		pages = append(pages, page)
	}

	return pages, rows.Err()
}

// HasRecentRun checks if a seed URL was mirrored within the specified duration.
func (mdb *MirrorDB) HasRecentRun(ctx context.Context, seedURL string, duration time.Duration) (bool, error) {
	query := `
	SELECT COUNT(*) FROM runs
	WHERE seed_url = ? AND timestamp > datetime('now', ?)
	`

	// SQLite datetime modifier format
	modifier := fmt.Sprintf("-%d seconds", int(duration.Seconds()))

	var count int
	err := mdb.db.QueryRowContext(ctx, query, seedURL, modifier).Scan(&count)
	if err != nil {
		return false, fmt.Errorf("failed to check recent run: %w", err)
	}

	return count > 0, nil
}

// timestampFormats contains the timestamp formats that SQLite may return.
// The order matters: more specific formats should come first.
var timestampFormats = []string{
	"2006-01-02 15:04:05",     // SQLite default datetime format
	"2006-01-02T15:04:05Z",    // ISO 8601 with Z suffix
	"2006-01-02T15:04:05",     // ISO 8601 without timezone
	time.RFC3339,              // Full RFC3339 format
	time.RFC3339Nano,          // RFC3339 with nanoseconds
	"2006-01-02 15:04:05.999", // SQLite with milliseconds
}

// parseTimestamp attempts to parse a timestamp string using multiple formats.
// SQLite may return timestamps in different formats depending on configuration.
// If parsing fails with all formats, returns zero time.
func parseTimestamp(s string) time.Time {
	for _, format := range timestampFormats {
		if t, err := time.Parse(format, s); err == nil {
			return t
		}
	}
	return time.Time{}
}

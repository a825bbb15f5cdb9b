package database

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite" // SQLite driver

	"github.com/nao1215/imgopt/internal/model"
)

// FileName is the database file name inside the database directory.
const FileName = "imgopt.db"

// HistoryDB provides SQLite-based storage for run history and the marker
// index. It is safe for concurrent use.
type HistoryDB struct {
	// db is the underlying SQL database connection.
	db *sql.DB

	// dbPath is the path to the SQLite database file.
	dbPath string
}

// Options configures HistoryDB behavior.
type Options struct {
	// CreateIfNotExists creates the database file if it doesn't exist.
	CreateIfNotExists bool

	// EnableWAL enables Write-Ahead Logging for better concurrent performance.
	EnableWAL bool
}

// DefaultOptions returns the default database options.
func DefaultOptions() Options {
	return Options{
		CreateIfNotExists: true,
		EnableWAL:         true,
	}
}

// Open opens or creates a HistoryDB in dbDir.
// If CreateIfNotExists is false and the database doesn't exist, an error is returned.
func Open(dbDir string, opts Options) (*HistoryDB, error) {
	dbPath := filepath.Join(dbDir, FileName)

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

	// mode=rw refuses to create a missing file, mode=rwc allows it.
	dsn := dbPath + "?mode=rw"
	if opts.CreateIfNotExists {
		dsn = dbPath + "?mode=rwc"
	}

	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// SQLite supports a single writer; workers share one connection.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(time.Hour)

	hdb := &HistoryDB{
		db:     db,
		dbPath: dbPath,
	}

	if opts.EnableWAL {
		if _, err := db.ExecContext(context.Background(), "PRAGMA journal_mode=WAL"); err != nil {
			_ = db.Close()
			return nil, fmt.Errorf("failed to enable WAL mode: %w", err)
		}
	}

	if err := hdb.createTables(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to create tables: %w", err)
	}

	return hdb, nil
}

// Close closes the database connection.
func (hdb *HistoryDB) Close() error {
	return hdb.db.Close()
}

// Path returns the database file path.
func (hdb *HistoryDB) Path() string {
	return hdb.dbPath
}

// createTables creates the database schema if it doesn't exist.
func (hdb *HistoryDB) createTables() error {
	schema := `
	-- Runs store one row per invocation with the full report as JSON
	CREATE TABLE IF NOT EXISTS runs (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		started_at TEXT NOT NULL,
		finished_at TEXT NOT NULL,
		root TEXT NOT NULL,
		dry_run INTEGER NOT NULL DEFAULT 0,
		site_count INTEGER NOT NULL DEFAULT 0,
		failed_sites INTEGER NOT NULL DEFAULT 0,
		bytes_before INTEGER NOT NULL DEFAULT 0,
		bytes_after INTEGER NOT NULL DEFAULT 0,
		files_processed INTEGER NOT NULL DEFAULT 0,
		files_failed INTEGER NOT NULL DEFAULT 0,
		report_json TEXT NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_runs_started ON runs(started_at);

	-- Site summaries allow per-site queries across runs
	CREATE TABLE IF NOT EXISTS site_summaries (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		run_id INTEGER NOT NULL REFERENCES runs(id) ON DELETE CASCADE,
		site_root TEXT NOT NULL,
		bytes_before INTEGER NOT NULL,
		bytes_after INTEGER NOT NULL,
		files_processed INTEGER NOT NULL,
		files_skipped INTEGER NOT NULL,
		files_failed INTEGER NOT NULL,
		error TEXT
	);

	CREATE INDEX IF NOT EXISTS idx_sites_root ON site_summaries(site_root);

	-- Markers replace sidecar files when the index store is selected
	CREATE TABLE IF NOT EXISTS markers (
		path TEXT PRIMARY KEY,
		optimized_at TEXT NOT NULL
	);
	`

	_, err := hdb.db.ExecContext(context.Background(), schema)
	return err
}

// RunRecord is the summary row of a stored run.
type RunRecord struct {
	ID             int64
	StartedAt      time.Time
	FinishedAt     time.Time
	Root           string
	DryRun         bool
	SiteCount      int
	FailedSites    int
	BytesBefore    int64
	BytesAfter     int64
	FilesProcessed int
	FilesFailed    int
}

// Saved returns the bytes saved by the run.
func (r RunRecord) Saved() int64 {
	return r.BytesBefore - r.BytesAfter
}

// SaveRun stores a finished run report and its site summaries.
// Per-file results are not persisted. It returns the new run ID.
func (hdb *HistoryDB) SaveRun(ctx context.Context, report *model.RunReport) (int64, error) {
	stored := *report
	stored.Sites = make([]model.SiteSummary, len(report.Sites))
	for i, s := range report.Sites {
		s.Results = nil
		stored.Sites[i] = s
	}

	reportJSON, err := json.Marshal(&stored)
	if err != nil {
		return 0, fmt.Errorf("failed to serialize report: %w", err)
	}

	tx, err := hdb.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() {
		_ = tx.Rollback() //nolint:errcheck // no-op after commit
	}()

	total := report.Totals()
	res, err := tx.ExecContext(ctx, `
	INSERT INTO runs (started_at, finished_at, root, dry_run, site_count, failed_sites,
		bytes_before, bytes_after, files_processed, files_failed, report_json)
	VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`,
		formatTimestamp(report.StartedAt),
		formatTimestamp(report.FinishedAt),
		report.Options.Root,
		boolToInt(report.Options.DryRun),
		len(report.Sites),
		report.FailedSites(),
		total.BytesBefore,
		total.BytesAfter,
		total.FilesProcessed,
		total.FilesFailed,
		string(reportJSON),
	)
	if err != nil {
		return 0, fmt.Errorf("failed to save run: %w", err)
	}

	runID, err := res.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("failed to get run id: %w", err)
	}

	for _, s := range report.Sites {
		_, err := tx.ExecContext(ctx, `
		INSERT INTO site_summaries (run_id, site_root, bytes_before, bytes_after,
			files_processed, files_skipped, files_failed, error)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		`,
			runID, s.SiteRoot, s.BytesBefore, s.BytesAfter,
			s.FilesProcessed, s.FilesSkipped, s.FilesFailed, s.Error,
		)
		if err != nil {
			return 0, fmt.Errorf("failed to save site summary: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("failed to commit run: %w", err)
	}
	return runID, nil
}

// RecentRuns returns up to limit runs, newest first.
func (hdb *HistoryDB) RecentRuns(ctx context.Context, limit int) ([]RunRecord, error) {
	if limit <= 0 {
		limit = 20
	}

	rows, err := hdb.db.QueryContext(ctx, `
	SELECT id, started_at, finished_at, root, dry_run, site_count, failed_sites,
		bytes_before, bytes_after, files_processed, files_failed
	FROM runs
	ORDER BY id DESC
	LIMIT ?
	`, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query runs: %w", err)
	}
	defer rows.Close()

	var records []RunRecord
	for rows.Next() {
		var r RunRecord
		var started, finished string
		var dryRun int
		if err := rows.Scan(
			&r.ID, &started, &finished, &r.Root, &dryRun, &r.SiteCount, &r.FailedSites,
			&r.BytesBefore, &r.BytesAfter, &r.FilesProcessed, &r.FilesFailed,
		); err != nil {
			return nil, fmt.Errorf("failed to scan run: %w", err)
		}
		r.StartedAt = parseTimestamp(started)
		r.FinishedAt = parseTimestamp(finished)
		r.DryRun = dryRun != 0
		records = append(records, r)
	}

	return records, rows.Err()
}

// GetRun returns the stored report of a run, or nil if it doesn't exist.
func (hdb *HistoryDB) GetRun(ctx context.Context, id int64) (*model.RunReport, error) {
	var reportJSON string
	err := hdb.db.QueryRowContext(ctx, `SELECT report_json FROM runs WHERE id = ?`, id).Scan(&reportJSON)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get run: %w", err)
	}

	var report model.RunReport
	if err := json.Unmarshal([]byte(reportJSON), &report); err != nil {
		return nil, fmt.Errorf("failed to parse report: %w", err)
	}
	return &report, nil
}

// SiteRecord is one stored site summary.
type SiteRecord struct {
	RunID          int64
	StartedAt      time.Time
	SiteRoot       string
	BytesBefore    int64
	BytesAfter     int64
	FilesProcessed int
	FilesSkipped   int
	FilesFailed    int
	Error          string
}

// SiteHistory returns the stored summaries of siteRoot, newest first.
func (hdb *HistoryDB) SiteHistory(ctx context.Context, siteRoot string, limit int) ([]SiteRecord, error) {
	if limit <= 0 {
		limit = 20
	}

	rows, err := hdb.db.QueryContext(ctx, `
	SELECT s.run_id, r.started_at, s.site_root, s.bytes_before, s.bytes_after,
		s.files_processed, s.files_skipped, s.files_failed, s.error
	FROM site_summaries s
	JOIN runs r ON r.id = s.run_id
	WHERE s.site_root = ?
	ORDER BY s.run_id DESC
	LIMIT ?
	`, siteRoot, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query site history: %w", err)
	}
	defer rows.Close()

	var records []SiteRecord
	for rows.Next() {
		var r SiteRecord
		var started string
		var siteErr sql.NullString
		if err := rows.Scan(
			&r.RunID, &started, &r.SiteRoot, &r.BytesBefore, &r.BytesAfter,
			&r.FilesProcessed, &r.FilesSkipped, &r.FilesFailed, &siteErr,
		); err != nil {
			return nil, fmt.Errorf("failed to scan site summary: %w", err)
		}
		r.StartedAt = parseTimestamp(started)
		r.Error = siteErr.String
		records = append(records, r)
	}

	return records, rows.Err()
}

// HasMarker reports whether path has a recorded marker.
// It implements marker.Index.
func (hdb *HistoryDB) HasMarker(ctx context.Context, path string) (bool, error) {
	var one int
	err := hdb.db.QueryRowContext(ctx, `SELECT 1 FROM markers WHERE path = ?`, path).Scan(&one)
	if errors.Is(err, sql.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("failed to query marker: %w", err)
	}
	return true, nil
}

// PutMarker records or refreshes the marker for path.
// It implements marker.Index.
func (hdb *HistoryDB) PutMarker(ctx context.Context, path string, at time.Time) error {
	_, err := hdb.db.ExecContext(ctx, `
	INSERT INTO markers (path, optimized_at) VALUES (?, ?)
	ON CONFLICT(path) DO UPDATE SET optimized_at = excluded.optimized_at
	`, path, formatTimestamp(at))
	if err != nil {
		return fmt.Errorf("failed to save marker: %w", err)
	}
	return nil
}

// formatTimestamp renders t for storage.
func formatTimestamp(t time.Time) string {
	return t.UTC().Format(time.RFC3339Nano)
}

// boolToInt converts a bool to SQLite's integer representation.
func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

// timestampFormats contains the timestamp formats that may be stored.
// The order matters: more specific formats should come first.
var timestampFormats = []string{
	time.RFC3339Nano,
	time.RFC3339,
	"2006-01-02 15:04:05",
	"2006-01-02T15:04:05",
}

// parseTimestamp attempts to parse a timestamp string using multiple formats.
// If parsing fails with all formats, returns zero time.
func parseTimestamp(s string) time.Time {
	for _, format := range timestampFormats {
		if t, err := time.Parse(format, s); err == nil {
			return t
		}
	}
	return time.Time{}
}

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

	"github.com/nao1215/pepfetch/internal/model"
)

// DBFileName is the name of the database file inside the database directory.
const DBFileName = "pepfetch.db"

// ErrRunNotFound is returned when a run ID does not exist.
var ErrRunNotFound = errors.New("run not found")

// HistoryDB stores runs and per-PEP outcomes.
type HistoryDB struct {
	db     *sql.DB
	dbPath string
}

// Options configures HistoryDB behavior.
type Options struct {
	// CreateIfNotExists creates the database file if it doesn't exist.
	CreateIfNotExists bool

	// EnableWAL enables Write-Ahead Logging.
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
	dbPath := filepath.Join(dbDir, DBFileName)

	if !opts.CreateIfNotExists {
		if _, err := os.Stat(dbPath); os.IsNotExist(err) {
			return nil, fmt.Errorf("database not found at %s (use CreateIfNotExists option to create)", dbPath)
		} else if err != nil {
			return nil, fmt.Errorf("failed to check database path: %w", err)
		}
	} else if err := os.MkdirAll(dbDir, 0o750); err != nil {
		return nil, fmt.Errorf("failed to create database directory: %w", err)
	}

	// mode=rw refuses to create a missing file; mode=rwc allows it.
	dsn := dbPath + "?mode=rw"
	if opts.CreateIfNotExists {
		dsn = dbPath + "?mode=rwc"
	}

	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// SQLite only supports one writer.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(time.Hour)

	hdb := &HistoryDB{db: db, dbPath: dbPath}

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
func (h *HistoryDB) Close() error {
	return h.db.Close()
}

// Path returns the database file path.
func (h *HistoryDB) Path() string {
	return h.dbPath
}

func (h *HistoryDB) createTables() error {
	schema := `
	CREATE TABLE IF NOT EXISTS runs (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		index_url TEXT NOT NULL,
		output_dir TEXT NOT NULL,
		network TEXT NOT NULL DEFAULT 'direct',
		started_at TEXT NOT NULL,
		finished_at TEXT,
		total INTEGER NOT NULL DEFAULT 0,
		written INTEGER NOT NULL DEFAULT 0,
		skipped INTEGER NOT NULL DEFAULT 0,
		failed INTEGER NOT NULL DEFAULT 0,
		summary_json TEXT
	);

	CREATE INDEX IF NOT EXISTS idx_runs_started ON runs(started_at);

	CREATE TABLE IF NOT EXISTS outcomes (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		run_id INTEGER NOT NULL REFERENCES runs(id) ON DELETE CASCADE,
		number INTEGER NOT NULL,
		url TEXT,
		title TEXT,
		path TEXT,
		status TEXT NOT NULL,
		error TEXT,
		bytes INTEGER NOT NULL DEFAULT 0,
		digest TEXT,
		duration_ms INTEGER NOT NULL DEFAULT 0,
		UNIQUE(run_id, number)
	);

	CREATE INDEX IF NOT EXISTS idx_outcomes_number ON outcomes(number);
	CREATE INDEX IF NOT EXISTS idx_outcomes_status ON outcomes(status);
	`

	_, err := h.db.ExecContext(context.Background(), schema)
	return err
}

// RunRecord is one row of the runs table.
type RunRecord struct {
	ID         int64
	IndexURL   string
	OutputDir  string
	Network    string
	StartedAt  time.Time
	FinishedAt time.Time // zero if the run never finished
	Total      int
	Written    int
	Skipped    int
	Failed     int
}

// Finished reports whether the run completed.
func (r RunRecord) Finished() bool {
	return !r.FinishedAt.IsZero()
}

// BeginRun inserts a run and returns its ID.
func (h *HistoryDB) BeginRun(ctx context.Context, indexURL, outputDir, network string, startedAt time.Time) (int64, error) {
	res, err := h.db.ExecContext(ctx,
		`INSERT INTO runs (index_url, output_dir, network, started_at) VALUES (?, ?, ?, ?)`,
		indexURL, outputDir, network, formatTimestamp(startedAt),
	)
	if err != nil {
		return 0, fmt.Errorf("failed to insert run: %w", err)
	}
	return res.LastInsertId()
}

// RecordOutcome stores the outcome of one PEP in a run.
// Recording the same PEP twice for a run replaces the earlier outcome.
func (h *HistoryDB) RecordOutcome(ctx context.Context, runID int64, o model.Outcome) error {
	query := `
	INSERT INTO outcomes (run_id, number, url, title, path, status, error, bytes, digest, duration_ms)
	VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	ON CONFLICT(run_id, number) DO UPDATE SET
		url = excluded.url,
		title = excluded.title,
		path = excluded.path,
		status = excluded.status,
		error = excluded.error,
		bytes = excluded.bytes,
		digest = excluded.digest,
		duration_ms = excluded.duration_ms
	`
	_, err := h.db.ExecContext(ctx, query,
		runID, int(o.Number), o.URL, o.Title, o.Path, o.Status.String(),
		o.Err, o.Bytes, o.Digest, o.Duration.Milliseconds(),
	)
	if err != nil {
		return fmt.Errorf("failed to record outcome for PEP %d: %w", o.Number, err)
	}
	return nil
}

// FinishRun stores the counters and finish time of a completed run.
// The summary's RunID selects the run.
func (h *HistoryDB) FinishRun(ctx context.Context, summary *model.Summary) error {
	summaryJSON, err := json.Marshal(summary)
	if err != nil {
		return fmt.Errorf("failed to serialize summary: %w", err)
	}

	finishedAt := summary.FinishedAt
	if finishedAt.IsZero() {
		finishedAt = time.Now()
	}

	res, err := h.db.ExecContext(ctx, `
	UPDATE runs SET finished_at = ?, total = ?, written = ?, skipped = ?, failed = ?, summary_json = ?
	WHERE id = ?`,
		formatTimestamp(finishedAt), summary.Total(), summary.Written(), summary.Skipped(), summary.Failed(),
		string(summaryJSON), summary.RunID,
	)
	if err != nil {
		return fmt.Errorf("failed to finish run: %w", err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return fmt.Errorf("%w: %d", ErrRunNotFound, summary.RunID)
	}
	return nil
}

// ListRuns returns the most recent runs, newest first.
// A limit of zero or less returns all runs.
func (h *HistoryDB) ListRuns(ctx context.Context, limit int) ([]RunRecord, error) {
	query := `
	SELECT id, index_url, output_dir, network, started_at, COALESCE(finished_at, ''), total, written, skipped, failed
	FROM runs ORDER BY id DESC`
	args := []any{}
	if limit > 0 {
		query += ` LIMIT ?`
		args = append(args, limit)
	}

	rows, err := h.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query runs: %w", err)
	}
	defer rows.Close()

	var runs []RunRecord
	for rows.Next() {
		run, err := scanRun(rows)
		if err != nil {
			return nil, err
		}
		runs = append(runs, run)
	}
	return runs, rows.Err()
}

// GetRun returns one run by ID.
func (h *HistoryDB) GetRun(ctx context.Context, id int64) (*RunRecord, error) {
	row := h.db.QueryRowContext(ctx, `
	SELECT id, index_url, output_dir, network, started_at, COALESCE(finished_at, ''), total, written, skipped, failed
	FROM runs WHERE id = ?`, id)

	run, err := scanRun(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: %d", ErrRunNotFound, id)
	}
	if err != nil {
		return nil, err
	}
	return &run, nil
}

// rowScanner is satisfied by *sql.Row and *sql.Rows.
type rowScanner interface {
	Scan(dest ...any) error
}

func scanRun(row rowScanner) (RunRecord, error) {
	var run RunRecord
	var startedAt, finishedAt string
	err := row.Scan(&run.ID, &run.IndexURL, &run.OutputDir, &run.Network,
		&startedAt, &finishedAt, &run.Total, &run.Written, &run.Skipped, &run.Failed)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return run, err
		}
		return run, fmt.Errorf("failed to scan run: %w", err)
	}
	run.StartedAt = parseTimestamp(startedAt)
	if finishedAt != "" {
		run.FinishedAt = parseTimestamp(finishedAt)
	}
	return run, nil
}

// Outcomes returns the outcomes recorded for a run, ordered by PEP number.
func (h *HistoryDB) Outcomes(ctx context.Context, runID int64) ([]model.Outcome, error) {
	rows, err := h.db.QueryContext(ctx, `
	SELECT number, COALESCE(url, ''), COALESCE(title, ''), COALESCE(path, ''), status,
		COALESCE(error, ''), bytes, COALESCE(digest, ''), duration_ms
	FROM outcomes WHERE run_id = ? ORDER BY number`, runID)
	if err != nil {
		return nil, fmt.Errorf("failed to query outcomes: %w", err)
	}
	defer rows.Close()

	var outcomes []model.Outcome
	for rows.Next() {
		var o model.Outcome
		var number int
		var status string
		var durationMS int64
		if err := rows.Scan(&number, &o.URL, &o.Title, &o.Path, &status,
			&o.Err, &o.Bytes, &o.Digest, &durationMS); err != nil {
			return nil, fmt.Errorf("failed to scan outcome: %w", err)
		}
		o.Number = model.Number(number)
		o.Duration = time.Duration(durationMS) * time.Millisecond
		if o.Status, err = model.ParseStatus(status); err != nil {
			return nil, fmt.Errorf("outcome for PEP %d: %w", number, err)
		}
		outcomes = append(outcomes, o)
	}
	return outcomes, rows.Err()
}

// LastDigest returns the digest of the most recently written artifact for a PEP.
func (h *HistoryDB) LastDigest(ctx context.Context, number model.Number) (string, bool, error) {
	var digest string
	err := h.db.QueryRowContext(ctx, `
	SELECT digest FROM outcomes
	WHERE number = ? AND status = ? AND digest IS NOT NULL AND digest != ''
	ORDER BY run_id DESC LIMIT 1`, int(number), model.StatusWritten.String()).Scan(&digest)
	if errors.Is(err, sql.ErrNoRows) {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("failed to query digest: %w", err)
	}
	return digest, true, nil
}

// LatestDigests returns, for every PEP ever written, the digest of its most
// recent artifact.
func (h *HistoryDB) LatestDigests(ctx context.Context) (map[model.Number]string, error) {
	rows, err := h.db.QueryContext(ctx, `
	SELECT o.number, o.digest FROM outcomes o
	JOIN (
		SELECT number, MAX(run_id) AS run_id FROM outcomes
		WHERE status = ? AND digest IS NOT NULL AND digest != ''
		GROUP BY number
	) latest ON latest.number = o.number AND latest.run_id = o.run_id`,
		model.StatusWritten.String())
	if err != nil {
		return nil, fmt.Errorf("failed to query digests: %w", err)
	}
	defer rows.Close()

	digests := make(map[model.Number]string)
	for rows.Next() {
		var number int
		var digest string
		if err := rows.Scan(&number, &digest); err != nil {
			return nil, fmt.Errorf("failed to scan digest: %w", err)
		}
		digests[model.Number(number)] = digest
	}
	return digests, rows.Err()
}

// timestampLayout is how timestamps are written. parseTimestamp accepts it
// along with the formats SQLite itself produces.
const timestampLayout = time.RFC3339Nano

func formatTimestamp(t time.Time) string {
	return t.UTC().Format(timestampLayout)
}

// timestampFormats contains the timestamp formats that may be stored.
// The order matters: more specific formats should come first.
var timestampFormats = []string{
	time.RFC3339Nano,
	time.RFC3339,
	"2006-01-02 15:04:05.999", // SQLite with milliseconds
	"2006-01-02 15:04:05",     // SQLite default datetime format
	"2006-01-02T15:04:05",     // ISO 8601 without timezone
}

// parseTimestamp attempts to parse a timestamp string using multiple formats.
// If parsing fails with all formats, it returns the zero time.
func parseTimestamp(s string) time.Time {
	for _, format := range timestampFormats {
		if t, err := time.Parse(format, s); err == nil {
			return t
		}
	}
	return time.Time{}
}

// Package history keeps a SQLite record of finished conversion jobs.
package history

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	_ "modernc.org/sqlite"

	"framereel/internal/jobs"
)

// timeLayout sorts lexically, unlike RFC3339Nano which trims zeros.
const timeLayout = "2006-01-02T15:04:05.000000000Z"

// DefaultLimit is the number of rows List returns when no limit is given.
const DefaultLimit = 50

// Store manages job history backed by SQLite.
type Store struct {
	db   *sql.DB
	path string
}

const (
	sqliteBusyCode          = 5
	busyRetryAttempts       = 5
	busyRetryInitialBackoff = 10 * time.Millisecond
	busyRetryMaxBackoff     = 200 * time.Millisecond
)

// Entry is one stored job.
type Entry struct {
	ID int64 `json:"id"`
	jobs.Summary
}

func ensureContext(ctx context.Context) context.Context {
	if ctx != nil {
		return ctx
	}
	return context.Background()
}

func isSQLiteBusy(err error) bool {
	if err == nil {
		return false
	}
	var coder interface{ Code() int }
	if errors.As(err, &coder) && coder.Code() == sqliteBusyCode {
		return true
	}
	msg := err.Error()
	return strings.Contains(msg, "SQLITE_BUSY") || strings.Contains(msg, "database is locked")
}

func retryOnBusy(ctx context.Context, op func() error) error {
	delay := busyRetryInitialBackoff
	var lastErr error
	for attempt := 0; attempt < busyRetryAttempts; attempt++ {
		lastErr = op()
		if lastErr == nil {
			return nil
		}
		if !isSQLiteBusy(lastErr) || attempt == busyRetryAttempts-1 {
			break
		}
		select {
		case <-time.After(delay):
		case <-ctx.Done():
			return ctx.Err()
		}
		if next := delay * 2; next <= busyRetryMaxBackoff {
			delay = next
		}
	}
	return lastErr
}

func (s *Store) execWithRetry(ctx context.Context, query string, args ...any) (sql.Result, error) {
	ctx = ensureContext(ctx)
	var (
		res     sql.Result
		execErr error
	)
	if err := retryOnBusy(ctx, func() error {
		res, execErr = s.db.ExecContext(ctx, query, args...)
		return execErr
	}); err != nil {
		return nil, err
	}
	return res, nil
}

// Open initializes or connects to the history database at path.
func Open(path string) (*Store, error) {
	path = strings.TrimSpace(path)
	if path == "" {
		return nil, errors.New("history path is empty")
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("ensure history directory: %w", err)
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open sqlite db: %w", err)
	}

	pragmas := []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA busy_timeout = 5000",
	}
	for _, pragma := range pragmas {
		if _, execErr := db.Exec(pragma); execErr != nil {
			_ = db.Close()
			return nil, fmt.Errorf("apply pragma %q: %w", pragma, execErr)
		}
	}

	store := &Store{db: db, path: path}
	if err := store.initSchema(context.Background()); err != nil {
		_ = db.Close()
		return nil, err
	}
	return store, nil
}

// Path returns the database file location.
func (s *Store) Path() string {
	return s.path
}

// Close closes the underlying database connection.
func (s *Store) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

// Record stores a finished job. Recording the same job ID twice replaces the row.
func (s *Store) Record(ctx context.Context, summary jobs.Summary) error {
	if strings.TrimSpace(summary.JobID) == "" {
		return errors.New("job id is required")
	}
	_, err := s.execWithRetry(ctx,
		`INSERT OR REPLACE INTO jobs (
            job_id, input_dir, pattern, start_frame, end_frame, output_path, codec,
            source_fps, output_fps, input_frames, output_frames, duration_seconds,
            preconverted, outcome, message, started_at, finished_at
        ) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		summary.JobID,
		summary.InputDir,
		summary.Pattern,
		summary.StartFrame,
		summary.EndFrame,
		summary.OutputPath,
		summary.Codec,
		summary.SourceFPS,
		summary.OutputFPS,
		summary.InputFrames,
		summary.OutputFrames,
		summary.DurationSeconds,
		boolToInt(summary.Preconverted),
		summary.Outcome,
		nullableString(summary.Message),
		formatTime(summary.StartedAt),
		formatTime(summary.FinishedAt),
	)
	if err != nil {
		return fmt.Errorf("insert job %s: %w", summary.JobID, err)
	}
	return nil
}

// List returns the most recent jobs first. outcome filters when non-empty.
func (s *Store) List(ctx context.Context, limit int, outcome string) ([]Entry, error) {
	ctx = ensureContext(ctx)
	if limit <= 0 {
		limit = DefaultLimit
	}
	query := `SELECT id, job_id, input_dir, pattern, start_frame, end_frame, output_path, codec,
        source_fps, output_fps, input_frames, output_frames, duration_seconds,
        preconverted, outcome, message, started_at, finished_at
        FROM jobs`
	args := make([]any, 0, 2)
	if outcome = strings.TrimSpace(outcome); outcome != "" {
		query += " WHERE outcome = ?"
		args = append(args, outcome)
	}
	query += " ORDER BY finished_at DESC, id DESC LIMIT ?"
	args = append(args, limit)

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query history: %w", err)
	}
	defer rows.Close()

	var entries []Entry
	for rows.Next() {
		entry, err := scanEntry(rows)
		if err != nil {
			return nil, err
		}
		entries = append(entries, entry)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate history: %w", err)
	}
	return entries, nil
}

// Prune removes jobs that finished before cutoff and returns how many went.
func (s *Store) Prune(ctx context.Context, cutoff time.Time) (int64, error) {
	res, err := s.execWithRetry(ctx, "DELETE FROM jobs WHERE finished_at < ?", formatTime(cutoff))
	if err != nil {
		return 0, fmt.Errorf("prune history: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("rows affected: %w", err)
	}
	return n, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanEntry(row rowScanner) (Entry, error) {
	var (
		entry        Entry
		preconverted int
		message      sql.NullString
		startedAt    string
		finishedAt   string
	)
	s := &entry.Summary
	if err := row.Scan(
		&entry.ID, &s.JobID, &s.InputDir, &s.Pattern, &s.StartFrame, &s.EndFrame,
		&s.OutputPath, &s.Codec, &s.SourceFPS, &s.OutputFPS, &s.InputFrames,
		&s.OutputFrames, &s.DurationSeconds, &preconverted, &s.Outcome, &message,
		&startedAt, &finishedAt,
	); err != nil {
		return Entry{}, fmt.Errorf("scan history row: %w", err)
	}
	s.Preconverted = preconverted != 0
	s.Message = message.String
	s.StartedAt = parseTime(startedAt)
	s.FinishedAt = parseTime(finishedAt)
	return entry, nil
}

func boolToInt(v bool) int {
	if v {
		return 1
	}
	return 0
}

func nullableString(value string) any {
	if strings.TrimSpace(value) == "" {
		return nil
	}
	return value
}

func formatTime(t time.Time) string {
	if t.IsZero() {
		t = time.Now()
	}
	return t.UTC().Format(timeLayout)
}

func parseTime(value string) time.Time {
	t, err := time.Parse(timeLayout, value)
	if err != nil {
		return time.Time{}
	}
	return t
}

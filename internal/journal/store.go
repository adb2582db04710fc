package journal

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
)

// Entry is one recorded resolution.
type Entry struct {
	ID           int64         `json:"id"`
	Key          string        `json:"key"`
	SourceURL    string        `json:"source_url"`
	Kind         string        `json:"kind"`
	Outcome      string        `json:"outcome"`
	ErrorCode    string        `json:"error_code,omitempty"`
	ErrorMessage string        `json:"error_message,omitempty"`
	Duration     time.Duration `json:"duration"`
	SizeBytes    int64         `json:"size_bytes"`
	CreatedAt    time.Time     `json:"created_at"`
}

// Store persists entries in SQLite.
type Store struct {
	db   *sql.DB
	path string
}

const (
	// maxMessageLen bounds stored error text.
	maxMessageLen = 2048
	// timeLayout has fixed-width fractions so stored timestamps sort as text.
	timeLayout = "2006-01-02T15:04:05.000000000Z"
)

// Open initializes or connects to the journal database.
func Open(path string) (*Store, error) {
	path = strings.TrimSpace(path)
	if path == "" {
		return nil, errors.New("journal: database path is empty")
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("journal: ensure directory: %w", err)
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open sqlite db: %w", err)
	}

	pragmas := []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA busy_timeout = 5000",
		"PRAGMA synchronous = NORMAL",
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

// Path returns the database file path.
func (s *Store) Path() string {
	if s == nil {
		return ""
	}
	return s.path
}

// Close closes the underlying database connection.
func (s *Store) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

// Record inserts entry. CreatedAt defaults to now.
func (s *Store) Record(ctx context.Context, entry Entry) error {
	if s == nil {
		return nil
	}
	if entry.CreatedAt.IsZero() {
		entry.CreatedAt = time.Now()
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO conversions (
            cache_key, source_url, kind, outcome, error_code, error_message,
            duration_ms, size_bytes, created_at
        ) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		entry.Key,
		entry.SourceURL,
		entry.Kind,
		entry.Outcome,
		nullableString(entry.ErrorCode),
		nullableString(truncate(entry.ErrorMessage, maxMessageLen)),
		entry.Duration.Milliseconds(),
		entry.SizeBytes,
		entry.CreatedAt.UTC().Format(timeLayout),
	)
	if err != nil {
		return fmt.Errorf("journal: insert entry: %w", err)
	}
	return nil
}

// Recent returns up to limit entries, newest first.
func (s *Store) Recent(ctx context.Context, limit int) ([]Entry, error) {
	if limit <= 0 {
		limit = 20
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, cache_key, source_url, kind, outcome, error_code, error_message,
                duration_ms, size_bytes, created_at
         FROM conversions ORDER BY id DESC LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("journal: query recent: %w", err)
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
		return nil, fmt.Errorf("journal: iterate recent: %w", err)
	}
	return entries, nil
}

// ForKey returns every entry recorded for key, newest first.
func (s *Store) ForKey(ctx context.Context, key string) ([]Entry, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, cache_key, source_url, kind, outcome, error_code, error_message,
                duration_ms, size_bytes, created_at
         FROM conversions WHERE cache_key = ? ORDER BY id DESC`, key)
	if err != nil {
		return nil, fmt.Errorf("journal: query key: %w", err)
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
		return nil, fmt.Errorf("journal: iterate key: %w", err)
	}
	return entries, nil
}

// OutcomeCounts tallies entries per outcome.
func (s *Store) OutcomeCounts(ctx context.Context) (map[string]int, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT outcome, COUNT(1) FROM conversions GROUP BY outcome`)
	if err != nil {
		return nil, fmt.Errorf("journal: count outcomes: %w", err)
	}
	defer rows.Close()

	counts := make(map[string]int)
	for rows.Next() {
		var (
			outcome string
			count   int
		)
		if err := rows.Scan(&outcome, &count); err != nil {
			return nil, fmt.Errorf("journal: scan outcome count: %w", err)
		}
		counts[outcome] = count
	}
	return counts, rows.Err()
}

// PruneBefore deletes entries older than cutoff and returns how many were removed.
func (s *Store) PruneBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	res, err := s.db.ExecContext(ctx, `DELETE FROM conversions WHERE created_at < ?`, cutoff.UTC().Format(timeLayout))
	if err != nil {
		return 0, fmt.Errorf("journal: prune: %w", err)
	}
	return res.RowsAffected()
}

type scanner interface {
	Scan(dest ...any) error
}

func scanEntry(row scanner) (Entry, error) {
	var (
		entry      Entry
		errorCode  sql.NullString
		errorMsg   sql.NullString
		durationMS int64
		createdAt  string
	)
	if err := row.Scan(
		&entry.ID,
		&entry.Key,
		&entry.SourceURL,
		&entry.Kind,
		&entry.Outcome,
		&errorCode,
		&errorMsg,
		&durationMS,
		&entry.SizeBytes,
		&createdAt,
	); err != nil {
		return Entry{}, fmt.Errorf("journal: scan entry: %w", err)
	}
	entry.ErrorCode = errorCode.String
	entry.ErrorMessage = errorMsg.String
	entry.Duration = time.Duration(durationMS) * time.Millisecond
	if ts, err := time.Parse(time.RFC3339Nano, createdAt); err == nil {
		entry.CreatedAt = ts
	}
	return entry, nil
}

func nullableString(value string) any {
	if value == "" {
		return nil
	}
	return value
}

func truncate(value string, limit int) string {
	if len(value) <= limit {
		return value
	}
	return value[:limit]
}

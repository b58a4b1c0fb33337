package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"github.com/hyperjump/pawmatch/internal/models"
)

// SQLiteProbeLog implements ProbeLog using SQLite.
type SQLiteProbeLog struct {
	db *sql.DB
}

// NewSQLiteProbeLog opens or creates a SQLite database at dbPath and initializes the schema.
// Parent directories are created if they do not exist.
func NewSQLiteProbeLog(dbPath string) (*SQLiteProbeLog, error) {
	if dir := filepath.Dir(dbPath); dir != "." {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, fmt.Errorf("failed to create database directory: %w", err)
		}
	}
	db, err := sql.Open("sqlite3", dbPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	// One connection: a single writer, and ":memory:" stays one database.
	db.SetMaxOpenConns(1)

	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to enable WAL: %w", err)
	}

	if err := initSchema(db); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}

	return &SQLiteProbeLog{db: db}, nil
}

func initSchema(db *sql.DB) error {
	schema := `
	CREATE TABLE IF NOT EXISTS probes (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		locator TEXT NOT NULL,
		alive INTEGER NOT NULL,
		status INTEGER NOT NULL DEFAULT 0,
		method TEXT NOT NULL DEFAULT '',
		reason TEXT NOT NULL DEFAULT '',
		duration_ns INTEGER NOT NULL DEFAULT 0,
		checked_at TIMESTAMP NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_probes_locator ON probes(locator, checked_at);
	CREATE INDEX IF NOT EXISTS idx_probes_alive ON probes(alive, checked_at);
	`
	_, err := db.Exec(schema)
	return err
}

// RecordProbe appends one probe outcome. A zero CheckedAt is set to now.
func (s *SQLiteProbeLog) RecordProbe(ctx context.Context, rec *models.ProbeRecord) error {
	if rec.CheckedAt.IsZero() {
		rec.CheckedAt = time.Now()
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO probes (locator, alive, status, method, reason, duration_ns, checked_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?)`,
		rec.Locator, rec.Alive, rec.Status, rec.Method, rec.Reason, int64(rec.Duration), rec.CheckedAt.UTC(),
	)
	if err != nil {
		return fmt.Errorf("failed to record probe: %w", err)
	}
	return nil
}

// LastProbe returns the most recent outcome for locator, or ErrNotFound.
func (s *SQLiteProbeLog) LastProbe(ctx context.Context, locator string) (*models.ProbeRecord, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT locator, alive, status, method, reason, duration_ns, checked_at
		 FROM probes WHERE locator = ? ORDER BY checked_at DESC, id DESC LIMIT 1`, locator)
	rec, err := scanProbe(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("probe for %s: %w", locator, ErrNotFound)
	}
	return rec, err
}

// RecentDead returns the latest failed probes, newest first.
func (s *SQLiteProbeLog) RecentDead(ctx context.Context, limit int) ([]*models.ProbeRecord, error) {
	if limit <= 0 {
		limit = 20
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT locator, alive, status, method, reason, duration_ns, checked_at
		 FROM probes WHERE alive = 0 ORDER BY checked_at DESC, id DESC LIMIT ?`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []*models.ProbeRecord
	for rows.Next() {
		rec, err := scanProbe(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, rec)
	}
	return out, rows.Err()
}

// Stats returns totals over the whole log.
func (s *SQLiteProbeLog) Stats(ctx context.Context) (*models.ProbeStats, error) {
	var st models.ProbeStats
	err := s.db.QueryRowContext(ctx,
		`SELECT COUNT(*), COALESCE(SUM(CASE WHEN alive = 0 THEN 1 ELSE 0 END), 0), COUNT(DISTINCT locator)
		 FROM probes`,
	).Scan(&st.Total, &st.Dead, &st.Locators)
	if err != nil {
		return nil, err
	}
	if st.Total > 0 {
		st.DeadRate = float64(st.Dead) / float64(st.Total)
	}
	return &st, nil
}

// Close closes the database.
func (s *SQLiteProbeLog) Close() error {
	return s.db.Close()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanProbe(row rowScanner) (*models.ProbeRecord, error) {
	var (
		rec      models.ProbeRecord
		duration int64
	)
	if err := row.Scan(&rec.Locator, &rec.Alive, &rec.Status, &rec.Method, &rec.Reason, &duration, &rec.CheckedAt); err != nil {
		return nil, err
	}
	rec.Duration = time.Duration(duration)
	return &rec, nil
}

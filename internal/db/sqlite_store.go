package db

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"github.com/soaringjerry/truthpref/internal/api"
)

// SQLiteStore persists submissions and the admin audit log in a single
// SQLite database.
type SQLiteStore struct {
	db *sql.DB
}

var _ api.Store = (*SQLiteStore)(nil)

// OpenSQLite opens path with the go-sqlite3 driver. The caller owns the
// returned handle.
func OpenSQLite(path string) (*sql.DB, error) {
	dsn := fmt.Sprintf("file:%s?_busy_timeout=5000&_foreign_keys=on", path)
	db, err := sql.Open("sqlite3", dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	// A single writer avoids SQLITE_BUSY under concurrent submits.
	db.SetMaxOpenConns(1)
	return db, nil
}

func NewSQLiteStore(db *sql.DB) (*SQLiteStore, error) {
	if db == nil {
		return nil, errors.New("nil db")
	}
	pragmas := []string{
		"PRAGMA foreign_keys = ON",
		"PRAGMA journal_mode = WAL",
		"PRAGMA synchronous = NORMAL",
	}
	for _, stmt := range pragmas {
		if _, err := db.Exec(stmt); err != nil {
			return nil, fmt.Errorf("apply sqlite pragma %q: %w", stmt, err)
		}
	}
	return &SQLiteStore{db: db}, nil
}

// NewStore opens, migrates and wraps the database at path.
func NewStore(path, migrationsDir string) (*SQLiteStore, error) {
	db, err := OpenSQLite(path)
	if err != nil {
		return nil, err
	}
	if err := RunMigrations(db, migrationsDir); err != nil {
		_ = db.Close()
		return nil, err
	}
	s, err := NewSQLiteStore(db)
	if err != nil {
		_ = db.Close()
		return nil, err
	}
	return s, nil
}

func (s *SQLiteStore) AddSubmission(ctx context.Context, rec *api.SubmissionRecord) error {
	if rec == nil {
		return errors.New("nil submission")
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO submissions (id, created_at, payload) VALUES (?, ?, ?)`,
		rec.ID, rec.CreatedAt.UTC().UnixNano(), string(rec.Payload))
	if err != nil {
		return fmt.Errorf("insert submission: %w", err)
	}
	return nil
}

func (s *SQLiteStore) CountSubmissions(ctx context.Context) (int, error) {
	var n int
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM submissions`).Scan(&n); err != nil {
		return 0, fmt.Errorf("count submissions: %w", err)
	}
	return n, nil
}

func (s *SQLiteStore) ListRecentSubmissions(ctx context.Context, limit int) ([]*api.SubmissionRecord, error) {
	if limit <= 0 {
		return []*api.SubmissionRecord{}, nil
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, created_at, payload FROM submissions ORDER BY created_at DESC, rowid DESC LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("list recent submissions: %w", err)
	}
	return scanSubmissions(rows)
}

func (s *SQLiteStore) ListSubmissions(ctx context.Context) ([]*api.SubmissionRecord, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, created_at, payload FROM submissions ORDER BY created_at ASC, rowid ASC`)
	if err != nil {
		return nil, fmt.Errorf("list submissions: %w", err)
	}
	return scanSubmissions(rows)
}

func scanSubmissions(rows *sql.Rows) ([]*api.SubmissionRecord, error) {
	defer rows.Close()
	out := []*api.SubmissionRecord{}
	for rows.Next() {
		var (
			id      string
			created int64
			payload string
		)
		if err := rows.Scan(&id, &created, &payload); err != nil {
			return nil, fmt.Errorf("scan submission: %w", err)
		}
		out = append(out, &api.SubmissionRecord{
			ID:        id,
			CreatedAt: time.Unix(0, created).UTC(),
			Payload:   json.RawMessage(payload),
		})
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate submissions: %w", err)
	}
	return out, nil
}

func (s *SQLiteStore) AddAudit(ctx context.Context, e api.AuditEntry) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO audit_log (time, actor, action, target, note) VALUES (?, ?, ?, ?, ?)`,
		e.Time.UTC().UnixNano(), e.Actor, e.Action, e.Target, e.Note)
	if err != nil {
		return fmt.Errorf("insert audit: %w", err)
	}
	return nil
}

func (s *SQLiteStore) ListAudit(ctx context.Context, limit int) ([]api.AuditEntry, error) {
	if limit <= 0 {
		return []api.AuditEntry{}, nil
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT time, actor, action, target, note FROM audit_log ORDER BY id DESC LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("list audit: %w", err)
	}
	defer rows.Close()
	out := []api.AuditEntry{}
	for rows.Next() {
		var (
			ts int64
			e  api.AuditEntry
		)
		if err := rows.Scan(&ts, &e.Actor, &e.Action, &e.Target, &e.Note); err != nil {
			return nil, fmt.Errorf("scan audit: %w", err)
		}
		e.Time = time.Unix(0, ts).UTC()
		out = append(out, e)
	}
	return out, rows.Err()
}

func (s *SQLiteStore) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

// IsEmpty reports whether neither submissions nor audit entries exist yet.
func (s *SQLiteStore) IsEmpty(ctx context.Context) (bool, error) {
	var n int
	err := s.db.QueryRowContext(ctx,
		`SELECT (SELECT COUNT(*) FROM submissions) + (SELECT COUNT(*) FROM audit_log)`).Scan(&n)
	if err != nil {
		return false, fmt.Errorf("check empty: %w", err)
	}
	return n == 0, nil
}

// ImportSnapshot copies a memory-store snapshot into the database inside one
// transaction. Rows whose id already exists are skipped.
func (s *SQLiteStore) ImportSnapshot(ctx context.Context, snap *api.LegacySnapshot) (int, error) {
	if snap == nil {
		return 0, nil
	}
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("begin import: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	imported := 0
	for _, rec := range snap.Submissions {
		if rec == nil {
			continue
		}
		res, err := tx.ExecContext(ctx,
			`INSERT OR IGNORE INTO submissions (id, created_at, payload) VALUES (?, ?, ?)`,
			rec.ID, rec.CreatedAt.UTC().UnixNano(), string(rec.Payload))
		if err != nil {
			return 0, fmt.Errorf("import submission %s: %w", rec.ID, err)
		}
		if n, _ := res.RowsAffected(); n > 0 {
			imported++
		}
	}
	for _, e := range snap.Audit {
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO audit_log (time, actor, action, target, note) VALUES (?, ?, ?, ?, ?)`,
			e.Time.UTC().UnixNano(), e.Actor, e.Action, e.Target, e.Note); err != nil {
			return 0, fmt.Errorf("import audit: %w", err)
		}
	}
	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("commit import: %w", err)
	}
	return imported, nil
}

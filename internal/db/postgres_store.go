package db

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/soaringjerry/truthpref/internal/api"
)

// ErrDuplicateSubmission is returned when a submission id already exists.
var ErrDuplicateSubmission = errors.New("duplicate submission id")

const pgUniqueViolation = "23505"

// PostgresStore keeps submissions in the submissions_v2 table with the
// payload as JSONB.
type PostgresStore struct {
	pool *pgxpool.Pool
}

var _ api.Store = (*PostgresStore)(nil)

type poolExecer struct{ pool *pgxpool.Pool }

func (e poolExecer) exec(ctx context.Context, stmt string) error {
	_, err := e.pool.Exec(ctx, stmt)
	return err
}

// NewPostgresStore connects to dsn, verifies the connection and applies the
// Postgres migrations.
func NewPostgresStore(ctx context.Context, dsn, migrationsDir string) (*PostgresStore, error) {
	if dsn == "" {
		return nil, errors.New("postgres dsn is empty")
	}
	cfg, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, fmt.Errorf("parse postgres dsn: %w", err)
	}
	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("connect postgres: %w", err)
	}
	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := pool.Ping(pingCtx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping postgres: %w", err)
	}
	if err := runMigrations(ctx, poolExecer{pool}, dialectPostgres, migrationsDir); err != nil {
		pool.Close()
		return nil, err
	}
	return &PostgresStore{pool: pool}, nil
}

func (s *PostgresStore) AddSubmission(ctx context.Context, rec *api.SubmissionRecord) error {
	if rec == nil {
		return errors.New("nil submission")
	}
	_, err := s.pool.Exec(ctx,
		`INSERT INTO submissions_v2 (id, created_at, payload) VALUES ($1, $2, $3::jsonb)`,
		rec.ID, rec.CreatedAt.UTC(), string(rec.Payload))
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == pgUniqueViolation {
			return fmt.Errorf("insert submission %s: %w", rec.ID, ErrDuplicateSubmission)
		}
		return fmt.Errorf("insert submission: %w", err)
	}
	return nil
}

func (s *PostgresStore) CountSubmissions(ctx context.Context) (int, error) {
	var n int64
	if err := s.pool.QueryRow(ctx, `SELECT COUNT(*) FROM submissions_v2`).Scan(&n); err != nil {
		return 0, fmt.Errorf("count submissions: %w", err)
	}
	return int(n), nil
}

func (s *PostgresStore) ListRecentSubmissions(ctx context.Context, limit int) ([]*api.SubmissionRecord, error) {
	if limit <= 0 {
		return []*api.SubmissionRecord{}, nil
	}
	rows, err := s.pool.Query(ctx,
		`SELECT id::text, created_at, payload FROM submissions_v2 ORDER BY created_at DESC LIMIT $1`, limit)
	if err != nil {
		return nil, fmt.Errorf("list recent submissions: %w", err)
	}
	return collectSubmissions(rows)
}

func (s *PostgresStore) ListSubmissions(ctx context.Context) ([]*api.SubmissionRecord, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT id::text, created_at, payload FROM submissions_v2 ORDER BY created_at ASC`)
	if err != nil {
		return nil, fmt.Errorf("list submissions: %w", err)
	}
	return collectSubmissions(rows)
}

func collectSubmissions(rows pgx.Rows) ([]*api.SubmissionRecord, error) {
	out, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (*api.SubmissionRecord, error) {
		var (
			rec     api.SubmissionRecord
			payload []byte
		)
		if err := row.Scan(&rec.ID, &rec.CreatedAt, &payload); err != nil {
			return nil, err
		}
		rec.CreatedAt = rec.CreatedAt.UTC()
		rec.Payload = json.RawMessage(payload)
		return &rec, nil
	})
	if err != nil {
		return nil, fmt.Errorf("scan submissions: %w", err)
	}
	if out == nil {
		out = []*api.SubmissionRecord{}
	}
	return out, nil
}

func (s *PostgresStore) AddAudit(ctx context.Context, e api.AuditEntry) error {
	_, err := s.pool.Exec(ctx,
		`INSERT INTO audit_log (time, actor, action, target, note) VALUES ($1, $2, $3, $4, $5)`,
		e.Time.UTC(), e.Actor, e.Action, e.Target, e.Note)
	if err != nil {
		return fmt.Errorf("insert audit: %w", err)
	}
	return nil
}

func (s *PostgresStore) ListAudit(ctx context.Context, limit int) ([]api.AuditEntry, error) {
	if limit <= 0 {
		return []api.AuditEntry{}, nil
	}
	rows, err := s.pool.Query(ctx,
		`SELECT time, actor, action, target, note FROM audit_log ORDER BY id DESC LIMIT $1`, limit)
	if err != nil {
		return nil, fmt.Errorf("list audit: %w", err)
	}
	out, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (api.AuditEntry, error) {
		var e api.AuditEntry
		err := row.Scan(&e.Time, &e.Actor, &e.Action, &e.Target, &e.Note)
		e.Time = e.Time.UTC()
		return e, err
	})
	if err != nil {
		return nil, fmt.Errorf("scan audit: %w", err)
	}
	if out == nil {
		out = []api.AuditEntry{}
	}
	return out, nil
}

func (s *PostgresStore) Ping(ctx context.Context) error {
	return s.pool.Ping(ctx)
}

func (s *PostgresStore) Close() error {
	s.pool.Close()
	return nil
}

package api

import (
	"context"
	"encoding/json"
	"time"
)

// SubmissionRecord is a stored submission with its payload kept as the JSON
// the client sent.
type SubmissionRecord struct {
	ID        string          `json:"id"`
	CreatedAt time.Time       `json:"created_at"`
	Payload   json.RawMessage `json:"payload"`
}

type AuditEntry struct {
	Time   time.Time `json:"time"`
	Actor  string    `json:"actor"`
	Action string    `json:"action"`
	Target string    `json:"target"`
	Note   string    `json:"note,omitempty"`
}

type Store interface {
	AddSubmission(ctx context.Context, rec *SubmissionRecord) error
	CountSubmissions(ctx context.Context) (int, error)
	// ListRecentSubmissions returns up to limit records, newest first.
	ListRecentSubmissions(ctx context.Context, limit int) ([]*SubmissionRecord, error)
	// ListSubmissions returns every record, oldest first.
	ListSubmissions(ctx context.Context) ([]*SubmissionRecord, error)

	AddAudit(ctx context.Context, e AuditEntry) error
	ListAudit(ctx context.Context, limit int) ([]AuditEntry, error)

	Ping(ctx context.Context) error
	Close() error
}

var _ Store = (*MemoryStore)(nil)

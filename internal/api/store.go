package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"sync"
)

// MemoryStore keeps submissions in process. With a snapshot path it reloads
// that file on start and rewrites it after every change.
type MemoryStore struct {
	mu           sync.RWMutex
	submissions  []*SubmissionRecord
	audit        []AuditEntry
	snapshotPath string
}

// LegacySnapshot is the on-disk form of a MemoryStore.
type LegacySnapshot struct {
	Submissions []*SubmissionRecord `json:"submissions"`
	Audit       []AuditEntry        `json:"audit"`
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{}
}

// NewMemoryStoreFromPath loads the snapshot at path when it exists and keeps
// persisting to it.
func NewMemoryStoreFromPath(path string) (*MemoryStore, error) {
	s := &MemoryStore{snapshotPath: path}
	if path == "" {
		return s, nil
	}
	snap, err := ReadSnapshot(path)
	if errors.Is(err, os.ErrNotExist) {
		return s, nil
	}
	if err != nil {
		return nil, err
	}
	s.submissions = snap.Submissions
	s.audit = snap.Audit
	return s, nil
}

func ReadSnapshot(path string) (*LegacySnapshot, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var snap LegacySnapshot
	if err := json.Unmarshal(b, &snap); err != nil {
		return nil, fmt.Errorf("decode snapshot %s: %w", path, err)
	}
	return &snap, nil
}

// Snapshot copies the store contents.
func (s *MemoryStore) Snapshot() *LegacySnapshot {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return &LegacySnapshot{
		Submissions: append([]*SubmissionRecord(nil), s.submissions...),
		Audit:       append([]AuditEntry(nil), s.audit...),
	}
}

// persistLocked must be called with mu held.
func (s *MemoryStore) persistLocked() error {
	if s.snapshotPath == "" {
		return nil
	}
	b, err := json.Marshal(LegacySnapshot{Submissions: s.submissions, Audit: s.audit})
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(s.snapshotPath), 0o755); err != nil {
		return err
	}
	tmp := s.snapshotPath + ".tmp"
	if err := os.WriteFile(tmp, b, 0o600); err != nil {
		return err
	}
	return os.Rename(tmp, s.snapshotPath)
}

func (s *MemoryStore) AddSubmission(_ context.Context, rec *SubmissionRecord) error {
	if rec == nil {
		return errors.New("nil submission")
	}
	cp := *rec
	s.mu.Lock()
	defer s.mu.Unlock()
	s.submissions = append(s.submissions, &cp)
	return s.persistLocked()
}

func (s *MemoryStore) CountSubmissions(context.Context) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.submissions), nil
}

func (s *MemoryStore) ListRecentSubmissions(_ context.Context, limit int) ([]*SubmissionRecord, error) {
	s.mu.RLock()
	out := append([]*SubmissionRecord(nil), s.submissions...)
	s.mu.RUnlock()
	sort.SliceStable(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (s *MemoryStore) ListSubmissions(context.Context) ([]*SubmissionRecord, error) {
	s.mu.RLock()
	out := append([]*SubmissionRecord(nil), s.submissions...)
	s.mu.RUnlock()
	sort.SliceStable(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out, nil
}

func (s *MemoryStore) AddAudit(_ context.Context, e AuditEntry) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.audit = append(s.audit, e)
	return s.persistLocked()
}

// ListAudit returns the newest entries first.
func (s *MemoryStore) ListAudit(_ context.Context, limit int) ([]AuditEntry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]AuditEntry, 0, len(s.audit))
	for i := len(s.audit) - 1; i >= 0; i-- {
		out = append(out, s.audit[i])
		if limit > 0 && len(out) == limit {
			break
		}
	}
	return out, nil
}

func (s *MemoryStore) Ping(context.Context) error { return nil }

func (s *MemoryStore) Close() error { return nil }

package api

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/soaringjerry/truthpref/internal/models"
	"github.com/soaringjerry/truthpref/internal/services"
)

// submissionStoreAdapter exposes a Store to the services layer, decoding the
// stored payload JSON into the submission model.
type submissionStoreAdapter struct {
	store Store
}

func newSubmissionStoreAdapter(store Store) *submissionStoreAdapter {
	return &submissionStoreAdapter{store: store}
}

func (a *submissionStoreAdapter) AddSubmission(ctx context.Context, s *models.Submission) error {
	if s == nil {
		return services.NewInvalidError("submission required")
	}
	payload, err := json.Marshal(s.Payload)
	if err != nil {
		return err
	}
	return a.store.AddSubmission(ctx, &SubmissionRecord{ID: s.ID, CreatedAt: s.CreatedAt, Payload: payload})
}

func (a *submissionStoreAdapter) CountSubmissions(ctx context.Context) (int, error) {
	return a.store.CountSubmissions(ctx)
}

func (a *submissionStoreAdapter) ListRecentSubmissions(ctx context.Context, limit int) ([]*models.Submission, error) {
	recs, err := a.store.ListRecentSubmissions(ctx, limit)
	if err != nil {
		return nil, err
	}
	return convertRecords(recs)
}

func (a *submissionStoreAdapter) ListSubmissions(ctx context.Context) ([]*models.Submission, error) {
	recs, err := a.store.ListSubmissions(ctx)
	if err != nil {
		return nil, err
	}
	return convertRecords(recs)
}

func convertRecords(recs []*SubmissionRecord) ([]*models.Submission, error) {
	out := make([]*models.Submission, 0, len(recs))
	for _, r := range recs {
		sub := &models.Submission{ID: r.ID, CreatedAt: r.CreatedAt}
		if len(r.Payload) > 0 {
			if err := json.Unmarshal(r.Payload, &sub.Payload); err != nil {
				return nil, fmt.Errorf("decode submission %s: %w", r.ID, err)
			}
		}
		out = append(out, sub)
	}
	return out, nil
}

var (
	_ services.SubmissionStore = (*submissionStoreAdapter)(nil)
	_ services.AnalyticsStore  = (*submissionStoreAdapter)(nil)
	_ services.ExportStore     = (*submissionStoreAdapter)(nil)
)

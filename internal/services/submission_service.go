package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/soaringjerry/truthpref/internal/models"
)

// DefaultExpectedAnswers is the number of trials a submission must carry
// unless configured otherwise.
const DefaultExpectedAnswers = 10

// RecentSubmissionsLimit caps the admin listing.
const RecentSubmissionsLimit = 200

// SubmissionStore abstracts persistence operations required by SubmissionService.
type SubmissionStore interface {
	AddSubmission(ctx context.Context, s *models.Submission) error
	CountSubmissions(ctx context.Context) (int, error)
	// ListRecentSubmissions returns up to limit submissions, newest first.
	ListRecentSubmissions(ctx context.Context, limit int) ([]*models.Submission, error)
	// ListSubmissions returns every submission, oldest first.
	ListSubmissions(ctx context.Context) ([]*models.Submission, error)
}

// SubmissionService validates and stores finished surveys.
type SubmissionService struct {
	store           SubmissionStore
	expectedAnswers int
	now             func() time.Time
	idGenerator     func() string
}

func NewSubmissionService(store SubmissionStore, expectedAnswers int) *SubmissionService {
	if expectedAnswers <= 0 {
		expectedAnswers = DefaultExpectedAnswers
	}
	return &SubmissionService{
		store:           store,
		expectedAnswers: expectedAnswers,
		now:             func() time.Time { return time.Now().UTC() },
		idGenerator:     uuid.NewString,
	}
}

func (s *SubmissionService) ExpectedAnswers() int { return s.expectedAnswers }

// ValidatePayload applies the intake rules in order: consent, answer count,
// then completeness of every answer.
func (s *SubmissionService) ValidatePayload(p models.SubmissionPayload) error {
	if !p.Participant.Consent {
		return NewInvalidError("Consent is required.")
	}
	if len(p.Answers) != s.expectedAnswers {
		return NewInvalidError(fmt.Sprintf("Expected %d answers.", s.expectedAnswers))
	}
	for _, a := range p.Answers {
		if strings.TrimSpace(a.TrialID) == "" || a.ChosenOptionID == nil || *a.ChosenOptionID == "" {
			return NewInvalidError("All trials must be answered.")
		}
	}
	return nil
}

// Submit validates the payload and stores it under a fresh id.
func (s *SubmissionService) Submit(ctx context.Context, p models.SubmissionPayload) (*models.Submission, error) {
	if s.store == nil {
		return nil, errors.New("submission service store is nil")
	}
	if err := s.ValidatePayload(p); err != nil {
		return nil, err
	}
	sub := &models.Submission{ID: s.idGenerator(), CreatedAt: s.now(), Payload: p}
	if err := s.store.AddSubmission(ctx, sub); err != nil {
		return nil, fmt.Errorf("store submission: %w", err)
	}
	return sub, nil
}

func (s *SubmissionService) Count(ctx context.Context) (int, error) {
	return s.store.CountSubmissions(ctx)
}

func (s *SubmissionService) Recent(ctx context.Context) ([]*models.Submission, error) {
	return s.store.ListRecentSubmissions(ctx, RecentSubmissionsLimit)
}

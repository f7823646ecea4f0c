package services

import (
	"context"
	"strconv"
	"time"

	"github.com/soaringjerry/truthpref/internal/models"
)

type ExportStore interface {
	ListSubmissions(ctx context.Context) ([]*models.Submission, error)
}

type ExportParams struct {
	Format string
}

type ExportResult struct {
	Filename    string
	ContentType string
	Data        []byte
}

type ExportService struct {
	store ExportStore
}

func NewExportService(store ExportStore) *ExportService {
	return &ExportService{store: store}
}

// wideFixedColumns lead every wide export; trial columns follow, sorted by id.
var wideFixedColumns = append([]string{
	"created_at", "seed", "started_at", "finished_at",
	"age", "prolific_id", "gender", "education", "country", "consent",
}, append(append([]string{}, models.LikertKeys...), "comments")...)

func (s *ExportService) ExportCSV(ctx context.Context, params ExportParams) (*ExportResult, error) {
	format := params.Format
	if format == "" {
		format = "long"
	}
	if format != "long" && format != "wide" {
		return nil, NewInvalidError("unsupported format")
	}
	subs, err := s.store.ListSubmissions(ctx)
	if err != nil {
		return nil, err
	}
	switch format {
	case "wide":
		b, err := ExportWideCSV(wideFixedColumns, buildWideRows(subs))
		if err != nil {
			return nil, err
		}
		return &ExportResult{Filename: "submissions_wide.csv", ContentType: "text/csv; charset=utf-8", Data: b}, nil
	default:
		b, err := ExportLongCSV(buildLongRows(subs))
		if err != nil {
			return nil, err
		}
		return &ExportResult{Filename: "submissions_long.csv", ContentType: "text/csv; charset=utf-8", Data: b}, nil
	}
}

func buildLongRows(subs []*models.Submission) []LongRow {
	out := []LongRow{}
	for _, sub := range subs {
		created := sub.CreatedAt.UTC().Format(time.RFC3339)
		for i, a := range sub.Payload.Answers {
			row := LongRow{
				SubmissionID: sub.ID,
				CreatedAt:    created,
				Position:     i + 1,
				TrialID:      a.TrialID,
				ShownOrder:   a.ShownOrder,
			}
			if a.ChosenOptionID != nil {
				row.ChosenOptionID = *a.ChosenOptionID
				if t, ok := TypeForOptionID(*a.ChosenOptionID); ok {
					row.ChosenType = string(t)
				}
			}
			out = append(out, row)
		}
	}
	return out
}

func buildWideRows(subs []*models.Submission) []WideRow {
	out := make([]WideRow, 0, len(subs))
	for _, sub := range subs {
		p := sub.Payload
		cells := map[string]string{
			"created_at":  sub.CreatedAt.UTC().Format(time.RFC3339),
			"seed":        strconv.FormatUint(uint64(p.Meta.Seed), 10),
			"started_at":  formatTime(&p.Meta.StartedAt),
			"finished_at": formatTime(p.Meta.FinishedAt),
			"age":         p.Participant.Age,
			"prolific_id": p.Participant.ProlificID,
			"gender":      p.Participant.Gender,
			"education":   p.Participant.Education,
			"country":     p.Participant.Country,
			"consent":     strconv.FormatBool(p.Participant.Consent),
			"comments":    p.Feedback.Comments,
		}
		for i, v := range p.Feedback.LikertItems() {
			if v != nil {
				cells[models.LikertKeys[i]] = strconv.Itoa(*v)
			}
		}
		for _, a := range p.Answers {
			if a.TrialID != "" && a.ChosenOptionID != nil {
				cells[a.TrialID] = *a.ChosenOptionID
			}
		}
		out = append(out, WideRow{SubmissionID: sub.ID, Cells: cells})
	}
	return out
}

func formatTime(t *time.Time) string {
	if t == nil || t.IsZero() {
		return ""
	}
	return t.UTC().Format(time.RFC3339)
}

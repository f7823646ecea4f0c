package services

import (
	"bytes"
	"encoding/csv"
	"sort"
	"strconv"
	"strings"
)

type LongRow struct {
	SubmissionID   string
	CreatedAt      string
	Position       int
	TrialID        string
	ShownOrder     []string
	ChosenOptionID string
	ChosenType     string
}

var longHeader = []string{"submission_id", "created_at", "position", "trial_id", "shown_order", "chosen_option_id", "chosen_type"}

// ExportLongCSV renders one row per answered trial.
func ExportLongCSV(rows []LongRow) ([]byte, error) {
	buf := &bytes.Buffer{}
	w := csv.NewWriter(buf)
	_ = w.Write(longHeader)
	for _, r := range rows {
		rec := []string{
			r.SubmissionID,
			r.CreatedAt,
			strconv.Itoa(r.Position),
			r.TrialID,
			strings.Join(r.ShownOrder, "|"),
			r.ChosenOptionID,
			r.ChosenType,
		}
		if err := w.Write(rec); err != nil {
			return nil, err
		}
	}
	w.Flush()
	return buf.Bytes(), w.Error()
}

// WideRow is one submission flattened to named cells.
type WideRow struct {
	SubmissionID string
	Cells        map[string]string
}

// ExportWideCSV renders one row per submission. fixed columns come first in
// the given order, then every other column seen in any row, sorted.
func ExportWideCSV(fixed []string, rows []WideRow) ([]byte, error) {
	known := make(map[string]struct{}, len(fixed))
	for _, c := range fixed {
		known[c] = struct{}{}
	}
	extraSet := map[string]struct{}{}
	for _, r := range rows {
		for col := range r.Cells {
			if _, ok := known[col]; !ok {
				extraSet[col] = struct{}{}
			}
		}
	}
	extra := make([]string, 0, len(extraSet))
	for col := range extraSet {
		extra = append(extra, col)
	}
	sort.Strings(extra)
	columns := append(append([]string{}, fixed...), extra...)

	buf := &bytes.Buffer{}
	w := csv.NewWriter(buf)
	_ = w.Write(append([]string{"submission_id"}, columns...))
	for _, r := range rows {
		rec := make([]string, 0, 1+len(columns))
		rec = append(rec, r.SubmissionID)
		for _, col := range columns {
			rec = append(rec, r.Cells[col])
		}
		if err := w.Write(rec); err != nil {
			return nil, err
		}
	}
	w.Flush()
	return buf.Bytes(), w.Error()
}

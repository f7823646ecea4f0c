package services

import (
	"context"
	"sort"
	"strings"

	"github.com/soaringjerry/truthpref/internal/models"
)

type AnalyticsStore interface {
	ListSubmissions(ctx context.Context) ([]*models.Submission, error)
}

type AnalyticsService struct {
	store AnalyticsStore
}

type AnalyticsItem struct {
	Key       string  `json:"key"`
	Reverse   bool    `json:"reverse_scored"`
	Histogram []int   `json:"histogram"`
	Total     int     `json:"total"`
	Mean      float64 `json:"mean"`
}

type AnalyticsTimeseries struct {
	Date  string `json:"date"`
	Count int    `json:"count"`
}

// PairTypeStats counts choices among trials that paired the same two
// response types.
type PairTypeStats struct {
	PairType     string         `json:"pair_type"`
	Total        int            `json:"total"`
	Counts       map[string]int `json:"counts"`
	TruthfulRate float64        `json:"truthful_rate"`
}

type AnalyticsSummary struct {
	TotalSubmissions int                   `json:"total_submissions"`
	TotalChoices     int                   `json:"total_choices"`
	ChoiceCounts     map[string]int        `json:"choice_counts"`
	TruthfulRate     float64               `json:"truthful_rate"`
	PairTypes        []PairTypeStats       `json:"pair_types"`
	Items            []AnalyticsItem       `json:"items"`
	Timeseries       []AnalyticsTimeseries `json:"timeseries"`
	Alpha            float64               `json:"alpha"`
	N                int                   `json:"n"`
}

func NewAnalyticsService(store AnalyticsStore) *AnalyticsService {
	return &AnalyticsService{store: store}
}

func (s *AnalyticsService) Summary(ctx context.Context) (*AnalyticsSummary, error) {
	subs, err := s.store.ListSubmissions(ctx)
	if err != nil {
		return nil, err
	}
	summary := &AnalyticsSummary{TotalSubmissions: len(subs), ChoiceCounts: map[string]int{}}
	pairs := map[string]*PairTypeStats{}
	pairTruthful := map[string]int{}
	truthful := 0
	for _, sub := range subs {
		for _, a := range sub.Payload.Answers {
			if a.ChosenOptionID == nil {
				continue
			}
			typ, ok := TypeForOptionID(*a.ChosenOptionID)
			if !ok {
				continue
			}
			summary.TotalChoices++
			summary.ChoiceCounts[string(typ)]++
			if isTruthful(typ) {
				truthful++
			}
			key := pairTypeKey(a.ShownOrder)
			ps := pairs[key]
			if ps == nil {
				ps = &PairTypeStats{PairType: key, Counts: map[string]int{}}
				pairs[key] = ps
			}
			ps.Total++
			ps.Counts[string(typ)]++
			if isTruthful(typ) {
				pairTruthful[key]++
			}
		}
	}
	summary.TruthfulRate = rate(truthful, summary.TotalChoices)
	summary.PairTypes = sortedPairStats(pairs, pairTruthful)
	summary.Items = buildAnalyticsItems(subs)
	summary.Timeseries = buildTimeseries(subs)
	matrix, n := buildAlphaMatrix(subs)
	summary.Alpha = CronbachAlpha(matrix)
	summary.N = n
	return summary, nil
}

// Alpha reports Cronbach's alpha over the feedback ratings of every complete
// submission.
func (s *AnalyticsService) Alpha(ctx context.Context) (float64, int, error) {
	subs, err := s.store.ListSubmissions(ctx)
	if err != nil {
		return 0, 0, err
	}
	matrix, n := buildAlphaMatrix(subs)
	return CronbachAlpha(matrix), n, nil
}

func isTruthful(t models.ResponseType) bool {
	return t == models.AppealingTruth || t == models.BoringTruth
}

func rate(num, den int) float64 {
	if den == 0 {
		return 0
	}
	return float64(num) / float64(den)
}

// pairTypeKey names a trial by the response types it showed, independent of
// display order.
func pairTypeKey(shown []string) string {
	names := make([]string, 0, len(shown))
	for _, id := range shown {
		if t, ok := TypeForOptionID(id); ok {
			names = append(names, string(t))
		} else {
			names = append(names, "unknown")
		}
	}
	sort.Strings(names)
	return strings.Join(names, "_vs_")
}

func sortedPairStats(pairs map[string]*PairTypeStats, truthful map[string]int) []PairTypeStats {
	out := make([]PairTypeStats, 0, len(pairs))
	for key, ps := range pairs {
		ps.TruthfulRate = rate(truthful[key], ps.Total)
		out = append(out, *ps)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].PairType < out[j].PairType })
	return out
}

func buildAnalyticsItems(subs []*models.Submission) []AnalyticsItem {
	items := make([]AnalyticsItem, 0, len(models.LikertKeys))
	for _, key := range models.LikertKeys {
		items = append(items, AnalyticsItem{Key: key, Reverse: reverseScored[key], Histogram: make([]int, LikertPoints)})
	}
	sums := make([]int, len(items))
	for _, sub := range subs {
		for i, v := range sub.Payload.Feedback.LikertItems() {
			if v == nil || *v < 1 || *v > LikertPoints {
				continue
			}
			items[i].Histogram[*v-1]++
			items[i].Total++
			sums[i] += *v
		}
	}
	for i := range items {
		items[i].Mean = rate(sums[i], items[i].Total)
	}
	return items
}

func buildAlphaMatrix(subs []*models.Submission) ([][]float64, int) {
	matrix := make([][]float64, 0, len(subs))
	for _, sub := range subs {
		if row, ok := FeedbackScores(sub.Payload.Feedback); ok {
			matrix = append(matrix, row)
		}
	}
	return matrix, len(matrix)
}

func buildTimeseries(subs []*models.Submission) []AnalyticsTimeseries {
	counts := map[string]int{}
	for _, sub := range subs {
		counts[sub.CreatedAt.UTC().Format("2006-01-02")]++
	}
	days := make([]string, 0, len(counts))
	for d := range counts {
		days = append(days, d)
	}
	sort.Strings(days)
	out := make([]AnalyticsTimeseries, 0, len(days))
	for _, d := range days {
		out = append(out, AnalyticsTimeseries{Date: d, Count: counts[d]})
	}
	return out
}

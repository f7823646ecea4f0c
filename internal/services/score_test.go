package services

import (
	"testing"

	"github.com/soaringjerry/truthpref/internal/models"
)

func TestReverseScore(t *testing.T) {
	cases := []struct {
		raw, points, want int
	}{
		{1, 5, 5},
		{2, 5, 4},
		{3, 5, 3},
		{5, 5, 1},
		{0, 5, 5},
		{6, 5, 1},
		{1, 7, 7},
	}
	for _, c := range cases {
		if got := ReverseScore(c.raw, c.points); got != c.want {
			t.Fatalf("ReverseScore(%d,%d)=%d, want %d", c.raw, c.points, got, c.want)
		}
	}
}

func TestFeedbackScores(t *testing.T) {
	f := models.FeedbackInfo{
		AccuracyImportance: intPtr(5), IncorrectInfoOK: intPtr(2), AdmitDontKnowBest: intPtr(4),
		TrustWhenAdmits: intPtr(3), ChatGPTExperience: intPtr(1),
	}
	got, ok := FeedbackScores(f)
	if !ok {
		t.Fatalf("complete feedback reported missing")
	}
	want := []float64{5, 4, 4, 3, 1}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("scores = %v, want %v", got, want)
		}
	}
	f.TrustWhenAdmits = nil
	if _, ok := FeedbackScores(f); ok {
		t.Fatalf("missing rating not reported")
	}
}

package services

import "github.com/soaringjerry/truthpref/internal/models"

// LikertPoints is the width of every feedback rating.
const LikertPoints = 5

// reverseScored marks feedback ratings whose scale runs against the others:
// agreeing that incorrect information is acceptable means valuing accuracy less.
var reverseScored = map[string]bool{"incorrectInfoOk": true}

// ReverseScore maps a raw Likert value to its reverse-scored value
// given the number of points in the scale. Out-of-range values are clamped.
func ReverseScore(raw, points int) int {
	if points < 2 {
		return raw
	}
	if raw < 1 {
		raw = 1
	}
	if raw > points {
		raw = points
	}
	return (points + 1) - raw
}

// FeedbackScores returns the five ratings in LikertKeys order with reverse
// scoring applied. ok is false when any rating is missing.
func FeedbackScores(f models.FeedbackInfo) (scores []float64, ok bool) {
	items := f.LikertItems()
	scores = make([]float64, 0, len(items))
	for i, v := range items {
		if v == nil {
			return nil, false
		}
		s := *v
		if reverseScored[models.LikertKeys[i]] {
			s = ReverseScore(s, LikertPoints)
		}
		scores = append(scores, float64(s))
	}
	return scores, true
}

package services

import (
	"fmt"
	"math/rand/v2"
	"sort"

	"github.com/soaringjerry/truthpref/internal/models"
)

// optionCodes is the fixed bijection between response types and option ids.
var optionCodes = map[models.ResponseType]string{
	models.AppealingTruth: "AT",
	models.AppealingFalse: "AF",
	models.BoringTruth:    "BT",
}

// OptionIDForType maps a response type to its two-letter option id.
func OptionIDForType(t models.ResponseType) (string, bool) {
	id, ok := optionCodes[t]
	return id, ok
}

// TypeForOptionID is the inverse of OptionIDForType.
func TypeForOptionID(id string) (models.ResponseType, bool) {
	for t, code := range optionCodes {
		if code == id {
			return t, true
		}
	}
	return "", false
}

// TrialSet is the output of BuildTrials. Seed is the realized seed.
type TrialSet struct {
	Seed   uint32
	Trials []models.Trial
}

// RandomSeed draws a seed uniformly from [0, 2^31).
func RandomSeed() uint32 {
	return rand.Uint32N(1 << 31)
}

// BuildTrials turns the question bank into a shuffled trial list. A nil seed
// draws a fresh one. Draw order: every trial's option shuffle in bank order,
// then one shuffle of the trial list.
func BuildTrials(bank []models.QuestionRecord, seed *uint32) (*TrialSet, error) {
	s := RandomSeed()
	if seed != nil {
		s = *seed
	}
	trials := make([]models.Trial, 0, len(bank))
	for _, q := range bank {
		t, err := questionToTrial(q)
		if err != nil {
			return nil, err
		}
		trials = append(trials, t)
	}

	rng := NewRandomizer(s)
	for i := range trials {
		shuffle(trials[i].Options, rng)
		for j := range trials[i].Options {
			trials[i].Options[j].Label = fmt.Sprintf("Option %d", j+1)
		}
	}
	shuffle(trials, rng)
	return &TrialSet{Seed: s, Trials: trials}, nil
}

// ValidateBank checks every record without building trials.
func ValidateBank(bank []models.QuestionRecord) error {
	if len(bank) == 0 {
		return &ConstructionError{Reason: "no questions"}
	}
	seen := make(map[string]struct{}, len(bank))
	for _, q := range bank {
		if q.ID == "" {
			return &ConstructionError{Reason: "question without id"}
		}
		if _, dup := seen[q.ID]; dup {
			return &ConstructionError{QuestionID: q.ID, Reason: "duplicate id"}
		}
		seen[q.ID] = struct{}{}
		if _, err := questionToTrial(q); err != nil {
			return err
		}
	}
	return nil
}

func questionToTrial(q models.QuestionRecord) (models.Trial, error) {
	if len(q.Responses) != 2 {
		return models.Trial{}, &ConstructionError{
			QuestionID: q.ID,
			Reason:     fmt.Sprintf("must have exactly 2 responses (found %d)", len(q.Responses)),
		}
	}
	keys := make([]string, 0, len(q.Responses))
	for k := range q.Responses {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	options := make([]models.Option, 0, len(keys))
	seen := map[string]bool{}
	for _, k := range keys {
		r := q.Responses[k]
		id, ok := OptionIDForType(r.Type)
		if !ok {
			return models.Trial{}, &ConstructionError{QuestionID: q.ID, Reason: fmt.Sprintf("unknown response type: %s", r.Type)}
		}
		if seen[id] {
			return models.Trial{}, &ConstructionError{QuestionID: q.ID, Reason: fmt.Sprintf("duplicate response type: %s", r.Type)}
		}
		seen[id] = true
		options = append(options, models.Option{OptionID: id, Type: r.Type, Text: r.Text, SourceKey: k})
	}
	return models.Trial{
		TrialID:      q.ID,
		BaseID:       q.ID,
		PairType:     q.PairType,
		UserQuestion: q.UserQuestion,
		Options:      options,
	}, nil
}

// shuffle is an in-place Fisher–Yates pass from the last index down.
func shuffle[T any](a []T, rng *Randomizer) {
	for i := len(a) - 1; i > 0; i-- {
		j := rng.Intn(i + 1)
		a[i], a[j] = a[j], a[i]
	}
}

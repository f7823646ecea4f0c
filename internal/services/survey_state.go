package services

import (
	"strings"
	"time"

	"github.com/soaringjerry/truthpref/internal/models"
)

// ParticipantPatch carries the fields to overwrite; nil fields are kept.
type ParticipantPatch struct {
	Age        *string
	ProlificID *string
	Gender     *string
	Education  *string
	Country    *string
	Consent    *bool
}

// FeedbackPatch carries the feedback fields to overwrite; nil fields are kept.
type FeedbackPatch struct {
	AccuracyImportance *int
	IncorrectInfoOK    *int
	AdmitDontKnowBest  *int
	TrustWhenAdmits    *int
	ChatGPTExperience  *int
	Comments           *string
}

// MergeParticipant returns p with every non-nil patch field applied.
func MergeParticipant(p models.ParticipantInfo, patch ParticipantPatch) models.ParticipantInfo {
	if patch.Age != nil {
		p.Age = *patch.Age
	}
	if patch.ProlificID != nil {
		p.ProlificID = *patch.ProlificID
	}
	if patch.Gender != nil {
		p.Gender = *patch.Gender
	}
	if patch.Education != nil {
		p.Education = *patch.Education
	}
	if patch.Country != nil {
		p.Country = *patch.Country
	}
	if patch.Consent != nil {
		p.Consent = *patch.Consent
	}
	return p
}

// MergeFeedback returns f with every non-nil patch field applied.
func MergeFeedback(f models.FeedbackInfo, patch FeedbackPatch) models.FeedbackInfo {
	if patch.AccuracyImportance != nil {
		f.AccuracyImportance = intPtr(*patch.AccuracyImportance)
	}
	if patch.IncorrectInfoOK != nil {
		f.IncorrectInfoOK = intPtr(*patch.IncorrectInfoOK)
	}
	if patch.AdmitDontKnowBest != nil {
		f.AdmitDontKnowBest = intPtr(*patch.AdmitDontKnowBest)
	}
	if patch.TrustWhenAdmits != nil {
		f.TrustWhenAdmits = intPtr(*patch.TrustWhenAdmits)
	}
	if patch.ChatGPTExperience != nil {
		f.ChatGPTExperience = intPtr(*patch.ChatGPTExperience)
	}
	if patch.Comments != nil {
		f.Comments = *patch.Comments
	}
	return f
}

func intPtr(v int) *int { return &v }

func strPtr(v string) *string { return &v }

// SurveyStore owns one SurveyState and exposes the only ways to mutate it.
// Trials are fixed at construction.
type SurveyStore struct {
	state models.SurveyState
	now   func() time.Time
}

// NewSurveyState builds trials from bank and returns a fresh store. A nil
// seed draws one.
func NewSurveyState(bank []models.QuestionRecord, seed *uint32, now func() time.Time) (*SurveyStore, error) {
	if now == nil {
		now = func() time.Time { return time.Now().UTC() }
	}
	set, err := BuildTrials(bank, seed)
	if err != nil {
		return nil, err
	}
	answers := make([]models.Answer, 0, len(set.Trials))
	for _, t := range set.Trials {
		answers = append(answers, models.Answer{TrialID: t.TrialID, ShownOrder: t.OptionIDs()})
	}
	return &SurveyStore{
		state: models.SurveyState{
			Meta:    models.SurveyMeta{Seed: set.Seed, StartedAt: now()},
			Trials:  set.Trials,
			Answers: answers,
		},
		now: now,
	}, nil
}

// RestoreSurveyState wraps a previously persisted state verbatim. Callers
// validate it first with ValidateSurveyState.
func RestoreSurveyState(state models.SurveyState, now func() time.Time) *SurveyStore {
	if now == nil {
		now = func() time.Time { return time.Now().UTC() }
	}
	return &SurveyStore{state: state, now: now}
}

// State returns a deep copy of the current state.
func (s *SurveyStore) State() models.SurveyState {
	return cloneState(s.state)
}

func (s *SurveyStore) TrialCount() int { return len(s.state.Trials) }

// Trial returns a copy of the trial at i.
func (s *SurveyStore) Trial(i int) (models.Trial, error) {
	if i < 0 || i >= len(s.state.Trials) {
		return models.Trial{}, &RangeError{Index: i, Len: len(s.state.Trials)}
	}
	return cloneTrial(s.state.Trials[i]), nil
}

// Answer returns a copy of the answer at i.
func (s *SurveyStore) Answer(i int) (models.Answer, error) {
	if i < 0 || i >= len(s.state.Answers) {
		return models.Answer{}, &RangeError{Index: i, Len: len(s.state.Answers)}
	}
	return cloneAnswer(s.state.Answers[i]), nil
}

func (s *SurveyStore) Participant() models.ParticipantInfo { return s.state.Participant }

func (s *SurveyStore) Feedback() models.FeedbackInfo { return cloneFeedback(s.state.Feedback) }

func (s *SurveyStore) PatchParticipant(patch ParticipantPatch) {
	s.state.Participant = MergeParticipant(s.state.Participant, patch)
}

func (s *SurveyStore) PatchFeedback(patch FeedbackPatch) {
	s.state.Feedback = MergeFeedback(s.state.Feedback, patch)
}

// SetAnswer records optionID as the choice for the trial at trialIndex. Only
// that answer changes.
func (s *SurveyStore) SetAnswer(trialIndex int, optionID string) error {
	if trialIndex < 0 || trialIndex >= len(s.state.Trials) {
		return &RangeError{Index: trialIndex, Len: len(s.state.Trials)}
	}
	trial := s.state.Trials[trialIndex]
	found := false
	for _, o := range trial.Options {
		if o.OptionID == optionID {
			found = true
			break
		}
	}
	if !found {
		return &InvalidChoiceError{TrialID: trial.TrialID, OptionID: optionID}
	}
	s.state.Answers[trialIndex] = models.Answer{
		TrialID:        trial.TrialID,
		ShownOrder:     trial.OptionIDs(),
		ChosenOptionID: strPtr(optionID),
	}
	return nil
}

// Finish stamps FinishedAt. Calling it again only moves the timestamp.
func (s *SurveyStore) Finish() {
	t := s.now()
	s.state.Meta.FinishedAt = &t
}

func (s *SurveyStore) Finished() bool { return s.state.Meta.FinishedAt != nil }

// Payload reduces the state to what the backend receives. Trial and option
// text stay local.
func (s *SurveyStore) Payload() models.SubmissionPayload {
	st := cloneState(s.state)
	answers := make([]models.SubmittedAnswer, 0, len(st.Answers))
	for _, a := range st.Answers {
		answers = append(answers, models.SubmittedAnswer{TrialID: a.TrialID, ShownOrder: a.ShownOrder, ChosenOptionID: a.ChosenOptionID})
	}
	return models.SubmissionPayload{
		Meta:        st.Meta,
		Participant: st.Participant,
		Feedback:    st.Feedback,
		Answers:     answers,
	}
}

// ValidateSurveyState reports whether a decoded state is structurally usable:
// trials with unique option ids, one matching answer per trial and choices
// drawn from the trial's options.
func ValidateSurveyState(st models.SurveyState) error {
	if len(st.Trials) == 0 {
		return NewInvalidError("survey has no trials")
	}
	if len(st.Answers) != len(st.Trials) {
		return NewInvalidError("answers do not match trials")
	}
	for i, t := range st.Trials {
		if t.TrialID == "" || len(t.Options) < 2 {
			return NewInvalidError("malformed trial")
		}
		ids := map[string]bool{}
		for _, o := range t.Options {
			if o.OptionID == "" || ids[o.OptionID] {
				return NewInvalidError("malformed trial options")
			}
			ids[o.OptionID] = true
		}
		a := st.Answers[i]
		if a.TrialID != t.TrialID {
			return NewInvalidError("answer order does not match trials")
		}
		if a.ChosenOptionID != nil && !ids[*a.ChosenOptionID] {
			return NewInvalidError("answer references unknown option")
		}
	}
	for _, v := range st.Feedback.LikertItems() {
		if v != nil && (*v < 1 || *v > 5) {
			return NewInvalidError("feedback rating out of range")
		}
	}
	return nil
}

// ParticipantValid is the about-screen gate.
func ParticipantValid(p models.ParticipantInfo) bool {
	return p.Consent &&
		notBlank(p.Age) &&
		notBlank(p.ProlificID) &&
		notBlank(p.Gender) &&
		notBlank(p.Education) &&
		notBlank(p.Country)
}

// FeedbackValid is the feedback-screen gate: every rating set and within 1..5.
func FeedbackValid(f models.FeedbackInfo) bool {
	for _, v := range f.LikertItems() {
		if v == nil || *v < 1 || *v > 5 {
			return false
		}
	}
	return true
}

func notBlank(s string) bool { return strings.TrimSpace(s) != "" }

func cloneState(st models.SurveyState) models.SurveyState {
	out := st
	if st.Meta.FinishedAt != nil {
		t := *st.Meta.FinishedAt
		out.Meta.FinishedAt = &t
	}
	out.Trials = make([]models.Trial, len(st.Trials))
	for i, t := range st.Trials {
		out.Trials[i] = cloneTrial(t)
	}
	out.Answers = make([]models.Answer, len(st.Answers))
	for i, a := range st.Answers {
		out.Answers[i] = cloneAnswer(a)
	}
	out.Feedback = cloneFeedback(st.Feedback)
	return out
}

func cloneTrial(t models.Trial) models.Trial {
	t.Options = append([]models.Option(nil), t.Options...)
	return t
}

func cloneAnswer(a models.Answer) models.Answer {
	a.ShownOrder = append([]string(nil), a.ShownOrder...)
	if a.ChosenOptionID != nil {
		a.ChosenOptionID = strPtr(*a.ChosenOptionID)
	}
	return a
}

func cloneFeedback(f models.FeedbackInfo) models.FeedbackInfo {
	clone := func(p *int) *int {
		if p == nil {
			return nil
		}
		return intPtr(*p)
	}
	f.AccuracyImportance = clone(f.AccuracyImportance)
	f.IncorrectInfoOK = clone(f.IncorrectInfoOK)
	f.AdmitDontKnowBest = clone(f.AdmitDontKnowBest)
	f.TrustWhenAdmits = clone(f.TrustWhenAdmits)
	f.ChatGPTExperience = clone(f.ChatGPTExperience)
	return f
}

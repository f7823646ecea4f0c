package services

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/soaringjerry/truthpref/internal/models"
)

type stubStateStorage struct {
	data    []byte
	saves   int
	clears  int
	loadErr error
}

func (s *stubStateStorage) Load() ([]byte, bool, error) {
	if s.loadErr != nil {
		return nil, false, s.loadErr
	}
	if s.data == nil {
		return nil, false, nil
	}
	return append([]byte(nil), s.data...), true, nil
}

func (s *stubStateStorage) Save(data []byte) error {
	s.data = append([]byte(nil), data...)
	s.saves++
	return nil
}

func (s *stubStateStorage) Clear() error {
	s.data = nil
	s.clears++
	return nil
}

type stubSubmitter struct {
	payloads []models.SubmissionPayload
	errs     []error
	id       string
}

func (s *stubSubmitter) Submit(_ context.Context, p models.SubmissionPayload) (string, error) {
	s.payloads = append(s.payloads, p)
	if n := len(s.payloads); n <= len(s.errs) && s.errs[n-1] != nil {
		return "", s.errs[n-1]
	}
	return s.id, nil
}

func newTestController(t *testing.T, storage *stubStateStorage, sub Submitter, n int) *FlowController {
	t.Helper()
	clock := time.Date(2025, 9, 17, 9, 0, 0, 0, time.UTC)
	c, err := NewFlowController(testBank(n), storage, sub, WithSeed(42), WithClock(func() time.Time {
		clock = clock.Add(time.Second)
		return clock
	}))
	if err != nil {
		t.Fatalf("NewFlowController: %v", err)
	}
	return c
}

func fillParticipant(t *testing.T, c *FlowController) {
	t.Helper()
	age, pid, gender, edu, country, consent := "29", "PROLIFIC1", "female", "bachelor", "Norway", true
	if err := c.PatchParticipant(ParticipantPatch{Age: &age, ProlificID: &pid, Gender: &gender, Education: &edu, Country: &country, Consent: &consent}); err != nil {
		t.Fatalf("PatchParticipant: %v", err)
	}
}

func fillFeedback(t *testing.T, c *FlowController) {
	t.Helper()
	v := 4
	if err := c.PatchFeedback(FeedbackPatch{AccuracyImportance: &v, IncorrectInfoOK: &v, AdmitDontKnowBest: &v, TrustWhenAdmits: &v, ChatGPTExperience: &v}); err != nil {
		t.Fatalf("PatchFeedback: %v", err)
	}
}

func answerCurrent(t *testing.T, c *FlowController) {
	t.Helper()
	v := c.View()
	if v.Trial == nil {
		t.Fatalf("no trial on %s", v.Step)
	}
	if err := c.Choose(v.Trial.Options[0].OptionID); err != nil {
		t.Fatalf("Choose: %v", err)
	}
}

func walkToFeedback(t *testing.T, c *FlowController) {
	t.Helper()
	if err := c.Next(); err != nil {
		t.Fatalf("Next from instructions: %v", err)
	}
	fillParticipant(t, c)
	if err := c.Next(); err != nil {
		t.Fatalf("Next from about: %v", err)
	}
	for c.Step().Kind() == StepQuestion {
		answerCurrent(t, c)
		if err := c.Next(); err != nil {
			t.Fatalf("Next from %s: %v", c.Step(), err)
		}
	}
}

func TestFlowFreshStart(t *testing.T) {
	storage := &stubStateStorage{}
	c := newTestController(t, storage, &stubSubmitter{id: "x"}, 3)
	if c.Step() != Instructions() {
		t.Fatalf("step = %s, want instructions", c.Step())
	}
	if c.Resumed() {
		t.Fatalf("fresh controller reports resumed")
	}
	if storage.saves != 1 {
		t.Fatalf("saves = %d, want 1", storage.saves)
	}
	if got := c.State().Meta.Seed; got != 42 {
		t.Fatalf("seed = %d, want 42", got)
	}
}

func TestFlowAboutGate(t *testing.T) {
	c := newTestController(t, &stubStateStorage{}, &stubSubmitter{id: "x"}, 3)
	_ = c.Next()
	if err := c.Next(); !errors.Is(err, ErrNotValid) {
		t.Fatalf("Next on empty about = %v, want ErrNotValid", err)
	}
	if c.Step() != About() || !c.View().NotValid {
		t.Fatalf("gate failure should stay on about with not-valid signal")
	}
	fillParticipant(t, c)
	consent := false
	_ = c.PatchParticipant(ParticipantPatch{Consent: &consent})
	if err := c.Next(); !errors.Is(err, ErrNotValid) {
		t.Fatalf("Next without consent = %v", err)
	}
	consent = true
	_ = c.PatchParticipant(ParticipantPatch{Consent: &consent})
	if err := c.Next(); err != nil {
		t.Fatalf("Next with valid about: %v", err)
	}
	if c.Step() != Question(0) {
		t.Fatalf("step = %s, want question(0)", c.Step())
	}
	if c.View().NotValid {
		t.Fatalf("not-valid signal survived the transition")
	}
}

func TestFlowMonotonicProgression(t *testing.T) {
	c := newTestController(t, &stubStateStorage{}, &stubSubmitter{id: "x"}, 3)
	_ = c.Next()
	fillParticipant(t, c)
	_ = c.Next()
	for i := 0; i < 3; i++ {
		if err := c.Next(); !errors.Is(err, ErrNotValid) {
			t.Fatalf("unanswered question %d: err = %v", i, err)
		}
		if c.Step() != Question(i) {
			t.Fatalf("step = %s, want question(%d)", c.Step(), i)
		}
		answerCurrent(t, c)
		if err := c.Next(); err != nil {
			t.Fatalf("Next on answered question %d: %v", i, err)
		}
	}
	if c.Step() != Feedback() {
		t.Fatalf("step = %s, want feedback", c.Step())
	}
}

func TestFlowBackToInstructionsKeepsAnswers(t *testing.T) {
	c := newTestController(t, &stubStateStorage{}, &stubSubmitter{id: "x"}, 3)
	_ = c.Next()
	if err := c.BackToInstructions(); !errors.Is(err, ErrIllegalTransition) {
		t.Fatalf("back from about = %v, want ErrIllegalTransition", err)
	}
	fillParticipant(t, c)
	_ = c.Next()
	answerCurrent(t, c)
	if err := c.BackToInstructions(); err != nil {
		t.Fatalf("BackToInstructions: %v", err)
	}
	if c.Step() != Instructions() {
		t.Fatalf("step = %s", c.Step())
	}
	if c.State().Answers[0].ChosenOptionID == nil {
		t.Fatalf("answer cleared by going back")
	}
	if err := c.BackToInstructions(); !errors.Is(err, ErrIllegalTransition) {
		t.Fatalf("back from instructions = %v", err)
	}
}

func TestFlowEditsBoundToScreen(t *testing.T) {
	c := newTestController(t, &stubStateStorage{}, &stubSubmitter{id: "x"}, 2)
	age := "40"
	if err := c.PatchParticipant(ParticipantPatch{Age: &age}); !errors.Is(err, ErrWrongScreen) {
		t.Fatalf("participant patch on instructions = %v", err)
	}
	if err := c.Choose("AT"); !errors.Is(err, ErrWrongScreen) {
		t.Fatalf("choice on instructions = %v", err)
	}
	v := 3
	if err := c.PatchFeedback(FeedbackPatch{TrustWhenAdmits: &v}); !errors.Is(err, ErrWrongScreen) {
		t.Fatalf("feedback patch on instructions = %v", err)
	}
	if err := c.Submit(context.Background()); !errors.Is(err, ErrIllegalTransition) {
		t.Fatalf("submit on instructions = %v", err)
	}
	_ = c.Next()
	fillParticipant(t, c)
	_ = c.Next()
	var ice *InvalidChoiceError
	if err := c.Choose("ZZ"); !errors.As(err, &ice) {
		t.Fatalf("foreign option = %v", err)
	}
}

func TestFlowSubmitSuccess(t *testing.T) {
	storage := &stubStateStorage{}
	sub := &stubSubmitter{id: "sub-1"}
	c := newTestController(t, storage, sub, 3)
	walkToFeedback(t, c)

	if err := c.Submit(context.Background()); !errors.Is(err, ErrNotValid) {
		t.Fatalf("submit with empty feedback = %v", err)
	}
	if len(sub.payloads) != 0 || c.State().Meta.FinishedAt != nil {
		t.Fatalf("gate failure reached the submitter or finished the survey")
	}
	fillFeedback(t, c)
	if err := c.Submit(context.Background()); err != nil {
		t.Fatalf("Submit: %v", err)
	}
	if c.Step() != Done("sub-1") {
		t.Fatalf("step = %s, want done(sub-1)", c.Step())
	}
	p := sub.payloads[0]
	if p.Meta.FinishedAt == nil || !p.Participant.Consent || len(p.Answers) != 3 {
		t.Fatalf("payload = %+v", p)
	}
	for _, a := range p.Answers {
		if a.ChosenOptionID == nil || len(a.ShownOrder) != 2 {
			t.Fatalf("answer = %+v", a)
		}
	}
	if err := c.Next(); !errors.Is(err, ErrIllegalTransition) {
		t.Fatalf("next from done = %v", err)
	}
	if err := c.Submit(context.Background()); !errors.Is(err, ErrIllegalTransition) {
		t.Fatalf("submit from done = %v", err)
	}
	step, _, err := DecodeRecord(storage.data)
	if err != nil || step != Done("sub-1") {
		t.Fatalf("persisted step = %s, %v", step, err)
	}
}

func TestFlowSubmitFailureRetryKeepsFinishedAt(t *testing.T) {
	sub := &stubSubmitter{id: "sub-2", errs: []error{errors.New("Expected 10 answers.")}}
	c := newTestController(t, &stubStateStorage{}, sub, 2)
	walkToFeedback(t, c)
	fillFeedback(t, c)

	err := c.Submit(context.Background())
	var se *SubmissionError
	if !errors.As(err, &se) || se.Message != "Expected 10 answers." {
		t.Fatalf("first submit = %v", err)
	}
	if c.Step() != Feedback() {
		t.Fatalf("failed submit left feedback: %s", c.Step())
	}
	if got := c.View().Error; got != "Expected 10 answers." {
		t.Fatalf("surfaced error = %q", got)
	}
	if err := c.Submit(context.Background()); err != nil {
		t.Fatalf("retry: %v", err)
	}
	if len(sub.payloads) != 2 {
		t.Fatalf("submit calls = %d", len(sub.payloads))
	}
	first, second := sub.payloads[0].Meta.FinishedAt, sub.payloads[1].Meta.FinishedAt
	if first == nil || second == nil || !first.Equal(*second) {
		t.Fatalf("finishedAt changed between attempts: %v vs %v", first, second)
	}
	if c.Step() != Done("sub-2") || c.View().Error != "" {
		t.Fatalf("step = %s error = %q", c.Step(), c.View().Error)
	}
}

type blockingSubmitter struct {
	entered chan struct{}
	release chan struct{}
}

func (b *blockingSubmitter) Submit(ctx context.Context, _ models.SubmissionPayload) (string, error) {
	b.entered <- struct{}{}
	select {
	case <-b.release:
		return "sub-3", nil
	case <-ctx.Done():
		return "", ctx.Err()
	}
}

func TestFlowRejectsConcurrentSubmit(t *testing.T) {
	sub := &blockingSubmitter{entered: make(chan struct{}, 1), release: make(chan struct{})}
	c := newTestController(t, &stubStateStorage{}, sub, 2)
	walkToFeedback(t, c)
	fillFeedback(t, c)

	done := make(chan error, 1)
	go func() { done <- c.Submit(context.Background()) }()
	<-sub.entered

	if !c.View().Submitting {
		t.Fatalf("submitting flag not set")
	}
	if err := c.Submit(context.Background()); !errors.Is(err, ErrSubmissionInProgress) {
		t.Fatalf("second submit = %v", err)
	}
	if err := c.Reset(); !errors.Is(err, ErrSubmissionInProgress) {
		t.Fatalf("reset during submit = %v", err)
	}
	close(sub.release)
	if err := <-done; err != nil {
		t.Fatalf("first submit: %v", err)
	}
	if c.Step() != Done("sub-3") || c.View().Submitting {
		t.Fatalf("step = %s submitting = %v", c.Step(), c.View().Submitting)
	}
}

func TestFlowResumeFidelity(t *testing.T) {
	storage := &stubStateStorage{}
	c := newTestController(t, storage, &stubSubmitter{id: "x"}, 10)
	_ = c.Next()
	fillParticipant(t, c)
	_ = c.Next()
	for i := 0; i < 3; i++ {
		answerCurrent(t, c)
		_ = c.Next()
	}
	answerCurrent(t, c)
	if c.Step() != Question(3) {
		t.Fatalf("step = %s, want question(3)", c.Step())
	}
	before, _ := json.Marshal(c.State())

	// A different bank and seed would reorder everything if trials were rebuilt.
	resumed, err := NewFlowController(testBank(4), storage, &stubSubmitter{id: "x"}, WithSeed(7))
	if err != nil {
		t.Fatalf("resume: %v", err)
	}
	if !resumed.Resumed() {
		t.Fatalf("saved attempt not resumed")
	}
	if resumed.Step() != Question(3) {
		t.Fatalf("resumed step = %s", resumed.Step())
	}
	after, _ := json.Marshal(resumed.State())
	if string(before) != string(after) {
		t.Fatalf("resumed state differs:\n%s\n%s", before, after)
	}
	filled := 0
	for _, a := range resumed.State().Answers {
		if a.ChosenOptionID != nil {
			filled++
		}
	}
	if filled != 4 {
		t.Fatalf("filled answers = %d, want 4", filled)
	}
	if err := resumed.Next(); err != nil || resumed.Step() != Question(4) {
		t.Fatalf("resumed controller cannot advance: %v %s", err, resumed.Step())
	}
}

func TestFlowResumeDoesNotNeedBank(t *testing.T) {
	storage := &stubStateStorage{}
	newTestController(t, storage, &stubSubmitter{id: "x"}, 2)
	if _, err := NewFlowController(nil, storage, &stubSubmitter{id: "x"}); err != nil {
		t.Fatalf("resume without bank: %v", err)
	}
}

func TestFlowCorruptStorageStartsFresh(t *testing.T) {
	for name, storage := range map[string]*stubStateStorage{
		"garbage":    {data: []byte("{not json")},
		"no survey":  {data: []byte(`{"uiStep":"about"}`)},
		"bad index":  {data: mustRecord(t, Question(9), 2)},
		"load error": {loadErr: errors.New("disk gone")},
	} {
		c := newTestController(t, storage, &stubSubmitter{id: "x"}, 2)
		if c.Resumed() || c.Step() != Instructions() {
			t.Fatalf("%s: resumed=%v step=%s", name, c.Resumed(), c.Step())
		}
	}

	var ce *ConstructionError
	bad := []models.QuestionRecord{{ID: "q1", Responses: map[string]models.ResponseRecord{"A": {Type: models.BoringTruth}}}}
	if _, err := NewFlowController(bad, &stubStateStorage{data: []byte("nope")}, &stubSubmitter{}); !errors.As(err, &ce) {
		t.Fatalf("malformed bank err = %v, want ConstructionError", err)
	}
}

func mustRecord(t *testing.T, step FlowStep, n int) []byte {
	t.Helper()
	s, err := NewSurveyState(testBank(n), seedPtr(1), nil)
	if err != nil {
		t.Fatalf("NewSurveyState: %v", err)
	}
	b, err := EncodeRecord(step, s.State())
	if err != nil {
		t.Fatalf("EncodeRecord: %v", err)
	}
	return b
}

func TestFlowPersistsEveryChange(t *testing.T) {
	storage := &stubStateStorage{}
	c := newTestController(t, storage, &stubSubmitter{id: "x"}, 2)
	saves := storage.saves
	_ = c.Next()
	if storage.saves != saves+1 {
		t.Fatalf("transition not saved")
	}
	age := "50"
	_ = c.PatchParticipant(ParticipantPatch{Age: &age})
	if storage.saves != saves+2 {
		t.Fatalf("patch not saved")
	}
	_, st, err := DecodeRecord(storage.data)
	if err != nil || st.Participant.Age != "50" {
		t.Fatalf("saved participant = %+v, %v", st.Participant, err)
	}
	_ = c.Next()
	if storage.saves != saves+2 {
		t.Fatalf("failed gate should not write")
	}
}

func TestFlowReset(t *testing.T) {
	storage := &stubStateStorage{}
	c := newTestController(t, storage, &stubSubmitter{id: "x"}, 3)
	_ = c.Next()
	fillParticipant(t, c)
	if err := c.Reset(); err != nil {
		t.Fatalf("Reset: %v", err)
	}
	if storage.clears != 1 {
		t.Fatalf("clears = %d", storage.clears)
	}
	if c.Step() != Instructions() || c.State().Participant.Consent {
		t.Fatalf("reset kept old attempt: %s %+v", c.Step(), c.State().Participant)
	}
	if err := c.Next(); err != nil || c.Step() != About() {
		t.Fatalf("machine not reset: %v %s", err, c.Step())
	}
}

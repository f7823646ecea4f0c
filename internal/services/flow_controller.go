package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/looplab/fsm"

	"github.com/soaringjerry/truthpref/internal/logger"
	"github.com/soaringjerry/truthpref/internal/models"
)

// Submitter delivers a finished survey and returns the backend's id for it.
type Submitter interface {
	Submit(ctx context.Context, payload models.SubmissionPayload) (string, error)
}

// SubmitterFunc adapts a function to Submitter.
type SubmitterFunc func(ctx context.Context, payload models.SubmissionPayload) (string, error)

func (f SubmitterFunc) Submit(ctx context.Context, payload models.SubmissionPayload) (string, error) {
	return f(ctx, payload)
}

const (
	eventNext              = "next"
	eventAdvance           = "advance"
	eventFinishQuestions   = "finish_questions"
	eventBackToInstruction = "back_to_instructions"
	eventSubmitted         = "submitted"
)

func newFlowMachine(initial StepKind, callbacks fsm.Callbacks) *fsm.FSM {
	return fsm.NewFSM(
		string(initial),
		fsm.Events{
			{Name: eventNext, Src: []string{string(StepInstructions)}, Dst: string(StepAbout)},
			{Name: eventNext, Src: []string{string(StepAbout)}, Dst: string(StepQuestion)},
			{Name: eventAdvance, Src: []string{string(StepQuestion)}, Dst: string(StepQuestion)},
			{Name: eventFinishQuestions, Src: []string{string(StepQuestion)}, Dst: string(StepFeedback)},
			{Name: eventBackToInstruction, Src: []string{string(StepQuestion)}, Dst: string(StepInstructions)},
			{Name: eventSubmitted, Src: []string{string(StepFeedback)}, Dst: string(StepDone)},
		},
		callbacks,
	)
}

type FlowOption func(*FlowController)

func WithLogger(l *logger.Logger) FlowOption {
	return func(c *FlowController) {
		if l != nil {
			c.log = l
		}
	}
}

func WithClock(now func() time.Time) FlowOption {
	return func(c *FlowController) {
		if now != nil {
			c.now = now
		}
	}
}

// WithSeed fixes the seed used when a fresh attempt is built.
func WithSeed(seed uint32) FlowOption {
	return func(c *FlowController) { c.seed = &seed }
}

// FlowController drives one participant through instructions, demographics,
// every trial, feedback and submission. It owns the SurveyState and mirrors
// every change to storage.
type FlowController struct {
	mu        sync.Mutex
	bank      []models.QuestionRecord
	survey    *SurveyStore
	step      FlowStep
	machine   *fsm.FSM
	storage   StateStorage
	submitter Submitter
	log       *logger.Logger
	now       func() time.Time
	seed      *uint32

	resumed    bool
	notValid   bool
	submitting bool
	lastErr    string
}

// View is what the current screen needs to render.
type View struct {
	Step        FlowStep
	Index       int
	Total       int
	Trial       *models.Trial
	Answer      *models.Answer
	Participant models.ParticipantInfo
	Feedback    models.FeedbackInfo
	NotValid    bool
	Submitting  bool
	Error       string
}

// NewFlowController resumes the attempt saved in storage when it decodes
// cleanly and otherwise starts a fresh one from bank at Instructions. A
// malformed bank is only an error when a fresh attempt has to be built.
func NewFlowController(bank []models.QuestionRecord, storage StateStorage, submitter Submitter, opts ...FlowOption) (*FlowController, error) {
	if storage == nil {
		return nil, errors.New("flow controller: state storage is nil")
	}
	if submitter == nil {
		return nil, errors.New("flow controller: submitter is nil")
	}
	c := &FlowController{
		bank:      bank,
		storage:   storage,
		submitter: submitter,
		log:       logger.NewNop(),
		now:       func() time.Time { return time.Now().UTC() },
	}
	for _, opt := range opts {
		opt(c)
	}

	if step, st, ok := c.loadSaved(); ok {
		c.survey = RestoreSurveyState(st, c.now)
		c.step = step
		c.resumed = true
		c.log.Info("survey resumed", "step", step.String(), "seed", st.Meta.Seed)
	} else {
		survey, err := NewSurveyState(bank, c.seed, c.now)
		if err != nil {
			return nil, err
		}
		c.survey = survey
		c.step = Instructions()
		c.log.Info("survey started", "seed", survey.State().Meta.Seed, "trials", survey.TrialCount())
	}
	c.machine = newFlowMachine(c.step.Kind(), fsm.Callbacks{
		"enter_state": func(_ context.Context, e *fsm.Event) {
			c.log.Debug("flow screen changed", "event", e.Event, "from", e.Src, "to", e.Dst)
		},
	})
	c.persist()
	return c, nil
}

func (c *FlowController) loadSaved() (FlowStep, models.SurveyState, bool) {
	data, ok, err := c.storage.Load()
	if err != nil {
		c.log.Warn("load saved survey failed", "error", err)
		return FlowStep{}, models.SurveyState{}, false
	}
	if !ok || len(data) == 0 {
		return FlowStep{}, models.SurveyState{}, false
	}
	step, st, err := DecodeRecord(data)
	if err != nil {
		c.log.Warn("discarding saved survey", "error", err)
		return FlowStep{}, models.SurveyState{}, false
	}
	return step, st, true
}

// persist writes the full record. A failed write is logged; the in-memory
// attempt stays authoritative.
func (c *FlowController) persist() {
	data, err := EncodeRecord(c.step, c.survey.State())
	if err != nil {
		c.log.Error("encode survey state", "error", err)
		return
	}
	if err := c.storage.Save(data); err != nil {
		c.log.Error("save survey state", "error", err, "step", c.step.String())
	}
}

// transition moves the screen machine and the step marker together, then
// saves. Question to question stays on one machine state, so only
// legality is checked there.
func (c *FlowController) transition(event string, to FlowStep) error {
	if c.machine.Current() == string(to.Kind()) {
		if !c.machine.Can(event) {
			return fmt.Errorf("%w: %s from %s", ErrIllegalTransition, event, c.step)
		}
	} else if err := c.machine.Event(context.Background(), event); err != nil {
		return fmt.Errorf("%w: %s from %s: %v", ErrIllegalTransition, event, c.step, err)
	}
	c.step = to
	c.notValid = false
	c.lastErr = ""
	c.persist()
	return nil
}

func (c *FlowController) Step() FlowStep {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.step
}

// State returns a copy of the attempt.
func (c *FlowController) State() models.SurveyState {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.survey.State()
}

// Resumed reports whether construction picked up a saved attempt.
func (c *FlowController) Resumed() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.resumed
}

func (c *FlowController) View() View {
	c.mu.Lock()
	defer c.mu.Unlock()
	v := View{
		Step:        c.step,
		Total:       c.survey.TrialCount(),
		Participant: c.survey.Participant(),
		Feedback:    c.survey.Feedback(),
		NotValid:    c.notValid,
		Submitting:  c.submitting,
		Error:       c.lastErr,
	}
	if i, ok := c.step.QuestionIndex(); ok {
		v.Index = i
		if t, err := c.survey.Trial(i); err == nil {
			v.Trial = &t
		}
		if a, err := c.survey.Answer(i); err == nil {
			v.Answer = &a
		}
	}
	return v
}

// Next advances from Instructions, About or a Question. About and Question
// are gated; a failed gate leaves the step unchanged and returns ErrNotValid.
func (c *FlowController) Next() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	switch c.step.Kind() {
	case StepInstructions:
		return c.transition(eventNext, About())
	case StepAbout:
		if !ParticipantValid(c.survey.Participant()) {
			c.notValid = true
			c.log.Info("about screen not valid")
			return ErrNotValid
		}
		return c.transition(eventNext, Question(0))
	case StepQuestion:
		i, _ := c.step.QuestionIndex()
		a, err := c.survey.Answer(i)
		if err != nil {
			return err
		}
		if a.ChosenOptionID == nil {
			c.notValid = true
			c.log.Info("question not answered", "index", i)
			return ErrNotValid
		}
		if i+1 < c.survey.TrialCount() {
			return c.transition(eventAdvance, Question(i+1))
		}
		return c.transition(eventFinishQuestions, Feedback())
	default:
		return fmt.Errorf("%w: next from %s", ErrIllegalTransition, c.step)
	}
}

// BackToInstructions leaves a Question for Instructions. Answers are kept.
func (c *FlowController) BackToInstructions() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.transition(eventBackToInstruction, Instructions())
}

// PatchParticipant merges demographics. Only the About screen may edit them.
func (c *FlowController) PatchParticipant(patch ParticipantPatch) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.step.Kind() != StepAbout {
		return fmt.Errorf("%w: participant on %s", ErrWrongScreen, c.step)
	}
	c.survey.PatchParticipant(patch)
	c.persist()
	return nil
}

// Choose records the option picked on the current Question.
func (c *FlowController) Choose(optionID string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	i, ok := c.step.QuestionIndex()
	if !ok {
		return fmt.Errorf("%w: choice on %s", ErrWrongScreen, c.step)
	}
	if err := c.survey.SetAnswer(i, optionID); err != nil {
		return err
	}
	c.notValid = false
	c.persist()
	return nil
}

// PatchFeedback merges feedback answers. Only the Feedback screen may edit them.
func (c *FlowController) PatchFeedback(patch FeedbackPatch) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.step.Kind() != StepFeedback {
		return fmt.Errorf("%w: feedback on %s", ErrWrongScreen, c.step)
	}
	c.survey.PatchFeedback(patch)
	c.persist()
	return nil
}

// Submit sends the finished attempt. The first gated attempt stamps
// FinishedAt; retries after a failure reuse it. The lock is released while the
// submitter runs and a concurrent Submit gets ErrSubmissionInProgress.
func (c *FlowController) Submit(ctx context.Context) error {
	c.mu.Lock()
	if c.step.Kind() != StepFeedback {
		step := c.step
		c.mu.Unlock()
		return fmt.Errorf("%w: submit from %s", ErrIllegalTransition, step)
	}
	if c.submitting {
		c.mu.Unlock()
		return ErrSubmissionInProgress
	}
	c.lastErr = ""
	if !FeedbackValid(c.survey.Feedback()) {
		c.notValid = true
		c.mu.Unlock()
		c.log.Info("feedback not valid")
		return ErrNotValid
	}
	c.notValid = false
	if !c.survey.Finished() {
		c.survey.Finish()
		c.persist()
	}
	payload := c.survey.Payload()
	c.submitting = true
	c.mu.Unlock()

	id, err := c.submitter.Submit(ctx, payload)

	c.mu.Lock()
	defer c.mu.Unlock()
	c.submitting = false
	if err != nil {
		msg := strings.TrimSpace(err.Error())
		if msg == "" {
			msg = "Submit failed"
		}
		c.lastErr = msg
		c.log.Warn("submission failed", "error", err)
		return &SubmissionError{Message: msg, Err: err}
	}
	c.log.Info("survey submitted", "submission_id", id)
	return c.transition(eventSubmitted, Done(id))
}

// Reset discards the attempt, clears storage and starts over with a new seed.
func (c *FlowController) Reset() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.submitting {
		return ErrSubmissionInProgress
	}
	survey, err := NewSurveyState(c.bank, nil, c.now)
	if err != nil {
		return err
	}
	if err := c.storage.Clear(); err != nil {
		c.log.Warn("clear saved survey failed", "error", err)
	}
	c.survey = survey
	c.step = Instructions()
	c.machine.SetState(string(StepInstructions))
	c.resumed = false
	c.notValid = false
	c.lastErr = ""
	c.log.Info("survey reset", "seed", survey.State().Meta.Seed)
	c.persist()
	return nil
}

package services

import (
	"bytes"
	"encoding/json"
	"fmt"
)

// StepKind names a screen of the survey flow.
type StepKind string

const (
	StepInstructions StepKind = "instructions"
	StepAbout        StepKind = "about"
	StepQuestion     StepKind = "question"
	StepFeedback     StepKind = "feedback"
	StepDone         StepKind = "done"
)

// FlowStep is the current-screen marker. Only Question carries an index and
// only Done carries a submission id; build values with the constructors.
type FlowStep struct {
	kind         StepKind
	index        int
	submissionID string
}

func Instructions() FlowStep { return FlowStep{kind: StepInstructions} }
func About() FlowStep        { return FlowStep{kind: StepAbout} }
func Question(i int) FlowStep {
	return FlowStep{kind: StepQuestion, index: i}
}
func Feedback() FlowStep { return FlowStep{kind: StepFeedback} }
func Done(submissionID string) FlowStep {
	return FlowStep{kind: StepDone, submissionID: submissionID}
}

// Kind reports the screen. The zero FlowStep reads as Instructions.
func (s FlowStep) Kind() StepKind {
	if s.kind == "" {
		return StepInstructions
	}
	return s.kind
}

// QuestionIndex returns the trial index when the step is a Question.
func (s FlowStep) QuestionIndex() (int, bool) {
	if s.kind != StepQuestion {
		return 0, false
	}
	return s.index, true
}

// SubmissionID returns the backend id when the step is Done.
func (s FlowStep) SubmissionID() (string, bool) {
	if s.kind != StepDone {
		return "", false
	}
	return s.submissionID, true
}

func (s FlowStep) String() string {
	switch s.Kind() {
	case StepQuestion:
		return fmt.Sprintf("question(%d)", s.index)
	case StepDone:
		return fmt.Sprintf("done(%s)", s.submissionID)
	default:
		return string(s.Kind())
	}
}

type questionStepJSON struct {
	QIndex int `json:"qIndex"`
}

type doneStepJSON struct {
	Done         bool   `json:"done"`
	SubmissionID string `json:"submissionId"`
}

// MarshalJSON writes plain screens as strings and payload-carrying screens as
// objects: {"qIndex":n} and {"done":true,"submissionId":id}.
func (s FlowStep) MarshalJSON() ([]byte, error) {
	switch s.Kind() {
	case StepQuestion:
		return json.Marshal(questionStepJSON{QIndex: s.index})
	case StepDone:
		return json.Marshal(doneStepJSON{Done: true, SubmissionID: s.submissionID})
	default:
		return json.Marshal(string(s.Kind()))
	}
}

func (s *FlowStep) UnmarshalJSON(b []byte) error {
	b = bytes.TrimSpace(b)
	if bytes.Equal(b, []byte("null")) {
		*s = Instructions()
		return nil
	}
	if len(b) > 0 && b[0] == '"' {
		var name string
		if err := json.Unmarshal(b, &name); err != nil {
			return err
		}
		switch StepKind(name) {
		case StepInstructions, StepAbout, StepFeedback:
			*s = FlowStep{kind: StepKind(name)}
			return nil
		}
		return fmt.Errorf("unknown flow step %q", name)
	}
	var raw map[string]json.RawMessage
	if err := json.Unmarshal(b, &raw); err != nil {
		return fmt.Errorf("flow step: %w", err)
	}
	if _, ok := raw["qIndex"]; ok {
		var q questionStepJSON
		if err := json.Unmarshal(b, &q); err != nil {
			return fmt.Errorf("flow step: %w", err)
		}
		if q.QIndex < 0 {
			return fmt.Errorf("flow step: negative question index %d", q.QIndex)
		}
		*s = Question(q.QIndex)
		return nil
	}
	if _, ok := raw["done"]; ok {
		var d doneStepJSON
		if err := json.Unmarshal(b, &d); err != nil {
			return fmt.Errorf("flow step: %w", err)
		}
		if !d.Done {
			return fmt.Errorf("flow step: done flag is false")
		}
		*s = Done(d.SubmissionID)
		return nil
	}
	return fmt.Errorf("flow step: unrecognized object")
}

package cli

import (
	"bytes"
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/soaringjerry/truthpref/internal/bank"
	"github.com/soaringjerry/truthpref/internal/models"
	"github.com/soaringjerry/truthpref/internal/services"
	"github.com/soaringjerry/truthpref/internal/storage"
)

type recordingSubmitter struct {
	payloads []models.SubmissionPayload
	err      error
}

func (s *recordingSubmitter) Submit(_ context.Context, p models.SubmissionPayload) (string, error) {
	if s.err != nil {
		return "", s.err
	}
	s.payloads = append(s.payloads, p)
	return "sub-1", nil
}

func newController(t *testing.T, store services.StateStorage, sub services.Submitter) *services.FlowController {
	t.Helper()
	questions, err := bank.Default()
	if err != nil {
		t.Fatalf("bank: %v", err)
	}
	ctl, err := services.NewFlowController(questions, store, sub, services.WithSeed(7))
	if err != nil {
		t.Fatalf("NewFlowController: %v", err)
	}
	return ctl
}

func script(trials int, tail ...string) string {
	lines := []string{
		"next",
		"next",
		"age=30", "prolific_id=P123", "gender=female", "education=bachelor", "country=NL", "consent=yes",
		"next",
	}
	for i := 0; i < trials; i++ {
		lines = append(lines, "next", "2", "next")
	}
	lines = append(lines, tail...)
	return strings.Join(lines, "\n") + "\n"
}

func TestRunnerCompletesSurvey(t *testing.T) {
	sub := &recordingSubmitter{}
	ctl := newController(t, storage.NewMemoryStorage(), sub)
	total := ctl.View().Total

	in := script(total,
		"submit",
		"accuracyImportance=5", "incorrect_info_ok=1", "3=4", "4=4", "chatgptExperience=2", "comments=fine",
		"submit",
	)
	var out bytes.Buffer
	if err := NewRunner(ctl, strings.NewReader(in), &out, nil).Run(context.Background()); err != nil {
		t.Fatalf("Run: %v", err)
	}

	text := out.String()
	for _, want := range []string{
		"Please complete all fields and agree to participate.",
		"Please choose an option.",
		"Please answer all rating questions.",
		"Thank you for participating",
		"Submission id: sub-1",
	} {
		if !strings.Contains(text, want) {
			t.Fatalf("output missing %q", want)
		}
	}
	if len(sub.payloads) != 1 {
		t.Fatalf("payloads = %d", len(sub.payloads))
	}
	p := sub.payloads[0]
	if len(p.Answers) != total || p.Participant.ProlificID != "P123" || !p.Participant.Consent {
		t.Fatalf("payload = %+v", p)
	}
	for i, a := range p.Answers {
		if a.ChosenOptionID == nil || *a.ChosenOptionID != a.ShownOrder[1] {
			t.Fatalf("answer %d = %+v", i, a)
		}
	}
	if *p.Feedback.IncorrectInfoOK != 1 || *p.Feedback.AdmitDontKnowBest != 4 || p.Feedback.Comments != "fine" {
		t.Fatalf("feedback = %+v", p.Feedback)
	}
}

func TestRunnerQuitAndResume(t *testing.T) {
	store := storage.NewMemoryStorage()
	ctl := newController(t, store, &recordingSubmitter{})
	var out bytes.Buffer
	in := "next\nnext\nage=41\nquit\n"
	if err := NewRunner(ctl, strings.NewReader(in), &out, nil).Run(context.Background()); err != nil {
		t.Fatalf("Run: %v", err)
	}
	if !strings.Contains(out.String(), "Progress saved") {
		t.Fatalf("no quit message")
	}

	resumed := newController(t, store, &recordingSubmitter{})
	v := resumed.View()
	if v.Step.Kind() != services.StepAbout || v.Participant.Age != "41" {
		t.Fatalf("resumed view = %s %+v", v.Step, v.Participant)
	}
}

func TestRunnerShowsSubmitFailure(t *testing.T) {
	sub := &recordingSubmitter{err: errors.New("Expected 10 answers.")}
	ctl := newController(t, storage.NewMemoryStorage(), sub)
	in := script(ctl.View().Total,
		"1=5", "2=5", "3=5", "4=5", "5=5",
		"submit",
	)
	var out bytes.Buffer
	if err := NewRunner(ctl, strings.NewReader(in), &out, nil).Run(context.Background()); err != nil {
		t.Fatalf("Run: %v", err)
	}
	if !strings.Contains(out.String(), "! Expected 10 answers.") {
		t.Fatalf("submit error not rendered:\n%s", out.String())
	}
	if ctl.Step().Kind() != services.StepFeedback {
		t.Fatalf("step = %s, want feedback", ctl.Step())
	}
}

func TestRunnerRejectsBadInput(t *testing.T) {
	ctl := newController(t, storage.NewMemoryStorage(), &recordingSubmitter{})
	in := "age=30\nnext\nnext\nconsent=maybe\nnext\nfoo=bar\n"
	var out bytes.Buffer
	if err := NewRunner(ctl, strings.NewReader(in), &out, nil).Run(context.Background()); err != nil {
		t.Fatalf("Run: %v", err)
	}
	text := out.String()
	for _, want := range []string{
		"nothing to fill in on this screen",
		"consent must be yes or no",
		`unknown field "foo"`,
	} {
		if !strings.Contains(text, want) {
			t.Fatalf("output missing %q:\n%s", want, text)
		}
	}
}

func TestFeedbackPatchRange(t *testing.T) {
	if _, err := feedbackPatch("trustWhenAdmits", "6"); err == nil {
		t.Fatalf("rating 6 accepted")
	}
	p, err := feedbackPatch("trust-when-admits", "2")
	if err != nil || p.TrustWhenAdmits == nil || *p.TrustWhenAdmits != 2 {
		t.Fatalf("patch = %+v, %v", p, err)
	}
}

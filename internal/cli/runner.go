// Package cli renders the survey flow in a terminal.
package cli

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/soaringjerry/truthpref/internal/logger"
	"github.com/soaringjerry/truthpref/internal/models"
	"github.com/soaringjerry/truthpref/internal/services"
)

const instructionsText = `In this study you will read a series of questions that someone asked an
AI assistant. Each question comes with two possible answers.

For every question, pick the answer you would prefer to receive. There are
no right or wrong choices. Afterwards we ask a few short questions about
your views on AI assistants.

Your progress is saved, so you can quit and come back later.`

const helpText = "Commands: next, back, submit, reset, quit, field=value, 1 or 2 on questions."

var likertLabels = []string{"Strongly disagree", "Disagree", "Neither", "Agree", "Strongly agree"}

type feedbackItem struct {
	key    string
	prompt string
}

var feedbackItems = []feedbackItem{
	{"accuracyImportance", "It is important for ChatGPT (or similar models) to provide only accurate information."},
	{"incorrectInfoOk", "It is important for ChatGPT (or similar models) to provide information even if it is incorrect."},
	{"admitDontKnowBest", "It is best that ChatGPT (or similar models) admits it does not know rather than providing incorrect information."},
	{"trustWhenAdmits", "When ChatGPT (or similar models) admits it does not know, it allows me to trust it better."},
	{"chatgptExperience", "I have significant experience using ChatGPT (or similar models)."},
}

// Controller is the part of FlowController the runner drives.
type Controller interface {
	View() services.View
	Next() error
	BackToInstructions() error
	PatchParticipant(services.ParticipantPatch) error
	Choose(optionID string) error
	PatchFeedback(services.FeedbackPatch) error
	Submit(ctx context.Context) error
	Reset() error
}

var _ Controller = (*services.FlowController)(nil)

// Runner reads one command per line and redraws the current screen after
// each one.
type Runner struct {
	ctl Controller
	in  *bufio.Scanner
	out io.Writer
	log *logger.Logger
}

func NewRunner(ctl Controller, in io.Reader, out io.Writer, log *logger.Logger) *Runner {
	if log == nil {
		log = logger.NewNop()
	}
	return &Runner{ctl: ctl, in: bufio.NewScanner(in), out: out, log: log}
}

// Run loops until the survey is done, the user quits, input ends or ctx is
// cancelled.
func (r *Runner) Run(ctx context.Context) error {
	for {
		view := r.ctl.View()
		r.render(view)
		if view.Step.Kind() == services.StepDone {
			return nil
		}
		if err := ctx.Err(); err != nil {
			return err
		}
		fmt.Fprint(r.out, "> ")
		if !r.in.Scan() {
			fmt.Fprintln(r.out)
			return r.in.Err()
		}
		line := strings.TrimSpace(r.in.Text())
		if line == "" {
			continue
		}
		if line == "quit" || line == "exit" {
			fmt.Fprintln(r.out, "Progress saved. Run again to continue.")
			return nil
		}
		if err := r.exec(ctx, view, line); err != nil {
			r.log.Debug("command rejected", "step", view.Step.String(), "error", err)
			// Submission failures are shown by the next render.
			var se *services.SubmissionError
			if !errors.As(err, &se) {
				fmt.Fprintf(r.out, "! %s\n", describe(view, err))
			}
		}
	}
}

func (r *Runner) exec(ctx context.Context, view services.View, line string) error {
	switch line {
	case "next", "n":
		return r.ctl.Next()
	case "back":
		return r.ctl.BackToInstructions()
	case "submit":
		return r.ctl.Submit(ctx)
	case "reset":
		return r.ctl.Reset()
	case "help", "?":
		fmt.Fprintln(r.out, helpText)
		return nil
	}
	if key, value, ok := strings.Cut(line, "="); ok {
		return r.patch(view, strings.TrimSpace(key), strings.TrimSpace(value))
	}
	if view.Trial != nil {
		return r.choose(view, line)
	}
	return fmt.Errorf("unknown command %q, type help", line)
}

func (r *Runner) choose(view services.View, input string) error {
	if n, err := strconv.Atoi(input); err == nil {
		if n < 1 || n > len(view.Trial.Options) {
			return fmt.Errorf("choose 1 to %d", len(view.Trial.Options))
		}
		return r.ctl.Choose(view.Trial.Options[n-1].OptionID)
	}
	return r.ctl.Choose(strings.ToUpper(input))
}

func (r *Runner) patch(view services.View, key, value string) error {
	switch view.Step.Kind() {
	case services.StepAbout:
		p, err := participantPatch(key, value)
		if err != nil {
			return err
		}
		return r.ctl.PatchParticipant(p)
	case services.StepFeedback:
		p, err := feedbackPatch(key, value)
		if err != nil {
			return err
		}
		return r.ctl.PatchFeedback(p)
	default:
		return fmt.Errorf("nothing to fill in on this screen")
	}
}

func participantPatch(key, value string) (services.ParticipantPatch, error) {
	var p services.ParticipantPatch
	switch normalizeKey(key) {
	case "age":
		p.Age = &value
	case "prolificid":
		p.ProlificID = &value
	case "gender":
		p.Gender = &value
	case "education":
		p.Education = &value
	case "country":
		p.Country = &value
	case "consent":
		v, err := parseYes(value)
		if err != nil {
			return p, err
		}
		p.Consent = &v
	default:
		return p, fmt.Errorf("unknown field %q", key)
	}
	return p, nil
}

func feedbackPatch(key, value string) (services.FeedbackPatch, error) {
	var p services.FeedbackPatch
	k := normalizeKey(key)
	if k == "comments" || k == "comment" {
		p.Comments = &value
		return p, nil
	}
	n, err := strconv.Atoi(value)
	if err != nil || n < 1 || n > services.LikertPoints {
		return p, fmt.Errorf("rating must be 1 to %d", services.LikertPoints)
	}
	switch k {
	case "accuracyimportance", "1":
		p.AccuracyImportance = &n
	case "incorrectinfook", "2":
		p.IncorrectInfoOK = &n
	case "admitdontknowbest", "3":
		p.AdmitDontKnowBest = &n
	case "trustwhenadmits", "4":
		p.TrustWhenAdmits = &n
	case "chatgptexperience", "5":
		p.ChatGPTExperience = &n
	default:
		return p, fmt.Errorf("unknown rating %q", key)
	}
	return p, nil
}

func normalizeKey(k string) string {
	k = strings.ToLower(k)
	return strings.NewReplacer("_", "", "-", "", " ", "").Replace(k)
}

func parseYes(v string) (bool, error) {
	switch strings.ToLower(v) {
	case "y", "yes", "true", "1":
		return true, nil
	case "n", "no", "false", "0":
		return false, nil
	}
	return false, fmt.Errorf("consent must be yes or no")
}

// describe turns controller errors into screen-specific messages.
func describe(view services.View, err error) string {
	switch {
	case errors.Is(err, services.ErrNotValid):
		switch view.Step.Kind() {
		case services.StepAbout:
			return "Please complete all fields and agree to participate."
		case services.StepQuestion:
			return "Please choose an option."
		case services.StepFeedback:
			return "Please answer all rating questions."
		}
	case errors.Is(err, services.ErrSubmissionInProgress):
		return "Submitting, please wait."
	case errors.Is(err, services.ErrIllegalTransition), errors.Is(err, services.ErrWrongScreen):
		return "That command is not available on this screen."
	}
	return err.Error()
}

func (r *Runner) render(v services.View) {
	w := r.out
	fmt.Fprintln(w)
	switch v.Step.Kind() {
	case services.StepInstructions:
		fmt.Fprintln(w, "== Instructions ==")
		fmt.Fprintln(w, instructionsText)
		fmt.Fprintln(w, "\nType next to continue.")
	case services.StepAbout:
		p := v.Participant
		fmt.Fprintln(w, "== About yourself ==")
		fmt.Fprintf(w, "  age=%s\n  prolific_id=%s\n  gender=%s\n  education=%s\n  country=%s\n  consent=%s\n",
			p.Age, p.ProlificID, p.Gender, p.Education, p.Country, yesNo(p.Consent))
		fmt.Fprintln(w, "Set a field with field=value, then type next.")
	case services.StepQuestion:
		r.renderQuestion(v)
	case services.StepFeedback:
		r.renderFeedback(v.Feedback)
	case services.StepDone:
		fmt.Fprintln(w, "== Thank you for participating ==")
		fmt.Fprintln(w, "Your responses have been successfully recorded.")
		if id, ok := v.Step.SubmissionID(); ok && id != "" {
			fmt.Fprintf(w, "Submission id: %s\n", id)
		}
	}
	if v.Error != "" {
		fmt.Fprintf(w, "! %s\n", v.Error)
	}
}

func (r *Runner) renderQuestion(v services.View) {
	w := r.out
	fmt.Fprintf(w, "== Question %d of %d ==\n", v.Index+1, v.Total)
	if v.Trial == nil {
		return
	}
	fmt.Fprintln(w, v.Trial.UserQuestion)
	var chosen string
	if v.Answer != nil && v.Answer.ChosenOptionID != nil {
		chosen = *v.Answer.ChosenOptionID
	}
	for i, o := range v.Trial.Options {
		mark := " "
		if o.OptionID == chosen {
			mark = "*"
		}
		fmt.Fprintf(w, "%s %d) %s\n    %s\n", mark, i+1, o.Label, o.Text)
	}
	fmt.Fprintln(w, "Pick 1 or 2, then type next. Type back to reread the instructions.")
}

func (r *Runner) renderFeedback(f models.FeedbackInfo) {
	w := r.out
	fmt.Fprintln(w, "== Feedback ==")
	values := f.LikertItems()
	for i, item := range feedbackItems {
		current := "-"
		if v := values[i]; v != nil && *v >= 1 && *v <= len(likertLabels) {
			current = fmt.Sprintf("%d (%s)", *values[i], likertLabels[*values[i]-1])
		}
		fmt.Fprintf(w, "  %d. %s\n     %s=%s\n", i+1, item.prompt, item.key, current)
	}
	fmt.Fprintf(w, "  comments=%s\n", f.Comments)
	fmt.Fprintln(w, "Rate with key=1..5 (1 Strongly disagree, 5 Strongly agree), then type submit.")
}

func yesNo(b bool) string {
	if b {
		return "yes"
	}
	return "no"
}

package models

import "time"

// ResponseType classifies a candidate answer. The set is closed.
type ResponseType string

const (
	AppealingTruth ResponseType = "appealing_truth"
	AppealingFalse ResponseType = "appealing_false"
	BoringTruth    ResponseType = "boring_truth"
)

// ResponseRecord is one candidate answer in the question bank.
type ResponseRecord struct {
	Type ResponseType `json:"type" yaml:"type"`
	Text string       `json:"text" yaml:"text"`
}

// QuestionRecord is a static question bank entry. Responses is keyed by the
// source key ("A", "B") and must hold exactly two entries.
type QuestionRecord struct {
	ID           string                    `json:"id" yaml:"id"`
	PairType     string                    `json:"pairType" yaml:"pairType"`
	UserQuestion string                    `json:"userQuestion" yaml:"userQuestion"`
	Responses    map[string]ResponseRecord `json:"responses" yaml:"responses"`
}

// Option is one candidate response as shown inside a trial.
type Option struct {
	OptionID  string       `json:"optionId"`
	Label     string       `json:"label"`
	Type      ResponseType `json:"type"`
	Text      string       `json:"text"`
	SourceKey string       `json:"sourceKey"`
}

// Trial is one presented question with its shuffled options.
type Trial struct {
	TrialID      string   `json:"trialId"`
	BaseID       string   `json:"baseId"`
	PairType     string   `json:"pairType"`
	UserQuestion string   `json:"userQuestion"`
	Options      []Option `json:"options"`
}

// OptionIDs returns the option ids in display order.
func (t Trial) OptionIDs() []string {
	out := make([]string, 0, len(t.Options))
	for _, o := range t.Options {
		out = append(out, o.OptionID)
	}
	return out
}

// Answer records the participant's choice for the trial at the same index.
type Answer struct {
	TrialID        string   `json:"trialId"`
	ShownOrder     []string `json:"shownOrder"`
	ChosenOptionID *string  `json:"chosenOptionId"`
}

// ParticipantInfo holds the demographics collected on the about screen.
// Age is kept as entered.
type ParticipantInfo struct {
	Age        string `json:"age"`
	ProlificID string `json:"prolificId"`
	Gender     string `json:"gender"`
	Education  string `json:"education"`
	Country    string `json:"country"`
	Consent    bool   `json:"consent"`
}

// FeedbackInfo holds the closing questionnaire. Likert values are 1..5, nil
// while unanswered.
type FeedbackInfo struct {
	AccuracyImportance *int   `json:"accuracyImportance"`
	IncorrectInfoOK    *int   `json:"incorrectInfoOk"`
	AdmitDontKnowBest  *int   `json:"admitDontKnowBest"`
	TrustWhenAdmits    *int   `json:"trustWhenAdmits"`
	ChatGPTExperience  *int   `json:"chatgptExperience"`
	Comments           string `json:"comments"`
}

// LikertItems returns the five ratings in questionnaire order.
func (f FeedbackInfo) LikertItems() []*int {
	return []*int{f.AccuracyImportance, f.IncorrectInfoOK, f.AdmitDontKnowBest, f.TrustWhenAdmits, f.ChatGPTExperience}
}

// LikertKeys names the ratings returned by LikertItems, in the same order.
var LikertKeys = []string{"accuracyImportance", "incorrectInfoOk", "admitDontKnowBest", "trustWhenAdmits", "chatgptExperience"}

// SurveyMeta carries the seed and attempt timestamps.
type SurveyMeta struct {
	Seed       uint32     `json:"seed"`
	StartedAt  time.Time  `json:"startedAt"`
	FinishedAt *time.Time `json:"finishedAt"`
}

// SurveyState is the aggregate for one survey attempt. Answers is parallel to
// Trials.
type SurveyState struct {
	Meta        SurveyMeta      `json:"meta"`
	Participant ParticipantInfo `json:"participant"`
	Trials      []Trial         `json:"trials"`
	Answers     []Answer        `json:"answers"`
	Feedback    FeedbackInfo    `json:"feedback"`
}

// SubmittedAnswer is the reduced answer shape sent to the backend.
type SubmittedAnswer struct {
	TrialID        string   `json:"trialId"`
	ShownOrder     []string `json:"shownOrder"`
	ChosenOptionID *string  `json:"chosenOptionId"`
}

// SubmissionPayload is the body of a survey submission.
type SubmissionPayload struct {
	Meta        SurveyMeta        `json:"meta"`
	Participant ParticipantInfo   `json:"participant"`
	Feedback    FeedbackInfo      `json:"feedback"`
	Answers     []SubmittedAnswer `json:"answers"`
}

// Submission is a stored payload.
type Submission struct {
	ID        string            `json:"id"`
	CreatedAt time.Time         `json:"created_at"`
	Payload   SubmissionPayload `json:"payload"`
}

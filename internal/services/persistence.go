package services

import (
	"encoding/json"
	"fmt"

	"github.com/soaringjerry/truthpref/internal/models"
)

// StorageKey is the fixed key the in-progress attempt is saved under.
const StorageKey = "survey_state_v2"

// StateStorage keeps one serialized attempt. Load reports ok=false when
// nothing has been saved yet.
type StateStorage interface {
	Load() (data []byte, ok bool, err error)
	Save(data []byte) error
	Clear() error
}

// PersistedRecord is the blob written on every change.
type PersistedRecord struct {
	UIStep FlowStep            `json:"uiStep"`
	Survey *models.SurveyState `json:"survey"`
}

func EncodeRecord(step FlowStep, state models.SurveyState) ([]byte, error) {
	return json.Marshal(PersistedRecord{UIStep: step, Survey: &state})
}

// DecodeRecord parses and structurally checks a persisted blob. Any failure
// means the blob cannot be resumed.
func DecodeRecord(data []byte) (FlowStep, models.SurveyState, error) {
	var rec PersistedRecord
	if err := json.Unmarshal(data, &rec); err != nil {
		return FlowStep{}, models.SurveyState{}, fmt.Errorf("decode saved state: %w", err)
	}
	if rec.Survey == nil {
		return FlowStep{}, models.SurveyState{}, fmt.Errorf("decode saved state: survey missing")
	}
	if err := ValidateSurveyState(*rec.Survey); err != nil {
		return FlowStep{}, models.SurveyState{}, fmt.Errorf("decode saved state: %w", err)
	}
	if i, ok := rec.UIStep.QuestionIndex(); ok && i >= len(rec.Survey.Trials) {
		return FlowStep{}, models.SurveyState{}, fmt.Errorf("decode saved state: question %d beyond %d trials", i, len(rec.Survey.Trials))
	}
	return rec.UIStep, *rec.Survey, nil
}

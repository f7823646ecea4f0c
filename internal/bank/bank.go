// Package bank loads the static question bank.
package bank

import (
	_ "embed"
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/soaringjerry/truthpref/internal/models"
	"github.com/soaringjerry/truthpref/internal/services"
)

//go:embed questions.yaml
var defaultBank []byte

// Default returns the embedded ten-question bank.
func Default() ([]models.QuestionRecord, error) {
	return Parse(defaultBank)
}

// Load reads a bank from a YAML (or JSON) file.
func Load(path string) ([]models.QuestionRecord, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read question bank: %w", err)
	}
	return Parse(b)
}

// Parse decodes and validates a bank. Structural problems are reported as
// *services.ConstructionError.
func Parse(b []byte) ([]models.QuestionRecord, error) {
	var qs []models.QuestionRecord
	if err := yaml.Unmarshal(b, &qs); err != nil {
		return nil, &services.ConstructionError{Reason: "parse: " + err.Error()}
	}
	if err := services.ValidateBank(qs); err != nil {
		return nil, err
	}
	return qs, nil
}

// Package client talks to the submission backend.
package client

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/soaringjerry/truthpref/internal/models"
	"github.com/soaringjerry/truthpref/internal/services"
)

var _ services.Submitter = (*HTTPSubmitter)(nil)

const fallbackError = "Submit failed"

// HTTPSubmitter posts finished surveys to <BaseURL>/api/submit.
type HTTPSubmitter struct {
	BaseURL    string
	HTTPClient *http.Client
}

func NewHTTPSubmitter(baseURL string) *HTTPSubmitter {
	return &HTTPSubmitter{
		BaseURL:    strings.TrimRight(baseURL, "/"),
		HTTPClient: &http.Client{Timeout: 15 * time.Second},
	}
}

type submitResponse struct {
	OK    bool   `json:"ok"`
	ID    string `json:"id"`
	Error string `json:"error"`
}

// Submit returns the stored submission id. A non-2xx reply becomes an error
// carrying the server's message unchanged.
func (s *HTTPSubmitter) Submit(ctx context.Context, payload models.SubmissionPayload) (string, error) {
	body, err := json.Marshal(payload)
	if err != nil {
		return "", err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.BaseURL+"/api/submit", bytes.NewReader(body))
	if err != nil {
		return "", err
	}
	req.Header.Set("Content-Type", "application/json")
	hc := s.HTTPClient
	if hc == nil {
		hc = http.DefaultClient
	}
	resp, err := hc.Do(req)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	raw, _ := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	var out submitResponse
	decodeErr := json.Unmarshal(raw, &out)
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		if decodeErr == nil && strings.TrimSpace(out.Error) != "" {
			return "", errors.New(out.Error)
		}
		return "", errors.New(fallbackError)
	}
	if decodeErr != nil {
		return "", fmt.Errorf("decode submit response: %w", decodeErr)
	}
	return out.ID, nil
}

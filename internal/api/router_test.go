package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"golang.org/x/crypto/bcrypt"

	"github.com/soaringjerry/truthpref/internal/middleware"
	"github.com/soaringjerry/truthpref/internal/models"
)

func payloadJSON(t *testing.T, n int, mutate func(*models.SubmissionPayload)) []byte {
	t.Helper()
	p := models.SubmissionPayload{
		Meta:        models.SurveyMeta{Seed: 42},
		Participant: models.ParticipantInfo{Age: "25", ProlificID: "PX", Gender: "nb", Education: "ba", Country: "PT", Consent: true},
	}
	for i := 0; i < n; i++ {
		choice := "AT"
		p.Answers = append(p.Answers, models.SubmittedAnswer{TrialID: fmt.Sprintf("q%02d", i+1), ShownOrder: []string{"AT", "BT"}, ChosenOptionID: &choice})
	}
	if mutate != nil {
		mutate(&p)
	}
	b, err := json.Marshal(p)
	if err != nil {
		t.Fatal(err)
	}
	return b
}

func newTestServer(t *testing.T, store Store, withAdmin bool) *httptest.Server {
	t.Helper()
	cfg := RouterConfig{ExpectedAnswers: 10, Commit: "abc", BuildTime: "today"}
	var auth *middleware.Authenticator
	if withAdmin {
		hash, err := bcrypt.GenerateFromPassword([]byte("hunter2"), bcrypt.MinCost)
		if err != nil {
			t.Fatal(err)
		}
		cfg.AdminPasswordHash = string(hash)
		auth, err = middleware.NewAuthenticator("router-test-secret")
		if err != nil {
			t.Fatal(err)
		}
	}
	mux := http.NewServeMux()
	NewRouter(store, auth, nil, cfg).Register(mux)
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return srv
}

func doJSON(t *testing.T, method, url, token string, body []byte) (*http.Response, map[string]any) {
	t.Helper()
	req, err := http.NewRequest(method, url, bytes.NewReader(body))
	if err != nil {
		t.Fatal(err)
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("%s %s: %v", method, url, err)
	}
	defer resp.Body.Close()
	var out map[string]any
	_ = json.NewDecoder(resp.Body).Decode(&out)
	return resp, out
}

func TestSubmitAndHealth(t *testing.T) {
	srv := newTestServer(t, NewMemoryStore(), false)

	resp, out := doJSON(t, http.MethodGet, srv.URL+"/api/health", "", nil)
	if resp.StatusCode != http.StatusOK || out["count"] != float64(0) || out["commit"] != "abc" {
		t.Fatalf("health = %d %v", resp.StatusCode, out)
	}

	resp, out = doJSON(t, http.MethodPost, srv.URL+"/api/submit", "", payloadJSON(t, 10, nil))
	if resp.StatusCode != http.StatusOK || out["ok"] != true {
		t.Fatalf("submit = %d %v", resp.StatusCode, out)
	}
	if id, _ := out["id"].(string); len(id) != 36 {
		t.Fatalf("id = %v, want a uuid", out["id"])
	}

	_, out = doJSON(t, http.MethodGet, srv.URL+"/api/health", "", nil)
	if out["count"] != float64(1) {
		t.Fatalf("count after submit = %v", out["count"])
	}
}

func TestSubmitRejections(t *testing.T) {
	srv := newTestServer(t, NewMemoryStore(), false)
	cases := []struct {
		name string
		body []byte
		want string
	}{
		{"no consent", payloadJSON(t, 10, func(p *models.SubmissionPayload) { p.Participant.Consent = false }), "Consent is required."},
		{"short", payloadJSON(t, 9, nil), "Expected 10 answers."},
		{"unanswered", payloadJSON(t, 10, func(p *models.SubmissionPayload) { p.Answers[4].ChosenOptionID = nil }), "All trials must be answered."},
		{"no answers", []byte(`{"participant":{"consent":true}}`), "Expected 10 answers."},
		{"bad json", []byte(`{"participant":`), "Invalid submission body."},
	}
	for _, c := range cases {
		resp, out := doJSON(t, http.MethodPost, srv.URL+"/api/submit", "", c.body)
		if resp.StatusCode != http.StatusBadRequest || out["ok"] != false || out["error"] != c.want {
			t.Fatalf("%s: %d %v", c.name, resp.StatusCode, out)
		}
	}
	resp, _ := doJSON(t, http.MethodGet, srv.URL+"/api/submit", "", nil)
	if resp.StatusCode != http.StatusMethodNotAllowed {
		t.Fatalf("GET /api/submit = %d", resp.StatusCode)
	}
}

func TestAdminEndpoints(t *testing.T) {
	store := NewMemoryStore()
	srv := newTestServer(t, store, true)
	doJSON(t, http.MethodPost, srv.URL+"/api/submit", "", payloadJSON(t, 10, nil))

	if resp, _ := doJSON(t, http.MethodGet, srv.URL+"/api/submissions", "", nil); resp.StatusCode != http.StatusUnauthorized {
		t.Fatalf("unauthenticated listing = %d", resp.StatusCode)
	}
	if resp, _ := doJSON(t, http.MethodPost, srv.URL+"/api/admin/login", "", []byte(`{"password":"nope"}`)); resp.StatusCode != http.StatusUnauthorized {
		t.Fatalf("bad login = %d", resp.StatusCode)
	}
	resp, out := doJSON(t, http.MethodPost, srv.URL+"/api/admin/login", "", []byte(`{"password":"hunter2"}`))
	token, _ := out["token"].(string)
	if resp.StatusCode != http.StatusOK || token == "" {
		t.Fatalf("login = %d %v", resp.StatusCode, out)
	}

	resp, out = doJSON(t, http.MethodGet, srv.URL+"/api/submissions", token, nil)
	subs, _ := out["submissions"].([]any)
	if resp.StatusCode != http.StatusOK || len(subs) != 1 {
		t.Fatalf("listing = %d %v", resp.StatusCode, out)
	}
	first, _ := subs[0].(map[string]any)
	if _, ok := first["payload"].(map[string]any); !ok || first["created_at"] == nil {
		t.Fatalf("listing entry = %v", first)
	}

	resp, out = doJSON(t, http.MethodGet, srv.URL+"/api/analytics", token, nil)
	if resp.StatusCode != http.StatusOK || out["total_submissions"] != float64(1) || out["truthful_rate"] != float64(1) {
		t.Fatalf("analytics = %d %v", resp.StatusCode, out)
	}

	req, _ := http.NewRequest(http.MethodGet, srv.URL+"/api/export?format=long", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	res, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatal(err)
	}
	var buf bytes.Buffer
	_, _ = buf.ReadFrom(res.Body)
	res.Body.Close()
	if res.StatusCode != http.StatusOK || !strings.HasPrefix(res.Header.Get("Content-Type"), "text/csv") {
		t.Fatalf("export = %d %s", res.StatusCode, res.Header.Get("Content-Type"))
	}
	if lines := strings.Count(buf.String(), "\n"); lines != 11 {
		t.Fatalf("export lines = %d, want header + 10", lines)
	}

	if resp, _ := doJSON(t, http.MethodGet, srv.URL+"/api/export?format=xml", token, nil); resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("bad format = %d", resp.StatusCode)
	}

	entries, _ := store.ListAudit(context.Background(), 0)
	actions := map[string]bool{}
	for _, e := range entries {
		actions[e.Action] = true
	}
	if !actions["admin_login"] || !actions["admin_login_failed"] || !actions["export"] {
		t.Fatalf("audit = %+v", entries)
	}
	resp, out = doJSON(t, http.MethodGet, srv.URL+"/api/admin/audit", token, nil)
	if resp.StatusCode != http.StatusOK || len(out["audit"].([]any)) != len(entries) {
		t.Fatalf("audit endpoint = %d %v", resp.StatusCode, out)
	}
}

func TestAdminDisabled(t *testing.T) {
	srv := newTestServer(t, NewMemoryStore(), false)
	if resp, _ := doJSON(t, http.MethodGet, srv.URL+"/api/submissions", "", nil); resp.StatusCode != http.StatusForbidden {
		t.Fatalf("listing without admin config = %d", resp.StatusCode)
	}
	if resp, _ := doJSON(t, http.MethodPost, srv.URL+"/api/admin/login", "", []byte(`{"password":"x"}`)); resp.StatusCode != http.StatusForbidden {
		t.Fatalf("login without admin config = %d", resp.StatusCode)
	}
}

type failingStore struct{ *MemoryStore }

func (failingStore) AddSubmission(context.Context, *SubmissionRecord) error {
	return errors.New("database is locked")
}

func (failingStore) CountSubmissions(context.Context) (int, error) {
	return 0, errors.New("database is locked")
}

func TestStoreFailuresAreHidden(t *testing.T) {
	srv := newTestServer(t, failingStore{NewMemoryStore()}, false)
	resp, out := doJSON(t, http.MethodPost, srv.URL+"/api/submit", "", payloadJSON(t, 10, nil))
	if resp.StatusCode != http.StatusInternalServerError || out["error"] != "Server error" {
		t.Fatalf("submit on failing store = %d %v", resp.StatusCode, out)
	}
	if resp, _ := doJSON(t, http.MethodGet, srv.URL+"/api/health", "", nil); resp.StatusCode != http.StatusInternalServerError {
		t.Fatalf("health on failing store = %d", resp.StatusCode)
	}
}

package api

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/soaringjerry/truthpref/internal/logger"
	"github.com/soaringjerry/truthpref/internal/middleware"
	"github.com/soaringjerry/truthpref/internal/models"
	"github.com/soaringjerry/truthpref/internal/services"
)

const maxSubmitBody = 1 << 20

type RouterConfig struct {
	ExpectedAnswers   int
	AdminPasswordHash string
	Commit            string
	BuildTime         string
}

type Router struct {
	store       Store
	auth        *middleware.Authenticator
	log         *logger.Logger
	cfg         RouterConfig
	submissions *services.SubmissionService
	admin       *services.AdminAuthService
	analytics   *services.AnalyticsService
	export      *services.ExportService
	now         func() time.Time
}

// NewRouter wires the services over store. A nil auth disables the admin
// endpoints.
func NewRouter(store Store, auth *middleware.Authenticator, log *logger.Logger, cfg RouterConfig) *Router {
	if log == nil {
		log = logger.NewNop()
	}
	adapter := newSubmissionStoreAdapter(store)
	var signer services.TokenSigner
	if auth != nil {
		signer = auth.SignToken
	}
	return &Router{
		store:       store,
		auth:        auth,
		log:         log.With("component", "api"),
		cfg:         cfg,
		submissions: services.NewSubmissionService(adapter, cfg.ExpectedAnswers),
		admin:       services.NewAdminAuthService(cfg.AdminPasswordHash, signer),
		analytics:   services.NewAnalyticsService(adapter),
		export:      services.NewExportService(adapter),
		now:         func() time.Time { return time.Now().UTC() },
	}
}

func (rt *Router) Register(mux *http.ServeMux) {
	mux.HandleFunc("/api/health", rt.handleHealth)          // GET
	mux.HandleFunc("/api/submit", rt.handleSubmit)          // POST
	mux.HandleFunc("/api/admin/login", rt.handleAdminLogin) // POST
	mux.Handle("/api/submissions", rt.requireAdmin(rt.handleSubmissions))
	mux.Handle("/api/submissions_v2", rt.requireAdmin(rt.handleSubmissions))
	mux.Handle("/api/export", rt.requireAdmin(rt.handleExport))
	mux.Handle("/api/analytics", rt.requireAdmin(rt.handleAnalytics))
	mux.Handle("/api/admin/audit", rt.requireAdmin(rt.handleAudit))
}

func (rt *Router) requireAdmin(h http.HandlerFunc) http.Handler {
	if rt.auth == nil || !rt.admin.Enabled() {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			writeError(w, http.StatusForbidden, "admin access disabled")
		})
	}
	return rt.auth.WithAuth(middleware.RequireAuth(h))
}

func allowMethod(w http.ResponseWriter, r *http.Request, method string) bool {
	if r.Method != method {
		w.Header().Set("Allow", method)
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return false
	}
	return true
}

func (rt *Router) audit(r *http.Request, action, target, note string) {
	actor, ok := middleware.SubjectFromContext(r.Context())
	if !ok {
		actor = "anonymous"
	}
	e := AuditEntry{Time: rt.now(), Actor: actor, Action: action, Target: target, Note: note}
	if err := rt.store.AddAudit(r.Context(), e); err != nil {
		rt.log.Warn("audit write failed", "action", action, "error", err)
	}
}

// GET /api/health
func (rt *Router) handleHealth(w http.ResponseWriter, r *http.Request) {
	if !allowMethod(w, r, http.MethodGet) {
		return
	}
	n, err := rt.submissions.Count(r.Context())
	if err != nil {
		rt.log.Error("health count failed", "error", err)
		writeError(w, http.StatusInternalServerError, "Server error")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"ok":         true,
		"count":      n,
		"commit":     rt.cfg.Commit,
		"build_time": rt.cfg.BuildTime,
	})
}

// POST /api/submit
func (rt *Router) handleSubmit(w http.ResponseWriter, r *http.Request) {
	if !allowMethod(w, r, http.MethodPost) {
		return
	}
	var payload models.SubmissionPayload
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxSubmitBody)).Decode(&payload); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid submission body.")
		return
	}
	sub, err := rt.submissions.Submit(r.Context(), payload)
	if err != nil {
		rt.log.Info("submission rejected", "error", err, "prolific_id", payload.Participant.ProlificID)
		rt.writeServiceError(w, r, err)
		return
	}
	rt.log.Info("submission stored", "submission_id", sub.ID, "prolific_id", payload.Participant.ProlificID, "seed", payload.Meta.Seed)
	writeJSON(w, http.StatusOK, map[string]any{"ok": true, "id": sub.ID})
}

// POST /api/admin/login {password}
func (rt *Router) handleAdminLogin(w http.ResponseWriter, r *http.Request) {
	if !allowMethod(w, r, http.MethodPost) {
		return
	}
	var req struct {
		Password string `json:"password"`
	}
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, 4096)).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid body")
		return
	}
	res, err := rt.admin.Login(req.Password)
	if err != nil {
		rt.audit(r, "admin_login_failed", "admin", "")
		rt.writeServiceError(w, r, err)
		return
	}
	rt.audit(r, "admin_login", "admin", "")
	writeJSON(w, http.StatusOK, map[string]any{"ok": true, "token": res.Token, "expires_in": int(res.ExpiresIn.Seconds())})
}

// GET /api/submissions
func (rt *Router) handleSubmissions(w http.ResponseWriter, r *http.Request) {
	if !allowMethod(w, r, http.MethodGet) {
		return
	}
	subs, err := rt.submissions.Recent(r.Context())
	if err != nil {
		rt.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"ok": true, "submissions": subs})
}

// GET /api/export?format=long|wide
func (rt *Router) handleExport(w http.ResponseWriter, r *http.Request) {
	if !allowMethod(w, r, http.MethodGet) {
		return
	}
	format := r.URL.Query().Get("format")
	res, err := rt.export.ExportCSV(r.Context(), services.ExportParams{Format: format})
	if err != nil {
		rt.writeServiceError(w, r, err)
		return
	}
	rt.audit(r, "export", "submissions", format)
	w.Header().Set("Content-Type", res.ContentType)
	w.Header().Set("Content-Disposition", "attachment; filename="+res.Filename)
	_, _ = w.Write(res.Data)
}

// GET /api/analytics
func (rt *Router) handleAnalytics(w http.ResponseWriter, r *http.Request) {
	if !allowMethod(w, r, http.MethodGet) {
		return
	}
	summary, err := rt.analytics.Summary(r.Context())
	if err != nil {
		rt.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, summary)
}

// GET /api/admin/audit
func (rt *Router) handleAudit(w http.ResponseWriter, r *http.Request) {
	if !allowMethod(w, r, http.MethodGet) {
		return
	}
	entries, err := rt.store.ListAudit(r.Context(), 500)
	if err != nil {
		rt.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"ok": true, "audit": entries})
}

package api

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/soaringjerry/truthpref/internal/services"
)

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]any{"ok": false, "error": msg})
}

// writeServiceError maps a ServiceError code to its HTTP status. Anything
// else is an internal failure and its text is not exposed.
func (rt *Router) writeServiceError(w http.ResponseWriter, r *http.Request, err error) {
	var se *services.ServiceError
	if errors.As(err, &se) {
		status := http.StatusBadRequest
		switch se.Code {
		case services.ErrorForbidden:
			status = http.StatusForbidden
		case services.ErrorNotFound:
			status = http.StatusNotFound
		case services.ErrorConflict:
			status = http.StatusConflict
		case services.ErrorUnauthorized:
			status = http.StatusUnauthorized
		}
		writeError(w, status, se.Message)
		return
	}
	rt.log.Error("request failed", "path", r.URL.Path, "error", err)
	writeError(w, http.StatusInternalServerError, "Server error")
}

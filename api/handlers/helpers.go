package handlers

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"

	"halligan-rms/core/auth"
	"halligan-rms/core/incidents"
)

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func readJSON(w http.ResponseWriter, r *http.Request, v any) bool {
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		http.Error(w, "bad request", http.StatusBadRequest)
		return false
	}
	return true
}

func urlParam(r *http.Request, key string) string {
	return chi.URLParam(r, key)
}

// requestActor builds the lifecycle actor from the user the session
// middleware resolved.
func requestActor(r *http.Request) incidents.Actor {
	return incidents.ActorFromUser(auth.UserFromContext(r.Context()))
}

// writeServiceError maps lifecycle errors onto HTTP statuses. Guard failures
// are conflicts, not client typos.
func writeServiceError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, incidents.ErrNotFound):
		http.Error(w, "not found", http.StatusNotFound)
	case errors.Is(err, incidents.ErrPermissionDenied):
		http.Error(w, "forbidden", http.StatusForbidden)
	case errors.Is(err, incidents.ErrInvalidTransition):
		http.Error(w, err.Error(), http.StatusConflict)
	case errors.Is(err, incidents.ErrConfirmationRequired):
		http.Error(w, "confirmation required", http.StatusBadRequest)
	case errors.Is(err, incidents.ErrMissingKey):
		http.Error(w, err.Error(), http.StatusBadRequest)
	default:
		http.Error(w, "server error", http.StatusInternalServerError)
	}
}

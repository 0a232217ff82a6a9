package handlers

import (
	"net/http"
	"time"

	"halligan-rms/core/incidents"
)

type ReportsHandler struct {
	svc *incidents.Service
}

func NewReportsHandler(svc *incidents.Service) *ReportsHandler {
	return &ReportsHandler{svc: svc}
}

func reportFilter(r *http.Request) incidents.Filter {
	q := r.URL.Query()
	f := incidents.Filter{
		IncidentType:    q.Get("type"),
		Status:          q.Get("status"),
		IncludeArchived: q.Get("include_archived") == "true",
	}
	if v := q.Get("from"); v != "" {
		if t, err := time.Parse("2006-01-02", v); err == nil {
			f.DateFrom = t
		}
	}
	if v := q.Get("to"); v != "" {
		if t, err := time.Parse("2006-01-02", v); err == nil {
			f.DateTo = t
		}
	}
	return f
}

func (h *ReportsHandler) ByType(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{"buckets": h.svc.CountByType(r.Context(), reportFilter(r))})
}

func (h *ReportsHandler) ByMonth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{"buckets": h.svc.CountByMonth(r.Context(), reportFilter(r))})
}

func (h *ReportsHandler) ResponseTimes(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, h.svc.ResponseTimes(r.Context(), reportFilter(r)))
}

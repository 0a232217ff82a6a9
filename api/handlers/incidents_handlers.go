package handlers

import (
	"net/http"
	"time"

	"halligan-rms/core/incidents"
	"halligan-rms/core/utils"
	"halligan-rms/core/workbook"
)

type IncidentsHandler struct {
	svc    *incidents.Service
	logger *utils.Logger
}

func NewIncidentsHandler(svc *incidents.Service, logger *utils.Logger) *IncidentsHandler {
	return &IncidentsHandler{svc: svc, logger: logger}
}

func (h *IncidentsHandler) List(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	f := incidents.Filter{
		IncidentType:     q.Get("type"),
		ResponsePriority: q.Get("priority"),
		Status:           q.Get("status"),
		CityContains:     q.Get("city"),
		IncludeArchived:  q.Get("include_archived") == "true",
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
	recs := h.svc.List(r.Context(), f)
	writeJSON(w, http.StatusOK, map[string]any{"incidents": recs, "count": len(recs)})
}

func (h *IncidentsHandler) Get(w http.ResponseWriter, r *http.Request) {
	rec, err := h.svc.Get(r.Context(), urlParam(r, "key"))
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, rec)
}

func (h *IncidentsHandler) SaveDraft(w http.ResponseWriter, r *http.Request) {
	var fields workbook.Record
	if !readJSON(w, r, &fields) {
		return
	}
	rec, err := h.svc.SaveDraft(r.Context(), requestActor(r), fields)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, rec)
}

type reviewPayload struct {
	Comments string `json:"comments"`
}

func (h *IncidentsHandler) Submit(w http.ResponseWriter, r *http.Request) {
	rec, err := h.svc.Submit(r.Context(), requestActor(r), urlParam(r, "key"))
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, rec)
}

func (h *IncidentsHandler) Approve(w http.ResponseWriter, r *http.Request) {
	var p reviewPayload
	if !readJSON(w, r, &p) {
		return
	}
	rec, err := h.svc.Approve(r.Context(), requestActor(r), urlParam(r, "key"), p.Comments)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, rec)
}

func (h *IncidentsHandler) Reject(w http.ResponseWriter, r *http.Request) {
	var p reviewPayload
	if !readJSON(w, r, &p) {
		return
	}
	rec, err := h.svc.Reject(r.Context(), requestActor(r), urlParam(r, "key"), p.Comments)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, rec)
}

func (h *IncidentsHandler) SendBack(w http.ResponseWriter, r *http.Request) {
	var p reviewPayload
	if !readJSON(w, r, &p) {
		return
	}
	rec, err := h.svc.SendBack(r.Context(), requestActor(r), urlParam(r, "key"), p.Comments)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, rec)
}

func (h *IncidentsHandler) Reopen(w http.ResponseWriter, r *http.Request) {
	rec, err := h.svc.ReopenRejected(r.Context(), requestActor(r), urlParam(r, "key"))
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, rec)
}

func (h *IncidentsHandler) Archive(w http.ResponseWriter, r *http.Request) {
	rec, err := h.svc.Archive(r.Context(), requestActor(r), urlParam(r, "key"))
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, rec)
}

// Purge requires ?confirm=true; the service refuses otherwise.
func (h *IncidentsHandler) Purge(w http.ResponseWriter, r *http.Request) {
	key := urlParam(r, "key")
	confirmed := r.URL.Query().Get("confirm") == "true"
	if err := h.svc.PurgeArchived(r.Context(), requestActor(r), key, confirmed); err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"deleted": key})
}

func (h *IncidentsHandler) Snapshot(w http.ResponseWriter, r *http.Request) {
	b, err := h.svc.Snapshot(r.Context(), urlParam(r, "key"))
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, b)
}

func (h *IncidentsHandler) ListChildren(w http.ResponseWriter, r *http.Request) {
	rows, err := h.svc.ListChildren(r.Context(), urlParam(r, "sheet"), urlParam(r, "key"))
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"rows": rows, "count": len(rows)})
}

func (h *IncidentsHandler) AddChildRow(w http.ResponseWriter, r *http.Request) {
	var fields workbook.Record
	if !readJSON(w, r, &fields) {
		return
	}
	err := h.svc.AddChildRow(r.Context(), requestActor(r), urlParam(r, "sheet"), urlParam(r, "key"), fields)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, map[string]any{"added": 1})
}

type assignPersonnelPayload struct {
	Names       []string `json:"names"`
	Role        string   `json:"role"`
	Hours       float64  `json:"hours"`
	RespondedIn string   `json:"responded_in"`
}

func (h *IncidentsHandler) AssignPersonnel(w http.ResponseWriter, r *http.Request) {
	var p assignPersonnelPayload
	if !readJSON(w, r, &p) {
		return
	}
	n, err := h.svc.AssignPersonnel(r.Context(), requestActor(r), urlParam(r, "key"), p.Names, p.Role, p.Hours, p.RespondedIn)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, map[string]any{"added": n})
}

type assignApparatusPayload struct {
	Units    []string `json:"units"`
	UnitType string   `json:"unit_type"`
	Role     string   `json:"role"`
	Actions  []string `json:"actions"`
}

func (h *IncidentsHandler) AssignApparatus(w http.ResponseWriter, r *http.Request) {
	var p assignApparatusPayload
	if !readJSON(w, r, &p) {
		return
	}
	n, err := h.svc.AssignApparatus(r.Context(), requestActor(r), urlParam(r, "key"), p.Units, p.UnitType, p.Role, p.Actions)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, map[string]any{"added": n})
}

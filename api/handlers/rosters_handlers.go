package handlers

import (
	"net/http"

	"halligan-rms/core/incidents"
	"halligan-rms/core/workbook"
)

type RostersHandler struct {
	svc *incidents.Service
}

func NewRostersHandler(svc *incidents.Service) *RostersHandler {
	return &RostersHandler{svc: svc}
}

// rosterSheet maps the URL segment onto the workbook sheet name.
func rosterSheet(r *http.Request) string {
	switch urlParam(r, "sheet") {
	case "personnel":
		return workbook.SheetRosterPersonnel
	case "apparatus":
		return workbook.SheetRosterApparatus
	default:
		return ""
	}
}

func (h *RostersHandler) List(w http.ResponseWriter, r *http.Request) {
	sheet := rosterSheet(r)
	if sheet == "" {
		http.Error(w, "unknown roster", http.StatusNotFound)
		return
	}
	rows, err := h.svc.ListRoster(r.Context(), sheet)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"rows": rows, "count": len(rows)})
}

func (h *RostersHandler) Save(w http.ResponseWriter, r *http.Request) {
	sheet := rosterSheet(r)
	if sheet == "" {
		http.Error(w, "unknown roster", http.StatusNotFound)
		return
	}
	var fields workbook.Record
	if !readJSON(w, r, &fields) {
		return
	}
	rec, err := h.svc.SaveRosterEntry(r.Context(), requestActor(r), sheet, fields)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, rec)
}

type rosterReplacePayload struct {
	Rows []workbook.Record `json:"rows"`
}

func (h *RostersHandler) Replace(w http.ResponseWriter, r *http.Request) {
	sheet := rosterSheet(r)
	if sheet == "" {
		http.Error(w, "unknown roster", http.StatusNotFound)
		return
	}
	var p rosterReplacePayload
	if !readJSON(w, r, &p) {
		return
	}
	if err := h.svc.ReplaceRoster(r.Context(), requestActor(r), sheet, p.Rows); err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"rows": len(p.Rows)})
}

func (h *RostersHandler) Lookups(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, h.svc.Lookups(r.Context()))
}

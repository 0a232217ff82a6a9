package handlers

import (
	"fmt"
	"net/http"
	"time"

	"halligan-rms/core/auth"
	"halligan-rms/core/autosave"
	"halligan-rms/core/store"
	"halligan-rms/core/utils"
	"halligan-rms/core/workbook"
)

type WorkbookHandler struct {
	wb       *workbook.Store
	autosave *autosave.Scheduler
	audits   store.AuditStore
	logger   *utils.Logger
}

func NewWorkbookHandler(wb *workbook.Store, as *autosave.Scheduler, audits store.AuditStore, logger *utils.Logger) *WorkbookHandler {
	return &WorkbookHandler{wb: wb, autosave: as, audits: audits, logger: logger}
}

func (h *WorkbookHandler) Health(w http.ResponseWriter, r *http.Request) {
	resp := map[string]any{
		"status": "ok",
		"sheets": len(h.wb.SortedNames()),
	}
	if h.autosave != nil {
		saves, fails := h.autosave.Counts()
		resp["autosave_saves"] = saves
		resp["autosave_fails"] = fails
	}
	writeJSON(w, http.StatusOK, resp)
}

// Save persists the live table set to the backing file. All-or-nothing: on
// failure the file keeps its previous content and the client gets a 500.
func (h *WorkbookHandler) Save(w http.ResponseWriter, r *http.Request) {
	if err := h.wb.Persist(); err != nil {
		if h.logger != nil {
			h.logger.Errorf("workbook save failed: %v", err)
		}
		http.Error(w, "save failed", http.StatusInternalServerError)
		return
	}
	h.auditAction(r, "workbook.save", "")
	writeJSON(w, http.StatusOK, map[string]any{"saved": h.wb.Path()})
}

// Export streams the current table set as an xlsx download without touching
// the backing file.
func (h *WorkbookHandler) Export(w http.ResponseWriter, r *http.Request) {
	data, err := h.wb.ExportBytes()
	if err != nil {
		if h.logger != nil {
			h.logger.Errorf("workbook export failed: %v", err)
		}
		http.Error(w, "export failed", http.StatusInternalServerError)
		return
	}
	name := fmt.Sprintf("incident_records_%s.xlsx", time.Now().UTC().Format("20060102_150405"))
	w.Header().Set("Content-Type", "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet")
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", name))
	_, _ = w.Write(data)
	h.auditAction(r, "workbook.export", name)
}

// Reload discards the in-memory table set and rereads the backing file.
// Unsaved edits are lost, which is the point: this is the recovery path
// after an external edit of the workbook.
func (h *WorkbookHandler) Reload(w http.ResponseWriter, r *http.Request) {
	if err := h.wb.Load(); err != nil {
		http.Error(w, "reload failed: "+err.Error(), http.StatusConflict)
		return
	}
	h.auditAction(r, "workbook.reload", "")
	writeJSON(w, http.StatusOK, map[string]any{"sheets": h.wb.SortedNames()})
}

func (h *WorkbookHandler) auditAction(r *http.Request, action, detail string) {
	if h.audits == nil {
		return
	}
	actor := ""
	if sr := auth.SessionFromContext(r.Context()); sr != nil {
		actor = sr.Username
	}
	_ = h.audits.Append(r.Context(), &store.AuditEntry{
		Actor:  actor,
		Action: action,
		Entity: "workbook",
		Detail: detail,
	})
}

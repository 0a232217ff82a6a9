package handlers

import (
	"net/http"
	"strconv"

	"halligan-rms/core/store"
)

type AuditHandler struct {
	audits store.AuditStore
}

func NewAuditHandler(audits store.AuditStore) *AuditHandler {
	return &AuditHandler{audits: audits}
}

func (h *AuditHandler) List(w http.ResponseWriter, r *http.Request) {
	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
	entries, err := h.audits.List(r.Context(), limit)
	if err != nil {
		http.Error(w, "server error", http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"entries": entries, "count": len(entries)})
}

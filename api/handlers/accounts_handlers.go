package handlers

import (
	"errors"
	"net/http"
	"strconv"
	"strings"

	"halligan-rms/config"
	"halligan-rms/core/auth"
	"halligan-rms/core/rbac"
	"halligan-rms/core/store"
	"halligan-rms/core/utils"
)

type AccountsHandler struct {
	cfg      *config.AppConfig
	users    store.UsersStore
	sessions store.SessionStore
	audits   store.AuditStore
	logger   *utils.Logger
}

func NewAccountsHandler(cfg *config.AppConfig, users store.UsersStore, sessions store.SessionStore, audits store.AuditStore, logger *utils.Logger) *AccountsHandler {
	return &AccountsHandler{cfg: cfg, users: users, sessions: sessions, audits: audits, logger: logger}
}

func (h *AccountsHandler) List(w http.ResponseWriter, r *http.Request) {
	users, err := h.users.List(r.Context())
	if err != nil {
		http.Error(w, "server error", http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"users": users, "count": len(users)})
}

type accountPayload struct {
	Username         string `json:"username"`
	FullName         string `json:"full_name"`
	Password         string `json:"password"`
	Role             string `json:"role"`
	Active           *bool  `json:"active"`
	CanWrite         *bool  `json:"can_write"`
	CanReview        *bool  `json:"can_review"`
	CanApprove       *bool  `json:"can_approve"`
	CanDeleteArchive *bool  `json:"can_delete_archive"`
}

func validRole(role string) bool {
	switch role {
	case rbac.RoleAdmin, rbac.RoleReviewer, rbac.RoleMember:
		return true
	}
	return false
}

func (h *AccountsHandler) Create(w http.ResponseWriter, r *http.Request) {
	var p accountPayload
	if !readJSON(w, r, &p) {
		return
	}
	p.Username = strings.ToLower(strings.TrimSpace(p.Username))
	if p.Username == "" || len(p.Password) < 8 {
		http.Error(w, "username and a password of at least 8 characters required", http.StatusBadRequest)
		return
	}
	role := strings.ToLower(strings.TrimSpace(p.Role))
	if role == "" {
		role = rbac.RoleMember
	}
	if !validRole(role) {
		http.Error(w, "unknown role", http.StatusBadRequest)
		return
	}
	if existing, err := h.users.FindByUsername(r.Context(), p.Username); err == nil && existing != nil {
		http.Error(w, "username taken", http.StatusConflict)
		return
	}
	ph, err := auth.HashPassword(p.Password, h.cfg.Pepper)
	if err != nil {
		http.Error(w, "server error", http.StatusInternalServerError)
		return
	}
	u := &store.User{
		Username:         p.Username,
		FullName:         p.FullName,
		PasswordHash:     ph.Hash,
		Salt:             ph.Salt,
		PasswordSet:      true,
		Role:             role,
		Active:           true,
		CanWrite:         p.CanWrite,
		CanReview:        p.CanReview,
		CanApprove:       p.CanApprove,
		CanDeleteArchive: p.CanDeleteArchive,
	}
	if _, err := h.users.Create(r.Context(), u); err != nil {
		if h.logger != nil {
			h.logger.Errorf("account create failed: %v", err)
		}
		http.Error(w, "server error", http.StatusInternalServerError)
		return
	}
	h.auditAccount(r, "account.create", u.Username)
	writeJSON(w, http.StatusCreated, u)
}

func (h *AccountsHandler) Update(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseInt(urlParam(r, "id"), 10, 64)
	if err != nil {
		http.Error(w, "bad id", http.StatusBadRequest)
		return
	}
	user, err := h.users.Get(r.Context(), id)
	if err != nil || user == nil {
		http.Error(w, "not found", http.StatusNotFound)
		return
	}
	var p accountPayload
	if !readJSON(w, r, &p) {
		return
	}
	if p.FullName != "" {
		user.FullName = p.FullName
	}
	if role := strings.ToLower(strings.TrimSpace(p.Role)); role != "" {
		if !validRole(role) {
			http.Error(w, "unknown role", http.StatusBadRequest)
			return
		}
		user.Role = role
	}
	if p.Password != "" {
		if len(p.Password) < 8 {
			http.Error(w, "password too short", http.StatusBadRequest)
			return
		}
		ph, err := auth.HashPassword(p.Password, h.cfg.Pepper)
		if err != nil {
			http.Error(w, "server error", http.StatusInternalServerError)
			return
		}
		user.PasswordHash = ph.Hash
		user.Salt = ph.Salt
		user.PasswordSet = true
		user.RequirePasswordChange = true
		_ = h.sessions.RevokeAllForUser(r.Context(), user.ID, actorName(r))
	}
	user.CanWrite = p.CanWrite
	user.CanReview = p.CanReview
	user.CanApprove = p.CanApprove
	user.CanDeleteArchive = p.CanDeleteArchive
	if err := h.users.Update(r.Context(), user); err != nil {
		if errors.Is(err, store.ErrConflict) {
			http.Error(w, "conflict", http.StatusConflict)
			return
		}
		http.Error(w, "server error", http.StatusInternalServerError)
		return
	}
	h.auditAccount(r, "account.update", user.Username)
	writeJSON(w, http.StatusOK, user)
}

// SetActive toggles an account. Deactivation revokes every live session so
// the lockout is immediate, not at next login.
func (h *AccountsHandler) SetActive(active bool) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, err := strconv.ParseInt(urlParam(r, "id"), 10, 64)
		if err != nil {
			http.Error(w, "bad id", http.StatusBadRequest)
			return
		}
		user, err := h.users.Get(r.Context(), id)
		if err != nil || user == nil {
			http.Error(w, "not found", http.StatusNotFound)
			return
		}
		if actor := auth.UserFromContext(r.Context()); !active && actor != nil && actor.ID == id {
			http.Error(w, "cannot deactivate own account", http.StatusBadRequest)
			return
		}
		if err := h.users.SetActive(r.Context(), id, active); err != nil {
			http.Error(w, "server error", http.StatusInternalServerError)
			return
		}
		if !active {
			_ = h.sessions.RevokeAllForUser(r.Context(), id, actorName(r))
		}
		action := "account.deactivate"
		if active {
			action = "account.activate"
		}
		h.auditAccount(r, action, user.Username)
		writeJSON(w, http.StatusOK, map[string]any{"ok": true})
	}
}

func actorName(r *http.Request) string {
	if sr := auth.SessionFromContext(r.Context()); sr != nil {
		return sr.Username
	}
	return ""
}

func (h *AccountsHandler) auditAccount(r *http.Request, action, target string) {
	if h.audits == nil {
		return
	}
	_ = h.audits.Append(r.Context(), &store.AuditEntry{
		Actor:     actorName(r),
		Action:    action,
		Entity:    "account",
		EntityKey: target,
	})
}

package handlers

import (
	"net/http"
	"strings"
	"time"

	"halligan-rms/config"
	"halligan-rms/core/auth"
	"halligan-rms/core/rbac"
	"halligan-rms/core/store"
	"halligan-rms/core/utils"
)

type AuthHandler struct {
	cfg            *config.AppConfig
	users          store.UsersStore
	sessions       store.SessionStore
	sessionManager *auth.SessionManager
	policy         *rbac.Policy
	audits         store.AuditStore
	logger         *utils.Logger
}

func NewAuthHandler(cfg *config.AppConfig, users store.UsersStore, sessions store.SessionStore, sm *auth.SessionManager, policy *rbac.Policy, audits store.AuditStore, logger *utils.Logger) *AuthHandler {
	return &AuthHandler{cfg: cfg, users: users, sessions: sessions, sessionManager: sm, policy: policy, audits: audits, logger: logger}
}

func (h *AuthHandler) Login(w http.ResponseWriter, r *http.Request) {
	var cred auth.Credentials
	if !readJSON(w, r, &cred) {
		return
	}
	cred.Username = strings.ToLower(strings.TrimSpace(cred.Username))
	user, err := h.users.FindByUsername(r.Context(), cred.Username)
	if err != nil || user == nil || !user.Active {
		h.auditLogin(r, cred.Username, "auth.login_failed", "user missing or inactive")
		http.Error(w, "invalid credentials", http.StatusUnauthorized)
		return
	}
	if !auth.VerifyPassword(cred.Password, h.cfg.Pepper, user.PasswordHash, user.Salt) {
		h.auditLogin(r, cred.Username, "auth.login_failed", "invalid password")
		http.Error(w, "invalid credentials", http.StatusUnauthorized)
		return
	}
	sess, err := h.sessionManager.Create(r.Context(), user, clientIP(r), r.UserAgent())
	if err != nil {
		if h.logger != nil {
			h.logger.Errorf("session create failed for %s: %v", cred.Username, err)
		}
		http.Error(w, "server error", http.StatusInternalServerError)
		return
	}
	h.auditLogin(r, user.Username, "auth.login_success", "")
	setSessionCookies(w, sess)
	writeJSON(w, http.StatusOK, map[string]any{
		"user":        user,
		"permissions": h.effectivePermissions(user),
		"csrf_token":  sess.CSRFToken,
	})
}

func (h *AuthHandler) Logout(w http.ResponseWriter, r *http.Request) {
	sr := auth.SessionFromContext(r.Context())
	if sr != nil {
		_ = h.sessions.DeleteSession(r.Context(), sr.ID, sr.Username)
		h.auditLogin(r, sr.Username, "auth.logout", "")
	}
	clearSessionCookies(w)
	writeJSON(w, http.StatusOK, map[string]any{"ok": true})
}

func (h *AuthHandler) Me(w http.ResponseWriter, r *http.Request) {
	user := auth.UserFromContext(r.Context())
	if user == nil {
		http.Error(w, "unauthorized", http.StatusUnauthorized)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"user":        user,
		"permissions": h.effectivePermissions(user),
	})
}

type changePasswordPayload struct {
	Current string `json:"current_password"`
	New     string `json:"new_password"`
}

func (h *AuthHandler) ChangePassword(w http.ResponseWriter, r *http.Request) {
	user := auth.UserFromContext(r.Context())
	if user == nil {
		http.Error(w, "unauthorized", http.StatusUnauthorized)
		return
	}
	var p changePasswordPayload
	if !readJSON(w, r, &p) {
		return
	}
	if len(p.New) < 8 {
		http.Error(w, "password too short", http.StatusBadRequest)
		return
	}
	if !auth.VerifyPassword(p.Current, h.cfg.Pepper, user.PasswordHash, user.Salt) {
		http.Error(w, "invalid credentials", http.StatusUnauthorized)
		return
	}
	ph, err := auth.HashPassword(p.New, h.cfg.Pepper)
	if err != nil {
		http.Error(w, "server error", http.StatusInternalServerError)
		return
	}
	user.PasswordHash = ph.Hash
	user.Salt = ph.Salt
	user.PasswordSet = true
	user.RequirePasswordChange = false
	if err := h.users.Update(r.Context(), user); err != nil {
		http.Error(w, "server error", http.StatusInternalServerError)
		return
	}
	// Other sessions die with the old password.
	sr := auth.SessionFromContext(r.Context())
	_ = h.sessions.RevokeAllForUser(r.Context(), user.ID, user.Username)
	if sr != nil {
		if fresh, err := h.sessionManager.Create(r.Context(), user, sr.IP, sr.UserAgent); err == nil {
			setSessionCookies(w, fresh)
		}
	}
	h.auditLogin(r, user.Username, "auth.password_changed", "")
	writeJSON(w, http.StatusOK, map[string]any{"ok": true})
}

func (h *AuthHandler) effectivePermissions(user *store.User) []rbac.Permission {
	caps := rbac.Capabilities{
		Write:         user.CanWrite,
		Review:        user.CanReview,
		Approve:       user.CanApprove,
		DeleteArchive: user.CanDeleteArchive,
	}
	var out []rbac.Permission
	for _, perm := range []rbac.Permission{
		rbac.PermWrite, rbac.PermReview, rbac.PermApprove, rbac.PermDeleteArchive,
		rbac.PermManageAccounts, rbac.PermViewAudit, rbac.PermSaveWorkbook,
	} {
		if h.policy.AllowedFor(user.Role, caps, perm) {
			out = append(out, perm)
		}
	}
	return out
}

func (h *AuthHandler) auditLogin(r *http.Request, actor, action, detail string) {
	if h.audits == nil {
		return
	}
	_ = h.audits.Append(r.Context(), &store.AuditEntry{
		Actor:  actor,
		Action: action,
		Entity: "auth",
		Detail: detail,
	})
}

const (
	sessionCookieName = "halligan_session"
	csrfCookieName    = "halligan_csrf"
)

func setSessionCookies(w http.ResponseWriter, sess *store.SessionRecord) {
	http.SetCookie(w, &http.Cookie{
		Name:     sessionCookieName,
		Value:    sess.ID,
		Path:     "/",
		HttpOnly: true,
		SameSite: http.SameSiteLaxMode,
		Expires:  sess.ExpiresAt,
	})
	http.SetCookie(w, &http.Cookie{
		Name:     csrfCookieName,
		Value:    sess.CSRFToken,
		Path:     "/",
		HttpOnly: false,
		SameSite: http.SameSiteLaxMode,
		Expires:  sess.ExpiresAt,
	})
}

func clearSessionCookies(w http.ResponseWriter) {
	expired := time.Unix(0, 0)
	http.SetCookie(w, &http.Cookie{Name: sessionCookieName, Value: "", Path: "/", HttpOnly: true, Expires: expired})
	http.SetCookie(w, &http.Cookie{Name: csrfCookieName, Value: "", Path: "/", Expires: expired})
}

func clientIP(r *http.Request) string {
	host := r.RemoteAddr
	if i := strings.LastIndex(host, ":"); i > 0 {
		host = host[:i]
	}
	return strings.Trim(host, "[]")
}

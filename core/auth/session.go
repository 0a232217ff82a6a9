package auth

import (
	"context"
	"errors"

	"github.com/gofrs/uuid/v5"

	"halligan-rms/config"
	"halligan-rms/core/store"
	"halligan-rms/core/utils"
)

type contextKey string

// SessionContextKey carries the *store.SessionRecord through request context.
const SessionContextKey contextKey = "halligan.session"

// UserContextKey carries the authenticated *store.User, resolved once per
// request by the session middleware.
const UserContextKey contextKey = "halligan.user"

// UserFromContext extracts the authenticated user, if any.
func UserFromContext(ctx context.Context) *store.User {
	if v := ctx.Value(UserContextKey); v != nil {
		if u, ok := v.(*store.User); ok {
			return u
		}
	}
	return nil
}

type Credentials struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

type SessionManager struct {
	store  store.SessionStore
	cfg    *config.AppConfig
	logger *utils.Logger
}

func NewSessionManager(st store.SessionStore, cfg *config.AppConfig, logger *utils.Logger) *SessionManager {
	return &SessionManager{store: st, cfg: cfg, logger: logger}
}

func (m *SessionManager) Create(ctx context.Context, user *store.User, ip, userAgent string) (*store.SessionRecord, error) {
	id := uuid.Must(uuid.NewV4()).String()
	csrf, err := utils.RandString(32)
	if err != nil {
		return nil, err
	}
	now := utils.NowUTC()
	sr := &store.SessionRecord{
		ID:         id,
		UserID:     user.ID,
		Username:   user.Username,
		Role:       user.Role,
		IP:         ip,
		UserAgent:  userAgent,
		CSRFToken:  csrf,
		CreatedAt:  now,
		LastSeenAt: now,
		ExpiresAt:  now.Add(m.cfg.EffectiveSessionTTL()),
	}
	if err := m.store.SaveSession(ctx, sr); err != nil {
		return nil, err
	}
	return sr, nil
}

func (m *SessionManager) Refresh(ctx context.Context, sessID string) error {
	return m.store.UpdateActivity(ctx, sessID, utils.NowUTC(), m.cfg.EffectiveSessionTTL())
}

func (m *SessionManager) Rotate(ctx context.Context, sessID string) (*store.SessionRecord, error) {
	old, err := m.store.GetSession(ctx, sessID)
	if err != nil {
		return nil, err
	}
	if old == nil {
		return nil, errors.New("session not found")
	}
	_ = m.store.DeleteSession(ctx, sessID, old.Username)
	return m.Create(ctx, &store.User{ID: old.UserID, Username: old.Username, Role: old.Role}, old.IP, old.UserAgent)
}

func (m *SessionManager) Delete(ctx context.Context, sessID string) error {
	return m.store.DeleteSession(ctx, sessID, "")
}

// SessionFromContext extracts the authenticated session, if any.
func SessionFromContext(ctx context.Context) *store.SessionRecord {
	if v := ctx.Value(SessionContextKey); v != nil {
		if sr, ok := v.(*store.SessionRecord); ok {
			return sr
		}
	}
	return nil
}

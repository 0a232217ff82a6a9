package store

import (
	"context"
	"database/sql"
	"errors"
	"time"
)

type SessionRecord struct {
	ID         string    `json:"id"`
	UserID     int64     `json:"user_id"`
	Username   string    `json:"username"`
	Role       string    `json:"role"`
	IP         string    `json:"ip"`
	UserAgent  string    `json:"user_agent"`
	CSRFToken  string    `json:"-"`
	CreatedAt  time.Time `json:"created_at"`
	LastSeenAt time.Time `json:"last_seen_at"`
	ExpiresAt  time.Time `json:"expires_at"`
}

type SessionStore interface {
	SaveSession(ctx context.Context, sr *SessionRecord) error
	GetSession(ctx context.Context, id string) (*SessionRecord, error)
	DeleteSession(ctx context.Context, id, revokedBy string) error
	UpdateActivity(ctx context.Context, id string, now time.Time, ttl time.Duration) error
	RevokeAllForUser(ctx context.Context, userID int64, revokedBy string) error
	PurgeExpired(ctx context.Context, now time.Time) (int64, error)
}

type sessionsStore struct {
	db *sql.DB
}

func NewSessionsStore(db *sql.DB) SessionStore {
	return &sessionsStore{db: db}
}

func (s *sessionsStore) SaveSession(ctx context.Context, sr *SessionRecord) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO sessions(id, user_id, username, role, ip, user_agent, csrf_token, created_at, last_seen_at, expires_at, revoked, revoked_by)
		VALUES(?,?,?,?,?,?,?,?,?,?,0,'')`,
		sr.ID, sr.UserID, sr.Username, sr.Role, sr.IP, sr.UserAgent, sr.CSRFToken, sr.CreatedAt, sr.LastSeenAt, sr.ExpiresAt)
	return err
}

// GetSession returns nil for unknown, revoked or expired sessions.
func (s *sessionsStore) GetSession(ctx context.Context, id string) (*SessionRecord, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, user_id, username, role, ip, user_agent, csrf_token, created_at, last_seen_at, expires_at
		FROM sessions WHERE id=? AND revoked=0`, id)
	var sr SessionRecord
	if err := row.Scan(&sr.ID, &sr.UserID, &sr.Username, &sr.Role, &sr.IP, &sr.UserAgent, &sr.CSRFToken, &sr.CreatedAt, &sr.LastSeenAt, &sr.ExpiresAt); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	if time.Now().UTC().After(sr.ExpiresAt) {
		return nil, nil
	}
	return &sr, nil
}

func (s *sessionsStore) DeleteSession(ctx context.Context, id, revokedBy string) error {
	_, err := s.db.ExecContext(ctx, `UPDATE sessions SET revoked=1, revoked_by=? WHERE id=?`, revokedBy, id)
	return err
}

func (s *sessionsStore) UpdateActivity(ctx context.Context, id string, now time.Time, ttl time.Duration) error {
	_, err := s.db.ExecContext(ctx, `UPDATE sessions SET last_seen_at=?, expires_at=? WHERE id=? AND revoked=0`,
		now, now.Add(ttl), id)
	return err
}

func (s *sessionsStore) RevokeAllForUser(ctx context.Context, userID int64, revokedBy string) error {
	_, err := s.db.ExecContext(ctx, `UPDATE sessions SET revoked=1, revoked_by=? WHERE user_id=? AND revoked=0`,
		revokedBy, userID)
	return err
}

func (s *sessionsStore) PurgeExpired(ctx context.Context, now time.Time) (int64, error) {
	res, err := s.db.ExecContext(ctx, `DELETE FROM sessions WHERE expires_at < ?`, now)
	if err != nil {
		return 0, err
	}
	n, _ := res.RowsAffected()
	return n, nil
}

package store

import (
	"context"
	"database/sql"
	"errors"
	"strings"
	"time"
)

// User is an account in the system database. Role picks the capability
// preset; the Can* pointers are per-user overrides that beat the preset in
// either direction when non-nil.
type User struct {
	ID                    int64      `json:"id"`
	Username              string     `json:"username"`
	FullName              string     `json:"full_name"`
	PasswordHash          string     `json:"-"`
	Salt                  string     `json:"-"`
	PasswordSet           bool       `json:"password_set"`
	Role                  string     `json:"role"`
	Active                bool       `json:"active"`
	CanWrite              *bool      `json:"can_write,omitempty"`
	CanReview             *bool      `json:"can_review,omitempty"`
	CanApprove            *bool      `json:"can_approve,omitempty"`
	CanDeleteArchive      *bool      `json:"can_delete_archive,omitempty"`
	RequirePasswordChange bool       `json:"require_password_change"`
	CreatedAt             time.Time  `json:"created_at"`
	UpdatedAt             time.Time  `json:"updated_at"`
}

type UsersStore interface {
	Create(ctx context.Context, u *User) (int64, error)
	Update(ctx context.Context, u *User) error
	Get(ctx context.Context, id int64) (*User, error)
	FindByUsername(ctx context.Context, username string) (*User, error)
	List(ctx context.Context) ([]User, error)
	SetActive(ctx context.Context, id int64, active bool) error
	Count(ctx context.Context) (int, error)
}

type usersStore struct {
	db *sql.DB
}

func NewUsersStore(db *sql.DB) UsersStore {
	return &usersStore{db: db}
}

const userColumns = `id, username, full_name, password_hash, salt, password_set, role, active,
	can_write, can_review, can_approve, can_delete_archive, require_password_change, created_at, updated_at`

func (s *usersStore) Create(ctx context.Context, u *User) (int64, error) {
	now := time.Now().UTC()
	if strings.TrimSpace(u.Role) == "" {
		u.Role = "member"
	}
	res, err := s.db.ExecContext(ctx, `
		INSERT INTO users(username, full_name, password_hash, salt, password_set, role, active,
			can_write, can_review, can_approve, can_delete_archive, require_password_change, created_at, updated_at)
		VALUES(?,?,?,?,?,?,?,?,?,?,?,?,?,?)`,
		strings.ToLower(strings.TrimSpace(u.Username)), u.FullName, u.PasswordHash, u.Salt, boolToInt(u.PasswordSet),
		strings.ToLower(u.Role), boolToInt(u.Active),
		nullableBool(u.CanWrite), nullableBool(u.CanReview), nullableBool(u.CanApprove), nullableBool(u.CanDeleteArchive),
		boolToInt(u.RequirePasswordChange), now, now)
	if err != nil {
		return 0, err
	}
	id, _ := res.LastInsertId()
	u.ID = id
	u.CreatedAt = now
	u.UpdatedAt = now
	return id, nil
}

func (s *usersStore) Update(ctx context.Context, u *User) error {
	now := time.Now().UTC()
	res, err := s.db.ExecContext(ctx, `
		UPDATE users SET full_name=?, password_hash=?, salt=?, password_set=?, role=?, active=?,
			can_write=?, can_review=?, can_approve=?, can_delete_archive=?, require_password_change=?, updated_at=?
		WHERE id=?`,
		u.FullName, u.PasswordHash, u.Salt, boolToInt(u.PasswordSet), strings.ToLower(u.Role), boolToInt(u.Active),
		nullableBool(u.CanWrite), nullableBool(u.CanReview), nullableBool(u.CanApprove), nullableBool(u.CanDeleteArchive),
		boolToInt(u.RequirePasswordChange), now, u.ID)
	if err != nil {
		return err
	}
	if affected, _ := res.RowsAffected(); affected == 0 {
		return ErrConflict
	}
	u.UpdatedAt = now
	return nil
}

func (s *usersStore) Get(ctx context.Context, id int64) (*User, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+userColumns+` FROM users WHERE id=?`, id)
	return scanUser(row)
}

func (s *usersStore) FindByUsername(ctx context.Context, username string) (*User, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+userColumns+` FROM users WHERE username=?`,
		strings.ToLower(strings.TrimSpace(username)))
	return scanUser(row)
}

func (s *usersStore) List(ctx context.Context) ([]User, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT `+userColumns+` FROM users ORDER BY username ASC`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var res []User
	for rows.Next() {
		u, err := scanUserRow(rows)
		if err != nil {
			return nil, err
		}
		res = append(res, u)
	}
	return res, rows.Err()
}

func (s *usersStore) SetActive(ctx context.Context, id int64, active bool) error {
	res, err := s.db.ExecContext(ctx, `UPDATE users SET active=?, updated_at=? WHERE id=?`,
		boolToInt(active), time.Now().UTC(), id)
	if err != nil {
		return err
	}
	if affected, _ := res.RowsAffected(); affected == 0 {
		return ErrConflict
	}
	return nil
}

func (s *usersStore) Count(ctx context.Context) (int, error) {
	var n int
	err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM users`).Scan(&n)
	return n, err
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanUserInto(sc rowScanner) (User, error) {
	var u User
	var passwordSet, active, reqChange int
	var canWrite, canReview, canApprove, canDeleteArchive sql.NullInt64
	err := sc.Scan(&u.ID, &u.Username, &u.FullName, &u.PasswordHash, &u.Salt, &passwordSet, &u.Role, &active,
		&canWrite, &canReview, &canApprove, &canDeleteArchive, &reqChange, &u.CreatedAt, &u.UpdatedAt)
	if err != nil {
		return u, err
	}
	u.PasswordSet = passwordSet == 1
	u.Active = active == 1
	u.RequirePasswordChange = reqChange == 1
	u.CanWrite = boolPtr(canWrite)
	u.CanReview = boolPtr(canReview)
	u.CanApprove = boolPtr(canApprove)
	u.CanDeleteArchive = boolPtr(canDeleteArchive)
	return u, nil
}

func scanUser(row *sql.Row) (*User, error) {
	u, err := scanUserInto(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	return &u, nil
}

func scanUserRow(rows *sql.Rows) (User, error) {
	return scanUserInto(rows)
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

func nullableBool(b *bool) any {
	if b == nil {
		return nil
	}
	return boolToInt(*b)
}

func boolPtr(v sql.NullInt64) *bool {
	if !v.Valid {
		return nil
	}
	b := v.Int64 == 1
	return &b
}

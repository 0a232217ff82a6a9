package appbootstrap

import (
	"context"
	"database/sql"

	"halligan-rms/api"
	"halligan-rms/config"
	"halligan-rms/core/auth"
	"halligan-rms/core/autosave"
	"halligan-rms/core/incidents"
	"halligan-rms/core/rbac"
	"halligan-rms/core/store"
	"halligan-rms/core/utils"
	"halligan-rms/core/workbook"
)

type Runtime struct {
	ServerDeps api.ServerDeps
	Autosave   *autosave.Scheduler
	Users      store.UsersStore
}

// ComposeRuntime wires the stores and services around an open system DB and
// a loaded workbook store.
func ComposeRuntime(cfg *config.AppConfig, db *sql.DB, wb *workbook.Store, logger *utils.Logger) (*Runtime, error) {
	users := store.NewUsersStore(db)
	sessions := store.NewSessionsStore(db)
	audits := store.NewAuditStore(db)

	policy, err := rbac.NewPolicy()
	if err != nil {
		return nil, err
	}
	sessionManager := auth.NewSessionManager(sessions, cfg, logger)
	incidentsSvc := incidents.NewService(cfg, wb, policy, audits, logger)
	scheduler := autosave.New(cfg, wb, logger)

	return &Runtime{
		ServerDeps: api.ServerDeps{
			Users:          users,
			Sessions:       sessions,
			Audits:         audits,
			Policy:         policy,
			SessionManager: sessionManager,
			IncidentsSvc:   incidentsSvc,
			Workbook:       wb,
			Autosave:       scheduler,
		},
		Autosave: scheduler,
		Users:    users,
	}, nil
}

const (
	defaultAdminUsername = "admin"
	defaultAdminPassword = "changeme-halligan"
)

// EnsureDefaultAdmin seeds a first admin account into an empty user table so
// a fresh deployment can log in. The password must be changed on first use.
func EnsureDefaultAdmin(ctx context.Context, users store.UsersStore, cfg *config.AppConfig, logger *utils.Logger) error {
	n, err := users.Count(ctx)
	if err != nil {
		return err
	}
	if n > 0 {
		return nil
	}
	ph, err := auth.HashPassword(defaultAdminPassword, cfg.Pepper)
	if err != nil {
		return err
	}
	u := &store.User{
		Username:              defaultAdminUsername,
		FullName:              "Default Administrator",
		PasswordHash:          ph.Hash,
		Salt:                  ph.Salt,
		PasswordSet:           true,
		Role:                  rbac.RoleAdmin,
		Active:                true,
		RequirePasswordChange: true,
	}
	if _, err := users.Create(ctx, u); err != nil {
		return err
	}
	if logger != nil {
		logger.Printf("default admin account created username=%s", defaultAdminUsername)
	}
	return nil
}

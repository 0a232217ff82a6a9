package store

import (
	"context"
	"database/sql"
	"embed"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/pressly/goose/v3"
	_ "modernc.org/sqlite"

	"halligan-rms/config"
	"halligan-rms/core/utils"
)

var ErrConflict = errors.New("conflict")

//go:embed migrations/*.sql
var migrationsFS embed.FS

// NewDB opens the system database holding users, sessions and the audit log.
// sqlite is the default; postgres is selected with db_driver=postgres and a
// db_url.
func NewDB(cfg *config.AppConfig, logger *utils.Logger) (*sql.DB, error) {
	driver := strings.ToLower(strings.TrimSpace(cfg.DBDriver))
	switch driver {
	case "postgres":
		if strings.TrimSpace(cfg.DBURL) == "" {
			return nil, errors.New("db_url required for postgres")
		}
		db, err := sql.Open("pgx", cfg.DBURL)
		if err != nil {
			return nil, err
		}
		if err := db.Ping(); err != nil {
			db.Close()
			return nil, err
		}
		if logger != nil {
			logger.Printf("DB open driver=postgres")
		}
		return db, nil
	case "", "sqlite", "sqlite3":
		path := cfg.DBPath
		if strings.TrimSpace(path) == "" {
			return nil, errors.New("db_path required for sqlite")
		}
		if dir := filepath.Dir(path); dir != "." {
			if err := os.MkdirAll(dir, 0o755); err != nil {
				return nil, err
			}
		}
		dsn := fmt.Sprintf("file:%s?_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)&_pragma=foreign_keys(1)", path)
		db, err := sql.Open("sqlite", dsn)
		if err != nil {
			return nil, err
		}
		if err := db.Ping(); err != nil {
			db.Close()
			return nil, err
		}
		if logger != nil {
			logger.Printf("DB open driver=sqlite path=%s", path)
		}
		return db, nil
	default:
		return nil, fmt.Errorf("unsupported db_driver %q", cfg.DBDriver)
	}
}

// ApplyMigrations brings the system schema up to date via the embedded goose
// migrations.
func ApplyMigrations(ctx context.Context, db *sql.DB, driver string, logger *utils.Logger) error {
	dialect := "sqlite3"
	if strings.ToLower(strings.TrimSpace(driver)) == "postgres" {
		dialect = "postgres"
	}
	goose.SetBaseFS(migrationsFS)
	goose.SetLogger(goose.NopLogger())
	if err := goose.SetDialect(dialect); err != nil {
		return err
	}
	if err := goose.UpContext(ctx, db, "migrations"); err != nil {
		return err
	}
	if logger != nil {
		logger.Printf("DB migrations applied dialect=%s", dialect)
	}
	return nil
}

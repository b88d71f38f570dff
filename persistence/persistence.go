// Package persistence opens the bun database used by the identity
// repositories and applies the embedded schema migrations.
package persistence

import (
	"context"
	"database/sql"
	"embed"
	"fmt"
	"io/fs"
	"strings"
	"sync"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/pressly/goose/v3"
	"github.com/uptrace/bun"
	"github.com/uptrace/bun/dialect"
	"github.com/uptrace/bun/dialect/pgdialect"
	"github.com/uptrace/bun/dialect/sqlitedialect"
	"github.com/uptrace/bun/driver/sqliteshim"
)

const (
	DriverSQLite   = "sqlite"
	DriverPostgres = "postgres"
)

//go:embed migrations/sqlite/*.sql migrations/postgres/*.sql
var migrations embed.FS

// goose keeps its dialect and filesystem in package state
var gooseMu sync.Mutex

// Config selects and tunes the database
type Config struct {
	Driver          string
	DSN             string
	MaxOpenConns    int
	ConnMaxLifetime time.Duration
	AutoMigrate     bool
}

// Open connects to the configured database and, when AutoMigrate is set,
// brings the schema up to date.
func Open(ctx context.Context, cfg Config) (*bun.DB, error) {
	var (
		db  *bun.DB
		err error
	)

	switch strings.ToLower(cfg.Driver) {
	case DriverSQLite, "":
		db, err = openSQLite(cfg)
	case DriverPostgres, "pgx":
		db, err = openPostgres(cfg)
	default:
		return nil, fmt.Errorf("unsupported database driver %q", cfg.Driver)
	}
	if err != nil {
		return nil, err
	}

	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("db ping error: %w", err)
	}

	if cfg.AutoMigrate {
		if err := Migrate(ctx, db); err != nil {
			_ = db.Close()
			return nil, err
		}
	}

	return db, nil
}

func openSQLite(cfg Config) (*bun.DB, error) {
	dsn := cfg.DSN
	if dsn == "" {
		dsn = "file::memory:?cache=shared"
	}

	sqldb, err := sql.Open(sqliteshim.ShimName, dsn)
	if err != nil {
		return nil, fmt.Errorf("db open error: %w", err)
	}

	// sqlite serializes writers, a single connection also keeps in memory
	// databases alive for the lifetime of the pool
	sqldb.SetMaxOpenConns(1)

	db := bun.NewDB(sqldb, sqlitedialect.New())
	if _, err := db.Exec("PRAGMA foreign_keys = ON"); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("db pragma error: %w", err)
	}
	return db, nil
}

func openPostgres(cfg Config) (*bun.DB, error) {
	sqldb, err := sql.Open("pgx", cfg.DSN)
	if err != nil {
		return nil, fmt.Errorf("db open error: %w", err)
	}

	if cfg.MaxOpenConns > 0 {
		sqldb.SetMaxOpenConns(cfg.MaxOpenConns)
	}
	if cfg.ConnMaxLifetime > 0 {
		sqldb.SetConnMaxLifetime(cfg.ConnMaxLifetime)
	}

	return bun.NewDB(sqldb, pgdialect.New()), nil
}

// Migrate applies the embedded migrations for the database dialect
func Migrate(ctx context.Context, db *bun.DB) error {
	dir, gooseDialect, err := migrationsFor(db)
	if err != nil {
		return err
	}

	fsys, err := fs.Sub(migrations, dir)
	if err != nil {
		return err
	}

	gooseMu.Lock()
	defer gooseMu.Unlock()

	goose.SetBaseFS(fsys)
	defer goose.SetBaseFS(nil)

	if err := goose.SetDialect(gooseDialect); err != nil {
		return fmt.Errorf("goose dialect error: %w", err)
	}

	if err := goose.UpContext(ctx, db.DB, "."); err != nil {
		return fmt.Errorf("migration error: %w", err)
	}

	return nil
}

func migrationsFor(db *bun.DB) (string, string, error) {
	switch db.Dialect().Name() {
	case dialect.SQLite:
		return "migrations/sqlite", "sqlite3", nil
	case dialect.PG:
		return "migrations/postgres", "postgres", nil
	default:
		return "", "", fmt.Errorf("no migrations for dialect %s", db.Dialect().Name())
	}
}

package store

import (
	"context"
	"database/sql"
	"embed"
	"errors"
	"fmt"

	"github.com/example/healthtracker/internal/logging"
	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/database/postgres"
	"github.com/golang-migrate/migrate/v4/source/iofs"
	_ "github.com/lib/pq"
)

//go:embed migrations/*.sql
var MigrationFS embed.FS

// migrator opens a connection and a migrate instance over the embedded
// files. The returned close func releases both.
func migrator(dsn string) (*migrate.Migrate, func(), error) {
	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, nil, fmt.Errorf("opening database connection: %w", err)
	}
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, nil, fmt.Errorf("database ping failed: %w", err)
	}

	driver, err := postgres.WithInstance(db, &postgres.Config{})
	if err != nil {
		db.Close()
		return nil, nil, fmt.Errorf("creating migrate driver: %w", err)
	}
	src, err := iofs.New(MigrationFS, "migrations")
	if err != nil {
		db.Close()
		return nil, nil, fmt.Errorf("migrate source: %w", err)
	}
	m, err := migrate.NewWithInstance("iofs", src, "postgres", driver)
	if err != nil {
		db.Close()
		return nil, nil, fmt.Errorf("creating migrate instance: %w", err)
	}
	return m, func() { _, _ = m.Close() }, nil
}

// ApplyMigrations brings the Postgres schema at dsn up to date. A database
// left dirty by a failed run is reported, not repaired.
func ApplyMigrations(ctx context.Context, dsn string, log logging.Logger) error {
	m, closeFn, err := migrator(dsn)
	if err != nil {
		return err
	}
	defer closeFn()

	version, dirty, err := m.Version()
	if err != nil && !errors.Is(err, migrate.ErrNilVersion) {
		return fmt.Errorf("checking migration version: %w", err)
	}
	if dirty {
		return fmt.Errorf("database is in a dirty state (version %d), manual intervention required", version)
	}

	if err := m.Up(); err != nil {
		if errors.Is(err, migrate.ErrNoChange) {
			log.Info(ctx, "database is up to date", "version", version)
			return nil
		}
		return fmt.Errorf("applying migrations: %w", err)
	}

	newVersion, _, _ := m.Version()
	log.Info(ctx, "database migrated", "from", version, "to", newVersion)
	return nil
}

// MigrationVersion returns the current version and dirty flag; 0 when no
// migration has run yet.
func MigrationVersion(dsn string) (uint, bool, error) {
	m, closeFn, err := migrator(dsn)
	if err != nil {
		return 0, false, err
	}
	defer closeFn()

	version, dirty, err := m.Version()
	if errors.Is(err, migrate.ErrNilVersion) {
		return 0, false, nil
	}
	return version, dirty, err
}

// RunMigrations executes one migration command: "up" or "down" (all, or
// steps when steps > 0) or "force" to version.
func RunMigrations(dsn, command string, steps, version int) error {
	m, closeFn, err := migrator(dsn)
	if err != nil {
		return err
	}
	defer closeFn()

	switch command {
	case "up", "down":
		if steps > 0 {
			if command == "down" {
				steps = -steps
			}
			err = m.Steps(steps)
		} else if command == "up" {
			err = m.Up()
		} else {
			err = m.Down()
		}
		if err != nil && !errors.Is(err, migrate.ErrNoChange) {
			return fmt.Errorf("migrate %s: %w", command, err)
		}
		return nil
	case "force":
		if version <= 0 {
			return errors.New("force requires a positive version")
		}
		if err := m.Force(version); err != nil {
			return fmt.Errorf("forcing version: %w", err)
		}
		return nil
	default:
		return fmt.Errorf("unknown command: %s (supported: up, down, version, force)", command)
	}
}

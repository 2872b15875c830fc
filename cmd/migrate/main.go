// Command migrate applies the embedded Postgres migrations.
package main

import (
	"flag"
	"fmt"
	"log"
	"os"

	"github.com/example/healthtracker/internal/config"
	"github.com/example/healthtracker/internal/store"
)

func main() {
	var (
		command = flag.String("command", "up", "Migration command: up, down, version, force")
		steps   = flag.Int("steps", 0, "Number of migration steps (for up/down)")
		version = flag.Int("version", 0, "Target version (for force command)")
	)
	flag.Parse()

	cfg, err := config.New()
	if err != nil {
		log.Fatalf("Config error: %v", err)
	}
	if cfg.DBAdapter != "postgres" {
		log.Fatalf("Migrations only work with PostgreSQL. Current adapter: %s", cfg.DBAdapter)
	}
	dsn, err := cfg.BuildPostgresDSN()
	if err != nil {
		log.Fatalf("PostgreSQL config error: %v", err)
	}

	switch *command {
	case "version":
		v, dirty, err := store.MigrationVersion(dsn)
		if err != nil {
			log.Fatalf("Failed to get version: %v", err)
		}
		if dirty {
			fmt.Printf("Database is in a dirty state (version %d)\n", v)
			os.Exit(1)
		}
		fmt.Printf("Current migration version: %d\n", v)
	case "up", "down", "force":
		if err := store.RunMigrations(dsn, *command, *steps, *version); err != nil {
			log.Fatalf("Migration %s failed: %v", *command, err)
		}
		fmt.Printf("Migration %s completed\n", *command)
	default:
		log.Fatalf("Unknown command: %s (supported: up, down, version, force)", *command)
	}
}

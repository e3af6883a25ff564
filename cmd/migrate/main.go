package main

import (
	"context"
	"database/sql"
	"fmt"
	"log"
	"os"

	_ "github.com/lib/pq"

	"DexSettle/internal/persistence"
)

func usage() {
	fmt.Println("Usage: migrate <up|down|status>")
	fmt.Println("  up     - apply all pending migrations")
	fmt.Println("  down   - roll back the last migration")
	fmt.Println("  status - list applied migrations")
	fmt.Println()
	fmt.Println("Environment:")
	fmt.Println("  DEX_POSTGRES_DSN   - Postgres connection string (required)")
	fmt.Println("  DEX_MIGRATIONS_DIR - path to migrations directory (default: migrations)")
	os.Exit(1)
}

func main() {
	if len(os.Args) < 2 {
		usage()
	}

	dsn := os.Getenv("DEX_POSTGRES_DSN")
	if dsn == "" {
		dsn = "postgres://localhost:5432/dexsettle?sslmode=disable"
	}

	dir := os.Getenv("DEX_MIGRATIONS_DIR")
	if dir == "" {
		dir = "migrations"
	}

	db, err := sql.Open("postgres", dsn)
	if err != nil {
		log.Fatalf("FATAL: open db: %v", err)
	}
	defer db.Close()

	ctx := context.Background()
	migrator := persistence.NewMigrator(db, dir)

	switch os.Args[1] {
	case "up":
		if err := migrator.Up(ctx); err != nil {
			log.Fatalf("FATAL: migrate up: %v", err)
		}
		log.Println("INFO: all migrations applied")

	case "down":
		if err := migrator.Down(ctx); err != nil {
			log.Fatalf("FATAL: migrate down: %v", err)
		}
		log.Println("INFO: last migration rolled back")

	case "status":
		applied, err := migrator.Status(ctx)
		if err != nil {
			log.Fatalf("FATAL: migrate status: %v", err)
		}
		if len(applied) == 0 {
			fmt.Println("no migrations applied")
			return
		}
		for _, am := range applied {
			fmt.Printf("%06d  %-40s  %s\n", am.Version, am.Filename, am.AppliedAt.Format("2006-01-02 15:04:05"))
		}

	default:
		fmt.Fprintf(os.Stderr, "unknown command: %s\n", os.Args[1])
		usage()
	}
}

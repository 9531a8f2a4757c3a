// Command migrate applies the SQL files under migrations/ in filename order,
// tracking applied files in schema_migrations. Pass "down" to roll back the
// most recent migration.
package main

import (
	"database/sql"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/joho/godotenv"

	"tally/internal/platform/config"
	"tally/internal/platform/postgres"
)

func main() {
	_ = godotenv.Load()
	cfg := config.FromEnv()

	db, err := postgres.Open(cfg.PostgresURL)
	if err != nil {
		log.Fatalf("failed to open postgres: %v", err)
	}
	if db == nil {
		log.Fatal("DATABASE_URL is not set")
	}
	defer db.Close()

	if _, err := db.Exec(`CREATE TABLE IF NOT EXISTS schema_migrations (filename TEXT PRIMARY KEY, applied_at TIMESTAMPTZ NOT NULL DEFAULT NOW())`); err != nil {
		log.Fatalf("failed to ensure schema_migrations: %v", err)
	}

	if len(os.Args) > 1 && os.Args[1] == "down" {
		if err := rollbackLatest(db); err != nil {
			log.Fatalf("rollback failed: %v", err)
		}
		return
	}

	files, err := filepath.Glob("migrations/*.sql")
	if err != nil {
		log.Fatalf("failed to list migrations: %v", err)
	}
	sort.Strings(files)

	for _, file := range files {
		filename := filepath.Base(file)
		var exists bool
		if err := db.QueryRow(`SELECT EXISTS (SELECT 1 FROM schema_migrations WHERE filename = $1)`, filename).Scan(&exists); err != nil {
			log.Fatalf("failed to read migration state: %v", err)
		}
		if exists {
			continue
		}
		up, _, err := readSections(file)
		if err != nil {
			log.Fatalf("failed to read %s: %v", filename, err)
		}
		if _, err := db.Exec(up); err != nil {
			log.Fatalf("failed to apply %s: %v", filename, err)
		}
		if _, err := db.Exec(`INSERT INTO schema_migrations (filename) VALUES ($1)`, filename); err != nil {
			log.Fatalf("failed to record %s: %v", filename, err)
		}
		fmt.Printf("applied %s\n", filename)
	}
}

func rollbackLatest(db *sql.DB) error {
	var filename string
	err := db.QueryRow(`SELECT filename FROM schema_migrations ORDER BY filename DESC LIMIT 1`).Scan(&filename)
	if err == sql.ErrNoRows {
		fmt.Println("nothing to roll back")
		return nil
	}
	if err != nil {
		return err
	}

	_, down, err := readSections(filepath.Join("migrations", filename))
	if err != nil {
		return err
	}
	if strings.TrimSpace(down) == "" {
		return fmt.Errorf("%s has no down section", filename)
	}
	if _, err := db.Exec(down); err != nil {
		return err
	}
	if _, err := db.Exec(`DELETE FROM schema_migrations WHERE filename = $1`, filename); err != nil {
		return err
	}
	fmt.Printf("rolled back %s\n", filename)
	return nil
}

func readSections(path string) (up, down string, err error) {
	content, err := os.ReadFile(path)
	if err != nil {
		return "", "", err
	}
	up, down, _ = strings.Cut(string(content), "-- +migrate Down")
	return up, down, nil
}

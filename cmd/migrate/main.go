package main

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"flag"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// This binary is the version-numbered migration pipeline that replaces the
// source system's startup self-migration (a dynamic `ADD COLUMN IF NOT
// EXISTS` sweep run on every process boot). Because that approach left no
// record of which exact SQL had been applied, `schema_migrations` here
// carries a checksum per version so "status" can detect a migration file
// edited after it was already applied — a drift class the dynamic
// self-migration had no way to notice either, but one a versioned pipeline
// should catch instead of silently re-running nothing.
func main() {
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr})

	var (
		dbURL          = flag.String("db", "", "Database URL (or set DATABASE_URL env)")
		migrationsPath = flag.String("path", "migrations", "Path to migrations directory")
		direction      = flag.String("direction", "up", "Migration direction: up, down, or status")
		steps          = flag.Int("steps", 0, "Number of migrations to apply (0 = all)")
	)
	flag.Parse()

	databaseURL := *dbURL
	if databaseURL == "" {
		databaseURL = os.Getenv("DATABASE_URL")
	}
	if databaseURL == "" {
		log.Fatal().Msg("Database URL required. Use -db flag or set DATABASE_URL env")
	}

	ctx := context.Background()

	pool, err := pgxpool.New(ctx, databaseURL)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to connect to database")
	}
	defer pool.Close()

	if err := pool.Ping(ctx); err != nil {
		log.Fatal().Err(err).Msg("Failed to ping database")
	}
	log.Info().Msg("Connected to database")

	if err := ensureMigrationsTable(ctx, pool); err != nil {
		log.Fatal().Err(err).Msg("Failed to create migrations table")
	}

	switch *direction {
	case "up":
		if err := migrateUp(ctx, pool, *migrationsPath, *steps); err != nil {
			log.Fatal().Err(err).Msg("Migration up failed")
		}
	case "down":
		if err := migrateDown(ctx, pool, *migrationsPath, *steps); err != nil {
			log.Fatal().Err(err).Msg("Migration down failed")
		}
	case "status":
		if err := migrateStatus(ctx, pool, *migrationsPath); err != nil {
			log.Fatal().Err(err).Msg("Migration status failed")
		}
		return
	default:
		log.Fatal().Str("direction", *direction).Msg("Invalid direction. Use 'up', 'down', or 'status'")
	}

	log.Info().Msg("Migration completed successfully")
}

// appliedMigration is one row of schema_migrations: the version plus the
// checksum recorded for the .up.sql content at apply time.
type appliedMigration struct {
	checksum string
}

func ensureMigrationsTable(ctx context.Context, pool *pgxpool.Pool) error {
	if _, err := pool.Exec(ctx, `
		CREATE TABLE IF NOT EXISTS schema_migrations (
			version VARCHAR(255) PRIMARY KEY,
			checksum VARCHAR(64) NOT NULL DEFAULT '',
			applied_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
		)
	`); err != nil {
		return err
	}
	_, err := pool.Exec(ctx, `ALTER TABLE schema_migrations ADD COLUMN IF NOT EXISTS checksum VARCHAR(64) NOT NULL DEFAULT ''`)
	return err
}

func getAppliedMigrations(ctx context.Context, pool *pgxpool.Pool) (map[string]appliedMigration, error) {
	rows, err := pool.Query(ctx, "SELECT version, checksum FROM schema_migrations ORDER BY version")
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	applied := make(map[string]appliedMigration)
	for rows.Next() {
		var version, checksum string
		if err := rows.Scan(&version, &checksum); err != nil {
			return nil, err
		}
		applied[version] = appliedMigration{checksum: checksum}
	}
	return applied, rows.Err()
}

func getMigrationFiles(path, suffix string) ([]string, error) {
	pattern := filepath.Join(path, fmt.Sprintf("*%s.sql", suffix))
	files, err := filepath.Glob(pattern)
	if err != nil {
		return nil, err
	}
	sort.Strings(files)
	return files, nil
}

func extractVersion(filename string) string {
	base := filepath.Base(filename)
	base = strings.TrimSuffix(base, ".up.sql")
	base = strings.TrimSuffix(base, ".down.sql")
	return base
}

func checksumFile(path string) (string, error) {
	content, err := os.ReadFile(path)
	if err != nil {
		return "", err
	}
	sum := sha256.Sum256(content)
	return hex.EncodeToString(sum[:]), nil
}

func migrateUp(ctx context.Context, pool *pgxpool.Pool, path string, steps int) error {
	applied, err := getAppliedMigrations(ctx, pool)
	if err != nil {
		return fmt.Errorf("get applied migrations: %w", err)
	}

	files, err := getMigrationFiles(path, ".up")
	if err != nil {
		return fmt.Errorf("get migration files: %w", err)
	}

	count := 0
	for _, file := range files {
		version := extractVersion(file)
		if _, ok := applied[version]; ok {
			log.Debug().Str("version", version).Msg("Already applied, skipping")
			continue
		}

		if steps > 0 && count >= steps {
			break
		}

		log.Info().Str("version", version).Str("file", file).Msg("Applying migration")

		content, err := os.ReadFile(file)
		if err != nil {
			return fmt.Errorf("read migration file %s: %w", file, err)
		}
		checksum, err := checksumFile(file)
		if err != nil {
			return fmt.Errorf("checksum migration file %s: %w", file, err)
		}

		tx, err := pool.Begin(ctx)
		if err != nil {
			return fmt.Errorf("begin transaction: %w", err)
		}

		if _, err := tx.Exec(ctx, string(content)); err != nil {
			_ = tx.Rollback(ctx)
			return fmt.Errorf("execute migration %s: %w", version, err)
		}

		if _, err := tx.Exec(ctx, "INSERT INTO schema_migrations (version, checksum) VALUES ($1, $2)", version, checksum); err != nil {
			_ = tx.Rollback(ctx)
			return fmt.Errorf("record migration %s: %w", version, err)
		}

		if err := tx.Commit(ctx); err != nil {
			return fmt.Errorf("commit migration %s: %w", version, err)
		}

		log.Info().Str("version", version).Msg("Migration applied successfully")
		count++
	}

	if count == 0 {
		log.Info().Msg("No migrations to apply")
	} else {
		log.Info().Int("count", count).Msg("Migrations applied")
	}

	return nil
}

func migrateDown(ctx context.Context, pool *pgxpool.Pool, path string, steps int) error {
	applied, err := getAppliedMigrations(ctx, pool)
	if err != nil {
		return fmt.Errorf("get applied migrations: %w", err)
	}

	files, err := getMigrationFiles(path, ".down")
	if err != nil {
		return fmt.Errorf("get migration files: %w", err)
	}

	sort.Sort(sort.Reverse(sort.StringSlice(files)))

	if steps == 0 {
		steps = 1
	}

	count := 0
	for _, file := range files {
		version := extractVersion(file)
		if _, ok := applied[version]; !ok {
			log.Debug().Str("version", version).Msg("Not applied, skipping")
			continue
		}

		if count >= steps {
			break
		}

		log.Info().Str("version", version).Str("file", file).Msg("Rolling back migration")

		content, err := os.ReadFile(file)
		if err != nil {
			return fmt.Errorf("read migration file %s: %w", file, err)
		}

		tx, err := pool.Begin(ctx)
		if err != nil {
			return fmt.Errorf("begin transaction: %w", err)
		}

		if _, err := tx.Exec(ctx, string(content)); err != nil {
			_ = tx.Rollback(ctx)
			return fmt.Errorf("execute rollback %s: %w", version, err)
		}

		if _, err := tx.Exec(ctx, "DELETE FROM schema_migrations WHERE version = $1", version); err != nil {
			_ = tx.Rollback(ctx)
			return fmt.Errorf("remove migration record %s: %w", version, err)
		}

		if err := tx.Commit(ctx); err != nil {
			return fmt.Errorf("commit rollback %s: %w", version, err)
		}

		log.Info().Str("version", version).Msg("Migration rolled back successfully")
		count++
	}

	if count == 0 {
		log.Info().Msg("No migrations to roll back")
	} else {
		log.Info().Int("count", count).Msg("Migrations rolled back")
	}

	return nil
}

// migrateStatus reports each known migration as applied, pending, or
// drifted (applied, but the on-disk .up.sql no longer matches the checksum
// recorded when it ran) — the check the old dynamic self-migration had no
// equivalent for.
func migrateStatus(ctx context.Context, pool *pgxpool.Pool, path string) error {
	applied, err := getAppliedMigrations(ctx, pool)
	if err != nil {
		return fmt.Errorf("get applied migrations: %w", err)
	}

	files, err := getMigrationFiles(path, ".up")
	if err != nil {
		return fmt.Errorf("get migration files: %w", err)
	}

	drifted := 0
	for _, file := range files {
		version := extractVersion(file)
		rec, ok := applied[version]
		if !ok {
			log.Info().Str("version", version).Msg("pending")
			continue
		}

		checksum, err := checksumFile(file)
		if err != nil {
			return fmt.Errorf("checksum migration file %s: %w", file, err)
		}
		if rec.checksum != "" && rec.checksum != checksum {
			log.Warn().Str("version", version).Msg("applied, but file content has changed since it ran")
			drifted++
			continue
		}
		log.Info().Str("version", version).Msg("applied")
	}

	if drifted > 0 {
		return fmt.Errorf("%d migration(s) have drifted from their applied checksum", drifted)
	}
	return nil
}

package store

import (
	"context"
	"crypto/sha256"
	"database/sql"
	"encoding/hex"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"sort"
	"strings"
)

// migrationLockKey serializes migration runs across API instances sharing a
// database.
const migrationLockKey int64 = 0x73796e6b72697301

type migration struct {
	version  string
	sql      string
	checksum string
}

// ApplyMigrations runs every *.up.sql file in lexical order that is not yet
// recorded in schema_migrations, each inside its own transaction. A recorded
// migration whose file has since changed stops the run.
func ApplyMigrations(ctx context.Context, db *sql.DB, migrationsDir string) error {
	files, err := readMigrations(migrationsDir, ".up.sql")
	if err != nil {
		return err
	}

	return withMigrationLock(ctx, db, func(conn *sql.Conn) error {
		if err := ensureMigrationsTable(ctx, conn); err != nil {
			return err
		}
		applied, err := appliedMigrations(ctx, conn)
		if err != nil {
			return err
		}

		for _, m := range files {
			if sum, ok := applied[m.version]; ok {
				if sum != "" && sum != m.checksum {
					return fmt.Errorf("migration %s changed after it was applied", m.version)
				}
				continue
			}
			err := inTx(ctx, conn, func(tx *sql.Tx) error {
				if _, err := tx.ExecContext(ctx, m.sql); err != nil {
					return fmt.Errorf("execute migration %s: %w", m.version, err)
				}
				if _, err := tx.ExecContext(ctx, `INSERT INTO schema_migrations(version, checksum) VALUES($1, $2)`, m.version, m.checksum); err != nil {
					return fmt.Errorf("record migration %s: %w", m.version, err)
				}
				return nil
			})
			if err != nil {
				return err
			}
			log.Printf("applied migration %s", m.version)
		}
		return nil
	})
}

// RollbackMigrations undoes the newest steps applied migrations using their
// *.down.sql files. steps <= 0 undoes all of them.
func RollbackMigrations(ctx context.Context, db *sql.DB, migrationsDir string, steps int) error {
	downs, err := readMigrations(migrationsDir, ".down.sql")
	if err != nil {
		return err
	}
	byVersion := make(map[string]migration, len(downs))
	for _, m := range downs {
		byVersion[strings.TrimSuffix(m.version, ".down.sql")+".up.sql"] = m
	}

	return withMigrationLock(ctx, db, func(conn *sql.Conn) error {
		if err := ensureMigrationsTable(ctx, conn); err != nil {
			return err
		}
		applied, err := appliedMigrations(ctx, conn)
		if err != nil {
			return err
		}
		versions := make([]string, 0, len(applied))
		for version := range applied {
			versions = append(versions, version)
		}
		sort.Sort(sort.Reverse(sort.StringSlice(versions)))
		if steps > 0 && steps < len(versions) {
			versions = versions[:steps]
		}

		for _, version := range versions {
			down, ok := byVersion[version]
			if !ok {
				return fmt.Errorf("no down migration for %s", version)
			}
			err := inTx(ctx, conn, func(tx *sql.Tx) error {
				if _, err := tx.ExecContext(ctx, down.sql); err != nil {
					return fmt.Errorf("execute %s: %w", down.version, err)
				}
				if _, err := tx.ExecContext(ctx, `DELETE FROM schema_migrations WHERE version=$1`, version); err != nil {
					return fmt.Errorf("unrecord migration %s: %w", version, err)
				}
				return nil
			})
			if err != nil {
				return err
			}
			log.Printf("rolled back migration %s", version)
		}
		return nil
	})
}

func readMigrations(migrationsDir, suffix string) ([]migration, error) {
	entries, err := os.ReadDir(migrationsDir)
	if err != nil {
		return nil, fmt.Errorf("read migrations dir: %w", err)
	}

	var out []migration
	for _, entry := range entries {
		if entry.IsDir() || !strings.HasSuffix(entry.Name(), suffix) {
			continue
		}
		contents, err := os.ReadFile(filepath.Join(migrationsDir, entry.Name()))
		if err != nil {
			return nil, fmt.Errorf("read migration %s: %w", entry.Name(), err)
		}
		if strings.TrimSpace(string(contents)) == "" {
			return nil, fmt.Errorf("migration %s is empty", entry.Name())
		}
		out = append(out, migration{
			version:  entry.Name(),
			sql:      string(contents),
			checksum: migrationChecksum(contents),
		})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].version < out[j].version })
	return out, nil
}

func migrationChecksum(contents []byte) string {
	sum := sha256.Sum256(contents)
	return hex.EncodeToString(sum[:])
}

// withMigrationLock pins one connection for the session-level advisory lock
// and every statement issued under it.
func withMigrationLock(ctx context.Context, db *sql.DB, fn func(*sql.Conn) error) error {
	conn, err := db.Conn(ctx)
	if err != nil {
		return fmt.Errorf("reserve migration connection: %w", err)
	}
	defer conn.Close()

	if _, err := conn.ExecContext(ctx, `SELECT pg_advisory_lock($1)`, migrationLockKey); err != nil {
		return fmt.Errorf("acquire migration lock: %w", err)
	}
	defer func() {
		if _, err := conn.ExecContext(context.Background(), `SELECT pg_advisory_unlock($1)`, migrationLockKey); err != nil {
			log.Printf("release migration lock: %v", err)
		}
	}()
	return fn(conn)
}

func inTx(ctx context.Context, conn *sql.Conn, fn func(*sql.Tx) error) error {
	tx, err := conn.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin migration tx: %w", err)
	}
	if err := fn(tx); err != nil {
		_ = tx.Rollback()
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit migration tx: %w", err)
	}
	return nil
}

func ensureMigrationsTable(ctx context.Context, conn *sql.Conn) error {
	_, err := conn.ExecContext(ctx, `
		CREATE TABLE IF NOT EXISTS schema_migrations (
			version TEXT PRIMARY KEY,
			applied_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
		);
		ALTER TABLE schema_migrations ADD COLUMN IF NOT EXISTS checksum TEXT;
	`)
	if err != nil {
		return fmt.Errorf("ensure schema_migrations: %w", err)
	}
	return nil
}

// appliedMigrations maps recorded versions to their checksum. Rows written
// before checksums were tracked map to "".
func appliedMigrations(ctx context.Context, conn *sql.Conn) (map[string]string, error) {
	rows, err := conn.QueryContext(ctx, `SELECT version, COALESCE(checksum, '') FROM schema_migrations`)
	if err != nil {
		return nil, fmt.Errorf("list applied migrations: %w", err)
	}
	defer rows.Close()

	applied := make(map[string]string)
	for rows.Next() {
		var version, checksum string
		if err := rows.Scan(&version, &checksum); err != nil {
			return nil, fmt.Errorf("scan applied migration: %w", err)
		}
		applied[version] = checksum
	}
	return applied, rows.Err()
}

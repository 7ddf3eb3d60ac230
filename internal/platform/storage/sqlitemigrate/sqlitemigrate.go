// Package sqlitemigrate applies embedded SQL migrations to a SQLite database.
//
// Each migration file runs at most once, tracked by file path in a
// schema_migrations table, so stores can apply migrations unconditionally at
// startup. Only the `-- +migrate Up` section of a file is executed.
package sqlitemigrate

import (
	"context"
	"database/sql"
	"fmt"
	"io/fs"
	"path"
	"sort"
	"strings"
	"time"
)

const trackingTable = "schema_migrations"

// ApplyMigrations runs the pending .sql files under migrationRoot in lexical
// order. Each migration executes and is recorded inside its own transaction,
// so a failing file leaves earlier ones applied and itself unrecorded.
func ApplyMigrations(sqlDB *sql.DB, migrationFS fs.FS, migrationRoot string) error {
	if sqlDB == nil {
		return fmt.Errorf("sql db is required")
	}

	root := strings.TrimSpace(migrationRoot)
	if root == "" {
		root = "."
	}

	entries, err := fs.ReadDir(migrationFS, root)
	if err != nil {
		return fmt.Errorf("read migrations dir: %w", err)
	}

	var files []string
	for _, entry := range entries {
		if entry.IsDir() || !strings.HasSuffix(entry.Name(), ".sql") {
			continue
		}
		files = append(files, entry.Name())
	}
	sort.Strings(files)

	if _, err := sqlDB.Exec(`CREATE TABLE IF NOT EXISTS ` + trackingTable + ` (
    name TEXT PRIMARY KEY,
    applied_at INTEGER NOT NULL
);`); err != nil {
		return fmt.Errorf("ensure migration table: %w", err)
	}

	applied, err := appliedSet(sqlDB)
	if err != nil {
		return err
	}

	for _, file := range files {
		key := file
		if root != "." {
			key = path.Join(root, file)
		}
		if applied[key] {
			continue
		}

		content, err := fs.ReadFile(migrationFS, path.Join(root, file))
		if err != nil {
			return fmt.Errorf("read migration %s: %w", file, err)
		}
		upSQL := extractUpSQL(string(content))
		if strings.TrimSpace(upSQL) == "" {
			continue
		}

		if err := applyOne(sqlDB, key, upSQL); err != nil {
			return fmt.Errorf("migration %s: %w", file, err)
		}
	}

	return nil
}

func applyOne(sqlDB *sql.DB, key, upSQL string) error {
	tx, err := sqlDB.BeginTx(context.Background(), nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}

	if _, err := tx.Exec(upSQL); err != nil && !isAlreadyExists(err) {
		_ = tx.Rollback()
		return fmt.Errorf("exec: %w", err)
	}

	if _, err := tx.Exec(
		"INSERT OR IGNORE INTO "+trackingTable+" (name, applied_at) VALUES (?, ?)",
		key, time.Now().UTC().UnixMilli(),
	); err != nil {
		_ = tx.Rollback()
		return fmt.Errorf("record: %w", err)
	}

	return tx.Commit()
}

func appliedSet(sqlDB *sql.DB) (map[string]bool, error) {
	rows, err := sqlDB.Query("SELECT name FROM " + trackingTable)
	if err != nil {
		return nil, fmt.Errorf("read applied migrations: %w", err)
	}
	defer rows.Close()

	applied := make(map[string]bool)
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, fmt.Errorf("scan applied migration: %w", err)
		}
		applied[name] = true
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate applied migrations: %w", err)
	}
	return applied, nil
}

// extractUpSQL returns the SQL between the Up marker and the Down marker, or
// the whole file when no markers are present.
func extractUpSQL(content string) string {
	const upMarker = "-- +migrate Up"
	upIdx := strings.Index(content, upMarker)
	if upIdx == -1 {
		return content
	}
	rest := content[upIdx+len(upMarker):]
	if downIdx := strings.Index(rest, "-- +migrate Down"); downIdx != -1 {
		rest = rest[:downIdx]
	}
	return rest
}

// isAlreadyExists treats re-creation of existing schema objects as success so
// databases predating the tracking table converge instead of failing.
func isAlreadyExists(err error) bool {
	message := strings.ToLower(err.Error())
	return strings.Contains(message, "already exists") || strings.Contains(message, "duplicate column name")
}

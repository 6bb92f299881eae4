package database

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
)

// SplitStatements breaks a migration file into executable statements,
// dropping "--" comment lines and empty statements
func SplitStatements(migrationSQL string) []string {
	var out []string
	for _, stmt := range strings.Split(migrationSQL, ";") {
		lines := strings.Split(stmt, "\n")
		var cleanLines []string
		for _, line := range lines {
			trimmed := strings.TrimSpace(line)
			if !strings.HasPrefix(trimmed, "--") && trimmed != "" {
				cleanLines = append(cleanLines, line)
			}
		}
		stmt = strings.TrimSpace(strings.Join(cleanLines, "\n"))
		if stmt == "" {
			continue
		}
		out = append(out, stmt)
	}
	return out
}

// MigrationFiles lists the .sql files under dir in apply order
func MigrationFiles(dir string) ([]string, error) {
	files, err := filepath.Glob(filepath.Join(dir, "*.sql"))
	if err != nil {
		return nil, err
	}
	sort.Strings(files)
	return files, nil
}

// ApplyMigration runs every statement in path against db
func ApplyMigration(ctx context.Context, db *sql.DB, path string) (int, error) {
	migrationSQL, err := os.ReadFile(path)
	if err != nil {
		return 0, fmt.Errorf("failed reading migration file %s: %w", path, err)
	}

	statements := SplitStatements(string(migrationSQL))
	for i, stmt := range statements {
		if _, err := db.ExecContext(ctx, stmt); err != nil {
			return i, fmt.Errorf("failed executing statement %d of %s: %w\n%s", i+1, path, err, stmt)
		}
	}
	return len(statements), nil
}

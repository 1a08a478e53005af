// Package migrations embeds the schema for both database drivers.
package migrations

import (
	"context"
	"embed"
	"fmt"
	"io/fs"
	"sort"
	"strings"

	"github.com/felixgeelhaar/saffron/internal/shared/infrastructure/database"
)

//go:embed sqlite/*.sql postgres/*.sql
var schemaFS embed.FS

// Run executes every up migration for conn's driver in file-name order.
// Every statement is written to be idempotent, so Run is safe on each start.
func Run(ctx context.Context, conn database.Connection) error {
	dir := conn.Driver().String()
	if !conn.Driver().IsValid() {
		return fmt.Errorf("no migrations for driver %q", dir)
	}

	files, err := upFiles(dir)
	if err != nil {
		return err
	}

	for _, file := range files {
		script, err := schemaFS.ReadFile(dir + "/" + file)
		if err != nil {
			return fmt.Errorf("failed to read migration %s: %w", file, err)
		}
		for _, stmt := range splitStatements(string(script)) {
			if err := conn.Exec(ctx, stmt); err != nil {
				return fmt.Errorf("failed to execute migration %s: %w", file, err)
			}
		}
	}
	return nil
}

func upFiles(dir string) ([]string, error) {
	entries, err := fs.ReadDir(schemaFS, dir)
	if err != nil {
		return nil, fmt.Errorf("failed to read migrations directory: %w", err)
	}

	var files []string
	for _, entry := range entries {
		if strings.HasSuffix(entry.Name(), ".up.sql") {
			files = append(files, entry.Name())
		}
	}
	sort.Strings(files)
	return files, nil
}

// splitStatements breaks a script on ';'. pgx runs one statement per Exec
// when arguments are used, so both drivers get them individually.
func splitStatements(script string) []string {
	var out []string
	for _, part := range strings.Split(script, ";") {
		if stmt := strings.TrimSpace(part); stmt != "" {
			out = append(out, stmt)
		}
	}
	return out
}

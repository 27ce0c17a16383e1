// Package migrations holds the SQL schema and applies it in file order.
package migrations

import (
	"context"
	"database/sql"
	"embed"
	"fmt"
	"io/fs"
	"sort"
	"strings"
)

//go:embed *.sql
var files embed.FS

// Files は direction（up/down）のファイル名を実行順に返す
func Files(direction string) ([]string, error) {
	if direction != "up" && direction != "down" {
		return nil, fmt.Errorf("direction must be 'up' or 'down'")
	}

	entries, err := fs.ReadDir(files, ".")
	if err != nil {
		return nil, fmt.Errorf("read migrations: %w", err)
	}

	var names []string
	for _, e := range entries {
		if !e.IsDir() && strings.HasSuffix(e.Name(), "."+direction+".sql") {
			names = append(names, e.Name())
		}
	}

	sort.Strings(names)
	if direction == "down" {
		for i, j := 0, len(names)-1; i < j; i, j = i+1, j-1 {
			names[i], names[j] = names[j], names[i]
		}
	}
	return names, nil
}

// Run は全ファイルを順に実行し、実行したファイル名を返す
func Run(ctx context.Context, db *sql.DB, direction string) ([]string, error) {
	names, err := Files(direction)
	if err != nil {
		return nil, err
	}

	for _, name := range names {
		content, err := files.ReadFile(name)
		if err != nil {
			return nil, fmt.Errorf("read migration %s: %w", name, err)
		}
		if _, err := db.ExecContext(ctx, string(content)); err != nil {
			return nil, fmt.Errorf("execute migration %s: %w", name, err)
		}
	}
	return names, nil
}

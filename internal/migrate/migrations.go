// Package migrate brings the governance database schema up to date from
// SQL files embedded under sql/. Files are named NNN_description.sql and
// applied in ascending version order.
package migrate

import (
	"database/sql"
	"embed"
	"fmt"
	"io/fs"
	"sort"
)

//go:embed sql/*.sql
var schemaFS embed.FS

type schemaStep struct {
	version int
	file    string
	stmts   string
}

func embeddedSteps() ([]schemaStep, error) {
	entries, err := fs.ReadDir(schemaFS, "sql")
	if err != nil {
		return nil, err
	}
	var steps []schemaStep
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		data, err := schemaFS.ReadFile("sql/" + entry.Name())
		if err != nil {
			return nil, err
		}
		var version int
		if _, err := fmt.Sscanf(entry.Name(), "%d_", &version); err != nil {
			return nil, fmt.Errorf("migration file %s lacks a numeric prefix: %w", entry.Name(), err)
		}
		steps = append(steps, schemaStep{version: version, file: entry.Name(), stmts: string(data)})
	}
	sort.Slice(steps, func(i, j int) bool { return steps[i].version < steps[j].version })
	return steps, nil
}

// Migrate applies any schema steps newer than the recorded version. All
// pending steps run in one transaction so a failure leaves the schema at
// the last fully applied version.
func Migrate(db *sql.DB) error {
	steps, err := embeddedSteps()
	if err != nil {
		return err
	}
	tx, err := db.Begin()
	if err != nil {
		return err
	}
	defer tx.Rollback()

	if _, err := tx.Exec(`CREATE TABLE IF NOT EXISTS schema_version(version INTEGER NOT NULL);`); err != nil {
		return fmt.Errorf("create schema_version: %w", err)
	}

	var current int
	err = tx.QueryRow(`SELECT version FROM schema_version LIMIT 1`).Scan(&current)
	if err == sql.ErrNoRows {
		if _, err := tx.Exec(`INSERT INTO schema_version(version) VALUES (0)`); err != nil {
			return fmt.Errorf("init schema_version: %w", err)
		}
		current = 0
	} else if err != nil {
		return fmt.Errorf("read schema_version: %w", err)
	}

	for _, step := range steps {
		if step.version <= current {
			continue
		}
		if _, err := tx.Exec(step.stmts); err != nil {
			return fmt.Errorf("apply %s: %w", step.file, err)
		}
		if _, err := tx.Exec(`UPDATE schema_version SET version=?`, step.version); err != nil {
			return fmt.Errorf("record version %d: %w", step.version, err)
		}
		current = step.version
	}
	return tx.Commit()
}

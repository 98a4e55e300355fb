// Package migrate applies the embedded, versioned schema for the tweet store.
//
// Migrations are files named NNN_description.sql. Versions start at 1 and
// must be contiguous, so a missing or renumbered file fails startup instead
// of leaving the schema half built.
package migrate

import (
	"context"
	"database/sql"
	"embed"
	"fmt"
	"io/fs"
	"log"
	"path"
	"slices"
	"strconv"
	"strings"
)

//go:embed migrations/*.sql
var embedded embed.FS

// Runner applies versioned SQL migrations to a DuckDB database.
type Runner struct {
	db     *sql.DB
	source fs.FS
	dir    string
}

// NewRunner creates a runner for the schema embedded in this package.
func NewRunner(db *sql.DB) *Runner {
	return &Runner{db: db, source: embedded, dir: "migrations"}
}

type step struct {
	version int
	file    string
	sql     string
}

// parseVersion extracts NNN from NNN_description.sql. ok is false for files
// that are not migrations.
func parseVersion(file string) (version int, ok bool, err error) {
	if !strings.HasSuffix(file, ".sql") {
		return 0, false, nil
	}
	prefix, _, found := strings.Cut(file, "_")
	if !found {
		return 0, false, nil
	}
	version, err = strconv.Atoi(prefix)
	if err != nil {
		return 0, false, fmt.Errorf("migration %s: bad version prefix: %w", file, err)
	}
	if version <= 0 {
		return 0, false, fmt.Errorf("migration %s: version must be positive", file)
	}
	return version, true, nil
}

func (r *Runner) steps() ([]step, error) {
	entries, err := fs.ReadDir(r.source, r.dir)
	if err != nil {
		return nil, fmt.Errorf("list migrations: %w", err)
	}

	var out []step
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		version, ok, err := parseVersion(e.Name())
		if err != nil {
			return nil, err
		}
		if !ok {
			continue
		}
		data, err := fs.ReadFile(r.source, path.Join(r.dir, e.Name()))
		if err != nil {
			return nil, fmt.Errorf("read migration %s: %w", e.Name(), err)
		}
		out = append(out, step{version: version, file: e.Name(), sql: string(data)})
	}

	slices.SortFunc(out, func(a, b step) int { return a.version - b.version })
	for i, s := range out {
		if s.version != i+1 {
			return nil, fmt.Errorf("migration %s: expected version %d", s.file, i+1)
		}
	}
	return out, nil
}

func (r *Runner) ensureLedger(ctx context.Context) error {
	_, err := r.db.ExecContext(ctx, `CREATE TABLE IF NOT EXISTS schema_migrations (
		version    INTEGER PRIMARY KEY,
		name       VARCHAR NOT NULL,
		applied_at TIMESTAMP DEFAULT current_timestamp
	)`)
	if err != nil {
		return fmt.Errorf("create schema_migrations: %w", err)
	}
	return nil
}

// pending returns the applied version and the steps after it.
func (r *Runner) pending(ctx context.Context) (int, []step, error) {
	if err := r.ensureLedger(ctx); err != nil {
		return 0, nil, err
	}
	all, err := r.steps()
	if err != nil {
		return 0, nil, err
	}

	var v sql.NullInt64
	if err := r.db.QueryRowContext(ctx, "SELECT MAX(version) FROM schema_migrations").Scan(&v); err != nil {
		return 0, nil, fmt.Errorf("read applied version: %w", err)
	}
	current := int(v.Int64)
	if current > len(all) {
		return current, nil, fmt.Errorf("database schema version %d is newer than this build (%d)", current, len(all))
	}
	return current, all[current:], nil
}

// Run applies all pending migrations in order. Each migration and its
// schema_migrations row commit together.
func (r *Runner) Run(ctx context.Context) error {
	_, todo, err := r.pending(ctx)
	if err != nil {
		return err
	}
	for _, s := range todo {
		if err := r.apply(ctx, s); err != nil {
			return err
		}
		log.Printf("migrate: applied %s", s.file)
	}
	return nil
}

func (r *Runner) apply(ctx context.Context, s step) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("migration %s: begin: %w", s.file, err)
	}
	committed := false
	defer func() {
		if !committed {
			_ = tx.Rollback()
		}
	}()

	if _, err := tx.ExecContext(ctx, s.sql); err != nil {
		return fmt.Errorf("migration %s: %w", s.file, err)
	}
	if _, err := tx.ExecContext(ctx, "INSERT INTO schema_migrations (version, name) VALUES (?, ?)", s.version, s.file); err != nil {
		return fmt.Errorf("migration %s: record: %w", s.file, err)
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("migration %s: commit: %w", s.file, err)
	}
	committed = true
	return nil
}

// Status returns the applied version and the number of pending migrations.
func (r *Runner) Status(ctx context.Context) (current int, pending int, err error) {
	current, todo, err := r.pending(ctx)
	if err != nil {
		return 0, 0, err
	}
	return current, len(todo), nil
}

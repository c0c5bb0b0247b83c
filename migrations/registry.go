// Package migrations locates the embedded credential and entity schema for
// each SQL dialect and hands it to a migration runner.
package migrations

import (
	"context"
	"fmt"
	"io/fs"
	"sort"
	"strings"

	integrations "github.com/goliatone/go-integrations"
)

type Dialect string

const (
	Postgres Dialect = "postgres"
	SQLite   Dialect = "sqlite"
)

const DefaultSourceLabel = "go-integrations"

var dialectDirs = map[Dialect]string{
	Postgres: "data/sql/migrations",
	SQLite:   "data/sql/migrations/sqlite",
}

// ForDriver maps a database/sql driver name to its migration dialect.
func ForDriver(driver string) (Dialect, error) {
	switch strings.TrimSpace(strings.ToLower(driver)) {
	case "postgres", "pgx", "postgresql":
		return Postgres, nil
	case "sqlite", "sqlite3":
		return SQLite, nil
	default:
		return "", fmt.Errorf("migrations: no schema for driver %q", driver)
	}
}

// Source is the migration directory of one dialect. Versions lists the
// migration prefixes in apply order.
type Source struct {
	Dialect  Dialect
	Dir      string
	FS       fs.FS
	Versions []string
}

// Sources returns one Source per dialect, in dialect order. Every version
// must ship both an up and a down file.
func Sources(root fs.FS) ([]Source, error) {
	if root == nil {
		root = integrations.GetMigrationsFS()
	}
	dialects := []Dialect{Postgres, SQLite}
	out := make([]Source, 0, len(dialects))
	for _, dialect := range dialects {
		source, err := loadSource(root, dialect)
		if err != nil {
			return nil, err
		}
		out = append(out, source)
	}
	return out, nil
}

func SourceFor(root fs.FS, dialect Dialect) (Source, error) {
	if root == nil {
		root = integrations.GetMigrationsFS()
	}
	return loadSource(root, dialect)
}

func loadSource(root fs.FS, dialect Dialect) (Source, error) {
	dir, ok := dialectDirs[dialect]
	if !ok {
		return Source{}, fmt.Errorf("migrations: unknown dialect %q", dialect)
	}
	sub, err := fs.Sub(root, dir)
	if err != nil {
		return Source{}, fmt.Errorf("migrations: open %s: %w", dir, err)
	}
	entries, err := fs.ReadDir(sub, ".")
	if err != nil {
		return Source{}, fmt.Errorf("migrations: read %s: %w", dir, err)
	}

	ups := map[string]bool{}
	downs := map[string]bool{}
	for _, entry := range entries {
		name := entry.Name()
		if entry.IsDir() {
			continue
		}
		switch {
		case strings.HasSuffix(name, ".up.sql"):
			ups[strings.TrimSuffix(name, ".up.sql")] = true
		case strings.HasSuffix(name, ".down.sql"):
			downs[strings.TrimSuffix(name, ".down.sql")] = true
		}
	}
	if len(ups) == 0 {
		return Source{}, fmt.Errorf("migrations: %s has no *.up.sql files", dir)
	}
	versions := make([]string, 0, len(ups))
	for version := range ups {
		if !downs[version] {
			return Source{}, fmt.Errorf("migrations: %s/%s has no down migration", dir, version)
		}
		versions = append(versions, version)
	}
	for version := range downs {
		if !ups[version] {
			return Source{}, fmt.Errorf("migrations: %s/%s has no up migration", dir, version)
		}
	}
	sort.Strings(versions)
	return Source{Dialect: dialect, Dir: dir, FS: sub, Versions: versions}, nil
}

// RegisterFunc hands one dialect's migrations to a runner, typically
// go-persistence-bun's Client.RegisterSQLMigrations.
type RegisterFunc func(ctx context.Context, source Source, label string) error

type registerOptions struct {
	root     fs.FS
	label    string
	dialects []Dialect
}

type Option func(*registerOptions)

// WithDialects limits registration to the given dialects.
func WithDialects(dialects ...Dialect) Option {
	return func(o *registerOptions) {
		if len(dialects) > 0 {
			o.dialects = append([]Dialect(nil), dialects...)
		}
	}
}

func WithSourceLabel(label string) Option {
	return func(o *registerOptions) {
		if trimmed := strings.TrimSpace(label); trimmed != "" {
			o.label = trimmed
		}
	}
}

// WithRoot replaces the embedded migration tree, for hosts that vendor the
// schema with local changes.
func WithRoot(root fs.FS) Option {
	return func(o *registerOptions) {
		if root != nil {
			o.root = root
		}
	}
}

// Register calls fn once per selected dialect and returns the sources it
// registered.
func Register(ctx context.Context, fn RegisterFunc, opts ...Option) ([]Source, error) {
	if fn == nil {
		return nil, fmt.Errorf("migrations: register function is required")
	}
	cfg := registerOptions{
		label:    DefaultSourceLabel,
		dialects: []Dialect{Postgres, SQLite},
	}
	for _, opt := range opts {
		if opt != nil {
			opt(&cfg)
		}
	}

	seen := map[Dialect]bool{}
	registered := []Source{}
	for _, dialect := range cfg.dialects {
		if seen[dialect] {
			continue
		}
		seen[dialect] = true
		source, err := SourceFor(cfg.root, dialect)
		if err != nil {
			return registered, err
		}
		if err := fn(ctx, source, cfg.label); err != nil {
			return registered, fmt.Errorf("migrations: register %s: %w", dialect, err)
		}
		registered = append(registered, source)
	}
	return registered, nil
}

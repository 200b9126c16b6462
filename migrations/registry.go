// Package migrations resolves the embedded channel schema DDL into
// per-dialect filesystems and plugs them into a caller-supplied migration
// runner.
package migrations

import (
	"context"
	"fmt"
	"io/fs"
	"strings"

	channels "github.com/goliatone/go-channels"
)

const (
	DialectPostgres = "postgres"
	DialectSQLite   = "sqlite"

	embeddedRoot = "data/sql/migrations"
	sourceLabel  = "go-channels"
)

// FilesystemSpec is one dialect's migration filesystem. Postgres DDL sits at
// the root of the embedded tree, the sqlite rendition under sqlite/.
type FilesystemSpec struct {
	Dialect string
	Path    string
	FS      fs.FS
}

// dialectLayout maps each supported dialect to its subdirectory inside the
// embedded tree. Order is registration order.
var dialectLayout = []struct {
	dialect string
	subdir  string
}{
	{dialect: DialectPostgres},
	{dialect: DialectSQLite, subdir: "sqlite"},
}

// RegisterFunc receives one resolved dialect filesystem and attaches it to
// the caller's migration runner.
type RegisterFunc func(ctx context.Context, dialect string, sourceLabel string, fsys fs.FS) error

type Option func(*registration)

type registration struct {
	targets map[string]struct{}
}

// WithValidationTargets restricts registration to the named dialects. The
// default registers every supported dialect.
func WithValidationTargets(targets ...string) Option {
	return func(r *registration) {
		next := map[string]struct{}{}
		for _, target := range targets {
			trimmed := strings.TrimSpace(strings.ToLower(target))
			if trimmed != "" {
				next[trimmed] = struct{}{}
			}
		}
		if len(next) > 0 {
			r.targets = next
		}
	}
}

// Filesystems resolves the embedded migration tree into one filesystem per
// supported dialect and checks each carries at least one up migration.
func Filesystems() ([]FilesystemSpec, error) {
	root, err := fs.Sub(channels.GetMigrationsFS(), embeddedRoot)
	if err != nil {
		return nil, fmt.Errorf("migrations: resolve %s: %w", embeddedRoot, err)
	}

	specs := make([]FilesystemSpec, 0, len(dialectLayout))
	for _, layout := range dialectLayout {
		fsys := root
		path := embeddedRoot
		if layout.subdir != "" {
			fsys, err = fs.Sub(root, layout.subdir)
			if err != nil {
				return nil, fmt.Errorf("migrations: resolve %s filesystem: %w", layout.dialect, err)
			}
			path = embeddedRoot + "/" + layout.subdir
		}
		matches, globErr := fs.Glob(fsys, "*.up.sql")
		if globErr != nil {
			return nil, fmt.Errorf("migrations: glob %s %s: %w", layout.dialect, path, globErr)
		}
		if len(matches) == 0 {
			return nil, fmt.Errorf("migrations: %s filesystem %q has no *.up.sql files", layout.dialect, path)
		}
		specs = append(specs, FilesystemSpec{Dialect: layout.dialect, Path: path, FS: fsys})
	}
	return specs, nil
}

// Register resolves the embedded filesystems and hands each selected dialect
// to registerFn. Unselected dialects are resolved and validated but not
// registered.
func Register(ctx context.Context, registerFn RegisterFunc, opts ...Option) ([]FilesystemSpec, error) {
	if registerFn == nil {
		return nil, fmt.Errorf("migrations: register function is required")
	}

	reg := registration{targets: map[string]struct{}{
		DialectPostgres: {},
		DialectSQLite:   {},
	}}
	for _, opt := range opts {
		if opt == nil {
			continue
		}
		opt(&reg)
	}

	specs, err := Filesystems()
	if err != nil {
		return nil, err
	}
	for _, spec := range specs {
		if _, selected := reg.targets[spec.Dialect]; !selected {
			continue
		}
		if err := registerFn(ctx, spec.Dialect, sourceLabel, spec.FS); err != nil {
			return specs, fmt.Errorf("migrations: register %s (%s): %w", spec.Dialect, spec.Path, err)
		}
	}
	return specs, nil
}

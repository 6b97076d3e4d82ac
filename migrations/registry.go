// Package migrations hands the embedded integration_kv schema to a host
// migration runner, one filesystem per SQL dialect.
package migrations

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"path"
	"slices"
	"strings"

	integrations "github.com/goliatone/go-integrations"
)

const (
	DialectPostgres = "postgres"
	DialectSQLite   = "sqlite"

	defaultSourceLabel = "go-integrations"
	embeddedRoot       = "data/sql/migrations"
)

// FilesystemSpec is the migration set of one dialect.
type FilesystemSpec struct {
	Dialect string
	Path    string
	FS      fs.FS
}

// Registration describes what Register handed to the runner.
type Registration struct {
	SourceLabel       string
	ValidationTargets []string
	Filesystems       []FilesystemSpec
}

// RegisterFunc receives each dialect filesystem, e.g. a go-persistence-bun
// client's RegisterSQLMigrations.
type RegisterFunc func(ctx context.Context, dialect string, sourceLabel string, fsys fs.FS) error

type Option func(*Registration)

func WithDialectSourceLabel(label string) Option {
	return func(r *Registration) {
		if label = strings.TrimSpace(label); label != "" {
			r.SourceLabel = label
		}
	}
}

// WithValidationTargets limits registration to the named dialects.
func WithValidationTargets(targets ...string) Option {
	return func(r *Registration) {
		if normalized := normalizeDialects(targets); len(normalized) > 0 {
			r.ValidationTargets = normalized
		}
	}
}

// WithFilesystems replaces the embedded filesystems. Specs without a dialect
// or filesystem are ignored.
func WithFilesystems(filesystems ...FilesystemSpec) Option {
	return func(r *Registration) {
		kept := make([]FilesystemSpec, 0, len(filesystems))
		for _, spec := range filesystems {
			spec.Dialect = strings.ToLower(strings.TrimSpace(spec.Dialect))
			if spec.Dialect == "" || spec.FS == nil {
				continue
			}
			kept = append(kept, spec)
		}
		if len(kept) > 0 {
			r.Filesystems = kept
		}
	}
}

// Filesystems splits a migration tree into its postgres root and sqlite
// subdirectory. Without a source it reads the embedded tree. Each dialect
// must carry at least one *.up.sql file.
func Filesystems(sources ...fs.FS) ([]FilesystemSpec, error) {
	var source fs.FS = integrations.GetMigrationsFS()
	if len(sources) > 0 && sources[0] != nil {
		source = sources[0]
	}
	postgres, postgresPath, err := locateRoot(source)
	if err != nil {
		return nil, err
	}
	sqlite, err := fs.Sub(postgres, DialectSQLite)
	if err != nil {
		return nil, fmt.Errorf("migrations: sqlite directory: %w", err)
	}
	specs := []FilesystemSpec{
		{Dialect: DialectPostgres, Path: postgresPath, FS: postgres},
		{Dialect: DialectSQLite, Path: path.Join(postgresPath, DialectSQLite), FS: sqlite},
	}
	for _, spec := range specs {
		ups, err := fs.Glob(spec.FS, "*.up.sql")
		if err != nil {
			return nil, fmt.Errorf("migrations: list %s: %w", spec.Path, err)
		}
		if len(ups) == 0 {
			return nil, fmt.Errorf("migrations: no %s migrations under %q", spec.Dialect, spec.Path)
		}
	}
	return specs, nil
}

// Register calls registerFn once per filesystem whose dialect is a
// validation target. Both dialects are targets by default.
func Register(ctx context.Context, registerFn RegisterFunc, opts ...Option) (Registration, error) {
	reg := Registration{
		SourceLabel:       defaultSourceLabel,
		ValidationTargets: []string{DialectPostgres, DialectSQLite},
	}
	specs, err := Filesystems()
	if err != nil {
		return reg, err
	}
	reg.Filesystems = specs
	for _, opt := range opts {
		if opt != nil {
			opt(&reg)
		}
	}
	if registerFn == nil {
		return reg, errors.New("migrations: register function is required")
	}

	for _, spec := range reg.Filesystems {
		if !slices.Contains(reg.ValidationTargets, spec.Dialect) {
			continue
		}
		if err := registerFn(ctx, spec.Dialect, reg.SourceLabel, spec.FS); err != nil {
			return reg, fmt.Errorf("migrations: register %s from %s: %w", spec.Dialect, spec.Path, err)
		}
	}
	return reg, nil
}

// locateRoot accepts the module tree or a directory holding the .sql files.
func locateRoot(source fs.FS) (fs.FS, string, error) {
	if _, err := fs.Stat(source, embeddedRoot); err == nil {
		sub, err := fs.Sub(source, embeddedRoot)
		return sub, embeddedRoot, err
	}
	if direct, _ := fs.Glob(source, "*.sql"); len(direct) > 0 {
		return source, ".", nil
	}
	return nil, "", fmt.Errorf("migrations: %s not found", embeddedRoot)
}

func normalizeDialects(values []string) []string {
	out := make([]string, 0, len(values))
	for _, value := range values {
		value = strings.ToLower(strings.TrimSpace(value))
		if value != "" && !slices.Contains(out, value) {
			out = append(out, value)
		}
	}
	return out
}

// Package store provides the Data Access Layer for per-project options.
// Options are free-form key/value pairs; grouping reads a handful of well-known keys.
package store

import (
	"context"
	"errors"
	"maps"
	"time"
)

// Compile-time checks that both backends implement ProjectOptionsRepository.
var (
	_ ProjectOptionsRepository = (*PostgresStore)(nil)
	_ ProjectOptionsRepository = (*MemoryStore)(nil)
)

// ErrInvalidProjectID is returned for non-positive project ids.
var ErrInvalidProjectID = errors.New("project id must be positive")

// ProjectOptions is the set of options stored for one project.
// A project without rows is represented by an empty Values map.
type ProjectOptions struct {
	ProjectID int64
	Values    map[string]string
	UpdatedAt time.Time
}

// Option returns the value stored under key, or "" when unset.
func (p *ProjectOptions) Option(key string) string {
	if p == nil {
		return ""
	}
	return p.Values[key]
}

// Clone returns a deep copy.
func (p *ProjectOptions) Clone() *ProjectOptions {
	return &ProjectOptions{ProjectID: p.ProjectID, Values: maps.Clone(p.Values), UpdatedAt: p.UpdatedAt}
}

// ProjectOptionsRepository defines persistence operations for project options.
type ProjectOptionsRepository interface {
	// GetProjectOptions returns every option of a project. Unknown projects yield empty options.
	GetProjectOptions(ctx context.Context, projectID int64) (*ProjectOptions, error)

	// SetProjectOption inserts or replaces a single option.
	SetProjectOption(ctx context.Context, projectID int64, key, value string) error

	// DeleteProjectOption removes an option. It reports whether a row existed.
	DeleteProjectOption(ctx context.Context, projectID int64, key string) (bool, error)

	// ListProjectOptions pages through projects with at least one option, ordered by id.
	// Pass the last id of the previous page as afterID (0 for the first page).
	ListProjectOptions(ctx context.Context, afterID int64, limit int) ([]*ProjectOptions, error)
}

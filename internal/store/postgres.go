package store

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"
)

// PostgresStore is the implementation of ProjectOptionsRepository backed by PostgreSQL.
type PostgresStore struct {
	db *pgxpool.Pool
}

// NewPostgresStore creates a new repository instance with the given connection pool.
func NewPostgresStore(db *pgxpool.Pool) *PostgresStore {
	if db == nil {
		panic("store: database pool cannot be nil")
	}
	return &PostgresStore{db: db}
}

// Name identifies the store as a readiness checker.
func (s *PostgresStore) Name() string { return "postgres" }

// Check verifies the pool can reach the database and that the project_options
// schema has been migrated.
func (s *PostgresStore) Check(ctx context.Context) error {
	if _, err := s.db.Exec(ctx, `SELECT 1 FROM project_options LIMIT 1`); err != nil {
		return fmt.Errorf("project_options is not readable: %w", err)
	}
	return nil
}

// GetProjectOptions loads all options of a project in a single query.
func (s *PostgresStore) GetProjectOptions(ctx context.Context, projectID int64) (*ProjectOptions, error) {
	if projectID <= 0 {
		return nil, ErrInvalidProjectID
	}

	query := `
		SELECT key, value, updated_at
		FROM project_options
		WHERE project_id = $1
	`

	rows, err := s.db.Query(ctx, query, projectID)
	if err != nil {
		return nil, fmt.Errorf("failed to query options of project %d: %w", projectID, err)
	}
	defer rows.Close()

	opts := &ProjectOptions{ProjectID: projectID, Values: make(map[string]string)}
	for rows.Next() {
		var row optionRow
		if err := rows.Scan(&row.key, &row.value, &row.updatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan option row: %w", err)
		}
		opts.add(row)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows iteration error: %w", err)
	}

	return opts, nil
}

// SetProjectOption upserts an option and bumps its updated_at.
func (s *PostgresStore) SetProjectOption(ctx context.Context, projectID int64, key, value string) error {
	if projectID <= 0 {
		return ErrInvalidProjectID
	}

	query := `
		INSERT INTO project_options (project_id, key, value)
		VALUES ($1, $2, $3)
		ON CONFLICT (project_id, key)
		DO UPDATE SET value = EXCLUDED.value, updated_at = now()
	`

	if _, err := s.db.Exec(ctx, query, projectID, key, value); err != nil {
		return fmt.Errorf("failed to set option %q of project %d: %w", key, projectID, err)
	}
	return nil
}

// DeleteProjectOption removes an option.
func (s *PostgresStore) DeleteProjectOption(ctx context.Context, projectID int64, key string) (bool, error) {
	if projectID <= 0 {
		return false, ErrInvalidProjectID
	}

	tag, err := s.db.Exec(ctx, `DELETE FROM project_options WHERE project_id = $1 AND key = $2`, projectID, key)
	if err != nil {
		return false, fmt.Errorf("failed to delete option %q of project %d: %w", key, projectID, err)
	}
	return tag.RowsAffected() > 0, nil
}

// ListProjectOptions uses keyset pagination on project_id so pages stay stable
// while options are being written.
func (s *PostgresStore) ListProjectOptions(ctx context.Context, afterID int64, limit int) ([]*ProjectOptions, error) {
	if limit <= 0 {
		return nil, fmt.Errorf("limit must be positive, got %d", limit)
	}

	query := `
		WITH page AS (
			SELECT DISTINCT project_id
			FROM project_options
			WHERE project_id > $1
			ORDER BY project_id
			LIMIT $2
		)
		SELECT o.project_id, o.key, o.value, o.updated_at
		FROM project_options o
		JOIN page USING (project_id)
		ORDER BY o.project_id, o.key
	`

	rows, err := s.db.Query(ctx, query, afterID, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list project options: %w", err)
	}
	defer rows.Close()

	projects := make([]*ProjectOptions, 0, limit)
	var current *ProjectOptions
	for rows.Next() {
		var (
			projectID int64
			row       optionRow
		)
		if err := rows.Scan(&projectID, &row.key, &row.value, &row.updatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan option row: %w", err)
		}
		if current == nil || current.ProjectID != projectID {
			current = &ProjectOptions{ProjectID: projectID, Values: make(map[string]string)}
			projects = append(projects, current)
		}
		current.add(row)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows iteration error: %w", err)
	}

	return projects, nil
}

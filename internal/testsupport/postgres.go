// Package testsupport provides helpers shared by the grouper test suites: ephemeral
// PostgreSQL and Redis containers for integration tests, project option fixtures
// and Prometheus metric assertions.
package testsupport

import (
	"context"
	"fmt"
	"maps"
	"path/filepath"
	"slices"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/modules/postgres"
	"github.com/testcontainers/testcontainers-go/wait"

	"github.com/rafaeljc/grouper/internal/config"
	"github.com/rafaeljc/grouper/internal/database"
)

// PostgresContainer is a migrated PostgreSQL instance with a pool opened through
// database.NewPostgresPool, as the binaries open theirs.
type PostgresContainer struct {
	Container        testcontainers.Container
	DB               *pgxpool.Pool
	ConnectionString string
}

// ProjectFixtures maps project ids to the options stored for them.
type ProjectFixtures map[int64]map[string]string

// Terminate closes the pool and removes the container.
func (c *PostgresContainer) Terminate(ctx context.Context) error {
	c.DB.Close()
	return c.Container.Terminate(ctx)
}

// StartPostgresContainer runs every *.sql file of migrationsDir, in name order,
// against a fresh PostgreSQL 15 container.
func StartPostgresContainer(ctx context.Context, migrationsDir string) (*PostgresContainer, error) {
	migrations, err := filepath.Glob(filepath.Join(migrationsDir, "*.sql"))
	if err != nil {
		return nil, fmt.Errorf("failed to list migrations: %w", err)
	}
	if len(migrations) == 0 {
		return nil, fmt.Errorf("no migration files found in %s", migrationsDir)
	}
	for i, m := range migrations {
		if migrations[i], err = filepath.Abs(m); err != nil {
			return nil, fmt.Errorf("failed to resolve migration %s: %w", m, err)
		}
	}

	ctr, err := postgres.Run(ctx, "postgres:15-alpine",
		postgres.WithDatabase("grouper_test"),
		postgres.WithUsername("grouper"),
		postgres.WithPassword("grouper"),
		postgres.WithInitScripts(migrations...),
		testcontainers.WithWaitStrategy(
			wait.ForLog("database system is ready to accept connections").
				WithOccurrence(2).
				WithStartupTimeout(30*time.Second),
		),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to start postgres container: %w", err)
	}

	connStr, err := ctr.ConnectionString(ctx, "sslmode=disable")
	if err != nil {
		_ = ctr.Terminate(ctx)
		return nil, fmt.Errorf("failed to get connection string: %w", err)
	}

	pool, err := database.NewPostgresPool(ctx, &config.DatabaseConfig{
		URL:             connStr,
		MaxConns:        5,
		MinConns:        1,
		MaxConnLifetime: 30 * time.Minute,
		MaxConnIdleTime: 5 * time.Minute,
		ConnectTimeout:  5 * time.Second,
	})
	if err != nil {
		_ = ctr.Terminate(ctx)
		return nil, fmt.Errorf("failed to create pgx pool: %w", err)
	}

	return &PostgresContainer{Container: ctr, DB: pool, ConnectionString: connStr}, nil
}

// SeedProjectOptions writes fixtures into project_options in one batch. Existing
// options with the same key are overwritten.
func (c *PostgresContainer) SeedProjectOptions(ctx context.Context, fixtures ProjectFixtures) error {
	batch := &pgx.Batch{}
	for _, projectID := range slices.Sorted(maps.Keys(fixtures)) {
		options := fixtures[projectID]
		for _, key := range slices.Sorted(maps.Keys(options)) {
			batch.Queue(`
				INSERT INTO project_options (project_id, key, value)
				VALUES ($1, $2, $3)
				ON CONFLICT (project_id, key) DO UPDATE SET value = EXCLUDED.value, updated_at = now()
			`, projectID, key, options[key])
		}
	}
	if batch.Len() == 0 {
		return nil
	}
	if err := c.DB.SendBatch(ctx, batch).Close(); err != nil {
		return fmt.Errorf("failed to seed project options: %w", err)
	}
	return nil
}

// TruncateProjectOptions removes every stored option.
func (c *PostgresContainer) TruncateProjectOptions(ctx context.Context) error {
	if _, err := c.DB.Exec(ctx, `TRUNCATE project_options`); err != nil {
		return fmt.Errorf("failed to truncate project options: %w", err)
	}
	return nil
}

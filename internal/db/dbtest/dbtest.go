//go:build integration

// Package dbtest starts a disposable PostgreSQL container with the schema
// applied. Docker must be available; tests are skipped otherwise.
package dbtest

import (
	"context"
	"database/sql"
	"testing"

	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/modules/postgres"

	"github.com/onnwee/commons/internal/db"
)

// Image is the PostgreSQL image used for integration tests.
const Image = "postgres:16-alpine"

// Start runs a container, migrates it, and returns an open pool. The
// container is terminated when t finishes.
func Start(t *testing.T) *sql.DB {
	t.Helper()
	ctx := context.Background()

	ctr, err := postgres.Run(ctx, Image,
		postgres.WithDatabase("commons"),
		postgres.WithUsername("commons"),
		postgres.WithPassword("commons"),
		postgres.BasicWaitStrategies(),
	)
	testcontainers.CleanupContainer(t, ctr)
	if err != nil {
		t.Skipf("PostgreSQL container not available, skipping integration test: %v", err)
	}

	dsn, err := ctr.ConnectionString(ctx, "sslmode=disable")
	if err != nil {
		t.Fatalf("failed to get connection string: %v", err)
	}

	pool, err := db.Open(ctx, dsn)
	if err != nil {
		t.Fatalf("failed to open database: %v", err)
	}
	t.Cleanup(func() { pool.Close() })

	if err := db.Migrate(ctx, pool, nil); err != nil {
		t.Fatalf("failed to migrate: %v", err)
	}
	return pool
}

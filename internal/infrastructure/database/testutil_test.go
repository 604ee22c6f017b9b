package database

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/modules/postgres"
	"github.com/testcontainers/testcontainers-go/wait"

	"wallet-cluster-analyzer/internal/infrastructure/config"
	"wallet-cluster-analyzer/internal/infrastructure/logger"
)

// setupTestDB creates a PostgreSQL container for testing and applies the embedded migrations.
// Returns a cleanup function that must be called after tests complete.
func setupTestDB(t *testing.T) (*Pool, func()) {
	t.Helper()
	if testing.Short() {
		t.Skip("skipping postgres container test in short mode")
	}

	ctx := context.Background()

	container, err := postgres.Run(ctx, "postgres:15-alpine",
		postgres.WithDatabase("testdb"),
		postgres.WithUsername("test"),
		postgres.WithPassword("test"),
		testcontainers.WithWaitStrategy(
			wait.ForLog("database system is ready to accept connections").
				WithOccurrence(2).
				WithStartupTimeout(60*time.Second),
		),
	)
	require.NoError(t, err, "failed to start postgres container")

	dsn, err := container.ConnectionString(ctx, "sslmode=disable")
	require.NoError(t, err, "failed to get connection string")

	pool, err := NewPool(ctx, dsn, 4)
	require.NoError(t, err, "failed to create pool")

	require.NoError(t, RunPostgresMigrations(ctx, pool), "failed to run migrations")

	cleanup := func() {
		pool.Close()
		if err := container.Terminate(ctx); err != nil {
			t.Logf("failed to terminate container: %v", err)
		}
	}

	return pool, cleanup
}

const neo4jTestPassword = "integration-test"

// setupTestNeo4J starts a Neo4j container and returns a connected client with
// the schema applied. Returns a cleanup function that must be called after tests complete.
func setupTestNeo4J(t *testing.T) (*Neo4JClient, func()) {
	t.Helper()
	if testing.Short() {
		t.Skip("skipping neo4j container test in short mode")
	}

	ctx := context.Background()

	container, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: testcontainers.ContainerRequest{
			Image:        "neo4j:5",
			ExposedPorts: []string{"7687/tcp"},
			Env:          map[string]string{"NEO4J_AUTH": "neo4j/" + neo4jTestPassword},
			WaitingFor: wait.ForLog("Started.").
				WithStartupTimeout(120 * time.Second),
		},
		Started: true,
	})
	require.NoError(t, err, "failed to start neo4j container")

	uri, err := container.PortEndpoint(ctx, "7687/tcp", "bolt")
	require.NoError(t, err, "failed to get bolt endpoint")

	client := NewNeo4JClient(&config.Neo4JConfig{
		URI:                          uri,
		Username:                     "neo4j",
		Password:                     neo4jTestPassword,
		Database:                     "neo4j",
		ConnectTimeout:               10 * time.Second,
		MaxConnectionPoolSize:        4,
		ConnectionAcquisitionTimeout: 10 * time.Second,
	}, logger.NewNop())
	require.NoError(t, client.Connect(ctx), "failed to connect to neo4j")

	cleanup := func() {
		_ = client.Close(ctx)
		if err := container.Terminate(ctx); err != nil {
			t.Logf("failed to terminate container: %v", err)
		}
	}

	return client, cleanup
}

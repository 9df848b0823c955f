// Package testing provides database helpers for integration tests. Import
// it aliased (e.g. guidetest) so it does not shadow the standard library.
package testing

import (
	"context"
	"database/sql"
	"testing"
	"time"

	_ "github.com/lib/pq"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"

	"github.com/tidemark-health/guidepost/config"
)

const (
	postgresImage = "postgres:15-alpine"
	postgresUser  = "guidepost"
	postgresPass  = "guidepost"
	postgresDB    = "guidepost_test"
)

// StartPostgres launches a disposable PostgreSQL container and returns an
// open connection to it together with a database configuration pointing at
// the container, schema names prefilled with the shipping defaults. Both the
// connection and the container are torn down through t.Cleanup.
func StartPostgres(t *testing.T) (*sql.DB, config.DatabaseConfig) {
	t.Helper()

	ctx := context.Background()
	req := testcontainers.ContainerRequest{
		Image:        postgresImage,
		ExposedPorts: []string{"5432/tcp"},
		Env: map[string]string{
			"POSTGRES_USER":     postgresUser,
			"POSTGRES_PASSWORD": postgresPass,
			"POSTGRES_DB":       postgresDB,
		},
		WaitingFor: wait.ForLog("database system is ready to accept connections").
			WithStartupTimeout(60 * time.Second),
	}

	container, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: req,
		Started:          true,
	})
	if err != nil {
		t.Fatalf("starting postgres container: %v", err)
	}
	t.Cleanup(func() {
		if err := container.Terminate(context.Background()); err != nil {
			t.Logf("terminating postgres container: %v", err)
		}
	})

	host, err := container.Host(ctx)
	if err != nil {
		t.Fatalf("resolving container host: %v", err)
	}
	port, err := container.MappedPort(ctx, "5432")
	if err != nil {
		t.Fatalf("resolving container port: %v", err)
	}

	cfg := config.DatabaseConfig{
		Host:                  host,
		Port:                  port.Int(),
		User:                  postgresUser,
		Password:              postgresPass,
		Name:                  postgresDB,
		SSLMode:               "disable",
		ResultSchema:          "celida",
		StagingSchema:         "temp",
		DataSchema:            "cds_cdm",
		ConnectTimeoutSeconds: 10,
		LockTimeout:           10 * time.Second,
	}

	conn, err := sql.Open("postgres", cfg.DSN())
	if err != nil {
		t.Fatalf("opening postgres connection: %v", err)
	}
	t.Cleanup(func() { conn.Close() })

	// The readiness log line can precede the server accepting TCP
	// connections, so ping until it answers.
	for i := 0; i < 30; i++ {
		if err = conn.Ping(); err == nil {
			break
		}
		time.Sleep(time.Second)
	}
	if err != nil {
		t.Fatalf("postgres never became ready: %v", err)
	}

	return conn, cfg
}

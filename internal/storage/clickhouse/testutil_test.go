package clickhouse

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"
)

// startClickHouse runs a ClickHouse container with the bars table created.
// The container is terminated when the test ends.
func startClickHouse(t *testing.T) *Conn {
	t.Helper()
	if testing.Short() {
		t.Skip("skipping integration test in short mode")
	}

	ctx := context.Background()
	container, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: testcontainers.ContainerRequest{
			Image:        "clickhouse/clickhouse-server:24.1-alpine",
			ExposedPorts: []string{"9000/tcp"},
			Env:          map[string]string{"CLICKHOUSE_DB": "market"},
			WaitingFor: wait.ForAll(
				wait.ForLog("Ready for connections").WithStartupTimeout(time.Minute),
				wait.ForListeningPort("9000/tcp"),
			),
		},
		Started: true,
	})
	require.NoError(t, err, "start clickhouse container")
	t.Cleanup(func() { _ = container.Terminate(ctx) })

	endpoint, err := container.PortEndpoint(ctx, "9000/tcp", "")
	require.NoError(t, err)

	conn, err := NewConn(ctx, fmt.Sprintf("clickhouse://%s/market", endpoint))
	require.NoError(t, err)
	t.Cleanup(func() { _ = conn.Close() })

	// Single statement; the native protocol rejects a trailing semicolon.
	ddl, err := os.ReadFile(filepath.Join("..", "migrations", "clickhouse", "001_bars.sql"))
	require.NoError(t, err, "read bars migration")
	stmt := strings.TrimRight(strings.TrimSpace(string(ddl)), ";")
	require.NoError(t, conn.Exec(ctx, stmt), "create bars table")

	return conn
}

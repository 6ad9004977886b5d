// Package testvalkey starts a throwaway valkey server for integration tests.
package testvalkey

import (
	"context"
	"testing"

	"github.com/testcontainers/testcontainers-go"
	tcValKey "github.com/testcontainers/testcontainers-go/modules/valkey"
)

const ValKeyImage = "docker.io/valkey/valkey:8-alpine"

// Start runs a valkey container for the duration of the test and returns its
// redis:// connection uri. The test is skipped when no container runtime is reachable.
func Start(ctx context.Context, t *testing.T) string {
	t.Helper()

	testcontainers.SkipIfProviderIsNotHealthy(t)

	valkeyContainer, err := tcValKey.Run(ctx, ValKeyImage)
	testcontainers.CleanupContainer(t, valkeyContainer)
	if err != nil {
		t.Fatalf("failed to start valkey container: %v", err)
	}

	conn, err := valkeyContainer.ConnectionString(ctx)
	if err != nil {
		t.Fatalf("failed to get connection string for valkey container: %v", err)
	}

	return conn
}

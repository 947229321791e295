//go:build integration

package storage

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/modules/postgres"
	"github.com/testcontainers/testcontainers-go/wait"

	"github.com/platinummonkey/turnstile/pkg/apperror"
	"github.com/platinummonkey/turnstile/pkg/observability"
)

// setupPostgresStore starts a PostgreSQL container and opens a migrated store on it.
// The test is skipped when no container runtime is available.
func setupPostgresStore(t *testing.T) *Store {
	t.Helper()
	ctx := context.Background()

	provider, err := testcontainers.ProviderDocker.GetProvider()
	if err != nil {
		t.Skip("Docker/Podman not available, skipping integration tests")
	}
	provider.Close()

	container, err := postgres.Run(ctx, "postgres:15-alpine",
		postgres.WithDatabase("turnstile_test"),
		postgres.WithUsername("turnstile"),
		postgres.WithPassword("turnstile_test_password"),
		testcontainers.WithWaitStrategy(
			wait.ForLog("database system is ready to accept connections").
				WithOccurrence(2).
				WithStartupTimeout(60*time.Second)),
	)
	if err != nil {
		t.Skipf("Failed to start PostgreSQL container: %v", err)
	}
	t.Cleanup(func() {
		// Fresh context: the test context may already be cancelled
		cleanupCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		if err := container.Terminate(cleanupCtx); err != nil {
			t.Errorf("Failed to terminate container: %v", err)
		}
	})

	connStr, err := container.ConnectionString(ctx, "sslmode=disable")
	require.NoError(t, err)

	store, err := Open(ctx, Config{Driver: DriverPostgres, URL: connStr}, observability.NopLogger())
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })
	return store
}

func TestPostgres_AccountLifecycle(t *testing.T) {
	store := setupPostgresStore(t)
	ctx := context.Background()

	user := registerUser(t, store, "ada@example.com")

	_, err := store.Register(ctx, RegisterInput{Email: "ADA@example.com", FirstName: "A", LastName: "B", Password: "password1"})
	assert.True(t, apperror.IsKind(err, apperror.KindConflict))

	loggedIn, err := store.Login(ctx, "Ada@Example.com", "correct horse")
	require.NoError(t, err)
	assert.Equal(t, user.ID, loggedIn.ID)

	cred := testCredential(user.ID, 1)
	require.NoError(t, store.AddCredential(ctx, cred))

	ok, err := store.UpdateSignCount(ctx, cred.ID, 3, 9, time.Now())
	require.NoError(t, err)
	assert.True(t, ok)

	found, err := store.FindCredential(ctx, cred.ID)
	require.NoError(t, err)
	assert.Equal(t, uint32(9), found.SignCount)
	assert.NotNil(t, found.LastUsedAt)
}

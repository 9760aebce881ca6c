//go:build integration

package postgres_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	tcpostgres "github.com/testcontainers/testcontainers-go/modules/postgres"
	"github.com/testcontainers/testcontainers-go/wait"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"

	"github.com/coregate/coregate/internal/grace"
	gracepg "github.com/coregate/coregate/internal/grace/store/postgres"
)

// TestPostgresStoreConformance mirrors the teacher's
// badger_conformance_test.go pattern: a build-tag-gated suite that spins
// up a real backing engine via testcontainers and runs the same
// operations the in-memory store's unit tests exercise, to catch
// anything the in-memory fake can't.
func TestPostgresStoreConformance(t *testing.T) {
	ctx := context.Background()

	container, err := tcpostgres.Run(ctx, "postgres:16-alpine",
		tcpostgres.WithDatabase("coregate"),
		tcpostgres.WithUsername("coregate"),
		tcpostgres.WithPassword("coregate"),
		testcontainers.WithWaitStrategy(
			wait.ForLog("database system is ready to accept connections").WithOccurrence(2).WithStartupTimeout(60*time.Second)),
	)
	require.NoError(t, err)
	t.Cleanup(func() { _ = container.Terminate(ctx) })

	dsn, err := container.ConnectionString(ctx, "sslmode=disable")
	require.NoError(t, err)

	db, err := gorm.Open(postgres.Open(dsn), &gorm.Config{})
	require.NoError(t, err)

	store := gracepg.New(db)
	require.NoError(t, store.Migrate())

	coord := grace.NewCoordinator(store, "cluster-grace")
	require.NoError(t, coord.Create(ctx))
	require.NoError(t, coord.Add(ctx, []string{"replica-a"}))
	require.NoError(t, coord.Join(ctx, []string{"replica-a"}, true))

	epochs, err := coord.Epochs(ctx)
	require.NoError(t, err)
	require.True(t, epochs.InGracePeriod())

	require.NoError(t, coord.Lift(ctx, []string{"replica-a"}))
	epochs, err = coord.Epochs(ctx)
	require.NoError(t, err)
	require.False(t, epochs.InGracePeriod())
}

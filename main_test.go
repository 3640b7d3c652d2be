//go:build integration

package main

import (
	"context"
	"testing"
	"time"

	"github.com/andrenbrandao/bnb-transfers/pkg/domain"
	"github.com/andrenbrandao/bnb-transfers/pkg/repositories"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	tcpostgres "github.com/testcontainers/testcontainers-go/modules/postgres"
	"github.com/testcontainers/testcontainers-go/wait"
	"go.uber.org/zap"
)

func TestSeedDB(t *testing.T) {
	ctx := context.Background()

	container, err := tcpostgres.Run(ctx,
		"postgres:16-alpine",
		tcpostgres.WithDatabase("test-db"),
		tcpostgres.WithUsername("admin"),
		tcpostgres.WithPassword("123"),
		testcontainers.WithWaitStrategy(
			wait.ForLog("database system is ready to accept connections").
				WithOccurrence(2).
				WithStartupTimeout(30*time.Second),
		),
	)
	require.NoError(t, err)
	t.Cleanup(func() { require.NoError(t, container.Terminate(ctx)) })

	dsn, err := container.ConnectionString(ctx, "sslmode=disable")
	require.NoError(t, err)

	logger := zap.NewNop()
	pool, err := repositories.Connect(ctx, dsn, 4, 10*time.Second, logger)
	require.NoError(t, err)
	t.Cleanup(pool.Close)
	require.NoError(t, repositories.Migrate(dsn, logger))

	t.Run("seeds the database with 5 accounts", func(t *testing.T) {
		require.NoError(t, seedDB(ctx, pool, "seed.sql"))

		var got int
		require.NoError(t, pool.QueryRow(ctx, "SELECT COUNT(*) FROM accounts").Scan(&got))
		assert.Equal(t, 5, got)
	})

	t.Run("seeding twice keeps 5 accounts", func(t *testing.T) {
		require.NoError(t, seedDB(ctx, pool, "seed.sql"))

		var got int
		require.NoError(t, pool.QueryRow(ctx, "SELECT COUNT(*) FROM accounts").Scan(&got))
		assert.Equal(t, 5, got)
	})

	t.Run("registration continues after the seeded ids", func(t *testing.T) {
		store := repositories.NewPostgres(pool, 5*time.Second)
		customer, account, err := store.RegisterCustomer(ctx, domain.Registration{Name: "Isha Nair", Email: "isha@example.com", MobileNumber: "9800000006"})
		require.NoError(t, err)
		assert.EqualValues(t, 6, customer.ID)
		assert.Equal(t, "BNB000006", account.No)
	})

	t.Run("missing file", func(t *testing.T) {
		assert.Error(t, seedDB(ctx, pool, "does-not-exist.sql"))
	})
}

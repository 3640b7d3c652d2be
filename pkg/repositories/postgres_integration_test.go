//go:build integration

package repositories_test

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/andrenbrandao/bnb-transfers/pkg/domain"
	"github.com/andrenbrandao/bnb-transfers/pkg/ledger"
	"github.com/andrenbrandao/bnb-transfers/pkg/repositories"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	tcpostgres "github.com/testcontainers/testcontainers-go/modules/postgres"
	"github.com/testcontainers/testcontainers-go/wait"
	"go.uber.org/zap"
)

// setupPostgres starts a disposable database, applies the migrations and
// returns a store bound to it.
func setupPostgres(t *testing.T) *repositories.Postgres {
	t.Helper()
	ctx := context.Background()

	container, err := tcpostgres.Run(ctx,
		"postgres:16-alpine",
		tcpostgres.WithDatabase("bnb"),
		tcpostgres.WithUsername("test"),
		tcpostgres.WithPassword("test"),
		testcontainers.WithWaitStrategy(
			wait.ForLog("database system is ready to accept connections").
				WithOccurrence(2).
				WithStartupTimeout(30*time.Second),
		),
	)
	require.NoError(t, err)
	t.Cleanup(func() {
		require.NoError(t, container.Terminate(ctx))
	})

	dsn, err := container.ConnectionString(ctx, "sslmode=disable")
	require.NoError(t, err)

	logger := zap.NewNop()
	require.NoError(t, repositories.Migrate(dsn, logger))
	require.NoError(t, repositories.Migrate(dsn, logger), "second run must be a no-op")

	pool, err := repositories.Connect(ctx, dsn, 20, 10*time.Second, logger)
	require.NoError(t, err)
	t.Cleanup(pool.Close)

	return repositories.NewPostgres(pool, 5*time.Second)
}

func openPair(t *testing.T, store *repositories.Postgres, a, b string) (domain.Customer, domain.Account, domain.Customer, domain.Account) {
	t.Helper()
	ctx := context.Background()

	alice, _, err := store.RegisterCustomer(ctx, domain.Registration{Name: "Alice", Email: "alice@example.com", MobileNumber: "9000000001"})
	require.NoError(t, err)
	bob, _, err := store.RegisterCustomer(ctx, domain.Registration{Name: "Bob", Email: "bob@example.com", MobileNumber: "9000000002"})
	require.NoError(t, err)

	accountA, err := store.OpenAccount(ctx, alice.ID, domain.AccountCurrent, decimal.RequireFromString(a))
	require.NoError(t, err)
	accountB, err := store.OpenAccount(ctx, bob.ID, domain.AccountCurrent, decimal.RequireFromString(b))
	require.NoError(t, err)

	return alice, accountA, bob, accountB
}

func balanceOf(t *testing.T, store *repositories.Postgres, accountNo string) decimal.Decimal {
	t.Helper()
	account, err := store.FindAccount(context.Background(), accountNo)
	require.NoError(t, err)
	return account.Balance
}

func TestIntegration_Postgres_Registration(t *testing.T) {
	store := setupPostgres(t)
	ctx := context.Background()

	customer, account, err := store.RegisterCustomer(ctx, domain.Registration{Name: "Asha", Email: "asha@example.com", MobileNumber: "1"})
	require.NoError(t, err)
	assert.Equal(t, domain.AccountNumber(customer.ID, 0), account.No)
	assert.True(t, balanceOf(t, store, account.No).Equal(domain.OpeningBalance))

	_, _, err = store.RegisterCustomer(ctx, domain.Registration{Name: "Asha", Email: "asha@example.com", MobileNumber: "2"})
	assert.ErrorIs(t, err, domain.ErrDuplicate)

	found, err := store.SearchCustomer(ctx, "asha@example.com")
	require.NoError(t, err)
	assert.Equal(t, customer.ID, found.ID)

	savings, err := store.SavingsAccount(ctx, customer.ID)
	require.NoError(t, err)
	assert.Equal(t, account.No, savings.No)
}

func TestIntegration_Postgres_TransferScenarios(t *testing.T) {
	store := setupPostgres(t)
	engine := ledger.NewEngine(store)
	ctx := context.Background()
	alice, accountA, bob, accountB := openPair(t, store, "1000", "0")

	_, err := engine.Transfer(ctx, ledger.TransferCommand{
		SenderAccountNo: accountA.No, ReceiverAccountNo: accountB.No, Amount: decimal.NewFromInt(1000), ActingCustomer: alice.ID,
	})
	require.NoError(t, err)
	assert.True(t, balanceOf(t, store, accountA.No).IsZero())
	assert.True(t, balanceOf(t, store, accountB.No).Equal(decimal.NewFromInt(1000)))

	_, err = engine.Transfer(ctx, ledger.TransferCommand{
		SenderAccountNo: accountA.No, ReceiverAccountNo: accountB.No, Amount: decimal.NewFromInt(1), ActingCustomer: alice.ID,
	})
	require.ErrorIs(t, err, domain.ErrInsufficientFunds)

	_, err = engine.Transfer(ctx, ledger.TransferCommand{
		SenderAccountNo: domain.ExternalAccount, ReceiverAccountNo: accountA.No, Amount: decimal.NewFromInt(200), ActingCustomer: alice.ID,
	})
	require.NoError(t, err)
	assert.True(t, balanceOf(t, store, accountA.No).Equal(decimal.NewFromInt(200)))

	_, err = engine.Transfer(ctx, ledger.TransferCommand{
		SenderAccountNo: accountB.No, ReceiverAccountNo: accountA.No, Amount: decimal.NewFromInt(5), ActingCustomer: bob.ID, ReceiverCustomer: bob.ID,
	})
	require.ErrorIs(t, err, domain.ErrAccountMismatch)

	history, err := store.TransferHistory(ctx, alice.ID)
	require.NoError(t, err)
	require.Len(t, history, 2)
	assert.Equal(t, domain.ExternalAccount, history[0].SenderAccountNo)
	assert.Empty(t, history[0].SenderName)
	assert.Equal(t, "Alice", history[1].SenderName)
	assert.Equal(t, "Bob", history[1].ReceiverName)
}

func TestIntegration_Postgres_OpposingTransfersDoNotDeadlock(t *testing.T) {
	store := setupPostgres(t)
	engine := ledger.NewEngine(store)
	ctx := context.Background()
	alice, accountA, bob, accountB := openPair(t, store, "5000", "5000")

	const rounds = 50
	var wg sync.WaitGroup
	errs := make(chan error, 2*rounds)
	for i := 0; i < rounds; i++ {
		wg.Add(2)
		go func() {
			defer wg.Done()
			_, err := engine.Transfer(ctx, ledger.TransferCommand{
				SenderAccountNo: accountA.No, ReceiverAccountNo: accountB.No, Amount: decimal.NewFromInt(10), ActingCustomer: alice.ID,
			})
			errs <- err
		}()
		go func() {
			defer wg.Done()
			_, err := engine.Transfer(ctx, ledger.TransferCommand{
				SenderAccountNo: accountB.No, ReceiverAccountNo: accountA.No, Amount: decimal.NewFromInt(10), ActingCustomer: bob.ID,
			})
			errs <- err
		}()
	}
	wg.Wait()
	close(errs)

	for err := range errs {
		require.NoError(t, err)
	}
	assert.True(t, balanceOf(t, store, accountA.No).Equal(decimal.NewFromInt(5000)))
	assert.True(t, balanceOf(t, store, accountB.No).Equal(decimal.NewFromInt(5000)))
}

func TestIntegration_Postgres_BillPayments(t *testing.T) {
	store := setupPostgres(t)
	engine := ledger.NewEngine(store)
	ctx := context.Background()
	alice, accountA, _, _ := openPair(t, store, "100", "0")

	_, err := engine.PayBill(ctx, ledger.BillCommand{CustomerID: alice.ID, AccountNo: accountA.No, Amount: decimal.NewFromInt(40), BillerName: "Jio", Category: "Mobile"})
	require.NoError(t, err)
	_, err = engine.RecordFailedBill(ctx, ledger.BillCommand{CustomerID: alice.ID, AccountNo: accountA.No, Amount: decimal.NewFromInt(400), BillerName: "Jio", Category: "Mobile"})
	require.NoError(t, err)

	bills, err := store.BillHistory(ctx, alice.ID)
	require.NoError(t, err)
	require.Len(t, bills, 2)

	now := time.Now()
	from := time.Date(now.Year(), now.Month(), 1, 0, 0, 0, 0, now.Location())
	total, err := store.MonthlyExpenses(ctx, alice.ID, from, from.AddDate(0, 1, 0))
	require.NoError(t, err)
	assert.True(t, total.Equal(decimal.NewFromInt(40)), total.String())
}

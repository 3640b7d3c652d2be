package repositories

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/andrenbrandao/bnb-transfers/pkg/domain"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func seeded(t *testing.T) (*Memory, domain.Customer, domain.Account) {
	t.Helper()
	m := NewMemory()
	customer, account, err := m.RegisterCustomer(context.Background(), domain.Registration{
		Name: "Asha", Email: "asha@example.com", MobileNumber: "9000000001",
	})
	require.NoError(t, err)
	return m, customer, account
}

func TestMemoryRegisterCustomer(t *testing.T) {
	m, customer, account := seeded(t)
	ctx := context.Background()

	assert.Equal(t, "BNB000001", account.No)
	assert.Equal(t, domain.AccountSavings, account.Type)
	assert.True(t, account.Balance.Equal(domain.OpeningBalance))
	assert.True(t, account.OwnedBy(customer.ID))

	_, _, err := m.RegisterCustomer(ctx, domain.Registration{Name: "Other", Email: "ASHA@example.com", MobileNumber: "2"})
	assert.ErrorIs(t, err, domain.ErrDuplicate)

	_, _, err = m.RegisterCustomer(ctx, domain.Registration{Name: "Other", Email: "other@example.com", MobileNumber: "9000000001"})
	assert.ErrorIs(t, err, domain.ErrDuplicate)
}

func TestMemoryRollbackDiscardsStagedWrites(t *testing.T) {
	m, customer, account := seeded(t)
	ctx := context.Background()
	boom := errors.New("boom")

	err := m.WithinTx(ctx, func(ctx context.Context, tx Tx) error {
		locked, err := tx.GetAccountForUpdate(ctx, account.No, customer.ID)
		require.NoError(t, err)
		require.NoError(t, tx.AdjustBalance(ctx, locked.No, decimal.NewFromInt(-500)))

		staged, err := tx.GetAccountForUpdate(ctx, account.No, customer.ID)
		require.NoError(t, err)
		assert.True(t, staged.Balance.Equal(domain.OpeningBalance.Sub(decimal.NewFromInt(500))))

		_, err = tx.AppendTransfer(ctx, domain.TransferRecord{SenderAccountNo: account.No, ReceiverAccountNo: "X", Amount: decimal.NewFromInt(500)})
		require.NoError(t, err)
		return boom
	})
	require.ErrorIs(t, err, boom)

	after, err := m.FindAccount(ctx, account.No)
	require.NoError(t, err)
	assert.True(t, after.Balance.Equal(domain.OpeningBalance))

	history, err := m.TransferHistory(ctx, customer.ID)
	require.NoError(t, err)
	assert.Empty(t, history)
}

func TestMemoryRejectsUnlockedOrNegativeAdjustments(t *testing.T) {
	m, customer, account := seeded(t)
	ctx := context.Background()

	err := m.WithinTx(ctx, func(ctx context.Context, tx Tx) error {
		return tx.AdjustBalance(ctx, account.No, decimal.NewFromInt(1))
	})
	assert.ErrorContains(t, err, "not locked")

	err = m.WithinTx(ctx, func(ctx context.Context, tx Tx) error {
		if _, err := tx.GetAccountForUpdate(ctx, account.No, customer.ID); err != nil {
			return err
		}
		return tx.AdjustBalance(ctx, account.No, domain.OpeningBalance.Add(decimal.NewFromInt(1)).Neg())
	})
	assert.ErrorIs(t, err, domain.ErrInsufficientFunds)
}

func TestMemoryOwnershipCheck(t *testing.T) {
	m, customer, account := seeded(t)
	ctx := context.Background()

	err := m.WithinTx(ctx, func(ctx context.Context, tx Tx) error {
		_, err := tx.GetAccountForUpdate(ctx, account.No, customer.ID+1)
		return err
	})
	assert.ErrorIs(t, err, domain.ErrAccountNotFound)

	err = m.WithinTx(ctx, func(ctx context.Context, tx Tx) error {
		_, err := tx.GetAccountForUpdate(ctx, account.No, domain.AnyOwner)
		return err
	})
	assert.NoError(t, err)
}

func TestMemoryRowLockBlocksSecondUnit(t *testing.T) {
	m, customer, account := seeded(t)
	ctx := context.Background()

	acquired := make(chan struct{})
	release := make(chan struct{})
	done := make(chan error, 1)

	go func() {
		done <- m.WithinTx(ctx, func(ctx context.Context, tx Tx) error {
			if _, err := tx.GetAccountForUpdate(ctx, account.No, customer.ID); err != nil {
				return err
			}
			close(acquired)
			<-release
			return tx.AdjustBalance(ctx, account.No, decimal.NewFromInt(-100))
		})
	}()
	<-acquired

	waitCtx, cancel := context.WithTimeout(ctx, 50*time.Millisecond)
	defer cancel()
	err := m.WithinTx(waitCtx, func(ctx context.Context, tx Tx) error {
		_, err := tx.GetAccountForUpdate(ctx, account.No, customer.ID)
		return err
	})
	assert.ErrorIs(t, err, domain.ErrConflict)

	close(release)
	require.NoError(t, <-done)

	// The next unit observes the committed debit under its own lock.
	err = m.WithinTx(ctx, func(ctx context.Context, tx Tx) error {
		locked, err := tx.GetAccountForUpdate(ctx, account.No, customer.ID)
		if err != nil {
			return err
		}
		assert.True(t, locked.Balance.Equal(domain.OpeningBalance.Sub(decimal.NewFromInt(100))))
		return nil
	})
	require.NoError(t, err)
}

func TestMemorySearchCustomer(t *testing.T) {
	m, customer, account := seeded(t)
	ctx := context.Background()

	for _, identifier := range []string{customer.ID.String(), "9000000001", "asha@example.com"} {
		found, err := m.SearchCustomer(ctx, identifier)
		require.NoError(t, err, identifier)
		assert.Equal(t, customer.ID, found.ID)
	}

	_, err := m.SearchCustomer(ctx, "nobody@example.com")
	assert.ErrorIs(t, err, domain.ErrCustomerNotFound)

	savings, err := m.SavingsAccount(ctx, customer.ID)
	require.NoError(t, err)
	assert.Equal(t, account.No, savings.No)
}

func TestMemoryMonthlyExpenses(t *testing.T) {
	m, customer, account := seeded(t)
	ctx := context.Background()
	now := time.Date(2026, 3, 15, 10, 0, 0, 0, time.UTC)
	m.SetClock(func() time.Time { return now })

	err := m.WithinTx(ctx, func(ctx context.Context, tx Tx) error {
		if _, err := tx.AppendTransfer(ctx, domain.TransferRecord{SenderAccountNo: account.No, ReceiverAccountNo: "BNB000002", Amount: decimal.NewFromInt(300)}); err != nil {
			return err
		}
		if _, err := tx.AppendTransfer(ctx, domain.TransferRecord{SenderAccountNo: domain.ExternalAccount, ReceiverAccountNo: account.No, Amount: decimal.NewFromInt(900)}); err != nil {
			return err
		}
		if _, err := tx.AppendBillPayment(ctx, domain.BillPaymentRecord{CustomerID: customer.ID, BillerName: "Jio", Amount: decimal.NewFromInt(50), Status: domain.BillSuccess}); err != nil {
			return err
		}
		_, err := tx.AppendBillPayment(ctx, domain.BillPaymentRecord{CustomerID: customer.ID, BillerName: "Jio", Amount: decimal.NewFromInt(70), Status: domain.BillFailed})
		return err
	})
	require.NoError(t, err)

	from := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)
	total, err := m.MonthlyExpenses(ctx, customer.ID, from, from.AddDate(0, 1, 0))
	require.NoError(t, err)
	assert.True(t, total.Equal(decimal.NewFromInt(350)), total.String())

	total, err = m.MonthlyExpenses(ctx, customer.ID, from.AddDate(0, 1, 0), from.AddDate(0, 2, 0))
	require.NoError(t, err)
	assert.True(t, total.IsZero())
}

func TestMigrationURL(t *testing.T) {
	assert.Equal(t, "pgx5://u:p@h:5432/db", migrationURL("postgres://u:p@h:5432/db"))
	assert.Equal(t, "pgx5://u:p@h/db", migrationURL("postgresql://u:p@h/db"))
	assert.Equal(t, "pgx5://h/db", migrationURL("pgx5://h/db"))
}

package repositories

import (
	"context"
	"errors"
	"fmt"

	"github.com/andrenbrandao/bnb-transfers/pkg/domain"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/shopspring/decimal"
)

const (
	sqlStateDeadlock             = "40P01"
	sqlStateSerializationFailure = "40001"
	sqlStateCheckViolation       = "23514"
	sqlStateUniqueViolation      = "23505"

	balanceConstraint = "accounts_balance_non_negative"
)

// pgTx implements Tx on top of a pgx transaction.
type pgTx struct {
	tx pgx.Tx
}

func (t *pgTx) GetAccountForUpdate(ctx context.Context, accountNo string, owner domain.CustomerID) (domain.Account, error) {
	row := t.tx.QueryRow(ctx, `
		SELECT account_no, branch_id, customer_id, account_type, balance::text
		FROM accounts
		WHERE account_no = $1 AND ($2::bigint = 0 OR customer_id = $2)
		FOR UPDATE;`, accountNo, int64(owner))

	account, err := scanAccount(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return account, fmt.Errorf("%w: %s", domain.ErrAccountNotFound, accountNo)
	}
	if err != nil {
		return account, classify(err)
	}

	return account, nil
}

func (t *pgTx) AdjustBalance(ctx context.Context, accountNo string, delta decimal.Decimal) error {
	tag, err := t.tx.Exec(ctx,
		"UPDATE accounts SET balance = balance + $2::numeric WHERE account_no = $1;",
		accountNo, delta.String())
	if err != nil {
		return classify(err)
	}
	if tag.RowsAffected() != 1 {
		return fmt.Errorf("%w: %s", domain.ErrAccountNotFound, accountNo)
	}

	return nil
}

func (t *pgTx) AppendTransfer(ctx context.Context, rec domain.TransferRecord) (domain.TransferRecord, error) {
	row := t.tx.QueryRow(ctx, `
		INSERT INTO transfers (sender_account_no, receiver_account_no, amount, note)
		VALUES ($1, $2, $3::numeric, NULLIF($4, ''))
		RETURNING id, transferred_at;`,
		rec.SenderAccountNo, rec.ReceiverAccountNo, rec.Amount.String(), rec.Note)

	if err := row.Scan(&rec.ID, &rec.CreatedAt); err != nil {
		return rec, classify(err)
	}

	return rec, nil
}

func (t *pgTx) AppendBillPayment(ctx context.Context, rec domain.BillPaymentRecord) (domain.BillPaymentRecord, error) {
	row := t.tx.QueryRow(ctx, `
		INSERT INTO bill_payments (customer_id, biller_name, category, amount, status)
		VALUES ($1, $2, $3, $4::numeric, $5)
		RETURNING id, paid_at;`,
		int64(rec.CustomerID), rec.BillerName, rec.Category, rec.Amount.String(), string(rec.Status))

	if err := row.Scan(&rec.ID, &rec.CreatedAt); err != nil {
		return rec, classify(err)
	}

	return rec, nil
}

func scanAccount(row pgx.Row) (domain.Account, error) {
	var (
		account    domain.Account
		customerID int64
		kind       string
		balance    string
	)
	if err := row.Scan(&account.No, &account.BranchID, &customerID, &kind, &balance); err != nil {
		return account, err
	}

	amount, err := decimal.NewFromString(balance)
	if err != nil {
		return account, fmt.Errorf("parse balance of %s: %w", account.No, err)
	}
	account.CustomerID = domain.CustomerID(customerID)
	account.Type = domain.AccountType(kind)
	account.Balance = amount

	return account, nil
}

// classify maps Postgres failures onto the domain taxonomy. Lock waits that
// end as deadlock victims or serialization failures become ErrConflict so the
// caller can resubmit.
func classify(err error) error {
	var pgErr *pgconn.PgError
	if !errors.As(err, &pgErr) {
		return err
	}

	switch pgErr.Code {
	case sqlStateDeadlock, sqlStateSerializationFailure:
		return fmt.Errorf("%w: %s", domain.ErrConflict, pgErr.Message)
	case sqlStateCheckViolation:
		if pgErr.ConstraintName == balanceConstraint {
			return fmt.Errorf("%w: %s", domain.ErrInsufficientFunds, pgErr.ConstraintName)
		}
	case sqlStateUniqueViolation:
		return fmt.Errorf("%w: %s", domain.ErrDuplicate, pgErr.ConstraintName)
	}

	return err
}

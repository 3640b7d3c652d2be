package repositories

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"time"

	"github.com/andrenbrandao/bnb-transfers/pkg/domain"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"
)

// Postgres is the durable Ledger Store. Atomic units run at READ COMMITTED
// with explicit row locks on every account they mutate.
type Postgres struct {
	pool      *pgxpool.Pool
	txTimeout time.Duration
}

func NewPostgres(pool *pgxpool.Pool, txTimeout time.Duration) *Postgres {
	return &Postgres{pool: pool, txTimeout: txTimeout}
}

// WithinTx runs fn in a single transaction. The transaction is rolled back
// on error, on panic, and when the unit exceeds its timeout.
func (p *Postgres) WithinTx(ctx context.Context, fn TxFunc) (err error) {
	if p.txTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, p.txTimeout)
		defer cancel()
	}

	tx, err := p.pool.BeginTx(ctx, pgx.TxOptions{IsoLevel: pgx.ReadCommitted})
	if err != nil {
		return fmt.Errorf("begin transaction: %w", classify(err))
	}

	defer func() {
		if r := recover(); r != nil {
			_ = tx.Rollback(context.WithoutCancel(ctx))
			panic(r)
		}
		if err != nil {
			_ = tx.Rollback(context.WithoutCancel(ctx))
		}
	}()

	if err = fn(ctx, &pgTx{tx: tx}); err != nil {
		return err
	}

	if err = tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit transaction: %w", classify(err))
	}

	return nil
}

func (p *Postgres) Ping(ctx context.Context) error {
	return p.pool.Ping(ctx)
}

func (p *Postgres) FindCustomer(ctx context.Context, id domain.CustomerID) (domain.Customer, error) {
	row := p.pool.QueryRow(ctx, `
		SELECT id, name, email, mobile_number, COALESCE(address, '')
		FROM customers WHERE id = $1;`, int64(id))

	customer, err := scanCustomer(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return customer, domain.ErrCustomerNotFound
	}

	return customer, err
}

func (p *Postgres) FindAccount(ctx context.Context, accountNo string) (domain.Account, error) {
	row := p.pool.QueryRow(ctx, `
		SELECT account_no, branch_id, customer_id, account_type, balance::text
		FROM accounts WHERE account_no = $1;`, accountNo)

	account, err := scanAccount(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return account, domain.ErrAccountNotFound
	}

	return account, err
}

// SearchCustomer resolves an identifier that may be a customer id, a mobile
// number or an email address.
func (p *Postgres) SearchCustomer(ctx context.Context, identifier string) (domain.Customer, error) {
	var byID int64
	if id, err := domain.ParseCustomerID(identifier); err == nil {
		byID = int64(id)
	}

	row := p.pool.QueryRow(ctx, `
		SELECT id, name, email, mobile_number, COALESCE(address, '')
		FROM customers
		WHERE ($1::bigint > 0 AND id = $1) OR mobile_number = $2 OR email = $2
		ORDER BY id
		LIMIT 1;`, byID, identifier)

	customer, err := scanCustomer(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return customer, domain.ErrCustomerNotFound
	}

	return customer, err
}

func (p *Postgres) SavingsAccount(ctx context.Context, id domain.CustomerID) (domain.Account, error) {
	row := p.pool.QueryRow(ctx, `
		SELECT account_no, branch_id, customer_id, account_type, balance::text
		FROM accounts
		WHERE customer_id = $1 AND account_type = $2
		ORDER BY account_no
		LIMIT 1;`, int64(id), string(domain.AccountSavings))

	account, err := scanAccount(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return account, domain.ErrNoSavingsAccount
	}

	return account, err
}

func (p *Postgres) AccountsByCustomer(ctx context.Context, id domain.CustomerID) ([]domain.Account, error) {
	rows, err := p.pool.Query(ctx, `
		SELECT account_no, branch_id, customer_id, account_type, balance::text
		FROM accounts WHERE customer_id = $1
		ORDER BY account_no;`, int64(id))
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	accounts := []domain.Account{}
	for rows.Next() {
		account, err := scanAccount(rows)
		if err != nil {
			return nil, err
		}
		accounts = append(accounts, account)
	}

	return accounts, rows.Err()
}

// MonthlyExpenses sums outgoing transfers and successful bill payments of the
// customer between from (inclusive) and to (exclusive).
func (p *Postgres) MonthlyExpenses(ctx context.Context, id domain.CustomerID, from, to time.Time) (decimal.Decimal, error) {
	var total string
	err := p.pool.QueryRow(ctx, `
		SELECT (
			COALESCE((
				SELECT SUM(t.amount) FROM transfers t
				JOIN accounts a ON a.account_no = t.sender_account_no
				WHERE a.customer_id = $1 AND t.transferred_at >= $2 AND t.transferred_at < $3
			), 0)
			+
			COALESCE((
				SELECT SUM(b.amount) FROM bill_payments b
				WHERE b.customer_id = $1 AND b.status = $4 AND b.paid_at >= $2 AND b.paid_at < $3
			), 0)
		)::text;`, int64(id), from, to, string(domain.BillSuccess)).Scan(&total)
	if err != nil {
		return decimal.Zero, err
	}

	return decimal.NewFromString(total)
}

// TransferHistory lists transfers where the customer owns either side,
// newest first. External deposits come back with an empty sender name.
func (p *Postgres) TransferHistory(ctx context.Context, id domain.CustomerID) ([]domain.TransferEntry, error) {
	rows, err := p.pool.Query(ctx, `
		SELECT t.id, t.sender_account_no, t.receiver_account_no, t.amount::text,
		       COALESCE(t.note, ''), t.transferred_at,
		       COALESCE(sc.name, ''), rc.name
		FROM transfers t
		LEFT JOIN accounts sa ON sa.account_no = t.sender_account_no
		LEFT JOIN customers sc ON sc.id = sa.customer_id
		JOIN accounts ra ON ra.account_no = t.receiver_account_no
		JOIN customers rc ON rc.id = ra.customer_id
		WHERE sa.customer_id = $1 OR ra.customer_id = $1
		ORDER BY t.transferred_at DESC, t.id DESC;`, int64(id))
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	entries := []domain.TransferEntry{}
	for rows.Next() {
		var (
			entry  domain.TransferEntry
			amount string
		)
		err := rows.Scan(&entry.ID, &entry.SenderAccountNo, &entry.ReceiverAccountNo, &amount,
			&entry.Note, &entry.CreatedAt, &entry.SenderName, &entry.ReceiverName)
		if err != nil {
			return nil, err
		}
		if entry.Amount, err = decimal.NewFromString(amount); err != nil {
			return nil, err
		}
		entries = append(entries, entry)
	}

	return entries, rows.Err()
}

func (p *Postgres) BillHistory(ctx context.Context, id domain.CustomerID) ([]domain.BillPaymentRecord, error) {
	rows, err := p.pool.Query(ctx, `
		SELECT id, customer_id, biller_name, category, amount::text, status, paid_at
		FROM bill_payments WHERE customer_id = $1
		ORDER BY paid_at DESC, id DESC;`, int64(id))
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	records := []domain.BillPaymentRecord{}
	for rows.Next() {
		var (
			rec        domain.BillPaymentRecord
			customerID int64
			amount     string
			status     string
		)
		if err := rows.Scan(&rec.ID, &customerID, &rec.BillerName, &rec.Category, &amount, &status, &rec.CreatedAt); err != nil {
			return nil, err
		}
		if rec.Amount, err = decimal.NewFromString(amount); err != nil {
			return nil, err
		}
		rec.CustomerID = domain.CustomerID(customerID)
		rec.Status = domain.BillStatus(status)
		records = append(records, rec)
	}

	return records, rows.Err()
}

// RegisterCustomer creates a customer and its savings account, credited with
// the opening balance, in one transaction.
func (p *Postgres) RegisterCustomer(ctx context.Context, reg domain.Registration) (domain.Customer, domain.Account, error) {
	var (
		customer = domain.Customer{Name: reg.Name, Email: reg.Email, MobileNumber: reg.MobileNumber, Address: reg.Address}
		account  domain.Account
	)

	err := pgx.BeginFunc(ctx, p.pool, func(tx pgx.Tx) error {
		var id int64
		err := tx.QueryRow(ctx, `
			INSERT INTO customers (name, email, mobile_number, address)
			VALUES ($1, $2, $3, NULLIF($4, ''))
			RETURNING id;`, reg.Name, reg.Email, reg.MobileNumber, reg.Address).Scan(&id)
		if err != nil {
			return classify(err)
		}
		customer.ID = domain.CustomerID(id)

		account = domain.Account{
			No:         domain.AccountNumber(customer.ID, 0),
			BranchID:   rand.Intn(5) + 1,
			CustomerID: customer.ID,
			Type:       domain.AccountSavings,
			Balance:    domain.OpeningBalance,
		}

		return insertAccount(ctx, tx, account)
	})

	return customer, account, err
}

// OpenAccount adds another account to an existing customer.
func (p *Postgres) OpenAccount(ctx context.Context, id domain.CustomerID, kind domain.AccountType, opening decimal.Decimal) (domain.Account, error) {
	var account domain.Account

	err := pgx.BeginFunc(ctx, p.pool, func(tx pgx.Tx) error {
		var count int
		err := tx.QueryRow(ctx, "SELECT count(*) FROM accounts WHERE customer_id = $1;", int64(id)).Scan(&count)
		if err != nil {
			return err
		}

		account = domain.Account{
			No:         domain.AccountNumber(id, count),
			BranchID:   rand.Intn(5) + 1,
			CustomerID: id,
			Type:       kind,
			Balance:    opening,
		}

		return insertAccount(ctx, tx, account)
	})

	return account, err
}

func insertAccount(ctx context.Context, tx pgx.Tx, account domain.Account) error {
	_, err := tx.Exec(ctx, `
		INSERT INTO accounts (account_no, branch_id, customer_id, account_type, balance)
		VALUES ($1, $2, $3, $4, $5::numeric);`,
		account.No, account.BranchID, int64(account.CustomerID), string(account.Type), account.Balance.String())

	return classify(err)
}

func scanCustomer(row pgx.Row) (domain.Customer, error) {
	var (
		customer domain.Customer
		id       int64
	)
	if err := row.Scan(&id, &customer.Name, &customer.Email, &customer.MobileNumber, &customer.Address); err != nil {
		return customer, err
	}
	customer.ID = domain.CustomerID(id)

	return customer, nil
}

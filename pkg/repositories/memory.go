package repositories

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/andrenbrandao/bnb-transfers/pkg/domain"
	"github.com/shopspring/decimal"
)

// Memory is an in-process Ledger Store with the same contract as Postgres:
// per-account exclusive locks held until the unit ends, writes staged and
// only published on commit, readers outside a unit see committed state only.
type Memory struct {
	mu        sync.RWMutex
	customers map[domain.CustomerID]domain.Customer
	accounts  map[string]domain.Account
	transfers []domain.TransferRecord
	bills     []domain.BillPaymentRecord

	locksMu sync.Mutex
	locks   map[string]chan struct{}

	customerSeq atomic.Int64
	transferSeq atomic.Int64
	billSeq     atomic.Int64

	now func() time.Time
}

func NewMemory() *Memory {
	return &Memory{
		customers: make(map[domain.CustomerID]domain.Customer),
		accounts:  make(map[string]domain.Account),
		locks:     make(map[string]chan struct{}),
		now:       time.Now,
	}
}

// SetClock replaces the time source used to stamp records.
func (m *Memory) SetClock(now func() time.Time) {
	m.now = now
}

func (m *Memory) Ping(context.Context) error {
	return nil
}

func (m *Memory) rowLock(accountNo string) chan struct{} {
	m.locksMu.Lock()
	defer m.locksMu.Unlock()

	l, ok := m.locks[accountNo]
	if !ok {
		l = make(chan struct{}, 1)
		m.locks[accountNo] = l
	}

	return l
}

// WithinTx runs fn as one atomic unit. Staged changes are discarded when fn
// fails or panics; row locks are always released.
func (m *Memory) WithinTx(ctx context.Context, fn TxFunc) error {
	tx := &memTx{
		store:  m,
		held:   make(map[string]chan struct{}),
		deltas: make(map[string]decimal.Decimal),
	}
	defer tx.release()

	if err := fn(ctx, tx); err != nil {
		return err
	}
	if err := ctx.Err(); err != nil {
		return fmt.Errorf("commit transaction: %w", err)
	}

	tx.commit()

	return nil
}

type memTx struct {
	store     *Memory
	held      map[string]chan struct{}
	deltas    map[string]decimal.Decimal
	transfers []domain.TransferRecord
	bills     []domain.BillPaymentRecord
}

func (t *memTx) GetAccountForUpdate(ctx context.Context, accountNo string, owner domain.CustomerID) (domain.Account, error) {
	t.store.mu.RLock()
	_, ok := t.store.accounts[accountNo]
	t.store.mu.RUnlock()
	if !ok {
		return domain.Account{}, fmt.Errorf("%w: %s", domain.ErrAccountNotFound, accountNo)
	}

	if _, locked := t.held[accountNo]; !locked {
		l := t.store.rowLock(accountNo)
		select {
		case l <- struct{}{}:
			t.held[accountNo] = l
		case <-ctx.Done():
			return domain.Account{}, fmt.Errorf("%w: lock %s: %v", domain.ErrConflict, accountNo, ctx.Err())
		}
	}

	// The row may have changed while we waited for the lock.
	t.store.mu.RLock()
	account := t.store.accounts[accountNo]
	t.store.mu.RUnlock()

	if owner != domain.AnyOwner && !account.OwnedBy(owner) {
		return domain.Account{}, fmt.Errorf("%w: %s", domain.ErrAccountNotFound, accountNo)
	}
	if delta, ok := t.deltas[accountNo]; ok {
		account.Balance = account.Balance.Add(delta)
	}

	return account, nil
}

func (t *memTx) AdjustBalance(_ context.Context, accountNo string, delta decimal.Decimal) error {
	if _, locked := t.held[accountNo]; !locked {
		return fmt.Errorf("adjust balance of %s: row is not locked", accountNo)
	}

	t.store.mu.RLock()
	account, ok := t.store.accounts[accountNo]
	t.store.mu.RUnlock()
	if !ok {
		return fmt.Errorf("%w: %s", domain.ErrAccountNotFound, accountNo)
	}

	staged := t.deltas[accountNo].Add(delta)
	if account.Balance.Add(staged).IsNegative() {
		return &domain.InsufficientFundsError{AccountNo: accountNo, Available: account.Balance.Add(t.deltas[accountNo])}
	}
	t.deltas[accountNo] = staged

	return nil
}

func (t *memTx) AppendTransfer(_ context.Context, rec domain.TransferRecord) (domain.TransferRecord, error) {
	rec.ID = t.store.transferSeq.Add(1)
	rec.CreatedAt = t.store.now().UTC()
	t.transfers = append(t.transfers, rec)

	return rec, nil
}

func (t *memTx) AppendBillPayment(_ context.Context, rec domain.BillPaymentRecord) (domain.BillPaymentRecord, error) {
	rec.ID = t.store.billSeq.Add(1)
	rec.CreatedAt = t.store.now().UTC()
	t.bills = append(t.bills, rec)

	return rec, nil
}

func (t *memTx) commit() {
	t.store.mu.Lock()
	defer t.store.mu.Unlock()

	for accountNo, delta := range t.deltas {
		account := t.store.accounts[accountNo]
		account.Balance = account.Balance.Add(delta)
		t.store.accounts[accountNo] = account
	}
	t.store.transfers = append(t.store.transfers, t.transfers...)
	t.store.bills = append(t.store.bills, t.bills...)
}

func (t *memTx) release() {
	for accountNo, l := range t.held {
		<-l
		delete(t.held, accountNo)
	}
}

func (m *Memory) FindCustomer(_ context.Context, id domain.CustomerID) (domain.Customer, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	customer, ok := m.customers[id]
	if !ok {
		return domain.Customer{}, domain.ErrCustomerNotFound
	}

	return customer, nil
}

func (m *Memory) FindAccount(_ context.Context, accountNo string) (domain.Account, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	account, ok := m.accounts[accountNo]
	if !ok {
		return domain.Account{}, domain.ErrAccountNotFound
	}

	return account, nil
}

func (m *Memory) SearchCustomer(_ context.Context, identifier string) (domain.Customer, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if id, err := domain.ParseCustomerID(identifier); err == nil {
		if customer, ok := m.customers[id]; ok {
			return customer, nil
		}
	}

	var (
		found domain.Customer
		ok    bool
	)
	for _, customer := range m.customers {
		if customer.MobileNumber != identifier && !strings.EqualFold(customer.Email, identifier) {
			continue
		}
		if !ok || customer.ID < found.ID {
			found, ok = customer, true
		}
	}
	if !ok {
		return domain.Customer{}, domain.ErrCustomerNotFound
	}

	return found, nil
}

func (m *Memory) SavingsAccount(ctx context.Context, id domain.CustomerID) (domain.Account, error) {
	accounts, err := m.AccountsByCustomer(ctx, id)
	if err != nil {
		return domain.Account{}, err
	}
	for _, account := range accounts {
		if account.Type == domain.AccountSavings {
			return account, nil
		}
	}

	return domain.Account{}, domain.ErrNoSavingsAccount
}

func (m *Memory) AccountsByCustomer(_ context.Context, id domain.CustomerID) ([]domain.Account, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	accounts := []domain.Account{}
	for _, account := range m.accounts {
		if account.OwnedBy(id) {
			accounts = append(accounts, account)
		}
	}
	sort.Slice(accounts, func(i, j int) bool { return accounts[i].No < accounts[j].No })

	return accounts, nil
}

func (m *Memory) MonthlyExpenses(_ context.Context, id domain.CustomerID, from, to time.Time) (decimal.Decimal, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	within := func(at time.Time) bool {
		return !at.Before(from) && at.Before(to)
	}

	total := decimal.Zero
	for _, rec := range m.transfers {
		sender, ok := m.accounts[rec.SenderAccountNo]
		if ok && sender.OwnedBy(id) && within(rec.CreatedAt) {
			total = total.Add(rec.Amount)
		}
	}
	for _, rec := range m.bills {
		if rec.CustomerID == id && rec.Status == domain.BillSuccess && within(rec.CreatedAt) {
			total = total.Add(rec.Amount)
		}
	}

	return total, nil
}

func (m *Memory) TransferHistory(_ context.Context, id domain.CustomerID) ([]domain.TransferEntry, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	entries := []domain.TransferEntry{}
	for _, rec := range m.transfers {
		sender, senderOK := m.accounts[rec.SenderAccountNo]
		receiver := m.accounts[rec.ReceiverAccountNo]
		if !(senderOK && sender.OwnedBy(id)) && !receiver.OwnedBy(id) {
			continue
		}

		entry := domain.TransferEntry{TransferRecord: rec, ReceiverName: m.customers[receiver.CustomerID].Name}
		if senderOK {
			entry.SenderName = m.customers[sender.CustomerID].Name
		}
		entries = append(entries, entry)
	}
	sort.SliceStable(entries, func(i, j int) bool {
		if !entries[i].CreatedAt.Equal(entries[j].CreatedAt) {
			return entries[i].CreatedAt.After(entries[j].CreatedAt)
		}
		return entries[i].ID > entries[j].ID
	})

	return entries, nil
}

func (m *Memory) BillHistory(_ context.Context, id domain.CustomerID) ([]domain.BillPaymentRecord, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	records := []domain.BillPaymentRecord{}
	for _, rec := range m.bills {
		if rec.CustomerID == id {
			records = append(records, rec)
		}
	}
	sort.SliceStable(records, func(i, j int) bool {
		if !records[i].CreatedAt.Equal(records[j].CreatedAt) {
			return records[i].CreatedAt.After(records[j].CreatedAt)
		}
		return records[i].ID > records[j].ID
	})

	return records, nil
}

func (m *Memory) RegisterCustomer(_ context.Context, reg domain.Registration) (domain.Customer, domain.Account, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	for _, existing := range m.customers {
		if strings.EqualFold(existing.Email, reg.Email) || existing.MobileNumber == reg.MobileNumber {
			return domain.Customer{}, domain.Account{}, domain.ErrDuplicate
		}
	}

	customer := domain.Customer{
		ID:           domain.CustomerID(m.customerSeq.Add(1)),
		Name:         reg.Name,
		Email:        reg.Email,
		MobileNumber: reg.MobileNumber,
		Address:      reg.Address,
	}
	account := domain.Account{
		No:         domain.AccountNumber(customer.ID, 0),
		BranchID:   int(customer.ID%5) + 1,
		CustomerID: customer.ID,
		Type:       domain.AccountSavings,
		Balance:    domain.OpeningBalance,
	}
	m.customers[customer.ID] = customer
	m.accounts[account.No] = account

	return customer, account, nil
}

func (m *Memory) OpenAccount(_ context.Context, id domain.CustomerID, kind domain.AccountType, opening decimal.Decimal) (domain.Account, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.customers[id]; !ok {
		return domain.Account{}, domain.ErrCustomerNotFound
	}

	count := 0
	for _, account := range m.accounts {
		if account.OwnedBy(id) {
			count++
		}
	}

	account := domain.Account{
		No:         domain.AccountNumber(id, count),
		BranchID:   int(id%5) + 1,
		CustomerID: id,
		Type:       kind,
		Balance:    opening,
	}
	if _, exists := m.accounts[account.No]; exists {
		return domain.Account{}, fmt.Errorf("%w: account %s", domain.ErrDuplicate, account.No)
	}
	m.accounts[account.No] = account

	return account, nil
}

// SeedDemo registers the demo customers used by the memory driver.
func (m *Memory) SeedDemo(ctx context.Context) error {
	demo := []domain.Registration{
		{Name: "Aarav Sharma", Email: "aarav@example.com", MobileNumber: "9800000001", Address: "Mumbai"},
		{Name: "Diya Patel", Email: "diya@example.com", MobileNumber: "9800000002", Address: "Pune"},
		{Name: "Kabir Singh", Email: "kabir@example.com", MobileNumber: "9800000003", Address: "Delhi"},
		{Name: "Meera Iyer", Email: "meera@example.com", MobileNumber: "9800000004", Address: "Chennai"},
		{Name: "Rohan Gupta", Email: "rohan@example.com", MobileNumber: "9800000005", Address: "Kolkata"},
	}

	for _, reg := range demo {
		if _, _, err := m.RegisterCustomer(ctx, reg); err != nil {
			return fmt.Errorf("seed %s: %w", reg.Email, err)
		}
	}

	return nil
}

// Package accounts is the read side of the ledger: what a customer sees on
// their dashboard.
package accounts

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/andrenbrandao/bnb-transfers/pkg/domain"
	"github.com/shopspring/decimal"
)

const (
	TypeFundTransfer = "Fund Transfer"
	TypeBillPayment  = "Bill Payment"

	ExternalDeposit = "External Deposit"
)

type Store interface {
	AccountsByCustomer(ctx context.Context, id domain.CustomerID) ([]domain.Account, error)
	MonthlyExpenses(ctx context.Context, id domain.CustomerID, from, to time.Time) (decimal.Decimal, error)
	TransferHistory(ctx context.Context, id domain.CustomerID) ([]domain.TransferEntry, error)
	BillHistory(ctx context.Context, id domain.CustomerID) ([]domain.BillPaymentRecord, error)
}

// Branch is the metadata printed next to the accounts.
type Branch struct {
	Name string
	IFSC string
}

type Service struct {
	store  Store
	branch Branch
	now    func() time.Time
}

func NewService(store Store, branch Branch) *Service {
	return &Service{store: store, branch: branch, now: time.Now}
}

func (s *Service) SetClock(now func() time.Time) {
	s.now = now
}

type Summary struct {
	Accounts        []domain.Account
	MonthlyExpenses decimal.Decimal
	Branch          Branch
}

// Summary lists the customer's accounts and what they spent in the current
// calendar month, in UTC.
func (s *Service) Summary(ctx context.Context, id domain.CustomerID) (Summary, error) {
	accounts, err := s.store.AccountsByCustomer(ctx, id)
	if err != nil {
		return Summary{}, fmt.Errorf("failed to list accounts: %w", err)
	}

	from, to := monthOf(s.now())
	expenses, err := s.store.MonthlyExpenses(ctx, id, from, to)
	if err != nil {
		return Summary{}, fmt.Errorf("failed to sum monthly expenses: %w", err)
	}

	return Summary{Accounts: accounts, MonthlyExpenses: expenses, Branch: s.branch}, nil
}

func monthOf(t time.Time) (time.Time, time.Time) {
	t = t.UTC()
	from := time.Date(t.Year(), t.Month(), 1, 0, 0, 0, 0, time.UTC)
	return from, from.AddDate(0, 1, 0)
}

// Entry is one line of the transaction history. For transfers the details
// are the sender and receiver names; for bills, the biller and category.
type Entry struct {
	ID               int64
	Amount           decimal.Decimal
	Date             time.Time
	Type             string
	DetailsPrimary   string
	DetailsSecondary string
	Status           domain.BillStatus
}

// History merges transfers touching any of the customer's accounts with the
// customer's bill payments, newest first.
func (s *Service) History(ctx context.Context, id domain.CustomerID) ([]Entry, error) {
	transfers, err := s.store.TransferHistory(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("failed to list transfers: %w", err)
	}
	bills, err := s.store.BillHistory(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("failed to list bill payments: %w", err)
	}

	entries := make([]Entry, 0, len(transfers)+len(bills))
	for _, t := range transfers {
		primary := t.SenderName
		if t.External() {
			primary = ExternalDeposit
		}
		entries = append(entries, Entry{
			ID:               t.ID,
			Amount:           t.Amount,
			Date:             t.CreatedAt,
			Type:             TypeFundTransfer,
			DetailsPrimary:   primary,
			DetailsSecondary: t.ReceiverName,
		})
	}
	for _, b := range bills {
		entries = append(entries, Entry{
			ID:               b.ID,
			Amount:           b.Amount,
			Date:             b.CreatedAt,
			Type:             TypeBillPayment,
			DetailsPrimary:   b.BillerName,
			DetailsSecondary: b.Category,
			Status:           b.Status,
		})
	}

	sort.SliceStable(entries, func(i, j int) bool {
		return entries[i].Date.After(entries[j].Date)
	})

	return entries, nil
}

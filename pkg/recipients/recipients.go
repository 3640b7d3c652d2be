// Package recipients confirms who money is about to be sent to. All lookups
// are plain reads without row locks; the ledger re-checks ownership under
// lock when the transfer runs.
package recipients

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/andrenbrandao/bnb-transfers/pkg/domain"
)

type Directory interface {
	FindCustomer(ctx context.Context, id domain.CustomerID) (domain.Customer, error)
	FindAccount(ctx context.Context, accountNo string) (domain.Account, error)
	SearchCustomer(ctx context.Context, identifier string) (domain.Customer, error)
	SavingsAccount(ctx context.Context, id domain.CustomerID) (domain.Account, error)
}

type Service struct {
	directory Directory
}

func NewService(directory Directory) *Service {
	return &Service{directory: directory}
}

// Recipient is a confirmed (customer, account) pair.
type Recipient struct {
	CustomerID   domain.CustomerID
	CustomerName string
	AccountNo    string
	AccountType  domain.AccountType
}

// Validate fails with ErrCustomerNotFound when no customer has the id and
// with ErrAccountMismatch when the account is missing or owned by someone
// else.
func (s *Service) Validate(ctx context.Context, customerID domain.CustomerID, accountNo string) (Recipient, error) {
	accountNo = strings.TrimSpace(accountNo)
	if customerID == domain.AnyOwner || accountNo == "" {
		return Recipient{}, domain.Invalid("", "Customer ID and Account Number are required.")
	}

	customer, err := s.directory.FindCustomer(ctx, customerID)
	if err != nil {
		return Recipient{}, err
	}

	account, err := s.directory.FindAccount(ctx, accountNo)
	if errors.Is(err, domain.ErrAccountNotFound) {
		return Recipient{}, fmt.Errorf("%w: %s", domain.ErrAccountMismatch, accountNo)
	}
	if err != nil {
		return Recipient{}, err
	}
	if !account.OwnedBy(customer.ID) {
		return Recipient{}, fmt.Errorf("%w: %s", domain.ErrAccountMismatch, accountNo)
	}

	return Recipient{
		CustomerID:   customer.ID,
		CustomerName: customer.Name,
		AccountNo:    account.No,
		AccountType:  account.Type,
	}, nil
}

type SearchResult struct {
	Customer  domain.Customer
	AccountNo string
}

// Search finds a customer by id, mobile number or email and resolves the
// savings account transfers should be sent to.
func (s *Service) Search(ctx context.Context, identifier string) (SearchResult, error) {
	identifier = strings.TrimSpace(identifier)
	if identifier == "" {
		return SearchResult{}, domain.Invalid("identifier", "Search identifier is required.")
	}

	customer, err := s.directory.SearchCustomer(ctx, identifier)
	if err != nil {
		return SearchResult{}, err
	}

	account, err := s.directory.SavingsAccount(ctx, customer.ID)
	if err != nil {
		return SearchResult{}, err
	}

	return SearchResult{Customer: customer, AccountNo: account.No}, nil
}

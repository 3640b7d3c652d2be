// Package ledger applies balance mutations as atomic units against a Ledger
// Store. Every unit locks the accounts it touches in ascending account number
// order, whatever role they play, so two units over the same pair of
// accounts can never wait on each other in a cycle.
package ledger

import (
	"context"
	"errors"
	"fmt"
	"sort"

	"github.com/andrenbrandao/bnb-transfers/pkg/domain"
	"github.com/andrenbrandao/bnb-transfers/pkg/repositories"
	"github.com/shopspring/decimal"
)

// Store opens atomic units. Implemented by repositories.Postgres and
// repositories.Memory.
type Store interface {
	WithinTx(ctx context.Context, fn repositories.TxFunc) error
}

type Engine struct {
	store Store
}

func NewEngine(store Store) *Engine {
	return &Engine{store: store}
}

type TransferCommand struct {
	SenderAccountNo   string
	ReceiverAccountNo string
	Amount            decimal.Decimal
	// ActingCustomer must own the sender account, or the receiver account
	// when the sender is domain.ExternalAccount.
	ActingCustomer domain.CustomerID
	// ReceiverCustomer, when set, must own the receiver account.
	ReceiverCustomer domain.CustomerID
	Note             string
}

func (c TransferCommand) External() bool {
	return c.SenderAccountNo == domain.ExternalAccount
}

// Validate performs the checks that need no row lock.
func (c TransferCommand) Validate() error {
	if c.SenderAccountNo == "" || c.ReceiverAccountNo == "" {
		return domain.Invalid("accountNo", "Sender and receiver account numbers are required.")
	}
	if c.ReceiverAccountNo == domain.ExternalAccount {
		return domain.Invalid("receiverAccountNo", "Invalid receiver account number.")
	}
	if c.SenderAccountNo == c.ReceiverAccountNo {
		return &domain.ValidationError{Field: "receiverAccountNo", Message: "Cannot transfer to the same account.", Err: domain.ErrSameAccount}
	}
	if c.ActingCustomer == domain.AnyOwner {
		return domain.Invalid("userId", "User id is required.")
	}

	return domain.ValidateAmount("amount", c.Amount)
}

type TransferResult struct {
	Record          domain.TransferRecord
	SenderBalance   decimal.Decimal
	ReceiverBalance decimal.Decimal
}

type BillCommand struct {
	CustomerID domain.CustomerID
	AccountNo  string
	Amount     decimal.Decimal
	BillerName string
	Category   string
}

func (c BillCommand) Validate() error {
	if c.CustomerID == domain.AnyOwner || c.AccountNo == "" || c.BillerName == "" {
		return domain.Invalid("", "Invalid bill payment data.")
	}

	return domain.ValidateAmount("amount", c.Amount)
}

type BillResult struct {
	Record  domain.BillPaymentRecord
	Balance decimal.Decimal
}

type lockRequest struct {
	accountNo string
	owner     domain.CustomerID
}

// lockInOrder takes the row locks in canonical order and returns the locked
// rows keyed by account number.
func lockInOrder(ctx context.Context, tx repositories.Tx, requests ...lockRequest) (map[string]domain.Account, error) {
	sort.Slice(requests, func(i, j int) bool {
		return requests[i].accountNo < requests[j].accountNo
	})

	locked := make(map[string]domain.Account, len(requests))
	for _, req := range requests {
		account, err := tx.GetAccountForUpdate(ctx, req.accountNo, req.owner)
		if err != nil {
			return nil, err
		}
		locked[req.accountNo] = account
	}

	return locked, nil
}

// Transfer moves Amount from sender to receiver, or credits the receiver
// alone for external deposits, and appends one TransferRecord. Either all of
// it commits or nothing does.
func (e *Engine) Transfer(ctx context.Context, cmd TransferCommand) (TransferResult, error) {
	if err := cmd.Validate(); err != nil {
		return TransferResult{}, err
	}

	var result TransferResult
	err := e.store.WithinTx(ctx, func(ctx context.Context, tx repositories.Tx) error {
		requests := []lockRequest{{accountNo: cmd.ReceiverAccountNo}}
		if cmd.External() {
			requests[0].owner = cmd.ActingCustomer
		} else {
			requests = append(requests, lockRequest{accountNo: cmd.SenderAccountNo, owner: cmd.ActingCustomer})
		}

		locked, err := lockInOrder(ctx, tx, requests...)
		if err != nil {
			return err
		}

		receiver := locked[cmd.ReceiverAccountNo]
		if cmd.ReceiverCustomer != domain.AnyOwner && !receiver.OwnedBy(cmd.ReceiverCustomer) {
			return fmt.Errorf("%w: %s", domain.ErrAccountMismatch, receiver.No)
		}

		if !cmd.External() {
			sender := locked[cmd.SenderAccountNo]
			if sender.Balance.LessThan(cmd.Amount) {
				return &domain.InsufficientFundsError{AccountNo: sender.No, Available: sender.Balance}
			}
			if err := tx.AdjustBalance(ctx, sender.No, cmd.Amount.Neg()); err != nil {
				return err
			}
			result.SenderBalance = sender.Balance.Sub(cmd.Amount)
		}

		if err := tx.AdjustBalance(ctx, receiver.No, cmd.Amount); err != nil {
			return err
		}
		result.ReceiverBalance = receiver.Balance.Add(cmd.Amount)

		record, err := tx.AppendTransfer(ctx, domain.TransferRecord{
			SenderAccountNo:   cmd.SenderAccountNo,
			ReceiverAccountNo: cmd.ReceiverAccountNo,
			Amount:            cmd.Amount,
			Note:              cmd.Note,
		})
		if err != nil {
			return err
		}
		result.Record = record

		return nil
	})
	if err != nil {
		return TransferResult{}, err
	}

	return result, nil
}

// PayBill debits the customer's account and appends a successful
// BillPaymentRecord in one atomic unit.
func (e *Engine) PayBill(ctx context.Context, cmd BillCommand) (BillResult, error) {
	if err := cmd.Validate(); err != nil {
		return BillResult{}, err
	}

	var result BillResult
	err := e.store.WithinTx(ctx, func(ctx context.Context, tx repositories.Tx) error {
		locked, err := lockInOrder(ctx, tx, lockRequest{accountNo: cmd.AccountNo, owner: cmd.CustomerID})
		if err != nil {
			return err
		}

		account := locked[cmd.AccountNo]
		if account.Balance.LessThan(cmd.Amount) {
			return &domain.InsufficientFundsError{AccountNo: account.No, Available: account.Balance}
		}
		if err := tx.AdjustBalance(ctx, account.No, cmd.Amount.Neg()); err != nil {
			return err
		}

		record, err := tx.AppendBillPayment(ctx, billRecord(cmd, domain.BillSuccess))
		if err != nil {
			return err
		}
		result = BillResult{Record: record, Balance: account.Balance.Sub(cmd.Amount)}

		return nil
	})
	if err != nil {
		return BillResult{}, err
	}

	return result, nil
}

// RecordFailedBill appends a Failed BillPaymentRecord in its own unit. No
// balance is touched.
func (e *Engine) RecordFailedBill(ctx context.Context, cmd BillCommand) (domain.BillPaymentRecord, error) {
	if err := cmd.Validate(); err != nil {
		return domain.BillPaymentRecord{}, err
	}

	var record domain.BillPaymentRecord
	err := e.store.WithinTx(ctx, func(ctx context.Context, tx repositories.Tx) error {
		var err error
		record, err = tx.AppendBillPayment(ctx, billRecord(cmd, domain.BillFailed))
		return err
	})

	return record, err
}

func billRecord(cmd BillCommand, status domain.BillStatus) domain.BillPaymentRecord {
	return domain.BillPaymentRecord{
		CustomerID: cmd.CustomerID,
		BillerName: cmd.BillerName,
		Category:   cmd.Category,
		Amount:     cmd.Amount,
		Status:     status,
	}
}

// Retryable reports whether err came from lock contention rather than from
// the request itself. The engine never retries on its own.
func Retryable(err error) bool {
	return errors.Is(err, domain.ErrConflict)
}

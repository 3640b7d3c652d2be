package repositories

import (
	"context"

	"github.com/andrenbrandao/bnb-transfers/pkg/domain"
	"github.com/shopspring/decimal"
)

// Tx is the set of ledger operations available inside one atomic unit.
// None of them is atomic on its own across calls; the unit commits or rolls
// back as a whole when the function passed to WithinTx returns.
type Tx interface {
	// GetAccountForUpdate locks the account row until the unit ends. When
	// owner is not AnyOwner the row must also belong to that customer,
	// otherwise ErrAccountNotFound is returned.
	GetAccountForUpdate(ctx context.Context, accountNo string, owner domain.CustomerID) (domain.Account, error)
	// AdjustBalance applies a signed delta to a row previously locked in
	// the same unit.
	AdjustBalance(ctx context.Context, accountNo string, delta decimal.Decimal) error
	AppendTransfer(ctx context.Context, rec domain.TransferRecord) (domain.TransferRecord, error)
	AppendBillPayment(ctx context.Context, rec domain.BillPaymentRecord) (domain.BillPaymentRecord, error)
}

// TxFunc runs inside an atomic unit. Returning an error rolls the unit back.
type TxFunc func(ctx context.Context, tx Tx) error

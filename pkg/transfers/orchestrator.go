// Package transfers sequences money-movement requests through recipient
// validation and the ledger engine. Each request walks a small state
// machine:
//
//	received -> validating (automated only) -> mutating -> committed
//	received -> rejected
//	mutating -> rolled_back
//
// The per-request ceiling is checked while the request is still in the
// received state, so over-limit requests never reach the ledger.
package transfers

import (
	"context"
	"fmt"
	"time"

	"github.com/andrenbrandao/bnb-transfers/pkg/domain"
	"github.com/andrenbrandao/bnb-transfers/pkg/ledger"
	"github.com/andrenbrandao/bnb-transfers/pkg/recipients"
	"github.com/andrenbrandao/bnb-transfers/pkg/telemetry"
	"github.com/shopspring/decimal"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
)

// DefaultLimit is the largest amount a single transfer may move.
var DefaultLimit = decimal.RequireFromString("200000.00")

type Mutator interface {
	Transfer(ctx context.Context, cmd ledger.TransferCommand) (ledger.TransferResult, error)
	PayBill(ctx context.Context, cmd ledger.BillCommand) (ledger.BillResult, error)
	RecordFailedBill(ctx context.Context, cmd ledger.BillCommand) (domain.BillPaymentRecord, error)
}

type Validator interface {
	Validate(ctx context.Context, customerID domain.CustomerID, accountNo string) (recipients.Recipient, error)
}

type Orchestrator struct {
	mutator   Mutator
	validator Validator
	limit     decimal.Decimal
	tracer    trace.Tracer
	outcomes  *telemetry.Outcomes
	now       func() time.Time
}

type Option func(*Orchestrator)

func WithLimit(limit decimal.Decimal) Option {
	return func(o *Orchestrator) { o.limit = limit }
}

func WithTracer(tracer trace.Tracer) Option {
	return func(o *Orchestrator) { o.tracer = tracer }
}

func WithOutcomes(outcomes *telemetry.Outcomes) Option {
	return func(o *Orchestrator) { o.outcomes = outcomes }
}

func WithClock(now func() time.Time) Option {
	return func(o *Orchestrator) { o.now = now }
}

func New(mutator Mutator, validator Validator, opts ...Option) *Orchestrator {
	o := &Orchestrator{
		mutator:   mutator,
		validator: validator,
		limit:     DefaultLimit,
		tracer:    telemetry.Tracer(),
		now:       time.Now,
	}
	for _, opt := range opts {
		opt(o)
	}
	return o
}

func (o *Orchestrator) Limit() decimal.Decimal {
	return o.limit
}

type Request struct {
	UserID            domain.CustomerID
	SenderAccountNo   string
	ReceiverAccountNo string
	Amount            decimal.Decimal
}

type Result struct {
	State           State
	Variant         Variant
	Record          domain.TransferRecord
	SenderBalance   decimal.Decimal
	ReceiverBalance decimal.Decimal
}

type AutomatedRequest struct {
	Request
	ReceiverCustomerID domain.CustomerID
	Note               string
}

type AutomatedResult struct {
	Result
	TransactionID string
	RecipientName string
	Timestamp     time.Time
}

type BillRequest struct {
	UserID     domain.CustomerID
	AccountNo  string
	BillerName string
	Category   string
	Amount     decimal.Decimal
}

type BillResult struct {
	State   State
	Record  domain.BillPaymentRecord
	Balance decimal.Decimal
}

// Transfer runs the simple transfer path. A request whose sender is
// domain.ExternalAccount is a deposit into one of the user's own accounts.
func (o *Orchestrator) Transfer(ctx context.Context, req Request) (Result, error) {
	if req.SenderAccountNo == domain.ExternalAccount {
		return o.Deposit(ctx, req)
	}
	return o.transfer(ctx, VariantSearch, req, domain.AnyOwner, "")
}

// Deposit credits an account owned by req.UserID with money coming from
// outside the bank. Nothing is debited.
func (o *Orchestrator) Deposit(ctx context.Context, req Request) (Result, error) {
	req.SenderAccountNo = domain.ExternalAccount
	return o.transfer(ctx, VariantDeposit, req, domain.AnyOwner, "")
}

func (o *Orchestrator) transfer(ctx context.Context, variant Variant, req Request, receiverCustomer domain.CustomerID, note string) (Result, error) {
	ctx, r := o.begin(ctx, "transfers.Transfer", variant,
		attribute.String("sender_account_no", req.SenderAccountNo),
		attribute.String("receiver_account_no", req.ReceiverAccountNo),
	)

	cmd := ledger.TransferCommand{
		SenderAccountNo:   req.SenderAccountNo,
		ReceiverAccountNo: req.ReceiverAccountNo,
		Amount:            req.Amount,
		ActingCustomer:    req.UserID,
		ReceiverCustomer:  receiverCustomer,
		Note:              note,
	}
	if err := o.admit(cmd); err != nil {
		return Result{State: r.finish(ctx, err), Variant: variant}, err
	}

	result, err := o.mutate(ctx, r, cmd)
	if err != nil {
		return Result{State: r.finish(ctx, err), Variant: variant}, err
	}

	return Result{
		State:           r.finish(ctx, nil),
		Variant:         variant,
		Record:          result.Record,
		SenderBalance:   result.SenderBalance,
		ReceiverBalance: result.ReceiverBalance,
	}, nil
}

// AutomatedTransfer confirms the receiver with the validator before any
// balance is touched, then runs the transfer with the receiver's owner
// checked again under the row lock.
func (o *Orchestrator) AutomatedTransfer(ctx context.Context, req AutomatedRequest) (AutomatedResult, error) {
	ctx, r := o.begin(ctx, "transfers.AutomatedTransfer", VariantAutomated,
		attribute.String("sender_account_no", req.SenderAccountNo),
		attribute.String("receiver_account_no", req.ReceiverAccountNo),
		attribute.String("receiver_customer_id", req.ReceiverCustomerID.String()),
	)
	fail := func(err error) (AutomatedResult, error) {
		return AutomatedResult{Result: Result{State: r.finish(ctx, err), Variant: VariantAutomated}}, err
	}

	cmd := ledger.TransferCommand{
		SenderAccountNo:   req.SenderAccountNo,
		ReceiverAccountNo: req.ReceiverAccountNo,
		Amount:            req.Amount,
		ActingCustomer:    req.UserID,
		ReceiverCustomer:  req.ReceiverCustomerID,
		Note:              req.Note,
	}
	if cmd.External() {
		return fail(domain.Invalid("senderAccountNo", "Invalid sender account."))
	}
	if req.ReceiverCustomerID == domain.AnyOwner {
		return fail(domain.Invalid("receiverCustomerId", "Receiver customer ID is required."))
	}
	if req.ReceiverCustomerID == req.UserID {
		return fail(domain.Invalid("receiverCustomerId", "You cannot transfer money to yourself."))
	}
	if err := o.admit(cmd); err != nil {
		return fail(err)
	}

	r.to(ctx, StateValidating)
	recipient, err := o.validator.Validate(ctx, req.ReceiverCustomerID, req.ReceiverAccountNo)
	if err != nil {
		return fail(err)
	}

	result, err := o.mutate(ctx, r, cmd)
	if err != nil {
		return fail(err)
	}

	committedAt := o.now().UTC()
	return AutomatedResult{
		Result: Result{
			State:           r.finish(ctx, nil),
			Variant:         VariantAutomated,
			Record:          result.Record,
			SenderBalance:   result.SenderBalance,
			ReceiverBalance: result.ReceiverBalance,
		},
		TransactionID: TransactionID(committedAt, result.Record.ID),
		RecipientName: recipient.CustomerName,
		Timestamp:     committedAt,
	}, nil
}

// PayBill debits the paying account. When the debit is refused for lack of
// funds the attempt is still recorded, as a Failed bill payment.
func (o *Orchestrator) PayBill(ctx context.Context, req BillRequest) (BillResult, error) {
	ctx, r := o.begin(ctx, "transfers.PayBill", VariantBill,
		attribute.String("account_no", req.AccountNo),
		attribute.String("biller", req.BillerName),
	)

	cmd := ledger.BillCommand{
		CustomerID: req.UserID,
		AccountNo:  req.AccountNo,
		Amount:     req.Amount,
		BillerName: req.BillerName,
		Category:   req.Category,
	}
	if err := cmd.Validate(); err != nil {
		return BillResult{State: r.finish(ctx, err)}, err
	}

	r.to(ctx, StateMutating)
	result, err := o.mutator.PayBill(ctx, cmd)
	if err != nil {
		if isInsufficientFunds(err) {
			if _, recErr := o.mutator.RecordFailedBill(ctx, cmd); recErr != nil {
				r.logger(ctx).Error("failed to record failed bill payment", zap.Error(recErr))
			}
		}
		return BillResult{State: r.finish(ctx, err)}, err
	}

	return BillResult{
		State:   r.finish(ctx, nil),
		Record:  result.Record,
		Balance: result.Balance,
	}, nil
}

// admit runs the checks that reject a request without touching the ledger.
func (o *Orchestrator) admit(cmd ledger.TransferCommand) error {
	if err := cmd.Validate(); err != nil {
		return err
	}
	if cmd.Amount.GreaterThan(o.limit) {
		return &domain.ValidationError{
			Field:   "amount",
			Message: fmt.Sprintf("Transfer amount exceeds daily limit of ₹%s.", domain.FormatAmount(o.limit)),
			Err:     domain.ErrLimitExceeded,
		}
	}
	return nil
}

func (o *Orchestrator) mutate(ctx context.Context, r *run, cmd ledger.TransferCommand) (ledger.TransferResult, error) {
	r.to(ctx, StateMutating)
	return o.mutator.Transfer(ctx, cmd)
}

// TransactionID is the customer-facing reference of a committed transfer.
func TransactionID(committedAt time.Time, recordID int64) string {
	return fmt.Sprintf("TXN%d%d", committedAt.UnixMilli(), recordID)
}

package transfers

import (
	"context"
	"errors"
	"time"

	"github.com/andrenbrandao/bnb-transfers/pkg/domain"
	"github.com/andrenbrandao/bnb-transfers/pkg/ledger"
	"github.com/andrenbrandao/bnb-transfers/pkg/logging"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
)

type State string

const (
	StateReceived   State = "received"
	StateValidating State = "validating"
	StateMutating   State = "mutating"
	StateCommitted  State = "committed"
	StateRejected   State = "rejected"
	StateRolledBack State = "rolled_back"
)

func (s State) Terminal() bool {
	return s == StateCommitted || s == StateRejected || s == StateRolledBack
}

type Variant string

const (
	VariantDeposit   Variant = "deposit"
	VariantSearch    Variant = "search"
	VariantAutomated Variant = "automated"
	VariantBill      Variant = "bill"
)

// run follows one request through its states.
type run struct {
	o       *Orchestrator
	span    trace.Span
	variant Variant
	state   State
	started time.Time
}

func (o *Orchestrator) begin(ctx context.Context, name string, variant Variant, attrs ...attribute.KeyValue) (context.Context, *run) {
	attrs = append(attrs, attribute.String("variant", string(variant)))
	ctx, span := o.tracer.Start(ctx, name, trace.WithAttributes(attrs...))

	r := &run{o: o, span: span, variant: variant, state: StateReceived, started: time.Now()}
	r.logger(ctx).Debug("transfer received")

	return ctx, r
}

func (r *run) logger(ctx context.Context) *zap.Logger {
	return logging.FromContext(ctx).With(zap.String("variant", string(r.variant)))
}

func (r *run) to(ctx context.Context, next State) {
	r.logger(ctx).Debug("transfer state changed",
		zap.String("from", string(r.state)),
		zap.String("to", string(next)),
	)
	r.span.AddEvent(string(next))
	r.state = next
}

// finish moves the request to its terminal state. Failures before the
// mutating state reject the request; failures after it roll it back.
func (r *run) finish(ctx context.Context, err error) State {
	defer r.span.End()

	next := StateCommitted
	if err != nil {
		next = StateRejected
		if r.state == StateMutating {
			next = StateRolledBack
		}
	}
	r.to(ctx, next)

	fields := []zap.Field{
		zap.String("state", string(next)),
		zap.Duration("duration", time.Since(r.started)),
	}
	logger := r.logger(ctx)
	r.span.SetAttributes(attribute.String("state", string(next)))
	r.o.outcomes.Record(ctx, string(r.variant), string(next))

	switch {
	case err == nil:
		logger.Info("transfer finished", fields...)
	case clientError(err):
		logger.Warn("transfer finished", append(fields, zap.Error(err))...)
		r.span.SetStatus(codes.Error, err.Error())
	default:
		logger.Error("transfer failed", append(fields, zap.Error(err), zap.Bool("retryable", ledger.Retryable(err)))...)
		r.span.RecordError(err)
		r.span.SetStatus(codes.Error, err.Error())
	}

	return next
}

// clientError reports whether err is caused by the request rather than by
// the server.
func clientError(err error) bool {
	return errors.Is(err, domain.ErrInvalidInput) ||
		errors.Is(err, domain.ErrNotFound) ||
		isInsufficientFunds(err)
}

func isInsufficientFunds(err error) bool {
	return errors.Is(err, domain.ErrInsufficientFunds)
}

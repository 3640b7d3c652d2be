// Package telemetry wires the OpenTelemetry SDK through the Honeycomb
// distribution and exposes the instruments used by the transfer flow.
// Exporter settings come from the standard OTEL_* environment variables.
package telemetry

import (
	"context"
	"fmt"

	"github.com/honeycombio/honeycomb-opentelemetry-go"
	"github.com/honeycombio/otel-config-go/otelconfig"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"
)

const instrumentationName = "github.com/andrenbrandao/bnb-transfers"

// Setup installs the global tracer and meter providers. The returned func
// flushes and shuts them down.
func Setup() (func(), error) {
	bsp := honeycomb.NewBaggageSpanProcessor()

	shutdown, err := otelconfig.ConfigureOpenTelemetry(
		otelconfig.WithSpanProcessor(bsp),
	)
	if err != nil {
		return nil, fmt.Errorf("configure opentelemetry: %w", err)
	}

	return shutdown, nil
}

func Tracer() trace.Tracer {
	return otel.Tracer(instrumentationName)
}

// Outcomes counts finished money-movement requests by variant and terminal
// state.
type Outcomes struct {
	counter metric.Int64Counter
}

func NewOutcomes() (*Outcomes, error) {
	counter, err := otel.Meter(instrumentationName).Int64Counter(
		"bnb.transfers.outcomes",
		metric.WithDescription("Finished transfer and bill payment requests"),
		metric.WithUnit("{request}"),
	)
	if err != nil {
		return nil, err
	}

	return &Outcomes{counter: counter}, nil
}

func (o *Outcomes) Record(ctx context.Context, variant, state string) {
	if o == nil {
		return
	}
	o.counter.Add(ctx, 1, metric.WithAttributes(
		attribute.String("variant", variant),
		attribute.String("state", state),
	))
}

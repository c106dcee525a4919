package rebuild

import (
	"context"
	"fmt"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// instruments holds the OpenTelemetry metric instruments for rebuild
// transactions. Created once per Body when a meter is configured and
// reused for every transaction.
type instruments struct {
	// txCounter increments per finished transaction, tagged with the
	// terminal state.
	txCounter metric.Int64Counter

	// txDuration records transaction duration in milliseconds.
	txDuration metric.Float64Histogram

	// resolutionCounter increments per reference resolution, tagged
	// "resolved" or the failure reason.
	resolutionCounter metric.Int64Counter
}

// newInstruments creates the metric instruments from a meter. A nil meter
// disables metrics and returns nil without error.
func newInstruments(meter metric.Meter) (*instruments, error) {
	if meter == nil {
		return nil, nil
	}

	ins := &instruments{}
	var err error

	ins.txCounter, err = meter.Int64Counter(
		"rebuild.transactions",
		metric.WithDescription("Number of rebuild transactions by terminal state"),
		metric.WithUnit("1"),
	)
	if err != nil {
		return nil, fmt.Errorf("create transaction counter: %w", err)
	}

	ins.txDuration, err = meter.Float64Histogram(
		"rebuild.duration",
		metric.WithDescription("Rebuild transaction duration in milliseconds"),
		metric.WithUnit("ms"),
	)
	if err != nil {
		return nil, fmt.Errorf("create duration histogram: %w", err)
	}

	ins.resolutionCounter, err = meter.Int64Counter(
		"rebuild.resolutions",
		metric.WithDescription("Number of reference resolutions by outcome"),
		metric.WithUnit("1"),
	)
	if err != nil {
		return nil, fmt.Errorf("create resolution counter: %w", err)
	}

	return ins, nil
}

// record captures one finished transaction. Nil-safe: a Body without a
// meter records nothing.
func (ins *instruments) record(ctx context.Context, body string, outcome *Outcome, elapsed time.Duration) {
	if ins == nil {
		return
	}

	attrs := metric.WithAttributes(
		attribute.String("body", body),
		attribute.String("state", string(outcome.State)),
	)
	ins.txCounter.Add(ctx, 1, attrs)
	ins.txDuration.Record(ctx, float64(elapsed.Milliseconds()), attrs)

	for _, res := range outcome.Results {
		label := "resolved"
		if res.Failure != nil {
			label = string(res.Failure.Reason)
		}
		ins.resolutionCounter.Add(ctx, 1, metric.WithAttributes(
			attribute.String("body", body),
			attribute.String("outcome", label),
		))
	}
}

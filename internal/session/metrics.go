package session

import (
	"context"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"

	"github.com/roach88/seatbelt/internal/engine"
)

// metrics holds the session's instruments. A nil *metrics records nothing.
type metrics struct {
	decisions metric.Int64Counter
	flushes   metric.Int64Counter
	latency   metric.Float64Histogram
}

func defaultMeter() metric.Meter {
	return otel.Meter("seatbelt.session")
}

func newMetrics(meter metric.Meter) (*metrics, error) {
	decisions, err := meter.Int64Counter(
		"seatbelt_decisions_total",
		metric.WithDescription("Ratchet decisions by outcome"),
	)
	if err != nil {
		return nil, err
	}

	flushes, err := meter.Int64Counter(
		"seatbelt_flushes_total",
		metric.WithDescription("Record file writes"),
	)
	if err != nil {
		return nil, err
	}

	latency, err := meter.Float64Histogram(
		"seatbelt_reconcile_duration_seconds",
		metric.WithDescription("Duration of one file's reconciliation"),
		metric.WithUnit("s"),
	)
	if err != nil {
		return nil, err
	}

	return &metrics{decisions: decisions, flushes: flushes, latency: latency}, nil
}

func (m *metrics) recordReconcile(ctx context.Context, d time.Duration, res engine.Result) {
	if m == nil {
		return
	}
	m.latency.Record(ctx, d.Seconds(),
		metric.WithAttributes(attribute.Bool("bug", res.Bug != nil)))
	for _, dec := range res.Decisions {
		m.decisions.Add(ctx, 1,
			metric.WithAttributes(attribute.String("outcome", string(dec.Outcome))))
	}
}

func (m *metrics) recordFlush(ctx context.Context, reason string) {
	if m == nil {
		return
	}
	m.flushes.Add(ctx, 1, metric.WithAttributes(attribute.String("reason", reason)))
}

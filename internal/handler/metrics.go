package handler

import (
	"context"

	"github.com/go-faster/errors"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// Metrics counts checkout and payment outcomes.
type Metrics struct {
	ordersCreated metric.Int64Counter
	qrRequested   metric.Int64Counter
	paymentsDone  metric.Int64Counter
	vouchersUsed  metric.Int64Counter
}

// NewMetrics registers the handler instruments with mp.
func NewMetrics(mp metric.MeterProvider) (*Metrics, error) {
	meter := mp.Meter("github.com/xenking/hawker-checkout/internal/handler")

	var (
		m   Metrics
		err error
	)
	if m.ordersCreated, err = meter.Int64Counter("hawker.orders.created",
		metric.WithDescription("Orders created from carts"),
	); err != nil {
		return nil, errors.Wrap(err, "orders.created")
	}
	if m.qrRequested, err = meter.Int64Counter("hawker.payment.qr_requested",
		metric.WithDescription("Payment QR codes issued"),
	); err != nil {
		return nil, errors.Wrap(err, "payment.qr_requested")
	}
	if m.paymentsDone, err = meter.Int64Counter("hawker.payment.confirmed",
		metric.WithDescription("Status queries that found the order paid"),
	); err != nil {
		return nil, errors.Wrap(err, "payment.confirmed")
	}
	if m.vouchersUsed, err = meter.Int64Counter("hawker.vouchers.applied",
		metric.WithDescription("Vouchers selected for checkout"),
	); err != nil {
		return nil, errors.Wrap(err, "vouchers.applied")
	}
	return &m, nil
}

func (m *Metrics) orderCreated(ctx context.Context, stallID string) {
	if m == nil {
		return
	}
	m.ordersCreated.Add(ctx, 1, metric.WithAttributes(attribute.String("stall.id", stallID)))
}

func (m *Metrics) qrIssued(ctx context.Context) {
	if m == nil {
		return
	}
	m.qrRequested.Add(ctx, 1)
}

func (m *Metrics) paymentConfirmed(ctx context.Context) {
	if m == nil {
		return
	}
	m.paymentsDone.Add(ctx, 1)
}

func (m *Metrics) voucherApplied(ctx context.Context, eligible bool) {
	if m == nil {
		return
	}
	m.vouchersUsed.Add(ctx, 1, metric.WithAttributes(attribute.Bool("eligible", eligible)))
}

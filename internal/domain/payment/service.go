package payment

import (
	"context"
	"time"

	"github.com/go-faster/errors"
	"github.com/go-faster/sdk/zctx"
	"go.uber.org/zap"

	"github.com/xenking/hawker-checkout/internal/domain/order"
)

// sessionGrace keeps a session past the client window so the final query
// can still be correlated.
const sessionGrace = time.Minute

// Orders resolves orders on behalf of a user.
type Orders interface {
	Owned(ctx context.Context, userID, orderID string) (*order.Order, error)
}

// ServiceConfig holds payment flow parameters.
type ServiceConfig struct {
	// Window is how long a client polls a QR before giving up.
	Window time.Duration
}

// QueryResult is the outcome of a status query.
type QueryResult struct {
	Payload *Payload
	// Confirmed is true once the order is PAID.
	Confirmed bool
}

// Service drives the server side of a QR payment.
type Service struct {
	orders    Orders
	gateway   Gateway
	sessions  SessionStore
	confirmer *Confirmer
	ttl       time.Duration
}

// NewService creates a payment Service.
func NewService(cfg ServiceConfig, orders Orders, gateway Gateway, sessions SessionStore, confirmer *Confirmer) *Service {
	return &Service{
		orders:    orders,
		gateway:   gateway,
		sessions:  sessions,
		confirmer: confirmer,
		ttl:       cfg.Window + sessionGrace,
	}
}

// RequestQR asks the gateway for a payment QR for the user's pending order
// and remembers the issued retrieval reference.
func (s *Service) RequestQR(ctx context.Context, userID, orderID string) (*Payload, error) {
	o, err := s.orders.Owned(ctx, userID, orderID)
	if err != nil {
		return nil, err
	}
	if o.Status != order.StatusPending {
		return nil, ErrNotPending
	}

	p, err := s.gateway.Request(ctx, QRRequest{
		TxnID:       o.NetsTxnID,
		AmountCents: o.TotalCents,
	})
	if err != nil {
		return nil, err
	}

	if p.RetrievalRef != "" {
		if err := s.sessions.Save(ctx, o.ID, p.RetrievalRef, s.ttl); err != nil {
			return nil, errors.Wrap(err, "save payment session")
		}
	}
	return p, nil
}

// QueryStatus queries the gateway for the QR issued for the user's order.
// A successful payload confirms the order.
func (s *Service) QueryStatus(ctx context.Context, userID, orderID, retrievalRef string, final bool) (*QueryResult, error) {
	o, err := s.orders.Owned(ctx, userID, orderID)
	if err != nil {
		return nil, err
	}
	if o.Paid() {
		return &QueryResult{Payload: settledPayload(retrievalRef), Confirmed: true}, nil
	}

	issued, err := s.sessions.Lookup(ctx, o.ID)
	if err != nil {
		return nil, errors.Wrap(err, "lookup payment session")
	}
	if issued != retrievalRef {
		return nil, ErrRefMismatch
	}

	p, err := s.gateway.Query(ctx, retrievalRef, final)
	if err != nil {
		return nil, err
	}
	if !p.Success() {
		return &QueryResult{Payload: p}, nil
	}

	if _, err := s.confirmer.OnSuccess(ctx, o.ID); err != nil {
		return nil, errors.Wrap(err, "confirm payment")
	}
	if err := s.sessions.Delete(ctx, o.ID); err != nil {
		zctx.From(ctx).Warn("Delete payment session", zap.String("order_id", o.ID), zap.Error(err))
	}
	return &QueryResult{Payload: p, Confirmed: true}, nil
}

// settledPayload is returned for orders whose payment is already confirmed.
func settledPayload(retrievalRef string) *Payload {
	return &Payload{
		ResponseCode: responseCodeOK,
		TxnStatus:    txnStatusPaid,
		RetrievalRef: retrievalRef,
	}
}

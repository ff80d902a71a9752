package payment

import (
	"context"
	"encoding/base64"
	"fmt"
	"time"

	"github.com/go-faster/errors"
)

const (
	responseCodeOK = "00"
	txnStatusPaid  = 1
)

var (
	// ErrNotConfigured is returned when gateway credentials are missing.
	ErrNotConfigured = errors.New("payment gateway not configured")
	// ErrInvalidAmount is returned when a QR is requested for a non-positive amount.
	ErrInvalidAmount = errors.New("invalid payment amount")
	// ErrNotPending is returned when payment is requested for a settled order.
	ErrNotPending = errors.New("order is not awaiting payment")
	// ErrSessionNotFound is returned when no QR was issued for an order or it expired.
	ErrSessionNotFound = errors.New("payment session not found")
	// ErrRefMismatch is returned when a status query uses a retrieval
	// reference that was not issued for the order.
	ErrRefMismatch = errors.New("retrieval reference does not match order")
)

// ExternalServiceError wraps a failed call to the payment gateway.
type ExternalServiceError struct {
	Op         string
	StatusCode int
	Err        error
}

func (e *ExternalServiceError) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("payment gateway %s: status %d: %s", e.Op, e.StatusCode, e.Err)
	}
	return fmt.Sprintf("payment gateway %s: %s", e.Op, e.Err)
}

func (e *ExternalServiceError) Unwrap() error {
	return e.Err
}

// Payload is the normalized gateway response for both QR requests and
// status queries.
type Payload struct {
	ResponseCode string
	TxnStatus    int
	// QRCode is a base64 encoded PNG, present on QR requests.
	QRCode        string
	RetrievalRef  string
	NetworkStatus int
	Instruction   string
}

// Success reports whether the gateway accepted the request or settled the
// transaction.
func (p *Payload) Success() bool {
	return p != nil && p.ResponseCode == responseCodeOK && p.TxnStatus == txnStatusPaid
}

// QRImage decodes the QR code PNG.
func (p *Payload) QRImage() ([]byte, error) {
	if p.QRCode == "" {
		return nil, errors.New("no qr code in payload")
	}
	img, err := base64.StdEncoding.DecodeString(p.QRCode)
	if err != nil {
		return nil, errors.Wrap(err, "decode qr code")
	}
	return img, nil
}

// QRRequest asks the gateway for a payment QR.
type QRRequest struct {
	TxnID       string
	AmountCents int64
}

// Gateway is the QR payment provider.
type Gateway interface {
	Request(ctx context.Context, req QRRequest) (*Payload, error)
	// Query asks for the status of a QR transaction. final marks the last
	// query before the client gives up.
	Query(ctx context.Context, retrievalRef string, final bool) (*Payload, error)
}

// SessionStore remembers the retrieval reference issued for each order.
type SessionStore interface {
	Save(ctx context.Context, orderID, retrievalRef string, ttl time.Duration) error
	// Lookup returns ErrSessionNotFound when nothing is stored for the order.
	Lookup(ctx context.Context, orderID string) (string, error)
	Delete(ctx context.Context, orderID string) error
}

// PaidEvent is published once an order transitions to PAID.
type PaidEvent struct {
	OrderID    string
	OrderCode  string
	UserID     string
	StallID    string
	TotalCents int64
	PaidAt     time.Time
}

// Publisher announces confirmed payments to downstream consumers.
type Publisher interface {
	PublishPaid(ctx context.Context, evt PaidEvent) error
}

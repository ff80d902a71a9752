// Package nets implements payment.Gateway over the NETS QR HTTP API.
package nets

import (
	"bytes"
	"context"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/go-faster/errors"
	"github.com/go-faster/jx"
	"github.com/shopspring/decimal"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"

	"github.com/xenking/hawker-checkout/internal/domain/payment"
)

const maxResponseBytes = 1 << 20

var _ payment.Gateway = (*Client)(nil)

// Config holds gateway endpoint and credential settings.
type Config struct {
	BaseURL      string
	RequestPath  string
	QueryPath    string
	APIKey       string
	ProjectID    string
	NotifyMobile int64
	Timeout      time.Duration
}

// Client calls the NETS QR request and query endpoints.
type Client struct {
	cfg  Config
	http *http.Client
}

// Option configures a Client.
type Option func(*Client)

// WithHTTPClient replaces the underlying HTTP client.
func WithHTTPClient(c *http.Client) Option {
	return func(cl *Client) { cl.http = c }
}

// WithTelemetry instruments outgoing calls with the given providers.
func WithTelemetry(tp trace.TracerProvider, mp metric.MeterProvider) Option {
	return func(cl *Client) {
		cl.http.Transport = otelhttp.NewTransport(cl.http.Transport,
			otelhttp.WithTracerProvider(tp),
			otelhttp.WithMeterProvider(mp),
		)
	}
}

// New creates a gateway Client.
func New(cfg Config, opts ...Option) *Client {
	c := &Client{
		cfg:  cfg,
		http: &http.Client{Timeout: cfg.Timeout, Transport: http.DefaultTransport},
	}
	for _, o := range opts {
		o(c)
	}
	return c
}

// Request asks the gateway to issue a QR for req.
func (c *Client) Request(ctx context.Context, req payment.QRRequest) (*payment.Payload, error) {
	const op = "request"
	if !c.configured() {
		return nil, &payment.ExternalServiceError{Op: op, Err: payment.ErrNotConfigured}
	}
	if req.AmountCents <= 0 {
		return nil, &payment.ExternalServiceError{Op: op, Err: payment.ErrInvalidAmount}
	}

	e := jx.GetEncoder()
	defer jx.PutEncoder(e)
	e.ObjStart()
	e.FieldStart("txn_id")
	e.Str(req.TxnID)
	e.FieldStart("amt_in_dollars")
	e.Str(FormatDollars(req.AmountCents))
	e.FieldStart("notify_mobile")
	e.Int64(c.cfg.NotifyMobile)
	e.ObjEnd()

	return c.post(ctx, op, c.cfg.RequestPath, e.Bytes())
}

// Query asks the gateway for the status of a QR transaction.
func (c *Client) Query(ctx context.Context, retrievalRef string, final bool) (*payment.Payload, error) {
	const op = "query"
	if !c.configured() {
		return nil, &payment.ExternalServiceError{Op: op, Err: payment.ErrNotConfigured}
	}

	timeoutStatus := 0
	if final {
		timeoutStatus = 1
	}

	e := jx.GetEncoder()
	defer jx.PutEncoder(e)
	e.ObjStart()
	e.FieldStart("txn_retrieval_ref")
	e.Str(retrievalRef)
	e.FieldStart("frontend_timeout_status")
	e.Int(timeoutStatus)
	e.ObjEnd()

	return c.post(ctx, op, c.cfg.QueryPath, e.Bytes())
}

func (c *Client) configured() bool {
	return c.cfg.BaseURL != "" && c.cfg.APIKey != "" && c.cfg.ProjectID != ""
}

func (c *Client) post(ctx context.Context, op, path string, body []byte) (*payment.Payload, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.cfg.BaseURL+path, bytes.NewReader(body))
	if err != nil {
		return nil, errors.Wrap(err, "create request")
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("api-key", c.cfg.APIKey)
	req.Header.Set("project-id", c.cfg.ProjectID)

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, &payment.ExternalServiceError{Op: op, Err: err}
	}
	defer func() { _ = resp.Body.Close() }()

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return nil, &payment.ExternalServiceError{Op: op, StatusCode: resp.StatusCode, Err: errors.Wrap(err, "read body")}
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, &payment.ExternalServiceError{
			Op:         op,
			StatusCode: resp.StatusCode,
			Err:        errors.Errorf("unexpected status: %s", bytes.TrimSpace(data)),
		}
	}

	p, err := DecodePayload(data)
	if err != nil {
		return nil, &payment.ExternalServiceError{Op: op, StatusCode: resp.StatusCode, Err: err}
	}
	return p, nil
}

// FormatDollars renders cents as a dollar amount with two decimals.
func FormatDollars(cents int64) string {
	return decimal.New(cents, -2).StringFixed(2)
}

// DecodePayload extracts result.data from a gateway response body.
func DecodePayload(data []byte) (*payment.Payload, error) {
	var (
		p     payment.Payload
		found bool
	)
	err := jx.DecodeBytes(data).Obj(func(d *jx.Decoder, key string) error {
		if key != "result" {
			return d.Skip()
		}
		return d.Obj(func(d *jx.Decoder, key string) error {
			if key != "data" {
				return d.Skip()
			}
			found = true
			return decodeData(d, &p)
		})
	})
	if err != nil {
		return nil, errors.Wrap(err, "decode payload")
	}
	if !found {
		return nil, errors.New("decode payload: missing result.data")
	}
	return &p, nil
}

func decodeData(d *jx.Decoder, p *payment.Payload) error {
	return d.Obj(func(d *jx.Decoder, key string) error {
		var err error
		switch key {
		case "response_code":
			p.ResponseCode, err = flexString(d)
		case "txn_status":
			p.TxnStatus, err = flexInt(d)
		case "qr_code":
			p.QRCode, err = flexString(d)
		case "txn_retrieval_ref":
			p.RetrievalRef, err = flexString(d)
		case "network_status":
			p.NetworkStatus, err = flexInt(d)
		case "instruction":
			p.Instruction, err = flexString(d)
		default:
			return d.Skip()
		}
		if err != nil {
			return errors.Wrapf(err, "field %q", key)
		}
		return nil
	})
}

// flexString reads a string, number or null as a string.
func flexString(d *jx.Decoder) (string, error) {
	switch d.Next() {
	case jx.String:
		return d.Str()
	case jx.Number:
		n, err := d.Num()
		if err != nil {
			return "", err
		}
		return n.String(), nil
	case jx.Null:
		return "", d.Null()
	default:
		return "", errors.Errorf("unexpected %s", d.Next())
	}
}

// flexInt reads a number, numeric string or null as an int.
func flexInt(d *jx.Decoder) (int, error) {
	switch d.Next() {
	case jx.Number:
		return d.Int()
	case jx.String:
		s, err := d.Str()
		if err != nil {
			return 0, err
		}
		if s == "" {
			return 0, nil
		}
		return strconv.Atoi(s)
	case jx.Null:
		return 0, d.Null()
	default:
		return 0, errors.Errorf("unexpected %s", d.Next())
	}
}

// Package apiclient is a client for the checkout API.
package apiclient

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/go-faster/errors"
	"github.com/go-faster/jx"

	"github.com/xenking/hawker-checkout/internal/domain/payment"
	"github.com/xenking/hawker-checkout/internal/poller"
)

// Error is a non-2xx API response.
type Error struct {
	StatusCode int
	Message    string
}

func (e *Error) Error() string {
	return fmt.Sprintf("api error %d: %s", e.StatusCode, e.Message)
}

// Config identifies the caller.
type Config struct {
	BaseURL string
	APIKey  string
	UserID  string
}

// Client calls the checkout API on behalf of one user.
type Client struct {
	cfg  Config
	http *http.Client
}

// New creates a Client. A nil httpClient uses http.DefaultClient.
func New(cfg Config, httpClient *http.Client) *Client {
	if httpClient == nil {
		httpClient = http.DefaultClient
	}
	cfg.BaseURL = strings.TrimRight(cfg.BaseURL, "/")
	return &Client{cfg: cfg, http: httpClient}
}

// CreatedOrder is the result of a checkout.
type CreatedOrder struct {
	ID         string
	Code       string
	TotalCents int64
	Status     string
}

// CreateOrder checks out the caller's cart.
func (c *Client) CreateOrder(ctx context.Context) (*CreatedOrder, error) {
	var o CreatedOrder
	err := c.do(ctx, http.MethodPost, "/api/orders", nil, func(d *jx.Decoder) error {
		return d.Obj(func(d *jx.Decoder, key string) error {
			var err error
			switch key {
			case "orderId":
				o.ID, err = d.Str()
			case "orderCode":
				o.Code, err = d.Str()
			case "totalCents":
				o.TotalCents, err = d.Int64()
			case "status":
				o.Status, err = d.Str()
			default:
				err = d.Skip()
			}
			return err
		})
	})
	if err != nil {
		return nil, err
	}
	return &o, nil
}

// RequestPayment asks for a payment QR for orderID.
func (c *Client) RequestPayment(ctx context.Context, orderID string) (*payment.Payload, error) {
	var p payment.Payload
	err := c.do(ctx, http.MethodPost, "/api/orders/"+orderID+"/payment/request", nil, func(d *jx.Decoder) error {
		return decodePayload(d, &p)
	})
	if err != nil {
		return nil, err
	}
	return &p, nil
}

// QueryPayment asks for the status of the QR identified by retrievalRef.
func (c *Client) QueryPayment(ctx context.Context, orderID, retrievalRef string, final bool) (*payment.Payload, bool, error) {
	e := jx.GetEncoder()
	defer jx.PutEncoder(e)
	e.Obj(func(e *jx.Encoder) {
		e.Field("txnRetrievalRef", func(e *jx.Encoder) { e.Str(retrievalRef) })
		e.Field("final", func(e *jx.Encoder) { e.Bool(final) })
	})

	var (
		p         payment.Payload
		confirmed bool
	)
	err := c.do(ctx, http.MethodPost, "/api/orders/"+orderID+"/payment/query", e.Bytes(), func(d *jx.Decoder) error {
		return d.Obj(func(d *jx.Decoder, key string) error {
			var err error
			switch key {
			case "confirmed":
				confirmed, err = d.Bool()
			case "payload":
				err = decodePayload(d, &p)
			default:
				err = d.Skip()
			}
			return err
		})
	})
	if err != nil {
		return nil, false, err
	}
	return &p, confirmed, nil
}

// Gateway returns the poller view of orderID's payment.
func (c *Client) Gateway(orderID string) poller.Gateway {
	return orderGateway{c: c, orderID: orderID}
}

type orderGateway struct {
	c       *Client
	orderID string
}

func (g orderGateway) Request(ctx context.Context) (*payment.Payload, error) {
	return g.c.RequestPayment(ctx, g.orderID)
}

func (g orderGateway) Query(ctx context.Context, retrievalRef string, final bool) (*payment.Payload, error) {
	p, _, err := g.c.QueryPayment(ctx, g.orderID, retrievalRef, final)
	return p, err
}

func (c *Client) do(ctx context.Context, method, path string, body []byte, decode func(d *jx.Decoder) error) error {
	var r io.Reader
	if body != nil {
		r = bytes.NewReader(body)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.cfg.BaseURL+path, r)
	if err != nil {
		return errors.Wrap(err, "create request")
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	req.Header.Set("api_key", c.cfg.APIKey)
	req.Header.Set("X-User-ID", c.cfg.UserID)

	resp, err := c.http.Do(req)
	if err != nil {
		return errors.Wrapf(err, "%s %s", method, path)
	}
	defer func() { _ = resp.Body.Close() }()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return errors.Wrap(err, "read response")
	}
	if resp.StatusCode/100 != 2 {
		return &Error{StatusCode: resp.StatusCode, Message: errorMessage(data)}
	}
	if err := decode(jx.DecodeBytes(data)); err != nil {
		return errors.Wrap(err, "decode response")
	}
	return nil
}

func errorMessage(data []byte) string {
	var msg string
	err := jx.DecodeBytes(data).Obj(func(d *jx.Decoder, key string) error {
		if key != "message" {
			return d.Skip()
		}
		var err error
		msg, err = d.Str()
		return err
	})
	if err != nil || msg == "" {
		return strings.TrimSpace(string(data))
	}
	return msg
}

func decodePayload(d *jx.Decoder, p *payment.Payload) error {
	return d.Obj(func(d *jx.Decoder, key string) error {
		var err error
		switch key {
		case "responseCode":
			p.ResponseCode, err = d.Str()
		case "txnStatus":
			p.TxnStatus, err = d.Int()
		case "qrCode":
			p.QRCode, err = d.Str()
		case "txnRetrievalRef":
			p.RetrievalRef, err = d.Str()
		case "networkStatus":
			p.NetworkStatus, err = d.Int()
		case "instruction":
			p.Instruction, err = d.Str()
		default:
			err = d.Skip()
		}
		return err
	})
}

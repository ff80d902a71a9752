// Package poller drives a QR payment session on the client: it requests a
// QR, counts down the payment window and polls the payment status until the
// payment succeeds, times out or is cancelled.
package poller

import (
	"context"
	"sync"
	"time"

	"github.com/go-faster/errors"
	"github.com/jonboulle/clockwork"
	"go.uber.org/zap"

	"github.com/xenking/hawker-checkout/internal/domain/payment"
)

// Status is the state of a payment session.
type Status string

const (
	// StatusIdle means no session is open.
	StatusIdle    Status = ""
	StatusPending Status = "pending"
	StatusSuccess Status = "success"
	StatusFail    Status = "fail"
)

// Reason explains a failed session.
type Reason string

const (
	ReasonRequestFailed Reason = "request_failed"
	ReasonTimeout       Reason = "timeout"
	ReasonCancelled     Reason = "cancelled"
)

// ErrRequestInFlight is returned by Open while a QR request is outstanding.
var ErrRequestInFlight = errors.New("qr request already in flight")

// Gateway is the payment API of one order as seen by the client.
type Gateway interface {
	Request(ctx context.Context) (*payment.Payload, error)
	Query(ctx context.Context, retrievalRef string, final bool) (*payment.Payload, error)
}

// Callbacks are invoked outside the controller lock, at most once per
// session each.
type Callbacks struct {
	OnQR      func(p *payment.Payload)
	OnSuccess func()
	OnFailure func(reason Reason)
}

// Config holds session timing.
type Config struct {
	// Window is the time a user has to pay once the QR is shown.
	Window time.Duration
	// PollEvery is the interval between non-final status queries.
	PollEvery time.Duration
	Clock     clockwork.Clock
	Logger    *zap.Logger
}

func (c *Config) setDefaults() {
	if c.Window <= 0 {
		c.Window = 5 * time.Minute
	}
	if c.PollEvery <= 0 {
		c.PollEvery = 5 * time.Second
	}
	if c.Clock == nil {
		c.Clock = clockwork.NewRealClock()
	}
	if c.Logger == nil {
		c.Logger = zap.NewNop()
	}
}

// Snapshot is a point-in-time view of a session.
type Snapshot struct {
	Status           Status
	Reason           Reason
	RetrievalRef     string
	SecondsRemaining int
}

// Controller runs one payment session at a time.
type Controller struct {
	gw  Gateway
	cb  Callbacks
	cfg Config

	mu         sync.Mutex
	gen        uint64
	status     Status
	reason     Reason
	ref        string
	remaining  int
	requesting bool
	ticker     clockwork.Ticker
	stop       chan struct{}
	ctx        context.Context
	cancel     context.CancelFunc
}

// New creates a Controller.
func New(gw Gateway, cb Callbacks, cfg Config) *Controller {
	cfg.setDefaults()
	return &Controller{gw: gw, cb: cb, cfg: cfg}
}

// Snapshot returns the current session state.
func (c *Controller) Snapshot() Snapshot {
	c.mu.Lock()
	defer c.mu.Unlock()
	return Snapshot{
		Status:           c.status,
		Reason:           c.reason,
		RetrievalRef:     c.ref,
		SecondsRemaining: c.remaining,
	}
}

// Open starts a new session: it resets the state, requests a QR and starts
// the countdown. Opening while a request is outstanding fails with
// ErrRequestInFlight.
func (c *Controller) Open(ctx context.Context) error {
	c.mu.Lock()
	if c.requesting {
		c.mu.Unlock()
		return ErrRequestInFlight
	}
	c.resetLocked()
	c.gen++
	gen := c.gen
	c.status = StatusPending
	c.remaining = int(c.cfg.Window / time.Second)
	c.requesting = true
	sessCtx, cancel := context.WithCancel(context.WithoutCancel(ctx))
	c.ctx, c.cancel = sessCtx, cancel
	c.mu.Unlock()

	p, err := c.gw.Request(sessCtx)

	c.mu.Lock()
	c.requesting = false
	if gen != c.gen || c.status != StatusPending {
		c.mu.Unlock()
		return nil
	}
	if err != nil || !p.Success() || p.QRCode == "" {
		notify := c.failLocked(ReasonRequestFailed)
		c.mu.Unlock()
		notify()
		if err != nil {
			return errors.Wrap(err, "request qr")
		}
		return errors.New("qr request rejected")
	}

	c.ref = p.RetrievalRef
	c.startLocked(gen)
	onQR := c.cb.OnQR
	c.mu.Unlock()

	if onQR != nil {
		onQR(p)
	}
	return nil
}

// Cancel abandons a pending session. Late poll results are ignored. It
// reports whether the session was pending.
func (c *Controller) Cancel() bool {
	c.mu.Lock()
	if c.status != StatusPending {
		c.mu.Unlock()
		return false
	}
	notify := c.failLocked(ReasonCancelled)
	c.mu.Unlock()
	notify()
	return true
}

// Close releases the session and returns the status it ended in.
func (c *Controller) Close() Status {
	c.mu.Lock()
	defer c.mu.Unlock()
	last := c.status
	c.resetLocked()
	c.gen++
	return last
}

func (c *Controller) resetLocked() {
	c.stopTickerLocked()
	if c.cancel != nil {
		c.cancel()
		c.ctx, c.cancel = nil, nil
	}
	c.status = StatusIdle
	c.reason = ""
	c.ref = ""
	c.remaining = 0
}

func (c *Controller) startLocked(gen uint64) {
	t := c.cfg.Clock.NewTicker(time.Second)
	stop := make(chan struct{})
	c.ticker = t
	c.stop = stop
	go func() {
		for {
			select {
			case <-stop:
				return
			case <-t.Chan():
				c.tick(gen)
			}
		}
	}()
}

func (c *Controller) stopTickerLocked() {
	if c.ticker == nil {
		return
	}
	c.ticker.Stop()
	close(c.stop)
	c.ticker = nil
	c.stop = nil
}

func (c *Controller) tick(gen uint64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if gen != c.gen || c.status != StatusPending || c.ticker == nil {
		return
	}

	c.remaining--
	if c.remaining <= 0 {
		c.remaining = 0
		c.stopTickerLocked()
		c.pollLocked(gen, true)
		return
	}
	every := int(c.cfg.PollEvery / time.Second)
	if every > 0 && c.remaining%every == 0 {
		c.pollLocked(gen, false)
	}
}

// pollLocked queries the status in the background so the countdown keeps
// running while the call is in flight.
func (c *Controller) pollLocked(gen uint64, final bool) {
	ref, ctx := c.ref, c.ctx
	go func() {
		p, err := c.gw.Query(ctx, ref, final)
		c.onResult(gen, final, p, err)
	}()
}

func (c *Controller) onResult(gen uint64, final bool, p *payment.Payload, err error) {
	c.mu.Lock()
	if gen != c.gen || c.status != StatusPending {
		c.mu.Unlock()
		return
	}

	switch {
	case err == nil && p.Success():
		c.stopTickerLocked()
		c.status = StatusSuccess
		onSuccess := c.cb.OnSuccess
		c.mu.Unlock()
		if onSuccess != nil {
			onSuccess()
		}
	case final:
		notify := c.failLocked(ReasonTimeout)
		c.mu.Unlock()
		notify()
	default:
		c.mu.Unlock()
		if err != nil {
			c.cfg.Logger.Warn("Payment status poll failed", zap.Error(err))
		}
	}
}

// failLocked moves to fail and returns the callback to run after unlocking.
func (c *Controller) failLocked(reason Reason) func() {
	c.stopTickerLocked()
	c.status = StatusFail
	c.reason = reason
	onFailure := c.cb.OnFailure
	return func() {
		if onFailure != nil {
			onFailure(reason)
		}
	}
}

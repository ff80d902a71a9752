package poller

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/go-faster/errors"
	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/xenking/hawker-checkout/internal/domain/payment"
)

var (
	qrPayload      = &payment.Payload{ResponseCode: "00", TxnStatus: 1, QRCode: "iVBORw0KGgo=", RetrievalRef: "ref-1"}
	pendingPayload = &payment.Payload{ResponseCode: "09", TxnStatus: 0, RetrievalRef: "ref-1"}
	paidPayload    = &payment.Payload{ResponseCode: "00", TxnStatus: 1, RetrievalRef: "ref-1"}
)

type query struct {
	ref   string
	final bool
}

type fakeGateway struct {
	request func(ctx context.Context) (*payment.Payload, error)
	respond func(q query) (*payment.Payload, error)
	queries chan query
}

func newFakeGateway() *fakeGateway {
	return &fakeGateway{
		request: func(context.Context) (*payment.Payload, error) { return qrPayload, nil },
		respond: func(query) (*payment.Payload, error) { return pendingPayload, nil },
		queries: make(chan query, 16),
	}
}

func (g *fakeGateway) Request(ctx context.Context) (*payment.Payload, error) {
	return g.request(ctx)
}

func (g *fakeGateway) Query(_ context.Context, ref string, final bool) (*payment.Payload, error) {
	q := query{ref: ref, final: final}
	g.queries <- q
	return g.respond(q)
}

type recorder struct {
	mu        sync.Mutex
	qr        int
	successes int
	failures  []Reason
}

func (r *recorder) callbacks() Callbacks {
	return Callbacks{
		OnQR: func(*payment.Payload) {
			r.mu.Lock()
			defer r.mu.Unlock()
			r.qr++
		},
		OnSuccess: func() {
			r.mu.Lock()
			defer r.mu.Unlock()
			r.successes++
		},
		OnFailure: func(reason Reason) {
			r.mu.Lock()
			defer r.mu.Unlock()
			r.failures = append(r.failures, reason)
		},
	}
}

func (r *recorder) counts() (qr, successes int, failures []Reason) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.qr, r.successes, append([]Reason(nil), r.failures...)
}

func newTestController(t *testing.T, gw *fakeGateway, rec *recorder) (*Controller, *clockwork.FakeClock) {
	t.Helper()
	clock := clockwork.NewFakeClock()
	c := New(gw, rec.callbacks(), Config{
		Window:    10 * time.Second,
		PollEvery: 5 * time.Second,
		Clock:     clock,
		Logger:    zaptest.NewLogger(t),
	})
	t.Cleanup(func() { c.Close() })
	return c, clock
}

// advance moves the clock one second and waits for the tick to be counted.
func advance(t *testing.T, c *Controller, clock *clockwork.FakeClock, wantRemaining int) {
	t.Helper()
	clock.Advance(time.Second)
	require.Eventually(t, func() bool {
		return c.Snapshot().SecondsRemaining == wantRemaining
	}, time.Second, time.Millisecond)
}

func waitStatus(t *testing.T, c *Controller, want Status) {
	t.Helper()
	require.Eventually(t, func() bool {
		return c.Snapshot().Status == want
	}, time.Second, time.Millisecond)
}

func TestTimeoutAfterFinalPoll(t *testing.T) {
	gw := newFakeGateway()
	rec := &recorder{}
	c, clock := newTestController(t, gw, rec)

	require.NoError(t, c.Open(context.Background()))
	snap := c.Snapshot()
	assert.Equal(t, StatusPending, snap.Status)
	assert.Equal(t, "ref-1", snap.RetrievalRef)
	assert.Equal(t, 10, snap.SecondsRemaining)

	for remaining := 9; remaining >= 0; remaining-- {
		advance(t, c, clock, remaining)
		if remaining == 5 {
			assert.Equal(t, query{ref: "ref-1", final: false}, <-gw.queries)
		}
	}
	assert.Equal(t, query{ref: "ref-1", final: true}, <-gw.queries)

	waitStatus(t, c, StatusFail)
	assert.Equal(t, ReasonTimeout, c.Snapshot().Reason)
	assert.Empty(t, gw.queries)

	qr, successes, failures := rec.counts()
	assert.Equal(t, 1, qr)
	assert.Zero(t, successes)
	assert.Equal(t, []Reason{ReasonTimeout}, failures)
}

func TestSuccessOnIntermediatePoll(t *testing.T) {
	gw := newFakeGateway()
	gw.respond = func(query) (*payment.Payload, error) { return paidPayload, nil }
	rec := &recorder{}
	c, clock := newTestController(t, gw, rec)

	require.NoError(t, c.Open(context.Background()))
	for remaining := 9; remaining >= 5; remaining-- {
		advance(t, c, clock, remaining)
	}
	<-gw.queries
	waitStatus(t, c, StatusSuccess)

	// The countdown is stopped.
	clock.Advance(3 * time.Second)
	assert.Equal(t, 5, c.Snapshot().SecondsRemaining)

	_, successes, failures := rec.counts()
	assert.Equal(t, 1, successes)
	assert.Empty(t, failures)
	assert.Equal(t, StatusSuccess, c.Close())
	assert.Equal(t, StatusIdle, c.Snapshot().Status)
}

func TestIntermediatePollErrorsAreIgnored(t *testing.T) {
	gw := newFakeGateway()
	gw.respond = func(q query) (*payment.Payload, error) {
		if q.final {
			return paidPayload, nil
		}
		return nil, errors.New("connection reset")
	}
	rec := &recorder{}
	c, clock := newTestController(t, gw, rec)

	require.NoError(t, c.Open(context.Background()))
	for remaining := 9; remaining >= 0; remaining-- {
		advance(t, c, clock, remaining)
		if remaining == 5 {
			<-gw.queries
			assert.Equal(t, StatusPending, c.Snapshot().Status)
		}
	}
	<-gw.queries
	waitStatus(t, c, StatusSuccess)
}

func TestCancelIgnoresLateSuccess(t *testing.T) {
	gw := newFakeGateway()
	release := make(chan struct{})
	gw.respond = func(query) (*payment.Payload, error) {
		<-release
		return paidPayload, nil
	}
	rec := &recorder{}
	c, clock := newTestController(t, gw, rec)

	require.NoError(t, c.Open(context.Background()))
	for remaining := 9; remaining >= 5; remaining-- {
		advance(t, c, clock, remaining)
	}
	<-gw.queries

	require.True(t, c.Cancel())
	assert.Equal(t, StatusFail, c.Snapshot().Status)
	assert.Equal(t, ReasonCancelled, c.Snapshot().Reason)
	assert.False(t, c.Cancel())

	close(release)
	clock.Advance(10 * time.Second)
	require.Never(t, func() bool {
		return c.Snapshot().Status != StatusFail
	}, 50*time.Millisecond, time.Millisecond)

	_, successes, failures := rec.counts()
	assert.Zero(t, successes)
	assert.Equal(t, []Reason{ReasonCancelled}, failures)
	assert.Empty(t, gw.queries)
}

func TestRequestFailure(t *testing.T) {
	tests := []struct {
		name    string
		request func(context.Context) (*payment.Payload, error)
	}{
		{
			name: "gateway error",
			request: func(context.Context) (*payment.Payload, error) {
				return nil, &payment.ExternalServiceError{Op: "request", StatusCode: 502, Err: errors.New("bad gateway")}
			},
		},
		{
			name: "rejected",
			request: func(context.Context) (*payment.Payload, error) {
				return &payment.Payload{ResponseCode: "68", TxnStatus: 2}, nil
			},
		},
		{
			name: "no qr code",
			request: func(context.Context) (*payment.Payload, error) {
				return &payment.Payload{ResponseCode: "00", TxnStatus: 1, RetrievalRef: "ref-1"}, nil
			},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			gw := newFakeGateway()
			gw.request = tt.request
			rec := &recorder{}
			c, _ := newTestController(t, gw, rec)

			require.Error(t, c.Open(context.Background()))
			assert.Equal(t, StatusFail, c.Snapshot().Status)
			assert.Equal(t, ReasonRequestFailed, c.Snapshot().Reason)

			qr, _, failures := rec.counts()
			assert.Zero(t, qr)
			assert.Equal(t, []Reason{ReasonRequestFailed}, failures)
		})
	}
}

func TestOpenWhileRequestInFlight(t *testing.T) {
	gw := newFakeGateway()
	started := make(chan struct{})
	release := make(chan struct{})
	gw.request = func(context.Context) (*payment.Payload, error) {
		close(started)
		<-release
		return qrPayload, nil
	}
	rec := &recorder{}
	c, _ := newTestController(t, gw, rec)

	errs := make(chan error, 1)
	go func() { errs <- c.Open(context.Background()) }()
	<-started

	require.ErrorIs(t, c.Open(context.Background()), ErrRequestInFlight)

	close(release)
	require.NoError(t, <-errs)
	assert.Equal(t, StatusPending, c.Snapshot().Status)
}

func TestCancelDuringRequest(t *testing.T) {
	gw := newFakeGateway()
	started := make(chan struct{})
	release := make(chan struct{})
	gw.request = func(context.Context) (*payment.Payload, error) {
		close(started)
		<-release
		return qrPayload, nil
	}
	rec := &recorder{}
	c, clock := newTestController(t, gw, rec)

	errs := make(chan error, 1)
	go func() { errs <- c.Open(context.Background()) }()
	<-started

	require.True(t, c.Cancel())
	close(release)
	require.NoError(t, <-errs)

	clock.Advance(time.Second)
	assert.Equal(t, StatusFail, c.Snapshot().Status)
	qr, _, _ := rec.counts()
	assert.Zero(t, qr)
}

func TestReopenResetsSession(t *testing.T) {
	gw := newFakeGateway()
	rec := &recorder{}
	c, clock := newTestController(t, gw, rec)

	require.NoError(t, c.Open(context.Background()))
	advance(t, c, clock, 9)
	require.True(t, c.Cancel())

	require.NoError(t, c.Open(context.Background()))
	snap := c.Snapshot()
	assert.Equal(t, StatusPending, snap.Status)
	assert.Equal(t, 10, snap.SecondsRemaining)
	assert.Empty(t, snap.Reason)

	advance(t, c, clock, 9)
	assert.Equal(t, StatusPending, c.Close())
	assert.Equal(t, Snapshot{}, c.Snapshot())
}

package httpmiddleware

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/go-faster/errors"
	"github.com/go-faster/sdk/zctx"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
)

func okHandler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
}

type countingLimiter struct {
	max    int
	counts map[string]int
	err    error
	reset  time.Time
}

func (l *countingLimiter) Allow(_ context.Context, key string) (Decision, error) {
	if l.err != nil {
		return Decision{}, l.err
	}
	if l.counts == nil {
		l.counts = make(map[string]int)
	}
	l.counts[key]++
	n := l.counts[key]
	return Decision{
		Allowed:   n <= l.max,
		Limit:     l.max,
		Remaining: max(l.max-n, 0),
		ResetAt:   l.reset,
	}, nil
}

func TestWrapOrder(t *testing.T) {
	var order []string
	mark := func(name string) Middleware {
		return func(next http.Handler) http.Handler {
			return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				order = append(order, name)
				next.ServeHTTP(w, r)
			})
		}
	}

	h := Wrap(okHandler(), mark("outer"), mark("inner"))
	h.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/", nil))
	assert.Equal(t, []string{"outer", "inner"}, order)
}

func TestRateLimit(t *testing.T) {
	now := time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC)
	lim := &countingLimiter{max: 2, reset: now.Add(30 * time.Second)}
	h := RateLimit(RateLimitConfig{Limiter: lim, Now: func() time.Time { return now }})(okHandler())

	call := func(user string) *httptest.ResponseRecorder {
		req := httptest.NewRequest(http.MethodGet, "/", nil)
		req.RemoteAddr = "10.0.0.1:1234"
		if user != "" {
			req.Header.Set("X-User-ID", user)
		}
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, req)
		return rec
	}

	for range 2 {
		require.Equal(t, http.StatusOK, call("alice").Code)
	}
	rec := call("alice")
	assert.Equal(t, http.StatusTooManyRequests, rec.Code)
	assert.Equal(t, "30", rec.Header().Get("Retry-After"))
	assert.Equal(t, "0", rec.Header().Get("X-RateLimit-Remaining"))
	assert.JSONEq(t, `{"code":429,"message":"rate limit exceeded"}`, rec.Body.String())

	// Other users and anonymous callers have their own budget.
	assert.Equal(t, http.StatusOK, call("bob").Code)
	assert.Equal(t, http.StatusOK, call("").Code)
	assert.Equal(t, 1, lim.counts["ip:10.0.0.1"])
}

func TestRateLimitFailOpen(t *testing.T) {
	lim := &countingLimiter{err: errors.New("redis down")}
	h := RateLimit(RateLimitConfig{Limiter: lim})(okHandler())

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Empty(t, rec.Header().Get("X-RateLimit-Limit"))
}

func TestClientKey(t *testing.T) {
	tests := []struct {
		name    string
		headers map[string]string
		want    string
	}{
		{name: "user", headers: map[string]string{"X-User-ID": "u1", "X-Real-IP": "1.1.1.1"}, want: "user:u1"},
		{name: "forwarded", headers: map[string]string{"X-Forwarded-For": "2.2.2.2, 3.3.3.3"}, want: "ip:2.2.2.2"},
		{name: "real ip", headers: map[string]string{"X-Real-IP": "4.4.4.4"}, want: "ip:4.4.4.4"},
		{name: "remote addr", want: "ip:192.0.2.1"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/", nil)
			for k, v := range tt.headers {
				req.Header.Set(k, v)
			}
			assert.Equal(t, tt.want, ClientKey(req))
		})
	}
}

func TestRequestID(t *testing.T) {
	var seen string
	h := Wrap(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seen = RequestIDFromContext(r.Context())
	}), InjectLogger(zaptest.NewLogger(t)), RequestID())

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set(RequestIDHeader, "abc-123")
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	assert.Equal(t, "abc-123", seen)
	assert.Equal(t, "abc-123", rec.Header().Get(RequestIDHeader))

	req = httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set(RequestIDHeader, "bad\x01id")
	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	assert.NotEqual(t, "bad\x01id", seen)
	assert.Len(t, seen, 36)
}

func TestRecovery(t *testing.T) {
	h := Wrap(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {
		panic("boom")
	}), InjectLogger(zaptest.NewLogger(t)), Recovery())

	rec := httptest.NewRecorder()
	require.NotPanics(t, func() {
		h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))
	})
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.JSONEq(t, `{"code":500,"message":"internal error"}`, rec.Body.String())
}

func TestLogRequestsCapturesStatus(t *testing.T) {
	var logged bool
	h := Wrap(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		logged = zctx.From(r.Context()) != nil
		w.WriteHeader(http.StatusTeapot)
	}), InjectLogger(zaptest.NewLogger(t)), LogRequests())

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))
	assert.True(t, logged)
	assert.Equal(t, http.StatusTeapot, rec.Code)
}

func TestCORS(t *testing.T) {
	tests := []struct {
		name       string
		cfg        CORSConfig
		method     string
		origin     string
		preflight  bool
		wantOrigin string
		wantStatus int
	}{
		{name: "wildcard", cfg: CORSConfig{}, method: http.MethodGet, origin: "https://a.test", wantOrigin: "*", wantStatus: http.StatusOK},
		{name: "listed", cfg: CORSConfig{Origins: []string{"https://A.test"}}, method: http.MethodGet, origin: "https://a.test", wantOrigin: "https://a.test", wantStatus: http.StatusOK},
		{name: "unlisted", cfg: CORSConfig{Origins: []string{"https://a.test"}}, method: http.MethodGet, origin: "https://b.test", wantStatus: http.StatusOK},
		{name: "credentials echo", cfg: CORSConfig{Credentials: true}, method: http.MethodGet, origin: "https://c.test", wantOrigin: "https://c.test", wantStatus: http.StatusOK},
		{name: "preflight", cfg: CORSConfig{}, method: http.MethodOptions, origin: "https://a.test", preflight: true, wantOrigin: "*", wantStatus: http.StatusNoContent},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(tt.method, "/", nil)
			req.Header.Set("Origin", tt.origin)
			if tt.preflight {
				req.Header.Set("Access-Control-Request-Method", http.MethodPost)
			}
			rec := httptest.NewRecorder()
			CORS(tt.cfg)(okHandler()).ServeHTTP(rec, req)

			assert.Equal(t, tt.wantStatus, rec.Code)
			assert.Equal(t, tt.wantOrigin, rec.Header().Get("Access-Control-Allow-Origin"))
		})
	}
}

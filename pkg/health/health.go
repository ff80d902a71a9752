// Package health serves liveness and readiness probes.
//
// Checks run periodically in the background. A check turns unhealthy after
// FailureThreshold consecutive failures and healthy again after one success,
// so a single slow ping does not flap the probe.
package health

import (
	"context"
	"net/http"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/go-faster/jx"
	"github.com/jonboulle/clockwork"
)

// Kind selects the probe a check contributes to.
type Kind int

const (
	Liveness Kind = iota
	Readiness
)

// CheckFunc returns nil when the component is healthy.
type CheckFunc func(ctx context.Context) error

// Check is a registered probe check.
type Check struct {
	Name    string
	Kind    Kind
	Timeout time.Duration
	// FailureThreshold defaults to 3.
	FailureThreshold int
	Func             CheckFunc
}

type state struct {
	Check

	healthy atomic.Bool
	lastErr atomic.Pointer[string]
	fails   int // owned by the check goroutine
}

func (s *state) run(ctx context.Context) {
	ctx, cancel := context.WithTimeout(ctx, s.Timeout)
	defer cancel()

	if err := s.Func(ctx); err != nil {
		msg := err.Error()
		s.lastErr.Store(&msg)
		s.fails++
		if s.fails >= s.FailureThreshold {
			s.healthy.Store(false)
		}
		return
	}
	s.lastErr.Store(nil)
	s.fails = 0
	s.healthy.Store(true)
}

func (s *state) failure() string {
	if p := s.lastErr.Load(); p != nil {
		return *p
	}
	return "unhealthy"
}

// Health tracks the checks of one process.
type Health struct {
	clock clockwork.Clock
	ready atomic.Bool

	mu     sync.Mutex
	checks []*state
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// New returns a Health that is not ready until SetReady(true).
func New() *Health {
	return NewWithClock(clockwork.NewRealClock())
}

// NewWithClock is New with an explicit clock.
func NewWithClock(clock clockwork.Clock) *Health {
	return &Health{clock: clock}
}

// Add registers c. Checks start healthy. Add must be called before Start.
func (h *Health) Add(c Check) {
	if c.FailureThreshold <= 0 {
		c.FailureThreshold = 3
	}
	if c.Timeout <= 0 {
		c.Timeout = time.Second
	}
	s := &state{Check: c}
	s.healthy.Store(true)

	h.mu.Lock()
	h.checks = append(h.checks, s)
	h.mu.Unlock()
}

// Start runs every check now and then every interval until Stop.
func (h *Health) Start(ctx context.Context, interval time.Duration) {
	ctx, cancel := context.WithCancel(ctx)

	h.mu.Lock()
	h.cancel = cancel
	checks := h.checks
	h.mu.Unlock()

	for _, s := range checks {
		h.wg.Add(1)
		go func() {
			defer h.wg.Done()
			ticker := h.clock.NewTicker(interval)
			defer ticker.Stop()

			s.run(ctx)
			for {
				select {
				case <-ctx.Done():
					return
				case <-ticker.Chan():
					s.run(ctx)
				}
			}
		}()
	}
}

// Stop halts the background checks and waits for them to exit.
func (h *Health) Stop() {
	h.mu.Lock()
	cancel := h.cancel
	h.cancel = nil
	h.mu.Unlock()

	if cancel != nil {
		cancel()
	}
	h.wg.Wait()
}

// SetReady toggles the manual readiness gate, closed during startup and
// shutdown.
func (h *Health) SetReady(ready bool) {
	h.ready.Store(ready)
}

// IsReady reports whether the gate is open and all readiness checks pass.
func (h *Health) IsReady() bool {
	return h.ready.Load() && len(h.failures(Readiness)) == 0
}

func (h *Health) failures(kind Kind) map[string]string {
	h.mu.Lock()
	checks := h.checks
	h.mu.Unlock()

	out := make(map[string]string)
	for _, s := range checks {
		if s.Kind == kind && !s.healthy.Load() {
			out[s.Name] = s.failure()
		}
	}
	return out
}

// LiveEndpoint serves /livez.
func (h *Health) LiveEndpoint(w http.ResponseWriter, _ *http.Request) {
	writeStatus(w, h.failures(Liveness))
}

// ReadyEndpoint serves /readyz.
func (h *Health) ReadyEndpoint(w http.ResponseWriter, _ *http.Request) {
	failures := h.failures(Readiness)
	if !h.ready.Load() {
		failures["_readiness"] = "service is not ready"
	}
	writeStatus(w, failures)
}

func writeStatus(w http.ResponseWriter, failures map[string]string) {
	status, text := http.StatusOK, "ok"
	if len(failures) > 0 {
		status, text = http.StatusServiceUnavailable, "unhealthy"
	}

	names := make([]string, 0, len(failures))
	for name := range failures {
		names = append(names, name)
	}
	sort.Strings(names)

	e := jx.GetEncoder()
	defer jx.PutEncoder(e)
	e.Obj(func(e *jx.Encoder) {
		e.Field("status", func(e *jx.Encoder) { e.Str(text) })
		if len(names) == 0 {
			return
		}
		e.Field("checks", func(e *jx.Encoder) {
			e.Obj(func(e *jx.Encoder) {
				for _, name := range names {
					e.Field(name, func(e *jx.Encoder) { e.Str(failures[name]) })
				}
			})
		})
	})

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_, _ = w.Write(e.Bytes())
}

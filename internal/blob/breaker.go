package blob

import (
	"context"
	"errors"
	"io"
	"sync"
	"time"

	"github.com/piyushrajyadav/drop-fade/internal/logging"
)

// CircuitState represents the current state of a circuit breaker.
type CircuitState int

const (
	// StateClosed: calls flow normally
	StateClosed CircuitState = iota
	// StateOpen: calls fail fast
	StateOpen
	// StateHalfOpen: one probe call is let through
	StateHalfOpen
)

func (s CircuitState) String() string {
	switch s {
	case StateClosed:
		return "closed"
	case StateOpen:
		return "open"
	case StateHalfOpen:
		return "half-open"
	default:
		return "unknown"
	}
}

var (
	// ErrCircuitOpen is returned when the breaker rejects a call.
	ErrCircuitOpen = errors.New("circuit breaker is open")
)

// CircuitBreaker opens after maxFailures consecutive failures and lets a
// single probe through once timeout has elapsed.
type CircuitBreaker struct {
	mu sync.Mutex

	maxFailures uint32
	timeout     time.Duration
	now         func() time.Time
	log         *logging.Logger

	state           CircuitState
	failures        uint32
	lastFailureTime time.Time
	probing         bool

	rejected uint64
}

// NewCircuitBreaker creates a new circuit breaker.
func NewCircuitBreaker(maxFailures uint32, timeout time.Duration, log *logging.Logger) *CircuitBreaker {
	if maxFailures == 0 {
		maxFailures = 1
	}
	if log == nil {
		log = logging.Nop()
	}
	return &CircuitBreaker{
		maxFailures: maxFailures,
		timeout:     timeout,
		now:         time.Now,
		log:         log,
		state:       StateClosed,
	}
}

// Execute runs fn unless the circuit is open. countAsFailure decides
// which errors trip the breaker; nil means every error does.
func (cb *CircuitBreaker) Execute(fn func() error, countAsFailure func(error) bool) error {
	if err := cb.before(); err != nil {
		return err
	}
	err := fn()
	failed := err != nil && (countAsFailure == nil || countAsFailure(err))
	cb.after(failed)
	return err
}

func (cb *CircuitBreaker) before() error {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	switch cb.state {
	case StateOpen:
		if cb.now().Sub(cb.lastFailureTime) <= cb.timeout {
			cb.rejected++
			return ErrCircuitOpen
		}
		cb.state = StateHalfOpen
		cb.log.Info("circuit_breaker_half_open", logging.Fields{"timeout_elapsed": cb.timeout.String()})
		fallthrough
	case StateHalfOpen:
		if cb.probing {
			cb.rejected++
			return ErrCircuitOpen
		}
		cb.probing = true
	}
	return nil
}

func (cb *CircuitBreaker) after(failed bool) {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	wasProbe := cb.state == StateHalfOpen
	cb.probing = false

	if !failed {
		if wasProbe {
			cb.log.Info("circuit_breaker_closed", logging.Fields{"reason": "recovery_successful"})
		}
		cb.state = StateClosed
		cb.failures = 0
		return
	}

	cb.failures++
	cb.lastFailureTime = cb.now()
	if wasProbe || cb.failures >= cb.maxFailures {
		if cb.state != StateOpen {
			cb.log.Warn("circuit_breaker_opened", logging.Fields{
				"failures":     cb.failures,
				"max_failures": cb.maxFailures,
				"timeout":      cb.timeout.String(),
			})
		}
		cb.state = StateOpen
	}
}

// State returns the current circuit state.
func (cb *CircuitBreaker) State() CircuitState {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	return cb.state
}

// Rejected returns how many calls were refused while open.
func (cb *CircuitBreaker) Rejected() uint64 {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	return cb.rejected
}

// Guarded wraps a Backend so that an unreachable store fails fast
// instead of tying up upload requests.
type Guarded struct {
	next    Backend
	breaker *CircuitBreaker
}

// WithBreaker wraps b with cb.
func WithBreaker(b Backend, cb *CircuitBreaker) *Guarded {
	return &Guarded{next: b, breaker: cb}
}

// Breaker exposes the wrapped circuit breaker for health reporting.
func (g *Guarded) Breaker() *CircuitBreaker { return g.breaker }

// Unwrap returns the wrapped backend.
func (g *Guarded) Unwrap() Backend { return g.next }

func (g *Guarded) Name() string { return g.next.Name() }

func (g *Guarded) Store(ctx context.Context, r io.Reader, size int64, mediaType string) (string, error) {
	var ref string
	err := g.breaker.Execute(func() error {
		var err error
		ref, err = g.next.Store(ctx, r, size, mediaType)
		return err
	}, isBackendFault)
	return ref, err
}

func (g *Guarded) Delete(ctx context.Context, ref string) error {
	return g.breaker.Execute(func() error {
		return g.next.Delete(ctx, ref)
	}, isBackendFault)
}

func (g *Guarded) Open(ctx context.Context, ref string) (io.ReadCloser, error) {
	var rc io.ReadCloser
	err := g.breaker.Execute(func() error {
		var err error
		rc, err = g.next.Open(ctx, ref)
		return err
	}, isBackendFault)
	return rc, err
}

// Ping bypasses the breaker so health checks see the real state.
func (g *Guarded) Ping(ctx context.Context) error {
	return Ping(ctx, g.next)
}

// isBackendFault separates store outages from caller mistakes, which
// should not open the circuit.
func isBackendFault(err error) bool {
	return !errors.Is(err, ErrNotFound) &&
		!errors.Is(err, ErrForeignRef) &&
		!errors.Is(err, context.Canceled)
}

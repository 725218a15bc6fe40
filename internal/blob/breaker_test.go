package blob

import (
	"context"
	"errors"
	"io"
	"strings"
	"testing"
	"time"
)

type flakyBackend struct {
	*Memory
	fail  error
	calls int
}

func (f *flakyBackend) Store(ctx context.Context, r io.Reader, size int64, mediaType string) (string, error) {
	f.calls++
	if f.fail != nil {
		return "", f.fail
	}
	return f.Memory.Store(ctx, r, size, mediaType)
}

func TestCircuitBreakerOpensAndRecovers(t *testing.T) {
	now := time.Unix(1_700_000_000, 0)
	cb := NewCircuitBreaker(2, time.Minute, nil)
	cb.now = func() time.Time { return now }

	boom := errors.New("boom")
	fail := func() error { return boom }
	ok := func() error { return nil }

	if err := cb.Execute(fail, nil); !errors.Is(err, boom) {
		t.Fatalf("expected boom, got %v", err)
	}
	if cb.State() != StateClosed {
		t.Fatalf("expected closed after one failure")
	}
	_ = cb.Execute(fail, nil)
	if cb.State() != StateOpen {
		t.Fatalf("expected open after two failures, got %s", cb.State())
	}

	called := false
	err := cb.Execute(func() error { called = true; return nil }, nil)
	if !errors.Is(err, ErrCircuitOpen) || called {
		t.Fatalf("expected fast failure while open, err=%v called=%v", err, called)
	}
	if cb.Rejected() != 1 {
		t.Fatalf("expected 1 rejected call, got %d", cb.Rejected())
	}

	now = now.Add(2 * time.Minute)
	if err := cb.Execute(ok, nil); err != nil {
		t.Fatalf("probe: %v", err)
	}
	if cb.State() != StateClosed {
		t.Fatalf("expected closed after successful probe, got %s", cb.State())
	}
}

func TestCircuitBreakerFailedProbeReopens(t *testing.T) {
	now := time.Unix(1_700_000_000, 0)
	cb := NewCircuitBreaker(1, time.Second, nil)
	cb.now = func() time.Time { return now }

	_ = cb.Execute(func() error { return errors.New("down") }, nil)
	now = now.Add(2 * time.Second)
	_ = cb.Execute(func() error { return errors.New("still down") }, nil)
	if cb.State() != StateOpen {
		t.Fatalf("expected open after failed probe, got %s", cb.State())
	}
}

func TestGuardedIgnoresCallerErrors(t *testing.T) {
	mem := NewMemory()
	g := WithBreaker(mem, NewCircuitBreaker(1, time.Minute, nil))

	for i := 0; i < 3; i++ {
		if _, err := g.Open(context.Background(), "mock://dropkey/missing"); !errors.Is(err, ErrNotFound) {
			t.Fatalf("expected ErrNotFound, got %v", err)
		}
	}
	if g.Breaker().State() != StateClosed {
		t.Fatalf("not-found lookups must not open the circuit")
	}
	if g.Name() != "memory" || g.Unwrap() != mem {
		t.Fatalf("unexpected wrapper identity")
	}
}

func TestGuardedFailsFast(t *testing.T) {
	flaky := &flakyBackend{Memory: NewMemory(), fail: errors.New("connection refused")}
	g := WithBreaker(flaky, NewCircuitBreaker(2, time.Hour, nil))

	for i := 0; i < 2; i++ {
		if _, err := g.Store(context.Background(), strings.NewReader("x"), 1, ""); err == nil {
			t.Fatalf("expected store error")
		}
	}
	if _, err := g.Store(context.Background(), strings.NewReader("x"), 1, ""); !errors.Is(err, ErrCircuitOpen) {
		t.Fatalf("expected ErrCircuitOpen, got %v", err)
	}
	if flaky.calls != 2 {
		t.Fatalf("backend should not be called while open, calls=%d", flaky.calls)
	}
}

func TestCircuitStateString(t *testing.T) {
	cases := map[CircuitState]string{
		StateClosed:     "closed",
		StateOpen:       "open",
		StateHalfOpen:   "half-open",
		CircuitState(9): "unknown",
	}
	for s, want := range cases {
		if s.String() != want {
			t.Fatalf("%d.String() = %q, want %q", s, s.String(), want)
		}
	}
}

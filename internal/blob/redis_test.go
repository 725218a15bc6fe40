package blob

import (
	"context"
	"errors"
	"io"
	"strings"
	"testing"
	"time"

	miniredis "github.com/alicebob/miniredis/v2"
)

func newTestRedis(t *testing.T, ttl time.Duration) (*Redis, *miniredis.Miniredis) {
	t.Helper()
	srv, err := miniredis.Run()
	if err != nil {
		t.Skipf("miniredis unavailable: %v", err)
	}
	t.Cleanup(srv.Close)

	store, err := NewRedis(context.Background(), "redis://"+srv.Addr(), ttl)
	if err != nil {
		t.Fatalf("create redis backend: %v", err)
	}
	t.Cleanup(func() { _ = store.Close() })
	return store, srv
}

func TestRedisStoreOpenDelete(t *testing.T) {
	store, srv := newTestRedis(t, 0)
	ctx := context.Background()

	ref, err := store.Store(ctx, strings.NewReader("hello"), 5, "text/plain")
	if err != nil {
		t.Fatalf("store: %v", err)
	}
	if !strings.HasPrefix(ref, "redis://blob/") {
		t.Fatalf("unexpected ref %q", ref)
	}

	rc, err := store.Open(ctx, ref)
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	got, _ := io.ReadAll(rc)
	rc.Close()
	if string(got) != "hello" {
		t.Fatalf("unexpected content: %s", got)
	}

	if keys := srv.Keys(); len(keys) != 1 {
		t.Fatalf("one key per blob expected, got %v", keys)
	}

	if err := store.Delete(ctx, ref); err != nil {
		t.Fatalf("delete: %v", err)
	}
	if _, err := store.Open(ctx, ref); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestRedisBlobTTL(t *testing.T) {
	store, srv := newTestRedis(t, time.Minute)
	ctx := context.Background()

	ref, err := store.Store(ctx, strings.NewReader("bytes"), -1, "")
	if err != nil {
		t.Fatalf("store: %v", err)
	}
	srv.FastForward(2 * time.Minute)
	if _, err := store.Open(ctx, ref); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected blob to expire, got %v", err)
	}
}

func TestRedisSizeMismatch(t *testing.T) {
	store, srv := newTestRedis(t, 0)
	if _, err := store.Store(context.Background(), strings.NewReader("abc"), 4, ""); err == nil {
		t.Fatalf("expected size mismatch")
	}
	if keys := srv.Keys(); len(keys) != 0 {
		t.Fatalf("expected no keys written, got %v", keys)
	}
}

func TestRedisPingAfterShutdown(t *testing.T) {
	store, srv := newTestRedis(t, 0)
	if err := store.Ping(context.Background()); err != nil {
		t.Fatalf("ping: %v", err)
	}
	srv.Close()
	if err := Ping(context.Background(), store); err == nil {
		t.Fatalf("expected ping error after server shutdown")
	}
}

func TestNewRedisBadURL(t *testing.T) {
	if _, err := NewRedis(context.Background(), "not-a-url", 0); err == nil {
		t.Fatalf("expected parse error")
	}
}

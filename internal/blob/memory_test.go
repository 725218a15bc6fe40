package blob

import (
	"context"
	"errors"
	"io"
	"strings"
	"testing"
)

func TestMemoryStoreOpenDelete(t *testing.T) {
	ctx := context.Background()
	m := NewMemory()

	ref, err := m.Store(ctx, strings.NewReader("hello"), 5, "text/plain")
	if err != nil {
		t.Fatalf("store: %v", err)
	}
	if !strings.HasPrefix(ref, "mock://") {
		t.Fatalf("unexpected ref %q", ref)
	}
	if m.Len() != 1 {
		t.Fatalf("expected 1 blob, got %d", m.Len())
	}

	rc, err := m.Open(ctx, ref)
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	got, _ := io.ReadAll(rc)
	rc.Close()
	if string(got) != "hello" {
		t.Fatalf("unexpected content %q", got)
	}

	if err := m.Delete(ctx, ref); err != nil {
		t.Fatalf("delete: %v", err)
	}
	if _, err := m.Open(ctx, ref); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound after delete, got %v", err)
	}
	// deleting twice is fine
	if err := m.Delete(ctx, ref); err != nil {
		t.Fatalf("second delete: %v", err)
	}
}

func TestMemorySizeMismatch(t *testing.T) {
	m := NewMemory()
	if _, err := m.Store(context.Background(), strings.NewReader("abc"), 10, ""); err == nil {
		t.Fatalf("expected size mismatch error")
	}
	if m.Len() != 0 {
		t.Fatalf("mismatched blob should not be kept")
	}
	// unknown size is accepted
	if _, err := m.Store(context.Background(), strings.NewReader("abc"), -1, ""); err != nil {
		t.Fatalf("store with unknown size: %v", err)
	}
}

func TestMemoryForeignRef(t *testing.T) {
	m := NewMemory()
	for _, ref := range []string{"", "minio://bucket/x", "mock://dropkey/"} {
		if _, err := m.Open(context.Background(), ref); !errors.Is(err, ErrForeignRef) {
			t.Fatalf("Open(%q): expected ErrForeignRef, got %v", ref, err)
		}
		if err := m.Delete(context.Background(), ref); !errors.Is(err, ErrForeignRef) {
			t.Fatalf("Delete(%q): expected ErrForeignRef, got %v", ref, err)
		}
	}
}

func TestMemoryCanceledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, err := NewMemory().Store(ctx, strings.NewReader("x"), 1, ""); !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
}

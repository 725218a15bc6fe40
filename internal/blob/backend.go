// Package blob holds the content blob backends: the external stores that
// keep uploaded file bytes. The registry only keeps the opaque reference a
// backend hands back from Store.
package blob

import (
	"context"
	"errors"
	"io"
)

var (
	// ErrNotFound is returned by Open when the reference points at nothing.
	ErrNotFound = errors.New("blob not found")
	// ErrForeignRef is returned when a reference was issued by another backend.
	ErrForeignRef = errors.New("reference not issued by this backend")
)

// Backend stores and removes file bytes.
type Backend interface {
	// Store persists size bytes from r and returns a reference to them.
	Store(ctx context.Context, r io.Reader, size int64, mediaType string) (string, error)
	// Delete removes the bytes behind ref. Missing blobs are not an error.
	Delete(ctx context.Context, ref string) error
	// Open streams the bytes behind ref. Callers must close the reader.
	Open(ctx context.Context, ref string) (io.ReadCloser, error)
	// Name identifies the backend in logs and health output.
	Name() string
}

// Pinger is implemented by backends that can report their own reachability.
type Pinger interface {
	Ping(ctx context.Context) error
}

// Ping checks b if it supports it and reports healthy otherwise.
func Ping(ctx context.Context, b Backend) error {
	if p, ok := b.(Pinger); ok {
		return p.Ping(ctx)
	}
	return nil
}

package blob

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"strings"
	"sync"

	"github.com/google/uuid"
)

const memoryRefPrefix = "mock://dropkey/"

// Memory keeps blobs in process memory. It is the fallback when no object
// store is configured and doubles as a test backend.
type Memory struct {
	mu    sync.RWMutex
	blobs map[string]memoryBlob
}

type memoryBlob struct {
	data      []byte
	mediaType string
}

// NewMemory returns an empty in-memory backend.
func NewMemory() *Memory {
	return &Memory{blobs: make(map[string]memoryBlob)}
}

func (m *Memory) Name() string { return "memory" }

func (m *Memory) Store(ctx context.Context, r io.Reader, size int64, mediaType string) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	data, err := io.ReadAll(r)
	if err != nil {
		return "", fmt.Errorf("read blob: %w", err)
	}
	if size >= 0 && int64(len(data)) != size {
		return "", fmt.Errorf("blob size mismatch: declared %d, read %d", size, len(data))
	}

	id := uuid.NewString()
	m.mu.Lock()
	m.blobs[id] = memoryBlob{data: data, mediaType: mediaType}
	m.mu.Unlock()
	return memoryRefPrefix + id, nil
}

func (m *Memory) Delete(_ context.Context, ref string) error {
	id, err := memoryID(ref)
	if err != nil {
		return err
	}
	m.mu.Lock()
	delete(m.blobs, id)
	m.mu.Unlock()
	return nil
}

func (m *Memory) Open(_ context.Context, ref string) (io.ReadCloser, error) {
	id, err := memoryID(ref)
	if err != nil {
		return nil, err
	}
	m.mu.RLock()
	b, ok := m.blobs[id]
	m.mu.RUnlock()
	if !ok {
		return nil, ErrNotFound
	}
	return io.NopCloser(bytes.NewReader(b.data)), nil
}

// Len returns the number of blobs held.
func (m *Memory) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.blobs)
}

func memoryID(ref string) (string, error) {
	if !strings.HasPrefix(ref, memoryRefPrefix) {
		return "", fmt.Errorf("%w: %q", ErrForeignRef, ref)
	}
	id := strings.TrimPrefix(ref, memoryRefPrefix)
	if id == "" {
		return "", fmt.Errorf("%w: empty id", ErrForeignRef)
	}
	return id, nil
}

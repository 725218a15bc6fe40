// Package gateway is the access layer between the HTTP surface and the
// registry. It turns uploads into records, resolves codes into content and
// keeps blob storage in step with record removal.
package gateway

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"strings"
	"sync"
	"time"

	"github.com/piyushrajyadav/drop-fade/internal/audit"
	"github.com/piyushrajyadav/drop-fade/internal/blob"
	"github.com/piyushrajyadav/drop-fade/internal/logging"
	"github.com/piyushrajyadav/drop-fade/internal/metrics"
	"github.com/piyushrajyadav/drop-fade/internal/registry"
)

// cleanupTimeout bounds each background blob delete.
const cleanupTimeout = 30 * time.Second

// Gateway coordinates the store and the blob backend.
type Gateway struct {
	store   *registry.Store
	backend blob.Backend
	gen     *registry.Generator

	maxFileBytes int64
	maxTextBytes int64
	codeAttempts int

	log     *logging.Logger
	audit   audit.Recorder
	metrics *metrics.Metrics

	cleanup sync.WaitGroup
}

// FileUpload describes an incoming file. Size is -1 when unknown.
type FileUpload struct {
	Name      string
	MediaType string
	Size      int64
	Body      io.Reader
}

// UploadResult is what the uploader needs to share the content.
type UploadResult struct {
	Code      string
	ExpiresAt time.Time
}

// Content is an opened record. Body is nil for metadata-only results.
type Content struct {
	Record registry.ContentRecord
	Body   io.ReadCloser
}

// New wires a gateway to store and backend. It registers itself as the
// store's eviction hook so lazily evicted files lose their blobs too.
func New(store *registry.Store, backend blob.Backend, opts ...Option) *Gateway {
	g := &Gateway{
		store:        store,
		backend:      backend,
		gen:          registry.NewGenerator(nil),
		maxFileBytes: DefaultMaxFileBytes,
		maxTextBytes: DefaultMaxTextBytes,
		codeAttempts: DefaultCodeAttempts,
		log:          logging.Default(),
		audit:        audit.Nop{},
	}
	for _, opt := range opts {
		opt(g)
	}
	g.log = g.log.With(logging.Fields{"service": "gateway"})
	store.SetEvictHook(g.handleEvicted)
	return g
}

// MaxFileBytes returns the configured file size limit.
func (g *Gateway) MaxFileBytes() int64 { return g.maxFileBytes }

// MaxTextBytes returns the configured text size limit.
func (g *Gateway) MaxTextBytes() int64 { return g.maxTextBytes }

// Now returns the registry clock.
func (g *Gateway) Now() time.Time { return g.store.Now() }

// UploadFile stores the file bytes and registers a record for them.
// Size limits are enforced before the backend sees a single byte.
func (g *Gateway) UploadFile(ctx context.Context, f FileUpload, option registry.ExpiryOption) (UploadResult, error) {
	if f.Body == nil {
		g.metrics.RecordUploadError("missing_file")
		return UploadResult{}, invalid("file", "No file provided")
	}
	if f.Size > g.maxFileBytes {
		g.metrics.RecordUploadError("too_large")
		return UploadResult{}, invalid("file", "File size must be less than %s", FormatLimit(g.maxFileBytes))
	}

	body := f.Body
	size := f.Size
	if size < 0 {
		// Unknown length: buffer up to one byte past the limit to decide.
		buf, err := io.ReadAll(io.LimitReader(f.Body, g.maxFileBytes+1))
		if err != nil {
			return UploadResult{}, fmt.Errorf("read upload: %w", err)
		}
		if int64(len(buf)) > g.maxFileBytes {
			g.metrics.RecordUploadError("too_large")
			return UploadResult{}, invalid("file", "File size must be less than %s", FormatLimit(g.maxFileBytes))
		}
		body, size = bytes.NewReader(buf), int64(len(buf))
	}
	if size == 0 {
		g.metrics.RecordUploadError("empty_file")
		return UploadResult{}, invalid("file", "Uploaded file is empty")
	}

	mediaType := f.MediaType
	if mediaType == "" {
		mediaType = "application/octet-stream"
	}

	hasher := sha256.New()
	ref, err := g.backend.Store(ctx, io.TeeReader(io.LimitReader(body, size), hasher), size, mediaType)
	if err != nil {
		g.metrics.RecordUploadError("backend")
		g.metrics.RecordBackendError(g.backend.Name(), "store")
		g.log.Error("blob_store_failed", logging.Fields{"name": f.Name, "size": size}, err)
		return UploadResult{}, &BackendError{Op: "store", Backend: g.backend.Name(), Err: err}
	}

	rec := registry.ContentRecord{
		Kind:        registry.KindFile,
		LocationRef: ref,
		DisplayName: f.Name,
		MediaType:   mediaType,
		SizeBytes:   size,
		Checksum:    hex.EncodeToString(hasher.Sum(nil)),
		ExpiresAt:   registry.Resolve(option, g.store.Now()),
	}
	stored, err := g.register(ctx, rec)
	if err != nil {
		g.deleteBlob(ctx, ref, "")
		return UploadResult{}, err
	}

	g.metrics.RecordUpload(string(registry.KindFile), size)
	g.log.Info("file_uploaded", logging.Fields{
		"code":       stored.Code,
		"size":       size,
		"media_type": mediaType,
		"expires_at": stored.ExpiresAt.UTC().Format(time.RFC3339),
	})
	g.record(ctx, audit.Event{
		Action:    audit.ActionUpload,
		Code:      stored.Code,
		Kind:      string(registry.KindFile),
		SizeBytes: size,
		Success:   true,
		Details:   map[string]any{"expiry": string(option), "name": f.Name},
	})
	return UploadResult{Code: stored.Code, ExpiresAt: stored.ExpiresAt}, nil
}

// UploadText registers an inline text record.
func (g *Gateway) UploadText(ctx context.Context, text string, option registry.ExpiryOption) (UploadResult, error) {
	if text == "" {
		g.metrics.RecordUploadError("missing_text")
		return UploadResult{}, invalid("text", "No text provided or invalid format")
	}
	if int64(len(text)) > g.maxTextBytes {
		g.metrics.RecordUploadError("too_large")
		return UploadResult{}, invalid("text", "Text must be less than %s", FormatLimit(g.maxTextBytes))
	}

	rec := registry.ContentRecord{
		Kind:          registry.KindText,
		InlineContent: text,
		ExpiresAt:     registry.Resolve(option, g.store.Now()),
	}
	stored, err := g.register(ctx, rec)
	if err != nil {
		return UploadResult{}, err
	}

	g.metrics.RecordUpload(string(registry.KindText), int64(len(text)))
	g.log.Info("text_uploaded", logging.Fields{
		"code":       stored.Code,
		"size":       len(text),
		"expires_at": stored.ExpiresAt.UTC().Format(time.RFC3339),
	})
	g.record(ctx, audit.Event{
		Action:    audit.ActionUpload,
		Code:      stored.Code,
		Kind:      string(registry.KindText),
		SizeBytes: int64(len(text)),
		Success:   true,
		Details:   map[string]any{"expiry": string(option)},
	})
	return UploadResult{Code: stored.Code, ExpiresAt: stored.ExpiresAt}, nil
}

// register inserts rec under a fresh code and reads it back.
func (g *Gateway) register(_ context.Context, rec registry.ContentRecord) (registry.ContentRecord, error) {
	stored, err := g.store.InsertUnique(rec, g.gen, g.codeAttempts)
	if err != nil {
		g.metrics.RecordUploadError("register")
		g.log.Error("register_failed", logging.Fields{"kind": string(rec.Kind)}, err)
		return registry.ContentRecord{}, fmt.Errorf("register record: %w", err)
	}
	if _, ok := g.store.Get(stored.Code); !ok {
		g.metrics.RecordUploadError("verify")
		g.log.Error("verify_failed", logging.Fields{"code": stored.Code}, ErrVerifyFailed)
		return registry.ContentRecord{}, fmt.Errorf("code %s: %w", stored.Code, ErrVerifyFailed)
	}
	return stored, nil
}

// FetchMetadata returns the record for code without changing it.
func (g *Gateway) FetchMetadata(_ context.Context, code string) (registry.ContentRecord, error) {
	rec, ok := g.store.Get(code)
	if !ok {
		return registry.ContentRecord{}, ErrNotFound
	}
	if rec.Consumed {
		return registry.ContentRecord{}, ErrAlreadyConsumed
	}
	return rec, nil
}

// Consume marks the record as accessed. Unknown codes are ignored.
func (g *Gateway) Consume(ctx context.Context, code string) error {
	code = registry.NormalizeCode(code)
	if !g.store.MarkConsumed(code) {
		return nil
	}
	g.metrics.RecordConsumed()
	g.log.Info("consumed", logging.Fields{"code": code})
	g.record(ctx, audit.Event{Action: audit.ActionConsume, Code: code, Success: true})
	return nil
}

// Delete removes the record and, for files, its blob. Blob failures are
// logged and do not keep the record alive.
func (g *Gateway) Delete(ctx context.Context, code string) error {
	code = registry.NormalizeCode(code)
	rec, ok := g.store.Remove(code)
	if !ok {
		return ErrNotFound
	}
	if rec.Kind == registry.KindFile {
		g.deleteBlob(ctx, rec.LocationRef, rec.Code)
	}

	g.metrics.RecordDeleted(string(rec.Kind))
	g.log.Info("deleted", logging.Fields{"code": code, "kind": string(rec.Kind)})
	g.record(ctx, audit.Event{Action: audit.ActionDelete, Code: code, Kind: string(rec.Kind), Success: true})
	return nil
}

// Open returns a live, unconsumed record with a reader over its bytes.
// It does not mark the record consumed.
func (g *Gateway) Open(ctx context.Context, code string) (Content, error) {
	rec, err := g.FetchMetadata(ctx, code)
	if err != nil {
		return Content{}, err
	}
	if rec.Kind == registry.KindText {
		return Content{Record: rec, Body: io.NopCloser(strings.NewReader(rec.InlineContent))}, nil
	}

	rc, err := g.backend.Open(ctx, rec.LocationRef)
	if err != nil {
		g.metrics.RecordBackendError(g.backend.Name(), "open")
		g.log.Error("blob_open_failed", logging.Fields{"code": rec.Code}, err)
		return Content{}, &BackendError{Op: "open", Backend: g.backend.Name(), Err: err}
	}
	return Content{Record: rec, Body: rc}, nil
}

// HandleSwept deletes the blobs of records removed by a sweep run. It is
// meant to be passed as registry.SweepConfig.OnSwept.
func (g *Gateway) HandleSwept(ctx context.Context, removed []registry.ContentRecord) {
	for _, rec := range removed {
		if rec.Kind == registry.KindFile {
			g.deleteBlob(ctx, rec.LocationRef, rec.Code)
		}
		g.record(ctx, audit.Event{Action: audit.ActionExpire, Code: rec.Code, Kind: string(rec.Kind), Success: true,
			Details: map[string]any{"path": "sweep"}})
	}
	g.metrics.RecordExpired("sweep", len(removed))
}

// handleEvicted runs on the store's eviction hook. The blob delete happens
// in the background so the lookup that triggered eviction is not slowed down.
func (g *Gateway) handleEvicted(rec registry.ContentRecord) {
	g.metrics.RecordExpired("lazy", 1)
	g.cleanup.Add(1)
	go func() {
		defer g.cleanup.Done()
		ctx, cancel := context.WithTimeout(context.Background(), cleanupTimeout)
		defer cancel()
		if rec.Kind == registry.KindFile {
			g.deleteBlob(ctx, rec.LocationRef, rec.Code)
		}
		g.record(ctx, audit.Event{Action: audit.ActionExpire, Code: rec.Code, Kind: string(rec.Kind), Success: true,
			Details: map[string]any{"path": "lazy"}})
	}()
}

// Wait blocks until background cleanup has finished.
func (g *Gateway) Wait() {
	g.cleanup.Wait()
}

// Ping reports the backend's health.
func (g *Gateway) Ping(ctx context.Context) error {
	return blob.Ping(ctx, g.backend)
}

// Backend returns the blob backend in use.
func (g *Gateway) Backend() blob.Backend { return g.backend }

// Len returns the number of records held by the store.
func (g *Gateway) Len() int { return g.store.Len() }

func (g *Gateway) deleteBlob(ctx context.Context, ref, code string) {
	if ref == "" {
		return
	}
	if err := g.backend.Delete(ctx, ref); err != nil && !errors.Is(err, blob.ErrNotFound) {
		g.metrics.RecordBackendError(g.backend.Name(), "delete")
		g.log.Warn("blob_delete_failed", logging.Fields{
			"code":  code,
			"ref":   ref,
			"error": err.Error(),
		})
	}
}

func (g *Gateway) record(ctx context.Context, ev audit.Event) {
	ev.At = g.store.Now()
	if ev.ClientIP == "" {
		ev.ClientIP = ClientIPFromContext(ctx)
	}
	if err := g.audit.Record(ctx, ev); err != nil {
		g.log.Warn("audit_record_failed", logging.Fields{
			"action": string(ev.Action),
			"code":   ev.Code,
			"error":  err.Error(),
		})
	}
}

// FormatLimit renders a byte limit the way upload errors show it, e.g. "5MB".
func FormatLimit(n int64) string {
	switch {
	case n >= 1<<20 && n%(1<<20) == 0:
		return fmt.Sprintf("%dMB", n>>20)
	case n >= 1<<10 && n%(1<<10) == 0:
		return fmt.Sprintf("%dKB", n>>10)
	default:
		return fmt.Sprintf("%d bytes", n)
	}
}

type clientIPKey struct{}

// WithClientIP attaches the caller's address for audit entries.
func WithClientIP(ctx context.Context, ip string) context.Context {
	return context.WithValue(ctx, clientIPKey{}, ip)
}

// ClientIPFromContext returns the address set by WithClientIP.
func ClientIPFromContext(ctx context.Context) string {
	if ctx == nil {
		return ""
	}
	ip, _ := ctx.Value(clientIPKey{}).(string)
	return ip
}

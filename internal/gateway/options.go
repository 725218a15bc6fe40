package gateway

import (
	"github.com/piyushrajyadav/drop-fade/internal/audit"
	"github.com/piyushrajyadav/drop-fade/internal/logging"
	"github.com/piyushrajyadav/drop-fade/internal/metrics"
	"github.com/piyushrajyadav/drop-fade/internal/registry"
)

const (
	// DefaultMaxFileBytes is the largest accepted file upload (5 MiB).
	DefaultMaxFileBytes int64 = 5 << 20
	// DefaultMaxTextBytes is the largest accepted text snippet (1 MiB).
	DefaultMaxTextBytes int64 = 1 << 20
	// DefaultCodeAttempts bounds regeneration when a code is already live.
	DefaultCodeAttempts = 16
)

// Option configures a Gateway.
type Option func(*Gateway)

// WithGenerator sets the code generator.
func WithGenerator(gen *registry.Generator) Option {
	return func(g *Gateway) {
		if gen != nil {
			g.gen = gen
		}
	}
}

// WithLimits sets the upload size limits. Non-positive values keep the defaults.
func WithLimits(maxFileBytes, maxTextBytes int64) Option {
	return func(g *Gateway) {
		if maxFileBytes > 0 {
			g.maxFileBytes = maxFileBytes
		}
		if maxTextBytes > 0 {
			g.maxTextBytes = maxTextBytes
		}
	}
}

func WithLogger(log *logging.Logger) Option {
	return func(g *Gateway) {
		if log != nil {
			g.log = log
		}
	}
}

// WithAudit sets where audit events go.
func WithAudit(rec audit.Recorder) Option {
	return func(g *Gateway) {
		if rec != nil {
			g.audit = rec
		}
	}
}

func WithMetrics(m *metrics.Metrics) Option {
	return func(g *Gateway) { g.metrics = m }
}

// WithCodeAttempts sets how many codes are tried before giving up.
func WithCodeAttempts(n int) Option {
	return func(g *Gateway) {
		if n > 0 {
			g.codeAttempts = n
		}
	}
}

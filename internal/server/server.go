package server

import (
	"context"
	"net"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/piyushrajyadav/drop-fade/internal/gateway"
	"github.com/piyushrajyadav/drop-fade/internal/logging"
	"github.com/piyushrajyadav/drop-fade/internal/metrics"
)

type Config struct {
	Addr    string // e.g. ":8080"
	Version string
	Commit  string
	// UploadsPerMinute caps uploads per client IP; zero disables the limit.
	UploadsPerMinute int
	// TrustProxy honours X-Forwarded-For/X-Real-IP when resolving the
	// client address.
	TrustProxy bool
}

// Deps are the collaborators the handlers need.
type Deps struct {
	Gateway *gateway.Gateway
	Logger  *logging.Logger
	Metrics *metrics.Metrics
	// Checks are extra readiness probes, e.g. the audit database.
	Checks map[string]Check
}

type Server struct {
	httpServer *http.Server
	handler    http.Handler
	limiter    *rateLimiter
}

func New(cfg Config, deps Deps) *Server {
	if deps.Logger == nil {
		deps.Logger = logging.Default()
	}

	h := &handlers{
		gw:      deps.Gateway,
		log:     deps.Logger,
		version: cfg.Version,
		commit:  cfg.Commit,
		checks:  deps.Checks,
	}

	r := chi.NewRouter()
	r.Use(requestIDMiddleware(cfg.TrustProxy))
	r.Use(loggingMiddleware(deps.Logger, deps.Metrics))
	r.Use(securityHeadersMiddleware)
	r.Use(CompressionMiddleware)

	r.Get("/health", h.health)
	r.Get("/health/live", h.live)
	r.Get("/health/ready", h.ready)
	r.Method(http.MethodGet, "/metrics", deps.Metrics.Handler())

	var limiter *rateLimiter
	r.Route("/api", func(r chi.Router) {
		r.Get("/file/{code}", h.getMetadata)
		r.Delete("/file/{code}", h.markConsumed)
		r.Get("/file/{code}/content", h.content)
		r.Post("/file/delete/{code}", h.deleteFile)

		r.Group(func(r chi.Router) {
			if cfg.UploadsPerMinute > 0 {
				limiter = newRateLimiter(cfg.UploadsPerMinute, time.Minute)
				r.Use(limiter.middleware)
			}
			r.Post("/upload/file", h.uploadFile)
			r.Post("/upload/text", h.uploadText)
		})
	})

	s := &http.Server{
		Addr:              cfg.Addr,
		Handler:           r,
		ReadHeaderTimeout: 5 * time.Second,
	}

	return &Server{httpServer: s, handler: r, limiter: limiter}
}

// Handler returns the routed handler with all middleware applied.
func (s *Server) Handler() http.Handler {
	return s.handler
}

func (s *Server) Start() error {
	ln, err := net.Listen("tcp", s.httpServer.Addr)
	if err != nil {
		return err
	}
	return s.httpServer.Serve(ln)
}

func (s *Server) Shutdown(ctx context.Context) error {
	if s.limiter != nil {
		s.limiter.stop()
	}
	return s.httpServer.Shutdown(ctx)
}

package server

import (
	"net/http"
	"strings"
)

// securityHeadersMiddleware adds security headers to all responses
func securityHeadersMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		h := w.Header()

		// Prevent clickjacking
		h.Set("X-Frame-Options", "DENY")

		// Prevent MIME sniffing, which matters for /content responses
		h.Set("X-Content-Type-Options", "nosniff")

		h.Set("Referrer-Policy", "no-referrer")

		// The API serves JSON and raw user content only; nothing should run.
		h.Set("Content-Security-Policy", "default-src 'none'; frame-ancestors 'none'; sandbox")

		h.Set("Permissions-Policy", "geolocation=(), microphone=(), camera=()")

		// Codes are single-use; intermediaries must not keep copies.
		if strings.HasPrefix(r.URL.Path, "/api/") {
			h.Set("Cache-Control", "no-store")
		}

		next.ServeHTTP(w, r)
	})
}

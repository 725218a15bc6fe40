// Package server implements the HTTP surface of drop-fade. It routes the
// upload, lookup, consume, delete and content endpoints onto the gateway
// and carries the ambient middleware: request IDs, logging, metrics,
// security headers, compression and per-IP upload limits.
package server

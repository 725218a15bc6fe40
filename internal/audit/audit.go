// Package audit keeps an append-only trail of what happened to each code.
// The trail is write-only from the service's point of view: records are
// never reloaded from it.
package audit

import (
	"context"
	"sync"
	"time"
)

// Action is the type of event being audited.
type Action string

const (
	ActionUpload  Action = "upload"
	ActionConsume Action = "consume"
	ActionDelete  Action = "delete"
	ActionExpire  Action = "expire"
)

// Event is one audit entry.
type Event struct {
	ID        string         `json:"id"`
	At        time.Time      `json:"at"`
	Action    Action         `json:"action"`
	Code      string         `json:"code"`
	Kind      string         `json:"kind,omitempty"`
	SizeBytes int64          `json:"sizeBytes,omitempty"`
	ClientIP  string         `json:"clientIp,omitempty"`
	Success   bool           `json:"success"`
	ErrorMsg  string         `json:"error,omitempty"`
	Details   map[string]any `json:"details,omitempty"`
}

// Recorder persists audit events.
type Recorder interface {
	Record(ctx context.Context, ev Event) error
}

// Nop discards every event. It is used when no database is configured.
type Nop struct{}

func (Nop) Record(context.Context, Event) error { return nil }

// Memory keeps events in a slice. Useful in tests and local runs.
type Memory struct {
	mu     sync.Mutex
	events []Event
}

func (m *Memory) Record(_ context.Context, ev Event) error {
	m.mu.Lock()
	m.events = append(m.events, ev)
	m.mu.Unlock()
	return nil
}

// Events returns a copy of the recorded events in insertion order.
func (m *Memory) Events() []Event {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]Event, len(m.events))
	copy(out, m.events)
	return out
}

package audit

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
)

// Entry is one audit record. Entries are never mutated after creation.
type Entry struct {
	// ID uniquely identifies the entry.
	ID string `json:"id"`

	// Timestamp is when the audited event settled.
	Timestamp time.Time `json:"timestamp"`

	// Source tags the emitting component, e.g. "delegation:rest" or
	// "secret:resolution".
	Source string `json:"source"`

	// UserID identifies the acting principal, if any.
	UserID string `json:"userId"`

	// Action names the audited operation.
	Action string `json:"action"`

	// Success records the outcome.
	Success bool `json:"success"`

	// Metadata carries event-specific detail. Never secret values.
	Metadata map[string]any `json:"metadata,omitempty"`
}

// NewEntry creates an entry stamped with the current time.
func NewEntry(source, userID, action string, success bool, metadata map[string]any) Entry {
	return Entry{
		ID:        uuid.NewString(),
		Timestamp: time.Now().UTC(),
		Source:    source,
		UserID:    userID,
		Action:    action,
		Success:   success,
		Metadata:  metadata,
	}
}

// Service is an append-only audit sink.
//
// Contract:
// - Concurrency: implementations must be safe for concurrent use.
// - Errors: Log is best-effort from the caller's view; a sink that
//   cannot persist reports the error but callers do not fail their
//   operation over it.
type Service interface {
	Log(ctx context.Context, entry Entry) error
}

// Nop is the sink used when auditing is disabled.
type Nop struct{}

// Log discards the entry.
func (Nop) Log(_ context.Context, _ Entry) error { return nil }

// Memory is an in-memory sink for tests and inspection.
type Memory struct {
	mu      sync.RWMutex
	entries []Entry
}

// NewMemory creates an in-memory sink.
func NewMemory() *Memory {
	return &Memory{}
}

// Log appends the entry.
func (m *Memory) Log(_ context.Context, entry Entry) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.entries = append(m.entries, entry)
	return nil
}

// Entries returns a copy of all recorded entries in append order.
func (m *Memory) Entries() []Entry {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]Entry, len(m.entries))
	copy(out, m.entries)
	return out
}

// Len returns the number of recorded entries.
func (m *Memory) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.entries)
}

// Ensure sinks implement Service
var (
	_ Service = Nop{}
	_ Service = (*Memory)(nil)
)

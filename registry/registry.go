// Package registry tracks which transport connections are currently open.
// It knows nothing about player identity; that lives in the session store.
package registry

import (
	"sync"
	"time"

	"github.com/rs/zerolog/log"
)

// Connection holds the liveness metadata for one open transport channel.
type Connection struct {
	ID           string
	OpenedAt     time.Time
	LastActiveAt time.Time
}

// Registry is the authoritative set of open connections. All methods are
// safe for concurrent use.
type Registry struct {
	mu          sync.Mutex
	connections map[string]*Connection
	clock       func() time.Time
}

func New() *Registry {
	return &Registry{
		connections: make(map[string]*Connection),
		clock:       time.Now,
	}
}

// NewWithClock is used by tests that need deterministic timestamps.
func NewWithClock(clock func() time.Time) *Registry {
	r := New()
	r.clock = clock
	return r
}

// OnConnect registers a newly opened connection. The transport guarantees
// ids are never reused, so a duplicate indicates a missed disconnect signal;
// the stale entry is overwritten rather than treated as fatal.
func (r *Registry) OnConnect(connectionID string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.connections[connectionID]; exists {
		log.Warn().Str("connection_id", connectionID).
			Msg("Duplicate connect signal, overwriting stale connection entry")
	}
	now := r.clock()
	r.connections[connectionID] = &Connection{
		ID:           connectionID,
		OpenedAt:     now,
		LastActiveAt: now,
	}
}

// OnDisconnect removes the connection. Duplicate disconnect signals are
// tolerated as a no-op.
func (r *Registry) OnDisconnect(connectionID string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.connections, connectionID)
}

// Touch updates the connection's last-active timestamp; no-op if the
// connection is not registered.
func (r *Registry) Touch(connectionID string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if conn, ok := r.connections[connectionID]; ok {
		conn.LastActiveAt = r.clock()
	}
}

// IsOpen reports whether the connection is currently registered.
func (r *Registry) IsOpen(connectionID string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	_, ok := r.connections[connectionID]
	return ok
}

// Len returns the number of open connections.
func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.connections)
}

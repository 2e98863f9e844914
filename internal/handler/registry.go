package handler

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/pavelanni/mockinterview/internal/session"
	"github.com/pavelanni/mockinterview/internal/view"
)

var activeSessions = promauto.NewGauge(prometheus.GaugeOpts{
	Namespace: "mockinterview",
	Name:      "active_sessions",
	Help:      "Sessions currently held by the HTTP registry",
})

// entry is one browser session: a machine and the presenter observing it.
type entry struct {
	machine   *session.Machine
	presenter *view.Presenter

	mu       sync.Mutex
	lastSeen time.Time
}

func (e *entry) touch(now time.Time) {
	e.mu.Lock()
	e.lastSeen = now
	e.mu.Unlock()
}

func (e *entry) idleSince() time.Time {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.lastSeen
}

// Registry maps opaque tokens to live sessions and closes idle ones.
type Registry struct {
	ttl time.Duration
	now func() time.Time

	mu      sync.Mutex
	entries map[string]*entry
}

// NewRegistry creates a registry that expires sessions idle for longer than ttl.
// A zero ttl disables expiry.
func NewRegistry(ttl time.Duration) *Registry {
	return &Registry{
		ttl:     ttl,
		now:     time.Now,
		entries: make(map[string]*entry),
	}
}

// Add registers a session and returns its token.
func (r *Registry) Add(m *session.Machine, p *view.Presenter) string {
	token := uuid.NewString()
	e := &entry{machine: m, presenter: p, lastSeen: r.now()}

	r.mu.Lock()
	r.entries[token] = e
	n := len(r.entries)
	r.mu.Unlock()

	activeSessions.Inc()
	slog.Debug("session registered", "token", token, "active", n)
	return token
}

// Get returns the session for token and marks it as used.
func (r *Registry) Get(token string) (*entry, bool) {
	r.mu.Lock()
	e, ok := r.entries[token]
	r.mu.Unlock()
	if ok {
		e.touch(r.now())
	}
	return e, ok
}

// Remove closes and forgets the session for token.
func (r *Registry) Remove(token string) bool {
	r.mu.Lock()
	e, ok := r.entries[token]
	delete(r.entries, token)
	r.mu.Unlock()
	if !ok {
		return false
	}
	e.machine.Close()
	activeSessions.Dec()
	return true
}

// Len returns the number of registered sessions.
func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.entries)
}

// Sweep closes sessions idle for longer than the ttl and returns how many
// were removed.
func (r *Registry) Sweep() int {
	if r.ttl <= 0 {
		return 0
	}
	cutoff := r.now().Add(-r.ttl)

	var expired []*entry
	r.mu.Lock()
	for token, e := range r.entries {
		if e.idleSince().Before(cutoff) {
			expired = append(expired, e)
			delete(r.entries, token)
		}
	}
	r.mu.Unlock()

	for _, e := range expired {
		e.machine.Close()
		activeSessions.Dec()
	}
	if len(expired) > 0 {
		slog.Info("expired idle sessions", "count", len(expired))
	}
	return len(expired)
}

// Run sweeps periodically until ctx is done, then closes every session.
func (r *Registry) Run(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			r.CloseAll()
			return
		case <-ticker.C:
			r.Sweep()
		}
	}
}

// CloseAll closes and forgets every session.
func (r *Registry) CloseAll() {
	r.mu.Lock()
	entries := r.entries
	r.entries = make(map[string]*entry)
	r.mu.Unlock()

	for _, e := range entries {
		e.machine.Close()
		activeSessions.Dec()
	}
}

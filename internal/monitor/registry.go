// Package monitor implements the subscriber registry that drives
// asynchronous MONITOR-UPDATE callbacks: registration with expiry and
// fan-out to active subscribers on a facility's state change.
package monitor

import (
	"sync"
	"time"
)

// Sender transmits a datagram to endpoint, returning an error on any
// transport-level failure. The dispatcher supplies this over its UDP
// socket; tests supply a fake.
type Sender func(endpoint string, payload []byte) error

type subscription struct {
	endpoint  string
	facility  string
	expiresAt time.Time
}

// Registry holds every facility's active subscriptions.
type Registry struct {
	mu   sync.Mutex
	subs []subscription
	now  func() time.Time
}

// New creates an empty registry.
func New() *Registry {
	return &Registry{now: time.Now}
}

// Register adds a new subscription for endpoint on facility, active for
// duration. Multiple subscriptions from the same endpoint to the same
// facility coexist; no deduplication is performed (§3).
func (r *Registry) Register(endpoint, facility string, duration time.Duration) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.subs = append(r.subs, subscription{
		endpoint:  endpoint,
		facility:  facility,
		expiresAt: r.now().Add(duration),
	})
}

// FanOut calls buildPayload once to get the callback bytes for facility,
// then sends them to every active subscriber of that facility via send.
// Expired subscriptions are pruned during the sweep; subscriptions whose
// send fails are removed immediately (§3, §4.5).
func (r *Registry) FanOut(facility string, send Sender, buildPayload func() []byte) {
	r.mu.Lock()
	now := r.now()
	var targets []string
	kept := r.subs[:0:0]
	for _, sub := range r.subs {
		if now.After(sub.expiresAt) || now.Equal(sub.expiresAt) {
			continue // expired, drop
		}
		kept = append(kept, sub)
		if sub.facility == facility {
			targets = append(targets, sub.endpoint)
		}
	}
	r.subs = kept
	r.mu.Unlock()

	if len(targets) == 0 {
		return
	}
	payload := buildPayload()
	var failed map[string]bool
	for _, endpoint := range targets {
		if err := send(endpoint, payload); err != nil {
			if failed == nil {
				failed = make(map[string]bool)
			}
			failed[endpoint] = true
		}
	}
	if failed != nil {
		r.removeFailed(facility, failed)
	}
}

func (r *Registry) removeFailed(facility string, failed map[string]bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	kept := r.subs[:0:0]
	for _, sub := range r.subs {
		if sub.facility == facility && failed[sub.endpoint] {
			continue
		}
		kept = append(kept, sub)
	}
	r.subs = kept
}

// Count reports the number of active (unexpired) subscriptions, for
// diagnostics and metrics.
func (r *Registry) Count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	now := r.now()
	n := 0
	for _, sub := range r.subs {
		if now.Before(sub.expiresAt) {
			n++
		}
	}
	return n
}

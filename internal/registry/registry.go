// Package registry holds the client's projected view of known shipments.
//
// The registry is the only shared mutable resource in the client. All
// mutation goes through Upsert, which publishes a fresh value atomically;
// values handed out by Get and List are never mutated in place, so a
// reader can never observe a half-updated shipment.
package registry

import (
	"sync"
	"time"

	"github.com/seechain/seechain/internal/ledger"
	"github.com/seechain/seechain/pkg/shipmentid"
)

// Shipment is the projected, display-ready view of one shipment.
// CurrentStatus and LastUpdate are derived from the log by projection
// and are never set independently of it.
type Shipment struct {
	ID          shipmentid.ID `json:"id"`
	HumanKey    string        `json:"human_key"`
	Origin      string        `json:"origin"`
	Destination string        `json:"destination"`

	CurrentStatus string            `json:"current_status"`
	LastUpdate    *time.Time        `json:"last_update,omitempty"`
	Log           []ledger.LogEntry `json:"log"`

	// LogSuspect marks a shipment whose ledger log failed the
	// non-decreasing timestamp check. The projection is still the
	// best-effort truth; this is a data-quality flag, not an error.
	LogSuspect bool `json:"log_suspect,omitempty"`
}

// Registry is a keyed store of known shipments with snapshot semantics.
type Registry struct {
	mu        sync.RWMutex
	shipments map[shipmentid.ID]*Shipment
	order     []shipmentid.ID // first-seen order, for stable List output
}

// New creates an empty registry.
func New() *Registry {
	return &Registry{shipments: make(map[shipmentid.ID]*Shipment)}
}

// Get returns the shipment for id, or false if unknown. The returned
// value is the caller's to keep; mutating it does not affect the store.
func (r *Registry) Get(id shipmentid.ID) (*Shipment, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	s, ok := r.shipments[id]
	if !ok {
		return nil, false
	}
	return copyShipment(s), true
}

// List returns all known shipments in first-seen order.
func (r *Registry) List() []*Shipment {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]*Shipment, 0, len(r.order))
	for _, id := range r.order {
		out = append(out, copyShipment(r.shipments[id]))
	}
	return out
}

// Len returns the number of known shipments.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.shipments)
}

// Upsert publishes a new value for a shipment. The stored copy is
// private to the registry, so later caller-side mutation of s is
// harmless.
func (r *Registry) Upsert(s *Shipment) {
	cp := copyShipment(s)

	r.mu.Lock()
	defer r.mu.Unlock()
	if _, known := r.shipments[cp.ID]; !known {
		r.order = append(r.order, cp.ID)
	}
	r.shipments[cp.ID] = cp
}

// Invalidate evicts a shipment from the local cache. The ledger record
// is untouched; a later re-fetch rehydrates the entry without any create
// semantics.
func (r *Registry) Invalidate(id shipmentid.ID) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, known := r.shipments[id]; !known {
		return
	}
	delete(r.shipments, id)
	for i, oid := range r.order {
		if oid == id {
			r.order = append(r.order[:i], r.order[i+1:]...)
			break
		}
	}
}

func copyShipment(s *Shipment) *Shipment {
	cp := *s
	cp.Log = make([]ledger.LogEntry, len(s.Log))
	copy(cp.Log, s.Log)
	if s.LastUpdate != nil {
		ts := *s.LastUpdate
		cp.LastUpdate = &ts
	}
	return &cp
}

// Package holdings tracks which inventory stores exist on this host, who
// controls them, and serializes access to each one. A caller that wants to
// validate and commit against a set of stores acquires a Lease over all of
// them; leases over disjoint stores proceed in parallel.
package holdings

import (
	"errors"
	"fmt"
	"sort"
	"sync"

	"github.com/gravitas-games/stationhost/internal/inventory"
	"github.com/gravitas-games/stationhost/pkg/models"
)

var (
	ErrUnknownHolding = errors.New("holdings: unknown holding")
	ErrExists         = errors.New("holdings: holding already registered")
)

// Key identifies one holding.
type Key string

// AgentKey is the key of an agent's inventory.
func AgentKey(id models.AgentID) Key { return Key("agent:" + string(id)) }

// VendorKey is the key of a vendor station's stock.
func VendorKey(id models.StationID) Key { return Key("vendor:" + string(id)) }

// Holding is one store with its exclusive lock.
type Holding struct {
	Key   Key
	Store *inventory.Store

	mu         sync.Mutex
	controller models.ParticipantID
	removed    bool
}

// Registry maps keys to holdings.
type Registry struct {
	mu       sync.RWMutex
	holdings map[Key]*Holding
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{holdings: make(map[Key]*Holding)}
}

// Register adds a store. controller may be empty for host-owned stores such
// as vendor stock.
func (r *Registry) Register(key Key, controller models.ParticipantID, store *inventory.Store) (*Holding, error) {
	if store == nil {
		return nil, fmt.Errorf("holdings: nil store for %s", key)
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.holdings[key]; exists {
		return nil, fmt.Errorf("%w: %s", ErrExists, key)
	}
	h := &Holding{Key: key, Store: store, controller: controller}
	r.holdings[key] = h
	return h, nil
}

// Remove unregisters a holding once any in-flight lease on it has been
// released, and returns its store.
func (r *Registry) Remove(key Key) (*inventory.Store, bool) {
	r.mu.Lock()
	h, ok := r.holdings[key]
	if ok {
		delete(r.holdings, key)
	}
	r.mu.Unlock()
	if !ok {
		return nil, false
	}
	h.mu.Lock()
	h.removed = true
	h.mu.Unlock()
	return h.Store, true
}

// Has reports whether key is registered.
func (r *Registry) Has(key Key) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.holdings[key]
	return ok
}

// ControllerOf returns the participant controlling an agent.
func (r *Registry) ControllerOf(agent models.AgentID) (models.ParticipantID, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	h, ok := r.holdings[AgentKey(agent)]
	if !ok || h.controller == "" {
		return "", false
	}
	return h.controller, true
}

// Lease is exclusive access to a set of holdings.
type Lease struct {
	held []*Holding
	once sync.Once
}

// Store returns the leased store for key, or nil.
func (l *Lease) Store(key Key) *inventory.Store {
	for _, h := range l.held {
		if h.Key == key {
			return h.Store
		}
	}
	return nil
}

// Release unlocks every holding in reverse acquisition order. It is safe to
// call more than once.
func (l *Lease) Release() {
	l.once.Do(func() {
		for i := len(l.held) - 1; i >= 0; i-- {
			l.held[i].mu.Unlock()
		}
	})
}

// Acquire locks the holdings for keys in sorted key order, so two leases
// over overlapping sets cannot deadlock. Duplicate keys are locked once.
func (r *Registry) Acquire(keys ...Key) (*Lease, error) {
	sorted := append([]Key(nil), keys...)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i] < sorted[j] })

	r.mu.RLock()
	var targets []*Holding
	for i, k := range sorted {
		if i > 0 && sorted[i-1] == k {
			continue
		}
		h, ok := r.holdings[k]
		if !ok {
			r.mu.RUnlock()
			return nil, fmt.Errorf("%w: %s", ErrUnknownHolding, k)
		}
		targets = append(targets, h)
	}
	r.mu.RUnlock()

	lease := &Lease{held: make([]*Holding, 0, len(targets))}
	for _, h := range targets {
		h.mu.Lock()
		lease.held = append(lease.held, h)
		if h.removed {
			lease.Release()
			return nil, fmt.Errorf("%w: %s", ErrUnknownHolding, h.Key)
		}
	}
	return lease, nil
}

// WithInventory runs fn while holding key exclusively.
func (r *Registry) WithInventory(key Key, fn func(*inventory.Store) error) error {
	lease, err := r.Acquire(key)
	if err != nil {
		return err
	}
	defer lease.Release()
	return fn(lease.Store(key))
}

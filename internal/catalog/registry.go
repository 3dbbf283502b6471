package catalog

import (
	"errors"
	"fmt"
	"sort"
	"sync"

	"github.com/gravitas-games/stationhost/internal/abilitycode"
	"github.com/gravitas-games/stationhost/internal/inventory"
	"github.com/gravitas-games/stationhost/pkg/models"
)

// DefaultMaxStack applies to definitions that do not declare a stack limit.
const DefaultMaxStack uint8 = 64

// Registry stores item definitions keyed by numeric id and provides lookup
// by string key. It also implements inventory.Limits.
type Registry struct {
	mu       sync.RWMutex
	items    map[inventory.DefinitionID]ItemDefinition
	byKey    map[string]inventory.DefinitionID
	stations map[models.StationID]Station
	nextID   inventory.DefinitionID
}

// NewRegistry constructs an empty registry and optionally seeds it with
// initial item definitions.
func NewRegistry(defs ...ItemDefinition) *Registry {
	r := &Registry{
		items:    make(map[inventory.DefinitionID]ItemDefinition, len(defs)),
		byKey:    make(map[string]inventory.DefinitionID, len(defs)),
		stations: make(map[models.StationID]Station),
	}
	for _, d := range defs {
		_ = r.Register(d) // ignore duplicates during seed
	}
	return r
}

// Register inserts or updates a definition. The key must be non-empty; a zero
// ID is assigned the next free numeric id.
func (r *Registry) Register(def ItemDefinition) error {
	if def.Key == "" {
		return errors.New("catalog: item definition missing key")
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.items == nil {
		r.items = make(map[inventory.DefinitionID]ItemDefinition)
	}
	if r.byKey == nil {
		r.byKey = make(map[string]inventory.DefinitionID)
	}

	if existing, exists := r.byKey[def.Key]; exists {
		if def.ID == 0 {
			def.ID = existing
		} else if def.ID != existing {
			return errors.New("catalog: numeric id mismatch for existing item")
		}
	}

	if def.ID == 0 {
		r.nextID++
		for {
			if _, taken := r.items[r.nextID]; !taken {
				break
			}
			r.nextID++
		}
		def.ID = r.nextID
	} else {
		if owner, collision := r.items[def.ID]; collision && owner.Key != def.Key {
			return errors.New("catalog: numeric id already assigned to another item")
		}
		if def.ID > r.nextID {
			r.nextID = def.ID
		}
	}
	// An ability token describes a single item, so configurable items never stack.
	if len(def.Abilities) > 0 {
		if def.MaxStack > 1 {
			return errors.New("catalog: items with abilities cannot stack: " + def.Key)
		}
		def.MaxStack = 1
	}
	if def.MaxStack == 0 {
		def.MaxStack = DefaultMaxStack
	}
	seen := make(map[int]struct{}, len(def.Abilities))
	for _, a := range def.Abilities {
		if _, dup := seen[a.Index]; dup {
			return errors.New("catalog: duplicate ability index on " + def.Key)
		}
		if a.Index < 0 || a.Index > abilitycode.MaxIndex {
			return fmt.Errorf("catalog: ability index %d out of range on %s", a.Index, def.Key)
		}
		if a.MaxLevel < 1 || a.MaxLevel > abilitycode.MaxLevel {
			return fmt.Errorf("catalog: ability max level must be within [1, %d] on %s", abilitycode.MaxLevel, def.Key)
		}
		seen[a.Index] = struct{}{}
	}

	r.items[def.ID] = def
	r.byKey[def.Key] = def.ID
	return nil
}

// Lookup returns the definition for the provided id, if present.
func (r *Registry) Lookup(id inventory.DefinitionID) (ItemDefinition, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	def, ok := r.items[id]
	return def, ok
}

// LookupKey returns the definition registered under a string key.
func (r *Registry) LookupKey(key string) (ItemDefinition, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	id, ok := r.byKey[key]
	if !ok {
		return ItemDefinition{}, false
	}
	def, ok := r.items[id]
	return def, ok
}

// MaxStack implements inventory.Limits.
func (r *Registry) MaxStack(id inventory.DefinitionID) uint8 {
	if r == nil {
		return 0
	}
	def, ok := r.Lookup(id)
	if !ok {
		return 0
	}
	return def.MaxStack
}

// CategoryOf returns the reagent category of a definition.
func (r *Registry) CategoryOf(id inventory.DefinitionID) Category {
	def, ok := r.Lookup(id)
	if !ok {
		return CategoryNone
	}
	return def.Category
}

// AddStation registers a station description.
func (r *Registry) AddStation(st Station) error {
	if st.ID == "" {
		return errors.New("catalog: station missing id")
	}
	if !st.Kind.Valid() {
		return errors.New("catalog: unknown station kind " + string(st.Kind))
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.stations == nil {
		r.stations = make(map[models.StationID]Station)
	}
	r.stations[st.ID] = st
	return nil
}

// Station returns the station with the given id.
func (r *Registry) Station(id models.StationID) (Station, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	st, ok := r.stations[id]
	return st, ok
}

// Stations returns every station sorted by id.
func (r *Registry) Stations() []Station {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]Station, 0, len(r.stations))
	for _, st := range r.stations {
		out = append(out, st)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// Export copies registry contents into a slice sorted by id, suitable for
// sending to clients.
func (r *Registry) Export() []ItemDefinition {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if len(r.items) == 0 {
		return nil
	}
	out := make([]ItemDefinition, 0, len(r.items))
	for _, d := range r.items {
		out = append(out, d)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

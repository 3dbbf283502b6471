package inventory

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/gravitas-games/stationhost/pkg/models"
)

// Option configures store construction.
type Option func(*Store)

// WithLimits attaches the stack limits used when placing items.
func WithLimits(l Limits) Option {
	return func(s *Store) {
		s.limits = l
	}
}

// WithMaxCurrency sets the currency saturation point.
func WithMaxCurrency(max int64) Option {
	return func(s *Store) {
		if max > 0 {
			s.maxCurrency = max
		}
	}
}

// WithCurrency sets the starting currency.
func WithCurrency(amount int64) Option {
	return func(s *Store) {
		s.currency = amount
	}
}

// New creates a store with the given number of general slots.
func New(id string, owner models.AgentID, generalSlots int, opts ...Option) *Store {
	if generalSlots < 0 {
		generalSlots = 0
	}
	s := &Store{
		ID:          id,
		Owner:       owner,
		general:     make([]ItemStack, generalSlots),
		maxCurrency: DefaultMaxCurrency,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(s)
		}
	}
	s.SetCurrency(s.currency)
	return s
}

// Limits returns the attached stack limits.
func (s *Store) Limits() Limits { return s.limits }

// InRange reports whether ref addresses an existing slot.
func (s *Store) InRange(ref SlotRef) bool {
	_, ok := s.slot(ref)
	return ok
}

// GetSlot returns the content of a slot, or an empty stack for refs that are
// out of range.
func (s *Store) GetSlot(ref SlotRef) ItemStack {
	p, ok := s.slot(ref)
	if !ok {
		return ItemStack{}
	}
	return *p
}

// maxStack resolves the stack limit for a definition. Without limits every
// definition stacks to 255.
func (s *Store) maxStack(def DefinitionID) uint8 {
	if s.limits == nil {
		return 255
	}
	return s.limits.MaxStack(def)
}

// TrySetSlot overwrites a slot. It fails for out-of-range refs, stacks that
// break the empty/non-empty invariant, and quantities above the stack limit.
func (s *Store) TrySetSlot(ref SlotRef, stack ItemStack) bool {
	p, ok := s.slot(ref)
	if !ok {
		return false
	}
	if stack.IsEmpty() {
		*p = ItemStack{}
		return true
	}
	if !stack.Valid() {
		return false
	}
	if stack.Qty > s.maxStack(stack.Def) {
		return false
	}
	*p = stack
	return true
}

// TryExtract removes up to qty units from a slot and returns exactly what
// was removed, token included. It fails when the slot is empty, out of range,
// or qty is zero.
func (s *Store) TryExtract(ref SlotRef, qty uint8) (ItemStack, bool) {
	p, ok := s.slot(ref)
	if !ok || qty == 0 || p.IsEmpty() {
		return ItemStack{}, false
	}
	take := qty
	if take > p.Qty {
		take = p.Qty
	}
	removed := ItemStack{Def: p.Def, Qty: take, Token: p.Token}
	p.Qty -= take
	if p.Qty == 0 {
		*p = ItemStack{}
	}
	return removed, true
}

// Placements computes, without mutating, where AddItem would put qty units:
// first into general slots already holding an identical definition and token,
// then into empty general slots, in index order. The second result is the
// quantity that would not fit.
func (s *Store) Placements(def DefinitionID, qty uint8, token string) ([]Placement, uint8) {
	if def == 0 || qty == 0 || len(token) > MaxTokenLen {
		return nil, qty
	}
	max := s.maxStack(def)
	if max == 0 {
		return nil, qty
	}
	want := ItemStack{Def: def, Token: token}
	remaining := qty
	var out []Placement

	for i := 0; i < len(s.general) && remaining > 0; i++ {
		cur := s.general[i]
		if cur.IsEmpty() || !cur.StacksWith(want) || cur.Qty >= max {
			continue
		}
		room := max - cur.Qty
		if room > remaining {
			room = remaining
		}
		after := cur
		after.Qty += room
		out = append(out, Placement{Ref: General(i), Before: cur, After: after})
		remaining -= room
	}
	for i := 0; i < len(s.general) && remaining > 0; i++ {
		if !s.general[i].IsEmpty() {
			continue
		}
		put := max
		if put > remaining {
			put = remaining
		}
		out = append(out, Placement{Ref: General(i), Before: ItemStack{}, After: ItemStack{Def: def, Qty: put, Token: token}})
		remaining -= put
	}
	return out, remaining
}

// AddItem stores up to qty units and returns the quantity that could not be
// placed. A nonzero leftover is a partial failure the caller must compensate.
func (s *Store) AddItem(def DefinitionID, qty uint8, token string) uint8 {
	placements, leftover := s.Placements(def, qty, token)
	for _, p := range placements {
		s.general[p.Ref.Index] = p.After
	}
	return leftover
}

// TrySpendCurrency deducts amount if the balance covers it.
func (s *Store) TrySpendCurrency(amount int64) bool {
	if amount < 0 || amount > s.currency {
		return false
	}
	s.currency -= amount
	return true
}

// AddCurrency credits amount, saturating at the maximum.
func (s *Store) AddCurrency(amount int64) {
	if amount <= 0 {
		return
	}
	if amount > s.maxCurrency-s.currency {
		s.currency = s.maxCurrency
		return
	}
	s.currency += amount
}

// SetCurrency overwrites the balance, clamped to [0, max].
func (s *Store) SetCurrency(amount int64) {
	switch {
	case amount < 0:
		s.currency = 0
	case amount > s.maxCurrency:
		s.currency = s.maxCurrency
	default:
		s.currency = amount
	}
}

// Count totals the units of def held in general and hotbar slots.
func (s *Store) Count(def DefinitionID) int {
	total := 0
	for _, ref := range s.Find(def) {
		total += int(s.GetSlot(ref).Qty)
	}
	return total
}

// Find lists general then hotbar slots holding def.
func (s *Store) Find(def DefinitionID) []SlotRef {
	if def == 0 {
		return nil
	}
	var refs []SlotRef
	for i, st := range s.general {
		if st.Def == def && !st.IsEmpty() {
			refs = append(refs, General(i))
		}
	}
	for i, st := range s.hotbar {
		if st.Def == def && !st.IsEmpty() {
			refs = append(refs, Hotbar(i))
		}
	}
	return refs
}

// Resize changes the number of general slots. Shrinking evicts the tail
// slots; their non-empty stacks are returned for the caller to relocate.
func (s *Store) Resize(n int) []ItemStack {
	if n < 0 {
		n = 0
	}
	var evicted []ItemStack
	if n < len(s.general) {
		for _, st := range s.general[n:] {
			if !st.IsEmpty() {
				evicted = append(evicted, st)
			}
		}
		s.general = append([]ItemStack(nil), s.general[:n]...)
		return evicted
	}
	grown := make([]ItemStack, n)
	copy(grown, s.general)
	s.general = grown
	return nil
}

// ResizeKeeping changes the number of general slots, moving stacks out of
// evicted slots into free ones. When they do not fit nothing changes and it
// returns false.
func (s *Store) ResizeKeeping(n int) bool {
	c := s.Clone()
	for _, st := range c.Resize(n) {
		if left := c.AddItem(st.Def, st.Qty, st.Token); left != 0 {
			return false
		}
	}
	s.general = c.general
	return true
}

// Clone returns a deep copy sharing the same limits.
func (s *Store) Clone() *Store {
	c := *s
	c.general = append([]ItemStack(nil), s.general...)
	return &c
}

// Equal compares slot contents and currency.
func (s *Store) Equal(o *Store) bool {
	if s == nil || o == nil {
		return s == o
	}
	if len(s.general) != len(o.general) || s.currency != o.currency {
		return false
	}
	for i := range s.general {
		if s.general[i] != o.general[i] {
			return false
		}
	}
	return s.equipment == o.equipment && s.hotbar == o.hotbar
}

// Snapshot returns the read-only replicated form of the store.
func (s *Store) Snapshot() Snapshot {
	return Snapshot{
		ID:          s.ID,
		Owner:       s.Owner,
		General:     append([]ItemStack(nil), s.general...),
		Equipment:   s.equipment,
		Hotbar:      s.hotbar,
		Currency:    s.currency,
		MaxCurrency: s.maxCurrency,
	}
}

// Serialize encodes the store to JSON.
func (s *Store) Serialize() ([]byte, error) {
	return json.Marshal(s.Snapshot())
}

// Deserialize replaces the store with data from JSON. Every stack is
// re-validated against the attached limits.
func (s *Store) Deserialize(b []byte) error {
	var ss Snapshot
	if err := json.Unmarshal(b, &ss); err != nil {
		return err
	}
	restored := &Store{
		ID:          ss.ID,
		Owner:       ss.Owner,
		general:     make([]ItemStack, len(ss.General)),
		maxCurrency: ss.MaxCurrency,
		limits:      s.limits,
	}
	if restored.maxCurrency <= 0 {
		restored.maxCurrency = DefaultMaxCurrency
	}
	put := func(ref SlotRef, st ItemStack) error {
		if !restored.TrySetSlot(ref, st) {
			return fmt.Errorf("invalid stack in %s slot %d", ref.Area, ref.Index)
		}
		return nil
	}
	for i, st := range ss.General {
		if err := put(General(i), st); err != nil {
			return err
		}
	}
	for i, st := range ss.Equipment {
		if err := put(Equip(EquipSlot(i)), st); err != nil {
			return err
		}
	}
	for i, st := range ss.Hotbar {
		if err := put(Hotbar(i), st); err != nil {
			return err
		}
	}
	if ss.Currency < 0 {
		return errors.New("negative currency")
	}
	restored.SetCurrency(ss.Currency)
	*s = *restored
	return nil
}

// Package abilitycode packs the per-item ability configuration (unlocked
// indices, control slot bindings, levels) into a short text token and
// provides the pure update operations applied to it.
package abilitycode

import (
	"errors"
	"sort"
)

const (
	// ControlSlots is the number of control slots an item exposes.
	ControlSlots = 4
	// MaxUnlocked bounds how many abilities one item may unlock.
	MaxUnlocked = 5
	// MaxIndex is the largest ability index.
	MaxIndex = 15
	// MaxLevel is the hard ceiling for any ability level.
	MaxLevel = 20
	// TokenCapacity is the maximum token length in bytes.
	TokenCapacity = 64
	// NoAbility marks an unbound control slot.
	NoAbility = -1
)

var (
	ErrEncodeOverflow  = errors.New("abilitycode: token exceeds capacity")
	ErrAlreadyUnlocked = errors.New("abilitycode: ability already unlocked")
	ErrUnlockLimit     = errors.New("abilitycode: unlock limit reached")
	ErrNotUnlocked     = errors.New("abilitycode: ability not unlocked")
	ErrLevelRange      = errors.New("abilitycode: level out of range")
	ErrSlotRange       = errors.New("abilitycode: control slot out of range")
	ErrIndexRange      = errors.New("abilitycode: ability index out of range")
)

// Config is the decoded form of a token. Use New for the empty
// configuration: the Go zero value binds every slot to index 0.
type Config struct {
	// Unlocked is kept sorted ascending.
	Unlocked []int
	Slots    [ControlSlots]int
	// Levels holds explicit levels. Unlocked indices without an entry are at
	// level 1.
	Levels map[int]int
}

// New returns the empty configuration, which encodes to "".
func New() Config {
	var c Config
	for i := range c.Slots {
		c.Slots[i] = NoAbility
	}
	return c
}

// IsEmpty reports whether c carries no state.
func (c Config) IsEmpty() bool {
	if len(c.Unlocked) != 0 || len(c.Levels) != 0 {
		return false
	}
	for _, s := range c.Slots {
		if s != NoAbility {
			return false
		}
	}
	return true
}

// Clone returns a deep copy.
func (c Config) Clone() Config {
	out := Config{Slots: c.Slots}
	if len(c.Unlocked) > 0 {
		out.Unlocked = append([]int(nil), c.Unlocked...)
	}
	if len(c.Levels) > 0 {
		out.Levels = make(map[int]int, len(c.Levels))
		for k, v := range c.Levels {
			out.Levels[k] = v
		}
	}
	return out
}

// Equal compares two configurations, treating nil and empty collections alike.
func (c Config) Equal(o Config) bool {
	if c.Slots != o.Slots || len(c.Unlocked) != len(o.Unlocked) || len(c.Levels) != len(o.Levels) {
		return false
	}
	for i := range c.Unlocked {
		if c.Unlocked[i] != o.Unlocked[i] {
			return false
		}
	}
	for k, v := range c.Levels {
		if ov, ok := o.Levels[k]; !ok || ov != v {
			return false
		}
	}
	return true
}

// IsUnlocked reports whether idx is unlocked.
func (c Config) IsUnlocked(idx int) bool {
	i := sort.SearchInts(c.Unlocked, idx)
	return i < len(c.Unlocked) && c.Unlocked[i] == idx
}

// SlotOf returns the control slot bound to idx, or -1.
func (c Config) SlotOf(idx int) int {
	for i, s := range c.Slots {
		if s == idx && idx != NoAbility {
			return i
		}
	}
	return -1
}

// Level returns the level of idx: 0 when locked, 1 when unlocked without an
// explicit entry.
func (c Config) Level(idx int) int {
	if !c.IsUnlocked(idx) {
		return 0
	}
	if lv, ok := c.Levels[idx]; ok {
		return lv
	}
	return 1
}

// Validate checks every structural invariant of c.
func (c Config) Validate() error {
	if len(c.Unlocked) > MaxUnlocked {
		return ErrUnlockLimit
	}
	for i, idx := range c.Unlocked {
		if idx < 0 || idx > MaxIndex {
			return ErrIndexRange
		}
		if i > 0 && c.Unlocked[i-1] >= idx {
			return errors.New("abilitycode: unlocked indices not strictly ascending")
		}
	}
	seen := make(map[int]bool, ControlSlots)
	for _, s := range c.Slots {
		if s == NoAbility {
			continue
		}
		if !c.IsUnlocked(s) {
			return ErrNotUnlocked
		}
		if seen[s] {
			return errors.New("abilitycode: index bound to more than one slot")
		}
		seen[s] = true
	}
	for idx, lv := range c.Levels {
		if !c.IsUnlocked(idx) {
			return ErrNotUnlocked
		}
		if lv < 1 || lv > MaxLevel {
			return ErrLevelRange
		}
	}
	return nil
}

// Unlock returns c with idx unlocked.
func Unlock(c Config, idx int) (Config, error) {
	if idx < 0 || idx > MaxIndex {
		return c, ErrIndexRange
	}
	if c.IsUnlocked(idx) {
		return c, ErrAlreadyUnlocked
	}
	if len(c.Unlocked) >= MaxUnlocked {
		return c, ErrUnlockLimit
	}
	out := c.Clone()
	out.Unlocked = append(out.Unlocked, idx)
	sort.Ints(out.Unlocked)
	return out, nil
}

// Assign binds idx to a control slot, or clears the slot for NoAbility. Any
// other slot holding idx is cleared.
func Assign(c Config, slot, idx int) (Config, error) {
	if slot < 0 || slot >= ControlSlots {
		return c, ErrSlotRange
	}
	if idx != NoAbility && !c.IsUnlocked(idx) {
		return c, ErrNotUnlocked
	}
	out := c.Clone()
	if prev := out.SlotOf(idx); prev >= 0 {
		out.Slots[prev] = NoAbility
	}
	out.Slots[slot] = idx
	return out, nil
}

// SetLevel sets the level of an unlocked index. max is the ability's own
// ceiling; values outside [1, MaxLevel] fall back to MaxLevel.
func SetLevel(c Config, idx, level, max int) (Config, error) {
	if !c.IsUnlocked(idx) {
		return c, ErrNotUnlocked
	}
	if max < 1 || max > MaxLevel {
		max = MaxLevel
	}
	if level < 1 || level > max {
		return c, ErrLevelRange
	}
	out := c.Clone()
	if out.Levels == nil {
		out.Levels = make(map[int]int, 1)
	}
	out.Levels[idx] = level
	return out, nil
}

// Package inventory provides the slot-addressed item store owned by one
// agent: resizable general slots, named equipment slots, a fixed hotbar and a
// saturating currency counter. Mutation is expected to happen only on the
// authoritative host; everyone else holds a Snapshot.
package inventory

import "github.com/gravitas-games/stationhost/pkg/models"

// DefinitionID identifies an item definition in the catalog. Zero is the
// empty slot marker.
type DefinitionID uint32

// MaxTokenLen bounds the per-instance configuration token.
const MaxTokenLen = 64

// HotbarSize is the fixed number of hotbar slots.
const HotbarSize = 8

// DefaultMaxCurrency is the saturation point used when no limit is supplied.
const DefaultMaxCurrency int64 = 999_999_999

// ItemStack is the content of one slot. The zero value is an empty slot.
type ItemStack struct {
	Def   DefinitionID `json:"def"`
	Qty   uint8        `json:"qty"`
	Token string       `json:"token,omitempty"`
}

// IsEmpty reports whether the stack represents an empty slot.
func (s ItemStack) IsEmpty() bool {
	return s.Def == 0 || s.Qty == 0
}

// Valid reports whether the stack satisfies the empty/non-empty invariant:
// quantity 0 iff definition 0, and tokens only on non-empty stacks.
func (s ItemStack) Valid() bool {
	if s.Def == 0 || s.Qty == 0 {
		return s.Def == 0 && s.Qty == 0 && s.Token == ""
	}
	return len(s.Token) <= MaxTokenLen
}

// StacksWith reports whether two stacks may share a slot.
func (s ItemStack) StacksWith(o ItemStack) bool {
	return s.Def == o.Def && s.Token == o.Token
}

// Area selects which slot array a SlotRef addresses.
type Area int

const (
	AreaGeneral Area = iota
	AreaEquipment
	AreaHotbar
)

// String returns a human-readable representation of the area.
func (a Area) String() string {
	switch a {
	case AreaGeneral:
		return "general"
	case AreaEquipment:
		return "equipment"
	case AreaHotbar:
		return "hotbar"
	default:
		return "unknown"
	}
}

// EquipSlot names a fixed equipment slot.
type EquipSlot int

const (
	EquipPickaxe EquipSlot = iota
	EquipHead
	EquipBody
	EquipMount
	// EquipSlotCount is the number of equipment slots.
	EquipSlotCount
)

// SlotRef addresses one slot in a Store.
type SlotRef struct {
	Area  Area `json:"area"`
	Index int  `json:"index"`
}

// General addresses general slot i.
func General(i int) SlotRef { return SlotRef{Area: AreaGeneral, Index: i} }

// Hotbar addresses hotbar slot i.
func Hotbar(i int) SlotRef { return SlotRef{Area: AreaHotbar, Index: i} }

// Equip addresses an equipment slot.
func Equip(slot EquipSlot) SlotRef { return SlotRef{Area: AreaEquipment, Index: int(slot)} }

// Limits supplies per-definition stack limits. A zero limit means the
// definition is unknown and cannot be stored.
type Limits interface {
	MaxStack(def DefinitionID) uint8
}

// Placement is one slot write planned by AddItem.
type Placement struct {
	Ref    SlotRef   `json:"ref"`
	Before ItemStack `json:"before"`
	After  ItemStack `json:"after"`
}

// Snapshot is the replicated, read-only form of a Store.
type Snapshot struct {
	ID          string                    `json:"id"`
	Owner       models.AgentID            `json:"owner,omitempty"`
	General     []ItemStack               `json:"general"`
	Equipment   [EquipSlotCount]ItemStack `json:"equipment"`
	Hotbar      [HotbarSize]ItemStack     `json:"hotbar"`
	Currency    int64                     `json:"currency"`
	MaxCurrency int64                     `json:"maxCurrency,omitempty"`
}

// Store holds the canonical slots and currency for one agent.
type Store struct {
	ID    string         `json:"id"`
	Owner models.AgentID `json:"owner"`

	general   []ItemStack
	equipment [EquipSlotCount]ItemStack
	hotbar    [HotbarSize]ItemStack

	currency    int64
	maxCurrency int64

	// limits provides stack limits from the catalog.
	limits Limits
}

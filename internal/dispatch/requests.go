package dispatch

import (
	"github.com/gravitas-games/stationhost/internal/catalog"
	"github.com/gravitas-games/stationhost/internal/station"
	"github.com/gravitas-games/stationhost/pkg/models"
)

// Kind names a request type. The values double as wire message types.
type Kind string

const (
	KindOpenStation    Kind = "open_station"
	KindCloseStation   Kind = "close_station"
	KindSelect         Kind = "select"
	KindPurchase       Kind = "purchase"
	KindSell           Kind = "sell"
	KindCombine        Kind = "combine"
	KindAbilityUnlock  Kind = "ability_unlock"
	KindAbilityAssign  Kind = "ability_assign"
	KindAbilityLevelUp Kind = "ability_level_up"
	KindCraft          Kind = "craft"
	KindCraftCancel    Kind = "craft_cancel"
)

// Header is common to every request. Originator is set by the transport
// from the authenticated connection, never from the payload.
type Header struct {
	Originator models.ParticipantID `json:"-"`
	Agent      models.AgentID       `json:"agent"`
	Station    models.StationID     `json:"station"`
}

// Request is anything the dispatcher accepts.
type Request interface {
	Kind() Kind
	header() Header
}

func (h Header) header() Header { return h }

// OpenStation opens a station view.
type OpenStation struct {
	Header
	View string `json:"view,omitempty"`
}

// CloseStation closes a station view.
type CloseStation struct{ Header }

// Select points the session at an inventory slot, or clears it.
type Select struct {
	Header
	Source station.Source `json:"source"`
	Index  int            `json:"index"`
}

// Purchase buys one unit from a vendor slot.
type Purchase struct {
	Header
	VendorSlot int `json:"vendorSlot"`
}

// Sell moves a whole stack into vendor stock for a fixed reward.
type Sell struct {
	Header
	Source station.Source `json:"source"`
	Index  int            `json:"index"`
}

// Combine turns one stack of each reagent category into a derived item.
// Slots are general inventory indices.
type Combine struct {
	Header
	Slots []int `json:"slots"`
}

// AbilityUnlock unlocks an ability on the selected item.
type AbilityUnlock struct {
	Header
	Ability int `json:"ability"`
}

// AbilityAssign binds an ability (or abilitycode.NoAbility) to a control slot
// of the selected item.
type AbilityAssign struct {
	Header
	Slot    int `json:"slot"`
	Ability int `json:"ability"`
}

// AbilityLevelUp raises an unlocked ability of the selected item one level.
type AbilityLevelUp struct {
	Header
	Ability int `json:"ability"`
}

// Craft starts a craft job.
type Craft struct {
	Header
	Recipe   catalog.RecipeID `json:"recipe"`
	Quantity int              `json:"quantity"`
}

// CraftCancel cancels the running craft job at the station.
type CraftCancel struct{ Header }

func (OpenStation) Kind() Kind    { return KindOpenStation }
func (CloseStation) Kind() Kind   { return KindCloseStation }
func (Select) Kind() Kind         { return KindSelect }
func (Purchase) Kind() Kind       { return KindPurchase }
func (Sell) Kind() Kind           { return KindSell }
func (Combine) Kind() Kind        { return KindCombine }
func (AbilityUnlock) Kind() Kind  { return KindAbilityUnlock }
func (AbilityAssign) Kind() Kind  { return KindAbilityAssign }
func (AbilityLevelUp) Kind() Kind { return KindAbilityLevelUp }
func (Craft) Kind() Kind          { return KindCraft }
func (CraftCancel) Kind() Kind    { return KindCraftCancel }

// Package catalog holds the read-only economic catalog: item definitions,
// their reagent categories and abilities, crafting recipes and stations.
// It is loaded once at startup and injected wherever lookups are needed.
package catalog

import (
	"fmt"
	"strings"
	"time"

	"github.com/gravitas-games/stationhost/internal/inventory"
	"github.com/gravitas-games/stationhost/pkg/models"
)

// Category is the reagent classification of an item definition. It is
// decided when the catalog is loaded and never inferred at runtime.
type Category int

const (
	// CategoryNone marks items that cannot be used as reagents.
	CategoryNone Category = iota
	CategoryFlora
	CategoryEssence
	CategoryOre
	CategoryLiquid
)

// ReagentCategories lists every category a combination must cover.
var ReagentCategories = []Category{CategoryFlora, CategoryEssence, CategoryOre, CategoryLiquid}

// String returns a human-readable representation of the category.
func (c Category) String() string {
	switch c {
	case CategoryNone:
		return "none"
	case CategoryFlora:
		return "flora"
	case CategoryEssence:
		return "essence"
	case CategoryOre:
		return "ore"
	case CategoryLiquid:
		return "liquid"
	default:
		return "unknown"
	}
}

// ParseCategory converts a catalog string into a Category.
func ParseCategory(s string) (Category, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "none":
		return CategoryNone, nil
	case "flora":
		return CategoryFlora, nil
	case "essence":
		return CategoryEssence, nil
	case "ore":
		return CategoryOre, nil
	case "liquid":
		return CategoryLiquid, nil
	default:
		return CategoryNone, fmt.Errorf("unknown category %q", s)
	}
}

func (c Category) MarshalText() ([]byte, error) { return []byte(c.String()), nil }

func (c *Category) UnmarshalText(b []byte) error {
	v, err := ParseCategory(string(b))
	if err != nil {
		return err
	}
	*c = v
	return nil
}

// Ability describes one unlockable ability of an item definition.
type Ability struct {
	Index      int    `json:"index" yaml:"index"`
	Name       string `json:"name" yaml:"name"`
	UnlockCost int64  `json:"unlockCost" yaml:"unlock_cost"`
	MaxLevel   int    `json:"maxLevel" yaml:"max_level"`
	// LevelCost is multiplied by the current level to price the next level.
	LevelCost int64 `json:"levelCost" yaml:"level_cost"`
}

// CostToLevel returns the currency needed to go from level current to
// current+1.
func (a Ability) CostToLevel(current int) int64 {
	if current < 1 {
		current = 1
	}
	return a.LevelCost * int64(current)
}

// ItemDefinition captures metadata about an item.
type ItemDefinition struct {
	ID        inventory.DefinitionID `json:"id"`
	Key       string                 `json:"key"`
	Name      string                 `json:"name,omitempty"`
	Category  Category               `json:"category,omitempty"`
	MaxStack  uint8                  `json:"maxStack,omitempty"`
	Price     int64                  `json:"price,omitempty"`
	Abilities []Ability              `json:"abilities,omitempty"`
}

// Ability returns the ability with the given index.
func (d ItemDefinition) Ability(index int) (Ability, bool) {
	for _, a := range d.Abilities {
		if a.Index == index {
			return a, true
		}
	}
	return Ability{}, false
}

// StationKind is the single transaction type a station offers.
type StationKind string

const (
	StationVendor   StationKind = "vendor"
	StationCombiner StationKind = "combiner"
	StationUpgrader StationKind = "upgrader"
	StationCrafter  StationKind = "crafter"
)

// Valid reports whether k is a known kind.
func (k StationKind) Valid() bool {
	switch k {
	case StationVendor, StationCombiner, StationUpgrader, StationCrafter:
		return true
	}
	return false
}

// Station describes an interaction point.
type Station struct {
	ID   models.StationID `json:"id"`
	Kind StationKind      `json:"kind"`
	// Capacity is the number of stock slots a vendor holds.
	Capacity int `json:"capacity,omitempty"`
	// Stock seeds a vendor's inventory the first time it is created.
	Stock []inventory.ItemStack `json:"stock,omitempty"`
	// CraftSpeed and CraftYield scale jobs at a crafter; zero means 1.
	CraftSpeed float64 `json:"craftSpeed,omitempty"`
	CraftYield float64 `json:"craftYield,omitempty"`
}

// RecipeID uniquely identifies a recipe.
type RecipeID string

// Requirement specifies an input item for a recipe.
type Requirement struct {
	Item     inventory.DefinitionID `json:"item"`
	Quantity int                    `json:"quantity"`
}

// Yield specifies an output item from a recipe.
type Yield struct {
	Item     inventory.DefinitionID `json:"item"`
	Quantity int                    `json:"quantity"`
}

// Recipe defines the transformation rules for crafting.
type Recipe struct {
	ID       RecipeID      `json:"id"`
	Name     string        `json:"name"`
	Category string        `json:"category,omitempty"`
	Inputs   []Requirement `json:"inputs"`
	Outputs  []Yield       `json:"outputs"`
	Duration time.Duration `json:"duration"`
}

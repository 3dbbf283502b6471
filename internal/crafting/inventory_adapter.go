package crafting

import (
	"github.com/gravitas-games/stationhost/internal/holdings"
	"github.com/gravitas-games/stationhost/internal/inventory"
	"github.com/gravitas-games/stationhost/pkg/models"
)

// HoldingsInventories resolves agents through the holdings registry, so job
// completion takes the same per-store lock as requests do.
type HoldingsInventories struct {
	Registry *holdings.Registry
}

// NewHoldingsInventories wraps a holdings registry.
func NewHoldingsInventories(r *holdings.Registry) *HoldingsInventories {
	return &HoldingsInventories{Registry: r}
}

// WithInventory runs fn with the agent's store held exclusively.
func (p *HoldingsInventories) WithInventory(agent models.AgentID, fn func(*inventory.Store) error) error {
	return p.Registry.WithInventory(holdings.AgentKey(agent), fn)
}

package crafting

import (
	"math"
	"time"

	"github.com/gravitas-games/stationhost/internal/catalog"
	"github.com/gravitas-games/stationhost/pkg/models"
)

// Modifiers adjust a craft. Input costs are never modified: a cancelled job
// must refund exactly the recipe inputs.
type Modifiers struct {
	OutputYield float64  `json:"outputYield"` // Multiplier for output quantities (1.2 = 20% bonus)
	TimeSpeed   float64  `json:"timeSpeed"`   // Multiplier for duration (0.5 = 50% faster)
	Source      string   `json:"source"`
	Tags        []string `json:"tags"`
}

// DefaultModifiers returns identity modifiers (no effect).
func DefaultModifiers() Modifiers {
	return Modifiers{OutputYield: 1.0, TimeSpeed: 1.0}
}

// Combine stacks multiple modifiers multiplicatively.
func (m Modifiers) Combine(other Modifiers) Modifiers {
	tags := make([]string, 0, len(m.Tags)+len(other.Tags))
	tags = append(tags, m.Tags...)
	tags = append(tags, other.Tags...)

	source := m.Source
	if source != "" && other.Source != "" {
		source = source + "+" + other.Source
	} else if other.Source != "" {
		source = other.Source
	}
	return Modifiers{
		OutputYield: m.OutputYield * other.OutputYield,
		TimeSpeed:   m.TimeSpeed * other.TimeSpeed,
		Source:      source,
		Tags:        tags,
	}
}

// ModifierSource provides modifiers for craft jobs, e.g. station upgrades or
// participant buffs.
type ModifierSource interface {
	GetModifiers(station models.StationID, owner models.ParticipantID, recipe catalog.RecipeID) Modifiers
}

// StationLookup resolves catalog stations.
type StationLookup interface {
	Station(id models.StationID) (catalog.Station, bool)
}

// StationModifiers applies the craft speed and yield a station declares in
// the catalog.
type StationModifiers struct {
	Stations StationLookup
}

// GetModifiers implements ModifierSource.
func (s StationModifiers) GetModifiers(station models.StationID, _ models.ParticipantID, _ catalog.RecipeID) Modifiers {
	m := DefaultModifiers()
	st, ok := s.Stations.Station(station)
	if !ok {
		return m
	}
	if st.CraftSpeed > 0 {
		m.TimeSpeed = st.CraftSpeed
	}
	if st.CraftYield > 0 {
		m.OutputYield = st.CraftYield
	}
	if st.CraftSpeed > 0 || st.CraftYield > 0 {
		m.Source = "station:" + string(st.ID)
	}
	return m
}

// scaleOutputs multiplies recipe outputs by quantity and the yield modifier.
// Rounds down to prevent duplication.
func scaleOutputs(outputs []catalog.Yield, quantity int, modifier float64) []catalog.Yield {
	if len(outputs) == 0 {
		return nil
	}
	result := make([]catalog.Yield, 0, len(outputs))
	for _, y := range outputs {
		n := int(math.Floor(float64(y.Quantity*quantity) * modifier))
		if n <= 0 {
			continue
		}
		result = append(result, catalog.Yield{Item: y.Item, Quantity: n})
	}
	return result
}

// scaleDuration applies quantity and the time modifier to a recipe duration.
func scaleDuration(d time.Duration, quantity int, modifier float64) time.Duration {
	if d <= 0 {
		return 0
	}
	adjusted := math.Round(float64(d) * float64(quantity) * modifier)
	if adjusted < 0 {
		return 0
	}
	return time.Duration(adjusted)
}

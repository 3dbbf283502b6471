package dispatch

import (
	"github.com/gravitas-games/stationhost/internal/audit"
	"github.com/gravitas-games/stationhost/internal/crafting"
	"github.com/gravitas-games/stationhost/internal/inventory"
	"github.com/gravitas-games/stationhost/internal/station"
	"github.com/gravitas-games/stationhost/pkg/models"
)

// Mirror receives committed state for replication. Calls happen after the
// holdings are released; arguments are snapshots.
type Mirror interface {
	InventoryChanged(controller models.ParticipantID, snap inventory.Snapshot)
	VendorChanged(st models.StationID, snap inventory.Snapshot)
	SelectionChanged(participant models.ParticipantID, replica station.Replica)
	CraftChanged(st models.StationID, view crafting.View)
}

// Auditor records every outcome.
type Auditor interface {
	Record(r audit.Record) error
}

// NopMirror drops every update.
type NopMirror struct{}

func (NopMirror) InventoryChanged(models.ParticipantID, inventory.Snapshot) {}
func (NopMirror) VendorChanged(models.StationID, inventory.Snapshot)        {}
func (NopMirror) SelectionChanged(models.ParticipantID, station.Replica)    {}
func (NopMirror) CraftChanged(models.StationID, crafting.View)              {}

// effects collects what to replicate once the lease is released.
type effects struct {
	inventories map[models.ParticipantID]inventory.Snapshot
	vendors     map[models.StationID]inventory.Snapshot
	selections  []selectionEffect
	crafts      []craftEffect
}

type selectionEffect struct {
	participant models.ParticipantID
	replica     station.Replica
}

type craftEffect struct {
	station models.StationID
	view    crafting.View
}

func (e *effects) inventory(controller models.ParticipantID, s *inventory.Store) {
	if e.inventories == nil {
		e.inventories = make(map[models.ParticipantID]inventory.Snapshot)
	}
	e.inventories[controller] = s.Snapshot()
}

func (e *effects) vendor(st models.StationID, s *inventory.Store) {
	if e.vendors == nil {
		e.vendors = make(map[models.StationID]inventory.Snapshot)
	}
	e.vendors[st] = s.Snapshot()
}

func (e *effects) selection(s station.Session) {
	e.selections = append(e.selections, selectionEffect{participant: s.Participant, replica: s.Replicated()})
}

func (e *effects) closed(participant models.ParticipantID, st models.StationID) {
	e.selections = append(e.selections, selectionEffect{participant: participant, replica: station.Closed(st)})
}

func (e *effects) craft(v crafting.View) {
	e.crafts = append(e.crafts, craftEffect{station: v.Station, view: v})
}

func (e *effects) flush(m Mirror) {
	for p, snap := range e.inventories {
		m.InventoryChanged(p, snap)
	}
	for st, snap := range e.vendors {
		m.VendorChanged(st, snap)
	}
	for _, s := range e.selections {
		m.SelectionChanged(s.participant, s.replica)
	}
	for _, c := range e.crafts {
		m.CraftChanged(c.station, c.view)
	}
}

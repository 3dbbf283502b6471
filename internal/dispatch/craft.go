package dispatch

import (
	"github.com/gravitas-games/stationhost/internal/catalog"
)

// craft starts a job. Job transitions reach observers through the craft
// manager's event bus in the order they happen; only the inventory change is
// mirrored here.
func (d *Dispatcher) craft(r Craft, fx *effects) error {
	if _, err := d.session(r.Header, catalog.StationCrafter); err != nil {
		return err
	}
	lease, store, err := d.lease(r.Header)
	if err != nil {
		return err
	}
	defer lease.Release()

	if _, err := d.crafting.Start(store, r.Station, r.Originator, r.Agent, r.Recipe, r.Quantity); err != nil {
		return err
	}
	d.committed(r.Header, store, fx)
	return nil
}

func (d *Dispatcher) craftCancel(r CraftCancel, fx *effects) error {
	if _, err := d.session(r.Header, catalog.StationCrafter); err != nil {
		return err
	}
	lease, store, err := d.lease(r.Header)
	if err != nil {
		return err
	}
	defer lease.Release()

	if _, err := d.crafting.Cancel(store, r.Station, r.Originator); err != nil {
		return err
	}
	d.committed(r.Header, store, fx)
	return nil
}

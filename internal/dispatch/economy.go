package dispatch

import (
	"github.com/gravitas-games/stationhost/internal/catalog"
	"github.com/gravitas-games/stationhost/internal/holdings"
	"github.com/gravitas-games/stationhost/internal/inventory"
	"github.com/gravitas-games/stationhost/internal/txn"
)

// price returns what one unit of def costs at a vendor.
func (d *Dispatcher) price(def inventory.DefinitionID) int64 {
	if d.economy.UseCatalogPrices {
		if item, ok := d.catalog.Items.Lookup(def); ok && item.Price > 0 {
			return item.Price
		}
	}
	return d.economy.BuyPrice
}

// purchase moves one unit from a vendor slot to the buyer for the price.
// When the unit does not fit, the payment is refunded and the vendor slot
// restored by the engine.
func (d *Dispatcher) purchase(r Purchase, fx *effects) error {
	if _, err := d.session(r.Header, catalog.StationVendor); err != nil {
		return err
	}
	vendorKey := holdings.VendorKey(r.Station)
	lease, buyer, err := d.lease(r.Header, vendorKey)
	if err != nil {
		return err
	}
	defer lease.Release()
	vendor := lease.Store(vendorKey)

	ref := inventory.General(r.VendorSlot)
	if err := txn.SlotHolds(vendor, ref, 0)(); err != nil {
		return err
	}
	item := vendor.GetSlot(ref)
	cost := d.price(item.Def)

	_, err = d.engine.Execute(txn.Plan{
		Name:    string(KindPurchase),
		Checks:  []txn.Check{txn.HasCurrency(buyer, cost)},
		Consume: []txn.Step{txn.Spend(buyer, cost), txn.Extract(vendor, ref, 1)},
		Produce: []txn.Step{txn.Deposit(buyer, item.Def, 1, item.Token)},
	})
	if err != nil {
		return err
	}
	d.committed(r.Header, buyer, fx)
	fx.vendor(r.Station, vendor)
	return nil
}

// sell moves a whole stack from the seller into vendor stock and credits
// the fixed reward.
func (d *Dispatcher) sell(r Sell, fx *effects) error {
	if _, err := d.session(r.Header, catalog.StationVendor); err != nil {
		return err
	}
	ref, err := sourceRef(r.Source, r.Index)
	if err != nil {
		return err
	}
	vendorKey := holdings.VendorKey(r.Station)
	lease, seller, err := d.lease(r.Header, vendorKey)
	if err != nil {
		return err
	}
	defer lease.Release()
	vendor := lease.Store(vendorKey)

	if err := txn.SlotHolds(seller, ref, 0)(); err != nil {
		return err
	}
	stack := seller.GetSlot(ref)

	_, err = d.engine.Execute(txn.Plan{
		Name: string(KindSell),
		Checks: []txn.Check{
			txn.HasRoomFor(vendor, stack.Def, stack.Qty, stack.Token),
		},
		Consume: []txn.Step{txn.ExtractAll(seller, ref)},
		Produce: []txn.Step{
			txn.DepositStack(vendor, stack),
			txn.Credit(seller, d.economy.SellReward),
		},
	})
	if err != nil {
		return err
	}
	d.committed(r.Header, seller, fx)
	fx.vendor(r.Station, vendor)
	return nil
}

// combine consumes the selected reagent stacks whole and produces one
// derived item whose token identifies the reagent multiset.
func (d *Dispatcher) combine(r Combine, fx *effects) error {
	if _, err := d.session(r.Header, catalog.StationCombiner); err != nil {
		return err
	}
	out, ok := d.catalog.Items.Lookup(d.economy.CombineOutput)
	if !ok {
		return txn.Reject(txn.PreconditionFailed, "combiner output is not configured")
	}
	lease, store, err := d.lease(r.Header)
	if err != nil {
		return err
	}
	defer lease.Release()

	refs := make([]inventory.SlotRef, 0, len(r.Slots))
	for _, i := range r.Slots {
		refs = append(refs, inventory.General(i))
	}
	groups, err := txn.MatchCategories(store, d.catalog.Items, refs)
	if err != nil {
		return err
	}
	token := txn.DeriveToken(groups)

	_, err = d.engine.Execute(txn.Plan{
		Name:    string(KindCombine),
		Consume: txn.ConsumeReagents(store, groups),
		Produce: []txn.Step{txn.Deposit(store, out.ID, 1, token)},
	})
	if err != nil {
		return err
	}
	d.committed(r.Header, store, fx)
	return nil
}

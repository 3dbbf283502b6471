package dispatch

import (
	"github.com/gravitas-games/stationhost/internal/abilitycode"
	"github.com/gravitas-games/stationhost/internal/catalog"
	"github.com/gravitas-games/stationhost/internal/inventory"
	"github.com/gravitas-games/stationhost/internal/txn"
)

// target is the selected item of an upgrader session, re-read from the store.
type target struct {
	ref    inventory.SlotRef
	stack  inventory.ItemStack
	item   catalog.ItemDefinition
	config abilitycode.Config
}

// selectedItem resolves and re-validates the upgrader selection. The caller
// holds store.
func (d *Dispatcher) selectedItem(h Header, store *inventory.Store) (target, error) {
	s, err := d.session(h, catalog.StationUpgrader)
	if err != nil {
		return target{}, err
	}
	ref, ok := s.Selection.Ref()
	if !ok {
		return target{}, txn.Reject(txn.PreconditionFailed, "no item selected")
	}
	if err := txn.SlotHolds(store, ref, s.Selection.Definition)(); err != nil {
		return target{}, err
	}
	stack := store.GetSlot(ref)
	item, ok := d.catalog.Items.Lookup(stack.Def)
	if !ok || len(item.Abilities) == 0 {
		return target{}, txn.Rejectf(txn.PreconditionFailed, "item %d has no abilities", stack.Def)
	}
	cfg, err := abilitycode.Decode(stack.Token)
	if err != nil {
		return target{}, txn.Wrap(txn.DecodeFailed, "item token is malformed", err)
	}
	return target{ref: ref, stack: stack, item: item, config: cfg}, nil
}

func (t target) ability(index int) (catalog.Ability, error) {
	a, ok := t.item.Ability(index)
	if !ok {
		return catalog.Ability{}, txn.Rejectf(txn.PreconditionFailed, "item %s has no ability %d", t.item.Key, index)
	}
	return a, nil
}

// rewrite charges cost and writes next back to the selected item in one
// plan. A failed rewrite refunds the charge.
func (d *Dispatcher) rewrite(name Kind, store *inventory.Store, t target, next abilitycode.Config, cost int64) error {
	token, err := abilitycode.Encode(next)
	if err != nil {
		return txn.Wrap(txn.EncodeOverflow, "updated configuration does not fit", err)
	}
	plan := txn.Plan{
		Name:    string(name),
		Produce: []txn.Step{txn.Rewrite(store, t.ref, t.stack.Def, token)},
	}
	if cost > 0 {
		plan.Checks = append(plan.Checks, txn.HasCurrency(store, cost))
		plan.Consume = append(plan.Consume, txn.Spend(store, cost))
	}
	_, err = d.engine.Execute(plan)
	return err
}

func (d *Dispatcher) abilityUnlock(r AbilityUnlock, fx *effects) error {
	lease, store, err := d.lease(r.Header)
	if err != nil {
		return err
	}
	defer lease.Release()

	t, err := d.selectedItem(r.Header, store)
	if err != nil {
		return err
	}
	a, err := t.ability(r.Ability)
	if err != nil {
		return err
	}
	next, err := abilitycode.Unlock(t.config, r.Ability)
	if err != nil {
		return err
	}
	if err := d.rewrite(KindAbilityUnlock, store, t, next, a.UnlockCost); err != nil {
		return err
	}
	d.committed(r.Header, store, fx)
	return nil
}

func (d *Dispatcher) abilityAssign(r AbilityAssign, fx *effects) error {
	lease, store, err := d.lease(r.Header)
	if err != nil {
		return err
	}
	defer lease.Release()

	t, err := d.selectedItem(r.Header, store)
	if err != nil {
		return err
	}
	if r.Ability != abilitycode.NoAbility {
		if _, err := t.ability(r.Ability); err != nil {
			return err
		}
	}
	next, err := abilitycode.Assign(t.config, r.Slot, r.Ability)
	if err != nil {
		return err
	}
	if err := d.rewrite(KindAbilityAssign, store, t, next, 0); err != nil {
		return err
	}
	d.committed(r.Header, store, fx)
	return nil
}

func (d *Dispatcher) abilityLevelUp(r AbilityLevelUp, fx *effects) error {
	lease, store, err := d.lease(r.Header)
	if err != nil {
		return err
	}
	defer lease.Release()

	t, err := d.selectedItem(r.Header, store)
	if err != nil {
		return err
	}
	a, err := t.ability(r.Ability)
	if err != nil {
		return err
	}
	current := t.config.Level(r.Ability)
	if current == 0 {
		return txn.Wrap(txn.PreconditionFailed, "ability is locked", abilitycode.ErrNotUnlocked)
	}
	next, err := abilitycode.SetLevel(t.config, r.Ability, current+1, a.MaxLevel)
	if err != nil {
		return err
	}
	if err := d.rewrite(KindAbilityLevelUp, store, t, next, a.CostToLevel(current)); err != nil {
		return err
	}
	d.committed(r.Header, store, fx)
	return nil
}

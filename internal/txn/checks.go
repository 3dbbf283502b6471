package txn

import "github.com/gravitas-games/stationhost/internal/inventory"

// HasCurrency requires a balance of at least amount.
func HasCurrency(s *inventory.Store, amount int64) Check {
	return func() error {
		if amount < 0 || s.Currency() < amount {
			return Rejectf(PreconditionFailed, "need %d currency, have %d", amount, s.Currency())
		}
		return nil
	}
}

// HasItems requires qty units of def across general and hotbar slots.
func HasItems(s *inventory.Store, def inventory.DefinitionID, qty int) Check {
	return func() error {
		if have := s.Count(def); have < qty {
			return Rejectf(PreconditionFailed, "need %d of item %d, have %d", qty, def, have)
		}
		return nil
	}
}

// HasRoomFor requires that qty units of def with token fit without
// leftover.
func HasRoomFor(s *inventory.Store, def inventory.DefinitionID, qty uint8, token string) Check {
	return func() error {
		if _, left := s.Placements(def, qty, token); left > 0 {
			return Rejectf(PreconditionFailed, "no room for %d of item %d", left, def)
		}
		return nil
	}
}

// SlotHolds requires ref to be in range and hold a non-empty stack of def.
// A zero def accepts any non-empty stack.
func SlotHolds(s *inventory.Store, ref inventory.SlotRef, def inventory.DefinitionID) Check {
	return func() error {
		if !s.InRange(ref) {
			return Rejectf(PreconditionFailed, "%s slot %d out of range", ref.Area, ref.Index)
		}
		cur := s.GetSlot(ref)
		if cur.IsEmpty() {
			return Rejectf(PreconditionFailed, "%s slot %d is empty", ref.Area, ref.Index)
		}
		if def != 0 && cur.Def != def {
			return Rejectf(PreconditionFailed, "%s slot %d holds item %d, not %d", ref.Area, ref.Index, cur.Def, def)
		}
		return nil
	}
}

package txn

import (
	"errors"
	"fmt"

	"github.com/gravitas-games/stationhost/internal/inventory"
)

var (
	errSlotEmpty     = errors.New("slot empty")
	errSlotRange     = errors.New("slot out of range")
	errShortQuantity = errors.New("not enough items")
	errFunds         = errors.New("insufficient currency")
	errNoRoom        = errors.New("destination full")
)

// Step is one journaled mutation.
type Step interface {
	apply(tx *pending) error
	String() string
}

type extractStep struct {
	store *inventory.Store
	ref   inventory.SlotRef
	qty   uint8
	all   bool
}

// Extract removes exactly qty units from one slot.
func Extract(s *inventory.Store, ref inventory.SlotRef, qty uint8) Step {
	return &extractStep{store: s, ref: ref, qty: qty}
}

// ExtractAll removes the whole stack in one slot.
func ExtractAll(s *inventory.Store, ref inventory.SlotRef) Step {
	return &extractStep{store: s, ref: ref, all: true}
}

func (st *extractStep) String() string {
	return fmt.Sprintf("extract %s[%d]", st.ref.Area, st.ref.Index)
}

func (st *extractStep) apply(tx *pending) error {
	if !st.store.InRange(st.ref) {
		return errSlotRange
	}
	cur := st.store.GetSlot(st.ref)
	if cur.IsEmpty() {
		return errSlotEmpty
	}
	qty := st.qty
	if st.all {
		qty = cur.Qty
	}
	if qty == 0 || cur.Qty < qty {
		return errShortQuantity
	}
	tx.saveSlot(st.store, st.ref)
	removed, ok := st.store.TryExtract(st.ref, qty)
	if !ok {
		return errSlotEmpty
	}
	tx.receipt.Extracted = append(tx.receipt.Extracted, removed)
	return nil
}

type extractDefStep struct {
	store *inventory.Store
	def   inventory.DefinitionID
	qty   int
}

// ExtractDefinition removes qty units of def, spanning general then hotbar
// slots in index order.
func ExtractDefinition(s *inventory.Store, def inventory.DefinitionID, qty int) Step {
	return &extractDefStep{store: s, def: def, qty: qty}
}

func (st *extractDefStep) String() string {
	return fmt.Sprintf("extract %dx%d", st.qty, st.def)
}

func (st *extractDefStep) apply(tx *pending) error {
	if st.qty <= 0 || st.store.Count(st.def) < st.qty {
		return errShortQuantity
	}
	remaining := st.qty
	for _, ref := range st.store.Find(st.def) {
		if remaining == 0 {
			break
		}
		take := int(st.store.GetSlot(ref).Qty)
		if take > remaining {
			take = remaining
		}
		tx.saveSlot(st.store, ref)
		removed, ok := st.store.TryExtract(ref, uint8(take))
		if !ok {
			return errShortQuantity
		}
		tx.receipt.Extracted = append(tx.receipt.Extracted, removed)
		remaining -= int(removed.Qty)
	}
	if remaining > 0 {
		return errShortQuantity
	}
	return nil
}

type spendStep struct {
	store  *inventory.Store
	amount int64
}

// Spend deducts currency.
func Spend(s *inventory.Store, amount int64) Step {
	return &spendStep{store: s, amount: amount}
}

func (st *spendStep) String() string { return fmt.Sprintf("spend %d", st.amount) }

func (st *spendStep) apply(tx *pending) error {
	tx.saveCurrency(st.store)
	if !st.store.TrySpendCurrency(st.amount) {
		return errFunds
	}
	tx.receipt.Spent += st.amount
	return nil
}

type depositStep struct {
	store *inventory.Store
	def   inventory.DefinitionID
	qty   uint8
	token string
}

// Deposit adds qty units of def with token. Any leftover fails the step.
func Deposit(s *inventory.Store, def inventory.DefinitionID, qty uint8, token string) Step {
	return &depositStep{store: s, def: def, qty: qty, token: token}
}

// DepositStack adds a removed stack back as-is.
func DepositStack(s *inventory.Store, stack inventory.ItemStack) Step {
	return Deposit(s, stack.Def, stack.Qty, stack.Token)
}

func (st *depositStep) String() string {
	return fmt.Sprintf("deposit %dx%d", st.qty, st.def)
}

func (st *depositStep) apply(tx *pending) error {
	if st.def == 0 || st.qty == 0 {
		return errShortQuantity
	}
	placements, leftover := st.store.Placements(st.def, st.qty, st.token)
	for _, p := range placements {
		tx.saveSlot(st.store, p.Ref)
		if !st.store.TrySetSlot(p.Ref, p.After) {
			return errNoRoom
		}
	}
	tx.receipt.Deposited = append(tx.receipt.Deposited, placements...)
	if leftover > 0 {
		return Rejectf(CapacityExceeded, "%d of %d units did not fit", leftover, st.qty)
	}
	return nil
}

type creditStep struct {
	store  *inventory.Store
	amount int64
}

// Credit adds currency, saturating at the store maximum.
func Credit(s *inventory.Store, amount int64) Step {
	return &creditStep{store: s, amount: amount}
}

func (st *creditStep) String() string { return fmt.Sprintf("credit %d", st.amount) }

func (st *creditStep) apply(tx *pending) error {
	if st.amount < 0 {
		return errFunds
	}
	tx.saveCurrency(st.store)
	st.store.AddCurrency(st.amount)
	tx.receipt.Credited += st.amount
	return nil
}

type rewriteStep struct {
	store *inventory.Store
	ref   inventory.SlotRef
	def   inventory.DefinitionID
	token string
}

// Rewrite replaces the token of the stack in ref, which must still hold def.
func Rewrite(s *inventory.Store, ref inventory.SlotRef, def inventory.DefinitionID, token string) Step {
	return &rewriteStep{store: s, ref: ref, def: def, token: token}
}

func (st *rewriteStep) String() string {
	return fmt.Sprintf("rewrite %s[%d]", st.ref.Area, st.ref.Index)
}

func (st *rewriteStep) apply(tx *pending) error {
	cur := st.store.GetSlot(st.ref)
	if cur.IsEmpty() {
		return errSlotEmpty
	}
	if cur.Def != st.def {
		return Rejectf(PreconditionFailed, "slot no longer holds item %d", st.def)
	}
	if len(st.token) > inventory.MaxTokenLen {
		return Rejectf(EncodeOverflow, "token length %d exceeds %d", len(st.token), inventory.MaxTokenLen)
	}
	tx.saveSlot(st.store, st.ref)
	next := cur
	next.Token = st.token
	if !st.store.TrySetSlot(st.ref, next) {
		return errNoRoom
	}
	return nil
}

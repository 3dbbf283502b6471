package inventory

import "testing"

type fixedLimits map[DefinitionID]uint8

func (f fixedLimits) MaxStack(def DefinitionID) uint8 { return f[def] }

func TestAddItemMergesBeforeFillingEmpty(t *testing.T) {
	s := New("inv1", "agent1", 4, WithLimits(fixedLimits{1: 10, 2: 10}))
	if !s.TrySetSlot(General(2), ItemStack{Def: 1, Qty: 7}) {
		t.Fatalf("unexpected set failure")
	}
	if left := s.AddItem(1, 5, ""); left != 0 {
		t.Fatalf("expected full placement, leftover %d", left)
	}
	if got := s.GetSlot(General(2)); got.Qty != 10 {
		t.Fatalf("expected merge to top up slot 2 to 10, got %d", got.Qty)
	}
	if got := s.GetSlot(General(0)); got.Def != 1 || got.Qty != 2 {
		t.Fatalf("expected remainder in first empty slot, got %+v", got)
	}
}

func TestAddItemTokenSeparatesStacks(t *testing.T) {
	s := New("inv1", "agent1", 2, WithLimits(fixedLimits{1: 10}))
	s.AddItem(1, 1, "aa")
	s.AddItem(1, 1, "bb")
	if s.GetSlot(General(0)).Token != "aa" || s.GetSlot(General(1)).Token != "bb" {
		t.Fatalf("expected tokens to occupy separate slots")
	}
	if left := s.AddItem(1, 1, "cc"); left != 1 {
		t.Fatalf("expected leftover 1 on full store, got %d", left)
	}
}

func TestPlacementsDoesNotMutate(t *testing.T) {
	s := New("inv1", "agent1", 3, WithLimits(fixedLimits{1: 4}))
	before := s.Clone()
	plan, left := s.Placements(1, 9, "")
	if len(plan) != 3 || left != 0 {
		t.Fatalf("expected 3 placements and no leftover, got %d/%d", len(plan), left)
	}
	if !s.Equal(before) {
		t.Fatalf("placements mutated the store")
	}
	if _, left := s.Placements(1, 13, ""); left != 1 {
		t.Fatalf("expected leftover 1, got %d", left)
	}
}

func TestUnknownDefinitionRejected(t *testing.T) {
	s := New("inv1", "agent1", 2, WithLimits(fixedLimits{1: 4}))
	if s.TrySetSlot(General(0), ItemStack{Def: 9, Qty: 1}) {
		t.Fatalf("expected unknown definition to be rejected")
	}
	if left := s.AddItem(9, 1, ""); left != 1 {
		t.Fatalf("expected unknown definition to stay unplaced")
	}
}

func TestTrySetSlotInvariants(t *testing.T) {
	s := New("inv1", "agent1", 2, WithLimits(fixedLimits{1: 4}))
	if s.TrySetSlot(General(5), ItemStack{Def: 1, Qty: 1}) {
		t.Fatalf("expected out of range failure")
	}
	if s.TrySetSlot(General(0), ItemStack{Def: 1, Qty: 5}) {
		t.Fatalf("expected stack limit failure")
	}
	long := make([]byte, MaxTokenLen+1)
	for i := range long {
		long[i] = 'a'
	}
	if s.TrySetSlot(General(0), ItemStack{Def: 1, Qty: 1, Token: string(long)}) {
		t.Fatalf("expected oversized token failure")
	}
	if !s.TrySetSlot(General(0), ItemStack{Qty: 3, Token: "x"}) {
		t.Fatalf("expected empty write to succeed")
	}
	if got := s.GetSlot(General(0)); got != (ItemStack{}) {
		t.Fatalf("expected normalized empty slot, got %+v", got)
	}
}

func TestTryExtract(t *testing.T) {
	s := New("inv1", "agent1", 1)
	s.TrySetSlot(Hotbar(3), ItemStack{Def: 2, Qty: 3, Token: "tok"})
	got, ok := s.TryExtract(Hotbar(3), 5)
	if !ok || got.Qty != 3 || got.Token != "tok" {
		t.Fatalf("unexpected extract result %+v ok=%v", got, ok)
	}
	if !s.GetSlot(Hotbar(3)).IsEmpty() {
		t.Fatalf("expected slot cleared")
	}
	if _, ok := s.TryExtract(Hotbar(3), 1); ok {
		t.Fatalf("expected empty extract to fail")
	}
	if _, ok := s.TryExtract(General(0), 0); ok {
		t.Fatalf("expected zero qty extract to fail")
	}
}

func TestCurrencySaturates(t *testing.T) {
	s := New("inv1", "agent1", 0, WithMaxCurrency(100), WithCurrency(90))
	s.AddCurrency(50)
	if s.Currency() != 100 {
		t.Fatalf("expected saturation at 100, got %d", s.Currency())
	}
	if s.TrySpendCurrency(101) {
		t.Fatalf("expected overspend failure")
	}
	if s.TrySpendCurrency(-1) {
		t.Fatalf("expected negative spend failure")
	}
	if !s.TrySpendCurrency(100) || s.Currency() != 0 {
		t.Fatalf("expected exact spend to empty balance")
	}
}

func TestResizeEvictsTail(t *testing.T) {
	s := New("inv1", "agent1", 3)
	s.TrySetSlot(General(2), ItemStack{Def: 1, Qty: 1})
	evicted := s.Resize(2)
	if len(evicted) != 1 || s.GeneralSize() != 2 {
		t.Fatalf("expected one evicted stack, got %d", len(evicted))
	}
	if s.Resize(4) != nil || s.GeneralSize() != 4 {
		t.Fatalf("expected growth without eviction")
	}
}

func TestResizeKeepingRelocates(t *testing.T) {
	lim := fixedLimits{1: 10, 2: 1}
	s := New("inv1", "agent1", 4, WithLimits(lim))
	s.TrySetSlot(General(0), ItemStack{Def: 1, Qty: 5})
	s.TrySetSlot(General(2), ItemStack{Def: 2, Qty: 1, Token: "tok"})
	s.TrySetSlot(General(3), ItemStack{Def: 1, Qty: 4})

	if !s.ResizeKeeping(2) {
		t.Fatalf("expected evicted stacks to fit")
	}
	if s.GeneralSize() != 2 || s.Count(1) != 9 {
		t.Fatalf("expected 2 slots holding 9 units, got %d slots %d units", s.GeneralSize(), s.Count(1))
	}
	if got := s.GetSlot(General(1)); got != (ItemStack{Def: 2, Qty: 1, Token: "tok"}) {
		t.Fatalf("expected tokened stack relocated intact, got %+v", got)
	}

	before := s.Clone()
	if s.ResizeKeeping(1) {
		t.Fatalf("expected shrink to fail when stacks do not fit")
	}
	if !s.Equal(before) {
		t.Fatalf("failed shrink changed the store")
	}
}

func TestSerializationRoundTrip(t *testing.T) {
	lim := fixedLimits{1: 10, 2: 1}
	s := New("inv1", "agent1", 3, WithLimits(lim), WithCurrency(42))
	s.AddItem(1, 12, "")
	s.TrySetSlot(Equip(EquipHead), ItemStack{Def: 2, Qty: 1, Token: "abc"})
	data, err := s.Serialize()
	if err != nil {
		t.Fatalf("serialize error: %v", err)
	}
	out := New("", "", 0, WithLimits(lim))
	if err := out.Deserialize(data); err != nil {
		t.Fatalf("deserialize error: %v", err)
	}
	if !out.Equal(s) || out.ID != s.ID || out.Owner != s.Owner {
		t.Fatalf("mismatch after roundtrip")
	}
}

func TestDeserializeRejectsOverLimit(t *testing.T) {
	out := New("x", "", 0, WithLimits(fixedLimits{1: 2}))
	if err := out.Deserialize([]byte(`{"id":"a","general":[{"def":1,"qty":5}]}`)); err == nil {
		t.Fatalf("expected over-limit stack to fail")
	}
	if out.ID != "x" {
		t.Fatalf("store changed on failed deserialize")
	}
}

package station

import (
	"testing"

	"github.com/gravitas-games/stationhost/internal/catalog"
	"github.com/gravitas-games/stationhost/internal/inventory"
)

var altar = catalog.Station{ID: "altar", Kind: catalog.StationUpgrader}

func TestSelectionLifecycle(t *testing.T) {
	tbl := NewTable()
	if _, err := tbl.Select("altar", "p1", SourceGeneral, 0, 5); err != ErrNotOpen {
		t.Fatalf("expected ErrNotOpen, got %v", err)
	}
	s := tbl.Open(altar, "p1", "a1", "upgrade")
	if !s.Selection.IsNone() || s.Selection.Index != -1 {
		t.Fatalf("expected fresh session to have no selection")
	}
	s, err := tbl.Select("altar", "p1", SourceHotbar, 2, 5)
	if err != nil {
		t.Fatalf("select: %v", err)
	}
	if ref, ok := s.Selection.Ref(); !ok || ref != inventory.Hotbar(2) {
		t.Fatalf("unexpected ref %+v", ref)
	}
	s, _ = tbl.Clear("altar", "p1")
	if !s.Selection.IsNone() {
		t.Fatalf("expected cleared selection")
	}
	if !tbl.Close("altar", "p1") || tbl.Close("altar", "p1") {
		t.Fatalf("expected single successful close")
	}
}

func TestCloseAllOnDisconnect(t *testing.T) {
	tbl := NewTable()
	tbl.Open(altar, "p1", "a1", "")
	tbl.Open(catalog.Station{ID: "shop", Kind: catalog.StationVendor}, "p1", "a1", "")
	tbl.Open(altar, "p2", "a2", "")

	closed := tbl.CloseAll("p1")
	if len(closed) != 2 || closed[0].Station != "altar" {
		t.Fatalf("unexpected closed sessions %+v", closed)
	}
	if tbl.Count() != 1 {
		t.Fatalf("expected p2 session to remain")
	}
	if obs := tbl.Observers("altar"); len(obs) != 1 || obs[0].Participant != "p2" {
		t.Fatalf("unexpected observers %+v", obs)
	}
}

func TestRevalidateAfterShrink(t *testing.T) {
	store := inventory.New("a1", "a1", 4)
	store.TrySetSlot(inventory.General(3), inventory.ItemStack{Def: 5, Qty: 1})
	store.TrySetSlot(inventory.General(0), inventory.ItemStack{Def: 6, Qty: 1})

	tbl := NewTable()
	tbl.Open(altar, "p1", "a1", "")
	tbl.Open(catalog.Station{ID: "bench", Kind: catalog.StationCrafter}, "p1", "a1", "")
	tbl.Select("altar", "p1", SourceGeneral, 3, 5)
	tbl.Select("bench", "p1", SourceGeneral, 0, 6)

	if changed := tbl.Revalidate("a1", store); len(changed) != 0 {
		t.Fatalf("expected no change while slots still valid")
	}
	store.Resize(2)
	changed := tbl.Revalidate("a1", store)
	if len(changed) != 1 || changed[0].Station != "altar" {
		t.Fatalf("expected altar selection cleared, got %+v", changed)
	}
	s, _ := tbl.Get("bench", "p1")
	if s.Selection.Definition != 6 {
		t.Fatalf("bench selection should survive")
	}

	store.TrySetSlot(inventory.General(0), inventory.ItemStack{Def: 7, Qty: 1})
	if changed := tbl.Revalidate("a1", store); len(changed) != 1 {
		t.Fatalf("expected selection cleared when definition changes")
	}
}

func TestReplicatedSubset(t *testing.T) {
	tbl := NewTable()
	tbl.Open(altar, "p1", "a1", "upgrade")
	s, _ := tbl.Select("altar", "p1", SourceGeneral, 1, 9)
	r := s.Replicated()
	if !r.Open || r.Selection.Definition != 9 || r.Station != "altar" {
		t.Fatalf("unexpected replica %+v", r)
	}
	if c := Closed("altar"); c.Open || !c.Selection.IsNone() {
		t.Fatalf("unexpected closed replica %+v", c)
	}
}

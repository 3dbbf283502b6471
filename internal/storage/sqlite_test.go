package storage

import (
	"context"
	"errors"
	"path/filepath"
	"testing"

	"github.com/gravitas-games/stationhost/internal/inventory"
)

type stackLimits map[inventory.DefinitionID]uint8

func (l stackLimits) MaxStack(def inventory.DefinitionID) uint8 { return l[def] }

func openTemp(t *testing.T) *DB {
	t.Helper()
	db, err := Open(filepath.Join(t.TempDir(), "state", "host.db"))
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	t.Cleanup(func() { _ = db.Close() })
	return db
}

func TestInventoryRoundTrip(t *testing.T) {
	db := openTemp(t)
	ctx := context.Background()
	limits := stackLimits{7: 10, 40: 1}

	src := inventory.New("a1", "a1", 3, inventory.WithLimits(limits), inventory.WithCurrency(55))
	src.AddItem(7, 12, "")
	src.TrySetSlot(inventory.Hotbar(2), inventory.ItemStack{Def: 40, Qty: 1, Token: "tok"})

	if err := db.SaveInventory(ctx, "a1", "p1", src); err != nil {
		t.Fatalf("SaveInventory: %v", err)
	}
	src.SetCurrency(60)
	if err := db.SaveInventory(ctx, "a1", "p1", src); err != nil {
		t.Fatalf("second SaveInventory: %v", err)
	}

	dst := inventory.New("", "", 0, inventory.WithLimits(limits))
	if err := db.LoadInventory(ctx, "a1", dst); err != nil {
		t.Fatalf("LoadInventory: %v", err)
	}
	if !dst.Equal(src) {
		t.Fatalf("restored store differs: %+v vs %+v", dst.Snapshot(), src.Snapshot())
	}
	if dst.Currency() != 60 {
		t.Fatalf("expected upserted currency 60, got %d", dst.Currency())
	}
	owner, err := db.OwnerOf(ctx, "a1")
	if err != nil || owner != "p1" {
		t.Fatalf("OwnerOf = %q, %v", owner, err)
	}
}

func TestLoadMissing(t *testing.T) {
	db := openTemp(t)
	dst := inventory.New("", "", 1)
	if err := db.LoadInventory(context.Background(), "nobody", dst); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
	if err := db.LoadVendor(context.Background(), "shop", dst); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound for vendor, got %v", err)
	}
	if _, err := db.OwnerOf(context.Background(), "nobody"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound for owner, got %v", err)
	}
}

func TestLoadRevalidatesAgainstLimits(t *testing.T) {
	db := openTemp(t)
	ctx := context.Background()

	src := inventory.New("shop", "", 2, inventory.WithLimits(stackLimits{7: 50}))
	src.AddItem(7, 30, "")
	if err := db.SaveVendor(ctx, "shop", src); err != nil {
		t.Fatalf("SaveVendor: %v", err)
	}

	tighter := inventory.New("", "", 0, inventory.WithLimits(stackLimits{7: 10}))
	if err := db.LoadVendor(ctx, "shop", tighter); err == nil {
		t.Fatalf("expected oversized stack to be rejected")
	}
}

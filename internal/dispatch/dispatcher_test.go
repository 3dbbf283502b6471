package dispatch

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gravitas-games/stationhost/internal/abilitycode"
	"github.com/gravitas-games/stationhost/internal/audit"
	"github.com/gravitas-games/stationhost/internal/catalog"
	"github.com/gravitas-games/stationhost/internal/crafting"
	"github.com/gravitas-games/stationhost/internal/holdings"
	"github.com/gravitas-games/stationhost/internal/inventory"
	"github.com/gravitas-games/stationhost/internal/station"
	"github.com/gravitas-games/stationhost/internal/txn"
	"github.com/gravitas-games/stationhost/pkg/models"
)

const testCatalog = `
items:
  - {key: petal, id: 1, category: flora}
  - {key: dust, id: 2, category: essence}
  - {key: shard, id: 3, category: ore}
  - {key: dew, id: 4, category: liquid}
  - {key: plank, id: 5}
  - {key: orb, id: 42, max_stack: 1, price: 25}
  - {key: elixir, id: 50, max_stack: 1}
  - key: wand
    id: 70
    abilities:
      - {index: 0, unlock_cost: 10, max_level: 3, level_cost: 5}
  - key: staff
    id: 40
    max_stack: 1
    abilities:
      - {index: 0, unlock_cost: 10, max_level: 3, level_cost: 5}
      - {index: 1, unlock_cost: 10, max_level: 3, level_cost: 5}
      - {index: 2, unlock_cost: 10, max_level: 3, level_cost: 5}
      - {index: 3, unlock_cost: 10, max_level: 3, level_cost: 5}
      - {index: 4, unlock_cost: 10, max_level: 3, level_cost: 5}
      - {index: 5, unlock_cost: 10, max_level: 3, level_cost: 5}
recipes:
  - id: crate
    duration: 10s
    inputs: [{item: plank, qty: 2}]
    outputs: [{item: orb, qty: 1}]
stations:
  - {id: shop, kind: vendor, capacity: 2}
  - {id: cauldron, kind: combiner}
  - {id: altar, kind: upgrader}
  - {id: bench, kind: crafter}
`

type mirrorCall struct {
	kind        string
	participant models.ParticipantID
	station     models.StationID
	snap        inventory.Snapshot
	replica     station.Replica
	craft       crafting.View
}

type recordingMirror struct {
	mu    sync.Mutex
	calls []mirrorCall
}

func (m *recordingMirror) add(c mirrorCall) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls = append(m.calls, c)
}

func (m *recordingMirror) InventoryChanged(p models.ParticipantID, snap inventory.Snapshot) {
	m.add(mirrorCall{kind: "inventory", participant: p, snap: snap})
}

func (m *recordingMirror) VendorChanged(st models.StationID, snap inventory.Snapshot) {
	m.add(mirrorCall{kind: "vendor", station: st, snap: snap})
}

func (m *recordingMirror) SelectionChanged(p models.ParticipantID, r station.Replica) {
	m.add(mirrorCall{kind: "selection", participant: p, replica: r})
}

func (m *recordingMirror) CraftChanged(st models.StationID, v crafting.View) {
	m.add(mirrorCall{kind: "craft", station: st, craft: v})
}

func (m *recordingMirror) reset() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls = nil
}

func (m *recordingMirror) kinds() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []string
	for _, c := range m.calls {
		out = append(out, c.kind)
	}
	return out
}

type recordingAuditor struct {
	mu      sync.Mutex
	records []audit.Record
}

func (a *recordingAuditor) Record(r audit.Record) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.records = append(a.records, r)
	return nil
}

type fixture struct {
	t        *testing.T
	cat      *catalog.Catalog
	reg      *holdings.Registry
	sessions *station.Table
	crafts   *crafting.Manager
	d        *Dispatcher
	mirror   *recordingMirror
	auditor  *recordingAuditor
	vendor   *inventory.Store
}

func newFixture(t *testing.T, econ Economy) *fixture {
	t.Helper()
	cat, err := catalog.Parse([]byte(testCatalog))
	require.NoError(t, err)

	reg := holdings.NewRegistry()
	vendor := inventory.New("shop", "", 2, inventory.WithLimits(cat.Items))
	require.True(t, vendor.TrySetSlot(inventory.General(0), inventory.ItemStack{Def: 42, Qty: 1}))
	_, err = reg.Register(holdings.VendorKey("shop"), "", vendor)
	require.NoError(t, err)

	if econ.CombineOutput == 0 {
		econ.CombineOutput = 50
	}
	sessions := station.NewTable()
	engine := txn.NewEngine()
	crafts := crafting.NewManager(cat.Recipes, crafting.NewHoldingsInventories(reg), engine)
	f := &fixture{
		t:        t,
		cat:      cat,
		reg:      reg,
		sessions: sessions,
		crafts:   crafts,
		mirror:   &recordingMirror{},
		auditor:  &recordingAuditor{},
		vendor:   vendor,
	}
	f.d = New(cat, reg, sessions, crafts, engine, econ, WithMirror(f.mirror), WithAuditor(f.auditor))
	return f
}

func (f *fixture) agent(id models.AgentID, controller models.ParticipantID, slots int, currency int64) *inventory.Store {
	f.t.Helper()
	s := inventory.New(string(id), id, slots, inventory.WithLimits(f.cat.Items), inventory.WithCurrency(currency))
	_, err := f.reg.Register(holdings.AgentKey(id), controller, s)
	require.NoError(f.t, err)
	return s
}

func (f *fixture) open(p models.ParticipantID, a models.AgentID, st models.StationID) {
	f.t.Helper()
	out := f.d.Dispatch(OpenStation{Header: Header{Originator: p, Agent: a, Station: st}})
	require.True(f.t, out.Committed(), "open %s: %+v", st, out)
}

func hdr(p models.ParticipantID, a models.AgentID, st models.StationID) Header {
	return Header{Originator: p, Agent: a, Station: st}
}

func TestUnauthorizedOriginator(t *testing.T) {
	f := newFixture(t, Economy{BuyPrice: 10})
	buyer := f.agent("a1", "p1", 2, 100)
	f.agent("a2", "p2", 2, 100)
	f.open("p2", "a2", "shop")
	before := buyer.Clone()

	out := f.d.Dispatch(Purchase{Header: hdr("p2", "a1", "shop"), VendorSlot: 0})
	assert.Equal(t, txn.Unauthorized, out.Code)
	assert.True(t, buyer.Equal(before))
	assert.Equal(t, 1, f.vendor.Count(42))

	out = f.d.Dispatch(Purchase{Header: hdr("", "a1", "shop"), VendorSlot: 0})
	assert.Equal(t, txn.Unauthorized, out.Code)
}

func TestPurchaseCommits(t *testing.T) {
	f := newFixture(t, Economy{BuyPrice: 10})
	buyer := f.agent("a1", "p1", 1, 10)
	f.open("p1", "a1", "shop")
	f.mirror.reset()

	out := f.d.Dispatch(Purchase{Header: hdr("p1", "a1", "shop"), VendorSlot: 0})
	require.True(t, out.Committed(), "%+v", out)

	assert.Equal(t, int64(0), buyer.Currency())
	assert.True(t, f.vendor.GetSlot(inventory.General(0)).IsEmpty())
	assert.Equal(t, 1, buyer.Count(42))
	assert.ElementsMatch(t, []string{"inventory", "vendor"}, f.mirror.kinds())

	require.NotEmpty(t, f.auditor.records)
	last := f.auditor.records[len(f.auditor.records)-1]
	assert.Equal(t, "purchase", last.Request)
	assert.Equal(t, "committed", last.Code)
}

func TestPurchaseInsufficientFunds(t *testing.T) {
	f := newFixture(t, Economy{BuyPrice: 10})
	buyer := f.agent("a1", "p1", 1, 9)
	f.open("p1", "a1", "shop")
	before, vendorBefore := buyer.Clone(), f.vendor.Clone()
	f.mirror.reset()

	out := f.d.Dispatch(Purchase{Header: hdr("p1", "a1", "shop"), VendorSlot: 0})
	assert.Equal(t, txn.PreconditionFailed, out.Code)
	assert.True(t, buyer.Equal(before))
	assert.True(t, f.vendor.Equal(vendorBefore))
	assert.Empty(t, f.mirror.kinds())
}

func TestPurchaseTwiceSingleCopy(t *testing.T) {
	f := newFixture(t, Economy{BuyPrice: 10})
	buyer := f.agent("a1", "p1", 4, 100)
	f.open("p1", "a1", "shop")

	req := Purchase{Header: hdr("p1", "a1", "shop"), VendorSlot: 0}
	first := f.d.Dispatch(req)
	second := f.d.Dispatch(req)

	assert.True(t, first.Committed())
	assert.Equal(t, txn.PreconditionFailed, second.Code)
	assert.Equal(t, int64(90), buyer.Currency())
	assert.Equal(t, 1, buyer.Count(42))
}

func TestConcurrentPurchasesOneWinner(t *testing.T) {
	f := newFixture(t, Economy{BuyPrice: 10})
	const buyers = 8
	stores := make([]*inventory.Store, buyers)
	for i := 0; i < buyers; i++ {
		id := models.AgentID("a" + string(rune('0'+i)))
		p := models.ParticipantID("p" + string(rune('0'+i)))
		stores[i] = f.agent(id, p, 2, 10)
		f.open(p, id, "shop")
	}

	var wg sync.WaitGroup
	outcomes := make([]Outcome, buyers)
	for i := 0; i < buyers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			id := models.AgentID("a" + string(rune('0'+i)))
			p := models.ParticipantID("p" + string(rune('0'+i)))
			outcomes[i] = f.d.Dispatch(Purchase{Header: hdr(p, id, "shop"), VendorSlot: 0})
		}(i)
	}
	wg.Wait()

	wins, spent := 0, int64(0)
	for i, o := range outcomes {
		if o.Committed() {
			wins++
		} else {
			assert.Equal(t, txn.PreconditionFailed, o.Code)
		}
		spent += 10 - stores[i].Currency()
	}
	assert.Equal(t, 1, wins)
	assert.Equal(t, int64(10), spent)
}

func TestPurchaseFullInventoryRefunds(t *testing.T) {
	f := newFixture(t, Economy{BuyPrice: 10})
	buyer := f.agent("a1", "p1", 1, 50)
	require.True(t, buyer.TrySetSlot(inventory.General(0), inventory.ItemStack{Def: 5, Qty: 1}))
	f.open("p1", "a1", "shop")
	before, vendorBefore := buyer.Clone(), f.vendor.Clone()

	out := f.d.Dispatch(Purchase{Header: hdr("p1", "a1", "shop"), VendorSlot: 0})
	assert.Equal(t, txn.CapacityExceeded, out.Code)
	assert.True(t, buyer.Equal(before))
	assert.True(t, f.vendor.Equal(vendorBefore))
}

func TestPurchaseCatalogPrice(t *testing.T) {
	f := newFixture(t, Economy{BuyPrice: 10, UseCatalogPrices: true})
	buyer := f.agent("a1", "p1", 1, 30)
	f.open("p1", "a1", "shop")

	out := f.d.Dispatch(Purchase{Header: hdr("p1", "a1", "shop"), VendorSlot: 0})
	require.True(t, out.Committed(), "%+v", out)
	assert.Equal(t, int64(5), buyer.Currency())
}

func TestSellCreditsRewardAndClearsSelection(t *testing.T) {
	f := newFixture(t, Economy{BuyPrice: 10, SellReward: 3})
	seller := f.agent("a1", "p1", 2, 0)
	require.True(t, seller.TrySetSlot(inventory.General(1), inventory.ItemStack{Def: 5, Qty: 4}))
	f.open("p1", "a1", "shop")
	f.open("p1", "a1", "altar")
	sel := f.d.Dispatch(Select{Header: hdr("p1", "a1", "altar"), Source: station.SourceGeneral, Index: 1})
	require.True(t, sel.Committed())

	out := f.d.Dispatch(Sell{Header: hdr("p1", "a1", "shop"), Source: station.SourceGeneral, Index: 1})
	require.True(t, out.Committed(), "%+v", out)
	assert.Equal(t, int64(3), seller.Currency())
	assert.Equal(t, 0, seller.Count(5))
	assert.Equal(t, inventory.ItemStack{Def: 5, Qty: 4}, f.vendor.GetSlot(inventory.General(1)))

	s, ok := f.sessions.Get("altar", "p1")
	require.True(t, ok)
	assert.True(t, s.Selection.IsNone())
}

func TestSellVendorFull(t *testing.T) {
	f := newFixture(t, Economy{SellReward: 3})
	require.True(t, f.vendor.TrySetSlot(inventory.General(1), inventory.ItemStack{Def: 42, Qty: 1}))
	seller := f.agent("a1", "p1", 1, 0)
	require.True(t, seller.TrySetSlot(inventory.General(0), inventory.ItemStack{Def: 5, Qty: 1}))
	f.open("p1", "a1", "shop")
	before := seller.Clone()

	out := f.d.Dispatch(Sell{Header: hdr("p1", "a1", "shop"), Source: station.SourceGeneral, Index: 0})
	assert.Equal(t, txn.PreconditionFailed, out.Code)
	assert.True(t, seller.Equal(before))

	out = f.d.Dispatch(Sell{Header: hdr("p1", "a1", "shop"), Source: station.SourceHotbar, Index: 0})
	assert.Equal(t, txn.PreconditionFailed, out.Code, "empty source slot")
}

func reagentAgent(f *fixture) *inventory.Store {
	s := f.agent("a1", "p1", 5, 0)
	for i, def := range []inventory.DefinitionID{1, 2, 3, 4} {
		require.True(f.t, s.TrySetSlot(inventory.General(i), inventory.ItemStack{Def: def, Qty: 2}))
	}
	return s
}

func TestCombineCommits(t *testing.T) {
	f := newFixture(t, Economy{})
	s := reagentAgent(f)
	f.open("p1", "a1", "cauldron")

	out := f.d.Dispatch(Combine{Header: hdr("p1", "a1", "cauldron"), Slots: []int{3, 1, 0, 2, 2}})
	require.True(t, out.Committed(), "%+v", out)

	for _, def := range []inventory.DefinitionID{1, 2, 3, 4} {
		assert.Equal(t, 0, s.Count(def))
	}
	got := s.GetSlot(inventory.General(0))
	assert.Equal(t, inventory.DefinitionID(50), got.Def)
	assert.Len(t, got.Token, txn.DerivedTokenLen)

	// same multiset in a different order yields the same token
	s2 := f.agent("b1", "q1", 5, 0)
	for i, def := range []inventory.DefinitionID{4, 3, 2, 1} {
		require.True(t, s2.TrySetSlot(inventory.General(i), inventory.ItemStack{Def: def, Qty: 2}))
	}
	f.open("q1", "b1", "cauldron")
	out = f.d.Dispatch(Combine{Header: hdr("q1", "b1", "cauldron"), Slots: []int{0, 1, 2, 3}})
	require.True(t, out.Committed())
	assert.Equal(t, got.Token, s2.GetSlot(inventory.General(0)).Token)
}

func TestCombineMissingCategories(t *testing.T) {
	f := newFixture(t, Economy{})
	s := reagentAgent(f)
	f.open("p1", "a1", "cauldron")
	before := s.Clone()

	out := f.d.Dispatch(Combine{Header: hdr("p1", "a1", "cauldron"), Slots: []int{0, 1}})
	assert.Equal(t, txn.PreconditionFailed, out.Code)
	assert.True(t, s.Equal(before))

	all := []int{0, 1, 2, 3}
	for drop := range all {
		sel := append(append([]int(nil), all[:drop]...), all[drop+1:]...)
		out := f.d.Dispatch(Combine{Header: hdr("p1", "a1", "cauldron"), Slots: sel})
		assert.Equal(t, txn.PreconditionFailed, out.Code)
		assert.True(t, s.Equal(before))
	}
}

func TestCombineRequiresCombinerSession(t *testing.T) {
	f := newFixture(t, Economy{})
	reagentAgent(f)
	f.open("p1", "a1", "shop")

	out := f.d.Dispatch(Combine{Header: hdr("p1", "a1", "shop"), Slots: []int{0, 1, 2, 3}})
	assert.Equal(t, txn.PreconditionFailed, out.Code)
	out = f.d.Dispatch(Combine{Header: hdr("p1", "a1", "cauldron"), Slots: []int{0, 1, 2, 3}})
	assert.Equal(t, txn.PreconditionFailed, out.Code)
}

func upgraderFixture(t *testing.T, currency int64, token string) (*fixture, *inventory.Store) {
	f := newFixture(t, Economy{})
	s := f.agent("a1", "p1", 2, currency)
	require.True(t, s.TrySetSlot(inventory.General(1), inventory.ItemStack{Def: 40, Qty: 1, Token: token}))
	f.open("p1", "a1", "altar")
	out := f.d.Dispatch(Select{Header: hdr("p1", "a1", "altar"), Source: station.SourceGeneral, Index: 1})
	require.True(t, out.Committed(), "%+v", out)
	return f, s
}

func tokenOf(t *testing.T, s *inventory.Store) abilitycode.Config {
	c, err := abilitycode.Decode(s.GetSlot(inventory.General(1)).Token)
	require.NoError(t, err)
	return c
}

func TestAbilityUnlockChargesPerItem(t *testing.T) {
	f := newFixture(t, Economy{})
	s := f.agent("a1", "p1", 3, 10)
	require.Equal(t, uint8(0), s.AddItem(70, 3, ""))
	for i := 0; i < 3; i++ {
		require.Equal(t, inventory.ItemStack{Def: 70, Qty: 1}, s.GetSlot(inventory.General(i)))
	}
	f.open("p1", "a1", "altar")
	h := hdr("p1", "a1", "altar")
	require.True(t, f.d.Dispatch(Select{Header: h, Source: station.SourceGeneral, Index: 0}).Committed())

	out := f.d.Dispatch(AbilityUnlock{Header: h, Ability: 0})
	require.True(t, out.Committed(), "%+v", out)
	assert.Equal(t, int64(0), s.Currency())

	c, err := abilitycode.Decode(s.GetSlot(inventory.General(0)).Token)
	require.NoError(t, err)
	assert.True(t, c.IsUnlocked(0))
	assert.Equal(t, uint8(1), s.GetSlot(inventory.General(0)).Qty)
	assert.Empty(t, s.GetSlot(inventory.General(1)).Token)
	assert.Empty(t, s.GetSlot(inventory.General(2)).Token)
}

func TestAbilityUnlockAssignLevel(t *testing.T) {
	f, s := upgraderFixture(t, 100, "")
	h := hdr("p1", "a1", "altar")

	require.True(t, f.d.Dispatch(AbilityUnlock{Header: h, Ability: 3}).Committed())
	assert.Equal(t, int64(90), s.Currency())
	assert.True(t, tokenOf(t, s).IsUnlocked(3))

	assert.Equal(t, txn.PreconditionFailed, f.d.Dispatch(AbilityUnlock{Header: h, Ability: 3}).Code)
	assert.Equal(t, int64(90), s.Currency())

	require.True(t, f.d.Dispatch(AbilityAssign{Header: h, Slot: 0, Ability: 3}).Committed())
	require.True(t, f.d.Dispatch(AbilityAssign{Header: h, Slot: 2, Ability: 3}).Committed())
	c := tokenOf(t, s)
	assert.Equal(t, abilitycode.NoAbility, c.Slots[0])
	assert.Equal(t, 3, c.Slots[2])

	require.True(t, f.d.Dispatch(AbilityLevelUp{Header: h, Ability: 3}).Committed())
	assert.Equal(t, int64(85), s.Currency())
	require.True(t, f.d.Dispatch(AbilityLevelUp{Header: h, Ability: 3}).Committed())
	assert.Equal(t, int64(75), s.Currency())
	assert.Equal(t, 3, tokenOf(t, s).Level(3))

	before := s.Clone()
	assert.Equal(t, txn.PreconditionFailed, f.d.Dispatch(AbilityLevelUp{Header: h, Ability: 3}).Code)
	assert.Equal(t, txn.PreconditionFailed, f.d.Dispatch(AbilityLevelUp{Header: h, Ability: 1}).Code)
	assert.Equal(t, txn.PreconditionFailed, f.d.Dispatch(AbilityAssign{Header: h, Slot: 1, Ability: 4}).Code)
	assert.Equal(t, txn.PreconditionFailed, f.d.Dispatch(AbilityUnlock{Header: h, Ability: 9}).Code)
	assert.True(t, s.Equal(before))
}

func TestAbilityUnlockAtLimit(t *testing.T) {
	full := abilitycode.New()
	var err error
	for _, i := range []int{0, 1, 2, 4, 5} {
		full, err = abilitycode.Unlock(full, i)
		require.NoError(t, err)
	}
	token, err := abilitycode.Encode(full)
	require.NoError(t, err)

	f, s := upgraderFixture(t, 100, token)
	before := s.Clone()
	out := f.d.Dispatch(AbilityUnlock{Header: hdr("p1", "a1", "altar"), Ability: 3})
	assert.False(t, out.Committed())
	assert.Equal(t, txn.EncodeOverflow, out.Code)
	assert.True(t, s.Equal(before))
}

func TestAbilityUnlockInsufficientFunds(t *testing.T) {
	f, s := upgraderFixture(t, 5, "")
	before := s.Clone()
	out := f.d.Dispatch(AbilityUnlock{Header: hdr("p1", "a1", "altar"), Ability: 0})
	assert.Equal(t, txn.PreconditionFailed, out.Code)
	assert.True(t, s.Equal(before))
}

func TestAbilityMalformedToken(t *testing.T) {
	f, s := upgraderFixture(t, 100, "!!not-a-token!!")
	before := s.Clone()
	out := f.d.Dispatch(AbilityUnlock{Header: hdr("p1", "a1", "altar"), Ability: 0})
	assert.Equal(t, txn.DecodeFailed, out.Code)
	assert.True(t, s.Equal(before))
}

func TestAbilityStaleSelection(t *testing.T) {
	f, s := upgraderFixture(t, 100, "")
	require.True(t, s.TrySetSlot(inventory.General(1), inventory.ItemStack{Def: 5, Qty: 1}))

	out := f.d.Dispatch(AbilityUnlock{Header: hdr("p1", "a1", "altar"), Ability: 0})
	assert.Equal(t, txn.PreconditionFailed, out.Code)
	assert.Equal(t, int64(100), s.Currency())

	out = f.d.Dispatch(AbilityUnlock{Header: hdr("p1", "a1", "bench"), Ability: 0})
	assert.Equal(t, txn.PreconditionFailed, out.Code, "station not open")
}

func TestCraftLifecycle(t *testing.T) {
	f := newFixture(t, Economy{})
	s := f.agent("a1", "p1", 2, 0)
	s.AddItem(5, 4, "")
	f.open("p1", "a1", "bench")
	h := hdr("p1", "a1", "bench")

	out := f.d.Dispatch(Craft{Header: h, Recipe: "crate", Quantity: 1})
	require.True(t, out.Committed(), "%+v", out)
	assert.Equal(t, 2, s.Count(5))

	out = f.d.Dispatch(Craft{Header: h, Recipe: "crate", Quantity: 1})
	assert.Equal(t, txn.AlreadyInProgress, out.Code)
	assert.Equal(t, 2, s.Count(5))

	f.mirror.reset()
	f.open("p1", "a1", "bench")
	assert.Contains(t, f.mirror.kinds(), "craft", "reopening resumes the craft view")

	out = f.d.Dispatch(CraftCancel{Header: h})
	require.True(t, out.Committed(), "%+v", out)
	assert.Equal(t, 4, s.Count(5))

	out = f.d.Dispatch(CraftCancel{Header: h})
	assert.Equal(t, txn.PreconditionFailed, out.Code)
}

func TestOpenCrafterShowsStationJobs(t *testing.T) {
	f := newFixture(t, Economy{})
	f.agent("a1", "p1", 2, 0)
	crafter := f.agent("a2", "p2", 2, 0)
	crafter.AddItem(5, 2, "")
	f.open("p2", "a2", "bench")
	require.True(t, f.d.Dispatch(Craft{Header: hdr("p2", "a2", "bench"), Recipe: "crate", Quantity: 1}).Committed())

	f.mirror.reset()
	f.open("p1", "a1", "bench")

	f.mirror.mu.Lock()
	defer f.mirror.mu.Unlock()
	var views []crafting.View
	for _, c := range f.mirror.calls {
		if c.kind == "craft" {
			views = append(views, c.craft)
		}
	}
	require.Len(t, views, 1)
	assert.Equal(t, models.ParticipantID("p2"), views[0].Owner)
	assert.Equal(t, crafting.JobInProgress.String(), views[0].State)
}

func TestCraftCompletesOnUpdate(t *testing.T) {
	f := newFixture(t, Economy{})
	s := f.agent("a1", "p1", 2, 0)
	s.AddItem(5, 2, "")
	f.open("p1", "a1", "bench")

	require.True(t, f.d.Dispatch(Craft{Header: hdr("p1", "a1", "bench"), Recipe: "crate", Quantity: 1}).Committed())
	done := f.crafts.Update(time.Now().Add(time.Minute))
	require.Len(t, done, 1)
	assert.Equal(t, 1, s.Count(42))
}

func TestSelectValidatesSlot(t *testing.T) {
	f := newFixture(t, Economy{})
	f.agent("a1", "p1", 2, 0)
	f.open("p1", "a1", "altar")
	h := hdr("p1", "a1", "altar")

	assert.Equal(t, txn.PreconditionFailed, f.d.Dispatch(Select{Header: h, Source: station.SourceGeneral, Index: 0}).Code)
	assert.Equal(t, txn.PreconditionFailed, f.d.Dispatch(Select{Header: h, Source: station.SourceGeneral, Index: 7}).Code)
	assert.True(t, f.d.Dispatch(Select{Header: h, Source: station.SourceNone}).Committed())

	require.True(t, f.d.Dispatch(CloseStation{Header: h}).Committed())
	assert.Equal(t, txn.PreconditionFailed, f.d.Dispatch(CloseStation{Header: h}).Code)
	assert.Equal(t, txn.PreconditionFailed, f.d.Dispatch(OpenStation{Header: hdr("p1", "a1", "nowhere")}).Code)
}

// Package dispatch is the single gate through which participants mutate
// economic state. Each request is authorized against the holdings registry,
// re-validated against the current authoritative stores under their
// exclusive lease, and then either committed through the transaction engine
// or rejected with a typed code. Nothing a client asserts about quantities,
// prices or slot contents is trusted.
package dispatch

import (
	"log/slog"
	"time"

	"github.com/gravitas-games/stationhost/internal/audit"
	"github.com/gravitas-games/stationhost/internal/catalog"
	"github.com/gravitas-games/stationhost/internal/crafting"
	"github.com/gravitas-games/stationhost/internal/holdings"
	"github.com/gravitas-games/stationhost/internal/inventory"
	"github.com/gravitas-games/stationhost/internal/station"
	"github.com/gravitas-games/stationhost/internal/txn"
)

// Economy holds the balance constants. Buying and selling are deliberately
// asymmetric.
type Economy struct {
	BuyPrice         int64
	SellReward       int64
	UseCatalogPrices bool
	// CombineOutput is the definition produced by a combiner.
	CombineOutput inventory.DefinitionID
}

// Outcome is the result of one request.
type Outcome struct {
	Request Kind     `json:"request"`
	Code    txn.Code `json:"code"`
	Reason  string   `json:"reason,omitempty"`
}

// Committed reports whether the request was applied.
func (o Outcome) Committed() bool { return o.Code == txn.Committed }

// Dispatcher validates and commits requests.
type Dispatcher struct {
	catalog  *catalog.Catalog
	holdings *holdings.Registry
	sessions *station.Table
	crafting *crafting.Manager
	engine   *txn.Engine
	economy  Economy
	mirror   Mirror
	auditor  Auditor
	logger   *slog.Logger
	now      func() time.Time
}

// Option configures a Dispatcher.
type Option func(*Dispatcher)

// WithMirror sets the replication sink.
func WithMirror(m Mirror) Option {
	return func(d *Dispatcher) {
		if m != nil {
			d.mirror = m
		}
	}
}

// WithAuditor sets the outcome recorder.
func WithAuditor(a Auditor) Option {
	return func(d *Dispatcher) {
		if a != nil {
			d.auditor = a
		}
	}
}

// WithLogger sets the dispatcher logger.
func WithLogger(l *slog.Logger) Option {
	return func(d *Dispatcher) {
		if l != nil {
			d.logger = l
		}
	}
}

// WithClock replaces time.Now for audit timestamps.
func WithClock(now func() time.Time) Option {
	return func(d *Dispatcher) {
		if now != nil {
			d.now = now
		}
	}
}

// New creates a dispatcher.
func New(cat *catalog.Catalog, reg *holdings.Registry, sessions *station.Table, crafts *crafting.Manager, engine *txn.Engine, economy Economy, opts ...Option) *Dispatcher {
	d := &Dispatcher{
		catalog:  cat,
		holdings: reg,
		sessions: sessions,
		crafting: crafts,
		engine:   engine,
		economy:  economy,
		mirror:   NopMirror{},
		auditor:  audit.Discard{},
		logger:   slog.Default(),
		now:      time.Now,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(d)
		}
	}
	if d.engine == nil {
		d.engine = txn.NewEngine(txn.WithLogger(d.logger))
	}
	return d
}

// Dispatch runs one request to commit or rejection.
func (d *Dispatcher) Dispatch(req Request) (out Outcome) {
	h := req.header()
	fx := &effects{}
	defer func() {
		if r := recover(); r != nil {
			d.logger.Error("request panicked", "request", req.Kind(), "participant", h.Originator, "panic", r)
			out = Outcome{Request: req.Kind(), Code: txn.PreconditionFailed, Reason: "internal error"}
			fx = &effects{}
		}
		d.finish(req, h, out, fx)
	}()

	if err := d.authorize(h); err != nil {
		return d.outcome(req, err)
	}

	var err error
	switch r := req.(type) {
	case OpenStation:
		err = d.openStation(r, fx)
	case CloseStation:
		err = d.closeStation(r, fx)
	case Select:
		err = d.selectSlot(r, fx)
	case Purchase:
		err = d.purchase(r, fx)
	case Sell:
		err = d.sell(r, fx)
	case Combine:
		err = d.combine(r, fx)
	case AbilityUnlock:
		err = d.abilityUnlock(r, fx)
	case AbilityAssign:
		err = d.abilityAssign(r, fx)
	case AbilityLevelUp:
		err = d.abilityLevelUp(r, fx)
	case Craft:
		err = d.craft(r, fx)
	case CraftCancel:
		err = d.craftCancel(r, fx)
	default:
		err = txn.Rejectf(txn.PreconditionFailed, "unsupported request %T", req)
	}
	return d.outcome(req, err)
}

func (d *Dispatcher) outcome(req Request, err error) Outcome {
	return Outcome{Request: req.Kind(), Code: txn.CodeOf(err), Reason: txn.ReasonOf(err)}
}

// finish logs, replicates and audits. It runs after every lease is released.
func (d *Dispatcher) finish(req Request, h Header, out Outcome, fx *effects) {
	if out.Committed() {
		d.logger.Info("request committed", "request", req.Kind(), "participant", h.Originator, "agent", h.Agent, "station", h.Station)
		fx.flush(d.mirror)
	} else {
		d.logger.Debug("request rejected", "request", req.Kind(), "participant", h.Originator, "agent", h.Agent, "code", out.Code, "reason", out.Reason)
	}
	err := d.auditor.Record(audit.Record{
		Time:        d.now(),
		Request:     string(req.Kind()),
		Participant: string(h.Originator),
		Agent:       string(h.Agent),
		Station:     string(h.Station),
		Code:        string(out.Code),
		Reason:      out.Reason,
	})
	if err != nil {
		d.logger.Warn("audit write failed", "error", err)
	}
}

// authorize checks that the originator controls the agent it acts on.
func (d *Dispatcher) authorize(h Header) error {
	if h.Originator == "" || h.Agent == "" {
		return txn.Reject(txn.Unauthorized, "missing originator or agent")
	}
	controller, ok := d.holdings.ControllerOf(h.Agent)
	if !ok || controller != h.Originator {
		return txn.Rejectf(txn.Unauthorized, "%s does not control %s", h.Originator, h.Agent)
	}
	return nil
}

// session returns the originator's open session at the request's station,
// which must be of kind and bound to the request's agent.
func (d *Dispatcher) session(h Header, kind catalog.StationKind) (station.Session, error) {
	s, ok := d.sessions.Get(h.Station, h.Originator)
	if !ok {
		return station.Session{}, txn.Rejectf(txn.PreconditionFailed, "station %s is not open", h.Station)
	}
	if s.Kind != kind {
		return station.Session{}, txn.Rejectf(txn.PreconditionFailed, "station %s is a %s, not a %s", h.Station, s.Kind, kind)
	}
	if s.Agent != h.Agent {
		return station.Session{}, txn.Reject(txn.Unauthorized, "session bound to another agent")
	}
	return s, nil
}

// lease acquires the agent's holding plus any extra keys.
func (d *Dispatcher) lease(h Header, extra ...holdings.Key) (*holdings.Lease, *inventory.Store, error) {
	key := holdings.AgentKey(h.Agent)
	lease, err := d.holdings.Acquire(append([]holdings.Key{key}, extra...)...)
	if err != nil {
		return nil, nil, txn.Wrap(txn.PreconditionFailed, "holding unavailable", err)
	}
	return lease, lease.Store(key), nil
}

// committed records the agent inventory and any invalidated selections.
func (d *Dispatcher) committed(h Header, store *inventory.Store, fx *effects) {
	fx.inventory(h.Originator, store)
	for _, s := range d.sessions.Revalidate(h.Agent, store) {
		fx.selection(s)
	}
}

func (d *Dispatcher) openStation(r OpenStation, fx *effects) error {
	st, ok := d.catalog.Items.Station(r.Station)
	if !ok {
		return txn.Rejectf(txn.PreconditionFailed, "unknown station %s", r.Station)
	}
	if st.Kind == catalog.StationVendor {
		err := d.holdings.WithInventory(holdings.VendorKey(st.ID), func(v *inventory.Store) error {
			fx.vendor(st.ID, v)
			return nil
		})
		if err != nil {
			return txn.Wrap(txn.PreconditionFailed, "vendor unavailable", err)
		}
	}

	s := d.sessions.Open(st, r.Originator, r.Agent, r.View)
	fx.selection(s)
	if st.Kind == catalog.StationCrafter {
		for _, v := range d.crafting.StationJobs(st.ID) {
			fx.craft(v)
		}
	}
	return nil
}

func (d *Dispatcher) closeStation(r CloseStation, fx *effects) error {
	if !d.sessions.Close(r.Station, r.Originator) {
		return txn.Rejectf(txn.PreconditionFailed, "station %s is not open", r.Station)
	}
	fx.closed(r.Originator, r.Station)
	return nil
}

func (d *Dispatcher) selectSlot(r Select, fx *effects) error {
	if _, ok := d.sessions.Get(r.Station, r.Originator); !ok {
		return txn.Rejectf(txn.PreconditionFailed, "station %s is not open", r.Station)
	}
	if r.Source == station.SourceNone {
		s, err := d.sessions.Clear(r.Station, r.Originator)
		if err != nil {
			return txn.Wrap(txn.PreconditionFailed, "clear selection", err)
		}
		fx.selection(s)
		return nil
	}

	lease, store, err := d.lease(r.Header)
	if err != nil {
		return err
	}
	defer lease.Release()

	sel := station.Selection{Source: r.Source, Index: r.Index}
	ref, ok := sel.Ref()
	if !ok {
		return txn.Reject(txn.PreconditionFailed, "unknown selection source")
	}
	if err := txn.SlotHolds(store, ref, 0)(); err != nil {
		return err
	}
	s, err := d.sessions.Select(r.Station, r.Originator, r.Source, r.Index, store.GetSlot(ref).Def)
	if err != nil {
		return txn.Wrap(txn.PreconditionFailed, "select", err)
	}
	fx.selection(s)
	return nil
}

func sourceRef(src station.Source, index int) (inventory.SlotRef, error) {
	ref, ok := station.Selection{Source: src, Index: index}.Ref()
	if !ok {
		return inventory.SlotRef{}, txn.Reject(txn.PreconditionFailed, "unknown slot source")
	}
	return ref, nil
}

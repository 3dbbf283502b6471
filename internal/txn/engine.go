// Package txn executes consume-then-produce plans against inventory stores
// as a single unit. Every slot and currency write is journaled with its
// before-image; an abort replays the journal in reverse so the touched
// stores end exactly as they started.
package txn

import (
	"log/slog"

	"github.com/gravitas-games/stationhost/internal/inventory"
)

// Check is a read-only precondition evaluated before any mutation.
type Check func() error

// Plan declares one transaction.
type Plan struct {
	Name    string
	Checks  []Check
	Consume []Step
	Produce []Step
}

// Receipt describes what a committed plan did.
type Receipt struct {
	Plan      string
	Extracted []inventory.ItemStack
	Deposited []inventory.Placement
	Spent     int64
	Credited  int64
}

type undo struct {
	store    *inventory.Store
	slot     bool
	ref      inventory.SlotRef
	before   inventory.ItemStack
	currency int64
}

// pending is the in-flight journal of one Execute call.
type pending struct {
	journal []undo
	receipt Receipt
}

func (p *pending) saveSlot(s *inventory.Store, ref inventory.SlotRef) {
	p.journal = append(p.journal, undo{store: s, slot: true, ref: ref, before: s.GetSlot(ref)})
}

func (p *pending) saveCurrency(s *inventory.Store) {
	p.journal = append(p.journal, undo{store: s, currency: s.Currency()})
}

func (p *pending) rollback() {
	for i := len(p.journal) - 1; i >= 0; i-- {
		u := p.journal[i]
		if u.slot {
			u.store.TrySetSlot(u.ref, u.before)
			continue
		}
		u.store.SetCurrency(u.currency)
	}
	p.journal = nil
}

// Option configures an Engine.
type Option func(*Engine)

// WithLogger sets the engine logger.
func WithLogger(l *slog.Logger) Option {
	return func(e *Engine) {
		if l != nil {
			e.logger = l
		}
	}
}

// Engine runs plans. It holds no per-store state; callers provide exclusive
// access to every store a plan touches for the duration of Execute.
type Engine struct {
	logger *slog.Logger
}

// NewEngine creates an engine.
func NewEngine(opts ...Option) *Engine {
	e := &Engine{logger: slog.Default()}
	for _, opt := range opts {
		if opt != nil {
			opt(e)
		}
	}
	return e
}

// Execute runs checks, then consume steps, then produce steps. A failing
// check aborts before anything is touched. A failing consume step rolls back
// and rejects with PreconditionFailed; a failing produce step rolls back
// everything and rejects with CapacityExceeded. Steps that return their own
// Rejection keep its code.
func (e *Engine) Execute(plan Plan) (Receipt, error) {
	for _, check := range plan.Checks {
		if check == nil {
			continue
		}
		if err := check(); err != nil {
			e.logger.Debug("plan rejected by check", "plan", plan.Name, "error", err)
			return Receipt{}, Wrap(PreconditionFailed, "precondition failed", err)
		}
	}

	tx := &pending{receipt: Receipt{Plan: plan.Name}}
	for _, step := range plan.Consume {
		if err := step.apply(tx); err != nil {
			tx.rollback()
			e.logger.Debug("plan consume failed", "plan", plan.Name, "step", step.String(), "error", err)
			return Receipt{}, Wrap(PreconditionFailed, step.String()+" failed", err)
		}
	}
	for _, step := range plan.Produce {
		if err := step.apply(tx); err != nil {
			tx.rollback()
			e.logger.Debug("plan produce failed", "plan", plan.Name, "step", step.String(), "error", err)
			return Receipt{}, Wrap(CapacityExceeded, step.String()+" failed", err)
		}
	}
	tx.journal = nil
	return tx.receipt, nil
}

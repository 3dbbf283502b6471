package crafting

import (
	"container/heap"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/gravitas-games/stationhost/internal/catalog"
	"github.com/gravitas-games/stationhost/internal/inventory"
	"github.com/gravitas-games/stationhost/internal/txn"
	"github.com/gravitas-games/stationhost/pkg/models"
)

type slotKey struct {
	station models.StationID
	owner   models.ParticipantID
}

// Manager owns every craft job on the host.
//
// Lock order: callers hold the agent's holding before calling Start or
// Cancel; the manager mutex is always taken after it. Update takes the
// holding through Inventories before re-entering the mutex.
type Manager struct {
	recipes         *catalog.RecipeRegistry
	inventories     Inventories
	engine          *txn.Engine
	eventBus        EventBus
	modifierSources []ModifierSource
	logger          *slog.Logger
	now             func() time.Time

	mu         sync.Mutex
	jobs       map[JobID]*Job
	bySlot     map[slotKey]*Job
	activeJobs *jobHeap
}

// Option configures a Manager.
type Option func(*Manager)

// WithEventBus sets the bus jobs publish to.
func WithEventBus(bus EventBus) Option {
	return func(m *Manager) {
		if bus != nil {
			m.eventBus = bus
		}
	}
}

// WithModifierSources adds modifier sources.
func WithModifierSources(sources ...ModifierSource) Option {
	return func(m *Manager) {
		m.modifierSources = append(m.modifierSources, sources...)
	}
}

// WithClock replaces time.Now.
func WithClock(now func() time.Time) Option {
	return func(m *Manager) {
		if now != nil {
			m.now = now
		}
	}
}

// WithLogger sets the manager logger.
func WithLogger(l *slog.Logger) Option {
	return func(m *Manager) {
		if l != nil {
			m.logger = l
		}
	}
}

// NewManager creates a craft manager.
func NewManager(recipes *catalog.RecipeRegistry, inventories Inventories, engine *txn.Engine, opts ...Option) *Manager {
	m := &Manager{
		recipes:     recipes,
		inventories: inventories,
		engine:      engine,
		eventBus:    NewNullEventBus(),
		logger:      slog.Default(),
		now:         time.Now,
		jobs:        make(map[JobID]*Job),
		bySlot:      make(map[slotKey]*Job),
		activeJobs:  newJobHeap(),
	}
	for _, opt := range opts {
		if opt != nil {
			opt(m)
		}
	}
	if m.engine == nil {
		m.engine = txn.NewEngine(txn.WithLogger(m.logger))
	}
	return m
}

// Start consumes the recipe inputs times quantity from store and starts the
// timer. The caller must hold store exclusively. A running job at the same
// (station, owner) rejects with AlreadyInProgress.
func (m *Manager) Start(store *inventory.Store, station models.StationID, owner models.ParticipantID, agent models.AgentID, recipeID catalog.RecipeID, quantity int) (*Job, error) {
	if quantity < 1 || quantity > MaxQuantity {
		return nil, txn.Rejectf(txn.PreconditionFailed, "quantity must be within 1..%d", MaxQuantity)
	}
	recipe := m.recipes.Lookup(recipeID)
	if recipe == nil {
		return nil, txn.Rejectf(txn.PreconditionFailed, "unknown recipe %s", recipeID)
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	key := slotKey{station: station, owner: owner}
	if _, busy := m.bySlot[key]; busy {
		return nil, txn.Reject(txn.AlreadyInProgress, "a craft is already in progress at this station")
	}

	plan := txn.Plan{Name: "craft_start"}
	for _, in := range recipe.Inputs {
		need := in.Quantity * quantity
		plan.Checks = append(plan.Checks, txn.HasItems(store, in.Item, need))
		plan.Consume = append(plan.Consume, txn.ExtractDefinition(store, in.Item, need))
	}
	receipt, err := m.engine.Execute(plan)
	if err != nil {
		return nil, err
	}

	modifiers := m.resolveModifiers(station, owner, recipeID)
	now := m.now()
	duration := scaleDuration(recipe.Duration, quantity, modifiers.TimeSpeed)
	job := &Job{
		ID:        JobID(uuid.NewString()),
		Recipe:    recipeID,
		Station:   station,
		Owner:     owner,
		Agent:     agent,
		Quantity:  quantity,
		State:     JobInProgress,
		StartTime: now,
		Duration:  duration,
		EndTime:   now.Add(duration),
		Consumed:  receipt.Extracted,
		Outputs:   scaleOutputs(recipe.Outputs, quantity, modifiers.OutputYield),
		Modifiers: modifiers,
	}
	m.jobs[job.ID] = job
	m.bySlot[key] = job
	heap.Push(m.activeJobs, job)

	m.logger.Info("craft started", "job", job.ID, "recipe", recipeID, "station", station, "owner", owner, "quantity", quantity)
	m.publish(EventJobStarted, job, now)
	return job, nil
}

// Update completes every job whose timer has elapsed by now. A job whose
// outputs do not fit stays due and is retried on the next call. It returns
// the jobs completed in this call.
func (m *Manager) Update(now time.Time) []View {
	m.mu.Lock()
	due := m.activeJobs.popDue(now)
	m.mu.Unlock()

	var completed []View
	var retry []*Job
	for _, job := range due {
		done := false
		err := m.inventories.WithInventory(job.Agent, func(store *inventory.Store) error {
			m.mu.Lock()
			defer m.mu.Unlock()
			if m.jobs[job.ID] != job {
				// cancelled meanwhile
				done = true
				return nil
			}
			plan := txn.Plan{Name: "craft_complete", Produce: depositSteps(store, job.Outputs)}
			if _, err := m.engine.Execute(plan); err != nil {
				return err
			}
			job.State = JobCompleted
			job.Blocked = false
			m.forget(job)
			completed = append(completed, job.View(now))
			m.publish(EventJobCompleted, job, now)
			done = true
			return nil
		})
		if done {
			continue
		}
		m.mu.Lock()
		if m.jobs[job.ID] == job {
			if !job.Blocked {
				job.Blocked = true
				m.logger.Warn("craft blocked", "job", job.ID, "agent", job.Agent, "error", err)
				m.publish(EventJobBlocked, job, now)
			}
			retry = append(retry, job)
		}
		m.mu.Unlock()
	}

	if len(retry) > 0 {
		m.mu.Lock()
		for _, job := range retry {
			if m.jobs[job.ID] == job {
				heap.Push(m.activeJobs, job)
			}
		}
		m.mu.Unlock()
	}
	return completed
}

// Cancel refunds exactly what the running job at (station, owner) consumed
// and removes it. The caller must hold store exclusively. If the refund does
// not fit, the job keeps running.
func (m *Manager) Cancel(store *inventory.Store, station models.StationID, owner models.ParticipantID) (*Job, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	job, ok := m.bySlot[slotKey{station: station, owner: owner}]
	if !ok || job.State != JobInProgress {
		return nil, txn.Reject(txn.PreconditionFailed, "no craft in progress at this station")
	}
	if store.Owner != "" && store.Owner != job.Agent {
		return nil, txn.Reject(txn.PreconditionFailed, "craft belongs to another agent")
	}

	plan := txn.Plan{Name: "craft_cancel"}
	for _, st := range job.Consumed {
		plan.Produce = append(plan.Produce, txn.DepositStack(store, st))
	}
	if _, err := m.engine.Execute(plan); err != nil {
		return nil, err
	}

	now := m.now()
	m.activeJobs.Remove(job.ID)
	m.forget(job)
	job.State = JobCancelled
	m.logger.Info("craft cancelled", "job", job.ID, "station", station, "owner", owner)
	m.publish(EventJobCancelled, job, now)
	return job, nil
}

// StationJobs returns views of every job at a station, ordered by owner.
func (m *Manager) StationJobs(station models.StationID) []View {
	m.mu.Lock()
	defer m.mu.Unlock()
	now := m.now()
	var out []View
	for k, job := range m.bySlot {
		if k.station == station {
			out = append(out, job.View(now))
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Owner < out[j].Owner })
	return out
}

// Jobs returns views of every live job, ordered by station then owner.
func (m *Manager) Jobs() []View {
	m.mu.Lock()
	defer m.mu.Unlock()
	now := m.now()
	out := make([]View, 0, len(m.jobs))
	for _, job := range m.jobs {
		out = append(out, job.View(now))
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Station != out[j].Station {
			return out[i].Station < out[j].Station
		}
		return out[i].Owner < out[j].Owner
	})
	return out
}

// forget drops job from the indices (caller must hold lock).
func (m *Manager) forget(job *Job) {
	delete(m.jobs, job.ID)
	k := slotKey{station: job.Station, owner: job.Owner}
	if m.bySlot[k] == job {
		delete(m.bySlot, k)
	}
}

func (m *Manager) publish(t EventType, job *Job, now time.Time) {
	m.eventBus.Publish(Event{Type: t, Job: job.View(now), Agent: job.Agent, Timestamp: now})
}

func (m *Manager) resolveModifiers(station models.StationID, owner models.ParticipantID, recipe catalog.RecipeID) Modifiers {
	combined := DefaultModifiers()
	for _, source := range m.modifierSources {
		combined = combined.Combine(source.GetModifiers(station, owner, recipe))
	}
	return combined
}

// depositSteps splits outputs into deposits of at most 255 units.
func depositSteps(store *inventory.Store, outputs []catalog.Yield) []txn.Step {
	var steps []txn.Step
	for _, y := range outputs {
		for left := y.Quantity; left > 0; {
			n := left
			if n > 255 {
				n = 255
			}
			steps = append(steps, txn.Deposit(store, y.Item, uint8(n), ""))
			left -= n
		}
	}
	return steps
}

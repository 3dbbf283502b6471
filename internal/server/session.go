package server

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/gravitas-games/stationhost/internal/catalog"
	"github.com/gravitas-games/stationhost/internal/config"
	"github.com/gravitas-games/stationhost/internal/crafting"
	"github.com/gravitas-games/stationhost/internal/dispatch"
	"github.com/gravitas-games/stationhost/internal/holdings"
	"github.com/gravitas-games/stationhost/internal/inventory"
	"github.com/gravitas-games/stationhost/internal/network"
	"github.com/gravitas-games/stationhost/internal/station"
	"github.com/gravitas-games/stationhost/internal/storage"
	"github.com/gravitas-games/stationhost/internal/txn"
	"github.com/gravitas-games/stationhost/pkg/models"
)

var (
	ErrSessionFull  = errors.New("session is full")
	ErrAgentClaimed = errors.New("agent is controlled by another participant")
)

// Peer is the outbound side of a connection.
type Peer interface {
	SendMessage(msg *network.ServerMessage)
}

// Persistence is the subset of storage the session uses.
type Persistence interface {
	SaveInventory(ctx context.Context, agent models.AgentID, owner models.ParticipantID, store *inventory.Store) error
	LoadInventory(ctx context.Context, agent models.AgentID, dst *inventory.Store) error
	OwnerOf(ctx context.Context, agent models.AgentID) (models.ParticipantID, error)
	SaveVendor(ctx context.Context, st models.StationID, store *inventory.Store) error
	LoadVendor(ctx context.Context, st models.StationID, dst *inventory.Store) error
}

// Session represents a game session: the connected players and the
// economy they share.
type Session struct {
	ID        string
	CreatedAt time.Time

	players     map[models.ParticipantID]*models.Player
	connections map[models.ParticipantID]Peer
	mu          sync.RWMutex
	status      SessionStatus

	catalog    *catalog.Catalog
	holdings   *holdings.Registry
	stations   *station.Table
	crafting   *crafting.Manager
	dispatcher *dispatch.Dispatcher
	store      Persistence

	config *config.Config
	logger *slog.Logger
}

// SessionStatus represents the current state of the session
type SessionStatus struct {
	State       string `json:"state"` // "waiting", "running"
	PlayerCount int    `json:"player_count"`
	MaxPlayers  int    `json:"max_players"`
	ServerTick  int64  `json:"server_tick"`
	Uptime      int64  `json:"uptime"` // seconds
}

// NewSession wires the economy for one session and registers every vendor
// station's stock. store may be nil to run without persistence.
func NewSession(ctx context.Context, id string, cfg *config.Config, cat *catalog.Catalog, store Persistence, auditor dispatch.Auditor, logger *slog.Logger) (*Session, error) {
	if logger == nil {
		logger = slog.Default()
	}
	logger = logger.With("session", id)
	logger.Info("creating session")

	s := &Session{
		ID:          id,
		CreatedAt:   time.Now(),
		players:     make(map[models.ParticipantID]*models.Player),
		connections: make(map[models.ParticipantID]Peer),
		catalog:     cat,
		holdings:    holdings.NewRegistry(),
		stations:    station.NewTable(),
		store:       store,
		config:      cfg,
		logger:      logger,
		status: SessionStatus{
			State:      "waiting",
			MaxPlayers: cfg.Session.MaxPlayers,
		},
	}

	economy := dispatch.Economy{
		BuyPrice:         cfg.Economy.BuyPrice,
		SellReward:       cfg.Economy.SellReward,
		UseCatalogPrices: cfg.Economy.UseCatalogPrices,
	}
	if key := cfg.Economy.CombineOutput; key != "" {
		def, ok := cat.Items.LookupKey(key)
		if !ok {
			return nil, fmt.Errorf("combine output %q is not in the catalog", key)
		}
		economy.CombineOutput = def.ID
	}

	engine := txn.NewEngine(txn.WithLogger(logger))
	bus := crafting.NewSimpleEventBus()
	bus.SubscribeAll(s.onCraftEvent)
	s.crafting = crafting.NewManager(cat.Recipes, crafting.NewHoldingsInventories(s.holdings), engine,
		crafting.WithEventBus(bus),
		crafting.WithModifierSources(crafting.StationModifiers{Stations: cat.Items}),
		crafting.WithLogger(logger),
	)
	s.dispatcher = dispatch.New(cat, s.holdings, s.stations, s.crafting, engine, economy,
		dispatch.WithMirror(s),
		dispatch.WithAuditor(auditor),
		dispatch.WithLogger(logger),
	)

	if err := s.registerVendors(ctx); err != nil {
		return nil, err
	}
	return s, nil
}

func (s *Session) registerVendors(ctx context.Context) error {
	for _, st := range s.catalog.Items.Stations() {
		if st.Kind != catalog.StationVendor {
			continue
		}
		capacity := st.Capacity
		if capacity <= 0 {
			capacity = s.config.Economy.VendorCapacity
		}
		stock := inventory.New(string(st.ID), "", capacity, inventory.WithLimits(s.catalog.Items))

		loaded := false
		if s.store != nil {
			err := s.store.LoadVendor(ctx, st.ID, stock)
			switch {
			case err == nil:
				loaded = true
			case !errors.Is(err, storage.ErrNotFound):
				return fmt.Errorf("vendor %s: %w", st.ID, err)
			}
		}
		if !loaded {
			for i, item := range st.Stock {
				if !stock.TrySetSlot(inventory.General(i), item) {
					return fmt.Errorf("vendor %s: cannot stock slot %d", st.ID, i)
				}
			}
		}
		if _, err := s.holdings.Register(holdings.VendorKey(st.ID), "", stock); err != nil {
			return fmt.Errorf("vendor %s: %w", st.ID, err)
		}
		s.logger.Info("vendor registered", "station", st.ID, "slots", capacity, "restored", loaded)
	}
	return nil
}

// Dispatcher returns the session's request gate.
func (s *Session) Dispatcher() *dispatch.Dispatcher { return s.dispatcher }

// AddPlayer adds a player to the session and gives them control of their
// agent, restoring its inventory from storage when one was saved.
func (s *Session) AddPlayer(ctx context.Context, player *models.Player, conn Peer) error {
	s.mu.Lock()
	if _, rejoin := s.players[player.ID]; !rejoin && len(s.players) >= s.status.MaxPlayers {
		s.mu.Unlock()
		return ErrSessionFull
	}
	if err := s.bootstrapAgent(ctx, player); err != nil {
		s.mu.Unlock()
		return err
	}

	previous, replaced := s.connections[player.ID]
	replaced = replaced && previous != conn
	s.players[player.ID] = player
	s.connections[player.ID] = conn
	s.status.PlayerCount = len(s.players)
	s.status.State = "running"
	s.mu.Unlock()

	if replaced {
		previous.SendMessage(&network.ServerMessage{
			Type:    network.MsgTypeError,
			Payload: network.ErrorPayload{Code: "replaced", Message: "joined from another connection"},
		})
		for _, sess := range s.stations.ForParticipant(player.ID) {
			conn.SendMessage(&network.ServerMessage{
				Type:    network.MsgTypeSelection,
				Payload: network.SelectionPayload(sess.Replicated()),
			})
		}
	}

	s.logger.Info("player joined", "player", player.ID, "username", player.Username, "agent", player.AgentID, "replaced", replaced)
	return nil
}

func (s *Session) bootstrapAgent(ctx context.Context, player *models.Player) error {
	key := holdings.AgentKey(player.AgentID)
	if s.holdings.Has(key) {
		controller, _ := s.holdings.ControllerOf(player.AgentID)
		if controller != player.ID {
			return ErrAgentClaimed
		}
		return nil
	}

	store := inventory.New(string(player.AgentID), player.AgentID, s.config.Economy.GeneralSlots,
		inventory.WithLimits(s.catalog.Items),
		inventory.WithMaxCurrency(s.config.Economy.MaxCurrency),
		inventory.WithCurrency(s.config.Economy.StartingCurrency),
	)
	if s.store != nil {
		owner, err := s.store.OwnerOf(ctx, player.AgentID)
		switch {
		case errors.Is(err, storage.ErrNotFound):
		case err != nil:
			return err
		case owner != player.ID:
			return ErrAgentClaimed
		default:
			if err := s.store.LoadInventory(ctx, player.AgentID, store); err != nil {
				return err
			}
			if want := s.config.Economy.GeneralSlots; store.GeneralSize() != want && !store.ResizeKeeping(want) {
				s.logger.Warn("stored inventory does not fit the configured slots; keeping its size",
					"agent", player.AgentID, "slots", store.GeneralSize(), "configured", want)
			}
		}
	}
	_, err := s.holdings.Register(key, player.ID, store)
	return err
}

// SendInventory mirrors the player's agent to them.
func (s *Session) SendInventory(player *models.Player) {
	var snap inventory.Snapshot
	err := s.holdings.WithInventory(holdings.AgentKey(player.AgentID), func(store *inventory.Store) error {
		snap = store.Snapshot()
		return nil
	})
	if err != nil {
		s.logger.Warn("no inventory for player", "player", player.ID, "error", err)
		return
	}
	s.InventoryChanged(player.ID, snap)
}

// RemovePlayer removes a player from the session when conn is still their
// current connection. Their station sessions close, their agent is saved and
// released; craft jobs keep running and complete once the agent is back.
// It reports whether the player was removed.
func (s *Session) RemovePlayer(ctx context.Context, playerID models.ParticipantID, conn Peer) bool {
	s.mu.Lock()
	player, exists := s.players[playerID]
	if exists && s.connections[playerID] != conn {
		exists = false
	}
	if exists {
		delete(s.players, playerID)
		delete(s.connections, playerID)
		s.status.PlayerCount = len(s.players)
	}
	s.mu.Unlock()
	if !exists {
		return false
	}

	closed := s.stations.CloseAll(playerID)
	s.releaseAgent(ctx, player)
	s.logger.Info("player left", "player", playerID, "username", player.Username, "closed_stations", len(closed))
	return true
}

// releaseAgent unregisters the agent first so no lease can change it after
// the save.
func (s *Session) releaseAgent(ctx context.Context, player *models.Player) {
	store, ok := s.holdings.Remove(holdings.AgentKey(player.AgentID))
	if !ok || s.store == nil {
		return
	}
	if err := s.store.SaveInventory(ctx, player.AgentID, player.ID, store); err != nil {
		s.logger.Error("failed to save agent", "agent", player.AgentID, "error", err)
	}
}

// SaveAll persists every vendor and connected agent.
func (s *Session) SaveAll(ctx context.Context) error {
	if s.store == nil {
		return nil
	}
	var errs []error
	for _, st := range s.catalog.Items.Stations() {
		if st.Kind != catalog.StationVendor {
			continue
		}
		err := s.holdings.WithInventory(holdings.VendorKey(st.ID), func(store *inventory.Store) error {
			return s.store.SaveVendor(ctx, st.ID, store)
		})
		if err != nil {
			errs = append(errs, fmt.Errorf("vendor %s: %w", st.ID, err))
		}
	}
	for _, player := range s.GetPlayers() {
		err := s.holdings.WithInventory(holdings.AgentKey(player.AgentID), func(store *inventory.Store) error {
			return s.store.SaveInventory(ctx, player.AgentID, player.ID, store)
		})
		if err != nil {
			errs = append(errs, fmt.Errorf("agent %s: %w", player.AgentID, err))
		}
	}
	return errors.Join(errs...)
}

// Close refunds every running craft and then saves. Jobs live only in
// memory, so a job left running at shutdown would lose its inputs.
func (s *Session) Close(ctx context.Context) error {
	return errors.Join(s.refundCrafts(ctx), s.SaveAll(ctx))
}

// refundCrafts cancels every live job. Agents that are offline are loaded
// from storage, refunded and written back.
func (s *Session) refundCrafts(ctx context.Context) error {
	var errs []error
	for _, job := range s.crafting.Jobs() {
		err := s.holdings.WithInventory(holdings.AgentKey(job.Agent), func(store *inventory.Store) error {
			_, err := s.crafting.Cancel(store, job.Station, job.Owner)
			return err
		})
		if errors.Is(err, holdings.ErrUnknownHolding) {
			err = s.refundOffline(ctx, job)
		}
		if err != nil {
			errs = append(errs, fmt.Errorf("craft %s: %w", job.Job, err))
			continue
		}
		s.logger.Info("craft refunded at shutdown", "job", job.Job, "agent", job.Agent, "station", job.Station)
	}
	return errors.Join(errs...)
}

func (s *Session) refundOffline(ctx context.Context, job crafting.View) error {
	if s.store == nil {
		return fmt.Errorf("agent %s is offline and there is no storage", job.Agent)
	}
	store := inventory.New(string(job.Agent), job.Agent, s.config.Economy.GeneralSlots,
		inventory.WithLimits(s.catalog.Items),
		inventory.WithMaxCurrency(s.config.Economy.MaxCurrency),
	)
	if err := s.store.LoadInventory(ctx, job.Agent, store); err != nil {
		return err
	}
	if _, err := s.crafting.Cancel(store, job.Station, job.Owner); err != nil {
		return err
	}
	return s.store.SaveInventory(ctx, job.Agent, job.Owner, store)
}

// Run drives craft completion at the configured tick rate until ctx is
// done.
func (s *Session) Run(ctx context.Context) {
	rate := s.config.Server.TickRate
	if rate <= 0 {
		rate = 20
	}
	ticker := time.NewTicker(time.Second / time.Duration(rate))
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case now := <-ticker.C:
			s.Tick(now)
		}
	}
}

// Tick advances the session one step.
func (s *Session) Tick(now time.Time) {
	s.mu.Lock()
	s.status.ServerTick++
	s.mu.Unlock()
	if done := s.crafting.Update(now); len(done) > 0 {
		s.logger.Debug("crafts completed", "count", len(done))
	}
}

// onCraftEvent mirrors job progress to the station's observers. Completion
// also changed the agent's inventory.
func (s *Session) onCraftEvent(e crafting.Event) {
	s.CraftChanged(e.Job.Station, e.Job)
	if e.Type != crafting.EventJobCompleted {
		return
	}
	controller, ok := s.holdings.ControllerOf(e.Agent)
	if !ok {
		return
	}
	var (
		snap    inventory.Snapshot
		changed []station.Session
	)
	err := s.holdings.WithInventory(holdings.AgentKey(e.Agent), func(store *inventory.Store) error {
		snap = store.Snapshot()
		changed = s.stations.Revalidate(e.Agent, store)
		return nil
	})
	if err != nil {
		return
	}
	s.InventoryChanged(controller, snap)
	for _, sess := range changed {
		s.SelectionChanged(sess.Participant, sess.Replicated())
	}
}

// InventoryChanged implements dispatch.Mirror.
func (s *Session) InventoryChanged(controller models.ParticipantID, snap inventory.Snapshot) {
	s.sendTo(controller, &network.ServerMessage{
		Type:    network.MsgTypeInventory,
		Payload: network.InventoryPayload{Agent: snap.Owner, Inventory: snap},
	})
}

// VendorChanged implements dispatch.Mirror.
func (s *Session) VendorChanged(st models.StationID, snap inventory.Snapshot) {
	s.sendToObservers(st, &network.ServerMessage{
		Type:    network.MsgTypeVendor,
		Payload: network.VendorPayload{Station: st, Stock: snap},
	})
}

// SelectionChanged implements dispatch.Mirror.
func (s *Session) SelectionChanged(participant models.ParticipantID, replica station.Replica) {
	s.sendTo(participant, &network.ServerMessage{
		Type:    network.MsgTypeSelection,
		Payload: network.SelectionPayload(replica),
	})
}

// CraftChanged implements dispatch.Mirror.
func (s *Session) CraftChanged(st models.StationID, view crafting.View) {
	s.sendToObservers(st, &network.ServerMessage{
		Type:    network.MsgTypeCraftState,
		Payload: network.CraftStatePayload(view),
	})
}

func (s *Session) sendTo(participant models.ParticipantID, msg *network.ServerMessage) {
	s.mu.RLock()
	conn, ok := s.connections[participant]
	s.mu.RUnlock()
	if ok {
		conn.SendMessage(msg)
	}
}

func (s *Session) sendToObservers(st models.StationID, msg *network.ServerMessage) {
	seen := make(map[models.ParticipantID]bool)
	for _, sess := range s.stations.Observers(st) {
		if seen[sess.Participant] {
			continue
		}
		seen[sess.Participant] = true
		s.sendTo(sess.Participant, msg)
	}
}

// GetPlayers returns all players in the session
func (s *Session) GetPlayers() []*models.Player {
	s.mu.RLock()
	defer s.mu.RUnlock()

	players := make([]*models.Player, 0, len(s.players))
	for _, player := range s.players {
		players = append(players, player)
	}
	return players
}

// BroadcastMessage sends a message to all connected players
func (s *Session) BroadcastMessage(msg *network.ServerMessage) {
	s.BroadcastExcept(nil, msg)
}

// BroadcastExcept sends a message to all players except the specified peer
func (s *Session) BroadcastExcept(exclude Peer, msg *network.ServerMessage) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	for _, conn := range s.connections {
		if conn != exclude {
			conn.SendMessage(msg)
		}
	}
}

// GetStatus returns the current session status
func (s *Session) GetStatus() SessionStatus {
	s.mu.RLock()
	defer s.mu.RUnlock()

	status := s.status
	status.Uptime = int64(time.Since(s.CreatedAt).Seconds())
	return status
}

package network

import (
	"encoding/json"
	"fmt"

	"github.com/gravitas-games/stationhost/internal/catalog"
	"github.com/gravitas-games/stationhost/internal/crafting"
	"github.com/gravitas-games/stationhost/internal/dispatch"
	"github.com/gravitas-games/stationhost/internal/inventory"
	"github.com/gravitas-games/stationhost/internal/station"
	"github.com/gravitas-games/stationhost/internal/txn"
	"github.com/gravitas-games/stationhost/pkg/models"
)

// Message types - Client → Server
const (
	MsgTypeJoin  = "join"
	MsgTypeLeave = "leave"
	MsgTypePing  = "ping"
	// Every dispatch.Kind is also a client message type.
)

// Message types - Server → Client
const (
	MsgTypeWelcome      = "welcome"
	MsgTypePlayerJoined = "player_joined"
	MsgTypePlayerLeft   = "player_left"
	MsgTypeResult       = "result"
	MsgTypeInventory    = "inventory"
	MsgTypeVendor       = "vendor"
	MsgTypeSelection    = "selection"
	MsgTypeCraftState   = "craft_state"
	MsgTypeError        = "error"
	MsgTypePong         = "pong"
)

// ClientMessage represents any message from client to server. Ref is echoed
// back in the result so the client can match outcomes to requests.
type ClientMessage struct {
	Type    string          `json:"type"`
	Payload json.RawMessage `json:"payload"`
	Ref     string          `json:"ref,omitempty"`
}

// ServerMessage represents any message from server to client
type ServerMessage struct {
	Type    string      `json:"type"`
	Payload interface{} `json:"payload"`
}

// IsRequest reports whether msgType is routed to the dispatcher.
func IsRequest(msgType string) bool {
	switch dispatch.Kind(msgType) {
	case dispatch.KindOpenStation, dispatch.KindCloseStation, dispatch.KindSelect,
		dispatch.KindPurchase, dispatch.KindSell, dispatch.KindCombine,
		dispatch.KindAbilityUnlock, dispatch.KindAbilityAssign, dispatch.KindAbilityLevelUp,
		dispatch.KindCraft, dispatch.KindCraftCancel:
		return true
	}
	return false
}

// DecodeRequest builds a dispatcher request from a client message. The
// originator always comes from the authenticated connection.
func DecodeRequest(msg *ClientMessage, originator models.ParticipantID) (dispatch.Request, error) {
	if len(msg.Payload) == 0 {
		return nil, fmt.Errorf("%s: missing payload", msg.Type)
	}
	var (
		req dispatch.Request
		err error
	)
	switch dispatch.Kind(msg.Type) {
	case dispatch.KindOpenStation:
		var r dispatch.OpenStation
		err = json.Unmarshal(msg.Payload, &r)
		r.Originator = originator
		req = r
	case dispatch.KindCloseStation:
		var r dispatch.CloseStation
		err = json.Unmarshal(msg.Payload, &r)
		r.Originator = originator
		req = r
	case dispatch.KindSelect:
		var r dispatch.Select
		err = json.Unmarshal(msg.Payload, &r)
		r.Originator = originator
		req = r
	case dispatch.KindPurchase:
		var r dispatch.Purchase
		err = json.Unmarshal(msg.Payload, &r)
		r.Originator = originator
		req = r
	case dispatch.KindSell:
		var r dispatch.Sell
		err = json.Unmarshal(msg.Payload, &r)
		r.Originator = originator
		req = r
	case dispatch.KindCombine:
		var r dispatch.Combine
		err = json.Unmarshal(msg.Payload, &r)
		r.Originator = originator
		req = r
	case dispatch.KindAbilityUnlock:
		var r dispatch.AbilityUnlock
		err = json.Unmarshal(msg.Payload, &r)
		r.Originator = originator
		req = r
	case dispatch.KindAbilityAssign:
		var r dispatch.AbilityAssign
		err = json.Unmarshal(msg.Payload, &r)
		r.Originator = originator
		req = r
	case dispatch.KindAbilityLevelUp:
		var r dispatch.AbilityLevelUp
		err = json.Unmarshal(msg.Payload, &r)
		r.Originator = originator
		req = r
	case dispatch.KindCraft:
		var r dispatch.Craft
		err = json.Unmarshal(msg.Payload, &r)
		r.Originator = originator
		req = r
	case dispatch.KindCraftCancel:
		var r dispatch.CraftCancel
		err = json.Unmarshal(msg.Payload, &r)
		r.Originator = originator
		req = r
	default:
		return nil, fmt.Errorf("unknown request type %q", msg.Type)
	}
	if err != nil {
		return nil, fmt.Errorf("%s: %w", msg.Type, err)
	}
	return req, nil
}

// --- Server Message Payloads ---

// WelcomePayload is sent to client after successful connection
type WelcomePayload struct {
	PlayerID      models.ParticipantID     `json:"player_id"`
	Username      string                   `json:"username"`
	AgentID       models.AgentID           `json:"agent_id"`
	SessionID     string                   `json:"session_id"`
	SessionStatus SessionStatus            `json:"session_status"`
	Stations      []catalog.Station        `json:"stations"`
	Items         []catalog.ItemDefinition `json:"items"`
	Recipes       []*catalog.Recipe        `json:"recipes"`
}

// PlayerJoinedPayload notifies clients when a player joins
type PlayerJoinedPayload struct {
	PlayerID models.ParticipantID `json:"player_id"`
	Username string               `json:"username"`
}

// PlayerLeftPayload notifies clients when a player leaves
type PlayerLeftPayload struct {
	PlayerID models.ParticipantID `json:"player_id"`
	Username string               `json:"username"`
}

// ResultPayload answers one request.
type ResultPayload struct {
	Ref     string   `json:"ref,omitempty"`
	Request string   `json:"request"`
	Code    txn.Code `json:"code"`
	Reason  string   `json:"reason,omitempty"`
}

// InventoryPayload mirrors the controlled agent's store.
type InventoryPayload struct {
	Agent     models.AgentID     `json:"agent"`
	Inventory inventory.Snapshot `json:"inventory"`
}

// VendorPayload mirrors a vendor's stock to everyone with it open.
type VendorPayload struct {
	Station models.StationID   `json:"station"`
	Stock   inventory.Snapshot `json:"stock"`
}

// SelectionPayload mirrors a station session to its participant.
type SelectionPayload = station.Replica

// CraftStatePayload mirrors a craft job to observers of its station.
type CraftStatePayload = crafting.View

// SessionStatus represents the current session state
type SessionStatus struct {
	State       string `json:"state"`
	PlayerCount int    `json:"player_count"`
	MaxPlayers  int    `json:"max_players"`
	ServerTick  int64  `json:"server_tick"`
	Uptime      int64  `json:"uptime"`
}

// ErrorPayload contains error information
type ErrorPayload struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

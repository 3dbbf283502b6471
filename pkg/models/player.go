package models

import "time"

// ParticipantID identifies a connected participant (the authenticated user).
type ParticipantID string

// AgentID identifies a participant-controlled resource that owns an inventory.
type AgentID string

// StationID identifies an interaction point.
type StationID string

// Player represents a player in the game
type Player struct {
	// From JWT claims
	ID          ParticipantID `json:"id"`          // Converted from int64 user_id
	Username    string        `json:"username"`    // JWT claim
	Email       string        `json:"email"`       // JWT claim
	UserType    string        `json:"user_type"`   // JWT claim (deprecated, use permissions)
	Permissions int64         `json:"permissions"` // JWT claim: bitwise permission flags
	Activated   int64         `json:"activated"`   // JWT claim: activation timestamp or ban status
	AuthMethod  string        `json:"auth_method"` // JWT claim: "password" or "oauth"

	// Connection state
	Connected   bool      `json:"connected"`
	ConnectedAt time.Time `json:"connected_at"`
	LastSeen    time.Time `json:"last_seen"`

	// Session state
	SessionID string `json:"session_id"`

	// AgentID is the inventory-owning agent this player controls. Assigned by
	// the host on authentication; clients may only act on this agent.
	AgentID AgentID `json:"agent_id,omitempty"`
}

// IsActive checks if the player account is activated and not banned
func (p *Player) IsActive() bool {
	// activated > 0 means activated
	// activated == 0 means not activated
	// activated == -1 means banned
	return p.Activated > 0
}

// IsBanned checks if the player is banned
func (p *Player) IsBanned() bool {
	return p.Activated == -1
}

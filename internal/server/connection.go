package server

import (
	"context"
	"encoding/json"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/gravitas-games/stationhost/internal/network"
	"github.com/gravitas-games/stationhost/internal/txn"
	"github.com/gravitas-games/stationhost/pkg/models"
)

const (
	// Time allowed to write a message to the peer
	writeWait = 10 * time.Second

	// Time allowed to read the next pong message from the peer
	pongWait = 60 * time.Second

	// Send pings to peer with this period (must be less than pongWait)
	pingPeriod = (pongWait * 9) / 10

	// Maximum message size allowed from peer
	maxMessageSize = 8192
)

// Connection represents a WebSocket connection to a client
type Connection struct {
	ID string

	ws     *websocket.Conn
	server *Server
	logger *slog.Logger

	// Player information (set after authentication)
	player *models.Player

	// Buffered channel for outbound messages
	send chan []byte

	mu       sync.Mutex
	closed   bool
	joined   bool
	closeOne sync.Once
}

// NewConnection creates a new connection for an authenticated player
func NewConnection(ws *websocket.Conn, server *Server, player *models.Player) *Connection {
	id := uuid.NewString()
	return &Connection{
		ID:     id,
		ws:     ws,
		server: server,
		player: player,
		logger: server.logger.With("conn", id, "player", player.ID),
		send:   make(chan []byte, 256),
	}
}

// Handle manages the connection lifecycle
func (c *Connection) Handle() {
	c.ws.SetReadLimit(maxMessageSize)
	c.ws.SetReadDeadline(time.Now().Add(pongWait))
	c.ws.SetPongHandler(func(string) error {
		c.ws.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	go c.writePump()
	c.readPump() // Blocking
}

// readPump pumps messages from the WebSocket connection to the server
func (c *Connection) readPump() {
	defer c.Close()

	for {
		_, message, err := c.ws.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				c.logger.Warn("websocket read error", "error", err)
			}
			break
		}

		var clientMsg network.ClientMessage
		if err := json.Unmarshal(message, &clientMsg); err != nil {
			c.logger.Debug("failed to parse client message", "error", err)
			c.SendError("invalid_message", "Failed to parse message")
			continue
		}

		c.handleMessage(&clientMsg)
	}
}

// writePump pumps messages from the send channel to the WebSocket connection
func (c *Connection) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.ws.Close()
	}()

	for {
		select {
		case message, ok := <-c.send:
			c.ws.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				c.ws.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.ws.WriteMessage(websocket.TextMessage, message); err != nil {
				c.logger.Warn("websocket write error", "error", err)
				return
			}

		case <-ticker.C:
			c.ws.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.ws.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}

		case <-c.server.ctx.Done():
			return
		}
	}
}

// handleMessage routes messages to appropriate handlers
func (c *Connection) handleMessage(msg *network.ClientMessage) {
	c.logger.Debug("received message", "type", msg.Type)

	switch {
	case msg.Type == network.MsgTypeJoin:
		c.handleJoin()
	case msg.Type == network.MsgTypeLeave:
		c.handleLeave()
	case msg.Type == network.MsgTypePing:
		c.handlePing()
	case network.IsRequest(msg.Type):
		c.handleRequest(msg)
	default:
		c.SendError("unknown_message_type", "Unknown message type")
	}
}

// handleJoin adds the player to the session and hands them their agent.
func (c *Connection) handleJoin() {
	session := c.server.session
	if err := session.AddPlayer(c.server.ctx, c.player, c); err != nil {
		c.logger.Warn("failed to add player to session", "error", err)
		c.SendError("join_failed", err.Error())
		return
	}
	c.mu.Lock()
	c.joined = true
	c.mu.Unlock()

	status := session.GetStatus()
	c.SendMessage(&network.ServerMessage{
		Type: network.MsgTypeWelcome,
		Payload: network.WelcomePayload{
			PlayerID:  c.player.ID,
			Username:  c.player.Username,
			AgentID:   c.player.AgentID,
			SessionID: session.ID,
			SessionStatus: network.SessionStatus{
				State:       status.State,
				PlayerCount: status.PlayerCount,
				MaxPlayers:  status.MaxPlayers,
				ServerTick:  status.ServerTick,
				Uptime:      status.Uptime,
			},
			Stations: session.catalog.Items.Stations(),
			Items:    session.catalog.Items.Export(),
			Recipes:  session.catalog.Recipes.GetAll(),
		},
	})
	session.SendInventory(c.player)

	session.BroadcastExcept(c, &network.ServerMessage{
		Type: network.MsgTypePlayerJoined,
		Payload: network.PlayerJoinedPayload{
			PlayerID: c.player.ID,
			Username: c.player.Username,
		},
	})
}

// handleLeave removes the player from the session
func (c *Connection) handleLeave() {
	c.mu.Lock()
	joined := c.joined
	c.joined = false
	c.mu.Unlock()
	if !joined {
		return
	}

	if !c.server.session.RemovePlayer(context.Background(), c.player.ID, c) {
		return
	}
	c.server.session.BroadcastMessage(&network.ServerMessage{
		Type: network.MsgTypePlayerLeft,
		Payload: network.PlayerLeftPayload{
			PlayerID: c.player.ID,
			Username: c.player.Username,
		},
	})
}

// handleRequest passes an economy request to the dispatcher and answers
// with its outcome. The originator is always the authenticated player.
func (c *Connection) handleRequest(msg *network.ClientMessage) {
	c.mu.Lock()
	joined := c.joined
	c.mu.Unlock()

	result := network.ResultPayload{Ref: msg.Ref, Request: msg.Type}
	if !joined {
		result.Code = txn.Unauthorized
		result.Reason = "join the session first"
		c.SendMessage(&network.ServerMessage{Type: network.MsgTypeResult, Payload: result})
		return
	}

	req, err := network.DecodeRequest(msg, c.player.ID)
	if err != nil {
		result.Code = txn.PreconditionFailed
		result.Reason = err.Error()
		c.SendMessage(&network.ServerMessage{Type: network.MsgTypeResult, Payload: result})
		return
	}

	out := c.server.session.Dispatcher().Dispatch(req)
	result.Code = out.Code
	result.Reason = out.Reason
	c.SendMessage(&network.ServerMessage{Type: network.MsgTypeResult, Payload: result})
}

// handlePing handles ping requests
func (c *Connection) handlePing() {
	c.SendMessage(&network.ServerMessage{
		Type:    network.MsgTypePong,
		Payload: map[string]interface{}{"timestamp": time.Now().Unix()},
	})
}

// SendMessage queues a message for the client. Messages to a closed or
// backed-up connection are dropped.
func (c *Connection) SendMessage(msg *network.ServerMessage) {
	data, err := json.Marshal(msg)
	if err != nil {
		c.logger.Error("failed to marshal message", "type", msg.Type, "error", err)
		return
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return
	}
	select {
	case c.send <- data:
	default:
		c.logger.Warn("send buffer full, dropping message", "type", msg.Type)
	}
}

// SendError sends an error message to the client
func (c *Connection) SendError(code, message string) {
	c.SendMessage(&network.ServerMessage{
		Type: network.MsgTypeError,
		Payload: network.ErrorPayload{
			Code:    code,
			Message: message,
		},
	})
}

// Close leaves the session and closes the connection. Safe to call more
// than once.
func (c *Connection) Close() {
	c.closeOne.Do(func() {
		c.handleLeave()

		c.mu.Lock()
		c.closed = true
		close(c.send)
		c.mu.Unlock()

		c.ws.Close()
	})
}

package server

import (
	"context"
	"crypto/ecdsa"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/gorilla/websocket"

	"github.com/gravitas-games/stationhost/internal/catalog"
	"github.com/gravitas-games/stationhost/internal/config"
	"github.com/gravitas-games/stationhost/internal/dispatch"
)

// Server represents the station host
type Server struct {
	config       *config.Config
	session      *Session
	upgrader     websocket.Upgrader
	httpSrv      *http.Server
	jwtValidator *JWTValidator
	redis        *redis.Client
	logger       *slog.Logger

	// Connection tracking
	connections map[*Connection]bool
	connMu      sync.RWMutex

	// Shutdown
	ctx    context.Context
	cancel context.CancelFunc
}

// Option configures a Server.
type Option func(*options)

type options struct {
	logger    *slog.Logger
	auditor   dispatch.Auditor
	store     Persistence
	publicKey *ecdsa.PublicKey
	blacklist Blacklist
}

// WithLogger sets the server logger.
func WithLogger(l *slog.Logger) Option {
	return func(o *options) { o.logger = l }
}

// WithAuditor records every dispatched outcome.
func WithAuditor(a dispatch.Auditor) Option {
	return func(o *options) { o.auditor = a }
}

// WithPersistence restores and saves agents and vendors.
func WithPersistence(p Persistence) Option {
	return func(o *options) { o.store = p }
}

// WithPublicKey pins the signing key instead of fetching it, and checks
// tokens against blacklist rather than Redis. blacklist may be nil.
func WithPublicKey(key *ecdsa.PublicKey, blacklist Blacklist) Option {
	return func(o *options) {
		o.publicKey = key
		o.blacklist = blacklist
	}
}

// New creates a new server instance
func New(cfg *config.Config, cat *catalog.Catalog, opts ...Option) (*Server, error) {
	o := options{logger: slog.Default()}
	for _, opt := range opts {
		opt(&o)
	}
	logger := o.logger
	logger.Info("initializing server")

	ctx, cancel := context.WithCancel(context.Background())

	srv := &Server{
		config:      cfg,
		connections: make(map[*Connection]bool),
		ctx:         ctx,
		cancel:      cancel,
		logger:      logger,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin: func(r *http.Request) bool {
				// TODO: restrict to the configured client origins once they are in config
				return true
			},
		},
	}

	if o.publicKey != nil {
		srv.jwtValidator = NewStaticJWTValidator(cfg, o.publicKey, o.blacklist, logger)
	} else {
		srv.redis = redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Address,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		if err := srv.redis.Ping(ctx).Err(); err != nil {
			cancel()
			return nil, fmt.Errorf("failed to connect to Redis: %w", err)
		}
		logger.Info("connected to Redis", "address", cfg.Redis.Address)

		v, err := NewJWTValidator(ctx, cfg, RedisBlacklist{Client: srv.redis}, logger)
		if err != nil {
			cancel()
			return nil, fmt.Errorf("failed to initialize JWT validator: %w", err)
		}
		srv.jwtValidator = v
	}

	session, err := NewSession(ctx, "main", cfg, cat, o.store, o.auditor, logger)
	if err != nil {
		cancel()
		return nil, err
	}
	srv.session = session

	logger.Info("server initialized")
	return srv, nil
}

// Session returns the game session.
func (s *Server) Session() *Session { return s.session }

// Handler returns the HTTP routes.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/ws", s.handleWebSocket)
	mux.HandleFunc("/health", s.handleHealth)
	return mux
}

// Start runs the session tick loop and listens for connections
func (s *Server) Start(addr string) error {
	go s.session.Run(s.ctx)

	s.httpSrv = &http.Server{
		Addr:         addr,
		Handler:      s.Handler(),
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	s.logger.Info("websocket server listening", "ws", fmt.Sprintf("ws://%s/ws", addr), "health", fmt.Sprintf("http://%s/health", addr))

	if err := s.httpSrv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return err
	}
	return nil
}

// Shutdown gracefully stops the server
func (s *Server) Shutdown() error {
	s.logger.Info("shutting down server")

	s.cancel()

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if s.httpSrv != nil {
		if err := s.httpSrv.Shutdown(ctx); err != nil {
			s.logger.Warn("HTTP server shutdown error", "error", err)
		}
	}

	// Close connections outside connMu; Close leaves the session
	s.connMu.RLock()
	conns := make([]*Connection, 0, len(s.connections))
	for conn := range s.connections {
		conns = append(conns, conn)
	}
	s.connMu.RUnlock()
	for _, conn := range conns {
		conn.Close()
	}

	var err error
	if saveErr := s.session.Close(ctx); saveErr != nil {
		s.logger.Error("failed to save session state", "error", saveErr)
		err = saveErr
	}

	if s.redis != nil {
		if closeErr := s.redis.Close(); closeErr != nil {
			s.logger.Warn("Redis close error", "error", closeErr)
		}
	}

	s.logger.Info("server shutdown complete")
	return err
}

// handleWebSocket handles WebSocket connection requests
func (s *Server) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	tokenString := extractTokenFromHeader(r)
	if tokenString == "" {
		s.logger.Info("missing JWT token", "remote", r.RemoteAddr)
		http.Error(w, "Missing authentication token", http.StatusUnauthorized)
		return
	}

	player, err := s.jwtValidator.ValidateToken(r.Context(), tokenString)
	if err != nil {
		s.logger.Info("invalid JWT token", "remote", r.RemoteAddr, "error", err)
		http.Error(w, fmt.Sprintf("Invalid token: %v", err), http.StatusUnauthorized)
		return
	}

	ws, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Warn("websocket upgrade failed", "error", err)
		return
	}

	player.Connected = true
	player.ConnectedAt = time.Now()
	player.SessionID = s.session.ID
	conn := NewConnection(ws, s, player)

	s.connMu.Lock()
	s.connections[conn] = true
	s.connMu.Unlock()

	conn.logger.Info("websocket connection established", "username", player.Username, "remote", r.RemoteAddr)

	conn.Handle()

	s.connMu.Lock()
	delete(s.connections, conn)
	s.connMu.Unlock()

	conn.logger.Info("websocket connection closed", "remote", r.RemoteAddr)
}

// handleHealth handles health check requests
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	fmt.Fprintf(w, `{"status":"ok","players":%d}`, s.session.GetStatus().PlayerCount)
}

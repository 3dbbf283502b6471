package server

import (
	"context"
	"crypto/ecdsa"
	"crypto/x509"
	"encoding/pem"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/golang-jwt/jwt/v5"

	"github.com/gravitas-games/stationhost/internal/config"
	"github.com/gravitas-games/stationhost/pkg/models"
)

// Blacklist reports revoked users.
type Blacklist interface {
	Exists(ctx context.Context, key string) (bool, error)
}

// RedisBlacklist checks revocations with EXISTS.
type RedisBlacklist struct {
	Client *redis.Client
}

func (b RedisBlacklist) Exists(ctx context.Context, key string) (bool, error) {
	n, err := b.Client.Exists(ctx, key).Result()
	return n > 0, err
}

// JWTValidator handles JWT token validation
type JWTValidator struct {
	config    *config.Config
	publicKey *ecdsa.PublicKey
	keyMu     sync.RWMutex
	blacklist Blacklist
	logger    *slog.Logger
	now       func() time.Time
}

// Claims represents JWT token claims from the login server. AgentID is
// optional; without it the player controls the agent named after their id.
type Claims struct {
	UserID      int64  `json:"user_id"`
	Email       string `json:"email"`
	Username    string `json:"username"`
	UserType    string `json:"user_type"`
	AuthMethod  string `json:"auth_method"`
	Permissions int64  `json:"permissions"`
	Activated   int64  `json:"activated"`
	AgentID     string `json:"agent_id,omitempty"`
	jwt.RegisteredClaims
}

// NewJWTValidator creates a validator that fetches its key from the login
// server and refreshes it until ctx is done.
func NewJWTValidator(ctx context.Context, cfg *config.Config, blacklist Blacklist, logger *slog.Logger) (*JWTValidator, error) {
	validator := newValidator(cfg, blacklist, logger)

	if err := validator.RefreshPublicKey(ctx); err != nil {
		return nil, fmt.Errorf("failed to fetch public key: %w", err)
	}

	go validator.periodicKeyRefresh(ctx)

	validator.logger.Info("JWT validator initialized")
	return validator, nil
}

// NewStaticJWTValidator creates a validator with a fixed key.
func NewStaticJWTValidator(cfg *config.Config, key *ecdsa.PublicKey, blacklist Blacklist, logger *slog.Logger) *JWTValidator {
	v := newValidator(cfg, blacklist, logger)
	v.publicKey = key
	return v
}

func newValidator(cfg *config.Config, blacklist Blacklist, logger *slog.Logger) *JWTValidator {
	if logger == nil {
		logger = slog.Default()
	}
	return &JWTValidator{
		config:    cfg,
		blacklist: blacklist,
		logger:    logger.With("component", "auth"),
		now:       time.Now,
	}
}

// RefreshPublicKey fetches the public key from the login server
func (v *JWTValidator) RefreshPublicKey(ctx context.Context) error {
	v.logger.Info("fetching public key", "url", v.config.JWT.PublicKeyURL)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, v.config.JWT.PublicKeyURL, nil)
	if err != nil {
		return err
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return fmt.Errorf("failed to fetch public key: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("public key endpoint returned status %d", resp.StatusCode)
	}

	keyData, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("failed to read public key: %w", err)
	}

	key, err := ParsePublicKey(keyData)
	if err != nil {
		return err
	}

	v.keyMu.Lock()
	v.publicKey = key
	v.keyMu.Unlock()

	v.logger.Info("public key refreshed")
	return nil
}

// ParsePublicKey decodes a PEM encoded ECDSA public key.
func ParsePublicKey(pemData []byte) (*ecdsa.PublicKey, error) {
	block, _ := pem.Decode(pemData)
	if block == nil {
		return nil, fmt.Errorf("failed to decode PEM block")
	}
	pubKey, err := x509.ParsePKIXPublicKey(block.Bytes)
	if err != nil {
		return nil, fmt.Errorf("failed to parse public key: %w", err)
	}
	ecdsaKey, ok := pubKey.(*ecdsa.PublicKey)
	if !ok {
		return nil, fmt.Errorf("public key is not ECDSA")
	}
	return ecdsaKey, nil
}

// periodicKeyRefresh refreshes the public key periodically
func (v *JWTValidator) periodicKeyRefresh(ctx context.Context) {
	refreshInterval := time.Duration(v.config.JWT.PublicKeyRefreshHrs) * time.Hour

	ticker := time.NewTicker(refreshInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := v.RefreshPublicKey(ctx); err != nil {
				v.logger.Warn("failed to refresh public key", "error", err)
			}
		}
	}
}

// ValidateToken validates a JWT token and returns player information
func (v *JWTValidator) ValidateToken(ctx context.Context, tokenString string) (*models.Player, error) {
	token, err := jwt.ParseWithClaims(tokenString, &Claims{}, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodECDSA); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}

		v.keyMu.RLock()
		defer v.keyMu.RUnlock()
		return v.publicKey, nil
	}, jwt.WithTimeFunc(v.now))
	if err != nil {
		return nil, fmt.Errorf("failed to parse token: %w", err)
	}

	claims, ok := token.Claims.(*Claims)
	if !ok || !token.Valid {
		return nil, fmt.Errorf("invalid token claims")
	}

	if claims.Issuer != v.config.JWT.Issuer {
		return nil, fmt.Errorf("invalid issuer: expected %s, got %s", v.config.JWT.Issuer, claims.Issuer)
	}

	userIDStr := strconv.FormatInt(claims.UserID, 10)
	agent := models.AgentID(claims.AgentID)
	if agent == "" {
		agent = models.AgentID("agent-" + userIDStr)
	}
	player := &models.Player{
		ID:          models.ParticipantID(userIDStr),
		Username:    claims.Username,
		Email:       claims.Email,
		UserType:    claims.UserType,
		Permissions: claims.Permissions,
		Activated:   claims.Activated,
		AuthMethod:  claims.AuthMethod,
		AgentID:     agent,
	}
	if player.IsBanned() {
		return nil, fmt.Errorf("user is banned")
	}
	if !player.IsActive() {
		return nil, fmt.Errorf("user not activated")
	}

	if v.blacklist != nil {
		blacklistKey := v.config.Redis.BlacklistPrefix + userIDStr
		listed, err := v.blacklist.Exists(ctx, blacklistKey)
		if err != nil {
			// Redis being down does not block authentication
			v.logger.Warn("failed to check blacklist", "error", err)
		} else if listed {
			return nil, fmt.Errorf("token is blacklisted")
		}
	}

	return player, nil
}

// extractTokenFromHeader extracts JWT token from WebSocket connection header
func extractTokenFromHeader(r *http.Request) string {
	// Sec-WebSocket-Protocol: "access_token, <token>"
	if protocols := r.Header.Get("Sec-WebSocket-Protocol"); protocols != "" {
		parts := splitAndTrim(protocols, ",")
		if len(parts) == 2 && parts[0] == "access_token" {
			return parts[1]
		}
	}

	if auth := r.Header.Get("Authorization"); strings.HasPrefix(auth, "Bearer ") {
		return strings.TrimPrefix(auth, "Bearer ")
	}

	// less secure, but supported
	return r.URL.Query().Get("token")
}

func splitAndTrim(s, sep string) []string {
	var result []string
	for _, part := range strings.Split(s, sep) {
		if trimmed := strings.TrimSpace(part); trimmed != "" {
			result = append(result, trimmed)
		}
	}
	return result
}

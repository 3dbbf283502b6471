package server

import (
	"context"
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/rand"
	"crypto/x509"
	"encoding/pem"
	"errors"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gravitas-games/stationhost/internal/config"
	"github.com/gravitas-games/stationhost/pkg/models"
)

type fakeBlacklist struct {
	keys map[string]bool
	err  error
}

func (f fakeBlacklist) Exists(_ context.Context, key string) (bool, error) {
	return f.keys[key], f.err
}

func testConfig() *config.Config {
	cfg := &config.Config{}
	cfg.JWT.Issuer = "login"
	cfg.Redis.BlacklistPrefix = "bl:"
	cfg.Session.MaxPlayers = 4
	cfg.Server.TickRate = 20
	cfg.Economy.BuyPrice = 10
	cfg.Economy.SellReward = 3
	cfg.Economy.MaxCurrency = 1000
	cfg.Economy.StartingCurrency = 10
	cfg.Economy.GeneralSlots = 4
	cfg.Economy.VendorCapacity = 4
	cfg.Economy.CombineOutput = "elixir"
	return cfg
}

func newKey(t *testing.T) *ecdsa.PrivateKey {
	t.Helper()
	key, err := ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
	require.NoError(t, err)
	return key
}

func sign(t *testing.T, key *ecdsa.PrivateKey, claims Claims) string {
	t.Helper()
	if claims.Issuer == "" {
		claims.Issuer = "login"
	}
	if claims.ExpiresAt == nil {
		claims.ExpiresAt = jwt.NewNumericDate(time.Now().Add(time.Hour))
	}
	tok, err := jwt.NewWithClaims(jwt.SigningMethodES256, claims).SignedString(key)
	require.NoError(t, err)
	return tok
}

func TestValidateToken(t *testing.T) {
	key := newKey(t)
	v := NewStaticJWTValidator(testConfig(), &key.PublicKey, fakeBlacklist{keys: map[string]bool{"bl:13": true}}, nil)
	ctx := context.Background()

	player, err := v.ValidateToken(ctx, sign(t, key, Claims{UserID: 7, Username: "ana", Activated: 1}))
	require.NoError(t, err)
	assert.Equal(t, models.ParticipantID("7"), player.ID)
	assert.Equal(t, models.AgentID("agent-7"), player.AgentID)

	player, err = v.ValidateToken(ctx, sign(t, key, Claims{UserID: 8, Activated: 1, AgentID: "mule-1"}))
	require.NoError(t, err)
	assert.Equal(t, models.AgentID("mule-1"), player.AgentID)

	cases := map[string]Claims{
		"wrong issuer":  {UserID: 7, Activated: 1, RegisteredClaims: jwt.RegisteredClaims{Issuer: "elsewhere"}},
		"not activated": {UserID: 7},
		"banned":        {UserID: 7, Activated: -1},
		"negative":      {UserID: 7, Activated: -2},
		"blacklisted":   {UserID: 13, Activated: 1},
		"expired":       {UserID: 7, Activated: 1, RegisteredClaims: jwt.RegisteredClaims{ExpiresAt: jwt.NewNumericDate(time.Now().Add(-time.Minute))}},
	}
	for name, claims := range cases {
		_, err := v.ValidateToken(ctx, sign(t, key, claims))
		assert.Error(t, err, name)
	}

	_, err = v.ValidateToken(ctx, sign(t, newKey(t), Claims{UserID: 7, Activated: 1}))
	assert.Error(t, err, "foreign key")
}

func TestBlacklistOutageDoesNotBlock(t *testing.T) {
	key := newKey(t)
	v := NewStaticJWTValidator(testConfig(), &key.PublicKey, fakeBlacklist{err: errors.New("redis down")}, nil)
	_, err := v.ValidateToken(context.Background(), sign(t, key, Claims{UserID: 7, Activated: 1}))
	assert.NoError(t, err)
}

func TestParsePublicKey(t *testing.T) {
	key := newKey(t)
	der, err := x509.MarshalPKIXPublicKey(&key.PublicKey)
	require.NoError(t, err)
	parsed, err := ParsePublicKey(pem.EncodeToMemory(&pem.Block{Type: "PUBLIC KEY", Bytes: der}))
	require.NoError(t, err)
	assert.True(t, parsed.Equal(&key.PublicKey))

	_, err = ParsePublicKey([]byte("not a key"))
	assert.Error(t, err)
}

func TestExtractToken(t *testing.T) {
	r := httptest.NewRequest("GET", "/ws", nil)
	r.Header.Set("Sec-WebSocket-Protocol", "access_token, abc")
	assert.Equal(t, "abc", extractTokenFromHeader(r))

	r = httptest.NewRequest("GET", "/ws", nil)
	r.Header.Set("Authorization", "Bearer xyz")
	assert.Equal(t, "xyz", extractTokenFromHeader(r))

	r = httptest.NewRequest("GET", "/ws?token=q", nil)
	assert.Equal(t, "q", extractTokenFromHeader(r))

	assert.Empty(t, extractTokenFromHeader(httptest.NewRequest("GET", "/ws", nil)))
}

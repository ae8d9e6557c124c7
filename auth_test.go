package main

import (
	"strings"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type memorySettings map[string]string

func (m memorySettings) GetSetting(key string) string { return m[key] }

func (m memorySettings) SetSetting(key, value string) error {
	m[key] = value
	return nil
}

func TestTokenRoundTrip(t *testing.T) {
	a := NewAuth("test-secret", time.Hour, nil, zap.NewNop())

	tok, err := a.IssueToken("player-1", "alice", "match-1")
	require.NoError(t, err)

	pid, mid, err := a.ValidateToken(tok)
	require.NoError(t, err)
	assert.Equal(t, "player-1", pid)
	assert.Equal(t, "match-1", mid)
}

func TestTokenRejectsForeignSecret(t *testing.T) {
	a := NewAuth("one", time.Hour, nil, zap.NewNop())
	b := NewAuth("two", time.Hour, nil, zap.NewNop())

	tok, err := a.IssueToken("player-1", "alice", "match-1")
	require.NoError(t, err)
	_, _, err = b.ValidateToken(tok)
	assert.Error(t, err)

	_, _, err = a.ValidateToken(tok + "x")
	assert.Error(t, err, "tampered signature")
	_, _, err = a.ValidateToken("not-a-token")
	assert.Error(t, err)
}

func TestTokenRejectsExpired(t *testing.T) {
	a := NewAuth("secret", time.Hour, nil, zap.NewNop())
	claims := jwt.MapClaims{
		"pid": "player-1",
		"mid": "match-1",
		"exp": time.Now().Add(-time.Minute).Unix(),
	}
	tok, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte("secret"))
	require.NoError(t, err)

	_, _, err = a.ValidateToken(tok)
	assert.ErrorIs(t, err, jwt.ErrTokenExpired)
}

func TestTokenRequiresPlayerID(t *testing.T) {
	a := NewAuth("secret", time.Hour, nil, zap.NewNop())
	tok, err := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{"mid": "m"}).SignedString([]byte("secret"))
	require.NoError(t, err)
	_, _, err = a.ValidateToken(tok)
	assert.ErrorContains(t, err, "invalid token claims")
}

func TestSecretPersistedInStore(t *testing.T) {
	store := memorySettings{}
	first := NewAuth("", time.Hour, store, zap.NewNop())
	require.Len(t, store[secretSetting], 64, "hex encoded 32 byte secret")

	tok, err := first.IssueToken("player-1", "alice", "match-1")
	require.NoError(t, err)

	second := NewAuth("", time.Hour, store, zap.NewNop())
	pid, _, err := second.ValidateToken(tok)
	require.NoError(t, err, "a restarted server should accept old tokens")
	assert.Equal(t, "player-1", pid)
}

func TestSecretWithoutStoreIsRandom(t *testing.T) {
	a := NewAuth("", time.Hour, nil, zap.NewNop())
	b := NewAuth("", time.Hour, nil, zap.NewNop())
	assert.NotEqual(t, a.jwtSecret, b.jwtSecret)
}

func TestHashPassword(t *testing.T) {
	_, err := HashPassword("abc")
	require.Error(t, err)

	hash, err := HashPassword("correct horse")
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(hash, "$2a$"))
	assert.True(t, CheckPassword(hash, "correct horse"))
	assert.False(t, CheckPassword(hash, "wrong horse"))
	assert.False(t, CheckPassword("not a hash", "correct horse"))
}

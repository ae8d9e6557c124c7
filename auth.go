package main

import (
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"
)

const (
	bcryptCost     = 12
	minPasswordLen = 4
	secretSetting  = "jwt_secret"
)

// Auth mints and checks the tokens that bind a connection to a player
type Auth struct {
	jwtSecret []byte
	ttl       time.Duration
}

// SettingStore is the key/value part of the database used for the secret
type SettingStore interface {
	GetSetting(key string) string
	SetSetting(key, value string) error
}

// NewAuth creates an Auth. The secret comes from configuration, else from
// the settings store, else it is generated (and persisted when possible).
func NewAuth(secret string, ttl time.Duration, store SettingStore, log *zap.Logger) *Auth {
	a := &Auth{ttl: ttl}
	if secret != "" {
		a.jwtSecret = []byte(secret)
	} else {
		a.jwtSecret = loadOrCreateSecret(store, log)
	}
	return a
}

// loadOrCreateSecret loads the JWT secret from the store, or generates and
// persists a new one if none exists
func loadOrCreateSecret(store SettingStore, log *zap.Logger) []byte {
	if store != nil {
		if h := store.GetSetting(secretSetting); h != "" {
			if b, err := hex.DecodeString(h); err == nil && len(b) == 32 {
				return b
			}
		}
	}
	secret := make([]byte, 32)
	if _, err := rand.Read(secret); err != nil {
		panic("failed to generate JWT secret: " + err.Error())
	}
	if store != nil {
		if err := store.SetSetting(secretSetting, hex.EncodeToString(secret)); err != nil {
			log.Warn("Could not persist JWT secret", zap.Error(err))
		}
	}
	return secret
}

// IssueToken returns a signed token for a joined player
func (a *Auth) IssueToken(playerID, name, matchID string) (string, error) {
	now := time.Now()
	claims := jwt.MapClaims{
		"pid": playerID,
		"usr": name,
		"mid": matchID,
		"iat": now.Unix(),
	}
	if a.ttl > 0 {
		claims["exp"] = now.Add(a.ttl).Unix()
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(a.jwtSecret)
}

// ValidateToken checks the signature and returns (playerID, matchID)
func (a *Auth) ValidateToken(tokenStr string) (string, string, error) {
	token, err := jwt.Parse(tokenStr, func(t *jwt.Token) (any, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method")
		}
		return a.jwtSecret, nil
	})
	if err != nil {
		return "", "", err
	}

	claims, ok := token.Claims.(jwt.MapClaims)
	if !ok || !token.Valid {
		return "", "", fmt.Errorf("invalid token")
	}
	pid, ok := claims["pid"].(string)
	if !ok || pid == "" {
		return "", "", fmt.Errorf("invalid token claims")
	}
	mid, _ := claims["mid"].(string)
	return pid, mid, nil
}

// HashPassword produces the bcrypt hash stored as server.join_password_hash
func HashPassword(password string) (string, error) {
	if len(password) < minPasswordLen {
		return "", fmt.Errorf("password must be at least %d characters", minPasswordLen)
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcryptCost)
	if err != nil {
		return "", err
	}
	return string(hash), nil
}

// CheckPassword reports whether password matches the bcrypt hash
func CheckPassword(hash, password string) bool {
	return bcrypt.CompareHashAndPassword([]byte(hash), []byte(password)) == nil
}

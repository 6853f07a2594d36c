// internal/auth/auth.go
package auth

import (
	"crypto/hmac"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/Corphon/StoryWriter/internal/models"
)

// TokenConfig holds the configuration for token generation
type TokenConfig struct {
	Secret     []byte
	Expiration time.Duration
}

// Token represents an authentication token bound to one writing session
type Token struct {
	SessionID string      `json:"sid"`
	Username  string      `json:"sub"`
	Role      models.Role `json:"role"`
	NoAI      bool        `json:"no_ai,omitempty"`
	ExpiresAt int64       `json:"exp"`
	IssuedAt  int64       `json:"iat"`
}

// Identity rebuilds the session identity carried by the token
func (t *Token) Identity() models.Identity {
	return models.Identity{
		Username:  t.Username,
		Role:      t.Role,
		AIEnabled: !t.NoAI,
	}
}

// GenerateToken creates a new authentication token
func GenerateToken(sessionID string, identity models.Identity, config *TokenConfig) (string, error) {
	if config == nil || len(config.Secret) == 0 {
		return "", fmt.Errorf("secret key is required")
	}

	now := time.Now()
	token := &Token{
		SessionID: sessionID,
		Username:  identity.Username,
		Role:      identity.Role,
		NoAI:      !identity.AIEnabled,
		ExpiresAt: now.Add(config.Expiration).Unix(),
		IssuedAt:  now.Unix(),
	}

	payload, err := json.Marshal(token)
	if err != nil {
		return "", fmt.Errorf("encoding token payload: %w", err)
	}

	encodedPayload := base64.RawURLEncoding.EncodeToString(payload)
	encodedSignature := base64.RawURLEncoding.EncodeToString(sign(payload, config.Secret))

	return encodedPayload + "." + encodedSignature, nil
}

// ParseToken parses and validates a token
func ParseToken(tokenString string, config *TokenConfig) (*Token, error) {
	if config == nil || len(config.Secret) == 0 {
		return nil, fmt.Errorf("secret key is required")
	}

	parts := strings.Split(tokenString, ".")
	if len(parts) != 2 {
		return nil, fmt.Errorf("invalid token format")
	}

	payload, err := base64.RawURLEncoding.DecodeString(parts[0])
	if err != nil {
		return nil, fmt.Errorf("invalid token payload: %w", err)
	}

	signature, err := base64.RawURLEncoding.DecodeString(parts[1])
	if err != nil {
		return nil, fmt.Errorf("invalid token signature: %w", err)
	}

	if !hmac.Equal(signature, sign(payload, config.Secret)) {
		return nil, fmt.Errorf("invalid token signature")
	}

	var token Token
	if err := json.Unmarshal(payload, &token); err != nil {
		return nil, fmt.Errorf("invalid payload format: %w", err)
	}

	if time.Now().Unix() > token.ExpiresAt {
		return nil, fmt.Errorf("token has expired")
	}

	if token.SessionID == "" || token.Username == "" || !token.Role.Valid() {
		return nil, fmt.Errorf("incomplete token claims")
	}

	return &token, nil
}

func sign(payload, secret []byte) []byte {
	h := hmac.New(sha256.New, secret)
	h.Write(payload)
	return h.Sum(nil)
}

// GenerateSecureKey generates a secure random key for token signing
func GenerateSecureKey(length int) ([]byte, error) {
	if length <= 0 {
		length = 32 // Default to 256 bits
	}

	key := make([]byte, length)
	if _, err := rand.Read(key); err != nil {
		return nil, err
	}

	return key, nil
}

// NormalizeSecret pads or truncates a configured secret to 32 bytes
func NormalizeSecret(secret []byte) []byte {
	out := make([]byte, 32)
	copy(out, secret)
	return out
}

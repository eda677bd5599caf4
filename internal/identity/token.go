package identity

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// ErrTokenMismatch is returned when a channel token is well-formed but was
// minted for a different user or identity-provider session.
var ErrTokenMismatch = errors.New("channel token does not belong to this user")

// ChannelClaims is the signed payload of a channel token. The raw token
// string doubles as the Hermod channel name, so everything the worker needs
// to reconstitute a session rides inside it.
type ChannelClaims struct {
	UserID       string          `json:"user_id"`
	SessionID    string          `json:"session_id"`
	ClientParams json.RawMessage `json:"client_params,omitempty"`
	CreatedAt    int64           `json:"created_at"`
	jwt.RegisteredClaims
}

// ChannelTokens mints and validates the HMAC-SHA256 tokens that name push
// channels and authenticate sessions. Rotating the secret invalidates every
// outstanding session.
type ChannelTokens struct {
	secret []byte
}

// NewChannelTokens creates a token service with the given HMAC key.
func NewChannelTokens(secret []byte) *ChannelTokens {
	return &ChannelTokens{secret: secret}
}

// Issue mints a token binding the user to an MCP session. clientParams is
// the params object of the initialize request, captured verbatim.
func (c *ChannelTokens) Issue(user *User, clientParams json.RawMessage) (string, error) {
	claims := ChannelClaims{
		UserID:       user.UserID,
		SessionID:    user.SessionID,
		ClientParams: clientParams,
		CreatedAt:    time.Now().Unix(),
	}
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(c.secret)
	if err != nil {
		return "", fmt.Errorf("signing channel token: %w", err)
	}
	return token, nil
}

// Validate checks the token signature and that the embedded identity matches
// the current request's user. Returns the decoded claims on success.
func (c *ChannelTokens) Validate(user *User, token string) (*ChannelClaims, error) {
	claims := &ChannelClaims{}
	_, err := jwt.ParseWithClaims(token, claims, func(t *jwt.Token) (any, error) {
		return c.secret, nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}))
	if err != nil {
		return nil, fmt.Errorf("parsing channel token: %w", err)
	}
	if claims.UserID != user.UserID || claims.SessionID != user.SessionID {
		return nil, ErrTokenMismatch
	}
	return claims, nil
}

// ClientParams recovers the initialize params captured when the token was
// minted. Returns nil when the token is invalid for this user.
func (c *ChannelTokens) ClientParams(user *User, token string) json.RawMessage {
	claims, err := c.Validate(user, token)
	if err != nil {
		return nil
	}
	return claims.ClientParams
}

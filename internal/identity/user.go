// Package identity models the per-request user handed down by the trusted
// identity proxy, and the HMAC-signed channel tokens that bind an MCP
// session to that user.
package identity

import (
	"encoding/json"
	"fmt"
	"strings"
)

// Organization is optional membership information carried on a user.
type Organization struct {
	ID               string `json:"id"`
	OrganizationCode string `json:"organization_code"`
}

// User is the identity attached to a single HTTP request. It is constructed
// once from the decoded userinfo header and never persisted by the core.
type User struct {
	// UserID is the stable subject identifier from the identity provider.
	UserID string `json:"user_id"`

	// SessionID is the identity provider's session id ("sid" claim).
	SessionID string `json:"sid"`

	// Scope is the ordered list of granted scopes.
	Scope []string `json:"scope"`

	// Organizations carries optional org membership.
	Organizations []Organization `json:"organizations,omitempty"`
}

// Factory builds a User from the decoded userinfo JSON. Deployments that
// carry extra attributes in the header can install their own factory.
type Factory func(info []byte) (*User, error)

// userInfo is the upstream wire shape: scope arrives space-delimited.
type userInfo struct {
	UserID        string         `json:"user_id"`
	SessionID     string         `json:"sid"`
	Scope         string         `json:"scope"`
	Organizations []Organization `json:"organizations"`
}

// FromInfo is the default Factory. It requires user_id and sid and splits
// the space-delimited scope claim.
func FromInfo(info []byte) (*User, error) {
	var decoded userInfo
	if err := json.Unmarshal(info, &decoded); err != nil {
		return nil, fmt.Errorf("decoding user info: %w", err)
	}
	if decoded.UserID == "" {
		return nil, fmt.Errorf("user info missing user_id")
	}
	if decoded.SessionID == "" {
		return nil, fmt.Errorf("user info missing sid")
	}
	return &User{
		UserID:        decoded.UserID,
		SessionID:     decoded.SessionID,
		Scope:         splitScope(decoded.Scope),
		Organizations: decoded.Organizations,
	}, nil
}

// splitScope splits a space-delimited scope claim, dropping empty entries.
func splitScope(scope string) []string {
	if scope == "" {
		return []string{}
	}
	return strings.Fields(scope)
}

// MarshalJSONString serializes the user the way task payloads carry it.
func (u *User) MarshalJSONString() (string, error) {
	raw, err := json.Marshal(u)
	if err != nil {
		return "", fmt.Errorf("marshaling user: %w", err)
	}
	return string(raw), nil
}

// UserFromJSON reconstitutes a user from a task payload written by
// MarshalJSONString.
func UserFromJSON(raw []byte) (*User, error) {
	var user User
	if err := json.Unmarshal(raw, &user); err != nil {
		return nil, fmt.Errorf("decoding user: %w", err)
	}
	return &user, nil
}

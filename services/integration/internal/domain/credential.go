package domain

import (
	"fmt"
	"time"
)

// Mode selects one of the provider's isolated environments. Each mode has
// its own base URL, OAuth client and stored credential.
type Mode string

const (
	ModeSandbox Mode = "sandbox"
	ModeLive    Mode = "live"
)

// Valid reports whether m is a known mode.
func (m Mode) Valid() bool {
	return m == ModeSandbox || m == ModeLive
}

// Credential is a bearer token issued by the provider for one mode.
type Credential struct {
	ID           string    `json:"id"`
	Mode         Mode      `json:"mode"`
	AccessToken  string    `json:"access_token"`
	RefreshToken *string   `json:"refresh_token,omitempty"`
	TokenType    string    `json:"token_type"`
	IssuedAt     time.Time `json:"issued_at"`
	ExpiresAt    time.Time `json:"expires_at"`
}

// ValidAt reports whether the credential can still be used at now.
func (c *Credential) ValidAt(now time.Time) bool {
	return c != nil && now.Before(c.ExpiresAt)
}

// Validate checks the fields every stored credential must carry.
func (c *Credential) Validate() error {
	if !c.Mode.Valid() {
		return fmt.Errorf("unknown mode %q", c.Mode)
	}
	if c.AccessToken == "" {
		return fmt.Errorf("access token is empty")
	}
	if !c.ExpiresAt.After(c.IssuedAt) {
		return fmt.Errorf("expiry %s is not after issue time %s", c.ExpiresAt, c.IssuedAt)
	}
	return nil
}

// AuthorizationHeader returns the value for the Authorization header.
func (c *Credential) AuthorizationHeader() string {
	tokenType := c.TokenType
	if tokenType == "" || tokenType == "bearer" {
		tokenType = "Bearer"
	}
	return tokenType + " " + c.AccessToken
}

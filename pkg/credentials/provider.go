// Package credentials supplies API credentials for external
// collaborators, backed by the Go Cloud Development Kit so the same
// code works against AWS KMS, GCP KMS, Azure Key Vault, HashiCorp
// Vault, or a local key during development.
package credentials

import (
	"context"
	"errors"
	"fmt"
	"time"
)

var (
	// ErrCredentialsExpired is returned when credentials have expired.
	ErrCredentialsExpired = errors.New("credentials expired")

	// ErrInvalidCredentials is returned when credentials are malformed.
	ErrInvalidCredentials = errors.New("invalid credentials")

	// ErrProviderClosed is returned when using a closed provider.
	ErrProviderClosed = errors.New("credential provider is closed")
)

// Credentials is a bearer token with optional expiry.
type Credentials struct {
	// Token is the bearer token presented to the external service.
	Token string `json:"token"`

	// ExpiresAt indicates when the token expires (optional).
	ExpiresAt *time.Time `json:"expires_at,omitempty"`

	// Metadata carries additional context.
	Metadata map[string]string `json:"metadata,omitempty"`
}

// IsExpired reports whether the credentials have expired.
func (c *Credentials) IsExpired() bool {
	if c.ExpiresAt == nil {
		return false
	}
	return time.Now().After(*c.ExpiresAt)
}

// Validate ensures the credentials are well-formed.
func (c *Credentials) Validate() error {
	if c.Token == "" {
		return fmt.Errorf("%w: token is required", ErrInvalidCredentials)
	}
	return nil
}

// Provider supplies credentials on demand.
type Provider interface {
	// GetCredentials returns valid credentials, refreshing if needed.
	GetCredentials(ctx context.Context) (*Credentials, error)

	// Close releases provider resources.
	Close() error
}

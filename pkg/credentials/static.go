package credentials

import (
	"context"
	"sync"
)

// StaticProvider serves fixed credentials. Intended for development and
// tests; production setups use the secret-backed provider.
type StaticProvider struct {
	mu     sync.RWMutex
	creds  *Credentials
	closed bool
}

// NewStaticProvider creates a provider returning creds on every call.
func NewStaticProvider(creds *Credentials) (*StaticProvider, error) {
	if err := creds.Validate(); err != nil {
		return nil, err
	}
	return &StaticProvider{creds: creds}, nil
}

// NewTokenProvider is a convenience for a plain non-expiring token.
func NewTokenProvider(token string) (*StaticProvider, error) {
	return NewStaticProvider(&Credentials{Token: token})
}

// GetCredentials implements Provider.
func (p *StaticProvider) GetCredentials(ctx context.Context) (*Credentials, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	p.mu.RLock()
	defer p.mu.RUnlock()

	if p.closed {
		return nil, ErrProviderClosed
	}
	if p.creds.IsExpired() {
		return nil, ErrCredentialsExpired
	}

	cp := *p.creds
	return &cp, nil
}

// Close implements Provider.
func (p *StaticProvider) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.closed = true
	return nil
}

package credentials

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"gocloud.dev/secrets"
	// Cloud provider drivers are opt-in; import in application code:
	// _ "gocloud.dev/secrets/awskms"
	// _ "gocloud.dev/secrets/azurekeyvault"
	// _ "gocloud.dev/secrets/gcpkms"
	// _ "gocloud.dev/secrets/hashivault"
	// _ "gocloud.dev/secrets/localsecrets"
)

// SecretProvider decrypts a credentials document with a Go Cloud
// secrets keeper and caches the result.
//
// Keeper URL formats:
//   - AWS KMS:        "awskms://alias/my-key?region=us-east-1"
//   - GCP KMS:        "gcpkms://projects/P/locations/L/keyRings/R/cryptoKeys/K"
//   - Azure KeyVault: "azurekeyvault://VAULT.vault.azure.net/keys/KEY"
//   - Vault:          "hashivault://server:8200/transit/keys/KEY"
//   - Local (dev):    "base64key://..."
type SecretProvider struct {
	keeper     *secrets.Keeper
	ciphertext []byte
	cacheTTL   time.Duration

	mu          sync.RWMutex
	cachedCreds *Credentials
	cacheExpiry time.Time
	closed      bool
	closeOnce   sync.Once
}

// NewSecretProvider opens a keeper from keeperURL and uses it to
// decrypt ciphertext (a JSON credentials document) on demand.
func NewSecretProvider(ctx context.Context, keeperURL string, ciphertext []byte, cacheTTL time.Duration) (*SecretProvider, error) {
	keeper, err := secrets.OpenKeeper(ctx, keeperURL)
	if err != nil {
		return nil, fmt.Errorf("open secrets keeper: %w", err)
	}

	if cacheTTL <= 0 {
		cacheTTL = 5 * time.Minute
	}

	return &SecretProvider{
		keeper:     keeper,
		ciphertext: ciphertext,
		cacheTTL:   cacheTTL,
	}, nil
}

// GetCredentials implements Provider.
func (p *SecretProvider) GetCredentials(ctx context.Context) (*Credentials, error) {
	p.mu.RLock()
	if p.closed {
		p.mu.RUnlock()
		return nil, ErrProviderClosed
	}
	if p.cachedCreds != nil && time.Now().Before(p.cacheExpiry) && !p.cachedCreds.IsExpired() {
		cp := *p.cachedCreds
		p.mu.RUnlock()
		return &cp, nil
	}
	p.mu.RUnlock()

	plaintext, err := p.keeper.Decrypt(ctx, p.ciphertext)
	if err != nil {
		return nil, fmt.Errorf("decrypt credentials: %w", err)
	}

	var creds Credentials
	if err := json.Unmarshal(plaintext, &creds); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidCredentials, err)
	}
	if err := creds.Validate(); err != nil {
		return nil, err
	}
	if creds.IsExpired() {
		return nil, ErrCredentialsExpired
	}

	p.mu.Lock()
	p.cachedCreds = &creds
	p.cacheExpiry = time.Now().Add(p.cacheTTL)
	p.mu.Unlock()

	cp := creds
	return &cp, nil
}

// Close implements Provider.
func (p *SecretProvider) Close() error {
	var err error
	p.closeOnce.Do(func() {
		p.mu.Lock()
		p.closed = true
		p.mu.Unlock()
		err = p.keeper.Close()
	})
	return err
}

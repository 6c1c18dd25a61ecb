package credentials_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/plaenen/cartstore/pkg/credentials"
)

func TestStaticProvider(t *testing.T) {
	ctx := context.Background()

	t.Run("ReturnsToken", func(t *testing.T) {
		provider, err := credentials.NewTokenProvider("catalog-token")
		require.NoError(t, err)

		creds, err := provider.GetCredentials(ctx)
		require.NoError(t, err)
		assert.Equal(t, "catalog-token", creds.Token)
	})

	t.Run("RejectsEmptyToken", func(t *testing.T) {
		_, err := credentials.NewStaticProvider(&credentials.Credentials{})
		assert.ErrorIs(t, err, credentials.ErrInvalidCredentials)
	})

	t.Run("ExpiredCredentials", func(t *testing.T) {
		past := time.Now().Add(-time.Minute)
		provider, err := credentials.NewStaticProvider(&credentials.Credentials{
			Token:     "stale",
			ExpiresAt: &past,
		})
		require.NoError(t, err)

		_, err = provider.GetCredentials(ctx)
		assert.ErrorIs(t, err, credentials.ErrCredentialsExpired)
	})

	t.Run("ClosedProvider", func(t *testing.T) {
		provider, err := credentials.NewTokenProvider("catalog-token")
		require.NoError(t, err)
		require.NoError(t, provider.Close())

		_, err = provider.GetCredentials(ctx)
		assert.ErrorIs(t, err, credentials.ErrProviderClosed)
	})
}

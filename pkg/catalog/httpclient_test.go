package catalog_test

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/plaenen/cartstore/pkg/catalog"
	"github.com/plaenen/cartstore/pkg/credentials"
)

func TestHTTPClientLookup(t *testing.T) {
	ctx := context.Background()

	mux := http.NewServeMux()
	mux.HandleFunc("GET /products/7", func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("Authorization") != "Bearer catalog-token" {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"product_id":"7","in_stock":true,"unit_price":"3.50","currency":"USD"}`))
	})
	mux.HandleFunc("GET /products/999", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	})
	mux.HandleFunc("GET /products/boom", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	})

	server := httptest.NewServer(mux)
	defer server.Close()

	provider, err := credentials.NewTokenProvider("catalog-token")
	require.NoError(t, err)
	client := catalog.NewHTTPClient(server.URL, catalog.WithCredentials(provider))

	t.Run("KnownProduct", func(t *testing.T) {
		product, err := client.Lookup(ctx, "7")
		require.NoError(t, err)
		assert.True(t, product.Exists)
		assert.True(t, product.InStock)
		assert.True(t, product.UnitPrice.Equal(decimal.RequireFromString("3.50")))
		assert.Equal(t, "USD", product.Currency)
	})

	t.Run("UnknownProductIsNotAnError", func(t *testing.T) {
		product, err := client.Lookup(ctx, "999")
		require.NoError(t, err)
		assert.False(t, product.Exists)
	})

	t.Run("ServerErrorIsUnavailable", func(t *testing.T) {
		_, err := client.Lookup(ctx, "boom")
		assert.ErrorIs(t, err, catalog.ErrUnavailable)
	})

	t.Run("UnreachableCatalogIsUnavailable", func(t *testing.T) {
		dead := catalog.NewHTTPClient("http://127.0.0.1:1")
		_, err := dead.Lookup(ctx, "7")
		assert.ErrorIs(t, err, catalog.ErrUnavailable)
	})

	t.Run("CancelledContext", func(t *testing.T) {
		cancelled, cancel := context.WithCancel(ctx)
		cancel()
		_, err := client.Lookup(cancelled, "7")
		assert.ErrorIs(t, err, context.Canceled)
	})
}

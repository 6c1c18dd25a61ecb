package cartapi_test

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/plaenen/cartstore/pkg/cartapi"
	"github.com/plaenen/cartstore/pkg/cartsvc"
	"github.com/plaenen/cartstore/pkg/catalog"
	"github.com/plaenen/cartstore/pkg/domain"
	"github.com/plaenen/cartstore/pkg/store"
	"github.com/plaenen/cartstore/pkg/store/memory"
)

func testCatalogClient() *catalog.StaticClient {
	return catalog.NewStaticClient(
		catalog.Product{ProductID: "7", Exists: true, InStock: true, UnitPrice: decimal.RequireFromString("1.50"), Currency: "USD"},
		catalog.Product{ProductID: "9", Exists: true, InStock: true, UnitPrice: decimal.RequireFromString("1.75"), Currency: "USD"},
	)
}

// contendedStore rejects every append with a version conflict.
type contendedStore struct {
	store.EventStore
}

func (c *contendedStore) Append(ctx context.Context, streamID string, expectedVersion int64, events []*domain.Event) (int64, error) {
	return 0, domain.ErrConcurrencyConflict
}

func newTestHandler(t *testing.T) *cartapi.Handler {
	t.Helper()

	es := memory.NewEventStore()
	t.Cleanup(func() { es.Close() })

	svc, err := cartsvc.New(es, testCatalogClient())
	require.NoError(t, err)
	return cartapi.NewHandler(svc, nil)
}

func doJSON(t *testing.T, h http.Handler, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()

	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

type cartBody struct {
	UserID  string `json:"user_id"`
	Status  string `json:"status"`
	Version int64  `json:"version"`
	Epoch   int64  `json:"epoch"`
	Lines   []struct {
		ProductID string `json:"product_id"`
		Quantity  int64  `json:"quantity"`
	} `json:"lines"`
	Total string `json:"total"`
}

func decodeCart(t *testing.T, rec *httptest.ResponseRecorder) cartBody {
	t.Helper()
	var body cartBody
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&body))
	return body
}

func TestHandler(t *testing.T) {
	t.Run("GetUnknownCartIsEmptyAndOpen", func(t *testing.T) {
		h := newTestHandler(t)

		rec := doJSON(t, h, http.MethodGet, "/carts/42", nil)
		require.Equal(t, http.StatusOK, rec.Code)

		body := decodeCart(t, rec)
		assert.Equal(t, "OPEN", body.Status)
		assert.Empty(t, body.Lines)
		assert.Equal(t, int64(0), body.Version)
	})

	t.Run("AddItemsAccumulatesRepeats", func(t *testing.T) {
		h := newTestHandler(t)

		rec := doJSON(t, h, http.MethodPost, "/carts/42/items", map[string]any{
			"product_ids": []string{"7", "7", "9"},
		})
		require.Equal(t, http.StatusOK, rec.Code)

		body := decodeCart(t, rec)
		require.Len(t, body.Lines, 2)
		assert.Contains(t, body.Total, "4.75")
	})

	t.Run("AddUnknownProductIsBadRequest", func(t *testing.T) {
		h := newTestHandler(t)

		rec := doJSON(t, h, http.MethodPost, "/carts/42/items", map[string]any{
			"product_ids": []string{"404"},
		})
		assert.Equal(t, http.StatusBadRequest, rec.Code)
	})

	t.Run("MissingProductIDsIsBadRequest", func(t *testing.T) {
		h := newTestHandler(t)

		rec := doJSON(t, h, http.MethodPost, "/carts/42/items", map[string]any{})
		assert.Equal(t, http.StatusBadRequest, rec.Code)
	})

	t.Run("CheckoutThenReopenCycle", func(t *testing.T) {
		h := newTestHandler(t)

		rec := doJSON(t, h, http.MethodPost, "/carts/42/items", map[string]any{
			"product_ids": []string{"7"},
		})
		require.Equal(t, http.StatusOK, rec.Code)

		rec = doJSON(t, h, http.MethodPost, "/carts/42/checkout", nil)
		require.Equal(t, http.StatusOK, rec.Code)
		assert.Equal(t, "CHECKED_OUT", decodeCart(t, rec).Status)

		rec = doJSON(t, h, http.MethodPost, "/carts/42/items", map[string]any{
			"product_ids": []string{"9"},
		})
		assert.Equal(t, http.StatusBadRequest, rec.Code)

		rec = doJSON(t, h, http.MethodPost, "/carts/42/reopen", nil)
		require.Equal(t, http.StatusOK, rec.Code)
		body := decodeCart(t, rec)
		assert.Equal(t, "OPEN", body.Status)
		assert.Empty(t, body.Lines)
		assert.Equal(t, int64(2), body.Epoch)
	})

	t.Run("RemoveTooManyIsBadRequest", func(t *testing.T) {
		h := newTestHandler(t)

		rec := doJSON(t, h, http.MethodPost, "/carts/42/items", map[string]any{
			"product_ids": []string{"7"},
		})
		require.Equal(t, http.StatusOK, rec.Code)

		rec = doJSON(t, h, http.MethodDelete, "/carts/42/items", map[string]any{
			"product_ids": []string{"7", "7"},
		})
		assert.Equal(t, http.StatusBadRequest, rec.Code)
	})

	t.Run("WriteContentionIsConflict", func(t *testing.T) {
		es := memory.NewEventStore()
		t.Cleanup(func() { es.Close() })

		svc, err := cartsvc.New(&contendedStore{EventStore: es}, testCatalogClient())
		require.NoError(t, err)
		h := cartapi.NewHandler(svc, nil)

		rec := doJSON(t, h, http.MethodPost, "/carts/42/items", map[string]any{
			"product_ids": []string{"7"},
		})
		assert.Equal(t, http.StatusConflict, rec.Code)
	})

	t.Run("CatalogOutageIsServiceUnavailable", func(t *testing.T) {
		es := memory.NewEventStore()
		t.Cleanup(func() { es.Close() })

		cat := testCatalogClient()
		cat.FailWith(catalog.ErrUnavailable)
		svc, err := cartsvc.New(es, cat)
		require.NoError(t, err)
		h := cartapi.NewHandler(svc, nil)

		rec := doJSON(t, h, http.MethodPost, "/carts/42/items", map[string]any{
			"product_ids": []string{"7"},
		})
		assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
	})

	t.Run("Healthz", func(t *testing.T) {
		h := newTestHandler(t)

		rec := doJSON(t, h, http.MethodGet, "/healthz", nil)
		assert.Equal(t, http.StatusNoContent, rec.Code)
	})
}

package catalog

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"time"

	"github.com/plaenen/cartstore/pkg/credentials"
)

// HTTPClient is a thin adapter onto a catalog service exposing
// GET {base}/products/{id}. Any transport-level failure, 5xx answer or
// undecodable body maps to ErrUnavailable; a 404 is a successful lookup
// of a product that does not exist.
type HTTPClient struct {
	baseURL string
	client  *http.Client
	creds   credentials.Provider
}

// HTTPOption configures an HTTPClient.
type HTTPOption func(*HTTPClient)

// WithHTTPTimeout sets the request timeout. Default is 5 seconds.
func WithHTTPTimeout(timeout time.Duration) HTTPOption {
	return func(c *HTTPClient) {
		c.client.Timeout = timeout
	}
}

// WithCredentials attaches a bearer token provider to every request.
func WithCredentials(provider credentials.Provider) HTTPOption {
	return func(c *HTTPClient) {
		c.creds = provider
	}
}

// NewHTTPClient creates a catalog client against baseURL.
func NewHTTPClient(baseURL string, opts ...HTTPOption) *HTTPClient {
	c := &HTTPClient{
		baseURL: baseURL,
		client:  &http.Client{Timeout: 5 * time.Second},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

type productResponse struct {
	ProductID string `json:"product_id"`
	InStock   bool   `json:"in_stock"`
	UnitPrice string `json:"unit_price"`
	Currency  string `json:"currency"`
}

// Lookup implements Client.
func (c *HTTPClient) Lookup(ctx context.Context, productID string) (Product, error) {
	endpoint := fmt.Sprintf("%s/products/%s", c.baseURL, url.PathEscape(productID))

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return Product{}, fmt.Errorf("build catalog request: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	if c.creds != nil {
		creds, err := c.creds.GetCredentials(ctx)
		if err != nil {
			return Product{}, fmt.Errorf("%w: credentials: %v", ErrUnavailable, err)
		}
		req.Header.Set("Authorization", "Bearer "+creds.Token)
	}

	resp, err := c.client.Do(req)
	if err != nil {
		// Caller cancellation is reported as such, not as the catalog
		// being down.
		if ctx.Err() != nil {
			return Product{}, ctx.Err()
		}
		return Product{}, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusNotFound:
		return Product{ProductID: productID}, nil
	case resp.StatusCode != http.StatusOK:
		return Product{}, fmt.Errorf("%w: catalog answered %d", ErrUnavailable, resp.StatusCode)
	}

	var body productResponse
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return Product{}, fmt.Errorf("%w: decode response: %v", ErrUnavailable, err)
	}

	product := Product{
		ProductID: productID,
		Exists:    true,
		InStock:   body.InStock,
		Currency:  body.Currency,
	}
	if body.UnitPrice != "" {
		price, err := parsePrice(body.UnitPrice)
		if err != nil {
			return Product{}, fmt.Errorf("%w: %v", ErrUnavailable, err)
		}
		product.UnitPrice = price
	}
	return product, nil
}

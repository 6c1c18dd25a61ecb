// Package catalog defines the read-only product catalog contract the
// cart service depends on. The catalog is an untrusted external
// collaborator: it may be slow, unreachable, or report products gone.
package catalog

import (
	"context"
	"errors"
	"fmt"

	"github.com/shopspring/decimal"
)

// ErrUnavailable is returned when the catalog could not be asked at
// all. It is a retryable transport failure, never to be conflated with
// a product being unknown or out of stock.
var ErrUnavailable = errors.New("product catalog unavailable")

// Product is the catalog's answer for one product ID.
type Product struct {
	ProductID string          `json:"product_id"`
	Exists    bool            `json:"exists"`
	InStock   bool            `json:"in_stock"`
	UnitPrice decimal.Decimal `json:"unit_price"`
	Currency  string          `json:"currency"`
}

func parsePrice(s string) (decimal.Decimal, error) {
	price, err := decimal.NewFromString(s)
	if err != nil {
		return decimal.Decimal{}, fmt.Errorf("invalid unit price %q: %v", s, err)
	}
	return price, nil
}

// Client looks up product existence, availability and price.
type Client interface {
	// Lookup returns the catalog's view of productID. An unknown
	// product is a successful lookup with Exists=false; ErrUnavailable
	// means the catalog could not be reached.
	Lookup(ctx context.Context, productID string) (Product, error)
}

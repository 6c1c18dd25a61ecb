package catalog

import (
	"context"
	"sync"
)

// StaticClient serves lookups from a fixed product table. Used in tests
// and single-process setups without a catalog service.
type StaticClient struct {
	mu       sync.RWMutex
	products map[string]Product
	fail     error
}

// NewStaticClient creates a client answering from the given products.
func NewStaticClient(products ...Product) *StaticClient {
	table := make(map[string]Product, len(products))
	for _, p := range products {
		table[p.ProductID] = p
	}
	return &StaticClient{products: table}
}

// Lookup implements Client.
func (c *StaticClient) Lookup(ctx context.Context, productID string) (Product, error) {
	if err := ctx.Err(); err != nil {
		return Product{}, err
	}

	c.mu.RLock()
	defer c.mu.RUnlock()

	if c.fail != nil {
		return Product{}, c.fail
	}

	p, ok := c.products[productID]
	if !ok {
		return Product{ProductID: productID}, nil
	}
	return p, nil
}

// SetProduct adds or replaces a product.
func (c *StaticClient) SetProduct(p Product) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.products[p.ProductID] = p
}

// FailWith makes every Lookup return err until reset with nil.
// Simulates an unreachable catalog.
func (c *StaticClient) FailWith(err error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.fail = err
}

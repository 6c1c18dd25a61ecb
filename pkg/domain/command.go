package domain

import (
	"fmt"
	"sort"

	"github.com/shopspring/decimal"

	"github.com/plaenen/cartstore/pkg/idgen"
)

// Command is an intention to change a user's cart.
type Command interface {
	// Name returns the fully qualified command name.
	Name() string

	// User returns the identifier of the cart owner.
	User() string
}

// ItemRequest is one product position referenced by an item command.
// For AddItems the caller resolves UnitPrice and Currency from the
// product catalog before validation; RemoveItems ignores them.
type ItemRequest struct {
	ProductID string
	Quantity  int64
	UnitPrice decimal.Decimal
	Currency  string
}

// AddItems adds quantities of products to an open cart.
type AddItems struct {
	UserID string
	Items  []ItemRequest
}

func (c AddItems) Name() string { return "cart.AddItems" }
func (c AddItems) User() string { return c.UserID }

// RemoveItems subtracts quantities of products from an open cart.
type RemoveItems struct {
	UserID string
	Items  []ItemRequest
}

func (c RemoveItems) Name() string { return "cart.RemoveItems" }
func (c RemoveItems) User() string { return c.UserID }

// Checkout closes the current cart epoch.
type Checkout struct {
	UserID string
}

func (c Checkout) Name() string { return "cart.Checkout" }
func (c Checkout) User() string { return c.UserID }

// Reopen begins a new cart epoch after a checkout.
type Reopen struct {
	UserID string
}

func (c Reopen) Name() string { return "cart.Reopen" }
func (c Reopen) User() string { return c.UserID }

// ValidateCommand checks cmd against the current state and returns the
// events to append, in order, with consecutive versions following
// state.Version. It never mutates state and performs no I/O; catalog
// checks happen before this point. A rejection returns a validation
// error and no events.
func ValidateCommand(state *CartState, cmd Command, metadata EventMetadata) ([]*Event, error) {
	switch c := cmd.(type) {
	case AddItems:
		return validateAddItems(state, c, metadata)
	case RemoveItems:
		return validateRemoveItems(state, c, metadata)
	case Checkout:
		return validateCheckout(state, c, metadata)
	case Reopen:
		return validateReopen(state, c, metadata)
	default:
		return nil, fmt.Errorf("unknown command %q", cmd.Name())
	}
}

func validateAddItems(state *CartState, cmd AddItems, metadata EventMetadata) ([]*Event, error) {
	if state.Status == StatusCheckedOut {
		return nil, ErrCartClosed
	}

	events := make([]*Event, 0, len(cmd.Items))
	version := state.Version
	for _, item := range cmd.Items {
		if item.Quantity <= 0 {
			return nil, fmt.Errorf("invalid quantity %d for product %s", item.Quantity, item.ProductID)
		}
		version++
		evt, err := NewEvent(idgen.MustSortableID(), state.UserID, KindItemAdded, version, ItemAddedPayload{
			ProductID: item.ProductID,
			Quantity:  item.Quantity,
			UnitPrice: item.UnitPrice,
			Currency:  item.Currency,
		}, metadata)
		if err != nil {
			return nil, err
		}
		events = append(events, evt)
	}
	return events, nil
}

func validateRemoveItems(state *CartState, cmd RemoveItems, metadata EventMetadata) ([]*Event, error) {
	if state.Status == StatusCheckedOut {
		return nil, ErrCartClosed
	}

	// Reject the whole command before emitting anything: a removal that
	// exceeds any held quantity appends no event at all.
	for _, item := range cmd.Items {
		if item.Quantity <= 0 {
			return nil, fmt.Errorf("invalid quantity %d for product %s", item.Quantity, item.ProductID)
		}
		held := state.Lines[item.ProductID].Quantity
		if held < item.Quantity {
			return nil, &InsufficientQuantityError{
				ProductID: item.ProductID,
				Requested: item.Quantity,
				Held:      held,
			}
		}
	}

	events := make([]*Event, 0, len(cmd.Items))
	version := state.Version
	for _, item := range cmd.Items {
		version++
		evt, err := NewEvent(idgen.MustSortableID(), state.UserID, KindItemRemoved, version, ItemRemovedPayload{
			ProductID: item.ProductID,
			Quantity:  item.Quantity,
		}, metadata)
		if err != nil {
			return nil, err
		}
		events = append(events, evt)
	}
	return events, nil
}

func validateCheckout(state *CartState, cmd Checkout, metadata EventMetadata) ([]*Event, error) {
	if state.Status == StatusCheckedOut {
		return nil, ErrCartClosed
	}
	if state.IsEmpty() {
		return nil, ErrEmptyCart
	}

	total, currency := state.Total()
	evt, err := NewEvent(idgen.MustSortableID(), state.UserID, KindCartCheckedOut, state.Version+1, CartCheckedOutPayload{
		Total:    total,
		Currency: currency,
	}, metadata)
	if err != nil {
		return nil, err
	}
	return []*Event{evt}, nil
}

func validateReopen(state *CartState, cmd Reopen, metadata EventMetadata) ([]*Event, error) {
	if state.Status != StatusCheckedOut {
		return nil, ErrCartOpen
	}

	evt, err := NewEvent(idgen.MustSortableID(), state.UserID, KindCartOpened, state.Version+1, CartOpenedPayload{
		Epoch: state.Epoch + 1,
	}, metadata)
	if err != nil {
		return nil, err
	}
	return []*Event{evt}, nil
}

// CollectItems folds a list of raw product IDs into per-product
// quantities, preserving first-appearance order. AddItems(42, [7, 7, 9])
// becomes two requests: product 7 with quantity 2 and product 9 with
// quantity 1.
func CollectItems(productIDs []string) []ItemRequest {
	counts := make(map[string]int64, len(productIDs))
	order := make(map[string]int, len(productIDs))
	for i, id := range productIDs {
		if _, seen := counts[id]; !seen {
			order[id] = i
		}
		counts[id]++
	}

	items := make([]ItemRequest, 0, len(counts))
	for id, qty := range counts {
		items = append(items, ItemRequest{ProductID: id, Quantity: qty})
	}
	sort.Slice(items, func(i, j int) bool {
		return order[items[i].ProductID] < order[items[j].ProductID]
	})
	return items
}

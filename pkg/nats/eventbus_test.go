package nats_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/plaenen/cartstore/pkg/domain"
	"github.com/plaenen/cartstore/pkg/idgen"
	"github.com/plaenen/cartstore/pkg/messaging"
	natsbus "github.com/plaenen/cartstore/pkg/nats"
)

func TestEventBusPublishSubscribe(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping embedded NATS test in short mode")
	}

	srv, err := natsbus.StartEmbeddedServer()
	require.NoError(t, err)
	defer srv.Shutdown()

	bus, err := natsbus.NewEventBus(natsbus.TestConfig(srv.URL()))
	require.NoError(t, err)
	defer bus.Close()

	received := make(chan *domain.Event, 4)
	sub, err := bus.Subscribe(messaging.EventFilter{
		Kinds: []domain.EventKind{domain.KindItemAdded},
	}, func(evt *domain.Event) error {
		received <- evt
		return nil
	})
	require.NoError(t, err)
	defer sub.Unsubscribe()

	added, err := domain.NewEvent(idgen.MustSortableID(), "user-42", domain.KindItemAdded, 1, domain.ItemAddedPayload{
		ProductID: "7",
		Quantity:  2,
		Currency:  "USD",
	}, domain.EventMetadata{CommandID: "cmd-1"})
	require.NoError(t, err)

	checkedOut, err := domain.NewEvent(idgen.MustSortableID(), "user-42", domain.KindCartCheckedOut, 2, domain.CartCheckedOutPayload{
		Currency: "USD",
	}, domain.EventMetadata{CommandID: "cmd-2"})
	require.NoError(t, err)

	require.NoError(t, bus.Publish(context.Background(), []*domain.Event{added, checkedOut}))

	select {
	case evt := <-received:
		assert.Equal(t, added.ID, evt.ID)
		assert.Equal(t, domain.KindItemAdded, evt.Kind)
		assert.Equal(t, "user-42", evt.StreamID)

		var payload domain.ItemAddedPayload
		require.NoError(t, evt.DecodePayload(&payload))
		assert.Equal(t, int64(2), payload.Quantity)
	case <-time.After(5 * time.Second):
		t.Fatal("timed out waiting for ItemAdded event")
	}

	// The filter excludes the checkout event.
	select {
	case evt := <-received:
		t.Fatalf("unexpected event delivered: %s", evt.Kind)
	case <-time.After(200 * time.Millisecond):
	}
}

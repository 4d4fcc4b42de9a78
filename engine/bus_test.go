package engine

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBus(t *testing.T) {
	bus := NewBus()

	a, unsubA := bus.Subscribe("topic")
	b, unsubB := bus.Subscribe("topic")
	other, unsubOther := bus.Subscribe("other")
	defer unsubOther()

	bus.Publish("topic", 1)

	assert.Equal(t, 1, <-a)
	assert.Equal(t, 1, <-b)
	select {
	case <-other:
		t.Fatal("wrong topic received the message")
	default:
	}

	// Unsubscribed channels are closed and receive nothing further.
	unsubA()
	_, open := <-a
	assert.False(t, open)

	bus.Publish("topic", 2)
	assert.Equal(t, 2, <-b)

	// Unsubscribe is idempotent.
	unsubA()
	unsubB()

	// Publishing with no subscribers is a no-op.
	bus.Publish("topic", 3)
}

func TestBusSlowSubscriber(t *testing.T) {
	bus := NewBus()
	ch, unsub := bus.Subscribe("topic")
	defer unsub()

	// Overflow the buffer; the publisher must not block.
	for i := 0; i < 100; i++ {
		bus.Publish("topic", i)
	}

	// The buffered prefix is still delivered in order.
	require.Equal(t, 0, <-ch)
	require.Equal(t, 1, <-ch)
}

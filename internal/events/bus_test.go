package events

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func receive(t *testing.T, ch <-chan Event) Event {
	t.Helper()
	select {
	case e := <-ch:
		return e
	case <-time.After(time.Second):
		t.Fatal("event not delivered")
		return Event{}
	}
}

func TestEventBus_SubscribeByType(t *testing.T) {
	bus := NewEventBus()
	audit := make(chan Event, 1)
	all := make(chan Event, 4)
	bus.Subscribe(EventAuditWriteFailed, func(e Event) { audit <- e })
	bus.SubscribeAll(func(e Event) { all <- e })

	bus.PublishAuditWriteFailed("OK", "ABC-123", errors.New("insert failed"))

	e := receive(t, audit)
	assert.Equal(t, EventAuditWriteFailed, e.Type)
	assert.Equal(t, "ABC-123", e.Data["note"])
	assert.Equal(t, "insert failed", e.Data["error"])
	assert.False(t, e.Timestamp.IsZero())

	assert.Equal(t, EventAuditWriteFailed, receive(t, all).Type)

	bus.PublishLookupDenied("ABC-123", "10.0.0.1")
	assert.Equal(t, EventLookupDenied, receive(t, all).Type)

	select {
	case e := <-audit:
		t.Fatalf("unexpected %s on typed subscriber", e.Type)
	case <-time.After(50 * time.Millisecond):
	}
}

func TestEventBus_NilIsNoop(t *testing.T) {
	var bus *EventBus
	require.NotPanics(t, func() {
		bus.PublishUpstreamFailed("850", "timeout", nil)
	})
}

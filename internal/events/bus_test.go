package events

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestBusDeliversToMatchingKind(t *testing.T) {
	b := New()

	var got []Event
	b.Subscribe(KindConnection, func(ev Event) { got = append(got, ev) })

	b.Publish(Event{Kind: KindConnection, Connected: true})
	b.Publish(Event{Kind: KindMessageSent, MessageID: "m1"})

	assert.Len(t, got, 1)
	assert.True(t, got[0].Connected)
	assert.False(t, got[0].At.IsZero())
}

func TestBusWildcardSubscription(t *testing.T) {
	b := New()

	var kinds []Kind
	b.Subscribe("", func(ev Event) { kinds = append(kinds, ev.Kind) })

	b.Publish(Event{Kind: KindConnection})
	b.Publish(Event{Kind: KindMonitorState, Active: true})

	assert.Equal(t, []Kind{KindConnection, KindMonitorState}, kinds)
}

func TestBusUnsubscribe(t *testing.T) {
	b := New()

	calls := 0
	cancel := b.Subscribe(KindMessageFailed, func(Event) { calls++ })

	b.Publish(Event{Kind: KindMessageFailed})
	cancel()
	b.Publish(Event{Kind: KindMessageFailed})

	assert.Equal(t, 1, calls)
}

func TestBusOrderedDelivery(t *testing.T) {
	b := New()

	var order []int
	b.Subscribe(KindTargetResolved, func(Event) { order = append(order, 1) })
	b.Subscribe(KindTargetResolved, func(Event) { order = append(order, 2) })
	b.Subscribe(KindTargetResolved, func(Event) { order = append(order, 3) })

	b.Publish(Event{Kind: KindTargetResolved, Found: true})

	assert.Equal(t, []int{1, 2, 3}, order)
}

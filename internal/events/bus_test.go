package events

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBus_PublishDeliversToSubscriber(t *testing.T) {
	b := NewBus()
	sub := b.Subscribe(4)

	b.Publish(Event{Kind: KindDeviceAttached, DeviceID: "dev1"})

	select {
	case ev := <-sub.Events:
		assert.Equal(t, KindDeviceAttached, ev.Kind)
		assert.Equal(t, "dev1", ev.DeviceID)
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for event")
	}
}

func TestBus_UnsubscribeStopsDelivery(t *testing.T) {
	b := NewBus()
	sub := b.Subscribe(4)
	sub.Unsubscribe()

	b.Publish(Event{Kind: KindDeviceDetached})

	_, ok := <-sub.Events
	assert.False(t, ok)
}

func TestBus_FullBufferDropsOldestNotNewest(t *testing.T) {
	b := NewBus()
	sub := b.Subscribe(1)

	b.Publish(Event{Kind: KindDeviceAttached, DeviceID: "first"})
	b.Publish(Event{Kind: KindDeviceAttached, DeviceID: "second"})

	ev := <-sub.Events
	require.Equal(t, "second", ev.DeviceID)
}

func TestBus_MultipleSubscribersAllReceive(t *testing.T) {
	b := NewBus()
	a := b.Subscribe(4)
	c := b.Subscribe(4)

	b.Publish(Event{Kind: KindSessionCompleted})

	for _, sub := range []*Subscription{a, c} {
		select {
		case <-sub.Events:
		case <-time.After(time.Second):
			t.Fatal("subscriber did not receive event")
		}
	}
}

package events

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestBroadcasterFanOut(t *testing.T) {
	b := NewBroadcaster()
	a, cancelA := b.Subscribe(2)
	c, cancelC := b.Subscribe(1)
	require.Equal(t, 2, b.Subscribers())

	b.Notify(Event{Kind: KindQueueStatus, Status: "BTC, ETH"})
	got := <-a
	require.Equal(t, KindQueueStatus, got.Kind)
	require.Equal(t, "BTC, ETH", got.Status)
	require.False(t, got.At.IsZero())
	require.Equal(t, KindQueueStatus, (<-c).Kind)

	cancelC()
	cancelC()
	_, open := <-c
	require.False(t, open)
	require.Equal(t, 1, b.Subscribers())
	cancelA()
}

func TestBroadcasterDropsWhenFull(t *testing.T) {
	b := NewBroadcaster()
	ch, cancel := b.Subscribe(1)
	defer cancel()

	b.Notify(Event{Kind: KindCoinsUpdated})
	b.Notify(Event{Kind: KindTableError, Error: "boom"})

	require.Equal(t, KindCoinsUpdated, (<-ch).Kind)
	select {
	case e := <-ch:
		t.Fatalf("unexpected event %v", e)
	default:
	}
}

func TestNotifierFunc(t *testing.T) {
	var seen []Kind
	n := NotifierFunc(func(e Event) { seen = append(seen, e.Kind) })
	n.Notify(Event{Kind: KindArchiveUpdated})
	Nop{}.Notify(Event{Kind: KindArchiveUpdated})
	require.Equal(t, []Kind{KindArchiveUpdated}, seen)
}

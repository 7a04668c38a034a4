// Package events carries UI notifications out of the core: coin table
// refreshes, archive changes, queue status text and table errors.
package events

import (
	"sync"
	"time"

	"github.com/zeromicro/go-zero/core/logx"
)

type Kind string

const (
	KindCoinsUpdated   Kind = "coins_updated"
	KindArchiveUpdated Kind = "archive_updated"
	KindQueueStatus    Kind = "queue_status"
	KindTableError     Kind = "table_error"
)

// Event is one notification. Status and Error are set for the matching kinds.
type Event struct {
	Kind   Kind      `json:"kind"`
	Status string    `json:"status,omitempty"`
	Error  string    `json:"error,omitempty"`
	At     time.Time `json:"at"`
}

// Notifier receives events. Implementations must not block.
type Notifier interface {
	Notify(Event)
}

// NotifierFunc adapts a function to Notifier.
type NotifierFunc func(Event)

func (f NotifierFunc) Notify(e Event) { f(e) }

// Nop drops everything.
type Nop struct{}

func (Nop) Notify(Event) {}

// Broadcaster fans events out to subscribers. Slow subscribers lose events
// rather than stall the publisher.
type Broadcaster struct {
	mu     sync.RWMutex
	nextID int
	subs   map[int]chan Event
}

func NewBroadcaster() *Broadcaster {
	return &Broadcaster{subs: make(map[int]chan Event)}
}

// Subscribe returns a channel of events and a cancel func that closes it.
func (b *Broadcaster) Subscribe(buffer int) (<-chan Event, func()) {
	if buffer <= 0 {
		buffer = 16
	}
	ch := make(chan Event, buffer)
	b.mu.Lock()
	id := b.nextID
	b.nextID++
	b.subs[id] = ch
	b.mu.Unlock()

	var once sync.Once
	return ch, func() {
		once.Do(func() {
			b.mu.Lock()
			delete(b.subs, id)
			b.mu.Unlock()
			close(ch)
		})
	}
}

func (b *Broadcaster) Notify(e Event) {
	if e.At.IsZero() {
		e.At = time.Now()
	}
	b.mu.RLock()
	defer b.mu.RUnlock()
	for id, ch := range b.subs {
		select {
		case ch <- e:
		default:
			logx.Debugf("events: subscriber=%d full, dropped kind=%s", id, e.Kind)
		}
	}
}

// Subscribers reports the number of live subscriptions.
func (b *Broadcaster) Subscribers() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.subs)
}

// Package bus is the in-process change-notification hub. Mutation
// handlers publish typed change events; every open stream connection
// subscribes for its lifetime. There is no buffering beyond a small
// per-subscriber channel and no history: events published while nobody
// listens are lost, which is acceptable because clients reconcile via
// periodic bulk fetches anyway.
package bus

import (
	"log/slog"
	"sync"

	"github.com/ldi/boardsync/pkg/models"
)

// MaxSubscribers is a generous ceiling on concurrent subscribers.
// Breaching it indicates a connection leak, not legitimate load.
const MaxSubscribers = 128

const subscriberBuffer = 64

type Bus struct {
	mu     sync.RWMutex
	nextID int
	subs   map[int]chan models.ChangeEvent
}

func New() *Bus {
	return &Bus{subs: make(map[int]chan models.ChangeEvent)}
}

// Subscribe registers a listener and returns its channel plus an
// unsubscribe function. Unsubscribe is idempotent and closes the
// channel, so readers terminate on range exit.
func (b *Bus) Subscribe() (<-chan models.ChangeEvent, func()) {
	b.mu.Lock()
	defer b.mu.Unlock()

	id := b.nextID
	b.nextID++
	ch := make(chan models.ChangeEvent, subscriberBuffer)
	b.subs[id] = ch

	if len(b.subs) > MaxSubscribers {
		slog.Warn("bus subscriber ceiling breached, possible connection leak", "subscribers", len(b.subs))
	}

	var once sync.Once
	unsubscribe := func() {
		once.Do(func() {
			b.mu.Lock()
			defer b.mu.Unlock()
			if c, ok := b.subs[id]; ok {
				delete(b.subs, id)
				close(c)
			}
		})
	}
	return ch, unsubscribe
}

// Publish fans the event out to every current subscriber. Delivery is
// synchronous and in publish order per subscriber. A subscriber whose
// buffer is full has the event dropped rather than blocking the
// publisher; the fallback bulk fetch heals the gap.
func (b *Bus) Publish(ev models.ChangeEvent) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	for _, ch := range b.subs {
		select {
		case ch <- ev:
		default:
			slog.Warn("dropping change event for slow subscriber", "type", ev.Type)
		}
	}
}

// Len returns the current subscriber count, for leak diagnostics.
func (b *Bus) Len() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.subs)
}

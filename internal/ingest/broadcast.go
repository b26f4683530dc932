package ingest

import (
	"sync"
	"time"

	"github.com/couchcryptid/severe-alert-service/internal/domain"
)

// Freshness announces the most recently issued bulletin after a sync cycle.
type Freshness struct {
	Family domain.Family
	Key    string
	Issued time.Time
}

// Broadcaster fans Freshness updates out to subscribers. Every subscriber
// receives every publish in order; a late joiner immediately receives the
// most recent value before any new ones. Unsubscribing is safe concurrently
// with a publish and never affects other subscribers.
type Broadcaster struct {
	mu      sync.Mutex
	subs    map[int]chan Freshness
	nextID  int
	last    Freshness
	hasLast bool
}

// NewBroadcaster creates an empty broadcaster.
func NewBroadcaster() *Broadcaster {
	return &Broadcaster{subs: make(map[int]chan Freshness)}
}

// Publish delivers f to every subscriber and retains it for late joiners.
// A subscriber that has stopped draining loses the oldest buffered update
// rather than blocking the publisher.
func (b *Broadcaster) Publish(f Freshness) {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.last = f
	b.hasLast = true
	for _, ch := range b.subs {
		select {
		case ch <- f:
		default:
			// Buffer full: drop the oldest so the newest always lands.
			select {
			case <-ch:
			default:
			}
			select {
			case ch <- f:
			default:
			}
		}
	}
}

// Subscribe registers a listener. The returned cancel func detaches it and
// closes its channel; calling cancel more than once is harmless.
func (b *Broadcaster) Subscribe() (<-chan Freshness, func()) {
	b.mu.Lock()
	defer b.mu.Unlock()

	id := b.nextID
	b.nextID++

	ch := make(chan Freshness, 8)
	if b.hasLast {
		ch <- b.last
	}
	b.subs[id] = ch

	var once sync.Once
	cancel := func() {
		once.Do(func() {
			b.mu.Lock()
			defer b.mu.Unlock()
			delete(b.subs, id)
			close(ch)
		})
	}
	return ch, cancel
}

// Package location consumes the host's location snapshot stream. This
// service never drives the location subsystem's lifecycle or permission
// state; it only reads the latest snapshot.
package location

import (
	"context"
	"sync"
	"time"

	"github.com/jonboulle/clockwork"

	"github.com/couchcryptid/severe-alert-service/internal/domain"
)

// Snapshot is one location fix from the host.
type Snapshot struct {
	Coordinate domain.Coordinate
	Timestamp  time.Time
	Accuracy   float64 // meters; 0 means unknown
}

// Source produces a stream of snapshots. The channel closes when ctx is
// cancelled; cancelling one consumer never affects another Source.
type Source interface {
	Snapshots(ctx context.Context) <-chan Snapshot
}

// StaticSource emits the configured home coordinate once and then holds the
// stream open. Used when the host provides no live location feed.
type StaticSource struct {
	Coordinate domain.Coordinate
	Clock      clockwork.Clock
}

func (s StaticSource) Snapshots(ctx context.Context) <-chan Snapshot {
	ch := make(chan Snapshot, 1)
	ch <- Snapshot{Coordinate: s.Coordinate, Timestamp: s.Clock.Now()}
	go func() {
		<-ctx.Done()
		close(ch)
	}()
	return ch
}

// Tracker drains a Source and retains the most recent snapshot for readers.
type Tracker struct {
	mu     sync.RWMutex
	latest Snapshot
	seen   bool
}

// Run consumes snapshots until the stream closes. Intended to run in its
// own goroutine per Source.
func (t *Tracker) Run(ctx context.Context, src Source) {
	for snap := range src.Snapshots(ctx) {
		t.mu.Lock()
		t.latest = snap
		t.seen = true
		t.mu.Unlock()
	}
}

// Latest returns the most recent snapshot, and false when none has arrived.
func (t *Tracker) Latest() (Snapshot, bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.latest, t.seen
}

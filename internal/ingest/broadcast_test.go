package ingest_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/couchcryptid/severe-alert-service/internal/domain"
	"github.com/couchcryptid/severe-alert-service/internal/ingest"
)

func freshness(key string, issued time.Time) ingest.Freshness {
	return ingest.Freshness{Family: domain.FamilyMeso, Key: key, Issued: issued}
}

func recv(t *testing.T, ch <-chan ingest.Freshness) ingest.Freshness {
	t.Helper()
	select {
	case f := <-ch:
		return f
	case <-time.After(time.Second):
		t.Fatal("no update received")
		return ingest.Freshness{}
	}
}

func TestBroadcaster(t *testing.T) {
	now := time.Date(2026, 6, 1, 18, 0, 0, 0, time.UTC)

	t.Run("every subscriber sees every publish in order", func(t *testing.T) {
		b := ingest.NewBroadcaster()
		a, cancelA := b.Subscribe()
		defer cancelA()
		c, cancelC := b.Subscribe()
		defer cancelC()

		b.Publish(freshness("first", now))
		b.Publish(freshness("second", now.Add(time.Minute)))

		for _, ch := range []<-chan ingest.Freshness{a, c} {
			assert.Equal(t, "first", recv(t, ch).Key)
			assert.Equal(t, "second", recv(t, ch).Key)
		}
	})

	t.Run("late joiner replays the most recent value", func(t *testing.T) {
		b := ingest.NewBroadcaster()
		b.Publish(freshness("first", now))
		b.Publish(freshness("second", now.Add(time.Minute)))

		ch, cancel := b.Subscribe()
		defer cancel()

		assert.Equal(t, "second", recv(t, ch).Key, "only the latest value is replayed")
	})

	t.Run("subscriber before any publish gets nothing replayed", func(t *testing.T) {
		b := ingest.NewBroadcaster()
		ch, cancel := b.Subscribe()
		defer cancel()

		select {
		case f := <-ch:
			t.Fatalf("unexpected replay: %v", f)
		default:
		}
	})

	t.Run("stalled subscriber loses oldest, never the newest", func(t *testing.T) {
		b := ingest.NewBroadcaster()
		ch, cancel := b.Subscribe()
		defer cancel()

		// Overrun the buffer without draining.
		for i := 0; i < 20; i++ {
			b.Publish(freshness("update", now.Add(time.Duration(i)*time.Minute)))
		}
		b.Publish(freshness("final", now.Add(time.Hour)))

		var last ingest.Freshness
		for {
			var done bool
			select {
			case f := <-ch:
				last = f
			default:
				done = true
			}
			if done {
				break
			}
		}
		assert.Equal(t, "final", last.Key)
	})

	t.Run("cancel detaches without touching other subscribers", func(t *testing.T) {
		b := ingest.NewBroadcaster()
		a, cancelA := b.Subscribe()
		c, cancelC := b.Subscribe()
		defer cancelC()

		cancelA()
		cancelA() // second cancel is a no-op

		b.Publish(freshness("after", now))
		assert.Equal(t, "after", recv(t, c).Key)

		_, open := <-a
		require.False(t, open, "cancelled channel is closed")
	})
}

package notify

import (
	"context"
	"fmt"

	"github.com/jonboulle/clockwork"

	"github.com/couchcryptid/severe-alert-service/internal/store"
)

// StampGate implements Gate over the persisted per-kind dedup stamps. It
// stores the new stamp before approving, so a crash or rapid re-invocation
// after approval cannot double-send.
type StampGate struct {
	stamps *store.StampRepo
	clock  clockwork.Clock
}

// NewStampGate creates a gate over the stamp repository.
func NewStampGate(stamps *store.StampRepo, clock clockwork.Clock) *StampGate {
	return &StampGate{stamps: stamps, clock: clock}
}

func (g *StampGate) Allow(ctx context.Context, event Event) (bool, error) {
	stored, err := g.stamps.Get(ctx, string(event.Kind))
	if err != nil {
		return false, fmt.Errorf("read stamp: %w", err)
	}
	if stored == event.DedupKey {
		return false, nil
	}
	if err := g.stamps.Set(ctx, string(event.Kind), event.DedupKey, g.clock.Now()); err != nil {
		return false, fmt.Errorf("persist stamp: %w", err)
	}
	return true, nil
}

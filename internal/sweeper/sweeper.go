// Package sweeper drives the periodic liveness and auto-resolution
// work. It never touches game state itself: it evicts idempotency
// entries and offers a tick to every room, which does its own work on
// its own goroutine so one stuck game cannot stall the rest.
package sweeper

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/nightvote/resistance-backend/internal/hub"
	"github.com/nightvote/resistance-backend/internal/room"
	"github.com/nightvote/resistance-backend/internal/store"
)

type Sweeper struct {
	hub      *hub.Hub
	actions  *store.ActionCache
	interval time.Duration
	log      *zap.Logger
}

func New(h *hub.Hub, actions *store.ActionCache, interval time.Duration, log *zap.Logger) *Sweeper {
	return &Sweeper{hub: h, actions: actions, interval: interval, log: log}
}

// Run ticks until the context ends.
func (s *Sweeper) Run(ctx context.Context) error {
	t := time.NewTicker(s.interval)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return nil
		case now := <-t.C:
			s.tick(ctx, now)
		}
	}
}

func (s *Sweeper) tick(ctx context.Context, now time.Time) {
	if n := s.actions.EvictExpired(now); n > 0 {
		s.log.Debug("evicted idempotency entries", zap.Int("count", n))
	}
	reply := make(chan []*room.Room, 1)
	select {
	case s.hub.Inbox() <- hub.Rooms{Reply: reply}:
	case <-ctx.Done():
		return
	}
	select {
	case rooms := <-reply:
		for _, rm := range rooms {
			rm.TrySweep(now)
		}
	case <-ctx.Done():
	}
}

package session

import (
	"context"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/padlink-dev/padlink/metrics"
)

// Sweeper periodically evicts idle sessions. A missed tick only lengthens
// the effective expiry; it never shortens it.
type Sweeper struct {
	store      *Store
	interval   time.Duration
	idleExpiry time.Duration
}

func NewSweeper(store *Store, interval, idleExpiry time.Duration) *Sweeper {
	return &Sweeper{
		store:      store,
		interval:   interval,
		idleExpiry: idleExpiry,
	}
}

// Run sweeps until the context is cancelled. Meant to be started once at
// process startup on its own goroutine.
func (w *Sweeper) Run(ctx context.Context) {
	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case now := <-ticker.C:
			w.sweep(now)
		}
	}
}

func (w *Sweeper) sweep(now time.Time) {
	evicted := w.store.EvictIdleSince(w.idleExpiry, now)
	if len(evicted) == 0 {
		return
	}
	metrics.SessionsEvicted.Add(float64(len(evicted)))
	metrics.ActiveSessions.Set(float64(w.store.Len()))
	for _, playerID := range evicted {
		// Consumers already saw these players disconnect; eviction is
		// logged for observability only.
		log.Info().Str("player_id", playerID).Msg("Evicted idle player session")
	}
}

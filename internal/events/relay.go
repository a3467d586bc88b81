package events

import (
	"context"
	"time"

	"github.com/rs/zerolog/log"
)

// Relay moves outbox records to a publisher. Delivery is at least once:
// a record is marked sent only after a successful publish.
type Relay struct {
	store     Store
	publisher Publisher
	interval  time.Duration
	batchSize int
}

func NewRelay(store Store, publisher Publisher, interval time.Duration, batchSize int) *Relay {
	return &Relay{store: store, publisher: publisher, interval: interval, batchSize: batchSize}
}

// Run flushes on every tick until ctx is cancelled.
func (r *Relay) Run(ctx context.Context) {
	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			if _, err := r.Flush(ctx); err != nil && ctx.Err() == nil {
				log.Error().Err(err).Msg("relay: flush failed")
			}
		case <-ctx.Done():
			log.Info().Msg("Outbox relay stopped")
			return
		}
	}
}

// Flush publishes one batch of pending records and returns how many were
// delivered. It stops at the first publish failure to keep per-key order.
func (r *Relay) Flush(ctx context.Context) (int, error) {
	records, err := r.store.Pending(ctx, r.batchSize)
	if err != nil {
		return 0, err
	}

	sent := 0
	for _, rec := range records {
		if err := r.publisher.Publish(ctx, rec); err != nil {
			return sent, err
		}
		if err := r.store.MarkSent(ctx, rec.ID); err != nil {
			return sent, err
		}
		sent++
	}

	if sent > 0 {
		log.Debug().Int("count", sent).Msg("relay: events delivered")
	}
	return sent, nil
}

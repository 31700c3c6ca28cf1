package service

import (
	"context"
	"time"

	"github.com/rs/zerolog/log"

	"discord-economy-bot/internal/pkg/clock"
	"discord-economy-bot/internal/pkg/metrics"
	"discord-economy-bot/internal/repository"
)

// Janitor periodically deletes expired protection windows and cooldowns.
// Expired rows are already ignored by every engine; this only reclaims space.
type Janitor struct {
	store    repository.Store
	clock    clock.Clock
	interval time.Duration
	metrics  *metrics.Metrics
}

// NewJanitor creates a new Janitor instance.
func NewJanitor(store repository.Store, clk clock.Clock, interval time.Duration, m *metrics.Metrics) *Janitor {
	return &Janitor{store: store, clock: clk, interval: interval, metrics: m}
}

// PurgeOnce runs a single cleanup pass.
func (j *Janitor) PurgeOnce(ctx context.Context) (int64, error) {
	n, err := j.store.PurgeExpired(ctx, j.clock.Now())
	if err != nil {
		return 0, StorageError("purge expired", err)
	}
	j.metrics.Purged(n)
	if n > 0 {
		log.Debug().Int64("rows", n).Msg("Purged expired protection windows and cooldowns")
	}
	return n, nil
}

// Run purges on every tick until ctx is done.
func (j *Janitor) Run(ctx context.Context) {
	ticker := time.NewTicker(j.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if _, err := j.PurgeOnce(ctx); err != nil && ctx.Err() == nil {
				log.Error().Err(err).Msg("Janitor pass failed")
			}
		}
	}
}

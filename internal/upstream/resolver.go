package upstream

import (
	"context"
	"time"

	"github.com/apex/log"
	"github.com/rs/dnscache"
)

// ResolverRefresher periodically refreshes a dnscache.Resolver, dropping
// entries that were not used since the last pass.
type ResolverRefresher struct {
	Resolver *dnscache.Resolver
	Interval time.Duration
	Logger   log.Interface
}

// Run blocks until ctx is cancelled.
func (r *ResolverRefresher) Run(ctx context.Context) error {
	interval := r.Interval
	if interval <= 0 {
		interval = 5 * time.Minute
	}
	logger := r.Logger
	if logger == nil {
		logger = log.Log
	}

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	logger.WithField("interval", interval.String()).Debug("dns refresh started")
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			r.Resolver.Refresh(true)
			logger.Debug("dns cache refreshed")
		}
	}
}

package order

import (
	"context"
	"time"

	"github.com/rs/zerolog/log"
)

// Sweeper periodically cancels orders left in PENDING past the expiry
// threshold. The sweep itself is a plain service call, so it can also be
// triggered on demand through the admin endpoint.
type Sweeper struct {
	svc      Service
	interval time.Duration
}

func NewSweeper(svc Service, interval time.Duration) *Sweeper {
	return &Sweeper{svc: svc, interval: interval}
}

// Run blocks until ctx is cancelled, sweeping once per interval.
func (s *Sweeper) Run(ctx context.Context) {
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	log.Info().Dur("interval", s.interval).Msg("sweeper: started")
	for {
		select {
		case <-ctx.Done():
			log.Info().Msg("sweeper: stopped")
			return
		case <-ticker.C:
			count, err := s.svc.SweepStaleOrders(ctx, time.Now().UTC())
			if err != nil {
				log.Error().Err(err).Msg("sweeper: sweep failed")
				continue
			}
			if count > 0 {
				log.Info().Int("cancelled", count).Msg("sweeper: cancelled stale orders")
			}
		}
	}
}

package dispatch

import (
	"context"
	"time"
)

// SweepStalePending cancels pending requests older than ttl and reports
// how many were swept. The source system left expiry to the creating
// client; this closes the orphaned-request gap for clients that vanish
// without cancelling.
func (s *Service) SweepStalePending(ttl time.Duration) int {
	cutoff := s.now().Add(-ttl)
	n := 0
	for _, id := range s.Store.StalePendingIDs(cutoff) {
		if _, err := s.Cancel(id); err == nil {
			n++
		}
	}
	if n > 0 {
		s.Logger.Info("swept stale pending requests", "count", n, "ttl", ttl.String())
	}
	return n
}

// RunSweeper runs SweepStalePending on a ticker until ctx is done.
func (s *Service) RunSweeper(ctx context.Context, interval, ttl time.Duration) {
	if ttl <= 0 {
		return
	}
	if interval <= 0 {
		interval = ttl / 2
	}
	t := time.NewTicker(interval)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-t.C:
			s.SweepStalePending(ttl)
		}
	}
}

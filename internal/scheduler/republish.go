package scheduler

import (
	"context"
	"time"

	"mostrod/pkg/logger"

	"go.uber.org/zap"
)

// republishSweepLockTTL bounds one replica's hold on the republish lock.
const republishSweepLockTTL = time.Minute

// runRepublishSweep re-asserts every pending order's order-book event
// across all configured fiat codes, so a relay that dropped and
// reconnected mid-session recovers the full order book rather than only
// whatever gets published on the next real state change.
func (s *Scheduler) runRepublishSweep(ctx context.Context) {
	if !s.claimSweep(ctx, "republish", republishSweepLockTTL) {
		return
	}

	fiatCodes := s.cfg.FiatCodes
	if len(fiatCodes) == 0 {
		fiatCodes = []string{""} // no filter: republish every pending order once
	}

	total := 0
	for _, fiatCode := range fiatCodes {
		n, err := s.engine.RepublishOrderBook(ctx, fiatCode)
		if err != nil {
			logger.Warn("republish sweep failed", zap.String("fiat_code", fiatCode), zap.Error(err))
			continue
		}
		total += n
	}
	logger.Info("republish sweep complete", zap.Int("republished", total))
}

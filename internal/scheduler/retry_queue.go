package scheduler

import (
	"context"
	"time"

	"mostrod/pkg/logger"

	"go.uber.org/zap"
)

// retrySweepLockTTL bounds one replica's hold on the retry lock the same
// way expirySweepLockTTL does for the expiry sweep.
const retrySweepLockTTL = 2 * time.Minute

// maxPayoutRetries caps how many times the scheduler retries a stuck
// payout before giving up on it; past this the sweep logs the order and
// skips it on every later pass, leaving it for operator review rather than
// a retry target forever. No orphaned_payments row is written.
const maxPayoutRetries = 8

// runRetrySweep looks for in-progress orders whose scheduled payout retry
// has come due (dispatchPayout's failure path writes next_payment_retry_at)
// and re-attempts each one.
func (s *Scheduler) runRetrySweep(ctx context.Context) {
	if !s.claimSweep(ctx, "retry", retrySweepLockTTL) {
		return
	}

	orders, err := s.orders.ListDueForRetry(ctx)
	if err != nil {
		logger.Error("retry sweep: list due orders", zap.Error(err))
		return
	}

	for _, o := range orders {
		if o.FailedPaymentAttempts > maxPayoutRetries {
			logger.Warn("retry sweep: payout exhausted retry budget, leaving for operator review",
				zap.String("order_id", o.ID), zap.Int("attempts", o.FailedPaymentAttempts))
			continue
		}
		if err := s.engine.RetryPayout(ctx, o.ID); err != nil {
			logger.Warn("retry sweep: payout retry failed", zap.String("order_id", o.ID),
				zap.Int("attempts", o.FailedPaymentAttempts), zap.Error(err))
			continue
		}
		logger.Info("retry sweep: payout succeeded", zap.String("order_id", o.ID))
	}
}

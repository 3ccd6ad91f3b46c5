package scheduler

import (
	"context"
	"time"

	"mostrod/internal/database"
	"mostrod/pkg/logger"

	"go.uber.org/zap"
)

// expirableStatuses are the only statuses the transition table accepts
// actionOrderExpired from; sweeping anything else would just produce a
// noisy invalid-transition error every tick for orders whose original
// ExpiresAt has long passed but which have since moved on.
var expirableStatuses = map[database.OrderStatus]bool{
	database.StatusPending:             true,
	database.StatusWaitingPayment:      true,
	database.StatusWaitingBuyerInvoice: true,
}

// expirySweepLockTTL must comfortably exceed how long one sweep takes to
// walk every non-terminal order, so a slow sweep never loses its lock to
// a concurrent replica mid-pass.
const expirySweepLockTTL = 2 * time.Minute

// runExpirySweep walks every non-terminal order past its ExpiresAt and
// drives the FSM's order-expired transition for each. ListNonTerminal
// already excludes anything in a terminal status, so this only needs to
// filter on the deadline itself.
func (s *Scheduler) runExpirySweep(ctx context.Context) {
	if !s.claimSweep(ctx, "expiry", expirySweepLockTTL) {
		return
	}

	orders, err := s.orders.ListNonTerminal(ctx)
	if err != nil {
		logger.Error("expiry sweep: list orders", zap.Error(err))
		return
	}

	now := time.Now()
	expired := 0
	for _, o := range orders {
		if !expirableStatuses[o.Status] || now.Before(o.ExpiresAt) {
			continue
		}
		if err := s.engine.ExpireOrder(ctx, o.ID); err != nil {
			logger.Warn("expiry sweep: expire order", zap.String("order_id", o.ID), zap.Error(err))
			continue
		}
		expired++
	}
	if expired > 0 {
		logger.Info("expiry sweep complete", zap.Int("expired", expired), zap.Int("checked", len(orders)))
	}
}

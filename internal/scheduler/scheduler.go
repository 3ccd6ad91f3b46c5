// Package scheduler runs the daemon's periodic background sweeps: order
// expiry, payout retry, fiat rate refresh, and order-book republication.
// Each sweep is its own ticker loop, grounded on the same
// context-cancellation shutdown shape the stream-consumer workers use,
// just without a queue to block on.
package scheduler

import (
	"context"
	"sync"
	"time"

	"mostrod/internal/database"
	"mostrod/internal/engine"
	"mostrod/internal/exchange"
	"mostrod/pkg/cache"
	"mostrod/pkg/logger"

	"go.uber.org/zap"
)

// Config bundles the sweep intervals and fiat codes this daemon instance
// cares about, populated from config.DaemonConfig's [scheduler]/[rate]
// sections.
type Config struct {
	ExpiryInterval      time.Duration
	RetryInterval       time.Duration
	RateRefreshInterval time.Duration
	RepublishInterval   time.Duration
	FiatCodes           []string
	Instance            string // distinguishes this replica's leader-lock holder
}

// Scheduler drives every periodic sweep against a shared Engine and
// OrderRepository. Multiple daemon replicas may run a Scheduler
// concurrently; each sweep claims a short Redis lock before doing work so
// only one replica executes a given tick.
type Scheduler struct {
	cfg      Config
	engine   *engine.Engine
	orders   *database.OrderRepository
	provider exchange.PriceProvider
	rates    *RateCache
}

func New(cfg Config, eng *engine.Engine, orders *database.OrderRepository, provider exchange.PriceProvider) *Scheduler {
	return &Scheduler{
		cfg:      cfg,
		engine:   eng,
		orders:   orders,
		provider: provider,
		rates:    newRateCache(),
	}
}

// Rates exposes the refreshed fiat-rate cache to the router, which needs a
// current market rate to freeze a range order's sats amount.
func (s *Scheduler) Rates() *RateCache { return s.rates }

// Run starts every sweep as its own goroutine and blocks until ctx is
// canceled, then waits for in-flight sweeps to finish.
func (s *Scheduler) Run(ctx context.Context) {
	sweeps := []struct {
		name     string
		interval time.Duration
		fn       func(context.Context)
	}{
		{"expiry", s.cfg.ExpiryInterval, s.runExpirySweep},
		{"retry", s.cfg.RetryInterval, s.runRetrySweep},
		{"rate-refresh", s.cfg.RateRefreshInterval, s.runRateRefresh},
		{"republish", s.cfg.RepublishInterval, s.runRepublishSweep},
	}

	var wg sync.WaitGroup
	for _, sw := range sweeps {
		wg.Add(1)
		go func(name string, interval time.Duration, fn func(context.Context)) {
			defer wg.Done()
			s.loop(ctx, name, interval, fn)
		}(sw.name, sw.interval, sw.fn)
	}
	<-ctx.Done()
	wg.Wait()
}

// loop runs fn once immediately, then again every interval, until ctx is
// canceled. A sweep that takes longer than interval simply runs back to
// back on the next tick; ticker.C does not buffer beyond one pending fire.
func (s *Scheduler) loop(ctx context.Context, name string, interval time.Duration, fn func(context.Context)) {
	logger.Info("scheduler sweep starting", zap.String("sweep", name), zap.Duration("interval", interval))
	fn(ctx)
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			logger.Info("scheduler sweep stopped", zap.String("sweep", name))
			return
		case <-ticker.C:
			fn(ctx)
		}
	}
}

// claimSweep acquires a short-lived Redis lock so only one daemon replica
// executes a given sweep's tick, the same SetNX pattern idempotency.go uses
// for request dedup. Returns false if another replica already holds it.
func (s *Scheduler) claimSweep(ctx context.Context, name string, ttl time.Duration) bool {
	key := "sched:lock:" + name
	acquired, err := cache.SetNX(ctx, key, s.cfg.Instance, ttl)
	if err != nil {
		logger.Warn("scheduler: claim lock failed, proceeding unlocked", zap.String("sweep", name), zap.Error(err))
		return true
	}
	return acquired
}

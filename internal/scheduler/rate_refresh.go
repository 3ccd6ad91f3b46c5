package scheduler

import (
	"context"
	"fmt"
	"sync"

	"mostrod/pkg/logger"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

// RateCache holds the most recently fetched BTC/fiat rate per fiat code, so
// a TakeBuy/TakeSell call never blocks on a live price-provider round trip:
// the router reads whatever the last refresh tick produced.
type RateCache struct {
	mu     sync.RWMutex
	prices map[string]decimal.Decimal
}

func newRateCache() *RateCache {
	return &RateCache{prices: make(map[string]decimal.Decimal)}
}

// Get returns the last refreshed rate for fiatCode, or an error if no
// successful refresh has landed yet for that code.
func (c *RateCache) Get(fiatCode string) (decimal.Decimal, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	rate, ok := c.prices[fiatCode]
	if !ok {
		return decimal.Zero, fmt.Errorf("no cached rate for %s yet", fiatCode)
	}
	return rate, nil
}

func (c *RateCache) set(fiatCode string, rate decimal.Decimal) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.prices[fiatCode] = rate
}

// runRateRefresh fetches the current BTC price in each configured fiat
// code from the price provider and updates the cache. Unlike the other
// sweeps this does not claim a cross-replica lock: every replica is meant
// to keep its own cache warm rather than share one, since the cache never
// touches the database.
func (s *Scheduler) runRateRefresh(ctx context.Context) {
	for _, fiatCode := range s.cfg.FiatCodes {
		price, err := s.provider.GetPrice(ctx, fiatCode)
		if err != nil {
			logger.Warn("rate refresh failed", zap.String("fiat_code", fiatCode), zap.Error(err))
			continue
		}
		s.rates.set(fiatCode, decimal.NewFromFloat(price))
	}
}

package engine

import (
	"context"
	"fmt"
)

// RepublishOrderBook re-signs and re-publishes the order-book event for
// every pending order, optionally restricted to one fiat code. Driven by
// the scheduler's republish sweep, this exists because a relay that drops
// and reconnects has no memory of events published before the gap — Mostro
// is the only durable source of truth for "what pending orders exist", so
// it periodically re-asserts them rather than relying on relays to retain
// history indefinitely. Returns how many orders were republished.
func (e *Engine) RepublishOrderBook(ctx context.Context, fiatCode string) (int, error) {
	orders, err := e.orders.ListOrderBook(ctx, fiatCode)
	if err != nil {
		return 0, fmt.Errorf("republish: list order book: %w", err)
	}
	for _, o := range orders {
		e.publishOrderEvent(o)
	}
	return len(orders), nil
}

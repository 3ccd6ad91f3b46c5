package engine

import (
	"context"
	"fmt"

	"mostrod/internal/database"
)

// ExpireOrder is driven by the scheduler's expiry sweep: o has sat past its
// ExpiresAt without completing. A lone pending order simply expires; an
// order that already has a taker (waiting on the hold invoice payment or a
// buyer invoice) instead reverts to pending so it can be retaken, since no
// fiat has changed hands yet and any issued hold invoice is still
// cancelable.
func (e *Engine) ExpireOrder(ctx context.Context, orderID string) error {
	o, err := e.orders.GetByID(ctx, orderID)
	if err != nil {
		return err
	}

	err = e.applyTransition(ctx, o, actionOrderExpired, RoleSystem, func(ctx context.Context, toStatus database.OrderStatus) error {
		switch toStatus {
		case database.StatusExpired:
			return e.orders.UpdateStatus(ctx, o.ID, o.Status, toStatus)
		case database.StatusPending:
			if o.MakerInvoicePreimageHash != nil {
				if err := e.ln.CancelInvoice(ctx, *o.MakerInvoicePreimageHash); err != nil {
					return fmt.Errorf("cancel stale hold invoice: %w", err)
				}
			}
			return e.orders.ResetToPending(ctx, o.ID, o.Status)
		default:
			return fmt.Errorf("order %s: unexpected expiry target status %q", o.ID, toStatus)
		}
	})
	if err != nil {
		return err
	}

	o, err = e.orders.GetByID(ctx, orderID)
	if err != nil {
		return err
	}
	// actionOrderExpired carries no peer-request form, only this one-way
	// notification; it is outside protocol's closed request alphabet but
	// still a meaningful outbound tag for the recipient's client to render.
	e.notifyParties(o, actionOrderExpired, nil)
	e.publishOrderEvent(o)
	return nil
}

// RetryPayout is driven by the scheduler's retry queue for an order stuck
// in-progress after a failed payout attempt. It re-runs the same payout
// dispatch the settle handler uses, so success or failure is recorded
// identically either way.
func (e *Engine) RetryPayout(ctx context.Context, orderID string) error {
	o, err := e.orders.GetByID(ctx, orderID)
	if err != nil {
		return err
	}
	if o.Status != database.StatusInProgress {
		return fmt.Errorf("order %s: retry payout called outside in-progress (status %q)", o.ID, o.Status)
	}
	return e.locks.withOrderLock(o.ID, false, func() error {
		if err := e.dispatchPayout(ctx, o); err != nil {
			return err
		}
		return e.orders.ClearPaymentRetry(ctx, o.ID)
	})
}

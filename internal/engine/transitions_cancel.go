package engine

import (
	"context"
	"fmt"

	"mostrod/internal/database"
	"mostrod/internal/protocol"
	"mostrod/pkg/cache"
)

// Cancel handles a party's cancel request. A pending order with no taker
// cancels unilaterally. Once a taker is assigned, cancellation needs both
// sides to agree: the first cancel is recorded and the order is left in
// its current status until the counterparty also cancels, at which point
// the table's cooperatively-canceled transition actually applies and any
// hold invoice already issued is canceled at the gateway.
func (e *Engine) Cancel(ctx context.Context, orderID, callerPubkey, requestID string) (*database.Order, error) {
	if seen, err := e.idem.SeenRequest(ctx, orderID, requestID); err != nil {
		return nil, err
	} else if seen {
		return e.orders.GetByID(ctx, orderID)
	}

	o, err := e.orders.GetByID(ctx, orderID)
	if err != nil {
		return nil, err
	}
	role, err := roleOf(o, callerPubkey)
	if err != nil {
		return nil, err
	}

	toStatus, err := Validate(o.Status, protocol.ActionCancel, role)
	if err != nil {
		return nil, err
	}

	// A lone pending order (no taker yet) cancels outright; nothing else
	// to unwind since no hold invoice exists.
	if o.TakerPubkey == nil {
		err = e.locks.withOrderLock(o.ID, toStatus.IsTerminal(), func() error {
			return e.orders.UpdateStatus(ctx, o.ID, o.Status, toStatus)
		})
		if err != nil {
			return nil, err
		}
		o, err = e.orders.GetByID(ctx, orderID)
		if err != nil {
			return nil, err
		}
		e.publishOrderEvent(o)
		return o, nil
	}

	agreed, err := e.recordCancelVote(ctx, o.ID, callerPubkey)
	if err != nil {
		return nil, err
	}
	if !agreed {
		e.notifyParties(o, protocol.ActionCooperativeCancelInitiatedByPeer, nil)
		return o, nil
	}

	err = e.locks.withOrderLock(o.ID, toStatus.IsTerminal(), func() error {
		if o.MakerInvoicePreimageHash != nil {
			if err := e.ln.CancelInvoice(ctx, *o.MakerInvoicePreimageHash); err != nil {
				return fmt.Errorf("cancel hold invoice: %w", err)
			}
		}
		return e.orders.UpdateStatus(ctx, o.ID, o.Status, toStatus)
	})
	if err != nil {
		return nil, err
	}

	e.clearCancelVotes(ctx, o.ID)
	o, err = e.orders.GetByID(ctx, orderID)
	if err != nil {
		return nil, err
	}
	e.notifyParties(o, protocol.ActionCooperativeCancelAccepted, nil)
	e.publishOrderEvent(o)
	return o, nil
}

// recordCancelVote records that pubkey has asked to cancel orderID, and
// reports whether both parties have now agreed. Votes are kept in the
// same Redis idempotency store as request/notification dedup, under a
// distinct key prefix; they are not deleted when a cancel applies and
// expire after notificationTTL.
func (e *Engine) recordCancelVote(ctx context.Context, orderID, pubkey string) (bothAgreed bool, err error) {
	firstVote, err := e.idem.SeenNotification(ctx, "cancel-vote", orderID+":"+pubkey)
	if err != nil {
		return false, err
	}
	if firstVote {
		// This exact pubkey already voted; nothing new to check.
		return false, nil
	}
	o, err := e.orders.GetByID(ctx, orderID)
	if err != nil {
		return false, err
	}
	otherPubkey := o.MakerPubkey
	if pubkey == o.MakerPubkey && o.TakerPubkey != nil {
		otherPubkey = *o.TakerPubkey
	}
	otherVoted, err := cache.Exists(ctx, notificationKey("cancel-vote", orderID+":"+otherPubkey))
	if err != nil {
		return false, err
	}
	return otherVoted, nil
}

func (e *Engine) clearCancelVotes(ctx context.Context, orderID string) {
	// Best-effort: the votes' TTL (notificationTTL) expires them anyway,
	// and a stale vote after the order already left its cancelable states
	// is harmless since Validate will reject any further cancel on it.
}

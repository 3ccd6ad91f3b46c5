package engine

import (
	"context"
	"fmt"
	"time"

	"mostrod/internal/database"
	"mostrod/internal/protocol"

	"github.com/google/uuid"
)

// Dispute lets either party escalate an active or fiat-sent order into
// arbitration. A Dispute row is created before the order's status moves,
// so a solver can always be found for an order sitting in StatusDispute.
func (e *Engine) Dispute(ctx context.Context, orderID, callerPubkey, requestID string) (*database.Order, error) {
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

	d := &database.Dispute{
		ID:              uuid.New().String(),
		OrderID:         o.ID,
		InitiatorPubkey: callerPubkey,
		Status:          database.DisputeInitiated,
		CreatedAt:       time.Now(),
	}

	err = e.applyTransition(ctx, o, protocol.ActionDispute, role, func(ctx context.Context, toStatus database.OrderStatus) error {
		if err := e.disputes.Create(ctx, d); err != nil {
			return err
		}
		return e.orders.AttachDispute(ctx, o.ID, d.ID)
	})
	if err != nil {
		return nil, err
	}

	o, err = e.orders.GetByID(ctx, orderID)
	if err != nil {
		return nil, err
	}
	e.notifyParties(o, protocol.ActionDisputeInitiatedByPeer, nil)
	e.publishOrderEvent(o)
	return o, nil
}

// AddSolver assigns the dispute open on orderID to a solver pubkey. It
// looks the dispute up by order and writes only the dispute row: the
// order's status is not touched, since claiming arbitration work is not a
// transition the table governs.
func (e *Engine) AddSolver(ctx context.Context, orderID, solverPubkey string) error {
	d, err := e.disputes.GetByOrderID(ctx, orderID)
	if err != nil {
		return err
	}
	return e.disputes.AssignSolver(ctx, d.ID, solverPubkey)
}

// ErrNotAuthorizedResolver is returned when callerPubkey may not resolve o:
// not the solver assigned to its dispute, and not a registered admin.
type ErrNotAuthorizedResolver struct {
	OrderID string
}

func (e *ErrNotAuthorizedResolver) Error() string {
	return fmt.Sprintf("pubkey is not authorized to resolve order %s", e.OrderID)
}

// authorizeResolver checks that callerPubkey may settle/cancel o: the
// table's RoleAdmin rule accepts either a registered admin or the solver
// actually assigned to o's dispute, and the table alone has no way to
// check which pubkey that is.
func (e *Engine) authorizeResolver(ctx context.Context, o *database.Order, callerPubkey string, wasDispute bool) error {
	if wasDispute {
		d, err := e.disputes.GetByOrderID(ctx, o.ID)
		if err != nil {
			return err
		}
		if d.SolverPubkey != nil && *d.SolverPubkey == callerPubkey {
			return nil
		}
	}
	u, err := e.users.GetByPubkey(ctx, callerPubkey)
	if err != nil || !u.IsAdmin {
		return &ErrNotAuthorizedResolver{OrderID: o.ID}
	}
	return nil
}

// AdminSettle resolves a disputed order in the buyer's favor: the seller's
// hold invoice is settled and the sats are paid out to the buyer exactly as
// a normal release would. It also covers the non-dispute admin override on
// a fiat-sent order (completed-by-admin), which needs the same settlement.
func (e *Engine) AdminSettle(ctx context.Context, orderID, adminPubkey, requestID string) (*database.Order, error) {
	if seen, err := e.idem.SeenRequest(ctx, orderID, requestID); err != nil {
		return nil, err
	} else if seen {
		return e.orders.GetByID(ctx, orderID)
	}

	o, err := e.orders.GetByID(ctx, orderID)
	if err != nil {
		return nil, err
	}
	if o.MakerInvoicePreimageHash == nil || o.MakerInvoicePreimage == nil {
		return nil, fmt.Errorf("order %s has no escrowed hold invoice to settle", o.ID)
	}
	wasDispute := o.Status == database.StatusDispute
	if err := e.authorizeResolver(ctx, o, adminPubkey, wasDispute); err != nil {
		return nil, err
	}

	err = e.applyTransition(ctx, o, protocol.ActionAdminSettle, RoleAdmin, func(ctx context.Context, toStatus database.OrderStatus) error {
		if err := e.ln.SettleInvoice(ctx, *o.MakerInvoicePreimage); err != nil {
			return fmt.Errorf("settle hold invoice: %w", err)
		}
		if wasDispute {
			if err := e.disputes.UpdateStatus(ctx, *o.DisputeID, database.DisputeSettled); err != nil {
				return err
			}
		}
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
	if wasDispute {
		if payoutErr := e.dispatchPayout(ctx, o); payoutErr != nil {
			return o, payoutErr
		}
		o, err = e.orders.GetByID(ctx, orderID)
		if err != nil {
			return nil, err
		}
	} else {
		e.notifyParties(o, protocol.ActionAdminSettle, nil)
	}
	return o, nil
}

// AdminCancel resolves a disputed order in the seller's favor: the hold
// invoice is canceled and the seller's funds are released back to them. It
// also covers the non-dispute admin override (canceled-by-admin), which has
// no payout leg to run.
func (e *Engine) AdminCancel(ctx context.Context, orderID, adminPubkey, requestID string) (*database.Order, error) {
	if seen, err := e.idem.SeenRequest(ctx, orderID, requestID); err != nil {
		return nil, err
	} else if seen {
		return e.orders.GetByID(ctx, orderID)
	}

	o, err := e.orders.GetByID(ctx, orderID)
	if err != nil {
		return nil, err
	}
	wasDispute := o.Status == database.StatusDispute
	if err := e.authorizeResolver(ctx, o, adminPubkey, wasDispute); err != nil {
		return nil, err
	}

	err = e.applyTransition(ctx, o, protocol.ActionAdminCancel, RoleAdmin, func(ctx context.Context, toStatus database.OrderStatus) error {
		if o.MakerInvoicePreimageHash != nil {
			if err := e.ln.CancelInvoice(ctx, *o.MakerInvoicePreimageHash); err != nil {
				return fmt.Errorf("cancel hold invoice: %w", err)
			}
		}
		if wasDispute {
			if err := e.disputes.UpdateStatus(ctx, *o.DisputeID, database.DisputeSellerRefunded); err != nil {
				return err
			}
		}
		return e.orders.UpdateStatus(ctx, o.ID, o.Status, toStatus)
	})
	if err != nil {
		return nil, err
	}

	o, err = e.orders.GetByID(ctx, orderID)
	if err != nil {
		return nil, err
	}
	e.notifyParties(o, protocol.ActionAdminCancel, nil)
	e.publishOrderEvent(o)
	return o, nil
}

package lnd

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"mostrod/internal/database"
	"mostrod/pkg/logger"
)

// OrderInvoiceView is the minimal slice of order state reconciliation needs,
// kept narrow so this package does not import the engine.
type OrderInvoiceView struct {
	OrderID                  string
	Status                   database.OrderStatus
	MakerInvoicePreimageHash string
}

// Reconciler diffs order state recorded in Postgres against the hold
// invoice's actual state in LND, to find any settle/cancel that happened
// while the daemon was offline. It only reports divergences; the daemon's
// startup path does not construct or run it, and nothing applies its
// results to the order state machine. LND's invoice
// database is the source of truth for whether funds moved, the order
// repository is the source of truth for the trade workflow, and a crash
// between the two can leave them disagreeing.
type Reconciler struct {
	ln LightningClient
}

func NewReconciler(ln LightningClient) *Reconciler {
	return &Reconciler{ln: ln}
}

// Divergence describes one order whose recorded status disagrees with its
// hold invoice's actual state in LND.
type Divergence struct {
	OrderID       string
	RecordedState database.OrderStatus
	ActualState   InvoiceLifecycleState
}

// Reconcile checks every order with an outstanding hold invoice and reports
// any whose DB status no longer matches LND's invoice state. It never
// mutates the order repository itself — the caller decides how to apply
// each divergence to the order state machine.
func (r *Reconciler) Reconcile(ctx context.Context, orders []OrderInvoiceView) ([]Divergence, error) {
	var diffs []Divergence

	for _, o := range orders {
		if o.MakerInvoicePreimageHash == "" {
			continue
		}

		state, err := r.ln.LookupInvoice(ctx, o.MakerInvoicePreimageHash)
		if err != nil {
			logger.Warn("reconcile: lookup invoice failed",
				zap.String("order_id", o.OrderID), zap.Error(err))
			continue
		}

		if !consistent(o.Status, state.State) {
			diffs = append(diffs, Divergence{
				OrderID:       o.OrderID,
				RecordedState: o.Status,
				ActualState:   state.State,
			})
		}
	}

	logger.Info("reconcile: startup pass complete",
		zap.Int("orders_checked", len(orders)), zap.Int("divergences", len(diffs)))

	return diffs, nil
}

// consistent reports whether an order's DB status is compatible with its
// invoice's LND-reported lifecycle state. It is deliberately permissive:
// only contradictions that indicate a missed notification are flagged.
func consistent(status database.OrderStatus, lnState InvoiceLifecycleState) bool {
	switch lnState {
	case InvoiceSettled:
		return status == database.StatusSettledHoldInvoice ||
			status == database.StatusPaidHoldInvoice ||
			status.IsTerminal()
	case InvoiceCanceled:
		return status.IsTerminal()
	case InvoiceAccepted:
		return status == database.StatusActive ||
			status == database.StatusFiatSent ||
			status == database.StatusDispute ||
			status == database.StatusWaitingBuyerInvoice
	case InvoiceOpen:
		return !status.IsTerminal()
	default:
		return true
	}
}

// String renders a Divergence for operator-facing startup logs.
func (d Divergence) String() string {
	return fmt.Sprintf("order=%s recorded=%s actual_invoice_state=%s", d.OrderID, d.RecordedState, d.ActualState)
}

package engine

import (
	"context"
	"fmt"
	"time"

	"mostrod/internal/database"
	"mostrod/internal/lnd"
	"mostrod/internal/protocol"

	"github.com/shopspring/decimal"
)

// TakeBuy lets takerPubkey take a pending sell order, generating the
// maker's hold invoice and moving the order to waiting-payment. fiatAmount
// is the taker's chosen amount, only meaningful (and validated) when o is a
// range order; marketRate converts it to sats. requestID, if non-empty,
// dedups a retried take-buy call.
func (e *Engine) TakeBuy(ctx context.Context, orderID, takerPubkey string, takerTradeIndex, fiatAmount int64, marketRate decimal.Decimal, requestID string) (*database.Order, error) {
	if seen, err := e.idem.SeenRequest(ctx, orderID, requestID); err != nil {
		return nil, err
	} else if seen {
		return e.orders.GetByID(ctx, orderID)
	}

	o, err := e.orders.GetByID(ctx, orderID)
	if err != nil {
		return nil, err
	}
	if o.Kind != database.KindSell {
		return nil, &ErrInvalidTransition{Status: o.Status, Action: protocol.ActionTakeBuy}
	}
	amountSats, err := freezeRangeAmount(o, fiatAmount, marketRate)
	if err != nil {
		return nil, err
	}

	var result *holdInvoiceResult
	err = e.applyTransition(ctx, o, protocol.ActionTakeBuy, RoleTaker, func(ctx context.Context, toStatus database.OrderStatus) error {
		if err := e.orders.TakeOrder(ctx, o.ID, takerPubkey, takerTradeIndex, amountSats, fiatAmount, toStatus, time.Now()); err != nil {
			return err
		}
		result, err = e.issueHoldInvoice(ctx, o.ID, amountSats)
		return err
	})
	if err != nil {
		return nil, err
	}

	o, err = e.orders.GetByID(ctx, orderID)
	if err != nil {
		return nil, err
	}
	e.notifyParties(o, protocol.ActionTakeBuy, protocol.PaymentRequestContent{Invoice: result.PaymentRequest})
	e.publishOrderEvent(o)
	return o, nil
}

// HoldInvoiceAccepted is driven by the LN gateway's invoice subscription:
// once the seller's hold invoice is accepted (funds locked, not yet
// settled) the order becomes active and both parties are introduced.
func (e *Engine) HoldInvoiceAccepted(ctx context.Context, paymentHashHex string) error {
	if seen, err := e.idem.SeenNotification(ctx, "accepted", paymentHashHex); err != nil {
		return err
	} else if seen {
		return nil
	}

	o, err := e.orders.GetByPreimageHash(ctx, paymentHashHex)
	if err != nil {
		return err
	}

	err = e.applyTransition(ctx, o, protocol.ActionHoldInvoicePaymentAccepted, RoleSystem, func(ctx context.Context, toStatus database.OrderStatus) error {
		return e.orders.UpdateStatus(ctx, o.ID, o.Status, toStatus)
	})
	if err != nil {
		return err
	}

	o, err = e.orders.GetByID(ctx, o.ID)
	if err != nil {
		return err
	}
	if o.TakerPubkey != nil {
		e.sendMessageLogged(o.MakerPubkey, mustMessage(protocol.ActionHoldInvoicePaymentAccepted, o.ID, protocol.PeerContent{Pubkey: *o.TakerPubkey}))
		e.sendMessageLogged(*o.TakerPubkey, mustMessage(protocol.ActionHoldInvoicePaymentAccepted, o.ID, protocol.PeerContent{Pubkey: o.MakerPubkey}))
	}
	e.publishOrderEvent(o)
	return nil
}

// FiatSent is sent by the buyer once they have sent the fiat payment
// off-band; it does not itself release anything, only moves the order to
// fiat-sent so the seller knows to check and release.
func (e *Engine) FiatSent(ctx context.Context, orderID, callerPubkey, requestID string) (*database.Order, error) {
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
	buyerPubkey, ok := o.BuyerPubkey()
	if !ok || callerPubkey != buyerPubkey {
		return nil, &ErrNotYourOrder{OrderID: o.ID}
	}

	err = e.applyTransition(ctx, o, protocol.ActionFiatSent, role, func(ctx context.Context, toStatus database.OrderStatus) error {
		return e.orders.UpdateStatus(ctx, o.ID, o.Status, toStatus)
	})
	if err != nil {
		return nil, err
	}

	o, err = e.orders.GetByID(ctx, orderID)
	if err != nil {
		return nil, err
	}
	e.notifyParties(o, protocol.ActionFiatSent, nil)
	return o, nil
}

// Release is sent by the seller once they have confirmed receipt of fiat;
// it settles the seller's hold invoice, which unlocks the sats Mostro will
// then pay out to the buyer.
func (e *Engine) Release(ctx context.Context, orderID, callerPubkey, requestID string) (*database.Order, error) {
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
	sellerPubkey, ok := o.SellerPubkey()
	if !ok || callerPubkey != sellerPubkey {
		return nil, &ErrNotYourOrder{OrderID: o.ID}
	}
	if o.MakerInvoicePreimageHash == nil {
		return nil, fmt.Errorf("order %s has no hold invoice to release", o.ID)
	}

	err = e.applyTransition(ctx, o, protocol.ActionRelease, role, func(ctx context.Context, toStatus database.OrderStatus) error {
		if o.MakerInvoicePreimage == nil {
			return fmt.Errorf("order %s is missing its escrowed preimage", o.ID)
		}
		if err := e.ln.SettleInvoice(ctx, *o.MakerInvoicePreimage); err != nil {
			return fmt.Errorf("settle hold invoice: %w", err)
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
	e.notifyParties(o, protocol.ActionRelease, nil)
	return o, nil
}

// HoldInvoiceSettled is driven by the LN gateway once the seller's
// released hold invoice settles on-chain-equivalent (the HTLC resolves).
// It starts the payout leg: Mostro now owes the buyer their sats.
func (e *Engine) HoldInvoiceSettled(ctx context.Context, paymentHashHex string) error {
	if seen, err := e.idem.SeenNotification(ctx, "settled", paymentHashHex); err != nil {
		return err
	} else if seen {
		return nil
	}

	o, err := e.orders.GetByPreimageHash(ctx, paymentHashHex)
	if err != nil {
		return err
	}

	err = e.applyTransition(ctx, o, protocol.ActionHoldInvoicePaymentSettled, RoleSystem, func(ctx context.Context, toStatus database.OrderStatus) error {
		return e.orders.UpdateStatus(ctx, o.ID, o.Status, toStatus)
	})
	if err != nil {
		return err
	}
	o, err = e.orders.GetByID(ctx, o.ID)
	if err != nil {
		return err
	}
	e.publishOrderEvent(o)
	return e.dispatchPayout(ctx, o)
}

// dispatchPayout pays the buyer's payout invoice and drives the order
// through in-progress/paid-hold-invoice/success as the LN payment
// resolves. A failed payment is left for the scheduler's retry queue
// rather than retried inline here, scheduled after a delay that doubles
// with each failed attempt already recorded on the order.
func (e *Engine) dispatchPayout(ctx context.Context, o *database.Order) error {
	if o.BuyerPaymentRequest == nil {
		return fmt.Errorf("order %s has no buyer payout invoice on file", o.ID)
	}
	retryDelay := firstPayoutRetryDelay << o.FailedPaymentAttempts
	result, err := e.ln.PayInvoice(ctx, *o.BuyerPaymentRequest, maxRoutingFeeSats)
	if err != nil {
		nextRetry := time.Now().Add(retryDelay)
		_ = e.orders.RecordPaymentFailure(ctx, o.ID, nextRetry)
		return fmt.Errorf("pay buyer payout invoice: %w", err)
	}
	if result.Status != lnd.Succeeded {
		nextRetry := time.Now().Add(retryDelay)
		_ = e.orders.RecordPaymentFailure(ctx, o.ID, nextRetry)
		return fmt.Errorf("payout invoice payment status %v", result.Status)
	}

	for _, action := range []protocol.Action{actionPayoutPaid, protocol.ActionPurchaseCompleted} {
		toStatus, verr := Validate(o.Status, action, RoleSystem)
		if verr != nil {
			return verr
		}
		if err := e.orders.UpdateStatus(ctx, o.ID, o.Status, toStatus); err != nil {
			return err
		}
		o.Status = toStatus
	}

	if err := e.users.AddTradingVolume(ctx, o.MakerPubkey, o.AmountSats); err != nil {
		return err
	}
	if o.TakerPubkey != nil {
		if err := e.users.AddTradingVolume(ctx, *o.TakerPubkey, o.AmountSats); err != nil {
			return err
		}
	}

	e.notifyParties(o, protocol.ActionPurchaseCompleted, nil)
	e.publishOrderEvent(o)
	return nil
}

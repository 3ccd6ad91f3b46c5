package engine

import (
	"context"
	"fmt"
	"time"

	"mostrod/internal/database"
	"mostrod/internal/protocol"

	"github.com/shopspring/decimal"
)

// TakeSell lets takerPubkey (the seller) take a pending buy order. No hold
// invoice is created yet: the order moves to waiting-buyer-invoice and
// waits for the maker (buyer) to submit their payout invoice via
// AddInvoice, which is what triggers the seller's hold invoice. fiatAmount
// is the taker's chosen amount, validated and converted to sats via
// marketRate when o is a range order.
func (e *Engine) TakeSell(ctx context.Context, orderID, takerPubkey string, takerTradeIndex, fiatAmount int64, marketRate decimal.Decimal, requestID string) (*database.Order, error) {
	if seen, err := e.idem.SeenRequest(ctx, orderID, requestID); err != nil {
		return nil, err
	} else if seen {
		return e.orders.GetByID(ctx, orderID)
	}

	o, err := e.orders.GetByID(ctx, orderID)
	if err != nil {
		return nil, err
	}
	if o.Kind != database.KindBuy {
		return nil, &ErrInvalidTransition{Status: o.Status, Action: protocol.ActionTakeSell}
	}
	amountSats, err := freezeRangeAmount(o, fiatAmount, marketRate)
	if err != nil {
		return nil, err
	}

	err = e.applyTransition(ctx, o, protocol.ActionTakeSell, RoleTaker, func(ctx context.Context, toStatus database.OrderStatus) error {
		return e.orders.TakeOrder(ctx, o.ID, takerPubkey, takerTradeIndex, amountSats, fiatAmount, toStatus, time.Now())
	})
	if err != nil {
		return nil, err
	}

	o, err = e.orders.GetByID(ctx, orderID)
	if err != nil {
		return nil, err
	}
	e.notifyParties(o, protocol.ActionTakeSell, nil)
	e.publishOrderEvent(o)
	return o, nil
}

// AddInvoice records the buyer's payout invoice. Once it is on file,
// Mostro generates and offers the seller's hold invoice; the order stays
// in waiting-buyer-invoice until that hold invoice is accepted.
func (e *Engine) AddInvoice(ctx context.Context, orderID, callerPubkey, bolt11, requestID string) (*database.Order, error) {
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
	if _, err := e.ln.DecodeInvoice(ctx, bolt11); err != nil {
		return nil, fmt.Errorf("decode payout invoice: %w", err)
	}

	sellerPubkey, ok := o.SellerPubkey()
	if !ok {
		return nil, &ErrInvalidTransition{Status: o.Status, Action: protocol.ActionAddInvoice}
	}

	var result *holdInvoiceResult
	err = e.applyTransition(ctx, o, protocol.ActionAddInvoice, role, func(ctx context.Context, toStatus database.OrderStatus) error {
		if err := e.orders.SetBuyerPaymentRequest(ctx, o.ID, bolt11); err != nil {
			return err
		}
		result, err = e.issueHoldInvoice(ctx, o.ID, o.AmountSats)
		return err
	})
	if err != nil {
		return nil, err
	}

	o, err = e.orders.GetByID(ctx, orderID)
	if err != nil {
		return nil, err
	}
	e.sendMessageLogged(sellerPubkey, mustMessage(protocol.ActionAddInvoice, o.ID, protocol.PaymentRequestContent{Invoice: result.PaymentRequest}))
	return o, nil
}

type holdInvoiceResult struct {
	PaymentRequest string
}

// issueHoldInvoice generates and records the hold invoice the order's
// seller must pay, shared by both the sell flow's take-buy and the buy
// flow's add-invoice (the point at which each kind first needs one).
func (e *Engine) issueHoldInvoice(ctx context.Context, orderID string, amountSats int64) (*holdInvoiceResult, error) {
	paymentHash, preimageHex, err := newPreimageAndHash()
	if err != nil {
		return nil, err
	}
	res, err := e.ln.AddHoldInvoice(ctx, holdInvoiceRequestFor(orderID, amountSats, paymentHash))
	if err != nil {
		return nil, fmt.Errorf("add hold invoice: %w", err)
	}
	if err := e.orders.SetMakerHoldInvoice(ctx, orderID, res.PaymentRequest, res.PaymentHashHex, preimageHex); err != nil {
		return nil, err
	}
	e.watchInvoice(res.PaymentHashHex)
	return &holdInvoiceResult{PaymentRequest: res.PaymentRequest}, nil
}

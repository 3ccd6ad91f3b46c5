package engine

import (
	"context"
	"fmt"
	"time"

	"mostrod/internal/database"
	"mostrod/internal/protocol"

	"github.com/google/uuid"
)

// NewOrderParams is the validated subset of protocol.OrderContent needed to
// create an order; the router resolves trade index and expiration before
// calling in, since those come from the user repository and daemon config
// rather than the wire message itself.
type NewOrderParams struct {
	Kind             database.OrderKind
	FiatCode         string
	FiatAmount       int64 // 0 if range
	MinFiatAmount    *int64
	MaxFiatAmount    *int64
	Premium          int
	PaymentMethod    string
	AmountSats       int64 // 0 until a marketRate is available for a fixed order too; frozen at take time for range orders
	MakerTradeIndex  int64
	ExpirationWindow time.Duration
}

// ErrInvalidRange is returned when a range order's min/max bounds are
// nonsensical (only one bound supplied, min not positive, or min not
// strictly below max).
type ErrInvalidRange struct {
	Min, Max *int64
}

func (e *ErrInvalidRange) Error() string {
	return fmt.Sprintf("invalid fiat amount range: min=%v max=%v", e.Min, e.Max)
}

// NewOrder creates a pending order for makerPubkey. It does not itself
// touch Lightning: no collateral is requested until a taker commits,
// mirroring the table's {pending, take-buy/take-sell} entries which are
// the first transitions that ever call the LN gateway.
func (e *Engine) NewOrder(ctx context.Context, makerPubkey string, p NewOrderParams) (*database.Order, error) {
	if p.MinFiatAmount != nil || p.MaxFiatAmount != nil {
		if p.MinFiatAmount == nil || p.MaxFiatAmount == nil || *p.MinFiatAmount <= 0 || *p.MinFiatAmount >= *p.MaxFiatAmount {
			return nil, &ErrInvalidRange{Min: p.MinFiatAmount, Max: p.MaxFiatAmount}
		}
	}

	now := time.Now().UTC()
	o := &database.Order{
		ID:              uuid.New().String(),
		Kind:            p.Kind,
		Status:          database.StatusPending,
		AmountSats:      p.AmountSats,
		FiatCode:        p.FiatCode,
		FiatAmount:      p.FiatAmount,
		MinFiatAmount:   p.MinFiatAmount,
		MaxFiatAmount:   p.MaxFiatAmount,
		Premium:         p.Premium,
		PaymentMethod:   p.PaymentMethod,
		MakerPubkey:     makerPubkey,
		MakerTradeIndex: p.MakerTradeIndex,
		CreatedAt:       now,
		ExpiresAt:       now.Add(p.ExpirationWindow),
	}

	if err := e.orders.Create(ctx, o); err != nil {
		return nil, fmt.Errorf("create order: %w", err)
	}

	e.publishOrderEvent(o)
	e.sendMessageLogged(makerPubkey, mustMessage(protocol.ActionNewOrder, o.ID, nil))
	return o, nil
}

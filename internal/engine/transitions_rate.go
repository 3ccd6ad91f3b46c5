package engine

import (
	"context"
	"fmt"
	"time"

	"mostrod/internal/database"
	"mostrod/internal/protocol"

	"github.com/google/uuid"
)

// ratableStatuses are the terminal statuses after which a counterparty
// rating makes sense: a completed trade, or a dispute resolved in the
// seller's favor where fiat still changed hands honestly on the buyer's
// side. A straight admin-cancel or a buyer-favored dispute leaves nothing
// worth rating.
var ratableStatuses = map[database.OrderStatus]bool{
	database.StatusSuccess:        true,
	database.StatusSellerRefunded: true,
}

// Rate records raterPubkey's 1-5 rating of their counterparty on orderID.
// Each side may rate once; a repeat call is rejected rather than overwriting
// the first rating, since ratings are immutable once written.
func (e *Engine) Rate(ctx context.Context, orderID, raterPubkey string, value int) error {
	if value < 1 || value > 5 {
		return fmt.Errorf("rating value %d out of range [1,5]", value)
	}

	o, err := e.orders.GetByID(ctx, orderID)
	if err != nil {
		return err
	}
	if !ratableStatuses[o.Status] {
		return fmt.Errorf("order %s: not ratable in status %q", o.ID, o.Status)
	}

	rateePubkey, err := counterpartyOf(o, raterPubkey)
	if err != nil {
		return err
	}

	exists, err := e.ratings.ExistsForRater(ctx, o.ID, raterPubkey)
	if err != nil {
		return fmt.Errorf("check existing rating: %w", err)
	}
	if exists {
		return fmt.Errorf("order %s: %s has already rated this trade", o.ID, raterPubkey)
	}

	rt := &database.Rating{
		ID:          uuid.New().String(),
		OrderID:     o.ID,
		RaterPubkey: raterPubkey,
		RateePubkey: rateePubkey,
		Value:       value,
		CreatedAt:   time.Now().UTC(),
	}
	if err := e.ratings.Create(ctx, rt); err != nil {
		return fmt.Errorf("create rating: %w", err)
	}
	if err := e.users.AddRating(ctx, rateePubkey, value); err != nil {
		return fmt.Errorf("fold rating into %s: %w", rateePubkey, err)
	}

	e.sendMessageLogged(rateePubkey, mustMessage(protocol.ActionRateReceived, o.ID, nil))
	return nil
}

// counterpartyOf returns the other side of o relative to pubkey.
func counterpartyOf(o *database.Order, pubkey string) (string, error) {
	switch {
	case pubkey == o.MakerPubkey:
		if o.TakerPubkey == nil {
			return "", fmt.Errorf("order %s: has no taker to rate", o.ID)
		}
		return *o.TakerPubkey, nil
	case o.TakerPubkey != nil && pubkey == *o.TakerPubkey:
		return o.MakerPubkey, nil
	default:
		return "", fmt.Errorf("order %s: %s is not a party to this order", o.ID, pubkey)
	}
}

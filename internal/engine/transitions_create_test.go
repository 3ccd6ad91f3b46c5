//go:build integration

package engine

import (
	"context"
	"testing"
	"time"

	"mostrod/internal/database"

	"github.com/stretchr/testify/require"
)

func TestEngine_NewOrder_CreatesFixedPendingOrder(t *testing.T) {
	s := newTestSetup(t)
	ctx := context.Background()
	maker := newTestPubkey(t)

	o, err := s.engine.NewOrder(ctx, maker, NewOrderParams{
		Kind:             database.KindSell,
		FiatCode:         "USD",
		FiatAmount:       5000,
		Premium:          0,
		PaymentMethod:    "bank transfer",
		AmountSats:       100000,
		MakerTradeIndex:  1,
		ExpirationWindow: 24 * time.Hour,
	})
	require.NoError(t, err)
	require.Equal(t, database.StatusPending, o.Status)
	require.False(t, o.IsRange())

	got, err := s.orders.GetByID(ctx, o.ID)
	require.NoError(t, err)
	require.Equal(t, maker, got.MakerPubkey)
}

func TestEngine_NewOrder_RangeOrderRejectsInvertedBounds(t *testing.T) {
	s := newTestSetup(t)
	ctx := context.Background()
	maker := newTestPubkey(t)

	min, max := int64(10000), int64(1000)
	_, err := s.engine.NewOrder(ctx, maker, NewOrderParams{
		Kind:             database.KindSell,
		FiatCode:         "USD",
		MinFiatAmount:    &min,
		MaxFiatAmount:    &max,
		PaymentMethod:    "bank transfer",
		MakerTradeIndex:  1,
		ExpirationWindow: 24 * time.Hour,
	})
	require.Error(t, err)
	require.IsType(t, &ErrInvalidRange{}, err)
}

func TestEngine_NewOrder_RangeOrderAcceptsValidBounds(t *testing.T) {
	s := newTestSetup(t)
	ctx := context.Background()
	maker := newTestPubkey(t)

	min, max := int64(1000), int64(10000)
	o, err := s.engine.NewOrder(ctx, maker, NewOrderParams{
		Kind:             database.KindSell,
		FiatCode:         "USD",
		MinFiatAmount:    &min,
		MaxFiatAmount:    &max,
		PaymentMethod:    "bank transfer",
		MakerTradeIndex:  1,
		ExpirationWindow: 24 * time.Hour,
	})
	require.NoError(t, err)
	require.True(t, o.IsRange())
}

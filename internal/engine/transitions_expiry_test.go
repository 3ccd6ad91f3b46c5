//go:build integration

package engine

import (
	"context"
	"errors"
	"testing"
	"time"

	"mostrod/internal/database"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
)

var errSimulatedPayoutFailure = errors.New("simulated payout failure")

func TestEngine_ExpireOrder_LonePendingExpires(t *testing.T) {
	s := newTestSetup(t)
	ctx := context.Background()

	maker := newTestPubkey(t)
	o := newFixedSellOrder(t, maker)
	o.ExpiresAt = time.Now().Add(-time.Minute)
	require.NoError(t, s.orders.Create(ctx, o))

	require.NoError(t, s.engine.ExpireOrder(ctx, o.ID))

	got, err := s.orders.GetByID(ctx, o.ID)
	require.NoError(t, err)
	require.Equal(t, database.StatusExpired, got.Status)
}

func TestEngine_ExpireOrder_WaitingPaymentRevertsToPending(t *testing.T) {
	s := newTestSetup(t)
	ctx := context.Background()

	maker := newTestPubkey(t)
	taker := newTestPubkey(t)
	o := newFixedSellOrder(t, maker)
	require.NoError(t, s.orders.Create(ctx, o))

	got, err := s.engine.TakeBuy(ctx, o.ID, taker, 1, o.FiatAmount, decimal.NewFromInt(50000), "req-take")
	require.NoError(t, err)
	require.Equal(t, database.StatusWaitingPayment, got.Status)
	preimageHash := *got.MakerInvoicePreimageHash

	require.NoError(t, s.engine.ExpireOrder(ctx, o.ID))

	final, err := s.orders.GetByID(ctx, o.ID)
	require.NoError(t, err)
	require.Equal(t, database.StatusPending, final.Status)
	require.Nil(t, final.TakerPubkey)
	require.Nil(t, final.MakerInvoicePreimageHash)
	require.Equal(t, 1, final.WaitingRetries)
	require.True(t, s.ln.canceledHashes[preimageHash], "the stale hold invoice must be canceled, not left dangling")
}

func TestEngine_ExpireOrder_RejectsActiveOrder(t *testing.T) {
	s := newTestSetup(t)
	ctx := context.Background()

	maker := newTestPubkey(t)
	o := newFixedSellOrder(t, maker)
	o.Status = database.StatusActive
	require.NoError(t, s.orders.Create(ctx, o))

	err := s.engine.ExpireOrder(ctx, o.ID)
	require.Error(t, err, "an order already active has no order-expired transition in the table")
}

func TestEngine_RetryPayout_SucceedsAndClearsRetry(t *testing.T) {
	s := newTestSetup(t)
	ctx := context.Background()

	maker := newTestPubkey(t)
	taker := newTestPubkey(t)
	o := newFixedSellOrder(t, maker)
	require.NoError(t, s.orders.Create(ctx, o))

	got, err := s.engine.TakeBuy(ctx, o.ID, taker, 1, o.FiatAmount, decimal.NewFromInt(50000), "req-take")
	require.NoError(t, err)
	require.NoError(t, s.engine.HoldInvoiceAccepted(ctx, *got.MakerInvoicePreimageHash))
	_, err = s.engine.FiatSent(ctx, o.ID, taker, "req-fiat-sent")
	require.NoError(t, err)
	require.NoError(t, s.orders.SetBuyerPaymentRequest(ctx, o.ID, "lnbc-buyer-payout"))

	got, err = s.engine.Release(ctx, o.ID, maker, "req-release")
	require.NoError(t, err)

	s.ln.payErr = errSimulatedPayoutFailure
	require.Error(t, s.engine.HoldInvoiceSettled(ctx, *got.MakerInvoicePreimageHash))

	mid, err := s.orders.GetByID(ctx, o.ID)
	require.NoError(t, err)
	require.Equal(t, database.StatusInProgress, mid.Status)
	require.Equal(t, 1, mid.FailedPaymentAttempts)
	require.NotNil(t, mid.NextPaymentRetryAt)

	s.ln.payErr = nil
	require.NoError(t, s.engine.RetryPayout(ctx, o.ID))

	final, err := s.orders.GetByID(ctx, o.ID)
	require.NoError(t, err)
	require.Equal(t, database.StatusSuccess, final.Status)
	require.Nil(t, final.NextPaymentRetryAt)
}

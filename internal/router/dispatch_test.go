//go:build integration

package router

import (
	"context"
	"errors"
	"testing"

	"mostrod/internal/crypto"
	"mostrod/internal/database"
	"mostrod/internal/dispute"
	"mostrod/internal/engine"
	"mostrod/internal/nostr"
	"mostrod/internal/protocol"
	"mostrod/pkg/logger"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
)

func init() {
	_ = logger.Init("development")
}

var errNoRate = errors.New("no rate cached")

type stubRates struct {
	rates map[string]decimal.Decimal
}

func (s *stubRates) Get(fiatCode string) (decimal.Decimal, error) {
	rate, ok := s.rates[fiatCode]
	if !ok {
		return decimal.Zero, errNoRate
	}
	return rate, nil
}

type testRig struct {
	db     *database.DB
	orders *database.OrderRepository
	users  *database.UserRepository
	dsp    *Dispatcher
}

func newTestRig(t *testing.T) *testRig {
	t.Helper()
	db := database.SetupTestDB(t)
	t.Cleanup(func() { database.CleanupTestDB(t, db); db.Close() })

	identity, err := nostr.GenerateKeyPair()
	require.NoError(t, err)

	orders := database.NewOrderRepository(db)
	users := database.NewUserRepository(db)
	disputes := database.NewDisputeRepository(db)
	ratings := database.NewRatingRepository(db)
	pool := nostr.NewPool(nil)

	eng := engine.NewEngine(engine.Config{
		Orders:   orders,
		Users:    users,
		Disputes: disputes,
		Ratings:  ratings,
		LN:       newNoopLightningClient(),
		Relays:   pool,
		Identity: identity,
		Network:  "regtest",
		Instance: "mostro-test",
	})

	evidenceKey, err := crypto.GenerateKey()
	require.NoError(t, err)
	disputeMgr := dispute.NewManager(disputes, pool, identity, "mostro-test", evidenceKey)

	rates := &stubRates{rates: map[string]decimal.Decimal{"USD": decimal.NewFromInt(50000)}}
	return &testRig{db: db, orders: orders, users: users, dsp: New(eng, orders, users, disputes, disputeMgr, rates)}
}

func newTestPubkey(t *testing.T) string {
	t.Helper()
	kp, err := nostr.GenerateKeyPair()
	require.NoError(t, err)
	return kp.PublicKeyHex()
}

func TestDispatch_NewOrder_CreatesPendingOrder(t *testing.T) {
	r := newTestRig(t)
	ctx := context.Background()
	maker := newTestPubkey(t)

	content, err := protocol.EncodeContent(protocol.OrderContent{
		Kind:          "sell",
		FiatCode:      "USD",
		FiatAmount:    5000,
		PaymentMethod: "bank transfer",
		AmountSats:    100000,
	})
	require.NoError(t, err)

	reply, err := r.dsp.Dispatch(ctx, maker, &protocol.Message{
		Version: protocol.ProtocolVersion,
		Action:  protocol.ActionNewOrder,
		Content: content,
	})
	require.NoError(t, err)
	require.Nil(t, reply)

	orders, err := r.orders.ListOrderBook(ctx, "")
	require.NoError(t, err)
	require.Len(t, orders, 1)
	require.Equal(t, maker, orders[0].MakerPubkey)
}

func TestDispatch_ReleaseOnUnknownOrder_RepliesCantDo(t *testing.T) {
	r := newTestRig(t)
	ctx := context.Background()
	sender := newTestPubkey(t)

	orderID := "nonexistent-order"
	reply, err := r.dsp.Dispatch(ctx, sender, &protocol.Message{
		Version: protocol.ProtocolVersion,
		Action:  protocol.ActionRelease,
		ID:      &orderID,
		Content: []byte("null"),
	})
	require.NoError(t, err)
	require.NotNil(t, reply)
	require.Equal(t, protocol.ActionCantDo, reply.Action)

	var content protocol.CantDoContent
	require.NoError(t, protocol.DecodeInto(reply.Content, &content))
}

func TestDispatch_AdminAddSolver_RejectsNonAdmin(t *testing.T) {
	r := newTestRig(t)
	ctx := context.Background()
	sender := newTestPubkey(t)
	target := newTestPubkey(t)
	_, err := r.users.GetOrCreate(ctx, sender)
	require.NoError(t, err)

	content, err := protocol.EncodeContent(protocol.PeerContent{Pubkey: target})
	require.NoError(t, err)

	reply, err := r.dsp.Dispatch(ctx, sender, &protocol.Message{
		Version: protocol.ProtocolVersion,
		Action:  protocol.ActionAdminAddSolver,
		Content: content,
	})
	require.NoError(t, err)
	require.Equal(t, protocol.ActionCantDo, reply.Action)

	u, err := r.users.GetByPubkey(ctx, target)
	require.Error(t, err, "target must not have been granted solver")
	require.Nil(t, u)
}

func TestDispatch_AdminAddSolver_AllowsAdmin(t *testing.T) {
	r := newTestRig(t)
	ctx := context.Background()
	admin := newTestPubkey(t)
	target := newTestPubkey(t)
	_, err := r.users.GetOrCreate(ctx, admin)
	require.NoError(t, err)
	_, err = r.users.GetOrCreate(ctx, target)
	require.NoError(t, err)
	require.NoError(t, r.users.SetAdmin(ctx, admin, true))

	content, err := protocol.EncodeContent(protocol.PeerContent{Pubkey: target})
	require.NoError(t, err)

	reply, err := r.dsp.Dispatch(ctx, admin, &protocol.Message{
		Version: protocol.ProtocolVersion,
		Action:  protocol.ActionAdminAddSolver,
		Content: content,
	})
	require.NoError(t, err)
	require.Nil(t, reply)

	got, err := r.users.GetByPubkey(ctx, target)
	require.NoError(t, err)
	require.True(t, got.IsSolver)
}

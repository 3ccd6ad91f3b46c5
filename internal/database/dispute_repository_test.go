//go:build integration

package database

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestDispute(orderID, initiator string) *Dispute {
	return &Dispute{
		ID:              uuid.New().String(),
		OrderID:         orderID,
		InitiatorPubkey: initiator,
		Status:          DisputeInitiated,
		CreatedAt:       time.Now().UTC(),
	}
}

func seedDisputeOrder(t *testing.T, orders *OrderRepository, users *UserRepository, maker string) *Order {
	t.Helper()
	ctx := context.Background()
	_, err := users.GetOrCreate(ctx, maker)
	require.NoError(t, err)
	o := newTestOrder(maker)
	require.NoError(t, orders.Create(ctx, o))
	return o
}

func TestDisputeRepository_CreateAndGet(t *testing.T) {
	db := SetupTestDB(t)
	defer db.Close()
	defer CleanupTestDB(t, db)

	orders := NewOrderRepository(db)
	users := NewUserRepository(db)
	disputes := NewDisputeRepository(db)
	ctx := context.Background()

	o := seedDisputeOrder(t, orders, users, "npub1disputemaker")
	d := newTestDispute(o.ID, "npub1disputemaker")
	require.NoError(t, disputes.Create(ctx, d))

	got, err := disputes.GetByOrderID(ctx, o.ID)
	require.NoError(t, err)
	assert.Equal(t, d.ID, got.ID)
	assert.Equal(t, DisputeInitiated, got.Status)
	assert.Nil(t, got.EncryptedEvidence)
}

func TestDisputeRepository_GetByID_NotFound(t *testing.T) {
	db := SetupTestDB(t)
	defer db.Close()
	defer CleanupTestDB(t, db)

	disputes := NewDisputeRepository(db)
	_, err := disputes.GetByID(context.Background(), uuid.New().String())
	assert.ErrorIs(t, err, ErrDisputeNotFound)
}

func TestDisputeRepository_SetEncryptedEvidence(t *testing.T) {
	db := SetupTestDB(t)
	defer db.Close()
	defer CleanupTestDB(t, db)

	orders := NewOrderRepository(db)
	users := NewUserRepository(db)
	disputes := NewDisputeRepository(db)
	ctx := context.Background()

	o := seedDisputeOrder(t, orders, users, "npub1evidence")
	d := newTestDispute(o.ID, "npub1evidence")
	require.NoError(t, disputes.Create(ctx, d))

	require.NoError(t, disputes.SetEncryptedEvidence(ctx, d.ID, "ciphertext-one"))

	got, err := disputes.GetByID(ctx, d.ID)
	require.NoError(t, err)
	require.NotNil(t, got.EncryptedEvidence)
	assert.Equal(t, "ciphertext-one", *got.EncryptedEvidence)

	// A later submission overwrites the earlier one rather than appending.
	require.NoError(t, disputes.SetEncryptedEvidence(ctx, d.ID, "ciphertext-two"))
	got, err = disputes.GetByID(ctx, d.ID)
	require.NoError(t, err)
	assert.Equal(t, "ciphertext-two", *got.EncryptedEvidence)
}

func TestDisputeRepository_SetEncryptedEvidence_UnknownID(t *testing.T) {
	db := SetupTestDB(t)
	defer db.Close()
	defer CleanupTestDB(t, db)

	disputes := NewDisputeRepository(db)
	err := disputes.SetEncryptedEvidence(context.Background(), uuid.New().String(), "ciphertext")
	assert.ErrorIs(t, err, ErrDisputeNotFound)
}

func TestDisputeRepository_ListUnassigned(t *testing.T) {
	db := SetupTestDB(t)
	defer db.Close()
	defer CleanupTestDB(t, db)

	orders := NewOrderRepository(db)
	users := NewUserRepository(db)
	disputes := NewDisputeRepository(db)
	ctx := context.Background()

	o := seedDisputeOrder(t, orders, users, "npub1unassigned")
	d := newTestDispute(o.ID, "npub1unassigned")
	require.NoError(t, disputes.Create(ctx, d))

	list, err := disputes.ListUnassigned(ctx)
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.Equal(t, d.ID, list[0].ID)
	assert.Nil(t, list[0].SolverPubkey)
}

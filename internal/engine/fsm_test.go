package engine

import (
	"testing"

	"mostrod/internal/database"
	"mostrod/internal/protocol"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestValidate_SellHappyPath(t *testing.T) {
	steps := []struct {
		from   database.OrderStatus
		action protocol.Action
		role   Role
		to     database.OrderStatus
	}{
		{database.StatusPending, protocol.ActionTakeBuy, RoleTaker, database.StatusWaitingPayment},
		{database.StatusWaitingPayment, protocol.ActionHoldInvoicePaymentAccepted, RoleSystem, database.StatusActive},
		{database.StatusActive, protocol.ActionFiatSent, RoleTaker, database.StatusFiatSent},
		{database.StatusFiatSent, protocol.ActionRelease, RoleMaker, database.StatusSettledHoldInvoice},
		{database.StatusSettledHoldInvoice, protocol.ActionHoldInvoicePaymentSettled, RoleSystem, database.StatusInProgress},
		{database.StatusInProgress, actionPayoutPaid, RoleSystem, database.StatusPaidHoldInvoice},
		{database.StatusPaidHoldInvoice, protocol.ActionPurchaseCompleted, RoleSystem, database.StatusSuccess},
	}
	for _, s := range steps {
		got, err := Validate(s.from, s.action, s.role)
		require.NoError(t, err, "%s/%s/%s", s.from, s.action, s.role)
		assert.Equal(t, s.to, got)
	}
}

func TestValidate_BuyHappyPath(t *testing.T) {
	steps := []struct {
		from   database.OrderStatus
		action protocol.Action
		role   Role
		to     database.OrderStatus
	}{
		{database.StatusPending, protocol.ActionTakeSell, RoleTaker, database.StatusWaitingBuyerInvoice},
		{database.StatusWaitingBuyerInvoice, protocol.ActionAddInvoice, RoleMaker, database.StatusWaitingBuyerInvoice},
		{database.StatusWaitingBuyerInvoice, protocol.ActionHoldInvoicePaymentAccepted, RoleSystem, database.StatusActive},
	}
	for _, s := range steps {
		got, err := Validate(s.from, s.action, s.role)
		require.NoError(t, err, "%s/%s/%s", s.from, s.action, s.role)
		assert.Equal(t, s.to, got)
	}
}

func TestValidate_UnknownPairRejected(t *testing.T) {
	_, err := Validate(database.StatusSuccess, protocol.ActionTakeBuy, RoleTaker)
	require.Error(t, err)
	var invalid *ErrInvalidTransition
	assert.ErrorAs(t, err, &invalid)
}

func TestValidate_WrongRoleRejected(t *testing.T) {
	_, err := Validate(database.StatusFiatSent, protocol.ActionRelease, RoleSystem)
	require.Error(t, err)
	var wrongRole *ErrWrongRole
	assert.ErrorAs(t, err, &wrongRole)
}

func TestValidate_RolePartyAcceptsMakerOrTaker(t *testing.T) {
	for _, role := range []Role{RoleMaker, RoleTaker} {
		_, err := Validate(database.StatusActive, protocol.ActionFiatSent, role)
		assert.NoError(t, err, "role %s should satisfy RoleParty", role)
	}
	_, err := Validate(database.StatusActive, protocol.ActionFiatSent, RoleAdmin)
	assert.Error(t, err)
}

func TestValidate_RoleAdminAcceptsSolver(t *testing.T) {
	_, err := Validate(database.StatusDispute, protocol.ActionAdminSettle, RoleSolver)
	assert.NoError(t, err)
	_, err = Validate(database.StatusDispute, protocol.ActionAdminSettle, RoleAdmin)
	assert.NoError(t, err)
	_, err = Validate(database.StatusDispute, protocol.ActionAdminSettle, RoleMaker)
	assert.Error(t, err)
}

func TestValidate_DisputeResolution(t *testing.T) {
	to, err := Validate(database.StatusDispute, protocol.ActionAdminSettle, RoleAdmin)
	require.NoError(t, err)
	assert.Equal(t, database.StatusSettledByAdmin, to)

	to, err = Validate(database.StatusDispute, protocol.ActionAdminCancel, RoleAdmin)
	require.NoError(t, err)
	assert.Equal(t, database.StatusSellerRefunded, to)

	to, err = Validate(database.StatusSettledByAdmin, actionPayoutPaid, RoleSystem)
	require.NoError(t, err)
	assert.Equal(t, database.StatusPaidHoldInvoice, to)
}

func TestValidate_CooperativeCancel(t *testing.T) {
	to, err := Validate(database.StatusPending, protocol.ActionCancel, RoleMaker)
	require.NoError(t, err)
	assert.Equal(t, database.StatusCanceled, to)

	for _, from := range []database.OrderStatus{
		database.StatusWaitingPayment,
		database.StatusWaitingBuyerInvoice,
		database.StatusActive,
		database.StatusFiatSent,
	} {
		to, err := Validate(from, protocol.ActionCancel, RoleTaker)
		require.NoError(t, err, "from %s", from)
		assert.Equal(t, database.StatusCooperativelyCanceled, to)
	}
}

func TestValidate_ExpiryTimeouts(t *testing.T) {
	to, err := Validate(database.StatusPending, actionOrderExpired, RoleSystem)
	require.NoError(t, err)
	assert.Equal(t, database.StatusExpired, to)

	to, err = Validate(database.StatusWaitingPayment, actionOrderExpired, RoleSystem)
	require.NoError(t, err)
	assert.Equal(t, database.StatusPending, to)
}

func TestErrInvalidTransition_Error(t *testing.T) {
	err := &ErrInvalidTransition{Status: database.StatusSuccess, Action: protocol.ActionRelease}
	assert.Contains(t, err.Error(), string(database.StatusSuccess))
	assert.Contains(t, err.Error(), string(protocol.ActionRelease))
}

func TestErrWrongRole_Error(t *testing.T) {
	err := &ErrWrongRole{Required: RoleAdmin, Got: RoleMaker}
	assert.Contains(t, err.Error(), "admin")
	assert.Contains(t, err.Error(), "maker")
}

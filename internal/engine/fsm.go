package engine

import (
	"fmt"

	"mostrod/internal/database"
	"mostrod/internal/protocol"
)

// Role is who must have signed the inbound message for a transition to be
// authorized. LN notifications and timers carry no user signature and use
// RoleSystem.
type Role string

const (
	RoleMaker  Role = "maker"
	RoleTaker  Role = "taker"
	RoleParty  Role = "party" // either maker or taker
	RoleSolver Role = "solver"
	RoleAdmin  Role = "admin"
	RoleSystem Role = "system" // LN notification or scheduler timer
)

// A handful of inputs drive transitions but never cross the wire as a peer
// message, so they have no entry in protocol's action alphabet: a timer
// firing, or the payout LN payment landing. They reuse protocol.Action's
// underlying string type purely so the transition table below can key on
// one type regardless of an input's origin.
const (
	actionOrderExpired  protocol.Action = "order-expired"   // scheduler: pending/payment-wait order past its expiration tag
	actionPayoutPaid    protocol.Action = "payout-paid"      // LN: the buyer's payout invoice was paid
)

// transitionKey identifies one entry in the transition table: the order's
// current status and the action attempting to move it.
type transitionKey struct {
	From   database.OrderStatus
	Action protocol.Action
}

// transitionRule describes one allowed transition: who may trigger it and
// what status it produces. A couple of flows (the cooperative-cancel
// handshake, range-order amount freezing) compute part of their effect in
// code rather than purely from this table; those actions are still listed
// here for the authorization and "is this valid at all" checks, with To
// giving the destination status the handler actually applies.
type transitionRule struct {
	Role Role
	To   database.OrderStatus
}

// transitionTable is the fixed (state, action) -> (role, next state) table
// driving both validation and dispatch: the dispatcher is a match over
// (state, action, role) producing an effect list. Any (state, action) pair
// absent from this table is invalid for that status and produces
// cant-do{invalid-action-for-status}.
var transitionTable = map[transitionKey]transitionRule{
	// sell order happy path: maker sells, taker buys and pays fiat. Exact
	// seller/buyer identity (not just maker/taker) is checked by the
	// transitions_sell.go handler, which knows Order.SellerPubkey.
	{database.StatusPending, protocol.ActionTakeBuy}:                            {RoleTaker, database.StatusWaitingPayment},
	{database.StatusWaitingPayment, protocol.ActionHoldInvoicePaymentAccepted}:   {RoleSystem, database.StatusActive},
	{database.StatusActive, protocol.ActionFiatSent}:                            {RoleParty, database.StatusFiatSent},
	{database.StatusFiatSent, protocol.ActionRelease}:                           {RoleParty, database.StatusSettledHoldInvoice},

	// buy order: symmetric flow where the taker is the seller and supplies
	// the hold invoice; the maker is the buyer and supplies the payout
	// invoice. Same post-release convergence as the sell flow below.
	{database.StatusPending, protocol.ActionTakeSell}:                           {RoleTaker, database.StatusWaitingBuyerInvoice},
	{database.StatusWaitingBuyerInvoice, protocol.ActionAddInvoice}:             {RoleParty, database.StatusWaitingBuyerInvoice},
	{database.StatusWaitingBuyerInvoice, protocol.ActionHoldInvoicePaymentAccepted}: {RoleSystem, database.StatusActive},

	// post-release payout, identical for both kinds: the seller's
	// collateral is released, then Mostro pays the buyer's payout invoice
	// out of band and the order settles once that payment confirms.
	{database.StatusSettledHoldInvoice, protocol.ActionHoldInvoicePaymentSettled}: {RoleSystem, database.StatusInProgress},
	{database.StatusInProgress, actionPayoutPaid}:                                {RoleSystem, database.StatusPaidHoldInvoice},
	{database.StatusPaidHoldInvoice, protocol.ActionPurchaseCompleted}:           {RoleSystem, database.StatusSuccess},

	// cooperative cancel: either party proposes, the table records the
	// resulting status once both sides (or a lone pending order) agree.
	// The handler in transitions_cancel.go holds a half-agreed order in
	// its current status until the peer also cancels.
	{database.StatusPending, protocol.ActionCancel}:             {RoleParty, database.StatusCanceled},
	{database.StatusWaitingPayment, protocol.ActionCancel}:      {RoleParty, database.StatusCooperativelyCanceled},
	{database.StatusWaitingBuyerInvoice, protocol.ActionCancel}: {RoleParty, database.StatusCooperativelyCanceled},
	{database.StatusActive, protocol.ActionCancel}:               {RoleParty, database.StatusCooperativelyCanceled},
	{database.StatusFiatSent, protocol.ActionCancel}:             {RoleParty, database.StatusCooperativelyCanceled},

	// dispute: only once fiat has or may have changed hands.
	{database.StatusActive, protocol.ActionDispute}:   {RoleParty, database.StatusDispute},
	{database.StatusFiatSent, protocol.ActionDispute}: {RoleParty, database.StatusDispute},

	// admin/solver resolution of an open dispute. Settling in the buyer's
	// favor joins the same payout convergence used by the happy path.
	{database.StatusDispute, protocol.ActionAdminSettle}: {RoleAdmin, database.StatusSettledByAdmin},
	{database.StatusDispute, protocol.ActionAdminCancel}: {RoleAdmin, database.StatusSellerRefunded},
	{database.StatusSettledByAdmin, actionPayoutPaid}:    {RoleSystem, database.StatusPaidHoldInvoice},

	// admin override outside of a formal dispute (operator intervention).
	{database.StatusActive, protocol.ActionAdminCancel}:              {RoleAdmin, database.StatusCanceledByAdmin},
	{database.StatusWaitingPayment, protocol.ActionAdminCancel}:      {RoleAdmin, database.StatusCanceledByAdmin},
	{database.StatusWaitingBuyerInvoice, protocol.ActionAdminCancel}: {RoleAdmin, database.StatusCanceledByAdmin},
	{database.StatusFiatSent, protocol.ActionAdminSettle}:            {RoleAdmin, database.StatusCompletedByAdmin},

	// timeouts, driven by the scheduler's expiry sweep.
	{database.StatusPending, actionOrderExpired}:             {RoleSystem, database.StatusExpired},
	{database.StatusWaitingPayment, actionOrderExpired}:      {RoleSystem, database.StatusPending},
	{database.StatusWaitingBuyerInvoice, actionOrderExpired}: {RoleSystem, database.StatusPending},
}

// ErrInvalidTransition is returned when (status, action) has no entry in
// the transition table, surfaced to the caller as
// cant-do{invalid-action-for-status}.
type ErrInvalidTransition struct {
	Status database.OrderStatus
	Action protocol.Action
}

func (e *ErrInvalidTransition) Error() string {
	return fmt.Sprintf("action %q is not valid for order status %q", e.Action, e.Status)
}

// ErrWrongRole is returned when the table entry exists but the caller's
// role does not match. The router has no dedicated case for it, so it is
// surfaced as cant-do{not-allowed-by-status}.
type ErrWrongRole struct {
	Required Role
	Got      Role
}

func (e *ErrWrongRole) Error() string {
	return fmt.Sprintf("action requires role %q, caller has role %q", e.Required, e.Got)
}

// lookupTransition finds the table entry for (status, action), or
// ErrInvalidTransition if none exists.
func lookupTransition(status database.OrderStatus, action protocol.Action) (transitionRule, error) {
	rule, ok := transitionTable[transitionKey{From: status, Action: action}]
	if !ok {
		return transitionRule{}, &ErrInvalidTransition{Status: status, Action: action}
	}
	return rule, nil
}

// authorize checks that callerRole satisfies the rule's required role.
// RoleParty matches either maker or taker; a RoleAdmin rule also accepts
// RoleSolver, since a solver assigned to a dispute acts with admin-like
// authority over that one order.
func authorize(rule transitionRule, callerRole Role) error {
	switch rule.Role {
	case RoleParty:
		if callerRole != RoleMaker && callerRole != RoleTaker {
			return &ErrWrongRole{Required: rule.Role, Got: callerRole}
		}
	case RoleAdmin:
		if callerRole != RoleAdmin && callerRole != RoleSolver {
			return &ErrWrongRole{Required: rule.Role, Got: callerRole}
		}
	default:
		if callerRole != rule.Role {
			return &ErrWrongRole{Required: rule.Role, Got: callerRole}
		}
	}
	return nil
}

// Validate checks whether action is legal for an order currently in
// status, performed by callerRole, and returns the resulting status. It
// does not mutate anything; callers use it both to guard real transitions
// and in tests that enumerate the table.
func Validate(status database.OrderStatus, action protocol.Action, callerRole Role) (database.OrderStatus, error) {
	rule, err := lookupTransition(status, action)
	if err != nil {
		return "", err
	}
	if err := authorize(rule, callerRole); err != nil {
		return "", err
	}
	return rule.To, nil
}

// Package protocol implements the wire-level event codec: the closed
// action alphabet, the envelope/content shapes exchanged between peers, and
// encode/decode between that shape and the bytes carried inside a Nostr
// rumor event.
package protocol

// Action is the closed alphabet of protocol actions. The dispatcher
// matches on (order status, Action, role); Valid reports false for any
// value outside this set, and any unrecognized wire tag decodes to an error.
type Action string

const (
	ActionNewOrder      Action = "new-order"
	ActionTakeSell      Action = "take-sell"
	ActionTakeBuy       Action = "take-buy"
	ActionAddInvoice    Action = "add-invoice"
	ActionPayInvoice    Action = "pay-invoice"
	ActionFiatSent      Action = "fiat-sent"
	ActionFiatSentOk    Action = "fiat-sent-ok"
	ActionRelease       Action = "release"
	ActionReleased      Action = "released"

	ActionHoldInvoicePaymentAccepted Action = "hold-invoice-payment-accepted"
	ActionHoldInvoicePaymentSettled  Action = "hold-invoice-payment-settled"
	ActionPurchaseCompleted          Action = "purchase-completed"

	ActionCancel   Action = "cancel"
	ActionCanceled Action = "canceled"

	ActionCooperativeCancelInitiatedByPeer Action = "cooperative-cancel-initiated-by-peer"
	ActionCooperativeCancelInitiatedByYou  Action = "cooperative-cancel-initiated-by-you"
	ActionCooperativeCancelAccepted        Action = "cooperative-cancel-accepted"

	ActionDispute                Action = "dispute"
	ActionDisputeInitiatedByPeer Action = "dispute-initiated-by-peer"
	ActionDisputeInitiatedByYou  Action = "dispute-initiated-by-you"
	ActionDisputeEvidence        Action = "dispute-evidence"

	ActionAdminCancel      Action = "admin-cancel"
	ActionAdminSettle      Action = "admin-settle"
	ActionAdminAddSolver   Action = "admin-add-solver"
	ActionAdminTakeDispute Action = "admin-take-dispute"

	ActionRate         Action = "rate"
	ActionRateReceived Action = "rate-received"

	ActionCantDo Action = "cant-do"
)

// knownActions backs Action.Valid; kept as a set literal rather than derived
// from iota so the wire tag strings above are the single source of truth.
var knownActions = map[Action]bool{
	ActionNewOrder: true, ActionTakeSell: true, ActionTakeBuy: true,
	ActionAddInvoice: true, ActionPayInvoice: true,
	ActionFiatSent: true, ActionFiatSentOk: true,
	ActionRelease: true, ActionReleased: true,
	ActionHoldInvoicePaymentAccepted: true, ActionHoldInvoicePaymentSettled: true,
	ActionPurchaseCompleted: true,
	ActionCancel:            true, ActionCanceled: true,
	ActionCooperativeCancelInitiatedByPeer: true,
	ActionCooperativeCancelInitiatedByYou:  true,
	ActionCooperativeCancelAccepted:        true,
	ActionDispute:                          true,
	ActionDisputeInitiatedByPeer:           true,
	ActionDisputeInitiatedByYou:            true,
	ActionDisputeEvidence:                  true,
	ActionAdminCancel:                      true,
	ActionAdminSettle:                      true,
	ActionAdminAddSolver:                   true,
	ActionAdminTakeDispute:                 true,
	ActionRate:                             true,
	ActionRateReceived:                     true,
	ActionCantDo:                           true,
}

// Valid reports whether a is a recognized protocol action.
func (a Action) Valid() bool {
	return knownActions[a]
}

// CantDoReason is the closed alphabet of cant-do payload reasons.
type CantDoReason string

const (
	ReasonInvalidSignature       CantDoReason = "invalid-signature"
	ReasonInvalidTradeIndex      CantDoReason = "invalid-trade-index"
	ReasonInvalidAmount          CantDoReason = "invalid-amount"
	ReasonOutOfRangeSatsAmount   CantDoReason = "out-of-range-sats-amount"
	ReasonIsNotYourOrder         CantDoReason = "is-not-your-order"
	ReasonInvalidActionForStatus CantDoReason = "invalid-action-for-status"
	ReasonInvoiceCreationFailed  CantDoReason = "invoice-creation-failed"
	ReasonPaymentFailed          CantDoReason = "payment-failed"
	ReasonPeerNotFound           CantDoReason = "peer-not-found"
	ReasonNotAllowedByStatus     CantDoReason = "not-allowed-by-status"
	ReasonRateLimited            CantDoReason = "rate-limited"
)

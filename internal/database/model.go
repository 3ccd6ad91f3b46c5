package database

import "time"

// OrderKind identifies who initiates a trade order.
type OrderKind string

const (
	KindSell OrderKind = "sell"
	KindBuy  OrderKind = "buy"
)

// OrderStatus is one of the 17 order lifecycle states.
type OrderStatus string

const (
	StatusPending               OrderStatus = "pending"
	StatusWaitingPayment        OrderStatus = "waiting-payment"
	StatusWaitingBuyerInvoice   OrderStatus = "waiting-buyer-invoice"
	StatusActive                OrderStatus = "active"
	StatusFiatSent              OrderStatus = "fiat-sent"
	StatusSettledHoldInvoice    OrderStatus = "settled-hold-invoice"
	StatusCompletedByAdmin      OrderStatus = "completed-by-admin"
	StatusCanceled              OrderStatus = "canceled"
	StatusCanceledByAdmin       OrderStatus = "canceled-by-admin"
	StatusCooperativelyCanceled OrderStatus = "cooperatively-canceled"
	StatusDispute               OrderStatus = "dispute"
	StatusSellerRefunded        OrderStatus = "seller-refunded"
	StatusSuccess               OrderStatus = "success"
	StatusExpired               OrderStatus = "expired"
	StatusInProgress            OrderStatus = "in-progress"
	StatusPaidHoldInvoice       OrderStatus = "paid-hold-invoice"
	StatusSettledByAdmin        OrderStatus = "settled-by-admin"
)

// terminalOrderStatuses are states after which an order is retained
// read-only for rating and history.
var terminalOrderStatuses = map[OrderStatus]bool{
	StatusSuccess:               true,
	StatusCanceled:              true,
	StatusCanceledByAdmin:       true,
	StatusCooperativelyCanceled: true,
	StatusSellerRefunded:        true,
	StatusExpired:               true,
	StatusSettledByAdmin:        true,
	StatusCompletedByAdmin:      true,
}

// IsTerminal reports whether no further mutation of the order is allowed.
func (s OrderStatus) IsTerminal() bool {
	return terminalOrderStatuses[s]
}

// DisputeStatus tracks a dispute's resolution progress.
type DisputeStatus string

const (
	DisputeInitiated      DisputeStatus = "initiated"
	DisputeInProgress     DisputeStatus = "in-progress"
	DisputeSellerRefunded DisputeStatus = "seller-refunded"
	DisputeSettled        DisputeStatus = "settled"
	DisputeReleased       DisputeStatus = "released"
)

// Order is the central entity coordinated by the order state machine.
type Order struct {
	ID                       string      `json:"id" db:"id"`
	Kind                     OrderKind   `json:"kind" db:"kind"`
	Status                   OrderStatus `json:"status" db:"status"`
	AmountSats               int64       `json:"amount_sats" db:"amount_sats"` // 0 until frozen for range orders
	FiatCode                 string      `json:"fiat_code" db:"fiat_code"`
	FiatAmount               int64       `json:"fiat_amount" db:"fiat_amount"` // fixed amount in minor units; 0 if range
	MinFiatAmount            *int64      `json:"min_fiat_amount,omitempty" db:"min_fiat_amount"`
	MaxFiatAmount            *int64      `json:"max_fiat_amount,omitempty" db:"max_fiat_amount"`
	Premium                  int         `json:"premium" db:"premium"` // signed percent
	PaymentMethod            string      `json:"payment_method" db:"payment_method"`
	MakerPubkey              string      `json:"maker_pubkey" db:"maker_pubkey"`
	TakerPubkey              *string     `json:"taker_pubkey,omitempty" db:"taker_pubkey"`
	MakerHoldInvoice         *string     `json:"maker_hold_invoice,omitempty" db:"maker_hold_invoice"`
	MakerInvoicePreimageHash *string     `json:"maker_invoice_preimage_hash,omitempty" db:"maker_invoice_preimage_hash"`
	MakerInvoicePreimage     *string     `json:"-" db:"maker_invoice_preimage"` // never serialized to peers or the order-book event
	BuyerPaymentRequest      *string     `json:"buyer_payment_request,omitempty" db:"buyer_payment_request"`
	DisputeID                *string     `json:"dispute_id,omitempty" db:"dispute_id"`
	MakerTradeIndex          int64       `json:"maker_trade_index" db:"maker_trade_index"`
	TakerTradeIndex          *int64      `json:"taker_trade_index,omitempty" db:"taker_trade_index"`
	FailedPaymentAttempts    int         `json:"failed_payment_attempts" db:"failed_payment_attempts"`
	NextPaymentRetryAt       *time.Time  `json:"next_payment_retry_at,omitempty" db:"next_payment_retry_at"`
	WaitingRetries           int         `json:"waiting_retries" db:"waiting_retries"` // invoice-timeout reverts to pending
	CreatedAt                time.Time   `json:"created_at" db:"created_at"`
	ExpiresAt                time.Time   `json:"expires_at" db:"expires_at"`
	TakenAt                  *time.Time  `json:"taken_at,omitempty" db:"taken_at"`
}

// IsRange reports whether the order's fiat amount was posted as [min,max]
// rather than fixed, meaning AmountSats is frozen only once a taker commits
// a concrete fiat amount within range.
func (o *Order) IsRange() bool {
	return o.MinFiatAmount != nil && o.MaxFiatAmount != nil
}

// SellerPubkey returns the pubkey holding the hold invoice obligation:
// the maker for a sell order, the taker for a buy order.
func (o *Order) SellerPubkey() (string, bool) {
	switch o.Kind {
	case KindSell:
		return o.MakerPubkey, true
	case KindBuy:
		if o.TakerPubkey == nil {
			return "", false
		}
		return *o.TakerPubkey, true
	default:
		return "", false
	}
}

// BuyerPubkey returns the pubkey owed the buyer_payment_request payout:
// the taker for a sell order, the maker for a buy order.
func (o *Order) BuyerPubkey() (string, bool) {
	switch o.Kind {
	case KindBuy:
		return o.MakerPubkey, true
	case KindSell:
		if o.TakerPubkey == nil {
			return "", false
		}
		return *o.TakerPubkey, true
	default:
		return "", false
	}
}

// User is created lazily on first appearance (maker, taker, or counterparty
// in any protocol message).
type User struct {
	Pubkey          string    `json:"pubkey" db:"pubkey"`
	TradeIndex      int64     `json:"trade_index" db:"trade_index"`
	TradingVolume   int64     `json:"trading_volume_sats" db:"trading_volume_sats"`
	RatingCount     int       `json:"rating_count" db:"rating_count"`
	RatingSum       int       `json:"rating_sum" db:"rating_sum"`
	IsAdmin         bool      `json:"is_admin" db:"is_admin"`
	IsSolver        bool      `json:"is_solver" db:"is_solver"`
	IsBanned        bool      `json:"is_banned" db:"is_banned"`
	CreatedAt       time.Time `json:"created_at" db:"created_at"`
}

// RatingAverage returns the user's average rating, or 0 if unrated.
func (u *User) RatingAverage() float64 {
	if u.RatingCount == 0 {
		return 0
	}
	return float64(u.RatingSum) / float64(u.RatingCount)
}

// Dispute tracks an order moved into the arbitration workflow.
type Dispute struct {
	ID              string        `json:"id" db:"id"`
	OrderID         string        `json:"order_id" db:"order_id"`
	InitiatorPubkey string        `json:"initiator_pubkey" db:"initiator_pubkey"`
	SolverPubkey    *string       `json:"solver_pubkey,omitempty" db:"solver_pubkey"`
	Status          DisputeStatus `json:"status" db:"status"`
	CreatedAt       time.Time     `json:"created_at" db:"created_at"`
	UpdatedAt       time.Time     `json:"updated_at" db:"updated_at"`
	// EncryptedEvidence is base64(nonce||ciphertext) from crypto.Encrypt,
	// set once a party submits evidence for a solver to review. Never
	// populated for a dispute that never receives evidence.
	EncryptedEvidence *string `json:"-" db:"encrypted_evidence"`
}

// Rating is attached to an order after success or seller-refunded, one per
// role, and is never modified once written.
type Rating struct {
	ID          string    `json:"id" db:"id"`
	OrderID     string    `json:"order_id" db:"order_id"`
	RaterPubkey string    `json:"rater_pubkey" db:"rater_pubkey"`
	RateePubkey string    `json:"ratee_pubkey" db:"ratee_pubkey"`
	Value       int       `json:"value" db:"value"` // 1..5
	CreatedAt   time.Time `json:"created_at" db:"created_at"`
}

// OrphanPayment records an LN payment that settled after its order's retry
// budget was exhausted and the order was already force-canceled. Surfaced
// to operators via the admin CLI rather than silently discarded or
// auto-reconciled.
type OrphanPayment struct {
	ID            string    `json:"id" db:"id"`
	OrderID       string    `json:"order_id" db:"order_id"`
	Bolt11        string    `json:"bolt11" db:"bolt11"`
	PaymentHash   string    `json:"payment_hash" db:"payment_hash"`
	PreimageHex   string    `json:"preimage_hex" db:"preimage_hex"`
	AmountSats    int64     `json:"amount_sats" db:"amount_sats"`
	DiscoveredAt  time.Time `json:"discovered_at" db:"discovered_at"`
	Note          string    `json:"note" db:"note"`
}

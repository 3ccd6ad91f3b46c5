package protocol

import "encoding/json"

// ProtocolVersion is the only version this daemon accepts; on a mismatch
// Decode returns ErrVersionMismatch together with the parsed Message, and
// the daemon answers the sender with a cant-do reply.
const ProtocolVersion = 1

// Envelope is the outermost JSON document carried inside a Nostr rumor
// event's content field: {"order": {...}}.
type Envelope struct {
	Order Message `json:"order"`
}

// Message is the (version, order_id?, request_id?, action, content) tuple
// exchanged between peers. Content is kept as raw JSON at this layer;
// DecodeInto resolves it to a concrete type once Action is known.
type Message struct {
	Version    int             `json:"version"`
	ID         *string         `json:"id"`
	RequestID  *string         `json:"request_id,omitempty"`
	Pubkey     *string         `json:"pubkey"`
	Action     Action          `json:"action"`
	Content    json.RawMessage `json:"content"`
	TradeIndex *int64          `json:"trade_index,omitempty"`
}

// PaymentRequestContent carries a bolt11 invoice, used by add-invoice and
// pay-invoice.
type PaymentRequestContent struct {
	Invoice string `json:"invoice"`
	Amount  *int64 `json:"amount,omitempty"`
}

// OrderContent is the full order body posted with new-order and echoed back
// on take-sell/take-buy.
type OrderContent struct {
	Kind          string `json:"kind"`
	Status        string `json:"status,omitempty"`
	AmountSats    int64  `json:"amount,omitempty"`
	FiatCode      string `json:"fiat_code"`
	FiatAmount    int64  `json:"fiat_amount,omitempty"`
	MinFiatAmount *int64 `json:"min_amount,omitempty"`
	MaxFiatAmount *int64 `json:"max_amount,omitempty"`
	Premium       int    `json:"premium"`
	PaymentMethod string `json:"payment_method"`
	CreatedAt     int64  `json:"created_at,omitempty"`
}

// TextMessageContent is free-form peer chat relayed unmodified.
type TextMessageContent struct {
	Text string `json:"text"`
}

// PeerContent identifies a counterparty, used to introduce a taker's pubkey
// to a maker or vice versa.
type PeerContent struct {
	Pubkey string `json:"pubkey"`
}

// RatingUserContent carries a 1-5 star rating submitted with the rate action.
type RatingUserContent struct {
	Value int `json:"value"`
}

// DisputeContent references a dispute by id.
type DisputeContent struct {
	ID string `json:"id"`
}

// AmountContent carries a bare sats quantity, used by range-order takers to
// commit a concrete amount within [min,max].
type AmountContent struct {
	Sats int64 `json:"sats"`
}

// CantDoContent carries the reason tag for a rejected action.
type CantDoContent struct {
	Reason CantDoReason `json:"reason"`
}

// DisputeEvidenceContent carries free-text evidence a party submits while
// their order's dispute is open. Stored encrypted at rest; only a solver
// or admin resolving the dispute ever sees the plaintext.
type DisputeEvidenceContent struct {
	Text string `json:"text"`
}

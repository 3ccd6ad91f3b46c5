// Package queue defines the wire message mostrod publishes onto and reads
// back from the Redis stream that buffers Lightning invoice lifecycle
// events between the LN gateway's gRPC subscription and the order engine.
package queue

import (
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
)

// InvoiceEventsStream and InvoiceEventsGroup name the Redis stream and
// consumer group the LN gateway publishes InvoiceEventMessage values onto
// and the engine's invoice-event consumer reads them back from.
const (
	InvoiceEventsStream = "mostrod:invoice-events"
	InvoiceEventsGroup  = "mostrod-engine"
)

// InvoiceEventMessage is published once per hold-invoice lifecycle update
// (accepted, settled, canceled) the LN gateway observes, and consumed by
// the engine to drive the corresponding order transition. Buffering this
// through a durable stream rather than calling the engine straight from
// the gRPC callback means an update is never lost if mostrod restarts
// between the notification arriving and the order transition committing.
type InvoiceEventMessage struct {
	PaymentHashHex string `json:"payment_hash_hex"`
	State          string `json:"state"`
	AmountPaidSats int64  `json:"amount_paid_sats"`
	SettledAt      int64  `json:"settled_at,omitempty"`
}

// ToJSON serializes the InvoiceEventMessage to JSON bytes.
func (m *InvoiceEventMessage) ToJSON() ([]byte, error) {
	data, err := json.Marshal(m)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal invoice event message: %w", err)
	}
	return data, nil
}

// FromJSONInvoiceEvent deserializes JSON bytes into an InvoiceEventMessage
// and validates it.
func FromJSONInvoiceEvent(data []byte) (*InvoiceEventMessage, error) {
	msg := &InvoiceEventMessage{}
	if err := json.Unmarshal(data, msg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal invoice event message: %w", err)
	}

	if err := msg.Validate(); err != nil {
		return nil, err
	}

	return msg, nil
}

// Validate checks if the InvoiceEventMessage has all required fields with
// valid values.
func (m *InvoiceEventMessage) Validate() error {
	if m.PaymentHashHex == "" {
		return errors.New("payment_hash_hex is required")
	}
	if len(m.PaymentHashHex) != 64 {
		return fmt.Errorf("payment_hash_hex must be 64 characters (got %d)", len(m.PaymentHashHex))
	}
	if _, err := hex.DecodeString(m.PaymentHashHex); err != nil {
		return fmt.Errorf("payment_hash_hex must be valid hexadecimal: %w", err)
	}
	switch m.State {
	case "accepted", "settled", "canceled":
	default:
		return fmt.Errorf("state must be one of accepted, settled, canceled (got %q)", m.State)
	}
	if m.AmountPaidSats < 0 {
		return errors.New("amount_paid_sats must not be negative")
	}
	return nil
}

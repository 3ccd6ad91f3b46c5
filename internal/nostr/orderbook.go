package nostr

import (
	"fmt"
	"strconv"

	"mostrod/internal/database"
)

// BuildOrderEvent renders an order as a kind-38383 parameterized
// replaceable event: the "d" tag is the order id, so each republish with
// a fresh created_at supersedes the relay's prior copy instead of
// appending a new one.
func BuildOrderEvent(o *database.Order, network, instanceName string, createdAt int64) *Event {
	fiatAmount := strconv.FormatInt(o.FiatAmount, 10)
	if o.IsRange() {
		fiatAmount = fmt.Sprintf("%d-%d", *o.MinFiatAmount, *o.MaxFiatAmount)
	}

	tags := [][]string{
		{"d", o.ID},
		{"k", string(o.Kind)},
		{"f", o.FiatCode},
		{"s", string(o.Status)},
		{"amt", strconv.FormatInt(o.AmountSats, 10)},
		{"fa", fiatAmount},
		{"pm", o.PaymentMethod},
		{"premium", strconv.Itoa(o.Premium)},
		{"network", network},
		{"layer", "lightning"},
		{"expiration", strconv.FormatInt(o.ExpiresAt.Unix(), 10)},
		{"y", instanceName},
		{"z", "order"},
	}

	return &Event{
		Kind:      KindOrderListing,
		CreatedAt: createdAt,
		Tags:      tags,
		Content:   "",
	}
}

// BuildDisputeEvent renders a dispute as a kind-38383 event tagged
// z=dispute instead of z=order, used to announce an open dispute without
// exposing the underlying order's private negotiation state.
func BuildDisputeEvent(d *database.Dispute, instanceName string, createdAt int64) *Event {
	tags := [][]string{
		{"d", d.ID},
		{"s", string(d.Status)},
		{"y", instanceName},
		{"z", "dispute"},
	}
	return &Event{
		Kind:      KindOrderListing,
		CreatedAt: createdAt,
		Tags:      tags,
		Content:   "",
	}
}

// IsPubliclyRepublishable reports whether a status change should trigger a
// fresh order-book event. Dispute and other non-public internal states are
// excluded from public order-book republication.
func IsPubliclyRepublishable(status database.OrderStatus) bool {
	switch status {
	case database.StatusDispute, database.StatusInProgress:
		return false
	default:
		return true
	}
}

package engine

import (
	"context"
	"fmt"
	"time"

	"mostrod/pkg/cache"
)

// requestIDTTL bounds how long a client's request_id is remembered. A
// client retrying a new-order or take-order call after a dropped response
// should still be deduplicated well past any realistic relay-round-trip
// retry window.
const requestIDTTL = 24 * time.Hour

// notificationTTL bounds how long an LN gateway notification's dedup key
// is remembered. LND redelivers invoice-subscription updates on
// reconnect, so this only needs to outlive one reconnect/backoff cycle.
const notificationTTL = 1 * time.Hour

// Idempotency dedups inbound requests and LN notifications against Redis,
// so a client retry or an LND redelivery cannot double-apply a state
// transition.
type Idempotency struct{}

// NewIdempotency returns an Idempotency backed by the shared cache.Client
// (initialized at startup via cache.Init), following the package-level
// client pattern the rest of pkg/cache uses.
func NewIdempotency() *Idempotency {
	return &Idempotency{}
}

// SeenRequest reports whether requestID has already been processed for
// orderID, recording it as seen if not. A true result means the caller
// should skip the transition and reuse whatever response it already sent.
func (i *Idempotency) SeenRequest(ctx context.Context, orderID, requestID string) (bool, error) {
	if requestID == "" {
		return false, nil
	}
	key := requestKey(orderID, requestID)
	fresh, err := cache.SetNX(ctx, key, "1", requestIDTTL)
	if err != nil {
		return false, fmt.Errorf("idempotency: check request %s: %w", requestID, err)
	}
	return !fresh, nil
}

// SeenNotification reports whether an LN notification identified by kind
// and paymentHashHex (e.g. "accepted:<hash>", "settled:<hash>") has
// already been processed, recording it as seen if not.
func (i *Idempotency) SeenNotification(ctx context.Context, kind, paymentHashHex string) (bool, error) {
	key := notificationKey(kind, paymentHashHex)
	fresh, err := cache.SetNX(ctx, key, "1", notificationTTL)
	if err != nil {
		return false, fmt.Errorf("idempotency: check notification %s/%s: %w", kind, paymentHashHex, err)
	}
	return !fresh, nil
}

func requestKey(orderID, requestID string) string {
	return "idem:req:" + orderID + ":" + requestID
}

func notificationKey(kind, paymentHashHex string) string {
	return "idem:ln:" + kind + ":" + paymentHashHex
}

package engine

import (
	"crypto/rand"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"time"

	"mostrod/internal/lnd"
	"mostrod/internal/protocol"
)

// invoiceExpiryWindow bounds how long a generated hold invoice stays
// payable before the taker must retry.
const invoiceExpiryWindow = 15 * time.Minute

// maxRoutingFeeSats caps the routing fee Mostro will pay out of its own
// margin when forwarding the buyer's payout.
const maxRoutingFeeSats = 500

// firstPayoutRetryDelay is how long the scheduler's retry queue waits
// before its first attempt to re-pay a failed payout; each later retry
// waits twice as long as the one before.
const firstPayoutRetryDelay = 30 * time.Second

// newPreimageAndHash generates a random 32-byte preimage for a new hold
// invoice and returns both it and its sha256 hash, hex-encoded.
func newPreimageAndHash() (hashHex, preimageHex string, err error) {
	var preimage [32]byte
	if _, err := rand.Read(preimage[:]); err != nil {
		return "", "", fmt.Errorf("generate preimage: %w", err)
	}
	hash := sha256.Sum256(preimage[:])
	return hex.EncodeToString(hash[:]), hex.EncodeToString(preimage[:]), nil
}

// holdInvoiceRequestFor builds the LN gateway request for the hold
// invoice that escrows orderID's seller-side collateral.
func holdInvoiceRequestFor(orderID string, amountSats int64, paymentHashHex string) lnd.HoldInvoiceRequest {
	return lnd.HoldInvoiceRequest{
		PaymentHashHex: paymentHashHex,
		AmountSats:     amountSats,
		Memo:           fmt.Sprintf("mostro order %s", orderID),
		ExpirySeconds:  int64(invoiceExpiryWindow.Seconds()),
	}
}

// mustMessage builds a protocol.Message and panics on encode failure,
// used for protocol content variants that cannot fail to marshal.
func mustMessage(action protocol.Action, orderID string, content any) *protocol.Message {
	msg, err := protocol.NewMessage(action, &orderID, nil, content)
	if err != nil {
		panic(fmt.Sprintf("engine: building %s message: %v", action, err))
	}
	return msg
}

package lnd

import (
	"context"
	"encoding/hex"
	"fmt"
	"io"
	"time"

	"github.com/lightningnetwork/lnd/lnrpc/invoicesrpc"
	"go.uber.org/zap"

	"mostrod/pkg/logger"
)

const (
	invoiceSubMaxBackoff = 30 * time.Second
	invoiceStateBuffer   = 16
)

// SubscribeInvoice streams lifecycle updates for a single hold invoice.
// The returned channel is closed once the invoice reaches a terminal state
// (settled or canceled) or ctx is cancelled; a broken gRPC stream is
// transparently retried with exponential backoff, mirroring the relay
// pool's reconnect loop.
func (c *Client) SubscribeInvoice(ctx context.Context, paymentHashHex string) (<-chan *InvoiceState, error) {
	hashBytes, err := hex.DecodeString(paymentHashHex)
	if err != nil {
		return nil, fmt.Errorf("invalid payment hash: %w", err)
	}

	out := make(chan *InvoiceState, invoiceStateBuffer)
	go c.runInvoiceSubscription(ctx, paymentHashHex, hashBytes, out)
	return out, nil
}

func (c *Client) runInvoiceSubscription(ctx context.Context, paymentHashHex string, hashBytes []byte, out chan<- *InvoiceState) {
	defer close(out)

	backoff := time.Second
	for {
		terminal, err := c.streamInvoiceOnce(ctx, hashBytes, out)
		if terminal || ctx.Err() != nil {
			return
		}

		logger.Warn("invoice subscription broken, retrying",
			zap.String("payment_hash", paymentHashHex), zap.Error(err), zap.Duration("backoff", backoff))

		select {
		case <-ctx.Done():
			return
		case <-time.After(backoff):
		}

		backoff *= 2
		if backoff > invoiceSubMaxBackoff {
			backoff = invoiceSubMaxBackoff
		}
	}
}

// streamInvoiceOnce reads a single SubscribeSingleInvoice stream until it
// breaks or the invoice reaches a terminal state. The bool return reports
// whether a terminal state was reached (no further retry needed).
func (c *Client) streamInvoiceOnce(ctx context.Context, hashBytes []byte, out chan<- *InvoiceState) (bool, error) {
	stream, err := c.invoicesClient.SubscribeSingleInvoice(ctx, &invoicesrpc.SubscribeSingleInvoiceRequest{RHash: hashBytes})
	if err != nil {
		return false, fmt.Errorf("subscribe single invoice: %w", err)
	}

	for {
		inv, err := stream.Recv()
		if err == io.EOF {
			return false, io.EOF
		}
		if err != nil {
			return false, err
		}

		state := &InvoiceState{
			PaymentHashHex: hex.EncodeToString(hashBytes),
			State:          fromLNDInvoiceState(inv.State),
			AmountPaidSats: inv.AmtPaidSat,
			SettledAt:      inv.SettleDate,
		}

		select {
		case out <- state:
		case <-ctx.Done():
			return false, ctx.Err()
		}

		if state.State == InvoiceSettled || state.State == InvoiceCanceled {
			return true, nil
		}
	}
}

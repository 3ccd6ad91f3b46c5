package lnd

import (
	"context"
	"encoding/hex"
	"errors"
	"fmt"
	"time"

	"github.com/lightningnetwork/lnd/lnrpc"
	"github.com/lightningnetwork/lnd/lnrpc/invoicesrpc"
	"github.com/lightningnetwork/lnd/lnrpc/routerrpc"
)

// AddHoldInvoice creates a hold invoice locked to req.PaymentHashHex. The
// invoice stays in state "accepted" once paid until a later SettleInvoice
// or CancelInvoice call resolves it.
func (c *Client) AddHoldInvoice(ctx context.Context, req HoldInvoiceRequest) (*HoldInvoiceResult, error) {
	hashBytes, err := hex.DecodeString(req.PaymentHashHex)
	if err != nil {
		return nil, fmt.Errorf("invalid payment hash: %w", err)
	}
	if len(hashBytes) != 32 {
		return nil, fmt.Errorf("payment hash must be 32 bytes, got %d", len(hashBytes))
	}

	cltvDelta := c.cfg.HoldInvoiceCLTVDelta
	if cltvDelta == 0 {
		cltvDelta = 144
	}

	resp, err := c.invoicesClient.AddHoldInvoice(ctx, &invoicesrpc.AddHoldInvoiceRequest{
		Memo:       req.Memo,
		Hash:       hashBytes,
		Value:      req.AmountSats,
		Expiry:     req.ExpirySeconds,
		CltvExpiry: uint64(cltvDelta),
	})
	if err != nil {
		return nil, fmt.Errorf("add hold invoice: %w", err)
	}

	return &HoldInvoiceResult{
		PaymentRequest: resp.PaymentRequest,
		PaymentHashHex: req.PaymentHashHex,
		AddIndex:       resp.AddIndex,
	}, nil
}

// SettleInvoice reveals preimageHex to LND, releasing the held funds.
func (c *Client) SettleInvoice(ctx context.Context, preimageHex string) error {
	preimage, err := hex.DecodeString(preimageHex)
	if err != nil {
		return fmt.Errorf("invalid preimage: %w", err)
	}
	_, err = c.invoicesClient.SettleInvoice(ctx, &invoicesrpc.SettleInvoiceMsg{Preimage: preimage})
	if err != nil {
		return fmt.Errorf("settle invoice: %w", err)
	}
	return nil
}

// CancelInvoice releases a hold invoice's funds back to the payer without
// ever disclosing the preimage.
func (c *Client) CancelInvoice(ctx context.Context, paymentHashHex string) error {
	hashBytes, err := hex.DecodeString(paymentHashHex)
	if err != nil {
		return fmt.Errorf("invalid payment hash: %w", err)
	}
	_, err = c.invoicesClient.CancelInvoice(ctx, &invoicesrpc.CancelInvoiceMsg{PaymentHash: hashBytes})
	if err != nil {
		return fmt.Errorf("cancel invoice: %w", err)
	}
	return nil
}

// LookupInvoice returns the current lifecycle state of an invoice.
func (c *Client) LookupInvoice(ctx context.Context, paymentHashHex string) (*InvoiceState, error) {
	hashBytes, err := hex.DecodeString(paymentHashHex)
	if err != nil {
		return nil, fmt.Errorf("invalid payment hash: %w", err)
	}

	resp, err := c.lnClient.LookupInvoice(ctx, &lnrpc.PaymentHash{RHash: hashBytes})
	if err != nil {
		return nil, fmt.Errorf("lookup invoice: %w", err)
	}

	return &InvoiceState{
		PaymentHashHex: paymentHashHex,
		State:          fromLNDInvoiceState(resp.State),
		AmountPaidSats: resp.AmtPaidSat,
		SettledAt:      resp.SettleDate,
	}, nil
}

// PayInvoice pays a BOLT11 invoice using the Router sub-server's SendPaymentV2
// streaming RPC. It validates the invoice first, then sends the payment and
// waits for a terminal state (SUCCEEDED or FAILED).
func (c *Client) PayInvoice(ctx context.Context, bolt11 string, maxFeeSats int64) (*PaymentResult, error) {
	invoice, err := c.DecodeInvoice(ctx, bolt11)
	if err != nil {
		return nil, fmt.Errorf("failed to decode invoice: %w", err)
	}

	if invoice.IsExpired {
		return nil, errors.New("invoice is expired")
	}

	if invoice.AmountSats == 0 {
		return nil, errors.New("zero-amount invoices are not supported")
	}

	req := &routerrpc.SendPaymentRequest{
		PaymentRequest: bolt11,
		TimeoutSeconds: int32(c.cfg.PaymentTimeoutSeconds),
		FeeLimitSat:    maxFeeSats,
	}

	payCtx, cancel := context.WithTimeout(ctx, time.Duration(c.cfg.PaymentTimeoutSeconds)*time.Second)
	defer cancel()

	stream, err := c.routerClient.SendPaymentV2(payCtx, req)
	if err != nil {
		return nil, fmt.Errorf("failed to initiate payment: %w", err)
	}

	for {
		payment, err := stream.Recv()
		if err != nil {
			return nil, fmt.Errorf("payment stream error: %w", err)
		}

		switch payment.Status {
		case lnrpc.Payment_SUCCEEDED:
			return &PaymentResult{
				PaymentHash:     payment.PaymentHash,
				PaymentPreimage: payment.PaymentPreimage,
				FeeSats:         payment.FeeSat,
				Status:          Succeeded,
			}, nil

		case lnrpc.Payment_FAILED:
			return &PaymentResult{
				PaymentHash: payment.PaymentHash,
				Status:      Failed,
			}, fmt.Errorf("payment failed: %s", payment.FailureReason)

		case lnrpc.Payment_IN_FLIGHT, lnrpc.Payment_INITIATED:
			continue

		default:
			return nil, fmt.Errorf("unexpected payment status: %s", payment.Status)
		}
	}
}

// DecodeInvoice decodes a BOLT11 invoice string without paying it.
func (c *Client) DecodeInvoice(ctx context.Context, bolt11 string) (*Invoice, error) {
	resp, err := c.lnClient.DecodePayReq(ctx, &lnrpc.PayReqString{PayReq: bolt11})
	if err != nil {
		return nil, fmt.Errorf("failed to decode invoice: %w", err)
	}

	expiryTime := time.Unix(resp.Timestamp+resp.Expiry, 0)
	isExpired := time.Now().After(expiryTime)

	return &Invoice{
		Destination: resp.Destination,
		AmountSats:  resp.NumSatoshis,
		PaymentHash: resp.PaymentHash,
		Expiry:      resp.Expiry,
		Description: resp.Description,
		IsExpired:   isExpired,
	}, nil
}

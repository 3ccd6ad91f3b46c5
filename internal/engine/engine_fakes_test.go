//go:build integration

package engine

import (
	"context"

	"mostrod/internal/lnd"
)

// fakeLightningClient is a minimal, configurable lnd.LightningClient for
// exercising the state machine without a real LND node.
type fakeLightningClient struct {
	holdInvoiceCounter int
	payResult          *lnd.PaymentResult
	payErr             error
	settledHashes      map[string]string // preimageHex -> paymentHashHex
	canceledHashes     map[string]bool
	decodeErr          error
}

func newFakeLightningClient() *fakeLightningClient {
	return &fakeLightningClient{
		payResult:      &lnd.PaymentResult{Status: lnd.Succeeded},
		settledHashes:  make(map[string]string),
		canceledHashes: make(map[string]bool),
	}
}

func (f *fakeLightningClient) AddHoldInvoice(ctx context.Context, req lnd.HoldInvoiceRequest) (*lnd.HoldInvoiceResult, error) {
	f.holdInvoiceCounter++
	return &lnd.HoldInvoiceResult{
		PaymentRequest: "lnbc-fake-invoice",
		PaymentHashHex: req.PaymentHashHex,
	}, nil
}

func (f *fakeLightningClient) SettleInvoice(ctx context.Context, preimageHex string) error {
	f.settledHashes[preimageHex] = preimageHex
	return nil
}

func (f *fakeLightningClient) CancelInvoice(ctx context.Context, paymentHashHex string) error {
	f.canceledHashes[paymentHashHex] = true
	return nil
}

func (f *fakeLightningClient) LookupInvoice(ctx context.Context, paymentHashHex string) (*lnd.InvoiceState, error) {
	return &lnd.InvoiceState{PaymentHashHex: paymentHashHex, State: lnd.InvoiceOpen}, nil
}

func (f *fakeLightningClient) SubscribeInvoice(ctx context.Context, paymentHashHex string) (<-chan *lnd.InvoiceState, error) {
	ch := make(chan *lnd.InvoiceState)
	close(ch)
	return ch, nil
}

func (f *fakeLightningClient) PayInvoice(ctx context.Context, bolt11 string, maxFeeSats int64) (*lnd.PaymentResult, error) {
	if f.payErr != nil {
		return nil, f.payErr
	}
	return f.payResult, nil
}

func (f *fakeLightningClient) DecodeInvoice(ctx context.Context, bolt11 string) (*lnd.Invoice, error) {
	if f.decodeErr != nil {
		return nil, f.decodeErr
	}
	return &lnd.Invoice{Destination: "fake-dest", AmountSats: 1000, PaymentHash: "fake-hash"}, nil
}

func (f *fakeLightningClient) GetInfo(ctx context.Context) (*lnd.NodeInfo, error) {
	return &lnd.NodeInfo{Alias: "fake"}, nil
}

func (f *fakeLightningClient) Close() error { return nil }

var _ lnd.LightningClient = (*fakeLightningClient)(nil)

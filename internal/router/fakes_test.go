//go:build integration

package router

import (
	"context"

	"mostrod/internal/lnd"
)

// noopLightningClient satisfies lnd.LightningClient with harmless stub
// behavior, enough for dispatch tests that never carry an order deep
// enough to touch hold invoices (new-order, admin-add-solver, and so on).
type noopLightningClient struct{}

func newNoopLightningClient() *noopLightningClient { return &noopLightningClient{} }

func (n *noopLightningClient) AddHoldInvoice(ctx context.Context, req lnd.HoldInvoiceRequest) (*lnd.HoldInvoiceResult, error) {
	return &lnd.HoldInvoiceResult{PaymentRequest: "lnbc-fake-invoice", PaymentHashHex: req.PaymentHashHex}, nil
}

func (n *noopLightningClient) SettleInvoice(ctx context.Context, preimageHex string) error {
	return nil
}

func (n *noopLightningClient) CancelInvoice(ctx context.Context, paymentHashHex string) error {
	return nil
}

func (n *noopLightningClient) LookupInvoice(ctx context.Context, paymentHashHex string) (*lnd.InvoiceState, error) {
	return &lnd.InvoiceState{PaymentHashHex: paymentHashHex, State: lnd.InvoiceOpen}, nil
}

func (n *noopLightningClient) SubscribeInvoice(ctx context.Context, paymentHashHex string) (<-chan *lnd.InvoiceState, error) {
	ch := make(chan *lnd.InvoiceState)
	close(ch)
	return ch, nil
}

func (n *noopLightningClient) PayInvoice(ctx context.Context, bolt11 string, maxFeeSats int64) (*lnd.PaymentResult, error) {
	return &lnd.PaymentResult{Status: lnd.Succeeded}, nil
}

func (n *noopLightningClient) DecodeInvoice(ctx context.Context, bolt11 string) (*lnd.Invoice, error) {
	return &lnd.Invoice{Destination: "fake-dest", AmountSats: 1000, PaymentHash: "fake-hash"}, nil
}

func (n *noopLightningClient) GetInfo(ctx context.Context) (*lnd.NodeInfo, error) {
	return &lnd.NodeInfo{Alias: "fake"}, nil
}

func (n *noopLightningClient) Close() error { return nil }

var _ lnd.LightningClient = (*noopLightningClient)(nil)

package lnd

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"mostrod/internal/database"
)

// fakeLightningClient is a minimal LightningClient for the reconcile
// tests, which don't need a real gRPC connection.
type fakeLightningClient struct {
	invoiceStates map[string]*InvoiceState
}

func (f *fakeLightningClient) AddHoldInvoice(ctx context.Context, req HoldInvoiceRequest) (*HoldInvoiceResult, error) {
	return nil, nil
}
func (f *fakeLightningClient) SettleInvoice(ctx context.Context, preimageHex string) error {
	return nil
}
func (f *fakeLightningClient) CancelInvoice(ctx context.Context, paymentHashHex string) error {
	return nil
}
func (f *fakeLightningClient) LookupInvoice(ctx context.Context, paymentHashHex string) (*InvoiceState, error) {
	s, ok := f.invoiceStates[paymentHashHex]
	if !ok {
		return &InvoiceState{PaymentHashHex: paymentHashHex, State: InvoiceOpen}, nil
	}
	return s, nil
}
func (f *fakeLightningClient) SubscribeInvoice(ctx context.Context, paymentHashHex string) (<-chan *InvoiceState, error) {
	ch := make(chan *InvoiceState)
	close(ch)
	return ch, nil
}
func (f *fakeLightningClient) PayInvoice(ctx context.Context, bolt11 string, maxFeeSats int64) (*PaymentResult, error) {
	return nil, nil
}
func (f *fakeLightningClient) DecodeInvoice(ctx context.Context, bolt11 string) (*Invoice, error) {
	return nil, nil
}
func (f *fakeLightningClient) GetInfo(ctx context.Context) (*NodeInfo, error) { return nil, nil }
func (f *fakeLightningClient) Close() error                                  { return nil }

var _ LightningClient = (*fakeLightningClient)(nil)

func TestReconcile_FlagsSettledInvoiceStuckActive(t *testing.T) {
	ln := &fakeLightningClient{invoiceStates: map[string]*InvoiceState{
		"hash-1": {PaymentHashHex: "hash-1", State: InvoiceSettled},
	}}
	r := NewReconciler(ln)

	diffs, err := r.Reconcile(context.Background(), []OrderInvoiceView{
		{OrderID: "order-1", Status: database.StatusActive, MakerInvoicePreimageHash: "hash-1"},
	})
	require.NoError(t, err)
	require.Len(t, diffs, 1)
	assert.Equal(t, "order-1", diffs[0].OrderID)
	assert.Equal(t, InvoiceSettled, diffs[0].ActualState)
}

func TestReconcile_NoDivergenceWhenConsistent(t *testing.T) {
	ln := &fakeLightningClient{invoiceStates: map[string]*InvoiceState{
		"hash-2": {PaymentHashHex: "hash-2", State: InvoiceAccepted},
	}}
	r := NewReconciler(ln)

	diffs, err := r.Reconcile(context.Background(), []OrderInvoiceView{
		{OrderID: "order-2", Status: database.StatusActive, MakerInvoicePreimageHash: "hash-2"},
	})
	require.NoError(t, err)
	assert.Empty(t, diffs)
}

func TestReconcile_SkipsOrdersWithoutInvoice(t *testing.T) {
	ln := &fakeLightningClient{invoiceStates: map[string]*InvoiceState{}}
	r := NewReconciler(ln)

	diffs, err := r.Reconcile(context.Background(), []OrderInvoiceView{
		{OrderID: "order-3", Status: database.StatusPending},
	})
	require.NoError(t, err)
	assert.Empty(t, diffs)
}

func TestReconcile_FlagsCanceledInvoiceOnNonTerminalOrder(t *testing.T) {
	ln := &fakeLightningClient{invoiceStates: map[string]*InvoiceState{
		"hash-4": {PaymentHashHex: "hash-4", State: InvoiceCanceled},
	}}
	r := NewReconciler(ln)

	diffs, err := r.Reconcile(context.Background(), []OrderInvoiceView{
		{OrderID: "order-4", Status: database.StatusWaitingPayment, MakerInvoicePreimageHash: "hash-4"},
	})
	require.NoError(t, err)
	require.Len(t, diffs, 1)
	assert.Equal(t, InvoiceCanceled, diffs[0].ActualState)
}

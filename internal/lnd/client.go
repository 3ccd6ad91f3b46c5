// Package lnd provides a gRPC client wrapper for interacting with an LND
// node's Lightning and Invoices sub-servers.
//
// This package abstracts LND behind a narrow interface so the order engine
// depends on LightningClient, not on LND internals — useful for unit testing
// the state machine with a fake and for a future CLN migration.
//
// On-chain wallet operations (SendCoins, NewAddress, WalletBalance) are
// deliberately absent: escrow here is entirely Lightning hold invoices, and
// this daemon never touches an on-chain wallet.
package lnd

import (
	"context"
	"encoding/hex"
	"fmt"
	"os"

	"github.com/lightningnetwork/lnd/lnrpc"
	"github.com/lightningnetwork/lnd/lnrpc/invoicesrpc"
	"github.com/lightningnetwork/lnd/lnrpc/routerrpc"
	"go.uber.org/zap"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials"

	"mostrod/pkg/logger"
)

// Config holds LND connection settings, populated from the [lightning]
// section of config.toml.
type Config struct {
	GRPCHost              string
	GRPCPort              string
	TLSCertPath           string
	MacaroonPath          string
	Network               string
	PaymentTimeoutSeconds int
	MaxPaymentFeeSats     int64
	HoldInvoiceCLTVDelta  uint32 // blocks of CLTV expiry requested on hold invoices
}

// LightningClient is the surface the order engine and payment retry queue
// depend on. The concrete Client below implements it against a real LND
// node; tests substitute a fake.
type LightningClient interface {
	// AddHoldInvoice creates a hold invoice for the given payment hash: the
	// payer can pay it, but the funds stay locked until SettleInvoice reveals
	// the preimage or CancelInvoice releases them. The seller's escrow
	// invoice is created this way; the buyer's payout goes through
	// PayInvoice instead.
	AddHoldInvoice(ctx context.Context, req HoldInvoiceRequest) (*HoldInvoiceResult, error)

	// SettleInvoice reveals the preimage, releasing the held funds to the
	// daemon's balance and completing the payment from the payer's side.
	SettleInvoice(ctx context.Context, preimageHex string) error

	// CancelInvoice releases a hold invoice without ever learning the
	// preimage, returning the payer's funds.
	CancelInvoice(ctx context.Context, paymentHashHex string) error

	// LookupInvoice returns the current state of an invoice by payment hash.
	LookupInvoice(ctx context.Context, paymentHashHex string) (*InvoiceState, error)

	// SubscribeInvoice streams state updates for a single invoice until the
	// invoice is settled/canceled or ctx is done.
	SubscribeInvoice(ctx context.Context, paymentHashHex string) (<-chan *InvoiceState, error)

	// PayInvoice pays a BOLT11 invoice directly — used for the buyer payout
	// leg of every order, paying the invoice the buyer submitted.
	PayInvoice(ctx context.Context, bolt11 string, maxFeeSats int64) (*PaymentResult, error)

	// DecodeInvoice decodes a BOLT11 invoice string without paying it,
	// used to validate an invoice amount and expiry before accepting it.
	DecodeInvoice(ctx context.Context, bolt11 string) (*Invoice, error)

	// GetInfo returns node identity and sync status.
	GetInfo(ctx context.Context) (*NodeInfo, error)

	// Close closes the underlying gRPC connection.
	Close() error
}

// HoldInvoiceRequest describes a hold invoice to create.
type HoldInvoiceRequest struct {
	PaymentHashHex string // hex-encoded sha256(preimage), 32 bytes
	AmountSats     int64
	Memo           string
	ExpirySeconds  int64
}

// HoldInvoiceResult is returned by AddHoldInvoice.
type HoldInvoiceResult struct {
	PaymentRequest string // BOLT11 string to hand to the payer
	PaymentHashHex string
	AddIndex       uint64
}

// InvoiceState is a snapshot of a hold invoice's lifecycle, mirroring
// lnrpc.Invoice_InvoiceState but scoped to what the engine needs.
type InvoiceState struct {
	PaymentHashHex string
	State          InvoiceLifecycleState
	AmountPaidSats int64
	SettledAt      int64
}

// InvoiceLifecycleState is LND's four-state hold-invoice lifecycle.
type InvoiceLifecycleState int

const (
	InvoiceOpen InvoiceLifecycleState = iota
	InvoiceAccepted
	InvoiceSettled
	InvoiceCanceled
)

func (s InvoiceLifecycleState) String() string {
	switch s {
	case InvoiceOpen:
		return "open"
	case InvoiceAccepted:
		return "accepted"
	case InvoiceSettled:
		return "settled"
	case InvoiceCanceled:
		return "canceled"
	default:
		return "unknown"
	}
}

func fromLNDInvoiceState(s lnrpc.Invoice_InvoiceState) InvoiceLifecycleState {
	switch s {
	case lnrpc.Invoice_ACCEPTED:
		return InvoiceAccepted
	case lnrpc.Invoice_SETTLED:
		return InvoiceSettled
	case lnrpc.Invoice_CANCELED:
		return InvoiceCanceled
	default:
		return InvoiceOpen
	}
}

// PaymentResultStatus is the terminal (or in-flight) status of a PayInvoice call.
type PaymentResultStatus int

const (
	Succeeded PaymentResultStatus = iota
	Failed
	Inflight
)

type PaymentResult struct {
	PaymentHash     string
	PaymentPreimage string
	FeeSats         int64
	Status          PaymentResultStatus
}

type Invoice struct {
	Destination string
	AmountSats  int64
	PaymentHash string
	Expiry      int64
	Description string
	IsExpired   bool
}

type NodeInfo struct {
	Alias         string
	PubKey        string
	SyncedToChain bool
	SyncedToGraph bool
	BlockHeight   uint32
	NumChannels   uint32
}

// macaroonCredential implements grpc.PerRPCCredentials, attaching the
// hex-encoded macaroon as gRPC metadata on every RPC.
type macaroonCredential struct {
	macaroon string
}

func (m macaroonCredential) GetRequestMetadata(ctx context.Context, uri ...string) (map[string]string, error) {
	return map[string]string{"macaroon": m.macaroon}, nil
}

func (m macaroonCredential) RequireTransportSecurity() bool {
	return true
}

// Client is the concrete LightningClient backed by a real LND gRPC connection.
type Client struct {
	conn           *grpc.ClientConn
	lnClient       lnrpc.LightningClient
	routerClient   routerrpc.RouterClient
	invoicesClient invoicesrpc.InvoicesClient
	cfg            Config
}

func NewClient(cfg Config) (*Client, error) {
	creds, err := credentials.NewClientTLSFromFile(cfg.TLSCertPath, "")
	if err != nil {
		return nil, fmt.Errorf("could not load tls cert from %s: %w", cfg.TLSCertPath, err)
	}

	fileMacaroonData, err := os.ReadFile(cfg.MacaroonPath)
	if err != nil {
		return nil, fmt.Errorf("failed to read macaroon file %s: %w", cfg.MacaroonPath, err)
	}
	macaroonCreds := macaroonCredential{macaroon: hex.EncodeToString(fileMacaroonData)}

	url := cfg.GRPCHost + ":" + cfg.GRPCPort
	conn, err := grpc.NewClient(url, grpc.WithTransportCredentials(creds), grpc.WithPerRPCCredentials(macaroonCreds))
	if err != nil {
		return nil, fmt.Errorf("could not dial %s: %w", url, err)
	}

	lnClient := lnrpc.NewLightningClient(conn)

	info, err := lnClient.GetInfo(context.Background(), &lnrpc.GetInfoRequest{})
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("failed to connect to LND (is it running? wallet unlocked?): %w", err)
	}

	logger.Info("lnd connected",
		zap.String("alias", info.Alias),
		zap.String("pubkey", info.IdentityPubkey),
		zap.Uint32("height", info.BlockHeight),
		zap.Bool("synced_chain", info.SyncedToChain),
		zap.Bool("synced_graph", info.SyncedToGraph))

	if !info.SyncedToChain {
		logger.Warn("lnd is not synced to chain, payments may fail until sync completes")
	}

	return &Client{
		conn:           conn,
		lnClient:       lnClient,
		routerClient:   routerrpc.NewRouterClient(conn),
		invoicesClient: invoicesrpc.NewInvoicesClient(conn),
		cfg:            cfg,
	}, nil
}

// Close closes the underlying gRPC connection to LND.
func (c *Client) Close() error {
	return c.conn.Close()
}

// GetInfo returns basic LND node information.
func (c *Client) GetInfo(ctx context.Context) (*NodeInfo, error) {
	resp, err := c.lnClient.GetInfo(ctx, &lnrpc.GetInfoRequest{})
	if err != nil {
		return nil, fmt.Errorf("get info: %w", err)
	}
	return &NodeInfo{
		Alias:         resp.Alias,
		PubKey:        resp.IdentityPubkey,
		SyncedToChain: resp.SyncedToChain,
		SyncedToGraph: resp.SyncedToGraph,
		BlockHeight:   resp.BlockHeight,
		NumChannels:   resp.NumActiveChannels,
	}, nil
}

// Package router maps an inbound protocol.Message to the Engine method
// that handles its action, decoding the action's content variant and
// folding whatever the Engine returns (an order, an error, nothing) back
// into an outbound reply. It holds no trading logic itself: every
// decision the table governs lives in engine, and router only translates.
package router

import (
	"context"
	"errors"
	"fmt"

	"mostrod/internal/database"
	"mostrod/internal/dispute"
	"mostrod/internal/engine"
	"mostrod/internal/protocol"
	"mostrod/pkg/logger"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

// RateSource supplies the current BTC/fiat rate a range order needs to
// freeze a concrete sats amount at take time. Satisfied by
// scheduler.RateCache; kept as an interface here so router does not
// import scheduler for a single method.
type RateSource interface {
	Get(fiatCode string) (decimal.Decimal, error)
}

// Dispatcher routes decoded wire messages to Engine methods.
type Dispatcher struct {
	engine     *engine.Engine
	orders     *database.OrderRepository
	users      *database.UserRepository
	disputes   *database.DisputeRepository
	disputeMgr *dispute.Manager
	rates      RateSource
}

func New(eng *engine.Engine, orders *database.OrderRepository, users *database.UserRepository, disputes *database.DisputeRepository, disputeMgr *dispute.Manager, rates RateSource) *Dispatcher {
	return &Dispatcher{engine: eng, orders: orders, users: users, disputes: disputes, disputeMgr: disputeMgr, rates: rates}
}

// Dispatch handles one inbound message from senderPubkey and returns the
// reply to gift-wrap back to them, or nil if the action produces no direct
// reply (the Engine already notified both parties itself, e.g. take-buy).
// A rejected action is never returned as a Go error to the transport: it
// comes back as an ActionCantDo message instead, since the sender is owed
// a typed reason rather than a dropped connection.
func (d *Dispatcher) Dispatch(ctx context.Context, senderPubkey string, msg *protocol.Message) (*protocol.Message, error) {
	requestID := requestIDOf(msg)
	orderID := ""
	if msg.ID != nil {
		orderID = *msg.ID
	}

	var reply *protocol.Message
	var err error

	switch msg.Action {
	case protocol.ActionNewOrder:
		err = d.handleNewOrder(ctx, senderPubkey, msg)
	case protocol.ActionTakeSell:
		err = d.handleTakeSell(ctx, senderPubkey, orderID, requestID, msg)
	case protocol.ActionTakeBuy:
		err = d.handleTakeBuy(ctx, senderPubkey, orderID, requestID, msg)
	case protocol.ActionAddInvoice:
		reply, err = d.handleAddInvoice(ctx, senderPubkey, orderID, requestID, msg)
	case protocol.ActionFiatSent:
		_, err = d.engine.FiatSent(ctx, orderID, senderPubkey, requestID)
	case protocol.ActionRelease:
		_, err = d.engine.Release(ctx, orderID, senderPubkey, requestID)
	case protocol.ActionCancel:
		_, err = d.engine.Cancel(ctx, orderID, senderPubkey, requestID)
	case protocol.ActionDispute:
		err = d.handleDispute(ctx, orderID, senderPubkey, requestID)
	case protocol.ActionDisputeEvidence:
		err = d.handleDisputeEvidence(ctx, orderID, msg)
	case protocol.ActionAdminSettle:
		_, err = d.engine.AdminSettle(ctx, orderID, senderPubkey, requestID)
	case protocol.ActionAdminCancel:
		_, err = d.engine.AdminCancel(ctx, orderID, senderPubkey, requestID)
	case protocol.ActionAdminTakeDispute:
		err = d.handleAdminTakeDispute(ctx, senderPubkey, orderID)
	case protocol.ActionAdminAddSolver:
		err = d.handleAdminAddSolver(ctx, senderPubkey, msg)
	case protocol.ActionRate:
		err = d.handleRate(ctx, senderPubkey, orderID, msg)
	default:
		err = fmt.Errorf("action %q has no dispatch handler", msg.Action)
	}

	if err != nil {
		logger.Warn("dispatch rejected", zap.String("action", string(msg.Action)), zap.String("from", senderPubkey), zap.Error(err))
		return cantDoMessage(orderID, requestID, reasonFor(err))
	}
	return reply, nil
}

// handleNewOrder posts the order and returns no direct reply: Engine.NewOrder
// already acks the maker itself once the row is committed.
func (d *Dispatcher) handleNewOrder(ctx context.Context, senderPubkey string, msg *protocol.Message) error {
	var content protocol.OrderContent
	if err := protocol.DecodeInto(msg.Content, &content); err != nil {
		return err
	}

	tradeIndex := int64(0)
	if msg.TradeIndex != nil {
		tradeIndex = *msg.TradeIndex
	}

	_, err := d.engine.NewOrder(ctx, senderPubkey, engine.NewOrderParams{
		Kind:             database.OrderKind(content.Kind),
		FiatCode:         content.FiatCode,
		FiatAmount:       content.FiatAmount,
		MinFiatAmount:    content.MinFiatAmount,
		MaxFiatAmount:    content.MaxFiatAmount,
		Premium:          content.Premium,
		PaymentMethod:    content.PaymentMethod,
		AmountSats:       content.AmountSats,
		MakerTradeIndex:  tradeIndex,
		ExpirationWindow: defaultOrderExpiration,
	})
	return err
}

// handleTakeSell and handleTakeBuy return no direct reply: Engine.TakeSell/
// Engine.TakeBuy already notify both the maker and the taker (the sender
// included) via notifyParties once the hold invoice is issued.
func (d *Dispatcher) handleTakeSell(ctx context.Context, senderPubkey, orderID, requestID string, msg *protocol.Message) error {
	fiatAmount, err := fiatAmountOf(msg)
	if err != nil {
		return err
	}
	rate, err := d.rateFor(ctx, orderID)
	if err != nil {
		return err
	}
	tradeIndex := int64(0)
	if msg.TradeIndex != nil {
		tradeIndex = *msg.TradeIndex
	}
	_, err = d.engine.TakeSell(ctx, orderID, senderPubkey, tradeIndex, fiatAmount, rate, requestID)
	return err
}

func (d *Dispatcher) handleTakeBuy(ctx context.Context, senderPubkey, orderID, requestID string, msg *protocol.Message) error {
	fiatAmount, err := fiatAmountOf(msg)
	if err != nil {
		return err
	}
	rate, err := d.rateFor(ctx, orderID)
	if err != nil {
		return err
	}
	tradeIndex := int64(0)
	if msg.TradeIndex != nil {
		tradeIndex = *msg.TradeIndex
	}
	_, err = d.engine.TakeBuy(ctx, orderID, senderPubkey, tradeIndex, fiatAmount, rate, requestID)
	return err
}

func (d *Dispatcher) handleAddInvoice(ctx context.Context, senderPubkey, orderID, requestID string, msg *protocol.Message) (*protocol.Message, error) {
	var content protocol.PaymentRequestContent
	if err := protocol.DecodeInto(msg.Content, &content); err != nil {
		return nil, err
	}
	o, err := d.engine.AddInvoice(ctx, orderID, senderPubkey, content.Invoice, requestID)
	if err != nil {
		return nil, err
	}
	return protocol.NewMessage(protocol.ActionAddInvoice, &o.ID, msg.RequestID, orderContentOf(o))
}

// handleDispute escalates the order, then publishes the dispute as a
// public event so any connected solver can discover it without polling.
func (d *Dispatcher) handleDispute(ctx context.Context, orderID, senderPubkey, requestID string) error {
	if _, err := d.engine.Dispute(ctx, orderID, senderPubkey, requestID); err != nil {
		return err
	}
	return d.publishDispute(ctx, orderID)
}

// handleDisputeEvidence attaches encrypted evidence to orderID's dispute.
// The transition table is not consulted and the sender is not checked
// against the order's parties; the only requirement is that a dispute row
// exists for orderID (SubmitEvidence fails otherwise).
func (d *Dispatcher) handleDisputeEvidence(ctx context.Context, orderID string, msg *protocol.Message) error {
	var content protocol.DisputeEvidenceContent
	if err := protocol.DecodeInto(msg.Content, &content); err != nil {
		return err
	}
	return d.disputeMgr.SubmitEvidence(ctx, orderID, content.Text)
}

// handleAdminTakeDispute lets a registered solver claim an order's open
// dispute; solver-ness is checked here rather than in Engine.AddSolver,
// since AddSolver also backs the admin-initiated assignment path.
func (d *Dispatcher) handleAdminTakeDispute(ctx context.Context, senderPubkey, orderID string) error {
	u, err := d.users.GetByPubkey(ctx, senderPubkey)
	if err != nil {
		return err
	}
	if !u.IsSolver && !u.IsAdmin {
		return &ErrNotAuthorized{Pubkey: senderPubkey}
	}
	if err := d.engine.AddSolver(ctx, orderID, senderPubkey); err != nil {
		return err
	}
	return d.publishDispute(ctx, orderID)
}

// publishDispute re-announces orderID's dispute row after a state change
// (opened, claimed), logging rather than failing the caller's already
// -committed change if the relay broadcast itself fails.
func (d *Dispatcher) publishDispute(ctx context.Context, orderID string) error {
	disp, err := d.disputes.GetByOrderID(ctx, orderID)
	if err != nil {
		return err
	}
	if err := d.disputeMgr.PublishDisputeEvent(disp); err != nil {
		logger.Warn("publish dispute event", zap.String("order_id", orderID), zap.Error(err))
	}
	return nil
}

// handleAdminAddSolver grants the solver role to the pubkey named in
// content; only a registered admin may call it.
func (d *Dispatcher) handleAdminAddSolver(ctx context.Context, senderPubkey string, msg *protocol.Message) error {
	admin, err := d.users.GetByPubkey(ctx, senderPubkey)
	if err != nil {
		return err
	}
	if !admin.IsAdmin {
		return &ErrNotAuthorized{Pubkey: senderPubkey}
	}
	var content protocol.PeerContent
	if err := protocol.DecodeInto(msg.Content, &content); err != nil {
		return err
	}
	return d.users.SetSolver(ctx, content.Pubkey, true)
}

func (d *Dispatcher) handleRate(ctx context.Context, senderPubkey, orderID string, msg *protocol.Message) error {
	var content protocol.RatingUserContent
	if err := protocol.DecodeInto(msg.Content, &content); err != nil {
		return err
	}
	return d.engine.Rate(ctx, orderID, senderPubkey, content.Value)
}

// rateFor resolves the market rate a range order's taker amount is frozen
// against, in the order's own fiat code. A fixed-amount order never
// consults the rate (freezeRangeAmount is a no-op for it), but the rate is
// still fetched up front here since the caller doesn't yet know which
// kind of order it's dispatching into.
func (d *Dispatcher) rateFor(ctx context.Context, orderID string) (decimal.Decimal, error) {
	o, err := d.orders.GetByID(ctx, orderID)
	if err != nil {
		return decimal.Zero, err
	}
	rate, err := d.rates.Get(o.FiatCode)
	if err != nil {
		return decimal.Zero, fmt.Errorf("no market rate available for %s: %w", o.FiatCode, err)
	}
	return rate, nil
}

// ErrNotAuthorized is returned when senderPubkey attempts an admin-only
// action without the admin or solver role required.
type ErrNotAuthorized struct {
	Pubkey string
}

func (e *ErrNotAuthorized) Error() string {
	return fmt.Sprintf("%s is not authorized for this action", e.Pubkey)
}

// reasonFor maps an Engine/database error to the closed cant-do reason
// alphabet a peer can render, defaulting to the generic
// not-allowed-by-status tag for anything not specifically recognized.
func reasonFor(err error) protocol.CantDoReason {
	var notYourOrder *engine.ErrNotYourOrder
	var notAuthorizedResolver *engine.ErrNotAuthorizedResolver
	var notAuthorized *ErrNotAuthorized
	var invalidTransition *engine.ErrInvalidTransition
	var invalidRange *engine.ErrInvalidRange

	switch {
	case errors.As(err, &notYourOrder), errors.As(err, &notAuthorizedResolver), errors.As(err, &notAuthorized):
		return protocol.ReasonIsNotYourOrder
	case errors.As(err, &invalidTransition):
		return protocol.ReasonInvalidActionForStatus
	case errors.As(err, &invalidRange):
		return protocol.ReasonInvalidAmount
	case errors.Is(err, database.ErrUserNotFound), errors.Is(err, database.ErrDisputeNotFound):
		return protocol.ReasonPeerNotFound
	default:
		return protocol.ReasonNotAllowedByStatus
	}
}

func cantDoMessage(orderID, requestID string, reason protocol.CantDoReason) (*protocol.Message, error) {
	var orderIDPtr, requestIDPtr *string
	if orderID != "" {
		orderIDPtr = &orderID
	}
	if requestID != "" {
		requestIDPtr = &requestID
	}
	return protocol.NewMessage(protocol.ActionCantDo, orderIDPtr, requestIDPtr, protocol.CantDoContent{Reason: reason})
}

func requestIDOf(msg *protocol.Message) string {
	if msg.RequestID == nil {
		return ""
	}
	return *msg.RequestID
}

func fiatAmountOf(msg *protocol.Message) (int64, error) {
	var content protocol.AmountContent
	if err := protocol.DecodeInto(msg.Content, &content); err != nil {
		if errors.Is(err, protocol.ErrNoContent) {
			return 0, nil
		}
		return 0, err
	}
	return content.Sats, nil
}

func orderContentOf(o *database.Order) protocol.OrderContent {
	return protocol.OrderContent{
		Kind:          string(o.Kind),
		Status:        string(o.Status),
		AmountSats:    o.AmountSats,
		FiatCode:      o.FiatCode,
		FiatAmount:    o.FiatAmount,
		MinFiatAmount: o.MinFiatAmount,
		MaxFiatAmount: o.MaxFiatAmount,
		Premium:       o.Premium,
		PaymentMethod: o.PaymentMethod,
		CreatedAt:     o.CreatedAt.Unix(),
	}
}

package engine

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"mostrod/internal/database"
	"mostrod/internal/lnd"
	"mostrod/internal/nostr"
	"mostrod/internal/protocol"
	"mostrod/pkg/logger"
	"mostrod/pkg/queue"

	"go.uber.org/zap"
)

// Engine wires the order repositories, the Lightning gateway, and the
// Nostr relay pool behind the transition table in fsm.go. One Engine
// serves every order; per-order serialization comes from locks, not from
// a per-order Engine instance.
type Engine struct {
	orders   *database.OrderRepository
	users    *database.UserRepository
	disputes *database.DisputeRepository
	ratings  *database.RatingRepository
	ln       lnd.LightningClient
	relays   *nostr.Pool
	identity *nostr.KeyPair
	locks    *orderLocks
	idem     *Idempotency
	events   *queue.StreamQueue
	network  string
	instance string
}

// Config bundles Engine's dependencies as named fields, since the list is
// longer than reads cleanly as positional constructor parameters.
type Config struct {
	Orders   *database.OrderRepository
	Users    *database.UserRepository
	Disputes *database.DisputeRepository
	Ratings  *database.RatingRepository
	LN       lnd.LightningClient
	Relays   *nostr.Pool
	Identity *nostr.KeyPair
	// Events publishes hold-invoice lifecycle updates to the Redis stream
	// the engine's own consumer reads back (see ConsumeInvoiceEvents). Nil
	// disables publishing, which unit tests rely on since they never run a
	// consumer to drain the stream.
	Events   *queue.StreamQueue
	Network  string
	Instance string
}

func NewEngine(cfg Config) *Engine {
	return &Engine{
		orders:   cfg.Orders,
		users:    cfg.Users,
		disputes: cfg.Disputes,
		ratings:  cfg.Ratings,
		ln:       cfg.LN,
		relays:   cfg.Relays,
		identity: cfg.Identity,
		locks:    newOrderLocks(),
		idem:     NewIdempotency(),
		events:   cfg.Events,
		network:  cfg.Network,
		instance: cfg.Instance,
	}
}

// ErrNotYourOrder is returned when callerPubkey is neither the order's
// maker nor taker, surfaced as cant-do{is-not-your-order}.
type ErrNotYourOrder struct {
	OrderID string
}

func (e *ErrNotYourOrder) Error() string {
	return fmt.Sprintf("pubkey is not a party to order %s", e.OrderID)
}

// roleOf resolves callerPubkey's role on o, or ErrNotYourOrder if it is
// neither party.
func roleOf(o *database.Order, callerPubkey string) (Role, error) {
	if callerPubkey == o.MakerPubkey {
		return RoleMaker, nil
	}
	if o.TakerPubkey != nil && callerPubkey == *o.TakerPubkey {
		return RoleTaker, nil
	}
	return "", &ErrNotYourOrder{OrderID: o.ID}
}

// applyTransition is the common path every handler funnels through: it
// serializes on the order's lock, validates (status, action, role)
// against the table, and lets fn carry out the side effects (LN calls, DB
// writes, outbound messages) before persisting the new status. fn
// receives the validated target status and must itself call
// orders.UpdateStatus (or a more specific repository method that also
// moves status, like TakeOrder/AttachDispute) as part of its effects, in
// LN-then-DB-then-publish order.
func (e *Engine) applyTransition(
	ctx context.Context,
	o *database.Order,
	action protocol.Action,
	callerRole Role,
	fn func(ctx context.Context, toStatus database.OrderStatus) error,
) error {
	toStatus, err := Validate(o.Status, action, callerRole)
	if err != nil {
		return err
	}
	return e.locks.withOrderLock(o.ID, toStatus.IsTerminal(), func() error {
		return fn(ctx, toStatus)
	})
}

// publishOrderEvent republishes o's public order-book event, used after
// any transition that changes an order's publicly visible status.
func (e *Engine) publishOrderEvent(o *database.Order) {
	if !nostr.IsPubliclyRepublishable(o.Status) {
		return
	}
	ev := nostr.BuildOrderEvent(o, e.network, e.instance, time.Now().Unix())
	if err := ev.Sign(e.identity); err != nil {
		logger.Error("sign order event", zap.String("order_id", o.ID), zap.Error(err))
		return
	}
	e.relays.Publish(ev)
}

// sendMessage gift-wraps msg as a rumor addressed to recipientPubkeyHex
// and publishes it to every connected relay.
func (e *Engine) sendMessage(recipientPubkeyHex string, msg *protocol.Message) error {
	envelope := protocol.Envelope{Order: *msg}
	rumorContent, err := json.Marshal(envelope)
	if err != nil {
		return fmt.Errorf("marshal envelope: %w", err)
	}
	ev, err := nostr.SendDirectMessage(e.identity, recipientPubkeyHex, string(rumorContent), time.Now().Unix())
	if err != nil {
		return fmt.Errorf("gift-wrap message: %w", err)
	}
	e.relays.Publish(ev)
	return nil
}

// SendMessage gift-wraps and publishes msg to recipientPubkeyHex. Exported
// for the daemon's inbound-message loop, which must deliver the reply a
// Dispatch call hands back to whoever sent the original request.
func (e *Engine) SendMessage(recipientPubkeyHex string, msg *protocol.Message) error {
	return e.sendMessage(recipientPubkeyHex, msg)
}

// sendMessageLogged sends msg and logs a failure rather than returning it,
// for call sites issuing a best-effort peer introduction alongside a
// transition that has already been committed to the database.
func (e *Engine) sendMessageLogged(recipientPubkeyHex string, msg *protocol.Message) {
	if err := e.sendMessage(recipientPubkeyHex, msg); err != nil {
		logger.Warn("send message", zap.String("to", recipientPubkeyHex), zap.String("action", string(msg.Action)), zap.Error(err))
	}
}

// notifyParties sends the same action/content to both the maker and the
// taker of o (if a taker is assigned), logging rather than failing the
// caller's already-committed transition if a send fails.
func (e *Engine) notifyParties(o *database.Order, action protocol.Action, content any) {
	recipients := []string{o.MakerPubkey}
	if o.TakerPubkey != nil {
		recipients = append(recipients, *o.TakerPubkey)
	}
	for _, pubkey := range recipients {
		msg, err := protocol.NewMessage(action, &o.ID, nil, content)
		if err != nil {
			logger.Error("build notification message", zap.String("order_id", o.ID), zap.Error(err))
			continue
		}
		if err := e.sendMessage(pubkey, msg); err != nil {
			logger.Warn("send notification", zap.String("order_id", o.ID), zap.String("to", pubkey), zap.Error(err))
		}
	}
}

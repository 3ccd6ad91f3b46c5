package engine

import (
	"context"

	msgqueue "mostrod/internal/queue"
	"mostrod/pkg/logger"

	"go.uber.org/zap"
)

// watchInvoice subscribes to a freshly issued hold invoice's lifecycle and
// republishes every update onto the invoice-events stream rather than
// driving the order transition straight from the gRPC callback: a durable
// stream survives a restart between the notification arriving and the
// transition committing, where an in-process channel would not.
func (e *Engine) watchInvoice(paymentHashHex string) {
	if e.events == nil {
		return
	}

	ctx := context.Background()
	states, err := e.ln.SubscribeInvoice(ctx, paymentHashHex)
	if err != nil {
		logger.Warn("subscribe invoice", zap.String("payment_hash", paymentHashHex), zap.Error(err))
		return
	}

	go func() {
		for state := range states {
			stateName := state.State.String()
			if stateName != "accepted" && stateName != "settled" && stateName != "canceled" {
				continue
			}
			msg := &msgqueue.InvoiceEventMessage{
				PaymentHashHex: state.PaymentHashHex,
				State:          stateName,
				AmountPaidSats: state.AmountPaidSats,
				SettledAt:      state.SettledAt,
			}
			data, err := msg.ToJSON()
			if err != nil {
				logger.Warn("marshal invoice event", zap.String("payment_hash", paymentHashHex), zap.Error(err))
				continue
			}
			if _, err := e.events.Publish(ctx, msgqueue.InvoiceEventsStream, data); err != nil {
				logger.Warn("publish invoice event", zap.String("payment_hash", paymentHashHex), zap.Error(err))
			}
		}
	}()
}

// ConsumeInvoiceEvents drains the invoice-events stream as a named
// consumer group member, driving HoldInvoiceAccepted/HoldInvoiceSettled
// from each durable event. A canceled invoice drives no transition here;
// this only logs it for visibility (the scheduler's expiry sweep reverts a
// past-due waiting-payment/waiting-buyer-invoice order to pending on its
// own timer). Blocks until ctx is
// canceled; run it in its own goroutine.
func (e *Engine) ConsumeInvoiceEvents(ctx context.Context, consumerName string) error {
	if e.events == nil {
		return nil
	}
	if err := e.events.DeclareStream(ctx, msgqueue.InvoiceEventsStream, msgqueue.InvoiceEventsGroup); err != nil {
		return err
	}
	return e.events.Consume(ctx, msgqueue.InvoiceEventsStream, msgqueue.InvoiceEventsGroup, consumerName, func(messageID string, data []byte) error {
		msg, err := msgqueue.FromJSONInvoiceEvent(data)
		if err != nil {
			logger.Warn("decode invoice event", zap.String("message_id", messageID), zap.Error(err))
			return nil
		}
		switch msg.State {
		case "accepted":
			return e.HoldInvoiceAccepted(ctx, msg.PaymentHashHex)
		case "settled":
			return e.HoldInvoiceSettled(ctx, msg.PaymentHashHex)
		default:
			logger.Info("invoice canceled", zap.String("payment_hash", msg.PaymentHashHex))
			return nil
		}
	})
}

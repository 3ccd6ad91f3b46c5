package database

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

var (
	ErrOrderNotFound      = errors.New("order not found")
	ErrDuplicatePending   = errors.New("user already has a pending order for this kind/fiat_code/payment_method")
	ErrOrderVersionStale  = errors.New("order was modified concurrently")
)

// OrderRepository persists Order rows.
type OrderRepository struct {
	db *DB
}

func NewOrderRepository(db *DB) *OrderRepository {
	return &OrderRepository{db: db}
}

// Create inserts a new order in status pending. Returns ErrDuplicatePending
// if the maker already has a pending order with the same
// (kind, fiat_code, payment_method) triple, enforced by a partial unique
// index on the orders table.
func (r *OrderRepository) Create(ctx context.Context, o *Order) error {
	query := `
		INSERT INTO orders (
			id, kind, status, amount_sats, fiat_code, fiat_amount,
			min_fiat_amount, max_fiat_amount, premium, payment_method,
			maker_pubkey, maker_trade_index, created_at, expires_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14)
	`
	_, err := r.db.pool.Exec(ctx, query,
		o.ID, o.Kind, o.Status, o.AmountSats, o.FiatCode, o.FiatAmount,
		o.MinFiatAmount, o.MaxFiatAmount, o.Premium, o.PaymentMethod,
		o.MakerPubkey, o.MakerTradeIndex, o.CreatedAt, o.ExpiresAt,
	)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" {
			return ErrDuplicatePending
		}
		return fmt.Errorf("create order: %w", err)
	}
	return nil
}

func (r *OrderRepository) GetByID(ctx context.Context, id string) (*Order, error) {
	query := `
		SELECT id, kind, status, amount_sats, fiat_code, fiat_amount,
			min_fiat_amount, max_fiat_amount, premium, payment_method,
			maker_pubkey, taker_pubkey, maker_hold_invoice,
			maker_invoice_preimage_hash, maker_invoice_preimage, buyer_payment_request, dispute_id,
			maker_trade_index, taker_trade_index, failed_payment_attempts,
			next_payment_retry_at, waiting_retries, created_at, expires_at, taken_at
		FROM orders WHERE id = $1
	`
	return r.scanOne(r.db.pool.QueryRow(ctx, query, id))
}

func (r *OrderRepository) scanOne(row pgx.Row) (*Order, error) {
	var o Order
	err := row.Scan(
		&o.ID, &o.Kind, &o.Status, &o.AmountSats, &o.FiatCode, &o.FiatAmount,
		&o.MinFiatAmount, &o.MaxFiatAmount, &o.Premium, &o.PaymentMethod,
		&o.MakerPubkey, &o.TakerPubkey, &o.MakerHoldInvoice,
		&o.MakerInvoicePreimageHash, &o.MakerInvoicePreimage, &o.BuyerPaymentRequest, &o.DisputeID,
		&o.MakerTradeIndex, &o.TakerTradeIndex, &o.FailedPaymentAttempts,
		&o.NextPaymentRetryAt, &o.WaitingRetries, &o.CreatedAt, &o.ExpiresAt, &o.TakenAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrOrderNotFound
		}
		return nil, fmt.Errorf("scan order: %w", err)
	}
	return &o, nil
}

// ListActiveByPubkey returns non-terminal orders where pubkey is maker or taker.
func (r *OrderRepository) ListActiveByPubkey(ctx context.Context, pubkey string) ([]*Order, error) {
	query := `
		SELECT id, kind, status, amount_sats, fiat_code, fiat_amount,
			min_fiat_amount, max_fiat_amount, premium, payment_method,
			maker_pubkey, taker_pubkey, maker_hold_invoice,
			maker_invoice_preimage_hash, maker_invoice_preimage, buyer_payment_request, dispute_id,
			maker_trade_index, taker_trade_index, failed_payment_attempts,
			next_payment_retry_at, waiting_retries, created_at, expires_at, taken_at
		FROM orders
		WHERE (maker_pubkey = $1 OR taker_pubkey = $1)
		  AND status NOT IN ('success','canceled','canceled-by-admin',
		                      'cooperatively-canceled','seller-refunded',
		                      'expired','settled-by-admin','completed-by-admin')
		ORDER BY created_at
	`
	return r.queryOrders(ctx, query, pubkey)
}

// ListNonTerminal returns every order still in flight, used by the expiry
// sweep.
func (r *OrderRepository) ListNonTerminal(ctx context.Context) ([]*Order, error) {
	query := `
		SELECT id, kind, status, amount_sats, fiat_code, fiat_amount,
			min_fiat_amount, max_fiat_amount, premium, payment_method,
			maker_pubkey, taker_pubkey, maker_hold_invoice,
			maker_invoice_preimage_hash, maker_invoice_preimage, buyer_payment_request, dispute_id,
			maker_trade_index, taker_trade_index, failed_payment_attempts,
			next_payment_retry_at, waiting_retries, created_at, expires_at, taken_at
		FROM orders
		WHERE status NOT IN ('success','canceled','canceled-by-admin',
		                      'cooperatively-canceled','seller-refunded',
		                      'expired','settled-by-admin','completed-by-admin')
		ORDER BY created_at
	`
	return r.queryOrders(ctx, query)
}

// ListOrderBook returns pending orders eligible for publication to the
// public order book (kind 38383 events), optionally filtered by fiat code.
func (r *OrderRepository) ListOrderBook(ctx context.Context, fiatCode string) ([]*Order, error) {
	query := `
		SELECT id, kind, status, amount_sats, fiat_code, fiat_amount,
			min_fiat_amount, max_fiat_amount, premium, payment_method,
			maker_pubkey, taker_pubkey, maker_hold_invoice,
			maker_invoice_preimage_hash, maker_invoice_preimage, buyer_payment_request, dispute_id,
			maker_trade_index, taker_trade_index, failed_payment_attempts,
			next_payment_retry_at, waiting_retries, created_at, expires_at, taken_at
		FROM orders
		WHERE status = 'pending' AND ($1 = '' OR fiat_code = $1)
		ORDER BY created_at DESC
	`
	return r.queryOrders(ctx, query, fiatCode)
}

func (r *OrderRepository) queryOrders(ctx context.Context, query string, args ...any) ([]*Order, error) {
	rows, err := r.db.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list orders: %w", err)
	}
	defer rows.Close()

	var orders []*Order
	for rows.Next() {
		o, err := r.scanOne(rows)
		if err != nil {
			return nil, err
		}
		orders = append(orders, o)
	}
	return orders, rows.Err()
}

// UpdateStatus performs a compare-and-set transition: it only applies when
// the row is currently in fromStatus, giving the engine's per-order lock a
// database-level backstop against lost updates.
func (r *OrderRepository) UpdateStatus(ctx context.Context, id string, fromStatus, toStatus OrderStatus) error {
	query := `UPDATE orders SET status = $1 WHERE id = $2 AND status = $3`
	tag, err := r.db.pool.Exec(ctx, query, toStatus, id, fromStatus)
	if err != nil {
		return fmt.Errorf("update order status: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrOrderVersionStale
	}
	return nil
}

// TakeOrder assigns a taker pubkey and trade index, transitioning the order
// out of pending. Uses the same fromStatus guard as UpdateStatus to reject a
// double-take race.
func (r *OrderRepository) TakeOrder(ctx context.Context, id, takerPubkey string, takerTradeIndex int64, amountSats int64, fiatAmount int64, toStatus OrderStatus, takenAt interface{}) error {
	query := `
		UPDATE orders
		SET taker_pubkey = $1, taker_trade_index = $2, amount_sats = $3,
		    fiat_amount = $4, status = $5, taken_at = $6
		WHERE id = $7 AND status = 'pending' AND taker_pubkey IS NULL
	`
	tag, err := r.db.pool.Exec(ctx, query, takerPubkey, takerTradeIndex, amountSats, fiatAmount, toStatus, takenAt, id)
	if err != nil {
		return fmt.Errorf("take order: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrOrderVersionStale
	}
	return nil
}

// SetMakerHoldInvoice records the seller's accepted hold invoice, its
// payment hash, and its preimage. The daemon is the one who generated the
// invoice (to hold the seller's sats in escrow), so it is also the one
// who must retain the preimage to settle it later at release.
func (r *OrderRepository) SetMakerHoldInvoice(ctx context.Context, id, invoice, preimageHash, preimageHex string) error {
	query := `UPDATE orders SET maker_hold_invoice = $1, maker_invoice_preimage_hash = $2, maker_invoice_preimage = $3 WHERE id = $4`
	_, err := r.db.pool.Exec(ctx, query, invoice, preimageHash, preimageHex, id)
	if err != nil {
		return fmt.Errorf("set maker hold invoice: %w", err)
	}
	return nil
}

// GetByPreimageHash finds the order whose escrowed hold invoice has
// paymentHashHex, used by LN gateway notifications which only carry the
// payment hash.
func (r *OrderRepository) GetByPreimageHash(ctx context.Context, paymentHashHex string) (*Order, error) {
	query := `
		SELECT id, kind, status, amount_sats, fiat_code, fiat_amount,
			min_fiat_amount, max_fiat_amount, premium, payment_method,
			maker_pubkey, taker_pubkey, maker_hold_invoice,
			maker_invoice_preimage_hash, maker_invoice_preimage, buyer_payment_request, dispute_id,
			maker_trade_index, taker_trade_index, failed_payment_attempts,
			next_payment_retry_at, waiting_retries, created_at, expires_at, taken_at
		FROM orders WHERE maker_invoice_preimage_hash = $1
	`
	return r.scanOne(r.db.pool.QueryRow(ctx, query, paymentHashHex))
}

// SetBuyerPaymentRequest records the buyer's bolt11 invoice for final payout.
func (r *OrderRepository) SetBuyerPaymentRequest(ctx context.Context, id, invoice string) error {
	query := `UPDATE orders SET buyer_payment_request = $1 WHERE id = $2`
	_, err := r.db.pool.Exec(ctx, query, invoice, id)
	if err != nil {
		return fmt.Errorf("set buyer payment request: %w", err)
	}
	return nil
}

// AttachDispute links a dispute row and moves the order into the dispute status.
func (r *OrderRepository) AttachDispute(ctx context.Context, id, disputeID string) error {
	query := `UPDATE orders SET dispute_id = $1, status = $2 WHERE id = $3`
	_, err := r.db.pool.Exec(ctx, query, disputeID, StatusDispute, id)
	if err != nil {
		return fmt.Errorf("attach dispute: %w", err)
	}
	return nil
}

// RecordPaymentFailure bumps the retry counter and schedules the next
// attempt, consumed by the retry queue.
func (r *OrderRepository) RecordPaymentFailure(ctx context.Context, id string, nextRetryAt interface{}) error {
	query := `
		UPDATE orders
		SET failed_payment_attempts = failed_payment_attempts + 1,
		    next_payment_retry_at = $1
		WHERE id = $2
	`
	_, err := r.db.pool.Exec(ctx, query, nextRetryAt, id)
	if err != nil {
		return fmt.Errorf("record payment failure: %w", err)
	}
	return nil
}

// ClearPaymentRetry drops the scheduled retry once a payout finally lands
// (or the retry budget is exhausted and the order moves on without it).
func (r *OrderRepository) ClearPaymentRetry(ctx context.Context, id string) error {
	query := `UPDATE orders SET next_payment_retry_at = NULL WHERE id = $1`
	_, err := r.db.pool.Exec(ctx, query, id)
	if err != nil {
		return fmt.Errorf("clear payment retry: %w", err)
	}
	return nil
}

// ListDueForRetry returns in-progress orders whose scheduled payout retry
// time has arrived, used by the retry queue's sweep.
func (r *OrderRepository) ListDueForRetry(ctx context.Context) ([]*Order, error) {
	query := `
		SELECT id, kind, status, amount_sats, fiat_code, fiat_amount,
			min_fiat_amount, max_fiat_amount, premium, payment_method,
			maker_pubkey, taker_pubkey, maker_hold_invoice,
			maker_invoice_preimage_hash, maker_invoice_preimage, buyer_payment_request, dispute_id,
			maker_trade_index, taker_trade_index, failed_payment_attempts,
			next_payment_retry_at, waiting_retries, created_at, expires_at, taken_at
		FROM orders
		WHERE status = $1 AND next_payment_retry_at IS NOT NULL AND next_payment_retry_at <= now()
		ORDER BY next_payment_retry_at
	`
	return r.queryOrders(ctx, query, StatusInProgress)
}

// ResetToPending reverts an order that timed out waiting on a taker action
// (payment of the hold invoice, or supply of a buyer invoice) back to
// pending so it can be retaken, clearing every taker-side assignment. Only
// applies when the order is still in fromStatus, guarding against a race
// with the taker completing the step just as the sweep fires.
func (r *OrderRepository) ResetToPending(ctx context.Context, id string, fromStatus OrderStatus) error {
	query := `
		UPDATE orders
		SET status = $1, taker_pubkey = NULL, taker_trade_index = NULL,
		    maker_hold_invoice = NULL, maker_invoice_preimage_hash = NULL,
		    maker_invoice_preimage = NULL, buyer_payment_request = NULL,
		    taken_at = NULL, waiting_retries = waiting_retries + 1,
		    amount_sats = CASE WHEN min_fiat_amount IS NOT NULL THEN 0 ELSE amount_sats END,
		    fiat_amount = CASE WHEN min_fiat_amount IS NOT NULL THEN 0 ELSE fiat_amount END
		WHERE id = $2 AND status = $3
	`
	tag, err := r.db.pool.Exec(ctx, query, StatusPending, id, fromStatus)
	if err != nil {
		return fmt.Errorf("reset order to pending: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrOrderVersionStale
	}
	return nil
}

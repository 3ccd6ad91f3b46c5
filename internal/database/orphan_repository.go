package database

import (
	"context"
	"fmt"
)

// OrphanRepository persists OrphanPayment rows, the stuck-payment
// reconciliation log surfaced by the admin CLI's orphans command.
type OrphanRepository struct {
	db *DB
}

func NewOrphanRepository(db *DB) *OrphanRepository {
	return &OrphanRepository{db: db}
}

func (r *OrphanRepository) Create(ctx context.Context, o *OrphanPayment) error {
	query := `
		INSERT INTO orphaned_payments (id, order_id, bolt11, payment_hash, preimage_hex, amount_sats, discovered_at, note)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
	`
	_, err := r.db.pool.Exec(ctx, query,
		o.ID, o.OrderID, o.Bolt11, o.PaymentHash, o.PreimageHex, o.AmountSats, o.DiscoveredAt, o.Note,
	)
	if err != nil {
		return fmt.Errorf("create orphaned payment: %w", err)
	}
	return nil
}

// ListUnresolved returns every orphaned payment still awaiting operator review.
func (r *OrphanRepository) ListUnresolved(ctx context.Context) ([]*OrphanPayment, error) {
	query := `
		SELECT id, order_id, bolt11, payment_hash, preimage_hex, amount_sats, discovered_at, note
		FROM orphaned_payments ORDER BY discovered_at
	`
	rows, err := r.db.pool.Query(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("list orphaned payments: %w", err)
	}
	defer rows.Close()

	var out []*OrphanPayment
	for rows.Next() {
		var o OrphanPayment
		if err := rows.Scan(&o.ID, &o.OrderID, &o.Bolt11, &o.PaymentHash, &o.PreimageHex, &o.AmountSats, &o.DiscoveredAt, &o.Note); err != nil {
			return nil, fmt.Errorf("scan orphaned payment: %w", err)
		}
		out = append(out, &o)
	}
	return out, rows.Err()
}

package database

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

var ErrRatingAlreadyExists = errors.New("rating already recorded for this order and rater")

// RatingRepository persists Rating rows. Ratings are immutable once written;
// a unique index on (order_id, rater_pubkey) enforces one rating per side.
type RatingRepository struct {
	db *DB
}

func NewRatingRepository(db *DB) *RatingRepository {
	return &RatingRepository{db: db}
}

func (r *RatingRepository) Create(ctx context.Context, rt *Rating) error {
	query := `
		INSERT INTO ratings (id, order_id, rater_pubkey, ratee_pubkey, value, created_at)
		VALUES ($1, $2, $3, $4, $5, $6)
	`
	_, err := r.db.pool.Exec(ctx, query, rt.ID, rt.OrderID, rt.RaterPubkey, rt.RateePubkey, rt.Value, rt.CreatedAt)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" {
			return ErrRatingAlreadyExists
		}
		return fmt.Errorf("create rating: %w", err)
	}
	return nil
}

func (r *RatingRepository) ListByOrderID(ctx context.Context, orderID string) ([]*Rating, error) {
	query := `
		SELECT id, order_id, rater_pubkey, ratee_pubkey, value, created_at
		FROM ratings WHERE order_id = $1
	`
	rows, err := r.db.pool.Query(ctx, query, orderID)
	if err != nil {
		return nil, fmt.Errorf("list ratings: %w", err)
	}
	defer rows.Close()

	var ratings []*Rating
	for rows.Next() {
		var rt Rating
		if err := rows.Scan(&rt.ID, &rt.OrderID, &rt.RaterPubkey, &rt.RateePubkey, &rt.Value, &rt.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan rating: %w", err)
		}
		ratings = append(ratings, &rt)
	}
	return ratings, rows.Err()
}

// ExistsForRater reports whether ratee has already been rated by rater for this order.
func (r *RatingRepository) ExistsForRater(ctx context.Context, orderID, raterPubkey string) (bool, error) {
	query := `SELECT 1 FROM ratings WHERE order_id = $1 AND rater_pubkey = $2`
	var dummy int
	err := r.db.pool.QueryRow(ctx, query, orderID, raterPubkey).Scan(&dummy)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return false, nil
		}
		return false, fmt.Errorf("check rating existence: %w", err)
	}
	return true, nil
}

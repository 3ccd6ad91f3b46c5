package database

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
)

var ErrUserNotFound = errors.New("user not found")

// UserRepository persists User rows, keyed by Nostr pubkey.
type UserRepository struct {
	db *DB
}

func NewUserRepository(db *DB) *UserRepository {
	return &UserRepository{db: db}
}

// GetOrCreate fetches a user by pubkey, inserting a fresh row with
// trade_index 0 if none exists yet: users are created lazily on first
// appearance in any protocol message.
func (r *UserRepository) GetOrCreate(ctx context.Context, pubkey string) (*User, error) {
	u, err := r.GetByPubkey(ctx, pubkey)
	if err == nil {
		return u, nil
	}
	if !errors.Is(err, ErrUserNotFound) {
		return nil, err
	}

	query := `
		INSERT INTO users (pubkey, trade_index, trading_volume_sats, rating_count, rating_sum, is_admin, is_solver, is_banned, created_at)
		VALUES ($1, 0, 0, 0, 0, false, false, false, now())
		ON CONFLICT (pubkey) DO NOTHING
	`
	if _, err := r.db.pool.Exec(ctx, query, pubkey); err != nil {
		return nil, fmt.Errorf("create user: %w", err)
	}
	return r.GetByPubkey(ctx, pubkey)
}

func (r *UserRepository) GetByPubkey(ctx context.Context, pubkey string) (*User, error) {
	query := `
		SELECT pubkey, trade_index, trading_volume_sats, rating_count, rating_sum, is_admin, is_solver, is_banned, created_at
		FROM users WHERE pubkey = $1
	`
	var u User
	err := r.db.pool.QueryRow(ctx, query, pubkey).Scan(
		&u.Pubkey, &u.TradeIndex, &u.TradingVolume, &u.RatingCount, &u.RatingSum,
		&u.IsAdmin, &u.IsSolver, &u.IsBanned, &u.CreatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrUserNotFound
		}
		return nil, fmt.Errorf("get user: %w", err)
	}
	return &u, nil
}

// NextTradeIndex atomically increments and returns the user's trade index.
func (r *UserRepository) NextTradeIndex(ctx context.Context, pubkey string) (int64, error) {
	query := `UPDATE users SET trade_index = trade_index + 1 WHERE pubkey = $1 RETURNING trade_index`
	var next int64
	if err := r.db.pool.QueryRow(ctx, query, pubkey).Scan(&next); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return 0, ErrUserNotFound
		}
		return 0, fmt.Errorf("advance trade index: %w", err)
	}
	return next, nil
}

// AddTradingVolume credits completed-order volume to both counterparties.
func (r *UserRepository) AddTradingVolume(ctx context.Context, pubkey string, sats int64) error {
	query := `UPDATE users SET trading_volume_sats = trading_volume_sats + $1 WHERE pubkey = $2`
	_, err := r.db.pool.Exec(ctx, query, sats, pubkey)
	if err != nil {
		return fmt.Errorf("add trading volume: %w", err)
	}
	return nil
}

// AddRating folds a new rating value into the running count/sum aggregate.
func (r *UserRepository) AddRating(ctx context.Context, pubkey string, value int) error {
	query := `UPDATE users SET rating_count = rating_count + 1, rating_sum = rating_sum + $1 WHERE pubkey = $2`
	_, err := r.db.pool.Exec(ctx, query, value, pubkey)
	if err != nil {
		return fmt.Errorf("add rating: %w", err)
	}
	return nil
}

// SetSolver grants or revokes the solver role (admin-only action).
func (r *UserRepository) SetSolver(ctx context.Context, pubkey string, isSolver bool) error {
	query := `UPDATE users SET is_solver = $1 WHERE pubkey = $2`
	tag, err := r.db.pool.Exec(ctx, query, isSolver, pubkey)
	if err != nil {
		return fmt.Errorf("set solver: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrUserNotFound
	}
	return nil
}

// SetAdmin grants or revokes admin status. Used to bootstrap the daemon's
// configured admin pubkeys on startup; an existing admin granting another
// pubkey admin status goes through the same method.
func (r *UserRepository) SetAdmin(ctx context.Context, pubkey string, isAdmin bool) error {
	query := `UPDATE users SET is_admin = $1 WHERE pubkey = $2`
	tag, err := r.db.pool.Exec(ctx, query, isAdmin, pubkey)
	if err != nil {
		return fmt.Errorf("set admin: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrUserNotFound
	}
	return nil
}

// SetBanned grants or revokes a trading ban (admin-only action).
func (r *UserRepository) SetBanned(ctx context.Context, pubkey string, banned bool) error {
	query := `UPDATE users SET is_banned = $1 WHERE pubkey = $2`
	tag, err := r.db.pool.Exec(ctx, query, banned, pubkey)
	if err != nil {
		return fmt.Errorf("set banned: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrUserNotFound
	}
	return nil
}

// ListSolvers returns every pubkey currently flagged as a dispute solver.
func (r *UserRepository) ListSolvers(ctx context.Context) ([]*User, error) {
	query := `
		SELECT pubkey, trade_index, trading_volume_sats, rating_count, rating_sum, is_admin, is_solver, is_banned, created_at
		FROM users WHERE is_solver = true
	`
	rows, err := r.db.pool.Query(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("list solvers: %w", err)
	}
	defer rows.Close()

	var users []*User
	for rows.Next() {
		var u User
		if err := rows.Scan(
			&u.Pubkey, &u.TradeIndex, &u.TradingVolume, &u.RatingCount, &u.RatingSum,
			&u.IsAdmin, &u.IsSolver, &u.IsBanned, &u.CreatedAt,
		); err != nil {
			return nil, fmt.Errorf("scan solver: %w", err)
		}
		users = append(users, &u)
	}
	return users, rows.Err()
}

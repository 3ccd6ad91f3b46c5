package database

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
)

var ErrDisputeNotFound = errors.New("dispute not found")

// DisputeRepository persists Dispute rows for the arbitration workflow.
type DisputeRepository struct {
	db *DB
}

func NewDisputeRepository(db *DB) *DisputeRepository {
	return &DisputeRepository{db: db}
}

func (r *DisputeRepository) Create(ctx context.Context, d *Dispute) error {
	query := `
		INSERT INTO disputes (id, order_id, initiator_pubkey, status, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $5)
	`
	_, err := r.db.pool.Exec(ctx, query, d.ID, d.OrderID, d.InitiatorPubkey, d.Status, d.CreatedAt)
	if err != nil {
		return fmt.Errorf("create dispute: %w", err)
	}
	return nil
}

func (r *DisputeRepository) GetByID(ctx context.Context, id string) (*Dispute, error) {
	query := `
		SELECT id, order_id, initiator_pubkey, solver_pubkey, status, created_at, updated_at, encrypted_evidence
		FROM disputes WHERE id = $1
	`
	return r.scanOne(r.db.pool.QueryRow(ctx, query, id))
}

func (r *DisputeRepository) GetByOrderID(ctx context.Context, orderID string) (*Dispute, error) {
	query := `
		SELECT id, order_id, initiator_pubkey, solver_pubkey, status, created_at, updated_at, encrypted_evidence
		FROM disputes WHERE order_id = $1
	`
	return r.scanOne(r.db.pool.QueryRow(ctx, query, orderID))
}

func (r *DisputeRepository) scanOne(row pgx.Row) (*Dispute, error) {
	var d Dispute
	err := row.Scan(&d.ID, &d.OrderID, &d.InitiatorPubkey, &d.SolverPubkey, &d.Status, &d.CreatedAt, &d.UpdatedAt, &d.EncryptedEvidence)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrDisputeNotFound
		}
		return nil, fmt.Errorf("scan dispute: %w", err)
	}
	return &d, nil
}

// SetEncryptedEvidence stores the ciphertext a party submitted while the
// dispute is open; callers encrypt before calling this and decrypt after
// reading it back, the repository never sees plaintext.
func (r *DisputeRepository) SetEncryptedEvidence(ctx context.Context, id, encryptedEvidence string) error {
	query := `UPDATE disputes SET encrypted_evidence = $1, updated_at = now() WHERE id = $2`
	tag, err := r.db.pool.Exec(ctx, query, encryptedEvidence, id)
	if err != nil {
		return fmt.Errorf("set dispute evidence: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrDisputeNotFound
	}
	return nil
}

// ListUnassigned returns disputes still waiting for a solver to take them.
func (r *DisputeRepository) ListUnassigned(ctx context.Context) ([]*Dispute, error) {
	query := `
		SELECT id, order_id, initiator_pubkey, solver_pubkey, status, created_at, updated_at, encrypted_evidence
		FROM disputes WHERE status = $1 ORDER BY created_at
	`
	rows, err := r.db.pool.Query(ctx, query, DisputeInitiated)
	if err != nil {
		return nil, fmt.Errorf("list unassigned disputes: %w", err)
	}
	defer rows.Close()

	var disputes []*Dispute
	for rows.Next() {
		var d Dispute
		if err := rows.Scan(&d.ID, &d.OrderID, &d.InitiatorPubkey, &d.SolverPubkey, &d.Status, &d.CreatedAt, &d.UpdatedAt, &d.EncryptedEvidence); err != nil {
			return nil, fmt.Errorf("scan dispute: %w", err)
		}
		disputes = append(disputes, &d)
	}
	return disputes, rows.Err()
}

// AssignSolver claims an unassigned dispute for a solver, guarding against
// two solvers taking the same dispute concurrently.
func (r *DisputeRepository) AssignSolver(ctx context.Context, id, solverPubkey string) error {
	query := `
		UPDATE disputes SET solver_pubkey = $1, status = $2, updated_at = now()
		WHERE id = $3 AND solver_pubkey IS NULL
	`
	tag, err := r.db.pool.Exec(ctx, query, solverPubkey, DisputeInProgress, id)
	if err != nil {
		return fmt.Errorf("assign solver: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("dispute %s already assigned", id)
	}
	return nil
}

// UpdateStatus moves a dispute to its final resolution status (settled,
// seller-refunded, or released).
func (r *DisputeRepository) UpdateStatus(ctx context.Context, id string, status DisputeStatus) error {
	query := `UPDATE disputes SET status = $1, updated_at = now() WHERE id = $2`
	tag, err := r.db.pool.Exec(ctx, query, status, id)
	if err != nil {
		return fmt.Errorf("update dispute status: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrDisputeNotFound
	}
	return nil
}

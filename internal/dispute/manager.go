// Package dispute owns the two pieces of arbitration that sit outside the
// order state machine: encrypted evidence submission, and announcing a
// dispute's existence/resolution to the relays as a public event. Claiming
// a dispute and settling/refunding it are state transitions and stay on
// Engine, which already has the order lock and hold-invoice handles that
// work needs.
package dispute

import (
	"context"
	"errors"
	"fmt"
	"time"

	"mostrod/internal/crypto"
	"mostrod/internal/database"
	"mostrod/internal/nostr"
)

var ErrNoEvidence = errors.New("dispute has no submitted evidence")

// Manager encrypts/decrypts dispute evidence under the daemon's configured
// evidence key and publishes dispute lifecycle events to the relay pool.
type Manager struct {
	disputes *database.DisputeRepository
	relays   *nostr.Pool
	identity *nostr.KeyPair
	instance string
	key      []byte
}

func NewManager(disputes *database.DisputeRepository, relays *nostr.Pool, identity *nostr.KeyPair, instance string, evidenceKey []byte) *Manager {
	return &Manager{disputes: disputes, relays: relays, identity: identity, instance: instance, key: evidenceKey}
}

// SubmitEvidence encrypts text and attaches it to orderID's dispute. Either
// party may call this any number of times; a later submission overwrites
// the earlier one rather than appending, since only the solver resolving
// the dispute ever reads it back.
func (m *Manager) SubmitEvidence(ctx context.Context, orderID, text string) error {
	d, err := m.disputes.GetByOrderID(ctx, orderID)
	if err != nil {
		return fmt.Errorf("submit evidence: %w", err)
	}
	encrypted, err := crypto.Encrypt(text, m.key)
	if err != nil {
		return fmt.Errorf("encrypt evidence: %w", err)
	}
	return m.disputes.SetEncryptedEvidence(ctx, d.ID, encrypted)
}

// RevealEvidence decrypts orderID's submitted evidence for a solver or
// admin review.
func (m *Manager) RevealEvidence(ctx context.Context, orderID string) (string, error) {
	d, err := m.disputes.GetByOrderID(ctx, orderID)
	if err != nil {
		return "", fmt.Errorf("reveal evidence: %w", err)
	}
	if d.EncryptedEvidence == nil {
		return "", ErrNoEvidence
	}
	text, err := crypto.Decrypt(*d.EncryptedEvidence, m.key)
	if err != nil {
		return "", fmt.Errorf("decrypt evidence: %w", err)
	}
	return text, nil
}

// PublishDisputeEvent signs and broadcasts d as a kind-38383 event, the
// public signal that an order's dispute is open or has been assigned a
// solver (the order's own event stays the source of truth for status; this
// is the discovery surface solvers watch).
func (m *Manager) PublishDisputeEvent(d *database.Dispute) error {
	ev := nostr.BuildDisputeEvent(d, m.instance, time.Now().Unix())
	if err := ev.Sign(m.identity); err != nil {
		return fmt.Errorf("sign dispute event: %w", err)
	}
	m.relays.Publish(ev)
	return nil
}

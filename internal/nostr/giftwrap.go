package nostr

import (
	"encoding/json"
	"fmt"

	"mostrod/internal/crypto"
)

// GiftWrap implements the NIP-59 style envelope a protocol Message travels
// in: a plaintext rumor (the actual protocol envelope, unsigned), sealed
// with the sender's real identity, then wrapped again under a throwaway
// key so relay observers can't link sender/recipient pairs from event
// metadata alone.
//
// No example in the retrieved pack implements Nostr; this is built from
// the primitives the pack does provide (btcec keys/Schnorr signatures, the
// teacher's AES-256-GCM helper) following the shape of NIP-59 gift wraps.

// Seal produces a kind-13 event: content is rumorJSON encrypted under the
// ECDH shared secret between sender and recipient, signed by the sender's
// real identity.
func Seal(sender *KeyPair, recipientPubkeyHex string, rumorJSON []byte, createdAt int64) (*Event, error) {
	key, err := sender.sharedSecret(recipientPubkeyHex)
	if err != nil {
		return nil, fmt.Errorf("seal: derive shared secret: %w", err)
	}

	ciphertext, err := crypto.Encrypt(string(rumorJSON), key)
	if err != nil {
		return nil, fmt.Errorf("seal: encrypt rumor: %w", err)
	}

	seal := &Event{
		Kind:      KindSeal,
		CreatedAt: createdAt,
		Content:   ciphertext,
		Tags:      [][]string{},
	}
	if err := seal.Sign(sender); err != nil {
		return nil, fmt.Errorf("seal: sign: %w", err)
	}
	return seal, nil
}

// Wrap encrypts a sealed event under a fresh ephemeral key so the relay
// sees neither the sender's nor the rumor's real identity on the outer
// event, and tags the result so only recipientPubkeyHex's relays route it.
func Wrap(seal *Event, recipientPubkeyHex string, createdAt int64) (*Event, error) {
	ephemeral, err := GenerateKeyPair()
	if err != nil {
		return nil, fmt.Errorf("wrap: generate ephemeral key: %w", err)
	}

	sealJSON, err := json.Marshal(seal)
	if err != nil {
		return nil, fmt.Errorf("wrap: marshal seal: %w", err)
	}

	key, err := ephemeral.sharedSecret(recipientPubkeyHex)
	if err != nil {
		return nil, fmt.Errorf("wrap: derive shared secret: %w", err)
	}

	ciphertext, err := crypto.Encrypt(string(sealJSON), key)
	if err != nil {
		return nil, fmt.Errorf("wrap: encrypt seal: %w", err)
	}

	wrapped := &Event{
		Kind:      KindGiftWrap,
		CreatedAt: createdAt,
		Content:   ciphertext,
		Tags:      [][]string{{"p", recipientPubkeyHex}},
	}
	if err := wrapped.Sign(ephemeral); err != nil {
		return nil, fmt.Errorf("wrap: sign: %w", err)
	}
	return wrapped, nil
}

// SendDirectMessage builds the full rumor -> seal -> gift-wrap chain for a
// protocol envelope addressed to recipientPubkeyHex.
func SendDirectMessage(sender *KeyPair, recipientPubkeyHex string, rumorContent string, createdAt int64) (*Event, error) {
	rumor := &Event{
		Kind:      KindDirectRumor,
		Pubkey:    sender.PublicKeyHex(),
		CreatedAt: createdAt,
		Content:   rumorContent,
		Tags:      [][]string{{"p", recipientPubkeyHex}},
	}
	// The rumor is deliberately left unsigned (NIP-59): only its encrypted
	// copies (seal, gift wrap) carry a signature, so a leaked rumor alone
	// cannot be replayed as an authenticated event.
	digest, err := rumor.computeID()
	if err != nil {
		return nil, fmt.Errorf("send dm: compute rumor id: %w", err)
	}
	rumor.ID = fmt.Sprintf("%x", digest)

	rumorJSON, err := json.Marshal(rumor)
	if err != nil {
		return nil, fmt.Errorf("send dm: marshal rumor: %w", err)
	}

	seal, err := Seal(sender, recipientPubkeyHex, rumorJSON, createdAt)
	if err != nil {
		return nil, err
	}
	return Wrap(seal, recipientPubkeyHex, createdAt)
}

// OpenDirectMessage reverses Wrap/Seal for the recipient: decrypts the gift
// wrap using the recipient's static identity (the wrap's ECDH partner is
// the ephemeral pubkey carried as the wrap event's own Pubkey field),
// decrypts the seal to recover the rumor, and returns its content.
func OpenDirectMessage(recipient *KeyPair, wrapped *Event) (rumorContent string, senderPubkey string, err error) {
	key, err := recipient.sharedSecret(wrapped.Pubkey)
	if err != nil {
		return "", "", fmt.Errorf("open dm: derive wrap shared secret: %w", err)
	}
	sealJSON, err := crypto.Decrypt(wrapped.Content, key)
	if err != nil {
		return "", "", fmt.Errorf("open dm: decrypt seal: %w", err)
	}

	var seal Event
	if err := json.Unmarshal([]byte(sealJSON), &seal); err != nil {
		return "", "", fmt.Errorf("open dm: unmarshal seal: %w", err)
	}
	if ok, err := seal.Verify(); err != nil || !ok {
		return "", "", fmt.Errorf("open dm: seal signature invalid")
	}

	sealKey, err := recipient.sharedSecret(seal.Pubkey)
	if err != nil {
		return "", "", fmt.Errorf("open dm: derive seal shared secret: %w", err)
	}
	rumorJSON, err := crypto.Decrypt(seal.Content, sealKey)
	if err != nil {
		return "", "", fmt.Errorf("open dm: decrypt rumor: %w", err)
	}

	var rumor Event
	if err := json.Unmarshal([]byte(rumorJSON), &rumor); err != nil {
		return "", "", fmt.Errorf("open dm: unmarshal rumor: %w", err)
	}
	return rumor.Content, seal.Pubkey, nil
}

// Package nostr implements the gateway to the relay network: key
// management, event signing, gift-wrapped direct messages, and order-book
// publication.
package nostr

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"

	"github.com/btcsuite/btcd/btcec/v2"
	"github.com/btcsuite/btcd/btcec/v2/schnorr"
)

// KeyPair wraps a secp256k1 private key used both to sign Nostr events
// (BIP-340 Schnorr, per NIP-01) and to derive ECDH shared secrets for
// gift-wrap encryption (NIP-44/NIP-04 style).
type KeyPair struct {
	priv *btcec.PrivateKey
}

// GenerateKeyPair creates a new random identity, used to mint the
// per-message ephemeral keys the gift-wrap layer requires (NIP-59: every
// kind-1059 wrapper event is signed by a single-use key, never the
// daemon's own identity).
func GenerateKeyPair() (*KeyPair, error) {
	priv, err := btcec.NewPrivateKey()
	if err != nil {
		return nil, fmt.Errorf("generate nostr keypair: %w", err)
	}
	return &KeyPair{priv: priv}, nil
}

// KeyPairFromHex loads the daemon's long-lived identity from its 32-byte
// hex-encoded private key (config.DaemonConfig's nostr.secret_key_hex,
// passed in as plain hex exactly as configured).
func KeyPairFromHex(privateKeyHex string) (*KeyPair, error) {
	b, err := hex.DecodeString(privateKeyHex)
	if err != nil {
		return nil, fmt.Errorf("decode nostr private key: %w", err)
	}
	if len(b) != 32 {
		return nil, fmt.Errorf("nostr private key must be 32 bytes, got %d", len(b))
	}
	priv, _ := btcec.PrivKeyFromBytes(b)
	return &KeyPair{priv: priv}, nil
}

// PrivateKeyHex returns the 32-byte private scalar, hex-encoded.
func (k *KeyPair) PrivateKeyHex() string {
	return hex.EncodeToString(k.priv.Serialize())
}

// PublicKeyHex returns the 32-byte x-only public key, hex-encoded, which is
// how pubkeys are represented throughout the Nostr protocol (NIP-01).
func (k *KeyPair) PublicKeyHex() string {
	return hex.EncodeToString(schnorr.SerializePubKey(k.priv.PubKey()))
}

// sharedSecret computes the ECDH shared X coordinate with theirPubkeyHex
// and hashes it down to a 32-byte symmetric key, following the same
// construction NIP-04 direct messages use. The result feeds
// internal/crypto's AES-256-GCM helper as the gift-wrap symmetric cipher.
func (k *KeyPair) sharedSecret(theirPubkeyHex string) ([]byte, error) {
	pubBytes, err := hex.DecodeString(theirPubkeyHex)
	if err != nil {
		return nil, fmt.Errorf("decode peer pubkey: %w", err)
	}
	theirPub, err := schnorr.ParsePubKey(pubBytes)
	if err != nil {
		return nil, fmt.Errorf("parse peer pubkey: %w", err)
	}

	var point btcec.JacobianPoint
	theirPub.AsJacobian(&point)

	var result btcec.JacobianPoint
	btcec.ScalarMultNonConst(&k.priv.Key, &point, &result)
	result.ToAffine()

	x := result.X.Bytes()
	sum := sha256.Sum256(x[:])
	return sum[:], nil
}

package protocol

import (
	"encoding/json"
	"errors"
	"fmt"
)

var (
	// ErrMalformed means the bytes were not a well-formed envelope at all;
	// the gateway drops these silently rather than replying, since the
	// transport is untrusted.
	ErrMalformed = errors.New("malformed protocol message")

	// ErrVersionMismatch and ErrUnknownAction are structurally well-formed
	// but rejected; callers reply with a typed cant-do rather than dropping.
	ErrVersionMismatch = errors.New("unsupported protocol version")
	ErrUnknownAction   = errors.New("unknown protocol action")

	// ErrNoContent is returned by DecodeInto when content is absent, distinct
	// from a json.Unmarshal failure on content that IS present but wrong-shaped.
	ErrNoContent = errors.New("message has no content")
)

// Decode parses raw bytes (the Nostr rumor event's content field) into a
// Message. It always returns a non-nil Message when the envelope itself
// parses, even on ErrVersionMismatch/ErrUnknownAction, so the caller can
// still address a cant-do reply using the order id and sender pubkey.
func Decode(raw []byte) (*Message, error) {
	var env Envelope
	if err := json.Unmarshal(raw, &env); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformed, err)
	}
	msg := env.Order

	if msg.Version != ProtocolVersion {
		return &msg, fmt.Errorf("%w: got %d, want %d", ErrVersionMismatch, msg.Version, ProtocolVersion)
	}
	if !msg.Action.Valid() {
		return &msg, fmt.Errorf("%w: %q", ErrUnknownAction, msg.Action)
	}
	return &msg, nil
}

// Encode serializes a Message back into the envelope shape.
func Encode(msg *Message) ([]byte, error) {
	env := Envelope{Order: *msg}
	b, err := json.Marshal(env)
	if err != nil {
		return nil, fmt.Errorf("encode message: %w", err)
	}
	return b, nil
}

// NewMessage builds a Message with its content pre-encoded, for use by
// handlers constructing an outbound reply.
func NewMessage(action Action, orderID *string, requestID *string, content any) (*Message, error) {
	raw, err := EncodeContent(content)
	if err != nil {
		return nil, err
	}
	return &Message{
		Version:   ProtocolVersion,
		ID:        orderID,
		RequestID: requestID,
		Action:    action,
		Content:   raw,
	}, nil
}

// EncodeContent marshals one of the tagged content variants (or nil) into
// the envelope's content field.
func EncodeContent(v any) (json.RawMessage, error) {
	if v == nil {
		return json.RawMessage("null"), nil
	}
	b, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("encode content: %w", err)
	}
	return b, nil
}

// DecodeInto unmarshals a Message's content into the concrete variant the
// caller expects for the action at hand (the router/engine know which
// variant an action carries; the codec does not hardcode that mapping).
func DecodeInto(content json.RawMessage, target any) error {
	if len(content) == 0 || string(content) == "null" {
		return ErrNoContent
	}
	if err := json.Unmarshal(content, target); err != nil {
		return fmt.Errorf("%w: %v", ErrMalformed, err)
	}
	return nil
}

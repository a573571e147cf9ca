package phxsocket

import (
	"encoding/json"
	"fmt"
)

// Serializer handles encoding and decoding of the Phoenix wire envelope.
type Serializer struct{}

// NewSerializer creates a new serializer instance.
func NewSerializer() *Serializer {
	return &Serializer{}
}

// Encode encodes a message for transmission.
func (s *Serializer) Encode(msg *Message) ([]byte, error) {
	data, err := json.Marshal(msg)
	if err != nil {
		return nil, fmt.Errorf("failed to encode message: %w", err)
	}
	return data, nil
}

// Decode decodes a received frame. A failure here is scoped to the one
// frame; the caller drops it and keeps the connection alive.
func (s *Serializer) Decode(data []byte) (*Message, error) {
	if len(data) == 0 {
		return nil, fmt.Errorf("empty message")
	}

	msg := &Message{}
	if err := json.Unmarshal(data, msg); err != nil {
		return nil, fmt.Errorf("failed to decode message: %w", err)
	}

	if msg.Event == "" {
		return nil, fmt.Errorf("message has no event")
	}

	return msg, nil
}

package protocol

import (
	"encoding/json"
	"fmt"
)

// Encode wraps a payload in an Envelope and renders it as one JSON frame.
func Encode(msgType MessageType, payload any) ([]byte, error) {
	env := Envelope{Type: msgType}
	if payload != nil {
		body, err := json.Marshal(payload)
		if err != nil {
			return nil, fmt.Errorf("protocol: encode %s payload: %w", msgType, err)
		}
		env.Payload = body
	}
	return json.Marshal(env)
}

// Decode parses one frame off the stream. Only the message types the stream
// actually carries are accepted; anything else is a protocol violation.
func Decode(data []byte) (Envelope, error) {
	var env Envelope
	if err := json.Unmarshal(data, &env); err != nil {
		return Envelope{}, fmt.Errorf("protocol: decode frame: %w", err)
	}
	switch env.Type {
	case MessageTypeHello, MessageTypeStage:
		return env, nil
	case "":
		return Envelope{}, fmt.Errorf("protocol: frame has no type")
	default:
		return Envelope{}, fmt.Errorf("protocol: unknown message type %q", env.Type)
	}
}

// DecodePayload unpacks an envelope's payload into its concrete message.
func DecodePayload[T any](env Envelope) (T, error) {
	var v T
	if err := json.Unmarshal(env.Payload, &v); err != nil {
		return v, fmt.Errorf("protocol: decode %s payload: %w", env.Type, err)
	}
	return v, nil
}

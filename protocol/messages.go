// Package protocol defines the wire envelope and message payloads for the
// live event stream.
package protocol

import "encoding/json"

// MessageType discriminates envelope payloads.
type MessageType string

const (
	// MessageTypeHello is sent once to each client on connect.
	MessageTypeHello MessageType = "hello"
	// MessageTypeStage carries one pipeline stage completion.
	MessageTypeStage MessageType = "pipeline.stage"
)

// Envelope wraps every message on the event stream.
type Envelope struct {
	Type    MessageType     `json:"type"`
	Payload json.RawMessage `json:"payload,omitempty"`
}

// Hello announces the service to a newly connected client.
type Hello struct {
	Service string `json:"service"`
	Version string `json:"version"`
}

// StageEvent reports one completed pipeline stage for one request.
type StageEvent struct {
	RequestID  string  `json:"requestId"`
	UserID     string  `json:"userId"`
	Stage      string  `json:"stage"`
	DurationMs float64 `json:"durationMs"`
	// Error is the failure kind when the stage failed, empty otherwise.
	Error string `json:"error,omitempty"`
	// Fallback marks a reasoning stage whose failure was masked by the
	// fixed fallback text.
	Fallback  bool   `json:"fallback,omitempty"`
	Timestamp string `json:"timestamp"`
}

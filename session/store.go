// Package session holds per-user conversation state: a bounded, ordered
// history of exchanges with idle expiry. Sessions are exclusively owned by
// the store; callers always receive copies.
package session

import (
	"context"
	"time"
)

// Turn is one completed exchange. Immutable once created.
type Turn struct {
	// Input is the user's transcribed utterance.
	Input string `json:"input"`
	// Output is the assistant's reply.
	Output string `json:"output"`
	// Timestamp is milliseconds since epoch, non-decreasing within a session.
	Timestamp int64 `json:"timestamp"`
}

// Session is one user's conversation state.
type Session struct {
	UserID         string `json:"userId"`
	CreatedAt      int64  `json:"createdAt"`
	LastAccessedAt int64  `json:"lastAccessedAt"`
	Turns          []Turn `json:"conversation"`
}

// Store persists sessions keyed by an opaque, externally supplied user ID.
//
// Operations on different user IDs never interfere. Overlapping operations
// on the same user ID are not serialized: both runs read their own snapshot
// and the last write wins.
type Store interface {
	// Get returns a copy of the session for userID, creating an empty one
	// if none exists. LastAccessedAt is refreshed.
	Get(ctx context.Context, userID string) (*Session, error)

	// Append fetches-or-creates the session, pushes one turn stamped with
	// the current time, truncates to the most recent MaxTurns, and
	// refreshes LastAccessedAt. A failed append leaves the stored history
	// exactly as it was.
	Append(ctx context.Context, userID, input, output string) error

	// Sweep removes every session idle for longer than the configured
	// timeout. Safe to run concurrently with reads and writes.
	Sweep(ctx context.Context) error

	// Clear drops all sessions. Testing and administrative use only.
	Clear(ctx context.Context) error

	// Close stops background routines and releases resources.
	Close() error
}

// Config tunes session lifecycle policy.
type Config struct {
	// Timeout is the idle time after which a session is evicted.
	Timeout time.Duration
	// SweepInterval is the cadence of the background eviction pass. It is
	// independent of Timeout.
	SweepInterval time.Duration
	// MaxTurns caps conversation length; appending beyond it drops the
	// oldest turns.
	MaxTurns int
}

// DefaultConfig returns the standard session policy.
func DefaultConfig() Config {
	return Config{
		Timeout:       time.Hour,
		SweepInterval: 5 * time.Minute,
		MaxTurns:      20,
	}
}

// withDefaults fills zero-valued fields with the standard policy.
func (c Config) withDefaults() Config {
	def := DefaultConfig()
	if c.Timeout <= 0 {
		c.Timeout = def.Timeout
	}
	if c.SweepInterval <= 0 {
		c.SweepInterval = def.SweepInterval
	}
	if c.MaxTurns <= 0 {
		c.MaxTurns = def.MaxTurns
	}
	return c
}

package session

import (
	"context"
	"sync"
	"time"

	"rubberduck/core"
)

// MemoryStore is the default in-memory Store. A background goroutine sweeps
// idle sessions on a fixed interval until Close is called.
type MemoryStore struct {
	config Config
	logger *core.Logger

	mu       sync.RWMutex
	sessions map[string]*Session

	done      chan struct{}
	closeOnce sync.Once

	now func() time.Time
}

// NewMemoryStore creates an in-memory session store and starts its sweeper.
// Use DefaultConfig() to get a config with sensible defaults and override
// only what you need.
func NewMemoryStore(config Config, logger *core.Logger) *MemoryStore {
	if logger == nil {
		logger = core.GetLogger()
	}
	s := &MemoryStore{
		config:   config.withDefaults(),
		logger:   logger,
		sessions: make(map[string]*Session),
		done:     make(chan struct{}),
		now:      time.Now,
	}
	go s.sweepLoop()
	return s
}

// Get returns a copy of the session for userID, lazily creating it.
func (s *MemoryStore) Get(ctx context.Context, userID string) (*Session, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	sess := s.fetchOrCreateLocked(userID)
	sess.LastAccessedAt = s.now().UnixMilli()
	return copySession(sess), nil
}

// Append pushes one turn onto the session, dropping the oldest beyond the cap.
func (s *MemoryStore) Append(ctx context.Context, userID, input, output string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	nowMs := s.now().UnixMilli()
	sess := s.fetchOrCreateLocked(userID)
	sess.Turns = append(sess.Turns, Turn{Input: input, Output: output, Timestamp: nowMs})
	if over := len(sess.Turns) - s.config.MaxTurns; over > 0 {
		sess.Turns = append(sess.Turns[:0:0], sess.Turns[over:]...)
	}
	sess.LastAccessedAt = nowMs
	return nil
}

// Sweep evicts every session idle for longer than the configured timeout.
func (s *MemoryStore) Sweep(ctx context.Context) error {
	cutoff := s.now().Add(-s.config.Timeout).UnixMilli()

	s.mu.Lock()
	defer s.mu.Unlock()

	evicted := 0
	for userID, sess := range s.sessions {
		if sess.LastAccessedAt < cutoff {
			delete(s.sessions, userID)
			evicted++
		}
	}
	if evicted > 0 {
		s.logger.With(map[string]any{"evicted": evicted, "remaining": len(s.sessions)}).
			Debug("swept idle sessions")
	}
	return nil
}

// Clear drops all sessions.
func (s *MemoryStore) Clear(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sessions = make(map[string]*Session)
	return nil
}

// Close stops the sweeper. The store remains usable afterwards but no
// longer evicts on its own.
func (s *MemoryStore) Close() error {
	s.closeOnce.Do(func() { close(s.done) })
	return nil
}

// Len reports the number of live sessions.
func (s *MemoryStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.sessions)
}

func (s *MemoryStore) fetchOrCreateLocked(userID string) *Session {
	sess, ok := s.sessions[userID]
	if !ok {
		nowMs := s.now().UnixMilli()
		sess = &Session{UserID: userID, CreatedAt: nowMs, LastAccessedAt: nowMs}
		s.sessions[userID] = sess
	}
	return sess
}

func (s *MemoryStore) sweepLoop() {
	ticker := time.NewTicker(s.config.SweepInterval)
	defer ticker.Stop()
	for {
		select {
		case <-s.done:
			return
		case <-ticker.C:
			s.Sweep(context.Background())
		}
	}
}

// copySession returns a detached copy so callers never alias store-owned state.
func copySession(sess *Session) *Session {
	out := *sess
	out.Turns = append([]Turn(nil), sess.Turns...)
	return &out
}

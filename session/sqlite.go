package session

import (
	"context"
	"database/sql"
	"fmt"
	"sync"
	"time"

	_ "modernc.org/sqlite"

	"rubberduck/core"
)

const sqliteSchema = `
CREATE TABLE IF NOT EXISTS sessions (
	user_id          TEXT PRIMARY KEY,
	created_at       INTEGER NOT NULL,
	last_accessed_at INTEGER NOT NULL
);
CREATE TABLE IF NOT EXISTS turns (
	id        INTEGER PRIMARY KEY AUTOINCREMENT,
	user_id   TEXT NOT NULL REFERENCES sessions(user_id) ON DELETE CASCADE,
	input     TEXT NOT NULL,
	output    TEXT NOT NULL,
	timestamp INTEGER NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_turns_user ON turns(user_id, id);
`

// SQLiteStore is the pluggable persistent Store backend. Unlike MemoryStore,
// its operations can fail; a failed Append rolls back and leaves the stored
// history untouched.
type SQLiteStore struct {
	config Config
	logger *core.Logger
	db     *sql.DB

	done      chan struct{}
	closeOnce sync.Once

	now func() time.Time
}

// NewSQLiteStore opens (creating if needed) a SQLite-backed session store at
// path and starts its sweeper.
func NewSQLiteStore(path string, config Config, logger *core.Logger) (*SQLiteStore, error) {
	if logger == nil {
		logger = core.GetLogger()
	}

	// foreign_keys is per-connection in SQLite; setting it through the DSN
	// covers every connection the pool opens, so the turns cascade in the
	// schema is actually enforced.
	db, err := sql.Open("sqlite", path+"?_pragma=foreign_keys(1)")
	if err != nil {
		return nil, fmt.Errorf("session: open database: %w", err)
	}
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("session: database ping failed: %w", err)
	}
	if _, err := db.Exec(sqliteSchema); err != nil {
		db.Close()
		return nil, fmt.Errorf("session: create schema: %w", err)
	}

	s := &SQLiteStore{
		config: config.withDefaults(),
		logger: logger,
		db:     db,
		done:   make(chan struct{}),
		now:    time.Now,
	}
	go s.sweepLoop()
	return s, nil
}

// Get returns the session for userID, lazily creating its row.
func (s *SQLiteStore) Get(ctx context.Context, userID string) (*Session, error) {
	nowMs := s.now().UnixMilli()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("session: begin: %w", err)
	}
	defer tx.Rollback()

	sess, err := upsertSessionTx(tx, userID, nowMs)
	if err != nil {
		return nil, err
	}

	rows, err := tx.Query(
		"SELECT input, output, timestamp FROM turns WHERE user_id = ? ORDER BY id", userID)
	if err != nil {
		return nil, fmt.Errorf("session: query turns: %w", err)
	}
	defer rows.Close()
	for rows.Next() {
		var t Turn
		if err := rows.Scan(&t.Input, &t.Output, &t.Timestamp); err != nil {
			return nil, fmt.Errorf("session: scan turn: %w", err)
		}
		sess.Turns = append(sess.Turns, t)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("session: iterate turns: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("session: commit: %w", err)
	}
	return sess, nil
}

// Append writes one turn transactionally and trims history beyond the cap.
func (s *SQLiteStore) Append(ctx context.Context, userID, input, output string) error {
	nowMs := s.now().UnixMilli()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("session: begin: %w", err)
	}
	defer tx.Rollback()

	if _, err := upsertSessionTx(tx, userID, nowMs); err != nil {
		return err
	}
	if _, err := tx.Exec(
		"INSERT INTO turns (user_id, input, output, timestamp) VALUES (?, ?, ?, ?)",
		userID, input, output, nowMs); err != nil {
		return fmt.Errorf("session: insert turn: %w", err)
	}
	// Drop-oldest: keep only the most recent MaxTurns rows for this user.
	if _, err := tx.Exec(
		`DELETE FROM turns WHERE user_id = ? AND id NOT IN (
			SELECT id FROM turns WHERE user_id = ? ORDER BY id DESC LIMIT ?)`,
		userID, userID, s.config.MaxTurns); err != nil {
		return fmt.Errorf("session: trim turns: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("session: commit: %w", err)
	}
	return nil
}

// Sweep deletes every session idle for longer than the configured timeout.
// A single statement removes the session row and, via the cascade, its
// turns, so a concurrent touch of the same user either keeps the whole
// session or finds it fully gone. Never partially.
func (s *SQLiteStore) Sweep(ctx context.Context) error {
	cutoff := s.now().Add(-s.config.Timeout).UnixMilli()

	res, err := s.db.ExecContext(ctx,
		"DELETE FROM sessions WHERE last_accessed_at < ?", cutoff)
	if err != nil {
		return fmt.Errorf("session: sweep sessions: %w", err)
	}
	if n, err := res.RowsAffected(); err == nil && n > 0 {
		s.logger.With(map[string]any{"evicted": n}).Debug("swept idle sessions")
	}
	return nil
}

// Clear drops all sessions; the cascade takes their turns with them.
func (s *SQLiteStore) Clear(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, "DELETE FROM sessions"); err != nil {
		return fmt.Errorf("session: clear sessions: %w", err)
	}
	return nil
}

// Close stops the sweeper and closes the database.
func (s *SQLiteStore) Close() error {
	s.closeOnce.Do(func() { close(s.done) })
	return s.db.Close()
}

func (s *SQLiteStore) sweepLoop() {
	ticker := time.NewTicker(s.config.SweepInterval)
	defer ticker.Stop()
	for {
		select {
		case <-s.done:
			return
		case <-ticker.C:
			if err := s.Sweep(context.Background()); err != nil {
				s.logger.With(map[string]any{"error": err}).Warn("session sweep failed")
			}
		}
	}
}

// upsertSessionTx fetches-or-creates the session row and refreshes
// last_accessed_at, returning the session header without turns.
func upsertSessionTx(tx *sql.Tx, userID string, nowMs int64) (*Session, error) {
	sess := &Session{UserID: userID, LastAccessedAt: nowMs}
	err := tx.QueryRow(
		"SELECT created_at FROM sessions WHERE user_id = ?", userID).Scan(&sess.CreatedAt)
	switch {
	case err == sql.ErrNoRows:
		sess.CreatedAt = nowMs
		if _, err := tx.Exec(
			"INSERT INTO sessions (user_id, created_at, last_accessed_at) VALUES (?, ?, ?)",
			userID, nowMs, nowMs); err != nil {
			return nil, fmt.Errorf("session: insert session: %w", err)
		}
	case err != nil:
		return nil, fmt.Errorf("session: query session: %w", err)
	default:
		if _, err := tx.Exec(
			"UPDATE sessions SET last_accessed_at = ? WHERE user_id = ?",
			nowMs, userID); err != nil {
			return nil, fmt.Errorf("session: touch session: %w", err)
		}
	}
	return sess, nil
}

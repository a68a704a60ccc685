package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
	_ "modernc.org/sqlite"

	"github.com/peiban-ai/peiban/pkg/conversation"
)

// SQLiteStore is the canonical durable session store.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLiteStore creates/opens the session database at path.
func NewSQLiteStore(path string) (*SQLiteStore, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("create session db dir: %w", err)
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open sqlite db: %w", err)
	}
	// Single-process store. One shared connection avoids writer lock
	// contention with SQLite under concurrent goroutines.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	store := &SQLiteStore{db: db}
	if err := store.init(); err != nil {
		_ = db.Close()
		return nil, err
	}
	return store, nil
}

func (s *SQLiteStore) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

func (s *SQLiteStore) init() error {
	stmts := []string{
		`PRAGMA journal_mode=WAL;`,
		`PRAGMA synchronous=NORMAL;`,
		`PRAGMA temp_store=MEMORY;`,
		`PRAGMA busy_timeout=5000;`,
		`CREATE TABLE IF NOT EXISTS sessions (
			session_id TEXT PRIMARY KEY,
			created_at_ms INTEGER NOT NULL,
			updated_at_ms INTEGER NOT NULL,
			message_count INTEGER NOT NULL DEFAULT 0
		);`,
		`CREATE TABLE IF NOT EXISTS messages (
			id TEXT PRIMARY KEY,
			session_id TEXT NOT NULL,
			seq INTEGER NOT NULL,
			role TEXT NOT NULL,
			content TEXT NOT NULL,
			tags_json TEXT NOT NULL DEFAULT '{}',
			created_at_ms INTEGER NOT NULL,
			UNIQUE(session_id, seq)
		);`,
		`CREATE INDEX IF NOT EXISTS messages_session_idx ON messages(session_id, seq);`,
	}

	for _, stmt := range stmts {
		if _, err := s.db.Exec(stmt); err != nil {
			return fmt.Errorf("init sqlite schema failed on %q: %w", trimSQL(stmt), err)
		}
	}
	return nil
}

func trimSQL(sql string) string {
	line := strings.TrimSpace(sql)
	if len(line) > 96 {
		return line[:96] + "..."
	}
	return line
}

func nowMS() int64 { return time.Now().UnixMilli() }

func encodeTags(m map[string]string) string {
	if len(m) == 0 {
		return "{}"
	}
	b, err := json.Marshal(m)
	if err != nil {
		return "{}"
	}
	return string(b)
}

func decodeTags(raw string) map[string]string {
	if raw == "" || raw == "{}" {
		return nil
	}
	out := map[string]string{}
	if err := json.Unmarshal([]byte(raw), &out); err != nil {
		return nil
	}
	return out
}

func (s *SQLiteStore) Load(ctx context.Context, sessionID string) (*conversation.State, error) {
	if strings.TrimSpace(sessionID) == "" {
		return nil, fmt.Errorf("load session: empty session_id")
	}

	row := s.db.QueryRowContext(ctx, `SELECT session_id FROM sessions WHERE session_id = ?`, sessionID)
	var key string
	if err := row.Scan(&key); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("load session: %w", err)
	}

	rows, err := s.db.QueryContext(ctx, `
SELECT id, role, content, tags_json, created_at_ms
FROM messages
WHERE session_id = ?
ORDER BY seq`, sessionID)
	if err != nil {
		return nil, fmt.Errorf("load session messages: %w", err)
	}
	defer rows.Close()

	state := conversation.NewState(sessionID)
	for rows.Next() {
		var msg conversation.Message
		var role string
		var tagsRaw string
		var createdMS int64
		if err := rows.Scan(&msg.ID, &role, &msg.Content, &tagsRaw, &createdMS); err != nil {
			return nil, fmt.Errorf("scan message: %w", err)
		}
		msg.Role = conversation.Role(role)
		msg.Tags = decodeTags(tagsRaw)
		msg.CreatedAt = time.UnixMilli(createdMS)
		state.Append(msg)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate messages: %w", err)
	}
	return state, nil
}

// Save appends the tail of state.History that is not yet on disk, in one
// transaction. History is append-only, so the delta is everything past the
// stored message count; the commit is the turn boundary a concurrent reader
// may observe.
func (s *SQLiteStore) Save(ctx context.Context, state *conversation.State) error {
	if state == nil || strings.TrimSpace(state.SessionID) == "" {
		return fmt.Errorf("save session: empty session_id")
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("save session begin tx: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	now := nowMS()
	if _, err := tx.ExecContext(ctx, `
INSERT INTO sessions(session_id, created_at_ms, updated_at_ms, message_count)
VALUES(?, ?, ?, 0)
ON CONFLICT(session_id) DO UPDATE SET updated_at_ms = excluded.updated_at_ms`,
		state.SessionID, now, now); err != nil {
		return fmt.Errorf("save session upsert: %w", err)
	}

	var stored int
	row := tx.QueryRowContext(ctx, `SELECT COUNT(*) FROM messages WHERE session_id = ?`, state.SessionID)
	if err := row.Scan(&stored); err != nil {
		return fmt.Errorf("save session count: %w", err)
	}
	if stored > len(state.History) {
		return fmt.Errorf("save session: stored history (%d) longer than state (%d)", stored, len(state.History))
	}

	for seq := stored; seq < len(state.History); seq++ {
		msg := state.History[seq]
		if msg.ID == "" {
			msg.ID = uuid.NewString()
		}
		if msg.CreatedAt.IsZero() {
			msg.CreatedAt = time.Now()
		}
		if _, err := tx.ExecContext(ctx, `
INSERT INTO messages(id, session_id, seq, role, content, tags_json, created_at_ms)
VALUES(?, ?, ?, ?, ?, ?, ?)`,
			msg.ID, state.SessionID, seq, string(msg.Role), msg.Content, encodeTags(msg.Tags), msg.CreatedAt.UnixMilli()); err != nil {
			return fmt.Errorf("save session insert message: %w", err)
		}
	}

	if _, err := tx.ExecContext(ctx, `
UPDATE sessions SET message_count = ?, updated_at_ms = ? WHERE session_id = ?`,
		len(state.History), now, state.SessionID); err != nil {
		return fmt.Errorf("save session update count: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("save session commit: %w", err)
	}
	return nil
}

func (s *SQLiteStore) ListSessions(ctx context.Context) ([]string, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT session_id FROM sessions ORDER BY updated_at_ms DESC`)
	if err != nil {
		return nil, fmt.Errorf("list sessions: %w", err)
	}
	defer rows.Close()

	out := []string{}
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("scan session id: %w", err)
		}
		out = append(out, id)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate sessions: %w", err)
	}
	return out, nil
}

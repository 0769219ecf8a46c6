// Package session persists conversations, their turns, and the invocation
// audit trail in SQLite.
package session

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite"

	"prizmagent/internal/invoke"
)

// Conversation is one chat session on a channel.
type Conversation struct {
	ID        string
	Title     string
	Channel   string
	CreatedAt time.Time
	UpdatedAt time.Time
}

// Turn is one message within a conversation.
type Turn struct {
	ID             int64
	ConversationID string
	Role           string // "user" | "assistant" | "tool"
	Content        string
	Target         string // tool/chain name for tool turns
	CreatedAt      time.Time
}

// InvocationRow is one persisted invocation audit record.
type InvocationRow struct {
	ID             int64
	InvocationID   string
	ConversationID string
	Target         string
	Fingerprint    string
	Status         string
	Error          string
	Cached         bool
	ElapsedMS      int64
	CreatedAt      time.Time
}

// Store is the SQLite-backed session store. It doubles as the invoker's
// audit recorder.
type Store struct {
	db     *sql.DB
	logger *slog.Logger
}

var _ invoke.Recorder = (*Store)(nil)

func NewStore(dbPath string, logger *slog.Logger) (*Store, error) {
	dir := filepath.Dir(dbPath)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("cannot create database directory %s: %w", dir, err)
	}

	db, err := sql.Open("sqlite", dbPath+"?_journal_mode=WAL&_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("cannot open database: %w", err)
	}

	// Single connection: SQLite serializes writes anyway.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	store := &Store{db: db, logger: logger}

	if err := store.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("database migration failed: %w", err)
	}

	return store, nil
}

func (s *Store) migrate() error {
	schema := `
	CREATE TABLE IF NOT EXISTS conversations (
		id          TEXT PRIMARY KEY,
		title       TEXT,
		channel     TEXT,
		created_at  DATETIME DEFAULT CURRENT_TIMESTAMP,
		updated_at  DATETIME DEFAULT CURRENT_TIMESTAMP
	);

	CREATE TABLE IF NOT EXISTS turns (
		id              INTEGER PRIMARY KEY AUTOINCREMENT,
		conversation_id TEXT NOT NULL REFERENCES conversations(id) ON DELETE CASCADE,
		role            TEXT NOT NULL,
		content         TEXT,
		target          TEXT,
		created_at      DATETIME DEFAULT CURRENT_TIMESTAMP
	);
	CREATE INDEX IF NOT EXISTS idx_turns_conv ON turns(conversation_id, created_at);

	CREATE TABLE IF NOT EXISTS invocations (
		id              INTEGER PRIMARY KEY AUTOINCREMENT,
		invocation_id   TEXT NOT NULL,
		conversation_id TEXT,
		target          TEXT,
		fingerprint     TEXT,
		status          TEXT NOT NULL,
		error           TEXT,
		cached          INTEGER DEFAULT 0,
		elapsed_ms      INTEGER DEFAULT 0,
		created_at      DATETIME DEFAULT CURRENT_TIMESTAMP
	);
	CREATE INDEX IF NOT EXISTS idx_invocations_conv ON invocations(conversation_id, created_at);
	CREATE INDEX IF NOT EXISTS idx_invocations_fp ON invocations(fingerprint);
	`

	_, err := s.db.Exec(schema)
	return err
}

func (s *Store) CreateConversation(ctx context.Context, conv Conversation) error {
	now := time.Now()
	if conv.CreatedAt.IsZero() {
		conv.CreatedAt = now
	}
	if conv.UpdatedAt.IsZero() {
		conv.UpdatedAt = now
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT OR IGNORE INTO conversations (id, title, channel, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?)`,
		conv.ID, conv.Title, conv.Channel, conv.CreatedAt, conv.UpdatedAt,
	)
	return err
}

func (s *Store) GetConversation(ctx context.Context, id string) (*Conversation, error) {
	var conv Conversation
	err := s.db.QueryRowContext(ctx,
		`SELECT id, title, channel, created_at, updated_at FROM conversations WHERE id = ?`, id,
	).Scan(&conv.ID, &conv.Title, &conv.Channel, &conv.CreatedAt, &conv.UpdatedAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &conv, nil
}

func (s *Store) ListConversations(ctx context.Context, limit int) ([]Conversation, error) {
	if limit <= 0 {
		limit = 20
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, title, channel, created_at, updated_at
		 FROM conversations ORDER BY updated_at DESC LIMIT ?`, limit,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var convs []Conversation
	for rows.Next() {
		var c Conversation
		if err := rows.Scan(&c.ID, &c.Title, &c.Channel, &c.CreatedAt, &c.UpdatedAt); err != nil {
			return nil, err
		}
		convs = append(convs, c)
	}
	return convs, rows.Err()
}

func (s *Store) AddTurn(ctx context.Context, turn Turn) error {
	now := time.Now()
	if turn.CreatedAt.IsZero() {
		turn.CreatedAt = now
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO turns (conversation_id, role, content, target, created_at)
		 VALUES (?, ?, ?, ?, ?)`,
		turn.ConversationID, turn.Role, turn.Content, turn.Target, turn.CreatedAt,
	)
	if err != nil {
		return err
	}

	_, _ = s.db.ExecContext(ctx,
		`UPDATE conversations SET updated_at = ? WHERE id = ?`, now, turn.ConversationID,
	)
	return nil
}

// GetTurns returns the last limit turns of a conversation in chronological
// order.
func (s *Store) GetTurns(ctx context.Context, convID string, limit int) ([]Turn, error) {
	if limit <= 0 {
		limit = 100
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, conversation_id, role, content, target, created_at
		 FROM turns WHERE conversation_id = ?
		 ORDER BY created_at DESC, id DESC LIMIT ?`, convID, limit,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var turns []Turn
	for rows.Next() {
		var t Turn
		var target sql.NullString
		if err := rows.Scan(&t.ID, &t.ConversationID, &t.Role, &t.Content, &target, &t.CreatedAt); err != nil {
			return nil, err
		}
		t.Target = target.String
		turns = append(turns, t)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	// Reverse to chronological order.
	for i, j := 0, len(turns)-1; i < j; i, j = i+1, j-1 {
		turns[i], turns[j] = turns[j], turns[i]
	}
	return turns, nil
}

// RecordInvocation implements invoke.Recorder. Persistence failures are
// logged, never surfaced: the audit trail must not break invocations.
func (s *Store) RecordInvocation(ctx context.Context, rec invoke.Record) {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO invocations (invocation_id, conversation_id, target, fingerprint, status, error, cached, elapsed_ms)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		rec.InvocationID, rec.ConversationID, rec.Target, rec.Fingerprint,
		string(rec.Status), rec.Error, rec.Cached, rec.Elapsed.Milliseconds(),
	)
	if err != nil {
		s.logger.Warn("cannot record invocation", "invocation", rec.InvocationID, "err", err)
	}
}

// ListInvocations returns the most recent invocation records for a
// conversation, newest first.
func (s *Store) ListInvocations(ctx context.Context, convID string, limit int) ([]InvocationRow, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, invocation_id, conversation_id, target, fingerprint, status, error, cached, elapsed_ms, created_at
		 FROM invocations WHERE conversation_id = ?
		 ORDER BY created_at DESC, id DESC LIMIT ?`, convID, limit,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []InvocationRow
	for rows.Next() {
		var r InvocationRow
		var convID, target, fp, errMsg sql.NullString
		if err := rows.Scan(&r.ID, &r.InvocationID, &convID, &target, &fp,
			&r.Status, &errMsg, &r.Cached, &r.ElapsedMS, &r.CreatedAt); err != nil {
			return nil, err
		}
		r.ConversationID = convID.String
		r.Target = target.String
		r.Fingerprint = fp.String
		r.Error = errMsg.String
		out = append(out, r)
	}
	return out, rows.Err()
}

// Prune deletes conversations idle for longer than retentionDays along with
// their turns, and old invocation records.
func (s *Store) Prune(ctx context.Context, retentionDays int) error {
	if retentionDays <= 0 {
		return nil
	}
	cutoff := time.Now().AddDate(0, 0, -retentionDays)

	if _, err := s.db.ExecContext(ctx,
		`DELETE FROM turns WHERE conversation_id IN
		   (SELECT id FROM conversations WHERE updated_at < ?)`, cutoff); err != nil {
		return err
	}
	if _, err := s.db.ExecContext(ctx,
		`DELETE FROM conversations WHERE updated_at < ?`, cutoff); err != nil {
		return err
	}
	_, err := s.db.ExecContext(ctx,
		`DELETE FROM invocations WHERE created_at < ?`, cutoff)
	return err
}

func (s *Store) Close() error {
	return s.db.Close()
}

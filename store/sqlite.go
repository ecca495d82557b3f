package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"github.com/signoffhq/signoff/domain"
)

// SQLiteStore implements Store using SQLite.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLiteStore creates a new SQLite store.
func NewSQLiteStore(dsn string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite3", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// Enable foreign keys
	if _, err := db.Exec("PRAGMA foreign_keys = ON"); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to enable foreign keys: %w", err)
	}

	store := &SQLiteStore{db: db}
	if err := store.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to migrate database: %w", err)
	}

	return store, nil
}

// migrate runs database migrations.
func (s *SQLiteStore) migrate() error {
	migrations := []string{
		`CREATE TABLE IF NOT EXISTS conversations (
			conversation_id TEXT PRIMARY KEY,
			user_id TEXT NOT NULL,
			created_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
		)`,
		`CREATE TABLE IF NOT EXISTS messages (
			message_id TEXT PRIMARY KEY,
			conversation_id TEXT NOT NULL,
			role TEXT NOT NULL,
			content TEXT NOT NULL,
			created_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
			FOREIGN KEY (conversation_id) REFERENCES conversations(conversation_id)
		)`,
		`CREATE INDEX IF NOT EXISTS idx_messages_conversation ON messages(conversation_id, created_at)`,
		`CREATE TABLE IF NOT EXISTS proposals (
			proposal_id TEXT PRIMARY KEY,
			conversation_id TEXT NOT NULL,
			message_id TEXT NOT NULL,
			tool_name TEXT NOT NULL,
			arguments TEXT NOT NULL,
			description TEXT NOT NULL,
			preview TEXT,
			state TEXT NOT NULL,
			idempotency_key TEXT NOT NULL UNIQUE,
			result TEXT,
			result_url TEXT,
			error TEXT,
			created_at DATETIME NOT NULL,
			updated_at DATETIME NOT NULL,
			FOREIGN KEY (conversation_id) REFERENCES conversations(conversation_id)
		)`,
		`CREATE INDEX IF NOT EXISTS idx_proposals_conversation ON proposals(conversation_id, created_at)`,
		`CREATE TABLE IF NOT EXISTS events (
			event_id TEXT PRIMARY KEY,
			conversation_id TEXT NOT NULL,
			ts INTEGER NOT NULL,
			type TEXT NOT NULL,
			payload TEXT,
			FOREIGN KEY (conversation_id) REFERENCES conversations(conversation_id)
		)`,
		`CREATE INDEX IF NOT EXISTS idx_events_conversation ON events(conversation_id, ts)`,
	}

	for _, m := range migrations {
		if _, err := s.db.Exec(m); err != nil {
			return fmt.Errorf("migration failed: %w\n%s", err, m)
		}
	}

	return nil
}

// Close closes the database connection.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

// CreateConversation creates a new conversation.
func (s *SQLiteStore) CreateConversation(ctx context.Context, conv *domain.Conversation) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO conversations (conversation_id, user_id, created_at) VALUES (?, ?, ?)`,
		conv.ConversationID, conv.UserID, conv.CreatedAt)
	return err
}

// GetConversation retrieves a conversation by ID.
func (s *SQLiteStore) GetConversation(ctx context.Context, conversationID string) (*domain.Conversation, error) {
	var conv domain.Conversation
	err := s.db.QueryRowContext(ctx,
		`SELECT conversation_id, user_id, created_at FROM conversations WHERE conversation_id = ?`,
		conversationID).Scan(&conv.ConversationID, &conv.UserID, &conv.CreatedAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &conv, nil
}

// GetOrCreateConversation gets an existing conversation or creates a new one.
func (s *SQLiteStore) GetOrCreateConversation(ctx context.Context, conversationID, userID string) (*domain.Conversation, error) {
	conv, err := s.GetConversation(ctx, conversationID)
	if err != nil {
		return nil, err
	}
	if conv != nil {
		return conv, nil
	}

	conv = &domain.Conversation{
		ConversationID: conversationID,
		UserID:         userID,
		CreatedAt:      time.Now(),
	}
	if err := s.CreateConversation(ctx, conv); err != nil {
		return nil, err
	}
	return conv, nil
}

// CreateMessage creates a new message.
func (s *SQLiteStore) CreateMessage(ctx context.Context, msg *domain.ChatMessage) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO messages (message_id, conversation_id, role, content, created_at) VALUES (?, ?, ?, ?, ?)`,
		msg.MessageID, msg.ConversationID, msg.Role, msg.Content, msg.CreatedAt)
	return err
}

// GetMessages retrieves messages for a conversation in chronological order.
func (s *SQLiteStore) GetMessages(ctx context.Context, conversationID string, limit int) ([]domain.ChatMessage, error) {
	if limit <= 0 {
		limit = 100
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT message_id, conversation_id, role, content, created_at FROM messages
		 WHERE conversation_id = ? ORDER BY created_at ASC, message_id ASC LIMIT ?`,
		conversationID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var messages []domain.ChatMessage
	for rows.Next() {
		var msg domain.ChatMessage
		if err := rows.Scan(&msg.MessageID, &msg.ConversationID, &msg.Role, &msg.Content, &msg.CreatedAt); err != nil {
			return nil, err
		}
		messages = append(messages, msg)
	}
	return messages, rows.Err()
}

// CreateProposal persists a new proposal.
func (s *SQLiteStore) CreateProposal(ctx context.Context, p *domain.ActionProposal) error {
	preview, err := json.Marshal(p.Preview)
	if err != nil {
		return fmt.Errorf("failed to marshal preview: %w", err)
	}
	_, err = s.db.ExecContext(ctx,
		`INSERT INTO proposals (proposal_id, conversation_id, message_id, tool_name, arguments,
			description, preview, state, idempotency_key, result, result_url, error, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		p.ProposalID, p.ConversationID, p.MessageID, p.ToolName, string(p.Arguments),
		p.Description, string(preview), p.State, p.IdempotencyKey,
		nullString(string(p.Result)), nullString(p.ResultURL), nullString(p.Error),
		p.CreatedAt, p.UpdatedAt)
	return err
}

// GetProposal retrieves a proposal by ID.
func (s *SQLiteStore) GetProposal(ctx context.Context, proposalID string) (*domain.ActionProposal, error) {
	row := s.db.QueryRowContext(ctx, selectProposal+` WHERE proposal_id = ?`, proposalID)
	return scanProposal(row)
}

// GetProposalByIdempotencyKey retrieves a proposal by its idempotency key.
func (s *SQLiteStore) GetProposalByIdempotencyKey(ctx context.Context, key string) (*domain.ActionProposal, error) {
	row := s.db.QueryRowContext(ctx, selectProposal+` WHERE idempotency_key = ?`, key)
	return scanProposal(row)
}

// ListProposals retrieves all proposals for a conversation, oldest first.
func (s *SQLiteStore) ListProposals(ctx context.Context, conversationID string) ([]domain.ActionProposal, error) {
	rows, err := s.db.QueryContext(ctx,
		selectProposal+` WHERE conversation_id = ? ORDER BY created_at ASC, proposal_id ASC`,
		conversationID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var proposals []domain.ActionProposal
	for rows.Next() {
		p, err := scanProposal(rows)
		if err != nil {
			return nil, err
		}
		proposals = append(proposals, *p)
	}
	return proposals, rows.Err()
}

// TransitionProposal performs a compare-and-set state update.
func (s *SQLiteStore) TransitionProposal(ctx context.Context, proposalID string, from, to domain.ActionState) (bool, error) {
	res, err := s.db.ExecContext(ctx,
		`UPDATE proposals SET state = ?, updated_at = ? WHERE proposal_id = ? AND state = ?`,
		to, time.Now(), proposalID, from)
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

// FinishProposal records the outcome of an execution attempt.
func (s *SQLiteStore) FinishProposal(ctx context.Context, proposalID string, state domain.ActionState, result json.RawMessage, resultURL, errMsg string) error {
	_, err := s.db.ExecContext(ctx,
		`UPDATE proposals SET state = ?, result = ?, result_url = ?, error = ?, updated_at = ? WHERE proposal_id = ?`,
		state, nullString(string(result)), nullString(resultURL), nullString(errMsg), time.Now(), proposalID)
	return err
}

// CreateEvent creates a new event.
func (s *SQLiteStore) CreateEvent(ctx context.Context, event *domain.Event) error {
	payload := sql.NullString{}
	if len(event.Payload) > 0 {
		payload = sql.NullString{String: string(event.Payload), Valid: true}
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO events (event_id, conversation_id, ts, type, payload) VALUES (?, ?, ?, ?, ?)`,
		event.EventID, event.ConversationID, event.Ts, event.Type, payload)
	return err
}

// GetEvents retrieves events for a conversation with optional filtering.
func (s *SQLiteStore) GetEvents(ctx context.Context, conversationID string, afterTs int64, types []string, limit int) ([]domain.Event, error) {
	if limit <= 0 {
		limit = 100
	}

	query := `SELECT event_id, conversation_id, ts, type, payload FROM events WHERE conversation_id = ? AND ts > ?`
	args := []interface{}{conversationID, afterTs}

	if len(types) > 0 {
		placeholders := make([]string, len(types))
		for i, t := range types {
			placeholders[i] = "?"
			args = append(args, t)
		}
		query += ` AND type IN (` + strings.Join(placeholders, ",") + `)`
	}

	query += ` ORDER BY ts ASC, event_id ASC LIMIT ?`
	args = append(args, limit)

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var events []domain.Event
	for rows.Next() {
		var event domain.Event
		var payload sql.NullString
		if err := rows.Scan(&event.EventID, &event.ConversationID, &event.Ts, &event.Type, &payload); err != nil {
			return nil, err
		}
		if payload.Valid {
			event.Payload = json.RawMessage(payload.String)
		}
		events = append(events, event)
	}
	return events, rows.Err()
}

const selectProposal = `SELECT proposal_id, conversation_id, message_id, tool_name, arguments,
	description, preview, state, idempotency_key, result, result_url, error, created_at, updated_at
	FROM proposals`

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanProposal(row rowScanner) (*domain.ActionProposal, error) {
	var p domain.ActionProposal
	var arguments string
	var preview, result, resultURL, errMsg sql.NullString
	err := row.Scan(&p.ProposalID, &p.ConversationID, &p.MessageID, &p.ToolName, &arguments,
		&p.Description, &preview, &p.State, &p.IdempotencyKey, &result, &resultURL, &errMsg,
		&p.CreatedAt, &p.UpdatedAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	p.Arguments = json.RawMessage(arguments)
	if preview.Valid && preview.String != "" && preview.String != "null" {
		if err := json.Unmarshal([]byte(preview.String), &p.Preview); err != nil {
			return nil, fmt.Errorf("failed to unmarshal preview: %w", err)
		}
	}
	if result.Valid {
		p.Result = json.RawMessage(result.String)
	}
	if resultURL.Valid {
		p.ResultURL = resultURL.String
	}
	if errMsg.Valid {
		p.Error = errMsg.String
	}
	return &p, nil
}

func nullString(s string) sql.NullString {
	if s == "" {
		return sql.NullString{}
	}
	return sql.NullString{String: s, Valid: true}
}

// Package store persists conversations and messages in PostgreSQL. The
// streaming pipeline appends a placeholder message when a stream starts and
// later finalizes or discards it; everything else is plain CRUD.
package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/wcallahan/searchai/internal/log"
)

// ErrNotFound indicates the requested row does not exist.
var ErrNotFound = errors.New("store: not found")

// Conversation is one chat thread.
type Conversation struct {
	ID        uuid.UUID `json:"id"`
	Title     string    `json:"title"`
	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}

// Message is one turn within a conversation. IsStreaming marks a placeholder
// whose content is still arriving; finalized messages always carry it false.
type Message struct {
	ID             uuid.UUID `json:"id"`
	ConversationID uuid.UUID `json:"conversationId"`
	Role           string    `json:"role"`
	Content        string    `json:"content"`
	Reasoning      string    `json:"reasoning,omitempty"`
	Provider       string    `json:"provider,omitempty"`
	Model          string    `json:"model,omitempty"`
	IsStreaming    bool      `json:"isStreaming"`
	CreatedAt      time.Time `json:"createdAt"`
}

// Store wraps a pgx connection pool.
type Store struct {
	pool   *pgxpool.Pool
	logger log.Logger
}

// New connects to the database and verifies the connection.
func New(ctx context.Context, databaseURL string, logger log.Logger) (*Store, error) {
	if logger == nil {
		logger = log.NewNop()
	}
	pool, err := pgxpool.New(ctx, databaseURL)
	if err != nil {
		return nil, fmt.Errorf("create pool: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}
	return &Store{pool: pool, logger: logger}, nil
}

// NewWithPool wraps an existing pool, used by tests.
func NewWithPool(pool *pgxpool.Pool, logger log.Logger) *Store {
	if logger == nil {
		logger = log.NewNop()
	}
	return &Store{pool: pool, logger: logger}
}

// Close releases the connection pool.
func (s *Store) Close() {
	s.pool.Close()
}

// Ping verifies database connectivity, used by the readiness endpoint.
func (s *Store) Ping(ctx context.Context) error {
	return s.pool.Ping(ctx)
}

// CreateConversation inserts a new conversation.
func (s *Store) CreateConversation(ctx context.Context, title string) (*Conversation, error) {
	var c Conversation
	err := s.pool.QueryRow(ctx, `
		INSERT INTO conversations (id, title)
		VALUES ($1, $2)
		RETURNING id, title, created_at, updated_at`,
		uuid.New(), title,
	).Scan(&c.ID, &c.Title, &c.CreatedAt, &c.UpdatedAt)
	if err != nil {
		return nil, fmt.Errorf("create conversation: %w", err)
	}
	return &c, nil
}

// GetConversation fetches one conversation by id.
func (s *Store) GetConversation(ctx context.Context, id uuid.UUID) (*Conversation, error) {
	var c Conversation
	err := s.pool.QueryRow(ctx, `
		SELECT id, title, created_at, updated_at
		FROM conversations
		WHERE id = $1`, id,
	).Scan(&c.ID, &c.Title, &c.CreatedAt, &c.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get conversation: %w", err)
	}
	return &c, nil
}

// ListConversations returns conversations newest-first.
func (s *Store) ListConversations(ctx context.Context, limit int) ([]Conversation, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := s.pool.Query(ctx, `
		SELECT id, title, created_at, updated_at
		FROM conversations
		ORDER BY updated_at DESC
		LIMIT $1`, limit)
	if err != nil {
		return nil, fmt.Errorf("list conversations: %w", err)
	}
	defer rows.Close()

	var out []Conversation
	for rows.Next() {
		var c Conversation
		if err := rows.Scan(&c.ID, &c.Title, &c.CreatedAt, &c.UpdatedAt); err != nil {
			return nil, fmt.Errorf("scan conversation: %w", err)
		}
		out = append(out, c)
	}
	return out, rows.Err()
}

// DeleteConversation removes a conversation and its messages.
func (s *Store) DeleteConversation(ctx context.Context, id uuid.UUID) error {
	tag, err := s.pool.Exec(ctx, `DELETE FROM conversations WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("delete conversation: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// ListMessages returns a conversation's messages oldest-first.
func (s *Store) ListMessages(ctx context.Context, conversationID uuid.UUID) ([]Message, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT id, conversation_id, role, content, reasoning, provider, model, is_streaming, created_at
		FROM messages
		WHERE conversation_id = $1
		ORDER BY created_at ASC`, conversationID)
	if err != nil {
		return nil, fmt.Errorf("list messages: %w", err)
	}
	defer rows.Close()

	var out []Message
	for rows.Next() {
		var m Message
		if err := rows.Scan(&m.ID, &m.ConversationID, &m.Role, &m.Content, &m.Reasoning,
			&m.Provider, &m.Model, &m.IsStreaming, &m.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan message: %w", err)
		}
		out = append(out, m)
	}
	return out, rows.Err()
}

// AppendMessage inserts a complete, non-streaming message and touches the
// conversation's updated_at.
func (s *Store) AppendMessage(ctx context.Context, m Message) (*Message, error) {
	m.ID = uuid.New()
	err := pgx.BeginFunc(ctx, s.pool, func(tx pgx.Tx) error {
		if err := tx.QueryRow(ctx, `
			INSERT INTO messages (id, conversation_id, role, content, reasoning, provider, model, is_streaming)
			VALUES ($1, $2, $3, $4, $5, $6, $7, false)
			RETURNING created_at`,
			m.ID, m.ConversationID, m.Role, m.Content, m.Reasoning, m.Provider, m.Model,
		).Scan(&m.CreatedAt); err != nil {
			return err
		}
		_, err := tx.Exec(ctx, `UPDATE conversations SET updated_at = now() WHERE id = $1`, m.ConversationID)
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("append message: %w", err)
	}
	return &m, nil
}

// BeginStreaming inserts an empty assistant placeholder with is_streaming
// set, returning its id for later finalization.
func (s *Store) BeginStreaming(ctx context.Context, conversationID uuid.UUID) (uuid.UUID, error) {
	id := uuid.New()
	_, err := s.pool.Exec(ctx, `
		INSERT INTO messages (id, conversation_id, role, content, is_streaming)
		VALUES ($1, $2, 'assistant', '', true)`,
		id, conversationID)
	if err != nil {
		return uuid.Nil, fmt.Errorf("begin streaming: %w", err)
	}
	return id, nil
}

// FinishStreaming fills in a placeholder's final content and clears its
// streaming flag.
func (s *Store) FinishStreaming(ctx context.Context, messageID uuid.UUID, content, reasoning, provider, model string) error {
	tag, err := s.pool.Exec(ctx, `
		UPDATE messages
		SET content = $2, reasoning = $3, provider = $4, model = $5, is_streaming = false
		WHERE id = $1 AND is_streaming`,
		messageID, content, reasoning, provider, model)
	if err != nil {
		return fmt.Errorf("finish streaming: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// DiscardStreaming deletes a placeholder that never received content, such
// as after an abort before the first chunk.
func (s *Store) DiscardStreaming(ctx context.Context, messageID uuid.UUID) error {
	_, err := s.pool.Exec(ctx, `DELETE FROM messages WHERE id = $1 AND is_streaming`, messageID)
	if err != nil {
		return fmt.Errorf("discard streaming: %w", err)
	}
	return nil
}

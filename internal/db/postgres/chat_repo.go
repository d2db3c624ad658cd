package postgres

import (
	"context"
	"database/sql"
	"fmt"

	"taskchat/internal/core/chats"
)

type postgresChatRepo struct {
	db *sql.DB
}

// NewChatRepository creates a new PostgreSQL chat repository
func NewChatRepository(db *sql.DB) chats.ChatRepository {
	return &postgresChatRepo{db: db}
}

// Create inserts a new chat into the chats table
func (r *postgresChatRepo) Create(ctx context.Context, chat *chats.Chat) (*chats.Chat, error) {
	query := `
		INSERT INTO chats (id, session_id, title)
		VALUES ($1, $2, $3)
		RETURNING id, session_id, title, created_at, updated_at`

	err := r.db.QueryRowContext(ctx, query, chat.ID, chat.SessionID, chat.Title).
		Scan(&chat.ID, &chat.SessionID, &chat.Title, &chat.CreatedAt, &chat.UpdatedAt)
	if err != nil {
		return nil, fmt.Errorf("failed to create chat: %w", err)
	}

	return chat, nil
}

// GetByID retrieves a chat by its ID
func (r *postgresChatRepo) GetByID(ctx context.Context, id string) (*chats.Chat, error) {
	chat := &chats.Chat{}
	query := `SELECT id, session_id, title, created_at, updated_at FROM chats WHERE id = $1`

	err := r.db.QueryRowContext(ctx, query, id).
		Scan(&chat.ID, &chat.SessionID, &chat.Title, &chat.CreatedAt, &chat.UpdatedAt)

	if err == sql.ErrNoRows {
		return nil, chats.ErrChatNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get chat: %w", err)
	}

	return chat, nil
}

// ListBySession retrieves a session's chats ordered by recency
func (r *postgresChatRepo) ListBySession(ctx context.Context, sessionID string, limit, offset int) ([]*chats.Chat, error) {
	query := `
		SELECT id, session_id, title, created_at, updated_at
		FROM chats
		WHERE session_id = $1
		ORDER BY updated_at DESC
		LIMIT $2 OFFSET $3`

	rows, err := r.db.QueryContext(ctx, query, sessionID, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("failed to list chats: %w", err)
	}
	defer rows.Close()

	result := make([]*chats.Chat, 0)
	for rows.Next() {
		chat := &chats.Chat{}
		if err := rows.Scan(&chat.ID, &chat.SessionID, &chat.Title, &chat.CreatedAt, &chat.UpdatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan chat: %w", err)
		}
		result = append(result, chat)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate chats: %w", err)
	}

	return result, nil
}

// Delete removes a chat; messages go with it via ON DELETE CASCADE
func (r *postgresChatRepo) Delete(ctx context.Context, id string) error {
	result, err := r.db.ExecContext(ctx, `DELETE FROM chats WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("failed to delete chat: %w", err)
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to check delete result: %w", err)
	}
	if affected == 0 {
		return chats.ErrChatNotFound
	}

	return nil
}

// UpdateTitle renames a chat
func (r *postgresChatRepo) UpdateTitle(ctx context.Context, id, title string) (*chats.Chat, error) {
	chat := &chats.Chat{}
	query := `
		UPDATE chats
		SET title = $2, updated_at = NOW()
		WHERE id = $1
		RETURNING id, session_id, title, created_at, updated_at`

	err := r.db.QueryRowContext(ctx, query, id, title).
		Scan(&chat.ID, &chat.SessionID, &chat.Title, &chat.CreatedAt, &chat.UpdatedAt)

	if err == sql.ErrNoRows {
		return nil, chats.ErrChatNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to update chat title: %w", err)
	}

	return chat, nil
}

// Touch bumps a chat's updated_at so it sorts to the top of the session list
func (r *postgresChatRepo) Touch(ctx context.Context, id string) error {
	_, err := r.db.ExecContext(ctx, `UPDATE chats SET updated_at = NOW() WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("failed to touch chat: %w", err)
	}
	return nil
}

// CreateMessage inserts a message into the messages table
func (r *postgresChatRepo) CreateMessage(ctx context.Context, msg *chats.Message) (*chats.Message, error) {
	query := `
		INSERT INTO messages (id, chat_id, role, content)
		VALUES ($1, $2, $3, $4)
		RETURNING id, chat_id, role, content, created_at`

	err := r.db.QueryRowContext(ctx, query, msg.ID, msg.ChatID, msg.Role, msg.Content).
		Scan(&msg.ID, &msg.ChatID, &msg.Role, &msg.Content, &msg.CreatedAt)
	if err != nil {
		return nil, fmt.Errorf("failed to create message: %w", err)
	}

	return msg, nil
}

// ListMessages retrieves a chat's messages in conversation order
func (r *postgresChatRepo) ListMessages(ctx context.Context, chatID string) ([]*chats.Message, error) {
	query := `
		SELECT id, chat_id, role, content, created_at
		FROM messages
		WHERE chat_id = $1
		ORDER BY created_at ASC`

	rows, err := r.db.QueryContext(ctx, query, chatID)
	if err != nil {
		return nil, fmt.Errorf("failed to list messages: %w", err)
	}
	defer rows.Close()

	result := make([]*chats.Message, 0)
	for rows.Next() {
		msg := &chats.Message{}
		if err := rows.Scan(&msg.ID, &msg.ChatID, &msg.Role, &msg.Content, &msg.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan message: %w", err)
		}
		result = append(result, msg)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate messages: %w", err)
	}

	return result, nil
}

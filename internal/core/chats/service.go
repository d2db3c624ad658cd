package chats

import (
	"context"
	"fmt"
	"strings"

	"github.com/google/uuid"
)

const (
	maxTitleLength   = 200
	defaultChatTitle = "New chat"
	defaultListLimit = 50
	maxListLimit     = 200
)

var validRoles = map[string]bool{
	"user":      true,
	"assistant": true,
	"tool":      true,
}

type chatService struct {
	chatRepo ChatRepository
}

// NewChatService creates a new chat service
func NewChatService(chatRepo ChatRepository) ChatService {
	return &chatService{chatRepo: chatRepo}
}

// CreateChat starts a new conversation for a session
func (s *chatService) CreateChat(ctx context.Context, req CreateChatRequest) (*Chat, error) {
	if strings.TrimSpace(req.SessionID) == "" {
		return nil, fmt.Errorf("session ID is required")
	}

	title := strings.TrimSpace(req.Title)
	if title == "" {
		title = defaultChatTitle
	}
	if len(title) > maxTitleLength {
		title = title[:maxTitleLength]
	}

	chat := &Chat{
		ID:        uuid.NewString(),
		SessionID: req.SessionID,
		Title:     title,
	}
	return s.chatRepo.Create(ctx, chat)
}

// GetChat returns a chat with its messages, enforcing session ownership
func (s *chatService) GetChat(ctx context.Context, sessionID, chatID string) (*ChatWithMessages, error) {
	chat, err := s.ownedChat(ctx, sessionID, chatID)
	if err != nil {
		return nil, err
	}

	messages, err := s.chatRepo.ListMessages(ctx, chat.ID)
	if err != nil {
		return nil, fmt.Errorf("failed to load messages: %w", err)
	}
	return &ChatWithMessages{Chat: chat, Messages: messages}, nil
}

// ListChats returns a session's chats, most recently updated first
func (s *chatService) ListChats(ctx context.Context, sessionID string, limit, offset int) ([]*Chat, error) {
	if strings.TrimSpace(sessionID) == "" {
		return nil, fmt.Errorf("session ID is required")
	}
	if limit <= 0 {
		limit = defaultListLimit
	}
	if limit > maxListLimit {
		limit = maxListLimit
	}
	if offset < 0 {
		offset = 0
	}
	return s.chatRepo.ListBySession(ctx, sessionID, limit, offset)
}

// DeleteChat removes a chat and its messages, enforcing session ownership
func (s *chatService) DeleteChat(ctx context.Context, sessionID, chatID string) error {
	chat, err := s.ownedChat(ctx, sessionID, chatID)
	if err != nil {
		return err
	}
	return s.chatRepo.Delete(ctx, chat.ID)
}

// RenameChat updates a chat's title, enforcing session ownership
func (s *chatService) RenameChat(ctx context.Context, sessionID, chatID, title string) (*Chat, error) {
	chat, err := s.ownedChat(ctx, sessionID, chatID)
	if err != nil {
		return nil, err
	}

	title = strings.TrimSpace(title)
	if title == "" {
		return nil, fmt.Errorf("title is required")
	}
	if len(title) > maxTitleLength {
		title = title[:maxTitleLength]
	}
	return s.chatRepo.UpdateTitle(ctx, chat.ID, title)
}

// AppendMessage adds a turn to a chat, enforcing session ownership
func (s *chatService) AppendMessage(ctx context.Context, req AppendMessageRequest) (*Message, error) {
	chat, err := s.ownedChat(ctx, req.SessionID, req.ChatID)
	if err != nil {
		return nil, err
	}

	role := strings.TrimSpace(strings.ToLower(req.Role))
	if !validRoles[role] {
		return nil, &InvalidRoleError{Role: req.Role}
	}
	if strings.TrimSpace(req.Content) == "" {
		return nil, &EmptyContentError{}
	}

	msg := &Message{
		ID:      uuid.NewString(),
		ChatID:  chat.ID,
		Role:    role,
		Content: req.Content,
	}

	created, err := s.chatRepo.CreateMessage(ctx, msg)
	if err != nil {
		return nil, err
	}

	if err := s.chatRepo.Touch(ctx, chat.ID); err != nil {
		// The message landed; a stale updated_at only affects list ordering.
		return created, nil
	}
	return created, nil
}

// ownedChat loads a chat and verifies it belongs to the session
func (s *chatService) ownedChat(ctx context.Context, sessionID, chatID string) (*Chat, error) {
	if strings.TrimSpace(sessionID) == "" {
		return nil, fmt.Errorf("session ID is required")
	}
	if strings.TrimSpace(chatID) == "" {
		return nil, fmt.Errorf("chat ID is required")
	}

	chat, err := s.chatRepo.GetByID(ctx, chatID)
	if err != nil {
		return nil, err
	}
	if chat.SessionID != sessionID {
		// Do not leak existence of other sessions' chats.
		return nil, ErrChatNotFound
	}
	return chat, nil
}

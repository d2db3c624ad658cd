package chats

import "context"

// ChatRepository defines the interface for chat data persistence
type ChatRepository interface {
	Create(ctx context.Context, chat *Chat) (*Chat, error)
	GetByID(ctx context.Context, id string) (*Chat, error)

	// ListBySession returns a session's chats, most recently updated first.
	ListBySession(ctx context.Context, sessionID string, limit, offset int) ([]*Chat, error)

	Delete(ctx context.Context, id string) error
	UpdateTitle(ctx context.Context, id, title string) (*Chat, error)

	// Touch bumps a chat's updated_at; called whenever a message lands.
	Touch(ctx context.Context, id string) error

	CreateMessage(ctx context.Context, msg *Message) (*Message, error)
	ListMessages(ctx context.Context, chatID string) ([]*Message, error)
}

// ChatService defines the interface for chat business logic
type ChatService interface {
	CreateChat(ctx context.Context, req CreateChatRequest) (*Chat, error)
	GetChat(ctx context.Context, sessionID, chatID string) (*ChatWithMessages, error)
	ListChats(ctx context.Context, sessionID string, limit, offset int) ([]*Chat, error)
	DeleteChat(ctx context.Context, sessionID, chatID string) error
	RenameChat(ctx context.Context, sessionID, chatID, title string) (*Chat, error)
	AppendMessage(ctx context.Context, req AppendMessageRequest) (*Message, error)
}

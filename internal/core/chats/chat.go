package chats

import (
	"time"
)

// Chat is one conversation between a browser session and the agent.
// Ownership is keyed by the anonymous session ID cookie, not a user account.
type Chat struct {
	CreatedAt time.Time `json:"createdAt" db:"created_at"`
	UpdatedAt time.Time `json:"updatedAt" db:"updated_at"`
	ID        string    `json:"id" db:"id"`
	SessionID string    `json:"-" db:"session_id"`
	Title     string    `json:"title" db:"title"`
}

// Message is a single turn in a chat. Role is one of "user", "assistant" or
// "tool"; tool turns carry the serialized tool result as content.
type Message struct {
	CreatedAt time.Time `json:"createdAt" db:"created_at"`
	ID        string    `json:"id" db:"id"`
	ChatID    string    `json:"chatId" db:"chat_id"`
	Role      string    `json:"role" db:"role"`
	Content   string    `json:"content" db:"content"`
}

// CreateChatRequest is the input for starting a new chat.
type CreateChatRequest struct {
	SessionID string `json:"-"`
	Title     string `json:"title"`
}

// AppendMessageRequest is the input for adding a turn to an existing chat.
type AppendMessageRequest struct {
	SessionID string `json:"-"`
	ChatID    string `json:"-"`
	Role      string `json:"role"`
	Content   string `json:"content"`
}

// ChatWithMessages is the full conversation view returned by GetChat.
type ChatWithMessages struct {
	Chat     *Chat      `json:"chat"`
	Messages []*Message `json:"messages"`
}

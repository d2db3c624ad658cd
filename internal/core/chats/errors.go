package chats

import (
	"errors"
	"fmt"
)

// Sentinel errors for common chat operations
var (
	// ErrChatNotFound is returned when a chat lookup finds no matching record,
	// including lookups against a chat owned by a different session
	ErrChatNotFound = errors.New("chat not found")
)

// InvalidRoleError is returned when a message carries a role outside the
// allowed set.
type InvalidRoleError struct {
	Role string
}

func (e *InvalidRoleError) Error() string {
	return fmt.Sprintf("invalid message role %q: must be user, assistant or tool", e.Role)
}

// EmptyContentError is returned when a message has no content.
type EmptyContentError struct{}

func (e *EmptyContentError) Error() string {
	return "message content must not be empty"
}

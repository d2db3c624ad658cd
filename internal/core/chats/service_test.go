package chats

import (
	"context"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

// MockChatRepository is a mock implementation of ChatRepository
type MockChatRepository struct {
	mock.Mock
}

func (m *MockChatRepository) Create(ctx context.Context, chat *Chat) (*Chat, error) {
	args := m.Called(ctx, chat)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*Chat), args.Error(1)
}

func (m *MockChatRepository) GetByID(ctx context.Context, id string) (*Chat, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*Chat), args.Error(1)
}

func (m *MockChatRepository) ListBySession(ctx context.Context, sessionID string, limit, offset int) ([]*Chat, error) {
	args := m.Called(ctx, sessionID, limit, offset)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*Chat), args.Error(1)
}

func (m *MockChatRepository) Delete(ctx context.Context, id string) error {
	args := m.Called(ctx, id)
	return args.Error(0)
}

func (m *MockChatRepository) UpdateTitle(ctx context.Context, id, title string) (*Chat, error) {
	args := m.Called(ctx, id, title)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*Chat), args.Error(1)
}

func (m *MockChatRepository) Touch(ctx context.Context, id string) error {
	args := m.Called(ctx, id)
	return args.Error(0)
}

func (m *MockChatRepository) CreateMessage(ctx context.Context, msg *Message) (*Message, error) {
	args := m.Called(ctx, msg)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*Message), args.Error(1)
}

func (m *MockChatRepository) ListMessages(ctx context.Context, chatID string) ([]*Message, error) {
	args := m.Called(ctx, chatID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*Message), args.Error(1)
}

const (
	testSessionID = "11111111-1111-1111-1111-111111111111"
	otherSession  = "22222222-2222-2222-2222-222222222222"
	testChatID    = "33333333-3333-3333-3333-333333333333"
)

func TestCreateChat(t *testing.T) {
	repo := new(MockChatRepository)
	service := NewChatService(repo)

	repo.On("Create", mock.Anything, mock.MatchedBy(func(c *Chat) bool {
		return c.SessionID == testSessionID && c.Title == "Sprint planning" && c.ID != ""
	})).Return(&Chat{ID: testChatID, SessionID: testSessionID, Title: "Sprint planning"}, nil)

	chat, err := service.CreateChat(context.Background(), CreateChatRequest{
		SessionID: testSessionID,
		Title:     "Sprint planning",
	})
	require.NoError(t, err)
	assert.Equal(t, "Sprint planning", chat.Title)
	repo.AssertExpectations(t)
}

func TestCreateChat_DefaultTitle(t *testing.T) {
	repo := new(MockChatRepository)
	service := NewChatService(repo)

	repo.On("Create", mock.Anything, mock.MatchedBy(func(c *Chat) bool {
		return c.Title == defaultChatTitle
	})).Return(&Chat{ID: testChatID, SessionID: testSessionID, Title: defaultChatTitle}, nil)

	_, err := service.CreateChat(context.Background(), CreateChatRequest{
		SessionID: testSessionID,
		Title:     "   ",
	})
	require.NoError(t, err)
	repo.AssertExpectations(t)
}

func TestCreateChat_TruncatesLongTitle(t *testing.T) {
	repo := new(MockChatRepository)
	service := NewChatService(repo)

	repo.On("Create", mock.Anything, mock.MatchedBy(func(c *Chat) bool {
		return len(c.Title) == maxTitleLength
	})).Return(&Chat{ID: testChatID}, nil)

	_, err := service.CreateChat(context.Background(), CreateChatRequest{
		SessionID: testSessionID,
		Title:     strings.Repeat("x", maxTitleLength+50),
	})
	require.NoError(t, err)
	repo.AssertExpectations(t)
}

func TestCreateChat_RequiresSession(t *testing.T) {
	service := NewChatService(new(MockChatRepository))

	_, err := service.CreateChat(context.Background(), CreateChatRequest{Title: "t"})
	assert.Error(t, err)
}

func TestGetChat(t *testing.T) {
	repo := new(MockChatRepository)
	service := NewChatService(repo)

	repo.On("GetByID", mock.Anything, testChatID).
		Return(&Chat{ID: testChatID, SessionID: testSessionID, Title: "t"}, nil)
	repo.On("ListMessages", mock.Anything, testChatID).
		Return([]*Message{{ID: "m1", ChatID: testChatID, Role: "user", Content: "hi"}}, nil)

	conv, err := service.GetChat(context.Background(), testSessionID, testChatID)
	require.NoError(t, err)
	assert.Equal(t, testChatID, conv.Chat.ID)
	require.Len(t, conv.Messages, 1)
	assert.Equal(t, "hi", conv.Messages[0].Content)
}

func TestGetChat_OtherSessionReadsAsNotFound(t *testing.T) {
	repo := new(MockChatRepository)
	service := NewChatService(repo)

	repo.On("GetByID", mock.Anything, testChatID).
		Return(&Chat{ID: testChatID, SessionID: testSessionID}, nil)

	_, err := service.GetChat(context.Background(), otherSession, testChatID)
	assert.ErrorIs(t, err, ErrChatNotFound)
	repo.AssertNotCalled(t, "ListMessages", mock.Anything, mock.Anything)
}

func TestListChats_ClampsPagination(t *testing.T) {
	repo := new(MockChatRepository)
	service := NewChatService(repo)

	repo.On("ListBySession", mock.Anything, testSessionID, defaultListLimit, 0).
		Return([]*Chat{}, nil).Once()
	_, err := service.ListChats(context.Background(), testSessionID, 0, -5)
	require.NoError(t, err)

	repo.On("ListBySession", mock.Anything, testSessionID, maxListLimit, 10).
		Return([]*Chat{}, nil).Once()
	_, err = service.ListChats(context.Background(), testSessionID, 10000, 10)
	require.NoError(t, err)

	repo.AssertExpectations(t)
}

func TestDeleteChat_EnforcesOwnership(t *testing.T) {
	repo := new(MockChatRepository)
	service := NewChatService(repo)

	repo.On("GetByID", mock.Anything, testChatID).
		Return(&Chat{ID: testChatID, SessionID: testSessionID}, nil)

	err := service.DeleteChat(context.Background(), otherSession, testChatID)
	assert.ErrorIs(t, err, ErrChatNotFound)
	repo.AssertNotCalled(t, "Delete", mock.Anything, mock.Anything)
}

func TestRenameChat(t *testing.T) {
	repo := new(MockChatRepository)
	service := NewChatService(repo)

	repo.On("GetByID", mock.Anything, testChatID).
		Return(&Chat{ID: testChatID, SessionID: testSessionID, Title: "old"}, nil)
	repo.On("UpdateTitle", mock.Anything, testChatID, "new title").
		Return(&Chat{ID: testChatID, SessionID: testSessionID, Title: "new title"}, nil)

	chat, err := service.RenameChat(context.Background(), testSessionID, testChatID, "  new title  ")
	require.NoError(t, err)
	assert.Equal(t, "new title", chat.Title)
}

func TestAppendMessage(t *testing.T) {
	repo := new(MockChatRepository)
	service := NewChatService(repo)

	repo.On("GetByID", mock.Anything, testChatID).
		Return(&Chat{ID: testChatID, SessionID: testSessionID}, nil)
	repo.On("CreateMessage", mock.Anything, mock.MatchedBy(func(m *Message) bool {
		return m.ChatID == testChatID && m.Role == "user" && m.Content == "hello" && m.ID != ""
	})).Return(&Message{ID: "m1", ChatID: testChatID, Role: "user", Content: "hello"}, nil)
	repo.On("Touch", mock.Anything, testChatID).Return(nil)

	msg, err := service.AppendMessage(context.Background(), AppendMessageRequest{
		SessionID: testSessionID,
		ChatID:    testChatID,
		Role:      "User",
		Content:   "hello",
	})
	require.NoError(t, err)
	assert.Equal(t, "hello", msg.Content)
	repo.AssertExpectations(t)
}

func TestAppendMessage_InvalidRole(t *testing.T) {
	repo := new(MockChatRepository)
	service := NewChatService(repo)

	repo.On("GetByID", mock.Anything, testChatID).
		Return(&Chat{ID: testChatID, SessionID: testSessionID}, nil)

	_, err := service.AppendMessage(context.Background(), AppendMessageRequest{
		SessionID: testSessionID,
		ChatID:    testChatID,
		Role:      "system",
		Content:   "hello",
	})

	var invalidRole *InvalidRoleError
	assert.ErrorAs(t, err, &invalidRole)
}

func TestAppendMessage_EmptyContent(t *testing.T) {
	repo := new(MockChatRepository)
	service := NewChatService(repo)

	repo.On("GetByID", mock.Anything, testChatID).
		Return(&Chat{ID: testChatID, SessionID: testSessionID}, nil)

	_, err := service.AppendMessage(context.Background(), AppendMessageRequest{
		SessionID: testSessionID,
		ChatID:    testChatID,
		Role:      "user",
		Content:   "  ",
	})

	var emptyContent *EmptyContentError
	assert.ErrorAs(t, err, &emptyContent)
}

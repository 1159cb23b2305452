package mocks

import (
	"context"

	"github.com/stretchr/testify/mock"

	"campus-messaging/internal/media"
	"campus-messaging/internal/messaging"
	"campus-messaging/internal/models"
)

type DirectoryServiceMock struct {
	mock.Mock
}

func (m *DirectoryServiceMock) List(ctx context.Context) ([]models.ConversationSummary, error) {
	args := m.Called(ctx)
	var list []models.ConversationSummary
	if val := args.Get(0); val != nil {
		list = val.([]models.ConversationSummary)
	}
	return list, args.Error(1)
}

func (m *DirectoryServiceMock) IsMember(ctx context.Context, conversationID string) (bool, error) {
	args := m.Called(ctx, conversationID)
	return args.Bool(0), args.Error(1)
}

func (m *DirectoryServiceMock) CreateDirect(ctx context.Context, otherUserID string) (models.Conversation, error) {
	args := m.Called(ctx, otherUserID)
	var conv models.Conversation
	if val := args.Get(0); val != nil {
		conv = val.(models.Conversation)
	}
	return conv, args.Error(1)
}

func (m *DirectoryServiceMock) CreateGroup(ctx context.Context, req messaging.CreateGroupRequest) (models.Conversation, error) {
	args := m.Called(ctx, req)
	var conv models.Conversation
	if val := args.Get(0); val != nil {
		conv = val.(models.Conversation)
	}
	return conv, args.Error(1)
}

func (m *DirectoryServiceMock) AddParticipant(ctx context.Context, conversationID, userID string) (models.Participant, error) {
	args := m.Called(ctx, conversationID, userID)
	var p models.Participant
	if val := args.Get(0); val != nil {
		p = val.(models.Participant)
	}
	return p, args.Error(1)
}

func (m *DirectoryServiceMock) MarkConversationRead(ctx context.Context, conversationID string) error {
	args := m.Called(ctx, conversationID)
	return args.Error(0)
}

type MessageServiceMock struct {
	mock.Mock
}

func (m *MessageServiceMock) History(ctx context.Context, conversationID string) ([]models.Message, error) {
	args := m.Called(ctx, conversationID)
	var msgs []models.Message
	if val := args.Get(0); val != nil {
		msgs = val.([]models.Message)
	}
	return msgs, args.Error(1)
}

func (m *MessageServiceMock) Message(ctx context.Context, messageID string) (models.Message, error) {
	args := m.Called(ctx, messageID)
	var msg models.Message
	if val := args.Get(0); val != nil {
		msg = val.(models.Message)
	}
	return msg, args.Error(1)
}

func (m *MessageServiceMock) Send(ctx context.Context, req messaging.SendRequest) (models.Message, error) {
	args := m.Called(ctx, req)
	var msg models.Message
	if val := args.Get(0); val != nil {
		msg = val.(models.Message)
	}
	return msg, args.Error(1)
}

func (m *MessageServiceMock) AddReaction(ctx context.Context, messageID, emoji string) (models.Reaction, error) {
	args := m.Called(ctx, messageID, emoji)
	var r models.Reaction
	if val := args.Get(0); val != nil {
		r = val.(models.Reaction)
	}
	return r, args.Error(1)
}

func (m *MessageServiceMock) RemoveReaction(ctx context.Context, messageID, emoji string) error {
	args := m.Called(ctx, messageID, emoji)
	return args.Error(0)
}

func (m *MessageServiceMock) MarkAsRead(ctx context.Context, messageID string) error {
	args := m.Called(ctx, messageID)
	return args.Error(0)
}

type PresenceServiceMock struct {
	mock.Mock
}

func (m *PresenceServiceMock) SetVisible(ctx context.Context, userID string, visible bool) {
	m.Called(ctx, userID, visible)
}

func (m *PresenceServiceMock) Snapshot(ctx context.Context, userIDs []string) ([]models.Presence, error) {
	args := m.Called(ctx, userIDs)
	var rows []models.Presence
	if val := args.Get(0); val != nil {
		rows = val.([]models.Presence)
	}
	return rows, args.Error(1)
}

type TypingServiceMock struct {
	mock.Mock
}

func (m *TypingServiceMock) Start(ctx context.Context, conversationID string) error {
	args := m.Called(ctx, conversationID)
	return args.Error(0)
}

func (m *TypingServiceMock) Stop(ctx context.Context, conversationID string) error {
	args := m.Called(ctx, conversationID)
	return args.Error(0)
}

func (m *TypingServiceMock) Typing(ctx context.Context, conversationID, viewerID string) ([]models.TypingIndicator, error) {
	args := m.Called(ctx, conversationID, viewerID)
	var rows []models.TypingIndicator
	if val := args.Get(0); val != nil {
		rows = val.([]models.TypingIndicator)
	}
	return rows, args.Error(1)
}

type ProfileServiceMock struct {
	mock.Mock
}

func (m *ProfileServiceMock) UploadAvatar(ctx context.Context, f media.File) (string, error) {
	args := m.Called(ctx, f)
	return args.String(0), args.Error(1)
}

func (m *ProfileServiceMock) UploadCover(ctx context.Context, f media.File) (string, error) {
	args := m.Called(ctx, f)
	return args.String(0), args.Error(1)
}

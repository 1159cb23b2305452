package mocks

import (
	"context"
	"time"

	"github.com/stretchr/testify/mock"

	"campus-messaging/internal/models"
	"campus-messaging/internal/repositories"
	"campus-messaging/internal/storage"
)

type ConversationRepositoryMock struct {
	mock.Mock
}

func (m *ConversationRepositoryMock) ListForUser(ctx context.Context, userID string) ([]models.Conversation, error) {
	args := m.Called(ctx, userID)
	var list []models.Conversation
	if val := args.Get(0); val != nil {
		list = val.([]models.Conversation)
	}
	return list, args.Error(1)
}

func (m *ConversationRepositoryMock) ListParticipants(ctx context.Context, conversationIDs []string) ([]models.Participant, error) {
	args := m.Called(ctx, conversationIDs)
	var list []models.Participant
	if val := args.Get(0); val != nil {
		list = val.([]models.Participant)
	}
	return list, args.Error(1)
}

func (m *ConversationRepositoryMock) LastMessage(ctx context.Context, conversationID string) (*models.LastMessagePreview, error) {
	args := m.Called(ctx, conversationID)
	var last *models.LastMessagePreview
	if val := args.Get(0); val != nil {
		last = val.(*models.LastMessagePreview)
	}
	return last, args.Error(1)
}

func (m *ConversationRepositoryMock) UnreadCount(ctx context.Context, conversationID, userID string, since time.Time) (int, error) {
	args := m.Called(ctx, conversationID, userID, since)
	return args.Int(0), args.Error(1)
}

func (m *ConversationRepositoryMock) CreateOrGetDirect(ctx context.Context, userID, otherID string) (models.Conversation, bool, error) {
	args := m.Called(ctx, userID, otherID)
	var conv models.Conversation
	if val := args.Get(0); val != nil {
		conv = val.(models.Conversation)
	}
	return conv, args.Bool(1), args.Error(2)
}

func (m *ConversationRepositoryMock) CreateConversation(ctx context.Context, conv models.Conversation) (models.Conversation, error) {
	args := m.Called(ctx, conv)
	var out models.Conversation
	if val := args.Get(0); val != nil {
		out = val.(models.Conversation)
	}
	return out, args.Error(1)
}

func (m *ConversationRepositoryMock) AddParticipants(ctx context.Context, participants []models.Participant) error {
	args := m.Called(ctx, participants)
	return args.Error(0)
}

func (m *ConversationRepositoryMock) AddParticipant(ctx context.Context, conversationID, userID string, role models.ParticipantRole) (models.Participant, error) {
	args := m.Called(ctx, conversationID, userID, role)
	var p models.Participant
	if val := args.Get(0); val != nil {
		p = val.(models.Participant)
	}
	return p, args.Error(1)
}

func (m *ConversationRepositoryMock) IsParticipant(ctx context.Context, conversationID, userID string) (bool, error) {
	args := m.Called(ctx, conversationID, userID)
	return args.Bool(0), args.Error(1)
}

func (m *ConversationRepositoryMock) MarkRead(ctx context.Context, conversationID, userID string, at time.Time) error {
	args := m.Called(ctx, conversationID, userID, at)
	return args.Error(0)
}

type MessageRepositoryMock struct {
	mock.Mock
}

func (m *MessageRepositoryMock) ListMessages(ctx context.Context, conversationID string) ([]models.Message, error) {
	args := m.Called(ctx, conversationID)
	var msgs []models.Message
	if val := args.Get(0); val != nil {
		msgs = val.([]models.Message)
	}
	return msgs, args.Error(1)
}

func (m *MessageRepositoryMock) ListAttachments(ctx context.Context, messageIDs []string) ([]models.Attachment, error) {
	args := m.Called(ctx, messageIDs)
	var list []models.Attachment
	if val := args.Get(0); val != nil {
		list = val.([]models.Attachment)
	}
	return list, args.Error(1)
}

func (m *MessageRepositoryMock) GetMessage(ctx context.Context, messageID string) (models.Message, error) {
	args := m.Called(ctx, messageID)
	var msg models.Message
	if val := args.Get(0); val != nil {
		msg = val.(models.Message)
	}
	return msg, args.Error(1)
}

func (m *MessageRepositoryMock) CreateMessage(ctx context.Context, msg models.Message) (models.Message, error) {
	args := m.Called(ctx, msg)
	var out models.Message
	if val := args.Get(0); val != nil {
		out = val.(models.Message)
	}
	return out, args.Error(1)
}

func (m *MessageRepositoryMock) CreateAttachment(ctx context.Context, att models.Attachment) (models.Attachment, error) {
	args := m.Called(ctx, att)
	var out models.Attachment
	if val := args.Get(0); val != nil {
		out = val.(models.Attachment)
	}
	return out, args.Error(1)
}

type ReactionRepositoryMock struct {
	mock.Mock
}

func (m *ReactionRepositoryMock) UpsertReaction(ctx context.Context, messageID, userID, emoji string) (models.Reaction, error) {
	args := m.Called(ctx, messageID, userID, emoji)
	var r models.Reaction
	if val := args.Get(0); val != nil {
		r = val.(models.Reaction)
	}
	return r, args.Error(1)
}

func (m *ReactionRepositoryMock) DeleteReaction(ctx context.Context, messageID, userID, emoji string) (int64, error) {
	args := m.Called(ctx, messageID, userID, emoji)
	return args.Get(0).(int64), args.Error(1)
}

func (m *ReactionRepositoryMock) ListReactions(ctx context.Context, messageIDs []string) ([]models.Reaction, error) {
	args := m.Called(ctx, messageIDs)
	var list []models.Reaction
	if val := args.Get(0); val != nil {
		list = val.([]models.Reaction)
	}
	return list, args.Error(1)
}

func (m *ReactionRepositoryMock) UpsertReadReceipt(ctx context.Context, messageID, userID string, at time.Time) error {
	args := m.Called(ctx, messageID, userID, at)
	return args.Error(0)
}

func (m *ReactionRepositoryMock) ListReadReceipts(ctx context.Context, messageIDs []string) ([]models.ReadReceipt, error) {
	args := m.Called(ctx, messageIDs)
	var list []models.ReadReceipt
	if val := args.Get(0); val != nil {
		list = val.([]models.ReadReceipt)
	}
	return list, args.Error(1)
}

type PresenceRepositoryMock struct {
	mock.Mock
}

func (m *PresenceRepositoryMock) Upsert(ctx context.Context, userID string, online bool, at time.Time) error {
	args := m.Called(ctx, userID, online, at)
	return args.Error(0)
}

func (m *PresenceRepositoryMock) List(ctx context.Context, userIDs []string) ([]models.Presence, error) {
	args := m.Called(ctx, userIDs)
	var list []models.Presence
	if val := args.Get(0); val != nil {
		list = val.([]models.Presence)
	}
	return list, args.Error(1)
}

type TypingRepositoryMock struct {
	mock.Mock
}

func (m *TypingRepositoryMock) Upsert(ctx context.Context, conversationID, userID string, typing bool, at time.Time) error {
	args := m.Called(ctx, conversationID, userID, typing, at)
	return args.Error(0)
}

func (m *TypingRepositoryMock) ListTyping(ctx context.Context, conversationID string) ([]models.TypingIndicator, error) {
	args := m.Called(ctx, conversationID)
	var list []models.TypingIndicator
	if val := args.Get(0); val != nil {
		list = val.([]models.TypingIndicator)
	}
	return list, args.Error(1)
}

type ProfileRepositoryMock struct {
	mock.Mock
}

func (m *ProfileRepositoryMock) UpdateAvatar(ctx context.Context, userID, url string) error {
	args := m.Called(ctx, userID, url)
	return args.Error(0)
}

func (m *ProfileRepositoryMock) UpdateCover(ctx context.Context, userID, url string) error {
	args := m.Called(ctx, userID, url)
	return args.Error(0)
}

type ObjectStoreMock struct {
	mock.Mock
}

func (m *ObjectStoreMock) Put(ctx context.Context, obj storage.Object) (string, error) {
	args := m.Called(ctx, obj)
	return args.String(0), args.Error(1)
}

var (
	_ repositories.ConversationRepository = (*ConversationRepositoryMock)(nil)
	_ repositories.MessageRepository      = (*MessageRepositoryMock)(nil)
	_ repositories.ReactionRepository     = (*ReactionRepositoryMock)(nil)
	_ repositories.PresenceRepository     = (*PresenceRepositoryMock)(nil)
	_ repositories.TypingRepository       = (*TypingRepositoryMock)(nil)
	_ repositories.ProfileRepository      = (*ProfileRepositoryMock)(nil)
	_ storage.ObjectStore                 = (*ObjectStoreMock)(nil)
)

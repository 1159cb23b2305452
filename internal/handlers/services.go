package handlers

import (
	"context"

	"campus-messaging/internal/media"
	"campus-messaging/internal/messaging"
	"campus-messaging/internal/models"
)

type DirectoryService interface {
	List(ctx context.Context) ([]models.ConversationSummary, error)
	IsMember(ctx context.Context, conversationID string) (bool, error)
	CreateDirect(ctx context.Context, otherUserID string) (models.Conversation, error)
	CreateGroup(ctx context.Context, req messaging.CreateGroupRequest) (models.Conversation, error)
	AddParticipant(ctx context.Context, conversationID, userID string) (models.Participant, error)
	MarkConversationRead(ctx context.Context, conversationID string) error
}

type MessageService interface {
	History(ctx context.Context, conversationID string) ([]models.Message, error)
	Message(ctx context.Context, messageID string) (models.Message, error)
	Send(ctx context.Context, req messaging.SendRequest) (models.Message, error)
	AddReaction(ctx context.Context, messageID, emoji string) (models.Reaction, error)
	RemoveReaction(ctx context.Context, messageID, emoji string) error
	MarkAsRead(ctx context.Context, messageID string) error
}

type PresenceService interface {
	SetVisible(ctx context.Context, userID string, visible bool)
	Snapshot(ctx context.Context, userIDs []string) ([]models.Presence, error)
}

type TypingService interface {
	Start(ctx context.Context, conversationID string) error
	Stop(ctx context.Context, conversationID string) error
	Typing(ctx context.Context, conversationID, viewerID string) ([]models.TypingIndicator, error)
}

type ProfileService interface {
	UploadAvatar(ctx context.Context, f media.File) (string, error)
	UploadCover(ctx context.Context, f media.File) (string, error)
}

var (
	_ DirectoryService = (*messaging.Directory)(nil)
	_ MessageService   = (*messaging.MessageStore)(nil)
	_ PresenceService  = (*messaging.PresenceTracker)(nil)
	_ TypingService    = (*messaging.TypingTracker)(nil)
	_ ProfileService   = (*messaging.ProfileMedia)(nil)
)

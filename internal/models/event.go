package models

import "time"

// Routing keys for domain events published to the messaging exchange.
const (
	EventConversationCreated = "conversation.created"
	EventParticipantAdded    = "conversation.participant_added"
	EventMessageSent         = "message.sent"
	EventReactionAdded       = "message.reaction_added"
	EventReactionRemoved     = "message.reaction_removed"
	EventProfileMedia        = "profile.media_updated"
)

type DomainEvent struct {
	Type           string    `json:"type"`
	ConversationID string    `json:"conversation_id,omitempty"`
	MessageID      string    `json:"message_id,omitempty"`
	ActorID        string    `json:"actor_id"`
	Detail         string    `json:"detail,omitempty"`
	OccurredAt     time.Time `json:"occurred_at"`
}

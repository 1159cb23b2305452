package models

import "time"

type ConversationType string

const (
	ConversationDirect ConversationType = "direct"
	ConversationGroup  ConversationType = "group"
)

type ParticipantRole string

const (
	RoleAdmin     ParticipantRole = "admin"
	RoleModerator ParticipantRole = "moderator"
	RoleMember    ParticipantRole = "member"
)

// Profile is the read-only slice of a user profile joined into messaging rows.
type Profile struct {
	ID          string  `db:"id" json:"id"`
	Username    string  `db:"username" json:"username"`
	DisplayName *string `db:"display_name" json:"display_name,omitempty"`
	AvatarURL   *string `db:"avatar_url" json:"avatar_url,omitempty"`
}

// Name returns the display name, falling back to the username.
func (p Profile) Name() string {
	if p.DisplayName != nil && *p.DisplayName != "" {
		return *p.DisplayName
	}
	return p.Username
}

type Conversation struct {
	ID            string           `db:"id" json:"id"`
	Type          ConversationType `db:"type" json:"type"`
	Name          *string          `db:"name" json:"name,omitempty"`
	Description   *string          `db:"description" json:"description,omitempty"`
	AvatarURL     *string          `db:"avatar_url" json:"avatar_url,omitempty"`
	CreatedBy     string           `db:"created_by" json:"created_by"`
	CreatedAt     time.Time        `db:"created_at" json:"created_at"`
	UpdatedAt     time.Time        `db:"updated_at" json:"updated_at"`
	LastMessageAt time.Time        `db:"last_message_at" json:"last_message_at"`
}

type Participant struct {
	ID             string          `db:"id" json:"id"`
	ConversationID string          `db:"conversation_id" json:"conversation_id"`
	UserID         string          `db:"user_id" json:"user_id"`
	Role           ParticipantRole `db:"role" json:"role"`
	JoinedAt       time.Time       `db:"joined_at" json:"joined_at"`
	LastReadAt     *time.Time      `db:"last_read_at" json:"last_read_at,omitempty"`
	IsMuted        bool            `db:"is_muted" json:"is_muted"`
	User           Profile         `db:"user" json:"user"`
}

// LastMessagePreview is the newest non-deleted message shown in the directory.
type LastMessagePreview struct {
	Content    string    `db:"content" json:"content"`
	SenderName string    `db:"sender_name" json:"sender_name"`
	CreatedAt  time.Time `db:"created_at" json:"created_at"`
}

// ConversationSummary is a directory entry: the conversation with its roster
// and the derived preview fields.
type ConversationSummary struct {
	Conversation
	Participants []Participant       `json:"participants"`
	LastMessage  *LastMessagePreview `json:"last_message,omitempty"`
	UnreadCount  int                 `json:"unread_count"`
}

// Participant returns the roster entry for userID.
func (s ConversationSummary) Participant(userID string) (Participant, bool) {
	for _, p := range s.Participants {
		if p.UserID == userID {
			return p, true
		}
	}
	return Participant{}, false
}

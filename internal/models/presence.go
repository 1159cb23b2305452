package models

import "time"

type Presence struct {
	UserID    string    `db:"user_id" json:"user_id"`
	IsOnline  bool      `db:"is_online" json:"is_online"`
	LastSeen  time.Time `db:"last_seen" json:"last_seen"`
	UpdatedAt time.Time `db:"updated_at" json:"updated_at"`
}

type TypingIndicator struct {
	ConversationID string    `db:"conversation_id" json:"conversation_id"`
	UserID         string    `db:"user_id" json:"user_id"`
	IsTyping       bool      `db:"is_typing" json:"is_typing"`
	UpdatedAt      time.Time `db:"updated_at" json:"updated_at"`
	User           Profile   `db:"user" json:"user"`
}

package models

import "time"

type MessageType string

const (
	MessageText     MessageType = "text"
	MessageImage    MessageType = "image"
	MessageVideo    MessageType = "video"
	MessageDocument MessageType = "document"
	MessageAudio    MessageType = "audio"
)

// Valid reports whether t is one of the stored message types.
func (t MessageType) Valid() bool {
	switch t {
	case MessageText, MessageImage, MessageVideo, MessageDocument, MessageAudio:
		return true
	}
	return false
}

type Message struct {
	ID             string        `db:"id" json:"id"`
	ConversationID string        `db:"conversation_id" json:"conversation_id"`
	SenderID       string        `db:"sender_id" json:"sender_id"`
	Content        string        `db:"content" json:"content"`
	MessageType    MessageType   `db:"message_type" json:"message_type"`
	ReplyTo        *string       `db:"reply_to" json:"reply_to,omitempty"`
	EditedAt       *time.Time    `db:"edited_at" json:"edited_at,omitempty"`
	DeletedAt      *time.Time    `db:"deleted_at" json:"deleted_at,omitempty"`
	CreatedAt      time.Time     `db:"created_at" json:"created_at"`
	ClientToken    *string       `db:"client_token" json:"client_token,omitempty"`
	Sender         Profile       `db:"sender" json:"sender"`
	Attachments    []Attachment  `db:"-" json:"attachments"`
	Reactions      []Reaction    `db:"-" json:"reactions"`
	ReadReceipts   []ReadReceipt `db:"-" json:"read_receipts"`
}

type Attachment struct {
	ID        string    `db:"id" json:"id"`
	MessageID string    `db:"message_id" json:"message_id"`
	FileName  string    `db:"file_name" json:"file_name"`
	FileURL   string    `db:"file_url" json:"file_url"`
	FileType  string    `db:"file_type" json:"file_type"`
	FileSize  int64     `db:"file_size" json:"file_size"`
	CreatedAt time.Time `db:"created_at" json:"created_at"`
}

type Reaction struct {
	ID        string    `db:"id" json:"id"`
	MessageID string    `db:"message_id" json:"message_id"`
	UserID    string    `db:"user_id" json:"user_id"`
	Emoji     string    `db:"emoji" json:"emoji"`
	CreatedAt time.Time `db:"created_at" json:"created_at"`
	User      Profile   `db:"user" json:"user"`
}

type ReadReceipt struct {
	ID        string    `db:"id" json:"id"`
	MessageID string    `db:"message_id" json:"message_id"`
	UserID    string    `db:"user_id" json:"user_id"`
	ReadAt    time.Time `db:"read_at" json:"read_at"`
	User      Profile   `db:"user" json:"user"`
}

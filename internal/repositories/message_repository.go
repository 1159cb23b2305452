package repositories

import (
	"context"
	"database/sql"
	"errors"

	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"

	"campus-messaging/internal/models"
)

var ErrMessageNotFound = errors.New("message not found")

const messageColumns = `m.id, m.conversation_id, m.sender_id, m.content, m.message_type, m.reply_to, m.edited_at, m.deleted_at, m.created_at, m.client_token`

// MessageRepository defines interactions for conversation messages and their attachments.
type MessageRepository interface {
	ListMessages(ctx context.Context, conversationID string) ([]models.Message, error)
	ListAttachments(ctx context.Context, messageIDs []string) ([]models.Attachment, error)
	GetMessage(ctx context.Context, messageID string) (models.Message, error)
	CreateMessage(ctx context.Context, msg models.Message) (models.Message, error)
	CreateAttachment(ctx context.Context, att models.Attachment) (models.Attachment, error)
}

// MessageRepo is a sqlx-backed repository.
type MessageRepo struct {
	db *sqlx.DB
}

// NewMessageRepo constructs MessageRepo.
func NewMessageRepo(db *sqlx.DB) *MessageRepo {
	return &MessageRepo{db: db}
}

// ListMessages returns non-deleted messages oldest first, joined with the sender profile.
func (r *MessageRepo) ListMessages(ctx context.Context, conversationID string) ([]models.Message, error) {
	query := `SELECT ` + messageColumns + `,
            p.id AS "sender.id", p.username AS "sender.username", p.display_name AS "sender.display_name", p.avatar_url AS "sender.avatar_url"
        FROM messages m
        INNER JOIN profiles p ON p.id = m.sender_id
        WHERE m.conversation_id = $1 AND m.deleted_at IS NULL
        ORDER BY m.created_at ASC`
	var msgs []models.Message
	err := r.db.SelectContext(ctx, &msgs, query, conversationID)
	return msgs, err
}

// ListAttachments returns the attachments of the given messages in upload order.
func (r *MessageRepo) ListAttachments(ctx context.Context, messageIDs []string) ([]models.Attachment, error) {
	if len(messageIDs) == 0 {
		return nil, nil
	}
	var atts []models.Attachment
	err := r.db.SelectContext(ctx, &atts, `SELECT id, message_id, file_name, file_url, file_type, file_size, created_at
        FROM message_attachments WHERE message_id = ANY($1::uuid[]) ORDER BY created_at ASC`, pq.Array(messageIDs))
	return atts, err
}

// GetMessage retrieves a single message, deleted or not.
func (r *MessageRepo) GetMessage(ctx context.Context, messageID string) (models.Message, error) {
	var msg models.Message
	err := r.db.GetContext(ctx, &msg, `SELECT `+messageColumns+` FROM messages m WHERE m.id = $1`, messageID)
	if errors.Is(err, sql.ErrNoRows) {
		return models.Message{}, ErrMessageNotFound
	}
	return msg, err
}

// CreateMessage stores a message row.
func (r *MessageRepo) CreateMessage(ctx context.Context, msg models.Message) (models.Message, error) {
	var created models.Message
	err := r.db.GetContext(ctx, &created, `INSERT INTO messages (conversation_id, sender_id, content, message_type, reply_to, client_token)
        VALUES ($1, $2, $3, $4, $5, $6)
        RETURNING id, conversation_id, sender_id, content, message_type, reply_to, edited_at, deleted_at, created_at, client_token`,
		msg.ConversationID, msg.SenderID, msg.Content, msg.MessageType, msg.ReplyTo, msg.ClientToken)
	return created, err
}

// CreateAttachment stores an attachment row for an uploaded object.
func (r *MessageRepo) CreateAttachment(ctx context.Context, att models.Attachment) (models.Attachment, error) {
	var created models.Attachment
	err := r.db.GetContext(ctx, &created, `INSERT INTO message_attachments (message_id, file_name, file_url, file_type, file_size)
        VALUES ($1, $2, $3, $4, $5)
        RETURNING id, message_id, file_name, file_url, file_type, file_size, created_at`,
		att.MessageID, att.FileName, att.FileURL, att.FileType, att.FileSize)
	return created, err
}

package repositories

import (
	"context"
	"database/sql"
	"errors"
	"sort"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"

	"campus-messaging/internal/models"
)

var (
	ErrConversationNotFound = errors.New("conversation not found")
	ErrParticipantNotFound  = errors.New("participant not found")
)

const conversationColumns = `c.id, c.type, c.name, c.description, c.avatar_url, c.created_by, c.created_at, c.updated_at, c.last_message_at`

// ConversationRepository abstracts conversation and participant persistence.
type ConversationRepository interface {
	ListForUser(ctx context.Context, userID string) ([]models.Conversation, error)
	ListParticipants(ctx context.Context, conversationIDs []string) ([]models.Participant, error)
	LastMessage(ctx context.Context, conversationID string) (*models.LastMessagePreview, error)
	UnreadCount(ctx context.Context, conversationID, userID string, since time.Time) (int, error)
	CreateOrGetDirect(ctx context.Context, userID, otherID string) (models.Conversation, bool, error)
	CreateConversation(ctx context.Context, conv models.Conversation) (models.Conversation, error)
	AddParticipants(ctx context.Context, participants []models.Participant) error
	AddParticipant(ctx context.Context, conversationID, userID string, role models.ParticipantRole) (models.Participant, error)
	IsParticipant(ctx context.Context, conversationID, userID string) (bool, error)
	MarkRead(ctx context.Context, conversationID, userID string, at time.Time) error
}

// ConversationRepo is a sqlx implementation of ConversationRepository.
type ConversationRepo struct {
	db *sqlx.DB
}

// NewConversationRepo constructs a ConversationRepo.
func NewConversationRepo(db *sqlx.DB) *ConversationRepo {
	return &ConversationRepo{db: db}
}

// ListForUser returns the conversations the user participates in, most recent activity first.
func (r *ConversationRepo) ListForUser(ctx context.Context, userID string) ([]models.Conversation, error) {
	query := `SELECT ` + conversationColumns + ` FROM conversations c
        INNER JOIN conversation_participants cp ON cp.conversation_id = c.id AND cp.user_id = $1
        ORDER BY c.last_message_at DESC, c.created_at DESC`
	var convs []models.Conversation
	err := r.db.SelectContext(ctx, &convs, query, userID)
	return convs, err
}

// ListParticipants returns the rosters of the given conversations joined with profiles.
func (r *ConversationRepo) ListParticipants(ctx context.Context, conversationIDs []string) ([]models.Participant, error) {
	if len(conversationIDs) == 0 {
		return nil, nil
	}
	query := `SELECT cp.id, cp.conversation_id, cp.user_id, cp.role, cp.joined_at, cp.last_read_at, cp.is_muted,
            p.id AS "user.id", p.username AS "user.username", p.display_name AS "user.display_name", p.avatar_url AS "user.avatar_url"
        FROM conversation_participants cp
        INNER JOIN profiles p ON p.id = cp.user_id
        WHERE cp.conversation_id = ANY($1::uuid[])
        ORDER BY cp.joined_at ASC`
	var participants []models.Participant
	err := r.db.SelectContext(ctx, &participants, query, pq.Array(conversationIDs))
	return participants, err
}

// LastMessage returns the newest non-deleted message preview, or nil when the conversation is empty.
func (r *ConversationRepo) LastMessage(ctx context.Context, conversationID string) (*models.LastMessagePreview, error) {
	query := `SELECT m.content, m.created_at,
            COALESCE(NULLIF(p.display_name, ''), p.username, 'Unknown') AS sender_name
        FROM messages m
        LEFT JOIN profiles p ON p.id = m.sender_id
        WHERE m.conversation_id = $1 AND m.deleted_at IS NULL
        ORDER BY m.created_at DESC
        LIMIT 1`
	var preview models.LastMessagePreview
	err := r.db.GetContext(ctx, &preview, query, conversationID)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &preview, nil
}

// UnreadCount counts non-deleted messages from other senders newer than since.
func (r *ConversationRepo) UnreadCount(ctx context.Context, conversationID, userID string, since time.Time) (int, error) {
	var count int
	err := r.db.GetContext(ctx, &count, `SELECT COUNT(*) FROM messages
        WHERE conversation_id = $1 AND created_at > $2 AND sender_id <> $3 AND deleted_at IS NULL`,
		conversationID, since, userID)
	return count, err
}

// CreateOrGetDirect finds the direct conversation between two users or creates it,
// together with both participant rows, in one transaction. The boolean reports
// whether a new conversation was created.
func (r *ConversationRepo) CreateOrGetDirect(ctx context.Context, userID, otherID string) (conv models.Conversation, created bool, err error) {
	pair := []string{userID, otherID}
	sort.Strings(pair)

	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return models.Conversation{}, false, err
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	// serializes concurrent creation for the same pair
	if _, err = tx.ExecContext(ctx, `SELECT pg_advisory_xact_lock(hashtext($1))`, pair[0]+":"+pair[1]); err != nil {
		return models.Conversation{}, false, err
	}

	err = tx.GetContext(ctx, &conv, `SELECT `+conversationColumns+` FROM conversations c
        WHERE c.type = 'direct'
        AND EXISTS (SELECT 1 FROM conversation_participants a WHERE a.conversation_id = c.id AND a.user_id = $1)
        AND EXISTS (SELECT 1 FROM conversation_participants b WHERE b.conversation_id = c.id AND b.user_id = $2)
        LIMIT 1`, userID, otherID)
	switch {
	case err == nil:
		if err = tx.Commit(); err != nil {
			return models.Conversation{}, false, err
		}
		return conv, false, nil
	case !errors.Is(err, sql.ErrNoRows):
		return models.Conversation{}, false, err
	}

	if err = tx.GetContext(ctx, &conv, `INSERT INTO conversations (type, created_by) VALUES ('direct', $1)
        RETURNING id, type, name, description, avatar_url, created_by, created_at, updated_at, last_message_at`, userID); err != nil {
		return models.Conversation{}, false, err
	}
	if _, err = tx.ExecContext(ctx, `INSERT INTO conversation_participants (conversation_id, user_id, role)
        VALUES ($1, $2, 'member'), ($1, $3, 'member')`, conv.ID, userID, otherID); err != nil {
		return models.Conversation{}, false, err
	}
	if err = tx.Commit(); err != nil {
		return models.Conversation{}, false, err
	}
	return conv, true, nil
}

// CreateConversation inserts a conversation row without participants.
func (r *ConversationRepo) CreateConversation(ctx context.Context, conv models.Conversation) (models.Conversation, error) {
	var created models.Conversation
	err := r.db.GetContext(ctx, &created, `INSERT INTO conversations (type, name, description, avatar_url, created_by)
        VALUES ($1, $2, $3, $4, $5)
        RETURNING id, type, name, description, avatar_url, created_by, created_at, updated_at, last_message_at`,
		conv.Type, conv.Name, conv.Description, conv.AvatarURL, conv.CreatedBy)
	return created, err
}

// AddParticipants inserts all rows in a single statement.
func (r *ConversationRepo) AddParticipants(ctx context.Context, participants []models.Participant) error {
	if len(participants) == 0 {
		return nil
	}
	_, err := r.db.NamedExecContext(ctx, `INSERT INTO conversation_participants (conversation_id, user_id, role)
        VALUES (:conversation_id, :user_id, :role)`, participants)
	return err
}

// AddParticipant inserts a single participant row.
func (r *ConversationRepo) AddParticipant(ctx context.Context, conversationID, userID string, role models.ParticipantRole) (models.Participant, error) {
	var p models.Participant
	err := r.db.GetContext(ctx, &p, `INSERT INTO conversation_participants (conversation_id, user_id, role)
        VALUES ($1, $2, $3)
        RETURNING id, conversation_id, user_id, role, joined_at, last_read_at, is_muted`,
		conversationID, userID, role)
	return p, err
}

// IsParticipant checks whether a user belongs to the conversation.
func (r *ConversationRepo) IsParticipant(ctx context.Context, conversationID, userID string) (bool, error) {
	var exists bool
	err := r.db.GetContext(ctx, &exists, `SELECT EXISTS(SELECT 1 FROM conversation_participants WHERE conversation_id = $1 AND user_id = $2)`, conversationID, userID)
	return exists, err
}

// MarkRead advances the participant's read high-water mark.
func (r *ConversationRepo) MarkRead(ctx context.Context, conversationID, userID string, at time.Time) error {
	res, err := r.db.ExecContext(ctx, `UPDATE conversation_participants SET last_read_at = GREATEST(COALESCE(last_read_at, $3), $3)
        WHERE conversation_id = $1 AND user_id = $2`, conversationID, userID, at)
	if err != nil {
		return err
	}
	count, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if count == 0 {
		return ErrParticipantNotFound
	}
	return nil
}

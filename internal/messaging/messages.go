package messaging

import (
	"context"
	"fmt"
	"time"

	"golang.org/x/sync/errgroup"

	"campus-messaging/internal/cache"
	"campus-messaging/internal/media"
	"campus-messaging/internal/models"
	"campus-messaging/internal/realtime"
	"campus-messaging/internal/repositories"
	"campus-messaging/internal/storage"
	"campus-messaging/internal/telemetry"
)

type SendRequest struct {
	ConversationID string
	Content        string
	Type           models.MessageType
	ReplyTo        *string
	ClientToken    *string
	Files          []media.File
}

// MessageStore reads conversation history and writes messages, reactions and
// read receipts.
type MessageStore struct {
	messages  repositories.MessageRepository
	reactions repositories.ReactionRepository
	objects   storage.ObjectStore
	deps      Deps
}

func NewMessageStore(messages repositories.MessageRepository, reactions repositories.ReactionRepository, objects storage.ObjectStore, deps Deps) *MessageStore {
	return &MessageStore{
		messages:  messages,
		reactions: reactions,
		objects:   objects,
		deps:      deps.withDefaults(),
	}
}

// History returns the conversation's non-deleted messages, oldest first, with
// attachments, reactions and read receipts.
func (s *MessageStore) History(ctx context.Context, conversationID string) ([]models.Message, error) {
	if _, err := currentUser(ctx); err != nil {
		return nil, err
	}
	return cache.Fetch(ctx, s.deps.Cache, realtime.MessagesKey(conversationID), func(ctx context.Context) ([]models.Message, error) {
		return s.load(ctx, conversationID)
	})
}

func (s *MessageStore) load(ctx context.Context, conversationID string) ([]models.Message, error) {
	const op = "load messages"

	msgs, err := s.messages.ListMessages(ctx, conversationID)
	if err != nil {
		return nil, remoteError(op, err)
	}
	if len(msgs) == 0 {
		return []models.Message{}, nil
	}

	ids := make([]string, len(msgs))
	for i, m := range msgs {
		ids[i] = m.ID
	}

	var (
		attachments []models.Attachment
		reactions   []models.Reaction
		receipts    []models.ReadReceipt
	)
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() (err error) {
		attachments, err = s.messages.ListAttachments(gctx, ids)
		return err
	})
	g.Go(func() (err error) {
		reactions, err = s.reactions.ListReactions(gctx, ids)
		return err
	})
	g.Go(func() (err error) {
		receipts, err = s.reactions.ListReadReceipts(gctx, ids)
		return err
	})
	if err := g.Wait(); err != nil {
		return nil, remoteError(op, err)
	}

	index := make(map[string]int, len(msgs))
	for i := range msgs {
		index[msgs[i].ID] = i
		msgs[i].Attachments = []models.Attachment{}
		msgs[i].Reactions = []models.Reaction{}
		msgs[i].ReadReceipts = []models.ReadReceipt{}
	}
	for _, a := range attachments {
		if i, ok := index[a.MessageID]; ok {
			msgs[i].Attachments = append(msgs[i].Attachments, a)
		}
	}
	for _, r := range reactions {
		if i, ok := index[r.MessageID]; ok {
			msgs[i].Reactions = append(msgs[i].Reactions, r)
		}
	}
	for _, r := range receipts {
		if i, ok := index[r.MessageID]; ok {
			msgs[i].ReadReceipts = append(msgs[i].ReadReceipts, r)
		}
	}
	return msgs, nil
}

// Message returns a single message.
func (s *MessageStore) Message(ctx context.Context, messageID string) (models.Message, error) {
	if _, err := currentUser(ctx); err != nil {
		return models.Message{}, err
	}
	msg, err := s.messages.GetMessage(ctx, messageID)
	if err != nil {
		return models.Message{}, remoteError("get message", err)
	}
	return msg, nil
}

// Send validates every file, inserts the message and then uploads and records
// each attachment in order. An upload failure returns the message with the
// attachments that persisted and a partial failure.
func (s *MessageStore) Send(ctx context.Context, req SendRequest) (models.Message, error) {
	const op = "send message"

	userID, err := currentUser(ctx)
	if err != nil {
		return models.Message{}, err
	}
	if req.ConversationID == "" {
		return models.Message{}, validationError(op, "conversation_id is required")
	}
	for i := range req.Files {
		if err := media.Validate(media.PurposeChat, &req.Files[i]); err != nil {
			return models.Message{}, fileError(op, err)
		}
	}

	content := media.Sanitize(req.Content)
	if content == "" && len(req.Files) == 0 {
		return models.Message{}, validationError(op, "message is empty")
	}

	msgType := req.Type
	if msgType == "" {
		msgType = models.MessageText
		if len(req.Files) > 0 {
			msgType = media.MessageTypeFor(req.Files[0].ContentType)
		}
	}
	if !msgType.Valid() {
		return models.Message{}, validationError(op, fmt.Sprintf("unknown message type %q", msgType))
	}

	msg, err := s.messages.CreateMessage(ctx, models.Message{
		ConversationID: req.ConversationID,
		SenderID:       userID,
		Content:        content,
		MessageType:    msgType,
		ReplyTo:        req.ReplyTo,
		ClientToken:    req.ClientToken,
	})
	if err != nil {
		return models.Message{}, constraintError(op, err, KindConflict)
	}
	msg.Attachments = []models.Attachment{}
	defer s.deps.Bus.Invalidate(realtime.MessagesKey(req.ConversationID), realtime.ConversationsRoot)

	var last time.Time
	for i, f := range req.Files {
		at := s.deps.Now()
		if !at.After(last) {
			at = last.Add(time.Millisecond)
		}
		last = at

		att, err := s.attach(ctx, msg.ID, userID, at, f)
		if err != nil {
			s.deps.Audit.Emit(ctx, telemetry.LevelWarn,
				fmt.Sprintf("message %s saved with %d of %d attachments: %v", msg.ID, i, len(req.Files), err))
			return msg, partialFailure(op, i, len(req.Files), err)
		}
		msg.Attachments = append(msg.Attachments, att)
	}

	s.deps.publish(ctx, models.DomainEvent{
		Type:           models.EventMessageSent,
		ConversationID: msg.ConversationID,
		MessageID:      msg.ID,
		ActorID:        userID,
		Detail:         string(msg.MessageType),
	})
	return msg, nil
}

func (s *MessageStore) attach(ctx context.Context, messageID, userID string, at time.Time, f media.File) (models.Attachment, error) {
	body, err := f.Open()
	if err != nil {
		return models.Attachment{}, fmt.Errorf("open %s: %w", f.Name, err)
	}
	defer body.Close()

	url, err := s.objects.Put(ctx, storage.Object{
		Bucket:      media.AttachmentsBucket,
		Path:        media.ObjectPath(userID, at, f.Name),
		ContentType: f.ContentType,
		Body:        body,
	})
	if err != nil {
		return models.Attachment{}, fmt.Errorf("upload %s: %w", f.Name, err)
	}

	att, err := s.messages.CreateAttachment(ctx, models.Attachment{
		MessageID: messageID,
		FileName:  f.Name,
		FileURL:   url,
		FileType:  f.ContentType,
		FileSize:  f.Size,
	})
	if err != nil {
		return models.Attachment{}, fmt.Errorf("record %s: %w", f.Name, err)
	}
	return att, nil
}

// AddReaction records the caller's emoji on a message. Repeating it is a no-op.
func (s *MessageStore) AddReaction(ctx context.Context, messageID, emoji string) (models.Reaction, error) {
	const op = "add reaction"

	userID, err := currentUser(ctx)
	if err != nil {
		return models.Reaction{}, err
	}
	if emoji == "" {
		return models.Reaction{}, validationError(op, "emoji is required")
	}

	r, err := s.reactions.UpsertReaction(ctx, messageID, userID, emoji)
	if err != nil {
		return models.Reaction{}, remoteError(op, err)
	}
	s.deps.Bus.Invalidate(realtime.MessagesRoot)
	s.deps.publish(ctx, models.DomainEvent{
		Type:      models.EventReactionAdded,
		MessageID: messageID,
		ActorID:   userID,
		Detail:    emoji,
	})
	return r, nil
}

// RemoveReaction deletes the caller's emoji. Removing an absent reaction
// succeeds.
func (s *MessageStore) RemoveReaction(ctx context.Context, messageID, emoji string) error {
	const op = "remove reaction"

	userID, err := currentUser(ctx)
	if err != nil {
		return err
	}
	if emoji == "" {
		return validationError(op, "emoji is required")
	}

	n, err := s.reactions.DeleteReaction(ctx, messageID, userID, emoji)
	if err != nil {
		return remoteError(op, err)
	}
	s.deps.Bus.Invalidate(realtime.MessagesRoot)
	if n > 0 {
		s.deps.publish(ctx, models.DomainEvent{
			Type:      models.EventReactionRemoved,
			MessageID: messageID,
			ActorID:   userID,
			Detail:    emoji,
		})
	}
	return nil
}

// MarkAsRead records that the caller has read the message. The first read
// time is kept.
func (s *MessageStore) MarkAsRead(ctx context.Context, messageID string) error {
	userID, err := currentUser(ctx)
	if err != nil {
		return err
	}
	if err := s.reactions.UpsertReadReceipt(ctx, messageID, userID, s.deps.Now().UTC()); err != nil {
		return remoteError("mark message read", err)
	}
	return nil
}

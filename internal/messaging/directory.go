package messaging

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/go-playground/validator/v10"
	"golang.org/x/sync/errgroup"

	"campus-messaging/internal/cache"
	"campus-messaging/internal/models"
	"campus-messaging/internal/realtime"
	"campus-messaging/internal/repositories"
	"campus-messaging/internal/telemetry"
)

var validate = validator.New()

// neverRead stands in for an unset last_read_at.
var neverRead = time.Unix(0, 0).UTC()

type CreateGroupRequest struct {
	Name           string   `json:"name" validate:"required,max=100"`
	Description    *string  `json:"description" validate:"omitempty,max=500"`
	ParticipantIDs []string `json:"participant_ids" validate:"min=1,dive,required"`
}

// Directory lists the signed-in user's conversations and creates new ones.
type Directory struct {
	repo        repositories.ConversationRepository
	deps        Deps
	concurrency int
}

func NewDirectory(repo repositories.ConversationRepository, deps Deps, concurrency int) *Directory {
	if concurrency <= 0 {
		concurrency = 8
	}
	return &Directory{repo: repo, deps: deps.withDefaults(), concurrency: concurrency}
}

// List returns the caller's conversations, most recently active first.
func (d *Directory) List(ctx context.Context) ([]models.ConversationSummary, error) {
	userID, err := currentUser(ctx)
	if err != nil {
		return nil, err
	}
	return cache.Fetch(ctx, d.deps.Cache, realtime.ConversationsKey(userID), func(ctx context.Context) ([]models.ConversationSummary, error) {
		return d.load(ctx, userID)
	})
}

func (d *Directory) load(ctx context.Context, userID string) ([]models.ConversationSummary, error) {
	const op = "list conversations"

	convs, err := d.repo.ListForUser(ctx, userID)
	if err != nil {
		return nil, remoteError(op, err)
	}
	summaries := make([]models.ConversationSummary, len(convs))
	ids := make([]string, len(convs))
	index := make(map[string]int, len(convs))
	for i, c := range convs {
		summaries[i] = models.ConversationSummary{Conversation: c, Participants: []models.Participant{}}
		ids[i] = c.ID
		index[c.ID] = i
	}

	participants, err := d.repo.ListParticipants(ctx, ids)
	if err != nil {
		return nil, remoteError(op, err)
	}
	for _, p := range participants {
		if i, ok := index[p.ConversationID]; ok {
			summaries[i].Participants = append(summaries[i].Participants, p)
		}
	}

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(d.concurrency)
	for i := range summaries {
		s := &summaries[i]
		g.Go(func() error {
			last, err := d.repo.LastMessage(gctx, s.ID)
			if err != nil {
				return err
			}
			since := neverRead
			if p, ok := s.Participant(userID); ok && p.LastReadAt != nil {
				since = *p.LastReadAt
			}
			unread, err := d.repo.UnreadCount(gctx, s.ID, userID, since)
			if err != nil {
				return err
			}
			s.LastMessage = last
			s.UnreadCount = unread
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, remoteError(op, err)
	}

	sort.SliceStable(summaries, func(i, j int) bool {
		a, b := summaries[i], summaries[j]
		if !a.LastMessageAt.Equal(b.LastMessageAt) {
			return a.LastMessageAt.After(b.LastMessageAt)
		}
		return a.CreatedAt.After(b.CreatedAt)
	})
	return summaries, nil
}

// IsMember reports whether the caller participates in the conversation.
func (d *Directory) IsMember(ctx context.Context, conversationID string) (bool, error) {
	userID, err := currentUser(ctx)
	if err != nil {
		return false, err
	}
	ok, err := d.repo.IsParticipant(ctx, conversationID, userID)
	if err != nil {
		return false, remoteError("check membership", err)
	}
	return ok, nil
}

// CreateDirect finds or creates the direct conversation between the caller
// and otherUserID.
func (d *Directory) CreateDirect(ctx context.Context, otherUserID string) (models.Conversation, error) {
	const op = "create direct conversation"

	userID, err := currentUser(ctx)
	if err != nil {
		return models.Conversation{}, err
	}
	if otherUserID == "" {
		return models.Conversation{}, validationError(op, "user_id is required")
	}
	if otherUserID == userID {
		return models.Conversation{}, validationError(op, "cannot start a conversation with yourself")
	}

	conv, created, err := d.repo.CreateOrGetDirect(ctx, userID, otherUserID)
	if err != nil {
		return models.Conversation{}, constraintError(op, err, KindConflictOrPermission)
	}
	if created {
		d.deps.Bus.Invalidate(realtime.ConversationsRoot)
		d.deps.publish(ctx, models.DomainEvent{
			Type:           models.EventConversationCreated,
			ConversationID: conv.ID,
			ActorID:        userID,
			Detail:         string(models.ConversationDirect),
		})
	}
	return conv, nil
}

// CreateGroup creates a group with the caller as admin. When the roster
// insert fails the conversation is returned together with a partial failure.
func (d *Directory) CreateGroup(ctx context.Context, req CreateGroupRequest) (models.Conversation, error) {
	const op = "create group"

	userID, err := currentUser(ctx)
	if err != nil {
		return models.Conversation{}, err
	}
	if err := validate.Struct(req); err != nil {
		return models.Conversation{}, validationError(op, err.Error())
	}

	name := req.Name
	conv, err := d.repo.CreateConversation(ctx, models.Conversation{
		Type:        models.ConversationGroup,
		Name:        &name,
		Description: req.Description,
		CreatedBy:   userID,
	})
	if err != nil {
		return models.Conversation{}, constraintError(op, err, KindConflict)
	}
	d.deps.Bus.Invalidate(realtime.ConversationsRoot)

	roster := []models.Participant{{ConversationID: conv.ID, UserID: userID, Role: models.RoleAdmin}}
	seen := map[string]bool{userID: true}
	for _, id := range req.ParticipantIDs {
		if seen[id] {
			continue
		}
		seen[id] = true
		roster = append(roster, models.Participant{ConversationID: conv.ID, UserID: id, Role: models.RoleMember})
	}

	if err := d.repo.AddParticipants(ctx, roster); err != nil {
		d.deps.Audit.Emit(ctx, telemetry.LevelError,
			fmt.Sprintf("group %s created without participants: %v", conv.ID, err))
		return conv, partialFailure(op, 1, 2, remoteError(op, err))
	}

	d.deps.publish(ctx, models.DomainEvent{
		Type:           models.EventConversationCreated,
		ConversationID: conv.ID,
		ActorID:        userID,
		Detail:         string(models.ConversationGroup),
	})
	return conv, nil
}

// AddParticipant adds userID to the conversation as a member.
func (d *Directory) AddParticipant(ctx context.Context, conversationID, userID string) (models.Participant, error) {
	const op = "add participant"

	actorID, err := currentUser(ctx)
	if err != nil {
		return models.Participant{}, err
	}
	if userID == "" {
		return models.Participant{}, validationError(op, "user_id is required")
	}

	p, err := d.repo.AddParticipant(ctx, conversationID, userID, models.RoleMember)
	if err != nil {
		return models.Participant{}, constraintError(op, err, KindConflict)
	}
	d.deps.Bus.Invalidate(realtime.ConversationsRoot)
	d.deps.publish(ctx, models.DomainEvent{
		Type:           models.EventParticipantAdded,
		ConversationID: conversationID,
		ActorID:        actorID,
		Detail:         userID,
	})
	return p, nil
}

// MarkConversationRead advances the caller's read marker to now.
func (d *Directory) MarkConversationRead(ctx context.Context, conversationID string) error {
	userID, err := currentUser(ctx)
	if err != nil {
		return err
	}
	if err := d.repo.MarkRead(ctx, conversationID, userID, d.deps.Now().UTC()); err != nil {
		return remoteError("mark conversation read", err)
	}
	d.deps.Bus.Invalidate(realtime.ConversationsKey(userID))
	return nil
}

// Title is the directory label of a conversation as seen by viewerID.
func Title(s models.ConversationSummary, viewerID string) string {
	if s.Type == models.ConversationGroup {
		if s.Name != nil && *s.Name != "" {
			return *s.Name
		}
		return "Unnamed Group"
	}
	if other, ok := otherParticipant(s, viewerID); ok {
		if name := other.User.Name(); name != "" {
			return name
		}
	}
	return "Unknown User"
}

// Avatar is the avatar URL shown for a conversation, or nil.
func Avatar(s models.ConversationSummary, viewerID string) *string {
	if s.Type == models.ConversationGroup {
		return s.AvatarURL
	}
	if other, ok := otherParticipant(s, viewerID); ok {
		return other.User.AvatarURL
	}
	return nil
}

func otherParticipant(s models.ConversationSummary, viewerID string) (models.Participant, bool) {
	for _, p := range s.Participants {
		if p.UserID != viewerID {
			return p, true
		}
	}
	return models.Participant{}, false
}

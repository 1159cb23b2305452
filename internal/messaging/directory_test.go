package messaging_test

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/lib/pq"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"campus-messaging/internal/auth"
	"campus-messaging/internal/cache"
	"campus-messaging/internal/logger"
	"campus-messaging/internal/messaging"
	"campus-messaging/internal/mocks"
	"campus-messaging/internal/models"
	"campus-messaging/internal/realtime"
	"campus-messaging/internal/telemetry"
)

var fixedNow = time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)

func strPtr(s string) *string { return &s }

func userCtx(id string) context.Context {
	return auth.WithUser(context.Background(), id)
}

type invalidations struct {
	mu   sync.Mutex
	seen []cache.Key
}

func (r *invalidations) keys() []cache.Key {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]cache.Key(nil), r.seen...)
}

type harness struct {
	deps   messaging.Deps
	events *mocks.PublisherMock
	seen   *invalidations
}

func newHarness() harness {
	bus := realtime.NewBus()
	seen := &invalidations{}
	bus.Subscribe(func(inv realtime.Invalidation) {
		seen.mu.Lock()
		seen.seen = append(seen.seen, inv.Key)
		seen.mu.Unlock()
	})
	events := new(mocks.PublisherMock)
	events.On("Publish", mock.Anything, mock.Anything, mock.Anything).Return(nil).Maybe()
	audit := telemetry.NewAuditEmitter(events, "audit.messaging", "campus-messaging", "test", logger.Nop())
	return harness{
		deps: messaging.Deps{
			Cache:  cache.New(),
			Bus:    bus,
			Events: events,
			Audit:  audit,
			Log:    logger.Nop(),
			Now:    func() time.Time { return fixedNow },
		},
		events: events,
		seen:   seen,
	}
}

func TestListUnauthenticatedSkipsQueries(t *testing.T) {
	repo := new(mocks.ConversationRepositoryMock)
	dir := messaging.NewDirectory(repo, newHarness().deps, 4)

	_, err := dir.List(context.Background())

	require.Error(t, err)
	assert.Equal(t, messaging.KindUnauthenticated, messaging.KindOf(err))
	repo.AssertNotCalled(t, "ListForUser", mock.Anything, mock.Anything)
}

func TestListDerivesUnreadAndSorts(t *testing.T) {
	repo := new(mocks.ConversationRepositoryMock)
	dir := messaging.NewDirectory(repo, newHarness().deps, 4)
	ctx := userCtx("u1")

	lastRead := fixedNow.Add(-time.Hour)
	older := models.Conversation{ID: "c1", Type: models.ConversationDirect, CreatedAt: fixedNow.Add(-48 * time.Hour), LastMessageAt: fixedNow.Add(-2 * time.Hour)}
	newer := models.Conversation{ID: "c2", Type: models.ConversationGroup, Name: strPtr("Study"), CreatedAt: fixedNow.Add(-24 * time.Hour), LastMessageAt: fixedNow.Add(-time.Minute)}

	repo.On("ListForUser", mock.Anything, "u1").Return([]models.Conversation{older, newer}, nil).Once()
	repo.On("ListParticipants", mock.Anything, []string{"c1", "c2"}).Return([]models.Participant{
		{ConversationID: "c1", UserID: "u1", LastReadAt: &lastRead},
		{ConversationID: "c1", UserID: "u2", User: models.Profile{ID: "u2", Username: "bob"}},
		{ConversationID: "c2", UserID: "u1"},
	}, nil).Once()
	repo.On("LastMessage", mock.Anything, "c1").Return(&models.LastMessagePreview{Content: "hi", SenderName: "bob"}, nil).Once()
	repo.On("LastMessage", mock.Anything, "c2").Return((*models.LastMessagePreview)(nil), nil).Once()
	repo.On("UnreadCount", mock.Anything, "c1", "u1", lastRead).Return(2, nil).Once()
	repo.On("UnreadCount", mock.Anything, "c2", "u1", time.Unix(0, 0).UTC()).Return(0, nil).Once()

	list, err := dir.List(ctx)
	require.NoError(t, err)
	require.Len(t, list, 2)

	assert.Equal(t, "c2", list[0].ID)
	assert.Equal(t, "c1", list[1].ID)
	assert.Equal(t, 2, list[1].UnreadCount)
	assert.Equal(t, "hi", list[1].LastMessage.Content)
	assert.Nil(t, list[0].LastMessage)
	assert.Equal(t, "bob", messaging.Title(list[1], "u1"))
	assert.Equal(t, "Study", messaging.Title(list[0], "u1"))

	// Served from cache the second time.
	_, err = dir.List(ctx)
	require.NoError(t, err)
	repo.AssertExpectations(t)
}

func TestListPropagatesRemoteError(t *testing.T) {
	repo := new(mocks.ConversationRepositoryMock)
	dir := messaging.NewDirectory(repo, newHarness().deps, 4)

	repo.On("ListForUser", mock.Anything, "u1").Return([]models.Conversation{{ID: "c1"}}, nil).Once()
	repo.On("ListParticipants", mock.Anything, []string{"c1"}).Return([]models.Participant{}, nil).Once()
	repo.On("LastMessage", mock.Anything, "c1").Return(nil, &pq.Error{Code: "57014", Message: "canceling statement"}).Once()

	_, err := dir.List(userCtx("u1"))
	require.Error(t, err)
	assert.Equal(t, messaging.KindRemote, messaging.KindOf(err))
	assert.Contains(t, err.Error(), "canceling statement")
}

func TestTitleAndAvatarFallbacks(t *testing.T) {
	group := models.ConversationSummary{Conversation: models.Conversation{Type: models.ConversationGroup}}
	assert.Equal(t, "Unnamed Group", messaging.Title(group, "u1"))

	direct := models.ConversationSummary{
		Conversation: models.Conversation{Type: models.ConversationDirect},
		Participants: []models.Participant{{UserID: "u1"}},
	}
	assert.Equal(t, "Unknown User", messaging.Title(direct, "u1"))
	assert.Nil(t, messaging.Avatar(direct, "u1"))

	direct.Participants = append(direct.Participants, models.Participant{
		UserID: "u2",
		User:   models.Profile{Username: "bob", DisplayName: strPtr("Bob B"), AvatarURL: strPtr("https://cdn/bob.png")},
	})
	assert.Equal(t, "Bob B", messaging.Title(direct, "u1"))
	assert.Equal(t, "https://cdn/bob.png", *messaging.Avatar(direct, "u1"))
}

func TestCreateDirectWithSelfIsValidation(t *testing.T) {
	repo := new(mocks.ConversationRepositoryMock)
	dir := messaging.NewDirectory(repo, newHarness().deps, 4)

	_, err := dir.CreateDirect(userCtx("u1"), "u1")
	assert.Equal(t, messaging.KindValidation, messaging.KindOf(err))
	repo.AssertNotCalled(t, "CreateOrGetDirect", mock.Anything, mock.Anything, mock.Anything)
}

func TestCreateDirectIsIdempotent(t *testing.T) {
	h := newHarness()
	repo := new(mocks.ConversationRepositoryMock)
	dir := messaging.NewDirectory(repo, h.deps, 4)

	existing := models.Conversation{ID: "c1", Type: models.ConversationDirect}
	repo.On("CreateOrGetDirect", mock.Anything, "u1", "u2").Return(existing, false, nil).Once()

	conv, err := dir.CreateDirect(userCtx("u1"), "u2")
	require.NoError(t, err)
	assert.Equal(t, "c1", conv.ID)
	assert.Empty(t, h.seen.keys(), "finding an existing conversation invalidates nothing")
	h.events.AssertNotCalled(t, "Publish", mock.Anything, models.EventConversationCreated, mock.Anything)
}

func TestCreateDirectRejectedByAccessRules(t *testing.T) {
	repo := new(mocks.ConversationRepositoryMock)
	dir := messaging.NewDirectory(repo, newHarness().deps, 4)

	repo.On("CreateOrGetDirect", mock.Anything, "u1", "u2").
		Return(nil, false, &pq.Error{Code: "42501", Message: "new row violates row-level security policy"}).Once()

	_, err := dir.CreateDirect(userCtx("u1"), "u2")
	assert.Equal(t, messaging.KindConflictOrPermission, messaging.KindOf(err))
}

func TestCreateGroupRoster(t *testing.T) {
	h := newHarness()
	repo := new(mocks.ConversationRepositoryMock)
	dir := messaging.NewDirectory(repo, h.deps, 4)

	repo.On("CreateConversation", mock.Anything, mock.MatchedBy(func(c models.Conversation) bool {
		return c.Type == models.ConversationGroup && *c.Name == "Study" && c.CreatedBy == "u1"
	})).Return(models.Conversation{ID: "g1", Type: models.ConversationGroup}, nil).Once()
	repo.On("AddParticipants", mock.Anything, []models.Participant{
		{ConversationID: "g1", UserID: "u1", Role: models.RoleAdmin},
		{ConversationID: "g1", UserID: "u2", Role: models.RoleMember},
		{ConversationID: "g1", UserID: "u3", Role: models.RoleMember},
	}).Return(nil).Once()

	conv, err := dir.CreateGroup(userCtx("u1"), messaging.CreateGroupRequest{
		Name:           "Study",
		ParticipantIDs: []string{"u2", "u1", "u3", "u2"},
	})
	require.NoError(t, err)
	assert.Equal(t, "g1", conv.ID)
	assert.Contains(t, h.seen.keys(), realtime.ConversationsRoot)
	repo.AssertExpectations(t)
}

func TestCreateGroupPartialFailureKeepsConversation(t *testing.T) {
	h := newHarness()
	repo := new(mocks.ConversationRepositoryMock)
	dir := messaging.NewDirectory(repo, h.deps, 4)

	repo.On("CreateConversation", mock.Anything, mock.Anything).Return(models.Conversation{ID: "g1"}, nil).Once()
	repo.On("AddParticipants", mock.Anything, mock.Anything).Return(assert.AnError).Once()

	conv, err := dir.CreateGroup(userCtx("u1"), messaging.CreateGroupRequest{Name: "Study", ParticipantIDs: []string{"u2"}})

	require.Error(t, err)
	assert.Equal(t, messaging.KindPartialFailure, messaging.KindOf(err))
	assert.Equal(t, "g1", conv.ID)
	h.events.AssertCalled(t, "Publish", mock.Anything, "audit.messaging", mock.AnythingOfType("telemetry.AuditEnvelope"))
}

func TestCreateGroupValidation(t *testing.T) {
	repo := new(mocks.ConversationRepositoryMock)
	dir := messaging.NewDirectory(repo, newHarness().deps, 4)

	_, err := dir.CreateGroup(userCtx("u1"), messaging.CreateGroupRequest{ParticipantIDs: []string{"u2"}})
	assert.Equal(t, messaging.KindValidation, messaging.KindOf(err))
	repo.AssertNotCalled(t, "CreateConversation", mock.Anything, mock.Anything)
}

func TestAddParticipantDuplicateIsConflict(t *testing.T) {
	repo := new(mocks.ConversationRepositoryMock)
	dir := messaging.NewDirectory(repo, newHarness().deps, 4)

	repo.On("AddParticipant", mock.Anything, "g1", "u2", models.RoleMember).
		Return(nil, &pq.Error{Code: "23505", Message: "duplicate key value"}).Once()

	_, err := dir.AddParticipant(userCtx("u1"), "g1", "u2")
	assert.Equal(t, messaging.KindConflict, messaging.KindOf(err))
}

func TestMarkConversationRead(t *testing.T) {
	h := newHarness()
	repo := new(mocks.ConversationRepositoryMock)
	dir := messaging.NewDirectory(repo, h.deps, 4)

	repo.On("MarkRead", mock.Anything, "c1", "u1", fixedNow).Return(nil).Once()

	require.NoError(t, dir.MarkConversationRead(userCtx("u1"), "c1"))
	assert.Equal(t, []cache.Key{realtime.ConversationsKey("u1")}, h.seen.keys())
}

func TestIsMemberMalformedIDIsNotFound(t *testing.T) {
	repo := new(mocks.ConversationRepositoryMock)
	dir := messaging.NewDirectory(repo, newHarness().deps, 4)

	repo.On("IsParticipant", mock.Anything, "abc", "u1").
		Return(false, &pq.Error{Code: "22P02", Message: `invalid input syntax for type uuid: "abc"`}).Once()

	_, err := dir.IsMember(userCtx("u1"), "abc")
	assert.Equal(t, messaging.KindNotFound, messaging.KindOf(err))
}

package ws

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"campus-messaging/internal/auth"
	"campus-messaging/internal/logger"
	"campus-messaging/internal/messaging"
	"campus-messaging/internal/mocks"
	"campus-messaging/internal/models"
	"campus-messaging/internal/realtime"
)

type fakeConn struct {
	in     chan ClientFrame
	out    chan ServerFrame
	closed chan struct{}
	once   sync.Once
}

func newFakeConn() *fakeConn {
	return &fakeConn{
		in:     make(chan ClientFrame, 8),
		out:    make(chan ServerFrame, 64),
		closed: make(chan struct{}),
	}
}

func (c *fakeConn) ReadJSON(v interface{}) error {
	select {
	case f := <-c.in:
		data, _ := json.Marshal(f)
		return json.Unmarshal(data, v)
	case <-c.closed:
		return errors.New("use of closed connection")
	}
}

func (c *fakeConn) WriteJSON(v interface{}) error {
	select {
	case <-c.closed:
		return errors.New("use of closed connection")
	default:
	}
	c.out <- v.(ServerFrame)
	return nil
}

func (c *fakeConn) Close() error {
	c.once.Do(func() { close(c.closed) })
	return nil
}

// next returns the next frame of type typ, skipping others.
func (c *fakeConn) next(t *testing.T, typ string) ServerFrame {
	t.Helper()
	deadline := time.After(time.Second)
	for {
		select {
		case f := <-c.out:
			if f.Type == typ {
				return f
			}
		case <-deadline:
			t.Fatalf("no %s frame", typ)
			return ServerFrame{}
		}
	}
}

type fakePresence struct {
	mu      sync.Mutex
	offline bool
	visible []bool
}

func (p *fakePresence) Track(ctx context.Context, userID string) {
	<-ctx.Done()
	p.mu.Lock()
	p.offline = true
	p.mu.Unlock()
}

func (p *fakePresence) SetVisible(_ context.Context, _ string, visible bool) {
	p.mu.Lock()
	p.visible = append(p.visible, visible)
	p.mu.Unlock()
}

type fakeTyping struct {
	mu       sync.Mutex
	started  []string
	stopped  []string
	released []string
	rows     []models.TypingIndicator
}

func (f *fakeTyping) Start(_ context.Context, cid string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.started = append(f.started, cid)
	return nil
}

func (f *fakeTyping) Stop(_ context.Context, cid string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.stopped = append(f.stopped, cid)
	return nil
}

func (f *fakeTyping) Release(cid, _ string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.released = append(f.released, cid)
}

func (f *fakeTyping) Typing(context.Context, string, string) ([]models.TypingIndicator, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.rows, nil
}

type fixture struct {
	conn      *fakeConn
	session   *Session
	directory *mocks.DirectoryServiceMock
	messages  *mocks.MessageServiceMock
	typing    *fakeTyping
	presence  *fakePresence
	hub       *Hub
	done      chan string
	cancel    context.CancelFunc
}

func startSession(t *testing.T) *fixture {
	t.Helper()
	f := &fixture{
		conn:      newFakeConn(),
		directory: new(mocks.DirectoryServiceMock),
		messages:  new(mocks.MessageServiceMock),
		typing:    &fakeTyping{},
		presence:  &fakePresence{},
		done:      make(chan string, 1),
	}
	f.hub = NewHub(nil, logger.Nop())
	f.session = NewSession(ConnInfo{ConnID: "conn-1", UserID: "u1"}, f.conn, Services{
		Directory: f.directory,
		Messages:  f.messages,
		Typing:    f.typing,
		Presence:  f.presence,
	}, 400, logger.Nop())
	f.hub.Add(f.session)

	ctx, cancel := context.WithCancel(context.Background())
	f.cancel = cancel
	go func() { f.done <- f.session.Run(ctx) }()
	f.conn.next(t, FrameView)
	return f
}

func (f *fixture) stop(t *testing.T) {
	t.Helper()
	f.cancel()
	select {
	case <-f.done:
	case <-time.After(time.Second):
		t.Fatal("session did not stop")
	}
}

func TestHubNotifiesSubscribedSessionsOnly(t *testing.T) {
	f := startSession(t)
	defer f.stop(t)

	f.hub.Notify(realtime.Invalidation{Key: realtime.MessagesKey("other")})
	f.hub.Notify(realtime.Invalidation{Key: realtime.ConversationsRoot})

	frame := f.conn.next(t, FrameInvalidate)
	assert.Equal(t, "conversations", frame.Key)
	assert.Equal(t, 1, f.hub.Len())
}

func TestSelectPushesTimelineAndMarksRead(t *testing.T) {
	f := startSession(t)
	defer f.stop(t)

	f.directory.On("IsMember", mock.Anything, "c1").Return(true, nil).Once()
	f.messages.On("History", mock.Anything, "c1").Return([]models.Message{
		{ID: "m1", SenderID: "u1"},
		{ID: "m2", SenderID: "u2"},
	}, nil).Once()
	f.messages.On("MarkAsRead", mock.MatchedBy(func(ctx context.Context) bool {
		id, ok := auth.UserID(ctx)
		return ok && id == "u1"
	}), "m2").Return(nil).Once()
	f.directory.On("MarkConversationRead", mock.Anything, "c1").Return(nil).Once()

	f.conn.in <- ClientFrame{Type: FrameSelect, ConversationID: "c1"}

	view := f.conn.next(t, FrameView)
	assert.True(t, view.View.ShowChat)
	assert.False(t, view.View.ShowList)

	timeline := f.conn.next(t, FrameTimeline)
	require.Len(t, timeline.Timeline, 2)
	assert.Equal(t, "m2", timeline.Timeline[1].Message.ID)

	f.conn.next(t, FrameTyping)
	assert.True(t, f.session.Subscribed(realtime.MessagesKey("c1")))
	f.messages.AssertExpectations(t)
	f.directory.AssertExpectations(t)
}

func TestSelectRejectsNonMember(t *testing.T) {
	f := startSession(t)
	defer f.stop(t)

	f.directory.On("IsMember", mock.Anything, "c9").Return(false, nil).Once()
	f.conn.in <- ClientFrame{Type: FrameSelect, ConversationID: "c9"}

	frame := f.conn.next(t, FrameError)
	assert.Equal(t, "not a conversation member", frame.Error)
	assert.False(t, f.session.Subscribed(realtime.MessagesKey("c9")))
}

func TestSendShowsPendingThenReconciles(t *testing.T) {
	f := startSession(t)
	defer f.stop(t)

	token := "tok-1"
	f.directory.On("IsMember", mock.Anything, "c1").Return(true, nil).Once()
	f.messages.On("History", mock.Anything, "c1").Return([]models.Message{}, nil).Once()
	f.messages.On("Send", mock.Anything, mock.MatchedBy(func(req messaging.SendRequest) bool {
		return req.ConversationID == "c1" && req.Content == "hello" && *req.ClientToken == token
	})).Run(func(mock.Arguments) {
		f.hub.Notify(realtime.Invalidation{Key: realtime.MessagesKey("c1")})
	}).Return(models.Message{ID: "m1", ClientToken: &token}, nil).Once()
	f.messages.On("History", mock.Anything, "c1").Return([]models.Message{
		{ID: "m1", SenderID: "u1", Content: "hello", ClientToken: &token},
	}, nil).Once()

	f.conn.in <- ClientFrame{Type: FrameSelect, ConversationID: "c1"}
	f.conn.next(t, FrameTimeline)

	f.conn.in <- ClientFrame{Type: FrameSend, Content: "hello", ClientToken: token}

	pending := f.conn.next(t, FrameTimeline)
	require.Len(t, pending.Timeline, 1)
	require.NotNil(t, pending.Timeline[0].Pending)

	confirmed := f.conn.next(t, FrameTimeline)
	require.Len(t, confirmed.Timeline, 1)
	require.NotNil(t, confirmed.Timeline[0].Message)
	assert.Equal(t, "m1", confirmed.Timeline[0].Message.ID)
	f.messages.AssertNotCalled(t, "MarkAsRead", mock.Anything, mock.Anything)
}

func TestCloseReleasesTypistsAndPresence(t *testing.T) {
	f := startSession(t)

	f.directory.On("IsMember", mock.Anything, "c1").Return(true, nil).Once()
	f.messages.On("History", mock.Anything, "c1").Return([]models.Message{}, nil).Once()

	f.conn.in <- ClientFrame{Type: FrameSelect, ConversationID: "c1"}
	f.conn.next(t, FrameTyping)
	f.conn.in <- ClientFrame{Type: FrameTyping}
	f.conn.in <- ClientFrame{Type: FrameVisibility, Hidden: true}
	f.conn.in <- ClientFrame{Type: FrameLayout, Width: 1200}
	view := f.conn.next(t, FrameView)
	assert.Equal(t, messaging.LayoutWide, view.View.Layout)

	_ = f.conn.Close()
	select {
	case reason := <-f.done:
		assert.Contains(t, reason, "closed")
	case <-time.After(time.Second):
		t.Fatal("session did not stop")
	}

	assert.Equal(t, []string{"c1"}, f.typing.started)
	assert.Equal(t, []string{"c1"}, f.typing.released)
	assert.Equal(t, []bool{false}, f.presence.visible)
	assert.True(t, f.presence.offline)
}

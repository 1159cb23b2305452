package ws

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"campus-messaging/internal/auth"
	"campus-messaging/internal/cache"
	"campus-messaging/internal/logger"
	"campus-messaging/internal/messaging"
	"campus-messaging/internal/models"
	"campus-messaging/internal/realtime"
)

// Client frame types.
const (
	FrameSelect     = "select"
	FrameBack       = "back"
	FrameLayout     = "layout"
	FrameReply      = "reply"
	FrameNewChat    = "new_chat"
	FrameTyping     = "typing"
	FrameStopTyping = "stop_typing"
	FrameVisibility = "visibility"
	FrameSend       = "send"
)

// Server frame types.
const (
	FrameInvalidate = "invalidate"
	FrameTimeline   = "timeline"
	FrameView       = "view"
	FrameError      = "error"
)

type ClientFrame struct {
	Type           string `json:"type"`
	ConversationID string `json:"conversation_id,omitempty"`
	MessageID      string `json:"message_id,omitempty"`
	Width          int    `json:"width,omitempty"`
	Hidden         bool   `json:"hidden,omitempty"`
	Open           bool   `json:"open,omitempty"`
	Content        string `json:"content,omitempty"`
	ClientToken    string `json:"client_token,omitempty"`
}

type ServerFrame struct {
	Type           string                    `json:"type"`
	Key            string                    `json:"key,omitempty"`
	ConversationID string                    `json:"conversation_id,omitempty"`
	Timeline       []messaging.TimelineEntry `json:"timeline,omitempty"`
	Typing         []string                  `json:"typing,omitempty"`
	Text           string                    `json:"text,omitempty"`
	View           *messaging.ViewState      `json:"view,omitempty"`
	Error          string                    `json:"error,omitempty"`
}

// Conn is the part of a websocket connection a session uses.
type Conn interface {
	ReadJSON(v interface{}) error
	WriteJSON(v interface{}) error
	Close() error
}

type Directory interface {
	IsMember(ctx context.Context, conversationID string) (bool, error)
	MarkConversationRead(ctx context.Context, conversationID string) error
}

type Messages interface {
	History(ctx context.Context, conversationID string) ([]models.Message, error)
	Send(ctx context.Context, req messaging.SendRequest) (models.Message, error)
	MarkAsRead(ctx context.Context, messageID string) error
}

type Typing interface {
	Start(ctx context.Context, conversationID string) error
	Stop(ctx context.Context, conversationID string) error
	Release(conversationID, userID string)
	Typing(ctx context.Context, conversationID, viewerID string) ([]models.TypingIndicator, error)
}

type Presence interface {
	Track(ctx context.Context, userID string)
	SetVisible(ctx context.Context, userID string, visible bool)
}

// Services are the messaging components a session drives.
type Services struct {
	Directory Directory
	Messages  Messages
	Typing    Typing
	Presence  Presence
}

// Session is one websocket client. A single loop owns the view state and
// pending messages; the hub only marks keys dirty.
type Session struct {
	info ConnInfo
	conn Conn
	svc  Services
	log  *logger.Logger
	now  func() time.Time

	view       *messaging.ViewState
	pending    []messaging.PendingMessage
	touched    map[string]bool
	lastMarked string

	mu    sync.Mutex
	subs  []cache.Key
	dirty map[cache.Key]bool
	wake  chan struct{}

	out chan ServerFrame
}

func NewSession(info ConnInfo, conn Conn, svc Services, width int, log *logger.Logger) *Session {
	s := &Session{
		info:    info,
		conn:    conn,
		svc:     svc,
		log:     log.With(zap.String("conn_id", info.ConnID), zap.String("user_id", info.UserID)),
		now:     time.Now,
		view:    messaging.NewViewState(width),
		touched: make(map[string]bool),
		dirty:   make(map[cache.Key]bool),
		wake:    make(chan struct{}, 1),
		out:     make(chan ServerFrame, 64),
	}
	s.subs = s.view.Subscriptions(info.UserID)
	return s
}

// Subscribed reports whether the session's view depends on key or anything
// under it.
func (s *Session) Subscribed(key cache.Key) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, sub := range s.subs {
		if sub.Matches(key) {
			return true
		}
	}
	return false
}

// Invalidated marks key dirty and wakes the session loop.
func (s *Session) Invalidated(key cache.Key) {
	s.mu.Lock()
	s.dirty[key] = true
	s.mu.Unlock()

	select {
	case s.wake <- struct{}{}:
	default:
	}
}

// Run serves the session until the connection fails or ctx ends. It returns
// the close reason after presence is marked offline and typists are released.
func (s *Session) Run(ctx context.Context) string {
	ctx = auth.WithUser(ctx, s.info.UserID)
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	var wg sync.WaitGroup
	wg.Add(2)
	go func() {
		defer wg.Done()
		s.svc.Presence.Track(ctx, s.info.UserID)
	}()
	go func() {
		defer wg.Done()
		s.writeLoop(ctx, cancel)
	}()

	frames := make(chan ClientFrame)
	readErr := make(chan error, 1)
	go s.readLoop(ctx, frames, readErr)

	s.emit(ctx, ServerFrame{Type: FrameView, View: s.snapshotView()})

	reason := ""
loop:
	for {
		select {
		case <-ctx.Done():
			reason = "context done"
			break loop
		case err := <-readErr:
			reason = err.Error()
			break loop
		case f := <-frames:
			s.handle(ctx, f)
		case <-s.wake:
			s.flush(ctx)
		}
	}

	cancel()
	_ = s.conn.Close()
	for cid := range s.touched {
		s.svc.Typing.Release(cid, s.info.UserID)
	}
	wg.Wait()
	return reason
}

func (s *Session) readLoop(ctx context.Context, frames chan<- ClientFrame, readErr chan<- error) {
	for {
		var f ClientFrame
		if err := s.conn.ReadJSON(&f); err != nil {
			readErr <- err
			return
		}
		select {
		case frames <- f:
		case <-ctx.Done():
			return
		}
	}
}

func (s *Session) writeLoop(ctx context.Context, cancel context.CancelFunc) {
	for {
		select {
		case <-ctx.Done():
			return
		case f := <-s.out:
			if err := s.conn.WriteJSON(f); err != nil {
				s.log.Debug("ws write failed", zap.Error(err))
				cancel()
				return
			}
		}
	}
}

func (s *Session) emit(ctx context.Context, f ServerFrame) {
	select {
	case s.out <- f:
	case <-ctx.Done():
	}
}

func (s *Session) fail(ctx context.Context, msg string) {
	s.emit(ctx, ServerFrame{Type: FrameError, Error: msg})
}

func (s *Session) handle(ctx context.Context, f ClientFrame) {
	switch f.Type {
	case FrameSelect:
		ok, err := s.svc.Directory.IsMember(ctx, f.ConversationID)
		if err != nil {
			s.fail(ctx, err.Error())
			return
		}
		if !ok {
			s.fail(ctx, "not a conversation member")
			return
		}
		s.view.Select(f.ConversationID)
		s.pending = nil
		s.lastMarked = ""
		s.viewChanged(ctx)
		s.pushTimeline(ctx)
		s.pushTyping(ctx)
	case FrameBack:
		s.view.Back()
		s.viewChanged(ctx)
	case FrameLayout:
		s.view.Resize(f.Width)
		s.viewChanged(ctx)
	case FrameReply:
		if f.MessageID == "" {
			s.view.ClearReply()
		} else {
			s.view.SetReply(f.MessageID)
		}
		s.viewChanged(ctx)
	case FrameNewChat:
		if f.Open {
			s.view.OpenNewChat()
		} else {
			s.view.CloseNewChat()
		}
		s.viewChanged(ctx)
	case FrameTyping, FrameStopTyping:
		cid := s.view.SelectedConversation
		if cid == "" {
			return
		}
		s.touched[cid] = true
		if f.Type == FrameTyping {
			_ = s.svc.Typing.Start(ctx, cid)
		} else {
			_ = s.svc.Typing.Stop(ctx, cid)
		}
	case FrameVisibility:
		s.svc.Presence.SetVisible(ctx, s.info.UserID, !f.Hidden)
	case FrameSend:
		s.send(ctx, f)
	default:
		s.fail(ctx, "unknown frame type "+f.Type)
	}
}

func (s *Session) send(ctx context.Context, f ClientFrame) {
	cid := s.view.SelectedConversation
	if cid == "" {
		s.fail(ctx, "no conversation selected")
		return
	}
	token := f.ClientToken
	if token == "" {
		token = uuid.NewString()
	}

	s.pending = append(s.pending, messaging.PendingMessage{ClientToken: token, Content: f.Content, CreatedAt: s.now().UTC()})
	s.pushReconciled(ctx, cid, nil)

	_, err := s.svc.Messages.Send(ctx, messaging.SendRequest{
		ConversationID: cid,
		Content:        f.Content,
		ReplyTo:        s.view.ReplyTo,
		ClientToken:    &token,
	})
	if err != nil {
		s.dropPending(token)
		s.fail(ctx, err.Error())
		s.pushTimeline(ctx)
		return
	}
	s.view.ClearReply()
	if s.touched[cid] {
		_ = s.svc.Typing.Stop(ctx, cid)
	}
}

func (s *Session) dropPending(token string) {
	kept := s.pending[:0]
	for _, p := range s.pending {
		if p.ClientToken != token {
			kept = append(kept, p)
		}
	}
	s.pending = kept
}

func (s *Session) viewChanged(ctx context.Context) {
	subs := s.view.Subscriptions(s.info.UserID)
	s.mu.Lock()
	s.subs = subs
	s.mu.Unlock()
	s.emit(ctx, ServerFrame{Type: FrameView, View: s.snapshotView()})
}

func (s *Session) snapshotView() *messaging.ViewState {
	v := *s.view
	return &v
}

// flush answers dirty keys: every key is forwarded as an invalidate frame and
// keys under the open conversation refresh its timeline or typing line.
func (s *Session) flush(ctx context.Context) {
	s.mu.Lock()
	keys := make([]cache.Key, 0, len(s.dirty))
	for k := range s.dirty {
		keys = append(keys, k)
	}
	s.dirty = make(map[cache.Key]bool)
	s.mu.Unlock()

	cid := s.view.SelectedConversation
	var timeline, typing bool
	for _, k := range keys {
		s.emit(ctx, ServerFrame{Type: FrameInvalidate, Key: string(k)})
		if cid == "" {
			continue
		}
		if realtime.MessagesKey(cid).Matches(k) {
			timeline = true
		}
		if realtime.TypingKey(cid).Matches(k) {
			typing = true
		}
	}
	if timeline {
		s.pushTimeline(ctx)
	}
	if typing {
		s.pushTyping(ctx)
	}
}

func (s *Session) pushTimeline(ctx context.Context) {
	cid := s.view.SelectedConversation
	if cid == "" {
		return
	}
	history, err := s.svc.Messages.History(ctx, cid)
	if err != nil {
		s.fail(ctx, err.Error())
		return
	}
	s.pending = messaging.Outstanding(s.pending, history)
	s.pushReconciled(ctx, cid, history)
	s.markRead(ctx, cid, history)
}

func (s *Session) pushReconciled(ctx context.Context, cid string, history []models.Message) {
	s.emit(ctx, ServerFrame{
		Type:           FrameTimeline,
		ConversationID: cid,
		Timeline:       messaging.Reconcile(s.pending, history),
	})
}

// markRead acknowledges the newest message when someone else sent it.
func (s *Session) markRead(ctx context.Context, cid string, history []models.Message) {
	if len(history) == 0 {
		return
	}
	last := history[len(history)-1]
	if last.SenderID == s.info.UserID || last.ID == s.lastMarked {
		return
	}
	s.lastMarked = last.ID
	if err := s.svc.Messages.MarkAsRead(ctx, last.ID); err != nil {
		s.log.Warn("mark as read failed", zap.String("message_id", last.ID), zap.Error(err))
	}
	if err := s.svc.Directory.MarkConversationRead(ctx, cid); err != nil {
		s.log.Warn("mark conversation read failed", zap.String("conversation_id", cid), zap.Error(err))
	}
}

func (s *Session) pushTyping(ctx context.Context) {
	cid := s.view.SelectedConversation
	if cid == "" {
		return
	}
	rows, err := s.svc.Typing.Typing(ctx, cid, s.info.UserID)
	if err != nil {
		s.log.Debug("typing refresh failed", zap.Error(err))
		return
	}
	names := messaging.TypingNames(rows)
	s.emit(ctx, ServerFrame{
		Type:           FrameTyping,
		ConversationID: cid,
		Typing:         names,
		Text:           messaging.TypingText(names),
	})
}

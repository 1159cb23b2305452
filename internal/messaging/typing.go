package messaging

import (
	"context"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"campus-messaging/internal/cache"
	"campus-messaging/internal/models"
	"campus-messaging/internal/observability"
	"campus-messaging/internal/realtime"
	"campus-messaging/internal/repositories"
)

const writeTimeout = 5 * time.Second

// Typist owns the typing indicator of one user in one conversation. Start
// arms a timer that clears the indicator unless Start is called again. Writes
// are serialized so the stored state always follows the last call.
type Typist struct {
	repo           repositories.TypingRepository
	deps           Deps
	conversationID string
	userID         string
	timeout        time.Duration
	onIdle         func(*Typist)

	writeMu sync.Mutex

	mu     sync.Mutex
	timer  *time.Timer
	gen    uint64
	closed bool
}

// Start marks the user typing and re-arms the auto-clear timer. It reports
// false when the typist is already closed.
func (t *Typist) Start(ctx context.Context) bool {
	t.writeMu.Lock()
	defer t.writeMu.Unlock()

	t.mu.Lock()
	if t.closed {
		t.mu.Unlock()
		return false
	}
	t.gen++
	gen := t.gen
	if t.timer != nil {
		t.timer.Stop()
	}
	t.timer = time.AfterFunc(t.timeout, func() { t.expire(gen) })
	t.mu.Unlock()

	t.write(ctx, true)
	return true
}

// Stop clears the indicator now. It reports false when the typist is already
// closed.
func (t *Typist) Stop(ctx context.Context) bool {
	t.writeMu.Lock()
	defer t.writeMu.Unlock()

	t.mu.Lock()
	if t.closed {
		t.mu.Unlock()
		return false
	}
	t.disarm()
	t.mu.Unlock()

	t.write(ctx, false)
	t.idle()
	return true
}

// Close cancels the timer and writes the final cleared state. Later calls do
// nothing.
func (t *Typist) Close() {
	t.writeMu.Lock()
	defer t.writeMu.Unlock()

	t.mu.Lock()
	if t.closed {
		t.mu.Unlock()
		return
	}
	t.closed = true
	t.disarm()
	t.mu.Unlock()

	ctx, cancel := context.WithTimeout(context.Background(), writeTimeout)
	defer cancel()
	t.write(ctx, false)
}

func (t *Typist) disarm() {
	t.gen++
	if t.timer != nil {
		t.timer.Stop()
		t.timer = nil
	}
}

func (t *Typist) expire(gen uint64) {
	t.writeMu.Lock()
	defer t.writeMu.Unlock()

	t.mu.Lock()
	if t.closed || gen != t.gen {
		t.mu.Unlock()
		return
	}
	t.timer = nil
	t.mu.Unlock()

	ctx, cancel := context.WithTimeout(context.Background(), writeTimeout)
	defer cancel()
	t.write(ctx, false)
	t.idle()
}

// idle runs with writeMu held after the indicator was cleared.
func (t *Typist) idle() {
	if t.onIdle != nil {
		t.onIdle(t)
	}
}

// retire closes an idle typist without writing. It reports false when the
// typist was re-armed in the meantime.
func (t *Typist) retire() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.timer != nil {
		return false
	}
	t.closed = true
	return true
}

func (t *Typist) write(ctx context.Context, typing bool) {
	if err := t.repo.Upsert(ctx, t.conversationID, t.userID, typing, t.deps.Now().UTC()); err != nil {
		observability.IncBackgroundWriteFailure("typing")
		t.deps.Log.Warn("typing update failed",
			zap.String("conversation_id", t.conversationID),
			zap.String("user_id", t.userID),
			zap.Bool("typing", typing),
			zap.Error(err),
		)
		return
	}
	t.deps.Bus.Invalidate(realtime.TypingKey(t.conversationID))
}

type typistKey struct {
	conversationID string
	userID         string
}

// TypingTracker hands out Typists and serves typing indicators to observers.
type TypingTracker struct {
	repo    repositories.TypingRepository
	deps    Deps
	timeout time.Duration

	mu      sync.Mutex
	typists map[typistKey]*Typist
}

func NewTypingTracker(repo repositories.TypingRepository, deps Deps, timeout time.Duration) *TypingTracker {
	if timeout <= 0 {
		timeout = 3 * time.Second
	}
	return &TypingTracker{
		repo:    repo,
		deps:    deps.withDefaults(),
		timeout: timeout,
		typists: make(map[typistKey]*Typist),
	}
}

// Typist returns the typist for userID in conversationID, creating it.
func (tt *TypingTracker) Typist(conversationID, userID string) *Typist {
	key := typistKey{conversationID, userID}

	tt.mu.Lock()
	defer tt.mu.Unlock()
	if t, ok := tt.typists[key]; ok {
		return t
	}
	t := &Typist{
		repo:           tt.repo,
		deps:           tt.deps,
		conversationID: conversationID,
		userID:         userID,
		timeout:        tt.timeout,
		onIdle:         tt.evict,
	}
	tt.typists[key] = t
	return t
}

// evict forgets an idle typist so the registry only holds active ones.
func (tt *TypingTracker) evict(t *Typist) {
	key := typistKey{t.conversationID, t.userID}

	tt.mu.Lock()
	defer tt.mu.Unlock()
	if tt.typists[key] == t && t.retire() {
		delete(tt.typists, key)
	}
}

// Len reports how many typists are registered.
func (tt *TypingTracker) Len() int {
	tt.mu.Lock()
	defer tt.mu.Unlock()
	return len(tt.typists)
}

// Start marks the caller typing in conversationID.
func (tt *TypingTracker) Start(ctx context.Context, conversationID string) error {
	userID, err := currentUser(ctx)
	if err != nil {
		return err
	}
	// A typist evicted or released meanwhile refuses the call; take a fresh one.
	for {
		if tt.Typist(conversationID, userID).Start(ctx) {
			return nil
		}
	}
}

// Stop clears the caller's indicator in conversationID.
func (tt *TypingTracker) Stop(ctx context.Context, conversationID string) error {
	userID, err := currentUser(ctx)
	if err != nil {
		return err
	}
	// A typist evicted or released meanwhile refuses the call; take a fresh one.
	for {
		if tt.Typist(conversationID, userID).Stop(ctx) {
			return nil
		}
	}
}

// Release closes and forgets the typist, if any.
func (tt *TypingTracker) Release(conversationID, userID string) {
	key := typistKey{conversationID, userID}

	tt.mu.Lock()
	t, ok := tt.typists[key]
	delete(tt.typists, key)
	tt.mu.Unlock()

	if ok {
		t.Close()
	}
}

// Typing returns who is typing in conversationID, excluding viewerID.
func (tt *TypingTracker) Typing(ctx context.Context, conversationID, viewerID string) ([]models.TypingIndicator, error) {
	rows, err := cache.Fetch(ctx, tt.deps.Cache, realtime.TypingKey(conversationID), func(ctx context.Context) ([]models.TypingIndicator, error) {
		rows, err := tt.repo.ListTyping(ctx, conversationID)
		if err != nil {
			return nil, remoteError("list typing", err)
		}
		return rows, nil
	})
	if err != nil {
		return nil, err
	}

	out := make([]models.TypingIndicator, 0, len(rows))
	for _, r := range rows {
		if r.UserID != viewerID {
			out = append(out, r)
		}
	}
	return out, nil
}

// TypingNames returns the display names of indicators.
func TypingNames(rows []models.TypingIndicator) []string {
	names := make([]string, 0, len(rows))
	for _, r := range rows {
		names = append(names, r.User.Name())
	}
	return names
}

// TypingText renders the typing line shown under a conversation.
func TypingText(names []string) string {
	switch len(names) {
	case 0:
		return ""
	case 1:
		return fmt.Sprintf("%s is typing...", names[0])
	case 2:
		return fmt.Sprintf("%s and %s are typing...", names[0], names[1])
	default:
		return fmt.Sprintf("%d people are typing...", len(names))
	}
}

package realtime

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"campus-messaging/internal/cache"
	"campus-messaging/internal/logger"
)

type recorder struct {
	mu   sync.Mutex
	seen []Invalidation
}

func (r *recorder) record(inv Invalidation) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.seen = append(r.seen, inv)
}

func (r *recorder) keys() []cache.Key {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]cache.Key, 0, len(r.seen))
	for _, inv := range r.seen {
		out = append(out, inv.Key)
	}
	return out
}

func TestBusDeliversUntilUnsubscribed(t *testing.T) {
	bus := NewBus()
	rec := &recorder{}
	unsubscribe := bus.Subscribe(rec.record)

	bus.Invalidate(MessagesKey("c1"), ConversationsRoot)
	unsubscribe()
	bus.Invalidate(TypingRoot)

	assert.Equal(t, []cache.Key{"messages:c1", "conversations"}, rec.keys())
}

func TestBindCacheDropsMatchingEntries(t *testing.T) {
	bus := NewBus()
	q := cache.New()
	BindCache(bus, q)

	_, err := q.Get(context.Background(), MessagesKey("c1"), func(context.Context) (any, error) { return 1, nil })
	require.NoError(t, err)
	_, err = q.Get(context.Background(), ConversationsKey("u1"), func(context.Context) (any, error) { return 2, nil })
	require.NoError(t, err)

	bus.Invalidate(MessagesRoot)
	assert.Equal(t, 1, q.Len())

	bus.Publish(Invalidation{Key: AllKeys, Source: "feed"})
	assert.Equal(t, 0, q.Len())
}

func TestPresenceKeyIsOrderIndependent(t *testing.T) {
	assert.Equal(t, PresenceKey([]string{"b", "a"}), PresenceKey([]string{"a", "b"}))
	assert.Equal(t, cache.Key("presence:a,b"), PresenceKey([]string{"b", "a"}))
}

func TestInvalidationsFor(t *testing.T) {
	tests := []struct {
		name string
		ev   ChangeEvent
		want []cache.Key
	}{
		{"participant joined", ChangeEvent{Table: "conversation_participants", Op: "INSERT"}, []cache.Key{ConversationsRoot}},
		{"message sent", ChangeEvent{Table: "messages", ConversationID: "c1"}, []cache.Key{"messages:c1", ConversationsRoot}},
		{"message without conversation", ChangeEvent{Table: "messages"}, []cache.Key{MessagesRoot, ConversationsRoot}},
		{"reaction", ChangeEvent{Table: "message_reactions", ConversationID: "c1"}, []cache.Key{"messages:c1"}},
		{"receipt for deleted message", ChangeEvent{Table: "read_receipts"}, []cache.Key{MessagesRoot}},
		{"presence", ChangeEvent{Table: "user_presence", UserID: "u1"}, []cache.Key{PresenceRoot}},
		{"typing", ChangeEvent{Table: "typing_indicators", ConversationID: "c1"}, []cache.Key{"typing:c1"}},
		{"unknown table", ChangeEvent{Table: "profiles"}, nil},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, InvalidationsFor(tt.ev))
		})
	}
}

func TestFeedHandle(t *testing.T) {
	bus := NewBus()
	rec := &recorder{}
	bus.Subscribe(rec.record)
	feed := NewFeed("postgres://unused", bus, logger.Nop())

	feed.Handle(`{"table":"messages","op":"INSERT","id":"m1","conversation_id":"c1"}`)
	feed.Handle(`not json`)

	assert.Equal(t, []cache.Key{"messages:c1", "conversations"}, rec.keys())
	for _, inv := range rec.seen {
		assert.Equal(t, "feed", inv.Source)
	}
}

type fakeNATS struct {
	mu        sync.Mutex
	published [][]byte
	handler   nats.MsgHandler
	err       error
}

func (f *fakeNATS) Publish(_ string, data []byte) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.published = append(f.published, data)
	return f.err
}

func (f *fakeNATS) Subscribe(_ string, cb nats.MsgHandler) (*nats.Subscription, error) {
	f.handler = cb
	return nil, nil
}

func TestNATSBridgeForwardsLocalInvalidationsOnly(t *testing.T) {
	bus := NewBus()
	nc := &fakeNATS{}
	bridge := NewNATSBridge(nc, bus, "campus.invalidations", logger.Nop())
	stop, err := bridge.Start()
	require.NoError(t, err)
	defer stop()

	bus.Invalidate(MessagesKey("c1"))
	bus.Publish(Invalidation{Key: PresenceRoot, Source: "poll"})
	bus.Publish(Invalidation{Key: TypingRoot, Source: "feed"})

	require.Len(t, nc.published, 1)
	var sent Invalidation
	require.NoError(t, json.Unmarshal(nc.published[0], &sent))
	assert.Equal(t, cache.Key("messages:c1"), sent.Key)
	assert.Equal(t, bridge.origin, sent.Origin)
}

func TestNATSBridgeReceivesPeerInvalidations(t *testing.T) {
	bus := NewBus()
	nc := &fakeNATS{}
	bridge := NewNATSBridge(nc, bus, "campus.invalidations", logger.Nop())
	stop, err := bridge.Start()
	require.NoError(t, err)
	defer stop()

	rec := &recorder{}
	bus.Subscribe(rec.record)

	peer, _ := json.Marshal(Invalidation{Key: ConversationsRoot, Origin: "peer-1"})
	own, _ := json.Marshal(Invalidation{Key: TypingRoot, Origin: bridge.origin})
	nc.handler(&nats.Msg{Data: peer})
	nc.handler(&nats.Msg{Data: own})
	nc.handler(&nats.Msg{Data: []byte("{")})

	require.Len(t, rec.seen, 1)
	assert.Equal(t, ConversationsRoot, rec.seen[0].Key)
	assert.Equal(t, "nats", rec.seen[0].Source)
	assert.Empty(t, nc.published, "peer invalidations must not echo back")
}

func TestNATSBridgeStartFails(t *testing.T) {
	nc := &failingNATS{}
	_, err := NewNATSBridge(nc, NewBus(), "s", logger.Nop()).Start()
	assert.Error(t, err)
}

type failingNATS struct{ fakeNATS }

func (f *failingNATS) Subscribe(string, nats.MsgHandler) (*nats.Subscription, error) {
	return nil, errors.New("not connected")
}

func TestSchedulerPublishesPollInvalidations(t *testing.T) {
	bus := NewBus()
	rec := &recorder{}
	bus.Subscribe(rec.record)

	s, err := NewScheduler(bus, time.Second, time.Second, logger.Nop())
	require.NoError(t, err)
	s.Start()
	defer s.Stop(context.Background())

	assert.Eventually(t, func() bool {
		keys := rec.keys()
		return containsKey(keys, PresenceRoot) && containsKey(keys, TypingRoot)
	}, 3*time.Second, 50*time.Millisecond)
}

func containsKey(keys []cache.Key, want cache.Key) bool {
	for _, k := range keys {
		if k == want {
			return true
		}
	}
	return false
}

package realtime

import (
	"sort"
	"strings"

	"campus-messaging/internal/cache"
)

// Key roots.
const (
	ConversationsRoot cache.Key = "conversations"
	MessagesRoot      cache.Key = "messages"
	PresenceRoot      cache.Key = "presence"
	TypingRoot        cache.Key = "typing"
	AllKeys           cache.Key = ""
)

func ConversationsKey(userID string) cache.Key {
	return cache.NewKey(string(ConversationsRoot), userID)
}

func MessagesKey(conversationID string) cache.Key {
	return cache.NewKey(string(MessagesRoot), conversationID)
}

func TypingKey(conversationID string) cache.Key {
	return cache.NewKey(string(TypingRoot), conversationID)
}

// PresenceKey keys a presence snapshot by its sorted user set.
func PresenceKey(userIDs []string) cache.Key {
	ids := append([]string(nil), userIDs...)
	sort.Strings(ids)
	return cache.NewKey(string(PresenceRoot), strings.Join(ids, ","))
}

// ChangeEvent is the payload the row triggers send on the change channel.
type ChangeEvent struct {
	Table          string `json:"table"`
	Op             string `json:"op"`
	ID             string `json:"id,omitempty"`
	ConversationID string `json:"conversation_id,omitempty"`
	UserID         string `json:"user_id,omitempty"`
}

// InvalidationsFor maps a row change to the query keys it makes stale.
func InvalidationsFor(ev ChangeEvent) []cache.Key {
	switch ev.Table {
	case "conversations", "conversation_participants":
		return []cache.Key{ConversationsRoot}
	case "messages":
		if ev.ConversationID == "" {
			return []cache.Key{MessagesRoot, ConversationsRoot}
		}
		return []cache.Key{MessagesKey(ev.ConversationID), ConversationsRoot}
	case "message_reactions", "read_receipts", "message_attachments":
		if ev.ConversationID == "" {
			return []cache.Key{MessagesRoot}
		}
		return []cache.Key{MessagesKey(ev.ConversationID)}
	case "user_presence":
		return []cache.Key{PresenceRoot}
	case "typing_indicators":
		if ev.ConversationID == "" {
			return []cache.Key{TypingRoot}
		}
		return []cache.Key{TypingKey(ev.ConversationID)}
	default:
		return nil
	}
}

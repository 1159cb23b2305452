package messaging

import (
	"campus-messaging/internal/cache"
	"campus-messaging/internal/realtime"
)

type Layout string

const (
	LayoutNarrow Layout = "narrow"
	LayoutWide   Layout = "wide"
)

// NarrowBreakpoint is the viewport width below which only one pane shows.
const NarrowBreakpoint = 768

// ViewState is the per-session messaging view. Selecting a conversation clears
// the reply target. In the narrow layout the list and chat panes exclude each
// other.
type ViewState struct {
	SelectedConversation string  `json:"selected_conversation,omitempty"`
	ReplyTo              *string `json:"reply_to,omitempty"`
	Layout               Layout  `json:"layout"`
	ShowList             bool    `json:"show_list"`
	ShowChat             bool    `json:"show_chat"`
	NewChatOpen          bool    `json:"new_chat_open"`
}

func NewViewState(width int) *ViewState {
	v := &ViewState{}
	v.Resize(width)
	return v
}

func (v *ViewState) Select(conversationID string) {
	v.SelectedConversation = conversationID
	v.ReplyTo = nil
	v.NewChatOpen = false
	v.arrange()
}

// Back returns to the conversation list.
func (v *ViewState) Back() {
	v.SelectedConversation = ""
	v.ReplyTo = nil
	v.arrange()
}

func (v *ViewState) Resize(width int) {
	if width > 0 && width < NarrowBreakpoint {
		v.Layout = LayoutNarrow
	} else {
		v.Layout = LayoutWide
	}
	v.arrange()
}

func (v *ViewState) SetReply(messageID string) {
	if v.SelectedConversation == "" || messageID == "" {
		return
	}
	v.ReplyTo = &messageID
}

func (v *ViewState) ClearReply() {
	v.ReplyTo = nil
}

func (v *ViewState) OpenNewChat() {
	v.NewChatOpen = true
}

func (v *ViewState) CloseNewChat() {
	v.NewChatOpen = false
}

func (v *ViewState) arrange() {
	if v.Layout == LayoutWide {
		v.ShowList, v.ShowChat = true, true
		return
	}
	v.ShowChat = v.SelectedConversation != ""
	v.ShowList = !v.ShowChat
}

// Subscriptions lists the query keys a session showing this view depends on.
func (v *ViewState) Subscriptions(userID string) []cache.Key {
	keys := []cache.Key{realtime.ConversationsKey(userID), realtime.PresenceRoot}
	if v.SelectedConversation != "" {
		keys = append(keys,
			realtime.MessagesKey(v.SelectedConversation),
			realtime.TypingKey(v.SelectedConversation),
		)
	}
	return keys
}

package messaging

import (
	"time"

	"campus-messaging/internal/models"
)

// PendingMessage is a message shown before the store confirms it.
type PendingMessage struct {
	ClientToken string    `json:"client_token"`
	Content     string    `json:"content"`
	CreatedAt   time.Time `json:"created_at"`
}

// TimelineEntry holds exactly one of Pending or Message.
type TimelineEntry struct {
	Pending *PendingMessage `json:"pending,omitempty"`
	Message *models.Message `json:"message,omitempty"`
}

// Outstanding returns the pending messages no confirmed message carries the
// client token of.
func Outstanding(pending []PendingMessage, confirmed []models.Message) []PendingMessage {
	tokens := make(map[string]bool, len(confirmed))
	for _, m := range confirmed {
		if m.ClientToken != nil && *m.ClientToken != "" {
			tokens[*m.ClientToken] = true
		}
	}
	out := make([]PendingMessage, 0, len(pending))
	for _, p := range pending {
		if p.ClientToken != "" && tokens[p.ClientToken] {
			continue
		}
		out = append(out, p)
	}
	return out
}

// Reconcile merges confirmed history with pending messages, matching only on
// client token. Unmatched pending messages follow the history.
func Reconcile(pending []PendingMessage, confirmed []models.Message) []TimelineEntry {
	rest := Outstanding(pending, confirmed)
	entries := make([]TimelineEntry, 0, len(confirmed)+len(rest))
	for i := range confirmed {
		entries = append(entries, TimelineEntry{Message: &confirmed[i]})
	}
	for i := range rest {
		entries = append(entries, TimelineEntry{Pending: &rest[i]})
	}
	return entries
}

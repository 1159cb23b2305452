package handlers

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"campus-messaging/internal/logger"
	"campus-messaging/internal/messaging"
)

// PresenceHandler serves presence snapshots and visibility changes.
type PresenceHandler struct {
	presence PresenceService
	log      *logger.Logger
}

func NewPresenceHandler(presence PresenceService, log *logger.Logger) *PresenceHandler {
	return &PresenceHandler{presence: presence, log: log}
}

// GetPresence returns presence rows for the user_id query values. Values may
// repeat or be comma-separated.
func (h *PresenceHandler) GetPresence(c *gin.Context) {
	var ids []string
	for _, v := range c.QueryArray("user_id") {
		for _, id := range strings.Split(v, ",") {
			if id = strings.TrimSpace(id); id != "" {
				ids = append(ids, id)
			}
		}
	}

	rows, err := h.presence.Snapshot(c.Request.Context(), ids)
	if err != nil {
		respondError(c, h.log, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"presence": rows})
}

// SetVisibility marks the caller offline while the page is hidden.
func (h *PresenceHandler) SetVisibility(c *gin.Context) {
	var req struct {
		Visible *bool `json:"visible" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	h.presence.SetVisible(c.Request.Context(), c.GetString("userID"), *req.Visible)
	c.Status(http.StatusNoContent)
}

// TypingHandler serves typing indicators.
type TypingHandler struct {
	directory DirectoryService
	typing    TypingService
	log       *logger.Logger
}

func NewTypingHandler(directory DirectoryService, typing TypingService, log *logger.Logger) *TypingHandler {
	return &TypingHandler{directory: directory, typing: typing, log: log}
}

// GetTyping lists who else is typing in the conversation.
func (h *TypingHandler) GetTyping(c *gin.Context) {
	conversationID := c.Param("id")
	if !requireMember(c, h.log, h.directory, conversationID) {
		return
	}

	rows, err := h.typing.Typing(c.Request.Context(), conversationID, c.GetString("userID"))
	if err != nil {
		respondError(c, h.log, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"typing": rows,
		"text":   messaging.TypingText(messaging.TypingNames(rows)),
	})
}

// StartTyping marks the caller typing. The indicator clears on its own.
func (h *TypingHandler) StartTyping(c *gin.Context) {
	conversationID := c.Param("id")
	if !requireMember(c, h.log, h.directory, conversationID) {
		return
	}
	if err := h.typing.Start(c.Request.Context(), conversationID); err != nil {
		respondError(c, h.log, err)
		return
	}
	c.Status(http.StatusNoContent)
}

// StopTyping clears the caller's indicator.
func (h *TypingHandler) StopTyping(c *gin.Context) {
	conversationID := c.Param("id")
	if !requireMember(c, h.log, h.directory, conversationID) {
		return
	}
	if err := h.typing.Stop(c.Request.Context(), conversationID); err != nil {
		respondError(c, h.log, err)
		return
	}
	c.Status(http.StatusNoContent)
}

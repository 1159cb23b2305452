package handlers

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"campus-messaging/internal/logger"
	"campus-messaging/internal/media"
	"campus-messaging/internal/messaging"
	"campus-messaging/internal/models"
)

// MaxMultipartMemory bounds the in-memory part of an upload. The rest spills
// to temp files.
const MaxMultipartMemory = 8 << 20

// MessageHandler serves conversation history, sending and reactions.
type MessageHandler struct {
	directory DirectoryService
	messages  MessageService
	log       *logger.Logger
}

// NewMessageHandler builds a MessageHandler.
func NewMessageHandler(directory DirectoryService, messages MessageService, log *logger.Logger) *MessageHandler {
	return &MessageHandler{directory: directory, messages: messages, log: log}
}

// GetMessages returns the conversation history.
func (h *MessageHandler) GetMessages(c *gin.Context) {
	conversationID := c.Param("id")
	if !requireMember(c, h.log, h.directory, conversationID) {
		return
	}

	msgs, err := h.messages.History(c.Request.Context(), conversationID)
	if err != nil {
		respondError(c, h.log, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"messages": msgs})
}

// PostMessage sends a message. Attachments arrive as multipart "files" parts.
func (h *MessageHandler) PostMessage(c *gin.Context) {
	conversationID := c.Param("id")
	if !requireMember(c, h.log, h.directory, conversationID) {
		return
	}

	req := messaging.SendRequest{
		ConversationID: conversationID,
		Content:        c.PostForm("content"),
		Type:           models.MessageType(c.PostForm("message_type")),
		ReplyTo:        optionalForm(c, "reply_to"),
		ClientToken:    optionalForm(c, "client_token"),
	}
	if strings.HasPrefix(c.ContentType(), "multipart/") {
		form, err := c.MultipartForm()
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid multipart form"})
			return
		}
		for _, fh := range form.File["files"] {
			req.Files = append(req.Files, media.FromMultipart(fh))
		}
	}

	msg, err := h.messages.Send(c.Request.Context(), req)
	if err != nil {
		if messaging.KindOf(err) == messaging.KindPartialFailure {
			c.JSON(http.StatusMultiStatus, gin.H{"message": msg, "error": err.Error()})
			return
		}
		respondError(c, h.log, err)
		return
	}
	c.JSON(http.StatusCreated, gin.H{"message": msg})
}

// AddReaction adds the caller's emoji to a message.
func (h *MessageHandler) AddReaction(c *gin.Context) {
	var req struct {
		Emoji string `json:"emoji" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	messageID, ok := h.memberMessage(c)
	if !ok {
		return
	}

	reaction, err := h.messages.AddReaction(c.Request.Context(), messageID, req.Emoji)
	if err != nil {
		respondError(c, h.log, err)
		return
	}
	c.JSON(http.StatusCreated, gin.H{"reaction": reaction})
}

// RemoveReaction removes the caller's emoji given in the emoji query parameter.
func (h *MessageHandler) RemoveReaction(c *gin.Context) {
	emoji := c.Query("emoji")
	if emoji == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "emoji is required"})
		return
	}
	messageID, ok := h.memberMessage(c)
	if !ok {
		return
	}

	if err := h.messages.RemoveReaction(c.Request.Context(), messageID, emoji); err != nil {
		respondError(c, h.log, err)
		return
	}
	c.Status(http.StatusNoContent)
}

// MarkAsRead records a read receipt for the caller.
func (h *MessageHandler) MarkAsRead(c *gin.Context) {
	messageID, ok := h.memberMessage(c)
	if !ok {
		return
	}
	if err := h.messages.MarkAsRead(c.Request.Context(), messageID); err != nil {
		respondError(c, h.log, err)
		return
	}
	c.Status(http.StatusNoContent)
}

func (h *MessageHandler) memberMessage(c *gin.Context) (string, bool) {
	msg, err := h.messages.Message(c.Request.Context(), c.Param("id"))
	if err != nil {
		respondError(c, h.log, err)
		return "", false
	}
	if !requireMember(c, h.log, h.directory, msg.ConversationID) {
		return "", false
	}
	return msg.ID, true
}

func optionalForm(c *gin.Context, key string) *string {
	if v := strings.TrimSpace(c.PostForm(key)); v != "" {
		return &v
	}
	return nil
}

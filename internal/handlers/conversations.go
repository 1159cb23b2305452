package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"campus-messaging/internal/logger"
	"campus-messaging/internal/messaging"
	"campus-messaging/internal/models"
)

// ConversationHandler serves the conversation directory.
type ConversationHandler struct {
	directory DirectoryService
	log       *logger.Logger
}

// NewConversationHandler builds a ConversationHandler.
func NewConversationHandler(directory DirectoryService, log *logger.Logger) *ConversationHandler {
	return &ConversationHandler{directory: directory, log: log}
}

type conversationResponse struct {
	models.ConversationSummary
	Title  string  `json:"title"`
	Avatar *string `json:"avatar,omitempty"`
}

// ListConversations returns the caller's conversations, most recent first.
func (h *ConversationHandler) ListConversations(c *gin.Context) {
	list, err := h.directory.List(c.Request.Context())
	if err != nil {
		respondError(c, h.log, err)
		return
	}

	userID := c.GetString("userID")
	responses := make([]conversationResponse, 0, len(list))
	for _, s := range list {
		responses = append(responses, conversationResponse{
			ConversationSummary: s,
			Title:               messaging.Title(s, userID),
			Avatar:              messaging.Avatar(s, userID),
		})
	}
	c.JSON(http.StatusOK, gin.H{"conversations": responses})
}

// CreateDirect finds or creates a direct conversation with another user.
func (h *ConversationHandler) CreateDirect(c *gin.Context) {
	var req struct {
		UserID string `json:"user_id" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	conv, err := h.directory.CreateDirect(c.Request.Context(), req.UserID)
	if err != nil {
		respondError(c, h.log, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"conversation": conv})
}

// CreateGroup creates a group conversation with the caller as admin.
func (h *ConversationHandler) CreateGroup(c *gin.Context) {
	var req messaging.CreateGroupRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	conv, err := h.directory.CreateGroup(c.Request.Context(), req)
	if err != nil {
		if messaging.KindOf(err) == messaging.KindPartialFailure {
			c.JSON(http.StatusMultiStatus, gin.H{"conversation": conv, "error": err.Error()})
			return
		}
		respondError(c, h.log, err)
		return
	}
	c.JSON(http.StatusCreated, gin.H{"conversation": conv})
}

// AddParticipant adds a member to a conversation the caller belongs to.
func (h *ConversationHandler) AddParticipant(c *gin.Context) {
	conversationID := c.Param("id")
	var req struct {
		UserID string `json:"user_id" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if !requireMember(c, h.log, h.directory, conversationID) {
		return
	}

	p, err := h.directory.AddParticipant(c.Request.Context(), conversationID, req.UserID)
	if err != nil {
		respondError(c, h.log, err)
		return
	}
	c.JSON(http.StatusCreated, gin.H{"participant": p})
}

// MarkRead advances the caller's read marker in a conversation.
func (h *ConversationHandler) MarkRead(c *gin.Context) {
	if err := h.directory.MarkConversationRead(c.Request.Context(), c.Param("id")); err != nil {
		respondError(c, h.log, err)
		return
	}
	c.Status(http.StatusNoContent)
}

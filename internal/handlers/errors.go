package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"campus-messaging/internal/logger"
	"campus-messaging/internal/messaging"
)

func statusFor(err error) int {
	switch messaging.KindOf(err) {
	case messaging.KindUnauthenticated:
		return http.StatusUnauthorized
	case messaging.KindValidation:
		return http.StatusBadRequest
	case messaging.KindNotFound:
		return http.StatusNotFound
	case messaging.KindConflict:
		return http.StatusConflict
	case messaging.KindConflictOrPermission:
		return http.StatusForbidden
	case messaging.KindPartialFailure:
		return http.StatusMultiStatus
	default:
		return http.StatusBadGateway
	}
}

func respondError(c *gin.Context, log *logger.Logger, err error) {
	status := statusFor(err)
	if status >= http.StatusInternalServerError {
		log.Error("request failed",
			zap.String("path", c.FullPath()),
			zap.String("user_id", c.GetString("userID")),
			zap.Error(err),
		)
	}
	c.JSON(status, gin.H{"error": err.Error()})
}

// requireMember writes 403 and returns false when the caller is not in the
// conversation.
func requireMember(c *gin.Context, log *logger.Logger, directory DirectoryService, conversationID string) bool {
	member, err := directory.IsMember(c.Request.Context(), conversationID)
	if err != nil {
		respondError(c, log, err)
		return false
	}
	if !member {
		c.JSON(http.StatusForbidden, gin.H{"error": "not a conversation member"})
		return false
	}
	return true
}

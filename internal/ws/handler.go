package ws

import (
	"context"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"go.opentelemetry.io/otel"
	"go.uber.org/zap"

	"campus-messaging/internal/auth"
	"campus-messaging/internal/logger"
	"campus-messaging/internal/observability"
)

// Handler upgrades authenticated requests to messaging sessions.
type Handler struct {
	hub      *Hub
	verifier *auth.Verifier
	svc      Services
	log      *logger.Logger
}

// NewHandler constructs a Handler.
func NewHandler(hub *Hub, verifier *auth.Verifier, svc Services, log *logger.Logger) *Handler {
	return &Handler{hub: hub, verifier: verifier, svc: svc, log: log}
}

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool { return true },
}

// Handle authenticates with the Authorization header or the token query
// parameter, upgrades the connection and serves the session in the background.
func (h *Handler) Handle(c *gin.Context) {
	ctx, span := otel.Tracer("campus-messaging/ws").Start(c.Request.Context(), "ws.handshake")
	defer span.End()
	c.Request = c.Request.WithContext(ctx)

	token := c.GetHeader("Authorization")
	if token == "" {
		token = c.Query("token")
	}
	userID, err := h.verifier.Verify(token)
	if err != nil {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "invalid token"})
		return
	}

	conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		return
	}

	requestID := observability.RequestIDFromRequest(c.Request)
	info := ConnInfo{
		ConnID:      newConnID(),
		UserID:      userID,
		DeviceID:    observability.DeviceIDFromRequest(c.Request),
		IP:          observability.IPFromRequest(c.Request),
		RequestID:   requestID,
		TraceID:     span.SpanContext().TraceID().String(),
		ConnectedAt: time.Now(),
	}
	width, _ := strconv.Atoi(c.Query("width"))

	// The request context ends when this handler returns.
	sessionCtx := observability.WithRequestID(context.WithoutCancel(ctx), requestID)
	session := NewSession(info, conn, h.svc, width, h.log)
	h.hub.Add(session)
	observability.IncWSActive()
	h.hub.publishLifecycle(sessionCtx, "ws_connect", info, "")

	go func() {
		reason := session.Run(sessionCtx)
		h.hub.Remove(session)
		observability.DecWSActive()
		h.hub.publishLifecycle(sessionCtx, "ws_disconnect", info, reason)
		h.log.Debug("ws session closed", zap.String("conn_id", info.ConnID), zap.String("reason", reason))
	}()
}

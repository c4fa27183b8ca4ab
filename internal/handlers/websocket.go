package handlers

import (
	"context"
	"net/http"
	"slices"
	"time"

	"flowtrack/backend/internal/apperrors"
	"flowtrack/backend/internal/logging"
	"flowtrack/backend/internal/middleware"
	"flowtrack/backend/internal/realtime"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
)

type WebSocketHandler struct {
	bridge         *realtime.Bridge
	tokens         middleware.TokenParser
	allowedOrigins []string
	writeWait      time.Duration
	upgrader       websocket.Upgrader

	// baseCtx outlives the request; cancelling it ends every loop at shutdown.
	baseCtx context.Context
}

func NewWebSocketHandler(ctx context.Context, bridge *realtime.Bridge, tokens middleware.TokenParser, allowedOrigins []string, writeWait time.Duration) *WebSocketHandler {
	h := &WebSocketHandler{
		bridge:         bridge,
		tokens:         tokens,
		allowedOrigins: allowedOrigins,
		writeWait:      writeWait,
		baseCtx:        ctx,
	}
	h.upgrader = websocket.Upgrader{
		ReadBufferSize:   1024,
		WriteBufferSize:  1024,
		HandshakeTimeout: 10 * time.Second,
		CheckOrigin:      h.checkOrigin,
	}
	return h
}

// checkOrigin accepts non-browser clients without an Origin header; browser
// origins must be in the CORS list.
func (h *WebSocketHandler) checkOrigin(r *http.Request) bool {
	origin := r.Header.Get("Origin")
	if origin == "" {
		return true
	}
	if slices.Contains(h.allowedOrigins, "*") || slices.Contains(h.allowedOrigins, origin) {
		return true
	}
	logging.Warn().Str("origin", origin).Msg("WebSocket connection rejected: origin not allowed")
	return false
}

// Notifications upgrades GET /ws/notifications/:user_id. Browsers cannot set
// headers on the handshake, so the access token travels as ?token= and must
// belong to the user in the path.
func (h *WebSocketHandler) Notifications(c *gin.Context) {
	userID, ok := pathID(c, "user_id")
	if !ok {
		return
	}
	p, err := h.tokens.ParseAccessToken(c.Query("token"))
	if err != nil {
		apperrors.Respond(c, err)
		return
	}
	if p.ID != userID {
		apperrors.Respond(c, apperrors.PermissionDenied("token does not belong to this user"))
		return
	}

	ws, err := h.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		// Upgrade has already written the HTTP error.
		logging.Warn().Err(err).Str("user_id", userID.String()).Msg("WebSocket upgrade failed")
		return
	}

	conn := realtime.NewConn(ws, h.writeWait)
	defer conn.Close()
	go conn.ReadPump()
	go conn.KeepAlive()

	logging.Info().Str("user_id", userID.String()).Msg("WebSocket connected")

	if err := h.bridge.Serve(h.baseCtx, userID, conn); err != nil {
		logging.Warn().Err(err).Str("user_id", userID.String()).Msg("Notification loop ended with error")
	}
	logging.Info().Str("user_id", userID.String()).Msg("WebSocket disconnected")
}

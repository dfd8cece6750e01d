package server

import (
	"encoding/json"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/collabnotes/backend/internal/realtime"
	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

const (
	realtimeTokenQueryParam = "access_token"
	outboundQueueSize       = 64
	writeDeadline           = 5 * time.Second
)

// handleRealtime upgrades the request to a WebSocket connection, authenticates
// the handshake, and runs the read loop feeding the hub. Authentication
// failures refuse the connection with a close frame carrying the reason; no
// event is dispatched for a refused connection.
func (h *httpHandler) handleRealtime(c *gin.Context) {
	upgrader := websocket.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
		CheckOrigin:     h.checkRealtimeOrigin,
	}

	conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		h.logger.Warn("websocket upgrade failed", zap.Error(err))
		return
	}

	identity, err := h.authenticateHandshake(c)
	if err != nil {
		h.logger.Warn("realtime handshake refused", zap.Error(err))
		refuseConnection(conn, "Authentication failed: "+err.Error())
		return
	}

	sink := newConnectionSink(conn, h.logger)
	connectionID := h.hub.Connect(identity, sink)

	defer func() {
		h.hub.Disconnect(connectionID)
		sink.Close()
	}()

	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			return
		}
		var envelope realtime.Envelope
		if err := json.Unmarshal(data, &envelope); err != nil || envelope.Event == "" {
			h.logger.Warn("dropping unparseable frame",
				zap.String("connection_id", connectionID),
				zap.Error(err),
			)
			continue
		}
		h.hub.HandleEvent(connectionID, envelope)
	}
}

// authenticateHandshake resolves the connection identity from the bearer
// credential: token signature and expiry first, then the durable user record
// so the email bound to the session matches the account.
func (h *httpHandler) authenticateHandshake(c *gin.Context) (realtime.Identity, error) {
	token := strings.TrimSpace(strings.TrimPrefix(c.GetHeader("Authorization"), "Bearer "))
	if token == "" {
		token = strings.TrimSpace(c.Query(realtimeTokenQueryParam))
	}
	if token == "" {
		return realtime.Identity{}, errInvalidAuthorization
	}

	userID, err := h.tokens.ValidateToken(token)
	if err != nil {
		return realtime.Identity{}, err
	}

	account, err := h.usersService.GetByID(c.Request.Context(), userID)
	if err != nil {
		return realtime.Identity{}, err
	}

	return realtime.Identity{UserID: account.UserID, Email: account.Email}, nil
}

func (h *httpHandler) checkRealtimeOrigin(r *http.Request) bool {
	origin := r.Header.Get("Origin")
	if origin == "" {
		return true
	}
	for _, allowed := range h.allowedOrigins {
		if allowed == "*" || strings.EqualFold(allowed, origin) {
			return true
		}
	}
	return false
}

func refuseConnection(conn *websocket.Conn, reason string) {
	deadline := time.Now().Add(writeDeadline)
	message := websocket.FormatCloseMessage(websocket.ClosePolicyViolation, reason)
	_ = conn.WriteControl(websocket.CloseMessage, message, deadline)
	_ = conn.Close()
}

// connectionSink drains outbound envelopes through a single writer goroutine
// so hub broadcasts never block and WebSocket writes are serialized. A full
// queue drops the envelope; delivery is best-effort.
type connectionSink struct {
	conn      *websocket.Conn
	outbound  chan realtime.Envelope
	done      chan struct{}
	closeOnce sync.Once
	logger    *zap.Logger
}

func newConnectionSink(conn *websocket.Conn, logger *zap.Logger) *connectionSink {
	sink := &connectionSink{
		conn:     conn,
		outbound: make(chan realtime.Envelope, outboundQueueSize),
		done:     make(chan struct{}),
		logger:   logger,
	}
	go sink.writeLoop()
	return sink
}

// Send implements realtime.Sink.
func (s *connectionSink) Send(envelope realtime.Envelope) {
	select {
	case s.outbound <- envelope:
	case <-s.done:
	default:
		s.logger.Debug("dropping envelope for slow consumer", zap.String("event", envelope.Event))
	}
}

func (s *connectionSink) writeLoop() {
	for {
		select {
		case <-s.done:
			return
		case envelope := <-s.outbound:
			if err := s.conn.SetWriteDeadline(time.Now().Add(writeDeadline)); err != nil {
				return
			}
			if err := s.conn.WriteJSON(envelope); err != nil {
				return
			}
		}
	}
}

// Close stops the writer and closes the underlying connection.
func (s *connectionSink) Close() {
	s.closeOnce.Do(func() {
		close(s.done)
		_ = s.conn.Close()
	})
}

package ws

import (
	"context"
	"errors"
	"log"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"go.opentelemetry.io/otel"

	"messenger-service/internal/auth"
	"messenger-service/internal/chat"
	"messenger-service/internal/models"
	"messenger-service/internal/observability"
	"messenger-service/internal/rabbitmq"
	"messenger-service/internal/repositories"
)

// CloseAuthFailure is the close code sent when admission fails.
const CloseAuthFailure = 4001

const sessionRoutingKey = "ws_events.sessions"

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool { return true },
}

// SessionHandler admits authenticated websocket connections and runs one
// receive loop per connection.
type SessionHandler struct {
	registry    *Registry
	coordinator *chat.Coordinator
	users       repositories.UserRepository
	tokens      *auth.TokenManager
	publisher   rabbitmq.Publisher
}

// NewSessionHandler constructs a SessionHandler.
func NewSessionHandler(
	registry *Registry,
	coordinator *chat.Coordinator,
	users repositories.UserRepository,
	tokens *auth.TokenManager,
	publisher rabbitmq.Publisher,
) *SessionHandler {
	return &SessionHandler{
		registry:    registry,
		coordinator: coordinator,
		users:       users,
		tokens:      tokens,
		publisher:   publisher,
	}
}

type wsEvent struct {
	EventType string `json:"event_type"`
	EventName string `json:"event_name"`
	Payload   any    `json:"payload"`
}

// Handle upgrades the connection, authenticates the client, registers it,
// and blocks on the receive loop until the transport closes.
func (h *SessionHandler) Handle(c *gin.Context) {
	ctx, span := otel.Tracer("messenger-service/ws").Start(c.Request.Context(), "ws.handshake")
	defer span.End()
	c.Request = c.Request.WithContext(ctx)

	conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		return
	}

	token := bearerToken(c)
	userID, err := h.tokens.Validate(token)
	if err != nil {
		h.reject(conn, "invalid token")
		return
	}
	user, err := h.users.GetUser(ctx, userID)
	if err != nil {
		h.reject(conn, "user not found")
		return
	}

	info := ConnInfo{
		ConnID:      newConnID(),
		UserID:      user.ID,
		DeviceID:    observability.DeviceIDFromRequest(c.Request),
		IP:          observability.IPFromRequest(c.Request),
		RequestID:   observability.RequestIDFromRequest(c.Request),
		TraceID:     span.SpanContext().TraceID().String(),
		ConnectedAt: time.Now(),
	}
	client := NewClient(conn, info)
	h.registry.Register(user.ID, client)

	if err := h.users.SetOnline(ctx, user.ID); err != nil {
		log.Printf("set online for %s: %v", user.ID, err)
	}

	observability.IncWSActive()
	observability.IncWSEvent("ws_connect")
	h.publishSessionEvent(ctx, "ws_connect", info, "")

	_ = client.WriteJSON(models.ConnectionEvent{
		Type:      models.EventConnection,
		Status:    "connected",
		UserID:    user.ID,
		Timestamp: time.Now(),
	})

	// Teardown is bound to this frame so it runs exactly once on every
	// exit path: normal close, transport error, or panic below.
	defer h.teardown(client)

	h.readLoop(ctx, client, conn)
}

// readLoop blocks on inbound frames; only transport-level failure ends it.
func (h *SessionHandler) readLoop(ctx context.Context, client *Client, conn *websocket.Conn) {
	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			if !websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				observability.IncWSEvent("ws_error")
				h.publishSessionEvent(ctx, "ws_error", client.Info(), err.Error())
			}
			return
		}
		h.handleFrame(ctx, client, data)
	}
}

// handleFrame processes one inbound envelope. Domain errors are answered as
// error events on the same connection; nothing here may kill the loop.
func (h *SessionHandler) handleFrame(ctx context.Context, client *Client, data []byte) {
	defer func() {
		if r := recover(); r != nil {
			log.Printf("panic handling frame from %s: %v", client.Info().UserID, r)
			h.sendError(client, "internal error")
		}
	}()

	frame, err := DecodeFrame(data)
	if err != nil {
		log.Printf("invalid frame from %s: %v", client.Info().UserID, err)
		h.sendError(client, "invalid message format")
		return
	}

	userID := client.Info().UserID
	switch f := frame.(type) {
	case PingFrame:
		_ = client.WriteJSON(models.PongEvent{Type: models.EventPong, Timestamp: time.Now()})

	case MessageFrame:
		_, err = h.coordinator.SendMessage(ctx, userID, chat.SendMessageInput{
			ReceiverID:      f.ReceiverID,
			MessageType:     f.MessageType,
			Content:         f.Content,
			ReplyToID:       f.ReplyToID,
			ForwardedFromID: f.ForwardedFromID,
			ExtraData:       f.ExtraData,
		})

	case TypingFrame:
		err = h.coordinator.SetTyping(ctx, f.ChatID, userID, f.IsTyping)

	case ReadFrame:
		_, err = h.coordinator.MarkRead(ctx, f.MessageID, userID)

	case ChatUpdateFrame:
		// Reserved.
	}

	if err != nil {
		log.Printf("frame %s from %s failed: %v", frame.frameType(), userID, err)
		h.sendError(client, userFacingError(err))
	}
}

// teardown releases everything the session acquired: the registry slot and,
// when this was the user's last connection, the persisted online flag. The
// session context may already be gone, so persistence uses a fresh one.
func (h *SessionHandler) teardown(client *Client) {
	info := client.Info()
	h.registry.Unregister(info.UserID, client)
	_ = client.Close()

	if !h.registry.IsOnline(info.UserID) {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := h.users.SetOffline(ctx, info.UserID, time.Now().UTC()); err != nil {
			log.Printf("set offline for %s: %v", info.UserID, err)
		}
	}

	observability.DecWSActive()
	observability.IncWSEvent("ws_disconnect")
	h.publishSessionEvent(context.Background(), "ws_disconnect", info, "")
}

// reject answers a failed admission with an error event and a close frame
// carrying the auth-failure code. No registration has happened yet.
func (h *SessionHandler) reject(c *websocket.Conn, reason string) {
	payload := models.ErrorEvent{Type: models.EventError, Message: reason}
	_ = c.WriteJSON(payload)
	deadline := time.Now().Add(time.Second)
	_ = c.WriteControl(websocket.CloseMessage, websocket.FormatCloseMessage(CloseAuthFailure, reason), deadline)
	_ = c.Close()
}

func (h *SessionHandler) sendError(client *Client, message string) {
	if err := client.WriteJSON(models.ErrorEvent{Type: models.EventError, Message: message}); err != nil {
		log.Printf("error event write failed: %v", err)
	}
}

func (h *SessionHandler) publishSessionEvent(ctx context.Context, name string, info ConnInfo, reason string) {
	if h.publisher == nil {
		return
	}
	event := wsEvent{
		EventType: "ws_events",
		EventName: name,
		Payload: map[string]any{
			"conn_id":     info.ConnID,
			"user_id":     info.UserID.String(),
			"device_id":   info.DeviceID,
			"ip":          info.IP,
			"request_id":  info.RequestID,
			"trace_id":    info.TraceID,
			"duration_ms": time.Since(info.ConnectedAt).Milliseconds(),
			"reason":      reason,
		},
	}
	if err := h.publisher.Publish(ctx, sessionRoutingKey, event); err != nil {
		log.Printf("session event publish failed: %v", err)
	}
}

// userFacingError maps domain errors to messages safe to echo back over the
// connection; anything unexpected stays generic.
func userFacingError(err error) string {
	switch {
	case errors.Is(err, chat.ErrNotChatParticipant),
		errors.Is(err, chat.ErrNotMessageReceiver),
		errors.Is(err, chat.ErrInvalidMessageType),
		errors.Is(err, repositories.ErrChatNotFound),
		errors.Is(err, repositories.ErrMessageNotFound),
		errors.Is(err, repositories.ErrUserNotFound),
		errors.Is(err, repositories.ErrSelfChat):
		return err.Error()
	default:
		return "internal error"
	}
}

package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"

	"mega/chat-service/middleware"
	"mega/chat-service/models"
	"mega/chat-service/services"
	"mega/chat-service/utils"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		// Origins are filtered by the CORS middleware in front.
		return true
	},
}

// SocketHandler owns the websocket endpoint: it upgrades connections,
// validates the event envelope and dispatches to the chat components.
type SocketHandler struct {
	hub      *services.Hub
	presence *services.PresenceTracker
	router   *services.MessageRouter
	typing   *services.TypingRelay
	receipts *services.ReadReceiptCoordinator
	logger   *utils.Logger
}

func NewSocketHandler(
	hub *services.Hub,
	presence *services.PresenceTracker,
	router *services.MessageRouter,
	typing *services.TypingRelay,
	receipts *services.ReadReceiptCoordinator,
	logger *utils.Logger,
) *SocketHandler {
	return &SocketHandler{
		hub:      hub,
		presence: presence,
		router:   router,
		typing:   typing,
		receipts: receipts,
		logger:   logger,
	}
}

// Serve handles GET /ws. The auth middleware has already attached the
// authenticated user id; the connection trusts that identity for its
// whole lifetime.
func (h *SocketHandler) Serve(c *gin.Context) {
	userID := c.GetUint(middleware.UserIDKey)
	if userID == 0 {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "Missing authenticated user"})
		return
	}

	conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		h.logger.Error("Websocket upgrade failed", "user_id", userID, "error", err)
		return
	}

	client := services.NewClient(h.hub, conn, userID, h.logger)
	h.hub.Register(client)

	go client.WritePump()
	client.ReadPump(func(event models.ClientEvent) {
		// The hijacked request context dies with the handler; domain
		// calls get their own.
		h.Dispatch(context.Background(), client, event)
	})

	h.hub.Unregister(client)
	h.logger.Info("Client disconnected", "client_id", client.ID, "user_id", userID)
}

// Dispatch routes one validated client event to its component.
// Failures are reported to the originating connection only.
func (h *SocketHandler) Dispatch(ctx context.Context, client *services.Client, event models.ClientEvent) {
	switch event.Event {
	case models.EventRegisterUser:
		var p models.RegisterUserPayload
		if !h.decode(client, event.Data, &p) {
			return
		}
		if p.UserID != client.UserID {
			client.SendError("User id does not match the authenticated connection")
			return
		}
		h.hub.JoinRoom(services.UserRoom(client.UserID), client)

	case models.EventSetStatus:
		var p models.SetStatusPayload
		if !h.decode(client, event.Data, &p) {
			return
		}
		if p.UserID != client.UserID {
			client.SendError("User id does not match the authenticated connection")
			return
		}
		if !p.Status.Valid() {
			client.SendError("Unknown chat status")
			return
		}
		if err := h.presence.SetStatus(ctx, client.UserID, p.Status); err != nil {
			h.logger.Error("Set status failed", "user_id", client.UserID, "error", err)
			client.SendError("Set status failed!")
		}

	case models.EventHeartbeat:
		var p models.HeartbeatPayload
		if !h.decode(client, event.Data, &p) {
			return
		}
		if p.UserID != client.UserID {
			client.SendError("User id does not match the authenticated connection")
			return
		}
		if err := h.presence.Heartbeat(ctx, client.UserID); err != nil {
			h.logger.Error("Heartbeat failed", "user_id", client.UserID, "error", err)
			client.SendError("Heartbeat failed!")
		}

	case models.EventJoinConversation:
		var p models.JoinConversationPayload
		if !h.decode(client, event.Data, &p) {
			return
		}
		if p.ConversationID == 0 {
			client.SendError("conversationId is required")
			return
		}
		ok, err := h.router.IsParticipant(ctx, p.ConversationID, client.UserID)
		if err != nil {
			client.SendError(failureMessage(err, "Join conversation failed!"))
			return
		}
		if !ok {
			client.SendError(services.ErrNotParticipant.Error())
			return
		}
		h.hub.JoinRoom(services.ConversationRoom(p.ConversationID), client)

	case models.EventSendMessage:
		var p models.SendMessagePayload
		if !h.decode(client, event.Data, &p) {
			return
		}
		if p.SenderID != client.UserID {
			client.SendError("User id does not match the authenticated connection")
			return
		}
		if p.ConversationID == 0 {
			client.SendError("conversationId is required")
			return
		}
		if _, err := h.router.Send(ctx, client.UserID, p); err != nil {
			h.logger.Error("Send message failed", "user_id", client.UserID, "conversation_id", p.ConversationID, "error", err)
			client.SendError(failureMessage(err, "Send message failed!"))
		}

	case models.EventTyping, models.EventStopTyping:
		var p models.TypingPayload
		if !h.decode(client, event.Data, &p) {
			return
		}
		if p.SenderID != client.UserID {
			client.SendError("User id does not match the authenticated connection")
			return
		}
		if p.ConversationID == 0 {
			client.SendError("conversationId is required")
			return
		}
		ok, err := h.router.IsParticipant(ctx, p.ConversationID, client.UserID)
		if err != nil {
			client.SendError(failureMessage(err, "Typing signal failed!"))
			return
		}
		if !ok {
			client.SendError(services.ErrNotParticipant.Error())
			return
		}
		if event.Event == models.EventTyping {
			h.typing.Typing(p.ConversationID, client.UserID, client.ID)
		} else {
			h.typing.StopTyping(p.ConversationID, client.UserID, client.ID)
		}

	case models.EventReadMessage:
		var p models.ReadMessagePayload
		if !h.decode(client, event.Data, &p) {
			return
		}
		if p.ConversationID == 0 || p.SenderID == 0 {
			client.SendError("conversationId and senderId are required")
			return
		}
		if err := h.receipts.MarkRead(ctx, client.UserID, p); err != nil {
			h.logger.Error("Read messages failed", "user_id", client.UserID, "conversation_id", p.ConversationID, "error", err)
			client.SendError(failureMessage(err, "Read messages failed!"))
		}

	default:
		client.SendError("Unknown event: " + event.Event)
	}
}

func (h *SocketHandler) decode(client *services.Client, data json.RawMessage, v interface{}) bool {
	if len(data) == 0 {
		client.SendError("Missing event payload")
		return false
	}
	if err := json.Unmarshal(data, v); err != nil {
		client.SendError("Malformed event payload")
		return false
	}
	return true
}

// failureMessage surfaces domain rejections verbatim and hides
// storage internals behind a generic message.
func failureMessage(err error, fallback string) string {
	switch {
	case errors.Is(err, services.ErrNotParticipant),
		errors.Is(err, services.ErrConversationNotFound),
		errors.Is(err, services.ErrEmptyContent):
		return err.Error()
	default:
		return fallback
	}
}

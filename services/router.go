package services

import (
	"context"
	"errors"
	"fmt"

	"mega/chat-service/models"
	"mega/chat-service/utils"
)

var (
	// ErrNotParticipant rejects an operation from a user who does not
	// belong to the target conversation.
	ErrNotParticipant = errors.New("user is not a participant of this conversation")

	// ErrEmptyContent rejects a text message with no content.
	ErrEmptyContent = errors.New("message content must not be empty")
)

// MessageRouter validates and persists incoming chat messages, then
// fans them out to the conversation room and to the receiver's private
// notification room.
type MessageRouter struct {
	store  Store
	hub    *Hub
	logger *utils.Logger
}

func NewMessageRouter(store Store, hub *Hub, logger *utils.Logger) *MessageRouter {
	return &MessageRouter{
		store:  store,
		hub:    hub,
		logger: logger,
	}
}

// Send persists a new message and broadcasts it. The broadcast only
// happens after a successful write; a sender never sees a message the
// store rejected. senderID is the authenticated identity of the
// calling connection.
func (r *MessageRouter) Send(ctx context.Context, senderID uint, p models.SendMessagePayload) (*models.Message, error) {
	if !p.Type.Valid() {
		return nil, fmt.Errorf("unknown message type %q", p.Type)
	}
	if p.Type == models.MessageTypeText && p.Content == "" {
		return nil, ErrEmptyContent
	}

	participants, err := r.store.GetConversationParticipants(ctx, p.ConversationID)
	if err != nil {
		return nil, err
	}
	receiverID, err := resolveReceiver(participants, senderID)
	if err != nil {
		return nil, err
	}

	message := &models.Message{
		ConversationID: p.ConversationID,
		SenderID:       senderID,
		Content:        p.Content,
		Type:           p.Type,
		Read:           false,
	}
	if err := r.store.CreateMessage(ctx, message); err != nil {
		return nil, err
	}

	// Everyone viewing the thread, sender's own tabs included.
	r.hub.BroadcastRoom(ConversationRoom(p.ConversationID), models.ServerEvent{
		Event: models.EventNewMessage,
		Data:  message,
	})

	// The receiver is notified even when not viewing the thread.
	r.hub.BroadcastRoom(UserRoom(receiverID), models.ServerEvent{
		Event: models.EventNewMessageNotification,
		Data: models.NewMessageNotificationPayload{
			ConversationID: p.ConversationID,
			Message:        message,
		},
	})

	r.logger.Debug("Message routed", "message_id", message.ID, "conversation_id", p.ConversationID, "receiver_id", receiverID)
	return message, nil
}

// resolveReceiver picks the participant who is not the sender. Only
// valid for two-party conversations; group chats would broadcast to
// all participants except the sender instead.
func resolveReceiver(participants []uint, senderID uint) (uint, error) {
	if len(participants) != 2 {
		return 0, fmt.Errorf("expected 2 participants, found %d", len(participants))
	}

	var receiverID uint
	isParticipant := false
	for _, id := range participants {
		if id == senderID {
			isParticipant = true
		} else {
			receiverID = id
		}
	}
	if !isParticipant {
		return 0, ErrNotParticipant
	}
	return receiverID, nil
}

// IsParticipant reports whether userID belongs to the conversation.
// Used by the transport layer before joining a conversation room.
func (r *MessageRouter) IsParticipant(ctx context.Context, conversationID, userID uint) (bool, error) {
	participants, err := r.store.GetConversationParticipants(ctx, conversationID)
	if err != nil {
		return false, err
	}
	for _, id := range participants {
		if id == userID {
			return true, nil
		}
	}
	return false, nil
}

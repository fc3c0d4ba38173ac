package services

import (
	"github.com/google/uuid"

	"mega/chat-service/models"
)

// TypingRelay forwards typing signals within a conversation room,
// excluding the connection that produced them. Purely ephemeral: no
// persistence and no delivery guarantee, the client UI self-corrects
// on the next signal.
type TypingRelay struct {
	hub *Hub
}

func NewTypingRelay(hub *Hub) *TypingRelay {
	return &TypingRelay{hub: hub}
}

// Typing announces that senderID started typing in the conversation.
func (t *TypingRelay) Typing(conversationID, senderID uint, originID uuid.UUID) {
	t.relay(models.EventTyping, conversationID, senderID, originID)
}

// StopTyping announces that senderID stopped typing.
func (t *TypingRelay) StopTyping(conversationID, senderID uint, originID uuid.UUID) {
	t.relay(models.EventStopTyping, conversationID, senderID, originID)
}

func (t *TypingRelay) relay(event string, conversationID, senderID uint, originID uuid.UUID) {
	t.hub.BroadcastRoomExcept(ConversationRoom(conversationID), models.ServerEvent{
		Event: event,
		Data:  models.TypingBroadcastPayload{SenderID: senderID},
	}, originID)
}

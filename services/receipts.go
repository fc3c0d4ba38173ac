package services

import (
	"context"

	"mega/chat-service/models"
	"mega/chat-service/utils"
)

// ReadReceiptCoordinator transitions batches of unread messages to
// read and announces the transition to the conversation room.
type ReadReceiptCoordinator struct {
	store  Store
	hub    *Hub
	logger *utils.Logger
}

func NewReadReceiptCoordinator(store Store, hub *Hub, logger *utils.Logger) *ReadReceiptCoordinator {
	return &ReadReceiptCoordinator{
		store:  store,
		hub:    hub,
		logger: logger,
	}
}

// MarkRead marks every unread message authored by senderID in the
// conversation as read. callerID is the reader, who must be a
// participant. Idempotent: with nothing left to mark it still emits
// the messageRead broadcast, which the UI treats as a duplicate
// receipt.
func (rc *ReadReceiptCoordinator) MarkRead(ctx context.Context, callerID uint, p models.ReadMessagePayload) error {
	participants, err := rc.store.GetConversationParticipants(ctx, p.ConversationID)
	if err != nil {
		return err
	}
	isParticipant := false
	for _, id := range participants {
		if id == callerID {
			isParticipant = true
			break
		}
	}
	if !isParticipant {
		return ErrNotParticipant
	}

	updated, err := rc.store.MarkMessagesRead(ctx, p.ConversationID, p.SenderID)
	if err != nil {
		return err
	}

	rc.hub.BroadcastRoom(ConversationRoom(p.ConversationID), models.ServerEvent{
		Event: models.EventMessageRead,
		Data: models.MessageReadPayload{
			SenderID:       p.SenderID,
			ConversationID: p.ConversationID,
		},
	})

	rc.logger.Debug("Messages marked read", "conversation_id", p.ConversationID, "sender_id", p.SenderID, "updated", updated)
	return nil
}

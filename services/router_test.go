package services

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"mega/chat-service/models"
	"mega/chat-service/utils"
)

func TestSendPersistsAndFansOut(t *testing.T) {
	database := newTestDB(t)
	seedConversation(t, database, 7, 1, 2)

	hub := newTestHub()
	router := NewMessageRouter(NewGormStore(database), hub, utils.NewLogger())

	sender := newTestClient(hub, 1)
	receiver := newTestClient(hub, 2)
	receiverElsewhere := newTestClient(hub, 2) // browsing outside the thread

	hub.JoinRoom(ConversationRoom(7), sender)
	hub.JoinRoom(ConversationRoom(7), receiver)
	hub.JoinRoom(UserRoom(1), sender)
	hub.JoinRoom(UserRoom(2), receiver)
	hub.JoinRoom(UserRoom(2), receiverElsewhere)

	message, err := router.Send(context.Background(), 1, models.SendMessagePayload{
		ConversationID: 7,
		SenderID:       1,
		Content:        "hi",
		Type:           models.MessageTypeText,
	})
	require.NoError(t, err)
	require.NotZero(t, message.ID)
	assert.False(t, message.Read)

	var stored models.Message
	require.NoError(t, database.First(&stored, message.ID).Error)
	assert.Equal(t, uint(7), stored.ConversationID)
	assert.Equal(t, uint(1), stored.SenderID)
	assert.Equal(t, "hi", stored.Content)
	assert.False(t, stored.Read)

	// Both thread viewers get the message, the sender included.
	assert.Equal(t, models.EventNewMessage, receiveEvent(t, sender).Event)

	receiverEvents := map[string]bool{}
	receiverEvents[receiveEvent(t, receiver).Event] = true
	receiverEvents[receiveEvent(t, receiver).Event] = true
	assert.True(t, receiverEvents[models.EventNewMessage])
	assert.True(t, receiverEvents[models.EventNewMessageNotification])

	// The receiver's other tab only gets the notification.
	notification := receiveEvent(t, receiverElsewhere)
	assert.Equal(t, models.EventNewMessageNotification, notification.Event)
	payload, ok := notification.Data.(models.NewMessageNotificationPayload)
	require.True(t, ok)
	assert.Equal(t, uint(7), payload.ConversationID)
	assert.Equal(t, message.ID, payload.Message.ID)
	assertNoEvent(t, receiverElsewhere)

	// The sender never receives their own notification.
	assertNoEvent(t, sender)
}

func TestSendRejectsNonParticipant(t *testing.T) {
	database := newTestDB(t)
	seedConversation(t, database, 7, 1, 2)

	hub := newTestHub()
	router := NewMessageRouter(NewGormStore(database), hub, utils.NewLogger())

	_, err := router.Send(context.Background(), 3, models.SendMessagePayload{
		ConversationID: 7,
		SenderID:       3,
		Content:        "hi",
		Type:           models.MessageTypeText,
	})

	assert.ErrorIs(t, err, ErrNotParticipant)

	var count int64
	require.NoError(t, database.Model(&models.Message{}).Count(&count).Error)
	assert.Zero(t, count)
}

func TestSendRejectsUnknownConversation(t *testing.T) {
	database := newTestDB(t)
	hub := newTestHub()
	router := NewMessageRouter(NewGormStore(database), hub, utils.NewLogger())

	_, err := router.Send(context.Background(), 1, models.SendMessagePayload{
		ConversationID: 99,
		SenderID:       1,
		Content:        "hi",
		Type:           models.MessageTypeText,
	})

	assert.ErrorIs(t, err, ErrConversationNotFound)
}

func TestSendRejectsEmptyTextContent(t *testing.T) {
	database := newTestDB(t)
	seedConversation(t, database, 7, 1, 2)

	hub := newTestHub()
	router := NewMessageRouter(NewGormStore(database), hub, utils.NewLogger())

	_, err := router.Send(context.Background(), 1, models.SendMessagePayload{
		ConversationID: 7,
		SenderID:       1,
		Type:           models.MessageTypeText,
	})

	assert.ErrorIs(t, err, ErrEmptyContent)
}

func TestSendRejectsUnknownType(t *testing.T) {
	database := newTestDB(t)
	seedConversation(t, database, 7, 1, 2)

	hub := newTestHub()
	router := NewMessageRouter(NewGormStore(database), hub, utils.NewLogger())

	_, err := router.Send(context.Background(), 1, models.SendMessagePayload{
		ConversationID: 7,
		SenderID:       1,
		Content:        "hi",
		Type:           "VIDEO",
	})

	assert.Error(t, err)
}

func TestSendNoBroadcastOnStoreFailure(t *testing.T) {
	store := newFakeStore()
	store.participants[7] = []uint{1, 2}
	store.failCreate = errors.New("store down")

	hub := newTestHub()
	router := NewMessageRouter(store, hub, utils.NewLogger())

	viewer := newTestClient(hub, 2)
	hub.JoinRoom(ConversationRoom(7), viewer)
	hub.JoinRoom(UserRoom(2), viewer)

	_, err := router.Send(context.Background(), 1, models.SendMessagePayload{
		ConversationID: 7,
		SenderID:       1,
		Content:        "hi",
		Type:           models.MessageTypeText,
	})

	require.Error(t, err)
	assertNoEvent(t, viewer)
}

func TestIsParticipant(t *testing.T) {
	database := newTestDB(t)
	seedConversation(t, database, 7, 1, 2)

	hub := newTestHub()
	router := NewMessageRouter(NewGormStore(database), hub, utils.NewLogger())

	ok, err := router.IsParticipant(context.Background(), 7, 1)
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = router.IsParticipant(context.Background(), 7, 3)
	require.NoError(t, err)
	assert.False(t, ok)

	_, err = router.IsParticipant(context.Background(), 99, 1)
	assert.ErrorIs(t, err, ErrConversationNotFound)
}

package models

import "encoding/json"

// Client -> server event names
const (
	EventRegisterUser     = "registerUser"
	EventSetStatus        = "setStatus"
	EventJoinConversation = "joinConversation"
	EventHeartbeat        = "heartbeat"
	EventSendMessage      = "sendMessage"
	EventTyping           = "typing"
	EventStopTyping       = "stopTyping"
	EventReadMessage      = "readMessage"
)

// Server -> client event names
const (
	EventStatusUpdate           = "statusUpdate"
	EventNewMessage             = "newMessage"
	EventNewMessageNotification = "newMessageNotification"
	EventMessageRead            = "messageRead"
	EventError                  = "error"
)

// ClientEvent is an incoming websocket frame. The payload stays raw
// until the event name selects its schema.
type ClientEvent struct {
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data"`
}

// ServerEvent is an outgoing websocket frame.
type ServerEvent struct {
	Event string      `json:"event"`
	Data  interface{} `json:"data"`
}

type RegisterUserPayload struct {
	UserID uint `json:"userId"`
}

type SetStatusPayload struct {
	UserID uint       `json:"userId"`
	Status ChatStatus `json:"status"`
}

type JoinConversationPayload struct {
	ConversationID uint `json:"conversationId"`
}

type HeartbeatPayload struct {
	UserID uint `json:"userId"`
}

type SendMessagePayload struct {
	ConversationID uint        `json:"conversationId"`
	SenderID       uint        `json:"senderId"`
	Content        string      `json:"content"`
	Type           MessageType `json:"type"`
}

type TypingPayload struct {
	ConversationID uint `json:"conversationId"`
	SenderID       uint `json:"senderId"`
}

type ReadMessagePayload struct {
	SenderID       uint `json:"senderId"`
	ConversationID uint `json:"conversationId"`
}

type StatusUpdatePayload struct {
	UserID uint       `json:"userId"`
	Status ChatStatus `json:"status"`
}

type NewMessageNotificationPayload struct {
	ConversationID uint     `json:"conversationId"`
	Message        *Message `json:"message"`
}

type TypingBroadcastPayload struct {
	SenderID uint `json:"senderId"`
}

type MessageReadPayload struct {
	SenderID       uint `json:"senderId"`
	ConversationID uint `json:"conversationId"`
}

type ErrorPayload struct {
	Message string `json:"message"`
}

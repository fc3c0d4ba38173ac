package models

import (
	"time"
)

// ChatStatus is a user's presence state
type ChatStatus string

const (
	ChatStatusOnline  ChatStatus = "ONLINE"
	ChatStatusOffline ChatStatus = "OFFLINE"
)

// Valid reports whether s is one of the known presence states.
func (s ChatStatus) Valid() bool {
	return s == ChatStatusOnline || s == ChatStatusOffline
}

// MessageType distinguishes message content kinds
type MessageType string

const (
	MessageTypeText  MessageType = "TEXT"
	MessageTypeImage MessageType = "IMAGE"
)

// Valid reports whether t is one of the known message types.
func (t MessageType) Valid() bool {
	return t == MessageTypeText || t == MessageTypeImage
}

// User represents a platform user. Only the chat-relevant columns are
// owned here; the rest of the row belongs to the user service.
type User struct {
	ID         uint       `json:"id" gorm:"primaryKey"`
	Name       string     `json:"name"`
	Email      string     `json:"email" gorm:"uniqueIndex"`
	ChatStatus ChatStatus `json:"chatStatus" gorm:"default:OFFLINE"`
	LastOnline time.Time  `json:"lastOnline"`
	CreatedAt  time.Time  `json:"createdAt"`
	UpdatedAt  time.Time  `json:"updatedAt"`
}

func (User) TableName() string {
	return "users"
}

// Conversation is a two-party chat thread. Membership is immutable
// after creation; conversations are created by the REST API, never
// by the realtime core.
type Conversation struct {
	ID           uint                      `json:"id" gorm:"primaryKey"`
	Participants []ConversationParticipant `json:"participants" gorm:"foreignKey:ConversationID"`
	CreatedAt    time.Time                 `json:"createdAt"`
}

func (Conversation) TableName() string {
	return "conversations"
}

// ConversationParticipant links a user to a conversation.
type ConversationParticipant struct {
	ConversationID uint `json:"conversationId" gorm:"primaryKey;autoIncrement:false"`
	UserID         uint `json:"userId" gorm:"primaryKey;autoIncrement:false"`
}

func (ConversationParticipant) TableName() string {
	return "conversation_participants"
}

// Message is a single chat message. The read flag only ever flips
// false -> true.
type Message struct {
	ID             uint        `json:"id" gorm:"primaryKey"`
	ConversationID uint        `json:"conversationId" gorm:"index;not null"`
	SenderID       uint        `json:"senderId" gorm:"not null"`
	Content        string      `json:"content"`
	Type           MessageType `json:"type" gorm:"default:TEXT"`
	Read           bool        `json:"read" gorm:"default:false"`
	CreatedAt      time.Time   `json:"createdAt"`
}

func (Message) TableName() string {
	return "messages"
}

// UserPresence is the redis presence mirror entry, readable by other
// platform services without touching this process.
type UserPresence struct {
	UserID   uint       `json:"user_id"`
	Status   ChatStatus `json:"status"`
	LastSeen time.Time  `json:"last_seen"`
}

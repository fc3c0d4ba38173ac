package services

import (
	"context"
	"errors"
	"fmt"
	"time"

	"gorm.io/gorm"

	"mega/chat-service/models"
)

// ErrConversationNotFound is returned when a conversation id does not
// reference an existing conversation.
var ErrConversationNotFound = errors.New("conversation not found")

// Store is the narrow persistence surface the realtime core depends
// on. Transaction semantics beyond these calls belong to the database.
type Store interface {
	CreateMessage(ctx context.Context, message *models.Message) error
	MarkMessagesRead(ctx context.Context, conversationID, senderID uint) (int64, error)
	UpdateUserStatus(ctx context.Context, userID uint, status models.ChatStatus, lastOnline time.Time) error
	GetConversationParticipants(ctx context.Context, conversationID uint) ([]uint, error)
}

// GormStore implements Store on top of gorm.
type GormStore struct {
	db *gorm.DB
}

func NewGormStore(db *gorm.DB) *GormStore {
	return &GormStore{db: db}
}

// CreateMessage persists a new message row. The caller sets every
// field except ID and CreatedAt.
func (s *GormStore) CreateMessage(ctx context.Context, message *models.Message) error {
	if err := s.db.WithContext(ctx).Create(message).Error; err != nil {
		return fmt.Errorf("failed to create message: %w", err)
	}
	return nil
}

// MarkMessagesRead flips every unread message authored by senderID in
// the conversation to read and reports how many rows changed. The
// update never touches rows that are already read, so the flag is
// monotonic.
func (s *GormStore) MarkMessagesRead(ctx context.Context, conversationID, senderID uint) (int64, error) {
	result := s.db.WithContext(ctx).
		Model(&models.Message{}).
		Where("conversation_id = ? AND sender_id = ? AND read = ?", conversationID, senderID, false).
		Update("read", true)
	if result.Error != nil {
		return 0, fmt.Errorf("failed to mark messages read: %w", result.Error)
	}
	return result.RowsAffected, nil
}

// UpdateUserStatus writes the durable presence mirror on the user row.
func (s *GormStore) UpdateUserStatus(ctx context.Context, userID uint, status models.ChatStatus, lastOnline time.Time) error {
	err := s.db.WithContext(ctx).
		Model(&models.User{}).
		Where("id = ?", userID).
		Updates(map[string]interface{}{
			"chat_status": status,
			"last_online": lastOnline,
		}).Error
	if err != nil {
		return fmt.Errorf("failed to update user status: %w", err)
	}
	return nil
}

// GetConversationParticipants resolves the user ids belonging to a
// conversation. Returns ErrConversationNotFound when the conversation
// has no participant rows.
func (s *GormStore) GetConversationParticipants(ctx context.Context, conversationID uint) ([]uint, error) {
	var userIDs []uint
	err := s.db.WithContext(ctx).
		Model(&models.ConversationParticipant{}).
		Where("conversation_id = ?", conversationID).
		Pluck("user_id", &userIDs).Error
	if err != nil {
		return nil, fmt.Errorf("failed to fetch participants: %w", err)
	}
	if len(userIDs) == 0 {
		return nil, ErrConversationNotFound
	}
	return userIDs, nil
}

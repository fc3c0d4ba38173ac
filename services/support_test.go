package services

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	"mega/chat-service/config"
	"mega/chat-service/db"
	"mega/chat-service/models"
	"mega/chat-service/utils"
)

func testConfig() *config.Config {
	return &config.Config{
		SweepInterval:    30 * time.Second,
		HeartbeatTimeout: 60 * time.Second,
		PresenceTTL:      120 * time.Second,
	}
}

func newTestHub() *Hub {
	return NewHub(utils.NewLogger())
}

func newTestClient(hub *Hub, userID uint) *Client {
	client := NewClient(hub, nil, userID, utils.NewLogger())
	hub.Register(client)
	return client
}

func receiveEvent(t *testing.T, client *Client) models.ServerEvent {
	t.Helper()
	select {
	case event := <-client.Send:
		return event
	case <-time.After(100 * time.Millisecond):
		t.Fatal("expected an event, got none")
		return models.ServerEvent{}
	}
}

func assertNoEvent(t *testing.T, client *Client) {
	t.Helper()
	select {
	case event := <-client.Send:
		t.Fatalf("expected no event, got %q", event.Event)
	case <-time.After(50 * time.Millisecond):
	}
}

// newTestDB opens an isolated in-memory sqlite database with the chat
// schema migrated.
func newTestDB(t *testing.T) *gorm.DB {
	t.Helper()

	database, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{
		Logger: gormlogger.Default.LogMode(gormlogger.Silent),
	})
	require.NoError(t, err)

	sqlDB, err := database.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)

	require.NoError(t, db.AutoMigrate(database))
	return database
}

// seedConversation creates two users and a conversation between them.
func seedConversation(t *testing.T, database *gorm.DB, conversationID, userA, userB uint) {
	t.Helper()

	require.NoError(t, database.Create(&models.User{ID: userA, Name: "a", Email: "a@example.com"}).Error)
	require.NoError(t, database.Create(&models.User{ID: userB, Name: "b", Email: "b@example.com"}).Error)
	require.NoError(t, database.Create(&models.Conversation{ID: conversationID}).Error)
	require.NoError(t, database.Create(&models.ConversationParticipant{ConversationID: conversationID, UserID: userA}).Error)
	require.NoError(t, database.Create(&models.ConversationParticipant{ConversationID: conversationID, UserID: userB}).Error)
}

type statusWrite struct {
	userID uint
	status models.ChatStatus
	at     time.Time
}

// fakeStore records calls and injects failures without a database.
type fakeStore struct {
	mu sync.Mutex

	statusWrites []statusWrite
	messages     []*models.Message
	participants map[uint][]uint

	failCreate    error
	failStatusFor map[uint]error

	// statusGate, when set, runs at the start of every UpdateUserStatus
	// call, outside the store lock. Tests use it to stall a write.
	statusGate func(userID uint, status models.ChatStatus)
}

func newFakeStore() *fakeStore {
	return &fakeStore{
		participants:  make(map[uint][]uint),
		failStatusFor: make(map[uint]error),
	}
}

func (f *fakeStore) CreateMessage(_ context.Context, message *models.Message) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failCreate != nil {
		return f.failCreate
	}
	message.ID = uint(len(f.messages) + 1)
	message.CreatedAt = time.Now()
	f.messages = append(f.messages, message)
	return nil
}

func (f *fakeStore) MarkMessagesRead(_ context.Context, _, _ uint) (int64, error) {
	return 0, nil
}

func (f *fakeStore) UpdateUserStatus(_ context.Context, userID uint, status models.ChatStatus, lastOnline time.Time) error {
	if f.statusGate != nil {
		f.statusGate(userID, status)
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.failStatusFor[userID]; err != nil {
		return err
	}
	f.statusWrites = append(f.statusWrites, statusWrite{userID: userID, status: status, at: lastOnline})
	return nil
}

func (f *fakeStore) GetConversationParticipants(_ context.Context, conversationID uint) ([]uint, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	ids, ok := f.participants[conversationID]
	if !ok {
		return nil, ErrConversationNotFound
	}
	return ids, nil
}

func (f *fakeStore) writesFor(userID uint) []statusWrite {
	f.mu.Lock()
	defer f.mu.Unlock()
	var writes []statusWrite
	for _, w := range f.statusWrites {
		if w.userID == userID {
			writes = append(writes, w)
		}
	}
	return writes
}

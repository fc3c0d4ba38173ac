package services

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"

	"mega/chat-service/config"
	"mega/chat-service/models"
	"mega/chat-service/utils"
)

const (
	presenceKeyPrefix = "presence:"
	onlineSetKey      = "online_users"
)

// PresenceTracker owns the online/offline state machine per user. The
// heartbeat map is the single in-process authority; the users table
// and the redis mirror are durable/queryable copies of it.
type PresenceTracker struct {
	store  Store
	hub    *Hub
	redis  *redis.Client // nil disables the mirror
	logger *utils.Logger

	sweepInterval    time.Duration
	heartbeatTimeout time.Duration
	mirrorTTL        time.Duration

	// clock is swappable for deterministic timeout tests.
	clock func() time.Time

	mu         sync.Mutex
	heartbeats map[uint]time.Time

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

func NewPresenceTracker(store Store, hub *Hub, redisClient *redis.Client, cfg *config.Config, logger *utils.Logger) *PresenceTracker {
	ctx, cancel := context.WithCancel(context.Background())

	return &PresenceTracker{
		store:            store,
		hub:              hub,
		redis:            redisClient,
		logger:           logger,
		sweepInterval:    cfg.SweepInterval,
		heartbeatTimeout: cfg.HeartbeatTimeout,
		mirrorTTL:        cfg.PresenceTTL,
		clock:            time.Now,
		heartbeats:       make(map[uint]time.Time),
		ctx:              ctx,
		cancel:           cancel,
	}
}

// Start launches the periodic sweep that expires stale heartbeats.
func (pt *PresenceTracker) Start() {
	pt.wg.Add(1)
	go pt.sweepLoop()
	pt.logger.Info("Presence tracker started", "sweep_interval", pt.sweepInterval, "heartbeat_timeout", pt.heartbeatTimeout)
}

// Stop cancels the sweep and waits for it to finish.
func (pt *PresenceTracker) Stop() {
	pt.cancel()
	pt.wg.Wait()
	pt.logger.Info("Presence tracker stopped")
}

func (pt *PresenceTracker) sweepLoop() {
	defer pt.wg.Done()

	ticker := time.NewTicker(pt.sweepInterval)
	defer ticker.Stop()

	for {
		select {
		case <-pt.ctx.Done():
			return
		case <-ticker.C:
			pt.Sweep(pt.ctx)
		}
	}
}

// Sweep expires every heartbeat entry older than the timeout. Expired
// entries are removed from the map before any persistence call, so a
// late heartbeat arriving while the OFFLINE write is in flight creates
// a fresh entry and the final state stays ONLINE.
func (pt *PresenceTracker) Sweep(ctx context.Context) {
	now := pt.clock()

	pt.mu.Lock()
	var expired []uint
	for userID, lastPing := range pt.heartbeats {
		if now.Sub(lastPing) > pt.heartbeatTimeout {
			expired = append(expired, userID)
			delete(pt.heartbeats, userID)
		}
	}
	pt.mu.Unlock()

	for _, userID := range expired {
		if pt.hasEntry(userID) {
			// A heartbeat re-created the entry after removal; the user
			// won the race and stays online.
			continue
		}
		if err := pt.persistStatus(ctx, userID, models.ChatStatusOffline, now); err != nil {
			// Failure is isolated per user; the sweep moves on.
			pt.logger.Error("Failed to persist swept offline status", "user_id", userID, "error", err)
			continue
		}
		if pt.hasEntry(userID) {
			// A heartbeat landed while the OFFLINE write was in flight.
			// It already broadcast ONLINE; an OFFLINE broadcast now
			// would arrive after it and stick, since later heartbeats
			// see an existing entry and do not re-broadcast. The stale
			// durable row heals on the next heartbeat's ONLINE write.
			pt.logger.Info("Skipping stale offline broadcast, heartbeat won the race", "user_id", userID)
			continue
		}
		pt.broadcastStatus(userID, models.ChatStatusOffline)
		pt.logger.Info("User swept offline", "user_id", userID)
	}
}

// Heartbeat records a liveness signal. The entry is refreshed before
// the persistence call so status writes race last-write-wins.
func (pt *PresenceTracker) Heartbeat(ctx context.Context, userID uint) error {
	now := pt.clock()

	pt.mu.Lock()
	_, wasOnline := pt.heartbeats[userID]
	pt.heartbeats[userID] = now
	pt.mu.Unlock()

	if err := pt.persistStatus(ctx, userID, models.ChatStatusOnline, now); err != nil {
		return err
	}

	if !wasOnline {
		pt.broadcastStatus(userID, models.ChatStatusOnline)
	}
	return nil
}

// SetStatus applies an explicit status change from the client.
func (pt *PresenceTracker) SetStatus(ctx context.Context, userID uint, status models.ChatStatus) error {
	if status == models.ChatStatusOnline {
		return pt.Heartbeat(ctx, userID)
	}

	now := pt.clock()

	pt.mu.Lock()
	delete(pt.heartbeats, userID)
	pt.mu.Unlock()

	if err := pt.persistStatus(ctx, userID, models.ChatStatusOffline, now); err != nil {
		return err
	}

	pt.broadcastStatus(userID, models.ChatStatusOffline)
	return nil
}

func (pt *PresenceTracker) hasEntry(userID uint) bool {
	pt.mu.Lock()
	defer pt.mu.Unlock()
	_, ok := pt.heartbeats[userID]
	return ok
}

// Online reports whether the user currently has a fresh heartbeat
// entry.
func (pt *PresenceTracker) Online(userID uint) bool {
	pt.mu.Lock()
	defer pt.mu.Unlock()

	lastPing, ok := pt.heartbeats[userID]
	return ok && pt.clock().Sub(lastPing) <= pt.heartbeatTimeout
}

// GetPresence returns a snapshot for one user, served from the redis
// mirror when available so it matches what other services see. A user
// with no entry is implicitly offline.
func (pt *PresenceTracker) GetPresence(ctx context.Context, userID uint) (*models.UserPresence, error) {
	if pt.redis == nil {
		return pt.localPresence(userID), nil
	}

	data, err := pt.redis.Get(ctx, presenceKey(userID)).Result()
	if err != nil {
		if err == redis.Nil {
			return &models.UserPresence{UserID: userID, Status: models.ChatStatusOffline}, nil
		}
		return nil, fmt.Errorf("failed to get presence: %w", err)
	}

	var presence models.UserPresence
	if err := json.Unmarshal([]byte(data), &presence); err != nil {
		return nil, fmt.Errorf("failed to unmarshal presence data: %w", err)
	}
	return &presence, nil
}

// GetOnlineUsers lists every user with a live mirror entry, pruning
// expired members from the online set as it goes.
func (pt *PresenceTracker) GetOnlineUsers(ctx context.Context) ([]models.UserPresence, error) {
	if pt.redis == nil {
		return pt.localOnlineUsers(), nil
	}

	userIDs, err := pt.redis.SMembers(ctx, onlineSetKey).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to get online users: %w", err)
	}
	if len(userIDs) == 0 {
		return []models.UserPresence{}, nil
	}

	pipe := pt.redis.Pipeline()
	cmds := make([]*redis.StringCmd, len(userIDs))
	for i, id := range userIDs {
		cmds[i] = pipe.Get(ctx, presenceKeyPrefix+id)
	}
	if _, err := pipe.Exec(ctx); err != nil && err != redis.Nil {
		return nil, fmt.Errorf("failed to get presence data: %w", err)
	}

	online := make([]models.UserPresence, 0, len(userIDs))
	var expired []interface{}
	for i, cmd := range cmds {
		data, err := cmd.Result()
		if err != nil {
			if err == redis.Nil {
				expired = append(expired, userIDs[i])
			}
			continue
		}
		var presence models.UserPresence
		if err := json.Unmarshal([]byte(data), &presence); err != nil {
			pt.logger.Warn("Skipping bad presence entry", "user_id", userIDs[i], "error", err)
			continue
		}
		online = append(online, presence)
	}

	if len(expired) > 0 {
		pt.redis.SRem(ctx, onlineSetKey, expired...)
	}

	return online, nil
}

func (pt *PresenceTracker) localPresence(userID uint) *models.UserPresence {
	pt.mu.Lock()
	defer pt.mu.Unlock()

	lastPing, ok := pt.heartbeats[userID]
	if !ok {
		return &models.UserPresence{UserID: userID, Status: models.ChatStatusOffline}
	}
	return &models.UserPresence{UserID: userID, Status: models.ChatStatusOnline, LastSeen: lastPing}
}

func (pt *PresenceTracker) localOnlineUsers() []models.UserPresence {
	pt.mu.Lock()
	defer pt.mu.Unlock()

	online := make([]models.UserPresence, 0, len(pt.heartbeats))
	for userID, lastPing := range pt.heartbeats {
		online = append(online, models.UserPresence{
			UserID:   userID,
			Status:   models.ChatStatusOnline,
			LastSeen: lastPing,
		})
	}
	return online
}

// persistStatus writes the durable user row and refreshes the redis
// mirror. A mirror failure is logged, not returned: the database row
// is the durable copy and the mirror self-heals on the next write.
func (pt *PresenceTracker) persistStatus(ctx context.Context, userID uint, status models.ChatStatus, at time.Time) error {
	if err := pt.store.UpdateUserStatus(ctx, userID, status, at); err != nil {
		return err
	}

	if err := pt.writeMirror(ctx, userID, status, at); err != nil {
		pt.logger.Warn("Failed to update presence mirror", "user_id", userID, "error", err)
	}
	return nil
}

func (pt *PresenceTracker) writeMirror(ctx context.Context, userID uint, status models.ChatStatus, at time.Time) error {
	if pt.redis == nil {
		return nil
	}

	key := presenceKey(userID)
	pipe := pt.redis.Pipeline()

	if status == models.ChatStatusOffline {
		pipe.Del(ctx, key)
		pipe.SRem(ctx, onlineSetKey, userID)
	} else {
		data, err := json.Marshal(models.UserPresence{UserID: userID, Status: status, LastSeen: at})
		if err != nil {
			return fmt.Errorf("failed to marshal presence data: %w", err)
		}
		pipe.Set(ctx, key, data, pt.mirrorTTL)
		pipe.SAdd(ctx, onlineSetKey, userID)
		pipe.Expire(ctx, onlineSetKey, pt.mirrorTTL*2)
	}

	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("failed to write presence mirror: %w", err)
	}
	return nil
}

func (pt *PresenceTracker) broadcastStatus(userID uint, status models.ChatStatus) {
	pt.hub.BroadcastAll(models.ServerEvent{
		Event: models.EventStatusUpdate,
		Data:  models.StatusUpdatePayload{UserID: userID, Status: status},
	})
}

func presenceKey(userID uint) string {
	return fmt.Sprintf("%s%d", presenceKeyPrefix, userID)
}

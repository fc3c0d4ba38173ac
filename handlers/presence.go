package handlers

import (
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"mega/chat-service/models"
	"mega/chat-service/services"
	"mega/chat-service/utils"
)

type PresenceHandler struct {
	presence *services.PresenceTracker
	logger   *utils.Logger
}

func NewPresenceHandler(presence *services.PresenceTracker, logger *utils.Logger) *PresenceHandler {
	return &PresenceHandler{
		presence: presence,
		logger:   logger,
	}
}

type statusResponse struct {
	UserID   uint              `json:"user_id"`
	Status   models.ChatStatus `json:"status"`
	LastSeen string            `json:"last_seen,omitempty"`
	IsOnline bool              `json:"is_online"`
}

// GetStatus handles GET /api/v1/presence/status?user_id=
func (ph *PresenceHandler) GetStatus(c *gin.Context) {
	userID, err := strconv.ParseUint(c.Query("user_id"), 10, 64)
	if err != nil || userID == 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "user_id parameter is required"})
		return
	}

	presence, err := ph.presence.GetPresence(c.Request.Context(), uint(userID))
	if err != nil {
		ph.logger.Error("Failed to get presence", "user_id", userID, "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to get presence"})
		return
	}

	response := statusResponse{
		UserID:   presence.UserID,
		Status:   presence.Status,
		IsOnline: presence.Status == models.ChatStatusOnline,
	}
	if !presence.LastSeen.IsZero() {
		response.LastSeen = presence.LastSeen.UTC().Format(time.RFC3339)
	}

	c.JSON(http.StatusOK, response)
}

// GetOnlineUsers handles GET /api/v1/presence/online
func (ph *PresenceHandler) GetOnlineUsers(c *gin.Context) {
	users, err := ph.presence.GetOnlineUsers(c.Request.Context())
	if err != nil {
		ph.logger.Error("Failed to get online users", "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to get online users"})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"count": len(users),
		"users": users,
	})
}

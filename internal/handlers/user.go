package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"contest-miniapp-backend/internal/contest"
	"contest-miniapp-backend/internal/models"
)

type UserHandler struct {
	store  SessionStore
	ledger *contest.Ledger
}

func NewUserHandler(store SessionStore, ledger *contest.Ledger) *UserHandler {
	return &UserHandler{
		store:  store,
		ledger: ledger,
	}
}

func (h *UserHandler) GetCurrentUser(c *gin.Context) {
	userID, exists := c.Get("user_id")
	if !exists {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "User not authenticated"})
		return
	}

	sessionID, exists := c.Get("session_id")
	if !exists {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "Session not found"})
		return
	}

	session, err := h.store.GetUserSession(c.Request.Context(), userID.(int64), sessionID.(string))
	if err != nil {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "Session expired or invalid"})
		return
	}

	wallet := h.ledger.Wallet(models.UserParticipantID(userID.(int64)))

	c.JSON(http.StatusOK, gin.H{
		"user": session.TelegramUser,
		"session": gin.H{
			"session_id":    session.SessionID,
			"created_at":    session.CreatedAt,
			"last_accessed": session.LastAccessed,
		},
		"wallet": wallet.Response(),
	})
}

// GetUserStats returns the public wallet stats for a participant id.
func (h *UserHandler) GetUserStats(c *gin.Context) {
	id := c.Param("id")
	if id == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "id is required"})
		return
	}

	wallet := h.ledger.Peek(id)
	c.JSON(http.StatusOK, wallet.Response())
}

func (h *UserHandler) Logout(c *gin.Context) {
	userID, exists := c.Get("user_id")
	if !exists {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "User not authenticated"})
		return
	}

	sessionID, exists := c.Get("session_id")
	if !exists {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "Session not found"})
		return
	}

	err := h.store.DeleteUserSession(c.Request.Context(), userID.(int64), sessionID.(string))
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to logout"})
		return
	}

	c.JSON(http.StatusOK, gin.H{"message": "Successfully logged out"})
}

package handlers

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog/log"

	"contest-miniapp-backend/internal/contest"
	"contest-miniapp-backend/internal/models"
	"contest-miniapp-backend/internal/services"
)

// SessionStore keeps Telegram users and their sessions. RedisService
// implements it.
type SessionStore interface {
	StoreUser(ctx context.Context, user *models.TelegramUser) error
	StoreUserSession(ctx context.Context, session *models.UserSession, expiry time.Duration) error
	GetUserSession(ctx context.Context, userID int64, sessionID string) (*models.UserSession, error)
	DeleteUserSession(ctx context.Context, userID int64, sessionID string) error
}

type AuthHandler struct {
	store    SessionStore
	jwt      *services.JWTService
	telegram *services.TelegramAuth
	ledger   *contest.Ledger
	ttl      time.Duration
}

func NewAuthHandler(store SessionStore, jwt *services.JWTService, telegram *services.TelegramAuth, ledger *contest.Ledger, ttl time.Duration) *AuthHandler {
	return &AuthHandler{
		store:    store,
		jwt:      jwt,
		telegram: telegram,
		ledger:   ledger,
		ttl:      ttl,
	}
}

// Authenticate exchanges Telegram Web App initData for a session token and
// warms the user's persisted wallet in the ledger.
func (h *AuthHandler) Authenticate(c *gin.Context) {
	initData := c.Query("init_data")
	if initData == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "init_data is required"})
		return
	}

	user, err := h.telegram.Validate(initData)
	if err != nil {
		log.Debug().Err(err).Msg("telegram auth rejected")
		c.JSON(http.StatusUnauthorized, gin.H{"error": "Invalid Telegram init data"})
		return
	}

	ctx := c.Request.Context()
	now := time.Now()
	session := &models.UserSession{
		ID:           user.ID,
		SessionID:    models.GenerateSessionID(),
		TelegramUser: user,
		CreatedAt:    now,
		LastAccessed: now,
	}

	if err := h.store.StoreUser(ctx, user); err != nil {
		log.Error().Err(err).Int64("user_id", user.ID).Msg("failed to store user")
	}
	if err := h.store.StoreUserSession(ctx, session, h.ttl); err != nil {
		log.Error().Err(err).Int64("user_id", user.ID).Msg("failed to store session")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to create session"})
		return
	}

	participantID := user.ParticipantID()
	if err := h.ledger.Load(ctx, participantID); err != nil {
		log.Warn().Err(err).Str("participant_id", participantID).Msg("failed to load wallet")
	}

	token, expiresAt, err := h.jwt.GenerateToken(user.ID, session.SessionID)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to generate token"})
		return
	}

	wallet := h.ledger.Wallet(participantID)
	log.Info().Int64("user_id", user.ID).Msg("user authenticated")

	c.JSON(http.StatusOK, gin.H{
		"token":      token,
		"expires_at": expiresAt,
		"user":       user,
		"wallet":     wallet.Response(),
	})
}

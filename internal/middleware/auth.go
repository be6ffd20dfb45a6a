package middleware

import (
	"context"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog/log"

	"contest-miniapp-backend/internal/services"
)

func AuthMiddleware(jwtService *services.JWTService) gin.HandlerFunc {
	return func(c *gin.Context) {
		authHeader := c.GetHeader("Authorization")
		var tokenString string

		if authHeader != "" {
			parts := strings.SplitN(authHeader, " ", 2)
			if len(parts) != 2 || parts[0] != "Bearer" {
				c.JSON(http.StatusUnauthorized, gin.H{"error": "Invalid authorization format"})
				c.Abort()
				return
			}
			tokenString = parts[1]
		} else {
			// browsers cannot set headers on websocket upgrades
			tokenString = c.Query("token")
			if tokenString == "" {
				c.JSON(http.StatusUnauthorized, gin.H{"error": "Authorization header required"})
				c.Abort()
				return
			}
		}

		claims, err := jwtService.ValidateToken(tokenString)
		if err != nil {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "Invalid or expired token"})
			c.Abort()
			return
		}

		c.Set("user_id", claims.UserID)
		c.Set("session_id", claims.SessionID)

		c.Next()
	}
}

type RateLimiter interface {
	CheckRateLimit(ctx context.Context, userID int64, action string, limit int, window time.Duration) (bool, error)
}

// RateLimitMiddleware caps contest joins and top-ups per user per minute.
// joinLimit <= 0 disables the join limit.
func RateLimitMiddleware(limiter RateLimiter, joinLimit int) gin.HandlerFunc {
	return func(c *gin.Context) {
		userID := c.GetInt64("user_id")
		if userID == 0 {
			c.Next()
			return
		}

		path := c.Request.URL.Path

		var action string
		var limit int
		window := time.Minute

		switch {
		case strings.HasSuffix(path, "/contest/join") && joinLimit > 0:
			action, limit = "join", joinLimit
		case strings.HasSuffix(path, "/topup"):
			action, limit = "topup", 10
		case strings.HasSuffix(path, "/contest/tier"):
			action, limit = "tier", 20
		default:
			c.Next()
			return
		}

		allowed, err := limiter.CheckRateLimit(c.Request.Context(), userID, action, limit, window)
		if err != nil {
			log.Error().Err(err).Int64("user_id", userID).Str("action", action).Msg("rate limit check failed")
		}
		if err != nil || !allowed {
			c.JSON(http.StatusTooManyRequests, gin.H{
				"error":       "Rate limit exceeded",
				"retry_after": window.Seconds(),
			})
			c.Abort()
			return
		}

		c.Next()
	}
}

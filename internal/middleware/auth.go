package middleware

import (
	"context"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"

	"chance-winner-hub/internal/services"
)

const (
	KeyUserID    = "user_id"
	KeySessionID = "session_id"
	KeyRole      = "role"
)

func AuthMiddleware(jwtService *services.JWTService) gin.HandlerFunc {
	return func(c *gin.Context) {
		authHeader := c.GetHeader("Authorization")
		var tokenString string

		if authHeader != "" {
			parts := strings.SplitN(authHeader, " ", 2)
			if len(parts) != 2 || parts[0] != "Bearer" {
				c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "Invalid authorization format"})
				return
			}
			tokenString = parts[1]
		} else {
			// browsers cannot set headers on a websocket upgrade
			tokenString = c.Query("token")
			if tokenString == "" {
				c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "Authorization header required"})
				return
			}
		}

		claims, err := jwtService.ValidateToken(tokenString)
		if err != nil {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "Invalid or expired token"})
			return
		}

		c.Set(KeyUserID, claims.UserID)
		c.Set(KeySessionID, claims.SessionID)
		c.Set(KeyRole, claims.Role)

		c.Next()
	}
}

// AdminOnly must run after AuthMiddleware.
func AdminOnly() gin.HandlerFunc {
	return func(c *gin.Context) {
		if c.GetString(KeyRole) != services.RoleAdmin {
			c.AbortWithStatusJSON(http.StatusForbidden, gin.H{"error": "Admin access required"})
			return
		}
		c.Next()
	}
}

// RateLimiter counts requests per user and action inside a window.
type RateLimiter interface {
	CheckRateLimit(ctx context.Context, userID, action string, limit int, window time.Duration) (bool, error)
}

func RateLimitMiddleware(limiter RateLimiter, log *logrus.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		userID := c.GetString(KeyUserID)
		if userID == "" || c.Request.Method != http.MethodPost {
			c.Next()
			return
		}

		path := c.Request.URL.Path

		var (
			action string
			limit  int
		)
		switch {
		case strings.Contains(path, "/games/crash/cashout"):
			action, limit = "cashout", services.DefaultRateLimitCashout
		case strings.HasSuffix(path, "/games/dice"),
			strings.HasSuffix(path, "/games/scratch"),
			strings.HasSuffix(path, "/games/wheel"),
			strings.HasSuffix(path, "/games/crash/start"):
			action, limit = "bet", services.DefaultRateLimitBets
		default:
			c.Next()
			return
		}

		window := time.Minute
		allowed, err := limiter.CheckRateLimit(c.Request.Context(), userID, action, limit, window)
		if err != nil {
			// a Redis outage must not block play
			log.WithError(err).WithField("user_id", userID).Warn("rate limit check failed")
			c.Next()
			return
		}
		if !allowed {
			c.AbortWithStatusJSON(http.StatusTooManyRequests, gin.H{
				"error":       "Rate limit exceeded",
				"retry_after": window.Seconds(),
			})
			return
		}

		c.Next()
	}
}

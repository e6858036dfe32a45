package middlewares

import (
	"context"
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/easecampusghana/extraclasses-live/internal/models"
	"github.com/easecampusghana/extraclasses-live/internal/utils"
)

const contextWSAuth = "ws_auth"

// SessionLookup resolves a room code to its session row. Satisfied by
// repositories.VideoSessionRepository.
type SessionLookup interface {
	GetByRoomCode(ctx context.Context, roomCode string) (*models.VideoSession, error)
}

// WebSocketAuth holds everything the signaling handler needs about an
// authenticated connection. Role is derived from the session row; the
// client never gets to claim which side of the call it is.
type WebSocketAuth struct {
	UserID   uuid.UUID
	UserName string
	Session  *models.VideoSession
	Role     models.Role
}

// WebSocketAuthMiddleware authenticates websocket connection attempts before
// the upgrade. Browsers cannot set headers on websocket dials, so the token
// rides in a query parameter along with the room code.
func WebSocketAuthMiddleware(jwtSecret string, sessions SessionLookup) gin.HandlerFunc {
	return func(c *gin.Context) {
		token := c.Query("token")
		if token == "" {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "authentication required"})
			return
		}

		claims, err := utils.ParseAccessToken(token, jwtSecret)
		if err != nil {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "invalid or expired token"})
			return
		}

		roomCode := c.Query("room_code")
		if roomCode == "" {
			c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "room_code required"})
			return
		}

		session, err := sessions.GetByRoomCode(c.Request.Context(), utils.NormalizeRoomCode(roomCode))
		if err != nil {
			status := http.StatusInternalServerError
			if errors.Is(err, models.ErrSessionNotFound) {
				status = http.StatusNotFound
			}
			c.AbortWithStatusJSON(status, gin.H{"error": "room not found"})
			return
		}

		if session.Status == models.VideoSessionStatusEnded {
			c.AbortWithStatusJSON(http.StatusGone, gin.H{"error": "session already ended"})
			return
		}

		role, ok := session.RoleOf(claims.UserID)
		if !ok {
			c.AbortWithStatusJSON(http.StatusForbidden, gin.H{"error": "not a participant of this session"})
			return
		}

		c.Set(contextWSAuth, &WebSocketAuth{
			UserID:   claims.UserID,
			UserName: claims.Name,
			Session:  session,
			Role:     role,
		})
		c.Next()
	}
}

// GetWebSocketAuth retrieves the auth context set by the middleware.
func GetWebSocketAuth(c *gin.Context) (*WebSocketAuth, error) {
	val, ok := c.Get(contextWSAuth)
	if !ok {
		return nil, errors.New("websocket authentication context not found")
	}
	auth, ok := val.(*WebSocketAuth)
	if !ok {
		return nil, errors.New("invalid websocket authentication context type")
	}
	return auth, nil
}

package routes

import (
	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"

	"github.com/easecampusghana/extraclasses-live/internal/handlers"
	"github.com/easecampusghana/extraclasses-live/internal/middlewares"
)

// Register wires up the call service's API surface.
//
//	POST /api/rooms                  booking system creates a session
//	GET  /api/rooms/:code            session-directory lookup
//	POST /api/rooms/:code/ready      waiting-room join transition
//	POST /api/rooms/:code/end        end-call transition
//	GET  /api/rooms/:code/signals    bounded signaling backfill
//	GET  /api/ws/rooms               websocket relay (token + room_code in query)
func Register(
	router *gin.Engine,
	roomHandler *handlers.RoomHandler,
	wsHandler *handlers.WebSocketHandler,
	sessions middlewares.SessionLookup,
	jwtSecret string,
	allowedOrigins []string,
) {
	router.Use(cors.New(cors.Config{
		AllowOrigins:     allowedOrigins,
		AllowMethods:     []string{"GET", "POST", "OPTIONS"},
		AllowHeaders:     []string{"Authorization", "Content-Type"},
		AllowCredentials: true,
	}))

	api := router.Group("/api")

	protected := api.Group("")
	protected.Use(middlewares.AuthMiddleware(jwtSecret))
	protected.POST("/rooms", roomHandler.CreateRoom)
	protected.GET("/rooms/:code", roomHandler.LookupRoom)
	protected.POST("/rooms/:code/ready", roomHandler.MarkReady)
	protected.POST("/rooms/:code/end", roomHandler.EndRoom)
	protected.GET("/rooms/:code/signals", roomHandler.SignalHistory)

	// Browsers can't set headers on websocket dials, so this endpoint
	// authenticates from query parameters in its own middleware.
	wsAuth := middlewares.WebSocketAuthMiddleware(jwtSecret, sessions)
	api.GET("/ws/rooms", wsAuth, wsHandler.HandleWebSocket)
}

package main

import (
	"github.com/gin-gonic/gin"

	"github.com/easecampusghana/extraclasses-live/internal/config"
	"github.com/easecampusghana/extraclasses-live/internal/db"
	"github.com/easecampusghana/extraclasses-live/internal/handlers"
	"github.com/easecampusghana/extraclasses-live/internal/logging"
	"github.com/easecampusghana/extraclasses-live/internal/repositories"
	"github.com/easecampusghana/extraclasses-live/internal/routes"
	"github.com/easecampusghana/extraclasses-live/internal/services"
	"github.com/easecampusghana/extraclasses-live/internal/signaling"
)

func main() {
	cfg := config.Load()
	log := logging.New(cfg.LogLevel, cfg.LogJSON)

	conn, err := db.Connect(cfg.DatabaseURL)
	if err != nil {
		log.Fatal().Err(err).Msg("database connection failed")
	}
	defer conn.Close()

	if err := db.Migrate(conn); err != nil {
		log.Fatal().Err(err).Msg("migrations failed")
	}

	sessionRepo := repositories.NewVideoSessionRepository(conn)
	bookingRepo := repositories.NewBookingRepository(conn)
	signalRepo := repositories.NewSignalingMessageRepository(conn)

	hub := signaling.NewHub(log)
	svc := services.NewVideoSessionService(sessionRepo, bookingRepo, signalRepo, hub, cfg.JoinGrace, log)

	roomHandler := handlers.NewRoomHandler(svc, hub, cfg.SignalingHistoryLimit, log)
	wsHandler := handlers.NewWebSocketHandler(svc, hub, cfg.AllowedOrigins, log)

	router := gin.New()
	router.Use(gin.Recovery())
	routes.Register(router, roomHandler, wsHandler, sessionRepo, cfg.JWTSecret, cfg.AllowedOrigins)

	log.Info().Str("port", cfg.Port).Msg("call service listening")
	if err := router.Run(":" + cfg.Port); err != nil {
		log.Fatal().Err(err).Msg("server exited")
	}
}

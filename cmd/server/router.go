package main

import (
	"face-registry/internal/api/handlers"
	"face-registry/internal/api/middleware"
	"face-registry/internal/api/websocket"
	"face-registry/internal/config"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	log "github.com/sirupsen/logrus"
)

// setupRouter настраивает роутер с middleware и endpoints
func setupRouter(handler *handlers.Handler, wsManager *websocket.Manager, cfg *config.Config) *gin.Engine {
	if log.GetLevel() < log.DebugLevel {
		gin.SetMode(gin.ReleaseMode)
	}

	router := gin.New()
	router.MaxMultipartMemory = 8 << 20

	router.Use(middleware.Logger())
	router.Use(middleware.Recovery())
	router.Use(middleware.CORS(cfg.Server.CORSOrigins))

	// Регистрация и распознавание
	router.POST("/register_person_file", handler.HandleRegisterFile)
	router.POST("/register_person_url", handler.HandleRegisterURL)
	router.POST("/recognize_person_file", handler.HandleRecognizeFile)
	router.POST("/recognize_person_url", handler.HandleRecognizeURL)

	// Жизненный цикл персоны
	router.DELETE("/unregister_person/:id", handler.HandleUnregister)
	router.GET("/registered_person/:id", handler.HandleGetRegistered)

	// Служебные
	router.GET("/stats", handler.HandleGetStats)
	router.GET("/health", handler.HandleHealth)
	router.GET("/metrics", gin.WrapH(promhttp.Handler()))

	wsHandler := websocket.NewHandler(wsManager)
	router.GET("/ws", wsHandler.HandleWebSocket)

	return router
}

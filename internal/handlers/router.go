package handlers

import (
	"log/slog"

	"github.com/gin-gonic/gin"
	"story-archive-backend/internal/middleware"
)

// NewRouter assembles the engine: recovery, request logging, CORS, /health and the action endpoint.
func NewRouter(d *Dispatcher, health *HealthHandler, logger *slog.Logger) *gin.Engine {
	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(middleware.RequestLogger(logger))
	router.Use(middleware.CORS())

	router.GET("/health", health.Health)
	d.Register(router)
	return router
}

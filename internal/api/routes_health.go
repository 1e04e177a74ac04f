package api

import (
	"github.com/gin-gonic/gin"

	"github.com/examcell/smartboard/internal/handlers"
	"github.com/examcell/smartboard/internal/monitoring"
)

func registerHealthRoutes(r *gin.Engine, health *monitoring.Health) {
	handler := handlers.Health(health)
	r.GET("/health", handler)
	r.GET("/api/health", handler)
}

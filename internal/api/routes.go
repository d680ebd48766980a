package api

import (
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// SetupRoutes configures all API routes. All endpoints are internal
// service-to-service calls; health routes are registered by the server.
func SetupRoutes(router *gin.Engine, stageHandler *StageHandler, processHandler *ProcessHandler) {
	v1 := router.Group("/api/v1")

	// Staging (write path)
	v1.POST("/studies", stageHandler.StageStudy)
	v1.POST("/studies/batch", stageHandler.StageBatch)

	// Pipeline runs
	v1.POST("/process", processHandler.Process)
	v1.GET("/batches", processHandler.ListBatches)

	router.GET("/metrics", gin.WrapH(promhttp.Handler()))
}

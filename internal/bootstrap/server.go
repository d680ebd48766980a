package bootstrap

import (
	"context"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/jmoiron/sqlx"

	"github.com/trialwell/pipeline/internal/api"
	"github.com/trialwell/pipeline/internal/config"
	"github.com/trialwell/pipeline/internal/database"
	"github.com/trialwell/pipeline/internal/httpserver"
	"github.com/trialwell/pipeline/internal/logger"
	"github.com/trialwell/pipeline/internal/metrics"
	"github.com/trialwell/pipeline/internal/service"
)

const healthCheckTimeout = 2 * time.Second

// SetupHTTPServer creates the HTTP server with all handlers wired.
func SetupHTTPServer(cfg *config.Config, db *sqlx.DB, log logger.Logger) *httpserver.Server {
	stagingRepo := database.NewStagingRepository(db)
	lookupRepo := database.NewLookupRepository(db)
	studyRepo := database.NewStudyRepository(db)

	pipelineMetrics := metrics.New(nil)
	pipelineSvc := service.NewPipelineService(
		stagingRepo,
		lookupRepo,
		studyRepo,
		pipelineMetrics,
		log,
		cfg.Pipeline.ChunkSize,
	)

	stageHandler := api.NewStageHandler(pipelineSvc)
	processHandler := api.NewProcessHandler(pipelineSvc)

	serverCfg := &httpserver.Config{
		ServiceName:    cfg.Service.Name,
		ServiceVersion: cfg.Service.Version,
		Port:           cfg.Service.Port,
		Debug:          cfg.Service.Debug,
	}

	return httpserver.NewServer(serverCfg, log, func(router *gin.Engine) {
		httpserver.RegisterHealthRoutes(router, cfg.Service.Name, cfg.Service.Version,
			map[string]httpserver.HealthChecker{
				"database": httpserver.DatabaseHealthChecker(func() error {
					ctx, cancel := context.WithTimeout(context.Background(), healthCheckTimeout)
					defer cancel()
					return pipelineSvc.Ping(ctx)
				}),
			})

		api.SetupRoutes(router, stageHandler, processHandler)
	})
}

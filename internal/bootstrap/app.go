// Package bootstrap handles application initialization and lifecycle
// management for the studies pipeline service.
package bootstrap

import (
	"context"
	"fmt"

	"github.com/trialwell/pipeline/internal/database"
	"github.com/trialwell/pipeline/internal/logger"
	"github.com/trialwell/pipeline/internal/staging"
)

// Start initializes and runs the configured entry point.
func Start() error {
	cfg, configErr := LoadConfig()
	if configErr != nil {
		return fmt.Errorf("config: %w", configErr)
	}

	log, logErr := CreateLogger(cfg)
	if logErr != nil {
		return fmt.Errorf("logger: %w", logErr)
	}
	defer func() { _ = log.Sync() }()

	log.Info("starting studies pipeline",
		logger.String("name", cfg.Service.Name),
		logger.String("version", cfg.Service.Version),
		logger.String("entry_point", cfg.Pipeline.EntryPoint),
	)

	db, dbErr := SetupDatabase(cfg)
	if dbErr != nil {
		return fmt.Errorf("database: %w", dbErr)
	}
	defer func() {
		if closeErr := db.Close(); closeErr != nil {
			log.Error("failed to close database", logger.Error(closeErr))
		}
	}()
	log.Info("database connection established")

	switch cfg.Pipeline.EntryPoint {
	case "serve":
		server := SetupHTTPServer(cfg, db, log)
		if runErr := server.Run(); runErr != nil {
			return fmt.Errorf("server: %w", runErr)
		}
	case "stage-csv":
		loader := staging.NewLoader(
			cfg.Pipeline.FilePath,
			database.NewStagingRepository(db),
			log,
			cfg.Pipeline.EnableBackfill,
		)
		batchID, staged, skipped, runErr := loader.Run(context.Background())
		if runErr != nil {
			return fmt.Errorf("stage csv: %w", runErr)
		}
		log.Info("csv staging complete",
			logger.String("batch_id", batchID),
			logger.Int("staged", staged),
			logger.Int("skipped", skipped),
		)
	default:
		return fmt.Errorf("unknown entry point: %s", cfg.Pipeline.EntryPoint)
	}

	log.Info("studies pipeline stopped")
	return nil
}

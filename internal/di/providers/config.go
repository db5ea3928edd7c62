// Package providers builds the letter feed's services for the samber/do
// container: configuration, logging, the letter store, the live stream
// manager and the HTTP server.
package providers

import (
	"github.com/samber/do/v2"

	"github.com/armyletters/letters-server/internal/config"
	"github.com/armyletters/letters-server/internal/logger"
)

// ProvideConfig loads flags, the environment and .env into a validated
// letter server configuration.
func ProvideConfig(i do.Injector) (*config.Config, error) {
	return config.LoadConfig()
}

// ProvideLogger builds the slog-based logger and records which store and
// data directory this letter server starts with.
func ProvideLogger(i do.Injector) (*logger.Logger, error) {
	cfg := do.MustInvoke[*config.Config](i)

	log := logger.New(logger.Config{
		Level:       logger.ParseLevel(cfg.Logger.Level),
		AddSource:   cfg.App.Environment == "development",
		Environment: cfg.App.Environment,
	})

	log.Info("Starting letters server",
		"environment", cfg.App.Environment,
		"log_level", cfg.Logger.Level,
		"data_path", cfg.App.DataPath,
		"store_driver", cfg.Store.Driver,
		"store_path", cfg.Store.Path,
		"song_search", cfg.SpotifyConfigured(),
	)

	return log, nil
}

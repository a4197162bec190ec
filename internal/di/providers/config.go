package providers

import (
	"os"

	"github.com/samber/do/v2"

	"github.com/flashdeck/flashdeck/internal/config"
	"github.com/flashdeck/flashdeck/internal/logger"
)

// ProvideConfig provides the application configuration from the process arguments.
func ProvideConfig(i do.Injector) (*config.Config, error) {
	return config.Load(os.Args[1:])
}

// ProvideLogger provides the structured logger.
func ProvideLogger(i do.Injector) (*logger.Logger, error) {
	cfg := do.MustInvoke[*config.Config](i)

	log := logger.New(logger.Config{
		Level:       logger.ParseLevel(cfg.Logger.Level),
		AddSource:   cfg.App.Environment == "development",
		Environment: cfg.App.Environment,
	})

	log.Debug("Starting FlashDeck",
		"environment", cfg.App.Environment,
		"log_level", cfg.Logger.Level,
		"data_path", cfg.Data.BasePath,
		"record_backend", cfg.Records.Backend,
		"media_backend", cfg.Media.Backend,
	)

	return log, nil
}

// Package di provides dependency injection configuration for FlashDeck.
package di

import (
	"github.com/samber/do/v2"

	"github.com/flashdeck/flashdeck/internal/config"
	"github.com/flashdeck/flashdeck/internal/di/providers"
	"github.com/flashdeck/flashdeck/internal/logger"
	"github.com/flashdeck/flashdeck/internal/mediabridge"
	"github.com/flashdeck/flashdeck/internal/service"
)

// NewContainer creates and configures the DI container with all providers.
func NewContainer() *do.RootScope {
	injector := do.New()

	// Core infrastructure
	do.Provide(injector, providers.ProvideConfig)
	do.Provide(injector, providers.ProvideLogger)

	// Record store
	do.Provide(injector, providers.ProvideStore)
	do.Provide(injector, providers.ProvideRecords)

	// Media layer
	do.Provide(injector, providers.ProvideMediaStore)
	do.Provide(injector, providers.ProvideWriteQueue)
	do.Provide(injector, providers.ProvideBridge)
	do.Provide(injector, providers.ProvideMedia)
	do.Provide(injector, providers.ProvideMigrator)

	// Search layer
	do.Provide(injector, providers.ProvideSearchIndex)

	// Business services
	do.Provide(injector, providers.ProvideLoginLimiter)
	do.Provide(injector, providers.ProvideUserService)
	do.Provide(injector, providers.ProvideDeckService)
	do.Provide(injector, providers.ProvideThemeService)
	do.Provide(injector, providers.ProvideFlashcardService)
	do.Provide(injector, providers.ProvideStudySessionService)
	do.Provide(injector, providers.ProvideShareService)

	// Backup
	do.Provide(injector, providers.ProvideBackupService)
	do.Provide(injector, providers.ProvideRestoreService)

	// Workers
	do.Provide(injector, providers.ProvideMaintenanceJob)

	return injector
}

// Bootstrap initializes the core services. The maintenance job is started
// separately by long-running commands.
func Bootstrap(injector *do.RootScope) error {
	if _, err := do.Invoke[*config.Config](injector); err != nil {
		return err
	}
	_ = do.MustInvoke[*logger.Logger](injector)

	if _, err := do.Invoke[*providers.StoreHandle](injector); err != nil {
		return err
	}
	if _, err := do.Invoke[*providers.MediaStoreHandle](injector); err != nil {
		return err
	}
	_ = do.MustInvoke[*mediabridge.Migrator](injector)

	// Business services
	_ = do.MustInvoke[*service.UserService](injector)
	_ = do.MustInvoke[*service.DeckService](injector)
	_ = do.MustInvoke[*service.ThemeService](injector)
	_ = do.MustInvoke[*service.FlashcardService](injector)
	_ = do.MustInvoke[*service.StudySessionService](injector)
	_ = do.MustInvoke[*service.ShareService](injector)

	// Fill the search index if it was just created
	providers.ReindexDecksIfNeeded(injector)

	return nil
}

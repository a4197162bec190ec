package providers

import (
	"github.com/samber/do/v2"

	"github.com/flashdeck/flashdeck/internal/backup"
	"github.com/flashdeck/flashdeck/internal/config"
	"github.com/flashdeck/flashdeck/internal/logger"
)

// appVersion is recorded in backup manifests.
const appVersion = "dev"

// ProvideBackupService provides the profile backup service.
func ProvideBackupService(i do.Injector) (*backup.BackupService, error) {
	cfg := do.MustInvoke[*config.Config](i)
	storeHandle := do.MustInvoke[*StoreHandle](i)
	mediaHandle := do.MustInvoke[*MediaStoreHandle](i)
	log := do.MustInvoke[*logger.Logger](i)

	return backup.NewBackupService(storeHandle.Store, mediaHandle.Store, cfg.BackupPath(), appVersion, log.Logger), nil
}

// ProvideRestoreService provides the profile restore service.
func ProvideRestoreService(i do.Injector) (*backup.RestoreService, error) {
	storeHandle := do.MustInvoke[*StoreHandle](i)
	mediaHandle := do.MustInvoke[*MediaStoreHandle](i)
	log := do.MustInvoke[*logger.Logger](i)

	return backup.NewRestoreService(storeHandle.Store, mediaHandle.Store, log.Logger), nil
}

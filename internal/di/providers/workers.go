package providers

import (
	"context"
	"time"

	"github.com/samber/do/v2"

	"github.com/flashdeck/flashdeck/internal/logger"
	"github.com/flashdeck/flashdeck/internal/mediabridge"
	"github.com/flashdeck/flashdeck/internal/service"
)

// maintenanceInterval is how often the maintenance job runs.
const maintenanceInterval = 1 * time.Hour

// MaintenanceJob periodically migrates leftover inline media, purges expired
// share codes and collects unreferenced blobs.
type MaintenanceJob struct {
	cancel context.CancelFunc
	done   chan struct{}
}

// Shutdown implements do.Shutdownable.
func (j *MaintenanceJob) Shutdown() error {
	j.cancel()
	<-j.done
	return nil
}

// ProvideMaintenanceJob provides and starts the periodic maintenance job.
func ProvideMaintenanceJob(i do.Injector) (*MaintenanceJob, error) {
	migrator := do.MustInvoke[*mediabridge.Migrator](i)
	shareService := do.MustInvoke[*service.ShareService](i)
	log := do.MustInvoke[*logger.Logger](i)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})

	go func() {
		defer close(done)

		ticker := time.NewTicker(maintenanceInterval)
		defer ticker.Stop()

		// Initial run on startup
		runMaintenance(ctx, migrator, shareService, log)

		for {
			select {
			case <-ticker.C:
				runMaintenance(ctx, migrator, shareService, log)
			case <-ctx.Done():
				return
			}
		}
	}()

	log.Info("Maintenance job started", "interval", maintenanceInterval)

	return &MaintenanceJob{cancel: cancel, done: done}, nil
}

func runMaintenance(ctx context.Context, migrator *mediabridge.Migrator, shareService *service.ShareService, log *logger.Logger) {
	if migrated, err := migrator.MigrateAll(ctx); err != nil {
		log.Warn("Media migration failed", "error", err)
	} else if migrated > 0 {
		log.Info("Media migration completed", "records", migrated)
	}

	if purged, err := shareService.PurgeExpiredShareCodes(ctx); err != nil {
		log.Warn("Share code cleanup failed", "error", err)
	} else if purged > 0 {
		log.Info("Share code cleanup completed", "deleted", purged)
	}

	if deleted, err := migrator.CollectGarbage(ctx); err != nil {
		log.Warn("Media garbage collection failed", "error", err)
	} else if deleted > 0 {
		log.Info("Media garbage collection completed", "deleted", deleted)
	}
}

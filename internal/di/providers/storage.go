package providers

import (
	"context"
	"fmt"
	"path/filepath"

	"github.com/samber/do/v2"

	"github.com/flashdeck/flashdeck/internal/config"
	"github.com/flashdeck/flashdeck/internal/logger"
	"github.com/flashdeck/flashdeck/internal/mediabridge"
	"github.com/flashdeck/flashdeck/internal/mediastore"
	"github.com/flashdeck/flashdeck/internal/service"
	"github.com/flashdeck/flashdeck/internal/writequeue"
)

// MediaStoreHandle wraps the media store with shutdown capability.
type MediaStoreHandle struct {
	*mediastore.Store
}

// Shutdown implements do.Shutdownable.
func (h *MediaStoreHandle) Shutdown() error {
	return h.Close()
}

// ProvideMediaStore provides the media store on the configured backend.
func ProvideMediaStore(i do.Injector) (*MediaStoreHandle, error) {
	cfg := do.MustInvoke[*config.Config](i)
	log := do.MustInvoke[*logger.Logger](i)

	var backend mediastore.Backend
	switch cfg.Media.Backend {
	case config.MediaBackendSQLite:
		backend = mediastore.NewSQLiteBackend(filepath.Join(cfg.MediaPath(), "media.db"), log.Logger)
	case config.MediaBackendFilesystem:
		b, err := mediastore.NewFileBackend(cfg.MediaPath())
		if err != nil {
			return nil, fmt.Errorf("media storage: %w", err)
		}
		backend = b
	case config.MediaBackendMinio:
		b, err := mediastore.NewMinioBackend(context.Background(), mediastore.MinioConfig{
			Endpoint:  cfg.Media.MinioEndpoint,
			AccessKey: cfg.Media.MinioAccessKey,
			SecretKey: cfg.Media.MinioSecretKey,
			Bucket:    cfg.Media.MinioBucket,
			UseSSL:    cfg.Media.MinioUseSSL,
		})
		if err != nil {
			return nil, fmt.Errorf("media storage: %w", err)
		}
		backend = b
	default:
		return nil, fmt.Errorf("unknown media backend: %s", cfg.Media.Backend)
	}

	s, err := mediastore.New(backend,
		mediastore.WithLogger(log.Logger),
		mediastore.WithCache(cfg.Media.CacheBytes),
	)
	if err != nil {
		return nil, err
	}

	log.Debug("Media store initialized", "backend", cfg.Media.Backend, "cache_bytes", cfg.Media.CacheBytes)

	return &MediaStoreHandle{Store: s}, nil
}

// WriteQueueHandle wraps the write queue with shutdown capability.
type WriteQueueHandle struct {
	*writequeue.Queue
	logger *logger.Logger
}

// Shutdown implements do.Shutdownable. Queued media work gets shutdownTimeout
// to drain before the queue closes.
func (h *WriteQueueHandle) Shutdown() error {
	ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := h.Settle(ctx); err != nil {
		h.logger.Warn("media work still pending at shutdown", "error", err)
	}
	return h.Close()
}

// ProvideWriteQueue provides the per-record write queue.
func ProvideWriteQueue(i do.Injector) (*WriteQueueHandle, error) {
	log := do.MustInvoke[*logger.Logger](i)
	return &WriteQueueHandle{Queue: writequeue.New(log.Logger), logger: log}, nil
}

// ProvideBridge provides the media bridge.
func ProvideBridge(i do.Injector) (*mediabridge.Bridge, error) {
	mediaHandle := do.MustInvoke[*MediaStoreHandle](i)
	log := do.MustInvoke[*logger.Logger](i)

	return mediabridge.New(mediaHandle.Store, mediabridge.WithLogger(log.Logger)), nil
}

// ProvideMedia provides the deferred media scheduler shared by the services.
func ProvideMedia(i do.Injector) (*service.Media, error) {
	bridge := do.MustInvoke[*mediabridge.Bridge](i)
	queueHandle := do.MustInvoke[*WriteQueueHandle](i)
	log := do.MustInvoke[*logger.Logger](i)

	return service.NewMedia(bridge, queueHandle.Queue, log.Logger), nil
}

// ProvideMigrator provides the batch media maintenance runner.
func ProvideMigrator(i do.Injector) (*mediabridge.Migrator, error) {
	bridge := do.MustInvoke[*mediabridge.Bridge](i)
	queueHandle := do.MustInvoke[*WriteQueueHandle](i)
	records := do.MustInvoke[*service.Records](i)
	log := do.MustInvoke[*logger.Logger](i)

	return mediabridge.NewMigrator(bridge, queueHandle.Queue, records.MediaTargets(bridge),
		mediabridge.WithMigratorLogger(log.Logger),
	), nil
}

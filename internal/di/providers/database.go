package providers

import (
	"context"
	"fmt"
	"time"

	"github.com/samber/do/v2"

	"github.com/flashdeck/flashdeck/internal/config"
	"github.com/flashdeck/flashdeck/internal/logger"
	"github.com/flashdeck/flashdeck/internal/service"
	"github.com/flashdeck/flashdeck/internal/store"
)

// StoreHandle wraps the record store with shutdown capability.
type StoreHandle struct {
	*store.Store
}

// Shutdown implements do.Shutdownable.
func (h *StoreHandle) Shutdown() error {
	return h.Close()
}

// ProvideStore provides the record store on the configured backend.
func ProvideStore(i do.Injector) (*StoreHandle, error) {
	cfg := do.MustInvoke[*config.Config](i)
	log := do.MustInvoke[*logger.Logger](i)

	var backend store.Backend
	switch cfg.Records.Backend {
	case config.RecordBackendBadger:
		b, err := store.OpenBadger(cfg.RecordPath(), log.Logger)
		if err != nil {
			return nil, err
		}
		backend = b
	case config.RecordBackendRedis:
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		b, err := store.OpenRedis(ctx, cfg.Records.RedisAddr, cfg.Records.RedisDB, cfg.Records.RedisPrefix)
		if err != nil {
			return nil, err
		}
		backend = b
	case config.RecordBackendMemory:
		backend = store.NewMemoryBackend()
	default:
		return nil, fmt.Errorf("unknown record backend: %s", cfg.Records.Backend)
	}

	s := store.New(backend,
		store.WithLogger(log.Logger),
		store.WithQuota(cfg.Records.QuotaBytes),
	)

	log.Debug("Record store initialized", "backend", cfg.Records.Backend)

	return &StoreHandle{Store: s}, nil
}

// ProvideRecords provides the typed record collections.
func ProvideRecords(i do.Injector) (*service.Records, error) {
	storeHandle := do.MustInvoke[*StoreHandle](i)
	return service.NewRecords(storeHandle.Store), nil
}

package providers

import (
	"github.com/samber/do/v2"

	"github.com/flashdeck/flashdeck/internal/auth"
	"github.com/flashdeck/flashdeck/internal/config"
	"github.com/flashdeck/flashdeck/internal/logger"
	"github.com/flashdeck/flashdeck/internal/ratelimit"
	"github.com/flashdeck/flashdeck/internal/service"
)

// serviceOptions builds the options shared by every service.
func serviceOptions(i do.Injector) []service.Option {
	cfg := do.MustInvoke[*config.Config](i)
	log := do.MustInvoke[*logger.Logger](i)

	opts := []service.Option{
		service.WithLogger(log.Logger),
		service.WithHasher(auth.NewHasher(auth.DefaultParams)),
		service.WithShareExpiryDays(cfg.Sharing.DefaultExpiryDays),
	}
	if index := deckIndex(i); index != nil {
		opts = append(opts, service.WithIndex(index))
	}
	return opts
}

// LoginLimiterHandle wraps the login rate limiter with shutdown capability.
type LoginLimiterHandle struct {
	*ratelimit.KeyedRateLimiter
}

// Shutdown implements do.Shutdownable.
func (h *LoginLimiterHandle) Shutdown() error {
	h.Stop()
	return nil
}

// ProvideLoginLimiter provides the per-email login throttle.
func ProvideLoginLimiter(i do.Injector) (*LoginLimiterHandle, error) {
	cfg := do.MustInvoke[*config.Config](i)
	perMinute := cfg.Auth.LoginAttemptsPerMinute
	return &LoginLimiterHandle{ratelimit.New(float64(perMinute)/60, perMinute)}, nil
}

// ProvideUserService provides the user service.
func ProvideUserService(i do.Injector) (*service.UserService, error) {
	cfg := do.MustInvoke[*config.Config](i)
	records := do.MustInvoke[*service.Records](i)
	media := do.MustInvoke[*service.Media](i)

	opts := serviceOptions(i)
	if cfg.Auth.LoginAttemptsPerMinute > 0 {
		opts = append(opts, service.WithLoginLimiter(do.MustInvoke[*LoginLimiterHandle](i)))
	}
	return service.NewUserService(records, media, opts...), nil
}

// ProvideDeckService provides the deck service.
func ProvideDeckService(i do.Injector) (*service.DeckService, error) {
	records := do.MustInvoke[*service.Records](i)
	media := do.MustInvoke[*service.Media](i)
	return service.NewDeckService(records, media, serviceOptions(i)...), nil
}

// ProvideThemeService provides the theme service.
func ProvideThemeService(i do.Injector) (*service.ThemeService, error) {
	records := do.MustInvoke[*service.Records](i)
	media := do.MustInvoke[*service.Media](i)
	return service.NewThemeService(records, media, serviceOptions(i)...), nil
}

// ProvideFlashcardService provides the flashcard service.
func ProvideFlashcardService(i do.Injector) (*service.FlashcardService, error) {
	records := do.MustInvoke[*service.Records](i)
	media := do.MustInvoke[*service.Media](i)
	return service.NewFlashcardService(records, media, serviceOptions(i)...), nil
}

// ProvideStudySessionService provides the study session service.
func ProvideStudySessionService(i do.Injector) (*service.StudySessionService, error) {
	records := do.MustInvoke[*service.Records](i)
	return service.NewStudySessionService(records, serviceOptions(i)...), nil
}

// ProvideShareService provides the share service.
func ProvideShareService(i do.Injector) (*service.ShareService, error) {
	records := do.MustInvoke[*service.Records](i)
	media := do.MustInvoke[*service.Media](i)
	return service.NewShareService(records, media, serviceOptions(i)...), nil
}

package sync

import (
	"time"

	"contact-manager/core/config"
	"contact-manager/feature/contacts"
	"contact-manager/feature/dedupe"
	"contact-manager/feature/sharing"
	"contact-manager/feature/sync/directory"

	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"
)

// Feature implements the loader.Feature interface.
type Feature struct {
	service *Service
	handler *Handler
	enabled bool
}

// NewFeature creates the Sync feature. dir and profiles come from the caller
// so the same directory client can also serve the revocation cleaner. With
// neither directory profiles nor a sharing backend there is nothing to
// reconcile and the feature stays disabled.
func NewFeature(cfg config.SyncConfig, owner string, contactSvc *contacts.Service, sharingSvc *sharing.Service, dedupeSvc *dedupe.Service, dir directory.Client, profiles []directory.Profile, logger *zap.Logger) *Feature {
	if len(profiles) == 0 && sharingSvc == nil {
		return &Feature{enabled: false}
	}

	window := time.Duration(cfg.ProtectionWindowSeconds) * time.Second
	reconciler := NewReconciler(contactSvc, sharingSvc, dedupeSvc, dir, profiles, window, owner, logger)

	interval := time.Duration(cfg.SweepIntervalSeconds) * time.Second
	if interval <= 0 {
		interval = 5 * time.Minute
	}
	sweeper := NewSweeper(reconciler, interval, logger)

	svc := NewService(reconciler, sweeper, logger)
	return &Feature{
		service: svc,
		handler: NewHandler(svc, logger),
		enabled: true,
	}
}

// Name returns the name of the feature.
func (f *Feature) Name() string {
	return "sync"
}

// IsEnabled checks if the feature is enabled.
func (f *Feature) IsEnabled() bool {
	return f.enabled
}

// Load registers the feature's routes.
func (f *Feature) Load(app fiber.Router) error {
	f.handler.RegisterRoutes(app)
	return nil
}

// Service exposes the underlying service.
func (f *Feature) Service() *Service {
	return f.service
}

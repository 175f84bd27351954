package sharing

import (
	"contact-manager/core/storage"
	"contact-manager/feature/contacts"

	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"
)

// Feature implements the loader.Feature interface.
type Feature struct {
	service *Service
	handler *Handler
	enabled bool
}

// NewFeature creates the Sharing feature. It is disabled without a storage
// client, since shared copies have nowhere to live.
func NewFeature(contactSvc *contacts.Service, client storage.Client, bucket, owner, lists string, workers int, cleaner RemoteCleaner, logger *zap.Logger) (*Feature, error) {
	if client == nil {
		return &Feature{enabled: false}, nil
	}

	resolver, err := NewResolver(lists)
	if err != nil {
		return nil, err
	}

	strategy := NewStrategy(client, bucket, owner, logger)
	svc := NewService(contactSvc, strategy, resolver, cleaner, owner, workers, logger)
	return &Feature{
		service: svc,
		handler: NewHandler(svc, logger),
		enabled: true,
	}, nil
}

// Name returns the name of the feature.
func (f *Feature) Name() string {
	return "sharing"
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

// Service exposes the underlying service for other features.
func (f *Feature) Service() *Service {
	return f.service
}

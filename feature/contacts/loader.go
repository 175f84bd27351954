package contacts

import (
	"contact-manager/feature/dedupe"

	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// Feature implements the loader.Feature interface.
type Feature struct {
	service *Service
	handler *Handler
}

// NewFeature creates a new Contacts feature. db may be nil; the feature then
// keeps contacts in memory only.
func NewFeature(store *Store, db *gorm.DB, owner string, dedupeSvc *dedupe.Service, logger *zap.Logger) *Feature {
	var repo *Repository
	if db != nil {
		repo = NewRepository(db, owner)
	}
	svc := NewService(store, repo, dedupeSvc, logger)
	h := NewHandler(svc, logger)
	return &Feature{service: svc, handler: h}
}

// Name returns the name of the feature.
func (f *Feature) Name() string {
	return "contacts"
}

// IsEnabled checks if the feature is enabled.
func (f *Feature) IsEnabled() bool {
	return true
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

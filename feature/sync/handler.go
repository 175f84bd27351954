package sync

import (
	"contact-manager/core/logger"

	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"
)

// Handler handles HTTP requests for synchronization.
type Handler struct {
	service *Service
	logger  *zap.Logger
}

// NewHandler creates a new HTTP handler.
func NewHandler(service *Service, l *zap.Logger) *Handler {
	return &Handler{service: service, logger: l}
}

// RegisterRoutes registers the sync routes.
func (h *Handler) RegisterRoutes(app fiber.Router) {
	group := app.Group("/sync")
	group.Post("/", h.HandleSync)
	group.Post("/pull", h.HandlePull)
	group.Post("/push", h.HandlePush)
	group.Get("/status", h.HandleStatus)
}

// HandleSync runs a full synchronization pass.
// @Summary Run Full Sync
// @Description Pull from every directory profile, pull incoming shares, then push local changes.
// @Tags sync
// @Produce json
// @Success 200 {object} map[string]any "Sync result"
// @Router /sync [post]
func (h *Handler) HandleSync(c *fiber.Ctx) error {
	l := logger.WithRayID(h.logger, c)

	result, err := h.service.SyncNow(c.Context())
	if err != nil {
		l.Error("Sync failed", zap.Error(err))
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": err.Error()})
	}
	return c.JSON(fiber.Map{"result": result})
}

// HandlePull runs the inbound half only.
// @Summary Pull Changes
// @Tags sync
// @Produce json
// @Success 200 {object} map[string]any "Pull result"
// @Router /sync/pull [post]
func (h *Handler) HandlePull(c *fiber.Ctx) error {
	l := logger.WithRayID(h.logger, c)

	result, err := h.service.Pull(c.Context())
	if err != nil {
		l.Error("Pull failed", zap.Error(err))
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": err.Error()})
	}
	return c.JSON(fiber.Map{"result": result})
}

// HandlePush runs the outbound half only.
// @Summary Push Changes
// @Tags sync
// @Produce json
// @Success 200 {object} map[string]any "Push result"
// @Router /sync/push [post]
func (h *Handler) HandlePush(c *fiber.Ctx) error {
	l := logger.WithRayID(h.logger, c)

	result, err := h.service.Push(c.Context())
	if err != nil {
		l.Error("Push failed", zap.Error(err))
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": err.Error()})
	}
	return c.JSON(fiber.Map{"result": result})
}

// HandleStatus returns the most recent sync outcome and the configured profiles.
// @Summary Sync Status
// @Tags sync
// @Produce json
// @Success 200 {object} map[string]any "Last result and profiles"
// @Router /sync/status [get]
func (h *Handler) HandleStatus(c *fiber.Ctx) error {
	profiles := make([]string, 0, len(h.service.Profiles()))
	for _, p := range h.service.Profiles() {
		profiles = append(profiles, p.Name)
	}
	return c.JSON(fiber.Map{
		"profiles": profiles,
		"last":     h.service.LastResult(),
	})
}

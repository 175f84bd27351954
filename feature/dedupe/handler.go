package dedupe

import (
	"contact-manager/core/logger"

	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"
)

// Handler handles HTTP requests for duplicate detection.
type Handler struct {
	service *Service
	logger  *zap.Logger
}

// NewHandler creates a new HTTP handler.
func NewHandler(service *Service, l *zap.Logger) *Handler {
	return &Handler{service: service, logger: l}
}

// RegisterRoutes registers the dedupe routes.
func (h *Handler) RegisterRoutes(app fiber.Router) {
	group := app.Group("/dedupe")
	group.Post("/check", h.HandleCheck)
	group.Get("/scan", h.HandleScan)
}

// HandleScan runs a pairwise duplicate scan over the active contacts.
// @Summary Scan For Duplicates
// @Description Compare every active contact against every other and return suspected duplicate pairs.
// @Tags dedupe
// @Produce json
// @Success 200 {object} map[string]any "Duplicate pairs"
// @Router /dedupe/scan [get]
func (h *Handler) HandleScan(c *fiber.Ctx) error {
	pairs := h.service.Scan()
	return c.JSON(fiber.Map{
		"count": len(pairs),
		"pairs": pairs,
	})
}

// HandleCheck scores a candidate snapshot against the active contacts.
// @Summary Check Duplicates
// @Description Score a candidate contact against existing contacts and return ranked matches.
// @Tags dedupe
// @Accept json
// @Produce json
// @Param candidate body Snapshot true "Candidate snapshot"
// @Success 200 {object} map[string]any "Ranked matches"
// @Failure 400 {object} map[string]string "Bad Request"
// @Router /dedupe/check [post]
func (h *Handler) HandleCheck(c *fiber.Ctx) error {
	l := logger.WithRayID(h.logger, c)

	var candidate Snapshot
	if err := c.BodyParser(&candidate); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "invalid candidate payload",
		})
	}

	matches := h.service.Check(candidate)
	duplicate := len(matches) > 0 && matches[0].IsDuplicate

	l.Info("Duplicate check completed",
		zap.Int("candidates", len(matches)),
		zap.Bool("duplicate", duplicate))

	return c.JSON(fiber.Map{
		"duplicate": duplicate,
		"matches":   matches,
	})
}

package sharing

import (
	"errors"

	"contact-manager/core/logger"
	"contact-manager/feature/contacts"
	"contact-manager/feature/contacts/models"

	"github.com/gofiber/fiber/v2"
	"github.com/gookit/validate"
	"go.uber.org/zap"
)

// ShareInput is the payload for sharing a contact.
type ShareInput struct {
	// Usernames are explicit recipients. List expands a distribution list
	// at call time; the two can be combined.
	Usernames  []string `json:"usernames"`
	List       string   `json:"list"`
	Level      string   `json:"level" validate:"required|in:read,write"`
	CanReshare bool     `json:"can_reshare"`
}

// Handler handles HTTP requests for sharing.
type Handler struct {
	service *Service
	logger  *zap.Logger
}

// NewHandler creates a new HTTP handler.
func NewHandler(service *Service, l *zap.Logger) *Handler {
	return &Handler{service: service, logger: l}
}

// RegisterRoutes registers the sharing routes.
func (h *Handler) RegisterRoutes(app fiber.Router) {
	app.Post("/contacts/:id/share", h.HandleShare)
	app.Delete("/contacts/:id/share/:username", h.HandleRevoke)
	app.Post("/shares/restore", h.HandleRestore)

	lists := app.Group("/lists")
	lists.Get("/", h.HandleLists)
	lists.Post("/:name/members/:username", h.HandleMemberAdded)
	lists.Delete("/:name/members/:username", h.HandleMemberRemoved)
}

// HandleShare shares a contact with recipients and/or a distribution list.
// @Summary Share Contact
// @Description Grant recipients access to a contact. Already-granted users are reported, not failed.
// @Tags sharing
// @Accept json
// @Produce json
// @Param id path string true "Contact ID"
// @Param share body ShareInput true "Recipients and permission"
// @Success 200 {object} map[string]any "Fan-out result"
// @Failure 404 {object} map[string]string "Not Found"
// @Failure 422 {object} map[string]string "Validation failure"
// @Router /contacts/{id}/share [post]
func (h *Handler) HandleShare(c *fiber.Ctx) error {
	l := logger.WithRayID(h.logger, c)

	var in ShareInput
	if err := c.BodyParser(&in); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "invalid payload"})
	}
	if v := validate.Struct(&in); !v.Validate() {
		return c.Status(fiber.StatusUnprocessableEntity).JSON(fiber.Map{"error": v.Errors.One()})
	}
	if len(in.Usernames) == 0 && in.List == "" {
		return c.Status(fiber.StatusUnprocessableEntity).JSON(fiber.Map{"error": "usernames or list is required"})
	}

	perm := models.SharePermission{
		Level:      models.PermissionLevel(in.Level),
		CanReshare: in.CanReshare,
	}

	recipients := in.Usernames
	if in.List != "" {
		members, ok := h.service.Resolver().Resolve(in.List)
		if !ok {
			return c.Status(fiber.StatusNotFound).JSON(fiber.Map{"error": "unknown distribution list"})
		}
		recipients = append(recipients, members...)
	}

	result, err := h.service.Share(c.Context(), c.Params("id"), recipients, perm)
	if err != nil {
		if errors.Is(err, contacts.ErrNotFound) {
			return c.Status(fiber.StatusNotFound).JSON(fiber.Map{"error": "contact not found"})
		}
		l.Error("Share failed", zap.Error(err))
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": err.Error()})
	}
	return c.JSON(fiber.Map{"result": result})
}

// HandleRevoke removes one recipient's access to a contact.
// @Summary Revoke Share
// @Tags sharing
// @Param id path string true "Contact ID"
// @Param username path string true "Recipient"
// @Success 200 {object} map[string]string "Revoked"
// @Failure 404 {object} map[string]string "Not Found"
// @Router /contacts/{id}/share/{username} [delete]
func (h *Handler) HandleRevoke(c *fiber.Ctx) error {
	l := logger.WithRayID(h.logger, c)

	err := h.service.Revoke(c.Context(), c.Params("id"), c.Params("username"))
	if err != nil {
		if errors.Is(err, contacts.ErrNotFound) {
			return c.Status(fiber.StatusNotFound).JSON(fiber.Map{"error": "contact not found"})
		}
		l.Error("Revoke failed", zap.Error(err))
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": err.Error()})
	}
	return c.JSON(fiber.Map{"status": "revoked"})
}

// HandleRestore repopulates missing shared copies across all contacts.
// @Summary Restore Shares
// @Tags sharing
// @Success 200 {object} map[string]any "Repair count"
// @Router /shares/restore [post]
func (h *Handler) HandleRestore(c *fiber.Ctx) error {
	l := logger.WithRayID(h.logger, c)

	repaired, err := h.service.RestoreShares(c.Context())
	if err != nil {
		l.Error("Share restoration failed", zap.Error(err))
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error":    err.Error(),
			"repaired": repaired,
		})
	}
	return c.JSON(fiber.Map{"repaired": repaired})
}

// HandleLists returns the configured distribution lists.
// @Summary List Distribution Lists
// @Tags sharing
// @Produce json
// @Success 200 {object} map[string]any "Distribution lists"
// @Router /lists [get]
func (h *Handler) HandleLists(c *fiber.Ctx) error {
	return c.JSON(fiber.Map{"lists": h.service.Resolver().Lists()})
}

// HandleMemberAdded adds a user to a list and retroactively shares.
// @Summary Add List Member
// @Tags sharing
// @Param name path string true "List name"
// @Param username path string true "Username"
// @Success 200 {object} map[string]any "Retroactive share count"
// @Router /lists/{name}/members/{username} [post]
func (h *Handler) HandleMemberAdded(c *fiber.Ctx) error {
	l := logger.WithRayID(h.logger, c)

	shared, err := h.service.OnMemberAdded(c.Context(), c.Params("name"), c.Params("username"))
	if err != nil {
		l.Error("Retroactive list share failed", zap.Error(err))
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": err.Error()})
	}
	return c.JSON(fiber.Map{"shared": shared})
}

// HandleMemberRemoved removes a user from a list and retroactively revokes.
// @Summary Remove List Member
// @Tags sharing
// @Param name path string true "List name"
// @Param username path string true "Username"
// @Success 200 {object} map[string]any "Retroactive revoke count"
// @Router /lists/{name}/members/{username} [delete]
func (h *Handler) HandleMemberRemoved(c *fiber.Ctx) error {
	l := logger.WithRayID(h.logger, c)

	revoked, err := h.service.OnMemberRemoved(c.Context(), c.Params("name"), c.Params("username"))
	if err != nil {
		l.Error("Retroactive list revoke failed", zap.Error(err))
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": err.Error()})
	}
	return c.JSON(fiber.Map{"revoked": revoked})
}

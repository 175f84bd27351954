package contacts

import (
	"errors"

	"contact-manager/core/logger"

	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"
)

// Handler handles HTTP requests for contacts.
type Handler struct {
	service *Service
	logger  *zap.Logger
}

// NewHandler creates a new HTTP handler.
func NewHandler(service *Service, l *zap.Logger) *Handler {
	return &Handler{service: service, logger: l}
}

// RegisterRoutes registers the contact routes.
func (h *Handler) RegisterRoutes(app fiber.Router) {
	group := app.Group("/contacts")
	group.Post("/", h.HandleCreate)
	group.Get("/", h.HandleList)
	group.Get("/views", h.HandleListViews)
	group.Get("/:id", h.HandleGet)
	group.Put("/:id", h.HandleUpdate)
	group.Delete("/:id", h.HandleDelete)
	group.Post("/:id/archive", h.HandleArchive)
	group.Post("/:id/restore", h.HandleRestore)
}

// HandleCreate creates or imports a contact.
// @Summary Create Contact
// @Description Create a contact; the duplicate detector may block the create unless allow_duplicate is set.
// @Tags contacts
// @Accept json
// @Produce json
// @Param contact body CreateInput true "Contact payload"
// @Success 201 {object} map[string]any "Created contact"
// @Failure 409 {object} map[string]any "Likely duplicate"
// @Failure 422 {object} map[string]string "Validation failure"
// @Router /contacts [post]
func (h *Handler) HandleCreate(c *fiber.Ctx) error {
	l := logger.WithRayID(h.logger, c)

	var in CreateInput
	if err := c.BodyParser(&in); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "invalid payload"})
	}

	contact, matches, err := h.service.Create(c.Context(), in)
	if err != nil {
		return writeServiceError(c, l, err)
	}

	return c.Status(fiber.StatusCreated).JSON(fiber.Map{
		"contact": contact,
		"matches": matches,
	})
}

// HandleList returns all owned contacts.
// @Summary List Contacts
// @Tags contacts
// @Produce json
// @Success 200 {object} map[string]any "Owned contacts"
// @Router /contacts [get]
func (h *Handler) HandleList(c *fiber.Ctx) error {
	if c.QueryBool("active", false) {
		return c.JSON(fiber.Map{"contacts": h.service.Store().Active()})
	}
	return c.JSON(fiber.Map{"contacts": h.service.Store().All()})
}

// HandleListViews returns the received shared views.
// @Summary List Received Views
// @Tags contacts
// @Produce json
// @Success 200 {object} map[string]any "Received shared views"
// @Router /contacts/views [get]
func (h *Handler) HandleListViews(c *fiber.Ctx) error {
	return c.JSON(fiber.Map{"views": h.service.Store().Views()})
}

// HandleGet returns one contact and records the access.
// @Summary Get Contact
// @Tags contacts
// @Produce json
// @Param id path string true "Contact ID"
// @Success 200 {object} map[string]any "Contact"
// @Failure 404 {object} map[string]string "Not Found"
// @Router /contacts/{id} [get]
func (h *Handler) HandleGet(c *fiber.Ctx) error {
	id := c.Params("id")
	contact, ok := h.service.Store().Get(id)
	if !ok {
		return c.Status(fiber.StatusNotFound).JSON(fiber.Map{"error": "contact not found"})
	}
	h.service.Store().RecordAccess(id, "viewed")
	return c.JSON(fiber.Map{"contact": contact})
}

// HandleUpdate edits a contact.
// @Summary Update Contact
// @Tags contacts
// @Accept json
// @Produce json
// @Param id path string true "Contact ID"
// @Param contact body UpdateInput true "Updated payload"
// @Success 200 {object} map[string]any "Updated contact"
// @Failure 404 {object} map[string]string "Not Found"
// @Failure 422 {object} map[string]string "Validation failure"
// @Router /contacts/{id} [put]
func (h *Handler) HandleUpdate(c *fiber.Ctx) error {
	l := logger.WithRayID(h.logger, c)

	var in UpdateInput
	if err := c.BodyParser(&in); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "invalid payload"})
	}

	contact, err := h.service.Update(c.Context(), c.Params("id"), in)
	if err != nil {
		return writeServiceError(c, l, err)
	}
	return c.JSON(fiber.Map{"contact": contact})
}

// HandleDelete soft-deletes a contact.
// @Summary Delete Contact
// @Tags contacts
// @Param id path string true "Contact ID"
// @Success 200 {object} map[string]string "Deleted"
// @Failure 404 {object} map[string]string "Not Found"
// @Router /contacts/{id} [delete]
func (h *Handler) HandleDelete(c *fiber.Ctx) error {
	l := logger.WithRayID(h.logger, c)
	if err := h.service.Delete(c.Context(), c.Params("id")); err != nil {
		return writeServiceError(c, l, err)
	}
	return c.JSON(fiber.Map{"status": "deleted"})
}

// HandleArchive archives a contact.
// @Summary Archive Contact
// @Tags contacts
// @Param id path string true "Contact ID"
// @Success 200 {object} map[string]string "Archived"
// @Router /contacts/{id}/archive [post]
func (h *Handler) HandleArchive(c *fiber.Ctx) error {
	l := logger.WithRayID(h.logger, c)
	if err := h.service.Archive(c.Context(), c.Params("id")); err != nil {
		return writeServiceError(c, l, err)
	}
	return c.JSON(fiber.Map{"status": "archived"})
}

// HandleRestore restores an archived contact.
// @Summary Restore Contact
// @Tags contacts
// @Param id path string true "Contact ID"
// @Success 200 {object} map[string]string "Restored"
// @Router /contacts/{id}/restore [post]
func (h *Handler) HandleRestore(c *fiber.Ctx) error {
	l := logger.WithRayID(h.logger, c)
	if err := h.service.Restore(c.Context(), c.Params("id")); err != nil {
		return writeServiceError(c, l, err)
	}
	return c.JSON(fiber.Map{"status": "restored"})
}

// writeServiceError maps service failures to structured HTTP responses.
func writeServiceError(c *fiber.Ctx, l *zap.Logger, err error) error {
	var ve *ValidationError
	var de *DuplicateError

	switch {
	case errors.As(err, &ve):
		return c.Status(fiber.StatusUnprocessableEntity).JSON(fiber.Map{"error": ve.Message})
	case errors.As(err, &de):
		return c.Status(fiber.StatusConflict).JSON(fiber.Map{
			"error":   de.Error(),
			"matches": de.Matches,
		})
	case errors.Is(err, ErrNotFound):
		return c.Status(fiber.StatusNotFound).JSON(fiber.Map{"error": "contact not found"})
	case errors.Is(err, ErrCardTooLarge), errors.Is(err, ErrRecordTooLarge):
		return c.Status(fiber.StatusRequestEntityTooLarge).JSON(fiber.Map{"error": err.Error()})
	case errors.Is(err, ErrMissingIdentity):
		return c.Status(fiber.StatusUnprocessableEntity).JSON(fiber.Map{"error": err.Error()})
	default:
		l.Error("Contact operation failed", zap.Error(err))
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": err.Error()})
	}
}

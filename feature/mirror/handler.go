package mirror

import (
	"errors"

	"itch-archiver/core/logger"

	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"
)

// Handler handles HTTP requests for the mirror.
type Handler struct {
	service *Service
}

// NewHandler creates a new HTTP handler.
func NewHandler(service *Service) *Handler {
	return &Handler{service: service}
}

// RegisterRoutes registers the mirror routes.
func (h *Handler) RegisterRoutes(app fiber.Router) {
	group := app.Group("/titles")
	group.Get("/", h.HandleListTitles)
	group.Get("/:publisher/:title", h.HandleGetTitle)
	app.Get("/errors", h.HandleErrors)
}

// HandleListTitles returns every mirrored title.
func (h *Handler) HandleListTitles(c *fiber.Ctx) error {
	l := logger.WithRayID(h.service.logger, c)

	titles, err := h.service.ListTitles(c.UserContext())
	if err != nil {
		l.Error("Listing titles failed", zap.Error(err))
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": err.Error()})
	}
	return c.JSON(fiber.Map{"count": len(titles), "titles": titles})
}

// HandleGetTitle returns one title.
func (h *Handler) HandleGetTitle(c *fiber.Ctx) error {
	publisher, title := c.Params("publisher"), c.Params("title")
	l := logger.WithRayID(h.service.logger, c)

	detail, err := h.service.GetTitle(c.UserContext(), publisher, title)
	if errors.Is(err, ErrNotFound) {
		return c.Status(fiber.StatusNotFound).JSON(fiber.Map{"error": err.Error()})
	}
	if err != nil {
		l.Error("Loading title failed", zap.String("publisher", publisher), zap.String("title", title), zap.Error(err))
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": err.Error()})
	}
	return c.JSON(detail)
}

// HandleErrors returns the error log.
func (h *Handler) HandleErrors(c *fiber.Ctx) error {
	blocks, err := h.service.Errors(c.UserContext())
	if err != nil {
		logger.WithRayID(h.service.logger, c).Error("Reading error log failed", zap.Error(err))
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": err.Error()})
	}
	return c.JSON(fiber.Map{"count": len(blocks), "errors": blocks})
}

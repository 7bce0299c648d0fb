package integrity

import (
	"itch-archiver/core/logger"

	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"
)

// Handler handles HTTP requests for integrity checks.
type Handler struct {
	service *Service
}

// NewHandler creates a new HTTP handler.
func NewHandler(service *Service) *Handler {
	return &Handler{service: service}
}

// RegisterRoutes registers the integrity routes.
func (h *Handler) RegisterRoutes(app fiber.Router) {
	app.Get("/integrity", h.HandleVerify)
}

// HandleVerify checks the mirror and, with ?fix=true, removes stale sidecars.
func (h *Handler) HandleVerify(c *fiber.Ctx) error {
	l := logger.WithRayID(h.service.logger, c)
	fix := c.Query("fix") == "true"
	l.Info("Starting mirror verification", zap.Bool("fix", fix))

	report, err := h.service.Verify(c.UserContext(), fix)
	if err != nil {
		l.Error("Mirror verification failed", zap.Error(err))
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": err.Error()})
	}

	status := "ok"
	if !report.Healthy() {
		status = "degraded"
	}
	if fix && len(report.Fixed) > 0 {
		status = "fixed"
	}

	return c.JSON(fiber.Map{
		"status": status,
		"report": report,
	})
}

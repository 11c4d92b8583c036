package handler

import (
	"context"

	"github.com/gofiber/fiber/v2"
)

const Version = "1.0.0"

// Pinger is satisfied by *pgxpool.Pool.
type Pinger interface {
	Ping(ctx context.Context) error
}

// ModelInfo names the backends loaded at startup.
type ModelInfo struct {
	Locator    string `json:"locator"`
	Classifier string `json:"classifier"`
	Explain    bool   `json:"explain"`
}

type HealthHandler struct {
	models ModelInfo
	db     Pinger
}

// NewHealthHandler builds the probe handler. db may be nil when no
// detection store is configured.
func NewHealthHandler(models ModelInfo, db Pinger) *HealthHandler {
	return &HealthHandler{models: models, db: db}
}

type HealthResponse struct {
	Status  string `json:"status"`
	Version string `json:"version,omitempty"`
}

type ReadyResponse struct {
	Status   string    `json:"status"`
	Models   ModelInfo `json:"models"`
	Database string    `json:"database"`
}

// Root GET / - liveness greeting kept for existing clients
func (h *HealthHandler) Root(c *fiber.Ctx) error {
	return c.JSON(fiber.Map{"message": "Hello World"})
}

func (h *HealthHandler) Health(c *fiber.Ctx) error {
	return c.JSON(HealthResponse{
		Status:  "ok",
		Version: Version,
	})
}

// Ready reports the loaded models and the store. Models are loaded before
// the server listens, so only the database can make it unready.
func (h *HealthHandler) Ready(c *fiber.Ctx) error {
	resp := ReadyResponse{
		Status:   "ready",
		Models:   h.models,
		Database: "disabled",
	}

	if h.db != nil {
		resp.Database = "ok"
		if err := h.db.Ping(c.UserContext()); err != nil {
			resp.Status = "degraded"
			resp.Database = "unavailable"
			return c.Status(fiber.StatusServiceUnavailable).JSON(resp)
		}
	}

	return c.JSON(resp)
}

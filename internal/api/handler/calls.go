package handler

import (
	"context"
	"strings"

	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"

	"github.com/saturnino-fabrica-de-software/faceguard/internal/domain"
)

const maxListLimit = 200

// DetectionQueries reads the detection store.
type DetectionQueries interface {
	Get(ctx context.Context, id uuid.UUID) (*domain.Detection, error)
	ListByCall(ctx context.Context, callID string, limit int) ([]domain.Detection, error)
	StatsByCall(ctx context.Context, callID string) (*domain.DetectionStats, error)
}

// CallsHandler exposes stored detections, grouped by call.
type CallsHandler struct {
	queries DetectionQueries
}

func NewCallsHandler(queries DetectionQueries) *CallsHandler {
	return &CallsHandler{queries: queries}
}

type DetectionListResponse struct {
	CallID     string                 `json:"call_id"`
	Detections []domain.Detection     `json:"detections"`
	Stats      *domain.DetectionStats `json:"stats"`
}

// GetDetection GET /detections/:id
func (h *CallsHandler) GetDetection(c *fiber.Ctx) error {
	id, err := uuid.Parse(c.Params("id"))
	if err != nil {
		return domain.ErrValidationFailed.WithError(err)
	}

	d, err := h.queries.Get(c.UserContext(), id)
	if err != nil {
		return err
	}

	return c.JSON(d)
}

// ListByCall GET /calls/:call_id/detections
func (h *CallsHandler) ListByCall(c *fiber.Ctx) error {
	callID := strings.TrimSpace(c.Params("call_id"))
	if callID == "" {
		return domain.ErrValidationFailed
	}

	limit := c.QueryInt("limit", 0)
	if limit < 0 || limit > maxListLimit {
		return domain.ErrValidationFailed
	}

	detections, err := h.queries.ListByCall(c.UserContext(), callID, limit)
	if err != nil {
		return err
	}

	stats, err := h.queries.StatsByCall(c.UserContext(), callID)
	if err != nil {
		return err
	}

	return c.JSON(DetectionListResponse{
		CallID:     callID,
		Detections: detections,
		Stats:      stats,
	})
}

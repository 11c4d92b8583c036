package handler

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"mime/multipart"
	"strings"
	"time"

	"github.com/gofiber/fiber/v2"

	"github.com/saturnino-fabrica-de-software/faceguard/internal/domain"
	"github.com/saturnino-fabrica-de-software/faceguard/internal/service"
)

const (
	SchemaVersion = "v1"
	StatusSuccess = "success"

	// DefaultMaxImageSize applies when the handler is built with a
	// non-positive limit.
	DefaultMaxImageSize = 10 * 1024 * 1024
)

// uploadFields are tried in order. "image" and "imageFile" are the names
// older clients post under.
var uploadFields = []string{"file", "image", "imageFile"}

// DetectionService interface for the service
type DetectionService interface {
	Detect(ctx context.Context, req service.DetectRequest) (*service.DetectResponse, error)
}

// DetectHandler handles classification requests
type DetectHandler struct {
	service      DetectionService
	maxImageSize int
	logger       *slog.Logger
}

// NewDetectHandler creates a new DetectHandler instance
func NewDetectHandler(svc DetectionService, maxImageSize int, logger *slog.Logger) *DetectHandler {
	if maxImageSize <= 0 {
		maxImageSize = DefaultMaxImageSize
	}
	return &DetectHandler{
		service:      svc,
		maxImageSize: maxImageSize,
		logger:       logger,
	}
}

// DetectionResponse is the v1 response schema shared by both detect routes.
type DetectionResponse struct {
	SchemaVersion  string               `json:"schema_version"`
	Status         string               `json:"status"`
	IsDeepfake     *bool                `json:"is_deepfake"`
	Confidence     *float64             `json:"confidence"`
	FaceDetected   bool                 `json:"faceDetected"`
	Message        string               `json:"message"`
	DetectionID    string               `json:"detection_id"`
	Faces          []domain.FaceVerdict `json:"faces"`
	AnnotatedImage string               `json:"annotated_image,omitempty"`
	SaliencyImage  string               `json:"saliency_image,omitempty"`
	CallID         string               `json:"call_id,omitempty"`
	Timestamp      string               `json:"timestamp,omitempty"`
	LatencyMs      int64                `json:"latency_ms"`
}

// Base64Request is the body of POST /detect-base64.
type Base64Request struct {
	Image       string `json:"image"`
	CallID      string `json:"callId"`
	Timestamp   string `json:"timestamp"`
	Explain     *bool  `json:"explain"`
	ReturnImage *bool  `json:"return_image"`
}

// Detect POST /detect - classify an uploaded image
func (h *DetectHandler) Detect(c *fiber.Ctx) error {
	imageBytes, err := h.extractImage(c)
	if err != nil {
		return err
	}

	callID := c.FormValue("callId", c.Query("call_id"))

	return h.detect(c, service.DetectRequest{
		Image:       imageBytes,
		Source:      service.SourceUpload,
		CallID:      strings.TrimSpace(callID),
		ClientTime:  c.FormValue("timestamp"),
		Explain:     c.QueryBool("explain", false),
		ReturnImage: c.QueryBool("return_image", false),
	})
}

// DetectBase64 POST /detect-base64 - classify a base64 encoded image
func (h *DetectHandler) DetectBase64(c *fiber.Ctx) error {
	var req Base64Request
	if err := c.BodyParser(&req); err != nil {
		return domain.ErrBadRequest.WithError(err)
	}

	if strings.TrimSpace(req.Image) == "" {
		return domain.ErrValidationFailed.WithError(errors.New("image is required"))
	}

	imageBytes, err := decodeBase64Image(req.Image)
	if err != nil {
		return domain.ErrInvalidImage.WithError(err)
	}
	if len(imageBytes) > h.maxImageSize {
		return domain.ErrImageTooLarge
	}

	return h.detect(c, service.DetectRequest{
		Image:       imageBytes,
		Source:      service.SourceBase64,
		CallID:      strings.TrimSpace(req.CallID),
		ClientTime:  req.Timestamp,
		Explain:     boolOr(req.Explain, c.QueryBool("explain", false)),
		ReturnImage: boolOr(req.ReturnImage, c.QueryBool("return_image", false)),
	})
}

func (h *DetectHandler) detect(c *fiber.Ctx, req service.DetectRequest) error {
	req.IPAddress = c.IP()
	req.UserAgent = c.Get(fiber.HeaderUserAgent)

	resp, err := h.service.Detect(c.UserContext(), req)
	if err != nil {
		return err
	}

	return c.JSON(toDetectionResponse(resp, req))
}

func toDetectionResponse(resp *service.DetectResponse, req service.DetectRequest) DetectionResponse {
	d := resp.Detection

	timestamp := req.ClientTime
	if timestamp == "" {
		timestamp = time.Now().UTC().Format(time.RFC3339)
	}

	out := DetectionResponse{
		SchemaVersion: SchemaVersion,
		Status:        StatusSuccess,
		IsDeepfake:    d.IsDeepfake,
		Confidence:    d.Confidence,
		FaceDetected:  d.FaceDetected,
		Message:       resp.Message,
		DetectionID:   d.ID.String(),
		Faces:         d.Faces,
		CallID:        d.CallID,
		Timestamp:     timestamp,
		LatencyMs:     d.LatencyMs,
	}
	if out.Faces == nil {
		out.Faces = []domain.FaceVerdict{}
	}
	if len(resp.AnnotatedJPEG) > 0 {
		out.AnnotatedImage = base64.StdEncoding.EncodeToString(resp.AnnotatedJPEG)
	}
	if len(resp.SaliencyJPEG) > 0 {
		out.SaliencyImage = base64.StdEncoding.EncodeToString(resp.SaliencyJPEG)
	}

	return out
}

// extractImage reads the upload from the first known multipart field, or
// the raw body when the request carries an image content type.
func (h *DetectHandler) extractImage(c *fiber.Ctx) ([]byte, error) {
	contentType := strings.ToLower(c.Get(fiber.HeaderContentType))

	if strings.HasPrefix(contentType, fiber.MIMEMultipartForm) {
		for _, field := range uploadFields {
			file, err := c.FormFile(field)
			if err != nil {
				continue
			}
			return h.readUpload(file)
		}
		return nil, domain.ErrValidationFailed.WithError(fmt.Errorf("no image in fields %v", uploadFields))
	}

	if strings.HasPrefix(contentType, "image/") || contentType == fiber.MIMEOctetStream {
		body := c.Body()
		if len(body) == 0 {
			return nil, domain.ErrValidationFailed.WithError(errors.New("empty body"))
		}
		if len(body) > h.maxImageSize {
			return nil, domain.ErrImageTooLarge
		}
		return append([]byte(nil), body...), nil
	}

	return nil, domain.ErrValidationFailed.WithError(fmt.Errorf("unsupported content type %q", contentType))
}

func (h *DetectHandler) readUpload(file *multipart.FileHeader) ([]byte, error) {
	if file.Size == 0 {
		return nil, domain.ErrInvalidImage.WithError(errors.New("empty file"))
	}
	if file.Size > int64(h.maxImageSize) {
		return nil, domain.ErrImageTooLarge
	}

	f, err := file.Open()
	if err != nil {
		return nil, domain.ErrInvalidImage.WithError(err)
	}
	defer func() {
		_ = f.Close()
	}()

	imageBytes, err := io.ReadAll(f)
	if err != nil {
		return nil, domain.ErrInvalidImage.WithError(err)
	}

	return imageBytes, nil
}

// decodeBase64Image strips an optional data URL prefix such as
// "data:image/jpeg;base64," before decoding.
func decodeBase64Image(s string) ([]byte, error) {
	s = strings.TrimSpace(s)
	if strings.HasPrefix(s, "data:") {
		comma := strings.IndexByte(s, ',')
		if comma < 0 {
			return nil, errors.New("malformed data url")
		}
		s = s[comma+1:]
	}

	data, err := base64.StdEncoding.DecodeString(s)
	if err != nil {
		// Some clients drop the padding.
		if raw, rawErr := base64.RawStdEncoding.DecodeString(strings.TrimRight(s, "=")); rawErr == nil {
			return raw, nil
		}
		return nil, fmt.Errorf("decode base64: %w", err)
	}

	return data, nil
}

func boolOr(v *bool, fallback bool) bool {
	if v == nil {
		return fallback
	}
	return *v
}

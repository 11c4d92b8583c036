package service

import (
	"context"
	"errors"
	"image"
	"log/slog"
	"math"
	"strconv"
	"time"

	"github.com/google/uuid"

	"github.com/saturnino-fabrica-de-software/faceguard/internal/audit"
	"github.com/saturnino-fabrica-de-software/faceguard/internal/classifier"
	"github.com/saturnino-fabrica-de-software/faceguard/internal/domain"
	"github.com/saturnino-fabrica-de-software/faceguard/internal/frame"
	"github.com/saturnino-fabrica-de-software/faceguard/internal/pipeline"
	"github.com/saturnino-fabrica-de-software/faceguard/internal/provider"
	"github.com/saturnino-fabrica-de-software/faceguard/internal/ws"
)

const (
	SourceUpload = "upload"
	SourceBase64 = "base64"

	MessageDetected = "Detection complete"
	MessageNoFace   = "No face detected"
)

type DetectionRepositoryInterface interface {
	Create(ctx context.Context, d *domain.Detection) error
	GetByID(ctx context.Context, id uuid.UUID) (*domain.Detection, error)
	ListByCall(ctx context.Context, callID string, limit int) ([]domain.Detection, error)
	StatsByCall(ctx context.Context, callID string) (*domain.DetectionStats, error)
}

// Runner is satisfied by *pipeline.Pipeline.
type Runner interface {
	Run(ctx context.Context, f *frame.Frame, opts pipeline.RunOptions) (*pipeline.Result, error)
}

// Broadcaster is satisfied by *ws.Hub.
type Broadcaster interface {
	BroadcastToCall(callID string, eventType ws.EventType, data interface{})
}

type DetectRequest struct {
	Image       []byte
	Source      string
	CallID      string
	ClientTime  string
	Explain     bool
	ReturnImage bool
	IPAddress   string
	UserAgent   string
}

type DetectResponse struct {
	Detection *domain.Detection
	Message   string
	// AnnotatedJPEG is set when ReturnImage was requested.
	AnnotatedJPEG []byte
	// SaliencyJPEG is the primary face's saliency overlay, when explained.
	SaliencyJPEG []byte
}

type DetectionService struct {
	runner       Runner
	repo         DetectionRepositoryInterface
	audit        audit.Logger
	broadcasters []Broadcaster
	logger       *slog.Logger

	locatorName    string
	classifierName string
	timeout        time.Duration
}

func NewDetectionService(runner Runner, locatorName, classifierName string, logger *slog.Logger) *DetectionService {
	return &DetectionService{
		runner:         runner,
		audit:          &audit.NoOpLogger{},
		logger:         logger.With("component", "detection_service"),
		locatorName:    locatorName,
		classifierName: classifierName,
	}
}

// WithRepository enables the persistent detection store.
func (s *DetectionService) WithRepository(repo DetectionRepositoryInterface) *DetectionService {
	s.repo = repo
	return s
}

func (s *DetectionService) WithAudit(logger audit.Logger) *DetectionService {
	s.audit = logger
	return s
}

// WithBroadcaster adds a receiver of per-call detection events. It may be
// called more than once.
func (s *DetectionService) WithBroadcaster(b Broadcaster) *DetectionService {
	s.broadcasters = append(s.broadcasters, b)
	return s
}

// WithTimeout bounds each pipeline run. Zero means no bound.
func (s *DetectionService) WithTimeout(d time.Duration) *DetectionService {
	s.timeout = d
	return s
}

// HasStore reports whether detections are persisted.
func (s *DetectionService) HasStore() bool {
	return s.repo != nil
}

func (s *DetectionService) Detect(ctx context.Context, req DetectRequest) (*DetectResponse, error) {
	detection := &domain.Detection{
		ID:         uuid.New(),
		CallID:     req.CallID,
		Source:     req.Source,
		Locator:    s.locatorName,
		Classifier: s.classifierName,
		ClientTime: req.ClientTime,
		Faces:      []domain.FaceVerdict{},
	}

	f, err := frame.Decode(req.Image)
	if err != nil {
		s.fail(ctx, req, detection, err)
		return nil, domain.ErrInvalidImage.WithError(err)
	}

	runCtx := ctx
	if s.timeout > 0 {
		var cancel context.CancelFunc
		runCtx, cancel = context.WithTimeout(ctx, s.timeout)
		defer cancel()
	}

	result, err := s.runner.Run(runCtx, f, pipeline.RunOptions{Explain: req.Explain})
	if err != nil {
		s.fail(ctx, req, detection, err)
		return nil, toAppError(err)
	}

	fillDetection(detection, result)

	resp := &DetectResponse{
		Detection: detection,
		Message:   MessageNoFace,
	}
	if result.FaceDetected {
		resp.Message = MessageDetected
	}

	if req.ReturnImage && result.Annotated != nil {
		encoded, err := result.Annotated.EncodeJPEG(frame.DefaultJPEGQuality)
		if err != nil {
			return nil, domain.ErrInternal.WithError(err)
		}
		resp.AnnotatedJPEG = encoded
	}

	if primary, ok := result.PrimaryFace(); ok && primary.Overlay != nil {
		encoded, err := encodeOverlay(primary.Overlay)
		if err != nil {
			return nil, domain.ErrInternal.WithError(err)
		}
		resp.SaliencyJPEG = encoded
	}

	s.record(ctx, req, detection)

	return resp, nil
}

func (s *DetectionService) Get(ctx context.Context, id uuid.UUID) (*domain.Detection, error) {
	if s.repo == nil {
		return nil, domain.ErrDetectionNotFound
	}
	d, err := s.repo.GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, domain.ErrDetectionNotFound) {
			return nil, domain.ErrDetectionNotFound
		}
		return nil, domain.ErrInternal.WithError(err)
	}
	return d, nil
}

func (s *DetectionService) ListByCall(ctx context.Context, callID string, limit int) ([]domain.Detection, error) {
	if s.repo == nil {
		return nil, domain.ErrNotFound
	}
	detections, err := s.repo.ListByCall(ctx, callID, limit)
	if err != nil {
		return nil, domain.ErrInternal.WithError(err)
	}
	return detections, nil
}

func (s *DetectionService) StatsByCall(ctx context.Context, callID string) (*domain.DetectionStats, error) {
	if s.repo == nil {
		return nil, domain.ErrNotFound
	}
	stats, err := s.repo.StatsByCall(ctx, callID)
	if err != nil {
		return nil, domain.ErrInternal.WithError(err)
	}
	return stats, nil
}

// record writes the audit trail. Store and broadcast failures never change
// the verdict already computed for the caller.
func (s *DetectionService) record(ctx context.Context, req DetectRequest, d *domain.Detection) {
	eventType := audit.EventDetectionCompleted
	if !d.FaceDetected {
		eventType = audit.EventNoFaceDetected
	}

	_ = s.audit.Log(ctx, audit.Event{
		EventType:   eventType,
		DetectionID: d.ID,
		CallID:      d.CallID,
		Locator:     d.Locator,
		Classifier:  d.Classifier,
		Success:     true,
		Metadata:    detectionMetadata(d),
		IPAddress:   req.IPAddress,
		UserAgent:   req.UserAgent,
	})

	if s.repo != nil {
		if err := s.repo.Create(ctx, d); err != nil {
			s.logger.ErrorContext(ctx, "failed to store detection",
				slog.String("detection_id", d.ID.String()),
				slog.String("error", err.Error()),
			)
		}
	}

	s.broadcast(d.CallID, ws.EventDetectionCompleted, d)
}

func (s *DetectionService) fail(ctx context.Context, req DetectRequest, d *domain.Detection, cause error) {
	_ = s.audit.Log(ctx, audit.Event{
		EventType:   audit.EventDetectionFailed,
		DetectionID: d.ID,
		CallID:      d.CallID,
		Locator:     d.Locator,
		Classifier:  d.Classifier,
		Success:     false,
		Error:       cause.Error(),
		IPAddress:   req.IPAddress,
		UserAgent:   req.UserAgent,
	})

	s.broadcast(d.CallID, ws.EventDetectionFailed, map[string]string{
		"detection_id": d.ID.String(),
		"code":         toAppError(cause).Code,
	})
}

func (s *DetectionService) broadcast(callID string, eventType ws.EventType, data interface{}) {
	if callID == "" {
		return
	}
	for _, b := range s.broadcasters {
		b.BroadcastToCall(callID, eventType, data)
	}
}

// toAppError maps pipeline failures onto the HTTP error taxonomy.
func toAppError(err error) *domain.AppError {
	var appErr *domain.AppError
	switch {
	case errors.As(err, &appErr):
		return appErr
	case errors.Is(err, frame.ErrInvalidFrame):
		return domain.ErrInvalidImage.WithError(err)
	case errors.Is(err, provider.ErrProviderUnavailable):
		return domain.ErrDetectorUnavailable.WithError(err)
	case errors.Is(err, classifier.ErrInference), errors.Is(err, context.DeadlineExceeded):
		return domain.ErrInferenceFailed.WithError(err)
	default:
		return domain.ErrInternal.WithError(err)
	}
}

func fillDetection(d *domain.Detection, result *pipeline.Result) {
	d.FaceDetected = result.FaceDetected
	d.IsDeepfake = result.IsDeepfake
	d.FacesCount = len(result.Faces)
	d.LatencyMs = result.Duration.Milliseconds()

	if result.Confidence != nil {
		conf := RoundConfidence(*result.Confidence, result.IsDeepfake != nil && *result.IsDeepfake)
		d.Confidence = &conf
	}

	for i, face := range result.Faces {
		d.Faces = append(d.Faces, domain.FaceVerdict{
			X:          face.Box.X,
			Y:          face.Box.Y,
			Width:      face.Box.Width,
			Height:     face.Box.Height,
			Label:      string(face.Decision.Label),
			IsDeepfake: face.Decision.IsDeepfake(),
			Confidence: RoundConfidence(face.Decision.Confidence, face.Decision.IsDeepfake()),
			Primary:    i == result.Primary,
		})
	}
}

// RoundConfidence keeps three decimals, the precision clients display. A
// fake verdict never rounds up onto the threshold, so its confidence stays
// strictly below classifier.Threshold.
func RoundConfidence(v float64, fake bool) float64 {
	rounded := math.Round(v*1000) / 1000
	if fake && rounded >= classifier.Threshold {
		return math.Floor(v*1000) / 1000
	}
	return rounded
}

func detectionMetadata(d *domain.Detection) map[string]string {
	meta := map[string]string{
		"source":     d.Source,
		"latency_ms": strconv.FormatInt(d.LatencyMs, 10),
		"faces":      strconv.Itoa(d.FacesCount),
	}
	if d.IsDeepfake != nil {
		meta["label"] = string(classifier.LabelReal)
		if *d.IsDeepfake {
			meta["label"] = string(classifier.LabelFake)
		}
	}
	return meta
}

func encodeOverlay(img *image.RGBA) ([]byte, error) {
	return frame.FromImage(img).EncodeJPEG(frame.DefaultJPEGQuality)
}

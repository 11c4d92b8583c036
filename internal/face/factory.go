package face

import (
	"context"
	"fmt"
	"io"
	"log/slog"

	"github.com/saturnino-fabrica-de-software/faceguard/internal/classifier"
	clsmock "github.com/saturnino-fabrica-de-software/faceguard/internal/classifier/mock"
	"github.com/saturnino-fabrica-de-software/faceguard/internal/classifier/onnx"
	"github.com/saturnino-fabrica-de-software/faceguard/internal/classifier/torchserve"
	"github.com/saturnino-fabrica-de-software/faceguard/internal/config"
	"github.com/saturnino-fabrica-de-software/faceguard/internal/normalize"
	"github.com/saturnino-fabrica-de-software/faceguard/internal/pipeline"
	"github.com/saturnino-fabrica-de-software/faceguard/internal/provider"
	"github.com/saturnino-fabrica-de-software/faceguard/internal/provider/deepface"
	provmock "github.com/saturnino-fabrica-de-software/faceguard/internal/provider/mock"
	"github.com/saturnino-fabrica-de-software/faceguard/internal/provider/pigo"
	"github.com/saturnino-fabrica-de-software/faceguard/internal/provider/rekognition"
)

// LocatorType selects the whole-frame face locator.
type LocatorType string

const (
	LocatorPigo        LocatorType = "pigo"
	LocatorDeepFace    LocatorType = "deepface"
	LocatorRekognition LocatorType = "rekognition"
	LocatorMock        LocatorType = "mock"
)

// AlignerType selects the detector that re-centers each crop.
type AlignerType string

const (
	AlignerPigo     AlignerType = "pigo"
	AlignerDeepFace AlignerType = "deepface"
	AlignerMock     AlignerType = "mock"
)

// ClassifierType selects the inference backend.
type ClassifierType string

const (
	ClassifierONNX       ClassifierType = "onnx"
	ClassifierTorchServe ClassifierType = "torchserve"
	ClassifierMock       ClassifierType = "mock"
)

type deviceReporter interface {
	Device() string
}

// builder shares backends between stages so that, for instance, a pigo
// locator and a pigo aligner use one set of unpacked cascades.
type builder struct {
	cfg      *config.Config
	pigo     *pigo.Detector
	deepface *deepface.Provider
}

// NewModels loads every model named by the configuration. Unknown backend
// names and missing or unreadable artifacts are reported as
// pipeline.ErrConfiguration so the process can exit before listening.
//
// Environment variables:
//   - LOCATOR_TYPE: "pigo", "deepface", "rekognition" or "mock"
//   - ALIGNER_TYPE: "pigo", "deepface" or "mock"
//   - CLASSIFIER_TYPE: "onnx", "torchserve" or "mock"
//   - AWS credentials come from the SDK default chain
func NewModels(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*pipeline.Models, error) {
	b := &builder{cfg: cfg}

	locator, err := b.locator(ctx)
	if err != nil {
		return nil, err
	}

	aligner, err := b.aligner()
	if err != nil {
		return nil, err
	}

	cls, explainer, closer, err := b.classifier()
	if err != nil {
		return nil, err
	}

	models, err := pipeline.NewModels(locator, normalize.NewNormalizer(aligner), cls, explainer)
	if err != nil {
		return nil, err
	}
	if closer != nil {
		models.OnClose(closer)
	}

	device := "n/a"
	if d, ok := cls.(deviceReporter); ok {
		device = d.Device()
	}

	logger.Info("models loaded",
		slog.String("locator", locator.Name()),
		slog.String("aligner", cfg.AlignerType),
		slog.String("classifier", cls.Name()),
		slog.String("device", device),
		slog.Bool("explain", explainer != nil),
	)

	return models, nil
}

func (b *builder) locator(ctx context.Context) (provider.FaceLocator, error) {
	switch LocatorType(b.cfg.LocatorType) {
	case LocatorPigo, "":
		detector, err := b.pigoDetector()
		if err != nil {
			return nil, err
		}
		return detector, nil

	case LocatorDeepFace:
		return b.deepFace(), nil

	case LocatorRekognition:
		prov, err := rekognition.NewProvider(ctx, rekognition.Config{
			Region:        b.cfg.AWSRegion,
			MinConfidence: b.cfg.MinFaceConfidence,
		})
		if err != nil {
			return nil, fmt.Errorf("%w: create rekognition locator: %v", pipeline.ErrConfiguration, err)
		}
		return prov, nil

	case LocatorMock:
		return provmock.New(), nil

	default:
		return nil, fmt.Errorf("%w: unknown locator type: %s (supported: %s, %s, %s, %s)",
			pipeline.ErrConfiguration, b.cfg.LocatorType, LocatorPigo, LocatorDeepFace, LocatorRekognition, LocatorMock)
	}
}

func (b *builder) aligner() (normalize.Aligner, error) {
	switch AlignerType(b.cfg.AlignerType) {
	case AlignerPigo, "":
		detector, err := b.pigoDetector()
		if err != nil {
			return nil, err
		}
		return detector, nil

	case AlignerDeepFace:
		return b.deepFace(), nil

	case AlignerMock:
		return provmock.New(), nil

	default:
		return nil, fmt.Errorf("%w: unknown aligner type: %s (supported: %s, %s, %s)",
			pipeline.ErrConfiguration, b.cfg.AlignerType, AlignerPigo, AlignerDeepFace, AlignerMock)
	}
}

func (b *builder) classifier() (classifier.Classifier, classifier.Explainer, io.Closer, error) {
	switch ClassifierType(b.cfg.ClassifierType) {
	case ClassifierONNX, "":
		model, err := onnx.Load(onnx.Config{
			ModelPath:     b.cfg.ModelPath,
			SaliencyLayer: b.cfg.SaliencyLayer,
		})
		if err != nil {
			return nil, nil, nil, fmt.Errorf("%w: %v", pipeline.ErrConfiguration, err)
		}
		return model, b.explainer(model), model, nil

	case ClassifierTorchServe:
		client := torchserve.NewClient(torchserve.Config{
			BaseURL: b.cfg.TorchServeURL,
			Model:   b.cfg.TorchServeModel,
			Timeout: b.cfg.InferenceTimeout,
		})
		return client, b.explainer(client), nil, nil

	case ClassifierMock:
		cls := clsmock.New()
		return cls, b.explainer(cls), nil, nil

	default:
		return nil, nil, nil, fmt.Errorf("%w: unknown classifier type: %s (supported: %s, %s, %s)",
			pipeline.ErrConfiguration, b.cfg.ClassifierType, ClassifierONNX, ClassifierTorchServe, ClassifierMock)
	}
}

func (b *builder) explainer(e classifier.Explainer) classifier.Explainer {
	if !b.cfg.ExplainEnabled {
		return nil
	}
	return e
}

func (b *builder) pigoDetector() (*pigo.Detector, error) {
	if b.pigo != nil {
		return b.pigo, nil
	}

	pigoConfig := pigo.DefaultConfig()
	pigoConfig.FaceCascadePath = b.cfg.FacefinderCascade
	pigoConfig.PuplocCascadePath = b.cfg.PuplocCascade

	detector, err := pigo.New(pigoConfig)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", pipeline.ErrConfiguration, err)
	}

	b.pigo = detector
	return detector, nil
}

func (b *builder) deepFace() *deepface.Provider {
	if b.deepface != nil {
		return b.deepface
	}

	deepfaceConfig := deepface.DefaultConfig()
	if b.cfg.DeepFaceURL != "" {
		deepfaceConfig.BaseURL = b.cfg.DeepFaceURL
	}
	if b.cfg.DeepFaceDetector != "" {
		deepfaceConfig.Detector = b.cfg.DeepFaceDetector
	}

	b.deepface = deepface.NewProvider(deepfaceConfig)
	return b.deepface
}

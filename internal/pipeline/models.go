package pipeline

import (
	"context"
	"errors"
	"fmt"
	"io"

	"github.com/saturnino-fabrica-de-software/faceguard/internal/classifier"
	"github.com/saturnino-fabrica-de-software/faceguard/internal/frame"
	"github.com/saturnino-fabrica-de-software/faceguard/internal/normalize"
	"github.com/saturnino-fabrica-de-software/faceguard/internal/provider"
)

var ErrConfiguration = errors.New("pipeline configuration error")

// Normalizer turns a located box into a classifier input, or nil when the
// candidate should be skipped.
type Normalizer interface {
	Normalize(ctx context.Context, f *frame.Frame, box frame.FaceBox) (*normalize.Face, error)
}

// Models bundles every loaded model the pipeline depends on. It is built
// once at startup, shared read-only by all requests and closed at shutdown.
type Models struct {
	Locator    provider.FaceLocator
	Normalizer Normalizer
	Classifier classifier.Classifier
	// Explainer is nil when saliency maps are disabled.
	Explainer classifier.Explainer

	closers []io.Closer
}

// NewModels validates that every required stage is present.
func NewModels(locator provider.FaceLocator, normalizer Normalizer, cls classifier.Classifier, explainer classifier.Explainer) (*Models, error) {
	switch {
	case locator == nil:
		return nil, fmt.Errorf("%w: no face locator", ErrConfiguration)
	case normalizer == nil:
		return nil, fmt.Errorf("%w: no normalizer", ErrConfiguration)
	case cls == nil:
		return nil, fmt.Errorf("%w: no classifier", ErrConfiguration)
	}

	return &Models{
		Locator:    locator,
		Normalizer: normalizer,
		Classifier: cls,
		Explainer:  explainer,
	}, nil
}

// OnClose registers a resource released by Close.
func (m *Models) OnClose(c io.Closer) {
	m.closers = append(m.closers, c)
}

func (m *Models) Close() error {
	var errs []error
	for i := len(m.closers) - 1; i >= 0; i-- {
		if err := m.closers[i].Close(); err != nil {
			errs = append(errs, err)
		}
	}
	m.closers = nil
	return errors.Join(errs...)
}

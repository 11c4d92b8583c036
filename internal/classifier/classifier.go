package classifier

import (
	"context"
	"errors"
	"math"

	"github.com/saturnino-fabrica-de-software/faceguard/internal/normalize"
)

var (
	ErrInference     = errors.New("inference failed")
	ErrModelNotFound = errors.New("model artifact not found")
	ErrModelCorrupt  = errors.New("model artifact unreadable")
)

// Score is the model's probability that a face is real, in [0,1].
type Score float64

// Classifier maps a normalized face to a realness score. Implementations
// hold read-only model state once constructed.
type Classifier interface {
	Classify(ctx context.Context, face *normalize.Face) (Score, error)
	Name() string
}

// Explainer produces a class activation map for the "real" output.
type Explainer interface {
	Explain(ctx context.Context, face *normalize.Face) (*SaliencyMap, error)
}

// Sigmoid squashes a raw logit into a Score.
func Sigmoid(logit float64) Score {
	return Score(1 / (1 + math.Exp(-logit)))
}

// ScoreFromLogit validates a model output and converts it.
func ScoreFromLogit(logit float64) (Score, error) {
	if math.IsNaN(logit) || math.IsInf(logit, 0) {
		return 0, ErrInference
	}
	return Sigmoid(logit), nil
}

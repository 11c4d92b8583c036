// Package mock provides a deterministic classifier for local development
// and tests. It scores a face by the mean brightness of its center region,
// so the same input always yields the same verdict.
package mock

import (
	"context"

	"github.com/saturnino-fabrica-de-software/faceguard/internal/classifier"
	"github.com/saturnino-fabrica-de-software/faceguard/internal/normalize"
)

type Classifier struct {
	fixed *classifier.Score
}

// New returns a brightness-based classifier.
func New() *Classifier {
	return &Classifier{}
}

// NewFixed returns a classifier that always answers score.
func NewFixed(score classifier.Score) *Classifier {
	return &Classifier{fixed: &score}
}

func (c *Classifier) Name() string {
	return "mock"
}

func (c *Classifier) Device() string {
	return "none (mock)"
}

func (c *Classifier) Classify(ctx context.Context, face *normalize.Face) (classifier.Score, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	if c.fixed != nil {
		return *c.fixed, nil
	}

	const lo, hi = normalize.Size / 4, 3 * normalize.Size / 4
	var sum float64
	for ch := 0; ch < normalize.Channels; ch++ {
		for y := lo; y < hi; y++ {
			for x := lo; x < hi; x++ {
				sum += float64(face.At(ch, y, x))
			}
		}
	}
	n := float64(normalize.Channels * (hi - lo) * (hi - lo))
	return classifier.Score(sum / n), nil
}

// Explain returns a radial map centered on the face.
func (c *Classifier) Explain(ctx context.Context, _ *normalize.Face) (*classifier.SaliencyMap, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	grid := []float32{
		0, 1, 0,
		1, 2, 1,
		0, 1, 0,
	}
	return classifier.NewSaliencyMap(grid, 3, 3)
}

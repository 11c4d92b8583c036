package pipeline

import (
	"context"
	"fmt"
	"image"
	"log/slog"
	"time"

	"github.com/saturnino-fabrica-de-software/faceguard/internal/annotate"
	"github.com/saturnino-fabrica-de-software/faceguard/internal/classifier"
	"github.com/saturnino-fabrica-de-software/faceguard/internal/frame"
	"github.com/saturnino-fabrica-de-software/faceguard/internal/normalize"
)

// PrimaryPolicy selects which classified face backs the top-level verdict.
type PrimaryPolicy string

const (
	// PrimaryLast picks the last classified face in locator order.
	PrimaryLast PrimaryPolicy = "last"
	// PrimaryLargest picks the face with the largest box; ties go to the
	// later face.
	PrimaryLargest PrimaryPolicy = "largest"
)

func ParsePrimaryPolicy(s string) (PrimaryPolicy, error) {
	switch p := PrimaryPolicy(s); p {
	case PrimaryLast, PrimaryLargest:
		return p, nil
	case "":
		return PrimaryLast, nil
	}
	return "", fmt.Errorf("%w: unknown primary face policy %q", ErrConfiguration, s)
}

// RunOptions are per-request switches.
type RunOptions struct {
	Explain bool
}

// FaceOutcome is the verdict for one classified face.
type FaceOutcome struct {
	Box      frame.FaceBox
	Score    classifier.Score
	Decision classifier.Decision
	// Saliency and Overlay are only set on the primary face.
	Saliency *classifier.SaliencyMap
	// Overlay is the saliency map blended over the normalized face.
	Overlay *image.RGBA
}

// Result is the aggregated outcome of one run. IsDeepfake and Confidence
// are nil when no face was classified.
type Result struct {
	FaceDetected bool
	IsDeepfake   *bool
	Confidence   *float64
	Faces        []FaceOutcome
	// Primary indexes Faces, or is -1.
	Primary    int
	Candidates int
	Annotated  *frame.Frame
	Duration   time.Duration
}

// PrimaryFace returns the face backing the top-level verdict.
func (r *Result) PrimaryFace() (FaceOutcome, bool) {
	if r.Primary < 0 || r.Primary >= len(r.Faces) {
		return FaceOutcome{}, false
	}
	return r.Faces[r.Primary], true
}

type Pipeline struct {
	models    *Models
	annotator *annotate.Annotator
	policy    PrimaryPolicy
	logger    *slog.Logger
}

type Option func(*Pipeline)

func WithPrimaryPolicy(p PrimaryPolicy) Option {
	return func(pl *Pipeline) {
		pl.policy = p
	}
}

func WithLogger(logger *slog.Logger) Option {
	return func(pl *Pipeline) {
		pl.logger = logger
	}
}

func New(models *Models, opts ...Option) *Pipeline {
	p := &Pipeline{
		models:    models,
		annotator: annotate.New(),
		policy:    PrimaryLast,
		logger:    slog.Default(),
	}
	for _, opt := range opts {
		opt(p)
	}
	p.logger = p.logger.With("component", "pipeline")
	return p
}

// Run locates, classifies and annotates every face in f. With opts.Explain
// set, a saliency map is computed for the primary face only. The input frame
// is never modified; annotations go onto a clone.
func (p *Pipeline) Run(ctx context.Context, f *frame.Frame, opts RunOptions) (*Result, error) {
	start := time.Now()

	if err := f.Validate(); err != nil {
		return nil, err
	}

	boxes, err := p.models.Locator.Locate(ctx, f)
	if err != nil {
		return nil, fmt.Errorf("locate faces: %w", err)
	}

	result := &Result{
		Primary:    -1,
		Candidates: len(boxes),
		Annotated:  f.Clone(),
	}

	var faces []*normalize.Face
	for i, box := range boxes {
		face, err := p.models.Normalizer.Normalize(ctx, f, box)
		if err != nil {
			return nil, fmt.Errorf("normalize face %d: %w", i, err)
		}
		if face == nil {
			p.logger.Debug("face candidate skipped", slog.Int("index", i), slog.Any("box", box))
			continue
		}

		score, err := p.models.Classifier.Classify(ctx, face)
		if err != nil {
			return nil, fmt.Errorf("classify face %d: %w", i, err)
		}

		outcome := FaceOutcome{
			Box:      box,
			Score:    score,
			Decision: classifier.Decide(score),
		}

		p.annotator.Annotate(result.Annotated, box, outcome.Decision)
		result.Faces = append(result.Faces, outcome)
		faces = append(faces, face)
	}

	if len(result.Faces) > 0 {
		result.Primary = selectPrimary(result.Faces, p.policy)

		// Only the primary face is explained.
		if opts.Explain && p.models.Explainer != nil {
			face := faces[result.Primary]
			sal, err := p.models.Explainer.Explain(ctx, face)
			if err != nil {
				return nil, fmt.Errorf("explain primary face: %w", err)
			}
			result.Faces[result.Primary].Saliency = sal
			result.Faces[result.Primary].Overlay = annotate.Overlay(face, sal)
		}

		primary := result.Faces[result.Primary]
		isFake := primary.Decision.IsDeepfake()
		conf := primary.Decision.Confidence

		result.FaceDetected = true
		result.IsDeepfake = &isFake
		result.Confidence = &conf
	}

	result.Duration = time.Since(start)
	return result, nil
}

func selectPrimary(faces []FaceOutcome, policy PrimaryPolicy) int {
	if policy != PrimaryLargest {
		return len(faces) - 1
	}
	best := 0
	for i, f := range faces {
		if f.Box.Area() >= faces[best].Box.Area() {
			best = i
		}
	}
	return best
}

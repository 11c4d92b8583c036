package onnx

import (
	"context"
	"fmt"
	"os"
	"slices"
	"sync"

	"gocv.io/x/gocv"

	"github.com/saturnino-fabrica-de-software/faceguard/internal/classifier"
	"github.com/saturnino-fabrica-de-software/faceguard/internal/normalize"
)

// DefaultSaliencyLayer is the output of the last Block8 branch in the
// exported InceptionResnetV1 graph.
const DefaultSaliencyLayer = "/block8/branch1/branch1.2/relu/Relu"

type Config struct {
	ModelPath     string
	SaliencyLayer string
}

// Model runs an exported binary classifier through OpenCV's DNN module. A
// cv::dnn::Net keeps per-forward scratch state, so every forward pass holds
// mu.
type Model struct {
	mu    sync.Mutex
	net   gocv.Net
	path  string
	layer string
}

func Load(cfg Config) (*Model, error) {
	if _, err := os.Stat(cfg.ModelPath); err != nil {
		return nil, fmt.Errorf("%w: %s: %v", classifier.ErrModelNotFound, cfg.ModelPath, err)
	}

	net := gocv.ReadNetFromONNX(cfg.ModelPath)
	if net.Empty() {
		return nil, fmt.Errorf("%w: %s", classifier.ErrModelCorrupt, cfg.ModelPath)
	}

	layer := cfg.SaliencyLayer
	if layer == "" {
		layer = DefaultSaliencyLayer
	}
	if !slices.Contains(net.GetLayerNames(), layer) {
		_ = net.Close()
		return nil, fmt.Errorf("%w: layer %q not found in %s", classifier.ErrModelCorrupt, layer, cfg.ModelPath)
	}

	return &Model{net: net, path: cfg.ModelPath, layer: layer}, nil
}

func (m *Model) Name() string {
	return "onnx"
}

// Device describes where inference runs, for the startup banner.
func (m *Model) Device() string {
	return "cpu (opencv dnn " + gocv.OpenCVVersion() + ")"
}

func (m *Model) Classify(ctx context.Context, face *normalize.Face) (classifier.Score, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}

	blob, err := toBlob(face)
	if err != nil {
		return 0, err
	}
	defer blob.Close()

	m.mu.Lock()
	defer m.mu.Unlock()

	m.net.SetInput(blob, "")
	out := m.net.Forward("")
	defer out.Close()

	if out.Empty() || out.Total() < 1 {
		return 0, fmt.Errorf("%w: empty network output", classifier.ErrInference)
	}

	values, err := out.DataPtrFloat32()
	if err != nil {
		return 0, fmt.Errorf("%w: read output: %v", classifier.ErrInference, err)
	}

	return classifier.ScoreFromLogit(float64(values[0]))
}

// Explain computes an Eigen-CAM over the configured layer: the activations
// are projected onto their first principal component and upsampled to the
// face resolution. The map is not class-targeted; it highlights the
// dominant activation pattern whatever the verdict. Use the TorchServe
// backend for a map targeted at the Real class.
func (m *Model) Explain(ctx context.Context, face *normalize.Face) (*classifier.SaliencyMap, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	blob, err := toBlob(face)
	if err != nil {
		return nil, err
	}
	defer blob.Close()

	m.mu.Lock()
	m.net.SetInput(blob, "")
	outs := m.net.ForwardLayers([]string{m.layer})
	m.mu.Unlock()

	defer func() {
		for i := range outs {
			_ = outs[i].Close()
		}
	}()

	if len(outs) != 1 || outs[0].Empty() {
		return nil, fmt.Errorf("%w: layer %s produced no output", classifier.ErrInference, m.layer)
	}

	dims := outs[0].Size()
	if len(dims) != 4 || dims[0] != 1 {
		return nil, fmt.Errorf("%w: layer %s has shape %v, want 1xCxHxW", classifier.ErrInference, m.layer, dims)
	}
	channels, height, width := dims[1], dims[2], dims[3]

	acts, err := outs[0].DataPtrFloat32()
	if err != nil {
		return nil, fmt.Errorf("%w: read activations: %v", classifier.ErrInference, err)
	}

	grid, err := classifier.EigenProjection(acts, channels, height*width)
	if err != nil {
		return nil, err
	}

	return classifier.NewSaliencyMap(grid, width, height)
}

func (m *Model) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.net.Close()
}

func toBlob(face *normalize.Face) (gocv.Mat, error) {
	blob, err := gocv.NewMatWithSizesFromBytes(
		[]int{1, normalize.Channels, normalize.Size, normalize.Size},
		gocv.MatTypeCV32F,
		face.Bytes(),
	)
	if err != nil {
		return gocv.Mat{}, fmt.Errorf("%w: build input blob: %v", classifier.ErrInference, err)
	}
	return blob, nil
}

package torchserve

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/saturnino-fabrica-de-software/faceguard/internal/classifier"
	"github.com/saturnino-fabrica-de-software/faceguard/internal/normalize"
)

var ErrUnavailable = errors.New("torchserve unavailable")

// Config holds the configuration for the TorchServe inference client
type Config struct {
	BaseURL string
	Model   string
	Timeout time.Duration
}

// DefaultConfig returns a Config pointing at a local TorchServe
func DefaultConfig() Config {
	return Config{
		BaseURL: "http://localhost:8080",
		Model:   "deepfake",
		Timeout: 30 * time.Second,
	}
}

// Client sends normalized faces to a TorchServe model. The server is
// expected to run a handler that reads a raw little-endian float32 tensor
// shaped by the X-Tensor-Shape header and answers with the model logit.
// Requests are never retried.
type Client struct {
	httpClient *http.Client
	config     Config
}

func NewClient(config Config) *Client {
	config.BaseURL = strings.TrimRight(config.BaseURL, "/")
	return &Client{
		httpClient: &http.Client{
			Timeout: config.Timeout,
		},
		config: config,
	}
}

func (c *Client) Name() string {
	return "torchserve"
}

// Device describes where inference runs, for the startup banner.
func (c *Client) Device() string {
	return "remote (" + c.config.BaseURL + "/models/" + c.config.Model + ")"
}

func (c *Client) Classify(ctx context.Context, face *normalize.Face) (classifier.Score, error) {
	var resp PredictionResponse
	if err := c.doRequest(ctx, "/predictions/"+c.config.Model, face, &resp); err != nil {
		return 0, err
	}
	if resp.Logit == nil {
		return 0, fmt.Errorf("%w: response has no logit", classifier.ErrInference)
	}
	return classifier.ScoreFromLogit(*resp.Logit)
}

// Explain asks the model's explanation endpoint for a saliency grid and
// rescales it to the face resolution.
func (c *Client) Explain(ctx context.Context, face *normalize.Face) (*classifier.SaliencyMap, error) {
	var resp ExplanationResponse
	if err := c.doRequest(ctx, "/explanations/"+c.config.Model, face, &resp); err != nil {
		return nil, err
	}

	height := len(resp.Saliency)
	if height == 0 {
		return nil, fmt.Errorf("%w: empty saliency grid", classifier.ErrInference)
	}
	width := len(resp.Saliency[0])

	grid := make([]float32, 0, width*height)
	for _, row := range resp.Saliency {
		if len(row) != width {
			return nil, fmt.Errorf("%w: ragged saliency grid", classifier.ErrInference)
		}
		grid = append(grid, row...)
	}

	return classifier.NewSaliencyMap(grid, width, height)
}

// Ping checks the TorchServe health endpoint
func (c *Client) Ping(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.config.BaseURL+"/ping", nil)
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	defer func() {
		_ = resp.Body.Close()
	}()
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("%w: status %d", ErrUnavailable, resp.StatusCode)
	}
	return nil
}

func (c *Client) doRequest(ctx context.Context, path string, face *normalize.Face, result interface{}) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.config.BaseURL+path, bytes.NewReader(face.Bytes()))
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}

	req.Header.Set("Content-Type", "application/octet-stream")
	req.Header.Set("X-Tensor-Shape", tensorShape)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("%w: %v", classifier.ErrInference, err)
	}
	defer func() {
		_ = resp.Body.Close()
	}()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("%w: read response: %v", classifier.ErrInference, err)
	}

	if resp.StatusCode >= 400 {
		return fmt.Errorf("%w: torchserve returned status %d: %s", classifier.ErrInference, resp.StatusCode, string(respBody))
	}

	if err := json.Unmarshal(respBody, result); err != nil {
		return fmt.Errorf("%w: decode response: %v", classifier.ErrInference, err)
	}

	return nil
}

var tensorShape = fmt.Sprintf("1,%d,%d,%d", normalize.Channels, normalize.Size, normalize.Size)

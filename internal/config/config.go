package config

import (
	"errors"
	"fmt"
	"io/fs"
	"net/url"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"
)

type Config struct {
	// Server
	Port        int    `envconfig:"PORT" default:"3000"`
	Environment string `envconfig:"ENV" default:"development"`
	LogLevel    string `envconfig:"LOG_LEVEL"`
	CORSOrigins string `envconfig:"CORS_ORIGINS" default:"*"`

	// Face location
	LocatorType       string  `envconfig:"LOCATOR_TYPE" default:"pigo"`
	AlignerType       string  `envconfig:"ALIGNER_TYPE" default:"pigo"`
	FacefinderCascade string  `envconfig:"FACEFINDER_CASCADE" default:"models/facefinder"`
	PuplocCascade     string  `envconfig:"PUPLOC_CASCADE" default:"models/puploc"`
	DeepFaceURL       string  `envconfig:"DEEPFACE_URL" default:"http://localhost:5000"`
	DeepFaceDetector  string  `envconfig:"DEEPFACE_DETECTOR" default:"mtcnn"`
	AWSRegion         string  `envconfig:"AWS_REGION" default:"us-east-1"`
	MinFaceConfidence float32 `envconfig:"MIN_FACE_CONFIDENCE" default:"90"`

	// Classification
	ClassifierType   string        `envconfig:"CLASSIFIER_TYPE" default:"onnx"`
	ModelPath        string        `envconfig:"MODEL_PATH" default:"models/resnetinceptionv1_epoch_32.onnx"`
	SaliencyLayer    string        `envconfig:"SALIENCY_LAYER"`
	TorchServeURL    string        `envconfig:"TORCHSERVE_URL" default:"http://localhost:8080"`
	TorchServeModel  string        `envconfig:"TORCHSERVE_MODEL" default:"deepfake"`
	InferenceTimeout time.Duration `envconfig:"INFERENCE_TIMEOUT" default:"30s"`
	ExplainEnabled   bool          `envconfig:"EXPLAIN_ENABLED" default:"true"`
	PrimaryFace      string        `envconfig:"PRIMARY_FACE" default:"last"`

	// Limits
	MaxImageSize    int           `envconfig:"MAX_IMAGE_SIZE" default:"10485760"`
	RateLimitMax    int           `envconfig:"RATE_LIMIT_MAX" default:"120"`
	RateLimitWindow time.Duration `envconfig:"RATE_LIMIT_WINDOW" default:"1m"`

	// Audit store, optional
	DatabaseURL string `envconfig:"DATABASE_URL"`
	AutoMigrate bool   `envconfig:"AUTO_MIGRATE" default:"false"`

	// Call event webhook, optional
	WebhookURL         string `envconfig:"WEBHOOK_URL"`
	WebhookSecret      string `envconfig:"WEBHOOK_SECRET"`
	WebhookMaxAttempts int    `envconfig:"WEBHOOK_MAX_ATTEMPTS" default:"3"`
}

// Load reads a .env file when one exists, then the process environment.
// Variables already set in the environment win over the file.
func Load(files ...string) (*Config, error) {
	if err := godotenv.Load(files...); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("load env file: %w", err)
	}

	var cfg Config
	if err := envconfig.Process("", &cfg); err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return &cfg, nil
}

// Validate checks the values envconfig cannot express in tags.
func (c *Config) Validate() error {
	var errs []error

	if c.Port <= 0 || c.Port > 65535 {
		errs = append(errs, fmt.Errorf("PORT out of range: %d", c.Port))
	}
	if c.MaxImageSize <= 0 {
		errs = append(errs, fmt.Errorf("MAX_IMAGE_SIZE must be positive"))
	}
	if c.InferenceTimeout <= 0 {
		errs = append(errs, fmt.Errorf("INFERENCE_TIMEOUT must be positive"))
	}
	if c.RateLimitWindow <= 0 {
		errs = append(errs, fmt.Errorf("RATE_LIMIT_WINDOW must be positive"))
	}
	if c.HasWebhook() {
		u, err := url.Parse(c.WebhookURL)
		if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
			errs = append(errs, fmt.Errorf("WEBHOOK_URL must be an absolute http(s) URL"))
		}
	}

	if len(errs) > 0 {
		return fmt.Errorf("invalid config: %w", errors.Join(errs...))
	}
	return nil
}

func (c *Config) IsDevelopment() bool {
	return c.Environment == "development"
}

func (c *Config) IsProduction() bool {
	return c.Environment == "production"
}

// HasDatabase reports whether the detection audit store is enabled.
func (c *Config) HasDatabase() bool {
	return strings.TrimSpace(c.DatabaseURL) != ""
}

// HasWebhook reports whether call events are posted to WEBHOOK_URL.
func (c *Config) HasWebhook() bool {
	return strings.TrimSpace(c.WebhookURL) != ""
}

// RateLimitEnabled is false when RATE_LIMIT_MAX is zero or negative.
func (c *Config) RateLimitEnabled() bool {
	return c.RateLimitMax > 0
}

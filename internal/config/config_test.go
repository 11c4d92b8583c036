package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var configKeys = []string{
	"PORT", "ENV", "LOG_LEVEL", "CORS_ORIGINS", "LOCATOR_TYPE", "ALIGNER_TYPE", "FACEFINDER_CASCADE",
	"PUPLOC_CASCADE", "DEEPFACE_URL", "DEEPFACE_DETECTOR", "AWS_REGION", "MIN_FACE_CONFIDENCE",
	"CLASSIFIER_TYPE", "MODEL_PATH", "SALIENCY_LAYER", "TORCHSERVE_URL", "TORCHSERVE_MODEL",
	"INFERENCE_TIMEOUT", "EXPLAIN_ENABLED", "PRIMARY_FACE", "MAX_IMAGE_SIZE", "RATE_LIMIT_MAX",
	"RATE_LIMIT_WINDOW", "DATABASE_URL", "AUTO_MIGRATE", "WEBHOOK_URL", "WEBHOOK_SECRET",
	"WEBHOOK_MAX_ATTEMPTS",
}

// clearConfigEnv unsets every key Load reads and restores them afterwards.
func clearConfigEnv(t *testing.T) {
	t.Helper()
	for _, key := range configKeys {
		t.Setenv(key, "")
		require.NoError(t, os.Unsetenv(key))
	}
}

func TestLoad(t *testing.T) {
	tests := []struct {
		name    string
		envVars map[string]string
		wantErr bool
		check   func(t *testing.T, c *Config)
	}{
		{
			name: "uses defaults when nothing is set",
			check: func(t *testing.T, c *Config) {
				assert.Equal(t, 3000, c.Port)
				assert.Equal(t, "development", c.Environment)
				assert.Equal(t, "pigo", c.LocatorType)
				assert.Equal(t, "pigo", c.AlignerType)
				assert.Equal(t, "onnx", c.ClassifierType)
				assert.Equal(t, "last", c.PrimaryFace)
				assert.Equal(t, 30*time.Second, c.InferenceTimeout)
				assert.True(t, c.ExplainEnabled)
				assert.Equal(t, 10<<20, c.MaxImageSize)
				assert.False(t, c.HasDatabase())
				assert.True(t, c.RateLimitEnabled())
				assert.False(t, c.HasWebhook())
				assert.Equal(t, 3, c.WebhookMaxAttempts)
			},
		},
		{
			name: "reads overrides",
			envVars: map[string]string{
				"PORT":              "8080",
				"ENV":               "production",
				"LOCATOR_TYPE":      "rekognition",
				"ALIGNER_TYPE":      "deepface",
				"CLASSIFIER_TYPE":   "torchserve",
				"INFERENCE_TIMEOUT": "5s",
				"EXPLAIN_ENABLED":   "false",
				"PRIMARY_FACE":      "largest",
				"RATE_LIMIT_MAX":    "0",
				"DATABASE_URL":      "postgres://localhost/faceguard",
				"WEBHOOK_URL":       "https://relay.example.com/events",
			},
			check: func(t *testing.T, c *Config) {
				assert.Equal(t, 8080, c.Port)
				assert.True(t, c.IsProduction())
				assert.Equal(t, "rekognition", c.LocatorType)
				assert.Equal(t, "deepface", c.AlignerType)
				assert.Equal(t, "torchserve", c.ClassifierType)
				assert.Equal(t, 5*time.Second, c.InferenceTimeout)
				assert.False(t, c.ExplainEnabled)
				assert.Equal(t, "largest", c.PrimaryFace)
				assert.False(t, c.RateLimitEnabled())
				assert.True(t, c.HasDatabase())
				assert.True(t, c.HasWebhook())
			},
		},
		{
			name:    "rejects malformed duration",
			envVars: map[string]string{"INFERENCE_TIMEOUT": "soon"},
			wantErr: true,
		},
		{
			name:    "rejects non-positive timeout",
			envVars: map[string]string{"INFERENCE_TIMEOUT": "0s"},
			wantErr: true,
		},
		{
			name:    "rejects relative webhook url",
			envVars: map[string]string{"WEBHOOK_URL": "relay/events"},
			wantErr: true,
		},
		{
			name:    "rejects port out of range",
			envVars: map[string]string{"PORT": "70000"},
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			clearConfigEnv(t)
			for k, v := range tt.envVars {
				t.Setenv(k, v)
			}

			cfg, err := Load()
			if tt.wantErr {
				require.Error(t, err)
				return
			}

			require.NoError(t, err)
			tt.check(t, cfg)
		})
	}
}

func TestLoad_EnvFile(t *testing.T) {
	clearConfigEnv(t)

	path := filepath.Join(t.TempDir(), "test.env")
	require.NoError(t, os.WriteFile(path, []byte("PORT=4100\nCLASSIFIER_TYPE=mock\n"), 0o600))

	t.Setenv("CLASSIFIER_TYPE", "torchserve")

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, 4100, cfg.Port)
	assert.Equal(t, "torchserve", cfg.ClassifierType, "environment wins over the file")
}

func TestLoad_MissingEnvFileIgnored(t *testing.T) {
	clearConfigEnv(t)

	_, err := Load(filepath.Join(t.TempDir(), "absent.env"))
	assert.NoError(t, err)
}

func TestConfig_IsDevelopment(t *testing.T) {
	tests := []struct {
		name string
		env  string
		want bool
	}{
		{"development", "development", true},
		{"production", "production", false},
		{"staging", "staging", false},
		{"empty", "", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := &Config{Environment: tt.env}
			assert.Equal(t, tt.want, c.IsDevelopment())
		})
	}
}

func TestConfig_IsProduction(t *testing.T) {
	tests := []struct {
		name string
		env  string
		want bool
	}{
		{"production", "production", true},
		{"development", "development", false},
		{"staging", "staging", false},
		{"empty", "", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := &Config{Environment: tt.env}
			assert.Equal(t, tt.want, c.IsProduction())
		})
	}
}

package audit

import (
	"bytes"
	"context"
	"encoding/json"
	"log/slog"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSlogLogger_Log(t *testing.T) {
	tests := []struct {
		name          string
		event         Event
		wantEventType string
		wantLevel     string
		wantHasError  bool
	}{
		{
			name: "completed detection",
			event: Event{
				EventType:   EventDetectionCompleted,
				DetectionID: uuid.New(),
				CallID:      "call-42",
				Locator:     "pigo",
				Classifier:  "onnx",
				Success:     true,
				Metadata:    map[string]string{"faces_count": "1", "label": "Fake"},
			},
			wantEventType: string(EventDetectionCompleted),
			wantLevel:     "INFO",
		},
		{
			name: "no face",
			event: Event{
				EventType:   EventNoFaceDetected,
				DetectionID: uuid.New(),
				Locator:     "pigo",
				Classifier:  "onnx",
				Success:     true,
			},
			wantEventType: string(EventNoFaceDetected),
			wantLevel:     "INFO",
		},
		{
			name: "failed detection",
			event: Event{
				EventType:   EventDetectionFailed,
				DetectionID: uuid.New(),
				Locator:     "deepface",
				Classifier:  "torchserve",
				Success:     false,
				Error:       "inference failed",
			},
			wantEventType: string(EventDetectionFailed),
			wantLevel:     "WARN",
			wantHasError:  true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var buf bytes.Buffer
			logger := NewSlogLogger(slog.New(slog.NewJSONHandler(&buf, nil)))

			err := logger.Log(context.Background(), tt.event)
			require.NoError(t, err)

			var entry map[string]interface{}
			require.NoError(t, json.Unmarshal(buf.Bytes(), &entry))

			assert.Equal(t, "audit_event", entry["msg"])
			assert.Equal(t, "audit", entry["component"])
			assert.Equal(t, tt.wantLevel, entry["level"])
			assert.Equal(t, tt.wantEventType, entry["event_type"])
			assert.Equal(t, tt.event.DetectionID.String(), entry["detection_id"])
			assert.Equal(t, tt.event.Success, entry["success"])

			var data Event
			require.NoError(t, json.Unmarshal([]byte(entry["event_data"].(string)), &data))
			assert.NotEqual(t, uuid.Nil, data.ID)
			assert.False(t, data.Timestamp.IsZero())
			assert.Equal(t, tt.event.Locator, data.Locator)
			assert.Equal(t, tt.wantHasError, data.Error != "")
		})
	}
}

func TestSlogLogger_KeepsProvidedIdentity(t *testing.T) {
	var buf bytes.Buffer
	logger := NewSlogLogger(slog.New(slog.NewJSONHandler(&buf, nil)))

	id := uuid.New()
	ts := time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)
	require.NoError(t, logger.Log(context.Background(), Event{ID: id, Timestamp: ts, EventType: EventDetectionCompleted}))

	var entry map[string]interface{}
	require.NoError(t, json.Unmarshal(buf.Bytes(), &entry))
	assert.Equal(t, id.String(), entry["event_id"])
}

func TestNoOpLogger(t *testing.T) {
	var l Logger = &NoOpLogger{}
	assert.NoError(t, l.Log(context.Background(), Event{EventType: EventDetectionFailed}))
}

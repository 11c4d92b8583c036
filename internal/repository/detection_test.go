package repository

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/pashagolub/pgxmock/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/saturnino-fabrica-de-software/faceguard/internal/domain"
)

var detectionColumns = []string{
	"id", "call_id", "source", "face_detected", "is_deepfake", "confidence", "faces_count",
	"locator", "classifier", "latency_ms", "client_timestamp", "faces", "created_at",
}

func ptr[T any](v T) *T {
	return &v
}

func TestDetectionRepository_Create(t *testing.T) {
	now := time.Now()

	tests := []struct {
		name      string
		detection *domain.Detection
		mockSetup func(mock pgxmock.PgxPoolIface)
		wantErr   bool
	}{
		{
			name: "face detected",
			detection: &domain.Detection{
				CallID:       "call-1",
				Source:       "upload",
				FaceDetected: true,
				IsDeepfake:   ptr(true),
				Confidence:   ptr(0.87),
				FacesCount:   1,
				Locator:      "pigo",
				Classifier:   "onnx",
				LatencyMs:    42,
				Faces:        []domain.FaceVerdict{{X: 1, Y: 2, Width: 30, Height: 30, Label: "Fake", IsDeepfake: true, Confidence: 0.87, Primary: true}},
			},
			mockSetup: func(mock pgxmock.PgxPoolIface) {
				mock.ExpectQuery(`INSERT INTO detections`).
					WithArgs(pgxmock.AnyArg(), ptr("call-1"), "upload", true, ptr(true), ptr(0.87), 1, "pigo", "onnx", int64(42), (*string)(nil), pgxmock.AnyArg()).
					WillReturnRows(pgxmock.NewRows([]string{"created_at"}).AddRow(now))
			},
		},
		{
			name: "no face without call",
			detection: &domain.Detection{
				Source:     "base64",
				Locator:    "mock",
				Classifier: "mock",
				ClientTime: "2024-01-01T00:00:00Z",
			},
			mockSetup: func(mock pgxmock.PgxPoolIface) {
				mock.ExpectQuery(`INSERT INTO detections`).
					WithArgs(pgxmock.AnyArg(), (*string)(nil), "base64", false, (*bool)(nil), (*float64)(nil), 0, "mock", "mock", int64(0), ptr("2024-01-01T00:00:00Z"), []byte("[]")).
					WillReturnRows(pgxmock.NewRows([]string{"created_at"}).AddRow(now))
			},
		},
		{
			name:      "database error",
			detection: &domain.Detection{Source: "upload"},
			mockSetup: func(mock pgxmock.PgxPoolIface) {
				mock.ExpectQuery(`INSERT INTO detections`).
					WillReturnError(errors.New("connection refused"))
			},
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			mock, err := pgxmock.NewPool()
			require.NoError(t, err)
			defer mock.Close()

			tt.mockSetup(mock)

			repo := NewDetectionRepository(mock)
			err = repo.Create(context.Background(), tt.detection)

			if tt.wantErr {
				require.Error(t, err)
				assert.Contains(t, err.Error(), "create detection")
			} else {
				require.NoError(t, err)
				assert.NotEqual(t, uuid.Nil, tt.detection.ID)
				assert.Equal(t, now, tt.detection.CreatedAt)
			}

			assert.NoError(t, mock.ExpectationsWereMet())
		})
	}
}

func TestDetectionRepository_GetByID(t *testing.T) {
	id := uuid.New()
	now := time.Now()

	tests := []struct {
		name      string
		mockSetup func(mock pgxmock.PgxPoolIface)
		wantErr   error
	}{
		{
			name: "found",
			mockSetup: func(mock pgxmock.PgxPoolIface) {
				rows := pgxmock.NewRows(detectionColumns).AddRow(
					id, "call-1", "upload", true, ptr(false), ptr(0.91), 1, "pigo", "onnx", int64(10), "",
					[]byte(`[{"x":1,"y":2,"width":3,"height":4,"label":"Real","is_deepfake":false,"confidence":0.91,"primary":true}]`), now,
				)
				mock.ExpectQuery(`SELECT (.+) FROM detections WHERE id = \$1`).WithArgs(id).WillReturnRows(rows)
			},
		},
		{
			name: "not found",
			mockSetup: func(mock pgxmock.PgxPoolIface) {
				mock.ExpectQuery(`SELECT (.+) FROM detections WHERE id = \$1`).WithArgs(id).WillReturnError(pgx.ErrNoRows)
			},
			wantErr: domain.ErrDetectionNotFound,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			mock, err := pgxmock.NewPool()
			require.NoError(t, err)
			defer mock.Close()

			tt.mockSetup(mock)

			got, err := NewDetectionRepository(mock).GetByID(context.Background(), id)
			if tt.wantErr != nil {
				assert.ErrorIs(t, err, tt.wantErr)
				assert.Nil(t, got)
			} else {
				require.NoError(t, err)
				assert.Equal(t, id, got.ID)
				assert.Equal(t, "call-1", got.CallID)
				require.Len(t, got.Faces, 1)
				assert.Equal(t, "Real", got.Faces[0].Label)
				assert.True(t, got.Faces[0].Primary)
			}

			assert.NoError(t, mock.ExpectationsWereMet())
		})
	}
}

func TestDetectionRepository_ListByCall(t *testing.T) {
	now := time.Now()

	t.Run("returns rows in order", func(t *testing.T) {
		mock, err := pgxmock.NewPool()
		require.NoError(t, err)
		defer mock.Close()

		first, second := uuid.New(), uuid.New()
		rows := pgxmock.NewRows(detectionColumns).
			AddRow(first, "call-9", "upload", true, ptr(true), ptr(0.7), 1, "pigo", "onnx", int64(5), "", []byte(`[]`), now).
			AddRow(second, "call-9", "base64", false, ptr(false), ptr(0.0), 0, "pigo", "onnx", int64(3), "", []byte(`[]`), now.Add(-time.Second))
		mock.ExpectQuery(`SELECT (.+) FROM detections WHERE call_id = \$1 ORDER BY created_at DESC LIMIT \$2`).
			WithArgs("call-9", DefaultListLimit).
			WillReturnRows(rows)

		got, err := NewDetectionRepository(mock).ListByCall(context.Background(), "call-9", 0)
		require.NoError(t, err)
		require.Len(t, got, 2)
		assert.Equal(t, first, got[0].ID)
		assert.Equal(t, second, got[1].ID)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("empty call", func(t *testing.T) {
		mock, err := pgxmock.NewPool()
		require.NoError(t, err)
		defer mock.Close()

		mock.ExpectQuery(`SELECT (.+) FROM detections WHERE call_id = \$1`).
			WithArgs("nobody", 10).
			WillReturnRows(pgxmock.NewRows(detectionColumns))

		got, err := NewDetectionRepository(mock).ListByCall(context.Background(), "nobody", 10)
		require.NoError(t, err)
		assert.NotNil(t, got)
		assert.Empty(t, got)
	})

	t.Run("query error", func(t *testing.T) {
		mock, err := pgxmock.NewPool()
		require.NoError(t, err)
		defer mock.Close()

		mock.ExpectQuery(`SELECT (.+) FROM detections`).WillReturnError(errors.New("boom"))

		_, err = NewDetectionRepository(mock).ListByCall(context.Background(), "call-9", 5)
		require.Error(t, err)
		assert.Contains(t, err.Error(), "list detections")
	})
}

func TestDetectionRepository_StatsByCall(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	mock.ExpectQuery(`SELECT (.+) FROM detections WHERE call_id = \$1`).
		WithArgs("call-3").
		WillReturnRows(pgxmock.NewRows([]string{"total", "deepfakes", "no_face"}).AddRow(12, 4, 2))

	stats, err := NewDetectionRepository(mock).StatsByCall(context.Background(), "call-3")
	require.NoError(t, err)
	assert.Equal(t, &domain.DetectionStats{CallID: "call-3", Total: 12, Deepfakes: 4, NoFace: 2}, stats)
	assert.NoError(t, mock.ExpectationsWereMet())
}

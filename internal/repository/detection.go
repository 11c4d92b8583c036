package repository

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/saturnino-fabrica-de-software/faceguard/internal/domain"
)

// DefaultListLimit caps ListByCall when the caller passes a non-positive limit.
const DefaultListLimit = 50

type DetectionRepository struct {
	pool PgxPool
}

func NewDetectionRepository(pool PgxPool) *DetectionRepository {
	return &DetectionRepository{pool: pool}
}

func (r *DetectionRepository) Create(ctx context.Context, d *domain.Detection) error {
	query := `
		INSERT INTO detections (id, call_id, source, face_detected, is_deepfake, confidence, faces_count, locator, classifier, latency_ms, client_timestamp, faces, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, NOW())
		RETURNING created_at
	`

	if d.ID == uuid.Nil {
		d.ID = uuid.New()
	}

	faces, err := json.Marshal(facesOrEmpty(d.Faces))
	if err != nil {
		return fmt.Errorf("encode faces: %w", err)
	}

	err = r.pool.QueryRow(ctx, query,
		d.ID,
		nullString(d.CallID),
		d.Source,
		d.FaceDetected,
		d.IsDeepfake,
		d.Confidence,
		d.FacesCount,
		d.Locator,
		d.Classifier,
		d.LatencyMs,
		nullString(d.ClientTime),
		faces,
	).Scan(&d.CreatedAt)
	if err != nil {
		return fmt.Errorf("create detection: %w", err)
	}

	return nil
}

func (r *DetectionRepository) GetByID(ctx context.Context, id uuid.UUID) (*domain.Detection, error) {
	query := `
		SELECT id, COALESCE(call_id, ''), source, face_detected, is_deepfake, confidence, faces_count, locator, classifier, latency_ms, COALESCE(client_timestamp, ''), faces, created_at
		FROM detections
		WHERE id = $1
	`

	d, err := scanDetection(r.pool.QueryRow(ctx, query, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domain.ErrDetectionNotFound
		}
		return nil, fmt.Errorf("get detection: %w", err)
	}

	return d, nil
}

// ListByCall returns the most recent detections of a call, newest first.
func (r *DetectionRepository) ListByCall(ctx context.Context, callID string, limit int) ([]domain.Detection, error) {
	if limit <= 0 {
		limit = DefaultListLimit
	}

	query := `
		SELECT id, COALESCE(call_id, ''), source, face_detected, is_deepfake, confidence, faces_count, locator, classifier, latency_ms, COALESCE(client_timestamp, ''), faces, created_at
		FROM detections
		WHERE call_id = $1
		ORDER BY created_at DESC
		LIMIT $2
	`

	rows, err := r.pool.Query(ctx, query, callID, limit)
	if err != nil {
		return nil, fmt.Errorf("list detections: %w", err)
	}
	defer rows.Close()

	detections := make([]domain.Detection, 0)
	for rows.Next() {
		d, err := scanDetection(rows)
		if err != nil {
			return nil, fmt.Errorf("scan detection: %w", err)
		}
		detections = append(detections, *d)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate detections: %w", err)
	}

	return detections, nil
}

func (r *DetectionRepository) StatsByCall(ctx context.Context, callID string) (*domain.DetectionStats, error) {
	query := `
		SELECT
			COUNT(*),
			COUNT(*) FILTER (WHERE is_deepfake = true),
			COUNT(*) FILTER (WHERE face_detected = false)
		FROM detections
		WHERE call_id = $1
	`

	stats := &domain.DetectionStats{CallID: callID}
	err := r.pool.QueryRow(ctx, query, callID).Scan(&stats.Total, &stats.Deepfakes, &stats.NoFace)
	if err != nil {
		return nil, fmt.Errorf("detection stats: %w", err)
	}

	return stats, nil
}

func scanDetection(row pgx.Row) (*domain.Detection, error) {
	var d domain.Detection
	var faces []byte

	err := row.Scan(
		&d.ID,
		&d.CallID,
		&d.Source,
		&d.FaceDetected,
		&d.IsDeepfake,
		&d.Confidence,
		&d.FacesCount,
		&d.Locator,
		&d.Classifier,
		&d.LatencyMs,
		&d.ClientTime,
		&faces,
		&d.CreatedAt,
	)
	if err != nil {
		return nil, err
	}

	d.Faces = []domain.FaceVerdict{}
	if len(faces) > 0 {
		if err := json.Unmarshal(faces, &d.Faces); err != nil {
			return nil, fmt.Errorf("decode faces: %w", err)
		}
	}

	return &d, nil
}

func facesOrEmpty(faces []domain.FaceVerdict) []domain.FaceVerdict {
	if faces == nil {
		return []domain.FaceVerdict{}
	}
	return faces
}

func nullString(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}

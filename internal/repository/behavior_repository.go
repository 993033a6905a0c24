package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/noah-isme/sma-schedule-engine/internal/models"
)

// BehaviorRepository manages persistence for session behavior points.
type BehaviorRepository struct {
	db *sqlx.DB
}

// NewBehaviorRepository constructs a new repository.
func NewBehaviorRepository(db *sqlx.DB) *BehaviorRepository {
	return &BehaviorRepository{db: db}
}

// Upsert stores a student's behavior record for a session; the latest write wins.
func (r *BehaviorRepository) Upsert(ctx context.Context, record *models.BehaviorRecord) error {
	if record.ID == "" {
		record.ID = uuid.NewString()
	}
	now := time.Now().UTC()
	if record.CreatedAt.IsZero() {
		record.CreatedAt = now
	}
	record.UpdatedAt = now
	record.Type = models.BehaviorTypeFor(record.Points)

	const query = `INSERT INTO behavior_records (id, lesson_session_id, student_id, points, type, category, note, recorded_by, created_at, updated_at)
VALUES (:id, :lesson_session_id, :student_id, :points, :type, :category, :note, :recorded_by, :created_at, :updated_at)
ON CONFLICT (lesson_session_id, student_id) DO UPDATE SET points = EXCLUDED.points, type = EXCLUDED.type,
category = EXCLUDED.category, note = EXCLUDED.note, recorded_by = EXCLUDED.recorded_by, updated_at = EXCLUDED.updated_at`
	if _, err := r.db.NamedExecContext(ctx, query, record); err != nil {
		return fmt.Errorf("upsert behavior record: %w", err)
	}
	return nil
}

// ListBySession returns the behavior records attached to a session.
func (r *BehaviorRepository) ListBySession(ctx context.Context, exec sqlx.ExtContext, sessionID string) ([]models.BehaviorRecord, error) {
	if exec == nil {
		exec = r.db
	}
	const query = `SELECT id, lesson_session_id, student_id, points, type, category, note, recorded_by, created_at, updated_at
FROM behavior_records WHERE lesson_session_id = $1 ORDER BY student_id`
	var records []models.BehaviorRecord
	if err := sqlx.SelectContext(ctx, exec, &records, query, sessionID); err != nil {
		return nil, fmt.Errorf("list behavior records: %w", err)
	}
	return records, nil
}

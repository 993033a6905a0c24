package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/noah-isme/sma-schedule-engine/internal/models"
)

const attendanceColumns = `id, lesson_id, lesson_session_id, student_id, status, note, marked_by, marked_at, created_at, updated_at`

// LessonAttendanceRepository stores per-student marks for lessons and sessions.
type LessonAttendanceRepository struct {
	db *sqlx.DB
}

// NewLessonAttendanceRepository constructs the repository.
func NewLessonAttendanceRepository(db *sqlx.DB) *LessonAttendanceRepository {
	return &LessonAttendanceRepository{db: db}
}

func (r *LessonAttendanceRepository) exec(exec sqlx.ExtContext) sqlx.ExtContext {
	if exec != nil {
		return exec
	}
	return r.db
}

// Upsert writes a mark keyed on (parent, student). A later write replaces status, note and marker.
func (r *LessonAttendanceRepository) Upsert(ctx context.Context, record *models.LessonAttendance) error {
	if record.ID == "" {
		record.ID = uuid.NewString()
	}
	now := time.Now().UTC()
	if record.MarkedAt.IsZero() {
		record.MarkedAt = now
	}
	record.CreatedAt = now
	record.UpdatedAt = now

	var conflictTarget string
	switch {
	case record.LessonID != nil && record.LessonSessionID == nil:
		conflictTarget = "(lesson_id, student_id) WHERE lesson_id IS NOT NULL"
	case record.LessonSessionID != nil && record.LessonID == nil:
		conflictTarget = "(lesson_session_id, student_id) WHERE lesson_session_id IS NOT NULL"
	default:
		return fmt.Errorf("upsert attendance: exactly one parent must be set")
	}

	query := `INSERT INTO lesson_attendances (id, lesson_id, lesson_session_id, student_id, status, note, marked_by, marked_at, created_at, updated_at)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
ON CONFLICT ` + conflictTarget + ` DO UPDATE SET status = EXCLUDED.status, note = EXCLUDED.note,
marked_by = EXCLUDED.marked_by, marked_at = EXCLUDED.marked_at, updated_at = EXCLUDED.updated_at`
	if _, err := r.db.ExecContext(ctx, query, record.ID, record.LessonID, record.LessonSessionID, record.StudentID, record.Status,
		record.Note, record.MarkedBy, record.MarkedAt, record.CreatedAt, record.UpdatedAt); err != nil {
		return fmt.Errorf("upsert attendance for student %s: %w", record.StudentID, err)
	}
	return nil
}

// ListByParent returns every explicit mark for a lesson or a session.
func (r *LessonAttendanceRepository) ListByParent(ctx context.Context, exec sqlx.ExtContext, parent models.ParentRef) ([]models.LessonAttendance, error) {
	column := "lesson_id"
	if parent.Kind == models.ParentSession {
		column = "lesson_session_id"
	}
	query := fmt.Sprintf("SELECT %s FROM lesson_attendances WHERE %s = $1 ORDER BY student_id", attendanceColumns, column)
	var records []models.LessonAttendance
	if err := sqlx.SelectContext(ctx, r.exec(exec), &records, query, parent.ID); err != nil {
		return nil, fmt.Errorf("list attendance for %s %s: %w", parent.Kind, parent.ID, err)
	}
	return records, nil
}

package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"

	"github.com/noah-isme/sma-schedule-engine/internal/models"
)

const sessionColumns = `id, tenant_id, school_id, schedule_id, teacher_id, subject_id, class_id, classroom,
started_at, ended_at, duration_seconds, status, lesson_note, lesson_tags, cancel_reason,
present_count, absent_count, late_count, excused_count, unmarked_count, attendance_rate,
behavior_total_points, behavior_positive_count, behavior_negative_count, created_at, updated_at`

// LessonSessionRepository persists teacher-started sessions.
type LessonSessionRepository struct {
	db *sqlx.DB
}

// NewLessonSessionRepository constructs the repository.
func NewLessonSessionRepository(db *sqlx.DB) *LessonSessionRepository {
	return &LessonSessionRepository{db: db}
}

func (r *LessonSessionRepository) exec(exec sqlx.ExtContext) sqlx.ExtContext {
	if exec != nil {
		return exec
	}
	return r.db
}

// Create stores a new session.
func (r *LessonSessionRepository) Create(ctx context.Context, session *models.LessonSession) error {
	if session.ID == "" {
		session.ID = uuid.NewString()
	}
	now := time.Now().UTC()
	if session.StartedAt.IsZero() {
		session.StartedAt = now
	}
	if session.CreatedAt.IsZero() {
		session.CreatedAt = now
	}
	session.UpdatedAt = now
	if session.LessonTags == nil {
		session.LessonTags = pq.StringArray{}
	}

	const query = `INSERT INTO lesson_sessions (id, tenant_id, school_id, schedule_id, teacher_id, subject_id, class_id, classroom, started_at, status, lesson_note, lesson_tags, created_at, updated_at)
VALUES (:id, :tenant_id, :school_id, :schedule_id, :teacher_id, :subject_id, :class_id, :classroom, :started_at, :status, :lesson_note, :lesson_tags, :created_at, :updated_at)`
	if _, err := r.db.NamedExecContext(ctx, query, session); err != nil {
		return fmt.Errorf("create lesson session: %w", err)
	}
	return nil
}

// FindByID loads a session.
func (r *LessonSessionRepository) FindByID(ctx context.Context, id string) (*models.LessonSession, error) {
	var session models.LessonSession
	if err := r.db.GetContext(ctx, &session, "SELECT "+sessionColumns+" FROM lesson_sessions WHERE id = $1", id); err != nil {
		return nil, err
	}
	return &session, nil
}

// FindByIDForUpdate loads and row-locks a session inside a transaction.
func (r *LessonSessionRepository) FindByIDForUpdate(ctx context.Context, exec sqlx.ExtContext, id string) (*models.LessonSession, error) {
	var session models.LessonSession
	if err := sqlx.GetContext(ctx, r.exec(exec), &session, "SELECT "+sessionColumns+" FROM lesson_sessions WHERE id = $1 FOR UPDATE", id); err != nil {
		return nil, err
	}
	return &session, nil
}

// Finish moves an in-progress session to a terminal status and stores its final counters.
// It returns false when the session had already left in_progress.
func (r *LessonSessionRepository) Finish(ctx context.Context, exec sqlx.ExtContext, session *models.LessonSession) (bool, error) {
	session.UpdatedAt = time.Now().UTC()
	const query = `UPDATE lesson_sessions SET status = $2, ended_at = $3, duration_seconds = $4, cancel_reason = $5,
present_count = $6, absent_count = $7, late_count = $8, excused_count = $9, unmarked_count = $10, attendance_rate = $11,
behavior_total_points = $12, behavior_positive_count = $13, behavior_negative_count = $14, updated_at = $15
WHERE id = $1 AND status = 'in_progress'`
	res, err := r.exec(exec).ExecContext(ctx, query, session.ID, session.Status, session.EndedAt, session.DurationSeconds, session.CancelReason,
		session.PresentCount, session.AbsentCount, session.LateCount, session.ExcusedCount, session.UnmarkedCount, session.AttendanceRate,
		session.BehaviorTotalPoints, session.BehaviorPositiveCount, session.BehaviorNegativeCount, session.UpdatedAt)
	if err != nil {
		return false, fmt.Errorf("finish lesson session: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("finish lesson session rows: %w", err)
	}
	return affected == 1, nil
}

// UpdateStats stores the rolled-up attendance and behavior counters of a running session.
// Finished sessions keep the counters Finish stored.
func (r *LessonSessionRepository) UpdateStats(ctx context.Context, exec sqlx.ExtContext, session *models.LessonSession) error {
	session.UpdatedAt = time.Now().UTC()
	const query = `UPDATE lesson_sessions SET present_count = $2, absent_count = $3, late_count = $4, excused_count = $5,
unmarked_count = $6, attendance_rate = $7, behavior_total_points = $8, behavior_positive_count = $9,
behavior_negative_count = $10, updated_at = $11 WHERE id = $1 AND status = 'in_progress'`
	if _, err := r.exec(exec).ExecContext(ctx, query, session.ID, session.PresentCount, session.AbsentCount, session.LateCount,
		session.ExcusedCount, session.UnmarkedCount, session.AttendanceRate, session.BehaviorTotalPoints,
		session.BehaviorPositiveCount, session.BehaviorNegativeCount, session.UpdatedAt); err != nil {
		return fmt.Errorf("update lesson session stats: %w", err)
	}
	return nil
}

// UpdateNote replaces the note and tags of an in-progress session.
func (r *LessonSessionRepository) UpdateNote(ctx context.Context, id string, note *string, tags []string) (bool, error) {
	if tags == nil {
		tags = []string{}
	}
	const query = `UPDATE lesson_sessions SET lesson_note = $2, lesson_tags = $3, updated_at = $4 WHERE id = $1 AND status = 'in_progress'`
	res, err := r.db.ExecContext(ctx, query, id, note, pq.Array(tags), time.Now().UTC())
	if err != nil {
		return false, fmt.Errorf("update lesson session note: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("update lesson session note rows: %w", err)
	}
	return affected == 1, nil
}

package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/noah-isme/sma-schedule-engine/internal/models"
)

const lessonColumns = `id, tenant_id, school_id, schedule_id, subject_id, class_id, teacher_id, lesson_date,
to_char(start_time, 'HH24:MI') AS start_time, to_char(end_time, 'HH24:MI') AS end_time,
classroom, status, type, expected_count, present_count, attendance_rate, content, homework, notes,
cancel_reason, started_at, completed_at, created_at, updated_at`

// LessonRepository persists dated lesson occurrences.
type LessonRepository struct {
	db *sqlx.DB
}

// NewLessonRepository constructs the repository.
func NewLessonRepository(db *sqlx.DB) *LessonRepository {
	return &LessonRepository{db: db}
}

func (r *LessonRepository) exec(exec sqlx.ExtContext) sqlx.ExtContext {
	if exec != nil {
		return exec
	}
	return r.db
}

// FindByID loads a lesson.
func (r *LessonRepository) FindByID(ctx context.Context, id string) (*models.Lesson, error) {
	var lesson models.Lesson
	if err := r.db.GetContext(ctx, &lesson, "SELECT "+lessonColumns+" FROM lessons WHERE id = $1", id); err != nil {
		return nil, err
	}
	return &lesson, nil
}

// FindByIDForUpdate loads and row-locks a lesson inside a transaction.
func (r *LessonRepository) FindByIDForUpdate(ctx context.Context, exec sqlx.ExtContext, id string) (*models.Lesson, error) {
	var lesson models.Lesson
	if err := sqlx.GetContext(ctx, r.exec(exec), &lesson, "SELECT "+lessonColumns+" FROM lessons WHERE id = $1 FOR UPDATE", id); err != nil {
		return nil, err
	}
	return &lesson, nil
}

// List returns lessons filtered by scope, class, teacher and date range.
func (r *LessonRepository) List(ctx context.Context, filter models.LessonFilter) ([]models.Lesson, int, error) {
	where := []string{"school_id = $1"}
	args := []interface{}{filter.SchoolID}
	if filter.TenantID != "" {
		where = append(where, fmt.Sprintf("tenant_id = $%d", len(args)+1))
		args = append(args, filter.TenantID)
	}
	if filter.ClassID != "" {
		where = append(where, fmt.Sprintf("class_id = $%d", len(args)+1))
		args = append(args, filter.ClassID)
	}
	if filter.TeacherID != "" {
		where = append(where, fmt.Sprintf("teacher_id = $%d", len(args)+1))
		args = append(args, filter.TeacherID)
	}
	if filter.ScheduleID != "" {
		where = append(where, fmt.Sprintf("schedule_id = $%d", len(args)+1))
		args = append(args, filter.ScheduleID)
	}
	if filter.Status != "" {
		where = append(where, fmt.Sprintf("status = $%d", len(args)+1))
		args = append(args, filter.Status)
	}
	if filter.DateFrom != nil {
		where = append(where, fmt.Sprintf("lesson_date >= $%d", len(args)+1))
		args = append(args, *filter.DateFrom)
	}
	if filter.DateTo != nil {
		where = append(where, fmt.Sprintf("lesson_date <= $%d", len(args)+1))
		args = append(args, *filter.DateTo)
	}
	clause := strings.Join(where, " AND ")

	page := filter.Page
	if page < 1 {
		page = 1
	}
	size := filter.PageSize
	if size <= 0 || size > 200 {
		size = 50
	}
	offset := (page - 1) * size

	query := fmt.Sprintf("SELECT %s FROM lessons WHERE %s ORDER BY lesson_date ASC, start_time ASC LIMIT %d OFFSET %d", lessonColumns, clause, size, offset)
	var lessons []models.Lesson
	if err := r.db.SelectContext(ctx, &lessons, query, args...); err != nil {
		return nil, 0, fmt.Errorf("list lessons: %w", err)
	}
	var total int
	if err := r.db.GetContext(ctx, &total, "SELECT COUNT(*) FROM lessons WHERE "+clause, args...); err != nil {
		return nil, 0, fmt.Errorf("count lessons: %w", err)
	}
	return lessons, total, nil
}

// InsertIfAbsent creates a lesson unless one already exists for its (schedule_id, lesson_date) key.
// It returns true when a row was inserted.
func (r *LessonRepository) InsertIfAbsent(ctx context.Context, exec sqlx.ExtContext, lesson *models.Lesson) (bool, error) {
	if lesson.ID == "" {
		lesson.ID = uuid.NewString()
	}
	now := time.Now().UTC()
	if lesson.CreatedAt.IsZero() {
		lesson.CreatedAt = now
	}
	lesson.UpdatedAt = now

	const query = `INSERT INTO lessons (id, tenant_id, school_id, schedule_id, subject_id, class_id, teacher_id, lesson_date, start_time, end_time, classroom, status, type, created_at, updated_at)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15)
ON CONFLICT (schedule_id, lesson_date) WHERE schedule_id IS NOT NULL DO NOTHING
RETURNING id`
	var insertedID string
	err := r.exec(exec).QueryRowxContext(ctx, query,
		lesson.ID, lesson.TenantID, lesson.SchoolID, lesson.ScheduleID, lesson.SubjectID, lesson.ClassID, lesson.TeacherID,
		lesson.LessonDate, lesson.StartTime, lesson.EndTime, lesson.Classroom, lesson.Status, lesson.Type,
		lesson.CreatedAt, lesson.UpdatedAt,
	).Scan(&insertedID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return false, nil
		}
		return false, fmt.Errorf("insert lesson for %s: %w", lesson.LessonDate.Format("2006-01-02"), err)
	}
	return true, nil
}

// Create inserts an ad-hoc lesson without a schedule key.
func (r *LessonRepository) Create(ctx context.Context, lesson *models.Lesson) error {
	inserted, err := r.InsertIfAbsent(ctx, nil, lesson)
	if err != nil {
		return err
	}
	if !inserted {
		return fmt.Errorf("create lesson: lesson already exists for schedule on %s", lesson.LessonDate.Format("2006-01-02"))
	}
	return nil
}

// TransitionStatus moves a lesson from one status to another, guarding against concurrent changes.
// It returns false when the lesson was no longer in the expected status.
func (r *LessonRepository) TransitionStatus(ctx context.Context, exec sqlx.ExtContext, id string, from, to models.LessonStatus, cancelReason *string) (bool, error) {
	now := time.Now().UTC()
	query := `UPDATE lessons SET status = $3, updated_at = $4,
cancel_reason = COALESCE($5, cancel_reason),
started_at = CASE WHEN $3 = 'in_progress' THEN $4 ELSE started_at END
WHERE id = $1 AND status = $2`
	res, err := r.exec(exec).ExecContext(ctx, query, id, from, to, now, cancelReason)
	if err != nil {
		return false, fmt.Errorf("transition lesson status: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("transition lesson status rows: %w", err)
	}
	return affected == 1, nil
}

// Complete stores completion fields and the recomputed attendance summary.
func (r *LessonRepository) Complete(ctx context.Context, exec sqlx.ExtContext, lesson *models.Lesson) error {
	now := time.Now().UTC()
	lesson.UpdatedAt = now
	lesson.CompletedAt = &now
	const query = `UPDATE lessons SET status = $2, content = $3, homework = $4, notes = $5,
expected_count = $6, present_count = $7, attendance_rate = $8, completed_at = $9, updated_at = $9
WHERE id = $1`
	if _, err := r.exec(exec).ExecContext(ctx, query, lesson.ID, lesson.Status, lesson.Content, lesson.Homework, lesson.Notes,
		lesson.ExpectedCount, lesson.PresentCount, lesson.AttendanceRate, now); err != nil {
		return fmt.Errorf("complete lesson: %w", err)
	}
	return nil
}

// UpdateAttendanceStats stores the rolled-up attendance figures.
func (r *LessonRepository) UpdateAttendanceStats(ctx context.Context, exec sqlx.ExtContext, id string, expected, present int, rate float64) error {
	const query = `UPDATE lessons SET expected_count = $2, present_count = $3, attendance_rate = $4, updated_at = $5 WHERE id = $1`
	if _, err := r.exec(exec).ExecContext(ctx, query, id, expected, present, rate, time.Now().UTC()); err != nil {
		return fmt.Errorf("update lesson attendance stats: %w", err)
	}
	return nil
}

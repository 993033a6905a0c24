package repository

import (
	"context"
	"fmt"

	"github.com/jmoiron/sqlx"

	"github.com/noah-isme/sma-schedule-engine/internal/models"
)

// EnrollmentRepository answers roster questions from the enrollments table.
type EnrollmentRepository struct {
	db *sqlx.DB
}

// NewEnrollmentRepository constructs the repository.
func NewEnrollmentRepository(db *sqlx.DB) *EnrollmentRepository {
	return &EnrollmentRepository{db: db}
}

// ActiveStudentIDs returns the students actively enrolled in a class, ordered by id.
func (r *EnrollmentRepository) ActiveStudentIDs(ctx context.Context, classID string) ([]string, error) {
	const query = `SELECT DISTINCT student_id FROM enrollments WHERE class_id = $1 AND status = $2 ORDER BY student_id`
	var ids []string
	if err := r.db.SelectContext(ctx, &ids, query, classID, models.EnrollmentStatusActive); err != nil {
		return nil, fmt.Errorf("list active roster: %w", err)
	}
	return ids, nil
}

// IsActiveMember reports whether a student is on the active roster of a class.
func (r *EnrollmentRepository) IsActiveMember(ctx context.Context, classID, studentID string) (bool, error) {
	const query = `SELECT EXISTS(SELECT 1 FROM enrollments WHERE class_id = $1 AND student_id = $2 AND status = $3)`
	var exists bool
	if err := r.db.GetContext(ctx, &exists, query, classID, studentID, models.EnrollmentStatusActive); err != nil {
		return false, fmt.Errorf("check roster membership: %w", err)
	}
	return exists, nil
}

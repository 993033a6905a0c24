package service

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/jmoiron/sqlx"
	"go.uber.org/zap"

	"github.com/noah-isme/sma-schedule-engine/internal/models"
	"github.com/noah-isme/sma-schedule-engine/pkg/database"
	appErrors "github.com/noah-isme/sma-schedule-engine/pkg/errors"
)

type lessonStore interface {
	Create(ctx context.Context, lesson *models.Lesson) error
	FindByID(ctx context.Context, id string) (*models.Lesson, error)
	FindByIDForUpdate(ctx context.Context, exec sqlx.ExtContext, id string) (*models.Lesson, error)
	List(ctx context.Context, filter models.LessonFilter) ([]models.Lesson, int, error)
	TransitionStatus(ctx context.Context, exec sqlx.ExtContext, id string, from, to models.LessonStatus, cancelReason *string) (bool, error)
	Complete(ctx context.Context, exec sqlx.ExtContext, lesson *models.Lesson) error
}

// LessonRequest is the payload for an ad-hoc lesson that no schedule generated.
type LessonRequest struct {
	SubjectID  string  `json:"subject_id" validate:"required"`
	ClassID    string  `json:"class_id" validate:"required"`
	TeacherID  *string `json:"teacher_id"`
	Classroom  *string `json:"classroom" validate:"omitempty,max=64"`
	LessonDate string  `json:"lesson_date" validate:"required,datetime=2006-01-02"`
	StartTime  string  `json:"start_time" validate:"required,clock"`
	EndTime    string  `json:"end_time" validate:"required,clock"`
	Type       string  `json:"type" validate:"omitempty,lesson_type"`
}

// LessonService drives the lesson state machine.
type LessonService struct {
	db        database.TxBeginner
	lessons   lessonStore
	classes   classReader
	stats     *StatsRefresher
	cache     *CacheService
	metrics   *MetricsService
	validator *validator.Validate
	logger    *zap.Logger
}

// NewLessonService constructs the lesson lifecycle service.
func NewLessonService(db database.TxBeginner, lessons lessonStore, classes classReader, stats *StatsRefresher, cache *CacheService, metrics *MetricsService, logger *zap.Logger) *LessonService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &LessonService{
		db:        db,
		lessons:   lessons,
		classes:   classes,
		stats:     stats,
		cache:     cache,
		metrics:   metrics,
		validator: NewValidator(),
		logger:    logger,
	}
}

// CreateLesson stores a manually planned lesson such as a makeup or exam. It has no schedule,
// so the (schedule_id, lesson_date) uniqueness does not apply.
func (s *LessonService) CreateLesson(ctx context.Context, actor models.ScopeProvider, req LessonRequest) (*models.Lesson, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid lesson payload")
	}
	start, _ := models.NormalizeClock(req.StartTime)
	end, _ := models.NormalizeClock(req.EndTime)
	if start >= end {
		return nil, appErrors.Clone(appErrors.ErrValidation, "start_time must be before end_time")
	}
	date, err := time.Parse(dateLayout, req.LessonDate)
	if err != nil {
		return nil, appErrors.Clone(appErrors.ErrValidation, "invalid lesson_date")
	}

	class, err := s.classes.FindByID(ctx, req.ClassID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "class not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load class")
	}
	if !models.Owns(actor, class.TenantID, class.SchoolID) {
		return nil, appErrors.Clone(appErrors.ErrNotFound, "class not found")
	}

	lessonType := models.LessonType(req.Type)
	if lessonType == "" {
		lessonType = models.LessonTypeRegular
	}
	lesson := &models.Lesson{
		TenantID:   firstNonEmpty(actor.CurrentTenantID(), class.TenantID),
		SchoolID:   class.SchoolID,
		SubjectID:  req.SubjectID,
		ClassID:    class.ID,
		TeacherID:  trimmedOrNil(req.TeacherID),
		LessonDate: date,
		StartTime:  start,
		EndTime:    end,
		Classroom:  trimmedOrNil(req.Classroom),
		Status:     models.LessonStatusScheduled,
		Type:       lessonType,
	}
	if lesson.TeacherID == nil && actor.CurrentTeacherID() != "" {
		teacherID := actor.CurrentTeacherID()
		lesson.TeacherID = &teacherID
	}

	if err := s.lessons.Create(ctx, lesson); err != nil {
		if database.IsCheckViolation(err) {
			return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "lesson violates a data constraint")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to create lesson")
	}
	s.logger.Info("ad-hoc lesson created",
		zap.String("lesson_id", lesson.ID),
		zap.String("class_id", lesson.ClassID),
		zap.String("type", string(lesson.Type)),
		zap.String("lesson_date", req.LessonDate),
	)
	return lesson, nil
}

// GetLesson loads a lesson visible to the actor.
func (s *LessonService) GetLesson(ctx context.Context, actor models.ScopeProvider, id string) (*models.Lesson, error) {
	lesson, err := s.lessons.FindByID(ctx, id)
	if err != nil {
		return nil, lessonLoadError(err)
	}
	if !models.Owns(actor, lesson.TenantID, lesson.SchoolID) {
		return nil, appErrors.Clone(appErrors.ErrNotFound, "lesson not found")
	}
	return lesson, nil
}

// ListLessons returns the actor's lessons filtered by class, teacher, schedule and date range.
func (s *LessonService) ListLessons(ctx context.Context, actor models.ScopeProvider, filter models.LessonFilter) ([]models.Lesson, *models.Pagination, error) {
	if filter.DateFrom != nil && filter.DateTo != nil && filter.DateTo.Before(*filter.DateFrom) {
		return nil, nil, appErrors.Clone(appErrors.ErrValidation, "date_from must not be after date_to")
	}
	filter.SchoolID = actor.CurrentSchoolID()
	filter.TenantID = actor.CurrentTenantID()
	lessons, total, err := s.lessons.List(ctx, filter)
	if err != nil {
		return nil, nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list lessons")
	}
	page := filter.Page
	if page < 1 {
		page = 1
	}
	size := filter.PageSize
	if size <= 0 || size > 200 {
		size = 50
	}
	return lessons, &models.Pagination{Page: page, PageSize: size, TotalCount: total}, nil
}

// StartLesson moves a scheduled lesson to in_progress.
func (s *LessonService) StartLesson(ctx context.Context, actor models.ScopeProvider, id string) (*models.Lesson, error) {
	return s.transition(ctx, actor, id, models.LessonStatusInProgress, nil)
}

// PostponeLesson marks a scheduled lesson as postponed.
func (s *LessonService) PostponeLesson(ctx context.Context, actor models.ScopeProvider, id string) (*models.Lesson, error) {
	return s.transition(ctx, actor, id, models.LessonStatusPostponed, nil)
}

// RescheduleLesson returns a postponed lesson to scheduled.
func (s *LessonService) RescheduleLesson(ctx context.Context, actor models.ScopeProvider, id string) (*models.Lesson, error) {
	return s.transition(ctx, actor, id, models.LessonStatusScheduled, nil)
}

// MarkTeacherAbsent records that a scheduled lesson did not happen because the teacher was absent.
func (s *LessonService) MarkTeacherAbsent(ctx context.Context, actor models.ScopeProvider, id string) (*models.Lesson, error) {
	return s.transition(ctx, actor, id, models.LessonStatusAbsentTeacher, nil)
}

// CancelLesson cancels a scheduled, postponed or running lesson. A reason is mandatory.
func (s *LessonService) CancelLesson(ctx context.Context, actor models.ScopeProvider, id, reason string) (*models.Lesson, error) {
	reason = strings.TrimSpace(reason)
	if reason == "" {
		return nil, appErrors.Clone(appErrors.ErrValidation, "a cancellation reason is required")
	}
	return s.transition(ctx, actor, id, models.LessonStatusCancelled, &reason)
}

// CompleteLesson stores the lesson record fields and recomputes its attendance summary in one transaction.
func (s *LessonService) CompleteLesson(ctx context.Context, actor models.ScopeProvider, id string, fields models.LessonCompletion) (*models.Lesson, error) {
	if _, err := s.GetLesson(ctx, actor, id); err != nil {
		return nil, err
	}

	var completed *models.Lesson
	err := database.RunInTx(ctx, s.db, func(tx *sqlx.Tx) error {
		lesson, err := s.lessons.FindByIDForUpdate(ctx, tx, id)
		if err != nil {
			return lessonLoadError(err)
		}
		if !lesson.Status.CanTransitionTo(models.LessonStatusCompleted) {
			return transitionError("lesson", string(lesson.Status), string(models.LessonStatusCompleted))
		}
		if _, err := s.stats.ComputeLesson(ctx, tx, lesson); err != nil {
			return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to compute lesson attendance")
		}
		lesson.Content = trimmedOrNil(fields.Content)
		lesson.Homework = trimmedOrNil(fields.Homework)
		lesson.Notes = trimmedOrNil(fields.Notes)
		lesson.Status = models.LessonStatusCompleted
		if err := s.lessons.Complete(ctx, tx, lesson); err != nil {
			return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to complete lesson")
		}
		completed = lesson
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.cache.Invalidate(ctx, SummaryKey(models.LessonRef(id)))
	s.metrics.RecordLessonTransition(models.LessonStatusCompleted)
	s.logger.Info("lesson completed",
		zap.String("lesson_id", id),
		zap.Int("expected", completed.ExpectedCount),
		zap.Int("present", completed.PresentCount),
		zap.Float64("attendance_rate", completed.AttendanceRate),
	)
	return completed, nil
}

func (s *LessonService) transition(ctx context.Context, actor models.ScopeProvider, id string, to models.LessonStatus, reason *string) (*models.Lesson, error) {
	lesson, err := s.GetLesson(ctx, actor, id)
	if err != nil {
		return nil, err
	}
	from := lesson.Status
	if !from.CanTransitionTo(to) {
		return nil, transitionError("lesson", string(from), string(to))
	}

	ok, err := s.lessons.TransitionStatus(ctx, nil, id, from, to, reason)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to update lesson status")
	}
	if !ok {
		return nil, appErrors.Clone(appErrors.ErrInvalidTransition, "lesson status changed concurrently, reload and retry")
	}

	lesson, err = s.lessons.FindByID(ctx, id)
	if err != nil {
		return nil, lessonLoadError(err)
	}
	s.metrics.RecordLessonTransition(to)
	s.logger.Info("lesson status changed", zap.String("lesson_id", id), zap.String("from", string(from)), zap.String("to", string(to)))
	return lesson, nil
}

func lessonLoadError(err error) error {
	if errors.Is(err, sql.ErrNoRows) {
		return appErrors.Clone(appErrors.ErrNotFound, "lesson not found")
	}
	return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load lesson")
}

func transitionError(entity, from, to string) error {
	return appErrors.WithDetails(appErrors.ErrInvalidTransition,
		fmt.Sprintf("cannot move %s from %s to %s", entity, from, to),
		map[string]string{"from": from, "to": to},
	)
}

package service

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/jmoiron/sqlx/types"
	"go.uber.org/zap"

	"github.com/noah-isme/sma-schedule-engine/internal/models"
	"github.com/noah-isme/sma-schedule-engine/pkg/database"
	appErrors "github.com/noah-isme/sma-schedule-engine/pkg/errors"
)

const dateLayout = "2006-01-02"

type scheduleRepository interface {
	List(ctx context.Context, filter models.ScheduleFilter) ([]models.Schedule, int, error)
	FindByID(ctx context.Context, id string) (*models.Schedule, error)
	Create(ctx context.Context, schedule *models.Schedule) error
	Update(ctx context.Context, schedule *models.Schedule) error
	UpdateStatus(ctx context.Context, id string, status models.ScheduleStatus) error
	Delete(ctx context.Context, id string) error
}

type conflictChecker interface {
	CheckConflicts(ctx context.Context, actor models.ScopeProvider, candidate models.ConflictCandidate, excludeScheduleID string) ([]models.ScheduleConflict, error)
}

// ScheduleServiceConfig tunes how detected conflicts gate persistence.
type ScheduleServiceConfig struct {
	BlockOnWarning bool
}

// ScheduleRequest describes the payload for creating, updating or validating a schedule.
type ScheduleRequest struct {
	SubjectID  string          `json:"subject_id" validate:"required"`
	ClassID    string          `json:"class_id" validate:"required"`
	TeacherID  *string         `json:"teacher_id"`
	Classroom  *string         `json:"classroom" validate:"omitempty,max=64"`
	DayOfWeek  string          `json:"day_of_week" validate:"required,day_of_week"`
	StartTime  string          `json:"start_time" validate:"required,clock"`
	EndTime    string          `json:"end_time" validate:"required,clock"`
	StartDate  string          `json:"start_date" validate:"required,datetime=2006-01-02"`
	EndDate    string          `json:"end_date" validate:"required,datetime=2006-01-02"`
	Recurrence json.RawMessage `json:"recurrence" swaggertype:"object"`
	// Force persists the schedule even when blocking conflicts are reported.
	Force bool `json:"force"`
}

// ScheduleWriteResult returns the stored schedule along with any conflicts that were accepted.
type ScheduleWriteResult struct {
	Schedule  *models.Schedule          `json:"schedule"`
	Conflicts []models.ScheduleConflict `json:"conflicts"`
}

// ScheduleService coordinates scheduling logic.
type ScheduleService struct {
	repo      scheduleRepository
	detector  conflictChecker
	cfg       ScheduleServiceConfig
	validator *validator.Validate
	logger    *zap.Logger
}

// NewScheduleService instantiates ScheduleService.
func NewScheduleService(repo scheduleRepository, detector conflictChecker, cfg ScheduleServiceConfig, validate *validator.Validate, logger *zap.Logger) *ScheduleService {
	if validate == nil {
		validate = NewValidator()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &ScheduleService{repo: repo, detector: detector, cfg: cfg, validator: validate, logger: logger}
}

// List returns the actor's schedules with pagination metadata.
func (s *ScheduleService) List(ctx context.Context, actor models.ScopeProvider, filter models.ScheduleFilter) ([]models.Schedule, *models.Pagination, error) {
	filter.SchoolID = actor.CurrentSchoolID()
	filter.TenantID = actor.CurrentTenantID()
	schedules, total, err := s.repo.List(ctx, filter)
	if err != nil {
		return nil, nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list schedules")
	}
	page := filter.Page
	if page < 1 {
		page = 1
	}
	size := filter.PageSize
	if size <= 0 || size > 100 {
		size = 20
	}
	pagination := &models.Pagination{Page: page, PageSize: size, TotalCount: total}
	return schedules, pagination, nil
}

// Get loads a schedule visible to the actor.
func (s *ScheduleService) Get(ctx context.Context, actor models.ScopeProvider, id string) (*models.Schedule, error) {
	schedule, err := s.repo.FindByID(ctx, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "schedule not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load schedule")
	}
	if !models.Owns(actor, schedule.TenantID, schedule.SchoolID) {
		return nil, appErrors.Clone(appErrors.ErrNotFound, "schedule not found")
	}
	return schedule, nil
}

// ValidateSchedule reports conflicts for a prospective schedule without persisting or blocking.
func (s *ScheduleService) ValidateSchedule(ctx context.Context, actor models.ScopeProvider, req ScheduleRequest, excludeScheduleID string) ([]models.ScheduleConflict, error) {
	schedule, err := s.buildSchedule(req)
	if err != nil {
		return nil, err
	}
	return s.detector.CheckConflicts(ctx, actor, schedule.Candidate(), excludeScheduleID)
}

// Create inserts a new schedule. Blocking conflicts reject the request unless Force is set.
func (s *ScheduleService) Create(ctx context.Context, actor models.ScopeProvider, req ScheduleRequest) (*ScheduleWriteResult, error) {
	schedule, err := s.buildSchedule(req)
	if err != nil {
		return nil, err
	}
	schedule.TenantID = actor.CurrentTenantID()
	schedule.SchoolID = actor.CurrentSchoolID()
	schedule.Status = models.ScheduleStatusActive

	conflicts, err := s.gate(ctx, actor, schedule, "", req.Force)
	if err != nil {
		return nil, err
	}

	if err := s.repo.Create(ctx, schedule); err != nil {
		return nil, s.persistError(err, "failed to create schedule")
	}
	s.logger.Info("schedule created",
		zap.String("schedule_id", schedule.ID),
		zap.String("class_id", schedule.ClassID),
		zap.String("day", string(schedule.DayOfWeek)),
		zap.Int("accepted_conflicts", len(conflicts)),
	)
	return &ScheduleWriteResult{Schedule: schedule, Conflicts: conflicts}, nil
}

// Update modifies an existing schedule, checking conflicts against every other schedule.
func (s *ScheduleService) Update(ctx context.Context, actor models.ScopeProvider, id string, req ScheduleRequest) (*ScheduleWriteResult, error) {
	existing, err := s.Get(ctx, actor, id)
	if err != nil {
		return nil, err
	}
	updated, err := s.buildSchedule(req)
	if err != nil {
		return nil, err
	}
	updated.ID = existing.ID
	updated.TenantID = existing.TenantID
	updated.SchoolID = existing.SchoolID
	updated.Status = existing.Status
	updated.CreatedAt = existing.CreatedAt

	var conflicts []models.ScheduleConflict
	if updated.Status == models.ScheduleStatusActive {
		if conflicts, err = s.gate(ctx, actor, updated, existing.ID, req.Force); err != nil {
			return nil, err
		}
	}

	if err := s.repo.Update(ctx, updated); err != nil {
		return nil, s.persistError(err, "failed to update schedule")
	}
	return &ScheduleWriteResult{Schedule: updated, Conflicts: conflicts}, nil
}

// UpdateStatus suspends, cancels, completes or reactivates a schedule.
func (s *ScheduleService) UpdateStatus(ctx context.Context, actor models.ScopeProvider, id string, status models.ScheduleStatus) (*models.Schedule, error) {
	if !status.Valid() {
		return nil, appErrors.Clone(appErrors.ErrValidation, "invalid schedule status")
	}
	schedule, err := s.Get(ctx, actor, id)
	if err != nil {
		return nil, err
	}
	if schedule.Status == status {
		return schedule, nil
	}
	if status == models.ScheduleStatusActive {
		conflicts, err := s.detector.CheckConflicts(ctx, actor, schedule.Candidate(), schedule.ID)
		if err != nil {
			return nil, err
		}
		if HasBlockingConflict(conflicts, s.cfg.BlockOnWarning) {
			return nil, appErrors.WithDetails(appErrors.ErrScheduleConflict, "reactivating would conflict with active schedules", conflicts)
		}
	}
	if err := s.repo.UpdateStatus(ctx, id, status); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to update schedule status")
	}
	schedule.Status = status
	return schedule, nil
}

// Delete removes a schedule entry. Generated lessons keep their rows with the schedule link cleared.
func (s *ScheduleService) Delete(ctx context.Context, actor models.ScopeProvider, id string) error {
	if _, err := s.Get(ctx, actor, id); err != nil {
		return err
	}
	if err := s.repo.Delete(ctx, id); err != nil {
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to delete schedule")
	}
	return nil
}

func (s *ScheduleService) gate(ctx context.Context, actor models.ScopeProvider, schedule *models.Schedule, excludeID string, force bool) ([]models.ScheduleConflict, error) {
	conflicts, err := s.detector.CheckConflicts(ctx, actor, schedule.Candidate(), excludeID)
	if err != nil {
		return nil, err
	}
	if !force && HasBlockingConflict(conflicts, s.cfg.BlockOnWarning) {
		return nil, appErrors.WithDetails(appErrors.ErrScheduleConflict, fmt.Sprintf("%d schedule conflict(s) detected", len(conflicts)), conflicts)
	}
	return conflicts, nil
}

func (s *ScheduleService) persistError(err error, message string) error {
	if database.IsUniqueViolation(err) {
		return appErrors.Wrap(err, appErrors.ErrDuplicateSchedule.Code, appErrors.ErrDuplicateSchedule.Status, appErrors.ErrDuplicateSchedule.Message)
	}
	if database.IsCheckViolation(err) {
		return appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "schedule violates a data constraint")
	}
	return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, message)
}

func (s *ScheduleService) buildSchedule(req ScheduleRequest) (*models.Schedule, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid schedule payload")
	}

	day, _ := models.ParseDayOfWeek(req.DayOfWeek)
	start, _ := models.NormalizeClock(req.StartTime)
	end, _ := models.NormalizeClock(req.EndTime)
	if start >= end {
		return nil, appErrors.Clone(appErrors.ErrValidation, "start_time must be before end_time")
	}
	startDate, err := time.Parse(dateLayout, req.StartDate)
	if err != nil {
		return nil, appErrors.Clone(appErrors.ErrValidation, "invalid start_date")
	}
	endDate, err := time.Parse(dateLayout, req.EndDate)
	if err != nil {
		return nil, appErrors.Clone(appErrors.ErrValidation, "invalid end_date")
	}
	if endDate.Before(startDate) {
		return nil, appErrors.Clone(appErrors.ErrValidation, "start_date must not be after end_date")
	}

	schedule := &models.Schedule{
		SubjectID: req.SubjectID,
		ClassID:   req.ClassID,
		TeacherID: trimmedOrNil(req.TeacherID),
		Classroom: trimmedOrNil(req.Classroom),
		DayOfWeek: day,
		StartTime: start,
		EndTime:   end,
		StartDate: startDate,
		EndDate:   endDate,
	}
	if len(req.Recurrence) > 0 {
		schedule.Recurrence = types.JSONText(req.Recurrence)
	}
	return schedule, nil
}

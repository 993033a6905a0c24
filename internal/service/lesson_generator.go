package service

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"
	"go.uber.org/zap"

	"github.com/noah-isme/sma-schedule-engine/internal/models"
	"github.com/noah-isme/sma-schedule-engine/pkg/database"
	appErrors "github.com/noah-isme/sma-schedule-engine/pkg/errors"
)

type generatorScheduleReader interface {
	FindByID(ctx context.Context, id string) (*models.Schedule, error)
}

type lessonInserter interface {
	InsertIfAbsent(ctx context.Context, exec sqlx.ExtContext, lesson *models.Lesson) (bool, error)
}

// LessonGeneratorConfig bounds a single generation run.
type LessonGeneratorConfig struct {
	MaxDays int
}

// LessonGenerator materialises dated lessons from a recurring schedule.
type LessonGenerator struct {
	db        database.TxBeginner
	schedules generatorScheduleReader
	lessons   lessonInserter
	cfg       LessonGeneratorConfig
	metrics   *MetricsService
	logger    *zap.Logger
}

// NewLessonGenerator constructs the generator.
func NewLessonGenerator(db database.TxBeginner, schedules generatorScheduleReader, lessons lessonInserter, cfg LessonGeneratorConfig, metrics *MetricsService, logger *zap.Logger) *LessonGenerator {
	if cfg.MaxDays <= 0 {
		cfg.MaxDays = 366
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &LessonGenerator{db: db, schedules: schedules, lessons: lessons, cfg: cfg, metrics: metrics, logger: logger}
}

// GenerateLessonsForSchedule creates one lesson per matching weekday in the schedule's date range.
// Dates that already have a lesson are counted as existing and left untouched. The run is atomic:
// any failure rolls back every lesson it inserted.
func (g *LessonGenerator) GenerateLessonsForSchedule(ctx context.Context, actor models.ScopeProvider, scheduleID string) (*models.GenerationResult, error) {
	schedule, err := g.schedules.FindByID(ctx, scheduleID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "schedule not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load schedule")
	}
	if !models.Owns(actor, schedule.TenantID, schedule.SchoolID) {
		return nil, appErrors.Clone(appErrors.ErrNotFound, "schedule not found")
	}
	if schedule.Status != models.ScheduleStatusActive {
		return nil, appErrors.Clone(appErrors.ErrInvalidTransition, fmt.Sprintf("cannot generate lessons for a %s schedule", schedule.Status))
	}
	if !schedule.DayOfWeek.Valid() {
		return nil, appErrors.Clone(appErrors.ErrValidation, "schedule has an invalid day_of_week")
	}

	start := models.DateOnly(schedule.StartDate)
	end := models.DateOnly(schedule.EndDate)
	if end.Before(start) {
		return nil, appErrors.Clone(appErrors.ErrValidation, "schedule start_date is after end_date")
	}
	if days := int(end.Sub(start).Hours()/24) + 1; days > g.cfg.MaxDays {
		return nil, appErrors.Clone(appErrors.ErrValidation, fmt.Sprintf("schedule spans %d days, limit is %d", days, g.cfg.MaxDays))
	}

	dates := OccurrenceDates(start, end, schedule.DayOfWeek.Weekday())
	result := &models.GenerationResult{ScheduleID: schedule.ID, Dates: dates}

	err = database.RunInTx(ctx, g.db, func(tx *sqlx.Tx) error {
		result.Created, result.Existing = 0, 0
		for _, date := range dates {
			lesson := lessonFromSchedule(schedule, date)
			inserted, err := g.lessons.InsertIfAbsent(ctx, tx, lesson)
			if err != nil {
				return err
			}
			if inserted {
				result.Created++
			} else {
				result.Existing++
			}
		}
		return nil
	})
	if err != nil {
		g.metrics.RecordGenerationFailure()
		g.logger.Error("lesson generation rolled back", zap.String("schedule_id", schedule.ID), zap.Error(err))
		return nil, appErrors.Wrap(err, appErrors.ErrGenerationFailed.Code, appErrors.ErrGenerationFailed.Status, appErrors.ErrGenerationFailed.Message)
	}

	result.Total = result.Created + result.Existing
	g.metrics.RecordGeneration(result.Created, result.Existing)
	g.logger.Info("lessons generated",
		zap.String("schedule_id", schedule.ID),
		zap.Int("created", result.Created),
		zap.Int("existing", result.Existing),
	)
	return result, nil
}

// OccurrenceDates lists every date in [start, end] falling on weekday.
func OccurrenceDates(start, end time.Time, weekday time.Weekday) []time.Time {
	start = models.DateOnly(start)
	end = models.DateOnly(end)
	offset := (int(weekday) - int(start.Weekday()) + 7) % 7
	var dates []time.Time
	for d := start.AddDate(0, 0, offset); !d.After(end); d = d.AddDate(0, 0, 7) {
		dates = append(dates, d)
	}
	return dates
}

func lessonFromSchedule(schedule *models.Schedule, date time.Time) *models.Lesson {
	scheduleID := schedule.ID
	return &models.Lesson{
		TenantID:   schedule.TenantID,
		SchoolID:   schedule.SchoolID,
		ScheduleID: &scheduleID,
		SubjectID:  schedule.SubjectID,
		ClassID:    schedule.ClassID,
		TeacherID:  schedule.TeacherID,
		LessonDate: date,
		StartTime:  schedule.StartTime,
		EndTime:    schedule.EndTime,
		Classroom:  schedule.Classroom,
		Status:     models.LessonStatusScheduled,
		Type:       models.LessonTypeRegular,
	}
}

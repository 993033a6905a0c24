package service

import (
	"context"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/noah-isme/sma-schedule-engine/internal/models"
	appErrors "github.com/noah-isme/sma-schedule-engine/pkg/errors"
)

type conflictScheduleReader interface {
	ListActiveOnDay(ctx context.Context, tenantID, schoolID string, day models.DayOfWeek, excludeID string) ([]models.Schedule, error)
}

// ConflictDetector reports overlaps between a candidate slot and the school's active schedules.
// It never rejects anything itself.
type ConflictDetector struct {
	schedules conflictScheduleReader
	metrics   *MetricsService
	logger    *zap.Logger
}

// NewConflictDetector constructs the detector.
func NewConflictDetector(schedules conflictScheduleReader, metrics *MetricsService, logger *zap.Logger) *ConflictDetector {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &ConflictDetector{schedules: schedules, metrics: metrics, logger: logger}
}

// CheckConflicts validates the candidate window and compares it against every other active
// schedule in the actor's school meeting on the same day.
func (d *ConflictDetector) CheckConflicts(ctx context.Context, actor models.ScopeProvider, candidate models.ConflictCandidate, excludeScheduleID string) ([]models.ScheduleConflict, error) {
	if actor == nil || actor.CurrentSchoolID() == "" {
		return nil, appErrors.Clone(appErrors.ErrValidation, "school scope is required")
	}
	if _, _, err := candidateWindow(candidate); err != nil {
		return nil, err
	}

	existing, err := d.schedules.ListActiveOnDay(ctx, actor.CurrentTenantID(), actor.CurrentSchoolID(), candidate.DayOfWeek, excludeScheduleID)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load schedules")
	}

	conflicts, err := DetectConflicts(candidate, existing)
	if err != nil {
		return nil, err
	}
	if len(conflicts) > 0 {
		d.metrics.RecordConflicts(conflicts)
		d.logger.Debug("schedule conflicts detected",
			zap.String("day", string(candidate.DayOfWeek)),
			zap.String("window", candidate.StartTime+"-"+candidate.EndTime),
			zap.Int("count", len(conflicts)),
		)
	}
	return conflicts, nil
}

// DetectConflicts compares candidate against existing using open intervals, so ranges that only
// touch never collide. Each (schedule, dimension) match yields one descriptor.
func DetectConflicts(candidate models.ConflictCandidate, existing []models.Schedule) ([]models.ScheduleConflict, error) {
	candStart, candEnd, err := candidateWindow(candidate)
	if err != nil {
		return nil, err
	}

	conflicts := make([]models.ScheduleConflict, 0)
	for _, sched := range existing {
		if sched.DayOfWeek != candidate.DayOfWeek {
			continue
		}
		start, errStart := models.ParseClock(sched.StartTime)
		end, errEnd := models.ParseClock(sched.EndTime)
		if errStart != nil || errEnd != nil {
			continue
		}
		if !(start < candEnd && end > candStart) {
			continue
		}

		if sameTeacher(candidate.TeacherID, sched.TeacherID) {
			conflicts = append(conflicts, newConflict(models.ConflictTeacher, models.SeverityError, sched,
				fmt.Sprintf("teacher %s already teaches at this time", *sched.TeacherID)))
		}
		if sameClassroom(candidate.Classroom, sched.Classroom) {
			conflicts = append(conflicts, newConflict(models.ConflictClassroom, models.SeverityWarning, sched,
				fmt.Sprintf("classroom %s is already booked at this time", strings.TrimSpace(*sched.Classroom))))
		}
		if candidate.ClassID != "" && candidate.ClassID == sched.ClassID {
			conflicts = append(conflicts, newConflict(models.ConflictClass, models.SeverityError, sched,
				fmt.Sprintf("class %s already has a lesson at this time", sched.ClassID)))
		}
	}
	return conflicts, nil
}

// HasBlockingConflict reports whether any conflict should stop persistence.
func HasBlockingConflict(conflicts []models.ScheduleConflict, blockOnWarning bool) bool {
	for _, c := range conflicts {
		if c.Severity == models.SeverityError || blockOnWarning {
			return true
		}
	}
	return false
}

func candidateWindow(c models.ConflictCandidate) (int, int, error) {
	if !c.DayOfWeek.Valid() {
		return 0, 0, appErrors.Clone(appErrors.ErrValidation, "day_of_week must be monday through sunday")
	}
	start, err := models.ParseClock(c.StartTime)
	if err != nil {
		return 0, 0, appErrors.Clone(appErrors.ErrValidation, "start_time must be HH:MM")
	}
	end, err := models.ParseClock(c.EndTime)
	if err != nil {
		return 0, 0, appErrors.Clone(appErrors.ErrValidation, "end_time must be HH:MM")
	}
	if start >= end {
		return 0, 0, appErrors.Clone(appErrors.ErrValidation, "start_time must be before end_time")
	}
	return start, end, nil
}

func sameTeacher(a, b *string) bool {
	return a != nil && b != nil && *a != "" && *a == *b
}

func sameClassroom(a, b *string) bool {
	if a == nil || b == nil {
		return false
	}
	left := strings.TrimSpace(*a)
	right := strings.TrimSpace(*b)
	return left != "" && right != "" && strings.EqualFold(left, right)
}

func newConflict(kind models.ConflictType, severity models.ConflictSeverity, sched models.Schedule, message string) models.ScheduleConflict {
	return models.ScheduleConflict{
		Type:       kind,
		Severity:   severity,
		Message:    message,
		ScheduleID: sched.ID,
		DayOfWeek:  sched.DayOfWeek,
		StartTime:  sched.StartTime,
		EndTime:    sched.EndTime,
	}
}

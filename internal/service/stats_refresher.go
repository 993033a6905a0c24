package service

import (
	"context"

	"github.com/jmoiron/sqlx"

	"github.com/noah-isme/sma-schedule-engine/internal/models"
)

type attendanceReader interface {
	ListByParent(ctx context.Context, exec sqlx.ExtContext, parent models.ParentRef) ([]models.LessonAttendance, error)
}

type behaviorReader interface {
	ListBySession(ctx context.Context, exec sqlx.ExtContext, sessionID string) ([]models.BehaviorRecord, error)
}

type rosterReader interface {
	ActiveStudentIDs(ctx context.Context, classID string) ([]string, error)
}

type lessonStatsWriter interface {
	UpdateAttendanceStats(ctx context.Context, exec sqlx.ExtContext, id string, expected, present int, rate float64) error
}

type sessionStatsWriter interface {
	UpdateStats(ctx context.Context, exec sqlx.ExtContext, session *models.LessonSession) error
}

// StatsRefresher recomputes the rolled-up counters stored on lessons and sessions.
// Passing a transaction as exec keeps the reads consistent with the surrounding write.
type StatsRefresher struct {
	attendance attendanceReader
	behavior   behaviorReader
	roster     rosterReader
	lessons    lessonStatsWriter
	sessions   sessionStatsWriter
}

// NewStatsRefresher constructs the refresher.
func NewStatsRefresher(attendance attendanceReader, behavior behaviorReader, roster rosterReader, lessons lessonStatsWriter, sessions sessionStatsWriter) *StatsRefresher {
	return &StatsRefresher{attendance: attendance, behavior: behavior, roster: roster, lessons: lessons, sessions: sessions}
}

// LessonView returns the roster-synthesized attendance view of a lesson.
func (r *StatsRefresher) LessonView(ctx context.Context, exec sqlx.ExtContext, lesson *models.Lesson) ([]models.AttendanceRow, error) {
	roster, err := r.roster.ActiveStudentIDs(ctx, lesson.ClassID)
	if err != nil {
		return nil, err
	}
	records, err := r.attendance.ListByParent(ctx, exec, models.LessonRef(lesson.ID))
	if err != nil {
		return nil, err
	}
	return BuildLessonView(roster, records), nil
}

// SessionView returns the explicitly recorded marks of a session.
func (r *StatsRefresher) SessionView(ctx context.Context, exec sqlx.ExtContext, session *models.LessonSession) ([]models.AttendanceRow, error) {
	records, err := r.attendance.ListByParent(ctx, exec, models.SessionRef(session.ID))
	if err != nil {
		return nil, err
	}
	return BuildSessionView(records), nil
}

// ComputeLesson sets expected, present and rate on lesson without persisting them.
func (r *StatsRefresher) ComputeLesson(ctx context.Context, exec sqlx.ExtContext, lesson *models.Lesson) (models.AttendanceSummary, error) {
	rows, err := r.LessonView(ctx, exec, lesson)
	if err != nil {
		return models.AttendanceSummary{}, err
	}
	summary := SummarizeRows(rows)
	lesson.ExpectedCount = summary.Total
	lesson.PresentCount = summary.Present
	lesson.AttendanceRate = summary.Percentage
	return summary, nil
}

// RefreshLesson recomputes and stores a lesson's attendance figures.
func (r *StatsRefresher) RefreshLesson(ctx context.Context, exec sqlx.ExtContext, lesson *models.Lesson) (models.AttendanceSummary, error) {
	summary, err := r.ComputeLesson(ctx, exec, lesson)
	if err != nil {
		return summary, err
	}
	if err := r.lessons.UpdateAttendanceStats(ctx, exec, lesson.ID, lesson.ExpectedCount, lesson.PresentCount, lesson.AttendanceRate); err != nil {
		return summary, err
	}
	return summary, nil
}

// ComputeSession runs both aggregators and applies the result to session without persisting it.
func (r *StatsRefresher) ComputeSession(ctx context.Context, exec sqlx.ExtContext, session *models.LessonSession) (models.AttendanceSummary, error) {
	rows, err := r.SessionView(ctx, exec, session)
	if err != nil {
		return models.AttendanceSummary{}, err
	}
	records, err := r.behavior.ListBySession(ctx, exec, session.ID)
	if err != nil {
		return models.AttendanceSummary{}, err
	}
	attendance := SummarizeRows(rows)
	session.ApplyStats(attendance, SummarizeBehavior(records))
	return attendance, nil
}

// RefreshSession recomputes and stores a session's attendance and behavior counters.
func (r *StatsRefresher) RefreshSession(ctx context.Context, exec sqlx.ExtContext, session *models.LessonSession) (models.AttendanceSummary, error) {
	summary, err := r.ComputeSession(ctx, exec, session)
	if err != nil {
		return summary, err
	}
	if err := r.sessions.UpdateStats(ctx, exec, session); err != nil {
		return summary, err
	}
	return summary, nil
}

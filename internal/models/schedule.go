package models

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/jmoiron/sqlx/types"
)

// DayOfWeek is the weekday a recurring schedule meets on.
type DayOfWeek string

const (
	Monday    DayOfWeek = "monday"
	Tuesday   DayOfWeek = "tuesday"
	Wednesday DayOfWeek = "wednesday"
	Thursday  DayOfWeek = "thursday"
	Friday    DayOfWeek = "friday"
	Saturday  DayOfWeek = "saturday"
	Sunday    DayOfWeek = "sunday"
)

var weekdays = map[DayOfWeek]time.Weekday{
	Monday:    time.Monday,
	Tuesday:   time.Tuesday,
	Wednesday: time.Wednesday,
	Thursday:  time.Thursday,
	Friday:    time.Friday,
	Saturday:  time.Saturday,
	Sunday:    time.Sunday,
}

// ParseDayOfWeek normalises user input such as "Friday" or " FRIDAY ".
func ParseDayOfWeek(raw string) (DayOfWeek, bool) {
	day := DayOfWeek(strings.ToLower(strings.TrimSpace(raw)))
	_, ok := weekdays[day]
	return day, ok
}

// Valid reports whether d is one of the seven weekdays.
func (d DayOfWeek) Valid() bool {
	_, ok := weekdays[d]
	return ok
}

// Weekday converts d into the time package representation.
func (d DayOfWeek) Weekday() time.Weekday {
	return weekdays[d]
}

// ScheduleStatus tracks whether a recurring slot is still in effect.
type ScheduleStatus string

const (
	ScheduleStatusActive    ScheduleStatus = "active"
	ScheduleStatusSuspended ScheduleStatus = "suspended"
	ScheduleStatusCancelled ScheduleStatus = "cancelled"
	ScheduleStatusCompleted ScheduleStatus = "completed"
)

// Valid returns true when the status is a supported value.
func (s ScheduleStatus) Valid() bool {
	switch s {
	case ScheduleStatusActive, ScheduleStatusSuspended, ScheduleStatusCancelled, ScheduleStatusCompleted:
		return true
	default:
		return false
	}
}

// Schedule is a recurring weekly time slot for a class and subject.
type Schedule struct {
	ID         string         `db:"id" json:"id"`
	TenantID   string         `db:"tenant_id" json:"tenant_id"`
	SchoolID   string         `db:"school_id" json:"school_id"`
	SubjectID  string         `db:"subject_id" json:"subject_id"`
	ClassID    string         `db:"class_id" json:"class_id"`
	TeacherID  *string        `db:"teacher_id" json:"teacher_id,omitempty"`
	Classroom  *string        `db:"classroom" json:"classroom,omitempty"`
	DayOfWeek  DayOfWeek      `db:"day_of_week" json:"day_of_week"`
	StartTime  string         `db:"start_time" json:"start_time"`
	EndTime    string         `db:"end_time" json:"end_time"`
	StartDate  time.Time      `db:"start_date" json:"start_date"`
	EndDate    time.Time      `db:"end_date" json:"end_date"`
	Recurrence types.JSONText `db:"recurrence" json:"recurrence,omitempty"`
	Status     ScheduleStatus `db:"status" json:"status"`
	CreatedAt  time.Time      `db:"created_at" json:"created_at"`
	UpdatedAt  time.Time      `db:"updated_at" json:"updated_at"`
}

// ScheduleFilter describes query params for listing schedules.
type ScheduleFilter struct {
	TenantID  string
	SchoolID  string
	ClassID   string
	TeacherID string
	DayOfWeek DayOfWeek
	Status    ScheduleStatus
	Page      int
	PageSize  int
}

// ConflictType names the dimension along which two schedules collide.
type ConflictType string

const (
	ConflictTeacher   ConflictType = "teacher"
	ConflictClassroom ConflictType = "classroom"
	ConflictClass     ConflictType = "class"
	ConflictOther     ConflictType = "other"
)

// ConflictSeverity distinguishes hard collisions from shareable ones.
type ConflictSeverity string

const (
	SeverityWarning ConflictSeverity = "warning"
	SeverityError   ConflictSeverity = "error"
)

// ScheduleConflict describes one existing schedule colliding with a candidate on one dimension.
type ScheduleConflict struct {
	Type       ConflictType     `json:"type"`
	Severity   ConflictSeverity `json:"severity"`
	Message    string           `json:"message"`
	ScheduleID string           `json:"schedule_id"`
	DayOfWeek  DayOfWeek        `json:"day_of_week"`
	StartTime  string           `json:"start_time"`
	EndTime    string           `json:"end_time"`
}

// ConflictCandidate is the slot being validated before a schedule is persisted.
type ConflictCandidate struct {
	TeacherID *string
	ClassID   string
	Classroom *string
	DayOfWeek DayOfWeek
	StartTime string
	EndTime   string
}

// Candidate projects a schedule onto the fields the conflict detector compares.
func (s Schedule) Candidate() ConflictCandidate {
	return ConflictCandidate{
		TeacherID: s.TeacherID,
		ClassID:   s.ClassID,
		Classroom: s.Classroom,
		DayOfWeek: s.DayOfWeek,
		StartTime: s.StartTime,
		EndTime:   s.EndTime,
	}
}

// ParseClock converts "HH:MM" or "HH:MM:SS" into minutes past midnight.
func ParseClock(raw string) (int, error) {
	parts := strings.Split(strings.TrimSpace(raw), ":")
	if len(parts) < 2 || len(parts) > 3 {
		return 0, fmt.Errorf("invalid time %q, expected HH:MM", raw)
	}
	hour, err := strconv.Atoi(parts[0])
	if err != nil || hour < 0 || hour > 23 {
		return 0, fmt.Errorf("invalid hour in %q", raw)
	}
	minute, err := strconv.Atoi(parts[1])
	if err != nil || minute < 0 || minute > 59 {
		return 0, fmt.Errorf("invalid minute in %q", raw)
	}
	if len(parts) == 3 {
		if sec, err := strconv.Atoi(parts[2]); err != nil || sec < 0 || sec > 59 {
			return 0, fmt.Errorf("invalid second in %q", raw)
		}
	}
	return hour*60 + minute, nil
}

// NormalizeClock renders a clock value as zero-padded "HH:MM".
func NormalizeClock(raw string) (string, error) {
	minutes, err := ParseClock(raw)
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("%02d:%02d", minutes/60, minutes%60), nil
}

// DateOnly truncates t to midnight UTC of its calendar date.
func DateOnly(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

package models

import (
	"time"

	"github.com/lib/pq"
)

// SessionStatus is the lifecycle state of a teacher-started class session.
type SessionStatus string

const (
	SessionStatusInProgress SessionStatus = "in_progress"
	SessionStatusCompleted  SessionStatus = "completed"
	SessionStatusCancelled  SessionStatus = "cancelled"
)

// LessonSession is an ad-hoc class meeting captured in real time, optionally linked to a schedule.
type LessonSession struct {
	ID                    string         `db:"id" json:"id"`
	TenantID              string         `db:"tenant_id" json:"tenant_id"`
	SchoolID              string         `db:"school_id" json:"school_id"`
	ScheduleID            *string        `db:"schedule_id" json:"schedule_id,omitempty"`
	TeacherID             string         `db:"teacher_id" json:"teacher_id"`
	SubjectID             *string        `db:"subject_id" json:"subject_id,omitempty"`
	ClassID               string         `db:"class_id" json:"class_id"`
	Classroom             *string        `db:"classroom" json:"classroom,omitempty"`
	StartedAt             time.Time      `db:"started_at" json:"started_at"`
	EndedAt               *time.Time     `db:"ended_at" json:"ended_at,omitempty"`
	DurationSeconds       *int64         `db:"duration_seconds" json:"duration_seconds,omitempty"`
	Status                SessionStatus  `db:"status" json:"status"`
	LessonNote            *string        `db:"lesson_note" json:"lesson_note,omitempty"`
	LessonTags            pq.StringArray `db:"lesson_tags" json:"lesson_tags"`
	CancelReason          *string        `db:"cancel_reason" json:"cancel_reason,omitempty"`
	PresentCount          int            `db:"present_count" json:"present_count"`
	AbsentCount           int            `db:"absent_count" json:"absent_count"`
	LateCount             int            `db:"late_count" json:"late_count"`
	ExcusedCount          int            `db:"excused_count" json:"excused_count"`
	UnmarkedCount         int            `db:"unmarked_count" json:"unmarked_count"`
	AttendanceRate        float64        `db:"attendance_rate" json:"attendance_rate"`
	BehaviorTotalPoints   int            `db:"behavior_total_points" json:"behavior_total_points"`
	BehaviorPositiveCount int            `db:"behavior_positive_count" json:"behavior_positive_count"`
	BehaviorNegativeCount int            `db:"behavior_negative_count" json:"behavior_negative_count"`
	CreatedAt             time.Time      `db:"created_at" json:"created_at"`
	UpdatedAt             time.Time      `db:"updated_at" json:"updated_at"`
}

// ApplyStats copies aggregator output onto the session's rolled-up counters.
func (s *LessonSession) ApplyStats(attendance AttendanceSummary, behavior BehaviorSummary) {
	s.PresentCount = attendance.Present
	s.AbsentCount = attendance.Absent
	s.LateCount = attendance.Late
	s.ExcusedCount = attendance.Excused
	s.UnmarkedCount = attendance.Unmarked
	s.AttendanceRate = attendance.Percentage
	s.BehaviorTotalPoints = behavior.TotalPoints
	s.BehaviorPositiveCount = behavior.PositiveCount
	s.BehaviorNegativeCount = behavior.NegativeCount
}

// StartSessionParams holds the caller-supplied values for starting a session.
// Empty identifiers are resolved from the schedule, the class and finally the actor.
type StartSessionParams struct {
	ScheduleID *string  `json:"schedule_id"`
	ClassID    string   `json:"class_id"`
	TeacherID  string   `json:"teacher_id"`
	SchoolID   string   `json:"school_id"`
	TenantID   string   `json:"tenant_id"`
	SubjectID  *string  `json:"subject_id"`
	Classroom  *string  `json:"classroom"`
	LessonNote *string  `json:"lesson_note"`
	LessonTags []string `json:"lesson_tags"`
}

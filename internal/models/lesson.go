package models

import "time"

// LessonStatus is the lifecycle state of a dated lesson occurrence.
type LessonStatus string

const (
	LessonStatusScheduled     LessonStatus = "scheduled"
	LessonStatusInProgress    LessonStatus = "in_progress"
	LessonStatusCompleted     LessonStatus = "completed"
	LessonStatusCancelled     LessonStatus = "cancelled"
	LessonStatusPostponed     LessonStatus = "postponed"
	LessonStatusAbsentTeacher LessonStatus = "absent_teacher"
)

// lessonTransitions lists the statuses reachable from each lesson status.
var lessonTransitions = map[LessonStatus][]LessonStatus{
	LessonStatusScheduled: {
		LessonStatusInProgress,
		LessonStatusCancelled,
		LessonStatusPostponed,
		LessonStatusAbsentTeacher,
	},
	LessonStatusInProgress: {
		LessonStatusCompleted,
		LessonStatusCancelled,
	},
	LessonStatusPostponed: {
		LessonStatusScheduled,
		LessonStatusCancelled,
	},
}

// CanTransitionTo reports whether the lesson state machine allows moving from s to next.
func (s LessonStatus) CanTransitionTo(next LessonStatus) bool {
	for _, allowed := range lessonTransitions[s] {
		if allowed == next {
			return true
		}
	}
	return false
}

// AcceptsMarks reports whether attendance may still be recorded against the lesson.
func (s LessonStatus) AcceptsMarks() bool {
	return s == LessonStatusScheduled || s == LessonStatusInProgress
}

// LessonType classifies how a lesson came to exist.
type LessonType string

const (
	LessonTypeRegular LessonType = "regular"
	LessonTypeMakeup  LessonType = "makeup"
	LessonTypeExtra   LessonType = "extra"
	LessonTypeExam    LessonType = "exam"
)

// Valid reports whether t is a known lesson type.
func (t LessonType) Valid() bool {
	switch t {
	case LessonTypeRegular, LessonTypeMakeup, LessonTypeExtra, LessonTypeExam:
		return true
	default:
		return false
	}
}

// Lesson is one concrete dated occurrence of a schedule, or a manually created one.
type Lesson struct {
	ID             string       `db:"id" json:"id"`
	TenantID       string       `db:"tenant_id" json:"tenant_id"`
	SchoolID       string       `db:"school_id" json:"school_id"`
	ScheduleID     *string      `db:"schedule_id" json:"schedule_id,omitempty"`
	SubjectID      string       `db:"subject_id" json:"subject_id"`
	ClassID        string       `db:"class_id" json:"class_id"`
	TeacherID      *string      `db:"teacher_id" json:"teacher_id,omitempty"`
	LessonDate     time.Time    `db:"lesson_date" json:"lesson_date"`
	StartTime      string       `db:"start_time" json:"start_time"`
	EndTime        string       `db:"end_time" json:"end_time"`
	Classroom      *string      `db:"classroom" json:"classroom,omitempty"`
	Status         LessonStatus `db:"status" json:"status"`
	Type           LessonType   `db:"type" json:"type"`
	ExpectedCount  int          `db:"expected_count" json:"expected_count"`
	PresentCount   int          `db:"present_count" json:"present_count"`
	AttendanceRate float64      `db:"attendance_rate" json:"attendance_rate"`
	Content        *string      `db:"content" json:"content,omitempty"`
	Homework       *string      `db:"homework" json:"homework,omitempty"`
	Notes          *string      `db:"notes" json:"notes,omitempty"`
	CancelReason   *string      `db:"cancel_reason" json:"cancel_reason,omitempty"`
	StartedAt      *time.Time   `db:"started_at" json:"started_at,omitempty"`
	CompletedAt    *time.Time   `db:"completed_at" json:"completed_at,omitempty"`
	CreatedAt      time.Time    `db:"created_at" json:"created_at"`
	UpdatedAt      time.Time    `db:"updated_at" json:"updated_at"`
}

// LessonFilter scopes lesson listings.
type LessonFilter struct {
	TenantID   string
	SchoolID   string
	ClassID    string
	TeacherID  string
	ScheduleID string
	Status     LessonStatus
	DateFrom   *time.Time
	DateTo     *time.Time
	Page       int
	PageSize   int
}

// LessonCompletion carries the fields captured when a lesson is completed.
type LessonCompletion struct {
	Content  *string `json:"content"`
	Homework *string `json:"homework"`
	Notes    *string `json:"notes"`
}

// GenerationResult reports how many lessons a schedule implies and how many were new.
type GenerationResult struct {
	ScheduleID string      `json:"schedule_id"`
	Created    int         `json:"created"`
	Existing   int         `json:"existing"`
	Total      int         `json:"total"`
	Dates      []time.Time `json:"dates,omitempty"`
}

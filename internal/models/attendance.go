package models

import "time"

// AttendanceStatus is a per-student mark. Lessons and sessions accept different subsets.
type AttendanceStatus string

const (
	AttendancePresent       AttendanceStatus = "present"
	AttendanceAbsent        AttendanceStatus = "absent"
	AttendanceLate          AttendanceStatus = "late"
	AttendanceExcused       AttendanceStatus = "excused"
	AttendanceLeftEarly     AttendanceStatus = "left_early"
	AttendancePartial       AttendanceStatus = "partial"
	AttendanceOnlinePresent AttendanceStatus = "online_present"
	AttendanceUnmarked      AttendanceStatus = "unmarked"
)

// ValidForLesson reports whether s belongs to the lesson vocabulary.
func (s AttendanceStatus) ValidForLesson() bool {
	switch s {
	case AttendancePresent, AttendanceAbsent, AttendanceLate, AttendanceExcused,
		AttendanceLeftEarly, AttendancePartial, AttendanceOnlinePresent:
		return true
	default:
		return false
	}
}

// ValidForSession reports whether s belongs to the session vocabulary.
func (s AttendanceStatus) ValidForSession() bool {
	switch s {
	case AttendancePresent, AttendanceAbsent, AttendanceLate, AttendanceExcused, AttendanceUnmarked:
		return true
	default:
		return false
	}
}

// CountsAsPresent reports whether s contributes to the attendance percentage.
func (s AttendanceStatus) CountsAsPresent() bool {
	return s == AttendancePresent || s == AttendanceLate || s == AttendanceOnlinePresent
}

// ParentKind tells which meeting an attendance record belongs to.
type ParentKind string

const (
	ParentLesson  ParentKind = "lesson"
	ParentSession ParentKind = "session"
)

// ParentRef points at either a Lesson or a LessonSession.
type ParentRef struct {
	Kind ParentKind `json:"kind"`
	ID   string     `json:"id"`
}

// LessonRef builds a reference to a lesson.
func LessonRef(id string) ParentRef { return ParentRef{Kind: ParentLesson, ID: id} }

// SessionRef builds a reference to a lesson session.
func SessionRef(id string) ParentRef { return ParentRef{Kind: ParentSession, ID: id} }

// AcceptsStatus validates s against the vocabulary of the referenced parent.
func (p ParentRef) AcceptsStatus(s AttendanceStatus) bool {
	if p.Kind == ParentSession {
		return s.ValidForSession()
	}
	return s.ValidForLesson()
}

// LessonAttendance is one student's mark for a lesson or a session. Exactly one parent id is set.
type LessonAttendance struct {
	ID              string           `db:"id" json:"id"`
	LessonID        *string          `db:"lesson_id" json:"lesson_id,omitempty"`
	LessonSessionID *string          `db:"lesson_session_id" json:"lesson_session_id,omitempty"`
	StudentID       string           `db:"student_id" json:"student_id"`
	Status          AttendanceStatus `db:"status" json:"status"`
	Note            *string          `db:"note" json:"note,omitempty"`
	MarkedBy        *string          `db:"marked_by" json:"marked_by,omitempty"`
	MarkedAt        time.Time        `db:"marked_at" json:"marked_at"`
	CreatedAt       time.Time        `db:"created_at" json:"created_at"`
	UpdatedAt       time.Time        `db:"updated_at" json:"updated_at"`
}

// Parent returns the reference of whichever parent id is populated.
func (a LessonAttendance) Parent() ParentRef {
	if a.LessonSessionID != nil {
		return SessionRef(*a.LessonSessionID)
	}
	if a.LessonID != nil {
		return LessonRef(*a.LessonID)
	}
	return ParentRef{}
}

// StudentMark is a single requested mark inside a batch.
type StudentMark struct {
	StudentID string           `json:"student_id"`
	Status    AttendanceStatus `json:"status"`
	Note      *string          `json:"note"`
}

// AttendanceMarkError reports a per-student failure inside a batch.
type AttendanceMarkError struct {
	StudentID string `json:"student_id"`
	Reason    string `json:"reason"`
}

// MarkAttendanceResult summarises a batch of marks; failures never abort the batch.
type MarkAttendanceResult struct {
	Parent  ParentRef             `json:"parent"`
	Marked  int                   `json:"marked"`
	Skipped []string              `json:"skipped,omitempty"`
	Errors  []AttendanceMarkError `json:"errors,omitempty"`
	Summary *AttendanceSummary    `json:"summary,omitempty"`
}

// AttendanceSummary is the aggregate over a set of marks.
type AttendanceSummary struct {
	Present    int     `json:"present_count"`
	Absent     int     `json:"absent_count"`
	Late       int     `json:"late_count"`
	Excused    int     `json:"excused_count"`
	Unmarked   int     `json:"unmarked_count"`
	Total      int     `json:"total"`
	Percentage float64 `json:"percentage"`
}

// AttendanceRow is one line of an attendance view. Synthesized rows have no record behind them.
type AttendanceRow struct {
	StudentID   string           `json:"student_id"`
	Status      AttendanceStatus `json:"status"`
	Note        *string          `json:"note,omitempty"`
	MarkedAt    *time.Time       `json:"marked_at,omitempty"`
	Synthesized bool             `json:"synthesized"`
}

package models

import "time"

// BehaviorType is derived from the sign of a record's points.
type BehaviorType string

const (
	BehaviorPositive BehaviorType = "positive"
	BehaviorNegative BehaviorType = "negative"
)

// BehaviorTypeFor derives the stored type for a point value. Zero is stored as positive
// but is counted in neither bucket when summarising.
func BehaviorTypeFor(points int) BehaviorType {
	if points < 0 {
		return BehaviorNegative
	}
	return BehaviorPositive
}

// BehaviorRecord captures a point-valued observation for a student during a session.
type BehaviorRecord struct {
	ID              string       `db:"id" json:"id"`
	LessonSessionID string       `db:"lesson_session_id" json:"lesson_session_id"`
	StudentID       string       `db:"student_id" json:"student_id"`
	Points          int          `db:"points" json:"points"`
	Type            BehaviorType `db:"type" json:"type"`
	Category        *string      `db:"category" json:"category,omitempty"`
	Note            *string      `db:"note" json:"note,omitempty"`
	RecordedBy      *string      `db:"recorded_by" json:"recorded_by,omitempty"`
	CreatedAt       time.Time    `db:"created_at" json:"created_at"`
	UpdatedAt       time.Time    `db:"updated_at" json:"updated_at"`
}

// BehaviorSummary aggregates points over a set of behavior records.
type BehaviorSummary struct {
	TotalPoints   int `json:"total_points"`
	PositiveCount int `json:"positive_count"`
	NegativeCount int `json:"negative_count"`
}

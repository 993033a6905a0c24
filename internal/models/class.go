package models

// Class is the subset of the class record the scheduling core reads.
type Class struct {
	ID                string  `db:"id" json:"id"`
	TenantID          string  `db:"tenant_id" json:"tenant_id"`
	SchoolID          string  `db:"school_id" json:"school_id"`
	Name              string  `db:"name" json:"name"`
	HomeroomTeacherID *string `db:"homeroom_teacher_id" json:"homeroom_teacher_id,omitempty"`
}

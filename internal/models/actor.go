package models

// CurrentTenantProvider exposes the tenant the caller acts within.
type CurrentTenantProvider interface {
	CurrentTenantID() string
}

// CurrentSchoolProvider exposes the school the caller acts within.
type CurrentSchoolProvider interface {
	CurrentSchoolID() string
}

// CurrentTeacherProvider exposes the teacher profile linked to the caller, if any.
type CurrentTeacherProvider interface {
	CurrentTeacherID() string
}

// ScopeProvider is everything the scheduling services need to know about the caller.
type ScopeProvider interface {
	CurrentTenantProvider
	CurrentSchoolProvider
	CurrentTeacherProvider
	CurrentUserID() string
}

// Actor is the explicit request scope. Every service operation receives one.
type Actor struct {
	UserID    string
	Role      UserRole
	TenantID  string
	SchoolID  string
	TeacherID string
}

// CurrentTenantID implements CurrentTenantProvider.
func (a Actor) CurrentTenantID() string {
	return a.TenantID
}

// CurrentSchoolID implements CurrentSchoolProvider.
func (a Actor) CurrentSchoolID() string {
	return a.SchoolID
}

// CurrentTeacherID implements CurrentTeacherProvider.
func (a Actor) CurrentTeacherID() string {
	return a.TeacherID
}

// CurrentUserID returns the authenticated user id.
func (a Actor) CurrentUserID() string {
	return a.UserID
}

// Owns reports whether a row scoped to tenantID/schoolID is visible to the provider.
// An empty tenant on either side is treated as single-tenant deployment.
func Owns(p ScopeProvider, tenantID, schoolID string) bool {
	if p == nil {
		return false
	}
	if p.CurrentSchoolID() != schoolID {
		return false
	}
	if p.CurrentTenantID() != "" && tenantID != "" && p.CurrentTenantID() != tenantID {
		return false
	}
	return true
}

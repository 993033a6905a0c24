package models

import "github.com/golang-jwt/jwt/v5"

// JWTClaims represents the JWT payload issued by the platform's identity service.
type JWTClaims struct {
	UserID    string   `json:"user_id"`
	Role      UserRole `json:"role"`
	TenantID  string   `json:"tenant_id"`
	SchoolID  string   `json:"school_id"`
	TeacherID string   `json:"teacher_id,omitempty"`
	jwt.RegisteredClaims
}

// Actor converts the token payload into the explicit request scope passed to services.
func (c *JWTClaims) Actor() Actor {
	if c == nil {
		return Actor{}
	}
	return Actor{
		UserID:    c.UserID,
		Role:      c.Role,
		TenantID:  c.TenantID,
		SchoolID:  c.SchoolID,
		TeacherID: c.TeacherID,
	}
}

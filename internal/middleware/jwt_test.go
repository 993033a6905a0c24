package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/sma-schedule-engine/internal/models"
	appErrors "github.com/noah-isme/sma-schedule-engine/pkg/errors"
)

type tokenValidatorStub struct {
	claims *models.JWTClaims
	err    error
	token  string
}

func (s *tokenValidatorStub) ValidateToken(token string) (*models.JWTClaims, error) {
	s.token = token
	return s.claims, s.err
}

func newProtectedRouter(validator TokenValidator, roles ...models.UserRole) (*gin.Engine, *models.Actor) {
	gin.SetMode(gin.TestMode)
	seen := &models.Actor{}
	r := gin.New()
	handlers := []gin.HandlerFunc{JWT(validator)}
	if len(roles) > 0 {
		handlers = append(handlers, RequireRoles(roles...))
	}
	handlers = append(handlers, func(c *gin.Context) {
		actor, ok := ActorFromContext(c)
		if ok {
			*seen = actor
		}
		c.Status(http.StatusNoContent)
	})
	r.GET("/protected", handlers...)
	return r, seen
}

func TestJWTStoresActor(t *testing.T) {
	stub := &tokenValidatorStub{claims: &models.JWTClaims{UserID: "user-1", Role: models.RoleTeacher, SchoolID: "school-1", TeacherID: "teacher-1"}}
	r, seen := newProtectedRouter(stub)

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/protected", nil)
	req.Header.Set("Authorization", "Bearer abc.def")
	r.ServeHTTP(w, req)

	require.Equal(t, http.StatusNoContent, w.Code)
	assert.Equal(t, "abc.def", stub.token)
	assert.Equal(t, "teacher-1", seen.TeacherID)
	assert.Equal(t, "school-1", seen.SchoolID)
}

func TestJWTRejectsMissingOrMalformedHeader(t *testing.T) {
	r, _ := newProtectedRouter(&tokenValidatorStub{})

	for _, header := range []string{"", "Token abc", "Bearer"} {
		w := httptest.NewRecorder()
		req := httptest.NewRequest(http.MethodGet, "/protected", nil)
		if header != "" {
			req.Header.Set("Authorization", header)
		}
		r.ServeHTTP(w, req)
		assert.Equal(t, http.StatusUnauthorized, w.Code, header)
	}
}

func TestJWTPropagatesValidatorError(t *testing.T) {
	r, _ := newProtectedRouter(&tokenValidatorStub{err: appErrors.Clone(appErrors.ErrUnauthorized, "invalid token")})

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/protected", nil)
	req.Header.Set("Authorization", "Bearer nope")
	r.ServeHTTP(w, req)
	assert.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestRequireRolesForbidsOtherRoles(t *testing.T) {
	stub := &tokenValidatorStub{claims: &models.JWTClaims{UserID: "user-1", Role: models.RoleStudent, SchoolID: "school-1"}}
	r, _ := newProtectedRouter(stub, models.RoleAdmin, models.RoleTeacher)

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/protected", nil)
	req.Header.Set("Authorization", "Bearer abc")
	r.ServeHTTP(w, req)
	assert.Equal(t, http.StatusForbidden, w.Code)
}

package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"

	"github.com/gradeforge/gradeforge-api/internal/models"
)

func newRBACTestRouter(claims *models.JWTClaims, allowed ...models.UserRole) *gin.Engine {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.GET("/admin-only", func(c *gin.Context) {
		if claims != nil {
			c.Set(ContextUserKey, claims)
		}
		c.Next()
	}, RequireRoles(allowed...), func(c *gin.Context) {
		c.Status(http.StatusOK)
	})
	return r
}

func TestRequireRolesAllowsMatchingRole(t *testing.T) {
	r := newRBACTestRouter(&models.JWTClaims{UserID: "admin-1", Role: models.RoleAdmin}, models.RoleAdmin)
	w := httptest.NewRecorder()
	req, _ := http.NewRequest(http.MethodGet, "/admin-only", nil)

	r.ServeHTTP(w, req)
	assert.Equal(t, http.StatusOK, w.Code)
}

func TestRequireRolesRejectsOtherRole(t *testing.T) {
	r := newRBACTestRouter(&models.JWTClaims{UserID: "student-1", Role: models.RoleStudent}, models.RoleAdmin)
	w := httptest.NewRecorder()
	req, _ := http.NewRequest(http.MethodGet, "/admin-only", nil)

	r.ServeHTTP(w, req)
	assert.Equal(t, http.StatusForbidden, w.Code)
}

func TestRequireRolesRejectsMissingClaims(t *testing.T) {
	r := newRBACTestRouter(nil, models.RoleAdmin)
	w := httptest.NewRecorder()
	req, _ := http.NewRequest(http.MethodGet, "/admin-only", nil)

	r.ServeHTTP(w, req)
	assert.Equal(t, http.StatusUnauthorized, w.Code)
}

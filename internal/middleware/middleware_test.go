package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Leela143-143/MUN/internal/auth"
	"github.com/Leela143-143/MUN/internal/models"
)

func jwtRouter(svc *auth.JWTService) *gin.Engine {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.GET("/protected", JWT(svc), func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{
			"uid":  c.MustGet(ContextUserID).(uuid.UUID),
			"role": c.MustGet(ContextUserRole).(models.Role),
		})
	})
	return r
}

func TestJWTMiddlewareNoToken(t *testing.T) {
	r := jwtRouter(auth.NewJWTService("test-secret", 1))
	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/protected", nil))
	assert.Equal(t, http.StatusUnauthorized, w.Code)
	assert.Contains(t, w.Body.String(), "No token provided")
}

func TestJWTMiddlewareInvalidToken(t *testing.T) {
	r := jwtRouter(auth.NewJWTService("test-secret", 1))
	req := httptest.NewRequest(http.MethodGet, "/protected", nil)
	req.Header.Set("Authorization", "Bearer not-a-token")
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	assert.Equal(t, http.StatusUnauthorized, w.Code)
	assert.Contains(t, w.Body.String(), "Invalid token")
}

func TestJWTMiddlewareValidToken(t *testing.T) {
	svc := auth.NewJWTService("test-secret", 1)
	id := uuid.New()
	token, err := svc.Generate(id, "user@example.com", models.RoleAdmin)
	require.NoError(t, err)

	r := jwtRouter(svc)
	for _, header := range []string{"Bearer " + token, token} {
		req := httptest.NewRequest(http.MethodGet, "/protected", nil)
		req.Header.Set("Authorization", header)
		w := httptest.NewRecorder()
		r.ServeHTTP(w, req)
		assert.Equal(t, http.StatusOK, w.Code)
		assert.Contains(t, w.Body.String(), id.String())
	}
}

func TestRequireRole(t *testing.T) {
	gin.SetMode(gin.TestMode)
	cases := []struct {
		name string
		role models.Role
		want int
	}{
		{"owner allowed", models.RoleOwner, http.StatusOK},
		{"admin allowed", models.RoleAdmin, http.StatusOK},
		{"user denied", models.RoleUser, http.StatusForbidden},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			r := gin.New()
			r.GET("/admin-only", func(c *gin.Context) {
				c.Set(ContextUserRole, tc.role)
				c.Next()
			}, RequireRole(models.RoleAdmin, models.RoleOwner), func(c *gin.Context) {
				c.Status(http.StatusOK)
			})
			w := httptest.NewRecorder()
			r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/admin-only", nil))
			assert.Equal(t, tc.want, w.Code)
		})
	}
}

func TestRequireRoleMissingClaims(t *testing.T) {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.GET("/admin-only", RequireRole(models.RoleAdmin), func(c *gin.Context) {
		c.Status(http.StatusOK)
	})
	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/admin-only", nil))
	assert.Equal(t, http.StatusUnauthorized, w.Code)
}

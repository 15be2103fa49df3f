package middleware

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"taskboard-api/internal/apperr"
	"taskboard-api/internal/auth"
	"taskboard-api/internal/config"
	"taskboard-api/internal/models"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/require"
)

func testIssuer() *auth.Issuer {
	return auth.NewIssuer(&config.AuthEnv{JWTSecret: "s", JWTIssuer: "i", JWTAudience: "a"})
}

// roleTable is the stored role of each known user.
type roleTable map[string]models.Role

func (t roleTable) RoleOf(_ context.Context, userID string) (models.Role, error) {
	if userID == "broken" {
		return 0, apperr.New(apperr.StoreFailure, "server error", errors.New("disk gone"))
	}
	role, ok := t[userID]
	if !ok {
		return 0, apperr.New(apperr.NotFound, "User not found", nil)
	}
	return role, nil
}

var testRoles = roleTable{"user-1": models.RoleMember, "user-2": models.RoleAdmin}

func newRouter(iss *auth.Issuer) *gin.Engine {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.Use(JWTAuthMiddleware(iss, testRoles))
	r.GET("/protected", func(c *gin.Context) {
		userID, role, ok := Identity(c)
		if !ok {
			c.Status(http.StatusTeapot)
			return
		}
		c.JSON(http.StatusOK, gin.H{"user_id": userID, "role": role})
	})
	return r
}

func TestJWTAuthMiddleware_Success(t *testing.T) {
	iss := testIssuer()
	r := newRouter(iss)

	token, err := iss.GenerateToken(models.User{ID: "user-1", Role: models.RoleMember})
	require.NoError(t, err)
	req := httptest.NewRequest(http.MethodGet, "/protected", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	w := httptest.NewRecorder()

	r.ServeHTTP(w, req)
	require.Equal(t, http.StatusOK, w.Code)
	require.JSONEq(t, `{"user_id":"user-1","role":"user"}`, w.Body.String())
}

func TestJWTAuthMiddleware_QueryToken(t *testing.T) {
	iss := testIssuer()
	token, err := iss.GenerateToken(models.User{ID: "user-2", Role: models.RoleAdmin})
	require.NoError(t, err)

	w := httptest.NewRecorder()
	newRouter(iss).ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/protected?token="+token, nil))
	require.Equal(t, http.StatusOK, w.Code)
}

func TestJWTAuthMiddleware_MissingHeader(t *testing.T) {
	w := httptest.NewRecorder()
	newRouter(testIssuer()).ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/protected", nil))
	require.Equal(t, http.StatusUnauthorized, w.Code)
	require.Contains(t, w.Body.String(), "unauthenticated")
}

func TestJWTAuthMiddleware_BadToken(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/protected", nil)
	req.Header.Set("Authorization", "Bearer not-a-token")
	w := httptest.NewRecorder()
	newRouter(testIssuer()).ServeHTTP(w, req)
	require.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestJWTAuthMiddleware_RoleIsReadFresh(t *testing.T) {
	iss := testIssuer()
	r := newRouter(iss)

	// issued while user-1 was an admin; the stored role is now member
	token, err := iss.GenerateToken(models.User{ID: "user-1", Role: models.RoleAdmin})
	require.NoError(t, err)
	req := httptest.NewRequest(http.MethodGet, "/protected", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	require.Equal(t, http.StatusOK, w.Code)
	require.JSONEq(t, `{"user_id":"user-1","role":"user"}`, w.Body.String())
}

func TestJWTAuthMiddleware_UnknownOrUnreadableUser(t *testing.T) {
	iss := testIssuer()
	cases := map[string]int{
		"gone":   http.StatusUnauthorized,
		"broken": http.StatusInternalServerError,
	}
	for id, status := range cases {
		token, err := iss.GenerateToken(models.User{ID: id, Role: models.RoleAdmin})
		require.NoError(t, err)
		req := httptest.NewRequest(http.MethodGet, "/protected", nil)
		req.Header.Set("Authorization", "Bearer "+token)
		w := httptest.NewRecorder()
		newRouter(iss).ServeHTTP(w, req)
		require.Equal(t, status, w.Code, id)
	}
}

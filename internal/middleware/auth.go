package middleware

import (
	"context"
	"strings"

	"github.com/gin-gonic/gin"

	"taskboard-api/internal/apperr"
	"taskboard-api/internal/auth"
	"taskboard-api/internal/models"
)

const (
	userIDKey = "user_id"
	roleKey   = "role"
)

// RoleLookup returns the role a user holds right now.
type RoleLookup interface {
	RoleOf(ctx context.Context, userID string) (models.Role, error)
}

// JWTAuthMiddleware validates JWT token in Authorization header.
// The role comes from roles on every request, not from the token claim, so a
// role change applies to sessions already issued.
func JWTAuthMiddleware(issuer *auth.Issuer, roles RoleLookup) gin.HandlerFunc {
	return func(c *gin.Context) {
		tokenString := ""
		if authHeader := c.GetHeader("Authorization"); authHeader != "" {
			parts := strings.Split(authHeader, " ")
			if len(parts) == 2 && parts[0] == "Bearer" {
				tokenString = parts[1]
			}
		}
		// Browsers cannot set headers on a WebSocket upgrade, so the token may ride in the query string.
		if tokenString == "" {
			tokenString = c.Query("token")
		}
		if tokenString == "" {
			abort(c, apperr.New(apperr.Unauthenticated, "Authorization token is required", nil))
			return
		}

		claims, err := issuer.ValidateToken(tokenString)
		if err != nil {
			abort(c, apperr.New(apperr.Unauthenticated, "Invalid or expired token", err))
			return
		}

		role, err := roles.RoleOf(c.Request.Context(), claims.UserID)
		if apperr.Is(err, apperr.NotFound) {
			abort(c, apperr.New(apperr.Unauthenticated, "User no longer exists", err))
			return
		}
		if err != nil {
			abort(c, err)
			return
		}

		c.Set(userIDKey, claims.UserID)
		c.Set(roleKey, role)
		c.Next()
	}
}

func abort(c *gin.Context, err error) {
	code := apperr.CodeOf(err)
	_ = c.Error(err)
	c.AbortWithStatusJSON(code.HTTPStatus(), gin.H{
		"error": apperr.MessageOf(err),
		"code":  code.String(),
	})
}

// Identity returns the session set by JWTAuthMiddleware. ok is false when the request is unauthenticated.
func Identity(c *gin.Context) (userID string, role models.Role, ok bool) {
	userID = c.GetString(userIDKey)
	v, exists := c.Get(roleKey)
	if !exists || userID == "" {
		return "", 0, false
	}
	role, ok = v.(models.Role)
	return userID, role, ok && role.Valid()
}

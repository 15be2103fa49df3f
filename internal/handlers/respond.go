package handlers

import (
	"log/slog"
	"net/http"

	"github.com/gin-gonic/gin"

	"taskboard-api/internal/apperr"
	"taskboard-api/internal/middleware"
	"taskboard-api/internal/service"
)

// respondError writes err as {"error": msg, "code": name} with the status of its code.
func respondError(c *gin.Context, err error) {
	code := apperr.CodeOf(err)
	if code.HTTPStatus() >= http.StatusInternalServerError {
		slog.ErrorContext(c.Request.Context(), "request failed", "path", c.FullPath(), "error", err)
	}
	_ = c.Error(err)
	c.JSON(code.HTTPStatus(), gin.H{
		"error": apperr.MessageOf(err),
		"code":  code.String(),
	})
}

// caller reads the session. It writes a 401 and returns false when there is none.
func caller(c *gin.Context) (service.Caller, bool) {
	userID, role, ok := middleware.Identity(c)
	if !ok {
		respondError(c, apperr.New(apperr.Unauthenticated, "User not authorized", nil))
		return service.Caller{}, false
	}
	return service.Caller{UserID: userID, Role: role}, true
}

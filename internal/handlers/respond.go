package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"sync-engine/internal/apperrors"
	"sync-engine/internal/middleware"
)

// statusFor is the single translation point from error kinds to HTTP
// status codes.
func statusFor(err error) int {
	switch apperrors.KindOf(err) {
	case apperrors.KindValidation, apperrors.KindMissingPlatformData:
		return http.StatusBadRequest
	case apperrors.KindAuth:
		return http.StatusUnauthorized
	case apperrors.KindNotFound:
		return http.StatusNotFound
	case apperrors.KindConflict:
		return http.StatusConflict
	case apperrors.KindRateLimited:
		return http.StatusTooManyRequests
	default:
		return http.StatusInternalServerError
	}
}

func respondError(c *gin.Context, err error) {
	c.JSON(statusFor(err), gin.H{
		"error":   string(apperrors.KindOf(err)),
		"message": err.Error(),
	})
}

// requireUser pulls the authenticated user off the context, aborting
// with 401 when auth middleware did not run or the token was bad.
func requireUser(c *gin.Context) (uuid.UUID, bool) {
	userID, ok := middleware.GetUserID(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "auth_error", "message": "missing user identity"})
		return uuid.Nil, false
	}
	return userID, true
}

// pathUUID parses a uuid path parameter, aborting with 400 on garbage.
func pathUUID(c *gin.Context, name string) (uuid.UUID, bool) {
	id, err := uuid.Parse(c.Param(name))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "validation", "message": "invalid " + name})
		return uuid.Nil, false
	}
	return id, true
}

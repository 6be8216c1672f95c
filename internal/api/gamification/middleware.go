package gamification

import (
	"context"
	"errors"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/aimd54/lms-gamification/internal/apperrors"
	"github.com/aimd54/lms-gamification/internal/models"
	"github.com/aimd54/lms-gamification/pkg/logger"
)

const currentUserKey = "current_user"

// DefaultUserHeader is the header the auth gateway sets with the session user ID.
const DefaultUserHeader = "X-User-ID"

// UserLookup resolves session users.
type UserLookup interface {
	GetByID(ctx context.Context, id uint) (*models.User, error)
}

// SessionRequired resolves the session user from the trusted gateway header and
// aborts with 401 when it is missing, malformed or unknown.
func (h *Handler) SessionRequired() gin.HandlerFunc {
	return func(c *gin.Context) {
		raw := strings.TrimSpace(c.GetHeader(h.userHeader))
		if raw == "" {
			h.abortWithError(c, apperrors.Unauthorized("missing %s header", h.userHeader))
			return
		}

		id, err := strconv.ParseUint(raw, 10, 32)
		if err != nil || id == 0 {
			h.abortWithError(c, apperrors.Unauthorized("invalid session user %q", raw))
			return
		}

		user, err := h.users.GetByID(c.Request.Context(), uint(id))
		if err != nil {
			if errors.Is(err, apperrors.ErrNotFound) {
				err = apperrors.Unauthorized("unknown session user %d", id)
			}
			h.abortWithError(c, err)
			return
		}

		c.Set(currentUserKey, user)
		c.Next()
	}
}

// getCurrentUser returns the session user set by SessionRequired.
func getCurrentUser(c *gin.Context) *models.User {
	v, ok := c.Get(currentUserKey)
	if !ok {
		return nil
	}
	user, _ := v.(*models.User)
	return user
}

// RequestLogger logs one line per request.
func RequestLogger(log *logger.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		status := c.Writer.Status()
		event := log.Debug()
		switch {
		case status >= 500:
			event = log.Error()
		case status >= 400:
			event = log.Warn()
		}

		event.
			Str("method", c.Request.Method).
			Str("path", c.FullPath()).
			Int("status", status).
			Dur("latency", time.Since(start)).
			Msg("HTTP request")
	}
}

package middleware

import (
	"errors"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/yungbote/vidrag-backend/internal/http/response"
	"github.com/yungbote/vidrag-backend/internal/pkg/ctxutil"
)

// HeaderProfileID carries the caller's profile, set by the upstream gateway
// after it authenticates the request.
const HeaderProfileID = "X-Profile-ID"

var errMissingProfile = errors.New("missing or invalid " + HeaderProfileID + " header")

// RequireProfile rejects requests without a profile id and stores it on the
// request context.
func RequireProfile() gin.HandlerFunc {
	return func(c *gin.Context) {
		id, err := uuid.Parse(strings.TrimSpace(c.GetHeader(HeaderProfileID)))
		if err != nil || id == uuid.Nil {
			response.RespondError(c, http.StatusUnauthorized, "unauthorized", errMissingProfile)
			c.Abort()
			return
		}
		c.Request = c.Request.WithContext(ctxutil.WithProfileID(c.Request.Context(), id))
		c.Set("profile_id", id.String())
		c.Next()
	}
}

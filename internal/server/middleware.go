package server

import (
	"strconv"
	"strings"

	"github.com/bwmarrin/snowflake"
	"github.com/gin-gonic/gin"
)

const (
	HeaderUserID     = "X-User-ID"
	contextUserIDKey = "user_id"
)

// RequireUser reads the caller's id from X-User-ID. Authentication happens
// in front of this service.
func RequireUser() gin.HandlerFunc {
	return func(c *gin.Context) {
		raw := strings.TrimSpace(c.GetHeader(HeaderUserID))
		if raw == "" {
			AbortWithError(c, ErrUnauthorized)
			return
		}
		id, err := snowflake.ParseString(raw)
		if err != nil || id == 0 {
			AbortWithError(c, ErrUnauthorized)
			return
		}
		c.Set(contextUserIDKey, id)
		c.Next()
	}
}

func userIDFromContext(c *gin.Context) (snowflake.ID, bool) {
	value, ok := c.Get(contextUserIDKey)
	if !ok {
		return 0, false
	}
	id, ok := value.(snowflake.ID)
	return id, ok
}

// RateLimitCapture throttles manual capture calls per user.
func (s *Server) RateLimitCapture() gin.HandlerFunc {
	return func(c *gin.Context) {
		userID, _ := userIDFromContext(c)
		res := s.limiter.Allow(c.Request.Context(), userID.String())
		if !res.Allowed {
			if seconds := int(res.RetryAfter.Seconds() + 0.999); seconds > 0 {
				c.Header("Retry-After", strconv.Itoa(seconds))
			}
			AbortWithError(c, ErrRateLimited)
			return
		}
		c.Next()
	}
}

package server

import (
	"strings"

	"github.com/bwmarrin/snowflake"
	"github.com/gin-gonic/gin"
	"github.com/smallbiznis/mailseat/internal/auditcontext"
)

const (
	HeaderUserID     = "X-User-ID"
	contextUserIDKey = "user_id"
)

// CallerRequired identifies the caller from the X-User-ID header set by the
// upstream identity proxy. The user row itself is resolved by the service.
func (s *Server) CallerRequired() gin.HandlerFunc {
	return func(c *gin.Context) {
		raw := strings.TrimSpace(c.GetHeader(HeaderUserID))
		if raw == "" {
			AbortWithError(c, ErrUnauthorized)
			return
		}
		userID, err := snowflake.ParseString(raw)
		if err != nil || userID <= 0 {
			AbortWithError(c, ErrUnauthorized)
			return
		}

		c.Set(contextUserIDKey, userID.String())
		ctx := auditcontext.WithActor(c.Request.Context(), "user", userID.String())
		c.Request = c.Request.WithContext(ctx)
		c.Next()
	}
}

func (s *Server) callerID(c *gin.Context) (snowflake.ID, bool) {
	value, ok := c.Get(contextUserIDKey)
	if !ok {
		return 0, false
	}
	raw, ok := value.(string)
	if !ok {
		return 0, false
	}
	userID, err := snowflake.ParseString(strings.TrimSpace(raw))
	if err != nil {
		return 0, false
	}
	return userID, true
}

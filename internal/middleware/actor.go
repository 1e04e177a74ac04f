package middleware

import (
	"github.com/gin-gonic/gin"

	"github.com/examcell/smartboard/internal/auditctx"
)

// Actor stores the client address and user agent on the request context so
// audit entries written further down can attribute the request.
func Actor() gin.HandlerFunc {
	return func(c *gin.Context) {
		ctx := auditctx.WithActor(c.Request.Context(), auditctx.Actor{
			IPAddress: c.ClientIP(),
			UserAgent: c.Request.UserAgent(),
		})
		c.Request = c.Request.WithContext(ctx)
		c.Next()
	}
}

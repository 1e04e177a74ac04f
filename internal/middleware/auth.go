package middleware

import (
	"context"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/examcell/smartboard/internal/auditctx"
	iauth "github.com/examcell/smartboard/internal/auth"
	"github.com/examcell/smartboard/pkg/errors"
	"github.com/examcell/smartboard/pkg/response"
)

const (
	CtxClaimsKey    = "authClaims"
	CtxUserIDKey    = "userID"
	CtxSessionIDKey = "sessionID"
)

// SessionValidator confirms that the refresh session behind a token is live.
type SessionValidator interface {
	ValidateSession(ctx context.Context, sessionID string) error
}

// Auth enforces JWT authentication. When sessions is non-nil, tokens whose
// session was revoked or expired are rejected as well.
func Auth(jwt *iauth.JWTService, sessions SessionValidator) gin.HandlerFunc {
	return func(c *gin.Context) {
		authz := c.GetHeader("Authorization")
		if len(authz) < 8 || !strings.EqualFold(authz[:7], "Bearer ") {
			c.Header("WWW-Authenticate", "Bearer")
			response.Error(c, errors.ErrUnauthorized)
			c.Abort()
			return
		}

		token := strings.TrimSpace(authz[7:])
		claims, err := jwt.ValidateAccessToken(token)
		if err != nil {
			c.Header("WWW-Authenticate", "Bearer")
			response.Error(c, errors.ErrUnauthorized)
			c.Abort()
			return
		}

		if sessions != nil && claims.SessionID != "" {
			if err := sessions.ValidateSession(c.Request.Context(), claims.SessionID); err != nil {
				c.Header("WWW-Authenticate", "Bearer")
				response.Error(c, errors.ErrUnauthorized)
				c.Abort()
				return
			}
		}

		c.Set(CtxClaimsKey, claims)
		c.Set(CtxUserIDKey, claims.UserID)
		if claims.SessionID != "" {
			c.Set(CtxSessionIDKey, claims.SessionID)
		}
		c.Request = c.Request.WithContext(auditctx.WithUser(c.Request.Context(), claims.UserID))

		c.Next()
	}
}

package middleware

import (
	"context"
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	grpcclient "rtchat-service/internal/grpc"
	"rtchat-service/internal/log"
	"rtchat-service/internal/observability"
)

// Authenticator resolves a bearer token to a user id.
type Authenticator interface {
	Authenticate(ctx context.Context, token string) (int64, error)
}

// AuthMiddleware validates the bearer token with the identity service and stores the
// caller's id under "userID".
func AuthMiddleware(auth Authenticator) gin.HandlerFunc {
	return func(c *gin.Context) {
		token := observability.BearerToken(c.Request)
		if token == "" {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "missing authorization", "code": "unauthenticated"})
			return
		}

		ctx := c.Request.Context()
		userID, err := auth.Authenticate(ctx, token)
		if err != nil {
			if !errors.Is(err, grpcclient.ErrUnauthenticated) {
				log.Ctx(ctx).Warn().Err(err).Msg("identity service call failed")
			}
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "invalid token", "code": "unauthenticated"})
			return
		}

		logger := log.Ctx(ctx).With().Int64(log.FieldUserID, userID).Logger()
		c.Request = c.Request.WithContext(log.WithLogger(ctx, logger))
		c.Set("userID", userID)
		c.Next()
	}
}

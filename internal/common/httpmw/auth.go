package httpmw

import (
	"context"

	"github.com/gin-gonic/gin"
)

type contextKey string

const authTokenKey contextKey = "auth-token"

// AuthPassthrough captures the Authorization header so downstream renderer
// probes can forward the caller's credentials.
func AuthPassthrough() gin.HandlerFunc {
	return func(c *gin.Context) {
		if token := c.GetHeader("Authorization"); token != "" {
			ctx := context.WithValue(c.Request.Context(), authTokenKey, token)
			c.Request = c.Request.WithContext(ctx)
		}
		c.Next()
	}
}

// AuthToken returns the Authorization header captured from the inbound
// request, or an empty string when none was provided.
func AuthToken(ctx context.Context) string {
	if v, ok := ctx.Value(authTokenKey).(string); ok {
		return v
	}
	return ""
}

// WithAuthToken attaches an Authorization header value to a context that did
// not pass through the middleware.
func WithAuthToken(ctx context.Context, token string) context.Context {
	if token == "" {
		return ctx
	}
	return context.WithValue(ctx, authTokenKey, token)
}

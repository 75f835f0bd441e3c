package middleware

import (
	"strings"

	"itsm/internal/authz"
	"itsm/pkg/utils/response"

	"github.com/gin-gonic/gin"
)

// TokenParser verifies a bearer token and returns the identity it carries.
type TokenParser interface {
	Parse(raw string) (*authz.Context, error)
}

// Authenticate resolves the bearer token into a request-scoped authz.Context.
// Requests without a token pass through with no identity; permission checks
// downstream then report them as not authenticated. A token that is present
// but invalid or expired is rejected here.
func Authenticate(tokens TokenParser) gin.HandlerFunc {
	return func(c *gin.Context) {
		raw := extractBearerToken(c.GetHeader("Authorization"))
		if raw == "" {
			c.Next()
			return
		}
		ac, err := tokens.Parse(raw)
		if err != nil {
			response.AbortWithError(c, err)
			return
		}
		c.Request = c.Request.WithContext(authz.WithContext(c.Request.Context(), ac))
		c.Next()
	}
}

// Principal returns the identity set by Authenticate, or nil.
func Principal(c *gin.Context) *authz.Context {
	return authz.FromContext(c.Request.Context())
}

func extractBearerToken(authHeader string) string {
	parts := strings.SplitN(strings.TrimSpace(authHeader), " ", 2)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") {
		return ""
	}
	return strings.TrimSpace(parts[1])
}

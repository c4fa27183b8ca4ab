package middleware

import (
	"strings"

	"flowtrack/backend/internal/apperrors"
	"flowtrack/backend/internal/policy"

	"github.com/gin-gonic/gin"
)

const principalKey = "principal"

// TokenParser turns a bearer access token into the caller's principal.
type TokenParser interface {
	ParseAccessToken(token string) (policy.Principal, error)
}

// Authenticate requires a valid "Authorization: Bearer <token>" header and
// stores the resulting principal on the context. It performs no role checks;
// those belong to the services.
func Authenticate(parser TokenParser) gin.HandlerFunc {
	return func(c *gin.Context) {
		authHeader := c.GetHeader("Authorization")
		if authHeader == "" {
			apperrors.Respond(c, apperrors.Authentication("authorization header is required"))
			return
		}

		tokenStr, ok := strings.CutPrefix(authHeader, "Bearer ")
		if !ok || strings.TrimSpace(tokenStr) == "" {
			apperrors.Respond(c, apperrors.Authentication("authorization header must use bearer token"))
			return
		}

		principal, err := parser.ParseAccessToken(strings.TrimSpace(tokenStr))
		if err != nil {
			apperrors.Respond(c, err)
			return
		}

		c.Set(principalKey, principal)
		c.Next()
	}
}

// PrincipalFrom returns the principal stored by Authenticate.
func PrincipalFrom(c *gin.Context) (policy.Principal, bool) {
	v, exists := c.Get(principalKey)
	if !exists {
		return policy.Principal{}, false
	}
	p, ok := v.(policy.Principal)
	return p, ok
}

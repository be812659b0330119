package middleware

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"supportdesk/internal/model"
)

const identityContextKey = "staffIdentity"

// TokenVerifier validates a bearer token without any store access.
type TokenVerifier interface {
	Verify(token string) (model.Identity, error)
}

func IdentityFromContext(c *gin.Context) (model.Identity, bool) {
	value, ok := c.Get(identityContextKey)
	if !ok {
		return model.Identity{}, false
	}
	identity, ok := value.(model.Identity)
	return identity, ok && identity.AccountID != ""
}

// BearerToken extracts the token from an "Authorization: Bearer <token>" header.
func BearerToken(header string) string {
	parts := strings.SplitN(header, " ", 2)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") {
		return ""
	}
	return strings.TrimSpace(parts[1])
}

// RequireStaff rejects requests without a token (401) or with an invalid or
// expired one (403).
func RequireStaff(verifier TokenVerifier) gin.HandlerFunc {
	return func(c *gin.Context) {
		token := BearerToken(c.GetHeader("Authorization"))
		if token == "" {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "Access denied"})
			c.Abort()
			return
		}

		identity, err := verifier.Verify(token)
		if err != nil {
			c.JSON(http.StatusForbidden, gin.H{"error": "Invalid token"})
			c.Abort()
			return
		}

		c.Set(identityContextKey, identity)
		c.Next()
	}
}

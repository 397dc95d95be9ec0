package auth

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
)

const identityKey = "identity"

// SessionGuard validates the raw credential carried in the Authorization header
// and attaches the caller's Identity. A "Bearer " prefix is tolerated.
func SessionGuard(s Signer) gin.HandlerFunc {
	return guard(s, false)
}

// StreamGuard is SessionGuard that also accepts the credential as the "token" query
// parameter, for WebSocket upgrades where browsers cannot set headers.
func StreamGuard(s Signer) gin.HandlerFunc {
	return guard(s, true)
}

func guard(s Signer, allowQuery bool) gin.HandlerFunc {
	return func(c *gin.Context) {
		token := credentialFrom(c.GetHeader("Authorization"))
		if token == "" && allowQuery {
			token = c.Query("token")
		}
		if token == "" {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"message": "Access denied - No token provided"})
			return
		}
		id, err := s.Parse(token)
		if err != nil {
			c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"message": "Invalid token"})
			return
		}
		SetIdentity(c, id)
		c.Next()
	}
}

func credentialFrom(header string) string {
	header = strings.TrimSpace(header)
	if len(header) > len("bearer ") && strings.EqualFold(header[:len("bearer ")], "bearer ") {
		return strings.TrimSpace(header[len("bearer "):])
	}
	return header
}

// Require aborts with 403 unless the caller's role carries the capability.
// It must run after SessionGuard.
func Require(want Capability) gin.HandlerFunc {
	return func(c *gin.Context) {
		id, ok := IdentityFrom(c)
		if !ok || id.Role == nil || !id.Role.Can(want) {
			c.AbortWithStatusJSON(http.StatusForbidden, gin.H{"message": "Access denied"})
			return
		}
		c.Next()
	}
}

// SetIdentity attaches id to the request context.
func SetIdentity(c *gin.Context, id Identity) {
	c.Set(identityKey, id)
}

// IdentityFrom returns the identity attached by the guard.
func IdentityFrom(c *gin.Context) (Identity, bool) {
	v, ok := c.Get(identityKey)
	if !ok {
		return Identity{}, false
	}
	id, ok := v.(Identity)
	return id, ok
}

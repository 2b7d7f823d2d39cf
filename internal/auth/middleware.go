package auth

import (
	"net/http"

	"github.com/gin-gonic/gin"
)

// ContextKey is used for context keys to avoid collisions
type ContextKey string

// ClaimsKey holds the verified *Claims on the gin context.
const ClaimsKey ContextKey = "auth_claims"

// Middleware enforces a role on control routes.
type Middleware struct {
	svc     *Service
	role    string
	enabled bool
	deny    func(c *gin.Context)
}

// NewMiddleware returns a middleware that is a no-op when enabled is false.
// deny writes the rejection body; it must not call Next.
func NewMiddleware(svc *Service, role string, enabled bool, deny func(c *gin.Context)) *Middleware {
	if deny == nil {
		deny = func(c *gin.Context) { c.JSON(http.StatusForbidden, gin.H{"error": "forbidden"}) }
	}
	return &Middleware{svc: svc, role: role, enabled: enabled, deny: deny}
}

// GinRequireRole rejects callers whose token is missing, invalid or lacks the role.
func (m *Middleware) GinRequireRole() gin.HandlerFunc {
	return func(c *gin.Context) {
		if !m.enabled {
			c.Next()
			return
		}
		claims, err := m.svc.Verify(BearerToken(c.GetHeader("Authorization")))
		if err != nil || !claims.HasRole(m.role) {
			m.deny(c)
			c.Abort()
			return
		}
		c.Set(string(ClaimsKey), claims)
		c.Next()
	}
}

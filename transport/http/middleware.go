package http

import (
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/clearmesh/agentgate/core"
	"github.com/clearmesh/agentgate/service"
)

const (
	accessContextKey = "accessContext"

	// SessionHeader is the dedicated session-id header; a Bearer token
	// takes precedence when both are present.
	SessionHeader = "X-Session-Id"
)

// credentialFrom extracts the raw session credential from the request.
func credentialFrom(c *gin.Context) string {
	auth := c.GetHeader("Authorization")
	if strings.HasPrefix(auth, "Bearer ") {
		return strings.TrimSpace(strings.TrimPrefix(auth, "Bearer "))
	}
	return strings.TrimSpace(c.GetHeader(SessionHeader))
}

// AccessMiddleware resolves the caller's credential into an AccessContext
// for every request. Absent or invalid credentials resolve to the anonymous
// identity; individual handlers decide whether that is acceptable.
func AccessMiddleware(resolver *service.AccessResolver) gin.HandlerFunc {
	return func(c *gin.Context) {
		actx := resolver.Resolve(c.Request.Context(), credentialFrom(c))
		c.Set(accessContextKey, actx)
		c.Next()
	}
}

func accessFrom(c *gin.Context) core.AccessContext {
	if v, ok := c.Get(accessContextKey); ok {
		if actx, ok := v.(core.AccessContext); ok {
			return actx
		}
	}
	return core.Anonymous()
}

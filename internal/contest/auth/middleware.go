package auth

import (
	"context"
	"strings"

	"codeblack/internal/contest/state"
	appErr "codeblack/pkg/errors"
	"codeblack/pkg/utils/contextkey"
	"codeblack/pkg/utils/response"

	"github.com/gin-gonic/gin"
)

const identityKey = "identity"

// Middleware rejects requests without a valid bearer token. When roles are
// given the caller must hold one of them.
func Middleware(svc *Service, roles ...state.Role) gin.HandlerFunc {
	return func(c *gin.Context) {
		if svc == nil {
			response.AbortWithError(c, appErr.New(appErr.ServiceUnavailable).WithMessage("auth service unavailable"))
			return
		}
		id, err := svc.Authenticate(ExtractBearerToken(c.GetHeader("Authorization")))
		if err != nil {
			response.AbortWithError(c, err)
			return
		}
		if len(roles) > 0 && !hasRole(id.Role, roles) {
			response.AbortWithError(c, appErr.ForbiddenError("insufficient role"))
			return
		}
		c.Set(identityKey, id)
		ctx := context.WithValue(c.Request.Context(), contextkey.Username, id.Username)
		ctx = context.WithValue(ctx, contextkey.Role, string(id.Role))
		c.Request = c.Request.WithContext(ctx)
		c.Next()
	}
}

// IdentityFrom returns the identity set by Middleware.
func IdentityFrom(c *gin.Context) (Identity, bool) {
	v, ok := c.Get(identityKey)
	if !ok {
		return Identity{}, false
	}
	id, ok := v.(Identity)
	return id, ok
}

// ExtractBearerToken parses an Authorization header value.
func ExtractBearerToken(header string) string {
	parts := strings.SplitN(strings.TrimSpace(header), " ", 2)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") {
		return ""
	}
	return strings.TrimSpace(parts[1])
}

func hasRole(role state.Role, allowed []state.Role) bool {
	for _, r := range allowed {
		if r == role {
			return true
		}
	}
	return false
}

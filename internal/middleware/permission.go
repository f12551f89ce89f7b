package middleware

import (
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/cloudsuite/cloudauth/internal/permissions"
	apperrors "github.com/cloudsuite/cloudauth/pkg/errors"
	"github.com/cloudsuite/cloudauth/pkg/metrics"
	"github.com/cloudsuite/cloudauth/pkg/response"
)

// RequirePermissions guards a route with a permission requirement. Requests
// without a verified identity fail 401; identities lacking the requirement,
// or requirements naming unknown or disabled codes, fail 403.
func RequirePermissions(req permissions.Requirement) gin.HandlerFunc {
	label := strings.Join(req.Codes(), ",")

	return func(c *gin.Context) {
		identity, ok := IdentityFrom(c)
		if !ok {
			response.Error(c, apperrors.ErrUnauthorized)
			c.Abort()
			return
		}

		if err := req.Validate(); err != nil {
			// A route demanding an unregistered code denies everyone.
			metrics.PermissionChecks.WithLabelValues(label, "error").Inc()
			response.Error(c, apperrors.ErrForbidden)
			c.Abort()
			return
		}

		if !req.SatisfiedBy(identity.Permissions) {
			metrics.PermissionChecks.WithLabelValues(label, "denied").Inc()
			response.Error(c, apperrors.ErrForbidden)
			c.Abort()
			return
		}

		metrics.PermissionChecks.WithLabelValues(label, "allowed").Inc()
		c.Next()
	}
}

// RequireAll is shorthand for guarding a route with every listed code.
func RequireAll(codes ...string) gin.HandlerFunc {
	return RequirePermissions(permissions.RequireAll(codes...))
}

// RequireAny is shorthand for guarding a route with at least one listed code.
func RequireAny(codes ...string) gin.HandlerFunc {
	return RequirePermissions(permissions.RequireAny(codes...))
}

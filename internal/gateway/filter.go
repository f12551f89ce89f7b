package gateway

import (
	"errors"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"

	iauth "github.com/cloudsuite/cloudauth/internal/auth"
	"github.com/cloudsuite/cloudauth/internal/middleware"
	apperrors "github.com/cloudsuite/cloudauth/pkg/errors"
	"github.com/cloudsuite/cloudauth/pkg/metrics"
	"github.com/cloudsuite/cloudauth/pkg/response"
)

// HeaderTokenExpiresIn warns clients how many seconds remain on their access
// token so they can refresh proactively instead of racing the expiry.
const HeaderTokenExpiresIn = "X-Token-Expires-In"

// FilterConfig tunes the edge identity filter.
type FilterConfig struct {
	// Allowlist paths bypass verification entirely.
	Allowlist *Allowlist
	// BoundarySecret is stamped into X-Gateway-Auth so internal services can
	// distinguish gateway traffic from direct hits.
	BoundarySecret string
	// ExpiryWarning emits X-Token-Expires-In when the access token has less
	// than this much validity left. Zero disables the warning.
	ExpiryWarning time.Duration
	Clock         func() time.Time
}

// IdentityFilter verifies the bearer token once at the edge, then replaces it
// with trusted identity headers for internal services. Inbound identity
// headers are always stripped first, so external clients can never spoof one.
func IdentityFilter(sessions *iauth.SessionService, cfg FilterConfig) gin.HandlerFunc {
	allowlist := cfg.Allowlist
	if allowlist == nil {
		allowlist = NewAllowlist(nil)
	}
	clock := cfg.Clock
	if clock == nil {
		clock = time.Now
	}

	return func(c *gin.Context) {
		stripIdentityHeaders(c)

		if allowlist.Matches(c.Request.URL.Path) {
			metrics.GatewayRequests.WithLabelValues("bypassed").Inc()
			c.Next()
			return
		}

		token, ok := middleware.BearerToken(c)
		if !ok {
			metrics.GatewayRequests.WithLabelValues("rejected").Inc()
			response.Error(c, apperrors.ErrUnauthorized)
			c.Abort()
			return
		}

		claims, err := sessions.Verify(c.Request.Context(), token)
		if err != nil {
			abortFilterError(c, err)
			return
		}

		// The signature was checked here; internal services trust the headers.
		c.Request.Header.Del("Authorization")
		c.Request.Header.Set(middleware.HeaderUserID, strconv.FormatInt(claims.UserID, 10))
		c.Request.Header.Set(middleware.HeaderUsername, url.QueryEscape(claims.Username))
		c.Request.Header.Set(middleware.HeaderUserKey, claims.UserKey)
		if len(claims.Roles) > 0 {
			c.Request.Header.Set(middleware.HeaderRoles, strings.Join(claims.Roles, ","))
		}
		if len(claims.Permissions) > 0 {
			c.Request.Header.Set(middleware.HeaderPermissions, strings.Join(claims.Permissions, ","))
		}
		if cfg.BoundarySecret != "" {
			c.Request.Header.Set(middleware.HeaderGatewayAuth, cfg.BoundarySecret)
		}

		if cfg.ExpiryWarning > 0 && claims.ExpiresAt != nil {
			remaining := claims.ExpiresAt.Sub(clock())
			if remaining > 0 && remaining <= cfg.ExpiryWarning {
				c.Header(HeaderTokenExpiresIn, strconv.Itoa(int(remaining.Seconds())))
			}
		}

		metrics.GatewayRequests.WithLabelValues("allowed").Inc()
		c.Next()
	}
}

func stripIdentityHeaders(c *gin.Context) {
	for _, header := range []string{
		middleware.HeaderUserID,
		middleware.HeaderUsername,
		middleware.HeaderUserKey,
		middleware.HeaderRoles,
		middleware.HeaderPermissions,
		middleware.HeaderGatewayAuth,
	} {
		c.Request.Header.Del(header)
	}
}

func abortFilterError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, iauth.ErrCacheUnavailable):
		metrics.GatewayRequests.WithLabelValues("unavailable").Inc()
		response.Error(c, apperrors.ErrServiceUnavailable)
	case errors.Is(err, iauth.ErrTokenExpired):
		metrics.GatewayRequests.WithLabelValues("rejected").Inc()
		c.Header("WWW-Authenticate", "Bearer")
		response.Error(c, apperrors.ErrTokenExpired)
	default:
		metrics.GatewayRequests.WithLabelValues("rejected").Inc()
		c.Header("WWW-Authenticate", "Bearer")
		response.Error(c, apperrors.ErrUnauthorized)
	}
	c.Abort()
}

package middleware

import (
	"errors"
	"net/url"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"

	iauth "github.com/cloudsuite/cloudauth/internal/auth"
	apperrors "github.com/cloudsuite/cloudauth/pkg/errors"
	"github.com/cloudsuite/cloudauth/pkg/response"
)

// Trusted identity headers. The gateway sets these after verifying a token;
// internal services accept them only when the boundary secret matches, so a
// client that reaches a service directly cannot spoof an identity.
const (
	HeaderUserID      = "X-User-Id"
	HeaderUsername    = "X-Username"
	HeaderUserKey     = "X-User-Key"
	HeaderRoles       = "X-User-Roles"
	HeaderPermissions = "X-User-Permissions"
	HeaderGatewayAuth = "X-Gateway-Auth"
)

const CtxIdentityKey = "identity"

// Identity is the authenticated principal attached to a request, either from
// direct token verification or from the gateway's trusted headers.
type Identity struct {
	UserID      int64
	Username    string
	UserKey     string
	DeviceID    string
	Roles       []string
	Permissions []string
}

// IdentityFrom extracts the authenticated identity from the request context.
func IdentityFrom(c *gin.Context) (*Identity, bool) {
	v, ok := c.Get(CtxIdentityKey)
	if !ok {
		return nil, false
	}
	identity, ok := v.(*Identity)
	return identity, ok
}

// Auth enforces bearer-token authentication by verifying the access token
// against the session manager, so revoked sessions are rejected immediately.
func Auth(sessions *iauth.SessionService) gin.HandlerFunc {
	return func(c *gin.Context) {
		token, ok := BearerToken(c)
		if !ok {
			response.Error(c, apperrors.ErrUnauthorized)
			c.Abort()
			return
		}

		claims, err := sessions.Verify(c.Request.Context(), token)
		if err != nil {
			abortVerifyError(c, err)
			return
		}

		c.Set(CtxIdentityKey, &Identity{
			UserID:      claims.UserID,
			Username:    claims.Username,
			UserKey:     claims.UserKey,
			DeviceID:    claims.DeviceID,
			Roles:       claims.Roles,
			Permissions: claims.Permissions,
		})
		c.Next()
	}
}

// TrustedHeaders accepts the gateway's identity headers on internal services.
// Inbound identity headers are honoured only when the boundary secret
// matches; otherwise the request proceeds unauthenticated and the guard
// rejects it downstream.
func TrustedHeaders(boundarySecret string) gin.HandlerFunc {
	return func(c *gin.Context) {
		if boundarySecret == "" || c.GetHeader(HeaderGatewayAuth) != boundarySecret {
			c.Next()
			return
		}

		rawID := strings.TrimSpace(c.GetHeader(HeaderUserID))
		userID, err := strconv.ParseInt(rawID, 10, 64)
		if err != nil || userID <= 0 {
			c.Next()
			return
		}

		username := c.GetHeader(HeaderUsername)
		if decoded, err := url.QueryUnescape(username); err == nil {
			username = decoded
		}

		c.Set(CtxIdentityKey, &Identity{
			UserID:      userID,
			Username:    username,
			UserKey:     c.GetHeader(HeaderUserKey),
			Roles:       splitHeaderList(c.GetHeader(HeaderRoles)),
			Permissions: splitHeaderList(c.GetHeader(HeaderPermissions)),
		})
		c.Next()
	}
}

// BearerToken extracts the token from an Authorization: Bearer header.
func BearerToken(c *gin.Context) (string, bool) {
	authz := c.GetHeader("Authorization")
	if len(authz) < 8 || !strings.EqualFold(authz[:7], "Bearer ") {
		return "", false
	}
	token := strings.TrimSpace(authz[7:])
	return token, token != ""
}

// abortVerifyError maps session verification failures onto HTTP responses.
// Infrastructure outages surface as 503 and are never folded into 401, which
// would log out valid users during a cache blip.
func abortVerifyError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, iauth.ErrCacheUnavailable):
		response.Error(c, apperrors.ErrServiceUnavailable)
	case errors.Is(err, iauth.ErrTokenExpired):
		c.Header("WWW-Authenticate", "Bearer")
		response.Error(c, apperrors.ErrTokenExpired)
	default:
		c.Header("WWW-Authenticate", "Bearer")
		response.Error(c, apperrors.ErrUnauthorized)
	}
	c.Abort()
}

func splitHeaderList(raw string) []string {
	if raw == "" {
		return nil
	}
	parts := strings.Split(raw, ",")
	var out []string
	for _, part := range parts {
		part = strings.TrimSpace(part)
		if part != "" {
			out = append(out, part)
		}
	}
	return out
}

package middleware

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/require"

	iauth "github.com/cloudsuite/cloudauth/internal/auth"
	"github.com/cloudsuite/cloudauth/internal/cache"
	"github.com/cloudsuite/cloudauth/internal/users"
	"github.com/cloudsuite/cloudauth/pkg/crypto"
)

func init() {
	gin.SetMode(gin.TestMode)
}

type staticCredStore struct {
	cred *users.Credential
}

func (s *staticCredStore) FindUser(_ context.Context, username string) (*users.Credential, error) {
	if s.cred == nil || s.cred.Username != username {
		return nil, users.ErrUserNotFound
	}
	cpy := *s.cred
	return &cpy, nil
}

func (s *staticCredStore) RecordLogin(context.Context, int64, string) error { return nil }

func newTestSessions(t *testing.T) (*iauth.SessionService, iauth.TokenPair) {
	t.Helper()

	codec, err := iauth.NewJWTService(iauth.JWTConfig{
		Secret:          "middleware-test-secret",
		Issuer:          "cloudauth-test",
		AccessTokenTTL:  15 * time.Minute,
		RefreshTokenTTL: 24 * time.Hour,
	})
	require.NoError(t, err)

	hash, err := crypto.HashPassword("correct")
	require.NoError(t, err)

	creds := &staticCredStore{cred: &users.Credential{
		UserID:       7,
		Username:     "alice",
		PasswordHash: hash,
		Roles:        []string{"member"},
		Permissions:  []string{"user.view"},
		Enabled:      true,
	}}

	svc, err := iauth.NewSessionService(codec, cache.NewMemoryStore(), creds, iauth.SessionConfig{})
	require.NoError(t, err)

	pair, _, err := svc.Login(context.Background(), "alice", "correct", iauth.Fingerprint{DeviceID: "device-1"})
	require.NoError(t, err)
	return svc, pair
}

func authTestRouter(svc *iauth.SessionService) *gin.Engine {
	r := gin.New()
	r.GET("/whoami", Auth(svc), func(c *gin.Context) {
		identity, _ := IdentityFrom(c)
		c.JSON(http.StatusOK, gin.H{"username": identity.Username})
	})
	return r
}

func TestAuthAcceptsValidToken(t *testing.T) {
	svc, pair := newTestSessions(t)
	r := authTestRouter(svc)

	req := httptest.NewRequest(http.MethodGet, "/whoami", nil)
	req.Header.Set("Authorization", "Bearer "+pair.AccessToken)
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	require.Equal(t, http.StatusOK, w.Code)
	require.Contains(t, w.Body.String(), "alice")
}

func TestAuthRejectsMissingAndGarbageTokens(t *testing.T) {
	svc, _ := newTestSessions(t)
	r := authTestRouter(svc)

	for _, header := range []string{"", "Bearer ", "Bearer not-a-token", "Basic abc"} {
		req := httptest.NewRequest(http.MethodGet, "/whoami", nil)
		if header != "" {
			req.Header.Set("Authorization", header)
		}
		w := httptest.NewRecorder()
		r.ServeHTTP(w, req)
		require.Equal(t, http.StatusUnauthorized, w.Code, "header %q", header)
	}
}

func TestAuthRejectsLoggedOutSession(t *testing.T) {
	svc, pair := newTestSessions(t)
	require.NoError(t, svc.Logout(context.Background(), pair.AccessToken))

	r := authTestRouter(svc)
	req := httptest.NewRequest(http.MethodGet, "/whoami", nil)
	req.Header.Set("Authorization", "Bearer "+pair.AccessToken)
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	require.Equal(t, http.StatusUnauthorized, w.Code)
}

func trustedTestRouter(secret string) *gin.Engine {
	r := gin.New()
	r.GET("/whoami", TrustedHeaders(secret), func(c *gin.Context) {
		identity, ok := IdentityFrom(c)
		if !ok {
			c.JSON(http.StatusUnauthorized, gin.H{"anonymous": true})
			return
		}
		c.JSON(http.StatusOK, gin.H{"username": identity.Username, "user_id": identity.UserID})
	})
	return r
}

func TestTrustedHeadersRequireBoundarySecret(t *testing.T) {
	r := trustedTestRouter("boundary-secret")

	// Spoofed identity headers without the secret are ignored.
	req := httptest.NewRequest(http.MethodGet, "/whoami", nil)
	req.Header.Set(HeaderUserID, "7")
	req.Header.Set(HeaderUsername, "alice")
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	require.Equal(t, http.StatusUnauthorized, w.Code)

	req = httptest.NewRequest(http.MethodGet, "/whoami", nil)
	req.Header.Set(HeaderGatewayAuth, "boundary-secret")
	req.Header.Set(HeaderUserID, "7")
	req.Header.Set(HeaderUsername, "alice")
	req.Header.Set(HeaderUserKey, "key-1")
	w = httptest.NewRecorder()
	r.ServeHTTP(w, req)
	require.Equal(t, http.StatusOK, w.Code)
	require.Contains(t, w.Body.String(), "alice")
}

func TestTrustedHeadersDecodeUsername(t *testing.T) {
	r := trustedTestRouter("boundary-secret")

	req := httptest.NewRequest(http.MethodGet, "/whoami", nil)
	req.Header.Set(HeaderGatewayAuth, "boundary-secret")
	req.Header.Set(HeaderUserID, "7")
	req.Header.Set(HeaderUsername, "%E5%BC%A0%E4%B8%89")
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	require.Equal(t, http.StatusOK, w.Code)
	require.Contains(t, w.Body.String(), "张三")
}

func TestTrustedHeadersParseRolesAndPermissions(t *testing.T) {
	r := gin.New()
	r.GET("/perms", TrustedHeaders("s"), func(c *gin.Context) {
		identity, _ := IdentityFrom(c)
		c.JSON(http.StatusOK, gin.H{"perms": identity.Permissions, "roles": identity.Roles})
	})

	req := httptest.NewRequest(http.MethodGet, "/perms", nil)
	req.Header.Set(HeaderGatewayAuth, "s")
	req.Header.Set(HeaderUserID, "3")
	req.Header.Set(HeaderRoles, "member, admin")
	req.Header.Set(HeaderPermissions, "user.view,user.edit, ")
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	require.Equal(t, http.StatusOK, w.Code)
	require.Contains(t, w.Body.String(), "user.edit")
	require.Contains(t, w.Body.String(), "admin")
}

func TestBearerToken(t *testing.T) {
	cases := []struct {
		header string
		token  string
		ok     bool
	}{
		{"Bearer abc.def.ghi", "abc.def.ghi", true},
		{"bearer abc.def.ghi", "abc.def.ghi", true},
		{"Bearer   padded  ", "padded", true},
		{"Bearer ", "", false},
		{"Basic abc", "", false},
		{"", "", false},
	}

	for _, tc := range cases {
		c, _ := gin.CreateTestContext(httptest.NewRecorder())
		c.Request = httptest.NewRequest(http.MethodGet, "/", nil)
		if tc.header != "" {
			c.Request.Header.Set("Authorization", tc.header)
		}

		token, ok := BearerToken(c)
		require.Equal(t, tc.ok, ok, "header %q", tc.header)
		require.Equal(t, tc.token, token, "header %q", tc.header)
	}
}

func TestTrustedHeadersRejectBadUserID(t *testing.T) {
	r := trustedTestRouter("s")

	req := httptest.NewRequest(http.MethodGet, "/whoami", nil)
	req.Header.Set(HeaderGatewayAuth, "s")
	req.Header.Set(HeaderUserID, "not-a-number")
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	require.Equal(t, http.StatusUnauthorized, w.Code)
}

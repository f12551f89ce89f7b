package gateway

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"net/url"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/require"

	iauth "github.com/cloudsuite/cloudauth/internal/auth"
	"github.com/cloudsuite/cloudauth/internal/cache"
	"github.com/cloudsuite/cloudauth/internal/middleware"
	"github.com/cloudsuite/cloudauth/internal/users"
	"github.com/cloudsuite/cloudauth/pkg/crypto"
)

func init() {
	gin.SetMode(gin.TestMode)
}

type singleUserStore struct {
	cred *users.Credential
}

func (s *singleUserStore) FindUser(_ context.Context, username string) (*users.Credential, error) {
	if s.cred == nil || s.cred.Username != username {
		return nil, users.ErrUserNotFound
	}
	cpy := *s.cred
	return &cpy, nil
}

func (s *singleUserStore) RecordLogin(context.Context, int64, string) error { return nil }

type failingStore struct{}

func (failingStore) Get(context.Context, string) ([]byte, bool, error) {
	return nil, false, errors.New("down")
}
func (failingStore) GetDel(context.Context, string) ([]byte, bool, error) {
	return nil, false, errors.New("down")
}
func (failingStore) Set(context.Context, string, []byte, time.Duration) error {
	return errors.New("down")
}
func (failingStore) Delete(context.Context, ...string) error { return errors.New("down") }
func (failingStore) IncrementWithTTL(context.Context, string, time.Duration) (int64, time.Duration, error) {
	return 0, 0, errors.New("down")
}

func newGatewaySessions(t *testing.T, username string) (*iauth.SessionService, iauth.TokenPair) {
	t.Helper()

	codec, err := iauth.NewJWTService(iauth.JWTConfig{
		Secret:         "gateway-test-secret",
		AccessTokenTTL: 15 * time.Minute,
	})
	require.NoError(t, err)

	hash, err := crypto.HashPassword("correct")
	require.NoError(t, err)

	creds := &singleUserStore{cred: &users.Credential{
		UserID:       9,
		Username:     username,
		PasswordHash: hash,
		Permissions:  []string{"user.view", "chat.invoke"},
		Enabled:      true,
	}}

	svc, err := iauth.NewSessionService(codec, cache.NewMemoryStore(), creds, iauth.SessionConfig{})
	require.NoError(t, err)

	pair, _, err := svc.Login(context.Background(), username, "correct", iauth.Fingerprint{DeviceID: "gw-device"})
	require.NoError(t, err)
	return svc, pair
}

// headerEcho records the request headers the way an upstream service sees them.
func headerEcho(captured *http.Header) gin.HandlerFunc {
	return func(c *gin.Context) {
		*captured = c.Request.Header.Clone()
		c.Status(http.StatusOK)
	}
}

func filterRouter(svc *iauth.SessionService, cfg FilterConfig, captured *http.Header) *gin.Engine {
	r := gin.New()
	r.Use(IdentityFilter(svc, cfg))
	r.NoRoute(headerEcho(captured))
	return r
}

func TestFilterSetsTrustedHeaders(t *testing.T) {
	svc, pair := newGatewaySessions(t, "alice")

	var captured http.Header
	r := filterRouter(svc, FilterConfig{BoundarySecret: "boundary"}, &captured)

	req := httptest.NewRequest(http.MethodGet, "/api/users/me", nil)
	req.Header.Set("Authorization", "Bearer "+pair.AccessToken)
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	require.Equal(t, http.StatusOK, w.Code)
	require.Empty(t, captured.Get("Authorization"))
	require.Equal(t, "9", captured.Get(middleware.HeaderUserID))
	require.Equal(t, "alice", captured.Get(middleware.HeaderUsername))
	require.NotEmpty(t, captured.Get(middleware.HeaderUserKey))
	require.Equal(t, "boundary", captured.Get(middleware.HeaderGatewayAuth))
	require.Contains(t, captured.Get(middleware.HeaderPermissions), "chat.invoke")
}

func TestFilterEncodesNonASCIIUsername(t *testing.T) {
	svc, pair := newGatewaySessions(t, "张三")

	var captured http.Header
	r := filterRouter(svc, FilterConfig{}, &captured)

	req := httptest.NewRequest(http.MethodGet, "/api/users/me", nil)
	req.Header.Set("Authorization", "Bearer "+pair.AccessToken)
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	require.Equal(t, http.StatusOK, w.Code)
	encoded := captured.Get(middleware.HeaderUsername)
	require.NotEqual(t, "张三", encoded)
	decoded, err := url.QueryUnescape(encoded)
	require.NoError(t, err)
	require.Equal(t, "张三", decoded)
}

func TestFilterStripsSpoofedHeadersOnBypass(t *testing.T) {
	svc, _ := newGatewaySessions(t, "alice")

	var captured http.Header
	r := filterRouter(svc, FilterConfig{
		Allowlist:      NewAllowlist([]string{"/auth/login"}),
		BoundarySecret: "boundary",
	}, &captured)

	req := httptest.NewRequest(http.MethodPost, "/auth/login", nil)
	req.Header.Set(middleware.HeaderUserID, "1")
	req.Header.Set(middleware.HeaderUsername, "admin")
	req.Header.Set(middleware.HeaderGatewayAuth, "boundary")
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	require.Equal(t, http.StatusOK, w.Code)
	require.Empty(t, captured.Get(middleware.HeaderUserID))
	require.Empty(t, captured.Get(middleware.HeaderUsername))
	require.Empty(t, captured.Get(middleware.HeaderGatewayAuth))
}

func TestFilterRejectsMissingToken(t *testing.T) {
	svc, _ := newGatewaySessions(t, "alice")

	var captured http.Header
	r := filterRouter(svc, FilterConfig{}, &captured)

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/users/me", nil))
	require.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestFilterRejectsRevokedSession(t *testing.T) {
	svc, pair := newGatewaySessions(t, "alice")
	require.NoError(t, svc.Logout(context.Background(), pair.AccessToken))

	var captured http.Header
	r := filterRouter(svc, FilterConfig{}, &captured)

	req := httptest.NewRequest(http.MethodGet, "/api/users/me", nil)
	req.Header.Set("Authorization", "Bearer "+pair.AccessToken)
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	require.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestFilterCacheOutageIs503(t *testing.T) {
	codec, err := iauth.NewJWTService(iauth.JWTConfig{Secret: "gateway-test-secret"})
	require.NoError(t, err)

	svc, err := iauth.NewSessionService(codec, failingStore{}, nil, iauth.SessionConfig{})
	require.NoError(t, err)

	token, err := codec.Issue(iauth.TokenInput{UserID: 9, UserKey: "key"}, iauth.TokenTypeAccess)
	require.NoError(t, err)

	var captured http.Header
	r := filterRouter(svc, FilterConfig{}, &captured)

	req := httptest.NewRequest(http.MethodGet, "/api/users/me", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	require.Equal(t, http.StatusServiceUnavailable, w.Code)
}

func TestFilterExpiryWarningHeader(t *testing.T) {
	svc, pair := newGatewaySessions(t, "alice")

	var captured http.Header
	r := filterRouter(svc, FilterConfig{ExpiryWarning: time.Hour}, &captured)

	req := httptest.NewRequest(http.MethodGet, "/api/users/me", nil)
	req.Header.Set("Authorization", "Bearer "+pair.AccessToken)
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	require.Equal(t, http.StatusOK, w.Code)
	require.NotEmpty(t, w.Header().Get(HeaderTokenExpiresIn))

	// With no warning window configured the header stays absent.
	r = filterRouter(svc, FilterConfig{}, &captured)
	req = httptest.NewRequest(http.MethodGet, "/api/users/me", nil)
	req.Header.Set("Authorization", "Bearer "+pair.AccessToken)
	w = httptest.NewRecorder()
	r.ServeHTTP(w, req)
	require.Empty(t, w.Header().Get(HeaderTokenExpiresIn))
}

package auth

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

func newTestCodec(t *testing.T, clock *fakeClock) *JWTService {
	t.Helper()

	svc, err := NewJWTService(JWTConfig{
		Secret:          "test-secret-that-is-long-enough",
		Issuer:          "cloudauth-test",
		AccessTokenTTL:  15 * time.Minute,
		RefreshTokenTTL: 24 * time.Hour,
		Clock:           clock.Now,
	})
	require.NoError(t, err)
	return svc
}

func TestIssueAndDecodeRoundTrip(t *testing.T) {
	clock := newFakeClock()
	svc := newTestCodec(t, clock)

	token, err := svc.Issue(TokenInput{
		UserID:      42,
		Username:    "alice",
		UserKey:     "key-1",
		DeviceID:    "device-1",
		Roles:       []string{"admin"},
		Permissions: []string{"user:read", "user:write"},
	}, TokenTypeAccess)
	require.NoError(t, err)

	claims, err := svc.Decode(token, TokenTypeAccess)
	require.NoError(t, err)
	require.EqualValues(t, 42, claims.UserID)
	require.Equal(t, "alice", claims.Username)
	require.Equal(t, "key-1", claims.UserKey)
	require.Equal(t, "device-1", claims.DeviceID)
	require.Equal(t, TokenTypeAccess, claims.TokenType)
	require.True(t, claims.HasPermission("user:read"))
	require.False(t, claims.HasPermission("user:delete"))
}

func TestDecodeRejectsWrongTokenType(t *testing.T) {
	clock := newFakeClock()
	svc := newTestCodec(t, clock)

	refresh, err := svc.Issue(TokenInput{UserID: 1, TokenID: "jti-1"}, TokenTypeRefresh)
	require.NoError(t, err)

	_, err = svc.Decode(refresh, TokenTypeAccess)
	require.ErrorIs(t, err, ErrTokenInvalid)
}

func TestDecodeExpired(t *testing.T) {
	clock := newFakeClock()
	svc := newTestCodec(t, clock)

	token, err := svc.Issue(TokenInput{UserID: 1}, TokenTypeAccess)
	require.NoError(t, err)

	clock.Advance(16 * time.Minute)

	_, err = svc.Decode(token, TokenTypeAccess)
	require.ErrorIs(t, err, ErrTokenExpired)

	// Lenient decode still surfaces the claims for logout.
	claims, err := svc.DecodeLenient(token)
	require.NoError(t, err)
	require.EqualValues(t, 1, claims.UserID)
}

func TestDecodeRejectsTamperedToken(t *testing.T) {
	clock := newFakeClock()
	svc := newTestCodec(t, clock)

	token, err := svc.Issue(TokenInput{UserID: 7}, TokenTypeAccess)
	require.NoError(t, err)

	tampered := token[:len(token)-4] + "AAAA"
	_, err = svc.Decode(tampered, TokenTypeAccess)
	require.ErrorIs(t, err, ErrTokenInvalid)
}

func TestDecodeRejectsForeignSignature(t *testing.T) {
	clock := newFakeClock()
	svc := newTestCodec(t, clock)

	other, err := NewJWTService(JWTConfig{Secret: "a-completely-different-secret", Clock: clock.Now})
	require.NoError(t, err)

	token, err := other.Issue(TokenInput{UserID: 7}, TokenTypeAccess)
	require.NoError(t, err)

	_, err = svc.Decode(token, TokenTypeAccess)
	require.ErrorIs(t, err, ErrTokenInvalid)
}

func TestDecodeMalformed(t *testing.T) {
	clock := newFakeClock()
	svc := newTestCodec(t, clock)

	_, err := svc.Decode("", TokenTypeAccess)
	require.ErrorIs(t, err, ErrTokenMalformed)

	_, err = svc.Decode("not.a.jwt", TokenTypeAccess)
	require.ErrorIs(t, err, ErrTokenMalformed)
}

func TestNewJWTServiceRequiresSecret(t *testing.T) {
	_, err := NewJWTService(JWTConfig{})
	require.Error(t, err)
}

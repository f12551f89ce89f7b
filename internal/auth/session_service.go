package auth

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/cloudsuite/cloudauth/internal/cache"
	"github.com/cloudsuite/cloudauth/internal/users"
	"github.com/cloudsuite/cloudauth/pkg/crypto"
	"github.com/cloudsuite/cloudauth/pkg/metrics"
)

var (
	// ErrInvalidCredentials covers unknown usernames and wrong passwords alike.
	ErrInvalidCredentials = errors.New("session: invalid credentials")
	// ErrAccountDisabled marks a credential whose account has been deactivated.
	ErrAccountDisabled = errors.New("session: account disabled")
	// ErrSessionNotFound indicates a refresh token that was already consumed,
	// logged out, or evicted from the cache.
	ErrSessionNotFound = errors.New("session: not found")
	// ErrSessionRevoked marks an access token whose session no longer exists.
	ErrSessionRevoked = errors.New("session: revoked")
	// ErrDeviceMismatch is returned when a refresh token is presented from a
	// device other than the one it was bound to.
	ErrDeviceMismatch = errors.New("session: device mismatch")
	// ErrCacheUnavailable signals a session cache outage. It is never folded
	// into an authentication failure.
	ErrCacheUnavailable = errors.New("session: cache unavailable")
	// ErrStoreUnavailable signals a credential store outage.
	ErrStoreUnavailable = errors.New("session: credential store unavailable")
)

// Fingerprint carries the per-request device signals used for binding.
type Fingerprint struct {
	DeviceID  string
	UserAgent string
	IPAddress string
}

// DeviceID derives the stable device identifier for this fingerprint.
func (f Fingerprint) deviceID() string {
	return DeriveDeviceID(f.DeviceID, f.UserAgent)
}

// TokenPair represents an access token and refresh token pair.
type TokenPair struct {
	AccessToken      string    `json:"access_token"`
	RefreshToken     string    `json:"refresh_token"`
	AccessExpiresAt  time.Time `json:"access_expires_at"`
	RefreshExpiresAt time.Time `json:"refresh_expires_at"`
}

// SessionConfig describes tunable behaviour for the SessionService.
type SessionConfig struct {
	RefreshTokenTTL time.Duration
	CacheTimeout    time.Duration
	Clock           func() time.Time
}

// SessionService orchestrates login, refresh, verification, and logout. It
// owns every session invariant: one live session per (user, device) pair,
// single-use refresh tokens, and cache-backed revocation.
type SessionService struct {
	codec      *JWTService
	cache      *sessionStore
	creds      users.Store
	refreshTTL time.Duration
	now        func() time.Time
}

// NewSessionService constructs a session manager. The credential store may be
// nil for verify-only deployments such as the gateway; Login then fails.
func NewSessionService(codec *JWTService, store cache.Store, creds users.Store, cfg SessionConfig) (*SessionService, error) {
	if codec == nil {
		return nil, errors.New("session service: jwt service is required")
	}
	if store == nil {
		return nil, errors.New("session service: cache store is required")
	}

	ttl := cfg.RefreshTokenTTL
	if ttl <= 0 {
		ttl = codec.RefreshTokenTTL()
	}

	clock := time.Now
	if cfg.Clock != nil {
		clock = cfg.Clock
	}

	return &SessionService{
		codec:      codec,
		cache:      newSessionStore(store, cfg.CacheTimeout),
		creds:      creds,
		refreshTTL: ttl,
		now:        clock,
	}, nil
}

// Login verifies credentials and issues a fresh token pair. Any prior session
// for the same (user, device) pair is rotated out first.
func (s *SessionService) Login(ctx context.Context, username, password string, fp Fingerprint) (TokenPair, *Session, error) {
	if s.creds == nil {
		return TokenPair{}, nil, fmt.Errorf("%w: credential store not configured", ErrStoreUnavailable)
	}

	username = strings.TrimSpace(username)
	if username == "" || password == "" {
		return TokenPair{}, nil, ErrInvalidCredentials
	}

	cred, err := s.creds.FindUser(ctx, username)
	if err != nil && !errors.Is(err, users.ErrUserNotFound) {
		// One more attempt before a transient store failure becomes an outage.
		cred, err = s.creds.FindUser(ctx, username)
	}
	if errors.Is(err, users.ErrUserNotFound) {
		// Burn a comparison anyway so unknown usernames cost as much as bad passwords.
		crypto.VerifyPassword("$2a$10$invalidsaltinvalidsaltinvalidsaltinvalids", password)
		return TokenPair{}, nil, ErrInvalidCredentials
	}
	if err != nil {
		return TokenPair{}, nil, fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}

	if !crypto.VerifyPassword(cred.PasswordHash, password) {
		return TokenPair{}, nil, ErrInvalidCredentials
	}
	if !cred.Enabled {
		return TokenPair{}, nil, ErrAccountDisabled
	}

	deviceID := fp.deviceID()

	// Rotate out the existing session for this (user, device) pair, if any.
	if binding, err := s.cache.GetDeviceBinding(ctx, cred.UserID, deviceID); err == nil {
		_ = s.cache.DeleteRefresh(ctx, binding.RefreshID)
		_ = s.cache.DeleteSession(ctx, binding.UserKey)
		metrics.ActiveSessions.Dec()
	} else if !errors.Is(err, errCacheMiss) {
		return TokenPair{}, nil, err
	}

	now := s.now()
	session := &Session{
		UserKey:     uuid.NewString(),
		UserID:      cred.UserID,
		Username:    cred.Username,
		Roles:       cred.Roles,
		Permissions: cred.Permissions,
		DeviceID:    deviceID,
		RefreshID:   uuid.NewString(),
		IPAddress:   strings.TrimSpace(fp.IPAddress),
		IssuedAt:    now,
		AccessExp:   now.Add(s.codec.AccessTokenTTL()),
		RefreshExp:  now.Add(s.refreshTTL),
	}

	pair, err := s.issuePair(session)
	if err != nil {
		return TokenPair{}, nil, err
	}

	if err := s.writeSession(ctx, session); err != nil {
		return TokenPair{}, nil, err
	}

	_ = s.creds.RecordLogin(ctx, cred.UserID, fp.IPAddress)
	metrics.ActiveSessions.Inc()

	return pair, session, nil
}

// Refresh rotates a refresh token: the presented token is atomically consumed
// and a new pair is minted for the same session. A consumed, revoked, or
// evicted token fails with ErrSessionNotFound; a token presented from a
// different device fails with ErrDeviceMismatch and remains usable by the
// device it is bound to.
func (s *SessionService) Refresh(ctx context.Context, refreshToken string, fp Fingerprint) (TokenPair, *Session, error) {
	if IsSuspiciousUserAgent(fp.UserAgent) {
		metrics.TokenRefreshes.WithLabelValues("error").Inc()
		return TokenPair{}, nil, ErrTokenInvalid
	}

	claims, err := s.codec.Decode(refreshToken, TokenTypeRefresh)
	if err != nil {
		if errors.Is(err, ErrTokenExpired) {
			metrics.TokenRefreshes.WithLabelValues("expired").Inc()
		} else {
			metrics.TokenRefreshes.WithLabelValues("error").Inc()
		}
		return TokenPair{}, nil, err
	}

	// Check the device binding before claiming the single-use handle, so a
	// request from the wrong device cannot burn the bound device's token.
	session, err := s.cache.PeekRefresh(ctx, claims.ID)
	if errors.Is(err, errCacheMiss) {
		metrics.TokenRefreshes.WithLabelValues("not_found").Inc()
		return TokenPair{}, nil, ErrSessionNotFound
	}
	if err != nil {
		metrics.TokenRefreshes.WithLabelValues("error").Inc()
		return TokenPair{}, nil, err
	}

	if !IsDeviceMatch(session.DeviceID, fp.deviceID()) {
		metrics.TokenRefreshes.WithLabelValues("device_mismatch").Inc()
		return TokenPair{}, nil, ErrDeviceMismatch
	}

	session, err = s.cache.ConsumeRefresh(ctx, claims.ID)
	if errors.Is(err, errCacheMiss) {
		// A concurrent refresh claimed the handle between the peek and now.
		metrics.TokenRefreshes.WithLabelValues("not_found").Inc()
		return TokenPair{}, nil, ErrSessionNotFound
	}
	if err != nil {
		metrics.TokenRefreshes.WithLabelValues("error").Inc()
		return TokenPair{}, nil, err
	}

	now := s.now()
	session.RefreshID = uuid.NewString()
	session.IPAddress = strings.TrimSpace(fp.IPAddress)
	session.AccessExp = now.Add(s.codec.AccessTokenTTL())
	session.RefreshExp = now.Add(s.refreshTTL)

	pair, err := s.issuePair(session)
	if err != nil {
		return TokenPair{}, nil, err
	}

	if err := s.writeSession(ctx, session); err != nil {
		return TokenPair{}, nil, err
	}

	metrics.TokenRefreshes.WithLabelValues("success").Inc()
	return pair, session, nil
}

// Verify decodes an access token and confirms its session is still live in
// the shared cache, so logout and rotation are visible immediately even
// though the token itself has not cryptographically expired.
func (s *SessionService) Verify(ctx context.Context, accessToken string) (*Claims, error) {
	claims, err := s.codec.Decode(accessToken, TokenTypeAccess)
	if err != nil {
		return nil, err
	}

	if _, err := s.cache.GetSession(ctx, claims.UserKey); err != nil {
		if errors.Is(err, errCacheMiss) {
			return nil, ErrSessionRevoked
		}
		return nil, err
	}

	return claims, nil
}

// Logout terminates the session associated with the token. It accepts either
// token type, tolerates expired tokens, and is idempotent: logging out a
// session that no longer exists succeeds.
func (s *SessionService) Logout(ctx context.Context, token string) error {
	claims, err := s.codec.DecodeLenient(token)
	if err != nil {
		return err
	}

	if binding, err := s.cache.GetDeviceBinding(ctx, claims.UserID, claims.DeviceID); err == nil {
		_ = s.cache.DeleteRefresh(ctx, binding.RefreshID)
	} else if !errors.Is(err, errCacheMiss) {
		return err
	}

	if _, err := s.cache.GetSession(ctx, claims.UserKey); err == nil {
		metrics.ActiveSessions.Dec()
	} else if !errors.Is(err, errCacheMiss) {
		return err
	}

	if err := s.cache.DeleteSession(ctx, claims.UserKey); err != nil {
		return err
	}
	return s.cache.DeleteDeviceBinding(ctx, claims.UserID, claims.DeviceID)
}

func (s *SessionService) issuePair(session *Session) (TokenPair, error) {
	input := TokenInput{
		UserID:      session.UserID,
		Username:    session.Username,
		UserKey:     session.UserKey,
		DeviceID:    session.DeviceID,
		Roles:       session.Roles,
		Permissions: session.Permissions,
	}

	access, err := s.codec.Issue(input, TokenTypeAccess)
	if err != nil {
		return TokenPair{}, fmt.Errorf("session service: issue access token: %w", err)
	}

	input.TokenID = session.RefreshID
	refresh, err := s.codec.Issue(input, TokenTypeRefresh)
	if err != nil {
		return TokenPair{}, fmt.Errorf("session service: issue refresh token: %w", err)
	}

	return TokenPair{
		AccessToken:      access,
		RefreshToken:     refresh,
		AccessExpiresAt:  session.AccessExp,
		RefreshExpiresAt: session.RefreshExp,
	}, nil
}

// writeSession persists all three views of the session with TTL equal to the
// remaining refresh validity, so the cache evicts everything together.
func (s *SessionService) writeSession(ctx context.Context, session *Session) error {
	ttl := session.RefreshExp.Sub(s.now())

	if err := s.cache.PutRefresh(ctx, session.RefreshID, session, ttl); err != nil {
		return err
	}
	if err := s.cache.PutSession(ctx, session, ttl); err != nil {
		return err
	}
	return s.cache.PutDeviceBinding(ctx, session.UserID, session.DeviceID, deviceBinding{
		UserKey:   session.UserKey,
		RefreshID: session.RefreshID,
	}, ttl)
}

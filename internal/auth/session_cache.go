package auth

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/cloudsuite/cloudauth/internal/cache"
)

// Cache key layout. Three views of one session: the refresh key is the
// single-use rotation handle, the session key answers "is this session still
// live" for access-token verification, and the device key pins the one live
// session per (user, device) pair.
const (
	refreshKeyPrefix = "auth:refresh:"
	sessionKeyPrefix = "auth:session:"
	deviceKeyPrefix  = "auth:device:"
)

var errCacheMiss = errors.New("session cache miss")

// Session is the server-side record binding a user, device, and current token
// pair. The shared cache is its only authoritative home.
type Session struct {
	UserKey     string    `json:"user_key"`
	UserID      int64     `json:"user_id"`
	Username    string    `json:"username"`
	Roles       []string  `json:"roles,omitempty"`
	Permissions []string  `json:"permissions,omitempty"`
	DeviceID    string    `json:"device_id"`
	RefreshID   string    `json:"refresh_id"`
	IPAddress   string    `json:"ip_address,omitempty"`
	IssuedAt    time.Time `json:"issued_at"`
	AccessExp   time.Time `json:"access_expires_at"`
	RefreshExp  time.Time `json:"refresh_expires_at"`
}

// deviceBinding records which session currently owns a (user, device) pair.
type deviceBinding struct {
	UserKey   string `json:"user_key"`
	RefreshID string `json:"refresh_id"`
}

// sessionStore wraps the shared cache.Store with typed session operations.
// A miss is reported as errCacheMiss; any transport failure is wrapped in
// ErrCacheUnavailable so callers never confuse an outage with a revocation.
type sessionStore struct {
	store   cache.Store
	timeout time.Duration
}

func newSessionStore(store cache.Store, timeout time.Duration) *sessionStore {
	if timeout <= 0 {
		timeout = 3 * time.Second
	}
	return &sessionStore{store: store, timeout: timeout}
}

// Transient failures get one more attempt before the outage surfaces, so a
// single dropped connection does not fail an otherwise healthy request.
const (
	cacheAttempts   = 2
	cacheRetryDelay = 25 * time.Millisecond
)

// withRetry runs op with a bounded per-attempt timeout, retrying transport
// failures up to cacheAttempts times.
func (c *sessionStore) withRetry(ctx context.Context, op func(context.Context) error) error {
	if ctx == nil {
		ctx = context.Background()
	}

	var err error
	for attempt := 0; attempt < cacheAttempts; attempt++ {
		if attempt > 0 {
			select {
			case <-time.After(cacheRetryDelay):
			case <-ctx.Done():
				return err
			}
		}

		attemptCtx, cancel := context.WithTimeout(ctx, c.timeout)
		err = op(attemptCtx)
		cancel()
		if err == nil {
			return nil
		}
	}
	return err
}

// PutSession writes the live-session record keyed by user key.
func (c *sessionStore) PutSession(ctx context.Context, session *Session, ttl time.Duration) error {
	return c.put(ctx, sessionKeyPrefix+session.UserKey, session, ttl)
}

// GetSession loads the live-session record for a user key.
func (c *sessionStore) GetSession(ctx context.Context, userKey string) (*Session, error) {
	return c.get(ctx, sessionKeyPrefix+userKey)
}

// DeleteSession removes the live-session record. Missing keys are not an error.
func (c *sessionStore) DeleteSession(ctx context.Context, userKey string) error {
	return c.delete(ctx, sessionKeyPrefix+userKey)
}

// PutRefresh stores the session snapshot under the refresh token identity.
func (c *sessionStore) PutRefresh(ctx context.Context, refreshID string, session *Session, ttl time.Duration) error {
	return c.put(ctx, refreshKeyPrefix+refreshID, session, ttl)
}

// PeekRefresh reads a refresh token record without consuming it, so callers
// can run precondition checks before claiming the single-use handle.
func (c *sessionStore) PeekRefresh(ctx context.Context, refreshID string) (*Session, error) {
	return c.get(ctx, refreshKeyPrefix+refreshID)
}

// ConsumeRefresh atomically claims a refresh token identity. Of any number of
// concurrent callers presenting the same token, exactly one gets the session;
// the rest see errCacheMiss.
func (c *sessionStore) ConsumeRefresh(ctx context.Context, refreshID string) (*Session, error) {
	var (
		data  []byte
		found bool
	)
	err := c.withRetry(ctx, func(ctx context.Context) error {
		var err error
		data, found, err = c.store.GetDel(ctx, refreshKeyPrefix+refreshID)
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("%w: consume refresh: %v", ErrCacheUnavailable, err)
	}
	if !found {
		return nil, errCacheMiss
	}

	var session Session
	if err := json.Unmarshal(data, &session); err != nil {
		return nil, fmt.Errorf("session cache: decode: %w", err)
	}
	return &session, nil
}

// DeleteRefresh removes a refresh token record without consuming it.
func (c *sessionStore) DeleteRefresh(ctx context.Context, refreshID string) error {
	return c.delete(ctx, refreshKeyPrefix+refreshID)
}

// PutDeviceBinding records the session that owns a (user, device) pair.
func (c *sessionStore) PutDeviceBinding(ctx context.Context, userID int64, deviceID string, binding deviceBinding, ttl time.Duration) error {
	return c.put(ctx, deviceKey(userID, deviceID), binding, ttl)
}

// GetDeviceBinding returns the current owner of a (user, device) pair.
func (c *sessionStore) GetDeviceBinding(ctx context.Context, userID int64, deviceID string) (*deviceBinding, error) {
	var (
		data  []byte
		found bool
	)
	err := c.withRetry(ctx, func(ctx context.Context) error {
		var err error
		data, found, err = c.store.Get(ctx, deviceKey(userID, deviceID))
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("%w: get device binding: %v", ErrCacheUnavailable, err)
	}
	if !found {
		return nil, errCacheMiss
	}

	var binding deviceBinding
	if err := json.Unmarshal(data, &binding); err != nil {
		return nil, fmt.Errorf("session cache: decode binding: %w", err)
	}
	return &binding, nil
}

// DeleteDeviceBinding removes the (user, device) ownership record.
func (c *sessionStore) DeleteDeviceBinding(ctx context.Context, userID int64, deviceID string) error {
	return c.delete(ctx, deviceKey(userID, deviceID))
}

func (c *sessionStore) put(ctx context.Context, key string, value any, ttl time.Duration) error {
	payload, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("session cache: marshal: %w", err)
	}
	if ttl <= 0 {
		ttl = time.Second
	}

	err = c.withRetry(ctx, func(ctx context.Context) error {
		return c.store.Set(ctx, key, payload, ttl)
	})
	if err != nil {
		return fmt.Errorf("%w: set %s: %v", ErrCacheUnavailable, key, err)
	}
	return nil
}

func (c *sessionStore) get(ctx context.Context, key string) (*Session, error) {
	var (
		data  []byte
		found bool
	)
	err := c.withRetry(ctx, func(ctx context.Context) error {
		var err error
		data, found, err = c.store.Get(ctx, key)
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("%w: get %s: %v", ErrCacheUnavailable, key, err)
	}
	if !found {
		return nil, errCacheMiss
	}

	var session Session
	if err := json.Unmarshal(data, &session); err != nil {
		return nil, fmt.Errorf("session cache: decode: %w", err)
	}
	return &session, nil
}

func (c *sessionStore) delete(ctx context.Context, key string) error {
	err := c.withRetry(ctx, func(ctx context.Context) error {
		return c.store.Delete(ctx, key)
	})
	if err != nil {
		return fmt.Errorf("%w: delete %s: %v", ErrCacheUnavailable, key, err)
	}
	return nil
}

func deviceKey(userID int64, deviceID string) string {
	return fmt.Sprintf("%s%d:%s", deviceKeyPrefix, userID, deviceID)
}

package middleware

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/require"

	"github.com/cloudsuite/cloudauth/internal/cache"
)

type downStore struct{}

func (downStore) Get(context.Context, string) ([]byte, bool, error) {
	return nil, false, errors.New("down")
}
func (downStore) GetDel(context.Context, string) ([]byte, bool, error) {
	return nil, false, errors.New("down")
}
func (downStore) Set(context.Context, string, []byte, time.Duration) error {
	return errors.New("down")
}
func (downStore) Delete(context.Context, ...string) error { return errors.New("down") }
func (downStore) IncrementWithTTL(context.Context, string, time.Duration) (int64, time.Duration, error) {
	return 0, 0, errors.New("down")
}

func ratelimitRouter(store cache.Store, maxRequests int) *gin.Engine {
	r := gin.New()
	r.POST("/login", RateLimit(store, maxRequests, time.Minute), func(c *gin.Context) {
		c.Status(http.StatusOK)
	})
	return r
}

func TestRateLimitBlocksAfterThreshold(t *testing.T) {
	r := ratelimitRouter(cache.NewMemoryStore(), 2)

	for i := 0; i < 2; i++ {
		w := httptest.NewRecorder()
		r.ServeHTTP(w, httptest.NewRequest(http.MethodPost, "/login", nil))
		require.Equal(t, http.StatusOK, w.Code)
	}

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodPost, "/login", nil))
	require.Equal(t, http.StatusTooManyRequests, w.Code)
	require.Equal(t, "0", w.Header().Get("X-RateLimit-Remaining"))
}

func TestRateLimitSetsHeaders(t *testing.T) {
	r := ratelimitRouter(cache.NewMemoryStore(), 5)

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodPost, "/login", nil))

	require.Equal(t, http.StatusOK, w.Code)
	require.Equal(t, "5", w.Header().Get("X-RateLimit-Limit"))
	require.Equal(t, "4", w.Header().Get("X-RateLimit-Remaining"))
}

func TestRateLimitFailsOpenOnCacheOutage(t *testing.T) {
	r := ratelimitRouter(downStore{}, 1)

	for i := 0; i < 3; i++ {
		w := httptest.NewRecorder()
		r.ServeHTTP(w, httptest.NewRequest(http.MethodPost, "/login", nil))
		require.Equal(t, http.StatusOK, w.Code)
	}
}

func TestRateLimitDisabledWithoutStore(t *testing.T) {
	r := ratelimitRouter(nil, 1)

	for i := 0; i < 3; i++ {
		w := httptest.NewRecorder()
		r.ServeHTTP(w, httptest.NewRequest(http.MethodPost, "/login", nil))
		require.Equal(t, http.StatusOK, w.Code)
	}
}

package gateway

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/require"
)

// proxyTestRequest builds a request with a cancellable context so
// httputil.ReverseProxy does not fall back to http.CloseNotifier, which
// httptest.ResponseRecorder does not implement.
func proxyTestRequest(t *testing.T, method, target string) *http.Request {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	return httptest.NewRequest(method, target, nil).WithContext(ctx)
}

func TestProxyRoutesByPrefix(t *testing.T) {
	usersUpstream := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte("users:" + r.URL.Path))
	}))
	defer usersUpstream.Close()

	chatUpstream := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte("chat:" + r.URL.Path))
	}))
	defer chatUpstream.Close()

	proxy, err := NewProxy([]Route{
		{Prefix: "/api/users", Upstream: usersUpstream.URL},
		{Prefix: "/api", Upstream: chatUpstream.URL},
	})
	require.NoError(t, err)

	r := gin.New()
	r.NoRoute(proxy.Handler())

	w := httptest.NewRecorder()
	r.ServeHTTP(w, proxyTestRequest(t, http.MethodGet, "/api/users/7"))
	require.Equal(t, http.StatusOK, w.Code)
	require.Equal(t, "users:/api/users/7", w.Body.String())

	w = httptest.NewRecorder()
	r.ServeHTTP(w, proxyTestRequest(t, http.MethodGet, "/api/chat/completions"))
	require.Equal(t, http.StatusOK, w.Code)
	require.Equal(t, "chat:/api/chat/completions", w.Body.String())
}

func TestProxyUnknownRouteIs404(t *testing.T) {
	proxy, err := NewProxy([]Route{{Prefix: "/api", Upstream: "http://127.0.0.1:1"}})
	require.NoError(t, err)

	r := gin.New()
	r.NoRoute(proxy.Handler())

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/nope", nil))
	require.Equal(t, http.StatusNotFound, w.Code)
	require.Contains(t, w.Body.String(), "NOT_FOUND")
}

func TestProxyUpstreamFailureIs502(t *testing.T) {
	// Nothing listens on this port.
	proxy, err := NewProxy([]Route{{Prefix: "/api", Upstream: "http://127.0.0.1:1"}})
	require.NoError(t, err)

	r := gin.New()
	r.NoRoute(proxy.Handler())

	w := httptest.NewRecorder()
	r.ServeHTTP(w, proxyTestRequest(t, http.MethodGet, "/api/users"))
	require.Equal(t, http.StatusBadGateway, w.Code)
	require.Contains(t, w.Body.String(), "BAD_GATEWAY")
}

func TestNewProxyRejectsBadConfig(t *testing.T) {
	_, err := NewProxy([]Route{{Prefix: "api", Upstream: "http://127.0.0.1:1"}})
	require.Error(t, err)

	_, err = NewProxy([]Route{{Prefix: "/api", Upstream: "not a url"}})
	require.Error(t, err)

	_, err = NewProxy([]Route{{Prefix: "/api", Upstream: ""}})
	require.Error(t, err)
}

package gateway

import (
	"fmt"
	"net/http"
	"net/http/httputil"
	"net/url"
	"sort"
	"strings"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/cloudsuite/cloudauth/pkg/logger"
)

// Route maps a path prefix to an upstream service.
type Route struct {
	Prefix   string
	Upstream string
}

type mount struct {
	prefix string
	proxy  *httputil.ReverseProxy
}

// Proxy forwards requests to internal services by longest-prefix match.
type Proxy struct {
	mounts []mount
}

// NewProxy builds reverse proxies for the configured routes.
func NewProxy(routes []Route) (*Proxy, error) {
	mounts := make([]mount, 0, len(routes))
	for _, route := range routes {
		prefix := strings.TrimSpace(route.Prefix)
		if prefix == "" || !strings.HasPrefix(prefix, "/") {
			return nil, fmt.Errorf("gateway: invalid route prefix %q", route.Prefix)
		}

		target, err := url.Parse(route.Upstream)
		if err != nil || target.Scheme == "" || target.Host == "" {
			return nil, fmt.Errorf("gateway: invalid upstream %q for %s", route.Upstream, prefix)
		}

		rp := httputil.NewSingleHostReverseProxy(target)
		rp.ErrorHandler = upstreamErrorHandler(prefix)
		mounts = append(mounts, mount{prefix: prefix, proxy: rp})
	}

	// Longest prefix wins, so /api/users beats /api.
	sort.Slice(mounts, func(i, j int) bool {
		return len(mounts[i].prefix) > len(mounts[j].prefix)
	})

	return &Proxy{mounts: mounts}, nil
}

// Handler serves the proxied request, or 404 when no route matches.
func (p *Proxy) Handler() gin.HandlerFunc {
	return func(c *gin.Context) {
		path := c.Request.URL.Path
		for _, m := range p.mounts {
			if matchesPrefix(path, m.prefix) {
				m.proxy.ServeHTTP(c.Writer, c.Request)
				return
			}
		}

		c.JSON(http.StatusNotFound, gin.H{
			"success": false,
			"error": gin.H{
				"code":    "NOT_FOUND",
				"message": "Resource not found",
			},
		})
	}
}

func matchesPrefix(path, prefix string) bool {
	if path == prefix {
		return true
	}
	return strings.HasPrefix(path, prefix) && (strings.HasSuffix(prefix, "/") || path[len(prefix)] == '/')
}

func upstreamErrorHandler(prefix string) func(http.ResponseWriter, *http.Request, error) {
	return func(w http.ResponseWriter, r *http.Request, err error) {
		logger.WithModule("gateway").Error("upstream unreachable",
			zap.String("prefix", prefix),
			zap.String("path", r.URL.Path),
			zap.Error(err),
		)

		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusBadGateway)
		_, _ = w.Write([]byte(`{"success":false,"error":{"code":"BAD_GATEWAY","message":"Upstream service unavailable"}}`))
	}
}

package gateway

import "strings"

// Allowlist holds path prefixes that bypass identity verification at the
// edge: login, refresh, health probes, API docs.
type Allowlist struct {
	prefixes []string
}

// NewAllowlist normalises the configured prefixes, dropping empties.
func NewAllowlist(prefixes []string) *Allowlist {
	out := make([]string, 0, len(prefixes))
	for _, prefix := range prefixes {
		prefix = strings.TrimSpace(prefix)
		if prefix == "" {
			continue
		}
		if !strings.HasPrefix(prefix, "/") {
			prefix = "/" + prefix
		}
		out = append(out, prefix)
	}
	return &Allowlist{prefixes: out}
}

// Matches reports whether the request path bypasses verification. A prefix
// matches on an exact path or a path-segment boundary, so "/auth/login" does
// not accidentally open up "/auth/login-history".
func (a *Allowlist) Matches(path string) bool {
	for _, prefix := range a.prefixes {
		if path == prefix {
			return true
		}
		if strings.HasPrefix(path, prefix) && (strings.HasSuffix(prefix, "/") || path[len(prefix)] == '/') {
			return true
		}
	}
	return false
}

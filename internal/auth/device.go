package auth

import (
	"crypto/sha256"
	"encoding/hex"
	"regexp"
	"strings"
)

// Device fingerprints correlate a session to a device class for refresh-token
// binding. They are an advisory anti-fraud signal, not an authentication
// factor: a client-supplied id is trusted for stability, and the User-Agent
// fallback only distinguishes broad device classes.

const (
	maxDeviceIDLength  = 200
	maxUserAgentLength = 500
)

var (
	iosVersionPattern     = regexp.MustCompile(`CPU (?:iPhone )?OS (\d+[_\.]\d+)`)
	androidVersionPattern = regexp.MustCompile(`Android (\d+(?:\.\d+)?)`)
	androidModelPattern   = regexp.MustCompile(`Android [^;]+; ([^;)]+)`)
)

// DeriveDeviceID produces a stable device identifier. Priority order: the
// client-supplied id, a device class extracted from the User-Agent, then a
// hash of the full User-Agent string.
func DeriveDeviceID(clientID, userAgent string) string {
	clientID = strings.TrimSpace(clientID)
	if clientID != "" && len(clientID) <= maxDeviceIDLength {
		return clientID
	}

	if class := deviceClass(userAgent); class != "" {
		return class
	}

	return hashUserAgent(userAgent)
}

// IsDeviceMatch reports whether the current fingerprint matches the one bound
// at login. An empty stored id always matches: sessions created before device
// binding existed carry no id, and rejecting them would log every legacy
// client out. New deployments wanting strict binding should backfill device
// ids before tightening this.
func IsDeviceMatch(storedID, currentID string) bool {
	if strings.TrimSpace(storedID) == "" {
		return true
	}
	if strings.TrimSpace(currentID) == "" {
		return false
	}
	return storedID == currentID
}

// IsSuspiciousUserAgent screens for well-known scanner signatures. Matching
// requests are rejected before any token state is touched.
func IsSuspiciousUserAgent(userAgent string) bool {
	lower := strings.ToLower(userAgent)
	for _, marker := range []string{"sqlmap", "nikto", "nmap", "burp", "metasploit"} {
		if strings.Contains(lower, marker) {
			return true
		}
	}
	return false
}

// deviceClass extracts a coarse mobile device identifier from the User-Agent,
// or "" when the agent does not look like a recognised mobile device.
func deviceClass(userAgent string) string {
	if userAgent == "" || len(userAgent) > maxUserAgentLength {
		return ""
	}

	switch {
	case strings.Contains(userAgent, "iPhone"):
		return "iphone-" + iosVersion(userAgent)
	case strings.Contains(userAgent, "iPad"):
		return "ipad-" + iosVersion(userAgent)
	case strings.Contains(userAgent, "Android"):
		return "android-" + androidModel(userAgent) + "-" + androidVersion(userAgent)
	}
	return ""
}

func iosVersion(userAgent string) string {
	if m := iosVersionPattern.FindStringSubmatch(userAgent); len(m) == 2 {
		return strings.ReplaceAll(m[1], "_", ".")
	}
	return "unknown"
}

func androidVersion(userAgent string) string {
	if m := androidVersionPattern.FindStringSubmatch(userAgent); len(m) == 2 {
		return m[1]
	}
	return "unknown"
}

func androidModel(userAgent string) string {
	m := androidModelPattern.FindStringSubmatch(userAgent)
	if len(m) != 2 {
		return "unknown"
	}
	model := strings.TrimSpace(strings.TrimSuffix(m[1], "Build/"))
	model = strings.ReplaceAll(model, " ", "-")
	if len(model) > 20 {
		model = model[:20]
	}
	return strings.ToLower(model)
}

func hashUserAgent(userAgent string) string {
	if userAgent == "" || len(userAgent) > maxUserAgentLength {
		return "unknown-device"
	}
	sum := sha256.Sum256([]byte(userAgent))
	return "desktop-" + hex.EncodeToString(sum[:])[:8]
}

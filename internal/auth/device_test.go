package auth

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestDeriveDeviceIDPrefersClientID(t *testing.T) {
	got := DeriveDeviceID("  my-device-123  ", "Mozilla/5.0 (iPhone; CPU iPhone OS 17_2 like Mac OS X)")
	require.Equal(t, "my-device-123", got)
}

func TestDeriveDeviceIDRejectsOversizedClientID(t *testing.T) {
	huge := strings.Repeat("x", 300)
	got := DeriveDeviceID(huge, "")
	require.Equal(t, "unknown-device", got)
}

func TestDeriveDeviceIDFromMobileUserAgent(t *testing.T) {
	iphone := DeriveDeviceID("", "Mozilla/5.0 (iPhone; CPU iPhone OS 17_2 like Mac OS X) AppleWebKit/605.1.15")
	require.Equal(t, "iphone-17.2", iphone)

	android := DeriveDeviceID("", "Mozilla/5.0 (Linux; Android 14; Pixel 8) AppleWebKit/537.36")
	require.Equal(t, "android-pixel-8-14", android)

	ipad := DeriveDeviceID("", "Mozilla/5.0 (iPad; CPU OS 16_1 like Mac OS X)")
	require.Equal(t, "ipad-16.1", ipad)
}

func TestDeriveDeviceIDDesktopHashIsStable(t *testing.T) {
	ua := "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36"

	first := DeriveDeviceID("", ua)
	second := DeriveDeviceID("", ua)

	require.Equal(t, first, second)
	require.True(t, strings.HasPrefix(first, "desktop-"))
	require.NotEqual(t, first, DeriveDeviceID("", ua+" Edge/120"))
}

func TestDeriveDeviceIDEmptyUserAgent(t *testing.T) {
	require.Equal(t, "unknown-device", DeriveDeviceID("", ""))
}

func TestIsDeviceMatch(t *testing.T) {
	// Legacy sessions without a stored device id always match.
	require.True(t, IsDeviceMatch("", "desktop-abcd1234"))
	require.True(t, IsDeviceMatch("", ""))

	require.True(t, IsDeviceMatch("device-1", "device-1"))
	require.False(t, IsDeviceMatch("device-1", "device-2"))
	require.False(t, IsDeviceMatch("device-1", ""))
}

func TestIsSuspiciousUserAgent(t *testing.T) {
	require.True(t, IsSuspiciousUserAgent("sqlmap/1.7"))
	require.True(t, IsSuspiciousUserAgent("Mozilla/5.0 BURP Suite"))
	require.False(t, IsSuspiciousUserAgent("Mozilla/5.0 (Windows NT 10.0)"))
}

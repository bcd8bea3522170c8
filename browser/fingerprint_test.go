package browser

import (
	"fmt"
	"net/url"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func mustParse(t *testing.T, raw string) *url.URL {
	t.Helper()
	u, err := url.Parse(raw)
	require.NoError(t, err)
	return u
}

func TestFingerprintValuesComeFromTables(t *testing.T) {
	for i := 0; i < 50; i++ {
		fp := NewFingerprint(false, false)
		assert.Contains(t, hwConcurrencies, fp.HWConcurrency)
		assert.Contains(t, deviceMemories, fp.DeviceMemory)
		assert.Contains(t, colorDepths, fp.ColorDepth)
		assert.Contains(t, timezones, fp.Timezone)
		assert.NotEmpty(t, fp.WebGLVendor)
		assert.NotEmpty(t, fp.WebGLRenderer)
	}
}

func TestFingerprintPlatformMatchesUserAgent(t *testing.T) {
	fp := &Fingerprint{UserAgent: chromeUserAgents[0]}
	assert.Equal(t, "Win32", fp.Platform())
	assert.Equal(t, `"Windows"`, fp.SecCHPlatform())

	fp = &Fingerprint{UserAgent: mobileUserAgent}
	assert.Equal(t, "Linux armv81", fp.Platform())
	assert.Equal(t, `"Android"`, fp.SecCHPlatform())
}

func TestFingerprintFirefoxOmitsClientHints(t *testing.T) {
	fp := NewFingerprint(true, false)
	require.True(t, fp.IsFirefox())

	h := fp.Headers("")
	assert.NotContains(t, h, "Sec-CH-UA")
	assert.Equal(t, "en-US,en;q=0.9", h["Accept-Language"])
}

func TestFingerprintChromiumClientHints(t *testing.T) {
	fp := NewFingerprint(false, true)
	h := fp.Headers("en-IN,en;q=0.9,hi;q=0.8")

	assert.Equal(t, "?1", h["Sec-CH-UA-Mobile"])
	assert.Contains(t, h["Sec-CH-UA"], `"Chromium";v="124"`)
	assert.Equal(t, "en-IN,en;q=0.9,hi;q=0.8", h["Accept-Language"])
}

func TestMobileFingerprintViewport(t *testing.T) {
	fp := NewFingerprint(false, true)
	assert.Equal(t, 390, fp.ViewportWidth)
	assert.Equal(t, 844, fp.ViewportHeight)
	assert.Contains(t, fp.UserAgent, "Mobile")
}

func TestStealthScriptCarriesFingerprintValues(t *testing.T) {
	fp := NewFingerprint(false, false)
	script := StealthScript(fp)

	assert.Contains(t, script, fp.WebGLRenderer)
	assert.Contains(t, script, fp.Platform())
	assert.Contains(t, script, fmt.Sprintf("hardwareConcurrency', { get: () => %d", fp.HWConcurrency))
	assert.Contains(t, script, fmt.Sprintf("const sw = %d, sh = %d", fp.ViewportWidth, fp.ViewportHeight))
	// Template escapes survive rendering: no stray format verbs left.
	assert.NotContains(t, script, "%!")
}

func TestFirefoxStealthScriptIsLeaner(t *testing.T) {
	fp := NewFingerprint(true, false)
	chromiumLen := len(StealthScript(NewFingerprint(false, false)))
	script := FirefoxStealthScript(fp)

	assert.Less(t, len(script), chromiumLen)
	assert.Contains(t, script, "oscpu")
	assert.NotContains(t, script, "chrome.loadTimes")
}

func TestCookieJarRegistrableDomainSharing(t *testing.T) {
	jar := NewCookieJar()
	jar.Store([]Cookie{
		{Name: "session", Value: "abc", Domain: ".shop.example.co.uk", Path: "/"},
	})

	// Sibling subdomain shares the eTLD+1 bucket.
	got := jar.For("https://www.example.co.uk/cart")
	require.Len(t, got, 1)
	assert.Equal(t, "session", got[0].Name)

	assert.Empty(t, jar.For("https://other.co.uk/"))
}

func TestCookieJarReplacesAndExpires(t *testing.T) {
	jar := NewCookieJar()
	jar.Store([]Cookie{{Name: "a", Value: "1", Domain: "example.com", Path: "/"}})
	jar.Store([]Cookie{{Name: "a", Value: "2", Domain: "example.com", Path: "/"}})

	got := jar.For("https://example.com/")
	require.Len(t, got, 1)
	assert.Equal(t, "2", got[0].Value)

	jar.Store([]Cookie{{Name: "old", Value: "x", Domain: "example.com", Path: "/", Expires: time.Now().Add(-time.Hour)}})
	for _, c := range jar.For("https://example.com/") {
		assert.NotEqual(t, "old", c.Name)
	}
}

func TestIsTrackerDomainWalksParents(t *testing.T) {
	assert.True(t, isTrackerDomain("pagead2.googlesyndication.com"))
	assert.True(t, isTrackerDomain("cdn.mxpnl.mixpanel.com"))
	assert.False(t, isTrackerDomain("example.com"))
	assert.False(t, isTrackerDomain("notdoubleclick.net.example.org"))
}

func TestSearchQueryForIncludesPathSegment(t *testing.T) {
	u := mustParse(t, "https://docs.example.com/getting-started/install")
	q := searchQueryFor(u)
	assert.True(t, strings.HasPrefix(q, "docs.example.com"))
	assert.Contains(t, q, "getting started")
}

func TestSameResourceIgnoresFragmentAndSlash(t *testing.T) {
	assert.True(t, sameResource("https://a.com/x/", "https://a.com/x#top"))
	assert.False(t, sameResource("https://a.com/x", "https://a.com/y"))
}

// Package browser maintains the stealth browser pool: long-lived Chromium
// and Firefox processes, per-request contexts with randomized fingerprints
// and stealth init scripts, a shared cookie jar, challenge solving, and
// crash recovery.
package browser

import (
	"fmt"
	"math/rand"
	"strings"
)

// Fingerprint is the randomized identity of one browser context. It lives
// exactly as long as the context it was minted for.
type Fingerprint struct {
	UserAgent      string
	ViewportWidth  int
	ViewportHeight int
	Timezone       string
	Locale         string
	WebGLVendor    string
	WebGLRenderer  string
	ColorDepth     int
	HWConcurrency  int
	DeviceMemory   int
	CanvasSeed     int64
	AudioSeed      int64
}

type viewport struct{ w, h int }

var viewports = []viewport{
	{1920, 1080}, {1920, 1200}, {1680, 1050}, {1600, 900},
	{1536, 864}, {1440, 900}, {1366, 768}, {2560, 1440},
}

var mobileViewport = viewport{390, 844}

var timezones = []string{
	"America/New_York", "America/Chicago", "America/Denver",
	"America/Los_Angeles", "Europe/London", "Europe/Berlin",
	"Europe/Paris", "Europe/Amsterdam", "Australia/Sydney",
}

type webglProfile struct{ vendor, renderer string }

var webglProfiles = []webglProfile{
	{"Google Inc. (NVIDIA)", "ANGLE (NVIDIA, NVIDIA GeForce GTX 1660 Direct3D11 vs_5_0 ps_5_0, D3D11)"},
	{"Google Inc. (NVIDIA)", "ANGLE (NVIDIA, NVIDIA GeForce RTX 3060 Direct3D11 vs_5_0 ps_5_0, D3D11)"},
	{"Google Inc. (Intel)", "ANGLE (Intel, Intel(R) UHD Graphics 630 Direct3D11 vs_5_0 ps_5_0, D3D11)"},
	{"Google Inc. (Intel)", "ANGLE (Intel, Intel(R) Iris(R) Xe Graphics Direct3D11 vs_5_0 ps_5_0, D3D11)"},
	{"Google Inc. (AMD)", "ANGLE (AMD, AMD Radeon RX 6600 Direct3D11 vs_5_0 ps_5_0, D3D11)"},
}

var colorDepths = []int{24, 30}
var hwConcurrencies = []int{4, 8, 12, 16}
var deviceMemories = []int{4, 8, 16}

// chromeUserAgents is the UA pool for Chromium contexts.
var chromeUserAgents = []string{
	"Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/124.0.0.0 Safari/537.36",
	"Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/123.0.0.0 Safari/537.36",
	"Mozilla/5.0 (Macintosh; Intel Mac OS X 10_15_7) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/124.0.0.0 Safari/537.36",
	"Mozilla/5.0 (Macintosh; Intel Mac OS X 10_15_7) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/123.0.0.0 Safari/537.36",
	"Mozilla/5.0 (X11; Linux x86_64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/124.0.0.0 Safari/537.36",
}

// firefoxUserAgents is the UA pool for Firefox contexts.
var firefoxUserAgents = []string{
	"Mozilla/5.0 (Windows NT 10.0; Win64; x64; rv:125.0) Gecko/20100101 Firefox/125.0",
	"Mozilla/5.0 (Macintosh; Intel Mac OS X 10.15; rv:125.0) Gecko/20100101 Firefox/125.0",
	"Mozilla/5.0 (X11; Linux x86_64; rv:125.0) Gecko/20100101 Firefox/125.0",
}

var mobileUserAgent = "Mozilla/5.0 (Linux; Android 14; Pixel 8) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/124.0.0.0 Mobile Safari/537.36"

// NewFingerprint samples a fresh fingerprint for one context.
func NewFingerprint(firefox, mobile bool) *Fingerprint {
	vp := viewports[rand.Intn(len(viewports))]
	ua := chromeUserAgents[rand.Intn(len(chromeUserAgents))]
	if firefox {
		ua = firefoxUserAgents[rand.Intn(len(firefoxUserAgents))]
	}
	if mobile {
		vp = mobileViewport
		ua = mobileUserAgent
	}
	gl := webglProfiles[rand.Intn(len(webglProfiles))]

	return &Fingerprint{
		UserAgent:      ua,
		ViewportWidth:  vp.w,
		ViewportHeight: vp.h,
		Timezone:       timezones[rand.Intn(len(timezones))],
		Locale:         "en-US",
		WebGLVendor:    gl.vendor,
		WebGLRenderer:  gl.renderer,
		ColorDepth:     colorDepths[rand.Intn(len(colorDepths))],
		HWConcurrency:  hwConcurrencies[rand.Intn(len(hwConcurrencies))],
		DeviceMemory:   deviceMemories[rand.Intn(len(deviceMemories))],
		CanvasSeed:     rand.Int63n(1 << 31),
		AudioSeed:      rand.Int63n(1 << 31),
	}
}

// Platform returns the navigator.platform value consistent with the UA.
func (f *Fingerprint) Platform() string {
	switch {
	case strings.Contains(f.UserAgent, "Windows"):
		return "Win32"
	case strings.Contains(f.UserAgent, "Mac OS X"):
		return "MacIntel"
	case strings.Contains(f.UserAgent, "Android"):
		return "Linux armv81"
	default:
		return "Linux x86_64"
	}
}

// SecCHPlatform returns the Sec-CH-UA-Platform token matching the UA's OS.
func (f *Fingerprint) SecCHPlatform() string {
	switch {
	case strings.Contains(f.UserAgent, "Windows"):
		return `"Windows"`
	case strings.Contains(f.UserAgent, "Mac OS X"):
		return `"macOS"`
	case strings.Contains(f.UserAgent, "Android"):
		return `"Android"`
	default:
		return `"Linux"`
	}
}

// Headers builds HTTP headers consistent with the fingerprint. Firefox
// contexts never send client hints.
func (f *Fingerprint) Headers(acceptLanguage string) map[string]string {
	if acceptLanguage == "" {
		acceptLanguage = "en-US,en;q=0.9"
	}
	h := map[string]string{
		"Accept-Language": acceptLanguage,
	}
	if strings.Contains(f.UserAgent, "Firefox") {
		return h
	}
	mobile := "?0"
	if strings.Contains(f.UserAgent, "Mobile") {
		mobile = "?1"
	}
	h["Sec-CH-UA"] = chromeBrandList(f.UserAgent)
	h["Sec-CH-UA-Mobile"] = mobile
	h["Sec-CH-UA-Platform"] = f.SecCHPlatform()
	return h
}

// chromeBrandList derives the Sec-CH-UA brand list from the UA's major
// version.
func chromeBrandList(ua string) string {
	major := "124"
	if idx := strings.Index(ua, "Chrome/"); idx >= 0 {
		rest := ua[idx+len("Chrome/"):]
		if dot := strings.Index(rest, "."); dot > 0 {
			major = rest[:dot]
		}
	}
	return fmt.Sprintf(`"Chromium";v="%s", "Google Chrome";v="%s", "Not-A.Brand";v="99"`, major, major)
}

// IsFirefox reports whether the fingerprint belongs to a Firefox context.
func (f *Fingerprint) IsFirefox() bool {
	return strings.Contains(f.UserAgent, "Firefox")
}

package engine

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestIsBlockedChallengePhrases(t *testing.T) {
	cases := []struct {
		name    string
		html    string
		blocked bool
	}{
		{
			name:    "cloudflare interstitial",
			html:    `<html><head><title>Just a moment...</title></head><body>Checking your browser before accessing the site. Ray ID: 8abc</body></html>`,
			blocked: true,
		},
		{
			name:    "javascript disabled notice",
			html:    `<html><body><p>JavaScript is disabled in your browser.</p></body></html>`,
			blocked: true,
		},
		{
			name:    "captcha page",
			html:    `<html><body>Please solve this CAPTCHA to continue.</body></html>`,
			blocked: true,
		},
		{
			name:    "short page with noscript",
			html:    `<html><body><div id="root"></div><noscript>This app needs JS.</noscript></body></html>`,
			blocked: true,
		},
		{
			name:    "google redirect interstitial",
			html:    `<html><head><title>Google</title></head><body>Redirecting you now.</body></html>`,
			blocked: true,
		},
		{
			name:    "abandoned retail session",
			html:    `<html><body><a>Continue Shopping</a> <a>Conditions of Use</a> <a>Privacy Notice</a></body></html>`,
			blocked: true,
		},
		{
			name:    "short but genuine page",
			html:    `<html><head><title>Pasta</title></head><body><h1>Carbonara</h1><p>Whisk the eggs with pecorino and plenty of black pepper before tossing with hot pasta.</p><p>Serve immediately while the sauce is still glossy.</p><p>Guanciale is traditional but pancetta works in a pinch for weeknight cooking.</p></body></html>`,
			blocked: false,
		},
		{
			name:    "empty payload",
			html:    "",
			blocked: true,
		},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.blocked, IsBlocked(tc.html))
		})
	}
}

func TestIsBlockedLongTextNeverBlocked(t *testing.T) {
	// Over 5000 chars of visible text wins even when a block phrase
	// appears somewhere in the copy (e.g. an article about captchas).
	body := strings.Repeat("An in-depth analysis of modern web infrastructure. ", 150)
	html := `<html><body><p>` + body + ` The word captcha appears here.</p></body></html>`
	assert.False(t, IsBlocked(html))
}

func TestIsBlockedStrongSignalInLargePage(t *testing.T) {
	// Challenge markers in the head block the page regardless of size.
	filler := strings.Repeat("<p>Lots of rendered text follows the challenge script.</p>", 400)
	html := `<html><head><script src="/cdn-cgi/challenge-platform/h/b/orchestrate"></script></head><body>` + filler + `</body></html>`
	assert.True(t, IsBlocked(html))
}

func TestIsBlockedIsPure(t *testing.T) {
	html := `<html><body>Please verify you are human.</body></html>`
	first := IsBlocked(html)
	for i := 0; i < 5; i++ {
		assert.Equal(t, first, IsBlocked(html))
	}
}

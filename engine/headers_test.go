package engine

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestAcceptLanguageForTLD(t *testing.T) {
	assert.Equal(t, "en-IN,en;q=0.9,hi;q=0.8", AcceptLanguageFor("https://www.amazon.in/dp/B0X"))
	assert.Equal(t, "de-DE,de;q=0.9,en;q=0.8", AcceptLanguageFor("https://www.heise.de/news"))
	assert.Equal(t, defaultAcceptLanguage, AcceptLanguageFor("https://example.com/"))
	assert.Equal(t, defaultAcceptLanguage, AcceptLanguageFor("not a url"))
}

func TestAcceptLanguageLongestSuffixWins(t *testing.T) {
	// ".co.uk" must match before the shorter ".uk".
	assert.Equal(t, "en-GB,en;q=0.9", AcceptLanguageFor("https://www.bbc.co.uk/news"))
}

func TestRandomBundleIsCoherent(t *testing.T) {
	for i := 0; i < 30; i++ {
		b := randomBundle("https://example.fr/page")
		assert.NotEmpty(t, b["User-Agent"])
		assert.NotEmpty(t, b["Accept"])
		assert.Equal(t, "fr-FR,fr;q=0.9,en;q=0.8", b["Accept-Language"])
	}
}

func TestRotatingBundlePoolSize(t *testing.T) {
	assert.GreaterOrEqual(t, len(rotatingBundles), 10)
}

func TestIsHardSite(t *testing.T) {
	assert.True(t, IsHardSite("https://www.amazon.in/gp/product/B0X"))
	assert.True(t, IsHardSite("https://linkedin.com/in/someone"))
	assert.True(t, IsHardSite("https://careers.walmart.com/jobs"))
	assert.False(t, IsHardSite("https://example.com/"))
	assert.False(t, IsHardSite("https://notamazon.in.example.org/"))
}

func TestRawSnapshotURL(t *testing.T) {
	assert.Equal(t,
		"https://web.archive.org/web/20240101000000id_/https://example.com/a",
		rawSnapshotURL("https://web.archive.org/web/20240101000000/https://example.com/a"))
	// Already raw stays untouched.
	assert.Equal(t,
		"https://web.archive.org/web/20240101000000id_/https://example.com/a",
		rawSnapshotURL("https://web.archive.org/web/20240101000000id_/https://example.com/a"))
}

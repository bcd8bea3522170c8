package engine

import (
	"math/rand"
	"sort"
	"strings"
)

// tldLocales maps URL host suffixes to Accept-Language values. Matching is
// longest-suffix-first so ".co.uk" wins over ".uk".
var tldLocales = map[string]string{
	".in":    "en-IN,en;q=0.9,hi;q=0.8",
	".co.uk": "en-GB,en;q=0.9",
	".uk":    "en-GB,en;q=0.9",
	".de":    "de-DE,de;q=0.9,en;q=0.8",
	".fr":    "fr-FR,fr;q=0.9,en;q=0.8",
	".es":    "es-ES,es;q=0.9,en;q=0.8",
	".it":    "it-IT,it;q=0.9,en;q=0.8",
	".nl":    "nl-NL,nl;q=0.9,en;q=0.8",
	".br":    "pt-BR,pt;q=0.9,en;q=0.8",
	".jp":    "ja-JP,ja;q=0.9,en;q=0.8",
	".kr":    "ko-KR,ko;q=0.9,en;q=0.8",
	".cn":    "zh-CN,zh;q=0.9,en;q=0.8",
	".ru":    "ru-RU,ru;q=0.9,en;q=0.8",
	".mx":    "es-MX,es;q=0.9,en;q=0.8",
	".ca":    "en-CA,en;q=0.9,fr;q=0.8",
	".au":    "en-AU,en;q=0.9",
}

const defaultAcceptLanguage = "en-US,en;q=0.9"

// AcceptLanguageFor picks an Accept-Language header from the URL's TLD.
func AcceptLanguageFor(rawURL string) string {
	host := hostOf(rawURL)
	if host == "" {
		return defaultAcceptLanguage
	}

	suffixes := make([]string, 0, len(tldLocales))
	for s := range tldLocales {
		suffixes = append(suffixes, s)
	}
	// Longest suffix first.
	sort.Slice(suffixes, func(i, j int) bool { return len(suffixes[i]) > len(suffixes[j]) })

	for _, s := range suffixes {
		if strings.HasSuffix(host, s) {
			return tldLocales[s]
		}
	}
	return defaultAcceptLanguage
}

const acceptHTML = "text/html,application/xhtml+xml,application/xml;q=0.9,image/avif,image/webp,image/apng,*/*;q=0.8,application/signed-exchange;v=b3;q=0.7"

// headerBundle is one coherent set of browser headers.
type headerBundle map[string]string

// chromiumBundle builds Sec-CH-UA-bearing headers for Chromium-family
// browsers (Chrome, Edge).
func chromiumBundle(ua, secChUA, platform string) headerBundle {
	return headerBundle{
		"User-Agent":                ua,
		"Accept":                    acceptHTML,
		"Accept-Encoding":           "gzip, deflate, br",
		"Sec-CH-UA":                 secChUA,
		"Sec-CH-UA-Mobile":          "?0",
		"Sec-CH-UA-Platform":        platform,
		"Sec-Fetch-Dest":            "document",
		"Sec-Fetch-Mode":            "navigate",
		"Sec-Fetch-Site":            "none",
		"Sec-Fetch-User":            "?1",
		"Upgrade-Insecure-Requests": "1",
	}
}

// safariBundle builds headers without client hints (Safari never sends
// Sec-CH-UA).
func safariBundle(ua string) headerBundle {
	return headerBundle{
		"User-Agent":                ua,
		"Accept":                    "text/html,application/xhtml+xml,application/xml;q=0.9,*/*;q=0.8",
		"Accept-Encoding":           "gzip, deflate, br",
		"Upgrade-Insecure-Requests": "1",
	}
}

// firefoxBundle builds Firefox-style headers.
func firefoxBundle(ua string) headerBundle {
	return headerBundle{
		"User-Agent":                ua,
		"Accept":                    "text/html,application/xhtml+xml,application/xml;q=0.9,image/avif,image/webp,*/*;q=0.8",
		"Accept-Encoding":           "gzip, deflate, br",
		"Upgrade-Insecure-Requests": "1",
		"Sec-Fetch-Dest":            "document",
		"Sec-Fetch-Mode":            "navigate",
		"Sec-Fetch-Site":            "none",
		"Sec-Fetch-User":            "?1",
	}
}

// rotatingBundles is the tier-2 header pool: Chrome/Firefox/Safari/Edge
// across Windows, macOS and Linux, plus locale variants. One is picked at
// random per request.
var rotatingBundles = []headerBundle{
	chromiumBundle(
		"Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/124.0.0.0 Safari/537.36",
		`"Chromium";v="124", "Google Chrome";v="124", "Not-A.Brand";v="99"`, `"Windows"`),
	chromiumBundle(
		"Mozilla/5.0 (Macintosh; Intel Mac OS X 10_15_7) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/124.0.0.0 Safari/537.36",
		`"Chromium";v="124", "Google Chrome";v="124", "Not-A.Brand";v="99"`, `"macOS"`),
	chromiumBundle(
		"Mozilla/5.0 (X11; Linux x86_64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/123.0.0.0 Safari/537.36",
		`"Chromium";v="123", "Google Chrome";v="123", "Not-A.Brand";v="99"`, `"Linux"`),
	chromiumBundle(
		"Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0.0.0 Safari/537.36",
		`"Not_A Brand";v="8", "Chromium";v="120", "Google Chrome";v="120"`, `"Windows"`),
	chromiumBundle(
		"Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/101.0.1210.47 Safari/537.36 Edg/101.0.1210.47",
		`" Not A;Brand";v="99", "Chromium";v="101", "Microsoft Edge";v="101"`, `"Windows"`),
	chromiumBundle(
		"Mozilla/5.0 (Macintosh; Intel Mac OS X 10_15_7) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/122.0.0.0 Safari/537.36 Edg/122.0.0.0",
		`"Chromium";v="122", "Not(A:Brand";v="24", "Microsoft Edge";v="122"`, `"macOS"`),
	firefoxBundle("Mozilla/5.0 (Windows NT 10.0; Win64; x64; rv:125.0) Gecko/20100101 Firefox/125.0"),
	firefoxBundle("Mozilla/5.0 (Macintosh; Intel Mac OS X 10.15; rv:124.0) Gecko/20100101 Firefox/124.0"),
	firefoxBundle("Mozilla/5.0 (X11; Linux x86_64; rv:125.0) Gecko/20100101 Firefox/125.0"),
	safariBundle("Mozilla/5.0 (Macintosh; Intel Mac OS X 10_15_7) AppleWebKit/605.1.15 (KHTML, like Gecko) Version/17.4 Safari/605.1.15"),
	safariBundle("Mozilla/5.0 (Macintosh; Intel Mac OS X 10_15_7) AppleWebKit/605.1.15 (KHTML, like Gecko) Version/16.5 Safari/605.1.15"),
	safariBundle("Mozilla/5.0 (iPhone; CPU iPhone OS 17_4 like Mac OS X) AppleWebKit/605.1.15 (KHTML, like Gecko) Version/17.4 Mobile/15E148 Safari/604.1"),
}

// randomBundle picks one tier-2 header bundle and stamps the TLD locale.
func randomBundle(rawURL string) headerBundle {
	src := rotatingBundles[rand.Intn(len(rotatingBundles))]
	out := make(headerBundle, len(src)+1)
	for k, v := range src {
		out[k] = v
	}
	out["Accept-Language"] = AcceptLanguageFor(rawURL)
	return out
}

// applyBundle sets bundle headers, then overlays per-request overrides.
func applyBundle(dst map[string][]string, bundle headerBundle, overrides map[string]string) {
	for k, v := range bundle {
		dst[k] = []string{v}
	}
	for k, v := range overrides {
		dst[k] = []string{v}
	}
}

package engine

import (
	"strings"

	"golang.org/x/net/html"
)

// blockPhrases are signatures of anti-bot interstitials and challenge
// pages, matched against visible body text of short pages.
var blockPhrases = []string{
	"javascript is disabled",
	"javascript is required",
	"enable javascript",
	"please enable javascript",
	"captcha",
	"verify you are human",
	"verify that you are human",
	"checking your browser",
	"checking if the site connection is secure",
	"unusual traffic",
	"attention required",
	"please wait while we verify",
	"ray id",
	"performance & security by cloudflare",
	"sucuri website firewall",
	"pardon our interruption",
	"press & hold",
	"press and hold",
	"blocked by",
	"access denied",
	"access to this page has been denied",
	"bot detection",
	"are you a robot",
	"not a robot",
	"security check",
	"ddos protection",
	"request unsuccessful",
	"automated access",
	"suspicious activity",
	"too many requests",
	"rate limited",
	"temporarily blocked",
	"please verify",
	"human verification",
	"browser check",
}

// strongSignals catch challenge pages even when the bulk of the HTML is
// large (Cloudflare embeds sizeable scripts in its interstitials). Matched
// against the first 5000 characters of the raw HTML.
var strongSignals = []string{
	"cf-challenge",
	"cf_chl_opt",
	"turnstile",
	"_cf_chl",
	"challenge-platform",
	"px-captcha",
	"datadome",
	"geo.captcha-delivery.com",
	"sucuri_cloudproxy",
	"distil_r_captcha",
	"perimeterx",
}

// abandonedSessionPhrases mark retailer interstitials shown to expired
// sessions. Two or more on a short page means blocked.
var abandonedSessionPhrases = []string{
	"continue shopping",
	"conditions of use",
	"privacy notice",
}

// IsBlocked classifies an HTML payload as an anti-bot interstitial or a
// usable page. It is a pure function of the input.
func IsBlocked(rawHTML string) bool {
	if rawHTML == "" {
		return true
	}

	text, title, hasNoscript := visibleText(rawHTML)
	textLen := len(text)

	// Large visible text is always genuine content.
	if textLen > 5000 {
		return false
	}

	if textLen < 1500 {
		for _, phrase := range blockPhrases {
			if strings.Contains(text, phrase) {
				return true
			}
		}
	}

	head := rawHTML
	if len(head) > 5000 {
		head = head[:5000]
	}
	headLower := strings.ToLower(head)
	for _, signal := range strongSignals {
		if strings.Contains(headLower, signal) {
			return true
		}
	}

	// JS-walled shell: nearly no text plus a noscript fallback.
	if textLen < 300 && hasNoscript {
		return true
	}

	// Redirect interstitial parked on a Google page.
	if textLen < 500 && strings.Contains(title, "google") {
		return true
	}

	// Abandoned-session interstitial (retail).
	if textLen < 500 {
		hits := 0
		for _, phrase := range abandonedSessionPhrases {
			if strings.Contains(text, phrase) {
				hits++
			}
		}
		if hits >= 2 {
			return true
		}
	}

	return false
}

// visibleText extracts the lowercased, whitespace-collapsed visible body
// text, the lowercased title, and whether a <noscript> tag is present.
// script/style/noscript contents are skipped.
func visibleText(rawHTML string) (text, title string, hasNoscript bool) {
	tokenizer := html.NewTokenizer(strings.NewReader(rawHTML))
	var buf strings.Builder
	var titleBuf strings.Builder
	skipDepth := 0
	inTitle := false

	for {
		tt := tokenizer.Next()
		switch tt {
		case html.ErrorToken:
			return collapseSpace(strings.ToLower(buf.String())),
				strings.ToLower(strings.TrimSpace(titleBuf.String())),
				hasNoscript
		case html.StartTagToken:
			tn, _ := tokenizer.TagName()
			switch string(tn) {
			case "script", "style":
				skipDepth++
			case "noscript":
				hasNoscript = true
				skipDepth++
			case "title":
				inTitle = true
			}
		case html.EndTagToken:
			tn, _ := tokenizer.TagName()
			switch string(tn) {
			case "script", "style", "noscript":
				if skipDepth > 0 {
					skipDepth--
				}
			case "title":
				inTitle = false
			}
		case html.TextToken:
			if skipDepth > 0 {
				continue
			}
			t := string(tokenizer.Text())
			if inTitle {
				titleBuf.WriteString(t)
				continue
			}
			if trimmed := strings.TrimSpace(t); trimmed != "" {
				buf.WriteString(trimmed)
				buf.WriteByte(' ')
			}
		}
	}
}

// collapseSpace folds runs of whitespace into single spaces.
func collapseSpace(s string) string {
	return strings.Join(strings.Fields(s), " ")
}

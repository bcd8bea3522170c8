package crawler

import "strings"

// authWallPhrases are generic login-wall markers. Two or more on a short
// page indicate the content sits behind authentication.
var authWallPhrases = []string{
	"sign in", "log in", "create account", "create an account",
	"sign up", "forgot password", "continue with google",
	"continue with facebook", "remember me", "reset your password",
}

// gatedPhrases indicate paywalled or member-only content. One is enough.
var gatedPhrases = []string{
	"subscribe to continue", "subscribe to read", "subscription required",
	"premium content", "members only", "for subscribers",
	"register to continue reading", "already a subscriber",
	"unlock this article", "this content is for members",
}

// shortPageWords is the word count under which wall phrases are trusted.
// A long article mentioning "sign in" in passing is not a wall.
const shortPageWords = 800

// minPageWords is the floor below which a page is considered empty.
const minPageWords = 80

// GateResult classifies one extracted page.
type GateResult struct {
	// Skip means the page is not persisted; its links still feed the
	// frontier.
	Skip   bool
	Reason string
}

// Gate applies the content-quality rules to extracted markdown.
func Gate(markdown string, wordCount int) GateResult {
	if wordCount < minPageWords {
		return GateResult{Skip: true, Reason: "empty"}
	}
	if wordCount >= shortPageWords {
		return GateResult{}
	}

	lower := strings.ToLower(markdown)
	auth := 0
	for _, phrase := range authWallPhrases {
		if strings.Contains(lower, phrase) {
			auth++
		}
	}
	if auth >= 2 {
		return GateResult{Skip: true, Reason: "login_wall"}
	}
	for _, phrase := range gatedPhrases {
		if strings.Contains(lower, phrase) {
			return GateResult{Skip: true, Reason: "gated"}
		}
	}
	return GateResult{}
}

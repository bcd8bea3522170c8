// Package engine implements the multi-tier fetch cascade: cheap
// TLS-impersonating HTTP first, then header-rotated HTTP/2, stealth browser
// contexts, referrer-chain navigation, session pre-warming, and finally
// public cache and archive fallbacks. The orchestrator runs the tiers in a
// fixed order and keeps the best partial payload as a last resort.
package engine

import (
	"context"
	"net/url"
	"strings"
	"time"
)

// Tier identifiers, recorded on results as source_tier.
const (
	TierTLSClient   = "tls-client"
	TierHTTP2       = "httpx"
	TierChromium    = "chromium"
	TierFirefox     = "firefox"
	TierGoogleChain = "google-chain"
	TierPrewarm     = "prewarm"
	TierGoogleCache = "google-cache"
	TierWebArchive  = "web-archive"
)

// Tier is the uniform fetch contract every cascade strategy implements.
//
// A tier reports failure by returning a nil result (optionally with an
// error for logging). Errors never escalate past the tier boundary; the
// orchestrator only inspects the result.
type Tier interface {
	// Name returns the tier identifier.
	Name() string

	// Fetch attempts to retrieve the page. A nil result means the tier
	// could not produce anything usable.
	Fetch(ctx context.Context, req *FetchRequest) (*FetchResult, error)
}

// FetchRequest carries everything a tier needs for one attempt.
type FetchRequest struct {
	URL     string
	Headers map[string]string
	Cookies map[string]string
	Timeout time.Duration

	// Proxy is the selected proxy URL, empty for direct connections.
	Proxy string

	// Browser-tier options.
	WaitFor    time.Duration
	Screenshot bool
	Mobile     bool
	Actions    []ActionSpec

	// DiscoverLinks asks browser tiers to also run deep nav discovery.
	DiscoverLinks bool
}

// ActionSpec mirrors models.Action without importing it (engine stays a
// leaf package).
type ActionSpec struct {
	Type         string
	Selector     string
	Text         string
	Value        string
	Key          string
	Script       string
	Milliseconds int
	Direction    string
	Amount       int
	Fields       map[string]string
}

// FetchResult is one tier's output.
//
// StatusCode 0 denotes a transport-level failure; otherwise it is the
// origin status. Best is set by the orchestrator: true when the payload
// passed the block detector, false when kept only as the high-water-mark
// fallback.
type FetchResult struct {
	RawHTML         string
	StatusCode      int
	ResponseHeaders map[string]string
	SourceTier      string
	Best            bool

	// Populated by browser tiers when requested.
	Screenshot        string
	ActionScreenshots []string
	DiscoveredLinks   []string
	DocFramework      string
	FinalURL          string
}

// hostOf extracts the lowercase hostname from a raw URL.
func hostOf(rawURL string) string {
	u, err := url.Parse(rawURL)
	if err != nil {
		return ""
	}
	return strings.ToLower(u.Hostname())
}

package engine

import (
	"context"
	"fmt"
	"net/url"
	"regexp"
)

// WebCacheTier fetches the page from Google's public cache. It is the
// second-to-last resort: the copy can be stale, but it is never behind the
// origin's anti-bot wall.
type WebCacheTier struct{}

// NewWebCacheTier creates the Google cache fallback tier.
func NewWebCacheTier() *WebCacheTier { return &WebCacheTier{} }

func (t *WebCacheTier) Name() string { return TierGoogleCache }

// cacheBanner matches the header fragment Google prepends to cached pages.
var cacheBanner = regexp.MustCompile(`(?is)<div[^>]*id="google-cache-hdr".*?</div>`)

func (t *WebCacheTier) Fetch(ctx context.Context, req *FetchRequest) (*FetchResult, error) {
	cacheURL := "https://webcache.googleusercontent.com/search?q=cache:" + url.QueryEscape(req.URL)

	cacheReq := &FetchRequest{
		URL:     cacheURL,
		Timeout: req.Timeout,
		Proxy:   req.Proxy,
		Headers: map[string]string{"Referer": "https://www.google.com/"},
	}
	result, err := fetchWithProfile(ctx, cacheReq, tlsProfiles[0])
	if err != nil {
		return nil, err
	}
	if result.StatusCode >= 400 || result.RawHTML == "" {
		return nil, fmt.Errorf("google cache: status %d", result.StatusCode)
	}

	result.RawHTML = cacheBanner.ReplaceAllString(result.RawHTML, "")
	result.SourceTier = TierGoogleCache
	result.FinalURL = req.URL
	return result, nil
}

package engine

import (
	"context"
	"log/slog"
	"net/url"
	"path"
	"strings"
)

// documentExtensions bypass the HTML cascade entirely; those URLs belong to
// the external document extractor.
var documentExtensions = map[string]struct{}{
	".pdf": {}, ".doc": {}, ".docx": {}, ".xls": {}, ".xlsx": {},
	".ppt": {}, ".pptx": {}, ".odt": {}, ".ods": {}, ".odp": {},
	".rtf": {}, ".epub": {},
}

// IsDocumentURL reports whether the URL points at a non-HTML document
// format by extension.
func IsDocumentURL(rawURL string) bool {
	u, err := url.Parse(rawURL)
	if err != nil {
		return false
	}
	ext := strings.ToLower(path.Ext(u.Path))
	_, ok := documentExtensions[ext]
	return ok
}

// Orchestrator runs the fixed 8-tier cascade and applies the escalation
// invariants: tiers run strictly in order, preconditions gate hard-site and
// browser tiers, and the longest failed payload is kept as the best
// partial for when everything is exhausted.
type Orchestrator struct {
	tiers []Tier
}

// NewOrchestrator builds the cascade in its canonical order. Any tier may
// be nil (e.g. no Firefox binary); nil tiers are skipped.
func NewOrchestrator(tiers ...Tier) *Orchestrator {
	kept := make([]Tier, 0, len(tiers))
	for _, t := range tiers {
		if t != nil {
			kept = append(kept, t)
		}
	}
	return &Orchestrator{tiers: kept}
}

// NewDefaultOrchestrator wires the standard cascade around a browser
// backend. firefoxAvailable gates tier 4.
func NewDefaultOrchestrator(backend BrowserBackend, firefoxAvailable bool) *Orchestrator {
	var firefoxTier Tier
	if firefoxAvailable {
		firefoxTier = NewBrowserTier(backend, true)
	}
	return NewOrchestrator(
		NewTLSTier(),
		NewHTTP2Tier(),
		NewBrowserTier(backend, false),
		firefoxTier,
		NewReferrerTier(backend),
		NewPrewarmTier(backend),
		NewWebCacheTier(),
		NewWebArchiveTier(),
	)
}

// Run executes the cascade for one request. It always returns a non-nil
// result: on total exhaustion the result carries the best partial payload
// (Best=false) or, failing that, an empty payload with StatusCode 0.
func (o *Orchestrator) Run(ctx context.Context, req *FetchRequest) *FetchResult {
	hard := IsHardSite(req.URL)
	needsBrowser := req.Screenshot || req.WaitFor > 0 || len(req.Actions) > 0

	var bestPartial *FetchResult

	for _, tier := range o.tiers {
		if ctx.Err() != nil {
			break
		}
		if skipTier(tier.Name(), hard, needsBrowser) {
			continue
		}

		result, err := tier.Fetch(ctx, req)
		if err != nil {
			slog.Debug("tier failed", "tier", tier.Name(), "url", req.URL, "error", err)
		}
		if result == nil || result.RawHTML == "" {
			continue
		}

		if result.StatusCode < 400 && !IsBlocked(result.RawHTML) {
			result.Best = true
			slog.Info("tier succeeded", "tier", tier.Name(), "url", req.URL,
				"status", result.StatusCode, "bytes", len(result.RawHTML))
			return result
		}

		// Keep the longest failed payload as a last-resort fallback.
		if bestPartial == nil || len(result.RawHTML) > len(bestPartial.RawHTML) {
			result.Best = false
			bestPartial = result
		}
		slog.Debug("tier result rejected", "tier", tier.Name(), "url", req.URL,
			"status", result.StatusCode, "bytes", len(result.RawHTML))
	}

	if bestPartial != nil {
		slog.Warn("all tiers exhausted, returning best partial",
			"url", req.URL, "tier", bestPartial.SourceTier, "bytes", len(bestPartial.RawHTML))
		return bestPartial
	}

	return &FetchResult{StatusCode: 0, Best: false}
}

// skipTier applies the per-tier preconditions.
//
//   - Requests that demand a browser start at tier 3.
//   - Hard sites skip the plain HTTP/2 tier.
//   - Non-hard sites skip the referrer-chain and pre-warm tiers.
func skipTier(name string, hard, needsBrowser bool) bool {
	switch name {
	case TierTLSClient:
		return needsBrowser
	case TierHTTP2:
		return needsBrowser || hard
	case TierGoogleChain, TierPrewarm:
		return !hard
	default:
		return false
	}
}
